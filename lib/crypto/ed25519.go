package crypto

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"io"
)

const (
	Ed25519PrivKeySize   = ed25519.PrivateKeySize
	Ed25519PubKeySize    = ed25519.PublicKeySize
	Ed25519SignatureSize = ed25519.SignatureSize
)

// Private Key Below

// ED25519PrivateKey is the private key of a cryptographic key pair used in elliptic curve signing and verification, based on the Curve25519 elliptic curve
// It is used to create 'unique' digital signatures of messages
type ED25519PrivateKey struct{ ed25519.PrivateKey }

// newPrivateKeyED25519() creates a new ED25519PrivateKey wrapper that satisfies the PrivateKeyI interface
func newPrivateKeyED25519(privateKey ed25519.PrivateKey) *ED25519PrivateKey {
	return &ED25519PrivateKey{PrivateKey: privateKey}
}

// NewEd25519PrivateKey() generates a new ED25519 private key from 32 bytes of rand
func NewEd25519PrivateKey(rand io.Reader) (*ED25519PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand)
	if err != nil {
		return nil, err
	}
	return newPrivateKeyED25519(priv), nil
}

// BytesToED25519Private() creates a new ED25519PrivateKey from seed || public key bytes
func BytesToED25519Private(bz []byte) (*ED25519PrivateKey, error) {
	if len(bz) != Ed25519PrivKeySize {
		return nil, fmt.Errorf("ed25519 private key must be %d bytes, got %d", Ed25519PrivKeySize, len(bz))
	}
	return newPrivateKeyED25519(append(ed25519.PrivateKey(nil), bz...)), nil
}

// ensure ED25519PrivateKey satisfies PrivateKeyI interface
var _ PrivateKeyI = &ED25519PrivateKey{}

// Scheme() returns Ed25519
func (p *ED25519PrivateKey) Scheme() Scheme { return Ed25519 }

// String() returns the hex string representation of the private key
func (p *ED25519PrivateKey) String() string { return hex.EncodeToString(p.Bytes()) }

// Bytes() casts the private key to bytes
func (p *ED25519PrivateKey) Bytes() []byte { return p.PrivateKey }

// Sign() returns the digital signature out of an Ed25519 private key sign function given a message
func (p *ED25519PrivateKey) Sign(msg []byte) []byte { return ed25519.Sign(p.PrivateKey, msg) }

// PublicKey() returns the public key that pairs with this private key object
func (p *ED25519PrivateKey) PublicKey() PublicKeyI {
	return &ED25519PublicKey{p.PrivateKey.Public().(ed25519.PublicKey)}
}

// Equals() compares two private key objects and returns true if they are equal
func (p *ED25519PrivateKey) Equals(key PrivateKeyI) bool {
	return key.Scheme() == Ed25519 && p.PrivateKey.Equal(ed25519.PrivateKey(key.Bytes()))
}

// Public Key Below

// ED25519PublicKey is the public key of a cryptographic key pair used in elliptic curve signing and verification, based on the Curve25519 elliptic curve
// It is used to verify ownership of the private key as well as validate digital signatures created by the private key
type ED25519PublicKey struct{ ed25519.PublicKey }

// NewPublicKeyED25519() returns a ED25519PublicKey reference that satisfies the PublicKeyI interface
func NewPublicKeyED25519(publicKey ed25519.PublicKey) *ED25519PublicKey {
	return &ED25519PublicKey{PublicKey: publicKey}
}

// ensure the ED25519PublicKey object satisfies the PublicKeyI interface
var _ PublicKeyI = &ED25519PublicKey{}

// BytesToED25519Public() creates a new ED25519PublicKey from bytes
func BytesToED25519Public(bz []byte) (*ED25519PublicKey, error) {
	if len(bz) != Ed25519PubKeySize {
		return nil, fmt.Errorf("ed25519 public key must be %d bytes, got %d", Ed25519PubKeySize, len(bz))
	}
	return NewPublicKeyED25519(append(ed25519.PublicKey(nil), bz...)), nil
}

// Scheme() returns Ed25519
func (p *ED25519PublicKey) Scheme() Scheme { return Ed25519 }

// Bytes() casts the public key to bytes
func (p *ED25519PublicKey) Bytes() []byte { return p.PublicKey }

// String() returns the hex string representation of the public key
func (p *ED25519PublicKey) String() string { return hex.EncodeToString(p.Bytes()) }

// VerifyBytes() validates a digital signature was signed by the paired private key given the message signed
func (p *ED25519PublicKey) VerifyBytes(msg []byte, sig []byte) bool {
	if len(p.PublicKey) != Ed25519PubKeySize {
		return false
	}
	return ed25519.Verify(p.PublicKey, msg, sig)
}

// Equals() compares two public key objects and returns if the two are equal
func (p *ED25519PublicKey) Equals(i PublicKeyI) bool {
	return i.Scheme().IsEd25519() && p.PublicKey.Equal(ed25519.PublicKey(i.Bytes()))
}
