package crypto

import (
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"

	"filippo.io/edwards25519"
)

/* This file implements ed25519 keys whose secret is the already expanded 64 bytes (clamped scalar || nonce prefix)
   instead of a 32 byte seed. Signatures are plain ed25519 signatures and verify with the standard algorithm */

const (
	Ed25519ExtendedPrivKeySize = 64
)

// ensure ED25519ExtendedPrivateKey satisfies PrivateKeyI interface
var _ PrivateKeyI = &ED25519ExtendedPrivateKey{}

// ED25519ExtendedPrivateKey holds the scalar and the nonce prefix of an expanded ed25519 secret
type ED25519ExtendedPrivateKey struct {
	scalar *edwards25519.Scalar
	prefix []byte
	public []byte
}

// NewEd25519ExtendedPrivateKey() generates a new extended key from 64 bytes of rand
func NewEd25519ExtendedPrivateKey(rand io.Reader) (*ED25519ExtendedPrivateKey, error) {
	bz := make([]byte, Ed25519ExtendedPrivKeySize)
	if _, err := io.ReadFull(rand, bz); err != nil {
		return nil, err
	}
	scalar, err := edwards25519.NewScalar().SetBytesWithClamping(bz[:32])
	if err != nil {
		return nil, err
	}
	return newED25519ExtendedPrivateKey(scalar, bz[32:]), nil
}

// BytesToED25519ExtendedPrivate() parses a canonical scalar || prefix encoding
func BytesToED25519ExtendedPrivate(bz []byte) (*ED25519ExtendedPrivateKey, error) {
	if len(bz) != Ed25519ExtendedPrivKeySize {
		return nil, fmt.Errorf("extended ed25519 private key must be %d bytes, got %d", Ed25519ExtendedPrivKeySize, len(bz))
	}
	scalar, err := edwards25519.NewScalar().SetCanonicalBytes(bz[:32])
	if err != nil {
		return nil, err
	}
	return newED25519ExtendedPrivateKey(scalar, bz[32:]), nil
}

func newED25519ExtendedPrivateKey(scalar *edwards25519.Scalar, prefix []byte) *ED25519ExtendedPrivateKey {
	public := new(edwards25519.Point).ScalarBaseMult(scalar).Bytes()
	return &ED25519ExtendedPrivateKey{
		scalar: scalar,
		prefix: append([]byte(nil), prefix...),
		public: public,
	}
}

// Scheme() returns Ed25519Extended
func (p *ED25519ExtendedPrivateKey) Scheme() Scheme { return Ed25519Extended }

// Bytes() returns scalar || prefix
func (p *ED25519ExtendedPrivateKey) Bytes() []byte {
	return append(p.scalar.Bytes(), p.prefix...)
}

// String() returns the hex string representation of the private key
func (p *ED25519ExtendedPrivateKey) String() string { return hex.EncodeToString(p.Bytes()) }

// Sign() produces an RFC 8032 signature using the expanded secret directly
func (p *ED25519ExtendedPrivateKey) Sign(msg []byte) []byte {
	// r = H(prefix || msg)
	h := sha512.New()
	h.Write(p.prefix)
	h.Write(msg)
	r, _ := edwards25519.NewScalar().SetUniformBytes(h.Sum(nil))
	// R = rB
	R := new(edwards25519.Point).ScalarBaseMult(r).Bytes()
	// k = H(R || A || msg)
	h.Reset()
	h.Write(R)
	h.Write(p.public)
	h.Write(msg)
	k, _ := edwards25519.NewScalar().SetUniformBytes(h.Sum(nil))
	// S = k * s + r
	S := edwards25519.NewScalar().MultiplyAdd(k, p.scalar, r)
	return append(R, S.Bytes()...)
}

// PublicKey() returns the public key that pairs with this private key object
func (p *ED25519ExtendedPrivateKey) PublicKey() PublicKeyI {
	return &ED25519ExtendedPublicKey{ED25519PublicKey{append(ed25519.PublicKey(nil), p.public...)}}
}

// Equals() compares two private key objects and returns true if they are equal
func (p *ED25519ExtendedPrivateKey) Equals(key PrivateKeyI) bool {
	return key.Scheme() == Ed25519Extended && key.String() == p.String()
}

// ED25519ExtendedPublicKey is a standard ed25519 point, tagged with the extended scheme
type ED25519ExtendedPublicKey struct{ ED25519PublicKey }

// ensure the ED25519ExtendedPublicKey object satisfies the PublicKeyI interface
var _ PublicKeyI = &ED25519ExtendedPublicKey{}

// BytesToED25519ExtendedPublic() creates a new ED25519ExtendedPublicKey from bytes
func BytesToED25519ExtendedPublic(bz []byte) (*ED25519ExtendedPublicKey, error) {
	pub, err := BytesToED25519Public(bz)
	if err != nil {
		return nil, err
	}
	return &ED25519ExtendedPublicKey{*pub}, nil
}

// Scheme() returns Ed25519Extended
func (p *ED25519ExtendedPublicKey) Scheme() Scheme { return Ed25519Extended }
