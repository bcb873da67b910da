package crypto

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

/* This file implements logic for SECP256K1 keys where the public key is compressed (33 bytes) and signatures are DER encoded */

const (
	SECP256K1PrivKeySize = 32
	SECP256K1PubKeySize  = 33
)

// Private Key Below

// ensure SECP256K1PrivateKey conforms to the PrivateKeyI interface
var _ PrivateKeyI = &SECP256K1PrivateKey{}

// SECP256K1PrivateKey is the private key of a cryptographic key pair used in elliptic curve signing and verification, based on the SECP256K1 elliptic curve
// It is used to create 'unique' digital signatures of messages
type SECP256K1PrivateKey struct {
	*btcec.PrivateKey
}

// NewSECP256K1PrivateKey() generates a new SECP256K1 private key from rand, redrawing the rare out of range scalar
func NewSECP256K1PrivateKey(rand io.Reader) (*SECP256K1PrivateKey, error) {
	bz := make([]byte, SECP256K1PrivKeySize)
	for {
		if _, err := io.ReadFull(rand, bz); err != nil {
			return nil, err
		}
		if k := new(big.Int).SetBytes(bz); k.Sign() == 0 || k.Cmp(btcec.S256().Params().N) >= 0 {
			continue
		}
		pk, _ := btcec.PrivKeyFromBytes(bz)
		return &SECP256K1PrivateKey{PrivateKey: pk}, nil
	}
}

// BytesToSECP256K1Private() converts bytes to SECP256K1 private key
func BytesToSECP256K1Private(b []byte) (*SECP256K1PrivateKey, error) {
	if len(b) != SECP256K1PrivKeySize {
		return nil, fmt.Errorf("secp256k1 private key must be %d bytes, got %d", SECP256K1PrivKeySize, len(b))
	}
	pk, _ := btcec.PrivKeyFromBytes(b)
	return &SECP256K1PrivateKey{PrivateKey: pk}, nil
}

// Scheme() returns SECP256K1
func (s *SECP256K1PrivateKey) Scheme() Scheme { return SECP256K1 }

// Sign() returns DER signature bytes over the hash of the message
func (s *SECP256K1PrivateKey) Sign(msg []byte) []byte {
	return ecdsa.Sign(s.PrivateKey, Hash(msg)).Serialize()
}

// PublicKey() returns the public pair to this private key
func (s *SECP256K1PrivateKey) PublicKey() PublicKeyI {
	return &SECP256K1PublicKey{PublicKey: s.PrivateKey.PubKey()}
}

// Bytes() returns the byte representation of the private key
func (s *SECP256K1PrivateKey) Bytes() []byte { return s.PrivateKey.Serialize() }

// String() returns the hex string representation of the private key
func (s *SECP256K1PrivateKey) String() string { return hex.EncodeToString(s.Bytes()) }

// Equals() compares to private keys and returns true if they are equal
func (s *SECP256K1PrivateKey) Equals(i PrivateKeyI) bool {
	return i.Scheme() == SECP256K1 && bytes.Equal(s.Bytes(), i.Bytes())
}

// Public Key Below

// ensure SECP256K1PublicKey conforms to the PublicKeyI interface
var _ PublicKeyI = &SECP256K1PublicKey{}

// SECP256K1PublicKey is the public key of a cryptographic key pair used in elliptic curve signing and verification, based on the SECP256K1 elliptic curve
// It is used to verify ownership of the private key as well as validate digital signatures created by the private key
type SECP256K1PublicKey struct {
	*btcec.PublicKey
}

// BytesToSECP256K1Public() returns SECP256K1PublicKey from compressed bytes
func BytesToSECP256K1Public(b []byte) (*SECP256K1PublicKey, error) {
	if len(b) != SECP256K1PubKeySize {
		return nil, fmt.Errorf("secp256k1 public key must be %d bytes, got %d", SECP256K1PubKeySize, len(b))
	}
	pub, err := btcec.ParsePubKey(b)
	if err != nil {
		return nil, err
	}
	return &SECP256K1PublicKey{PublicKey: pub}, nil
}

// Scheme() returns SECP256K1
func (s *SECP256K1PublicKey) Scheme() Scheme { return SECP256K1 }

// VerifyBytes() returns true if the digital signature is valid for this public key and the given message
func (s *SECP256K1PublicKey) VerifyBytes(msg []byte, sig []byte) bool {
	signature, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false
	}
	return signature.Verify(Hash(msg), s.PublicKey)
}

// Bytes() returns the compressed byte representation of the Public Key
func (s *SECP256K1PublicKey) Bytes() []byte { return s.PublicKey.SerializeCompressed() }

// String() returns the hex string representation of the public key
func (s *SECP256K1PublicKey) String() string { return hex.EncodeToString(s.Bytes()) }

// Equals() compares two SECP256K1PublicKey objects and returns true if they're equal
func (s *SECP256K1PublicKey) Equals(i PublicKeyI) bool {
	return i.Scheme() == SECP256K1 && bytes.Equal(s.Bytes(), i.Bytes())
}
