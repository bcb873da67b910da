package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/canopy-network/mocknet/lib"
)

// Scheme names a signature scheme a key pair can be generated for
type Scheme string

const (
	Ed25519         Scheme = "ed25519"          // standard ed25519 from a 32 byte seed
	Ed25519Extended Scheme = "ed25519-extended" // ed25519 with a 64 byte expanded secret (scalar || prefix)
	BLS12381        Scheme = "bls12381"         // BLS over the BLS12-381 curve, used for committee keys
	SECP256K1       Scheme = "secp256k1"        // ECDSA over secp256k1
)

// Schemes lists every supported scheme
var Schemes = []Scheme{Ed25519, Ed25519Extended, BLS12381, SECP256K1}

// IsEd25519() reports whether the scheme produces ed25519 curve points usable in ledger addresses
func (s Scheme) IsEd25519() bool { return s == Ed25519 || s == Ed25519Extended }

// PublicKeyI is an interface model for a cryptographic code shared openly, used to verify digital signatures of its paired private key
type PublicKeyI interface {
	// Scheme() names the signature scheme of the key
	Scheme() Scheme
	// Bytes() casts the public key to bytes
	Bytes() []byte
	// VerifyBytes() verifies a digital signature from its corresponding private key
	VerifyBytes(msg []byte, sig []byte) bool
	// String() returns the hex string representation
	String() string
	// Equals() compares two PublicKeys and returns true if they're equal
	Equals(PublicKeyI) bool
}

// PrivateKeyI is an interface model for a secret cryptographic code that is used to produce digital signatures
type PrivateKeyI interface {
	Scheme() Scheme
	Bytes() []byte
	Sign(msg []byte) []byte
	PublicKey() PublicKeyI
	// String() returns the hex string representation
	String() string
	Equals(PrivateKeyI) bool
}

// KeyGroup is a structure that holds the PublicKey that corresponds to PrivateKey
type KeyGroup struct {
	PublicKey  PublicKeyI  // the public code that can cryptographically verify signatures from the private key
	PrivateKey PrivateKeyI // the secret code that is capable of producing digital signatures
}

// NewKeyGroup() generates a public key that pairs with the private key
func NewKeyGroup(pk PrivateKeyI) *KeyGroup {
	return &KeyGroup{
		PublicKey:  pk.PublicKey(),
		PrivateKey: pk,
	}
}

// Scheme() returns the scheme of the pair
func (k *KeyGroup) Scheme() Scheme { return k.PrivateKey.Scheme() }

// Address() encodes a single or account address of the key; ed25519 schemes only
func (k *KeyGroup) Address(discrimination Discrimination, kind AddressKind) (*Address, lib.ErrorI) {
	return NewAddress(discrimination, kind, k.PublicKey)
}

// GenerateKeyPair() creates a key pair for the scheme from the randomness source. The output is a pure function
// of the bytes read from rand, so a seeded source (see NewSeededReader) reproduces the same keys.
// A nil source uses the operating system's randomness
func GenerateKeyPair(scheme Scheme, rand io.Reader) (*KeyGroup, lib.ErrorI) {
	if rand == nil {
		rand = cryptoRand()
	}
	var (
		pk  PrivateKeyI
		err error
	)
	switch scheme {
	case Ed25519:
		pk, err = NewEd25519PrivateKey(rand)
	case Ed25519Extended:
		pk, err = NewEd25519ExtendedPrivateKey(rand)
	case BLS12381:
		pk, err = NewBLS12381PrivateKey(rand)
	case SECP256K1:
		pk, err = NewSECP256K1PrivateKey(rand)
	default:
		return nil, lib.ErrUnknownScheme(string(scheme))
	}
	if err != nil {
		return nil, lib.ErrKeyGeneration(err)
	}
	return NewKeyGroup(pk), nil
}

// Sign() signs msg with the private key
func Sign(msg []byte, key PrivateKeyI) []byte { return key.Sign(msg) }

// Verify() checks sig over msg against the public key
func Verify(pub PublicKeyI, msg, sig []byte) bool { return pub.VerifyBytes(msg, sig) }

// NewPublicKeyFromBytes() creates a new PublicKeyI interface from a byte slice of the scheme
func NewPublicKeyFromBytes(scheme Scheme, bz []byte) (PublicKeyI, lib.ErrorI) {
	var (
		pk  PublicKeyI
		err error
	)
	switch scheme {
	case Ed25519:
		pk, err = BytesToED25519Public(bz)
	case Ed25519Extended:
		pk, err = BytesToED25519ExtendedPublic(bz)
	case BLS12381:
		pk, err = BytesToBLS12381Public(bz)
	case SECP256K1:
		pk, err = BytesToSECP256K1Public(bz)
	default:
		return nil, lib.ErrUnknownScheme(string(scheme))
	}
	if err != nil {
		return nil, lib.ErrInvalidPublicKey(err)
	}
	return pk, nil
}

// NewPrivateKeyFromBytes() creates a new PrivateKeyI interface from bytes of the scheme
func NewPrivateKeyFromBytes(scheme Scheme, bz []byte) (PrivateKeyI, lib.ErrorI) {
	var (
		pk  PrivateKeyI
		err error
	)
	switch scheme {
	case Ed25519:
		pk, err = BytesToED25519Private(bz)
	case Ed25519Extended:
		pk, err = BytesToED25519ExtendedPrivate(bz)
	case BLS12381:
		pk, err = BytesToBLS12381Private(bz)
	case SECP256K1:
		pk, err = BytesToSECP256K1Private(bz)
	default:
		return nil, lib.ErrUnknownScheme(string(scheme))
	}
	if err != nil {
		return nil, lib.ErrInvalidPrivateKey(err)
	}
	return pk, nil
}

// NewPrivateKeyFromString() creates a new PrivateKeyI interface from a hex string
func NewPrivateKeyFromString(scheme Scheme, s string) (PrivateKeyI, lib.ErrorI) {
	bz, err := hex.DecodeString(s)
	if err != nil {
		return nil, lib.ErrInvalidPrivateKey(err)
	}
	return NewPrivateKeyFromBytes(scheme, bz)
}

// jsonKeyGroup is the json shape of a KeyGroup
type jsonKeyGroup struct {
	Scheme     Scheme `json:"scheme"`
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

// MarshalJSON() implements the json.Marshaller interface for KeyGroup
func (k *KeyGroup) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonKeyGroup{
		Scheme:     k.Scheme(),
		PublicKey:  k.PublicKey.String(),
		PrivateKey: k.PrivateKey.String(),
	})
}

// UnmarshalJSON() implements the json.Unmarshaler interface for KeyGroup
func (k *KeyGroup) UnmarshalJSON(b []byte) error {
	j := new(jsonKeyGroup)
	if err := json.Unmarshal(b, j); err != nil {
		return err
	}
	privateKey, err := NewPrivateKeyFromString(j.Scheme, j.PrivateKey)
	if err != nil {
		return err
	}
	if privateKey.PublicKey().String() != j.PublicKey {
		return fmt.Errorf("public key %s does not pair with the private key", j.PublicKey)
	}
	*k = *NewKeyGroup(privateKey)
	return nil
}

func cryptoRand() io.Reader { return rand.Reader }
