package crypto

import (
	"encoding/hex"
	"io"

	"github.com/drand/kyber"
	bls12381 "github.com/drand/kyber-bls12381"
	"github.com/drand/kyber/pairing"
	"github.com/drand/kyber/sign/bdn"
	"github.com/drand/kyber/util/random"
)

const (
	BLS12381PrivKeySize   = 32
	BLS12381PubKeySize    = 48
	BLS12381SignatureSize = 96
)

// ensure the BLS private key conforms to the PrivateKeyI interface
var _ PrivateKeyI = &BLS12381PrivateKey{}

// BLS12381PrivateKey is a private key wrapper implementation that satisfies the PrivateKeyI interface
// Boneh-Lynn-Shacham (BLS) signature scheme enables compact, aggregable digital signatures for secure, verifiable
// messages between multiple parties
type BLS12381PrivateKey struct {
	kyber.Scalar
	scheme *bdn.Scheme
}

// NewBLS12381PrivateKey() creates a new BLS private key drawing its scalar from rand
func NewBLS12381PrivateKey(rand io.Reader) (*BLS12381PrivateKey, error) {
	private, _ := newBLSScheme().NewKeyPair(random.New(rand))
	return newBLS12381PrivateKey(private), nil
}

func newBLS12381PrivateKey(privateKey kyber.Scalar) *BLS12381PrivateKey {
	return &BLS12381PrivateKey{Scalar: privateKey, scheme: newBLSScheme()}
}

// BytesToBLS12381Private() creates a new BLS private key from its binary scalar
func BytesToBLS12381Private(bz []byte) (*BLS12381PrivateKey, error) {
	scalar := newBLSSuite().G1().Scalar()
	if err := scalar.UnmarshalBinary(bz); err != nil {
		return nil, err
	}
	return newBLS12381PrivateKey(scalar), nil
}

// Scheme() returns BLS12381
func (b *BLS12381PrivateKey) Scheme() Scheme { return BLS12381 }

// Bytes() gives the binary representation of the private key
func (b *BLS12381PrivateKey) Bytes() []byte {
	bz, _ := b.MarshalBinary()
	return bz
}

// Sign() digitally signs a message and returns the signature output
func (b *BLS12381PrivateKey) Sign(msg []byte) []byte {
	bz, _ := b.scheme.Sign(b.Scalar, msg)
	return bz
}

// PublicKey() returns the individual public key that pairs with this BLS private key
// for basic signature verification
func (b *BLS12381PrivateKey) PublicKey() PublicKeyI {
	suite := newBLSSuite()
	public := suite.G1().Point().Mul(b.Scalar, suite.G1().Point().Base())
	return newBLS12381PublicKey(public)
}

// Equals() compares two private key objects and returns if they are equal
func (b *BLS12381PrivateKey) Equals(i PrivateKeyI) bool {
	private, ok := i.(*BLS12381PrivateKey)
	if !ok {
		return false
	}
	return b.Equal(private.Scalar)
}

// String() returns the hex string representation of the private key
func (b *BLS12381PrivateKey) String() string {
	return hex.EncodeToString(b.Bytes())
}

// ensure the BLS public key conforms to the PublicKeyI interface
var _ PublicKeyI = &BLS12381PublicKey{}

// BLS12381PublicKey is a public key wrapper implementation that satisfies the PublicKeyI interface
type BLS12381PublicKey struct {
	kyber.Point
	scheme *bdn.Scheme
}

func newBLS12381PublicKey(publicKey kyber.Point) *BLS12381PublicKey {
	return &BLS12381PublicKey{Point: publicKey, scheme: newBLSScheme()}
}

// BytesToBLS12381Public() creates a new BLS public key from a compressed G1 point
func BytesToBLS12381Public(bz []byte) (*BLS12381PublicKey, error) {
	point := newBLSSuite().G1().Point()
	if err := point.UnmarshalBinary(bz); err != nil {
		return nil, err
	}
	return newBLS12381PublicKey(point), nil
}

// Scheme() returns BLS12381
func (b *BLS12381PublicKey) Scheme() Scheme { return BLS12381 }

// Bytes() returns the binary representation of the public key
func (b *BLS12381PublicKey) Bytes() []byte {
	bz, _ := b.MarshalBinary()
	return bz
}

// VerifyBytes() verifies an individual BLS signature given a message and the signature out
func (b *BLS12381PublicKey) VerifyBytes(msg []byte, sig []byte) bool {
	return b.scheme.Verify(b.Point, msg, sig) == nil
}

// Equals() compares two public key objects and returns true if they are equal
func (b *BLS12381PublicKey) Equals(i PublicKeyI) bool {
	pub2, ok := i.(*BLS12381PublicKey)
	if !ok {
		return false
	}
	return b.Equal(pub2.Point)
}

// String() returns the hex string representation of the public key
func (b *BLS12381PublicKey) String() string {
	return hex.EncodeToString(b.Bytes())
}

func newBLSScheme() *bdn.Scheme  { return bdn.NewSchemeOnG2(newBLSSuite()) }
func newBLSSuite() pairing.Suite { return bls12381.NewBLS12381Suite() }
