package crypto

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/canopy-network/mocknet/lib"
)

/*
	An address is a one byte header followed by a kind specific payload:

	header  = discrimination (high bit) | kind (low nibble)
	payload = single:   spending key (32)
	          group:    spending key (32) || delegation key (32)
	          account:  account key (32)
	          multisig: identifier hash (32)

	The canonical text form is bech32 with the discrimination's human readable prefix;
	the legacy text form is base58 of the same bytes
*/

// Discrimination separates production addresses from test addresses
type Discrimination byte

const (
	Production Discrimination = 0x00
	Test       Discrimination = 0x80

	ProductionHRP = "ca"
	TestHRP       = "ta"
)

// HRP() returns the bech32 human readable prefix of the discrimination
func (d Discrimination) HRP() string {
	if d == Test {
		return TestHRP
	}
	return ProductionHRP
}

func (d Discrimination) String() string {
	switch d {
	case Production:
		return "production"
	case Test:
		return "test"
	}
	return fmt.Sprintf("discrimination(%#x)", byte(d))
}

// ParseDiscrimination() converts a configuration string to a Discrimination
func ParseDiscrimination(s string) (Discrimination, lib.ErrorI) {
	switch strings.ToLower(s) {
	case "", "test":
		return Test, nil
	case "production":
		return Production, nil
	}
	return 0, lib.ErrEncoding(fmt.Sprintf("unknown discrimination %q", s))
}

// AddressKind is the shape of the address payload
type AddressKind byte

const (
	Single   AddressKind = 0x3
	Group    AddressKind = 0x4
	Account  AddressKind = 0x5
	Multisig AddressKind = 0x6

	AddressPayloadSize = 32
)

// AddressKinds lists every kind
var AddressKinds = []AddressKind{Single, Group, Account, Multisig}

func (k AddressKind) String() string {
	switch k {
	case Single:
		return "single"
	case Group:
		return "group"
	case Account:
		return "account"
	case Multisig:
		return "multisig"
	}
	return fmt.Sprintf("kind(%#x)", byte(k))
}

// payloadSize() returns the number of bytes following the header
func (k AddressKind) payloadSize() int {
	if k == Group {
		return 2 * AddressPayloadSize
	}
	return AddressPayloadSize
}

// Address is a decoded ledger address
type Address struct {
	Discrimination Discrimination
	Kind           AddressKind
	Spending       []byte // the spending key, account key or multisig identifier
	Delegation     []byte // group addresses only
}

// NewAddress() builds an address of the kind from ed25519 family public keys.
// Single and account addresses take one key, group addresses take the spending key then the delegation key
func NewAddress(discrimination Discrimination, kind AddressKind, keys ...PublicKeyI) (*Address, lib.ErrorI) {
	if err := checkDiscrimination(discrimination); err != nil {
		return nil, err
	}
	want := 1
	switch kind {
	case Single, Account:
	case Group:
		want = 2
	case Multisig:
		return nil, lib.ErrEncoding("multisig addresses are built from an identifier, not keys")
	default:
		return nil, lib.ErrEncoding(fmt.Sprintf("unknown address kind %#x", byte(kind)))
	}
	if len(keys) != want {
		return nil, lib.ErrEncoding(fmt.Sprintf("%s address needs %d key(s), got %d", kind, want, len(keys)))
	}
	for _, k := range keys {
		if k == nil || !k.Scheme().IsEd25519() {
			return nil, lib.ErrEncoding(fmt.Sprintf("%s address needs ed25519 keys", kind))
		}
	}
	a := &Address{Discrimination: discrimination, Kind: kind, Spending: keys[0].Bytes()}
	if kind == Group {
		a.Delegation = keys[1].Bytes()
	}
	return a, nil
}

// EncodeAddress() is NewAddress followed by the bech32 encoding
func EncodeAddress(discrimination Discrimination, kind AddressKind, keys ...PublicKeyI) (string, lib.ErrorI) {
	a, err := NewAddress(discrimination, kind, keys...)
	if err != nil {
		return "", err
	}
	return a.String(), nil
}

// NewMultisigAddress() builds a multisig address from the 32 byte identifier of the multisig declaration
func NewMultisigAddress(discrimination Discrimination, identifier []byte) (*Address, lib.ErrorI) {
	if err := checkDiscrimination(discrimination); err != nil {
		return nil, err
	}
	if len(identifier) != AddressPayloadSize {
		return nil, lib.ErrEncoding(fmt.Sprintf("multisig identifier must be %d bytes, got %d", AddressPayloadSize, len(identifier)))
	}
	return &Address{Discrimination: discrimination, Kind: Multisig, Spending: bytes.Clone(identifier)}, nil
}

// NewAddressFromBytes() parses the binary form of an address
func NewAddressFromBytes(bz []byte) (*Address, lib.ErrorI) {
	if len(bz) == 0 {
		return nil, lib.ErrDecoding("empty address")
	}
	discrimination, kind := Discrimination(bz[0]&0x80), AddressKind(bz[0]&0x0f)
	if bz[0]&0x70 != 0 {
		return nil, lib.ErrDecoding(fmt.Sprintf("malformed address header %#x", bz[0]))
	}
	switch kind {
	case Single, Group, Account, Multisig:
	default:
		return nil, lib.ErrDecoding(fmt.Sprintf("unknown address kind %#x", byte(kind)))
	}
	payload := bz[1:]
	if len(payload) != kind.payloadSize() {
		return nil, lib.ErrDecoding(fmt.Sprintf("%s address payload must be %d bytes, got %d", kind, kind.payloadSize(), len(payload)))
	}
	a := &Address{Discrimination: discrimination, Kind: kind, Spending: bytes.Clone(payload[:AddressPayloadSize])}
	if kind == Group {
		a.Delegation = bytes.Clone(payload[AddressPayloadSize:])
	}
	return a, nil
}

// DecodeAddress() parses either the bech32 or the legacy base58 text form
func DecodeAddress(s string) (*Address, lib.ErrorI) {
	lower := strings.ToLower(s)
	var bechErr lib.ErrorI
	if strings.HasPrefix(lower, ProductionHRP+"1") || strings.HasPrefix(lower, TestHRP+"1") {
		a, err := decodeBech32(s)
		if err == nil {
			return a, nil
		}
		// a base58 string may share the prefix
		bechErr = err
	}
	bz := base58.Decode(s)
	if len(bz) == 0 {
		if bechErr != nil {
			return nil, bechErr
		}
		return nil, lib.ErrDecoding(fmt.Sprintf("%q is neither bech32 nor base58", s))
	}
	a, err := NewAddressFromBytes(bz)
	if err != nil && bechErr != nil {
		return nil, bechErr
	}
	return a, err
}

func decodeBech32(s string) (*Address, lib.ErrorI) {
	// group addresses exceed the 90 character limit of plain bech32
	hrp, data, err := bech32.DecodeNoLimit(s)
	if err != nil {
		return nil, lib.ErrDecoding(err.Error())
	}
	bz, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, lib.ErrDecoding(err.Error())
	}
	a, e := NewAddressFromBytes(bz)
	if e != nil {
		return nil, e
	}
	if a.Discrimination.HRP() != hrp {
		return nil, lib.ErrDecoding(fmt.Sprintf("prefix %q does not match %s discrimination", hrp, a.Discrimination))
	}
	return a, nil
}

// Bytes() returns the header || payload binary form
func (a *Address) Bytes() []byte {
	bz := make([]byte, 0, 1+a.Kind.payloadSize())
	bz = append(bz, byte(a.Discrimination)|byte(a.Kind))
	bz = append(bz, a.Spending...)
	return append(bz, a.Delegation...)
}

// String() returns the bech32 form
func (a *Address) String() string {
	data, err := bech32.ConvertBits(a.Bytes(), 8, 5, true)
	if err != nil {
		return ""
	}
	s, err := bech32.Encode(a.Discrimination.HRP(), data)
	if err != nil {
		return ""
	}
	return s
}

// Legacy() returns the base58 form
func (a *Address) Legacy() string { return base58.Encode(a.Bytes()) }

// Equals() compares two addresses
func (a *Address) Equals(b *Address) bool {
	if a == nil || b == nil {
		return a == b
	}
	return bytes.Equal(a.Bytes(), b.Bytes())
}

// SpendingKey() returns the ed25519 public key allowed to spend from the address
func (a *Address) SpendingKey() (PublicKeyI, lib.ErrorI) {
	if a.Kind == Multisig {
		return nil, lib.ErrEncoding("multisig addresses have no single spending key")
	}
	return NewPublicKeyFromBytes(Ed25519, a.Spending)
}

// MarshalText() implements encoding.TextMarshaler, which json and yaml both honor
func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText() implements encoding.TextUnmarshaler
func (a *Address) UnmarshalText(text []byte) error {
	decoded, err := DecodeAddress(string(text))
	if err != nil {
		return err
	}
	*a = *decoded
	return nil
}

func checkDiscrimination(d Discrimination) lib.ErrorI {
	if d != Production && d != Test {
		return lib.ErrEncoding(fmt.Sprintf("unknown discrimination %#x", byte(d)))
	}
	return nil
}
