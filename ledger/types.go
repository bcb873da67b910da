package ledger

import (
	"fmt"
	"strconv"
	"strings"
)

// FragmentKind tags the payload a fragment carries
type FragmentKind uint32

const (
	KindTransaction      FragmentKind = 1
	KindStakeDelegation  FragmentKind = 2
	KindPoolRegistration FragmentKind = 3
	KindPoolRetirement   FragmentKind = 4
	KindVotePlan         FragmentKind = 5
	KindVoteCast         FragmentKind = 6
)

// FragmentKinds lists every kind in the order the load generator cycles them
var FragmentKinds = []FragmentKind{
	KindTransaction, KindPoolRegistration, KindStakeDelegation, KindVotePlan, KindVoteCast, KindPoolRetirement,
}

var kindNames = map[FragmentKind]string{
	KindTransaction:      "transaction",
	KindStakeDelegation:  "stake-delegation",
	KindPoolRegistration: "pool-registration",
	KindPoolRetirement:   "pool-retirement",
	KindVotePlan:         "vote-plan",
	KindVoteCast:         "vote-cast",
}

func (k FragmentKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("unknown(%d)", uint32(k))
}

// IsCertificate() is true for every kind but plain transactions
func (k FragmentKind) IsCertificate() bool { return k != KindTransaction && k.Valid() }

// Valid() checks the kind is known
func (k FragmentKind) Valid() bool { _, ok := kindNames[k]; return ok }

// ParseFragmentKind() converts a kind name to a FragmentKind
func ParseFragmentKind(s string) (FragmentKind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// MarshalText() implements encoding.TextMarshaler
func (k FragmentKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText() implements encoding.TextUnmarshaler
func (k *FragmentKind) UnmarshalText(text []byte) error {
	kind, ok := ParseFragmentKind(string(text))
	if !ok {
		return fmt.Errorf("unknown fragment kind %q", text)
	}
	*k = kind
	return nil
}

// BlockDate is the position of a slot in time: an epoch and the slot within it
type BlockDate struct {
	Epoch uint32 `json:"epoch" yaml:"epoch"`
	Slot  uint32 `json:"slot" yaml:"slot"`
}

// Before() orders dates
func (d BlockDate) Before(o BlockDate) bool {
	return d.Epoch < o.Epoch || (d.Epoch == o.Epoch && d.Slot < o.Slot)
}

// Next() returns the following slot given the epoch length
func (d BlockDate) Next(slotsPerEpoch uint32) BlockDate {
	if d.Slot+1 >= slotsPerEpoch {
		return BlockDate{Epoch: d.Epoch + 1}
	}
	return BlockDate{Epoch: d.Epoch, Slot: d.Slot + 1}
}

// String() renders epoch.slot
func (d BlockDate) String() string { return fmt.Sprintf("%d.%d", d.Epoch, d.Slot) }

// ParseBlockDate() parses the epoch.slot form
func ParseBlockDate(s string) (d BlockDate, err error) {
	epoch, slot, ok := strings.Cut(s, ".")
	if !ok {
		return d, fmt.Errorf("block date %q is not epoch.slot", s)
	}
	e, err := strconv.ParseUint(epoch, 10, 32)
	if err != nil {
		return d, err
	}
	sl, err := strconv.ParseUint(slot, 10, 32)
	if err != nil {
		return d, err
	}
	return BlockDate{Epoch: uint32(e), Slot: uint32(sl)}, nil
}

// LinearFee is the fee policy: constant + coefficient * (inputs + outputs) + certificate
type LinearFee struct {
	Constant    uint64 `json:"constant" yaml:"constant"`
	Coefficient uint64 `json:"coefficient" yaml:"coefficient"`
	Certificate uint64 `json:"certificate" yaml:"certificate"`
}

// Calculate() returns the minimum fee for a fragment of the shape
func (f LinearFee) Calculate(inputs, outputs int, certificate bool) uint64 {
	fee := f.Constant + f.Coefficient*uint64(inputs+outputs)
	if certificate {
		fee += f.Certificate
	}
	return fee
}
