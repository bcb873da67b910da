package ledger

import (
	"bytes"
	"encoding/hex"
	"maps"
	"sort"
	"time"

	"github.com/canopy-network/mocknet/lib/crypto"
)

// Parameters are the consensus parameters fixed at genesis
type Parameters struct {
	Discrimination       crypto.Discrimination `json:"discrimination"`
	Block0Time           time.Time             `json:"block0Time"`
	SlotDuration         time.Duration         `json:"slotDuration"`
	SlotsPerEpoch        uint32                `json:"slotsPerEpoch"`
	MaxFragmentsPerBlock uint32                `json:"maxFragmentsPerBlock"`
	Fee                  LinearFee             `json:"linearFee"`
}

// Account is the ledger entry of an address
type Account struct {
	Value      uint64 `json:"value"`
	Counter    uint32 `json:"spendingCounter"`
	Delegation string `json:"delegation,omitempty"` // pool id
}

// StakePool is a registered pool
type StakePool struct {
	ID            string          `json:"id"`
	Owner         *crypto.Address `json:"owner"`
	MarginPercent uint32          `json:"marginPercent"`
}

// VotePlanStatus is an open vote plan with its running public tally
type VotePlanStatus struct {
	ID     string              `json:"id"`
	Plan   *VotePlan           `json:"plan"`
	Tally  [][]uint64          `json:"tally"`  // proposal -> option -> stake
	Voters map[string]struct{} `json:"-"`      // voter||proposal
}

func newVotePlanStatus(plan *VotePlan) *VotePlanStatus {
	tally := make([][]uint64, len(plan.Options))
	for i, options := range plan.Options {
		tally[i] = make([]uint64, options)
	}
	return &VotePlanStatus{ID: plan.ID(), Plan: plan, Tally: tally, Voters: make(map[string]struct{})}
}

// copy() deep copies the status so a new snapshot can record a vote
func (v *VotePlanStatus) copy() *VotePlanStatus {
	tally := make([][]uint64, len(v.Tally))
	for i := range v.Tally {
		tally[i] = append([]uint64(nil), v.Tally[i]...)
	}
	return &VotePlanStatus{ID: v.ID, Plan: v.Plan, Tally: tally, Voters: maps.Clone(v.Voters)}
}

/*
	State is an immutable ledger snapshot: genesis plus the fragments applied to it, in order.
	Apply() returns a new snapshot and never touches the receiver, so snapshots are freely shared
	between goroutines without locking
*/
type State struct {
	params        Parameters
	genesisHash   []byte
	id            []byte                     // hash chain over the applied fragment ids
	date          BlockDate                  // the slot the snapshot is valid at
	accounts      map[string]Account         // bech32 address -> account
	pools         map[string]StakePool       // pool id -> pool
	plans         map[string]*VotePlanStatus // plan id -> plan
	committee     map[string]struct{}        // bech32 address set
	fragmentCount uint64
}

// ID() identifies the snapshot by its fragment history
func (s *State) ID() []byte { return s.id }

// IDString() returns the hex form of the id
func (s *State) IDString() string { return hex.EncodeToString(s.id) }

// GenesisHash() returns the hash binding witnesses to this chain
func (s *State) GenesisHash() []byte { return s.genesisHash }

// Parameters() returns the consensus parameters
func (s *State) Parameters() Parameters { return s.params }

// Date() returns the slot the snapshot is valid at
func (s *State) Date() BlockDate { return s.date }

// FragmentCount() returns the number of fragments applied since genesis
func (s *State) FragmentCount() uint64 { return s.fragmentCount }

// Fee() returns the minimum fee for a fragment shape
func (s *State) Fee(inputs, outputs int, certificate bool) uint64 {
	return s.params.Fee.Calculate(inputs, outputs, certificate)
}

// Account() looks up the ledger entry of an address
func (s *State) Account(address *crypto.Address) (Account, bool) {
	acc, ok := s.accounts[address.String()]
	return acc, ok
}

// Balance() returns the value held by an address, zero if unknown
func (s *State) Balance(address *crypto.Address) uint64 {
	acc, _ := s.Account(address)
	return acc.Value
}

// Accounts() returns every account keyed by bech32 address
func (s *State) Accounts() map[string]Account { return maps.Clone(s.accounts) }

// TotalValue() sums every account; value only leaves the ledger through fees
func (s *State) TotalValue() (total uint64) {
	for _, acc := range s.accounts {
		total += acc.Value
	}
	return
}

// Pool() looks up a stake pool
func (s *State) Pool(id string) (StakePool, bool) {
	p, ok := s.pools[id]
	return p, ok
}

// Pools() returns the registered pools ordered by id
func (s *State) Pools() (list []StakePool) {
	for _, p := range s.pools {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return
}

// VotePlan() looks up a vote plan
func (s *State) VotePlan(id string) (*VotePlanStatus, bool) {
	p, ok := s.plans[id]
	return p, ok
}

// VotePlans() returns the vote plans ordered by id
func (s *State) VotePlans() (list []*VotePlanStatus) {
	for _, p := range s.plans {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return
}

// IsCommitteeMember() reports whether the address may post vote plans
func (s *State) IsCommitteeMember(address *crypto.Address) bool {
	_, ok := s.committee[address.String()]
	return ok
}

// WithDate() returns a snapshot at a later slot; the fragment history (and id) is unchanged
func (s *State) WithDate(date BlockDate) *State {
	c := *s
	c.date = date
	return &c
}

// DateAt() converts wall clock time to a block date
func (s *State) DateAt(t time.Time) BlockDate {
	if t.Before(s.params.Block0Time) || s.params.SlotDuration <= 0 {
		return BlockDate{}
	}
	slots := uint64(t.Sub(s.params.Block0Time) / s.params.SlotDuration)
	perEpoch := uint64(s.params.SlotsPerEpoch)
	return BlockDate{Epoch: uint32(slots / perEpoch), Slot: uint32(slots % perEpoch)}
}

// Equals() compares fragment history and date
func (s *State) Equals(o *State) bool {
	return bytes.Equal(s.id, o.id) && s.date == o.date
}

// clone() copies the snapshot for mutation by Apply(); vote plans are copied on write
func (s *State) clone() *State {
	c := *s
	c.accounts = maps.Clone(s.accounts)
	c.pools = maps.Clone(s.pools)
	c.plans = maps.Clone(s.plans)
	return &c
}
