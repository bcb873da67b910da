package ledger

import (
	"strings"
	"sync"

	"github.com/canopy-network/mocknet/lib"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// LoadMode selects the fragment kinds a Generator produces
type LoadMode int

const (
	TxOnly       LoadMode = iota // transfers between wallets only
	AllFragments                 // cycle through every fragment kind, falling back to transfers
)

// ParseLoadMode() parses 'tx-only' or 'all'
func ParseLoadMode(s string) (LoadMode, bool) {
	switch strings.ToLower(s) {
	case "", "tx-only", "txonly", "tx":
		return TxOnly, true
	case "all", "all-fragments":
		return AllFragments, true
	}
	return TxOnly, false
}

// String() returns the name of the mode
func (m LoadMode) String() string {
	if m == AllFragments {
		return "all"
	}
	return "tx-only"
}

const meanTransferValue = 10 // mean of the poisson distributed transfer values

/*
	Generator produces an endless stream of valid fragments between a set of wallets. It keeps its own view of the
	ledger: every fragment it returns is applied to that view, so consecutive fragments chain their spending counters.
	The output is a pure function of the genesis, the wallets, the mode and the seed
*/
type Generator struct {
	mu      sync.Mutex
	state   *State         // the generator's view of the ledger
	wallets []*Wallet      // the accounts that send and receive
	mode    LoadMode       // which kinds are produced
	rng     *rand.Rand     // every random choice
	values  distuv.Poisson // transfer value distribution
	cursor  int            // position in the kind cycle
	serial  uint64         // next pool serial
}

// NewGenerator() creates a generator over at least two wallets
func NewGenerator(state *State, wallets []*Wallet, mode LoadMode, seed uint64) (*Generator, lib.ErrorI) {
	if state == nil || len(wallets) < 2 {
		return nil, lib.ErrInvalidArgument()
	}
	src := rand.NewSource(seed)
	return &Generator{
		state:   state,
		wallets: wallets,
		mode:    mode,
		rng:     rand.New(src),
		values:  distuv.Poisson{Lambda: meanTransferValue, Src: src},
	}, nil
}

// State() returns the generator's view of the ledger
func (g *Generator) State() *State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Next() builds the next fragment and returns it with the wallet that funds it
func (g *Generator) Next() (*Fragment, *Wallet, lib.ErrorI) {
	g.mu.Lock()
	defer g.mu.Unlock()
	kind := KindTransaction
	if g.mode == AllFragments {
		kind = FragmentKinds[g.cursor%len(FragmentKinds)]
		g.cursor++
	}
	f, sender, err := g.build(kind)
	// kinds that aren't possible in the current state fall back to a transfer
	if err != nil && kind != KindTransaction {
		f, sender, err = g.build(KindTransaction)
	}
	if err != nil {
		return nil, nil, err
	}
	next, err := g.state.Apply(f)
	if err != nil {
		return nil, nil, err
	}
	g.state = next
	return f, sender, nil
}

// Batch() returns the next n fragments
func (g *Generator) Batch(n int) (fragments []*Fragment, err lib.ErrorI) {
	for i := 0; i < n; i++ {
		f, _, e := g.Next()
		if e != nil {
			return fragments, e
		}
		fragments = append(fragments, f)
	}
	return
}

// build() creates a fragment of the kind against the current view
func (g *Generator) build(kind FragmentKind) (*Fragment, *Wallet, lib.ErrorI) {
	switch kind {
	case KindTransaction:
		return g.transfer()
	case KindPoolRegistration:
		w, err := g.payer()
		if err != nil {
			return nil, nil, err
		}
		g.serial++
		f, err := w.RegisterPool(g.state, g.serial, uint32(g.rng.Intn(101)))
		return f, w, err
	case KindStakeDelegation:
		pools := g.state.Pools()
		if len(pools) == 0 {
			return nil, nil, lib.ErrPoolNotFound("")
		}
		w, err := g.payer()
		if err != nil {
			return nil, nil, err
		}
		f, err := w.Delegate(g.state, pools[g.rng.Intn(len(pools))].ID)
		return f, w, err
	case KindPoolRetirement:
		for _, pool := range g.state.Pools() {
			for _, w := range g.wallets {
				if w.Address.Equals(pool.Owner) && g.canPay(w) {
					f, err := w.RetirePool(g.state, pool.ID)
					return f, w, err
				}
			}
		}
		return nil, nil, lib.ErrPoolNotFound("")
	case KindVotePlan:
		for _, w := range g.wallets {
			if g.state.IsCommitteeMember(w.Address) && g.canPay(w) {
				start := g.state.Date()
				end := BlockDate{Epoch: start.Epoch + 1, Slot: start.Slot}
				options := []uint32{uint32(2 + g.rng.Intn(3))}
				f, err := w.ProposeVotePlan(g.state, start, end, options, g.rng.Uint64())
				return f, w, err
			}
		}
		return nil, nil, lib.ErrInvalidCertificate("no committee member among the wallets")
	case KindVoteCast:
		date := g.state.Date()
		for _, plan := range g.state.VotePlans() {
			if date.Before(plan.Plan.VoteStart) || !date.Before(plan.Plan.VoteEnd) {
				continue
			}
			proposal := uint32(g.rng.Intn(len(plan.Plan.Options)))
			for _, w := range g.wallets {
				vote := &VoteCast{Voter: w.Address, PlanID: plan.ID, Proposal: proposal}
				if _, voted := plan.Voters[voterKey(vote)]; voted || !g.canPay(w) {
					continue
				}
				vote.Choice = uint32(g.rng.Intn(int(plan.Plan.Options[proposal])))
				f, err := w.certificate(g.state, vote)
				return f, w, err
			}
		}
		return nil, nil, lib.ErrVotePlanNotFound("")
	}
	return nil, nil, lib.ErrUnknownFragmentKind(uint32(kind))
}

// transfer() moves a poisson distributed value from a random funded wallet to another wallet
func (g *Generator) transfer() (*Fragment, *Wallet, lib.ErrorI) {
	value := uint64(g.values.Rand()) + 1
	fee := g.state.Fee(1, 1, false)
	// start at a random wallet and take the first that can pay
	offset := g.rng.Intn(len(g.wallets))
	for i := range g.wallets {
		from := g.wallets[(offset+i)%len(g.wallets)]
		if g.state.Balance(from.Address) < value+fee {
			continue
		}
		// any other wallet receives
		to := g.wallets[(offset+i+1+g.rng.Intn(len(g.wallets)-1))%len(g.wallets)]
		f, err := from.Transfer(g.state, to.Address, value)
		return f, from, err
	}
	return nil, nil, lib.ErrInsufficientFunds(value+fee, 0)
}

// payer() returns a random wallet that can pay a certificate fee
func (g *Generator) payer() (*Wallet, lib.ErrorI) {
	offset := g.rng.Intn(len(g.wallets))
	for i := range g.wallets {
		if w := g.wallets[(offset+i)%len(g.wallets)]; g.canPay(w) {
			return w, nil
		}
	}
	return nil, lib.ErrInsufficientFunds(g.state.Fee(1, 0, true), 0)
}

// canPay() reports whether the wallet covers a certificate fee
func (g *Generator) canPay(w *Wallet) bool {
	return g.state.Balance(w.Address) >= g.state.Fee(1, 0, true)
}
