package ledger

import (
	"github.com/canopy-network/mocknet/lib"
	"github.com/canopy-network/mocknet/lib/crypto"
)

// Wallet is a named ed25519 account used by scenarios and load generation
type Wallet struct {
	Alias   string           `json:"alias"`
	Keys    *crypto.KeyGroup `json:"keys"`
	Address *crypto.Address  `json:"address"`
}

// NewWallet() derives the wallet keys from the seed and alias, so the same scenario always yields the same accounts
func NewWallet(alias string, seed int64, discrimination crypto.Discrimination) (*Wallet, lib.ErrorI) {
	keys, err := crypto.GenerateKeyPair(crypto.Ed25519, crypto.Derive(seed, "wallet/"+alias))
	if err != nil {
		return nil, err
	}
	return NewWalletFromKeys(alias, keys, discrimination)
}

// NewWalletFromKeys() wraps existing keys in an account wallet
func NewWalletFromKeys(alias string, keys *crypto.KeyGroup, discrimination crypto.Discrimination) (*Wallet, lib.ErrorI) {
	address, err := keys.Address(discrimination, crypto.Account)
	if err != nil {
		return nil, err
	}
	return &Wallet{Alias: alias, Keys: keys, Address: address}, nil
}

// Transfer() sends value to the address, paying the minimum fee on top
func (w *Wallet) Transfer(state *State, to *crypto.Address, value uint64) (*Fragment, lib.ErrorI) {
	fee := state.Fee(1, 1, false)
	return BuildTransaction(state,
		[]Input{{Address: w.Address, Value: value + fee}},
		[]Output{{Address: to, Value: value}},
		[]*crypto.KeyGroup{w.Keys},
	)
}

// RegisterPool() registers a stake pool owned by the wallet
func (w *Wallet) RegisterPool(state *State, serial uint64, marginPercent uint32) (*Fragment, lib.ErrorI) {
	return w.certificate(state, &PoolRegistration{Owner: w.Address, Serial: serial, MarginPercent: marginPercent})
}

// RetirePool() retires a pool the wallet owns
func (w *Wallet) RetirePool(state *State, poolID string) (*Fragment, lib.ErrorI) {
	return w.certificate(state, &PoolRetirement{Owner: w.Address, PoolID: poolID})
}

// Delegate() delegates the wallet's stake to a pool
func (w *Wallet) Delegate(state *State, poolID string) (*Fragment, lib.ErrorI) {
	return w.certificate(state, &StakeDelegation{Account: w.Address, PoolID: poolID})
}

// ProposeVotePlan() posts a vote plan; the wallet must be a committee member
func (w *Wallet) ProposeVotePlan(state *State, start, end BlockDate, options []uint32, nonce uint64) (*Fragment, lib.ErrorI) {
	return w.certificate(state, &VotePlan{Proposer: w.Address, VoteStart: start, VoteEnd: end, Options: options, Nonce: nonce})
}

// Vote() casts a public vote
func (w *Wallet) Vote(state *State, planID string, proposal, choice uint32) (*Fragment, lib.ErrorI) {
	return w.certificate(state, &VoteCast{Voter: w.Address, PlanID: planID, Proposal: proposal, Choice: choice})
}

func (w *Wallet) certificate(state *State, c CertificateI) (*Fragment, lib.ErrorI) {
	return BuildCertificate(state, c.Kind(), c, []*crypto.KeyGroup{w.Keys})
}
