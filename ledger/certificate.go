package ledger

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/canopy-network/mocknet/lib"
	"github.com/canopy-network/mocknet/lib/codec"
	"github.com/canopy-network/mocknet/lib/crypto"
)

/*
	Certificates are typed payloads carried by a transaction. The account named by Signer() must fund the
	carrying transaction, so the input witness doubles as the certificate's authorization

	wire layout
	  StakeDelegation  { 1: account bytes, 2: pool_id string }
	  PoolRegistration { 1: owner bytes, 2: serial uint64, 3: margin_percent uint32 }
	  PoolRetirement   { 1: owner bytes, 2: pool_id string }
	  VotePlan         { 1: proposer bytes, 2: start_epoch, 3: start_slot, 4: end_epoch, 5: end_slot, 6: options repeated uint32, 7: nonce uint64 }
	  VoteCast         { 1: voter bytes, 2: plan_id string, 3: proposal uint32, 4: choice uint32 }
*/

// CertificateI is the interface every certificate payload satisfies
type CertificateI interface {
	codec.BinaryCodec
	// Kind() returns the fragment kind the certificate produces
	Kind() FragmentKind
	// Signer() returns the account that must fund and witness the carrying transaction
	Signer() *crypto.Address
}

// NewCertificate() returns an empty payload of the kind, ready for decoding
func NewCertificate(kind FragmentKind) (CertificateI, lib.ErrorI) {
	switch kind {
	case KindStakeDelegation:
		return new(StakeDelegation), nil
	case KindPoolRegistration:
		return new(PoolRegistration), nil
	case KindPoolRetirement:
		return new(PoolRetirement), nil
	case KindVotePlan:
		return new(VotePlan), nil
	case KindVoteCast:
		return new(VoteCast), nil
	}
	return nil, lib.ErrUnknownCertificate(kind.String())
}

// StakeDelegation delegates the stake of an account to a registered pool
type StakeDelegation struct {
	Account *crypto.Address `json:"account"`
	PoolID  string          `json:"poolID"`
}

func (c *StakeDelegation) Kind() FragmentKind      { return KindStakeDelegation }
func (c *StakeDelegation) Signer() *crypto.Address { return c.Account }

func (c *StakeDelegation) MarshalWire(e *codec.Encoder) {
	if c.Account != nil {
		e.Bytes(1, c.Account.Bytes())
	}
	e.String(2, c.PoolID)
}

func (c *StakeDelegation) UnmarshalWire(f codec.Field) (err error) {
	switch f.Num {
	case 1:
		c.Account, err = decodeAddress(f)
	case 2:
		c.PoolID = string(f.Bytes)
	}
	return
}

// PoolRegistration registers a stake pool owned by an account; the serial distinguishes pools of the same owner
type PoolRegistration struct {
	Owner         *crypto.Address `json:"owner"`
	Serial        uint64          `json:"serial"`
	MarginPercent uint32          `json:"marginPercent"`
}

func (c *PoolRegistration) Kind() FragmentKind      { return KindPoolRegistration }
func (c *PoolRegistration) Signer() *crypto.Address { return c.Owner }

// PoolID() derives the pool identifier from the owner and serial
func (c *PoolRegistration) PoolID() string {
	var serial [8]byte
	binary.BigEndian.PutUint64(serial[:], c.Serial)
	var owner []byte
	if c.Owner != nil {
		owner = c.Owner.Bytes()
	}
	return hex.EncodeToString(crypto.Blake2b256([]byte("pool"), owner, serial[:]))
}

func (c *PoolRegistration) MarshalWire(e *codec.Encoder) {
	if c.Owner != nil {
		e.Bytes(1, c.Owner.Bytes())
	}
	e.Uvarint(2, c.Serial)
	e.Uvarint(3, uint64(c.MarginPercent))
}

func (c *PoolRegistration) UnmarshalWire(f codec.Field) (err error) {
	switch f.Num {
	case 1:
		c.Owner, err = decodeAddress(f)
	case 2:
		c.Serial = f.Value
	case 3:
		c.MarginPercent = uint32(f.Value)
	}
	return
}

// PoolRetirement removes a pool; only the registering owner may retire it
type PoolRetirement struct {
	Owner  *crypto.Address `json:"owner"`
	PoolID string          `json:"poolID"`
}

func (c *PoolRetirement) Kind() FragmentKind      { return KindPoolRetirement }
func (c *PoolRetirement) Signer() *crypto.Address { return c.Owner }

func (c *PoolRetirement) MarshalWire(e *codec.Encoder) {
	if c.Owner != nil {
		e.Bytes(1, c.Owner.Bytes())
	}
	e.String(2, c.PoolID)
}

func (c *PoolRetirement) UnmarshalWire(f codec.Field) (err error) {
	switch f.Num {
	case 1:
		c.Owner, err = decodeAddress(f)
	case 2:
		c.PoolID = string(f.Bytes)
	}
	return
}

// VotePlan opens a vote over a list of proposals, each with a number of options, during [VoteStart, VoteEnd)
type VotePlan struct {
	Proposer  *crypto.Address `json:"proposer" yaml:"proposer"`
	VoteStart BlockDate       `json:"voteStart" yaml:"voteStart"`
	VoteEnd   BlockDate       `json:"voteEnd" yaml:"voteEnd"`
	Options   []uint32        `json:"options" yaml:"options"` // options per proposal
	Nonce     uint64          `json:"nonce" yaml:"nonce"`
}

func (c *VotePlan) Kind() FragmentKind      { return KindVotePlan }
func (c *VotePlan) Signer() *crypto.Address { return c.Proposer }

// ID() is the content hash of the plan
func (c *VotePlan) ID() string { return hex.EncodeToString(crypto.Blake2b256(codec.Marshal(c))) }

func (c *VotePlan) MarshalWire(e *codec.Encoder) {
	if c.Proposer != nil {
		e.Bytes(1, c.Proposer.Bytes())
	}
	e.Uvarint(2, uint64(c.VoteStart.Epoch))
	e.Uvarint(3, uint64(c.VoteStart.Slot))
	e.Uvarint(4, uint64(c.VoteEnd.Epoch))
	e.Uvarint(5, uint64(c.VoteEnd.Slot))
	options := make([]uint64, len(c.Options))
	for i, o := range c.Options {
		options[i] = uint64(o)
	}
	e.RepeatedUvarint(6, options)
	e.Uvarint(7, c.Nonce)
}

func (c *VotePlan) UnmarshalWire(f codec.Field) (err error) {
	switch f.Num {
	case 1:
		c.Proposer, err = decodeAddress(f)
	case 2:
		c.VoteStart.Epoch = uint32(f.Value)
	case 3:
		c.VoteStart.Slot = uint32(f.Value)
	case 4:
		c.VoteEnd.Epoch = uint32(f.Value)
	case 5:
		c.VoteEnd.Slot = uint32(f.Value)
	case 6:
		c.Options = append(c.Options, uint32(f.Value))
	case 7:
		c.Nonce = f.Value
	}
	return
}

// VoteCast is a public vote for one option of one proposal of a plan
type VoteCast struct {
	Voter    *crypto.Address `json:"voter"`
	PlanID   string          `json:"planID"`
	Proposal uint32          `json:"proposal"`
	Choice   uint32          `json:"choice"`
}

func (c *VoteCast) Kind() FragmentKind      { return KindVoteCast }
func (c *VoteCast) Signer() *crypto.Address { return c.Voter }

func (c *VoteCast) MarshalWire(e *codec.Encoder) {
	if c.Voter != nil {
		e.Bytes(1, c.Voter.Bytes())
	}
	e.String(2, c.PlanID)
	e.Uvarint(3, uint64(c.Proposal))
	e.Uvarint(4, uint64(c.Choice))
}

func (c *VoteCast) UnmarshalWire(f codec.Field) (err error) {
	switch f.Num {
	case 1:
		c.Voter, err = decodeAddress(f)
	case 2:
		c.PlanID = string(f.Bytes)
	case 3:
		c.Proposal = uint32(f.Value)
	case 4:
		c.Choice = uint32(f.Value)
	}
	return
}

// BuildCertificate() wraps the payload in a transaction funded by the payload's signer, paying exactly the
// minimum fee, and witnesses it with the signer's key from keys. The state is never mutated; the fragment
// is checked against it before being returned
func BuildCertificate(state *State, kind FragmentKind, payload CertificateI, keys []*crypto.KeyGroup) (*Fragment, lib.ErrorI) {
	if payload == nil || !kind.IsCertificate() {
		return nil, lib.ErrUnknownCertificate(kind.String())
	}
	if payload.Kind() != kind {
		return nil, lib.ErrInvalidCertificate("payload is a " + payload.Kind().String())
	}
	signer := payload.Signer()
	if signer == nil {
		return nil, lib.ErrInvalidCertificate("missing signer")
	}
	// find the key that owns the signer account
	var key *crypto.KeyGroup
	for _, k := range keys {
		if k != nil && ownsAddress(k.PublicKey, signer) {
			key = k
			break
		}
	}
	if key == nil {
		return nil, lib.ErrInvalidSignature(0)
	}
	fee := state.params.Fee.Calculate(1, 0, true)
	tx := &Transaction{
		Inputs:      []Input{{Address: signer, Value: fee}},
		Certificate: payload,
	}
	return build(state, tx, []*crypto.KeyGroup{key})
}
