package ledger

import (
	"fmt"
	"time"

	"github.com/canopy-network/mocknet/lib"
	"github.com/canopy-network/mocknet/lib/crypto"
)

// GenesisConfig enumerates the initial funds, consensus parameters and voting parameters of a mock chain
type GenesisConfig struct {
	Discrimination       string        `json:"discrimination" yaml:"discrimination"`             // "test" or "production"
	Block0Time           int64         `json:"block0Time" yaml:"block0Time"`                     // unix seconds of slot 0.0
	SlotDurationMS       uint64        `json:"slotDurationMS" yaml:"slotDurationMS"`             // block time
	SlotsPerEpoch        uint32        `json:"slotsPerEpoch" yaml:"slotsPerEpoch"`               // epoch length
	MaxFragmentsPerBlock uint32        `json:"maxFragmentsPerBlock" yaml:"maxFragmentsPerBlock"` // block capacity
	Fee                  LinearFee     `json:"linearFee" yaml:"linearFee"`                       // fee policy
	InitialFunds         []InitialFund `json:"initialFunds" yaml:"initialFunds"`                 // funded addresses
	Committee            []string      `json:"committee" yaml:"committee"`                       // addresses allowed to post vote plans
	VotePlans            []*VotePlan   `json:"votePlans" yaml:"votePlans"`                       // plans open from block 0
}

// InitialFund credits an address at genesis
type InitialFund struct {
	Address string `json:"address" yaml:"address"`
	Value   uint64 `json:"value" yaml:"value"`
}

// DefaultGenesisConfig() returns a test network with a small linear fee and no funds
func DefaultGenesisConfig() *GenesisConfig {
	return &GenesisConfig{
		Discrimination:       crypto.Test.String(),
		SlotDurationMS:       1000,
		SlotsPerEpoch:        60,
		MaxFragmentsPerBlock: 100,
		Fee:                  LinearFee{Constant: 1, Coefficient: 1, Certificate: 2},
	}
}

// NewGenesisConfigFromFile() loads a json or yaml genesis file on top of the defaults
func NewGenesisConfigFromFile(path string) (*GenesisConfig, lib.ErrorI) {
	c := DefaultGenesisConfig()
	if err := lib.NewObjectFromFile(c, path); err != nil {
		return nil, err
	}
	return c, nil
}

// SlotDuration() returns the block time
func (g *GenesisConfig) SlotDuration() time.Duration {
	return time.Duration(g.SlotDurationMS) * time.Millisecond
}

// Fund() returns a copy of the config with an extra initial fund
func (g *GenesisConfig) Fund(address *crypto.Address, value uint64) *GenesisConfig {
	c := *g
	c.InitialFunds = append(append([]InitialFund(nil), g.InitialFunds...), InitialFund{Address: address.String(), Value: value})
	return &c
}

// NewGenesis() builds the block 0 ledger state. The genesis hash binds every witness to this chain
func NewGenesis(config *GenesisConfig) (*State, lib.ErrorI) {
	if config == nil {
		return nil, lib.ErrInvalidGenesis("missing config")
	}
	discrimination, err := crypto.ParseDiscrimination(config.Discrimination)
	if err != nil {
		return nil, lib.ErrInvalidGenesis(err.Error())
	}
	if config.SlotsPerEpoch == 0 || config.SlotDurationMS == 0 {
		return nil, lib.ErrInvalidGenesis("slots per epoch and slot duration must be positive")
	}
	// the hash of the canonical json form identifies the chain
	bz, err := lib.MarshalJSON(config)
	if err != nil {
		return nil, err
	}
	genesisHash := crypto.Blake2b256([]byte("genesis"), bz)
	s := &State{
		params: Parameters{
			Discrimination:       discrimination,
			Block0Time:           time.Unix(config.Block0Time, 0),
			SlotDuration:         config.SlotDuration(),
			SlotsPerEpoch:        config.SlotsPerEpoch,
			MaxFragmentsPerBlock: config.MaxFragmentsPerBlock,
			Fee:                  config.Fee,
		},
		genesisHash: genesisHash,
		id:          genesisHash,
		accounts:    make(map[string]Account),
		pools:       make(map[string]StakePool),
		plans:       make(map[string]*VotePlanStatus),
		committee:   make(map[string]struct{}),
	}
	// credit the initial funds; the total supply must fit a balance so no credit can wrap
	var supply uint64
	for _, fund := range config.InitialFunds {
		address, e := s.genesisAddress(fund.Address)
		if e != nil {
			return nil, e
		}
		if supply+fund.Value < supply {
			return nil, lib.ErrInvalidGenesis(fmt.Sprintf("initial funds overflow the total supply at %s", fund.Address))
		}
		supply += fund.Value
		acc := s.accounts[address.String()]
		acc.Value += fund.Value
		s.accounts[address.String()] = acc
	}
	// register the committee
	for _, member := range config.Committee {
		address, e := s.genesisAddress(member)
		if e != nil {
			return nil, e
		}
		s.committee[address.String()] = struct{}{}
	}
	// open the genesis vote plans
	for _, plan := range config.VotePlans {
		if e := s.checkVotePlan(plan); e != nil {
			return nil, lib.ErrInvalidGenesis(e.Error())
		}
		s.plans[plan.ID()] = newVotePlanStatus(plan)
	}
	return s, nil
}

// genesisAddress() decodes an address and checks it belongs to this network
func (s *State) genesisAddress(str string) (*crypto.Address, lib.ErrorI) {
	address, err := crypto.DecodeAddress(str)
	if err != nil {
		return nil, lib.ErrInvalidGenesis(err.Error())
	}
	if address.Discrimination != s.params.Discrimination {
		return nil, lib.ErrInvalidGenesis(fmt.Sprintf("%s is not a %s address", str, s.params.Discrimination))
	}
	return address, nil
}
