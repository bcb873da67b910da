package harness

import (
	"fmt"
	"time"

	"github.com/canopy-network/mocknet/ledger"
	"github.com/canopy-network/mocknet/lib"
	"github.com/canopy-network/mocknet/lib/crypto"
)

// StepKind is what a scenario step does
type StepKind string

const (
	StepSubmit           StepKind = "submit"            // build a fragment and submit it to a node
	StepWait             StepKind = "wait"              // wait for a submitted fragment to reach nodes
	StepAssertConsistent StepKind = "assert-consistent" // compare tips and fragment sets across nodes
	StepAssertBalance    StepKind = "assert-balance"    // compare an account balance on nodes
	StepKill             StepKind = "kill"
	StepRestart          StepKind = "restart"
	StepPause            StepKind = "pause"
	StepResume           StepKind = "resume"
	StepDropEdge         StepKind = "drop-edge"
	StepRestoreEdge      StepKind = "restore-edge"
	StepLoad             StepKind = "load"       // submit generated fragments
	StepWaitBlock        StepKind = "wait-block" // wait for a chain height
)

var stepKinds = map[StepKind]struct{}{
	StepSubmit: {}, StepWait: {}, StepAssertConsistent: {}, StepAssertBalance: {}, StepKill: {}, StepRestart: {},
	StepPause: {}, StepResume: {}, StepDropEdge: {}, StepRestoreEdge: {}, StepLoad: {}, StepWaitBlock: {},
}

// expected outcomes
const (
	ExpectAccepted   = "accepted"
	ExpectRejected   = "rejected"
	ExpectPropagated = "propagated"
	ExpectTimedOut   = "timed-out"
)

// Scenario is a set of steps ordered by their dependencies
type Scenario struct {
	Name    string       `json:"name" yaml:"name"`
	Wallets []WalletSpec `json:"wallets" yaml:"wallets"` // accounts funded at genesis
	Steps   []Step       `json:"steps" yaml:"steps"`
}

// WalletSpec is a named account and its genesis funds
type WalletSpec struct {
	Alias string `json:"alias" yaml:"alias"`
	Funds uint64 `json:"funds" yaml:"funds"`
}

// Step is a single action with its expected outcome
type Step struct {
	Name      string   `json:"name" yaml:"name"`
	Kind      StepKind `json:"kind" yaml:"kind"`
	After     []string `json:"after" yaml:"after"`         // steps that must complete first
	Node      string   `json:"node" yaml:"node"`           // the node acted on
	Nodes     []string `json:"nodes" yaml:"nodes"`         // nodes observed, empty means every node
	From      string   `json:"from" yaml:"from"`           // sending wallet, or first edge endpoint
	To        string   `json:"to" yaml:"to"`               // receiving wallet, or second edge endpoint
	Value     uint64   `json:"value" yaml:"value"`         // transfer value or expected balance
	Wallet    string   `json:"wallet" yaml:"wallet"`       // wallet whose balance is asserted
	Fragment  string   `json:"fragment" yaml:"fragment"`   // name a submitted fragment is registered under
	Malformed bool     `json:"malformed" yaml:"malformed"` // corrupt the fragment before submitting it
	Expect    string   `json:"expect" yaml:"expect"`       // accepted, rejected, rejected(reason), propagated or timed-out
	Count     int      `json:"count" yaml:"count"`         // fragments of a load step
	Mode      string   `json:"mode" yaml:"mode"`           // load mode: tx-only or all
	Height    uint64   `json:"height" yaml:"height"`       // chain height of a wait-block step
	TimeoutMS uint64   `json:"timeoutMS" yaml:"timeoutMS"` // overrides the harness deadline
}

// Timeout() returns the step deadline, or def when the step sets none
func (s Step) Timeout(def time.Duration) time.Duration {
	if s.TimeoutMS == 0 {
		return def
	}
	return time.Duration(s.TimeoutMS) * time.Millisecond
}

// LoadScenario() reads a json or yaml scenario and validates it
func LoadScenario(path string) (*Scenario, lib.ErrorI) {
	s := new(Scenario)
	if err := lib.NewObjectFromFile(s, path); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate() checks names, kinds and dependencies; the dependency graph must be acyclic
func (s *Scenario) Validate() lib.ErrorI {
	if len(s.Steps) == 0 {
		return lib.ErrInvalidScenario("no steps")
	}
	steps := make(map[string]Step, len(s.Steps))
	for _, step := range s.Steps {
		if step.Name == "" {
			return lib.ErrInvalidScenario("unnamed step")
		}
		if _, ok := steps[step.Name]; ok {
			return lib.ErrDuplicateStep(step.Name)
		}
		if _, ok := stepKinds[step.Kind]; !ok {
			return lib.ErrUnknownStep(string(step.Kind))
		}
		steps[step.Name] = step
	}
	wallets := make(map[string]struct{}, len(s.Wallets))
	for _, w := range s.Wallets {
		if _, ok := wallets[w.Alias]; ok || w.Alias == "" {
			return lib.ErrInvalidScenario(fmt.Sprintf("wallet alias %q is empty or repeated", w.Alias))
		}
		wallets[w.Alias] = struct{}{}
	}
	for _, step := range s.Steps {
		if err := step.check(wallets); err != nil {
			return err
		}
	}
	for _, step := range s.Steps {
		for _, dep := range step.After {
			if _, ok := steps[dep]; !ok {
				return lib.ErrUnknownDependency(step.Name, dep)
			}
		}
	}
	// depth first search for a back edge
	const (
		unvisited = iota
		visiting
		visited
	)
	marks := make(map[string]int, len(steps))
	var visit func(name string) lib.ErrorI
	visit = func(name string) lib.ErrorI {
		switch marks[name] {
		case visiting:
			return lib.ErrDependencyCycle(name)
		case visited:
			return nil
		}
		marks[name] = visiting
		for _, dep := range steps[name].After {
			if err := visit(dep); err != nil {
				return err
			}
		}
		marks[name] = visited
		return nil
	}
	for _, step := range s.Steps {
		if err := visit(step.Name); err != nil {
			return err
		}
	}
	return nil
}

// check() validates the fields the step kind needs
func (s Step) check(wallets map[string]struct{}) lib.ErrorI {
	missing := func(field string) lib.ErrorI {
		return lib.ErrInvalidScenario(fmt.Sprintf("%s step %s needs %s", s.Kind, s.Name, field))
	}
	wallet := func(alias string) lib.ErrorI {
		if _, ok := wallets[alias]; !ok {
			return lib.ErrInvalidScenario(fmt.Sprintf("step %s references unknown wallet %q", s.Name, alias))
		}
		return nil
	}
	switch s.Kind {
	case StepSubmit:
		if s.Node == "" {
			return missing("a node")
		}
		if err := wallet(s.From); err != nil {
			return err
		}
		return wallet(s.To)
	case StepWait:
		if s.Fragment == "" {
			return missing("a fragment")
		}
	case StepAssertBalance:
		return wallet(s.Wallet)
	case StepKill, StepRestart, StepPause, StepResume:
		if s.Node == "" {
			return missing("a node")
		}
	case StepDropEdge, StepRestoreEdge:
		if s.From == "" || s.To == "" {
			return missing("both edge endpoints")
		}
	case StepLoad:
		if s.Count <= 0 {
			return missing("a positive count")
		}
		if _, ok := ledger.ParseLoadMode(s.Mode); !ok {
			return lib.ErrInvalidScenario(fmt.Sprintf("step %s has unknown load mode %q", s.Name, s.Mode))
		}
		if len(wallets) < 2 {
			return missing("at least two wallets")
		}
	case StepWaitBlock:
		if s.Height == 0 {
			return missing("a height")
		}
	}
	return nil
}

// Genesis() derives the scenario wallets from the seed and funds them on top of base
func (s *Scenario) Genesis(base *ledger.GenesisConfig, seed int64) (*ledger.GenesisConfig, map[string]*ledger.Wallet, lib.ErrorI) {
	discrimination, err := crypto.ParseDiscrimination(base.Discrimination)
	if err != nil {
		return nil, nil, err
	}
	config, wallets := base, make(map[string]*ledger.Wallet, len(s.Wallets))
	for _, ws := range s.Wallets {
		w, e := ledger.NewWallet(ws.Alias, seed, discrimination)
		if e != nil {
			return nil, nil, e
		}
		config = config.Fund(w.Address, ws.Funds)
		wallets[ws.Alias] = w
	}
	return config, wallets, nil
}
