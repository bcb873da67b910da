package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/canopy-network/mocknet/ledger"
	"github.com/canopy-network/mocknet/lib"
	"github.com/canopy-network/mocknet/node"
	"github.com/canopy-network/mocknet/report"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

/*
	The Runner executes a scenario against a fresh network. Steps form a dependency graph: a step starts once every
	step in its After list is done, steps without an ordering between them run concurrently, and a step whose
	dependency did not pass is skipped. Every outcome is collected into one report.Result
*/

// Runner executes scenarios
type Runner struct {
	config  lib.Config
	genesis *ledger.GenesisConfig // the scenario wallets are funded on top of this
	metrics *lib.Metrics
	clock   clockwork.Clock
	log     lib.LoggerI
}

// NewRunner() creates a runner; each Run starts and stops its own network
func NewRunner(config lib.Config, genesis *ledger.GenesisConfig, metrics *lib.Metrics, log lib.LoggerI) *Runner {
	if genesis == nil {
		genesis = ledger.DefaultGenesisConfig()
	}
	return &Runner{config: config, genesis: genesis, metrics: metrics, clock: clockwork.NewRealClock(), log: log}
}

// Run() executes the scenario and never returns a partial result: a scenario that cannot start is an aborted result
func (r *Runner) Run(ctx context.Context, s *Scenario) *report.Result {
	result := &report.Result{RunID: uuid.NewString(), Scenario: s.Name, StartedAt: r.clock.Now()}
	defer func() { result.Took = r.clock.Since(result.StartedAt) }()
	if err := s.Validate(); err != nil {
		result.Abort(err)
		return result
	}
	genesis, wallets, err := s.Genesis(r.genesis, r.config.Seed)
	if err != nil {
		result.Abort(err)
		return result
	}
	// chain heights count from the start of the run
	if genesis.Block0Time == 0 {
		c := *genesis
		c.Block0Time = r.clock.Now().Unix()
		genesis = &c
	}
	launcher, err := NewLauncher(r.config, r.clock, r.log)
	if err != nil {
		result.Abort(err)
		return result
	}
	network, err := NewNetwork(r.config, genesis, launcher, r.metrics, r.log)
	if err != nil {
		result.Abort(err)
		return result
	}
	network.clock = r.clock
	// stop even when the run was cancelled
	defer func() {
		if e := network.Stop(context.WithoutCancel(ctx)); e != nil {
			r.log.Warnf("Stopping network failed: %s", e.Error())
		}
	}()
	r.log.Infof("Running scenario %s (%s) with %d steps", s.Name, result.RunID, len(s.Steps))
	if e := network.Start(ctx); e != nil {
		result.Abort(e)
		return result
	}
	exec := &execution{runner: r, network: network, wallets: wallets, state: network.Genesis(), fragments: make(map[string]*ledger.Fragment)}
	result.Steps = exec.run(ctx, s.Steps)
	result.Consistency = exec.consistency
	return result
}

// execution is the state of one scenario run
type execution struct {
	runner  *Runner
	network *Network
	wallets map[string]*ledger.Wallet

	mu          sync.Mutex
	state       *ledger.State               // the ledger as the accepted submissions so far leave it
	fragments   map[string]*ledger.Fragment // submitted fragments by name
	consistency *report.ConsistencyReport   // the last consistency check
	loads       uint64                      // load steps so far, seeds each generator differently
}

// run() starts every step in its own goroutine, gated on the done channels of its dependencies
func (e *execution) run(ctx context.Context, steps []Step) []report.StepResult {
	results := make([]report.StepResult, len(steps))
	index := make(map[string]int, len(steps))
	done := make(map[string]chan struct{}, len(steps))
	for i, step := range steps {
		index[step.Name], done[step.Name] = i, make(chan struct{})
	}
	var g errgroup.Group
	for i, step := range steps {
		g.Go(func() error {
			defer close(done[step.Name])
			result := report.StepResult{Name: step.Name, Kind: string(step.Kind)}
			// wait for the dependencies; results of a closed step are safe to read
			for _, dep := range step.After {
				<-done[dep]
				if results[index[dep]].Status != report.Passed {
					result.Skip(lib.ErrDependencyFailed(step.Name, dep))
					break
				}
			}
			if result.Status != report.Skipped {
				e.execute(ctx, step, &result)
			}
			e.runner.metrics.ObserveStep(result.Kind, string(result.Status))
			results[i] = result
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// execute() runs one step under its deadline and records the outcome
func (e *execution) execute(ctx context.Context, step Step, result *report.StepResult) {
	clock := e.runner.clock
	result.StartedAt = clock.Now()
	ctx, cancel := context.WithTimeout(ctx, step.Timeout(e.runner.config.StepTimeout()))
	defer cancel()
	detail, err := e.do(ctx, step)
	result.Took, result.Detail = clock.Since(result.StartedAt), detail
	if err != nil {
		result.Fail(fmt.Errorf("%s: %w", step.Name, err))
		e.runner.log.Errorf("Step %s (%s) failed: %s", step.Name, step.Kind, err.Error())
		return
	}
	result.Status = report.Passed
	e.runner.log.Infof("Step %s (%s) passed: %s", step.Name, step.Kind, detail)
}

// do() dispatches the step by kind and returns what it observed
func (e *execution) do(ctx context.Context, step Step) (string, error) {
	n := e.network
	switch step.Kind {
	case StepSubmit:
		return e.submit(ctx, step)
	case StepWait:
		return e.wait(ctx, step)
	case StepAssertConsistent:
		return e.assertConsistent(ctx, step)
	case StepAssertBalance:
		return e.assertBalance(ctx, step)
	case StepKill:
		return "killed " + step.Node, orNil(n.KillNode(step.Node))
	case StepRestart:
		return "restarted " + step.Node, orNil(n.RestartNode(ctx, step.Node))
	case StepPause:
		return "paused " + step.Node, orNil(n.PauseNode(ctx, step.Node))
	case StepResume:
		return "resumed " + step.Node, orNil(n.ResumeNode(ctx, step.Node))
	case StepDropEdge:
		t, err := n.DropEdge(ctx, step.From, step.To)
		return t.String(), orNil(err)
	case StepRestoreEdge:
		t, err := n.RestoreEdge(ctx, step.From, step.To)
		return t.String(), orNil(err)
	case StepLoad:
		return e.load(ctx, step)
	case StepWaitBlock:
		return e.waitBlock(ctx, step)
	}
	return "", lib.ErrUnknownStep(string(step.Kind))
}

// submit() builds a transfer against the scenario ledger, submits it once and checks the outcome
func (e *execution) submit(ctx context.Context, step Step) (string, error) {
	h, err := e.network.Handle(step.Node)
	if err != nil {
		return "", err
	}
	expect := step.Expect
	if expect == "" {
		expect = ExpectAccepted
	}
	optimistic := expect == ExpectAccepted && !step.Malformed
	f, err := e.build(step, optimistic)
	if err != nil {
		return "", err
	}
	result, err := h.SubmitFragment(ctx, f)
	if err != nil {
		return "", err
	}
	detail := fmt.Sprintf("%s %s to %s", shortID(f.ID()), result, step.Node)
	if !outcomeMatches(expect, result.String()) {
		return detail, lib.ErrUnexpectedOutcome(expect, result.String())
	}
	return detail, nil
}

// build() creates the transfer of a submit step and registers it. When the submission is expected to be accepted
// the fragment is applied right away, so the next fragment of the same wallet chains on it
func (e *execution) build(step Step, optimistic bool) (*ledger.Fragment, lib.ErrorI) {
	e.mu.Lock()
	defer e.mu.Unlock()
	from, to := e.wallets[step.From], e.wallets[step.To]
	f, err := from.Transfer(e.state, to.Address, step.Value)
	if err != nil {
		return nil, err
	}
	if step.Malformed {
		corrupt(f)
	}
	if optimistic {
		next, e2 := e.state.Apply(f)
		if e2 != nil {
			return nil, e2
		}
		e.state = next
	}
	name := step.Fragment
	if name == "" {
		name = step.Name
	}
	e.fragments[name] = f
	return f, nil
}

// corrupt() flips a signature byte so every node refuses the fragment
func corrupt(f *ledger.Fragment) {
	for i := range f.Witnesses {
		if sig := f.Witnesses[i].Signature; len(sig) != 0 {
			f.Witnesses[i].Signature = append([]byte{sig[0] ^ 0xff}, sig[1:]...)
			return
		}
	}
}

func shortID(id ledger.FragmentID) string {
	if len(id) <= 10 {
		return string(id)
	}
	return string(id[:10])
}

// outcomeMatches() compares a submit result to 'accepted', 'rejected' or 'rejected(reason)'
func outcomeMatches(expect, got string) bool {
	if expect == ExpectRejected {
		return strings.HasPrefix(got, ExpectRejected)
	}
	return expect == got
}

// wait() waits for a registered fragment to reach the step nodes, or to not reach them when a timeout is expected
func (e *execution) wait(ctx context.Context, step Step) (string, error) {
	e.mu.Lock()
	f, ok := e.fragments[step.Fragment]
	e.mu.Unlock()
	if !ok {
		return "", lib.ErrUnknownFragment(step.Fragment)
	}
	result, err := e.network.WaitForFragment(ctx, f.ID(), step.Nodes, step.Timeout(e.runner.config.PropagationTimeout()))
	if err != nil {
		return "", err
	}
	switch step.Expect {
	case "", ExpectPropagated:
		if !result.Propagated {
			return result.String(), lib.ErrFragmentTimeout(string(f.ID()), result.Missing)
		}
	case ExpectTimedOut:
		if result.Propagated {
			return result.String(), lib.ErrUnexpectedOutcome(ExpectTimedOut, ExpectPropagated)
		}
	default:
		return "", lib.ErrInvalidScenario(fmt.Sprintf("wait step %s expects %q", step.Name, step.Expect))
	}
	return result.String(), nil
}

// assertConsistent() polls until the step nodes agree or the deadline passes; the last report is kept
func (e *execution) assertConsistent(ctx context.Context, step Step) (string, error) {
	handles, err := e.network.resolve(step.Nodes)
	if err != nil {
		return "", err
	}
	nodes := make([]report.Node, len(handles))
	for i, h := range handles {
		nodes[i] = h
	}
	var last *report.ConsistencyReport
	failed := e.eventually(ctx, step.Timeout(e.runner.config.PropagationTimeout()), func() error {
		r, e2 := report.AssertConsistent(ctx, nodes)
		if e2 != nil {
			return e2
		}
		last = r
		return orNil(r.Err())
	})
	if last != nil {
		e.mu.Lock()
		e.consistency = last
		e.mu.Unlock()
	}
	if failed != nil {
		return "", failed
	}
	return fmt.Sprintf("%d nodes consistent at %s", len(nodes), last.Reference), nil
}

// assertBalance() polls until every step node reports the expected balance of the wallet
func (e *execution) assertBalance(ctx context.Context, step Step) (string, error) {
	handles, err := e.network.resolve(step.Nodes)
	if err != nil {
		return "", err
	}
	address := e.wallets[step.Wallet].Address.String()
	failed := e.eventually(ctx, step.Timeout(e.runner.config.PropagationTimeout()), func() error {
		var wrong []string
		for _, h := range handles {
			acc, e2 := h.Account(ctx, address)
			if e2 != nil {
				return e2
			}
			if acc.Value != step.Value {
				wrong = append(wrong, fmt.Sprintf("%s=%d", h.Alias(), acc.Value))
			}
		}
		if len(wrong) != 0 {
			return lib.ErrUnexpectedOutcome(fmt.Sprintf("%s=%d", step.Wallet, step.Value), strings.Join(wrong, ","))
		}
		return nil
	})
	if failed != nil {
		return "", failed
	}
	return fmt.Sprintf("%s=%s on %d nodes", step.Wallet, report.Number(step.Value), len(handles)), nil
}

// load() submits generated fragments to one node; they chain on the scenario ledger
func (e *execution) load(ctx context.Context, step Step) (string, error) {
	target := step.Node
	if target == "" {
		target = e.network.Aliases()[0]
	}
	h, err := e.network.Handle(target)
	if err != nil {
		return "", err
	}
	fragments, err := e.generate(step)
	if err != nil {
		return "", err
	}
	accepted := 0
	for _, f := range fragments {
		result, e2 := h.SubmitFragment(ctx, f)
		if e2 != nil {
			return "", e2
		}
		if result.IsAccepted() {
			accepted++
		}
	}
	detail := fmt.Sprintf("%s/%s accepted by %s", report.Number(accepted), report.Number(len(fragments)), target)
	if accepted != len(fragments) {
		return detail, lib.ErrUnexpectedOutcome(fmt.Sprintf("%d accepted", len(fragments)), fmt.Sprintf("%d accepted", accepted))
	}
	return detail, nil
}

// generate() draws the fragments of a load step from the scenario ledger and advances it past them
func (e *execution) generate(step Step) ([]*ledger.Fragment, lib.ErrorI) {
	mode, _ := ledger.ParseLoadMode(step.Mode)
	e.mu.Lock()
	defer e.mu.Unlock()
	wallets := make([]*ledger.Wallet, 0, len(e.wallets))
	for _, w := range e.wallets {
		wallets = append(wallets, w)
	}
	slices.SortFunc(wallets, func(a, b *ledger.Wallet) int { return strings.Compare(a.Alias, b.Alias) })
	e.loads++
	g, err := ledger.NewGenerator(e.state, wallets, mode, uint64(e.runner.config.Seed)+e.loads)
	if err != nil {
		return nil, err
	}
	fragments, err := g.Batch(step.Count)
	if err != nil {
		return nil, err
	}
	e.state = g.State()
	return fragments, nil
}

// waitBlock() waits for the step nodes to reach a chain height
func (e *execution) waitBlock(ctx context.Context, step Step) (string, error) {
	result, err := e.network.WaitForHeight(ctx, step.Height, step.Nodes, step.Timeout(e.runner.config.PropagationTimeout()))
	if err != nil {
		return "", err
	}
	if !result.Propagated {
		return result.String(), lib.ErrWaitTimeout(fmt.Sprintf("height %d on %v", step.Height, result.Missing))
	}
	return fmt.Sprintf("height %d reached in %s", step.Height, result.Took.Round(time.Millisecond)), nil
}

// eventually() retries check at the poll interval until it passes or the deadline passes, returning its last error
func (e *execution) eventually(ctx context.Context, deadline time.Duration, check func() error) error {
	clock := e.runner.clock
	timeout := clock.After(deadline)
	ticker := clock.NewTicker(e.runner.config.PollInterval())
	defer ticker.Stop()
	for {
		err := check()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return err
		case <-timeout:
			return err
		case <-ticker.Chan():
		}
	}
}

// orNil() keeps a nil lib.ErrorI from becoming a non nil error
func orNil(err lib.ErrorI) error {
	if err == nil {
		return nil
	}
	return err
}

var _ report.Node = (*node.Handle)(nil)
