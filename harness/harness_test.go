package harness

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/canopy-network/mocknet/ledger"
	"github.com/canopy-network/mocknet/lib"
	"github.com/canopy-network/mocknet/node"
	"github.com/canopy-network/mocknet/report"
	"github.com/canopy-network/mocknet/topology"
	"github.com/stretchr/testify/require"
)

func newTestConfig(t *testing.T, nodes int) lib.Config {
	c := lib.DefaultConfig()
	c.DataDirPath = t.TempDir()
	c.NodeCount = nodes
	c.PollIntervalMS = 10
	c.PropagationTimeoutMS = 5_000
	c.StepTimeoutMS = 10_000
	c.StartupTimeoutMS = 2_000
	c.LatencyMS = 1
	return c
}

func newTestGenesisConfig() *ledger.GenesisConfig {
	g := ledger.DefaultGenesisConfig()
	g.SlotDurationMS = 50
	return g
}

func newTestRunner(t *testing.T, config lib.Config) *Runner {
	return NewRunner(config, newTestGenesisConfig(), nil, lib.NewNullLogger())
}

func TestTransferPropagatesConsistently(t *testing.T) {
	s := &Scenario{
		Name:    "transfer",
		Wallets: []WalletSpec{{Alias: "alice", Funds: 1000}, {Alias: "bob"}},
		Steps: []Step{
			{Name: "submit", Kind: StepSubmit, Node: "node-0", From: "alice", To: "bob", Value: 400, Fragment: "tx"},
			{Name: "propagated", Kind: StepWait, After: []string{"submit"}, Fragment: "tx", TimeoutMS: 5_000},
			{Name: "consistent", Kind: StepAssertConsistent, After: []string{"propagated"}},
			{Name: "balance", Kind: StepAssertBalance, After: []string{"propagated"}, Wallet: "bob", Value: 400},
		},
	}
	result := newTestRunner(t, newTestConfig(t, 3)).Run(context.Background(), s)
	require.NoError(t, result.Err())
	require.True(t, result.Passed())
	require.NotEmpty(t, result.RunID)
	passed, failed, skipped := result.Counts()
	require.Equal(t, []int{4, 0, 0}, []int{passed, failed, skipped})
	require.NotNil(t, result.Consistency)
	require.Empty(t, result.Consistency.Divergences)
	require.Len(t, result.Consistency.Nodes, 3)
	require.Contains(t, result.Steps[0].Detail, "accepted")
}

func TestDroppedEdgeDoesNotPropagate(t *testing.T) {
	s := &Scenario{
		Name:    "partition",
		Wallets: []WalletSpec{{Alias: "alice", Funds: 1000}, {Alias: "bob"}},
		Steps: []Step{
			{Name: "drop", Kind: StepDropEdge, From: "node-0", To: "node-1"},
			{Name: "submit", Kind: StepSubmit, After: []string{"drop"}, Node: "node-0", From: "alice", To: "bob", Value: 10, Fragment: "tx"},
			{Name: "local", Kind: StepWait, After: []string{"submit"}, Fragment: "tx", Nodes: []string{"node-0"}},
			{Name: "isolated", Kind: StepWait, After: []string{"submit"}, Fragment: "tx", Nodes: []string{"node-1"}, Expect: ExpectTimedOut, TimeoutMS: 300},
			{Name: "restore", Kind: StepRestoreEdge, After: []string{"local", "isolated"}, From: "node-0", To: "node-1"},
		},
	}
	config := newTestConfig(t, 2)
	result := newTestRunner(t, config).Run(context.Background(), s)
	require.NoError(t, result.Err())
	require.Contains(t, result.Steps[3].Detail, "timed-out")
	require.Contains(t, result.Steps[3].Detail, "node-1")
}

func TestFailedStepSkipsDependents(t *testing.T) {
	s := &Scenario{
		Name:    "overspend",
		Wallets: []WalletSpec{{Alias: "alice", Funds: 10}, {Alias: "bob"}},
		Steps: []Step{
			{Name: "overspend", Kind: StepSubmit, Node: "node-0", From: "alice", To: "bob", Value: 1_000},
			{Name: "wait", Kind: StepWait, After: []string{"overspend"}, Fragment: "overspend"},
			{Name: "malformed", Kind: StepSubmit, Node: "node-1", From: "alice", To: "bob", Value: 1, Malformed: true, Expect: "rejected(validation-failed)"},
			{Name: "block", Kind: StepWaitBlock, Height: 1},
		},
	}
	result := newTestRunner(t, newTestConfig(t, 2)).Run(context.Background(), s)
	require.False(t, result.Passed())
	passed, failed, skipped := result.Counts()
	require.Equal(t, []int{2, 1, 1}, []int{passed, failed, skipped})
	require.Equal(t, report.Failed, result.Steps[0].Status)
	require.Equal(t, report.Skipped, result.Steps[1].Status)
	require.True(t, lib.HasCode(result.Steps[1].Err(), lib.ScenarioModule, lib.CodeDependencyFailed))
	// the failure keeps its cause
	require.True(t, lib.HasCode(result.Err(), lib.ConstructionModule, lib.CodeInsufficientFunds))
}

func TestLoadAndRestart(t *testing.T) {
	s := &Scenario{
		Name:    "load",
		Wallets: []WalletSpec{{Alias: "alice", Funds: 10_000}, {Alias: "bob", Funds: 10_000}, {Alias: "carol", Funds: 10_000}},
		Steps: []Step{
			{Name: "load", Kind: StepLoad, Node: "node-0", Count: 20, Mode: "tx-only"},
			{Name: "pause", Kind: StepPause, After: []string{"load"}, Node: "node-1"},
			{Name: "resume", Kind: StepResume, After: []string{"pause"}, Node: "node-1"},
			{Name: "restart", Kind: StepRestart, After: []string{"resume"}, Node: "node-1"},
			{Name: "block", Kind: StepWaitBlock, After: []string{"restart"}, Height: 2},
		},
	}
	result := newTestRunner(t, newTestConfig(t, 2)).Run(context.Background(), s)
	require.NoError(t, result.Err())
	require.Contains(t, result.Steps[0].Detail, "20/20 accepted")
}

func TestRunAbortsInvalidScenario(t *testing.T) {
	result := newTestRunner(t, newTestConfig(t, 1)).Run(context.Background(), &Scenario{Name: "empty"})
	require.False(t, result.Passed())
	require.NotEmpty(t, result.Error)
	require.True(t, lib.HasCode(result.Err(), lib.ScenarioModule, lib.CodeInvalidScenario))
}

func TestValidate(t *testing.T) {
	wallets := []WalletSpec{{Alias: "alice"}, {Alias: "bob"}}
	tests := []struct {
		name  string
		steps []Step
		code  lib.ErrorCode
	}{
		{
			name:  "unknown kind",
			steps: []Step{{Name: "a", Kind: "fly"}},
			code:  lib.CodeUnknownStep,
		},
		{
			name:  "duplicate",
			steps: []Step{{Name: "a", Kind: StepKill, Node: "node-0"}, {Name: "a", Kind: StepKill, Node: "node-0"}},
			code:  lib.CodeDuplicateStep,
		},
		{
			name:  "unknown dependency",
			steps: []Step{{Name: "a", Kind: StepKill, Node: "node-0", After: []string{"b"}}},
			code:  lib.CodeUnknownDependency,
		},
		{
			name: "cycle",
			steps: []Step{
				{Name: "a", Kind: StepKill, Node: "node-0", After: []string{"c"}},
				{Name: "b", Kind: StepKill, Node: "node-0", After: []string{"a"}},
				{Name: "c", Kind: StepKill, Node: "node-0", After: []string{"b"}},
			},
			code: lib.CodeDependencyCycle,
		},
		{
			name:  "unknown wallet",
			steps: []Step{{Name: "a", Kind: StepSubmit, Node: "node-0", From: "alice", To: "mallory"}},
			code:  lib.CodeInvalidScenario,
		},
		{
			name:  "load without count",
			steps: []Step{{Name: "a", Kind: StepLoad}},
			code:  lib.CodeInvalidScenario,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := (&Scenario{Wallets: wallets, Steps: test.steps}).Validate()
			require.Error(t, err)
			require.Equal(t, test.code, err.Code())
		})
	}
	// a diamond is not a cycle
	err := (&Scenario{Steps: []Step{
		{Name: "a", Kind: StepPause, Node: "node-0"},
		{Name: "b", Kind: StepResume, Node: "node-0", After: []string{"a"}},
		{Name: "c", Kind: StepKill, Node: "node-1", After: []string{"a"}},
		{Name: "d", Kind: StepWaitBlock, Height: 1, After: []string{"b", "c"}},
	}}).Validate()
	require.NoError(t, err)
}

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: transfer
wallets:
  - alias: alice
    funds: 1000
  - alias: bob
steps:
  - name: submit
    kind: submit
    node: node-0
    from: alice
    to: bob
    value: 400
    fragment: tx
  - name: wait
    kind: wait
    after: [submit]
    fragment: tx
    timeoutMS: 5000
`), os.ModePerm))
	s, err := LoadScenario(path)
	require.NoError(t, err)
	require.Equal(t, "transfer", s.Name)
	require.Len(t, s.Steps, 2)
	require.Equal(t, []string{"submit"}, s.Steps[1].After)
	require.Equal(t, 5*time.Second, s.Steps[1].Timeout(time.Minute))
	require.Equal(t, time.Minute, s.Steps[0].Timeout(time.Minute))
}

func TestScenarioGenesisIsDeterministic(t *testing.T) {
	s := &Scenario{Wallets: []WalletSpec{{Alias: "alice", Funds: 5}}}
	a, wa, err := s.Genesis(ledger.DefaultGenesisConfig(), 7)
	require.NoError(t, err)
	b, wb, err := s.Genesis(ledger.DefaultGenesisConfig(), 7)
	require.NoError(t, err)
	require.Equal(t, a.InitialFunds, b.InitialFunds)
	require.Equal(t, wa["alice"].Address.String(), wb["alice"].Address.String())
}

// failingLauncher refuses to launch any node
type failingLauncher struct{}

func (failingLauncher) Launch(_ context.Context, identity node.Identity, _ node.View) (node.Process, lib.ErrorI) {
	return nil, lib.ErrLaunch(identity.Alias, errors.New("no binary"))
}
func (failingLauncher) SetTopology(context.Context, *topology.Topology) lib.ErrorI { return nil }
func (failingLauncher) Close()                                                     {}

func TestStartReportsEveryFailure(t *testing.T) {
	config := newTestConfig(t, 3)
	config.MaxStartAttempts = 1
	n, err := NewNetwork(config, newTestGenesisConfig(), failingLauncher{}, nil, lib.NewNullLogger())
	require.NoError(t, err)
	e := n.Start(context.Background())
	require.Error(t, e)
	for _, alias := range n.Aliases() {
		require.Contains(t, e.Error(), alias)
	}
	require.True(t, lib.HasCode(e, lib.StartupModule, lib.CodeStartAttemptsExhausted))
	require.Empty(t, n.Handles())
	require.NoError(t, n.Stop(context.Background()))
}

func TestNetworkFaults(t *testing.T) {
	config := newTestConfig(t, 3)
	config.Strategy = "ring"
	launcher, err := NewLauncher(config, nil, lib.NewNullLogger())
	require.NoError(t, err)
	n, err := NewNetwork(config, newTestGenesisConfig(), launcher, nil, lib.NewNullLogger())
	require.NoError(t, err)
	require.NoError(t, n.Start(context.Background()))
	defer func() { require.NoError(t, n.Stop(context.Background())) }()
	require.Equal(t, []string{"node-0", "node-1", "node-2"}, n.Aliases())
	// identities are derived from the seed
	require.NotNil(t, n.Identities()[0].Address)
	_, err = n.Handle("node-9")
	require.True(t, lib.HasCode(err, lib.NodeModule, lib.CodeUnknownAlias))
	transition, err := n.DropEdge(context.Background(), "node-0", "node-1")
	require.NoError(t, err)
	require.Equal(t, topology.EdgeDropped, transition.Kind)
	require.False(t, n.Topology().HasEdge(0, 1))
	_, err = n.DropEdge(context.Background(), "node-0", "node-1")
	require.True(t, lib.HasCode(err, lib.TopologyModule, lib.CodeEdgeNotFound))
	_, err = n.RestoreEdge(context.Background(), "node-0", "node-1")
	require.NoError(t, err)
	require.Len(t, n.History().Transitions(), 2)
	require.NoError(t, n.PauseNode(context.Background(), "node-2"))
	h, err := n.Handle("node-2")
	require.NoError(t, err)
	require.True(t, h.Paused())
	require.NoError(t, n.ResumeNode(context.Background(), "node-2"))
	require.NoError(t, n.KillNode("node-2"))
	require.Equal(t, node.Stopped, h.State())
	require.NoError(t, n.RestartNode(context.Background(), "node-2"))
	restarted, err := n.Handle("node-2")
	require.NoError(t, err)
	require.Equal(t, node.Running, restarted.State())
	result, err := n.WaitForHeight(context.Background(), 1, nil, 2*time.Second)
	require.NoError(t, err)
	require.True(t, result.Propagated, result.String())
}
