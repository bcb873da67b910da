package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/canopy-network/mocknet/ledger"
	"github.com/canopy-network/mocknet/lib"
	"github.com/canopy-network/mocknet/lib/crypto"
	"github.com/canopy-network/mocknet/rpc"
	"github.com/canopy-network/mocknet/topology"
	"github.com/stretchr/testify/require"
)

func newTestNodeConfig() lib.NodeConfig {
	return lib.NodeConfig{
		Launcher:         lib.InMemoryLauncher,
		StartupTimeoutMS: 200,
		MaxStartAttempts: 2,
		HealthPollMS:     5,
		RequestTimeoutMS: 500,
		StopTimeoutMS:    500,
		QueryRetries:     1,
	}
}

// fakeClient answers with configurable errors
type fakeClient struct {
	health error
	submit lib.ErrorI
	tip    lib.ErrorI
}

func (c *fakeClient) Health(context.Context) lib.ErrorI {
	if c.health != nil {
		return lib.ErrHealthCheck(c.health)
	}
	return nil
}
func (c *fakeClient) Submit(context.Context, []byte) (rpc.SubmitResult, lib.ErrorI) {
	return rpc.SubmitResult{Status: rpc.Accepted}, c.submit
}
func (c *fakeClient) Tip(context.Context) (rpc.BlockID, lib.ErrorI) { return rpc.BlockID{Height: 1}, c.tip }
func (c *fakeClient) FragmentLogs(context.Context) ([]rpc.FragmentLog, lib.ErrorI) {
	return nil, nil
}
func (c *fakeClient) FragmentLog(context.Context, ledger.FragmentID) (rpc.FragmentLog, bool, lib.ErrorI) {
	return rpc.FragmentLog{}, false, nil
}
func (c *fakeClient) Stats(context.Context) (rpc.NodeStats, lib.ErrorI) { return rpc.NodeStats{}, nil }
func (c *fakeClient) Account(context.Context, string) (rpc.AccountState, lib.ErrorI) {
	return rpc.AccountState{}, nil
}
func (c *fakeClient) Pause(context.Context) lib.ErrorI  { return nil }
func (c *fakeClient) Resume(context.Context) lib.ErrorI { return nil }
func (c *fakeClient) Close()                            {}

// fakeProcess is a launched fake node
type fakeProcess struct {
	client  *fakeClient
	once    sync.Once
	exited  chan struct{}
	stopped atomic.Int32
}

func newFakeProcess(client *fakeClient) *fakeProcess {
	return &fakeProcess{client: client, exited: make(chan struct{})}
}

func (p *fakeProcess) Client() Client                  { return p.client }
func (p *fakeProcess) Logs() []string                  { return []string{"INFO started", "ERROR boom"} }
func (p *fakeProcess) Exited() <-chan struct{}         { return p.exited }
func (p *fakeProcess) Resources() (float64, uint64)    { return 1.5, 1024 }
func (p *fakeProcess) Stop(context.Context) lib.ErrorI { return p.Kill() }
func (p *fakeProcess) Kill() lib.ErrorI {
	p.stopped.Add(1)
	p.once.Do(func() { close(p.exited) })
	return nil
}

// fakeLauncher hands out the next process of a script
type fakeLauncher struct {
	mu       sync.Mutex
	script   []*fakeProcess
	launches int
}

func (l *fakeLauncher) Launch(context.Context, Identity, View) (Process, lib.ErrorI) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches++
	if len(l.script) == 0 {
		return nil, lib.ErrLaunch("fake", errors.New("no process"))
	}
	p := l.script[0]
	l.script = l.script[1:]
	return p, nil
}
func (l *fakeLauncher) SetTopology(context.Context, *topology.Topology) lib.ErrorI { return nil }
func (l *fakeLauncher) Close()                                                    {}

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		allowed  bool
	}{
		{Configured, Starting, true},
		{Starting, Running, true},
		{Running, Degraded, true},
		{Degraded, Running, true},
		{Running, Stopping, true},
		{Stopping, Stopped, true},
		{Stopped, Running, false},
		{Stopped, Starting, false},
		{Configured, Running, false},
		{Running, Starting, false},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%s->%s", test.from, test.to), func(t *testing.T) {
			require.Equal(t, test.allowed, CanTransition(test.from, test.to))
		})
	}
}

func TestStartRetriesUnhealthyNode(t *testing.T) {
	down := newFakeProcess(&fakeClient{health: errors.New("down")})
	up := newFakeProcess(&fakeClient{})
	launcher := &fakeLauncher{script: []*fakeProcess{down, up}}
	c := NewController(newTestNodeConfig(), launcher, nil, lib.NewNullLogger())
	h, err := c.Start(context.Background(), Identity{Alias: "a"}, View{})
	require.NoError(t, err)
	require.Equal(t, Running, h.State())
	require.Equal(t, 2, launcher.launches)
	// the unhealthy attempt was released
	require.Equal(t, int32(1), down.stopped.Load())
}

func TestStartAttemptsExhausted(t *testing.T) {
	launcher := &fakeLauncher{script: []*fakeProcess{
		newFakeProcess(&fakeClient{health: errors.New("down")}),
		newFakeProcess(&fakeClient{health: errors.New("down")}),
		newFakeProcess(&fakeClient{}),
	}}
	c := NewController(newTestNodeConfig(), launcher, nil, lib.NewNullLogger())
	_, err := c.Start(context.Background(), Identity{Alias: "a"}, View{})
	require.True(t, lib.HasCode(err, lib.StartupModule, lib.CodeStartAttemptsExhausted))
	require.Equal(t, 2, launcher.launches)
}

func TestStartExitedProcess(t *testing.T) {
	exited := newFakeProcess(&fakeClient{health: errors.New("down")})
	_ = exited.Kill()
	launcher := &fakeLauncher{script: []*fakeProcess{exited, newFakeProcess(&fakeClient{})}}
	c := NewController(newTestNodeConfig(), launcher, nil, lib.NewNullLogger())
	h, err := c.Start(context.Background(), Identity{Alias: "a"}, View{})
	require.NoError(t, err)
	require.Equal(t, Running, h.State())
}

func TestSubmitConnRefused(t *testing.T) {
	client := &fakeClient{submit: lib.ErrPostRequest(errors.New("connection refused"))}
	launcher := &fakeLauncher{script: []*fakeProcess{newFakeProcess(client)}}
	c := NewController(newTestNodeConfig(), launcher, nil, lib.NewNullLogger())
	h, err := c.Start(context.Background(), Identity{Alias: "a"}, View{})
	require.NoError(t, err)
	genesis, wallets := newTestGenesis(t, 100, 0)
	f, err := wallets[0].Transfer(genesis, wallets[1].Address, 10)
	require.NoError(t, err)
	result, err := h.SubmitFragment(context.Background(), f)
	require.NoError(t, err)
	require.Equal(t, rpc.Rejected, result.Status)
	require.Equal(t, rpc.ConnRefused, result.Reason)
	require.Equal(t, f.ID(), result.ID)
	require.Equal(t, Degraded, h.State())
	// a successful query brings it back
	_, err = h.ChainTip(context.Background())
	require.NoError(t, err)
	require.Equal(t, Running, h.State())
}

func TestQueryFailureDegrades(t *testing.T) {
	client := &fakeClient{tip: lib.ErrGetRequest(errors.New("connection reset"))}
	launcher := &fakeLauncher{script: []*fakeProcess{newFakeProcess(client)}}
	c := NewController(newTestNodeConfig(), launcher, nil, lib.NewNullLogger())
	h, err := c.Start(context.Background(), Identity{Alias: "a"}, View{})
	require.NoError(t, err)
	_, err = h.ChainTip(context.Background())
	require.True(t, lib.HasCode(err, lib.NetworkModule, lib.CodeGetRequest))
	require.Equal(t, Degraded, h.State())
}

func TestUnexpectedExitDegrades(t *testing.T) {
	p := newFakeProcess(&fakeClient{})
	c := NewController(newTestNodeConfig(), &fakeLauncher{script: []*fakeProcess{p}}, nil, lib.NewNullLogger())
	h, err := c.Start(context.Background(), Identity{Alias: "a"}, View{})
	require.NoError(t, err)
	p.once.Do(func() { close(p.exited) })
	require.Eventually(t, func() bool { return h.State() == Degraded }, time.Second, 5*time.Millisecond)
	// stopping still releases it
	require.NoError(t, h.Stop(context.Background()))
	require.Equal(t, Stopped, h.State())
}

func TestStopInvalidatesHandle(t *testing.T) {
	p := newFakeProcess(&fakeClient{})
	c := NewController(newTestNodeConfig(), &fakeLauncher{script: []*fakeProcess{p}}, nil, lib.NewNullLogger())
	h, err := c.Start(context.Background(), Identity{Alias: "a"}, View{})
	require.NoError(t, err)
	stats, err := h.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(1024), stats.ProcessRSSBytes)
	require.Equal(t, []string{"ERROR boom"}, h.Logs(lib.LogFilter{OnlyErrors: true}))
	require.NoError(t, h.Stop(context.Background()))
	// stop is idempotent
	require.NoError(t, h.Stop(context.Background()))
	require.NoError(t, h.Kill())
	require.Equal(t, int32(1), p.stopped.Load())
	_, err = h.ChainTip(context.Background())
	require.True(t, lib.HasCode(err, lib.NodeModule, lib.CodeHandleInvalid))
	require.True(t, lib.HasCode(h.Pause(context.Background()), lib.NodeModule, lib.CodeHandleInvalid))
}

// newTestGenesis() funds one wallet per value
func newTestGenesis(t *testing.T, funds ...uint64) (*ledger.State, []*ledger.Wallet) {
	config := ledger.DefaultGenesisConfig()
	var wallets []*ledger.Wallet
	for i, value := range funds {
		w, err := ledger.NewWallet(fmt.Sprintf("w%d", i), 1, crypto.Test)
		require.NoError(t, err)
		config = config.Fund(w.Address, value)
		wallets = append(wallets, w)
	}
	genesis, err := ledger.NewGenesis(config)
	require.NoError(t, err)
	return genesis, wallets
}

func TestInMemoryNetwork(t *testing.T) {
	genesis, wallets := newTestGenesis(t, 1000, 0)
	top, err := topology.New(2, topology.FullMesh(), 1)
	require.NoError(t, err)
	launcher := NewInMemoryLauncher(MemoryConfig{Gossip: lib.GossipConfig{QueueSize: 10}}, nil, lib.NewNullLogger())
	defer launcher.Close()
	c := NewController(newTestNodeConfig(), launcher, nil, lib.NewNullLogger())
	view := View{Genesis: genesis, Topology: top}
	handles := make([]*Handle, 2)
	for i := range handles {
		handles[i], err = c.Start(context.Background(), Identity{ID: topology.NodeID(i), Alias: fmt.Sprintf("node-%d", i)}, view)
		require.NoError(t, err)
		defer func(h *Handle) { _ = h.Stop(context.Background()) }(handles[i])
	}
	f, err := wallets[0].Transfer(genesis, wallets[1].Address, 400)
	require.NoError(t, err)
	result, err := handles[0].SubmitFragment(context.Background(), f)
	require.NoError(t, err)
	require.True(t, result.IsAccepted(), result.Message)
	require.Eventually(t, func() bool {
		ok, e := handles[1].HasFragment(context.Background(), f.ID())
		return e == nil && ok
	}, 2*time.Second, 10*time.Millisecond)
	acc, err := handles[1].Account(context.Background(), wallets[1].Address.String())
	require.NoError(t, err)
	require.Equal(t, uint64(400), acc.Value)
	// a paused node refuses submissions and answers queries
	require.NoError(t, handles[1].Pause(context.Background()))
	require.True(t, handles[1].Paused())
	g, err := wallets[0].Transfer(genesis, wallets[1].Address, 1)
	require.NoError(t, err)
	result, err = handles[1].SubmitFragment(context.Background(), g)
	require.NoError(t, err)
	require.Equal(t, rpc.ConnRefused, result.Reason)
	require.NoError(t, handles[1].Resume(context.Background()))
	// a stopped in-memory node refuses like a closed socket
	require.NoError(t, handles[1].Stop(context.Background()))
	require.Equal(t, Stopped, handles[1].State())
}

func TestInMemoryLaunchFailureReleasesStore(t *testing.T) {
	genesis, _ := newTestGenesis(t, 1000)
	top, err := topology.New(2, topology.FullMesh(), 1)
	require.NoError(t, err)
	launcher := NewInMemoryLauncher(MemoryConfig{Gossip: lib.GossipConfig{QueueSize: 10}}, nil, lib.NewNullLogger())
	defer launcher.Close()
	view := View{Genesis: genesis, Topology: top}
	dir := t.TempDir()
	// an identity outside the topology cannot attach to the fabric
	_, err = launcher.Launch(context.Background(), Identity{ID: 7, Alias: "stray", DataDirPath: dir}, view)
	require.Error(t, err)
	// the same data directory is usable by the next launch
	p, err := launcher.Launch(context.Background(), Identity{ID: 0, Alias: "node-0", DataDirPath: dir}, view)
	require.NoError(t, err)
	require.NoError(t, p.Stop(context.Background()))
}
