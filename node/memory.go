package node

import (
	"context"
	"sync"

	"github.com/canopy-network/mocknet/ledger"
	"github.com/canopy-network/mocknet/lib"
	"github.com/canopy-network/mocknet/mocknode"
	"github.com/canopy-network/mocknet/rpc"
	"github.com/canopy-network/mocknet/topology"
	"github.com/jonboulle/clockwork"
)

/* This file implements the launcher of mock nodes that run inside the harness process */

const logCapacity = 2000 // captured log lines per node

// MemoryConfig configures in-process nodes
type MemoryConfig struct {
	Gossip   lib.GossipConfig
	Mempool  lib.MempoolConfig
	LogLevel int32
	LogJSON  bool
}

// InMemoryLauncher runs mock nodes in-process, connected by a simulated gossip fabric
type InMemoryLauncher struct {
	config MemoryConfig
	clock  clockwork.Clock
	log    lib.LoggerI
	mu     sync.Mutex
	fabric *mocknode.Fabric // created on the first launch from the view topology
}

var _ Launcher = &InMemoryLauncher{}

// NewInMemoryLauncher() creates a launcher; a nil clock uses the wall clock
func NewInMemoryLauncher(config MemoryConfig, clock clockwork.Clock, log lib.LoggerI) *InMemoryLauncher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &InMemoryLauncher{config: config, clock: clock, log: log}
}

// Launch() creates the node, attaches it to the fabric and starts it
func (l *InMemoryLauncher) Launch(_ context.Context, identity Identity, view View) (Process, lib.ErrorI) {
	fabric := l.fabricFor(view.Topology)
	logs := lib.NewLogBuffer(logCapacity)
	logger := lib.NewLogger(lib.LoggerConfig{Level: l.config.LogLevel, JSON: l.config.LogJSON, Prefix: identity.Alias, Out: logs})
	n, err := mocknode.New(mocknode.Config{
		ID:          identity.ID,
		Alias:       identity.Alias,
		DataDirPath: identity.DataDirPath,
		Mempool:     l.config.Mempool,
		QueueSize:   l.config.Gossip.QueueSize,
	}, view.Genesis, l.clock, logger)
	if err != nil {
		return nil, lib.ErrLaunch(identity.Alias, err)
	}
	gossip, err := fabric.Attach(identity.ID, n)
	if err != nil {
		_ = n.Stop()
		return nil, err
	}
	if err = n.Start(gossip); err != nil {
		fabric.Detach(identity.ID)
		return nil, lib.ErrLaunch(identity.Alias, err)
	}
	return &memoryProcess{node: n, fabric: fabric, logs: logs, exited: make(chan struct{})}, nil
}

// SetTopology() reroutes the fabric
func (l *InMemoryLauncher) SetTopology(_ context.Context, t *topology.Topology) lib.ErrorI {
	l.fabricFor(t).SetTopology(t)
	return nil
}

// Fabric() exposes the gossip network, nil before the first launch
func (l *InMemoryLauncher) Fabric() *mocknode.Fabric {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fabric
}

// Close() stops the fabric
func (l *InMemoryLauncher) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fabric != nil {
		l.fabric.Close()
		l.fabric = nil
	}
}

func (l *InMemoryLauncher) fabricFor(t *topology.Topology) *mocknode.Fabric {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fabric == nil {
		l.fabric = mocknode.NewFabric(t, l.config.Gossip, l.clock, l.log)
	}
	return l.fabric
}

// memoryProcess is a running in-process node
type memoryProcess struct {
	node   *mocknode.Node
	fabric *mocknode.Fabric
	logs   *lib.LogBuffer
	once   sync.Once
	exited chan struct{}
}

func (p *memoryProcess) Client() Client          { return &memoryClient{node: p.node} }
func (p *memoryProcess) Logs() []string          { return p.logs.Lines() }
func (p *memoryProcess) Exited() <-chan struct{} { return p.exited }
func (p *memoryProcess) Resources() (float64, uint64) {
	return 0, 0
}

// Stop() halts the node and detaches it from the fabric
func (p *memoryProcess) Stop(_ context.Context) (err lib.ErrorI) {
	p.once.Do(func() {
		p.fabric.Detach(p.node.ID())
		err = p.node.Stop()
		close(p.exited)
	})
	return
}

// Kill() is a stop: an in-process node has nothing left to force
func (p *memoryProcess) Kill() lib.ErrorI { return p.Stop(context.Background()) }

// memoryClient calls an in-process node directly, failing like a closed connection once the node stopped
type memoryClient struct {
	node *mocknode.Node
}

func (c *memoryClient) alive() lib.ErrorI {
	if !c.node.Healthy() {
		return lib.ErrConnRefused(c.node.Alias())
	}
	return nil
}

func (c *memoryClient) Health(_ context.Context) lib.ErrorI { return c.alive() }

func (c *memoryClient) Submit(_ context.Context, bz []byte) (rpc.SubmitResult, lib.ErrorI) {
	if err := c.alive(); err != nil {
		return rpc.SubmitResult{}, err
	}
	return c.node.Submit(bz), nil
}

func (c *memoryClient) Tip(_ context.Context) (rpc.BlockID, lib.ErrorI) {
	if err := c.alive(); err != nil {
		return rpc.BlockID{}, err
	}
	return c.node.Tip(), nil
}

func (c *memoryClient) FragmentLogs(_ context.Context) ([]rpc.FragmentLog, lib.ErrorI) {
	if err := c.alive(); err != nil {
		return nil, err
	}
	return c.node.FragmentLogs(), nil
}

func (c *memoryClient) FragmentLog(_ context.Context, id ledger.FragmentID) (rpc.FragmentLog, bool, lib.ErrorI) {
	if err := c.alive(); err != nil {
		return rpc.FragmentLog{}, false, err
	}
	l, found := c.node.FragmentLog(id)
	return l, found, nil
}

func (c *memoryClient) Stats(_ context.Context) (rpc.NodeStats, lib.ErrorI) {
	if err := c.alive(); err != nil {
		return rpc.NodeStats{}, err
	}
	return c.node.Stats(), nil
}

func (c *memoryClient) Account(_ context.Context, address string) (rpc.AccountState, lib.ErrorI) {
	if err := c.alive(); err != nil {
		return rpc.AccountState{}, err
	}
	return c.node.Account(address)
}

func (c *memoryClient) Pause(_ context.Context) lib.ErrorI {
	if err := c.alive(); err != nil {
		return err
	}
	c.node.Pause()
	return nil
}

func (c *memoryClient) Resume(_ context.Context) lib.ErrorI {
	if err := c.alive(); err != nil {
		return err
	}
	c.node.Resume()
	return nil
}

func (c *memoryClient) Close() {}
