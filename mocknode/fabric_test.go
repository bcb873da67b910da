package mocknode

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/canopy-network/mocknet/lib"
	"github.com/canopy-network/mocknet/rpc"
	"github.com/canopy-network/mocknet/topology"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// recorder is a Receiver that keeps what it was handed
type recorder struct {
	mu   sync.Mutex
	from []topology.NodeID
}

func (r *recorder) Deliver(from topology.NodeID, _ []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.from = append(r.from, from)
	return true
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.from)
}

func newTestFabric(t *testing.T, n int, strategy topology.Strategy, config lib.GossipConfig, clock clockwork.Clock) (*Fabric, []*recorder, []Gossiper) {
	top, err := topology.New(n, strategy, 1)
	require.NoError(t, err)
	f := NewFabric(top, config, clock, lib.NewNullLogger())
	t.Cleanup(f.Close)
	recorders := make([]*recorder, n)
	gossipers := make([]Gossiper, n)
	for i := range recorders {
		recorders[i] = new(recorder)
		gossipers[i], err = f.Attach(topology.NodeID(i), recorders[i])
		require.NoError(t, err)
	}
	return f, recorders, gossipers
}

func TestFabricBroadcast(t *testing.T) {
	f, recorders, gossipers := newTestFabric(t, 3, topology.FullMesh(), lib.GossipConfig{QueueSize: 10}, nil)
	gossipers[0].Broadcast([]byte("fragment"), noPeer)
	require.Eventually(t, func() bool { return recorders[1].count() == 1 && recorders[2].count() == 1 }, time.Second, 5*time.Millisecond)
	require.Zero(t, recorders[0].count())
	require.Equal(t, uint64(2), f.Sent())
	// the source of a fragment is skipped
	gossipers[1].Broadcast([]byte("fragment"), 0)
	require.Eventually(t, func() bool { return recorders[2].count() == 2 }, time.Second, 5*time.Millisecond)
	require.Zero(t, recorders[0].count())
}

func TestFabricFollowsTopology(t *testing.T) {
	f, recorders, gossipers := newTestFabric(t, 4, topology.Ring(), lib.GossipConfig{QueueSize: 10}, nil)
	require.ElementsMatch(t, []topology.NodeID{1, 3}, gossipers[0].Peers())
	gossipers[0].Broadcast([]byte("x"), noPeer)
	require.Eventually(t, func() bool { return recorders[1].count() == 1 && recorders[3].count() == 1 }, time.Second, 5*time.Millisecond)
	require.Zero(t, recorders[2].count())
	// dropping an edge stops traffic on it
	next, _, err := f.Topology().DropEdge(0, 1)
	require.NoError(t, err)
	f.SetTopology(next)
	require.Equal(t, []topology.NodeID{3}, gossipers[0].Peers())
	gossipers[0].Broadcast([]byte("y"), noPeer)
	require.Eventually(t, func() bool { return recorders[3].count() == 2 }, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, recorders[1].count())
}

func TestFabricIgnoresOlderTopology(t *testing.T) {
	f, _, gossipers := newTestFabric(t, 3, topology.FullMesh(), lib.GossipConfig{QueueSize: 10}, nil)
	v1, _, err := f.Topology().DropEdge(0, 1)
	require.NoError(t, err)
	v2, _, err := v1.DropEdge(0, 2)
	require.NoError(t, err)
	// the newer snapshot arrives first
	require.True(t, f.SetTopology(v2))
	require.False(t, f.SetTopology(v1))
	require.Equal(t, v2.Version(), f.Topology().Version())
	require.Empty(t, gossipers[0].Peers())
	// re-applying the current snapshot is allowed
	require.True(t, f.SetTopology(v2))
}

func TestFabricLatency(t *testing.T) {
	clock := clockwork.NewFakeClock()
	_, recorders, gossipers := newTestFabric(t, 2, topology.FullMesh(), lib.GossipConfig{LatencyMS: 100, QueueSize: 10}, clock)
	gossipers[0].Broadcast([]byte("x"), noPeer)
	// the link routine waits on the clock
	clock.BlockUntil(1)
	require.Zero(t, recorders[1].count())
	clock.Advance(100 * time.Millisecond)
	require.Eventually(t, func() bool { return recorders[1].count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestFabricInFlightLostOnDroppedEdge(t *testing.T) {
	clock := clockwork.NewFakeClock()
	f, recorders, gossipers := newTestFabric(t, 2, topology.FullMesh(), lib.GossipConfig{LatencyMS: 100, QueueSize: 10}, clock)
	gossipers[0].Broadcast([]byte("x"), noPeer)
	clock.BlockUntil(1)
	next, _, err := f.Topology().DropEdge(0, 1)
	require.NoError(t, err)
	f.SetTopology(next)
	clock.Advance(100 * time.Millisecond)
	require.Eventually(t, func() bool { return f.Dropped() == 1 }, time.Second, 5*time.Millisecond)
	require.Zero(t, recorders[1].count())
}

func TestFabricAttachUnknownNode(t *testing.T) {
	f, _, _ := newTestFabric(t, 2, topology.FullMesh(), lib.GossipConfig{}, nil)
	_, err := f.Attach(7, new(recorder))
	require.True(t, lib.HasCode(err, lib.NetworkModule, lib.CodeNodeNotFound))
}

func TestGossipBetweenNodes(t *testing.T) {
	genesis, wallets := newTestGenesis(t, 1000, 0)
	top, err := topology.New(3, topology.Ring(), 1)
	require.NoError(t, err)
	fabric := NewFabric(top, lib.GossipConfig{QueueSize: 10}, nil, lib.NewNullLogger())
	defer fabric.Close()
	nodes := make([]*Node, 3)
	for i := range nodes {
		nodes[i], err = New(Config{ID: topology.NodeID(i), Alias: fmt.Sprintf("node-%d", i)}, genesis, clockwork.NewFakeClock(), lib.NewNullLogger())
		require.NoError(t, err)
		g, e := fabric.Attach(topology.NodeID(i), nodes[i])
		require.NoError(t, e)
		require.NoError(t, nodes[i].Start(g))
		defer func(n *Node) { _ = n.Stop() }(nodes[i])
	}
	f, err := wallets[0].Transfer(genesis, wallets[1].Address, 10)
	require.NoError(t, err)
	require.True(t, nodes[0].Submit(f.Bytes()).IsAccepted())
	for _, n := range nodes[1:] {
		require.Eventually(t, func() bool {
			l, ok := n.FragmentLog(f.ID())
			return ok && l.Origin == rpc.FromNetwork && l.Status == rpc.StatusPending
		}, time.Second, 5*time.Millisecond)
	}
}
