package mocknode

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/canopy-network/mocknet/lib"
	"github.com/canopy-network/mocknet/rpc"
	"github.com/canopy-network/mocknet/topology"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// serveNode() exposes the node through its REST server on a local listener
func serveNode(t *testing.T, n *Node) string {
	ts := httptest.NewServer(rpc.NewServer(n, rpc.ServerConfig{}, lib.NewNullLogger()).Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestHTTPGossipBetweenNodes(t *testing.T) {
	genesis, wallets := newTestGenesis(t, 1000, 0)
	top, err := topology.New(2, topology.FullMesh(), 1)
	require.NoError(t, err)
	nodes, urls := make([]*Node, 2), make([]string, 2)
	for i := range nodes {
		id := topology.NodeID(i)
		n, e := New(Config{ID: id, Alias: fmt.Sprintf("node-%d", i)}, genesis, clockwork.NewFakeClock(), lib.NewNullLogger())
		require.NoError(t, e)
		require.NoError(t, n.Start(NewHTTPGossiper(id, lib.GossipConfig{QueueSize: 10}, time.Second, lib.NewNullLogger())))
		t.Cleanup(func() { _ = n.Stop() })
		nodes[i], urls[i] = n, serveNode(t, n)
	}
	urlOf := func(id topology.NodeID) string { return urls[id] }
	for i, n := range nodes {
		require.NoError(t, n.SetPeers(PeersOf(top, topology.NodeID(i), urlOf)))
	}
	// a client submission on node-0 reaches node-1 over REST gossip
	client := rpc.NewClient(urls[0], "", time.Second)
	defer client.Close()
	f, e := wallets[0].Transfer(genesis, wallets[1].Address, 100)
	require.NoError(t, e)
	result, e := client.Submit(context.Background(), f.Bytes())
	require.NoError(t, e)
	require.True(t, result.IsAccepted(), result.Message)
	require.Eventually(t, func() bool {
		_, found := nodes[1].FragmentLog(f.ID())
		return found
	}, 2*time.Second, 10*time.Millisecond)
	l, _ := nodes[1].FragmentLog(f.ID())
	require.Equal(t, rpc.FromNetwork, l.Origin)
	require.Equal(t, uint64(100), nodes[1].State().Balance(wallets[1].Address))
}
