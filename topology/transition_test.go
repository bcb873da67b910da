package topology

import (
	"testing"

	"github.com/canopy-network/mocknet/lib"
	"github.com/stretchr/testify/require"
)

func TestTransitionsNeverMutate(t *testing.T) {
	initial, err := New(3, FullMesh(), 0)
	require.NoError(t, err)
	// drop
	dropped, transition, err := initial.DropEdge(0, 2)
	require.NoError(t, err)
	require.Equal(t, Transition{Kind: EdgeDropped, Edges: []Edge{{0, 2}}, From: 0, To: 1}, transition)
	require.False(t, dropped.HasEdge(0, 2))
	require.True(t, initial.HasEdge(0, 2))
	// still connected through node 1
	require.True(t, dropped.IsReachable(0, 2))
	// add it back
	restored, transition, err := dropped.AddEdge(2, 0)
	require.NoError(t, err)
	require.Equal(t, EdgeAdded, transition.Kind)
	require.Equal(t, initial.Edges(), restored.Edges())
	require.Equal(t, uint64(2), restored.Version())
}

func TestJoinLeave(t *testing.T) {
	initial, err := New(3, Ring(), 0)
	require.NoError(t, err)
	joined, transition, err := initial.Join(3, 0, 2)
	require.NoError(t, err)
	require.Equal(t, NodeJoined, transition.Kind)
	require.Equal(t, NodeID(3), transition.Node)
	require.Equal(t, []Edge{{0, 3}, {2, 3}}, transition.Edges)
	require.Equal(t, []NodeID{0, 2}, joined.Neighbors(3))
	require.False(t, initial.HasNode(3))
	// leaving removes every edge of the node
	left, transition, err := joined.Leave(0)
	require.NoError(t, err)
	require.Equal(t, []Edge{{0, 1}, {0, 2}, {0, 3}}, transition.Edges)
	require.False(t, left.HasNode(0))
	require.Equal(t, []NodeID{1, 2, 3}, left.Nodes())
	require.Nil(t, left.Neighbors(0))
	require.True(t, joined.HasNode(0))
}

func TestTransitionErrors(t *testing.T) {
	topology, err := New(3, Custom(Edge{0, 1}), 0)
	require.NoError(t, err)
	requireCode := func(err error, code lib.ErrorCode) {
		require.True(t, lib.HasCode(err, lib.TopologyModule, code), "got %v", err)
	}
	_, _, err = topology.DropEdge(1, 2)
	requireCode(err, lib.CodeEdgeNotFound)
	_, _, err = topology.AddEdge(0, 1)
	requireCode(err, lib.CodeEdgeExists)
	_, _, err = topology.AddEdge(2, 2)
	requireCode(err, lib.CodeSelfLoop)
	_, _, err = topology.AddEdge(2, 9)
	requireCode(err, lib.CodeUnknownNode)
	_, _, err = topology.Join(1)
	requireCode(err, lib.CodeNodeExists)
	_, _, err = topology.Join(5, 9)
	requireCode(err, lib.CodeUnknownNode)
	_, _, err = topology.Leave(7)
	requireCode(err, lib.CodeUnknownNode)
}

func TestHistory(t *testing.T) {
	initial, err := New(4, Ring(), 0)
	require.NoError(t, err)
	h := NewHistory(initial)
	_, _, err = h.DropEdge(0, 1)
	require.NoError(t, err)
	_, _, err = h.Join(4, 1)
	require.NoError(t, err)
	// a failed change records nothing
	_, _, err = h.DropEdge(0, 1)
	require.Error(t, err)
	_, _, err = h.AddEdge(0, 1)
	require.NoError(t, err)
	_, _, err = h.Leave(4)
	require.NoError(t, err)
	snapshots, transitions := h.Snapshots(), h.Transitions()
	require.Len(t, snapshots, 5)
	require.Len(t, transitions, 4)
	// every intermediate state is inspectable
	require.True(t, snapshots[0].HasEdge(0, 1))
	require.False(t, snapshots[1].HasEdge(0, 1))
	require.True(t, snapshots[2].HasNode(4))
	require.Equal(t, initial.Edges(), h.Current().Edges())
	for i, transition := range transitions {
		require.Equal(t, snapshots[i].Version(), transition.From)
		require.Equal(t, snapshots[i+1].Version(), transition.To)
	}
}
