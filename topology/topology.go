package topology

import (
	"fmt"
	"slices"
	"strings"

	"github.com/canopy-network/mocknet/lib"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/graphs/gen"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/graph/traverse"
)

/* This file models the gossip relationships between logical peers as an immutable undirected graph */

// NodeID is the stable identity of a peer within a topology
type NodeID int64

// Edge is an undirected gossip relationship, always stored with A < B
type Edge struct {
	A NodeID `json:"a" yaml:"a"`
	B NodeID `json:"b" yaml:"b"`
}

// NewEdge() orders the endpoints of an edge
func NewEdge(a, b NodeID) Edge {
	if a > b {
		a, b = b, a
	}
	return Edge{A: a, B: b}
}

// String() returns the edge as 'a-b'
func (e Edge) String() string { return fmt.Sprintf("%d-%d", e.A, e.B) }

// StrategyKind enumerates the supported edge strategies
type StrategyKind int

const (
	KindFullMesh StrategyKind = iota
	KindRing
	KindRandomRegular
	KindCustom
)

var strategyNames = map[StrategyKind]string{
	KindFullMesh:      "full-mesh",
	KindRing:          "ring",
	KindRandomRegular: "random-regular",
	KindCustom:        "custom",
}

// String() returns the config name of the strategy kind
func (k StrategyKind) String() string { return strategyNames[k] }

// Strategy selects how New() wires the peers
type Strategy struct {
	Kind   StrategyKind
	Degree int    // k of a random k-regular graph
	Edges  []Edge // explicit edges of a custom graph
}

// FullMesh() connects every peer to every other peer
func FullMesh() Strategy { return Strategy{Kind: KindFullMesh} }

// Ring() connects peer i to peers i-1 and i+1
func Ring() Strategy { return Strategy{Kind: KindRing} }

// RandomKRegular() connects every peer to exactly k random peers
func RandomKRegular(k int) Strategy { return Strategy{Kind: KindRandomRegular, Degree: k} }

// Custom() uses an explicit edge list
func Custom(edges ...Edge) Strategy { return Strategy{Kind: KindCustom, Edges: edges} }

// String() returns a readable form of the strategy
func (s Strategy) String() string {
	switch s.Kind {
	case KindRandomRegular:
		return fmt.Sprintf("%s(k=%d)", s.Kind, s.Degree)
	case KindCustom:
		return fmt.Sprintf("%s(%d edges)", s.Kind, len(s.Edges))
	}
	return s.Kind.String()
}

// ParseStrategy() converts the user configuration into a Strategy
func ParseStrategy(config lib.TopologyConfig) (Strategy, lib.ErrorI) {
	switch strings.ToLower(strings.TrimSpace(config.Strategy)) {
	case "", "full-mesh", "fullmesh", "mesh":
		return FullMesh(), nil
	case "ring":
		return Ring(), nil
	case "random-regular", "random-k-regular", "regular":
		return RandomKRegular(config.Degree), nil
	case "custom":
		edges := make([]Edge, 0, len(config.Edges))
		for _, e := range config.Edges {
			edges = append(edges, Edge{A: NodeID(e[0]), B: NodeID(e[1])})
		}
		return Custom(edges...), nil
	}
	return Strategy{}, lib.ErrUnknownStrategy(config.Strategy)
}

// maxRegularRestarts bounds the restarts of the random regular construction
const maxRegularRestarts = 100

/*
	Topology is an immutable snapshot of the peer graph. Every change returns a new snapshot,
	so a snapshot handed to a node or a report never changes underneath it
*/
type Topology struct {
	g        *simple.UndirectedGraph
	strategy Strategy
	version  uint64 // number of transitions since construction
}

// New() builds the topology of nodeCount peers with ids [0, nodeCount), deterministic given the seed
func New(nodeCount int, strategy Strategy, seed uint64) (*Topology, lib.ErrorI) {
	if nodeCount <= 0 {
		return nil, lib.ErrInvalidNodeCount(nodeCount)
	}
	t := &Topology{g: simple.NewUndirectedGraph(), strategy: strategy}
	ids := gen.IDRange{First: 0, Last: int64(nodeCount - 1)}
	switch strategy.Kind {
	case KindFullMesh:
		gen.Complete(t.g, ids)
	case KindRing:
		gen.Cycle(t.g, ids)
	case KindRandomRegular:
		if err := t.randomRegular(nodeCount, strategy.Degree, seed); err != nil {
			return nil, err
		}
	case KindCustom:
		t.addNodes(nodeCount)
		for _, e := range strategy.Edges {
			if err := t.checkNewEdge(e.A, e.B); err != nil {
				return nil, err
			}
			t.g.SetEdge(t.g.NewEdge(simple.Node(e.A), simple.Node(e.B)))
		}
	default:
		return nil, lib.ErrUnknownStrategy(strategy.Kind.String())
	}
	// generators only add nodes that have edges
	t.addNodes(nodeCount)
	return t, nil
}

// addNodes() ensures the ids [0, n) exist
func (t *Topology) addNodes(n int) {
	for i := int64(0); i < int64(n); i++ {
		if t.g.Node(i) == nil {
			t.g.AddNode(simple.Node(i))
		}
	}
}

// randomRegular() wires a random k-regular graph by pairing free 'stubs' one edge at a time,
// restarting when the remaining stubs can only form loops or duplicate edges
func (t *Topology) randomRegular(n, k int, seed uint64) lib.ErrorI {
	if k < 0 || k >= n || (n*k)%2 != 0 {
		return lib.ErrInvalidDegree(k, n)
	}
	// the complete graph is the only (n-1)-regular graph
	if k == n-1 {
		gen.Complete(t.g, gen.IDRange{First: 0, Last: int64(n - 1)})
		return nil
	}
	rng := rand.New(rand.NewSource(seed))
	// dense graphs are built as the complement of a sparse one, where pairing rarely gets stuck
	dense := 2*k > n-1
	if dense {
		k = n - 1 - k
	}
	for restart := 0; restart < maxRegularRestarts; restart++ {
		g := simple.NewUndirectedGraph()
		for i := int64(0); i < int64(n); i++ {
			g.AddNode(simple.Node(i))
		}
		// every node contributes k stubs
		stubs := make([]int64, 0, n*k)
		for i := 0; i < n; i++ {
			for j := 0; j < k; j++ {
				stubs = append(stubs, int64(i))
			}
		}
		if !pairStubs(g, stubs, rng) {
			continue
		}
		if dense {
			g = complement(g, n)
		}
		t.g = g
		return nil
	}
	return lib.ErrInvalidDegree(k, n)
}

// complement() returns the graph on [0, n) with exactly the edges g lacks
func complement(g *simple.UndirectedGraph, n int) *simple.UndirectedGraph {
	c := simple.NewUndirectedGraph()
	for i := int64(0); i < int64(n); i++ {
		c.AddNode(simple.Node(i))
	}
	for u := int64(0); u < int64(n); u++ {
		for v := u + 1; v < int64(n); v++ {
			if !g.HasEdgeBetween(u, v) {
				c.SetEdge(c.NewEdge(simple.Node(u), simple.Node(v)))
			}
		}
	}
	return c
}

// pairStubs() consumes the stubs two at a time, returning false when it gets stuck
func pairStubs(g *simple.UndirectedGraph, stubs []int64, rng *rand.Rand) bool {
	suitable := func(u, v int64) bool { return u != v && !g.HasEdgeBetween(u, v) }
	for len(stubs) > 0 {
		i, j := rng.Intn(len(stubs)), rng.Intn(len(stubs))
		if i == j || !suitable(stubs[i], stubs[j]) {
			// random picks failed, fall back to a scan for any suitable pair
			var found bool
			for i = 0; i < len(stubs) && !found; i++ {
				for j = i + 1; j < len(stubs); j++ {
					if suitable(stubs[i], stubs[j]) {
						found = true
						break
					}
				}
			}
			if !found {
				return false
			}
			i-- // undo the loop increment
		}
		g.SetEdge(g.NewEdge(simple.Node(stubs[i]), simple.Node(stubs[j])))
		// remove the larger index first so the smaller stays valid
		if i < j {
			i, j = j, i
		}
		stubs[i] = stubs[len(stubs)-1]
		stubs = stubs[:len(stubs)-1]
		stubs[j] = stubs[len(stubs)-1]
		stubs = stubs[:len(stubs)-1]
	}
	return true
}

// Strategy() returns the strategy the topology was built with
func (t *Topology) Strategy() Strategy { return t.strategy }

// Version() returns the number of transitions applied since construction
func (t *Topology) Version() uint64 { return t.version }

// Size() returns the number of peers
func (t *Topology) Size() int { return t.g.Nodes().Len() }

// HasNode() reports whether the peer is part of the topology
func (t *Topology) HasNode(id NodeID) bool { return t.g.Node(int64(id)) != nil }

// Nodes() returns every peer id in ascending order
func (t *Topology) Nodes() []NodeID { return sortedIDs(graph.NodesOf(t.g.Nodes())) }

// Neighbors() returns the gossip peers of a node in ascending order
func (t *Topology) Neighbors(id NodeID) []NodeID {
	if !t.HasNode(id) {
		return nil
	}
	return sortedIDs(graph.NodesOf(t.g.From(int64(id))))
}

// Degree() returns the number of gossip peers of a node
func (t *Topology) Degree(id NodeID) int {
	if !t.HasNode(id) {
		return 0
	}
	return t.g.From(int64(id)).Len()
}

// HasEdge() reports whether a and b gossip directly
func (t *Topology) HasEdge(a, b NodeID) bool { return t.g.HasEdgeBetween(int64(a), int64(b)) }

// Edges() returns every edge ordered by (A, B)
func (t *Topology) Edges() (edges []Edge) {
	for _, e := range graph.EdgesOf(t.g.Edges()) {
		edges = append(edges, NewEdge(NodeID(e.From().ID()), NodeID(e.To().ID())))
	}
	slices.SortFunc(edges, func(x, y Edge) int {
		if x.A != y.A {
			return int(x.A - y.A)
		}
		return int(x.B - y.B)
	})
	return
}

// Reachable() returns every node a fragment submitted at 'from' can reach through gossip, including 'from'
func (t *Topology) Reachable(from NodeID) []NodeID {
	if !t.HasNode(from) {
		return nil
	}
	var (
		reached []graph.Node
		bfs     = traverse.BreadthFirst{Visit: func(n graph.Node) { reached = append(reached, n) }}
	)
	bfs.Walk(t.g, t.g.Node(int64(from)), nil)
	return sortedIDs(reached)
}

// IsReachable() reports whether a gossip path exists between a and b
func (t *Topology) IsReachable(a, b NodeID) bool {
	if !t.HasNode(a) || !t.HasNode(b) {
		return false
	}
	return topo.PathExistsIn(t.g, t.g.Node(int64(a)), t.g.Node(int64(b)))
}

// Components() returns the connected components, each sorted, ordered by their smallest id
func (t *Topology) Components() (components [][]NodeID) {
	for _, c := range topo.ConnectedComponents(t.g) {
		components = append(components, sortedIDs(c))
	}
	slices.SortFunc(components, func(x, y []NodeID) int { return int(x[0] - y[0]) })
	return
}

// IsConnected() reports whether every node can reach every other node
func (t *Topology) IsConnected() bool { return len(t.Components()) <= 1 }

// String() returns a compact adjacency listing
func (t *Topology) String() string {
	var b strings.Builder
	for _, id := range t.Nodes() {
		fmt.Fprintf(&b, "%d: %v\n", id, t.Neighbors(id))
	}
	return b.String()
}

// clone() copies the graph for the next snapshot
func (t *Topology) clone() *Topology {
	g := simple.NewUndirectedGraph()
	graph.Copy(g, t.g)
	return &Topology{g: g, strategy: t.strategy, version: t.version + 1}
}

// checkNewEdge() validates the endpoints of an edge about to be added
func (t *Topology) checkNewEdge(a, b NodeID) lib.ErrorI {
	switch {
	case a == b:
		return lib.ErrSelfLoop(int64(a))
	case !t.HasNode(a):
		return lib.ErrUnknownNode(int64(a))
	case !t.HasNode(b):
		return lib.ErrUnknownNode(int64(b))
	case t.HasEdge(a, b):
		return lib.ErrEdgeExists(int64(a), int64(b))
	}
	return nil
}

func sortedIDs(nodes []graph.Node) []NodeID {
	ids := make([]NodeID, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, NodeID(n.ID()))
	}
	slices.Sort(ids)
	return ids
}
