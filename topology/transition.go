package topology

import (
	"fmt"
	"sync"

	"github.com/canopy-network/mocknet/lib"
	"gonum.org/v1/gonum/graph/simple"
)

// TransitionKind enumerates membership and edge changes
type TransitionKind string

const (
	EdgeDropped TransitionKind = "edge-dropped"
	EdgeAdded   TransitionKind = "edge-added"
	NodeJoined  TransitionKind = "node-joined"
	NodeLeft    TransitionKind = "node-left"
)

// Transition is the explicit event between two snapshots
type Transition struct {
	Kind  TransitionKind `json:"kind"`
	Node  NodeID         `json:"node,omitempty"`  // the joining or leaving node
	Edges []Edge         `json:"edges,omitempty"` // the edges added or removed
	From  uint64         `json:"from"`            // version of the previous snapshot
	To    uint64         `json:"to"`              // version of the resulting snapshot
}

// String() returns a one line description of the event
func (t Transition) String() string {
	switch t.Kind {
	case NodeJoined, NodeLeft:
		return fmt.Sprintf("v%d->v%d %s %d %v", t.From, t.To, t.Kind, t.Node, t.Edges)
	}
	return fmt.Sprintf("v%d->v%d %s %v", t.From, t.To, t.Kind, t.Edges)
}

// DropEdge() returns a snapshot without the edge a-b
func (t *Topology) DropEdge(a, b NodeID) (*Topology, Transition, lib.ErrorI) {
	if !t.HasEdge(a, b) {
		return nil, Transition{}, lib.ErrEdgeNotFound(int64(a), int64(b))
	}
	next := t.clone()
	next.g.RemoveEdge(int64(a), int64(b))
	return next, t.transition(next, EdgeDropped, 0, NewEdge(a, b)), nil
}

// AddEdge() returns a snapshot with the edge a-b
func (t *Topology) AddEdge(a, b NodeID) (*Topology, Transition, lib.ErrorI) {
	if err := t.checkNewEdge(a, b); err != nil {
		return nil, Transition{}, err
	}
	next := t.clone()
	next.g.SetEdge(next.g.NewEdge(simple.Node(a), simple.Node(b)))
	return next, t.transition(next, EdgeAdded, 0, NewEdge(a, b)), nil
}

// Join() returns a snapshot with a new node connected to peers
func (t *Topology) Join(id NodeID, peers ...NodeID) (*Topology, Transition, lib.ErrorI) {
	if t.HasNode(id) {
		return nil, Transition{}, lib.ErrNodeExists(int64(id))
	}
	next := t.clone()
	next.g.AddNode(simple.Node(id))
	var edges []Edge
	for _, p := range peers {
		if err := next.checkNewEdge(id, p); err != nil {
			return nil, Transition{}, err
		}
		next.g.SetEdge(next.g.NewEdge(simple.Node(id), simple.Node(p)))
		edges = append(edges, NewEdge(id, p))
	}
	return next, t.transition(next, NodeJoined, id, edges...), nil
}

// Leave() returns a snapshot without the node and its edges
func (t *Topology) Leave(id NodeID) (*Topology, Transition, lib.ErrorI) {
	if !t.HasNode(id) {
		return nil, Transition{}, lib.ErrUnknownNode(int64(id))
	}
	var edges []Edge
	for _, p := range t.Neighbors(id) {
		edges = append(edges, NewEdge(id, p))
	}
	next := t.clone()
	next.g.RemoveNode(int64(id))
	return next, t.transition(next, NodeLeft, id, edges...), nil
}

func (t *Topology) transition(next *Topology, kind TransitionKind, node NodeID, edges ...Edge) Transition {
	return Transition{Kind: kind, Node: node, Edges: edges, From: t.version, To: next.version}
}

/*
	History is the append-only sequence of snapshots a network went through. Index i of Transitions()
	leads from Snapshots()[i] to Snapshots()[i+1]
*/
type History struct {
	mu          sync.RWMutex
	snapshots   []*Topology
	transitions []Transition
}

// NewHistory() starts a history at the initial snapshot
func NewHistory(initial *Topology) *History {
	return &History{snapshots: []*Topology{initial}}
}

// Current() returns the latest snapshot
func (h *History) Current() *Topology {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshots[len(h.snapshots)-1]
}

// Snapshots() returns every snapshot in order
func (h *History) Snapshots() []*Topology {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]*Topology(nil), h.snapshots...)
}

// Transitions() returns every transition in order
func (h *History) Transitions() []Transition {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Transition(nil), h.transitions...)
}

// DropEdge() records the removal of a-b
func (h *History) DropEdge(a, b NodeID) (*Topology, Transition, lib.ErrorI) {
	return h.apply(func(t *Topology) (*Topology, Transition, lib.ErrorI) { return t.DropEdge(a, b) })
}

// AddEdge() records the addition of a-b
func (h *History) AddEdge(a, b NodeID) (*Topology, Transition, lib.ErrorI) {
	return h.apply(func(t *Topology) (*Topology, Transition, lib.ErrorI) { return t.AddEdge(a, b) })
}

// Join() records a node joining with the given peers
func (h *History) Join(id NodeID, peers ...NodeID) (*Topology, Transition, lib.ErrorI) {
	return h.apply(func(t *Topology) (*Topology, Transition, lib.ErrorI) { return t.Join(id, peers...) })
}

// Leave() records a node leaving
func (h *History) Leave(id NodeID) (*Topology, Transition, lib.ErrorI) {
	return h.apply(func(t *Topology) (*Topology, Transition, lib.ErrorI) { return t.Leave(id) })
}

// apply() derives the next snapshot from the current one under the write lock
func (h *History) apply(change func(t *Topology) (*Topology, Transition, lib.ErrorI)) (*Topology, Transition, lib.ErrorI) {
	h.mu.Lock()
	defer h.mu.Unlock()
	next, transition, err := change(h.snapshots[len(h.snapshots)-1])
	if err != nil {
		return nil, Transition{}, err
	}
	h.snapshots = append(h.snapshots, next)
	h.transitions = append(h.transitions, transition)
	return next, transition, nil
}
