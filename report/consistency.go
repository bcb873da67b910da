package report

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/canopy-network/mocknet/ledger"
	"github.com/canopy-network/mocknet/lib"
	"github.com/canopy-network/mocknet/rpc"
	"github.com/nsf/jsondiff"
	"golang.org/x/sync/errgroup"
)

// Node is the read side of a node handle the assertions need
type Node interface {
	Alias() string
	ChainTip(ctx context.Context) (rpc.BlockID, lib.ErrorI)
	FragmentLogs(ctx context.Context) ([]rpc.FragmentLog, lib.ErrorI)
}

// Divergence is one difference between a node and the reference node
type Divergence struct {
	Node     string `json:"node"`
	Field    string `json:"field"` // tip, fragment:<id> or reachability
	Expected string `json:"expected"`
	Observed string `json:"observed"`
}

// String() returns node: field expected X, observed Y
func (d Divergence) String() string {
	return fmt.Sprintf("%s: %s expected %s, observed %s", d.Node, d.Field, d.Expected, d.Observed)
}

// ConsistencyReport lists every divergence of a network at once
type ConsistencyReport struct {
	Reference   string            `json:"reference"` // the node every other node is compared against
	Nodes       []string          `json:"nodes"`
	Divergences []Divergence      `json:"divergences"`
	Diffs       map[string]string `json:"diffs,omitempty"` // json diff of each divergent node against the reference
}

// Consistent() reports whether no divergence was found
func (r *ConsistencyReport) Consistent() bool { return len(r.Divergences) == 0 }

// Err() returns the consistency error of the report, nil when consistent
func (r *ConsistencyReport) Err() lib.ErrorI {
	if r.Consistent() {
		return nil
	}
	return lib.ErrDivergence(len(r.Divergences))
}

// snapshot is what a node reports about its chain
type snapshot struct {
	Tip       rpc.BlockID         `json:"tip"`
	Fragments []ledger.FragmentID `json:"fragments"` // pending or committed, sorted
	err       lib.ErrorI
}

// AssertConsistent() queries every node concurrently and compares chain tips and fragment sets against the first
// reachable node in alias order. Equality is transitive, so every pair agrees exactly when every node agrees with
// the reference, and a pairwise comparison reports no divergence this one misses. It never stops at the first mismatch
func AssertConsistent(ctx context.Context, nodes []Node) (*ConsistencyReport, lib.ErrorI) {
	if len(nodes) == 0 {
		return nil, lib.ErrEmptyNetwork()
	}
	nodes = slices.Clone(nodes)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Alias() < nodes[j].Alias() })
	snapshots := make([]snapshot, len(nodes))
	var g errgroup.Group
	for i, n := range nodes {
		g.Go(func() error {
			snapshots[i] = snapshotOf(ctx, n)
			return nil
		})
	}
	_ = g.Wait()
	r := &ConsistencyReport{Diffs: make(map[string]string)}
	ref := -1
	for i, n := range nodes {
		r.Nodes = append(r.Nodes, n.Alias())
		if ref == -1 && snapshots[i].err == nil {
			ref = i
		}
	}
	for i, n := range nodes {
		if snapshots[i].err != nil {
			r.Divergences = append(r.Divergences, Divergence{Node: n.Alias(), Field: "reachability", Expected: "reachable", Observed: snapshots[i].err.Error()})
		}
	}
	if ref == -1 {
		return r, nil
	}
	r.Reference = nodes[ref].Alias()
	expected := snapshots[ref]
	for i, n := range nodes {
		if i == ref || snapshots[i].err != nil {
			continue
		}
		found := compare(n.Alias(), expected, snapshots[i])
		if len(found) == 0 {
			continue
		}
		r.Divergences = append(r.Divergences, found...)
		r.Diffs[n.Alias()] = Diff(expected, snapshots[i])
	}
	return r, nil
}

// snapshotOf() reads the tip and fragment set of a node
func snapshotOf(ctx context.Context, n Node) (s snapshot) {
	if s.Tip, s.err = n.ChainTip(ctx); s.err != nil {
		return
	}
	logs, err := n.FragmentLogs(ctx)
	if err != nil {
		s.err = err
		return
	}
	for _, l := range logs {
		if l.Status != rpc.StatusRejected {
			s.Fragments = append(s.Fragments, l.ID)
		}
	}
	slices.Sort(s.Fragments)
	return
}

// compare() lists the divergences of observed from expected
func compare(node string, expected, observed snapshot) (found []Divergence) {
	if !slices.Equal(expected.Tip.Hash, observed.Tip.Hash) {
		found = append(found, Divergence{Node: node, Field: "tip", Expected: expected.Tip.String(), Observed: observed.Tip.String()})
	}
	have := make(map[ledger.FragmentID]struct{}, len(observed.Fragments))
	for _, id := range observed.Fragments {
		have[id] = struct{}{}
	}
	for _, id := range expected.Fragments {
		if _, ok := have[id]; ok {
			delete(have, id)
			continue
		}
		found = append(found, Divergence{Node: node, Field: "fragment:" + string(id), Expected: "present", Observed: "missing"})
	}
	extra := make([]ledger.FragmentID, 0, len(have))
	for id := range have {
		extra = append(extra, id)
	}
	slices.Sort(extra)
	for _, id := range extra {
		found = append(found, Divergence{Node: node, Field: "fragment:" + string(id), Expected: "absent", Observed: "present"})
	}
	return
}

// Diff() renders a plain text json diff of two values
func Diff(expected, observed any) string {
	a, err := lib.MarshalJSON(expected)
	if err != nil {
		return err.Error()
	}
	b, err := lib.MarshalJSON(observed)
	if err != nil {
		return err.Error()
	}
	opts := jsondiff.DefaultJSONOptions()
	_, diff := jsondiff.Compare(a, b, &opts)
	return diff
}
