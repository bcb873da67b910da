package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/canopy-network/mocknet/lib"
	"github.com/canopy-network/mocknet/node"
	"github.com/canopy-network/mocknet/report"
	"github.com/canopy-network/mocknet/rpc"
	"golang.org/x/sync/errgroup"
)

/* This file implements the read only 'show' views over the nodes of a network */

// Inspectable is a node the show views can read
type Inspectable interface {
	Alias() string
	ChainTip(ctx context.Context) (rpc.BlockID, lib.ErrorI)
	FragmentLogs(ctx context.Context) ([]rpc.FragmentLog, lib.ErrorI)
	Stats(ctx context.Context) (rpc.NodeStats, lib.ErrorI)
	Logs(filter lib.LogFilter) []string
}

var _ Inspectable = (*node.Handle)(nil)

// Inspector answers the show views for a set of nodes
type Inspector struct {
	nodes []Inspectable
}

// NewInspector() creates an inspector over the nodes
func NewInspector(nodes ...Inspectable) *Inspector { return &Inspector{nodes: nodes} }

// Inspector() returns an inspector over the started nodes of the network
func (n *Network) Inspector() *Inspector {
	handles := n.Handles()
	nodes := make([]Inspectable, len(handles))
	for i, h := range handles {
		nodes[i] = h
	}
	return NewInspector(nodes...)
}

// NodeStatus is one row of the status view
type NodeStatus struct {
	Alias  string      `json:"alias"`
	State  string      `json:"state"`
	Tip    rpc.BlockID `json:"tip"`
	Peers  int         `json:"peers"`
	Uptime uint64      `json:"uptimeS"`
}

// Statuses is the status view
type Statuses []NodeStatus

// Table() lays the status view out one node per row
func (s Statuses) Table() report.Table {
	t := report.Table{Header: []string{"ALIAS", "STATE", "TIP", "HEIGHT", "PEERS", "UPTIME"}}
	for _, n := range s {
		t.Rows = append(t.Rows, []string{n.Alias, n.State, n.Tip.String(), report.Number(n.Tip.Height),
			strconv.Itoa(n.Peers), (time.Duration(n.Uptime) * time.Second).String()})
	}
	return t
}

// FragmentCount is one row of the fragment-count view
type FragmentCount struct {
	Alias    string `json:"alias"`
	Pending  int    `json:"pending"`
	InABlock int    `json:"inABlock"`
	Rejected int    `json:"rejected"`
}

// Total() returns every fragment the node recorded
func (c FragmentCount) Total() int { return c.Pending + c.InABlock + c.Rejected }

// FragmentCounts is the fragment-count view
type FragmentCounts []FragmentCount

// Table() lays the counts out one node per row
func (c FragmentCounts) Table() report.Table {
	t := report.Table{Header: []string{"ALIAS", "PENDING", "IN A BLOCK", "REJECTED", "TOTAL"}}
	for _, n := range c {
		t.Rows = append(t.Rows, []string{n.Alias, report.Number(n.Pending), report.Number(n.InABlock), report.Number(n.Rejected), report.Number(n.Total())})
	}
	return t
}

// NodeFragments is the fragment log of one node
type NodeFragments struct {
	Alias     string            `json:"alias"`
	Fragments []rpc.FragmentLog `json:"fragments"`
}

// Fragments is the fragments view
type Fragments []NodeFragments

// Table() lays the logs out one fragment per row
func (f Fragments) Table() report.Table {
	t := report.Table{Header: []string{"ALIAS", "FRAGMENT", "KIND", "STATUS", "ORIGIN", "BLOCK", "REASON"}}
	for _, n := range f {
		for _, l := range n.Fragments {
			block := ""
			if l.Block != nil {
				block = l.Block.Date.String()
			}
			t.Rows = append(t.Rows, []string{n.Alias, shortID(l.ID), l.Kind.String(), string(l.Status), string(l.Origin), block, firstLine(l.Reason)})
		}
	}
	return t
}

// BlockHeight is one row of the block-height view
type BlockHeight struct {
	Alias  string `json:"alias"`
	Height uint64 `json:"height"`
	Date   string `json:"date"`
}

// BlockHeights is the block-height view
type BlockHeights []BlockHeight

// Table() lays the heights out one node per row
func (b BlockHeights) Table() report.Table {
	t := report.Table{Header: []string{"ALIAS", "HEIGHT", "DATE"}}
	for _, n := range b {
		t.Rows = append(t.Rows, []string{n.Alias, report.Number(n.Height), n.Date})
	}
	return t
}

// Stats is the stats view
type Stats []rpc.NodeStats

// Table() lays the stats out one node per row
func (s Stats) Table() report.Table {
	t := report.Table{Header: []string{"ALIAS", "POOL", "POOL BYTES", "RECEIVED", "REJECTED", "PEERS", "CPU", "RSS"}}
	for _, n := range s {
		t.Rows = append(t.Rows, []string{n.Alias, report.Number(n.PoolCount), report.Number(n.PoolBytes), report.Number(n.FragmentsReceived),
			report.Number(n.FragmentsRejected), strconv.Itoa(n.Peers), fmt.Sprintf("%.1f%%", n.ProcessCPUPercent), report.Number(n.ProcessRSSBytes)})
	}
	return t
}

// NodeLogs is the filtered output of one node
type NodeLogs struct {
	Alias string   `json:"alias"`
	Lines []string `json:"lines"`
}

// Logs is the logs view
type Logs []NodeLogs

// Table() prefixes every line with its node
func (l Logs) Table() report.Table {
	t := report.Table{}
	for _, n := range l {
		for _, line := range n.Lines {
			t.Rows = append(t.Rows, []string{n.Alias, line})
		}
	}
	return t
}

// Status() returns the state and tip of the nodes matching alias, every node when alias is empty
func (i *Inspector) Status(ctx context.Context, alias string) (Statuses, error) {
	return collect(ctx, i, alias, func(ctx context.Context, n Inspectable) (NodeStatus, lib.ErrorI) {
		stats, err := n.Stats(ctx)
		if err != nil {
			return NodeStatus{}, err
		}
		return NodeStatus{Alias: n.Alias(), State: stats.State, Tip: stats.Tip, Peers: stats.Peers, Uptime: stats.UptimeS}, nil
	})
}

// FragmentCount() counts the fragments of each node by status
func (i *Inspector) FragmentCount(ctx context.Context, alias string) (FragmentCounts, error) {
	return collect(ctx, i, alias, func(ctx context.Context, n Inspectable) (FragmentCount, lib.ErrorI) {
		logs, err := n.FragmentLogs(ctx)
		if err != nil {
			return FragmentCount{}, err
		}
		c := FragmentCount{Alias: n.Alias()}
		for _, l := range logs {
			switch l.Status {
			case rpc.StatusPending:
				c.Pending++
			case rpc.StatusInABlock:
				c.InABlock++
			case rpc.StatusRejected:
				c.Rejected++
			}
		}
		return c, nil
	})
}

// Fragments() returns the fragment logs of each node, oldest first
func (i *Inspector) Fragments(ctx context.Context, alias string) (Fragments, error) {
	return collect(ctx, i, alias, func(ctx context.Context, n Inspectable) (NodeFragments, lib.ErrorI) {
		logs, err := n.FragmentLogs(ctx)
		if err != nil {
			return NodeFragments{}, err
		}
		slices.SortStableFunc(logs, func(a, b rpc.FragmentLog) int { return a.ReceivedAt.Compare(b.ReceivedAt) })
		return NodeFragments{Alias: n.Alias(), Fragments: logs}, nil
	})
}

// BlockHeight() returns the chain height of each node
func (i *Inspector) BlockHeight(ctx context.Context, alias string) (BlockHeights, error) {
	return collect(ctx, i, alias, func(ctx context.Context, n Inspectable) (BlockHeight, lib.ErrorI) {
		tip, err := n.ChainTip(ctx)
		if err != nil {
			return BlockHeight{}, err
		}
		return BlockHeight{Alias: n.Alias(), Height: tip.Height, Date: tip.Date.String()}, nil
	})
}

// Stats() returns the summary of each node
func (i *Inspector) Stats(ctx context.Context, alias string) (Stats, error) {
	return collect(ctx, i, alias, func(ctx context.Context, n Inspectable) (rpc.NodeStats, lib.ErrorI) {
		stats, err := n.Stats(ctx)
		if err != nil {
			return rpc.NodeStats{}, err
		}
		stats.Alias = n.Alias()
		return stats, nil
	})
}

// Logs() returns the captured output of each node that passes the filter
func (i *Inspector) Logs(alias string, filter lib.LogFilter) Logs {
	var out Logs
	for _, n := range i.filter(alias) {
		out = append(out, NodeLogs{Alias: n.Alias(), Lines: filter.Apply(n.Logs(lib.LogFilter{}))})
	}
	return out
}

// filter() returns the nodes with the alias, or every node
func (i *Inspector) filter(alias string) []Inspectable {
	if alias == "" {
		return i.nodes
	}
	var out []Inspectable
	for _, n := range i.nodes {
		if n.Alias() == alias {
			out = append(out, n)
		}
	}
	return out
}

// collect() queries the nodes concurrently; an unreachable node is reported without hiding the others
func collect[T any](ctx context.Context, i *Inspector, alias string, query func(context.Context, Inspectable) (T, lib.ErrorI)) ([]T, error) {
	nodes := i.filter(alias)
	if len(nodes) == 0 {
		return nil, lib.ErrUnknownAlias(alias)
	}
	rows, errs, ok := make([]T, len(nodes)), make([]error, len(nodes)), make([]bool, len(nodes))
	var g errgroup.Group
	for j, n := range nodes {
		g.Go(func() error {
			row, err := query(ctx, n)
			if err != nil {
				errs[j] = fmt.Errorf("%s: %w", n.Alias(), err)
				return nil
			}
			rows[j], ok[j] = row, true
			return nil
		})
	}
	_ = g.Wait()
	var out []T
	for j := range rows {
		if ok[j] {
			out = append(out, rows[j])
		}
	}
	return out, errors.Join(errs...)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// remoteNode reads a node of a running network through its REST interface and its log file
type remoteNode struct {
	identity node.Identity
	client   *rpc.Client
}

func (r *remoteNode) Alias() string { return r.identity.Alias }

func (r *remoteNode) ChainTip(ctx context.Context) (rpc.BlockID, lib.ErrorI) { return r.client.Tip(ctx) }

func (r *remoteNode) FragmentLogs(ctx context.Context) ([]rpc.FragmentLog, lib.ErrorI) {
	return r.client.FragmentLogs(ctx)
}

func (r *remoteNode) Stats(ctx context.Context) (rpc.NodeStats, lib.ErrorI) { return r.client.Stats(ctx) }

// Logs() reads the log file the node binary writes under its data directory
func (r *remoteNode) Logs(filter lib.LogFilter) []string {
	bz, err := os.ReadFile(filepath.Join(r.identity.DataDirPath, lib.LogDirectory, lib.LogFileName))
	if err != nil {
		return nil
	}
	buf := lib.NewLogBuffer(logCapacity)
	_, _ = buf.Write(bz)
	return filter.Apply(buf.Lines())
}

// logCapacity bounds the lines read back from a node log file
const logCapacity = 10_000

// NewRemoteInspector() inspects the process network whose keys file is in dataDirPath
func NewRemoteInspector(dataDirPath string, timeout time.Duration) (*Inspector, func(), lib.ErrorI) {
	var identities []node.Identity
	if err := lib.NewObjectFromFile(&identities, filepath.Join(dataDirPath, lib.KeysFilePath)); err != nil {
		return nil, nil, err
	}
	nodes := make([]Inspectable, 0, len(identities))
	clients := make([]*rpc.Client, 0, len(identities))
	for _, identity := range identities {
		client := rpc.NewClient("http://"+identity.RESTAddress, identity.GRPCAddress, timeout)
		clients = append(clients, client)
		nodes = append(nodes, &remoteNode{identity: identity, client: client})
	}
	closer := func() {
		for _, c := range clients {
			c.Close()
		}
	}
	return NewInspector(nodes...), closer, nil
}
