package mocknode

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/canopy-network/mocknet/ledger"
	"github.com/canopy-network/mocknet/lib"
	"github.com/canopy-network/mocknet/lib/crypto"
	"github.com/canopy-network/mocknet/rpc"
	"github.com/canopy-network/mocknet/store"
	"github.com/canopy-network/mocknet/topology"
	"github.com/jonboulle/clockwork"
)

/*
	A mock node stands in for a real node binary: it validates fragments against its own ledger
	snapshot, keeps the valid ones in a fee ordered pool, gossips them to its topology neighbors
	and moves them into a block every slot. There is no consensus: every node cuts its own blocks
*/

var _ rpc.NodeAPI = &Node{} // the REST server serves a mock node

const maxDeferred = 1000 // bound on fragments parked while waiting for an earlier spending counter

// Config is the configuration of a single mock node
type Config struct {
	ID          topology.NodeID   // identity in the topology
	Alias       string            // human readable name
	DataDirPath string            // fragment log directory, empty keeps it in memory
	Mempool     lib.MempoolConfig // fragment pool bounds
	QueueSize   int               // inbound gossip buffer
}

// Node is a single mock node
type Node struct {
	config  Config
	genesis *ledger.State
	clock   clockwork.Clock
	log     lib.LoggerI
	pool    lib.Mempool
	store   lib.StoreI
	gossip  Gossiper

	mu        sync.Mutex
	state     *ledger.State // genesis plus every accepted fragment
	logs      map[ledger.FragmentID]*rpc.FragmentLog
	order     []ledger.FragmentID // log insertion order
	deferred  []inbound           // fragments whose spending counter is ahead of the ledger
	committed [][]byte            // ids of committed fragments
	tip       rpc.BlockID
	seq       uint64 // fragments persisted
	resumed   chan struct{}
	startedAt time.Time

	paused   atomic.Bool
	running  atomic.Bool
	received atomic.Uint64
	rejected atomic.Uint64

	inbox  chan inbound
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
	closeErr  lib.ErrorI
}

// inbound is a fragment received from a peer
type inbound struct {
	from topology.NodeID
	bz   []byte
}

// New() creates a stopped node on top of the genesis snapshot
func New(config Config, genesis *ledger.State, clock clockwork.Clock, log lib.LoggerI) (*Node, lib.ErrorI) {
	if genesis == nil {
		return nil, lib.ErrInvalidGenesis("missing genesis state")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if config.QueueSize <= 0 {
		config.QueueSize = lib.DefaultGossipConfig().QueueSize
	}
	if config.Mempool.MaxFragmentCount == 0 {
		config.Mempool = lib.DefaultMempoolConfig()
	}
	db, err := store.New(config.DataDirPath, log)
	if err != nil {
		return nil, err
	}
	return &Node{
		config:  config,
		genesis: genesis,
		clock:   clock,
		log:     log,
		pool:    lib.NewMempool(config.Mempool),
		store:   db,
		state:   genesis,
		logs:    make(map[ledger.FragmentID]*rpc.FragmentLog),
		tip:     rpc.BlockID{Hash: genesis.GenesisHash()},
		inbox:   make(chan inbound, config.QueueSize),
	}, nil
}

// Start() replays the persisted fragment log and starts gossip processing and block production
func (n *Node) Start(gossip Gossiper) lib.ErrorI {
	if n.running.Swap(true) {
		return lib.ErrAlreadyStarted(n.config.Alias)
	}
	if gossip == nil {
		gossip = noGossip{}
	}
	n.gossip = gossip
	if err := n.replay(); err != nil {
		n.running.Store(false)
		_ = n.closeStore()
		return err
	}
	n.mu.Lock()
	n.startedAt = n.clock.Now()
	n.mu.Unlock()
	n.ctx, n.cancel = context.WithCancel(context.Background())
	n.wg.Add(2)
	go n.receiveLoop()
	go n.blockLoop()
	n.log.Infof("Mock node %s started at tip %s", n.config.Alias, n.Tip())
	return nil
}

// Stop() halts the node and closes its fragment log, also when the node never started
func (n *Node) Stop() lib.ErrorI {
	if !n.running.Swap(false) {
		return n.closeStore()
	}
	n.gossip.Close()
	// a paused node must not block shutdown
	n.Resume()
	n.cancel()
	n.wg.Wait()
	n.log.Infof("Mock node %s stopped", n.config.Alias)
	return n.closeStore()
}

// closeStore() releases the fragment log and its directory lock exactly once
func (n *Node) closeStore() lib.ErrorI {
	n.closeOnce.Do(func() { n.closeErr = n.store.Close() })
	return n.closeErr
}

// ID() returns the topology identity of the node
func (n *Node) ID() topology.NodeID { return n.config.ID }

// Alias() returns the name of the node
func (n *Node) Alias() string { return n.config.Alias }

// Healthy() reports whether the node is serving
func (n *Node) Healthy() bool { return n.running.Load() }

// Pause() freezes the node: gossip is buffered, blocks are not produced and submissions are refused
func (n *Node) Pause() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.paused.Swap(true) {
		return
	}
	n.resumed = make(chan struct{})
}

// Resume() unfreezes a paused node
func (n *Node) Resume() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.paused.Swap(false) {
		return
	}
	close(n.resumed)
	n.resumed = nil
}

// Paused() reports whether the node is frozen
func (n *Node) Paused() bool { return n.paused.Load() }

// Submit() handles a fragment sent by a client
func (n *Node) Submit(bz []byte) rpc.SubmitResult {
	if !n.running.Load() || n.paused.Load() {
		return rpc.SubmitResult{Status: rpc.Rejected, Reason: rpc.ConnRefused, Message: fmt.Sprintf("node %s is not serving", n.config.Alias)}
	}
	f, err := ledger.DecodeFragment(bz)
	if err != nil {
		n.rejected.Add(1)
		return rpc.SubmitResult{Status: rpc.Rejected, Reason: rpc.ValidationFailed, Message: err.Error()}
	}
	result := n.accept(f, bz, rpc.FromRest, noPeer)
	if result.IsAccepted() {
		n.retryDeferred()
	}
	return result
}

// Deliver() queues a gossiped fragment, dropping it when the inbox is full
func (n *Node) Deliver(from topology.NodeID, bz []byte) bool {
	select {
	case n.inbox <- inbound{from: from, bz: bz}:
		return true
	default:
		return false
	}
}

// Receive() is Deliver() for the REST gossip route
func (n *Node) Receive(from int64, bz []byte) bool { return n.Deliver(topology.NodeID(from), bz) }

// SetPeers() replaces the peers of an HTTP gossiping node
func (n *Node) SetPeers(peers []rpc.Peer) lib.ErrorI {
	g, ok := n.gossip.(interface{ SetPeers([]rpc.Peer) })
	if !ok {
		return lib.ErrInvalidArgument()
	}
	g.SetPeers(peers)
	n.log.Infof("Gossip peers of %s set to %v", n.config.Alias, peers)
	return nil
}

// Tip() returns the current chain tip
func (n *Node) Tip() rpc.BlockID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.tip
}

// FragmentLogs() returns every fragment record in arrival order
func (n *Node) FragmentLogs() []rpc.FragmentLog {
	n.mu.Lock()
	defer n.mu.Unlock()
	logs := make([]rpc.FragmentLog, 0, len(n.order))
	for _, id := range n.order {
		logs = append(logs, *n.logs[id])
	}
	return logs
}

// FragmentLog() returns the record of one fragment
func (n *Node) FragmentLog(id ledger.FragmentID) (rpc.FragmentLog, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	l, ok := n.logs[id]
	if !ok {
		return rpc.FragmentLog{}, false
	}
	return *l, true
}

// Account() returns the balance view of an address
func (n *Node) Account(address string) (rpc.AccountState, lib.ErrorI) {
	a, err := crypto.DecodeAddress(address)
	if err != nil {
		return rpc.AccountState{}, err
	}
	n.mu.Lock()
	acc, _ := n.state.Account(a)
	n.mu.Unlock()
	return rpc.AccountState{Address: a.String(), Value: acc.Value, Counter: acc.Counter, Delegation: acc.Delegation}, nil
}

// State() returns the ledger snapshot including pending fragments
func (n *Node) State() *ledger.State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Stats() summarizes the node
func (n *Node) Stats() rpc.NodeStats {
	n.mu.Lock()
	tip, startedAt := n.tip, n.startedAt
	n.mu.Unlock()
	status := "running"
	switch {
	case !n.running.Load():
		status = "stopped"
	case n.paused.Load():
		status = "paused"
	}
	var uptime uint64
	if !startedAt.IsZero() {
		uptime = uint64(n.clock.Since(startedAt).Seconds())
	}
	var peers int
	if n.gossip != nil {
		peers = len(n.gossip.Peers())
	}
	return rpc.NodeStats{
		Alias:             n.config.Alias,
		State:             status,
		UptimeS:           uptime,
		Tip:               tip,
		LastBlockDate:     tip.Date,
		PoolCount:         n.pool.Count(),
		PoolBytes:         n.pool.Bytes(),
		FragmentsReceived: n.received.Load(),
		FragmentsRejected: n.rejected.Load(),
		Peers:             peers,
	}
}

// accept() validates a fragment against the ledger and the pool, records it and gossips it onward
func (n *Node) accept(f *ledger.Fragment, bz []byte, origin rpc.FragmentOrigin, from topology.NodeID) (result rpc.SubmitResult) {
	id := f.ID()
	result = rpc.SubmitResult{ID: id, Status: rpc.Rejected, Reason: rpc.ValidationFailed}
	n.mu.Lock()
	if _, seen := n.logs[id]; seen {
		n.mu.Unlock()
		result.Message = lib.ErrDuplicateFragment(string(id)).Error()
		return
	}
	now := n.clock.Now()
	next, err := n.state.Apply(f)
	if err != nil {
		// a gossiped fragment may overtake the one spending the previous counter
		if origin == rpc.FromNetwork && lib.HasCode(err, lib.ConstructionModule, lib.CodeWrongSpendingCounter) {
			n.park(inbound{from: from, bz: bz})
			n.mu.Unlock()
			result.Message = err.Error()
			return
		}
		n.record(id, f.Kind(), origin, now, rpc.StatusRejected, err.Error())
		n.mu.Unlock()
		n.rejected.Add(1)
		n.log.Warnf("Rejected fragment %s from %s: %s", id, origin, err.Error())
		result.Message = err.Error()
		return
	}
	if err = n.pool.AddFragment(string(id), bz, f.Fee()); err != nil {
		n.record(id, f.Kind(), origin, now, rpc.StatusRejected, err.Error())
		n.mu.Unlock()
		n.rejected.Add(1)
		if lib.HasCode(err, lib.MempoolModule, lib.CodePoolFull) {
			result.Reason = rpc.PoolFull
		}
		n.log.Warnf("Fragment %s not pooled: %s", id, err.Error())
		result.Message = err.Error()
		return
	}
	n.state = next
	n.record(id, f.Kind(), origin, now, rpc.StatusPending, "")
	if e := n.persist(bz, origin, now); e != nil {
		n.log.Errorf("Persisting fragment %s failed: %s", id, e.Error())
	}
	n.mu.Unlock()
	n.received.Add(1)
	n.log.Debugf("Accepted fragment %s from %s", id, origin)
	n.gossip.Broadcast(bz, from)
	return rpc.SubmitResult{ID: id, Status: rpc.Accepted}
}

// record() adds a fragment record; the caller holds the lock
func (n *Node) record(id ledger.FragmentID, kind ledger.FragmentKind, origin rpc.FragmentOrigin, at time.Time, status rpc.FragmentStatus, reason string) {
	n.logs[id] = &rpc.FragmentLog{ID: id, Kind: kind, Status: status, Origin: origin, Reason: reason, ReceivedAt: at, LastUpdatedAt: at}
	n.order = append(n.order, id)
}

// park() holds a fragment for a later retry; the caller holds the lock
func (n *Node) park(in inbound) {
	if len(n.deferred) >= maxDeferred {
		n.deferred = n.deferred[1:]
	}
	n.deferred = append(n.deferred, in)
}

// retryDeferred() re-evaluates parked fragments until none of them is accepted
func (n *Node) retryDeferred() {
	for progress := true; progress; {
		n.mu.Lock()
		parked := n.deferred
		n.deferred = nil
		n.mu.Unlock()
		progress = false
		for _, in := range parked {
			f, err := ledger.DecodeFragment(in.bz)
			if err != nil {
				continue
			}
			if n.accept(f, in.bz, rpc.FromNetwork, in.from).IsAccepted() {
				progress = true
			}
		}
	}
}

// receiveLoop() processes gossip in arrival order, holding it while paused
func (n *Node) receiveLoop() {
	defer n.wg.Done()
	for {
		select {
		case <-n.ctx.Done():
			return
		case in := <-n.inbox:
			if !n.waitWhilePaused() {
				return
			}
			f, err := ledger.DecodeFragment(in.bz)
			if err != nil {
				n.log.Debugf("Dropping undecodable gossip from %d: %s", in.from, err.Error())
				continue
			}
			if n.accept(f, in.bz, rpc.FromNetwork, in.from).IsAccepted() {
				n.retryDeferred()
			}
		}
	}
}

// waitWhilePaused() blocks until the node is resumed, false if it was stopped instead
func (n *Node) waitWhilePaused() bool {
	n.mu.Lock()
	resumed := n.resumed
	n.mu.Unlock()
	if resumed == nil {
		return true
	}
	select {
	case <-resumed:
		return true
	case <-n.ctx.Done():
		return false
	}
}

// noGossip is the gossiper of an isolated node
type noGossip struct{}

func (noGossip) Broadcast([]byte, topology.NodeID) {}
func (noGossip) Peers() []topology.NodeID         { return nil }
func (noGossip) Close()                           {}

// sortedIDs() orders ids bytewise
func sortedIDs(ids [][]byte) [][]byte {
	sorted := slices.Clone(ids)
	slices.SortFunc(sorted, func(a, b []byte) int { return slices.Compare(a, b) })
	return sorted
}
