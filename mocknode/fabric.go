package mocknode

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/canopy-network/mocknet/lib"
	"github.com/canopy-network/mocknet/topology"
	"github.com/jonboulle/clockwork"
	limiter "github.com/mxk/go-flowrate/flowrate"
)

/* This file implements an in-process gossip network between mock nodes */

// Gossiper forwards accepted fragments to the topology neighbors of a node
type Gossiper interface {
	Broadcast(bz []byte, except topology.NodeID) // send to every neighbor but 'except'
	Peers() []topology.NodeID                    // the current neighbors
	Close()                                      // stop sending
}

// Receiver is the inbound side of a node on the gossip network
type Receiver interface {
	Deliver(from topology.NodeID, bz []byte) bool // false when the message was dropped
}

// noPeer is used as 'except' when a fragment did not come from the network
const noPeer = topology.NodeID(-1)

/*
	Fabric connects in-memory nodes along the edges of the current topology snapshot. Every directed
	link is a FIFO queue with a fixed latency and an optional bandwidth limit. The harness swaps the
	snapshot to inject faults; messages in flight on an edge that disappears are lost
*/
type Fabric struct {
	config   lib.GossipConfig
	clock    clockwork.Clock
	log      lib.LoggerI
	mu       sync.RWMutex
	topology *topology.Topology
	nodes    map[topology.NodeID]Receiver
	links    map[[2]topology.NodeID]*link
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	sent     atomic.Uint64
	dropped  atomic.Uint64
}

// message is a fragment in flight on a link
type message struct {
	bz        []byte
	deliverAt time.Time
}

// link is the directed path from -> to
type link struct {
	from, to topology.NodeID
	queue    chan message
	monitor  *limiter.Monitor
}

// NewFabric() creates the network over an initial snapshot
func NewFabric(initial *topology.Topology, config lib.GossipConfig, clock clockwork.Clock, log lib.LoggerI) *Fabric {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if config.QueueSize <= 0 {
		config.QueueSize = lib.DefaultGossipConfig().QueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Fabric{
		config:   config,
		clock:    clock,
		log:      log,
		topology: initial,
		nodes:    make(map[topology.NodeID]Receiver),
		links:    make(map[[2]topology.NodeID]*link),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Attach() connects a node to the fabric and returns its sending side
func (f *Fabric) Attach(id topology.NodeID, r Receiver) (Gossiper, lib.ErrorI) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.topology.HasNode(id) {
		return nil, lib.ErrNodeNotFound(int64(id))
	}
	f.nodes[id] = r
	return &endpoint{fabric: f, id: id}, nil
}

// Detach() disconnects a node, messages addressed to it are dropped
func (f *Fabric) Detach(id topology.NodeID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.nodes, id)
}

// SetTopology() replaces the snapshot the fabric routes on; a snapshot older than the current one is ignored
func (f *Fabric) SetTopology(t *topology.Topology) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.topology != nil && t.Version() < f.topology.Version() {
		f.log.Debugf("Ignoring topology v%d older than v%d", t.Version(), f.topology.Version())
		return false
	}
	f.topology = t
	return true
}

// Topology() returns the snapshot the fabric routes on
func (f *Fabric) Topology() *topology.Topology {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.topology
}

// Sent() returns the number of messages enqueued
func (f *Fabric) Sent() uint64 { return f.sent.Load() }

// Dropped() returns the number of messages lost to full queues, missing edges or detached nodes
func (f *Fabric) Dropped() uint64 { return f.dropped.Load() }

// Close() stops every link
func (f *Fabric) Close() {
	f.cancel()
	f.wg.Wait()
}

// send() enqueues a message on the from -> to link, dropping it if the queue is full
func (f *Fabric) send(from, to topology.NodeID, bz []byte) {
	l := f.link(from, to)
	select {
	case l.queue <- message{bz: bz, deliverAt: f.clock.Now().Add(f.config.Latency())}:
		f.sent.Add(1)
	default:
		f.dropped.Add(1)
		f.log.Warnf("Gossip queue %d->%d is full, dropping message", from, to)
	}
}

// link() returns the link, starting its delivery routine on first use
func (f *Fabric) link(from, to topology.NodeID) *link {
	key := [2]topology.NodeID{from, to}
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.links[key]; ok {
		return l
	}
	l := &link{from: from, to: to, queue: make(chan message, f.config.QueueSize), monitor: limiter.New(0, 0)}
	f.links[key] = l
	f.wg.Add(1)
	go f.run(l)
	return l
}

// run() delivers the messages of a link in order
func (f *Fabric) run(l *link) {
	defer f.wg.Done()
	for {
		select {
		case <-f.ctx.Done():
			return
		case msg := <-l.queue:
			// wait out the latency
			if wait := msg.deliverAt.Sub(f.clock.Now()); wait > 0 {
				select {
				case <-f.ctx.Done():
					return
				case <-f.clock.After(wait):
				}
			}
			f.throttle(l, len(msg.bz))
			f.deliver(l, msg.bz)
		}
	}
}

// throttle() blocks until the link bandwidth allows n more bytes
func (f *Fabric) throttle(l *link, n int) {
	if f.config.MaxBytesPerSecond <= 0 {
		return
	}
	for n > 0 {
		allowed := l.monitor.Limit(n, f.config.MaxBytesPerSecond, true)
		l.monitor.Update(allowed)
		n -= allowed
	}
}

// deliver() hands the message to the receiver if the edge still exists
func (f *Fabric) deliver(l *link, bz []byte) {
	f.mu.RLock()
	connected := f.topology.HasEdge(l.from, l.to)
	receiver, attached := f.nodes[l.to]
	f.mu.RUnlock()
	if !connected || !attached || !receiver.Deliver(l.from, bz) {
		f.dropped.Add(1)
	}
}

// endpoint is a node's sending side of the fabric
type endpoint struct {
	fabric *Fabric
	id     topology.NodeID
	closed atomic.Bool
}

// Broadcast() sends bz to every current neighbor except 'except'
func (e *endpoint) Broadcast(bz []byte, except topology.NodeID) {
	if e.closed.Load() {
		return
	}
	for _, peer := range e.Peers() {
		if peer != except {
			e.fabric.send(e.id, peer, bz)
		}
	}
}

// Peers() returns the neighbors in the current snapshot
func (e *endpoint) Peers() []topology.NodeID { return e.fabric.Topology().Neighbors(e.id) }

// Close() stops sending
func (e *endpoint) Close() { e.closed.Store(true) }
