package mocknode

import (
	"context"
	"sync"
	"time"

	"github.com/canopy-network/mocknet/lib"
	"github.com/canopy-network/mocknet/rpc"
	"github.com/canopy-network/mocknet/topology"
)

/* This file implements gossip between mock nodes running as separate processes */

// HTTPGossiper forwards fragments to peer processes through their REST gossip route
type HTTPGossiper struct {
	self    topology.NodeID
	timeout time.Duration
	log     lib.LoggerI
	mu      sync.RWMutex
	peers   map[topology.NodeID]*rpc.Client
	queue   chan outbound
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// outbound is a fragment waiting to be forwarded
type outbound struct {
	bz     []byte
	except topology.NodeID
}

var _ Gossiper = &HTTPGossiper{}

// NewHTTPGossiper() starts a gossiper with no peers; the harness sets them through SetPeers()
func NewHTTPGossiper(self topology.NodeID, config lib.GossipConfig, timeout time.Duration, log lib.LoggerI) *HTTPGossiper {
	if config.QueueSize <= 0 {
		config.QueueSize = lib.DefaultGossipConfig().QueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	g := &HTTPGossiper{
		self:    self,
		timeout: timeout,
		log:     log,
		peers:   make(map[topology.NodeID]*rpc.Client),
		queue:   make(chan outbound, config.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
	g.wg.Add(1)
	go g.run()
	return g
}

// SetPeers() replaces the neighbor set
func (g *HTTPGossiper) SetPeers(peers []rpc.Peer) {
	next := make(map[topology.NodeID]*rpc.Client, len(peers))
	for _, p := range peers {
		next[topology.NodeID(p.ID)] = rpc.NewClient(p.URL, "", g.timeout)
	}
	g.mu.Lock()
	old := g.peers
	g.peers = next
	g.mu.Unlock()
	for _, c := range old {
		c.Close()
	}
}

// Broadcast() queues bz for every peer but 'except', dropping it when the queue is full
func (g *HTTPGossiper) Broadcast(bz []byte, except topology.NodeID) {
	select {
	case g.queue <- outbound{bz: bz, except: except}:
	default:
		g.log.Warnf("Gossip queue of %d is full, dropping message", g.self)
	}
}

// Peers() returns the current neighbors
func (g *HTTPGossiper) Peers() []topology.NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]topology.NodeID, 0, len(g.peers))
	for id := range g.peers {
		ids = append(ids, id)
	}
	return ids
}

// Close() stops forwarding
func (g *HTTPGossiper) Close() {
	g.cancel()
	g.wg.Wait()
}

// run() forwards queued fragments in order
func (g *HTTPGossiper) run() {
	defer g.wg.Done()
	for {
		select {
		case <-g.ctx.Done():
			return
		case msg := <-g.queue:
			g.mu.RLock()
			peers := make(map[topology.NodeID]*rpc.Client, len(g.peers))
			for id, c := range g.peers {
				peers[id] = c
			}
			g.mu.RUnlock()
			for id, c := range peers {
				if id == msg.except {
					continue
				}
				if err := c.Gossip(g.ctx, int64(g.self), msg.bz); err != nil {
					g.log.Debugf("Gossip %d->%d failed: %s", g.self, id, err.Error())
				}
			}
		}
	}
}
