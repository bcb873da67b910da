package mocknode

import (
	"fmt"
	"time"

	"github.com/canopy-network/mocknet/ledger"
	"github.com/canopy-network/mocknet/lib"
	"github.com/canopy-network/mocknet/lib/crypto"
	"github.com/canopy-network/mocknet/rpc"
)

/* This file implements block production and the persisted fragment log of a mock node */

const (
	fragmentPrefix = "s/" // s/<sequence> -> storedFragment
	blockPrefix    = "b/" // b/<height> -> storedBlock
)

// storedFragment is an accepted fragment in the persisted log
type storedFragment struct {
	Origin     rpc.FragmentOrigin `json:"origin"`
	Fragment   lib.HexBytes       `json:"fragment"`
	ReceivedAt time.Time          `json:"receivedAt"`
}

// storedBlock is a non-empty block in the persisted log
type storedBlock struct {
	Height    uint64              `json:"height"`
	Date      ledger.BlockDate    `json:"date"`
	Fragments []ledger.FragmentID `json:"fragments"`
}

// blockLoop() cuts a block at every slot boundary
func (n *Node) blockLoop() {
	defer n.wg.Done()
	ticker := n.clock.NewTicker(n.genesis.Parameters().SlotDuration)
	defer ticker.Stop()
	for {
		select {
		case <-n.ctx.Done():
			return
		case now := <-ticker.Chan():
			// a frozen node produces nothing
			if n.paused.Load() {
				continue
			}
			n.produceBlock(n.genesis.DateAt(now))
		}
	}
}

// produceBlock() moves the best fragments of the pool into a block at date and advances the tip
func (n *Node) produceBlock(date ledger.BlockDate) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.tip.Date.Before(date) && n.tip.Height != 0 {
		return
	}
	items := n.pool.GetFragments(n.blockCapacity(), n.config.Mempool.MaxTotalBytes)
	height := n.heightOf(date)
	ids := make([]ledger.FragmentID, 0, len(items))
	for _, item := range items {
		n.pool.DeleteFragment(item.ID)
		id := ledger.FragmentID(item.ID)
		ids = append(ids, id)
		n.commit(id, height, date)
	}
	n.state = n.state.WithDate(date)
	n.setTip(height, date)
	if len(ids) == 0 {
		return
	}
	n.log.Debugf("Node %s produced block %d at %s with %d fragments", n.config.Alias, height, date, len(ids))
	bz, err := lib.MarshalJSON(storedBlock{Height: height, Date: date, Fragments: ids})
	if err == nil {
		err = n.store.Set(blockKey(height), bz)
	}
	if err != nil {
		n.log.Errorf("Persisting block %d failed: %s", height, err.Error())
	}
}

// commit() marks a fragment as in a block; the caller holds the lock
func (n *Node) commit(id ledger.FragmentID, height uint64, date ledger.BlockDate) {
	n.committed = append(n.committed, []byte(id))
	l, ok := n.logs[id]
	if !ok {
		return
	}
	l.Status = rpc.StatusInABlock
	l.Block = &rpc.BlockRef{Height: height, Date: date}
	l.LastUpdatedAt = n.clock.Now()
}

// setTip() recomputes the tip over the committed fragment set; the caller holds the lock
func (n *Node) setTip(height uint64, date ledger.BlockDate) {
	hash := n.genesis.GenesisHash()
	if len(n.committed) != 0 {
		hash, _ = crypto.MerkleTree(sortedIDs(n.committed))
	}
	n.tip = rpc.BlockID{Hash: hash, Height: height, Date: date, FragmentCount: uint64(len(n.committed))}
}

// heightOf() numbers slots from block0 so heights are comparable across nodes
func (n *Node) heightOf(date ledger.BlockDate) uint64 {
	return uint64(date.Epoch)*uint64(n.genesis.Parameters().SlotsPerEpoch) + uint64(date.Slot) + 1
}

// blockCapacity() is the tighter of the ledger and the pool limits
func (n *Node) blockCapacity() int {
	limit := int(n.genesis.Parameters().MaxFragmentsPerBlock)
	if c := n.config.Mempool.MaxFragmentsPerBlock; c > 0 && (limit == 0 || c < limit) {
		limit = c
	}
	if limit == 0 {
		limit = n.pool.Count()
	}
	return limit
}

// persist() appends an accepted fragment to the log; the caller holds the lock
func (n *Node) persist(bz []byte, origin rpc.FragmentOrigin, at time.Time) lib.ErrorI {
	value, err := lib.MarshalJSON(storedFragment{Origin: origin, Fragment: bz, ReceivedAt: at})
	if err != nil {
		return err
	}
	n.seq++
	return n.store.Set(fragmentKey(n.seq), value)
}

// replay() rebuilds the ledger, the pool and the tip from the persisted log
func (n *Node) replay() lib.ErrorI {
	n.mu.Lock()
	defer n.mu.Unlock()
	err := n.store.Iterate([]byte(fragmentPrefix), func(_, value []byte) error {
		stored := new(storedFragment)
		if e := lib.UnmarshalJSON(value, stored); e != nil {
			return e
		}
		f, e := ledger.DecodeFragment(stored.Fragment)
		if e != nil {
			return e
		}
		next, e := n.state.Apply(f)
		if e != nil {
			return e
		}
		n.state, n.seq = next, n.seq+1
		n.record(f.ID(), f.Kind(), stored.Origin, stored.ReceivedAt, rpc.StatusPending, "")
		return n.pool.AddFragment(string(f.ID()), stored.Fragment, f.Fee())
	})
	if err != nil {
		return err
	}
	var last *storedBlock
	err = n.store.Iterate([]byte(blockPrefix), func(_, value []byte) error {
		block := new(storedBlock)
		if e := lib.UnmarshalJSON(value, block); e != nil {
			return e
		}
		for _, id := range block.Fragments {
			n.pool.DeleteFragment(string(id))
			n.commit(id, block.Height, block.Date)
		}
		last = block
		return nil
	})
	if err != nil {
		return err
	}
	if last != nil {
		n.state = n.state.WithDate(last.Date)
		n.setTip(last.Height, last.Date)
		n.log.Infof("Node %s replayed %d fragments up to block %d", n.config.Alias, n.seq, last.Height)
	}
	return nil
}

// fragmentKey() orders the fragment log by sequence
func fragmentKey(seq uint64) []byte { return []byte(fmt.Sprintf("%s%020d", fragmentPrefix, seq)) }

// blockKey() orders blocks by height
func blockKey(height uint64) []byte { return []byte(fmt.Sprintf("%s%020d", blockPrefix, height)) }
