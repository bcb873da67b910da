package lib

import (
	"container/list"
	"sync"
)

/* This file defines and implements a mempool that maintains an ordered list of 'valid, pending to be included' fragments in memory */

var _ Mempool = &FeeMempool{} // Mempool interface enforcement for FeeMempool implementation

// Mempool interface is a model for a pre-block, in-memory, fragment store
type Mempool interface {
	Contains(id string) bool                               // whether the mempool has this fragment already (de-duplicated by id)
	AddFragment(id string, bz []byte, fee uint64) ErrorI   // insert new unconfirmed fragment
	DeleteFragment(id string)                              // delete unconfirmed fragment
	GetFragments(maxCount int, maxBytes uint64) []PoolItem // retrieve fragments from the highest fee to lowest

	Clear()            // reset the entire store
	Count() int        // number of fragments in the pool
	Bytes() int        // collective number of bytes in the pool
	Items() []PoolItem // snapshot of the pool in fee order
}

// FeeMempool is a Mempool implementation that prioritizes fragments with the highest fees
type FeeMempool struct {
	l        sync.RWMutex             // for thread safety
	pool     *list.List               // fee ordered list of PoolItem
	index    map[string]*list.Element // id -> list element
	txsBytes int                      // collective number of bytes in the pool
	config   MempoolConfig            // user configuration of the pool
}

// PoolItem is a wrapper over fragment bytes that maintains the fee and id associated with the bytes
type PoolItem struct {
	ID       string // hex fragment id
	Fragment []byte // encoded fragment
	Fee      uint64 // fee associated with the fragment
}

// NewMempool() creates a new FeeMempool instance of a Mempool
func NewMempool(config MempoolConfig) Mempool {
	return &FeeMempool{
		pool:   list.New(),
		index:  make(map[string]*list.Element),
		config: config,
	}
}

// AddFragment() inserts a new unconfirmed fragment into the pool. A full pool rejects the fragment
// instead of evicting, so a caller always learns the fate of its own submission
func (f *FeeMempool) AddFragment(id string, bz []byte, fee uint64) ErrorI {
	f.l.Lock()
	defer f.l.Unlock()
	// ensure the size of the fragment doesn't exceed the individual limit
	if uint32(len(bz)) > f.config.IndividualMaxFragmentSize {
		return ErrMaxFragmentSize()
	}
	// check for a duplicate
	if _, found := f.index[id]; found {
		return ErrFragmentInPool(id)
	}
	// check the collective limits
	if uint32(f.pool.Len()+1) > f.config.MaxFragmentCount || uint64(f.txsBytes+len(bz)) > f.config.MaxTotalBytes {
		return ErrPoolFull()
	}
	item := PoolItem{ID: id, Fragment: bz, Fee: fee}
	// start from the back and scan backwards, equal fees keep arrival order
	for e := f.pool.Back(); e != nil; e = e.Prev() {
		if e.Value.(PoolItem).Fee >= fee {
			f.index[id] = f.pool.InsertAfter(item, e)
			f.txsBytes += len(bz)
			return nil
		}
	}
	// if we got here, the fragment has the highest fee: insert at front
	f.index[id] = f.pool.PushFront(item)
	f.txsBytes += len(bz)
	return nil
}

// GetFragments() returns fragments from the pool up to maxCount and 'max collective bytes'
func (f *FeeMempool) GetFragments(maxCount int, maxBytes uint64) (items []PoolItem) {
	f.l.RLock()
	defer f.l.RUnlock()
	totalBytes := uint64(0)
	for e := f.pool.Front(); e != nil && len(items) < maxCount; e = e.Next() {
		item := e.Value.(PoolItem)
		totalBytes += uint64(len(item.Fragment))
		// exit without adding the fragment if the byte limit is exceeded
		if totalBytes > maxBytes {
			return
		}
		items = append(items, item)
	}
	return
}

// Contains() checks if a fragment with the given id exists in the mempool
func (f *FeeMempool) Contains(id string) (contains bool) {
	f.l.RLock()
	defer f.l.RUnlock()
	_, contains = f.index[id]
	return
}

// DeleteFragment() removes the specified fragment from the mempool
func (f *FeeMempool) DeleteFragment(id string) {
	f.l.Lock()
	defer f.l.Unlock()
	elem, exists := f.index[id]
	if !exists {
		return
	}
	f.pool.Remove(elem)
	delete(f.index, id)
	f.txsBytes -= len(elem.Value.(PoolItem).Fragment)
}

// Clear() empties the mempool and resets its state
func (f *FeeMempool) Clear() {
	f.l.Lock()
	defer f.l.Unlock()
	f.pool = list.New()
	f.index = make(map[string]*list.Element)
	f.txsBytes = 0
}

// Count() returns the current number of fragments in the mempool
func (f *FeeMempool) Count() int {
	f.l.RLock()
	defer f.l.RUnlock()
	return f.pool.Len()
}

// Bytes() returns the total size in bytes of all fragments in the mempool
func (f *FeeMempool) Bytes() int {
	f.l.RLock()
	defer f.l.RUnlock()
	return f.txsBytes
}

// Items() returns a copy of the pool in fee order for safe iteration
func (f *FeeMempool) Items() (items []PoolItem) {
	f.l.RLock()
	defer f.l.RUnlock()
	for e := f.pool.Front(); e != nil; e = e.Next() {
		items = append(items, e.Value.(PoolItem))
	}
	return
}
