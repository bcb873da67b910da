package store

import (
	"errors"

	"github.com/canopy-network/mocknet/lib"
	"github.com/dgraph-io/badger/v4"
)

var _ lib.StoreI = &Store{} // enforce the Store interface

/*
	Store is a thin layer over a single BadgerDB instance holding a mock node's fragment log.
	Keys are namespaced by a short prefix so related records iterate together in key order
*/
type Store struct {
	db  *badger.DB
	log lib.LoggerI
}

// New() opens the store at path, or an in-memory store when path is empty
func New(path string, log lib.LoggerI) (*Store, lib.ErrorI) {
	opts := badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, lib.ErrOpenDB(err)
	}
	return &Store{db: db, log: log}, nil
}

// NewInMemory() opens a store that is discarded on Close()
func NewInMemory(log lib.LoggerI) (*Store, lib.ErrorI) { return New("", log) }

// Set() writes a single entry
func (s *Store) Set(key, value []byte) lib.ErrorI {
	if err := s.db.Update(func(txn *badger.Txn) error { return txn.Set(key, value) }); err != nil {
		return lib.ErrStoreSet(err)
	}
	return nil
}

// SetBatch() writes every entry in one transaction
func (s *Store) SetBatch(entries map[string][]byte) lib.ErrorI {
	err := s.db.Update(func(txn *badger.Txn) error {
		for k, v := range entries {
			if err := txn.Set([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return lib.ErrStoreSet(err)
	}
	return nil
}

// Get() reads an entry, returning nil when the key is absent
func (s *Store) Get(key []byte) (value []byte, err lib.ErrorI) {
	e := s.db.View(func(txn *badger.Txn) error {
		item, er := txn.Get(key)
		if er != nil {
			return er
		}
		value, er = item.ValueCopy(nil)
		return er
	})
	if e != nil && !errors.Is(e, badger.ErrKeyNotFound) {
		return nil, lib.ErrStoreGet(e)
	}
	return
}

// Iterate() visits every entry under prefix in key order until cb returns an error
func (s *Store) Iterate(prefix []byte, cb func(key, value []byte) error) lib.ErrorI {
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err = cb(item.KeyCopy(nil), value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return lib.ErrStoreGet(err)
	}
	return nil
}

// Close() gracefully stops the database
func (s *Store) Close() lib.ErrorI {
	if err := s.db.Close(); err != nil {
		return lib.ErrCloseDB(err)
	}
	return nil
}
