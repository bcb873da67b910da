package lib

/* This file contains the persistence interface used by the mock nodes */

// StoreI is a flat key value store with ordered prefix iteration
type StoreI interface {
	Set(key, value []byte) ErrorI                                   // write a single entry
	SetBatch(entries map[string][]byte) ErrorI                      // write several entries atomically
	Get(key []byte) ([]byte, ErrorI)                                // read an entry, nil if absent
	Iterate(prefix []byte, cb func(key, value []byte) error) ErrorI // visit every entry under prefix in key order
	Close() ErrorI                                                  // gracefully stop the database
}
