package kv

import (
	"bytes"
	"errors"
)

// Store errors.
var (
	ErrNotFound  = errors.New("kv: key not found")
	ErrKeyExists = errors.New("kv: key already exists")
	ErrConflict  = errors.New("kv: write conflict")
	ErrClosed    = errors.New("kv: store is closed")
	ErrTxnDone   = errors.New("kv: transaction already finished")
)

// LockMode selects the isolation of a read.
type LockMode int

const (
	// LockDefault reads the latest committed or uncommitted value.
	LockDefault LockMode = iota
	// LockReadCommitted reads without holding anything afterwards.
	LockReadCommitted
	// LockRMW reads with the intent to write the key back; the version
	// read is checked when the transaction writes the key.
	LockRMW
)

// String returns the string representation of the lock mode.
func (m LockMode) String() string {
	switch m {
	case LockDefault:
		return "default"
	case LockReadCommitted:
		return "read-committed"
	case LockRMW:
		return "rmw"
	default:
		return "unknown"
	}
}

// Comparator orders the keys of a database. It returns a negative number
// when a < b, zero when equal, and a positive number when a > b.
type Comparator func(a, b []byte) int

// DefaultComparator orders keys bytewise.
func DefaultComparator(a, b []byte) int {
	return bytes.Compare(a, b)
}

// Store is an ordered transactional key-value store hosting named
// databases.
type Store interface {
	// Open opens (creating if needed) the named database. A nil comparator
	// selects DefaultComparator. Reopening returns the same database.
	Open(name string, cmp Comparator) (DB, error)
	// Drop removes the named database and all of its records.
	Drop(name string) error
	// Begin starts a transaction.
	Begin() Txn
	// Close releases the store.
	Close() error
}

// Txn is a store transaction.
type Txn interface {
	Commit() error
	Abort() error
}

// DB is a single ordered database.
type DB interface {
	Name() string
	Comparator() Comparator

	// Get returns the value stored under key or ErrNotFound.
	Get(txn Txn, key []byte, mode LockMode) ([]byte, error)
	// Put stores value under key, replacing any existing value.
	Put(txn Txn, key, value []byte) error
	// Insert stores value under key, failing with ErrKeyExists when the
	// key is present.
	Insert(txn Txn, key, value []byte) error
	// Delete removes key or returns ErrNotFound.
	Delete(txn Txn, key []byte) error
	// Truncate removes every record.
	Truncate(txn Txn) error
	// Count returns the number of records.
	Count() int

	// OpenCursor opens a cursor whose reads use mode.
	OpenCursor(txn Txn, mode LockMode) Cursor
}

// Cursor walks a database in key order. Every positioning method returns
// the key and value at the new position, or ErrNotFound when there is
// none, in which case the position is unchanged.
type Cursor interface {
	First() ([]byte, []byte, error)
	Last() ([]byte, []byte, error)
	// SearchKey positions at exactly key.
	SearchKey(key []byte) ([]byte, []byte, error)
	// SearchKeyRange positions at the smallest key >= key.
	SearchKeyRange(key []byte) ([]byte, []byte, error)
	Next() ([]byte, []byte, error)
	Prev() ([]byte, []byte, error)
	Close() error
}
