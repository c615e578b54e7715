// Package kv defines the ordered transactional key-value store the index
// engine runs on, and MemStore, an in-memory implementation backed by
// google/btree.
//
// # Databases
//
// A Store hosts named databases. Each database orders its keys with a
// Comparator (bytes.Compare when nil):
//
//	store := kv.NewMemStore()
//	db, err := store.Open("cn.equality", nil)
//
// # Transactions and Lock Modes
//
// Reads take a LockMode. LockRMW records the version of the key in the
// transaction; a later write of that key through the same transaction
// fails with ErrConflict if another writer changed it first. Callers
// retry the whole read-modify-write when that happens:
//
//	txn := store.Begin()
//	v, err := db.Get(txn, key, kv.LockRMW)
//	...
//	err = db.Put(txn, key, newValue) // may return kv.ErrConflict
//
// A nil Txn means autocommit.
//
// # Cursors
//
// Cursors walk a database in comparator order:
//
//	cur := db.OpenCursor(txn, kv.LockReadCommitted)
//	defer cur.Close()
//	for k, v, err := cur.SearchKeyRange(lower); err == nil; k, v, err = cur.Next() {
//	    ...
//	}
package kv
