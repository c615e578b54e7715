package kv

import (
	"sync"

	"github.com/google/btree"
)

// btreeDegree is the fan-out of the in-memory trees.
const btreeDegree = 32

// item is a single record of a memDB.
type item struct {
	key   []byte
	value []byte
}

// MemStore is an in-memory Store. Writes go straight to the shared trees;
// a transaction keeps an undo log so Abort can restore prior values, and
// remembers the versions of keys read with LockRMW to detect conflicting
// writers.
type MemStore struct {
	mu     sync.RWMutex
	dbs    map[string]*memDB
	closed bool
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		dbs: make(map[string]*memDB),
	}
}

// Open implements Store.
func (s *MemStore) Open(name string, cmp Comparator) (DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if db, ok := s.dbs[name]; ok {
		return db, nil
	}
	if cmp == nil {
		cmp = DefaultComparator
	}

	db := &memDB{
		name:     name,
		cmp:      cmp,
		versions: make(map[string]uint64),
	}
	db.tree = btree.NewG[item](btreeDegree, func(a, b item) bool {
		return cmp(a.key, b.key) < 0
	})
	s.dbs[name] = db
	return db, nil
}

// Drop implements Store.
func (s *MemStore) Drop(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, ok := s.dbs[name]; !ok {
		return ErrNotFound
	}
	delete(s.dbs, name)
	return nil
}

// Names returns the names of the open databases.
func (s *MemStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.dbs))
	for name := range s.dbs {
		names = append(names, name)
	}
	return names
}

// Begin implements Store.
func (s *MemStore) Begin() Txn {
	return &memTxn{
		reads: make(map[*memDB]map[string]uint64),
	}
}

// Close implements Store.
func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.dbs = make(map[string]*memDB)
	return nil
}

// memDB is one ordered database of a MemStore.
type memDB struct {
	name string
	cmp  Comparator

	mu       sync.RWMutex
	tree     *btree.BTreeG[item]
	versions map[string]uint64
	seq      uint64
}

func (db *memDB) Name() string           { return db.name }
func (db *memDB) Comparator() Comparator { return db.cmp }

func (db *memDB) Get(txn Txn, key []byte, mode LockMode) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if mode == LockRMW {
		db.recordRead(txn, key)
	}
	it, ok := db.tree.Get(item{key: key})
	if !ok {
		return nil, ErrNotFound
	}
	return clone(it.value), nil
}

func (db *memDB) Put(txn Txn, key, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.checkWrite(txn, key); err != nil {
		return err
	}
	db.write(txn, key, value)
	return nil
}

func (db *memDB) Insert(txn Txn, key, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.checkWrite(txn, key); err != nil {
		return err
	}
	if db.tree.Has(item{key: key}) {
		return ErrKeyExists
	}
	db.write(txn, key, value)
	return nil
}

func (db *memDB) Delete(txn Txn, key []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.checkWrite(txn, key); err != nil {
		return err
	}
	old, ok := db.tree.Delete(item{key: key})
	if !ok {
		return ErrNotFound
	}
	db.logUndo(txn, old.key, old.value, true)
	db.bump(txn, old.key)
	return nil
}

func (db *memDB) Truncate(txn Txn) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	var all []item
	db.tree.Ascend(func(it item) bool {
		all = append(all, it)
		return true
	})
	for _, it := range all {
		db.tree.Delete(it)
		db.logUndo(txn, it.key, it.value, true)
		db.bump(txn, it.key)
	}
	return nil
}

func (db *memDB) Count() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.tree.Len()
}

func (db *memDB) OpenCursor(txn Txn, mode LockMode) Cursor {
	return &memCursor{db: db, txn: txn, mode: mode}
}

// write stores a copy of value and records undo information. Caller holds
// db.mu.
func (db *memDB) write(txn Txn, key, value []byte) {
	k := clone(key)
	old, existed := db.tree.ReplaceOrInsert(item{key: k, value: clone(value)})
	db.logUndo(txn, k, old.value, existed)
	db.bump(txn, k)
}

// bump advances the version of key and, for the writing transaction,
// moves its recorded read version forward so its own later writes pass.
func (db *memDB) bump(txn Txn, key []byte) {
	db.seq++
	db.versions[string(key)] = db.seq
	if t, ok := txn.(*memTxn); ok && t != nil {
		t.mu.Lock()
		if reads := t.reads[db]; reads != nil {
			if _, tracked := reads[string(key)]; tracked {
				reads[string(key)] = db.seq
			}
		}
		t.mu.Unlock()
	}
}

func (db *memDB) recordRead(txn Txn, key []byte) {
	t, ok := txn.(*memTxn)
	if !ok || t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	reads := t.reads[db]
	if reads == nil {
		reads = make(map[string]uint64)
		t.reads[db] = reads
	}
	reads[string(key)] = db.versions[string(key)]
}

func (db *memDB) checkWrite(txn Txn, key []byte) error {
	t, ok := txn.(*memTxn)
	if !ok || t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return ErrTxnDone
	}
	if reads := t.reads[db]; reads != nil {
		if v, tracked := reads[string(key)]; tracked && v != db.versions[string(key)] {
			return ErrConflict
		}
	}
	return nil
}

func (db *memDB) logUndo(txn Txn, key, value []byte, existed bool) {
	t, ok := txn.(*memTxn)
	if !ok || t == nil {
		return
	}
	t.mu.Lock()
	t.undo = append(t.undo, undoRecord{db: db, key: key, value: value, existed: existed})
	t.mu.Unlock()
}

// undoRecord restores key to its state before a write.
type undoRecord struct {
	db      *memDB
	key     []byte
	value   []byte
	existed bool
}

// memTxn is a MemStore transaction.
type memTxn struct {
	mu    sync.Mutex
	reads map[*memDB]map[string]uint64
	undo  []undoRecord
	done  bool
}

// Commit implements Txn.
func (t *memTxn) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return ErrTxnDone
	}
	t.done = true
	t.undo = nil
	t.reads = nil
	return nil
}

// Abort implements Txn. Records are restored newest first.
func (t *memTxn) Abort() error {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return ErrTxnDone
	}
	t.done = true
	undo := t.undo
	t.undo = nil
	t.reads = nil
	t.mu.Unlock()

	for i := len(undo) - 1; i >= 0; i-- {
		rec := undo[i]
		rec.db.mu.Lock()
		if rec.existed {
			rec.db.tree.ReplaceOrInsert(item{key: rec.key, value: rec.value})
		} else {
			rec.db.tree.Delete(item{key: rec.key})
		}
		rec.db.seq++
		rec.db.versions[string(rec.key)] = rec.db.seq
		rec.db.mu.Unlock()
	}
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append(make([]byte, 0, len(b)), b...)
}
