package index

import (
	"errors"

	"github.com/KilimcininKorOglu/obaidx/internal/storage/kv"
)

// StateDBName is the database holding the persisted flags of every index.
const StateDBName = "state"

const stateTrusted byte = 0x01

// State persists per-index flags, keyed by index name. Only trust is
// stored; rebuild status lives in memory.
type State struct {
	db kv.DB
}

// OpenState opens the state database of store.
func OpenState(store kv.Store) (*State, error) {
	db, err := store.Open(StateDBName, nil)
	if err != nil {
		return nil, err
	}
	return &State{db: db}, nil
}

// GetTrusted reports the persisted trust of the named index. An index
// with no record is untrusted.
func (s *State) GetTrusted(txn kv.Txn, name string) (bool, error) {
	v, err := s.db.Get(txn, []byte(name), kv.LockDefault)
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return len(v) > 0 && v[0]&stateTrusted != 0, nil
}

// PutTrusted persists the trust of the named index.
func (s *State) PutTrusted(txn kv.Txn, name string, trusted bool) error {
	var flags byte
	if trusted {
		flags |= stateTrusted
	}
	return s.db.Put(txn, []byte(name), []byte{flags})
}

// Remove deletes the record of the named index.
func (s *State) Remove(txn kv.Txn, name string) error {
	err := s.db.Delete(txn, []byte(name))
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	return err
}
