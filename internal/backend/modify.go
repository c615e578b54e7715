package backend

import (
	"fmt"
	"strings"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/kv"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/vlv"
)

// Modify applies mods to the entry named dn and updates only the index
// keys the change touches. A modifyTimestamp replacement is appended to
// mods. entryUUID and createTimestamp cannot be modified, nor can the
// last objectClass value be removed.
func (ec *EntryContainer) Modify(dn string, mods []entry.Modification) error {
	if dn == "" {
		return ErrInvalidDN
	}
	if len(mods) == 0 {
		return nil
	}
	for _, m := range mods {
		if isOperational(strings.ToLower(m.Attribute)) {
			return fmt.Errorf("%w: %s is read-only", ErrInvalidEntry, m.Attribute)
		}
	}
	key, err := dnKey(dn)
	if err != nil {
		return err
	}

	all := append(append([]entry.Modification{}, mods...), modifyTimestampMod())

	ec.writeMu.Lock()
	defer ec.writeMu.Unlock()

	ec.cache.begin()
	txn := ec.store.Begin()
	id, err := ec.modify(txn, key, all)
	err = ec.finish(txn, err)
	ec.cache.end(id)
	if err != nil {
		return err
	}

	ec.logger.Debug("entry modified", "dn", dn, "entryID", id, "modifications", len(mods))
	return nil
}

func (ec *EntryContainer) modify(txn kv.Txn, key []byte, mods []entry.Modification) (entry.ID, error) {
	id, err := ec.lookupDN(txn, key, kv.LockReadCommitted)
	if err != nil {
		return 0, err
	}
	old, err := ec.getEntry(txn, id, kv.LockRMW)
	if err != nil {
		return id, err
	}

	updated := entry.Apply(old, mods)
	if !updated.Has("objectClass") {
		return id, fmt.Errorf("%w: objectClass is required", ErrInvalidEntry)
	}
	if err := ec.id2entry.Put(txn, idKey(id), encodeEntry(updated)); err != nil {
		return id, err
	}

	attrs, vlvs := ec.indexes()
	for _, a := range attrs {
		if err := a.ModifyEntry(txn, id, old, updated, mods); err != nil {
			return id, err
		}
	}
	buf := vlv.NewIndexBuffer()
	for _, v := range vlvs {
		v.ModifyEntry(buf, id, old, updated, mods)
	}
	if err := buf.Flush(txn); err != nil {
		return id, err
	}
	return id, nil
}

// Get returns the entry named dn.
func (ec *EntryContainer) Get(dn string) (*entry.Entry, error) {
	key, err := dnKey(dn)
	if err != nil {
		return nil, err
	}
	id, err := ec.lookupDN(nil, key, kv.LockReadCommitted)
	if err != nil {
		return nil, err
	}
	return ec.getEntry(nil, id, kv.LockReadCommitted)
}

// GetByID returns the entry stored under id.
func (ec *EntryContainer) GetByID(id entry.ID) (*entry.Entry, error) {
	return ec.getEntry(nil, id, kv.LockReadCommitted)
}
