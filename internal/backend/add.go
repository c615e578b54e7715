package backend

import (
	"errors"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/kv"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/vlv"
)

// Add stores a new entry and indexes it, all in one transaction:
// 1. Validates the DN and that objectClass is present
// 2. Checks the entry does not exist (ErrEntryExists)
// 3. Checks the parent exists when the entry lies below the base DN (ErrNoParent)
// 4. Sets entryUUID and the timestamps
// 5. Writes id2entry and dn2id, then every attribute and VLV index
//
// The caller's entry is not modified. Add returns the allocated ID.
func (ec *EntryContainer) Add(e *entry.Entry) (entry.ID, error) {
	if e == nil || e.DN == "" {
		return 0, ErrInvalidEntry
	}
	if !e.Has("objectClass") {
		return 0, ErrInvalidEntry
	}

	key, err := dnKey(e.DN)
	if err != nil {
		return 0, err
	}
	base := ec.BaseDN()
	if base != "" && !entry.MatchesBaseAndScope(e.DN, base, entry.ScopeWholeSubtree) {
		return 0, ErrInvalidDN
	}
	baseKey, err := dnKey(base)
	if err != nil {
		return 0, err
	}

	ec.writeMu.Lock()
	defer ec.writeMu.Unlock()

	ec.cache.begin()
	txn := ec.store.Begin()
	id, err := ec.add(txn, key, baseKey, e)
	err = ec.finish(txn, err)
	ec.cache.end(id)
	if err != nil {
		return 0, err
	}

	ec.logger.Debug("entry added", "dn", e.DN, "entryID", id)
	return id, nil
}

func (ec *EntryContainer) add(txn kv.Txn, key, baseKey []byte, e *entry.Entry) (entry.ID, error) {
	_, err := ec.lookupDN(txn, key, kv.LockRMW)
	if err == nil {
		return 0, ErrEntryExists
	}
	if !errors.Is(err, ErrEntryNotFound) {
		return 0, err
	}

	if len(baseKey) > 0 && len(key) > len(baseKey) {
		parent, _ := parentKey(key)
		if _, err := ec.lookupDN(txn, parent, kv.LockReadCommitted); err != nil {
			if errors.Is(err, ErrEntryNotFound) {
				return 0, ErrNoParent
			}
			return 0, err
		}
	}

	stored := e.Clone()
	setCreateAttrs(stored)

	id := entry.ID(ec.lastID.Add(1))
	if err := ec.id2entry.Insert(txn, idKey(id), encodeEntry(stored)); err != nil {
		return id, err
	}
	if err := ec.dn2id.Insert(txn, key, idKey(id)); err != nil {
		if errors.Is(err, kv.ErrKeyExists) {
			return id, ErrEntryExists
		}
		return id, err
	}

	attrs, vlvs := ec.indexes()
	for _, a := range attrs {
		if err := a.AddEntry(txn, id, stored); err != nil {
			return id, err
		}
	}
	buf := vlv.NewIndexBuffer()
	for _, v := range vlvs {
		v.AddEntry(buf, id, stored)
	}
	if err := buf.Flush(txn); err != nil {
		return id, err
	}
	return id, nil
}

// finish commits txn when err is nil and aborts it otherwise. VLV counts
// are kept in memory, so they are recomputed after an abort.
func (ec *EntryContainer) finish(txn kv.Txn, err error) error {
	if err == nil {
		return txn.Commit()
	}
	if aerr := txn.Abort(); aerr != nil {
		ec.logger.Error("transaction abort failed", "error", aerr)
	}
	_, vlvs := ec.indexes()
	for _, v := range vlvs {
		if rerr := v.Recount(); rerr != nil {
			ec.logger.Warn("VLV recount failed", "index", v.Name(), "error", rerr)
		}
	}
	return err
}
