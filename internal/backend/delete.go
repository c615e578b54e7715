package backend

import (
	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/kv"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/vlv"
)

// Delete removes a leaf entry and its index keys in one transaction.
// Returns ErrEntryNotFound if the entry does not exist and
// ErrNotAllowedOnNonLeaf if it has children.
func (ec *EntryContainer) Delete(dn string) error {
	if dn == "" {
		return ErrInvalidDN
	}
	key, err := dnKey(dn)
	if err != nil {
		return err
	}

	ec.writeMu.Lock()
	defer ec.writeMu.Unlock()

	ec.cache.begin()
	txn := ec.store.Begin()
	id, err := ec.delete(txn, key)
	err = ec.finish(txn, err)
	ec.cache.end(id)
	if err != nil {
		return err
	}

	ec.logger.Debug("entry deleted", "dn", dn, "entryID", id)
	return nil
}

func (ec *EntryContainer) delete(txn kv.Txn, key []byte) (entry.ID, error) {
	id, err := ec.lookupDN(txn, key, kv.LockRMW)
	if err != nil {
		return 0, err
	}
	children, err := ec.hasChildren(txn, key)
	if err != nil {
		return id, err
	}
	if children {
		return id, ErrNotAllowedOnNonLeaf
	}

	old, err := ec.getEntry(txn, id, kv.LockRMW)
	if err != nil {
		return id, err
	}
	if err := ec.id2entry.Delete(txn, idKey(id)); err != nil {
		return id, err
	}
	if err := ec.dn2id.Delete(txn, key); err != nil {
		return id, err
	}

	attrs, vlvs := ec.indexes()
	for _, a := range attrs {
		if err := a.RemoveEntry(txn, id, old); err != nil {
			return id, err
		}
	}
	buf := vlv.NewIndexBuffer()
	for _, v := range vlvs {
		v.RemoveEntry(buf, id, old)
	}
	if err := buf.Flush(txn); err != nil {
		return id, err
	}
	return id, nil
}
