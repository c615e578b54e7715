package backend

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/index"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/kv"
)

// entryFormatVersion prefixes every id2entry record.
const entryFormatVersion byte = 1

// rdnSeparator joins the RDNs of a dn2id key. It cannot occur in a parsed
// RDN, so the keys of a subtree share the prefix of its root.
const rdnSeparator = 0x00

// encodeEntry serializes e as
//
//	version | uvarint len(DN) | DN | uvarint attrs | { name | uvarint values | { value } }
//
// with every string and value prefixed by its uvarint length. Attributes are
// written in name order.
func encodeEntry(e *entry.Entry) []byte {
	var buf bytes.Buffer
	buf.WriteByte(entryFormatVersion)
	writeBytes(&buf, []byte(e.DN))

	names := e.AttributeNames()
	slices.Sort(names)
	writeUvarint(&buf, uint64(len(names)))
	for _, name := range names {
		values := e.Values(name)
		writeBytes(&buf, []byte(name))
		writeUvarint(&buf, uint64(len(values)))
		for _, v := range values {
			writeBytes(&buf, v)
		}
	}
	return buf.Bytes()
}

func writeUvarint(buf *bytes.Buffer, n uint64) {
	var tmp [binary.MaxVarintLen64]byte
	buf.Write(tmp[:binary.PutUvarint(tmp[:], n)])
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUvarint(buf, uint64(len(b)))
	buf.Write(b)
}

// decodeEntry parses a record written by encodeEntry.
func decodeEntry(data []byte) (*entry.Entry, error) {
	if len(data) == 0 || data[0] != entryFormatVersion {
		return nil, ErrCorruptEntry
	}
	r := &recordReader{data: data[1:]}

	e := entry.New(string(r.bytes()))
	n := r.uvarint()
	for i := uint64(0); i < n && r.err == nil; i++ {
		name := string(r.bytes())
		count := r.uvarint()
		if count > uint64(len(r.data)) {
			r.err = ErrCorruptEntry
			break
		}
		values := make([][]byte, 0, count)
		for j := uint64(0); j < count && r.err == nil; j++ {
			values = append(values, slices.Clone(r.bytes()))
		}
		e.Set(name, values...)
	}
	if r.err != nil {
		return nil, r.err
	}
	if len(r.data) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorruptEntry, len(r.data))
	}
	return e, nil
}

type recordReader struct {
	data []byte
	err  error
}

func (r *recordReader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	n, size := binary.Uvarint(r.data)
	if size <= 0 {
		r.err = ErrCorruptEntry
		return 0
	}
	r.data = r.data[size:]
	return n
}

func (r *recordReader) bytes() []byte {
	n := r.uvarint()
	if r.err != nil {
		return nil
	}
	if n > uint64(len(r.data)) {
		r.err = ErrCorruptEntry
		return nil
	}
	b := r.data[:n]
	r.data = r.data[n:]
	return b
}

// dnKey returns the dn2id key of dn: its lowercased RDNs from the root down,
// joined by rdnSeparator. The empty DN has the empty key.
func dnKey(dn string) ([]byte, error) {
	if strings.TrimSpace(dn) == "" {
		return []byte{}, nil
	}
	rdns, err := entry.ParseDN(dn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDN, err)
	}
	var key []byte
	for i := len(rdns) - 1; i >= 0; i-- {
		if len(key) > 0 {
			key = append(key, rdnSeparator)
		}
		key = append(key, strings.ToLower(rdns[i])...)
	}
	return key, nil
}

// parentKey returns the dn2id key of the parent of key, and false for a
// single-RDN key.
func parentKey(key []byte) ([]byte, bool) {
	i := bytes.LastIndexByte(key, rdnSeparator)
	if i < 0 {
		return nil, false
	}
	return key[:i], true
}

// getEntry reads the entry stored under id. Reads outside a transaction
// go through the entry cache.
func (ec *EntryContainer) getEntry(txn kv.Txn, id entry.ID, mode kv.LockMode) (*entry.Entry, error) {
	var epoch uint64
	if txn == nil {
		var cached *entry.Entry
		if cached, epoch = ec.cache.get(id); cached != nil {
			return cached, nil
		}
	}

	raw, err := ec.id2entry.Get(txn, idKey(id), mode)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	e, err := decodeEntry(raw)
	if err != nil {
		return nil, fmt.Errorf("entry %d: %w", id, err)
	}
	if txn == nil {
		ec.cache.put(id, e, epoch)
	}
	return e, nil
}

// lookupDN returns the ID of the entry named by key.
func (ec *EntryContainer) lookupDN(txn kv.Txn, key []byte, mode kv.LockMode) (entry.ID, error) {
	raw, err := ec.dn2id.Get(txn, key, mode)
	if errors.Is(err, kv.ErrNotFound) {
		return 0, ErrEntryNotFound
	}
	if err != nil {
		return 0, err
	}
	return decodeIDKey(raw)
}

// hasChildren reports whether any dn2id key lies directly below key.
func (ec *EntryContainer) hasChildren(txn kv.Txn, key []byte) (bool, error) {
	prefix := append(slices.Clone(key), rdnSeparator)
	cur := ec.dn2id.OpenCursor(txn, kv.LockReadCommitted)
	defer cur.Close()

	k, _, err := cur.SearchKeyRange(prefix)
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return bytes.HasPrefix(k, prefix), nil
}

// scopeIDs returns the IDs of the entries within base for scope.
func (ec *EntryContainer) scopeIDs(txn kv.Txn, baseKey []byte, scope entry.Scope) (*index.EntryIDSet, error) {
	ids := index.NewEntryIDSet()
	if scope == entry.ScopeBaseObject {
		id, err := ec.lookupDN(txn, baseKey, kv.LockReadCommitted)
		if errors.Is(err, ErrEntryNotFound) {
			return ids, nil
		}
		if err != nil {
			return nil, err
		}
		ids.Add(id)
		return ids, nil
	}

	var prefix []byte
	if len(baseKey) > 0 {
		prefix = append(slices.Clone(baseKey), rdnSeparator)
	}

	cur := ec.dn2id.OpenCursor(txn, kv.LockReadCommitted)
	defer cur.Close()

	k, v, err := cur.SearchKeyRange(baseKey)
	for ; err == nil; k, v, err = cur.Next() {
		own := bytes.Equal(k, baseKey)
		if !own && !bytes.HasPrefix(k, prefix) {
			break
		}
		switch scope {
		case entry.ScopeSingleLevel:
			if own || bytes.IndexByte(k[len(prefix):], rdnSeparator) >= 0 {
				continue
			}
		case entry.ScopeWholeSubtree:
		default:
			return ids, nil
		}
		id, derr := decodeIDKey(v)
		if derr != nil {
			return nil, derr
		}
		ids.Add(id)
	}
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return nil, err
	}
	return ids, nil
}

// forEachEntry calls fn for every entry in ID order.
func (ec *EntryContainer) forEachEntry(txn kv.Txn, fn func(id entry.ID, e *entry.Entry) error) error {
	cur := ec.id2entry.OpenCursor(txn, kv.LockReadCommitted)
	defer cur.Close()

	for k, v, err := cur.First(); ; k, v, err = cur.Next() {
		if errors.Is(err, kv.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		id, err := decodeIDKey(k)
		if err != nil {
			return err
		}
		e, err := decodeEntry(v)
		if err != nil {
			return fmt.Errorf("entry %d: %w", id, err)
		}
		if err := fn(id, e); err != nil {
			return err
		}
	}
}
