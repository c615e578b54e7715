package index

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/logging"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/kv"
)

// ErrUnknownIndexType is returned for an unrecognized index type name.
var ErrUnknownIndexType = errors.New("index: unknown index type")

// maxUpdateAttempts bounds the optimistic read-modify-write loop of a key
// update.
const maxUpdateAttempts = 3

// Tristate is the answer of a membership test that may be unknown.
type Tristate int

const (
	// TriFalse means the ID is known to be absent.
	TriFalse Tristate = iota
	// TriTrue means the ID is known to be present.
	TriTrue
	// TriUndefined means the index cannot tell.
	TriUndefined
)

// String returns the string representation of the Tristate.
func (t Tristate) String() string {
	switch t {
	case TriFalse:
		return "false"
	case TriTrue:
		return "true"
	default:
		return "undefined"
	}
}

// Index maps keys to EntryIDSets in one database. It is safe for
// concurrent use; each key update runs as a bounded optimistic
// read-modify-write inside the caller's transaction.
//
// An untrusted index keeps accepting updates but answers reads with the
// least informative value. While a rebuild is running reads are Undefined.
type Index struct {
	name    string
	db      kv.DB
	state   *State
	indexer Indexer
	logger  logging.Logger

	mu               sync.RWMutex
	entryLimit       int
	cursorEntryLimit int
	maintainCount    bool

	trusted        atomic.Bool
	rebuildRunning atomic.Bool
	exceeded       atomic.Int64
}

// Open opens the index database name in store. The trust flag is read
// from state.
func Open(store kv.Store, state *State, name string, indexer Indexer, opts Options, logger logging.Logger) (*Index, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	var cmp kv.Comparator
	if indexer != nil {
		cmp = indexer.Comparator()
	}
	db, err := store.Open(name, cmp)
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", name, err)
	}
	trusted, err := state.GetTrusted(nil, name)
	if err != nil {
		return nil, fmt.Errorf("read state of %s: %w", name, err)
	}

	x := &Index{
		name:             name,
		db:               db,
		state:            state,
		indexer:          indexer,
		logger:           logger.WithFields("index", name),
		entryLimit:       opts.EntryLimit,
		cursorEntryLimit: opts.CursorEntryLimit,
		maintainCount:    opts.MaintainCount,
	}
	x.trusted.Store(trusted)
	return x, nil
}

// Name returns the database name of the index.
func (x *Index) Name() string { return x.name }

// Indexer returns the key deriver of the index.
func (x *Index) Indexer() Indexer { return x.indexer }

// IsTrusted reports whether reads reflect the indexed entries.
func (x *Index) IsTrusted() bool { return x.trusted.Load() }

// IsRebuildRunning reports whether a rebuild is in progress.
func (x *Index) IsRebuildRunning() bool { return x.rebuildRunning.Load() }

// EntryLimitExceededCount returns how many keys turned Undefined since the
// index was opened.
func (x *Index) EntryLimitExceededCount() int64 { return x.exceeded.Load() }

// KeyCount returns the number of keys stored.
func (x *Index) KeyCount() int { return x.db.Count() }

// SetTrusted persists the trust flag.
func (x *Index) SetTrusted(txn kv.Txn, trusted bool) error {
	if err := x.state.PutTrusted(txn, x.name, trusted); err != nil {
		return err
	}
	x.trusted.Store(trusted)
	return nil
}

// SetRebuildStatus marks a rebuild as running or finished.
func (x *Index) SetRebuildStatus(running bool) {
	x.rebuildRunning.Store(running)
}

func (x *Index) options() (entryLimit, cursorEntryLimit int, maintainCount bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.entryLimit, x.cursorEntryLimit, x.maintainCount
}

// SetOptions replaces the entry limits and count maintenance. It reports
// whether the stored keys must be rebuilt for the new limit to take
// effect, which is the case when the limit grows while some key already
// turned Undefined under the old one.
func (x *Index) SetOptions(opts Options) (rebuildNeeded bool) {
	x.mu.Lock()
	old := x.entryLimit
	x.entryLimit = opts.EntryLimit
	x.cursorEntryLimit = opts.CursorEntryLimit
	x.maintainCount = opts.MaintainCount
	x.mu.Unlock()

	grown := old > 0 && (opts.EntryLimit == 0 || opts.EntryLimit > old)
	if !grown || !x.hasUndefinedKey() {
		return false
	}
	x.logger.Warn("entry limit raised over undefined keys, rebuild required",
		"oldLimit", old, "newLimit", opts.EntryLimit)
	return true
}

// SetEntryLimit changes only the entry limit. See SetOptions.
func (x *Index) SetEntryLimit(limit int) (rebuildNeeded bool) {
	_, cursorLimit, maintain := x.options()
	return x.SetOptions(Options{EntryLimit: limit, CursorEntryLimit: cursorLimit, MaintainCount: maintain})
}

func (x *Index) hasUndefinedKey() bool {
	found := false
	_ = x.ListKeys(nil, func(_ []byte, set *EntryIDSet) bool {
		if !set.IsDefined() {
			found = true
			return false
		}
		return true
	})
	return found
}

// InsertID adds id to the set of key. An absent key is created only when
// the index is trusted or being rebuilt. A Defined set that already holds
// the entry limit turns Undefined instead of growing.
func (x *Index) InsertID(txn kv.Txn, key []byte, id entry.ID) error {
	return x.retry("insert", key, id, func() error { return x.insertOnce(txn, key, id) })
}

func (x *Index) insertOnce(txn kv.Txn, key []byte, id entry.ID) error {
	entryLimit, _, maintainCount := x.options()

	raw, err := x.db.Get(txn, key, kv.LockRMW)
	if errors.Is(err, kv.ErrNotFound) {
		if !x.trusted.Load() && !x.rebuildRunning.Load() {
			return nil
		}
		enc, err := NewEntryIDSet(id).Encode()
		if err != nil {
			return err
		}
		return x.db.Insert(txn, key, enc)
	}
	if err != nil {
		return err
	}

	set, err := DecodeEntryIDSet(raw)
	if err != nil {
		x.demote("corrupt entry ID set", key, id)
		set = NewUndefinedSet()
		return x.put(txn, key, set)
	}

	if !set.IsDefined() {
		if _, counted := set.UndefinedSize(); !counted {
			return nil
		}
		set.Add(id)
		return x.put(txn, key, set)
	}
	if set.Contains(id) {
		return nil
	}
	if entryLimit > 0 && set.Size() >= uint64(entryLimit) {
		if maintainCount {
			set = NewUndefinedSetWithSize(set.Size() + 1)
		} else {
			set = NewUndefinedSet()
		}
		x.exceeded.Add(1)
		x.logger.Debug("index entry limit exceeded", "key", printableKey(key), "entryLimit", entryLimit)
		return x.put(txn, key, set)
	}
	set.Add(id)
	return x.put(txn, key, set)
}

// RemoveID removes id from the set of key. A trusted index missing the key
// or the ID is inconsistent and loses its trust.
func (x *Index) RemoveID(txn kv.Txn, key []byte, id entry.ID) error {
	return x.retry("remove", key, id, func() error { return x.removeOnce(txn, key, id) })
}

func (x *Index) removeOnce(txn kv.Txn, key []byte, id entry.ID) error {
	raw, err := x.db.Get(txn, key, kv.LockRMW)
	if errors.Is(err, kv.ErrNotFound) {
		if x.trusted.Load() && !x.rebuildRunning.Load() {
			x.demote("missing key on remove", key, id)
		}
		return nil
	}
	if err != nil {
		return err
	}

	set, err := DecodeEntryIDSet(raw)
	if err != nil {
		x.demote("corrupt entry ID set", key, id)
		return x.put(txn, key, NewUndefinedSet())
	}

	if !set.IsDefined() {
		if _, counted := set.UndefinedSize(); !counted {
			return nil
		}
		set.Remove(id)
		return x.put(txn, key, set)
	}
	if !set.Remove(id) {
		if x.trusted.Load() && !x.rebuildRunning.Load() {
			x.demote("missing entry ID on remove", key, id)
		}
		return nil
	}
	if set.IsEmpty() {
		return x.db.Delete(txn, key)
	}
	return x.put(txn, key, set)
}

// retry runs op until it succeeds, fails with a non-retryable error, or
// runs out of attempts. Exhaustion drops the update.
func (x *Index) retry(op string, key []byte, id entry.ID, fn func() error) error {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return fmt.Errorf("%s %s: %w", op, x.name, err)
		}
	}
	x.logger.Warn("index update dropped after repeated conflicts",
		"op", op, "key", printableKey(key), "entryID", uint64(id), "attempts", maxUpdateAttempts)
	return nil
}

func retryable(err error) bool {
	return errors.Is(err, kv.ErrConflict) || errors.Is(err, kv.ErrKeyExists) || errors.Is(err, kv.ErrNotFound)
}

func (x *Index) put(txn kv.Txn, key []byte, set *EntryIDSet) error {
	enc, err := set.Encode()
	if err != nil {
		return err
	}
	return x.db.Put(txn, key, enc)
}

// demote marks the index untrusted after an inconsistency. The flag is
// written outside the caller's transaction so it survives an abort.
func (x *Index) demote(reason string, key []byte, id entry.ID) {
	x.logger.Warn("index inconsistency, index is no longer trusted",
		"reason", reason, "key", printableKey(key), "entryID", uint64(id))
	if err := x.SetTrusted(nil, false); err != nil {
		x.trusted.Store(false)
		x.logger.Error("failed to persist index trust", "error", err.Error())
	}
}

// ContainsID reports whether the set of key holds id.
func (x *Index) ContainsID(txn kv.Txn, key []byte, id entry.ID) Tristate {
	if x.rebuildRunning.Load() {
		return TriUndefined
	}
	raw, err := x.db.Get(txn, key, kv.LockReadCommitted)
	if errors.Is(err, kv.ErrNotFound) {
		if x.trusted.Load() {
			return TriFalse
		}
		return TriUndefined
	}
	if err != nil {
		return TriUndefined
	}
	set, err := DecodeEntryIDSet(raw)
	if err != nil || !set.IsDefined() {
		return TriUndefined
	}
	if set.Contains(id) {
		return TriTrue
	}
	return TriFalse
}

// ReadKey returns the set of key. An absent key reads as empty when the
// index is trusted and Undefined otherwise.
func (x *Index) ReadKey(txn kv.Txn, key []byte) *EntryIDSet {
	if x.rebuildRunning.Load() {
		return NewUndefinedSet()
	}
	raw, err := x.db.Get(txn, key, kv.LockReadCommitted)
	if errors.Is(err, kv.ErrNotFound) {
		if x.trusted.Load() {
			return NewEntryIDSet()
		}
		return NewUndefinedSet()
	}
	if err != nil {
		x.logger.Error("index read failed", "key", printableKey(key), "error", err.Error())
		return NewUndefinedSet()
	}
	set, err := DecodeEntryIDSet(raw)
	if err != nil {
		x.demote("corrupt entry ID set", key, 0)
		return NewUndefinedSet()
	}
	return set
}

// ReadRange returns the union of the sets of every key between lower and
// upper in comparator order. An empty bound is unbounded. The result is
// Undefined when any key in range is Undefined or the union grows past the
// cursor entry limit; an untrusted or rebuilding index reads as empty.
func (x *Index) ReadRange(txn kv.Txn, lower, upper []byte, lowerIncluded, upperIncluded bool) *EntryIDSet {
	if !x.trusted.Load() || x.rebuildRunning.Load() {
		return NewEntryIDSet()
	}
	_, cursorLimit, _ := x.options()
	cmp := x.db.Comparator()

	cur := x.db.OpenCursor(txn, kv.LockReadCommitted)
	defer cur.Close()

	var (
		k, v []byte
		err  error
	)
	if len(lower) == 0 {
		k, v, err = cur.First()
	} else {
		k, v, err = cur.SearchKeyRange(lower)
		if err == nil && !lowerIncluded && cmp(k, lower) == 0 {
			k, v, err = cur.Next()
		}
	}

	var (
		sets  []*EntryIDSet
		total uint64
	)
	for ; err == nil; k, v, err = cur.Next() {
		if len(upper) > 0 {
			c := cmp(k, upper)
			if c > 0 || (c == 0 && !upperIncluded) {
				break
			}
		}
		set, derr := DecodeEntryIDSet(v)
		if derr != nil || !set.IsDefined() {
			return NewUndefinedSet()
		}
		total += set.Size()
		if cursorLimit > 0 && total > uint64(cursorLimit) {
			return NewUndefinedSet()
		}
		sets = append(sets, set)
	}
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		x.logger.Error("index range read failed", "error", err.Error())
		return NewUndefinedSet()
	}
	return UnionOfSets(sets, 0)
}

// ListKeys calls fn for every key in order until fn returns false.
func (x *Index) ListKeys(txn kv.Txn, fn func(key []byte, set *EntryIDSet) bool) error {
	cur := x.db.OpenCursor(txn, kv.LockReadCommitted)
	defer cur.Close()

	for k, v, err := cur.First(); ; k, v, err = cur.Next() {
		if errors.Is(err, kv.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		set, err := DecodeEntryIDSet(v)
		if err != nil {
			return fmt.Errorf("key %s: %w", printableKey(k), err)
		}
		if !fn(k, set) {
			return nil
		}
	}
}

// AddEntry indexes every key of e under id.
func (x *Index) AddEntry(txn kv.Txn, id entry.ID, e *entry.Entry) error {
	for _, k := range x.indexer.Keys(e) {
		if err := x.InsertID(txn, k, id); err != nil {
			return err
		}
	}
	return nil
}

// RemoveEntry removes id from every key of e.
func (x *Index) RemoveEntry(txn kv.Txn, id entry.ID, e *entry.Entry) error {
	for _, k := range x.indexer.Keys(e) {
		if err := x.RemoveID(txn, k, id); err != nil {
			return err
		}
	}
	return nil
}

// ModifyEntry applies the key changes caused by oldEntry becoming
// newEntry through mods.
func (x *Index) ModifyEntry(txn kv.Txn, id entry.ID, oldEntry, newEntry *entry.Entry, mods []entry.Modification) error {
	add, remove := x.indexer.KeyDelta(oldEntry, newEntry, mods)
	for _, k := range remove {
		if err := x.RemoveID(txn, k, id); err != nil {
			return err
		}
	}
	for _, k := range add {
		if err := x.InsertID(txn, k, id); err != nil {
			return err
		}
	}
	return nil
}

// Clear removes every key.
func (x *Index) Clear(txn kv.Txn) error {
	return x.db.Truncate(txn)
}

// normalizeAttr folds an attribute name for map lookups.
func normalizeAttr(attr string) string {
	return strings.ToLower(strings.TrimSpace(attr))
}

// printableKey renders a key for logs.
func printableKey(key []byte) string {
	for _, c := range key {
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("%x", key)
		}
	}
	return string(key)
}
