package vlv

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/filter"
	"github.com/KilimcininKorOglu/obaidx/internal/logging"
	"github.com/KilimcininKorOglu/obaidx/internal/schema"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/index"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/kv"
)

// DefaultMaxBlockSize is the number of members at which a block splits.
const DefaultMaxBlockSize = 4000

// minBlockSize keeps both halves of a split non-empty.
const minBlockSize = 2

// DefaultFilter selects every entry when a VLV index names no filter.
const DefaultFilter = "(objectClass=*)"

// Config describes one VLV index.
type Config struct {
	Name         string
	BaseDN       string
	Scope        entry.Scope
	Filter       string
	SortOrder    string
	MaxBlockSize int
	Compression  string
}

// settings is a parsed Config.
type settings struct {
	baseDN      string
	scope       entry.Scope
	filter      *filter.Filter
	order       SortOrder
	sorter      *Sorter
	capacity    int
	compression Compression
}

func parseConfig(cfg Config, s *schema.Schema) (*settings, error) {
	base, err := entry.NormalizeDN(cfg.BaseDN)
	if err != nil {
		return nil, fmt.Errorf("vlv index %s: base DN: %w", cfg.Name, err)
	}
	if strings.TrimSpace(cfg.Filter) == "" {
		cfg.Filter = DefaultFilter
	}
	flt, err := filter.Parse(cfg.Filter)
	if err != nil {
		return nil, fmt.Errorf("vlv index %s: filter: %w", cfg.Name, err)
	}
	order, err := ParseSortOrder(cfg.SortOrder)
	if err != nil {
		return nil, fmt.Errorf("vlv index %s: %w", cfg.Name, err)
	}
	sorter, err := NewSorter(order, s)
	if err != nil {
		return nil, fmt.Errorf("vlv index %s: %w", cfg.Name, err)
	}
	comp, err := ParseCompression(cfg.Compression)
	if err != nil {
		return nil, fmt.Errorf("vlv index %s: %w", cfg.Name, err)
	}
	capacity := cfg.MaxBlockSize
	if capacity <= 0 {
		capacity = DefaultMaxBlockSize
	}
	capacity = max(capacity, minBlockSize)

	return &settings{
		baseDN:      base,
		scope:       cfg.Scope,
		filter:      flt,
		order:       order,
		sorter:      sorter,
		capacity:    capacity,
		compression: comp,
	}, nil
}

// selects reports whether both settings admit the same entries.
func (s *settings) selects(o *settings) bool {
	return s.baseDN == o.baseDN && s.scope == o.scope && sameFilter(s.filter, o.filter)
}

func sameFilter(a, b *filter.Filter) bool {
	return strings.EqualFold(a.String(), b.String())
}

// DBName returns the database name of the VLV index called name.
func DBName(name string) string {
	return "vlv." + strings.ToLower(name)
}

// VLVIndex keeps the entries selected by a base, scope and filter in one
// sort order, cut into blocks of bounded size, so that windows of the
// sorted list are read without sorting the result set.
//
// Each block is stored under the key of its greatest member, except the
// last block, which is stored under the empty key and holds every member
// above the greatest bounded key.
type VLVIndex struct {
	name   string
	dbName string
	store  kv.Store
	state  *index.State
	eval   *filter.Evaluator
	logger logging.Logger

	mu  sync.RWMutex
	db  kv.DB
	cfg *settings

	count          atomic.Int64
	trusted        atomic.Bool
	rebuildRunning atomic.Bool
}

// Open opens the VLV index described by cfg and counts its members.
func Open(store kv.Store, state *index.State, s *schema.Schema, cfg Config, logger logging.Logger) (*VLVIndex, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.Name == "" {
		return nil, errors.New("vlv index: empty name")
	}
	set, err := parseConfig(cfg, s)
	if err != nil {
		return nil, err
	}

	v := &VLVIndex{
		name:   cfg.Name,
		dbName: DBName(cfg.Name),
		store:  store,
		state:  state,
		eval:   filter.NewEvaluator(s),
		logger: logger.WithFields("vlvIndex", cfg.Name),
		cfg:    set,
	}
	v.db, err = store.Open(v.dbName, set.sorter.KeyComparator)
	if err != nil {
		return nil, fmt.Errorf("open vlv index %s: %w", cfg.Name, err)
	}
	trusted, err := state.GetTrusted(nil, v.dbName)
	if err != nil {
		return nil, fmt.Errorf("read state of %s: %w", v.dbName, err)
	}
	v.trusted.Store(trusted)

	n, err := v.countMembers()
	if err != nil {
		return nil, fmt.Errorf("count vlv index %s: %w", cfg.Name, err)
	}
	v.count.Store(int64(n))

	v.logger.Info("vlv index opened", "sortOrder", set.order.String(), "trusted", trusted,
		"count", n, "maxBlockSize", set.capacity, "compression", set.compression.String())
	return v, nil
}

func (v *VLVIndex) snapshot() (kv.DB, *settings) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.db, v.cfg
}

// Name returns the configured name.
func (v *VLVIndex) Name() string { return v.name }

// DBName returns the database name.
func (v *VLVIndex) DBName() string { return v.dbName }

// Count returns the number of members.
func (v *VLVIndex) Count() int { return int(v.count.Load()) }

// SortOrder returns the configured sort order.
func (v *VLVIndex) SortOrder() SortOrder {
	_, cfg := v.snapshot()
	return cfg.order
}

// Sorter returns the comparator of the configured sort order.
func (v *VLVIndex) Sorter() *Sorter {
	_, cfg := v.snapshot()
	return cfg.sorter
}

// Query returns the search this index answers, paged by req.
func (v *VLVIndex) Query(req *Request) Query {
	_, cfg := v.snapshot()
	return Query{BaseDN: cfg.baseDN, Scope: cfg.scope, Filter: cfg.filter, SortOrder: cfg.order, VLV: req}
}

// IsTrusted reports whether the index reflects the selected entries.
func (v *VLVIndex) IsTrusted() bool { return v.trusted.Load() }

// IsRebuildRunning reports whether a rebuild is in progress.
func (v *VLVIndex) IsRebuildRunning() bool { return v.rebuildRunning.Load() }

// SetTrusted persists the trust flag.
func (v *VLVIndex) SetTrusted(txn kv.Txn, trusted bool) error {
	if err := v.state.PutTrusted(txn, v.dbName, trusted); err != nil {
		return err
	}
	v.trusted.Store(trusted)
	return nil
}

// SetRebuildStatus marks a rebuild as running or finished.
func (v *VLVIndex) SetRebuildStatus(running bool) {
	v.rebuildRunning.Store(running)
}

// ShouldInclude reports whether e belongs in the index.
func (v *VLVIndex) ShouldInclude(e *entry.Entry) bool {
	_, cfg := v.snapshot()
	return entry.MatchesBaseAndScope(e.DN, cfg.baseDN, cfg.scope) && v.eval.Evaluate(cfg.filter, e)
}

// SortValuesOf returns the position of e in the sort order.
func (v *VLVIndex) SortValuesOf(id entry.ID, e *entry.Entry) SortValues {
	_, cfg := v.snapshot()
	return cfg.sorter.ValuesOf(id, e)
}

// AddEntry buffers the insertion of e. It reports whether e is selected.
func (v *VLVIndex) AddEntry(buf *IndexBuffer, id entry.ID, e *entry.Entry) bool {
	if !v.ShouldInclude(e) {
		return false
	}
	buf.AddValues(v, v.SortValuesOf(id, e))
	return true
}

// RemoveEntry buffers the removal of e. It reports whether e is selected.
func (v *VLVIndex) RemoveEntry(buf *IndexBuffer, id entry.ID, e *entry.Entry) bool {
	if !v.ShouldInclude(e) {
		return false
	}
	buf.DeleteValues(v, v.SortValuesOf(id, e))
	return true
}

// ModifyEntry buffers the changes caused by oldEntry becoming newEntry.
// The entry moves only when its membership changes or a sort attribute is
// modified.
func (v *VLVIndex) ModifyEntry(buf *IndexBuffer, id entry.ID, oldEntry, newEntry *entry.Entry, mods []entry.Modification) {
	wasIn, isIn := v.ShouldInclude(oldEntry), v.ShouldInclude(newEntry)
	switch {
	case wasIn && isIn:
		if v.sortAttributeModified(mods) {
			buf.DeleteValues(v, v.SortValuesOf(id, oldEntry))
			buf.AddValues(v, v.SortValuesOf(id, newEntry))
		}
	case wasIn:
		buf.DeleteValues(v, v.SortValuesOf(id, oldEntry))
	case isIn:
		buf.AddValues(v, v.SortValuesOf(id, newEntry))
	}
}

func (v *VLVIndex) sortAttributeModified(mods []entry.Modification) bool {
	if mods == nil {
		return true
	}
	modified := entry.ModifiedAttributes(mods)
	for _, attr := range v.SortOrder().Attributes() {
		if _, ok := modified[attr]; ok {
			return true
		}
	}
	return false
}

// readBlock decodes a stored block.
func readBlock(raw []byte, cfg *settings) (*SortValuesSet, error) {
	data, err := decompressBlock(raw)
	if err != nil {
		return nil, err
	}
	return DecodeSortValuesSet(data, len(cfg.order))
}

func readIDs(raw []byte) ([]entry.ID, error) {
	data, err := decompressBlock(raw)
	if err != nil {
		return nil, err
	}
	ids, _, err := decodeIDs(data)
	return ids, err
}

func readSize(raw []byte) (int, error) {
	data, err := decompressBlock(raw)
	if err != nil {
		return 0, err
	}
	return blockSize(data)
}

func (v *VLVIndex) putBlock(txn kv.Txn, db kv.DB, cfg *settings, key []byte, set *SortValuesSet) error {
	raw, err := compressBlock(set.Encode(), cfg.compression)
	if err != nil {
		return err
	}
	return db.Put(txn, key, raw)
}

// locate returns the block that holds or would hold the member encoded as
// key. When no stored block qualifies, an empty unbounded block is
// returned.
func locate(cur kv.Cursor, key []byte, cfg *settings) ([]byte, *SortValuesSet, error) {
	k, raw, err := cur.SearchKeyRange(key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, NewSortValuesSet(), nil
	}
	if err != nil {
		return nil, nil, err
	}
	set, err := readBlock(raw, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("block %x: %w", k, err)
	}
	return k, set, nil
}

// UpdateIndex applies sorted batches of additions and deletions in one
// ascending pass over the blocks. Each visited block takes every buffered
// change at or below its key, then splits when it reached the block size
// or is deleted when it became empty.
func (v *VLVIndex) UpdateIndex(txn kv.Txn, added, deleted []SortValues) error {
	if len(added) == 0 && len(deleted) == 0 {
		return nil
	}
	db, cfg := v.snapshot()
	st := cfg.sorter
	added = sortedUnique(st, added)
	deleted = sortedUnique(st, deleted)

	cur := db.OpenCursor(txn, kv.LockRMW)
	defer cur.Close()

	for len(added) > 0 || len(deleted) > 0 {
		var first SortValues
		switch {
		case len(added) == 0:
			first = deleted[0]
		case len(deleted) == 0:
			first = added[0]
		case st.Compare(added[0], deleted[0]) < 0:
			first = added[0]
		default:
			first = deleted[0]
		}

		key, set, err := locate(cur, encodeKey(first), cfg)
		if err != nil {
			return err
		}
		oldSize := set.Len()

		take := func(pending []SortValues) []SortValues {
			return pending
		}
		if len(key) > 0 {
			bound, err := decodeKey(key)
			if err != nil {
				return err
			}
			take = func(pending []SortValues) []SortValues {
				n := 0
				for n < len(pending) && st.Compare(pending[n], bound) <= 0 {
					n++
				}
				return pending[:n]
			}
		}

		batch := take(added)
		for _, sv := range batch {
			set.Add(st, sv)
		}
		added = added[len(batch):]

		batch = take(deleted)
		for _, sv := range batch {
			if !set.Remove(st, sv) {
				v.logger.Debug("vlv member to delete not found", "values", sv.String())
			}
		}
		deleted = deleted[len(batch):]

		newSize := set.Len()
		switch {
		case newSize >= cfg.capacity:
			if err := v.split(txn, db, cfg, key, set); err != nil {
				return err
			}
		case newSize == 0:
			if err := db.Delete(txn, key); err != nil && !errors.Is(err, kv.ErrNotFound) {
				return err
			}
		default:
			if err := v.putBlock(txn, db, cfg, key, set); err != nil {
				return err
			}
		}
		v.count.Add(int64(newSize - oldSize))
	}
	return nil
}

// split stores a block that reached the block size as several blocks. Each
// front part moves under the key of its own last member; the remainder
// keeps key.
func (v *VLVIndex) split(txn kv.Txn, db kv.DB, cfg *settings, key []byte, set *SortValuesSet) error {
	size := set.Len()
	for set.Len() >= cfg.capacity {
		front := set.Split(max(min(set.Len()/2, cfg.capacity/2), 1))
		frontKey := encodeKey(front.Last())
		if err := v.putBlock(txn, db, cfg, frontKey, front); err != nil {
			return err
		}
		v.logger.Debug("vlv block split", "size", size, "frontKey", front.Last().String(), "frontSize", front.Len())
	}
	return v.putBlock(txn, db, cfg, key, set)
}

// sortedUnique returns a sorted copy of values without duplicates.
func sortedUnique(st *Sorter, values []SortValues) []SortValues {
	out := slices.Clone(values)
	slices.SortFunc(out, st.Compare)
	return slices.CompactFunc(out, func(a, b SortValues) bool { return st.Compare(a, b) == 0 })
}

// ContainsValues reports whether sv is a member.
func (v *VLVIndex) ContainsValues(txn kv.Txn, sv SortValues) (bool, error) {
	db, cfg := v.snapshot()
	cur := db.OpenCursor(txn, kv.LockReadCommitted)
	defer cur.Close()

	_, set, err := locate(cur, encodeKey(sv), cfg)
	if err != nil {
		return false, err
	}
	_, found := set.Search(cfg.sorter, sv)
	return found, nil
}

// Blocks calls fn for every block in order until fn returns false. The
// bound of the unbounded block is nil.
func (v *VLVIndex) Blocks(txn kv.Txn, fn func(bound *SortValues, set *SortValuesSet) bool) error {
	db, cfg := v.snapshot()
	cur := db.OpenCursor(txn, kv.LockReadCommitted)
	defer cur.Close()

	for k, raw, err := cur.First(); ; k, raw, err = cur.Next() {
		if errors.Is(err, kv.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		set, err := readBlock(raw, cfg)
		if err != nil {
			return fmt.Errorf("block %x: %w", k, err)
		}
		var bound *SortValues
		if len(k) > 0 {
			b, err := decodeKey(k)
			if err != nil {
				return err
			}
			bound = &b
		}
		if !fn(bound, set) {
			return nil
		}
	}
}

func (v *VLVIndex) countMembers() (int, error) {
	db, _ := v.snapshot()
	cur := db.OpenCursor(nil, kv.LockReadCommitted)
	defer cur.Close()

	n := 0
	for _, raw, err := cur.First(); ; _, raw, err = cur.Next() {
		if errors.Is(err, kv.ErrNotFound) {
			return n, nil
		}
		if err != nil {
			return 0, err
		}
		size, err := readSize(raw)
		if err != nil {
			return 0, err
		}
		n += size
	}
}

// Recount recomputes the member count from the stored blocks. Callers use
// it after aborting a transaction that updated the index.
func (v *VLVIndex) Recount() error {
	n, err := v.countMembers()
	if err != nil {
		return err
	}
	v.count.Store(int64(n))
	return nil
}

// Clear removes every block.
func (v *VLVIndex) Clear(txn kv.Txn) error {
	db, _ := v.snapshot()
	if err := db.Truncate(txn); err != nil {
		return err
	}
	v.count.Store(0)
	return nil
}

// Reconfigure applies cfg. Changing the base, scope, filter or sort order,
// or shrinking the block size, leaves the stored blocks unusable: the
// index becomes untrusted and the returned flag asks for a rebuild.
func (v *VLVIndex) Reconfigure(cfg Config) (rebuildNeeded bool, err error) {
	next, err := parseConfig(cfg, v.eval.Schema())
	if err != nil {
		return false, err
	}

	v.mu.Lock()
	prev := v.cfg
	orderChanged := !prev.order.Equal(next.order)
	if orderChanged {
		if err := v.store.Drop(v.dbName); err != nil {
			v.mu.Unlock()
			return false, err
		}
		db, err := v.store.Open(v.dbName, next.sorter.KeyComparator)
		if err != nil {
			v.mu.Unlock()
			return false, err
		}
		v.db = db
		v.count.Store(0)
	}
	v.cfg = next
	v.mu.Unlock()

	rebuildNeeded = orderChanged || !prev.selects(next) || next.capacity < prev.capacity
	if rebuildNeeded {
		v.logger.Warn("vlv index reconfigured, rebuild required",
			"sortOrder", next.order.String(), "baseDN", next.baseDN, "filter", next.filter.String())
		if err := v.SetTrusted(nil, false); err != nil {
			return true, err
		}
	}
	return rebuildNeeded, nil
}

// Evaluate answers q from the index. It returns ErrIndexUnusable when the
// index is untrusted, being rebuilt, or built for another search.
func (v *VLVIndex) Evaluate(txn kv.Txn, q Query) (*Response, error) {
	db, cfg := v.snapshot()
	if !v.trusted.Load() || v.rebuildRunning.Load() || !cfg.answers(q) {
		return nil, ErrIndexUnusable
	}

	cur := db.OpenCursor(txn, kv.LockReadCommitted)
	defer cur.Close()

	switch {
	case q.VLV == nil:
		return v.evaluateAll(cur)
	case q.VLV.Target == TargetByAssertion:
		return v.evaluateAssertion(cur, cfg, q.VLV)
	default:
		return v.evaluateOffset(cur, q.VLV)
	}
}

func (s *settings) answers(q Query) bool {
	base, err := entry.NormalizeDN(q.BaseDN)
	if err != nil || q.Filter == nil {
		return false
	}
	return base == s.baseDN && q.Scope == s.scope && sameFilter(q.Filter, s.filter) && q.SortOrder.Equal(s.order)
}

func (v *VLVIndex) evaluateAll(cur kv.Cursor) (*Response, error) {
	ids := []entry.ID{}
	for _, raw, err := cur.First(); ; _, raw, err = cur.Next() {
		if errors.Is(err, kv.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		blockIDs, err := readIDs(raw)
		if err != nil {
			return nil, err
		}
		ids = append(ids, blockIDs...)
	}
	return &Response{IDs: ids, ContentCount: len(ids)}, nil
}

func (v *VLVIndex) evaluateOffset(cur kv.Cursor, req *Request) (*Response, error) {
	count := v.Count()
	start, want, target, err := offsetWindow(req, count)
	if err != nil {
		return nil, err
	}

	ids := make([]entry.ID, 0, min(want, count))
	pos := 0
	for _, raw, err := cur.First(); len(ids) < want; _, raw, err = cur.Next() {
		if errors.Is(err, kv.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		size, err := readSize(raw)
		if err != nil {
			return nil, err
		}
		if pos+size <= start {
			pos += size
			continue
		}
		blockIDs, err := readIDs(raw)
		if err != nil {
			return nil, err
		}
		for i := max(start-pos, 0); i < len(blockIDs) && len(ids) < want; i++ {
			ids = append(ids, blockIDs[i])
		}
		pos += size
	}
	return &Response{IDs: ids, TargetPosition: target, ContentCount: count}, nil
}

func (v *VLVIndex) evaluateAssertion(cur kv.Cursor, cfg *settings, req *Request) (*Response, error) {
	count := v.Count()
	before, after := max(req.BeforeCount, 0), max(req.AfterCount, 0)

	value, err := cfg.sorter.NormalizeAssertion(req.Assertion)
	if err != nil {
		return nil, fmt.Errorf("vlv assertion: %w", err)
	}
	probe := SortValues{ID: noID, Values: [][]byte{value}}

	key, raw, err := cur.SearchKeyRange(encodeKey(probe))
	pastEnd := errors.Is(err, kv.ErrNotFound)
	if pastEnd {
		key, raw, err = cur.Last()
		if errors.Is(err, kv.ErrNotFound) {
			return &Response{IDs: []entry.ID{}, TargetPosition: 1, ContentCount: count}, nil
		}
	}
	if err != nil {
		return nil, err
	}
	set, err := readBlock(raw, cfg)
	if err != nil {
		return nil, err
	}
	offset := set.Len()
	if !pastEnd {
		offset, _ = set.Search(cfg.sorter, probe)
	}

	// Walk back to collect the before window and to count every member
	// ahead of the target.
	target := offset
	var back []entry.ID
	blockIDs := set.IDs()
	for i := offset - 1; i >= 0 && len(back) < before; i-- {
		back = append(back, blockIDs[i])
	}
	for {
		_, raw, err := cur.Prev()
		if errors.Is(err, kv.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(back) < before {
			prevIDs, err := readIDs(raw)
			if err != nil {
				return nil, err
			}
			target += len(prevIDs)
			for i := len(prevIDs) - 1; i >= 0 && len(back) < before; i-- {
				back = append(back, prevIDs[i])
			}
			continue
		}
		size, err := readSize(raw)
		if err != nil {
			return nil, err
		}
		target += size
	}
	slices.Reverse(back)

	ids := append(back, blockIDs[offset:min(offset+after+1, len(blockIDs))]...)
	if len(ids)-len(back) < after+1 {
		if _, _, err := cur.SearchKey(key); err != nil {
			return nil, err
		}
		for len(ids)-len(back) < after+1 {
			_, raw, err := cur.Next()
			if errors.Is(err, kv.ErrNotFound) {
				break
			}
			if err != nil {
				return nil, err
			}
			nextIDs, err := readIDs(raw)
			if err != nil {
				return nil, err
			}
			ids = append(ids, nextIDs[:min(after+1-(len(ids)-len(back)), len(nextIDs))]...)
		}
	}
	if ids == nil {
		ids = []entry.ID{}
	}
	return &Response{IDs: ids, TargetPosition: target + 1, ContentCount: count}, nil
}
