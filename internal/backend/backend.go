package backend

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/KilimcininKorOglu/obaidx/internal/config"
	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/filter"
	"github.com/KilimcininKorOglu/obaidx/internal/logging"
	"github.com/KilimcininKorOglu/obaidx/internal/schema"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/index"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/kv"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/vlv"
)

// Backend errors.
var (
	// ErrEntryNotFound is returned when an entry is not found.
	ErrEntryNotFound = errors.New("backend: entry not found")
	// ErrEntryExists is returned when an entry already exists.
	ErrEntryExists = errors.New("backend: entry already exists")
	// ErrInvalidDN is returned when a DN is invalid or outside the base DN.
	ErrInvalidDN = errors.New("backend: invalid DN")
	// ErrInvalidEntry is returned when an entry is invalid.
	ErrInvalidEntry = errors.New("backend: invalid entry")
	// ErrNoParent is returned when the parent entry does not exist.
	ErrNoParent = errors.New("backend: parent entry does not exist")
	// ErrNotAllowedOnNonLeaf is returned when trying to delete an entry with children.
	ErrNotAllowedOnNonLeaf = errors.New("backend: operation not allowed on non-leaf entry")
	// ErrUnknownIndex is returned for an index name that is not configured.
	ErrUnknownIndex = errors.New("backend: unknown index")
	// ErrCorruptEntry is returned when a stored entry cannot be decoded.
	ErrCorruptEntry = errors.New("backend: corrupt entry record")
)

// Database names of the primary store.
const (
	id2entryDB = "id2entry"
	dn2idDB    = "dn2id"
)

// EntryContainer stores entries by ID and keeps every configured attribute
// index and VLV index consistent with them.
type EntryContainer struct {
	store  kv.Store
	schema *schema.Schema
	eval   *filter.Evaluator
	state  *index.State
	logger logging.Logger

	id2entry kv.DB
	dn2id    kv.DB
	lastID   atomic.Uint64
	cache    *entryCache

	// writeMu serializes Add, Delete, Modify and Rebuild.
	writeMu sync.Mutex

	mu          sync.RWMutex
	settings    config.BackendConfig
	baseDN      string
	attrIndexes map[string]*index.AttributeIndex
	vlvIndexes  map[string]*vlv.VLVIndex
}

// Open opens the entry databases and every index named by cfg. Indexes
// are opened concurrently. When the container holds no entries yet, every
// index starts out trusted.
func Open(store kv.Store, s *schema.Schema, cfg *config.Config, logger logging.Logger) (*EntryContainer, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if s == nil {
		s = schema.LoadDefaultSchema()
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	baseDN, err := entry.NormalizeDN(cfg.Backend.BaseDN)
	if err != nil {
		return nil, fmt.Errorf("%w: base DN: %v", ErrInvalidDN, err)
	}

	ec := &EntryContainer{
		store:       store,
		schema:      s,
		eval:        filter.NewEvaluator(s),
		logger:      logger,
		settings:    cfg.Backend,
		baseDN:      baseDN,
		cache:       newEntryCache(cfg.Backend.EntryCacheSize),
		attrIndexes: make(map[string]*index.AttributeIndex),
		vlvIndexes:  make(map[string]*vlv.VLVIndex),
	}

	if ec.state, err = index.OpenState(store); err != nil {
		return nil, err
	}
	if ec.id2entry, err = store.Open(id2entryDB, nil); err != nil {
		return nil, err
	}
	if ec.dn2id, err = store.Open(dn2idDB, nil); err != nil {
		return nil, err
	}

	last, err := ec.highestID()
	if err != nil {
		return nil, err
	}
	ec.lastID.Store(uint64(last))

	attrs, vlvs, err := ec.openIndexes(cfg)
	if err != nil {
		return nil, err
	}
	for _, a := range attrs {
		ec.attrIndexes[a.Attribute()] = a
	}
	for _, v := range vlvs {
		ec.vlvIndexes[strings.ToLower(v.Name())] = v
	}

	if last == 0 {
		if err := ec.trustEmptyIndexes(); err != nil {
			return nil, err
		}
	}

	logger.Info("backend opened",
		"baseDN", baseDN,
		"entries", ec.id2entry.Count(),
		"attributeIndexes", len(ec.attrIndexes),
		"vlvIndexes", len(ec.vlvIndexes))
	return ec, nil
}

func (ec *EntryContainer) openIndexes(cfg *config.Config) ([]*index.AttributeIndex, []*vlv.VLVIndex, error) {
	attrs := make([]*index.AttributeIndex, len(cfg.Indexes))
	vlvs := make([]*vlv.VLVIndex, len(cfg.VLVIndexes))

	g := new(errgroup.Group)
	g.SetLimit(max(cfg.Backend.OpenConcurrency, 1))

	for i, ic := range cfg.Indexes {
		g.Go(func() error {
			ac, err := attributeConfig(ic, cfg.Backend)
			if err != nil {
				return err
			}
			a, err := index.OpenAttributeIndex(ec.store, ec.state, ec.schema, ac, ec.logger)
			if err != nil {
				return fmt.Errorf("open %s index: %w", ic.Attribute, err)
			}
			attrs[i] = a
			return nil
		})
	}
	for i, vc := range cfg.VLVIndexes {
		g.Go(func() error {
			c, err := vlvConfig(vc)
			if err != nil {
				return err
			}
			v, err := vlv.Open(ec.store, ec.state, ec.schema, c, ec.logger)
			if err != nil {
				return fmt.Errorf("open VLV index %s: %w", vc.Name, err)
			}
			vlvs[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return attrs, vlvs, nil
}

// attributeConfig converts an index section, filling unset limits from the
// backend defaults.
func attributeConfig(ic config.IndexConfig, bc config.BackendConfig) (index.AttributeConfig, error) {
	ac := index.AttributeConfig{
		Attribute:        ic.Attribute,
		EntryLimit:       ic.EntryLimit,
		CursorEntryLimit: ic.CursorEntryLimit,
		SubstringLength:  ic.SubstringLength,
		MaintainCount:    ic.MaintainCount,
	}
	if ac.EntryLimit == 0 {
		ac.EntryLimit = bc.IndexEntryLimit
	}
	if ac.CursorEntryLimit == 0 {
		ac.CursorEntryLimit = bc.CursorEntryLimit
	}
	if ac.SubstringLength == 0 {
		ac.SubstringLength = bc.SubstringLength
	}
	for _, name := range ic.Types {
		t, err := index.ParseIndexType(name)
		if err != nil {
			return ac, fmt.Errorf("index %s: %w", ic.Attribute, err)
		}
		ac.Types = append(ac.Types, t)
	}
	return ac, nil
}

func vlvConfig(vc config.VLVIndexConfig) (vlv.Config, error) {
	scope, err := entry.ParseScope(vc.Scope)
	if err != nil {
		return vlv.Config{}, fmt.Errorf("VLV index %s: %w", vc.Name, err)
	}
	return vlv.Config{
		Name:         vc.Name,
		BaseDN:       vc.BaseDN,
		Scope:        scope,
		Filter:       vc.Filter,
		SortOrder:    vc.SortOrder,
		MaxBlockSize: vc.MaxBlockSize,
		Compression:  vc.Compression,
	}, nil
}

// trustEmptyIndexes marks every untrusted index trusted. It is only valid
// while the container holds no entries.
func (ec *EntryContainer) trustEmptyIndexes() error {
	txn := ec.store.Begin()
	for _, a := range ec.attrIndexes {
		for _, x := range a.Indexes() {
			if x.IsTrusted() {
				continue
			}
			if err := x.SetTrusted(txn, true); err != nil {
				_ = txn.Abort()
				return err
			}
		}
	}
	for _, v := range ec.vlvIndexes {
		if v.IsTrusted() {
			continue
		}
		if err := v.SetTrusted(txn, true); err != nil {
			_ = txn.Abort()
			return err
		}
	}
	return txn.Commit()
}

func (ec *EntryContainer) highestID() (entry.ID, error) {
	cur := ec.id2entry.OpenCursor(nil, kv.LockReadCommitted)
	defer cur.Close()

	k, _, err := cur.Last()
	if errors.Is(err, kv.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return decodeIDKey(k)
}

// Close releases the underlying store.
func (ec *EntryContainer) Close() error {
	return ec.store.Close()
}

// Schema returns the schema used for matching.
func (ec *EntryContainer) Schema() *schema.Schema { return ec.schema }

// BaseDN returns the normalized base DN; entries must lie at or below it.
func (ec *EntryContainer) BaseDN() string {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return ec.baseDN
}

// EntryCount returns the number of stored entries.
func (ec *EntryContainer) EntryCount() int { return ec.id2entry.Count() }

// AttributeIndex returns the index group of attr, or nil.
func (ec *EntryContainer) AttributeIndex(attr string) *index.AttributeIndex {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return ec.attrIndexes[strings.ToLower(strings.TrimSpace(attr))]
}

// AttributeIndexes returns every attribute index ordered by attribute.
func (ec *EntryContainer) AttributeIndexes() []*index.AttributeIndex {
	ec.mu.RLock()
	out := make([]*index.AttributeIndex, 0, len(ec.attrIndexes))
	for _, a := range ec.attrIndexes {
		out = append(out, a)
	}
	ec.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Attribute() < out[j].Attribute() })
	return out
}

// VLVIndex returns the VLV index called name, or nil.
func (ec *EntryContainer) VLVIndex(name string) *vlv.VLVIndex {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return ec.vlvIndexes[strings.ToLower(name)]
}

// VLVIndexes returns every VLV index ordered by name.
func (ec *EntryContainer) VLVIndexes() []*vlv.VLVIndex {
	ec.mu.RLock()
	out := make([]*vlv.VLVIndex, 0, len(ec.vlvIndexes))
	for _, v := range ec.vlvIndexes {
		out = append(out, v)
	}
	ec.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// indexes returns the current attribute and VLV indexes.
func (ec *EntryContainer) indexes() ([]*index.AttributeIndex, []*vlv.VLVIndex) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	attrs := make([]*index.AttributeIndex, 0, len(ec.attrIndexes))
	for _, a := range ec.attrIndexes {
		attrs = append(attrs, a)
	}
	vlvs := make([]*vlv.VLVIndex, 0, len(ec.vlvIndexes))
	for _, v := range ec.vlvIndexes {
		vlvs = append(vlvs, v)
	}
	return attrs, vlvs
}

func (ec *EntryContainer) candidateThreshold() int {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	if ec.settings.CandidateThreshold > 0 {
		return ec.settings.CandidateThreshold
	}
	return index.CandidateThreshold
}

func (ec *EntryContainer) cursorEntryLimit() int {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return ec.settings.CursorEntryLimit
}

// idKey encodes id so that keys sort in ID order.
func idKey(id entry.ID) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(id))
	return k
}

func decodeIDKey(k []byte) (entry.ID, error) {
	if len(k) != 8 {
		return 0, fmt.Errorf("%w: ID key of %d bytes", ErrCorruptEntry, len(k))
	}
	return entry.ID(binary.BigEndian.Uint64(k)), nil
}
