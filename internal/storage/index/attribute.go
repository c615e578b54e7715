package index

import (
	"fmt"
	"slices"
	"sync"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/filter"
	"github.com/KilimcininKorOglu/obaidx/internal/logging"
	"github.com/KilimcininKorOglu/obaidx/internal/schema"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/kv"
)

// AttributeConfig configures the indexes of one attribute.
type AttributeConfig struct {
	Attribute        string
	Types            []IndexType
	EntryLimit       int
	CursorEntryLimit int
	SubstringLength  int
	MaintainCount    bool
}

func (c AttributeConfig) options() Options {
	return Options{
		EntryLimit:       c.EntryLimit,
		CursorEntryLimit: c.CursorEntryLimit,
		MaintainCount:    c.MaintainCount,
	}
}

func (c AttributeConfig) substringLength() int {
	if c.SubstringLength <= 0 {
		return DefaultSubstringLength
	}
	return c.SubstringLength
}

// AttributeIndex groups the indexes of one attribute type and evaluates
// single-attribute filters against them.
//
// Every evaluator returns an empty Defined set when the index it needs is
// not configured or the assertion value cannot be normalized.
type AttributeIndex struct {
	attr            string
	schema          *schema.Schema
	substringLength int
	logger          logging.Logger

	mu      sync.RWMutex
	indexes map[IndexType]*Index
}

// IndexName returns the database name of the index of type t on attr.
func IndexName(attr string, t IndexType) string {
	return normalizeAttr(attr) + "." + t.String()
}

// OpenAttributeIndex opens one Index per configured type.
func OpenAttributeIndex(store kv.Store, state *State, s *schema.Schema, cfg AttributeConfig, logger logging.Logger) (*AttributeIndex, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if s == nil {
		s = schema.NewSchema()
	}
	attr := normalizeAttr(cfg.Attribute)
	if attr == "" {
		return nil, fmt.Errorf("attribute index: empty attribute name")
	}
	subLen := cfg.substringLength()

	a := &AttributeIndex{
		attr:            attr,
		schema:          s,
		substringLength: subLen,
		logger:          logger,
		indexes:         make(map[IndexType]*Index, len(cfg.Types)),
	}
	for _, t := range cfg.Types {
		if _, ok := a.indexes[t]; ok {
			continue
		}
		x, err := Open(store, state, IndexName(attr, t), NewIndexer(t, attr, s, subLen), cfg.options(), logger)
		if err != nil {
			return nil, err
		}
		a.indexes[t] = x
		logger.Info("index opened", "index", x.Name(), "trusted", x.IsTrusted(), "keys", x.KeyCount())
	}
	return a, nil
}

// Attribute returns the lowercase attribute name.
func (a *AttributeIndex) Attribute() string { return a.attr }

// Index returns the sub-index of type t, or nil.
func (a *AttributeIndex) Index(t IndexType) *Index {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.indexes[t]
}

// Indexes returns every sub-index in type order.
func (a *AttributeIndex) Indexes() []*Index {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]*Index, 0, len(a.indexes))
	for _, t := range AllIndexTypes {
		if x := a.indexes[t]; x != nil {
			out = append(out, x)
		}
	}
	return out
}

// Types returns the configured index types in type order.
func (a *AttributeIndex) Types() []IndexType {
	var out []IndexType
	for _, x := range a.Indexes() {
		out = append(out, x.Indexer().Type())
	}
	return out
}

// EntryLimitExceededCount sums the counter of every sub-index.
func (a *AttributeIndex) EntryLimitExceededCount() int64 {
	var n int64
	for _, x := range a.Indexes() {
		n += x.EntryLimitExceededCount()
	}
	return n
}

// ApplyConfig updates the entry limits of every sub-index. It returns the
// sub-indexes that need a rebuild for the new limits to apply.
func (a *AttributeIndex) ApplyConfig(cfg AttributeConfig) []*Index {
	var rebuild []*Index
	for _, x := range a.Indexes() {
		if x.SetOptions(cfg.options()) {
			rebuild = append(rebuild, x)
		}
	}
	return rebuild
}

// SubstringLength returns the length of the substring index keys.
func (a *AttributeIndex) SubstringLength() int { return a.substringLength }

// SubstringLengthChanged reports whether cfg cuts substring keys to a
// different length than the existing substring index holds. Such an
// index has to be reopened and rebuilt.
func (a *AttributeIndex) SubstringLengthChanged(cfg AttributeConfig) bool {
	return a.Index(IndexSubstring) != nil && cfg.substringLength() != a.substringLength
}

// AddEntry indexes e under id in every sub-index.
func (a *AttributeIndex) AddEntry(txn kv.Txn, id entry.ID, e *entry.Entry) error {
	for _, x := range a.Indexes() {
		if err := x.AddEntry(txn, id, e); err != nil {
			return err
		}
	}
	return nil
}

// RemoveEntry removes id for e from every sub-index.
func (a *AttributeIndex) RemoveEntry(txn kv.Txn, id entry.ID, e *entry.Entry) error {
	for _, x := range a.Indexes() {
		if err := x.RemoveEntry(txn, id, e); err != nil {
			return err
		}
	}
	return nil
}

// ModifyEntry updates every sub-index for oldEntry becoming newEntry.
func (a *AttributeIndex) ModifyEntry(txn kv.Txn, id entry.ID, oldEntry, newEntry *entry.Entry, mods []entry.Modification) error {
	for _, x := range a.Indexes() {
		if err := x.ModifyEntry(txn, id, oldEntry, newEntry, mods); err != nil {
			return err
		}
	}
	return nil
}

// IndexTypeFor returns the index type that evaluates filters of type ft.
func IndexTypeFor(ft filter.FilterType) (IndexType, bool) {
	switch ft {
	case filter.FilterEquality:
		return IndexEquality, true
	case filter.FilterPresent:
		return IndexPresence, true
	case filter.FilterSubstring:
		return IndexSubstring, true
	case filter.FilterGreaterOrEqual, filter.FilterLessOrEqual:
		return IndexOrdering, true
	case filter.FilterApproxMatch:
		return IndexApproximate, true
	default:
		return 0, false
	}
}

// Supports reports whether f can be answered by a trusted sub-index that
// is not being rebuilt. A substring filter with an initial component is
// also served by the equality index.
func (a *AttributeIndex) Supports(f *filter.Filter) bool {
	if f == nil || normalizeAttr(f.Attribute) != a.attr {
		return false
	}
	t, ok := IndexTypeFor(f.Type)
	if !ok {
		return false
	}
	if usable(a.Index(t)) {
		return true
	}
	return t == IndexSubstring && f.Substring != nil && len(f.Substring.Initial) > 0 &&
		len(f.Substring.Any) == 0 && len(f.Substring.Final) == 0 && usable(a.Index(IndexEquality))
}

// EvaluateFilter dispatches a single-attribute filter to its evaluator.
// Filters no sub-index handles yield an Undefined set.
func (a *AttributeIndex) EvaluateFilter(txn kv.Txn, f *filter.Filter) *EntryIDSet {
	switch f.Type {
	case filter.FilterEquality:
		return a.EvaluateEquality(txn, f.Value)
	case filter.FilterPresent:
		return a.EvaluatePresence(txn)
	case filter.FilterSubstring:
		if f.Substring == nil {
			return NewEntryIDSet()
		}
		return a.EvaluateSubstring(txn, f.Substring.Initial, f.Substring.Any, f.Substring.Final)
	case filter.FilterGreaterOrEqual:
		return a.EvaluateGreaterOrEqual(txn, f.Value)
	case filter.FilterLessOrEqual:
		return a.EvaluateLessOrEqual(txn, f.Value)
	case filter.FilterApproxMatch:
		return a.EvaluateApproximate(txn, f.Value)
	default:
		return NewUndefinedSet()
	}
}

// EvaluateEquality reads the key of value normalized by the equality rule.
func (a *AttributeIndex) EvaluateEquality(txn kv.Txn, value []byte) *EntryIDSet {
	x := a.Index(IndexEquality)
	if x == nil {
		return NewEntryIDSet()
	}
	key, err := a.schema.EqualityRule(a.attr).Normalize(value)
	if err != nil {
		return a.unevaluable("equality", err)
	}
	return x.ReadKey(txn, key)
}

// EvaluatePresence reads the presence key.
func (a *AttributeIndex) EvaluatePresence(txn kv.Txn) *EntryIDSet {
	x := a.Index(IndexPresence)
	if x == nil {
		return NewEntryIDSet()
	}
	return x.ReadKey(txn, PresenceKey)
}

// EvaluateApproximate reads the key of value normalized by the
// approximate rule.
func (a *AttributeIndex) EvaluateApproximate(txn kv.Txn, value []byte) *EntryIDSet {
	x := a.Index(IndexApproximate)
	if x == nil {
		return NewEntryIDSet()
	}
	key, err := a.schema.ApproximateRule(a.attr).Normalize(value)
	if err != nil {
		return a.unevaluable("approximate", err)
	}
	return x.ReadKey(txn, key)
}

// EvaluateGreaterOrEqual reads the ordering keys in [value, +inf).
func (a *AttributeIndex) EvaluateGreaterOrEqual(txn kv.Txn, value []byte) *EntryIDSet {
	return a.evaluateOrdering(txn, value, true)
}

// EvaluateLessOrEqual reads the ordering keys in (-inf, value].
func (a *AttributeIndex) EvaluateLessOrEqual(txn kv.Txn, value []byte) *EntryIDSet {
	return a.evaluateOrdering(txn, value, false)
}

func (a *AttributeIndex) evaluateOrdering(txn kv.Txn, value []byte, greater bool) *EntryIDSet {
	x := a.Index(IndexOrdering)
	if x == nil {
		return NewEntryIDSet()
	}
	key, err := a.schema.OrderingRule(a.attr).Normalize(value)
	if err != nil {
		return a.unevaluable("ordering", err)
	}
	if greater {
		return x.ReadRange(txn, key, nil, true, false)
	}
	return x.ReadRange(txn, nil, key, false, true)
}

// EvaluateBoundedRange reads the ordering keys in [lower, upper].
func (a *AttributeIndex) EvaluateBoundedRange(txn kv.Txn, lower, upper []byte) *EntryIDSet {
	x := a.Index(IndexOrdering)
	if x == nil {
		return NewEntryIDSet()
	}
	rule := a.schema.OrderingRule(a.attr)
	lo, err := rule.Normalize(lower)
	if err != nil {
		return a.unevaluable("ordering", err)
	}
	hi, err := rule.Normalize(upper)
	if err != nil {
		return a.unevaluable("ordering", err)
	}
	return x.ReadRange(txn, lo, hi, true, true)
}

// EvaluateSubstring narrows candidates for (attr=initial*any*...*final).
// With an equality index the initial component is a prefix scan of the
// equality keys, tried first. The remaining components are matched
// against the substring index until the candidates are few enough.
func (a *AttributeIndex) EvaluateSubstring(txn kv.Txn, initial []byte, middle [][]byte, final []byte) *EntryIDSet {
	rule := a.schema.SubstringRule(a.attr)
	normalize := func(v []byte) ([]byte, error) {
		if len(v) == 0 {
			return nil, nil
		}
		return rule.Normalize(v)
	}

	nInitial, err := normalize(initial)
	if err != nil {
		return a.unevaluable("substring", err)
	}
	var elements [][]byte
	for _, v := range middle {
		nv, err := normalize(v)
		if err != nil {
			return a.unevaluable("substring", err)
		}
		if len(nv) > 0 {
			elements = append(elements, nv)
		}
	}
	nFinal, err := normalize(final)
	if err != nil {
		return a.unevaluable("substring", err)
	}
	if len(nFinal) > 0 {
		elements = append(elements, nFinal)
	}

	eq := a.Index(IndexEquality)
	if !usable(eq) {
		eq = nil
	}
	sub := a.Index(IndexSubstring)

	results := NewUndefinedSet()
	if len(nInitial) > 0 {
		if eq != nil {
			results.RetainAll(prefixRange(txn, eq, nInitial))
			if small(results) {
				return results
			}
		} else {
			elements = append([][]byte{nInitial}, elements...)
		}
	}

	if sub == nil {
		if results.IsDefined() {
			return results
		}
		return NewEntryIDSet()
	}
	for _, elem := range elements {
		results.RetainAll(a.matchSubstring(txn, sub, elem))
		if small(results) {
			break
		}
	}
	return results
}

// matchSubstring returns the candidates containing value. Values shorter
// than a key are a prefix scan of the keys; longer ones intersect the
// sets of their fragments.
func (a *AttributeIndex) matchSubstring(txn kv.Txn, sub *Index, value []byte) *EntryIDSet {
	if len(value) < a.substringLength {
		return prefixRange(txn, sub, value)
	}
	results := NewUndefinedSet()
	for _, frag := range assertionFragments(value, a.substringLength) {
		results.RetainAll(sub.ReadKey(txn, frag))
		if small(results) {
			break
		}
	}
	return results
}

// prefixRange reads every key starting with prefix.
func prefixRange(txn kv.Txn, x *Index, prefix []byte) *EntryIDSet {
	upper, ok := increment(prefix)
	if !ok {
		return x.ReadRange(txn, prefix, nil, true, false)
	}
	return x.ReadRange(txn, prefix, upper, true, false)
}

func usable(x *Index) bool {
	return x != nil && x.IsTrusted() && !x.IsRebuildRunning()
}

func small(s *EntryIDSet) bool {
	return s.IsDefined() && s.Size() <= CandidateThreshold
}

func (a *AttributeIndex) unevaluable(kind string, err error) *EntryIDSet {
	a.logger.Debug("assertion value not indexable", "attribute", a.attr, "filter", kind, "error", err.Error())
	return NewEntryIDSet()
}

// Names returns the database names of the sub-indexes, sorted.
func (a *AttributeIndex) Names() []string {
	var names []string
	for _, x := range a.Indexes() {
		names = append(names, x.Name())
	}
	slices.Sort(names)
	return names
}
