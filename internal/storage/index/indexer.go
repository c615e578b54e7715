package index

import (
	"bytes"
	"slices"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/schema"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/kv"
)

// PresenceKey is the single key of a presence index.
var PresenceKey = []byte("+")

// Indexer derives the keys of one attribute index from entries.
type Indexer interface {
	// Type returns the kind of index the keys feed.
	Type() IndexType
	// Keys returns the distinct keys of an entry.
	Keys(e *entry.Entry) [][]byte
	// KeyDelta returns the keys to add and to remove when oldEntry becomes
	// newEntry through mods. A nil mods compares the entries in full.
	KeyDelta(oldEntry, newEntry *entry.Entry, mods []entry.Modification) (add, remove [][]byte)
	// Comparator orders the keys.
	Comparator() kv.Comparator
}

// NewIndexer returns the indexer of type t for attr. Substring keys are
// substringLength bytes long.
func NewIndexer(t IndexType, attr string, s *schema.Schema, substringLength int) Indexer {
	attr = normalizeAttr(attr)
	switch t {
	case IndexPresence:
		return &presenceIndexer{attr: attr}
	case IndexSubstring:
		if substringLength <= 0 {
			substringLength = DefaultSubstringLength
		}
		rule := s.SubstringRule(attr)
		return &valueIndexer{
			typ:  t,
			attr: attr,
			keysOf: func(v []byte) [][]byte {
				nv, err := rule.Normalize(v)
				if err != nil {
					return nil
				}
				return SubstringKeys(nv, substringLength)
			},
			cmp: kv.DefaultComparator,
		}
	case IndexOrdering:
		rule := s.OrderingRule(attr)
		return &valueIndexer{
			typ:    t,
			attr:   attr,
			keysOf: normalizedKey(rule),
			cmp:    rule.Compare,
		}
	case IndexApproximate:
		return &valueIndexer{
			typ:    t,
			attr:   attr,
			keysOf: normalizedKey(s.ApproximateRule(attr)),
			cmp:    kv.DefaultComparator,
		}
	default:
		return &valueIndexer{
			typ:    IndexEquality,
			attr:   attr,
			keysOf: normalizedKey(s.EqualityRule(attr)),
			cmp:    kv.DefaultComparator,
		}
	}
}

// normalizedKey keys a value by its normalized form. Values the rule
// rejects produce no key.
func normalizedKey(rule *schema.MatchingRule) func([]byte) [][]byte {
	return func(v []byte) [][]byte {
		nv, err := rule.Normalize(v)
		if err != nil {
			return nil
		}
		return [][]byte{nv}
	}
}

// valueIndexer derives keys from each value of one attribute.
type valueIndexer struct {
	typ    IndexType
	attr   string
	keysOf func([]byte) [][]byte
	cmp    kv.Comparator
}

func (x *valueIndexer) Type() IndexType           { return x.typ }
func (x *valueIndexer) Comparator() kv.Comparator { return x.cmp }

func (x *valueIndexer) Keys(e *entry.Entry) [][]byte {
	values := e.Values(x.attr)
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	var keys [][]byte
	for _, v := range values {
		for _, k := range x.keysOf(v) {
			if _, ok := seen[string(k)]; ok {
				continue
			}
			seen[string(k)] = struct{}{}
			keys = append(keys, k)
		}
	}
	return keys
}

func (x *valueIndexer) KeyDelta(oldEntry, newEntry *entry.Entry, mods []entry.Modification) (add, remove [][]byte) {
	if !touches(x.attr, mods) {
		return nil, nil
	}
	return keyDiff(x.Keys(oldEntry), x.Keys(newEntry))
}

// presenceIndexer keys every entry holding the attribute under PresenceKey.
type presenceIndexer struct {
	attr string
}

func (x *presenceIndexer) Type() IndexType           { return IndexPresence }
func (x *presenceIndexer) Comparator() kv.Comparator { return kv.DefaultComparator }

func (x *presenceIndexer) Keys(e *entry.Entry) [][]byte {
	if e.Has(x.attr) {
		return [][]byte{PresenceKey}
	}
	return nil
}

func (x *presenceIndexer) KeyDelta(oldEntry, newEntry *entry.Entry, mods []entry.Modification) (add, remove [][]byte) {
	if !touches(x.attr, mods) {
		return nil, nil
	}
	had, has := oldEntry.Has(x.attr), newEntry.Has(x.attr)
	switch {
	case !had && has:
		return [][]byte{PresenceKey}, nil
	case had && !has:
		return nil, [][]byte{PresenceKey}
	}
	return nil, nil
}

// touches reports whether mods may change attr. A nil mods touches
// everything.
func touches(attr string, mods []entry.Modification) bool {
	if mods == nil {
		return true
	}
	_, ok := entry.ModifiedAttributes(mods)[attr]
	return ok
}

// keyDiff returns the keys only in newKeys and the keys only in oldKeys.
func keyDiff(oldKeys, newKeys [][]byte) (add, remove [][]byte) {
	oldSet := make(map[string]struct{}, len(oldKeys))
	for _, k := range oldKeys {
		oldSet[string(k)] = struct{}{}
	}
	newSet := make(map[string]struct{}, len(newKeys))
	for _, k := range newKeys {
		newSet[string(k)] = struct{}{}
		if _, ok := oldSet[string(k)]; !ok {
			add = append(add, k)
		}
	}
	for _, k := range oldKeys {
		if _, ok := newSet[string(k)]; !ok {
			remove = append(remove, k)
		}
	}
	return add, remove
}

func sortKeys(keys [][]byte) {
	slices.SortFunc(keys, bytes.Compare)
}
