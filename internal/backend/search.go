package backend

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/filter"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/index"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/kv"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/vlv"
)

// Candidates returns a superset of the IDs of the entries matching f,
// computed from the attribute indexes alone. An Undefined result means the
// indexes cannot narrow the search.
//
// AND intersects its children, treating Undefined as the identity, and
// stops once the running set is small. OR unions its children within the
// cursor entry limit. NOT, extensible matches and attributes without a
// usable index are Undefined.
func (ec *EntryContainer) Candidates(txn kv.Txn, f *filter.Filter) *index.EntryIDSet {
	if f == nil {
		return index.NewUndefinedSet()
	}

	switch f.Type {
	case filter.FilterAnd:
		threshold := uint64(ec.candidateThreshold())
		result := index.NewUndefinedSet()
		ranges, rest := ec.boundedRanges(f.Children)
		for _, r := range ranges {
			result.RetainAll(r.attr.EvaluateBoundedRange(txn, r.lower.Value, r.upper.Value))
			if result.IsDefined() && result.Size() <= threshold {
				return result
			}
		}
		for _, c := range rest {
			result.RetainAll(ec.Candidates(txn, c))
			if result.IsDefined() && result.Size() <= threshold {
				break
			}
		}
		return result

	case filter.FilterOr:
		sets := make([]*index.EntryIDSet, 0, len(f.Children))
		for _, c := range f.Children {
			s := ec.Candidates(txn, c)
			if !s.IsDefined() {
				return index.NewUndefinedSet()
			}
			sets = append(sets, s)
		}
		return index.UnionOfSets(sets, ec.cursorEntryLimit())

	case filter.FilterNot, filter.FilterExtensibleMatch:
		return index.NewUndefinedSet()
	}

	a := ec.AttributeIndex(f.Attribute)
	if a == nil || !a.Supports(f) {
		return index.NewUndefinedSet()
	}
	return a.EvaluateFilter(txn, f)
}

type boundedRange struct {
	attr         *index.AttributeIndex
	lower, upper *filter.Filter
}

// boundedRanges pairs each >= child with a <= child on the same attribute
// when its ordering index can answer both, so the pair is read as one
// closed range. Unpaired children are returned in their original order.
func (ec *EntryContainer) boundedRanges(children []*filter.Filter) ([]boundedRange, []*filter.Filter) {
	var (
		ranges []boundedRange
		rest   []*filter.Filter
	)
	paired := make(map[int]bool)
	for i, ge := range children {
		if ge.Type != filter.FilterGreaterOrEqual {
			continue
		}
		a := ec.AttributeIndex(ge.Attribute)
		if a == nil || !a.Supports(ge) {
			continue
		}
		for j, le := range children {
			if paired[j] || le.Type != filter.FilterLessOrEqual || !strings.EqualFold(le.Attribute, ge.Attribute) {
				continue
			}
			ranges = append(ranges, boundedRange{attr: a, lower: ge, upper: le})
			paired[i], paired[j] = true, true
			break
		}
	}
	for i, c := range children {
		if !paired[i] {
			rest = append(rest, c)
		}
	}
	return ranges, rest
}

// Search returns the entries within base and scope that match f, in ID
// order. Candidates from the indexes are verified against the entry
// itself; without candidates every entry in scope is checked. A nil f
// matches every entry.
func (ec *EntryContainer) Search(base string, scope entry.Scope, f *filter.Filter) ([]*entry.Entry, error) {
	_, entries, err := ec.search(base, scope, f)
	return entries, err
}

func (ec *EntryContainer) search(base string, scope entry.Scope, f *filter.Filter) ([]entry.ID, []*entry.Entry, error) {
	if f == nil {
		f = filter.NewPresentFilter("objectClass")
	}
	baseKey, err := dnKey(base)
	if err != nil {
		return nil, nil, err
	}
	if len(baseKey) > 0 {
		if _, err := ec.lookupDN(nil, baseKey, kv.LockReadCommitted); err != nil {
			return nil, nil, err
		}
	}

	ids, err := ec.scopeIDs(nil, baseKey, scope)
	if err != nil {
		return nil, nil, err
	}
	candidates := ec.Candidates(nil, f)
	candidates.RetainAll(ids)

	var (
		matchedIDs []entry.ID
		entries    []*entry.Entry
	)
	for id := range candidates.Iter() {
		e, err := ec.getEntry(nil, id, kv.LockReadCommitted)
		if errors.Is(err, ErrEntryNotFound) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		if !ec.eval.Evaluate(f, e) {
			continue
		}
		matchedIDs = append(matchedIDs, id)
		entries = append(entries, e)
	}
	return matchedIDs, entries, nil
}

// VLVSearch answers q from the VLV index called name. When that index
// cannot answer q, or name is empty, the matching entries are searched
// and sorted instead, giving the same response.
func (ec *EntryContainer) VLVSearch(name string, q vlv.Query) (*vlv.Response, error) {
	if name != "" {
		v := ec.VLVIndex(name)
		if v == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownIndex, name)
		}
		resp, err := v.Evaluate(nil, q)
		if !errors.Is(err, vlv.ErrIndexUnusable) {
			return resp, err
		}
		ec.logger.Debug("VLV index cannot answer search, sorting", "index", name)
	}
	return ec.sortedSearch(q)
}

func (ec *EntryContainer) sortedSearch(q vlv.Query) (*vlv.Response, error) {
	if len(q.SortOrder) == 0 {
		return nil, &vlv.ResultError{Code: vlv.ResultSortControlMissing, Err: vlv.ErrSortOrder}
	}
	st, err := vlv.NewSorter(q.SortOrder, ec.schema)
	if err != nil {
		return nil, err
	}

	ids, entries, err := ec.search(q.BaseDN, q.Scope, q.Filter)
	if err != nil {
		return nil, err
	}
	svs := make([]vlv.SortValues, len(ids))
	for i, id := range ids {
		svs[i] = st.ValuesOf(id, entries[i])
	}
	slices.SortFunc(svs, st.Compare)

	sorted := make([]entry.ID, len(svs))
	for i, sv := range svs {
		sorted[i] = sv.ID
	}

	target := 0
	if q.VLV != nil && q.VLV.Target == vlv.TargetByAssertion {
		value, err := st.NormalizeAssertion(q.VLV.Assertion)
		if err != nil {
			return nil, fmt.Errorf("vlv assertion: %w", err)
		}
		probe := vlv.SortValues{Values: [][]byte{value}}
		target = sort.Search(len(svs), func(i int) bool { return st.Compare(svs[i], probe) >= 0 })
	}
	return vlv.Page(sorted, q.VLV, target)
}
