package vlv

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/schema"
)

// ErrCorruptKey is returned when a block key cannot be decoded.
var ErrCorruptKey = errors.New("vlv: corrupt block key")

// noID marks sort values that position by value alone. It sorts before
// every real entry ID, which start at 1.
const noID entry.ID = 0

// SortValues is the position of one entry in a sort order: its normalized
// value for each sort key (nil when the entry has none) and its ID.
type SortValues struct {
	ID     entry.ID
	Values [][]byte
}

// Sorter compares sort values under one sort order.
type Sorter struct {
	order SortOrder
	rules []*schema.MatchingRule
}

// NewSorter resolves the ordering rule of every key of order in s.
func NewSorter(order SortOrder, s *schema.Schema) (*Sorter, error) {
	if s == nil {
		s = schema.NewSchema()
	}
	rules := make([]*schema.MatchingRule, len(order))
	for i, k := range order {
		if k.OrderingRule != "" {
			mr := s.GetMatchingRule(k.OrderingRule)
			if mr == nil {
				return nil, fmt.Errorf("%w: unknown ordering rule %q", ErrSortOrder, k.OrderingRule)
			}
			rules[i] = mr
			continue
		}
		rules[i] = s.OrderingRule(k.Attribute)
	}
	return &Sorter{order: order, rules: rules}, nil
}

// Order returns the sort order.
func (st *Sorter) Order() SortOrder { return st.order }

// ValuesOf returns the sort values of e. For each key the value that sorts
// first in that key's direction represents the entry.
func (st *Sorter) ValuesOf(id entry.ID, e *entry.Entry) SortValues {
	sv := SortValues{ID: id, Values: make([][]byte, len(st.order))}
	for i, k := range st.order {
		var best []byte
		for _, v := range e.Values(k.Attribute) {
			nv, err := st.rules[i].Normalize(v)
			if err != nil {
				continue
			}
			if best == nil || st.compareValue(i, nv, best) < 0 {
				best = nv
			}
		}
		sv.Values[i] = best
	}
	return sv
}

// NormalizeAssertion normalizes a value of the first sort key.
func (st *Sorter) NormalizeAssertion(v []byte) ([]byte, error) {
	if len(st.rules) == 0 {
		return nil, ErrSortOrder
	}
	return st.rules[0].Normalize(v)
}

func (st *Sorter) compareValue(i int, a, b []byte) int {
	c := st.rules[i].Compare(a, b)
	if st.order[i].Reverse {
		return -c
	}
	return c
}

// CompareValues orders value lists key by key. A missing value sorts
// after any present one regardless of direction. When one list is a
// prefix of the other the shorter sorts first.
func (st *Sorter) CompareValues(a, b [][]byte) int {
	n := min(len(a), len(b), len(st.rules))
	for i := 0; i < n; i++ {
		av, bv := a[i], b[i]
		switch {
		case av == nil && bv == nil:
			continue
		case av == nil:
			return 1
		case bv == nil:
			return -1
		}
		if c := st.compareValue(i, av, bv); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// Compare orders sort values by value, then by entry ID.
func (st *Sorter) Compare(a, b SortValues) int {
	if c := st.CompareValues(a.Values, b.Values); c != 0 {
		return c
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

// KeyComparator orders encoded block keys. The empty key of the unbounded
// block sorts after every other key.
func (st *Sorter) KeyComparator(a, b []byte) int {
	switch {
	case len(a) == 0 && len(b) == 0:
		return 0
	case len(a) == 0:
		return 1
	case len(b) == 0:
		return -1
	}
	av, aerr := decodeKey(a)
	bv, berr := decodeKey(b)
	if aerr != nil || berr != nil {
		return bytes.Compare(a, b)
	}
	return st.Compare(av, bv)
}

// encodeKey encodes sv as a block key: the number of values, each value
// as uvarint(len+1) and its bytes (0 for a missing value), then the
// 8-byte big-endian entry ID unless sv positions by value alone.
func encodeKey(sv SortValues) []byte {
	size := binary.MaxVarintLen64 + 8
	for _, v := range sv.Values {
		size += binary.MaxVarintLen64 + len(v)
	}
	buf := make([]byte, 0, size)
	buf = binary.AppendUvarint(buf, uint64(len(sv.Values)))
	buf = appendValues(buf, sv.Values)
	if sv.ID != noID {
		buf = binary.BigEndian.AppendUint64(buf, uint64(sv.ID))
	}
	return buf
}

func decodeKey(b []byte) (SortValues, error) {
	n, read := binary.Uvarint(b)
	if read <= 0 || n > uint64(len(b)) {
		return SortValues{}, ErrCorruptKey
	}
	values, rest, err := readValues(b[read:], int(n))
	if err != nil {
		return SortValues{}, ErrCorruptKey
	}
	sv := SortValues{Values: values}
	switch len(rest) {
	case 0:
	case 8:
		sv.ID = entry.ID(binary.BigEndian.Uint64(rest))
	default:
		return SortValues{}, ErrCorruptKey
	}
	return sv, nil
}

func appendValues(buf []byte, values [][]byte) []byte {
	for _, v := range values {
		if v == nil {
			buf = binary.AppendUvarint(buf, 0)
			continue
		}
		buf = binary.AppendUvarint(buf, uint64(len(v))+1)
		buf = append(buf, v...)
	}
	return buf
}

func readValues(b []byte, n int) ([][]byte, []byte, error) {
	values := make([][]byte, n)
	for i := 0; i < n; i++ {
		l, read := binary.Uvarint(b)
		if read <= 0 {
			return nil, nil, ErrCorruptKey
		}
		b = b[read:]
		if l == 0 {
			continue
		}
		l--
		if l > uint64(len(b)) {
			return nil, nil, ErrCorruptKey
		}
		values[i] = append([]byte{}, b[:l]...)
		b = b[l:]
	}
	return values, b, nil
}

// String renders sort values for logs.
func (sv SortValues) String() string {
	var sb bytes.Buffer
	sb.WriteByte('(')
	for i, v := range sv.Values {
		if i > 0 {
			sb.WriteByte(',')
		}
		if v == nil {
			sb.WriteString("<none>")
			continue
		}
		sb.Write(v)
	}
	fmt.Fprintf(&sb, ")#%d", uint64(sv.ID))
	return sb.String()
}
