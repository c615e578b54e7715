package vlv

import (
	"encoding/binary"
	"errors"
	"slices"
	"sort"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
)

// ErrCorruptBlock is returned when a stored block cannot be decoded.
var ErrCorruptBlock = errors.New("vlv: corrupt block")

// SortValuesSet is one block of a VLV index: a run of members in strictly
// ascending sort order.
//
// Encoded, a block is the member count as a uvarint, the 8-byte big-endian
// entry IDs of every member, then each member's values in key order, each
// as uvarint(len+1) and its bytes.
type SortValuesSet struct {
	ids    []entry.ID
	values [][][]byte
}

// NewSortValuesSet returns an empty block.
func NewSortValuesSet() *SortValuesSet {
	return &SortValuesSet{}
}

// Len returns the number of members.
func (s *SortValuesSet) Len() int { return len(s.ids) }

// IDs returns the entry IDs of the members in order.
func (s *SortValuesSet) IDs() []entry.ID { return s.ids }

// At returns member i.
func (s *SortValuesSet) At(i int) SortValues {
	return SortValues{ID: s.ids[i], Values: s.values[i]}
}

// Last returns the greatest member. The block must not be empty.
func (s *SortValuesSet) Last() SortValues {
	return s.At(len(s.ids) - 1)
}

// Members returns every member in order.
func (s *SortValuesSet) Members() []SortValues {
	out := make([]SortValues, len(s.ids))
	for i := range s.ids {
		out[i] = s.At(i)
	}
	return out
}

// Search returns the position of the first member not less than sv and
// whether that member equals sv.
func (s *SortValuesSet) Search(st *Sorter, sv SortValues) (int, bool) {
	i := sort.Search(len(s.ids), func(i int) bool {
		return st.Compare(s.At(i), sv) >= 0
	})
	return i, i < len(s.ids) && st.Compare(s.At(i), sv) == 0
}

// Add inserts sv in order. It reports false when sv is already a member.
func (s *SortValuesSet) Add(st *Sorter, sv SortValues) bool {
	i, found := s.Search(st, sv)
	if found {
		return false
	}
	s.ids = slices.Insert(s.ids, i, sv.ID)
	s.values = slices.Insert(s.values, i, sv.Values)
	return true
}

// Remove deletes sv. It reports false when sv is not a member.
func (s *SortValuesSet) Remove(st *Sorter, sv SortValues) bool {
	i, found := s.Search(st, sv)
	if !found {
		return false
	}
	s.ids = slices.Delete(s.ids, i, i+1)
	s.values = slices.Delete(s.values, i, i+1)
	return true
}

// Split moves the first at members into a new block and returns it.
func (s *SortValuesSet) Split(at int) *SortValuesSet {
	front := &SortValuesSet{
		ids:    slices.Clone(s.ids[:at]),
		values: slices.Clone(s.values[:at]),
	}
	s.ids = slices.Clone(s.ids[at:])
	s.values = slices.Clone(s.values[at:])
	return front
}

// Encode serializes the block.
func (s *SortValuesSet) Encode() []byte {
	size := binary.MaxVarintLen64 + 8*len(s.ids)
	for _, vs := range s.values {
		for _, v := range vs {
			size += binary.MaxVarintLen64 + len(v)
		}
	}
	buf := make([]byte, 0, size)
	buf = binary.AppendUvarint(buf, uint64(len(s.ids)))
	for _, id := range s.ids {
		buf = binary.BigEndian.AppendUint64(buf, uint64(id))
	}
	for _, vs := range s.values {
		buf = appendValues(buf, vs)
	}
	return buf
}

// DecodeSortValuesSet parses a block encoded for nKeys sort keys.
func DecodeSortValuesSet(b []byte, nKeys int) (*SortValuesSet, error) {
	ids, rest, err := decodeIDs(b)
	if err != nil {
		return nil, err
	}
	s := &SortValuesSet{ids: ids, values: make([][][]byte, len(ids))}
	for i := range ids {
		var vs [][]byte
		vs, rest, err = readValues(rest, nKeys)
		if err != nil {
			return nil, ErrCorruptBlock
		}
		s.values[i] = vs
	}
	if len(rest) != 0 {
		return nil, ErrCorruptBlock
	}
	return s, nil
}

// decodeIDs reads only the member IDs of an encoded block.
func decodeIDs(b []byte) ([]entry.ID, []byte, error) {
	n, read := binary.Uvarint(b)
	if read <= 0 || n > uint64(len(b)-read)/8 {
		return nil, nil, ErrCorruptBlock
	}
	b = b[read:]
	ids := make([]entry.ID, n)
	for i := range ids {
		ids[i] = entry.ID(binary.BigEndian.Uint64(b[8*i:]))
	}
	return ids, b[8*n:], nil
}

// blockSize reads only the member count of an encoded block.
func blockSize(b []byte) (int, error) {
	n, read := binary.Uvarint(b)
	if read <= 0 || n > uint64(len(b)-read)/8 {
		return 0, ErrCorruptBlock
	}
	return int(n), nil
}
