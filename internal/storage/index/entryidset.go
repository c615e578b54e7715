package index

import (
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"math"
	"strings"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
)

// ErrCorruptSet is returned when stored EntryIDSet bytes cannot be decoded.
var ErrCorruptSet = errors.New("index: corrupt entry ID set")

// Wire tags of an encoded EntryIDSet.
const (
	tagDefined          byte = 0x00
	tagUndefined        byte = 0x01
	tagUndefinedCounted byte = 0x02
)

// unknownSize is the size reported by an Undefined set that keeps no count.
const unknownSize = math.MaxUint64

// EntryIDSet is a set of entry IDs that is either Defined, holding the IDs
// themselves, or Undefined, meaning the membership is unknown or too large
// to enumerate. An Undefined set may still carry an approximate count.
//
// Undefined is the identity of RetainAll and absorbs under AddAll and
// UnionOfSets. Once Undefined, a set never becomes Defined again through
// Add or Remove.
type EntryIDSet struct {
	ids  *roaring64.Bitmap // nil when Undefined
	size uint64            // count of an Undefined set, or unknownSize
}

// NewEntryIDSet returns a Defined set holding ids.
func NewEntryIDSet(ids ...entry.ID) *EntryIDSet {
	bm := roaring64.New()
	for _, id := range ids {
		bm.Add(uint64(id))
	}
	return &EntryIDSet{ids: bm}
}

// NewUndefinedSet returns an Undefined set without a count.
func NewUndefinedSet() *EntryIDSet {
	return &EntryIDSet{size: unknownSize}
}

// NewUndefinedSetWithSize returns an Undefined set counting size IDs.
func NewUndefinedSetWithSize(size uint64) *EntryIDSet {
	return &EntryIDSet{size: size}
}

// IsDefined reports whether the set enumerates its IDs.
func (s *EntryIDSet) IsDefined() bool {
	return s.ids != nil
}

// Size returns the number of IDs of a Defined set, or the count of an
// Undefined one (math.MaxUint64 when it keeps none).
func (s *EntryIDSet) Size() uint64 {
	if s.ids == nil {
		return s.size
	}
	return s.ids.GetCardinality()
}

// UndefinedSize returns the count carried by an Undefined set and whether
// it keeps one.
func (s *EntryIDSet) UndefinedSize() (uint64, bool) {
	if s.ids != nil || s.size == unknownSize {
		return 0, false
	}
	return s.size, true
}

// IsEmpty reports whether the set is Defined and holds no IDs.
func (s *EntryIDSet) IsEmpty() bool {
	return s.ids != nil && s.ids.IsEmpty()
}

// Add inserts id. On an Undefined set only the count moves. It reports
// whether the set changed.
func (s *EntryIDSet) Add(id entry.ID) bool {
	if s.ids == nil {
		if s.size != unknownSize {
			s.size++
		}
		return true
	}
	return s.ids.CheckedAdd(uint64(id))
}

// Remove deletes id. On an Undefined set only the count moves. It reports
// whether the set changed.
func (s *EntryIDSet) Remove(id entry.ID) bool {
	if s.ids == nil {
		if s.size != unknownSize && s.size > 0 {
			s.size--
		}
		return true
	}
	return s.ids.CheckedRemove(uint64(id))
}

// Contains reports whether id may be in the set. Undefined sets contain
// every ID.
func (s *EntryIDSet) Contains(id entry.ID) bool {
	if s.ids == nil {
		return true
	}
	return s.ids.Contains(uint64(id))
}

// RetainAll intersects s with other in place. An Undefined operand leaves
// the other side unchanged.
func (s *EntryIDSet) RetainAll(other *EntryIDSet) {
	if other == nil || other.ids == nil {
		return
	}
	if s.ids == nil {
		s.ids = other.ids.Clone()
		s.size = 0
		return
	}
	s.ids.And(other.ids)
}

// AddAll unions other into s in place. An Undefined operand makes s
// Undefined, summing counts when both are known.
func (s *EntryIDSet) AddAll(other *EntryIDSet) {
	if other == nil {
		return
	}
	if s.ids != nil && other.ids != nil {
		s.ids.Or(other.ids)
		return
	}
	a, b := s.Size(), other.Size()
	s.ids = nil
	if a == unknownSize || b == unknownSize || a+b < a {
		s.size = unknownSize
		return
	}
	s.size = a + b
}

// DeleteAll removes every ID of other from s. Removing an Undefined set
// from a Defined one leaves nothing that can be enumerated, so s becomes
// Undefined.
func (s *EntryIDSet) DeleteAll(other *EntryIDSet) {
	if other == nil {
		return
	}
	switch {
	case s.ids != nil && other.ids != nil:
		s.ids.AndNot(other.ids)
	case s.ids != nil:
		s.size = s.ids.GetCardinality()
		s.ids = nil
	case s.size != unknownSize && other.ids != nil:
		n := other.ids.GetCardinality()
		if n > s.size {
			s.size = 0
		} else {
			s.size -= n
		}
	}
}

// Clone returns an independent copy of s.
func (s *EntryIDSet) Clone() *EntryIDSet {
	if s.ids == nil {
		return &EntryIDSet{size: s.size}
	}
	return &EntryIDSet{ids: s.ids.Clone()}
}

// Iter yields the IDs of a Defined set in ascending order. An Undefined
// set yields nothing.
func (s *EntryIDSet) Iter() iter.Seq[entry.ID] {
	return func(yield func(entry.ID) bool) {
		if s.ids == nil {
			return
		}
		it := s.ids.Iterator()
		for it.HasNext() {
			if !yield(entry.ID(it.Next())) {
				return
			}
		}
	}
}

// Slice returns the IDs of a Defined set in ascending order, or nil.
func (s *EntryIDSet) Slice() []entry.ID {
	if s.ids == nil {
		return nil
	}
	out := make([]entry.ID, 0, s.ids.GetCardinality())
	for id := range s.Iter() {
		out = append(out, id)
	}
	return out
}

// String renders the set for logs and the CLI.
func (s *EntryIDSet) String() string {
	if s.ids == nil {
		if s.size == unknownSize {
			return "[UNDEFINED]"
		}
		return fmt.Sprintf("[UNDEFINED size=%d]", s.size)
	}
	var sb strings.Builder
	sb.WriteByte('[')
	first := true
	for id := range s.Iter() {
		if !first {
			sb.WriteByte(',')
		}
		first = false
		fmt.Fprintf(&sb, "%d", uint64(id))
	}
	sb.WriteByte(']')
	return sb.String()
}

// Encode serializes the set. Defined sets carry the portable roaring
// encoding so an empty Defined set stays distinct from Undefined.
func (s *EntryIDSet) Encode() ([]byte, error) {
	if s.ids == nil {
		if s.size == unknownSize {
			return []byte{tagUndefined}, nil
		}
		buf := make([]byte, 1, 1+binary.MaxVarintLen64)
		buf[0] = tagUndefinedCounted
		return binary.AppendUvarint(buf, s.size), nil
	}
	s.ids.RunOptimize()
	payload, err := s.ids.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode entry ID set: %w", err)
	}
	return append([]byte{tagDefined}, payload...), nil
}

// DecodeEntryIDSet parses bytes produced by Encode.
func DecodeEntryIDSet(b []byte) (*EntryIDSet, error) {
	if len(b) == 0 {
		return nil, ErrCorruptSet
	}
	switch b[0] {
	case tagDefined:
		bm := roaring64.New()
		if err := bm.UnmarshalBinary(b[1:]); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptSet, err)
		}
		return &EntryIDSet{ids: bm}, nil
	case tagUndefined:
		if len(b) != 1 {
			return nil, ErrCorruptSet
		}
		return NewUndefinedSet(), nil
	case tagUndefinedCounted:
		n, read := binary.Uvarint(b[1:])
		if read <= 0 || 1+read != len(b) {
			return nil, ErrCorruptSet
		}
		return NewUndefinedSetWithSize(n), nil
	default:
		return nil, fmt.Errorf("%w: unknown tag 0x%02x", ErrCorruptSet, b[0])
	}
}

// UnionOfSets merges sets into one. The result is Defined only when every
// input is Defined and the merged size stays within limit (limit <= 0
// means no limit). An Undefined result keeps the summed sizes of the
// inputs when every Undefined input is counted.
func UnionOfSets(sets []*EntryIDSet, limit int) *EntryIDSet {
	var (
		undefined bool
		count     uint64
	)
	for _, s := range sets {
		if s == nil {
			continue
		}
		if s.ids == nil {
			if s.size == unknownSize {
				return NewUndefinedSet()
			}
			undefined = true
		}
		count += s.Size()
	}
	if undefined {
		return NewUndefinedSetWithSize(count)
	}

	out := roaring64.New()
	for _, s := range sets {
		if s == nil {
			continue
		}
		out.Or(s.ids)
		if limit > 0 && out.GetCardinality() > uint64(limit) {
			return NewUndefinedSet()
		}
	}
	return &EntryIDSet{ids: out}
}
