package index

import (
	"fmt"
	"strings"
)

// IndexType identifies one kind of attribute index.
type IndexType int

const (
	// IndexEquality supports equality searches like (uid=alice).
	IndexEquality IndexType = iota
	// IndexPresence supports presence searches like (mail=*).
	IndexPresence
	// IndexSubstring supports substring searches like (cn=*admin*).
	IndexSubstring
	// IndexOrdering supports range searches like (uidNumber>=1000).
	IndexOrdering
	// IndexApproximate supports approximate searches like (cn~=jon).
	IndexApproximate
)

// AllIndexTypes lists every index type in evaluation order.
var AllIndexTypes = []IndexType{IndexEquality, IndexPresence, IndexSubstring, IndexOrdering, IndexApproximate}

// String returns the string representation of an IndexType.
func (t IndexType) String() string {
	switch t {
	case IndexEquality:
		return "equality"
	case IndexPresence:
		return "presence"
	case IndexSubstring:
		return "substring"
	case IndexOrdering:
		return "ordering"
	case IndexApproximate:
		return "approximate"
	default:
		return "unknown"
	}
}

// ParseIndexType parses a configured index type name.
func ParseIndexType(s string) (IndexType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "equality", "eq":
		return IndexEquality, nil
	case "presence", "pres":
		return IndexPresence, nil
	case "substring", "sub":
		return IndexSubstring, nil
	case "ordering":
		return IndexOrdering, nil
	case "approximate", "approx":
		return IndexApproximate, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownIndexType, s)
	}
}

// Defaults shared by every index of a backend.
const (
	// DefaultEntryLimit is the number of IDs a key may hold before it
	// becomes Undefined.
	DefaultEntryLimit = 4000
	// DefaultCursorEntryLimit bounds the IDs a range read may collect.
	DefaultCursorEntryLimit = 100000
	// DefaultSubstringLength is the length of substring index keys.
	DefaultSubstringLength = 6
	// CandidateThreshold is the set size below which evaluation stops
	// narrowing candidates.
	CandidateThreshold = 10
)

// Options configures an Index.
type Options struct {
	// EntryLimit is the maximum number of IDs per key; 0 disables the limit.
	EntryLimit int
	// CursorEntryLimit bounds range reads; 0 disables the bound.
	CursorEntryLimit int
	// MaintainCount keeps a count on keys that turned Undefined.
	MaintainCount bool
}
