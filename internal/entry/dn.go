package entry

import (
	"errors"
	"strings"
)

// DN parsing errors.
var (
	ErrEmptyDN    = errors.New("DN cannot be empty")
	ErrInvalidDN  = errors.New("invalid DN format")
	ErrInvalidRDN = errors.New("invalid RDN format")
)

// Scope is the search scope of a VLV index or a search request.
type Scope int

const (
	// ScopeBaseObject matches only the base entry.
	ScopeBaseObject Scope = 0
	// ScopeSingleLevel matches the immediate children of the base.
	ScopeSingleLevel Scope = 1
	// ScopeWholeSubtree matches the base and all of its descendants.
	ScopeWholeSubtree Scope = 2
)

// String returns the configuration spelling of the scope.
func (s Scope) String() string {
	switch s {
	case ScopeBaseObject:
		return "base"
	case ScopeSingleLevel:
		return "one"
	case ScopeWholeSubtree:
		return "sub"
	default:
		return "unknown"
	}
}

// ParseScope parses base, one or sub (and their long LDAP names).
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "base", "baseobject", "base-object":
		return ScopeBaseObject, nil
	case "one", "onelevel", "singlelevel", "single-level":
		return ScopeSingleLevel, nil
	case "sub", "subtree", "wholesubtree", "whole-subtree", "":
		return ScopeWholeSubtree, nil
	default:
		return 0, errors.New("unknown search scope: " + s)
	}
}

// ParseDN splits a DN into normalized RDN components in forward order
// (leaf first). Attribute types are lowercased and values compared
// case-insensitively by the matching helpers below.
//
//	"uid=alice,ou=users,dc=example,dc=com" -> ["uid=alice", "ou=users", "dc=example", "dc=com"]
func ParseDN(dn string) ([]string, error) {
	dn = strings.TrimSpace(dn)
	if dn == "" {
		return nil, ErrEmptyDN
	}

	components := splitDN(dn)
	if len(components) == 0 {
		return nil, ErrInvalidDN
	}

	for i, comp := range components {
		normalized, err := normalizeRDN(comp)
		if err != nil {
			return nil, err
		}
		components[i] = normalized
	}
	return components, nil
}

// NormalizeDN parses and rejoins a DN in lowercase. The empty DN
// normalizes to the empty string (the root DSE).
func NormalizeDN(dn string) (string, error) {
	if strings.TrimSpace(dn) == "" {
		return "", nil
	}
	components, err := ParseDN(dn)
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.Join(components, ",")), nil
}

// splitDN splits a DN string by commas, honouring backslash escapes.
func splitDN(dn string) []string {
	var components []string
	var current strings.Builder
	escaped := false

	for i := 0; i < len(dn); i++ {
		c := dn[i]

		if escaped {
			current.WriteByte(c)
			escaped = false
			continue
		}
		if c == '\\' {
			current.WriteByte(c)
			escaped = true
			continue
		}
		if c == ',' {
			if comp := strings.TrimSpace(current.String()); comp != "" {
				components = append(components, comp)
			}
			current.Reset()
			continue
		}
		current.WriteByte(c)
	}

	if comp := strings.TrimSpace(current.String()); comp != "" {
		components = append(components, comp)
	}
	return components
}

func normalizeRDN(rdn string) (string, error) {
	eqIdx := strings.Index(rdn, "=")
	if eqIdx <= 0 {
		return "", ErrInvalidRDN
	}

	attrType := strings.ToLower(strings.TrimSpace(rdn[:eqIdx]))
	attrValue := strings.TrimSpace(rdn[eqIdx+1:])
	if attrType == "" {
		return "", ErrInvalidRDN
	}
	return attrType + "=" + attrValue, nil
}

// MatchesBaseAndScope reports whether dn lies within base for the given
// scope. An empty base matches every DN for subtree scope. Malformed DNs
// never match.
func MatchesBaseAndScope(dn, base string, scope Scope) bool {
	d, err := NormalizeDN(dn)
	if err != nil {
		return false
	}
	b, err := NormalizeDN(base)
	if err != nil {
		return false
	}

	var dc, bc []string
	if d != "" {
		dc = strings.Split(d, ",")
	}
	if b != "" {
		bc = strings.Split(b, ",")
	}
	if len(dc) < len(bc) {
		return false
	}
	// Compare suffixes: base components must be the tail of dn.
	off := len(dc) - len(bc)
	for i := range bc {
		if dc[off+i] != bc[i] {
			return false
		}
	}

	switch scope {
	case ScopeBaseObject:
		return off == 0
	case ScopeSingleLevel:
		return off == 1
	case ScopeWholeSubtree:
		return true
	default:
		return false
	}
}
