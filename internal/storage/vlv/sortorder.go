package vlv

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSortOrder is returned for a malformed sort order.
var ErrSortOrder = errors.New("vlv: invalid sort order")

// SortKey is one attribute of a sort order.
type SortKey struct {
	Attribute    string
	Reverse      bool
	OrderingRule string // empty selects the attribute's ordering rule
}

// String renders the key as it is written in configuration.
func (k SortKey) String() string {
	var sb strings.Builder
	if k.Reverse {
		sb.WriteByte('-')
	}
	sb.WriteString(k.Attribute)
	if k.OrderingRule != "" {
		sb.WriteByte(':')
		sb.WriteString(k.OrderingRule)
	}
	return sb.String()
}

// SortOrder is an ordered list of sort keys.
type SortOrder []SortKey

// ParseSortOrder parses keys separated by spaces or commas. A leading '-'
// sorts the key in descending order, a leading '+' or nothing in
// ascending order; ":rule" names the ordering rule:
//
//	sn givenName
//	-uidNumber,+cn:caseExactOrderingMatch
func ParseSortOrder(s string) (SortOrder, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t'
	})
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no sort keys", ErrSortOrder)
	}

	order := make(SortOrder, 0, len(fields))
	for _, f := range fields {
		var k SortKey
		switch f[0] {
		case '-':
			k.Reverse = true
			f = f[1:]
		case '+':
			f = f[1:]
		}
		if attr, rule, ok := strings.Cut(f, ":"); ok {
			if rule == "" {
				return nil, fmt.Errorf("%w: empty ordering rule in %q", ErrSortOrder, f)
			}
			f, k.OrderingRule = attr, rule
		}
		if f == "" || !validAttribute(f) {
			return nil, fmt.Errorf("%w: bad attribute %q", ErrSortOrder, f)
		}
		k.Attribute = strings.ToLower(f)
		order = append(order, k)
	}
	return order, nil
}

func validAttribute(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.', r == ';':
		default:
			return false
		}
	}
	return true
}

// String renders the order in the form ParseSortOrder accepts.
func (o SortOrder) String() string {
	parts := make([]string, len(o))
	for i, k := range o {
		parts[i] = k.String()
	}
	return strings.Join(parts, " ")
}

// Equal reports whether both orders sort identically.
func (o SortOrder) Equal(p SortOrder) bool {
	if len(o) != len(p) {
		return false
	}
	for i := range o {
		if o[i].Attribute != p[i].Attribute || o[i].Reverse != p[i].Reverse ||
			!strings.EqualFold(o[i].OrderingRule, p[i].OrderingRule) {
			return false
		}
	}
	return true
}

// Attributes returns the attribute of every key.
func (o SortOrder) Attributes() []string {
	out := make([]string, len(o))
	for i, k := range o {
		out[i] = k.Attribute
	}
	return out
}
