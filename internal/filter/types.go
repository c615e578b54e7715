package filter

import (
	"strings"
)

// FilterType represents the type of LDAP filter operation.
type FilterType int

const (
	// FilterAnd represents an AND filter (&).
	FilterAnd FilterType = iota
	// FilterOr represents an OR filter (|).
	FilterOr
	// FilterNot represents a NOT filter (!).
	FilterNot
	// FilterEquality represents an equality filter (attr=value).
	FilterEquality
	// FilterSubstring represents a substring filter (attr=*value*).
	FilterSubstring
	// FilterGreaterOrEqual represents a greater-or-equal filter (attr>=value).
	FilterGreaterOrEqual
	// FilterLessOrEqual represents a less-or-equal filter (attr<=value).
	FilterLessOrEqual
	// FilterPresent represents a presence filter (attr=*).
	FilterPresent
	// FilterApproxMatch represents an approximate match filter (attr~=value).
	FilterApproxMatch
	// FilterExtensibleMatch represents an extensible match filter.
	FilterExtensibleMatch
)

// String returns the string representation of the FilterType.
func (ft FilterType) String() string {
	switch ft {
	case FilterAnd:
		return "AND"
	case FilterOr:
		return "OR"
	case FilterNot:
		return "NOT"
	case FilterEquality:
		return "EQUALITY"
	case FilterSubstring:
		return "SUBSTRING"
	case FilterGreaterOrEqual:
		return "GREATER_OR_EQUAL"
	case FilterLessOrEqual:
		return "LESS_OR_EQUAL"
	case FilterPresent:
		return "PRESENT"
	case FilterApproxMatch:
		return "APPROX_MATCH"
	case FilterExtensibleMatch:
		return "EXTENSIBLE_MATCH"
	default:
		return "UNKNOWN"
	}
}

// Filter represents an LDAP search filter.
type Filter struct {
	Type      FilterType
	Attribute string
	Value     []byte
	Children  []*Filter        // For AND/OR filters
	Child     *Filter          // For NOT filter
	Substring *SubstringFilter // For substring filters
}

// SubstringFilter represents the components of a substring filter.
type SubstringFilter struct {
	Attribute string
	Initial   []byte   // Initial substring (before first *)
	Any       [][]byte // Middle substrings (between *s)
	Final     []byte   // Final substring (after last *)
}

// NewAndFilter creates a new AND filter with the given children.
func NewAndFilter(children ...*Filter) *Filter {
	return &Filter{
		Type:     FilterAnd,
		Children: children,
	}
}

// NewOrFilter creates a new OR filter with the given children.
func NewOrFilter(children ...*Filter) *Filter {
	return &Filter{
		Type:     FilterOr,
		Children: children,
	}
}

// NewNotFilter creates a new NOT filter with the given child.
func NewNotFilter(child *Filter) *Filter {
	return &Filter{
		Type:  FilterNot,
		Child: child,
	}
}

// NewEqualityFilter creates a new equality filter.
func NewEqualityFilter(attribute string, value []byte) *Filter {
	return &Filter{
		Type:      FilterEquality,
		Attribute: attribute,
		Value:     value,
	}
}

// NewSubstringFilter creates a new substring filter.
func NewSubstringFilter(sf *SubstringFilter) *Filter {
	return &Filter{
		Type:      FilterSubstring,
		Attribute: sf.Attribute,
		Substring: sf,
	}
}

// NewPresentFilter creates a new presence filter.
func NewPresentFilter(attribute string) *Filter {
	return &Filter{
		Type:      FilterPresent,
		Attribute: attribute,
	}
}

// NewGreaterOrEqualFilter creates a new greater-or-equal filter.
func NewGreaterOrEqualFilter(attribute string, value []byte) *Filter {
	return &Filter{
		Type:      FilterGreaterOrEqual,
		Attribute: attribute,
		Value:     value,
	}
}

// NewLessOrEqualFilter creates a new less-or-equal filter.
func NewLessOrEqualFilter(attribute string, value []byte) *Filter {
	return &Filter{
		Type:      FilterLessOrEqual,
		Attribute: attribute,
		Value:     value,
	}
}

// NewApproxMatchFilter creates a new approximate match filter.
func NewApproxMatchFilter(attribute string, value []byte) *Filter {
	return &Filter{
		Type:      FilterApproxMatch,
		Attribute: attribute,
		Value:     value,
	}
}

// String renders the filter in RFC 4515 form with values escaped. Two
// filters that render identically select the same entries.
func (f *Filter) String() string {
	var sb strings.Builder
	f.write(&sb)
	return sb.String()
}

func (f *Filter) write(sb *strings.Builder) {
	if f == nil {
		return
	}
	sb.WriteByte('(')
	switch f.Type {
	case FilterAnd, FilterOr:
		if f.Type == FilterAnd {
			sb.WriteByte('&')
		} else {
			sb.WriteByte('|')
		}
		for _, c := range f.Children {
			c.write(sb)
		}
	case FilterNot:
		sb.WriteByte('!')
		f.Child.write(sb)
	case FilterEquality:
		sb.WriteString(f.Attribute + "=" + escapeValue(f.Value))
	case FilterGreaterOrEqual:
		sb.WriteString(f.Attribute + ">=" + escapeValue(f.Value))
	case FilterLessOrEqual:
		sb.WriteString(f.Attribute + "<=" + escapeValue(f.Value))
	case FilterApproxMatch:
		sb.WriteString(f.Attribute + "~=" + escapeValue(f.Value))
	case FilterPresent:
		sb.WriteString(f.Attribute + "=*")
	case FilterSubstring:
		sb.WriteString(f.Attribute + "=")
		if f.Substring != nil {
			sb.WriteString(escapeValue(f.Substring.Initial))
			sb.WriteByte('*')
			for _, a := range f.Substring.Any {
				sb.WriteString(escapeValue(a))
				sb.WriteByte('*')
			}
			sb.WriteString(escapeValue(f.Substring.Final))
		}
	}
	sb.WriteByte(')')
}

// escapeValue escapes the characters RFC 4515 reserves in assertion values.
func escapeValue(v []byte) string {
	const hex = "0123456789abcdef"
	var sb strings.Builder
	for _, b := range v {
		switch b {
		case '*', '(', ')', '\\', 0:
			sb.WriteByte('\\')
			sb.WriteByte(hex[b>>4])
			sb.WriteByte(hex[b&0x0f])
		default:
			sb.WriteByte(b)
		}
	}
	return sb.String()
}

// Attributes returns the lowercase names of every attribute the filter
// references, in first-seen order.
func (f *Filter) Attributes() []string {
	var out []string
	seen := make(map[string]bool)
	var walk func(*Filter)
	walk = func(n *Filter) {
		if n == nil {
			return
		}
		if n.Attribute != "" {
			name := strings.ToLower(n.Attribute)
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
		walk(n.Child)
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(f)
	return out
}
