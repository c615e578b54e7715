package filter

import (
	"errors"
	"strings"
)

// Parser errors
var (
	ErrEmptyFilter      = errors.New("empty filter")
	ErrInvalidFilter    = errors.New("invalid filter syntax")
	ErrUnbalancedParens = errors.New("unbalanced parentheses")
	ErrMissingAttribute = errors.New("missing attribute name")
	ErrMissingValue     = errors.New("missing filter value")
	ErrInvalidEscape    = errors.New("invalid escape sequence in filter value")
)

// Parse parses an LDAP filter string into a Filter structure.
// Supports RFC 4515 filter syntax:
//   - (attr=value)     - equality
//   - (attr=*)         - presence
//   - (attr=*val*)     - substring
//   - (attr>=value)    - greater or equal
//   - (attr<=value)    - less or equal
//   - (attr~=value)    - approximate match
//   - (&(f1)(f2)...)   - AND
//   - (|(f1)(f2)...)   - OR
//   - (!(filter))      - NOT
func Parse(filterStr string) (*Filter, error) {
	filterStr = strings.TrimSpace(filterStr)
	if filterStr == "" {
		return nil, ErrEmptyFilter
	}

	return parseFilter(filterStr)
}

func parseFilter(s string) (*Filter, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyFilter
	}

	// Must start and end with parentheses
	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
		// Try wrapping simple filters
		if !strings.Contains(s, "(") {
			s = "(" + s + ")"
		} else {
			return nil, ErrInvalidFilter
		}
	}

	// Remove outer parentheses
	inner := s[1 : len(s)-1]
	if inner == "" {
		return nil, ErrEmptyFilter
	}

	// Check for composite filters
	switch inner[0] {
	case '&':
		return parseAndFilter(inner[1:])
	case '|':
		return parseOrFilter(inner[1:])
	case '!':
		return parseNotFilter(inner[1:])
	default:
		return parseSimpleFilter(inner)
	}
}

func parseAndFilter(s string) (*Filter, error) {
	children, err := parseFilterList(s)
	if err != nil {
		return nil, err
	}
	if len(children) == 0 {
		return nil, ErrInvalidFilter
	}
	return NewAndFilter(children...), nil
}

func parseOrFilter(s string) (*Filter, error) {
	children, err := parseFilterList(s)
	if err != nil {
		return nil, err
	}
	if len(children) == 0 {
		return nil, ErrInvalidFilter
	}
	return NewOrFilter(children...), nil
}

func parseNotFilter(s string) (*Filter, error) {
	s = strings.TrimSpace(s)
	child, err := parseFilter(s)
	if err != nil {
		return nil, err
	}
	return NewNotFilter(child), nil
}

func parseFilterList(s string) ([]*Filter, error) {
	var filters []*Filter
	s = strings.TrimSpace(s)

	for len(s) > 0 {
		if s[0] != '(' {
			return nil, ErrInvalidFilter
		}

		// Find matching closing paren
		depth := 0
		end := -1
		for i, c := range s {
			if c == '(' {
				depth++
			} else if c == ')' {
				depth--
				if depth == 0 {
					end = i
					break
				}
			}
		}

		if end == -1 {
			return nil, ErrUnbalancedParens
		}

		filterStr := s[:end+1]
		f, err := parseFilter(filterStr)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)

		s = strings.TrimSpace(s[end+1:])
	}

	return filters, nil
}

func parseSimpleFilter(s string) (*Filter, error) {
	idx := strings.IndexByte(s, '=')
	if idx <= 0 {
		return nil, ErrInvalidFilter
	}

	op := byte('=')
	attrEnd := idx
	switch s[idx-1] {
	case '>', '<', '~':
		op = s[idx-1]
		attrEnd = idx - 1
	}

	attr := strings.TrimSpace(s[:attrEnd])
	if attr == "" {
		return nil, ErrMissingAttribute
	}
	raw := s[idx+1:]

	if op != '=' {
		value, err := unescapeValue(raw)
		if err != nil {
			return nil, err
		}
		switch op {
		case '>':
			return NewGreaterOrEqualFilter(attr, value), nil
		case '<':
			return NewLessOrEqualFilter(attr, value), nil
		default:
			return NewApproxMatchFilter(attr, value), nil
		}
	}

	if raw == "*" {
		return NewPresentFilter(attr), nil
	}
	if strings.Contains(raw, "*") {
		return parseSubstringFilter(attr, raw)
	}

	value, err := unescapeValue(raw)
	if err != nil {
		return nil, err
	}
	return NewEqualityFilter(attr, value), nil
}

// parseSubstringFilter splits on unescaped '*'. The first part is the
// initial component and the last part the final one; empty parts are
// absent components.
func parseSubstringFilter(attr, raw string) (*Filter, error) {
	parts := strings.Split(raw, "*")
	sf := &SubstringFilter{Attribute: attr}

	for i, part := range parts {
		if part == "" {
			continue
		}
		value, err := unescapeValue(part)
		if err != nil {
			return nil, err
		}
		switch i {
		case 0:
			sf.Initial = value
		case len(parts) - 1:
			sf.Final = value
		default:
			sf.Any = append(sf.Any, value)
		}
	}

	return NewSubstringFilter(sf), nil
}

// unescapeValue decodes RFC 4515 \XX escapes.
func unescapeValue(s string) ([]byte, error) {
	if !strings.Contains(s, "\\") {
		return []byte(s), nil
	}
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			out = append(out, s[i])
			continue
		}
		if i+2 >= len(s) {
			return nil, ErrInvalidEscape
		}
		hi, ok1 := fromHex(s[i+1])
		lo, ok2 := fromHex(s[i+2])
		if !ok1 || !ok2 {
			return nil, ErrInvalidEscape
		}
		out = append(out, hi<<4|lo)
		i += 2
	}
	return out, nil
}

func fromHex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
