package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Parser errors
var (
	ErrInvalidAttributeType = errors.New("invalid attribute type definition")
	ErrInvalidMatchingRule  = errors.New("invalid matching rule definition")
	ErrInvalidSyntax        = errors.New("invalid syntax definition")
	ErrMissingOID           = errors.New("missing OID in definition")
	ErrUnterminatedString   = errors.New("unterminated quoted string")
	ErrUnterminatedParens   = errors.New("unterminated parentheses")

	errMissingValue = errors.New("keyword without a value")
)

// Definitions follow the description grammar of RFC 4512 section 4.1: a
// parenthesized numeric OID followed by keywords. A keyword is either a
// flag or carries one value or a parenthesized list of values separated
// by spaces or dollar signs.

type tokenKind int

const (
	tokWord tokenKind = iota
	tokQuoted
	tokOpen
	tokClose
	tokDollar
)

type token struct {
	kind tokenKind
	text string
}

const wordBreaks = " \t\r\n()$'"

func scanDefinition(s string) ([]token, error) {
	var toks []token
	for i := 0; i < len(s); {
		switch c := s[i]; c {
		case ' ', '\t', '\r', '\n':
			i++
		case '(':
			toks = append(toks, token{kind: tokOpen, text: "("})
			i++
		case ')':
			toks = append(toks, token{kind: tokClose, text: ")"})
			i++
		case '$':
			toks = append(toks, token{kind: tokDollar, text: "$"})
			i++
		case '\'':
			end := strings.IndexByte(s[i+1:], '\'')
			if end < 0 {
				return nil, ErrUnterminatedString
			}
			toks = append(toks, token{kind: tokQuoted, text: s[i+1 : i+1+end]})
			i += end + 2
		default:
			j := i
			for j < len(s) && !strings.ContainsRune(wordBreaks, rune(s[j])) {
				j++
			}
			toks = append(toks, token{kind: tokWord, text: s[i:j]})
			i = j
		}
	}
	return toks, nil
}

// valuedKeywords take a value. Extensions (X-...) do too; every other
// keyword is a flag.
var valuedKeywords = map[string]bool{
	"NAME": true, "DESC": true, "SUP": true, "EQUALITY": true,
	"ORDERING": true, "SUBSTR": true, "SYNTAX": true, "USAGE": true,
	"MUST": true, "MAY": true, "APPLIES": true,
}

// definition is a parsed description, keyed by upper-case keyword.
type definition struct {
	oid    string
	values map[string][]string
	flags  map[string]bool
}

func (d *definition) value(keyword string) string {
	if v := d.values[keyword]; len(v) > 0 {
		return v[0]
	}
	return ""
}

type definitionParser struct {
	toks []token
	pos  int
}

func (p *definitionParser) next() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	t := p.toks[p.pos]
	p.pos++
	return t, true
}

// parseDefinition parses s, wrapping every failure in kind.
func parseDefinition(s string, kind error) (*definition, error) {
	toks, err := scanDefinition(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", kind, err)
	}
	p := &definitionParser{toks: toks}
	if t, ok := p.next(); !ok || t.kind != tokOpen {
		return nil, fmt.Errorf("%w: must start with '('", kind)
	}

	oid, ok := p.next()
	if !ok || oid.kind == tokClose {
		return nil, fmt.Errorf("%w: %w", kind, ErrMissingOID)
	}
	if oid.kind != tokWord {
		return nil, fmt.Errorf("%w: unexpected %q where an OID belongs", kind, oid.text)
	}

	d := &definition{
		oid:    oid.text,
		values: make(map[string][]string),
		flags:  make(map[string]bool),
	}
	for {
		t, ok := p.next()
		if !ok {
			return nil, fmt.Errorf("%w: %w", kind, ErrUnterminatedParens)
		}
		if t.kind == tokClose {
			break
		}
		if t.kind != tokWord {
			return nil, fmt.Errorf("%w: unexpected %q where a keyword belongs", kind, t.text)
		}

		keyword := strings.ToUpper(t.text)
		if !valuedKeywords[keyword] && !strings.HasPrefix(keyword, "X-") {
			d.flags[keyword] = true
			continue
		}
		vals, err := p.values()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", kind, keyword, err)
		}
		d.values[keyword] = vals
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("%w: text after the closing parenthesis", kind)
	}
	return d, nil
}

// values reads a single value or a parenthesized list.
func (p *definitionParser) values() ([]string, error) {
	t, ok := p.next()
	if !ok || t.kind == tokClose || t.kind == tokDollar {
		return nil, errMissingValue
	}
	if t.kind != tokOpen {
		return []string{t.text}, nil
	}

	var vals []string
	for {
		t, ok := p.next()
		if !ok {
			return nil, ErrUnterminatedParens
		}
		switch t.kind {
		case tokClose:
			if len(vals) == 0 {
				return nil, errMissingValue
			}
			return vals, nil
		case tokOpen:
			return nil, errors.New("nested list")
		case tokDollar:
		default:
			vals = append(vals, t.text)
		}
	}
}

// syntaxOID drops a length bound such as {64} from a syntax reference.
func syntaxOID(s string) string {
	oid, _, _ := strings.Cut(s, "{")
	return oid
}

var usages = map[string]AttributeUsage{
	"userapplications":     UserApplications,
	"directoryoperation":   DirectoryOperation,
	"distributedoperation": DistributedOperation,
	"dsaoperation":         DSAOperation,
}

// parseAttributeType parses an attributeTypes value.
func parseAttributeType(s string) (*AttributeType, error) {
	d, err := parseDefinition(s, ErrInvalidAttributeType)
	if err != nil {
		return nil, err
	}
	at := &AttributeType{
		OID:         d.oid,
		Names:       d.values["NAME"],
		Desc:        d.value("DESC"),
		Obsolete:    d.flags["OBSOLETE"],
		Superior:    d.value("SUP"),
		Equality:    d.value("EQUALITY"),
		Ordering:    d.value("ORDERING"),
		Substring:   d.value("SUBSTR"),
		Syntax:      syntaxOID(d.value("SYNTAX")),
		SingleValue: d.flags["SINGLE-VALUE"],
		Collective:  d.flags["COLLECTIVE"],
		NoUserMod:   d.flags["NO-USER-MODIFICATION"],
		Usage:       usages[strings.ToLower(d.value("USAGE"))],
	}
	if len(at.Names) > 0 {
		at.Name = at.Names[0]
	}
	return at, nil
}

// parseMatchingRule parses a matchingRules value. Only rules whose OID or
// name matches a built-in rule can normalize values.
func parseMatchingRule(s string) (*MatchingRule, error) {
	d, err := parseDefinition(s, ErrInvalidMatchingRule)
	if err != nil {
		return nil, err
	}
	mr := &MatchingRule{
		OID:         d.oid,
		Names:       d.values["NAME"],
		Description: d.value("DESC"),
		Obsolete:    d.flags["OBSOLETE"],
		Syntax:      syntaxOID(d.value("SYNTAX")),
	}
	if len(mr.Names) > 0 {
		mr.Name = mr.Names[0]
	}
	return mr, nil
}

func parseSyntaxDef(s string) (*Syntax, error) {
	d, err := parseDefinition(s, ErrInvalidSyntax)
	if err != nil {
		return nil, err
	}
	return NewSyntax(d.oid, d.value("DESC")), nil
}
