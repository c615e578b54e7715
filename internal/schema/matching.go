package schema

import (
	"bytes"
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
)

// ErrInvalidValue is returned when a value cannot be normalized by a
// matching rule.
var ErrInvalidValue = errors.New("value does not conform to matching rule syntax")

// ApproximateMatchName is the name of the phonetic matching rule shared by
// every approximate index.
const ApproximateMatchName = "approximateMatch"

// ApproximateMatchOID identifies ApproximateMatchName.
const ApproximateMatchOID = "1.3.6.1.4.1.26027.1.4.1"

// MatchingRule defines how attribute values are compared for equality,
// ordering, and substring matching operations.
type MatchingRule struct {
	OID         string
	Name        string
	Names       []string // Aliases
	Description string
	Syntax      string // Syntax OID this rule applies to
	Obsolete    bool

	impl *ruleImpl
}

type ruleImpl struct {
	normalize func([]byte) ([]byte, error)
	compare   func(a, b []byte) int
}

// NewMatchingRule creates a new MatchingRule with the given OID and name.
// Known rule names get their built-in normalization.
func NewMatchingRule(oid, name string) *MatchingRule {
	mr := &MatchingRule{
		OID:   oid,
		Name:  name,
		Names: []string{name},
	}
	mr.impl = builtinImpl(mr)
	return mr
}

// Normalize returns the canonical byte form of v under this rule. Two values
// match exactly when their normalized forms are equal.
func (mr *MatchingRule) Normalize(v []byte) ([]byte, error) {
	if mr == nil || mr.impl == nil {
		return append([]byte(nil), v...), nil
	}
	return mr.impl.normalize(v)
}

// Compare orders two normalized values.
func (mr *MatchingRule) Compare(a, b []byte) int {
	if mr == nil || mr.impl == nil || mr.impl.compare == nil {
		return bytes.Compare(a, b)
	}
	return mr.impl.compare(a, b)
}

// Match reports whether two raw values are equal under this rule. Values
// that fail normalization never match.
func (mr *MatchingRule) Match(a, b []byte) bool {
	na, err := mr.Normalize(a)
	if err != nil {
		return false
	}
	nb, err := mr.Normalize(b)
	if err != nil {
		return false
	}
	return mr.Compare(na, nb) == 0
}

func builtinImpl(mr *MatchingRule) *ruleImpl {
	if impl, ok := builtinRules[strings.ToLower(mr.Name)]; ok {
		return impl
	}
	for _, n := range mr.Names {
		if impl, ok := builtinRules[strings.ToLower(n)]; ok {
			return impl
		}
	}
	if impl, ok := builtinByOID[mr.OID]; ok {
		return impl
	}
	return nil
}

var (
	caseIgnoreImpl  = &ruleImpl{normalize: normalizeCaseIgnore}
	caseExactImpl   = &ruleImpl{normalize: normalizeCaseExact}
	lowerImpl       = &ruleImpl{normalize: normalizeLower}
	octetImpl       = &ruleImpl{normalize: normalizeIdentity}
	integerImpl     = &ruleImpl{normalize: normalizeInteger, compare: compareInteger}
	telephoneImpl   = &ruleImpl{normalize: normalizeTelephone}
	numericImpl     = &ruleImpl{normalize: normalizeNumeric}
	dnImpl          = &ruleImpl{normalize: normalizeDN}
	booleanImpl     = &ruleImpl{normalize: normalizeBoolean}
	approximateImpl = &ruleImpl{normalize: normalizeApproximate}
)

var builtinRules = map[string]*ruleImpl{
	"caseignorematch":                caseIgnoreImpl,
	"caseignoreorderingmatch":        caseIgnoreImpl,
	"caseignoresubstringsmatch":      caseIgnoreImpl,
	"caseignorelistmatch":            caseIgnoreImpl,
	"caseexactmatch":                 caseExactImpl,
	"caseexactorderingmatch":         caseExactImpl,
	"caseexactsubstringsmatch":       caseExactImpl,
	"caseexactia5match":              caseExactImpl,
	"caseignoreia5match":             lowerImpl,
	"caseignoreia5substringsmatch":   lowerImpl,
	"integermatch":                   integerImpl,
	"integerorderingmatch":           integerImpl,
	"integerfirstcomponentmatch":     integerImpl,
	"octetstringmatch":               octetImpl,
	"octetstringorderingmatch":       octetImpl,
	"bitstringmatch":                 octetImpl,
	"generalizedtimematch":           octetImpl,
	"generalizedtimeorderingmatch":   octetImpl,
	"telephonenumbermatch":           telephoneImpl,
	"telephonenumbersubstringsmatch": telephoneImpl,
	"numericstringmatch":             numericImpl,
	"numericstringorderingmatch":     numericImpl,
	"numericstringsubstringsmatch":   numericImpl,
	"distinguishednamematch":         dnImpl,
	"uniquemembermatch":              dnImpl,
	"objectidentifiermatch":          lowerImpl,
	"uuidmatch":                      lowerImpl,
	"uuidorderingmatch":              lowerImpl,
	"booleanmatch":                   booleanImpl,
	"approximatematch":               approximateImpl,
}

var builtinByOID = map[string]*ruleImpl{
	ApproximateMatchOID: approximateImpl,
}

func normalizeIdentity(v []byte) ([]byte, error) {
	return append([]byte(nil), v...), nil
}

// collapseSpace trims leading and trailing whitespace and folds inner runs
// to a single space.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func normalizeCaseIgnore(v []byte) ([]byte, error) {
	if !utf8.Valid(v) {
		return nil, ErrInvalidValue
	}
	return []byte(strings.ToLower(collapseSpace(string(v)))), nil
}

func normalizeCaseExact(v []byte) ([]byte, error) {
	if !utf8.Valid(v) {
		return nil, ErrInvalidValue
	}
	return []byte(collapseSpace(string(v))), nil
}

func normalizeLower(v []byte) ([]byte, error) {
	return bytes.ToLower(bytes.TrimSpace(v)), nil
}

func normalizeTelephone(v []byte) ([]byte, error) {
	if !ValidateTelephoneNumber(v) {
		return nil, ErrInvalidValue
	}
	out := make([]byte, 0, len(v))
	for _, b := range v {
		if b == ' ' || b == '-' {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func normalizeNumeric(v []byte) ([]byte, error) {
	if !ValidateNumericString(v) {
		return nil, ErrInvalidValue
	}
	return bytes.ReplaceAll(v, []byte(" "), nil), nil
}

func normalizeDN(v []byte) ([]byte, error) {
	dn, err := entry.NormalizeDN(string(v))
	if err != nil {
		return nil, ErrInvalidValue
	}
	return []byte(dn), nil
}

func normalizeBoolean(v []byte) ([]byte, error) {
	s := bytes.ToUpper(bytes.TrimSpace(v))
	if !ValidateBoolean(s) {
		return nil, ErrInvalidValue
	}
	return s, nil
}

// normalizeInteger produces an optional '-' followed by digits without
// leading zeros. "-0" becomes "0".
func normalizeInteger(v []byte) ([]byte, error) {
	v = bytes.TrimSpace(v)
	if !ValidateInteger(v) {
		return nil, ErrInvalidValue
	}
	neg := false
	if v[0] == '-' {
		neg = true
		v = v[1:]
	} else if v[0] == '+' {
		v = v[1:]
	}
	v = bytes.TrimLeft(v, "0")
	if len(v) == 0 {
		return []byte("0"), nil
	}
	out := make([]byte, 0, len(v)+1)
	if neg {
		out = append(out, '-')
	}
	return append(out, v...), nil
}

// compareInteger orders canonical integers numerically.
func compareInteger(a, b []byte) int {
	an := len(a) > 0 && a[0] == '-'
	bn := len(b) > 0 && b[0] == '-'
	switch {
	case an && !bn:
		return -1
	case !an && bn:
		return 1
	case an && bn:
		return -compareMagnitude(a[1:], b[1:])
	}
	return compareMagnitude(a, b)
}

func compareMagnitude(a, b []byte) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return bytes.Compare(a, b)
}

// normalizeApproximate builds a phonetic key: case and whitespace folded,
// vowels after the first letter dropped and runs of a repeated letter
// reduced to one.
func normalizeApproximate(v []byte) ([]byte, error) {
	if !utf8.Valid(v) {
		return nil, ErrInvalidValue
	}
	words := strings.Fields(strings.ToLower(string(v)))
	var sb strings.Builder
	for i, w := range words {
		if i > 0 {
			sb.WriteByte(' ')
		}
		var last rune
		for j, r := range w {
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
				continue
			}
			if j > 0 && isVowel(r) {
				continue
			}
			if r == last {
				continue
			}
			sb.WriteRune(r)
			last = r
		}
	}
	return []byte(sb.String()), nil
}

func isVowel(r rune) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u', 'y':
		return true
	}
	return false
}
