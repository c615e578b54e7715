package filter

import (
	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/schema"
)

// Evaluator evaluates LDAP search filters against entries using the
// matching rules of a schema.
type Evaluator struct {
	schema *schema.Schema
}

// NewEvaluator creates a new filter evaluator with the given schema. A nil
// schema matches every attribute with the built-in caseIgnore rules.
func NewEvaluator(s *schema.Schema) *Evaluator {
	if s == nil {
		s = schema.NewSchema()
	}
	return &Evaluator{schema: s}
}

// Evaluate tests whether an entry matches a filter.
func (e *Evaluator) Evaluate(f *Filter, en *entry.Entry) bool {
	if f == nil || en == nil {
		return false
	}

	switch f.Type {
	case FilterAnd:
		for _, child := range f.Children {
			if !e.Evaluate(child, en) {
				return false
			}
		}
		return true
	case FilterOr:
		for _, child := range f.Children {
			if e.Evaluate(child, en) {
				return true
			}
		}
		return false
	case FilterNot:
		if f.Child == nil {
			return false
		}
		return !e.Evaluate(f.Child, en)
	case FilterEquality:
		return e.evaluateEquality(f.Attribute, f.Value, en)
	case FilterSubstring:
		return e.evaluateSubstring(f.Substring, en)
	case FilterPresent:
		return en.Has(f.Attribute)
	case FilterGreaterOrEqual:
		return e.evaluateOrdering(f.Attribute, f.Value, en, func(c int) bool { return c >= 0 })
	case FilterLessOrEqual:
		return e.evaluateOrdering(f.Attribute, f.Value, en, func(c int) bool { return c <= 0 })
	case FilterApproxMatch:
		return e.evaluateApprox(f.Attribute, f.Value, en)
	default:
		return false
	}
}

func (e *Evaluator) evaluateEquality(attr string, value []byte, en *entry.Entry) bool {
	mr := e.schema.EqualityRule(attr)
	assertion, err := mr.Normalize(value)
	if err != nil {
		return false
	}
	for _, v := range en.Values(attr) {
		nv, err := mr.Normalize(v)
		if err != nil {
			continue
		}
		if mr.Compare(nv, assertion) == 0 {
			return true
		}
	}
	return false
}

func (e *Evaluator) evaluateSubstring(sf *SubstringFilter, en *entry.Entry) bool {
	if sf == nil {
		return false
	}
	mr := e.schema.SubstringRule(sf.Attribute)

	initial, err := normalizeComponent(mr, sf.Initial)
	if err != nil {
		return false
	}
	final, err := normalizeComponent(mr, sf.Final)
	if err != nil {
		return false
	}
	middle := make([][]byte, 0, len(sf.Any))
	for _, a := range sf.Any {
		na, err := normalizeComponent(mr, a)
		if err != nil {
			return false
		}
		middle = append(middle, na)
	}

	for _, v := range en.Values(sf.Attribute) {
		nv, err := mr.Normalize(v)
		if err != nil {
			continue
		}
		if matchSubstring(nv, initial, middle, final) {
			return true
		}
	}
	return false
}

func (e *Evaluator) evaluateOrdering(attr string, value []byte, en *entry.Entry, accept func(int) bool) bool {
	mr := e.schema.OrderingRule(attr)
	assertion, err := mr.Normalize(value)
	if err != nil {
		return false
	}
	for _, v := range en.Values(attr) {
		nv, err := mr.Normalize(v)
		if err != nil {
			continue
		}
		if accept(mr.Compare(nv, assertion)) {
			return true
		}
	}
	return false
}

func (e *Evaluator) evaluateApprox(attr string, value []byte, en *entry.Entry) bool {
	mr := e.schema.ApproximateRule(attr)
	assertion, err := mr.Normalize(value)
	if err != nil {
		return false
	}
	for _, v := range en.Values(attr) {
		nv, err := mr.Normalize(v)
		if err == nil && string(nv) == string(assertion) {
			return true
		}
	}
	return false
}

// Schema returns the evaluator's schema.
func (e *Evaluator) Schema() *schema.Schema {
	return e.schema
}
