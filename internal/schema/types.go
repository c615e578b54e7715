package schema

import "strings"

// Schema holds attribute types, syntaxes and matching rules keyed by OID
// and by lowercase name.
type Schema struct {
	AttributeTypes map[string]*AttributeType
	Syntaxes       map[string]*Syntax
	MatchingRules  map[string]*MatchingRule
}

// NewSchema creates a new empty Schema with initialized maps.
func NewSchema() *Schema {
	return &Schema{
		AttributeTypes: make(map[string]*AttributeType),
		Syntaxes:       make(map[string]*Syntax),
		MatchingRules:  make(map[string]*MatchingRule),
	}
}

// GetAttributeType retrieves an attribute type by name, alias or OID.
// Returns nil if not found.
func (s *Schema) GetAttributeType(nameOrOID string) *AttributeType {
	if s == nil {
		return nil
	}
	return s.AttributeTypes[strings.ToLower(nameOrOID)]
}

// GetSyntax retrieves a syntax by OID.
// Returns nil if not found.
func (s *Schema) GetSyntax(oid string) *Syntax {
	return s.Syntaxes[oid]
}

// GetMatchingRule retrieves a matching rule by name, alias or OID.
// Returns nil if not found.
func (s *Schema) GetMatchingRule(nameOrOID string) *MatchingRule {
	if s == nil {
		return nil
	}
	return s.MatchingRules[strings.ToLower(nameOrOID)]
}

// AddAttributeType registers an attribute type under its OID and all of
// its names.
func (s *Schema) AddAttributeType(at *AttributeType) {
	if at.OID != "" {
		s.AttributeTypes[strings.ToLower(at.OID)] = at
	}
	for _, name := range at.Names {
		s.AttributeTypes[strings.ToLower(name)] = at
	}
	if at.Name != "" {
		s.AttributeTypes[strings.ToLower(at.Name)] = at
	}
}

// AddSyntax adds a syntax to the schema by its OID.
func (s *Schema) AddSyntax(syn *Syntax) {
	if syn.OID != "" {
		s.Syntaxes[syn.OID] = syn
	}
}

// AddMatchingRule registers a matching rule under its OID and all of its
// names. A rule parsed from a definition string picks up the
// implementation of a built-in rule with the same OID or name.
func (s *Schema) AddMatchingRule(mr *MatchingRule) {
	if mr.impl == nil {
		mr.impl = builtinImpl(mr)
	}
	if mr.OID != "" {
		s.MatchingRules[strings.ToLower(mr.OID)] = mr
	}
	for _, name := range mr.Names {
		s.MatchingRules[strings.ToLower(name)] = mr
	}
	if mr.Name != "" {
		s.MatchingRules[strings.ToLower(mr.Name)] = mr
	}
}

// EqualityRule returns the equality matching rule of the attribute,
// falling back to caseIgnoreMatch for unknown attributes.
func (s *Schema) EqualityRule(attr string) *MatchingRule {
	if at := s.GetAttributeType(attr); at != nil && at.Equality != "" {
		if mr := s.GetMatchingRule(at.Equality); mr != nil {
			return mr
		}
	}
	return s.fallback("caseIgnoreMatch")
}

// OrderingRule returns the ordering matching rule of the attribute. When
// the attribute declares none, the ordering counterpart of its equality
// rule is used.
func (s *Schema) OrderingRule(attr string) *MatchingRule {
	at := s.GetAttributeType(attr)
	if at != nil && at.Ordering != "" {
		if mr := s.GetMatchingRule(at.Ordering); mr != nil {
			return mr
		}
	}
	eq := s.EqualityRule(attr)
	if name, ok := orderingCounterpart[strings.ToLower(eq.Name)]; ok {
		if mr := s.GetMatchingRule(name); mr != nil {
			return mr
		}
	}
	return s.fallback("caseIgnoreOrderingMatch")
}

// SubstringRule returns the substring matching rule of the attribute,
// falling back to caseIgnoreSubstringsMatch.
func (s *Schema) SubstringRule(attr string) *MatchingRule {
	if at := s.GetAttributeType(attr); at != nil && at.Substring != "" {
		if mr := s.GetMatchingRule(at.Substring); mr != nil {
			return mr
		}
	}
	return s.fallback("caseIgnoreSubstringsMatch")
}

// ApproximateRule returns the approximate matching rule. Every attribute
// shares the phonetic rule.
func (s *Schema) ApproximateRule(attr string) *MatchingRule {
	return s.fallback(ApproximateMatchName)
}

// fallback returns the named rule from the schema or, failing that, the
// shared built-in rule of that name. The schema itself is never modified
// so lookups are safe for concurrent use.
func (s *Schema) fallback(name string) *MatchingRule {
	if mr := s.GetMatchingRule(name); mr != nil {
		return mr
	}
	return builtinFallbacks[strings.ToLower(name)]
}

var builtinFallbacks = map[string]*MatchingRule{
	"caseignorematch":           NewMatchingRule("2.5.13.2", "caseIgnoreMatch"),
	"caseignoreorderingmatch":   NewMatchingRule("2.5.13.3", "caseIgnoreOrderingMatch"),
	"caseignoresubstringsmatch": NewMatchingRule("2.5.13.4", "caseIgnoreSubstringsMatch"),
	"approximatematch":          NewMatchingRule(ApproximateMatchOID, ApproximateMatchName),
}

// orderingCounterpart maps an equality rule to the ordering rule that
// normalizes values the same way.
var orderingCounterpart = map[string]string{
	"caseignorematch":        "caseIgnoreOrderingMatch",
	"caseignoreia5match":     "caseIgnoreOrderingMatch",
	"caseexactmatch":         "caseExactOrderingMatch",
	"caseexactia5match":      "caseExactOrderingMatch",
	"integermatch":           "integerOrderingMatch",
	"octetstringmatch":       "octetStringOrderingMatch",
	"generalizedtimematch":   "generalizedTimeOrderingMatch",
	"uuidmatch":              "UUIDOrderingMatch",
	"numericstringmatch":     "numericStringOrderingMatch",
	"telephonenumbermatch":   "caseIgnoreOrderingMatch",
	"distinguishednamematch": "caseIgnoreOrderingMatch",
}
