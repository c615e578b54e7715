// Package schema provides the attribute types, syntaxes and matching rules
// the index engine uses to turn attribute values into index keys.
//
// # Matching Rules
//
// Every MatchingRule carries a normalization and a comparison. Two values
// match when their normalized forms compare equal:
//
//	s := schema.LoadDefaultSchema()
//	eq := s.EqualityRule("cn")
//	key, err := eq.Normalize([]byte("  Alice   Smith "))
//	// key == "alice smith"
//
// Attribute types resolve their rules through the superior chain (sn
// inherits caseIgnoreMatch from name). Unknown attributes fall back to
// caseIgnoreMatch, and an attribute with no ORDERING uses the ordering
// counterpart of its equality rule.
//
// # Approximate Matching
//
// ApproximateRule returns a phonetic rule shared by every attribute. Its
// key folds case and whitespace, drops vowels after the first letter of
// each word and collapses repeated letters, so "Jon Smyth" and "Joan
// Smith" share the key "jn smth".
//
// # Loading
//
// LoadDefaultSchema returns the built-in definitions. LoadSchema layers
// the attributeTypes, matchingRules and ldapSyntaxes of LDIF subschema
// files on top of them, in file order:
//
//	s, err := schema.LoadSchema("/etc/obaidx/schema/99-local.ldif")
//
// An attribute type naming an undefined matching rule falls back to
// caseIgnoreMatch. A rule defined in a file without a built-in
// counterpart compares values byte for byte.
package schema
