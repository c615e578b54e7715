// Package filter provides LDAP search filter parsing, rendering and
// schema-aware evaluation.
//
// # Overview
//
// The filter package implements LDAP search filter parsing, representation,
// and evaluation as defined in RFC 4515. It supports all standard filter types:
//
//   - AND (&): Logical conjunction of filters
//   - OR (|): Logical disjunction of filters
//   - NOT (!): Logical negation of a filter
//   - Equality (=): Exact attribute value match
//   - Substring (*): Pattern matching with wildcards
//   - Greater-or-Equal (>=): Comparison filter
//   - Less-or-Equal (<=): Comparison filter
//   - Present (=*): Attribute existence check
//   - Approximate (~=): Fuzzy matching
//
// # Filter Construction
//
// Filters can be constructed programmatically:
//
//	// Simple equality filter: (uid=alice)
//	f := filter.NewEqualityFilter("uid", []byte("alice"))
//
//	// Presence filter: (mail=*)
//	f := filter.NewPresentFilter("mail")
//
//	// AND filter: (&(objectClass=person)(uid=alice))
//	f := filter.NewAndFilter(
//	    filter.NewEqualityFilter("objectClass", []byte("person")),
//	    filter.NewEqualityFilter("uid", []byte("alice")),
//	)
//
//	// NOT filter: (!(status=disabled))
//	f := filter.NewNotFilter(
//	    filter.NewEqualityFilter("status", []byte("disabled")),
//	)
//
// # Substring Filters
//
// Substring filters support initial, any, and final components:
//
//	// (cn=John*)
//	sf := &filter.SubstringFilter{
//	    Attribute: "cn",
//	    Initial:   []byte("John"),
//	}
//	f := filter.NewSubstringFilter(sf)
//
//	// (cn=*Smith)
//	sf := &filter.SubstringFilter{
//	    Attribute: "cn",
//	    Final:     []byte("Smith"),
//	}
//
//	// (cn=*admin*)
//	sf := &filter.SubstringFilter{
//	    Attribute: "cn",
//	    Any:       [][]byte{[]byte("admin")},
//	}
//
// # Filter Evaluation
//
// The Evaluator matches entries with the schema's matching rules, so
// equality honors caseIgnore, integer and telephone normalization and
// ordering filters compare with the attribute's ordering rule:
//
//	ev := filter.NewEvaluator(schema.LoadDefaultSchema())
//
//	e := entry.New("uid=alice,ou=users,dc=example,dc=com")
//	e.SetString("uid", "alice")
//	e.SetString("uidNumber", "1001")
//
//	f, _ := filter.Parse("(&(uid=ALICE)(uidNumber>=999))")
//	ev.Evaluate(f, e) // true
//
// Filter.String renders a filter back to RFC 4515 form with values
// escaped, which gives a canonical form for comparing configured filters.
package filter
