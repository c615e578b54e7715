// Package entry defines the directory entry model consumed by the index
// engine: entries with multi-valued attributes, entry identifiers,
// modifications, DN scope matching and LDIF parsing.
//
// # Entries
//
// Attribute names are stored lowercase so lookups are case-insensitive:
//
//	e := entry.New("uid=alice,ou=people,dc=example,dc=com")
//	e.AddValue("cn", []byte("Alice Smith"))
//	e.Values("CN") // [][]byte{"Alice Smith"}
//
// # Scope
//
// MatchesBaseAndScope answers whether a DN falls under a search base:
//
//	entry.MatchesBaseAndScope(dn, "dc=example,dc=com", entry.ScopeWholeSubtree)
//
// # LDIF
//
// ParseLDIF reads RFC 2849 content records (dn: / attr: / attr:: base64):
//
//	entries, err := entry.ParseLDIF(f)
package entry
