// Package vlv implements virtual list view indexes.
//
// A VLV index keeps the entries selected by a base DN, scope and filter in
// a fixed sort order so that a client can page through a large result by
// offset or by assertion value:
//
//	cfg := vlv.Config{
//		Name:      "people-by-sn",
//		BaseDN:    "ou=people,dc=example,dc=com",
//		Scope:     entry.ScopeWholeSubtree,
//		Filter:    "(objectClass=person)",
//		SortOrder: "sn -uidNumber",
//	}
//
// The sorted list is cut into SortValuesSet blocks. A block is stored under
// the key of its greatest member; the final block uses the empty key and
// catches everything above the last bounded block. Blocks split in half
// when they reach MaxBlockSize and are removed when they become empty.
// Blocks may be stored LZ4 or zstd compressed; every stored block records
// its own compression so the setting can change without a rebuild.
package vlv
