// Package index implements the attribute indexes of the directory backend.
//
// # Entry ID sets
//
// An EntryIDSet is either Defined, listing entry IDs in ascending order on
// a roaring bitmap, or Undefined, meaning the key matched more entries than
// the entry limit allows:
//
//	set := index.NewEntryIDSet(1, 5, 9)
//	set.RetainAll(index.NewUndefinedSet()) // still {1, 5, 9}
//
// # Indexes
//
// An Index stores one EntryIDSet per key in a kv database. Keys come from
// an Indexer:
//
//	equality     normalized value          (uid=alice)
//	presence     the constant key "+"      (mail=*)
//	substring    sliding windows           (cn=*admin*)
//	ordering     ordering-normalized value (uidNumber>=1000)
//	approximate  phonetic-ish reduction    (cn~=jon smyth)
//
// Updates are read-modify-write inside the caller's transaction and are
// retried a few times on conflicts. A key that reaches the entry limit
// turns Undefined.
//
// # Trust
//
// Every index carries a persisted trusted flag. An untrusted index keeps
// absorbing updates but answers reads conservatively until a rebuild marks
// it trusted again. Detected inconsistencies, such as removing an ID that
// is not there, clear the flag.
//
// # Attribute indexes
//
// AttributeIndex groups the indexes of one attribute and evaluates the
// single-attribute filters:
//
//	ai, _ := index.OpenAttributeIndex(store, state, schema, index.AttributeConfig{
//	    Attribute: "cn",
//	    Types:     []index.IndexType{index.IndexEquality, index.IndexSubstring},
//	}, logger)
//	ids := ai.EvaluateSubstring(txn, []byte("jo"), nil, []byte("son"))
package index
