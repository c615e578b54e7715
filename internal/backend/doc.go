// Package backend provides the entry container: the primary entry store
// together with the attribute and VLV indexes that must stay consistent
// with it.
//
// Entries live in two databases of a kv.Store. id2entry maps the 8-byte
// big-endian entry ID to the encoded entry, and dn2id maps a DN key to the
// ID. DN keys list the RDNs from the root down, so a subtree is one key
// range. Decoded entries read outside a transaction are kept in a small
// LRU cache.
//
// Add, Delete and Modify each run in one transaction that also updates
// every attribute index and, through a vlv.IndexBuffer, every VLV index:
//
//	ec, err := backend.Open(kv.NewMemStore(), schema.LoadDefaultSchema(), cfg, logger)
//	if err != nil {
//	    return err
//	}
//	id, err := ec.Add(e)
//
// Search narrows the scope with Candidates and verifies each candidate with
// the filter evaluator. VLVSearch pages a sorted result through a VLV index,
// or sorts the search result when the index cannot answer.
//
// Indexes that lose their trust keep being maintained but stop answering
// searches until Rebuild runs over them.
package backend
