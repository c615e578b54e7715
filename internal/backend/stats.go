package backend

// IndexStats describes one attribute sub-index or VLV index.
type IndexStats struct {
	Name               string
	Type               string
	Keys               int
	Members            int
	Trusted            bool
	RebuildRunning     bool
	EntryLimitExceeded int64
}

// Stats is a snapshot of the container and its indexes.
type Stats struct {
	Entries int
	Indexes []IndexStats
}

// Stats returns the current statistics, attribute indexes first, each
// group ordered by name.
func (ec *EntryContainer) Stats() Stats {
	st := Stats{Entries: ec.EntryCount()}
	for _, a := range ec.AttributeIndexes() {
		for _, x := range a.Indexes() {
			st.Indexes = append(st.Indexes, IndexStats{
				Name:               x.Name(),
				Type:               x.Indexer().Type().String(),
				Keys:               x.KeyCount(),
				Trusted:            x.IsTrusted(),
				RebuildRunning:     x.IsRebuildRunning(),
				EntryLimitExceeded: x.EntryLimitExceededCount(),
			})
		}
	}
	for _, v := range ec.VLVIndexes() {
		st.Indexes = append(st.Indexes, IndexStats{
			Name:           v.Name(),
			Type:           "vlv",
			Members:        v.Count(),
			Trusted:        v.IsTrusted(),
			RebuildRunning: v.IsRebuildRunning(),
		})
	}
	return st
}

// Untrusted returns the names of the indexes that do not answer searches
// until rebuilt.
func (ec *EntryContainer) Untrusted() []string {
	var out []string
	for _, s := range ec.Stats().Indexes {
		if !s.Trusted {
			out = append(out, s.Name)
		}
	}
	return out
}
