package index

// SubstringKeys returns the substring index keys of a normalized value:
// the window of length n at every offset, shortened at the tail, with
// duplicates removed. "abcde" with n=3 yields abc, bcd, cde, de and e.
func SubstringKeys(value []byte, n int) [][]byte {
	if len(value) == 0 || n <= 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(value))
	keys := make([][]byte, 0, len(value))
	for i := range value {
		end := min(i+n, len(value))
		k := value[i:end]
		if _, ok := seen[string(k)]; ok {
			continue
		}
		seen[string(k)] = struct{}{}
		keys = append(keys, append([]byte(nil), k...))
	}
	return keys
}

// assertionFragments splits a normalized assertion of at least n bytes
// into its overlapping windows of exactly n bytes, sorted and without
// duplicates.
func assertionFragments(value []byte, n int) [][]byte {
	if len(value) < n || n <= 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(value)-n+1)
	frags := make([][]byte, 0, len(value)-n+1)
	for i := 0; i+n <= len(value); i++ {
		k := value[i : i+n]
		if _, ok := seen[string(k)]; ok {
			continue
		}
		seen[string(k)] = struct{}{}
		frags = append(frags, k)
	}
	sortKeys(frags)
	return frags
}

// increment returns the smallest byte string of the same length that sorts
// after every string with prefix v, adding one to the last byte with
// carry. When every byte is 0xff there is no such string and ok is false.
func increment(v []byte) (next []byte, ok bool) {
	next = append([]byte(nil), v...)
	for i := len(next) - 1; i >= 0; i-- {
		next[i]++
		if next[i] != 0 {
			return next, true
		}
	}
	return nil, false
}
