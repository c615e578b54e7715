package filter

import (
	"bytes"

	"github.com/KilimcininKorOglu/obaidx/internal/schema"
)

// normalizeComponent normalizes one substring component. Absent components
// stay nil.
func normalizeComponent(mr *schema.MatchingRule, c []byte) ([]byte, error) {
	if len(c) == 0 {
		return nil, nil
	}
	return mr.Normalize(c)
}

// matchSubstring checks a normalized value against normalized initial, any
// and final components. Components match left to right without overlap.
func matchSubstring(value, initial []byte, any [][]byte, final []byte) bool {
	pos := 0

	if len(initial) > 0 {
		if !bytes.HasPrefix(value, initial) {
			return false
		}
		pos = len(initial)
	}

	for _, substr := range any {
		if len(substr) == 0 {
			continue
		}
		idx := bytes.Index(value[pos:], substr)
		if idx < 0 {
			return false
		}
		pos += idx + len(substr)
	}

	if len(final) > 0 {
		if len(value)-pos < len(final) || !bytes.HasSuffix(value, final) {
			return false
		}
	}

	return true
}
