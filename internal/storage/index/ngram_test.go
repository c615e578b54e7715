package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func keyStrings(keys [][]byte) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}

func TestSubstringKeys(t *testing.T) {
	assert.Equal(t, []string{"ABC", "BCD", "CDE", "DE", "E"}, keyStrings(SubstringKeys([]byte("ABCDE"), 3)))
	assert.Equal(t, []string{"aa", "a"}, keyStrings(SubstringKeys([]byte("aaa"), 2)))
	assert.Empty(t, SubstringKeys(nil, 3))
}

func TestAssertionFragments(t *testing.T) {
	assert.Equal(t, []string{"bcd", "cde", "zbc"}, keyStrings(assertionFragments([]byte("zbcde"), 3)))
	assert.Equal(t, []string{"abab", "baba"}, keyStrings(assertionFragments([]byte("ababab"), 4)))
	assert.Nil(t, assertionFragments([]byte("ab"), 3))
}

func TestIncrement(t *testing.T) {
	tests := []struct {
		in   []byte
		want []byte
		ok   bool
	}{
		{[]byte("abc"), []byte("abd"), true},
		{[]byte{'a', 0xff}, []byte{'b', 0x00}, true},
		{[]byte{0x01, 0xff, 0xff}, []byte{0x02, 0x00, 0x00}, true},
		{[]byte{0xff, 0xff}, nil, false},
	}
	for _, tt := range tests {
		got, ok := increment(tt.in)
		assert.Equal(t, tt.ok, ok, "%x", tt.in)
		assert.Equal(t, tt.want, got, "%x", tt.in)
	}
}
