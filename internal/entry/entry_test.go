package entry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Entry Tests
// =============================================================================

func TestEntryValuesCaseInsensitive(t *testing.T) {
	e := New("uid=alice,dc=example,dc=com")
	e.AddValue("CN", []byte("Alice"))
	e.AddValue("cn", []byte("Alice"))
	e.AddValue("cn", []byte("Ally"))

	assert.Equal(t, [][]byte{[]byte("Alice"), []byte("Ally")}, e.Values("Cn"))
	assert.True(t, e.Has("cn"))
	assert.False(t, e.Has("sn"))
}

func TestEntryDeleteValue(t *testing.T) {
	e := New("uid=alice,dc=example,dc=com")
	e.SetString("mail", "a@example.com", "alice@example.com")

	e.DeleteValue("mail", []byte("a@example.com"))
	assert.Equal(t, [][]byte{[]byte("alice@example.com")}, e.Values("mail"))

	e.DeleteValue("mail", []byte("alice@example.com"))
	assert.False(t, e.Has("mail"))
	assert.NotContains(t, e.Attributes, "mail")
}

func TestEntryClone(t *testing.T) {
	e := New("uid=alice,dc=example,dc=com")
	e.SetString("cn", "Alice")

	c := e.Clone()
	c.Values("cn")[0][0] = 'X'
	c.SetString("sn", "Smith")

	assert.Equal(t, "Alice", string(e.Values("cn")[0]))
	assert.False(t, e.Has("sn"))
}

func TestApplyModifications(t *testing.T) {
	e := New("uid=alice,dc=example,dc=com")
	e.SetString("cn", "Alice")
	e.SetString("mail", "a@example.com", "alice@example.com")
	e.SetString("title", "Engineer")

	mods := []Modification{
		NewModification(ModAdd, "cn", "Ally"),
		NewModification(ModDelete, "mail", "a@example.com"),
		NewModification(ModDelete, "title"),
		NewModification(ModReplace, "sn", "Smith"),
	}
	out := Apply(e, mods)

	assert.Len(t, out.Values("cn"), 2)
	assert.Equal(t, [][]byte{[]byte("alice@example.com")}, out.Values("mail"))
	assert.False(t, out.Has("title"))
	assert.Equal(t, "Smith", string(out.Values("sn")[0]))

	// Original untouched.
	assert.Len(t, e.Values("cn"), 1)
	assert.True(t, e.Has("title"))

	attrs := ModifiedAttributes(mods)
	assert.Len(t, attrs, 4)
	assert.Contains(t, attrs, "sn")
}

func TestModificationTypeString(t *testing.T) {
	tests := []struct {
		mod      ModificationType
		expected string
	}{
		{ModAdd, "add"},
		{ModDelete, "delete"},
		{ModReplace, "replace"},
		{ModificationType(42), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.mod.String())
		})
	}
}

// =============================================================================
// DN and Scope Tests
// =============================================================================

func TestParseDN(t *testing.T) {
	comps, err := ParseDN("UID=alice, OU=Users ,dc=example,dc=com")
	require.NoError(t, err)
	assert.Equal(t, []string{"uid=alice", "ou=Users", "dc=example", "dc=com"}, comps)

	_, err = ParseDN("")
	assert.ErrorIs(t, err, ErrEmptyDN)

	_, err = ParseDN("novalue,dc=com")
	assert.ErrorIs(t, err, ErrInvalidRDN)
}

func TestParseScope(t *testing.T) {
	tests := []struct {
		input    string
		expected Scope
	}{
		{"base", ScopeBaseObject},
		{"one", ScopeSingleLevel},
		{"SingleLevel", ScopeSingleLevel},
		{"sub", ScopeWholeSubtree},
		{"", ScopeWholeSubtree},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			s, err := ParseScope(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, s)
		})
	}

	_, err := ParseScope("children")
	assert.Error(t, err)
}

func TestMatchesBaseAndScope(t *testing.T) {
	const base = "ou=people,dc=example,dc=com"
	tests := []struct {
		name     string
		dn       string
		scope    Scope
		expected bool
	}{
		{"base matches itself", base, ScopeBaseObject, true},
		{"base rejects child", "uid=a," + base, ScopeBaseObject, false},
		{"one matches child", "uid=a," + base, ScopeSingleLevel, true},
		{"one rejects base", base, ScopeSingleLevel, false},
		{"one rejects grandchild", "cn=x,uid=a," + base, ScopeSingleLevel, false},
		{"sub matches base", base, ScopeWholeSubtree, true},
		{"sub matches grandchild", "cn=x,uid=a," + base, ScopeWholeSubtree, true},
		{"sub case insensitive", "UID=a,OU=People,DC=Example,DC=com", ScopeWholeSubtree, true},
		{"sub rejects sibling", "uid=a,ou=groups,dc=example,dc=com", ScopeWholeSubtree, false},
		{"sub rejects parent", "dc=example,dc=com", ScopeWholeSubtree, false},
		{"malformed", "garbage", ScopeWholeSubtree, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MatchesBaseAndScope(tt.dn, base, tt.scope))
		})
	}

	assert.True(t, MatchesBaseAndScope("dc=com", "", ScopeWholeSubtree))
}

// =============================================================================
// LDIF Tests
// =============================================================================

func TestParseLDIF(t *testing.T) {
	input := `version: 1
# people
dn: uid=alice,ou=people,dc=example,dc=com
objectClass: person
cn: Alice
sn: Smith
description: a long
  folded line
cn;lang-en: Ally

dn:: dWlkPWJvYixvdT1wZW9wbGUsZGM9ZXhhbXBsZSxkYz1jb20=
cn:: Qm9i
sn: Jones
`
	entries, err := ParseLDIF(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	alice := entries[0]
	assert.Equal(t, "uid=alice,ou=people,dc=example,dc=com", alice.DN)
	assert.Equal(t, [][]byte{[]byte("Alice"), []byte("Ally")}, alice.Values("cn"))
	assert.Equal(t, "a long folded line", string(alice.Values("description")[0]))

	bob := entries[1]
	assert.Equal(t, "uid=bob,ou=people,dc=example,dc=com", bob.DN)
	assert.Equal(t, "Bob", string(bob.Values("cn")[0]))
}

func TestParseLDIFErrors(t *testing.T) {
	_, err := ParseLDIF(nil)
	assert.ErrorIs(t, err, ErrEmptyReader)

	_, err = ParseLDIF(strings.NewReader("cn: orphan\n"))
	assert.ErrorIs(t, err, ErrMissingDN)

	_, err = ParseLDIF(strings.NewReader("dn:: !!!\n"))
	assert.ErrorIs(t, err, ErrInvalidBase64)
}
