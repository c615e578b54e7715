package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/schema"
)

func testEntry() *entry.Entry {
	e := entry.New("uid=alice,ou=people,dc=example,dc=com")
	e.SetString("objectClass", "top", "person", "inetOrgPerson")
	e.SetString("uid", "alice")
	e.SetString("cn", "Alice  Smith")
	e.SetString("sn", "Smith")
	e.SetString("mail", "Alice@Example.com")
	e.SetString("uidNumber", "1001")
	e.SetString("telephoneNumber", "+1 555-0100")
	return e
}

// =============================================================================
// Parser
// =============================================================================

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		typ  FilterType
		attr string
	}{
		{"(cn=alice)", FilterEquality, "cn"},
		{"cn=alice", FilterEquality, "cn"},
		{"(cn=*)", FilterPresent, "cn"},
		{"(cn=al*ce)", FilterSubstring, "cn"},
		{"(uidNumber>=10)", FilterGreaterOrEqual, "uidNumber"},
		{"(uidNumber<=10)", FilterLessOrEqual, "uidNumber"},
		{"(cn~=alise)", FilterApproxMatch, "cn"},
		{"(&(cn=a)(sn=b))", FilterAnd, ""},
		{"(|(cn=a)(sn=b))", FilterOr, ""},
		{"(!(cn=a))", FilterNot, ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			f, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.typ, f.Type)
			assert.Equal(t, tt.attr, f.Attribute)
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		in  string
		err error
	}{
		{"", ErrEmptyFilter},
		{"()", ErrEmptyFilter},
		{"(&)", ErrInvalidFilter},
		{"(&(cn=a)(sn=b)", ErrUnbalancedParens},
		{"(=value)", ErrInvalidFilter},
		{"( >=value)", ErrMissingAttribute},
		{"(cn=bad\\zz)", ErrInvalidEscape},
		{"(cn=trail\\2)", ErrInvalidEscape},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := Parse(tt.in)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestParseSubstringComponents(t *testing.T) {
	f, err := Parse("(cn=ab*cd*ef*gh)")
	require.NoError(t, err)
	require.NotNil(t, f.Substring)
	assert.Equal(t, "ab", string(f.Substring.Initial))
	assert.Equal(t, [][]byte{[]byte("cd"), []byte("ef")}, f.Substring.Any)
	assert.Equal(t, "gh", string(f.Substring.Final))

	f, err = Parse("(cn=*mid*)")
	require.NoError(t, err)
	assert.Nil(t, f.Substring.Initial)
	assert.Equal(t, [][]byte{[]byte("mid")}, f.Substring.Any)
	assert.Nil(t, f.Substring.Final)
}

func TestParseEscapes(t *testing.T) {
	f, err := Parse(`(cn=a\2ab\28c\29)`)
	require.NoError(t, err)
	assert.Equal(t, FilterEquality, f.Type)
	assert.Equal(t, "a*b(c)", string(f.Value))
}

func TestString(t *testing.T) {
	tests := []string{
		"(cn=alice)",
		"(&(objectClass=person)(|(sn=smith)(sn=jones))(!(uid=bob)))",
		"(cn=ab*cd*ef)",
		"(cn=*mid*)",
		"(uidNumber>=10)",
		"(uidNumber<=10)",
		"(cn~=alise)",
		"(mail=*)",
		`(cn=a\2ab)`,
	}
	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			f, err := Parse(in)
			require.NoError(t, err)
			assert.Equal(t, in, f.String())
		})
	}
}

func TestAttributes(t *testing.T) {
	f, err := Parse("(&(objectClass=person)(|(SN=smith)(sn=jones))(!(uid=bob)))")
	require.NoError(t, err)
	assert.Equal(t, []string{"objectclass", "sn", "uid"}, f.Attributes())
}

func TestFilterTypeString(t *testing.T) {
	assert.Equal(t, "AND", FilterAnd.String())
	assert.Equal(t, "APPROX_MATCH", FilterApproxMatch.String())
	assert.Equal(t, "UNKNOWN", FilterType(99).String())
}

// =============================================================================
// Evaluator
// =============================================================================

func TestEvaluate(t *testing.T) {
	ev := NewEvaluator(schema.LoadDefaultSchema())
	e := testEntry()

	tests := []struct {
		filter string
		want   bool
	}{
		{"(uid=ALICE)", true},
		{"(cn=alice smith)", true},
		{"(cn=bob)", false},
		{"(mail=alice@example.com)", true},
		{"(objectClass=person)", true},
		{"(description=*)", false},
		{"(mail=*)", true},
		{"(cn=ali*)", true},
		{"(cn=*smith)", true},
		{"(cn=*ce s*)", true},
		{"(cn=a*e*h)", true},
		{"(cn=*xyz*)", false},
		{"(cn=smith*)", false},
		{"(uidNumber>=999)", true},
		{"(uidNumber>=1002)", false},
		{"(uidNumber<=1001)", true},
		{"(uidNumber<=99)", false},
		{"(uidNumber=01001)", true},
		{"(uidNumber>=abc)", false},
		{"(sn>=S)", true},
		{"(sn<=R)", false},
		{"(telephoneNumber=+15550100)", true},
		{"(cn~=alyce smyth)", true},
		{"(cn~=bob)", false},
		{"(&(objectClass=person)(uid=alice))", true},
		{"(&(objectClass=person)(uid=bob))", false},
		{"(|(uid=bob)(sn=smith))", true},
		{"(|(uid=bob)(sn=jones))", false},
		{"(!(uid=bob))", true},
		{"(!(uid=alice))", false},
	}

	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			f, err := Parse(tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev.Evaluate(f, e))
		})
	}
}

func TestEvaluateNilInputs(t *testing.T) {
	ev := NewEvaluator(nil)
	assert.False(t, ev.Evaluate(nil, testEntry()))
	assert.False(t, ev.Evaluate(NewPresentFilter("uid"), nil))
	assert.False(t, ev.Evaluate(&Filter{Type: FilterNot}, testEntry()))
	assert.False(t, ev.Evaluate(&Filter{Type: FilterExtensibleMatch}, testEntry()))
	assert.NotNil(t, ev.Schema())
}

func TestEvaluateWithoutSchema(t *testing.T) {
	ev := NewEvaluator(nil)
	f, err := Parse("(cn=ALICE SMITH)")
	require.NoError(t, err)
	assert.True(t, ev.Evaluate(f, testEntry()))
}

func TestMatchSubstring(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		initial string
		any     []string
		final   string
		want    bool
	}{
		{"initial", "abcdef", "abc", nil, "", true},
		{"final", "abcdef", "", nil, "def", true},
		{"any in order", "abcdef", "", []string{"b", "e"}, "", true},
		{"any out of order", "abcdef", "", []string{"e", "b"}, "", false},
		{"overlap initial and final", "abc", "ab", nil, "bc", false},
		{"all parts", "abcdef", "a", []string{"cd"}, "f", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var middle [][]byte
			for _, a := range tt.any {
				middle = append(middle, []byte(a))
			}
			var initial, final []byte
			if tt.initial != "" {
				initial = []byte(tt.initial)
			}
			if tt.final != "" {
				final = []byte(tt.final)
			}
			assert.Equal(t, tt.want, matchSubstring([]byte(tt.value), initial, middle, final))
		})
	}
}
