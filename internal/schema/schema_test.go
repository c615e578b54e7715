package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Rule resolution
// =============================================================================

func TestRuleResolution(t *testing.T) {
	s := LoadDefaultSchema()

	tests := []struct {
		attr     string
		equality string
		ordering string
		substr   string
	}{
		{"cn", "caseIgnoreMatch", "caseIgnoreOrderingMatch", "caseIgnoreSubstringsMatch"},
		{"commonName", "caseIgnoreMatch", "caseIgnoreOrderingMatch", "caseIgnoreSubstringsMatch"},
		{"SN", "caseIgnoreMatch", "caseIgnoreOrderingMatch", "caseIgnoreSubstringsMatch"},
		{"uidNumber", "integerMatch", "integerOrderingMatch", "caseIgnoreSubstringsMatch"},
		{"mail", "caseIgnoreIA5Match", "caseIgnoreOrderingMatch", "caseIgnoreIA5SubstringsMatch"},
		{"createTimestamp", "generalizedTimeMatch", "generalizedTimeOrderingMatch", "caseIgnoreSubstringsMatch"},
		{"unknownAttr", "caseIgnoreMatch", "caseIgnoreOrderingMatch", "caseIgnoreSubstringsMatch"},
	}

	for _, tt := range tests {
		t.Run(tt.attr, func(t *testing.T) {
			assert.Equal(t, tt.equality, s.EqualityRule(tt.attr).Name)
			assert.Equal(t, tt.ordering, s.OrderingRule(tt.attr).Name)
			assert.Equal(t, tt.substr, s.SubstringRule(tt.attr).Name)
		})
	}
}

func TestEmptySchemaFallsBack(t *testing.T) {
	s := NewSchema()
	mr := s.EqualityRule("cn")
	require.NotNil(t, mr)
	assert.Equal(t, "caseIgnoreMatch", mr.Name)

	v, err := mr.Normalize([]byte(" Foo  Bar "))
	require.NoError(t, err)
	assert.Equal(t, "foo bar", string(v))

	// Lookups never register rules.
	assert.Nil(t, s.GetMatchingRule("caseignorematch"))
	assert.Same(t, mr, NewSchema().EqualityRule("sn"))
}

func TestApproximateRuleShared(t *testing.T) {
	s := LoadDefaultSchema()
	a := s.ApproximateRule("cn")
	b := s.ApproximateRule("sn")
	assert.Same(t, a, b)
	assert.Equal(t, ApproximateMatchOID, a.OID)
}

// =============================================================================
// Normalization
// =============================================================================

func TestNormalize(t *testing.T) {
	s := LoadDefaultSchema()

	tests := []struct {
		rule  string
		in    string
		want  string
		fails bool
	}{
		{"caseIgnoreMatch", "  Hello   World ", "hello world", false},
		{"caseExactMatch", "  Hello   World ", "Hello World", false},
		{"caseIgnoreIA5Match", " Alice@Example.COM ", "alice@example.com", false},
		{"integerMatch", "0042", "42", false},
		{"integerMatch", "+7", "7", false},
		{"integerMatch", "-000", "0", false},
		{"integerMatch", "-12", "-12", false},
		{"integerMatch", "12a", "", true},
		{"telephoneNumberMatch", "+1 555-0100", "+15550100", false},
		{"telephoneNumberMatch", "call me", "", true},
		{"numericStringMatch", "12 34", "1234", false},
		{"numericStringMatch", "12x", "", true},
		{"booleanMatch", "true", "TRUE", false},
		{"booleanMatch", "yes", "", true},
		{"distinguishedNameMatch", "CN=Alice, DC=Example", "cn=alice,dc=example", false},
		{"octetStringMatch", "Raw Bytes", "Raw Bytes", false},
		{"approximateMatch", "Jon  Smyth", "jn smth", false},
		{"approximateMatch", "Joan Smith", "jn smth", false},
		{"approximateMatch", "Allen", "aln", false},
	}

	for _, tt := range tests {
		t.Run(tt.rule+"/"+tt.in, func(t *testing.T) {
			mr := s.GetMatchingRule(tt.rule)
			require.NotNil(t, mr)
			got, err := mr.Normalize([]byte(tt.in))
			if tt.fails {
				assert.ErrorIs(t, err, ErrInvalidValue)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestIntegerOrdering(t *testing.T) {
	mr := LoadDefaultSchema().GetMatchingRule("integerOrderingMatch")
	require.NotNil(t, mr)

	values := []string{"-100", "-20", "-3", "0", "4", "15", "200"}
	for i := 0; i < len(values)-1; i++ {
		a, err := mr.Normalize([]byte(values[i]))
		require.NoError(t, err)
		b, err := mr.Normalize([]byte(values[i+1]))
		require.NoError(t, err)
		assert.Negative(t, mr.Compare(a, b), "%s < %s", values[i], values[i+1])
		assert.Positive(t, mr.Compare(b, a))
	}
	assert.Zero(t, mr.Compare([]byte("15"), []byte("15")))
}

func TestMatch(t *testing.T) {
	s := LoadDefaultSchema()
	assert.True(t, s.EqualityRule("cn").Match([]byte("ALICE"), []byte("alice")))
	assert.False(t, s.EqualityRule("cn").Match([]byte("alice"), []byte("bob")))
	assert.True(t, s.EqualityRule("uidNumber").Match([]byte("007"), []byte("7")))
	assert.False(t, s.EqualityRule("uidNumber").Match([]byte("x"), []byte("x")))
}

// =============================================================================
// Parsing and loading
// =============================================================================

func TestParseAttributeType(t *testing.T) {
	at, err := parseAttributeType(`( 2.5.4.3 NAME ( 'cn' 'commonName' ) DESC 'Common name' SUP name SYNTAX 1.3.6.1.4.1.1466.115.121.1.15{64} SINGLE-VALUE USAGE directoryOperation )`)
	require.NoError(t, err)
	assert.Equal(t, "2.5.4.3", at.OID)
	assert.Equal(t, "cn", at.Name)
	assert.Equal(t, []string{"cn", "commonName"}, at.Names)
	assert.Equal(t, "name", at.Superior)
	assert.Equal(t, SyntaxDirectoryString, at.Syntax)
	assert.True(t, at.SingleValue)
	assert.True(t, at.IsOperational())
	assert.Equal(t, "directoryOperation", at.Usage.String())
}

func TestParseDefinitionLists(t *testing.T) {
	at, err := parseAttributeType(`( 1.3.6.1.4.1.99999.4 NAME 'roomList' DESC 'Rooms' SUP ( name $ description )
		OBSOLETE COLLECTIVE NO-USER-MODIFICATION X-ORIGIN ( 'site' 'local' ) )`)
	require.NoError(t, err)
	assert.Equal(t, "roomList", at.Name)
	assert.Equal(t, "Rooms", at.Desc)
	assert.Equal(t, "name", at.Superior)
	assert.True(t, at.Obsolete)
	assert.True(t, at.Collective)
	assert.True(t, at.NoUserMod)
	assert.False(t, at.IsOperational())

	mr, err := parseMatchingRule(`( 2.5.13.14 NAME 'integerMatch' SYNTAX 1.3.6.1.4.1.1466.115.121.1.27 )`)
	require.NoError(t, err)
	assert.Equal(t, []string{"integerMatch"}, mr.Names)
	assert.Equal(t, SyntaxInteger, mr.Syntax)
}

func TestParseErrors(t *testing.T) {
	_, err := parseAttributeType(`2.5.4.3 NAME 'cn'`)
	assert.ErrorIs(t, err, ErrInvalidAttributeType)

	_, err = parseAttributeType(`( 2.5.4.3 NAME 'cn )`)
	assert.ErrorIs(t, err, ErrUnterminatedString)

	_, err = parseAttributeType(`( )`)
	assert.ErrorIs(t, err, ErrMissingOID)

	_, err = parseMatchingRule(`( 2.5.13.2 NAME )`)
	assert.ErrorIs(t, err, ErrInvalidMatchingRule)

	_, err = parseSyntaxDef(`1.2.3`)
	assert.ErrorIs(t, err, ErrInvalidSyntax)

	_, err = parseAttributeType(`( 1.2.3 NAME ( 'a' 'b' )`)
	assert.ErrorIs(t, err, ErrUnterminatedParens)

	_, err = parseAttributeType(`( 1.2.3 NAME 'a' ) trailing`)
	assert.ErrorIs(t, err, ErrInvalidAttributeType)

	_, err = parseAttributeType(`( 'quoted' NAME 'a' )`)
	assert.ErrorIs(t, err, ErrInvalidAttributeType)
}

func TestParsedSyntaxGetsValidator(t *testing.T) {
	syn, err := parseSyntaxDef(`( 1.3.6.1.4.1.1466.115.121.1.27 DESC 'INTEGER' )`)
	require.NoError(t, err)
	assert.Equal(t, "INTEGER", syn.Description)
	assert.True(t, syn.Validate([]byte("-5")))
	assert.False(t, syn.Validate([]byte("five")))
}

func TestLoadSchemaFromLDIF(t *testing.T) {
	ldif := `dn: cn=schema
objectClass: subschema
attributeTypes: ( 1.3.6.1.4.1.99999.1 NAME 'badgeNumber'
  EQUALITY integerMatch ORDERING integerOrderingMatch
  SYNTAX 1.3.6.1.4.1.1466.115.121.1.27 SINGLE-VALUE )
attributeTypes: ( 1.3.6.1.4.1.99999.2 NAME 'nickname' SUP name )
objectClasses: ( 1.3.6.1.4.1.99999.3 NAME 'badgeHolder' SUP top AUXILIARY )
`
	s, err := LoadSchemaFromLDIF(strings.NewReader(ldif))
	require.NoError(t, err)

	assert.Equal(t, "integerOrderingMatch", s.OrderingRule("badgeNumber").Name)
	assert.Equal(t, "caseIgnoreMatch", s.EqualityRule("nickname").Name)
	assert.Equal(t, SyntaxDirectoryString, s.GetEffectiveSyntax("nickname"))
	// Defaults are still present.
	assert.NotNil(t, s.GetAttributeType("cn"))
}

func TestLoadSchemaFromLDIFError(t *testing.T) {
	_, err := LoadSchemaFromLDIF(strings.NewReader("dn: cn=schema\nattributeTypes: ( 1.2.3 NAME 'x\n"))
	assert.ErrorIs(t, err, ErrInvalidAttributeType)
	assert.ErrorIs(t, err, ErrUnterminatedString)
	assert.Contains(t, err.Error(), "cn=schema")
}

func TestLoadSchemaFiles(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "00-badge.ldif")
	second := filepath.Join(dir, "10-override.ldif")
	require.NoError(t, os.WriteFile(first, []byte(`dn: cn=schema
attributeTypes: ( 1.3.6.1.4.1.99999.1 NAME 'badgeNumber' EQUALITY caseIgnoreMatch )
`), 0644))
	require.NoError(t, os.WriteFile(second, []byte(`dn: cn=schema
attributeTypes: ( 1.3.6.1.4.1.99999.1 NAME ( 'badgeNumber' 'badge' )
  EQUALITY integerMatch ORDERING integerOrderingMatch
  SYNTAX 1.3.6.1.4.1.1466.115.121.1.27 )
`), 0644))

	s, err := LoadSchema(first)
	require.NoError(t, err)
	assert.Equal(t, "caseIgnoreOrderingMatch", s.OrderingRule("badgeNumber").Name)

	s, err = LoadSchema(first, second)
	require.NoError(t, err)
	assert.Equal(t, "integerOrderingMatch", s.OrderingRule("badge").Name)
	assert.Equal(t, "integerMatch", s.EqualityRule("badgeNumber").Name)

	_, err = LoadSchema(first, filepath.Join(dir, "missing.ldif"))
	assert.ErrorIs(t, err, ErrSchemaFileNotFound)
	assert.Contains(t, err.Error(), "missing.ldif")
}

func TestLoadSchemaMissingFile(t *testing.T) {
	_, err := LoadSchema("/nonexistent/schema.ldif")
	assert.ErrorIs(t, err, ErrSchemaFileNotFound)
}

func TestInheritanceCycle(t *testing.T) {
	s := NewSchema()
	a := NewAttributeType("1.1", "a")
	a.Superior = "b"
	b := NewAttributeType("1.2", "b")
	b.Superior = "a"
	s.AddAttributeType(a)
	s.AddAttributeType(b)
	assert.ErrorIs(t, resolveAttributeTypeInheritance(s), ErrInheritanceCycle)
}
