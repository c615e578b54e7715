package schema

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
)

// Loader errors
var (
	ErrSchemaFileNotFound = errors.New("schema file not found")
	ErrInheritanceCycle   = errors.New("inheritance cycle detected")
)

// LoadSchema returns the default schema extended by the subschema entries
// of each LDIF file in paths, applied in order. Later definitions replace
// earlier ones with the same OID or name.
func LoadSchema(paths ...string) (*Schema, error) {
	s := LoadDefaultSchema()
	for _, path := range paths {
		if err := s.extendFromFile(path); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Schema) extendFromFile(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrSchemaFileNotFound, path)
	}
	if err != nil {
		return err
	}
	defer f.Close()

	if err := s.ExtendFromLDIF(f); err != nil {
		return fmt.Errorf("schema %s: %w", path, err)
	}
	return nil
}

// LoadSchemaFromLDIF returns the default schema extended by the
// subschema entries read from r.
//
//	dn: cn=schema
//	attributeTypes: ( 1.3.6.1.4.1.99999.1 NAME 'badgeNumber'
//	  EQUALITY integerMatch ORDERING integerOrderingMatch
//	  SYNTAX 1.3.6.1.4.1.1466.115.121.1.27 )
func LoadSchemaFromLDIF(r io.Reader) (*Schema, error) {
	s := LoadDefaultSchema()
	if err := s.ExtendFromLDIF(r); err != nil {
		return nil, err
	}
	return s, nil
}

// ExtendFromLDIF adds the ldapSyntaxes, matchingRules and attributeTypes
// values of every entry in r. Other attributes, objectClasses included,
// are ignored.
func (s *Schema) ExtendFromLDIF(r io.Reader) error {
	entries, err := entry.ParseLDIF(r)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := s.addDefinitions(e); err != nil {
			return fmt.Errorf("%s: %w", e.DN, err)
		}
	}
	return resolveAttributeTypeInheritance(s)
}

// addDefinitions registers syntaxes before rules and rules before
// attribute types, whatever their order in the entry.
func (s *Schema) addDefinitions(e *entry.Entry) error {
	for _, v := range e.Values("ldapSyntaxes") {
		syn, err := parseSyntaxDef(string(v))
		if err != nil {
			return err
		}
		s.AddSyntax(syn)
	}
	for _, v := range e.Values("matchingRules") {
		mr, err := parseMatchingRule(string(v))
		if err != nil {
			return err
		}
		s.AddMatchingRule(mr)
	}
	for _, v := range e.Values("attributeTypes") {
		at, err := parseAttributeType(string(v))
		if err != nil {
			return err
		}
		s.AddAttributeType(at)
	}
	return nil
}

// LoadDefaultSchema loads the built-in default schema.
func LoadDefaultSchema() *Schema {
	s := NewSchema()

	// Syntaxes and matching rules first so attribute types resolve.
	_ = loadDefaultSyntaxes(s)
	_ = loadDefaultMatchingRules(s)
	_ = loadDefaultAttributeTypes(s)

	_ = resolveAttributeTypeInheritance(s)

	return s
}

// resolveAttributeTypeInheritance copies syntax and matching rules down
// from superior attribute types.
func resolveAttributeTypeInheritance(s *Schema) error {
	resolved := make(map[*AttributeType]bool)

	var resolve func(at *AttributeType, visited map[*AttributeType]bool) error
	resolve = func(at *AttributeType, visited map[*AttributeType]bool) error {
		if at == nil || resolved[at] {
			return nil
		}
		if visited[at] {
			return fmt.Errorf("%w: %s", ErrInheritanceCycle, at.Name)
		}
		visited[at] = true

		if at.Superior != "" {
			if sup := s.GetAttributeType(at.Superior); sup != nil {
				if err := resolve(sup, visited); err != nil {
					return err
				}
				if at.Syntax == "" {
					at.Syntax = sup.Syntax
				}
				if at.Equality == "" {
					at.Equality = sup.Equality
				}
				if at.Ordering == "" {
					at.Ordering = sup.Ordering
				}
				if at.Substring == "" {
					at.Substring = sup.Substring
				}
			}
		}

		resolved[at] = true
		return nil
	}

	for _, at := range s.AttributeTypes {
		if err := resolve(at, make(map[*AttributeType]bool)); err != nil {
			return err
		}
	}
	return nil
}

// GetEffectiveSyntax returns the syntax OID of an attribute type, walking
// the superior chain when the type declares none.
func (s *Schema) GetEffectiveSyntax(atName string) string {
	at := s.GetAttributeType(atName)
	for depth := 0; at != nil && depth < 16; depth++ {
		if at.Syntax != "" {
			return at.Syntax
		}
		if at.Superior == "" {
			break
		}
		at = s.GetAttributeType(at.Superior)
	}
	return ""
}
