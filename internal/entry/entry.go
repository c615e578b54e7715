package entry

import (
	"bytes"
	"sort"
	"strconv"
	"strings"
)

// ID identifies an entry in the primary store. IDs are allocated
// monotonically starting at 1; zero is never a valid entry.
type ID uint64

// String returns the decimal form of the ID.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Entry represents a directory entry with multi-valued attributes.
type Entry struct {
	// DN is the distinguished name of the entry.
	DN string

	// Attributes maps the lowercase attribute name to its values.
	Attributes map[string][][]byte
}

// New creates a new Entry with the given DN.
func New(dn string) *Entry {
	return &Entry{
		DN:         dn,
		Attributes: make(map[string][][]byte),
	}
}

// Values returns the values for the given attribute name.
// Returns nil if the attribute does not exist.
func (e *Entry) Values(name string) [][]byte {
	if e == nil || e.Attributes == nil {
		return nil
	}
	return e.Attributes[strings.ToLower(name)]
}

// Has returns true if the entry has at least one value for the attribute.
func (e *Entry) Has(name string) bool {
	return len(e.Values(name)) > 0
}

// Set replaces the values of the given attribute.
func (e *Entry) Set(name string, values ...[]byte) {
	if e.Attributes == nil {
		e.Attributes = make(map[string][][]byte)
	}
	if len(values) == 0 {
		delete(e.Attributes, strings.ToLower(name))
		return
	}
	e.Attributes[strings.ToLower(name)] = values
}

// SetString replaces the values of the given attribute with string values.
func (e *Entry) SetString(name string, values ...string) {
	b := make([][]byte, len(values))
	for i, v := range values {
		b[i] = []byte(v)
	}
	e.Set(name, b...)
}

// AddValue appends a value to the given attribute unless already present.
func (e *Entry) AddValue(name string, value []byte) {
	if e.Attributes == nil {
		e.Attributes = make(map[string][][]byte)
	}
	name = strings.ToLower(name)
	for _, v := range e.Attributes[name] {
		if bytes.Equal(v, value) {
			return
		}
	}
	e.Attributes[name] = append(e.Attributes[name], value)
}

// DeleteValue removes a specific value from an attribute.
// The attribute is removed when its last value goes.
func (e *Entry) DeleteValue(name string, value []byte) {
	if e.Attributes == nil {
		return
	}
	name = strings.ToLower(name)
	values := e.Attributes[name]
	kept := values[:0:0]
	for _, v := range values {
		if !bytes.Equal(v, value) {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		delete(e.Attributes, name)
		return
	}
	e.Attributes[name] = kept
}

// Delete removes an attribute from the entry.
func (e *Entry) Delete(name string) {
	if e.Attributes != nil {
		delete(e.Attributes, strings.ToLower(name))
	}
}

// AttributeNames returns the attribute names in sorted order.
func (e *Entry) AttributeNames() []string {
	names := make([]string, 0, len(e.Attributes))
	for name := range e.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone creates a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}

	clone := &Entry{
		DN:         e.DN,
		Attributes: make(map[string][][]byte, len(e.Attributes)),
	}
	for k, v := range e.Attributes {
		values := make([][]byte, len(v))
		for i, val := range v {
			values[i] = append([]byte(nil), val...)
		}
		clone.Attributes[k] = values
	}
	return clone
}

// ModificationType represents the type of modification operation.
type ModificationType int

const (
	// ModAdd adds values to an attribute.
	ModAdd ModificationType = iota
	// ModDelete removes values from an attribute, or the whole attribute
	// when no values are given.
	ModDelete
	// ModReplace replaces all values of an attribute.
	ModReplace
)

// String returns the string representation of the modification type.
func (m ModificationType) String() string {
	switch m {
	case ModAdd:
		return "add"
	case ModDelete:
		return "delete"
	case ModReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Modification represents a single modification to an entry.
type Modification struct {
	Type      ModificationType
	Attribute string
	Values    [][]byte
}

// NewModification creates a new Modification with string values.
func NewModification(modType ModificationType, attr string, values ...string) Modification {
	b := make([][]byte, len(values))
	for i, v := range values {
		b[i] = []byte(v)
	}
	return Modification{Type: modType, Attribute: strings.ToLower(attr), Values: b}
}

// Apply returns a copy of e with the modifications applied.
func Apply(e *Entry, mods []Modification) *Entry {
	out := e.Clone()
	for _, mod := range mods {
		switch mod.Type {
		case ModAdd:
			for _, v := range mod.Values {
				out.AddValue(mod.Attribute, v)
			}
		case ModDelete:
			if len(mod.Values) == 0 {
				out.Delete(mod.Attribute)
				continue
			}
			for _, v := range mod.Values {
				out.DeleteValue(mod.Attribute, v)
			}
		case ModReplace:
			out.Set(mod.Attribute, mod.Values...)
		}
	}
	return out
}

// ModifiedAttributes returns the set of lowercase attribute names touched
// by mods.
func ModifiedAttributes(mods []Modification) map[string]struct{} {
	out := make(map[string]struct{}, len(mods))
	for _, mod := range mods {
		out[strings.ToLower(mod.Attribute)] = struct{}{}
	}
	return out
}
