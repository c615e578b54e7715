package schema

// AttributeUsage defines how an attribute is used in the directory.
type AttributeUsage int

const (
	// UserApplications is the default usage of user attributes.
	UserApplications AttributeUsage = iota
	// DirectoryOperation marks operational attributes maintained by the server.
	DirectoryOperation
	// DistributedOperation marks operational attributes shared across servers.
	DistributedOperation
	// DSAOperation marks operational attributes local to one server.
	DSAOperation
)

// String returns the string representation of the AttributeUsage.
func (u AttributeUsage) String() string {
	switch u {
	case UserApplications:
		return "userApplications"
	case DirectoryOperation:
		return "directoryOperation"
	case DistributedOperation:
		return "distributedOperation"
	case DSAOperation:
		return "dSAOperation"
	default:
		return "unknown"
	}
}

// AttributeType represents an LDAP attribute type definition. The index
// engine reads its matching rule references.
type AttributeType struct {
	OID         string         // Object Identifier (e.g., "2.5.4.3")
	Name        string         // Primary name (e.g., "cn")
	Names       []string       // All names including aliases
	Desc        string         // Human-readable description
	Obsolete    bool           // Whether this attribute type is obsolete
	Superior    string         // Parent attribute type name or OID
	Equality    string         // Equality matching rule name or OID
	Ordering    string         // Ordering matching rule name or OID
	Substring   string         // Substring matching rule name or OID
	Syntax      string         // Syntax OID
	SingleValue bool           // If true, attribute can have only one value
	Collective  bool           // If true, attribute is collective
	NoUserMod   bool           // If true, attribute cannot be modified by users
	Usage       AttributeUsage // How the attribute is used
}

// NewAttributeType creates a new AttributeType with the given OID and name.
func NewAttributeType(oid, name string) *AttributeType {
	return &AttributeType{
		OID:   oid,
		Name:  name,
		Names: []string{name},
		Usage: UserApplications,
	}
}

// IsOperational returns true if this is an operational attribute.
func (at *AttributeType) IsOperational() bool {
	return at.Usage != UserApplications
}

// HasOrderingMatching returns true if the type declares an ordering rule.
func (at *AttributeType) HasOrderingMatching() bool {
	return at.Ordering != ""
}

// SetMatchingRules sets the matching rules for this attribute type.
func (at *AttributeType) SetMatchingRules(equality, ordering, substring string) {
	at.Equality = equality
	at.Ordering = ordering
	at.Substring = substring
}
