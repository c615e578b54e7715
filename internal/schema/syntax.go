package schema

import "unicode/utf8"

// Syntax represents an LDAP syntax definition.
type Syntax struct {
	OID         string            // Object Identifier (e.g., "1.3.6.1.4.1.1466.115.121.1.15")
	Description string            // Human-readable description (e.g., "Directory String")
	Validator   func([]byte) bool // Function to validate values against this syntax
}

// NewSyntax creates a new Syntax with the given OID and description and
// the built-in validator for that OID, if any.
func NewSyntax(oid, description string) *Syntax {
	return &Syntax{
		OID:         oid,
		Description: description,
		Validator:   syntaxValidators[oid],
	}
}

// Validate checks if the given value conforms to this syntax.
// Returns true if the value is valid or if no validator is defined.
func (s *Syntax) Validate(value []byte) bool {
	if s.Validator == nil {
		return true
	}
	return s.Validator(value)
}

// Common LDAP Syntax OIDs.
const (
	SyntaxDirectoryString = "1.3.6.1.4.1.1466.115.121.1.15"
	SyntaxDN              = "1.3.6.1.4.1.1466.115.121.1.12"
	SyntaxInteger         = "1.3.6.1.4.1.1466.115.121.1.27"
	SyntaxBoolean         = "1.3.6.1.4.1.1466.115.121.1.7"
	SyntaxOctetString     = "1.3.6.1.4.1.1466.115.121.1.40"
	SyntaxGeneralizedTime = "1.3.6.1.4.1.1466.115.121.1.24"
	SyntaxOID             = "1.3.6.1.4.1.1466.115.121.1.38"
	SyntaxTelephoneNumber = "1.3.6.1.4.1.1466.115.121.1.50"
	SyntaxIA5String       = "1.3.6.1.4.1.1466.115.121.1.26"
	SyntaxNumericString   = "1.3.6.1.4.1.1466.115.121.1.36"
	SyntaxUUID            = "1.3.6.1.1.16.1"
)

var syntaxValidators = map[string]func([]byte) bool{
	SyntaxDirectoryString: ValidateDirectoryString,
	SyntaxInteger:         ValidateInteger,
	SyntaxBoolean:         ValidateBoolean,
	SyntaxTelephoneNumber: ValidateTelephoneNumber,
	SyntaxIA5String:       ValidateIA5String,
	SyntaxNumericString:   ValidateNumericString,
}

// ValidateDirectoryString accepts non-empty UTF-8.
func ValidateDirectoryString(value []byte) bool {
	return len(value) > 0 && utf8.Valid(value)
}

// ValidateInteger accepts an optional sign followed by at least one digit.
func ValidateInteger(value []byte) bool {
	if len(value) == 0 {
		return false
	}
	start := 0
	if value[0] == '-' || value[0] == '+' {
		start = 1
		if len(value) == 1 {
			return false
		}
	}
	for i := start; i < len(value); i++ {
		if value[i] < '0' || value[i] > '9' {
			return false
		}
	}
	return true
}

// ValidateBoolean accepts "TRUE" or "FALSE".
func ValidateBoolean(value []byte) bool {
	s := string(value)
	return s == "TRUE" || s == "FALSE"
}

// ValidateIA5String accepts ASCII.
func ValidateIA5String(value []byte) bool {
	for _, b := range value {
		if b > 127 {
			return false
		}
	}
	return true
}

// ValidateNumericString accepts digits and spaces.
func ValidateNumericString(value []byte) bool {
	for _, b := range value {
		if b != ' ' && (b < '0' || b > '9') {
			return false
		}
	}
	return true
}

// ValidateTelephoneNumber accepts digits, spaces and the punctuation
// " -()+.".
func ValidateTelephoneNumber(value []byte) bool {
	if len(value) == 0 {
		return false
	}
	for _, b := range value {
		if b >= '0' && b <= '9' {
			continue
		}
		switch b {
		case ' ', '-', '(', ')', '+', '.':
			continue
		}
		return false
	}
	return true
}
