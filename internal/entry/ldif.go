package entry

import (
	"bufio"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// LDIF errors.
var (
	ErrInvalidLDIF   = errors.New("invalid LDIF format")
	ErrMissingDN     = errors.New("missing DN in LDIF entry")
	ErrInvalidBase64 = errors.New("invalid base64 encoding")
	ErrEmptyReader   = errors.New("empty reader")
)

// ParseLDIF parses LDIF content records and returns the entries in file
// order. Comment lines and the version: header are skipped; folded lines
// (leading single space) are joined.
func ParseLDIF(r io.Reader) ([]*Entry, error) {
	if r == nil {
		return nil, ErrEmptyReader
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var entries []*Entry
	var current *Entry
	var pending string

	flush := func() error {
		if pending == "" {
			return nil
		}
		line := pending
		pending = ""
		if current == nil {
			return nil
		}
		return processLine(current, line)
	}

	for scanner.Scan() {
		line := scanner.Text()

		if len(line) > 0 && line[0] == ' ' {
			pending += line[1:]
			continue
		}
		if err := flush(); err != nil {
			return nil, err
		}

		if len(line) > 0 && line[0] == '#' {
			continue
		}

		if line == "" {
			if current != nil {
				entries = append(entries, current)
				current = nil
			}
			continue
		}

		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "version:") && current == nil:
			continue
		case strings.HasPrefix(lower, "dn:"):
			if current != nil {
				entries = append(entries, current)
			}
			current = New("")
			if err := processDNLine(current, line); err != nil {
				return nil, err
			}
		case current != nil:
			pending = line
		default:
			return nil, fmt.Errorf("%w: attribute before dn: %s", ErrMissingDN, line)
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if current != nil {
		entries = append(entries, current)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLDIF, err)
	}
	return entries, nil
}

func processDNLine(e *Entry, line string) error {
	if len(line) > 3 && line[3] == ':' {
		encoded := strings.TrimSpace(line[4:])
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidBase64, err)
		}
		e.DN = string(decoded)
	} else {
		e.DN = strings.TrimSpace(line[3:])
	}

	if e.DN == "" {
		return ErrMissingDN
	}
	return nil
}

func processLine(e *Entry, line string) error {
	colonIdx := strings.Index(line, ":")
	if colonIdx <= 0 {
		return fmt.Errorf("%w: missing colon in line: %s", ErrInvalidLDIF, line)
	}

	attr := line[:colonIdx]
	// Drop attribute options such as ;lang-en or ;binary.
	if semi := strings.IndexByte(attr, ';'); semi > 0 {
		attr = attr[:semi]
	}
	rest := line[colonIdx+1:]

	var value []byte
	if len(rest) > 0 && rest[0] == ':' {
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(rest[1:]))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidBase64, err)
		}
		value = decoded
	} else {
		value = []byte(strings.TrimSpace(rest))
	}

	e.AddValue(attr, value)
	return nil
}
