package backend

import (
	"time"

	"github.com/google/uuid"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
)

// Operational attribute names per RFC 4512 and RFC 4530.
const (
	// AttrCreateTimestamp is the creation timestamp of an entry.
	AttrCreateTimestamp = "createTimestamp"
	// AttrModifyTimestamp is the last modification timestamp of an entry.
	AttrModifyTimestamp = "modifyTimestamp"
	// AttrEntryUUID is the unique identifier of the entry.
	AttrEntryUUID = "entryUUID"
)

// timestampLayout is the GeneralizedTime form used for timestamps.
const timestampLayout = "20060102150405Z"

// now is replaced in tests.
var now = func() time.Time { return time.Now().UTC() }

// setCreateAttrs fills the operational attributes of a new entry. Values
// already present, as in an LDIF export, are kept.
func setCreateAttrs(e *entry.Entry) {
	ts := FormatTimestamp(now())
	if !e.Has(AttrEntryUUID) {
		e.SetString(AttrEntryUUID, uuid.NewString())
	}
	if !e.Has(AttrCreateTimestamp) {
		e.SetString(AttrCreateTimestamp, ts)
	}
	if !e.Has(AttrModifyTimestamp) {
		e.SetString(AttrModifyTimestamp, ts)
	}
}

// modifyTimestampMod returns the modification that stamps a modify.
func modifyTimestampMod() entry.Modification {
	return entry.NewModification(entry.ModReplace, AttrModifyTimestamp, FormatTimestamp(now()))
}

// isOperational reports whether attr is maintained by the backend.
func isOperational(attr string) bool {
	switch attr {
	case "entryuuid", "createtimestamp":
		return true
	}
	return false
}

// FormatTimestamp formats t as an LDAP GeneralizedTime string such as
// "20260218103000Z".
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// ParseTimestamp parses a GeneralizedTime string. It returns the zero time
// if parsing fails.
func ParseTimestamp(s string) time.Time {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
