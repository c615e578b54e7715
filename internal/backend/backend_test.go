package backend

import (
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/KilimcininKorOglu/obaidx/internal/config"
	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/filter"
	"github.com/KilimcininKorOglu/obaidx/internal/schema"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/kv"
)

// =============================================================================
// Fixture
// =============================================================================

const (
	testBase   = "dc=example,dc=com"
	testPeople = "ou=people,dc=example,dc=com"
)

var testSurnames = []string{"Smith", "Jones", "Brown", "Adams", "Baker"}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Backend.BaseDN = testBase
	cfg.Indexes = []config.IndexConfig{
		{Attribute: "objectClass", Types: []string{"equality"}},
		{Attribute: "cn", Types: []string{"equality", "presence", "substring"}},
		{Attribute: "uidNumber", Types: []string{"equality", "ordering"}},
		{Attribute: "mail", Types: []string{"presence"}},
	}
	cfg.VLVIndexes = []config.VLVIndexConfig{{
		Name:         "byName",
		BaseDN:       testPeople,
		Scope:        "sub",
		Filter:       "(objectClass=person)",
		SortOrder:    "sn uidNumber",
		MaxBlockSize: 4,
	}}
	return cfg
}

type fixture struct {
	store *kv.MemStore
	ec    *EntryContainer
	ids   map[int]entry.ID
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	store := kv.NewMemStore()
	ec, err := Open(store, schema.LoadDefaultSchema(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ec.Close() })

	for _, e := range []*entry.Entry{
		node(testBase, "domain"),
		node(testPeople, "organizationalUnit"),
		node("ou=groups,dc=example,dc=com", "organizationalUnit"),
	} {
		_, err := ec.Add(e)
		require.NoError(t, err)
	}
	return &fixture{store: store, ec: ec, ids: make(map[int]entry.ID)}
}

func node(dn, class string) *entry.Entry {
	e := entry.New(dn)
	e.SetString("objectClass", class)
	return e
}

// person builds entry i of the people branch. Every ninth entry is a
// device, every even entry has a mail address.
func person(i int) *entry.Entry {
	e := entry.New(fmt.Sprintf("uid=u%02d,%s", i, testPeople))
	if i%9 == 0 {
		e.SetString("objectClass", "device")
	} else {
		e.SetString("objectClass", "person")
	}
	e.SetString("uid", fmt.Sprintf("u%02d", i))
	e.SetString("cn", fmt.Sprintf("User %d", i))
	e.SetString("sn", testSurnames[i%len(testSurnames)])
	e.SetString("uidNumber", strconv.Itoa(1000+i))
	if i%2 == 0 {
		e.SetString("mail", fmt.Sprintf("u%d@example.com", i))
	}
	return e
}

func (f *fixture) load(t *testing.T, from, to int) {
	t.Helper()
	for i := from; i <= to; i++ {
		id, err := f.ec.Add(person(i))
		require.NoError(t, err)
		f.ids[i] = id
	}
}

func (f *fixture) idsOf(pick func(i int) bool) []entry.ID {
	out := []entry.ID{}
	for i := 1; i <= len(f.ids); i++ {
		if pick(i) {
			out = append(out, f.ids[i])
		}
	}
	return out
}

func mustParse(t *testing.T, s string) *filter.Filter {
	t.Helper()
	f, err := filter.Parse(s)
	require.NoError(t, err)
	return f
}

func dns(entries []*entry.Entry) []string {
	out := []string{}
	for _, e := range entries {
		out = append(out, e.DN)
	}
	return out
}

func fixedClock(t *testing.T, ts time.Time) {
	t.Helper()
	prev := now
	now = func() time.Time { return ts }
	t.Cleanup(func() { now = prev })
}

// =============================================================================
// Open
// =============================================================================

func TestOpenEmptyTrustsIndexes(t *testing.T) {
	f := newFixture(t, testConfig())

	assert.Empty(t, f.ec.Untrusted())
	st := f.ec.Stats()
	assert.Equal(t, 3, st.Entries)
	require.Len(t, st.Indexes, 8)
	assert.Equal(t, "cn.equality", st.Indexes[0].Name)
	assert.Equal(t, "byName", st.Indexes[len(st.Indexes)-1].Name)
	assert.Equal(t, "vlv", st.Indexes[len(st.Indexes)-1].Type)
}

func TestOpenInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Indexes = append(cfg.Indexes, config.IndexConfig{Attribute: "sn", Types: []string{"bogus"}})
	_, err := Open(kv.NewMemStore(), nil, cfg, nil)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.VLVIndexes[0].SortOrder = ""
	_, err = Open(kv.NewMemStore(), nil, cfg, nil)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Backend.BaseDN = "not a dn"
	_, err = Open(kv.NewMemStore(), nil, cfg, nil)
	assert.ErrorIs(t, err, ErrInvalidDN)
}

func TestReopenContinuesIDs(t *testing.T) {
	f := newFixture(t, testConfig())
	f.load(t, 1, 10)

	ec, err := Open(f.store, nil, testConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, 13, ec.EntryCount())
	assert.Empty(t, ec.Untrusted())
	assert.Equal(t, 9, ec.VLVIndex("byname").Count())

	id, err := ec.Add(person(11))
	require.NoError(t, err)
	assert.Equal(t, f.ids[10]+1, id)
}

func TestOpenNewIndexOverExistingEntriesIsUntrusted(t *testing.T) {
	f := newFixture(t, testConfig())
	f.load(t, 1, 5)

	cfg := testConfig()
	cfg.Indexes = append(cfg.Indexes, config.IndexConfig{Attribute: "sn", Types: []string{"equality"}})
	ec, err := Open(f.store, nil, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"sn.equality"}, ec.Untrusted())
}

// =============================================================================
// Add / Delete / Modify
// =============================================================================

func TestAddAndGet(t *testing.T) {
	ts := time.Date(2026, 2, 18, 10, 30, 0, 0, time.UTC)
	fixedClock(t, ts)
	f := newFixture(t, testConfig())

	in := person(1)
	id, err := f.ec.Add(in)
	require.NoError(t, err)
	assert.Equal(t, entry.ID(4), id)
	assert.False(t, in.Has(AttrEntryUUID), "caller's entry must not change")

	got, err := f.ec.Get("UID=u01, OU=People,dc=example,dc=com")
	require.NoError(t, err)
	assert.Equal(t, in.DN, got.DN)
	assert.Equal(t, [][]byte{[]byte("User 1")}, got.Values("cn"))
	_, err = uuid.Parse(string(got.Values(AttrEntryUUID)[0]))
	assert.NoError(t, err)
	assert.Equal(t, "20260218103000Z", string(got.Values(AttrCreateTimestamp)[0]))
	assert.True(t, ts.Equal(ParseTimestamp(string(got.Values(AttrModifyTimestamp)[0]))))

	byID, err := f.ec.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, got, byID)
}

func TestAddKeepsImportedOperationalAttrs(t *testing.T) {
	f := newFixture(t, testConfig())
	e := person(1)
	e.SetString(AttrEntryUUID, "597ae2f6-16a6-1027-98f4-abcdefabcdef")
	e.SetString(AttrCreateTimestamp, "20200101000000Z")
	_, err := f.ec.Add(e)
	require.NoError(t, err)

	got, err := f.ec.Get(e.DN)
	require.NoError(t, err)
	assert.Equal(t, "597ae2f6-16a6-1027-98f4-abcdefabcdef", string(got.Values(AttrEntryUUID)[0]))
	assert.Equal(t, "20200101000000Z", string(got.Values(AttrCreateTimestamp)[0]))
}

func TestAddErrors(t *testing.T) {
	f := newFixture(t, testConfig())
	f.load(t, 1, 1)

	tests := []struct {
		name string
		e    *entry.Entry
		want error
	}{
		{"nil", nil, ErrInvalidEntry},
		{"no objectClass", entry.New("uid=x," + testPeople), ErrInvalidEntry},
		{"exists", person(1), ErrEntryExists},
		{"exists different case", node("UID=U01,"+testPeople, "person"), ErrEntryExists},
		{"no parent", node("uid=x,ou=nowhere,"+testBase, "person"), ErrNoParent},
		{"outside base", node("dc=other,dc=org", "domain"), ErrInvalidDN},
		{"malformed", node("uid=x,garbage", "person"), ErrInvalidDN},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ec.Add(tt.e)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, 4, f.ec.EntryCount())
}

func TestDelete(t *testing.T) {
	f := newFixture(t, testConfig())
	f.load(t, 1, 3)
	v := f.ec.VLVIndex("byName")
	require.Equal(t, 3, v.Count())

	require.NoError(t, f.ec.Delete(person(2).DN))
	_, err := f.ec.Get(person(2).DN)
	assert.ErrorIs(t, err, ErrEntryNotFound)
	assert.Equal(t, 2, v.Count())

	cands := f.ec.Candidates(nil, mustParse(t, "(cn=User 2)"))
	assert.True(t, cands.IsDefined())
	assert.True(t, cands.IsEmpty())
	assert.Empty(t, f.ec.Untrusted())

	assert.ErrorIs(t, f.ec.Delete(person(2).DN), ErrEntryNotFound)
	assert.ErrorIs(t, f.ec.Delete(testPeople), ErrNotAllowedOnNonLeaf)
	assert.ErrorIs(t, f.ec.Delete(""), ErrInvalidDN)

	require.NoError(t, f.ec.Delete("ou=groups,"+testBase))
}

func TestModify(t *testing.T) {
	f := newFixture(t, testConfig())
	f.load(t, 1, 5)
	later := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	fixedClock(t, later)

	dn := person(3).DN
	require.NoError(t, f.ec.Modify(dn, []entry.Modification{
		entry.NewModification(entry.ModReplace, "cn", "Renamed Person"),
		entry.NewModification(entry.ModAdd, "mail", "renamed@example.com"),
	}))

	got, err := f.ec.Get(dn)
	require.NoError(t, err)
	assert.Equal(t, "Renamed Person", string(got.Values("cn")[0]))
	assert.Equal(t, FormatTimestamp(later), string(got.Values(AttrModifyTimestamp)[0]))

	assert.Equal(t, []entry.ID{f.ids[3]}, f.ec.Candidates(nil, mustParse(t, "(cn=renamed person)")).Slice())
	assert.Empty(t, f.ec.Candidates(nil, mustParse(t, "(cn=User 3)")).Slice())
	assert.Contains(t, f.ec.Candidates(nil, mustParse(t, "(mail=*)")).Slice(), f.ids[3])
	assert.Empty(t, f.ec.Untrusted())
}

func TestModifyReorders(t *testing.T) {
	f := newFixture(t, testConfig())
	f.load(t, 1, 8)
	v := f.ec.VLVIndex("byName")

	require.NoError(t, f.ec.Modify(person(1).DN, []entry.Modification{
		entry.NewModification(entry.ModReplace, "sn", "Aardvark"),
	}))
	resp, err := f.ec.VLVSearch("byName", v.Query(nil))
	require.NoError(t, err)
	assert.Equal(t, f.ids[1], resp.IDs[0])
	assert.Equal(t, 8, resp.ContentCount)

	// Dropping out of the filter removes the entry from the list.
	require.NoError(t, f.ec.Modify(person(1).DN, []entry.Modification{
		entry.NewModification(entry.ModReplace, "objectClass", "device"),
	}))
	assert.Equal(t, 7, v.Count())
}

func TestModifyErrors(t *testing.T) {
	f := newFixture(t, testConfig())
	f.load(t, 1, 2)
	dn := person(1).DN

	err := f.ec.Modify(dn, []entry.Modification{entry.NewModification(entry.ModReplace, "entryUUID", "x")})
	assert.ErrorIs(t, err, ErrInvalidEntry)

	err = f.ec.Modify(dn, []entry.Modification{
		entry.NewModification(entry.ModReplace, "cn", "Changed"),
		entry.NewModification(entry.ModDelete, "objectClass"),
	})
	assert.ErrorIs(t, err, ErrInvalidEntry)

	got, err := f.ec.Get(dn)
	require.NoError(t, err)
	assert.Equal(t, "User 1", string(got.Values("cn")[0]))
	assert.Equal(t, []entry.ID{f.ids[1]}, f.ec.Candidates(nil, mustParse(t, "(cn=User 1)")).Slice())
	assert.Equal(t, 2, f.ec.VLVIndex("byName").Count())

	assert.ErrorIs(t, f.ec.Modify("uid=ghost,"+testPeople, []entry.Modification{
		entry.NewModification(entry.ModReplace, "cn", "x"),
	}), ErrEntryNotFound)
	assert.NoError(t, f.ec.Modify(dn, nil))
}

func TestConcurrentAdds(t *testing.T) {
	f := newFixture(t, testConfig())

	var g errgroup.Group
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			for i := 1; i <= 10; i++ {
				if _, err := f.ec.Add(person(w*10 + i)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 83, f.ec.EntryCount())
	persons := f.ec.Candidates(nil, mustParse(t, "(objectClass=person)"))
	assert.EqualValues(t, 80-8, persons.Size())
	assert.Equal(t, 72, f.ec.VLVIndex("byName").Count())
	assert.Empty(t, f.ec.Untrusted())
}
