package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/obaidx/internal/config"
	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/index"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/vlv"
)

func TestRebuildRestoresTrust(t *testing.T) {
	f := newFixture(t, testConfig())
	f.load(t, 1, 20)

	before := f.ec.Stats()
	for _, a := range f.ec.AttributeIndexes() {
		for _, x := range a.Indexes() {
			require.NoError(t, x.SetTrusted(nil, false))
		}
	}
	require.NoError(t, f.ec.VLVIndex("byName").SetTrusted(nil, false))
	require.Len(t, f.ec.Untrusted(), 8)

	require.NoError(t, f.ec.Rebuild(context.Background()))

	after := f.ec.Stats()
	assert.Equal(t, before, after)
	assert.Empty(t, f.ec.Untrusted())
	for _, s := range after.Indexes {
		assert.False(t, s.RebuildRunning, s.Name)
	}
}

func TestRebuildByName(t *testing.T) {
	f := newFixture(t, testConfig())
	f.load(t, 1, 20)

	cn := f.ec.AttributeIndex("cn")
	for _, x := range cn.Indexes() {
		require.NoError(t, x.SetTrusted(nil, false))
	}
	mail := f.ec.AttributeIndex("mail").Index(index.IndexPresence)
	require.NoError(t, mail.SetTrusted(nil, false))

	require.NoError(t, f.ec.Rebuild(context.Background(), "CN", "mail.presence"))
	assert.Empty(t, f.ec.Untrusted())
	assert.Equal(t, []int{3}, idsToInts(f, f.ec.Candidates(nil, mustParse(t, "(cn=User 3)")).Slice()))

	err := f.ec.Rebuild(context.Background(), "cn", "nosuch")
	assert.ErrorIs(t, err, ErrUnknownIndex)
}

func TestRebuildCancelled(t *testing.T) {
	f := newFixture(t, testConfig())
	f.load(t, 1, 10)
	v := f.ec.VLVIndex("byName")
	require.NoError(t, v.SetTrusted(nil, false))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := f.ec.Rebuild(ctx, "byName")
	assert.ErrorIs(t, err, context.Canceled)

	assert.False(t, v.IsTrusted())
	assert.False(t, v.IsRebuildRunning())
	assert.Equal(t, 9, v.Count(), "aborted rebuild leaves the old blocks")
}

func TestApplyConfigAddsIndex(t *testing.T) {
	f := newFixture(t, testConfig())
	f.load(t, 1, 20)

	cfg := testConfig()
	cfg.Indexes = append(cfg.Indexes, config.IndexConfig{Attribute: "sn", Types: []string{"equality"}})
	rebuild, err := f.ec.ApplyConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"sn.equality"}, rebuild)
	assert.False(t, f.ec.Candidates(nil, mustParse(t, "(sn=Smith)")).IsDefined())

	require.NoError(t, f.ec.Rebuild(context.Background(), rebuild...))
	got := f.ec.Candidates(nil, mustParse(t, "(sn=Smith)"))
	require.True(t, got.IsDefined())
	assert.Equal(t, []int{5, 10, 15, 20}, idsToInts(f, got.Slice()))

	// New entries are indexed without another rebuild.
	f.load(t, 21, 25)
	assert.Equal(t, []int{5, 10, 15, 20, 25}, idsToInts(f, f.ec.Candidates(nil, mustParse(t, "(sn=Smith)")).Slice()))
}

func TestApplyConfigRemovesIndex(t *testing.T) {
	f := newFixture(t, testConfig())
	f.load(t, 1, 5)

	cfg := testConfig()
	cfg.Indexes = cfg.Indexes[:1]
	cfg.VLVIndexes = nil
	rebuild, err := f.ec.ApplyConfig(cfg)
	require.NoError(t, err)
	assert.Empty(t, rebuild)
	assert.Nil(t, f.ec.AttributeIndex("cn"))
	assert.Nil(t, f.ec.VLVIndex("byName"))
	assert.False(t, f.ec.Candidates(nil, mustParse(t, "(cn=User 3)")).IsDefined())

	_, err = f.ec.Add(person(6))
	require.NoError(t, err)
}

func TestApplyConfigSubstringLength(t *testing.T) {
	f := newFixture(t, testConfig())
	f.load(t, 1, 12)

	cfg := testConfig()
	cfg.Indexes[1].SubstringLength = 3
	rebuild, err := f.ec.ApplyConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"cn.substring"}, rebuild)
	assert.Equal(t, 3, f.ec.AttributeIndex("cn").SubstringLength())
	assert.False(t, f.ec.Candidates(nil, mustParse(t, "(cn=*ser 1*)")).IsDefined())
	assert.Equal(t, []int{3}, idsToInts(f, f.ec.Candidates(nil, mustParse(t, "(cn=User 3)")).Slice()))

	require.NoError(t, f.ec.Rebuild(context.Background(), rebuild...))
	sub := f.ec.AttributeIndex("cn").Index(index.IndexSubstring)
	longest := 0
	require.NoError(t, sub.ListKeys(nil, func(key []byte, _ *index.EntryIDSet) bool {
		longest = max(longest, len(key))
		return true
	}))
	assert.Equal(t, 3, longest)

	got := f.ec.Candidates(nil, mustParse(t, "(cn=*ser 1*)"))
	require.True(t, got.IsDefined())
	assert.Equal(t, []int{1, 10, 11, 12}, idsToInts(f, got.Slice()))

	rebuild, err = f.ec.ApplyConfig(cfg)
	require.NoError(t, err)
	assert.Empty(t, rebuild)

	// The backend default applies to indexes without their own length.
	cfg = testConfig()
	cfg.Backend.SubstringLength = 4
	rebuild, err = f.ec.ApplyConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"cn.substring"}, rebuild)
	assert.Equal(t, 4, f.ec.AttributeIndex("cn").SubstringLength())
}

func TestApplyConfigRaisedEntryLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Indexes[0].EntryLimit = 3
	f := newFixture(t, cfg)
	f.load(t, 1, 10)
	assert.False(t, f.ec.Candidates(nil, mustParse(t, "(objectClass=person)")).IsDefined())

	cfg = testConfig()
	rebuild, err := f.ec.ApplyConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"objectclass.equality"}, rebuild)

	require.NoError(t, f.ec.Rebuild(context.Background(), rebuild...))
	got := f.ec.Candidates(nil, mustParse(t, "(objectClass=person)"))
	require.True(t, got.IsDefined())
	assert.EqualValues(t, 9, got.Size())
}

func TestApplyConfigReconfiguresVLV(t *testing.T) {
	f := newFixture(t, testConfig())
	f.load(t, 1, 12)
	v := f.ec.VLVIndex("byName")

	cfg := testConfig()
	cfg.VLVIndexes[0].Compression = "zstd"
	rebuild, err := f.ec.ApplyConfig(cfg)
	require.NoError(t, err)
	assert.Empty(t, rebuild)
	assert.True(t, v.IsTrusted())

	cfg.VLVIndexes[0].SortOrder = "-uidNumber"
	rebuild, err = f.ec.ApplyConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"byName"}, rebuild)

	q := v.Query(nil)
	_, err = v.Evaluate(nil, q)
	require.ErrorIs(t, err, vlv.ErrIndexUnusable)
	sorted, err := f.ec.VLVSearch("byName", q)
	require.NoError(t, err)
	assert.Equal(t, []int{12, 11, 10, 8, 7, 6, 5, 4, 3, 2, 1}, idsToInts(f, sorted.IDs))

	require.NoError(t, f.ec.Rebuild(context.Background(), "byName"))
	fromIndex, err := v.Evaluate(nil, q)
	require.NoError(t, err)
	assert.Equal(t, sorted, fromIndex)
}

func TestApplyConfigOnEmptyContainerTrusts(t *testing.T) {
	cfg := testConfig()
	cfg.Indexes = cfg.Indexes[:1]
	f := newFixture(t, cfg)
	require.NoError(t, f.ec.Delete("ou=groups,dc=example,dc=com"))
	require.NoError(t, f.ec.Delete(testPeople))
	require.NoError(t, f.ec.Delete(testBase))

	rebuild, err := f.ec.ApplyConfig(testConfig())
	require.NoError(t, err)
	assert.Empty(t, rebuild)
	assert.Empty(t, f.ec.Untrusted())
}

// idsToInts maps container IDs back to person numbers.
func idsToInts(f *fixture, ids []entry.ID) []int {
	byID := make(map[entry.ID]int, len(f.ids))
	for i, id := range f.ids {
		byID[id] = i
	}
	out := []int{}
	for _, id := range ids {
		out = append(out, byID[id])
	}
	return out
}
