package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
	"github.com/KilimcininKorOglu/obaidx/internal/filter"
	"github.com/KilimcininKorOglu/obaidx/internal/schema"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/kv"
)

type attrFixture struct {
	store   *kv.MemStore
	state   *State
	entries map[entry.ID]*entry.Entry
	cn      *AttributeIndex
	sn      *AttributeIndex
	uidNum  *AttributeIndex
}

func openAttr(t *testing.T, store kv.Store, state *State, cfg AttributeConfig) *AttributeIndex {
	t.Helper()
	a, err := OpenAttributeIndex(store, state, schema.LoadDefaultSchema(), cfg, nil)
	require.NoError(t, err)
	for _, x := range a.Indexes() {
		require.NoError(t, x.SetTrusted(nil, true))
	}
	return a
}

func newAttrFixture(t *testing.T) *attrFixture {
	t.Helper()
	store := kv.NewMemStore()
	t.Cleanup(func() { store.Close() })
	state, err := OpenState(store)
	require.NoError(t, err)

	f := &attrFixture{
		store:   store,
		state:   state,
		entries: make(map[entry.ID]*entry.Entry),
		cn:      openAttr(t, store, state, AttributeConfig{Attribute: "cn", Types: AllIndexTypes}),
		sn:      openAttr(t, store, state, AttributeConfig{Attribute: "SN", Types: []IndexType{IndexEquality}}),
		uidNum: openAttr(t, store, state, AttributeConfig{
			Attribute: "uidNumber",
			Types:     []IndexType{IndexEquality, IndexOrdering},
		}),
	}

	people := []struct {
		cn, sn, uid string
	}{
		{"John Smith", "Smith", "5"},
		{"Johnny Walker", "Walker", "10"},
		{"Joan Smith", "Smith", "100"},
		{"Bob Johnson", "Johnson", "1000"},
	}
	for i, p := range people {
		id := entry.ID(i + 1)
		e := entry.New("uid=u" + p.uid + ",ou=people,dc=example,dc=com")
		e.SetString("cn", p.cn)
		e.SetString("sn", p.sn)
		e.SetString("uidNumber", p.uid)
		f.entries[id] = e
		for _, a := range []*AttributeIndex{f.cn, f.sn, f.uidNum} {
			require.NoError(t, a.AddEntry(nil, id, e))
		}
	}
	return f
}

func ids(s *EntryIDSet) []entry.ID {
	if s.IsDefined() && s.IsEmpty() {
		return []entry.ID{}
	}
	return s.Slice()
}

// =============================================================================
// Equality, Presence, Approximate
// =============================================================================

func TestAttributeIndexEquality(t *testing.T) {
	f := newAttrFixture(t)

	assert.Equal(t, []entry.ID{1}, ids(f.cn.EvaluateEquality(nil, []byte("JOHN  smith"))))
	assert.Equal(t, []entry.ID{1, 3}, ids(f.sn.EvaluateEquality(nil, []byte("smith"))))
	assert.Equal(t, []entry.ID{}, ids(f.cn.EvaluateEquality(nil, []byte("nobody"))))
	assert.Equal(t, []entry.ID{2}, ids(f.uidNum.EvaluateEquality(nil, []byte("010"))))
}

func TestAttributeIndexPresence(t *testing.T) {
	f := newAttrFixture(t)

	assert.Equal(t, []entry.ID{1, 2, 3, 4}, ids(f.cn.EvaluatePresence(nil)))
	assert.Equal(t, []entry.ID{}, ids(f.sn.EvaluatePresence(nil)), "no presence index")
}

func TestAttributeIndexApproximate(t *testing.T) {
	f := newAttrFixture(t)

	assert.Equal(t, []entry.ID{3}, ids(f.cn.EvaluateApproximate(nil, []byte("Jon Smyth"))))
	assert.Equal(t, []entry.ID{}, ids(f.sn.EvaluateApproximate(nil, []byte("Smith"))))
}

// =============================================================================
// Substring
// =============================================================================

func TestAttributeIndexSubstring(t *testing.T) {
	f := newAttrFixture(t)

	tests := []struct {
		name    string
		initial string
		any     []string
		final   string
		want    []entry.ID
	}{
		{"initial via equality", "Joh", nil, "", []entry.ID{1, 2}},
		{"short initial", "jo", nil, "", []entry.ID{1, 2, 3}},
		{"short any", "", []string{"ohn"}, "", []entry.ID{1, 2, 4}},
		{"any below key length", "", []string{"SMITH"}, "", []entry.ID{1, 3}},
		{"any of key length", "", []string{"johnso"}, "", []entry.ID{4}},
		{"any across words", "", []string{"hn smi"}, "", []entry.ID{1}},
		{"long any", "", []string{"johnny walk"}, "", []entry.ID{2}},
		{"final", "", nil, "walker", []entry.ID{2}},
		{"small initial stops early", "jo", []string{"smith"}, "", []entry.ID{1, 2, 3}},
		{"no match", "", []string{"zzzzzzz"}, "", []entry.ID{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var middle [][]byte
			for _, s := range tt.any {
				middle = append(middle, []byte(s))
			}
			got := f.cn.EvaluateSubstring(nil, []byte(tt.initial), middle, []byte(tt.final))
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestAttributeIndexSubstringMatchesFragmentIntersection(t *testing.T) {
	f := newAttrFixture(t)
	sub := f.cn.Index(IndexSubstring)
	value := []byte("ohnny walker")

	want := NewUndefinedSet()
	for _, frag := range assertionFragments(value, DefaultSubstringLength) {
		want.RetainAll(sub.ReadKey(nil, frag))
	}
	got := f.cn.EvaluateSubstring(nil, nil, [][]byte{value}, nil)
	assert.Equal(t, want.Slice(), got.Slice())
}

func TestAttributeIndexSubstringWithoutSubstringIndex(t *testing.T) {
	f := newAttrFixture(t)

	assert.Equal(t, []entry.ID{}, ids(f.sn.EvaluateSubstring(nil, nil, [][]byte{[]byte("mit")}, nil)))
	assert.Equal(t, []entry.ID{1, 3}, ids(f.sn.EvaluateSubstring(nil, []byte("smi"), nil, nil)))
}

// =============================================================================
// Ordering
// =============================================================================

func TestAttributeIndexOrdering(t *testing.T) {
	f := newAttrFixture(t)

	assert.Equal(t, []entry.ID{2, 3, 4}, ids(f.uidNum.EvaluateGreaterOrEqual(nil, []byte("10"))))
	assert.Equal(t, []entry.ID{1, 2}, ids(f.uidNum.EvaluateLessOrEqual(nil, []byte("10"))))
	assert.Equal(t, []entry.ID{2, 3}, ids(f.uidNum.EvaluateBoundedRange(nil, []byte("10"), []byte("100"))))
	assert.Equal(t, []entry.ID{}, ids(f.uidNum.EvaluateGreaterOrEqual(nil, []byte("5000"))))

	assert.Equal(t, []entry.ID{}, ids(f.uidNum.EvaluateGreaterOrEqual(nil, []byte("ten"))), "unnormalizable")
	assert.Equal(t, []entry.ID{}, ids(f.sn.EvaluateGreaterOrEqual(nil, []byte("a"))), "no ordering index")
}

// =============================================================================
// Filter Dispatch and Maintenance
// =============================================================================

func TestAttributeIndexEvaluateFilter(t *testing.T) {
	f := newAttrFixture(t)

	tests := []struct {
		filter string
		want   []entry.ID
	}{
		{"(cn=john smith)", []entry.ID{1}},
		{"(cn=*)", []entry.ID{1, 2, 3, 4}},
		{"(cn=*ohn*)", []entry.ID{1, 2, 4}},
		{"(cn~=jon smyth)", []entry.ID{3}},
		{"(cn>=joan)", []entry.ID{1, 2, 3}},
		{"(cn<=bob johnson)", []entry.ID{4}},
	}
	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			flt, err := filter.Parse(tt.filter)
			require.NoError(t, err)
			assert.True(t, f.cn.Supports(flt))
			assert.Equal(t, tt.want, ids(f.cn.EvaluateFilter(nil, flt)))
		})
	}
}

func TestAttributeIndexSupports(t *testing.T) {
	f := newAttrFixture(t)
	parse := func(s string) *filter.Filter {
		flt, err := filter.Parse(s)
		require.NoError(t, err)
		return flt
	}

	assert.True(t, f.sn.Supports(parse("(sn=smith)")))
	assert.True(t, f.sn.Supports(parse("(sn=smi*)")))
	assert.False(t, f.sn.Supports(parse("(sn=*mit*)")))
	assert.False(t, f.sn.Supports(parse("(sn=*)")))
	assert.False(t, f.sn.Supports(parse("(cn=smith)")))

	require.NoError(t, f.sn.Index(IndexEquality).SetTrusted(nil, false))
	assert.False(t, f.sn.Supports(parse("(sn=smith)")))

	f.cn.Index(IndexPresence).SetRebuildStatus(true)
	assert.False(t, f.cn.Supports(parse("(cn=*)")))
}

func TestAttributeIndexModifyEntry(t *testing.T) {
	f := newAttrFixture(t)
	old := f.entries[4]

	mods := []entry.Modification{entry.NewModification(entry.ModReplace, "cn", "Robert Johnson")}
	updated := entry.Apply(old, mods)
	require.NoError(t, f.cn.ModifyEntry(nil, 4, old, updated, mods))

	assert.Equal(t, []entry.ID{}, ids(f.cn.EvaluateEquality(nil, []byte("bob johnson"))))
	assert.Equal(t, []entry.ID{4}, ids(f.cn.EvaluateEquality(nil, []byte("robert johnson"))))
	assert.Equal(t, []entry.ID{1, 2, 3, 4}, ids(f.cn.EvaluatePresence(nil)))
	for _, x := range f.cn.Indexes() {
		assert.True(t, x.IsTrusted(), x.Name())
	}

	require.NoError(t, f.cn.RemoveEntry(nil, 4, updated))
	assert.Equal(t, []entry.ID{1, 2, 3}, ids(f.cn.EvaluatePresence(nil)))
}

func TestAttributeIndexEntryLimitCounter(t *testing.T) {
	store := kv.NewMemStore()
	t.Cleanup(func() { store.Close() })
	state, err := OpenState(store)
	require.NoError(t, err)

	a := openAttr(t, store, state, AttributeConfig{
		Attribute:  "mail",
		Types:      []IndexType{IndexPresence, IndexEquality},
		EntryLimit: 2,
	})
	for id := entry.ID(1); id <= 4; id++ {
		e := entry.New("uid=x,dc=example,dc=com")
		e.SetString("mail", "shared@example.com")
		require.NoError(t, a.AddEntry(nil, id, e))
	}

	assert.Equal(t, int64(2), a.EntryLimitExceededCount())
	assert.False(t, a.EvaluatePresence(nil).IsDefined())

	rebuild := a.ApplyConfig(AttributeConfig{Attribute: "mail", EntryLimit: 100})
	assert.Len(t, rebuild, 2)
	assert.Equal(t, []string{"mail.equality", "mail.presence"}, a.Names())
}
