package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
)

func TestEntryCacheEviction(t *testing.T) {
	c := newEntryCache(2)
	_, epoch := c.get(1)
	c.put(1, node("cn=a", "top"), epoch)
	c.put(2, node("cn=b", "top"), epoch)

	got, _ := c.get(1) // 2 becomes least recently used
	require.NotNil(t, got)
	c.put(3, node("cn=c", "top"), epoch)

	assert.Equal(t, 2, c.len())
	got, _ = c.get(2)
	assert.Nil(t, got)
	got, _ = c.get(3)
	assert.Equal(t, "cn=c", got.DN)

	c.resize(0)
	assert.Equal(t, 0, c.len())
	c.put(4, node("cn=d", "top"), epoch)
	assert.Equal(t, 0, c.len())
}

func TestEntryCacheReturnsCopies(t *testing.T) {
	c := newEntryCache(4)
	e := node("cn=a", "top")
	_, epoch := c.get(1)
	c.put(1, e, epoch)
	e.SetString("objectClass", "changed")

	got, _ := c.get(1)
	got.SetString("cn", "scribble")
	again, _ := c.get(1)
	assert.Equal(t, "top", string(again.Values("objectClass")[0]))
	assert.False(t, again.Has("cn"))
}

func TestEntryCacheRejectsFillAcrossWrite(t *testing.T) {
	c := newEntryCache(4)

	_, epoch := c.get(1)
	c.begin()
	c.put(1, node("cn=uncommitted", "top"), epoch)
	got, _ := c.get(1)
	assert.Nil(t, got, "fill that started before the write began")

	_, epoch = c.get(1)
	c.put(1, node("cn=uncommitted", "top"), epoch)
	c.end(1)
	got, _ = c.get(1)
	assert.Nil(t, got, "fill during the write is dropped when it ends")

	_, epoch = c.get(1)
	c.put(1, node("cn=committed", "top"), epoch)
	got, _ = c.get(1)
	assert.Equal(t, "cn=committed", got.DN)
}

func TestEntryCacheFollowsWrites(t *testing.T) {
	f := newFixture(t, testConfig())
	f.load(t, 1, 3)
	dn := person(2).DN

	before, err := f.ec.Get(dn)
	require.NoError(t, err)
	assert.Equal(t, 1, f.ec.cache.len())

	require.NoError(t, f.ec.Modify(dn, []entry.Modification{
		entry.NewModification(entry.ModReplace, "cn", "Cached Person"),
	}))
	after, err := f.ec.Get(dn)
	require.NoError(t, err)
	assert.Equal(t, "Cached Person", string(after.Values("cn")[0]))
	assert.NotEqual(t, before.Values("cn"), after.Values("cn"))

	// A rejected modification leaves the committed entry readable.
	err = f.ec.Modify(dn, []entry.Modification{entry.NewModification(entry.ModDelete, "objectClass")})
	require.ErrorIs(t, err, ErrInvalidEntry)
	after, err = f.ec.Get(dn)
	require.NoError(t, err)
	assert.True(t, after.Has("objectClass"))

	require.NoError(t, f.ec.Delete(dn))
	_, err = f.ec.GetByID(f.ids[2])
	assert.ErrorIs(t, err, ErrEntryNotFound)
}
