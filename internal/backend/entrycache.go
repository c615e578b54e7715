package backend

import (
	"container/list"
	"sync"

	"github.com/KilimcininKorOglu/obaidx/internal/entry"
)

// entryCache keeps recently read entries, decoded, keyed by ID. Entries
// are evicted least recently used first. A capacity of zero disables it.
//
// Writers call begin before touching id2entry and end once their
// transaction is finished. A reader that started before either call may
// not fill the cache, so an uncommitted or aborted version never stays in
// it.
type entryCache struct {
	mu       sync.Mutex
	capacity int
	epoch    uint64
	list     *list.List                // front is most recently used
	entries  map[entry.ID]*list.Element // for O(1) lookup
}

type cachedEntry struct {
	id    entry.ID
	entry *entry.Entry
}

func newEntryCache(capacity int) *entryCache {
	return &entryCache{
		capacity: max(capacity, 0),
		list:     list.New(),
		entries:  make(map[entry.ID]*list.Element),
	}
}

// get returns a copy of the cached entry and the current epoch, to be
// passed to put after a miss.
func (c *entryCache) get(id entry.ID) (*entry.Entry, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[id]; ok {
		c.list.MoveToFront(elem)
		return elem.Value.(*cachedEntry).entry.Clone(), c.epoch
	}
	return nil, c.epoch
}

// put caches e unless a write began or ended since epoch was read.
func (c *entryCache) put(id entry.ID, e *entry.Entry, epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.capacity == 0 || epoch != c.epoch {
		return
	}
	if elem, ok := c.entries[id]; ok {
		elem.Value.(*cachedEntry).entry = e.Clone()
		c.list.MoveToFront(elem)
		return
	}
	c.entries[id] = c.list.PushFront(&cachedEntry{id: id, entry: e.Clone()})
	c.evict()
}

func (c *entryCache) begin() {
	c.mu.Lock()
	c.epoch++
	c.mu.Unlock()
}

// end drops id, whose stored entry may have changed.
func (c *entryCache) end(id entry.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	if elem, ok := c.entries[id]; ok {
		c.list.Remove(elem)
		delete(c.entries, id)
	}
}

// resize changes the capacity, evicting as needed.
func (c *entryCache) resize(capacity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capacity = max(capacity, 0)
	c.evict()
}

func (c *entryCache) evict() {
	for c.list.Len() > c.capacity {
		elem := c.list.Back()
		c.list.Remove(elem)
		delete(c.entries, elem.Value.(*cachedEntry).id)
	}
}

func (c *entryCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list.Len()
}
