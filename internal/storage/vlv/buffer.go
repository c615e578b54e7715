package vlv

import (
	"sync"

	"github.com/KilimcininKorOglu/obaidx/internal/storage/kv"
)

// IndexBuffer collects the VLV changes of one write operation so each index
// is updated in a single pass. Adding and deleting the same sort values
// cancel out.
type IndexBuffer struct {
	mu      sync.Mutex
	order   []*VLVIndex
	changes map[*VLVIndex]*bufferedChanges
}

type bufferedChanges struct {
	added   map[string]SortValues
	deleted map[string]SortValues
}

// NewIndexBuffer returns an empty buffer.
func NewIndexBuffer() *IndexBuffer {
	return &IndexBuffer{changes: make(map[*VLVIndex]*bufferedChanges)}
}

func (b *IndexBuffer) changesOf(v *VLVIndex) *bufferedChanges {
	c, ok := b.changes[v]
	if !ok {
		c = &bufferedChanges{
			added:   make(map[string]SortValues),
			deleted: make(map[string]SortValues),
		}
		b.changes[v] = c
		b.order = append(b.order, v)
	}
	return c
}

// AddValues buffers the insertion of sv into v.
func (b *IndexBuffer) AddValues(v *VLVIndex, sv SortValues) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.changesOf(v)
	k := string(encodeKey(sv))
	if _, ok := c.deleted[k]; ok {
		delete(c.deleted, k)
		return
	}
	c.added[k] = sv
}

// DeleteValues buffers the removal of sv from v.
func (b *IndexBuffer) DeleteValues(v *VLVIndex, sv SortValues) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.changesOf(v)
	k := string(encodeKey(sv))
	if _, ok := c.added[k]; ok {
		delete(c.added, k)
		return
	}
	c.deleted[k] = sv
}

// Pending returns the number of buffered changes.
func (b *IndexBuffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, c := range b.changes {
		n += len(c.added) + len(c.deleted)
	}
	return n
}

// Flush applies the buffered changes within txn and empties the buffer.
func (b *IndexBuffer) Flush(txn kv.Txn) error {
	b.mu.Lock()
	order, changes := b.order, b.changes
	b.order, b.changes = nil, make(map[*VLVIndex]*bufferedChanges)
	b.mu.Unlock()

	for _, v := range order {
		c := changes[v]
		if err := v.UpdateIndex(txn, values(c.added), values(c.deleted)); err != nil {
			return err
		}
	}
	return nil
}

func values(m map[string]SortValues) []SortValues {
	out := make([]SortValues, 0, len(m))
	for _, sv := range m {
		out = append(out, sv)
	}
	return out
}
