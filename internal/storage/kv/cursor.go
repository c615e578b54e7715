package kv

// memCursor is a Cursor over a memDB. It remembers the key it is
// positioned on rather than a tree node, so records written or deleted
// between calls never invalidate it.
type memCursor struct {
	db     *memDB
	txn    Txn
	mode   LockMode
	cur    []byte
	valid  bool
	closed bool
}

func (c *memCursor) First() ([]byte, []byte, error) {
	return c.position(func() (item, bool) {
		return c.db.tree.Min()
	})
}

func (c *memCursor) Last() ([]byte, []byte, error) {
	return c.position(func() (item, bool) {
		return c.db.tree.Max()
	})
}

func (c *memCursor) SearchKey(key []byte) ([]byte, []byte, error) {
	return c.position(func() (item, bool) {
		return c.db.tree.Get(item{key: key})
	})
}

func (c *memCursor) SearchKeyRange(key []byte) ([]byte, []byte, error) {
	return c.position(func() (found item, ok bool) {
		c.db.tree.AscendGreaterOrEqual(item{key: key}, func(it item) bool {
			found, ok = it, true
			return false
		})
		return found, ok
	})
}

func (c *memCursor) Next() ([]byte, []byte, error) {
	if !c.valid {
		return c.First()
	}
	return c.position(func() (found item, ok bool) {
		c.db.tree.AscendGreaterOrEqual(item{key: c.cur}, func(it item) bool {
			if c.db.cmp(it.key, c.cur) == 0 {
				return true
			}
			found, ok = it, true
			return false
		})
		return found, ok
	})
}

func (c *memCursor) Prev() ([]byte, []byte, error) {
	if !c.valid {
		return c.Last()
	}
	return c.position(func() (found item, ok bool) {
		c.db.tree.DescendLessOrEqual(item{key: c.cur}, func(it item) bool {
			if c.db.cmp(it.key, c.cur) == 0 {
				return true
			}
			found, ok = it, true
			return false
		})
		return found, ok
	})
}

func (c *memCursor) Close() error {
	c.closed = true
	c.valid = false
	return nil
}

// position runs find under the database read lock and moves the cursor
// to its result.
func (c *memCursor) position(find func() (item, bool)) ([]byte, []byte, error) {
	if c.closed {
		return nil, nil, ErrClosed
	}

	c.db.mu.RLock()
	defer c.db.mu.RUnlock()

	it, ok := find()
	if !ok {
		return nil, nil, ErrNotFound
	}
	if c.mode == LockRMW {
		c.db.recordRead(c.txn, it.key)
	}
	c.cur = clone(it.key)
	c.valid = true
	return clone(it.key), clone(it.value), nil
}
