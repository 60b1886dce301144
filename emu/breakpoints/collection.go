package breakpoints

import (
	"fmt"
	"iter"
	"sync"
	"sync/atomic"

	"bpedit/emu/log"
)

var modReg = log.NewModule("registry")

type record[R any] interface {
	key() uint32
	isEnabled() bool
	withEnabled(bool) R
	normalized() R // recomputes derived fields
}

// snapshot is an immutable, ordered view of a collection.
type snapshot[R record[R]] struct {
	items []R
	index map[uint32]int
}

func newSnapshot[R record[R]](items []R) *snapshot[R] {
	s := &snapshot[R]{
		items: items,
		index: make(map[uint32]int, len(items)),
	}
	for i, r := range items {
		s.index[r.key()] = i
	}
	return s
}

func (s *snapshot[R]) get(key uint32) (R, bool) {
	if i, ok := s.index[key]; ok {
		return s.items[i], true
	}
	var zero R
	return zero, false
}

// with returns a copy of s in which r is added, or replaces the record with
// the same key in place.
func (s *snapshot[R]) with(r R) *snapshot[R] {
	items := make([]R, len(s.items), len(s.items)+1)
	copy(items, s.items)
	if i, ok := s.index[r.key()]; ok {
		items[i] = r
	} else {
		items = append(items, r)
	}
	return newSnapshot(items)
}

func (s *snapshot[R]) without(key uint32) *snapshot[R] {
	items := make([]R, 0, len(s.items))
	for _, r := range s.items {
		if r.key() != key {
			items = append(items, r)
		}
	}
	return newSnapshot(items)
}

// rekeyed returns a copy of s in which the record at oldKey is removed and r
// is stored. r takes the slot of the record already holding its key if any,
// or the slot of the removed record.
func (s *snapshot[R]) rekeyed(oldKey uint32, r R) *snapshot[R] {
	newKey := r.key()
	_, collides := s.index[newKey]

	items := make([]R, 0, len(s.items))
	for _, cur := range s.items {
		switch k := cur.key(); {
		case k == newKey:
			items = append(items, r)
		case k == oldKey:
			if !collides {
				items = append(items, r)
			}
		default:
			items = append(items, cur)
		}
	}
	return newSnapshot(items)
}

// A Collection is an ordered set of records keyed by address.
//
// Reads are lock-free and can happen from any goroutine. Writers are
// serialized; each write publishes a new snapshot and then fires the change
// notification.
type Collection[R record[R]] struct {
	name string
	n    *notifier

	mu   sync.Mutex // serializes writers
	snap atomic.Pointer[snapshot[R]]
}

func newCollection[R record[R]](name string, n *notifier) *Collection[R] {
	c := &Collection[R]{name: name, n: n}
	c.snap.Store(newSnapshot[R](nil))
	return c
}

func (c *Collection[R]) load() *snapshot[R] {
	return c.snap.Load()
}

// Get returns the record with the given key.
func (c *Collection[R]) Get(key uint32) (R, bool) {
	return c.load().get(key)
}

// Len returns the number of records.
func (c *Collection[R]) Len() int {
	return len(c.load().items)
}

// All returns an iterator over the records in insertion order. The iterator
// walks the snapshot taken when All is called, so it's unaffected by later
// writes and can be ranged over several times.
func (c *Collection[R]) All() iter.Seq[R] {
	s := c.load()
	return func(yield func(R) bool) {
		for _, r := range s.items {
			if !yield(r) {
				return
			}
		}
	}
}

// Snapshot returns a copy of the records in insertion order.
func (c *Collection[R]) Snapshot() []R {
	s := c.load()
	return append([]R(nil), s.items...)
}

// mutate runs fn with the current snapshot under the writer lock. If fn
// returns a non-nil snapshot and no error, it's published and the change
// notification fires.
func (c *Collection[R]) mutate(fn func(cur *snapshot[R]) (*snapshot[R], error)) error {
	c.mu.Lock()
	next, err := fn(c.load())
	if err != nil || next == nil {
		c.mu.Unlock()
		return err
	}
	c.snap.Store(next)
	c.mu.Unlock()

	c.n.changed()
	return nil
}

func (c *Collection[R]) notFound(key uint32) error {
	return fmt.Errorf("%s %08x: %w", c.name, key, ErrNotFound)
}

// Add inserts r, or replaces the record having the same key.
func (c *Collection[R]) Add(r R) {
	r = r.normalized()
	c.mutate(func(cur *snapshot[R]) (*snapshot[R], error) {
		return cur.with(r), nil
	})
	modReg.DebugZ("record added").String("kind", c.name).Hex32("addr", r.key()).End()
}

// Remove removes the record with the given key and reports whether it
// existed.
func (c *Collection[R]) Remove(key uint32) bool {
	found := false
	c.mutate(func(cur *snapshot[R]) (*snapshot[R], error) {
		if _, found = cur.get(key); !found {
			return nil, nil
		}
		return cur.without(key), nil
	})
	if found {
		modReg.DebugZ("record removed").String("kind", c.name).Hex32("addr", key).End()
	}
	return found
}

// Clear removes all records.
func (c *Collection[R]) Clear() {
	c.mutate(func(*snapshot[R]) (*snapshot[R], error) {
		return newSnapshot[R](nil), nil
	})
	modReg.DebugZ("collection cleared").String("kind", c.name).End()
}

// Toggle flips the Enabled flag of the record with the given key.
func (c *Collection[R]) Toggle(key uint32) error {
	return c.mutate(func(cur *snapshot[R]) (*snapshot[R], error) {
		r, ok := cur.get(key)
		if !ok {
			return nil, c.notFound(key)
		}
		modReg.DebugZ("record toggled").String("kind", c.name).Hex32("addr", key).Bool("enabled", !r.isEnabled()).End()
		return cur.with(r.withEnabled(!r.isEnabled())), nil
	})
}

// ReplaceKey atomically removes the record at oldKey and stores r. If r's key
// differs from oldKey and is already used by another record, that record is
// overwritten. No reader ever sees both or neither record.
func (c *Collection[R]) ReplaceKey(oldKey uint32, r R) error {
	r = r.normalized()
	return c.mutate(func(cur *snapshot[R]) (*snapshot[R], error) {
		if _, ok := cur.get(oldKey); !ok {
			return nil, c.notFound(oldKey)
		}
		return cur.rekeyed(oldKey, r), nil
	})
}

// Replace replaces the whole collection content with records, published at
// once. Later records win over earlier ones with the same key.
func (c *Collection[R]) Replace(records []R) {
	c.mutate(func(*snapshot[R]) (*snapshot[R], error) {
		s := newSnapshot[R](nil)
		items := make([]R, 0, len(records))
		for _, r := range records {
			r = r.normalized()
			if i, ok := s.index[r.key()]; ok {
				items[i] = r
				continue
			}
			s.index[r.key()] = len(items)
			items = append(items, r)
		}
		s.items = items
		return s, nil
	})
	modReg.DebugZ("collection replaced").String("kind", c.name).Int("count", len(records)).End()
}

// update replaces the record at key with the result of fn, re-keying it if
// fn changed its key. The whole read-modify-write happens under the writer
// lock.
func (c *Collection[R]) update(key uint32, fn func(old R) (R, error)) error {
	return c.mutate(func(cur *snapshot[R]) (*snapshot[R], error) {
		old, ok := cur.get(key)
		if !ok {
			return nil, c.notFound(key)
		}
		r, err := fn(old)
		if err != nil {
			return nil, err
		}
		return cur.rekeyed(key, r.normalized()), nil
	})
}
