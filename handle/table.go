package handle

import (
	"sync"
	"sync/atomic"
)

const minSegment = 64

// Table maps serials to values.
type Table[T any] struct {
	seg       atomic.Pointer[segment[T]]
	observers []subscription[T]
	obsNext   uint64
	obsMu     sync.RWMutex
	mu        sync.Mutex
	next      Serial
	live      int
	closed    bool
}

// segment is an immutable view of the cell array. Growing copies the cell
// pointers into a larger segment, so readers holding an old segment still
// observe writes made through the shared cells.
type segment[T any] struct {
	cells []*cell[T]
}

type subscription[T any] struct {
	o  Observer[T]
	id uint64
}

type cell[T any] struct {
	p atomic.Pointer[slot[T]]
}

type slot[T any] struct {
	value  T
	serial Serial
}

// NewTable creates an empty table.
func NewTable[T any]() *Table[T] {
	t := &Table[T]{}
	t.seg.Store(newSegment[T](nil, minSegment))
	return t
}

func newSegment[T any](old []*cell[T], size int) *segment[T] {
	cells := make([]*cell[T], size)
	n := copy(cells, old)
	for i := n; i < size; i++ {
		cells[i] = &cell[T]{}
	}
	return &segment[T]{cells: cells}
}

// Register stores v under the next serial. It returns None when the table
// is closed or the serial space is exhausted.
func (t *Table[T]) Register(v T) Serial {
	t.mu.Lock()
	if t.closed || t.next == MaxSerial {
		t.mu.Unlock()
		return None
	}
	t.next++
	s := t.next
	idx := int(s - 1)

	seg := t.seg.Load()
	if idx >= len(seg.cells) {
		seg = newSegment(seg.cells, 2*len(seg.cells))
		t.seg.Store(seg)
	}
	seg.cells[idx].p.Store(&slot[T]{value: v, serial: s})
	t.live++
	t.mu.Unlock()

	t.notify(Event[T]{Type: EventRegistered, Serial: s, Value: v})
	return s
}

// Resolve returns the value registered under s. Any serial that is not
// currently registered, including zero, negative and never-issued values,
// reports false.
func (t *Table[T]) Resolve(s Serial) (T, bool) {
	var zero T
	if s <= None {
		return zero, false
	}
	seg := t.seg.Load()
	idx := int64(s) - 1
	if idx >= int64(len(seg.cells)) {
		return zero, false
	}
	sl := seg.cells[idx].p.Load()
	if sl == nil || sl.serial != s {
		return zero, false
	}
	return sl.value, true
}

// Unregister empties the entry for s. The index is never reassigned.
func (t *Table[T]) Unregister(s Serial) (T, bool) {
	var zero T
	if s <= None {
		return zero, false
	}

	t.mu.Lock()
	seg := t.seg.Load()
	idx := int64(s) - 1
	if idx >= int64(len(seg.cells)) {
		t.mu.Unlock()
		return zero, false
	}
	c := seg.cells[idx]
	sl := c.p.Load()
	if sl == nil || sl.serial != s {
		t.mu.Unlock()
		return zero, false
	}
	c.p.Store(nil)
	t.live--
	t.mu.Unlock()

	t.notify(Event[T]{Type: EventUnregistered, Serial: s, Value: sl.value})
	return sl.value, true
}

// Len returns the number of registered entries.
func (t *Table[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

// Issued returns the highest serial handed out so far.
func (t *Table[T]) Issued() Serial {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.next
}

// Each calls fn for every registered entry in serial order until fn returns
// false. It iterates a snapshot and holds no lock while fn runs.
func (t *Table[T]) Each(fn func(Serial, T) bool) {
	t.mu.Lock()
	seg := t.seg.Load()
	n := int(t.next)
	t.mu.Unlock()

	for i := 0; i < n; i++ {
		sl := seg.cells[i].p.Load()
		if sl == nil {
			continue
		}
		if !fn(sl.serial, sl.value) {
			return
		}
	}
}

// Subscribe adds an observer for lifecycle events and returns the function
// that removes it. Calling the returned function more than once is a no-op.
func (t *Table[T]) Subscribe(o Observer[T]) (unsubscribe func()) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.obsNext++
	id := t.obsNext
	t.observers = append(t.observers, subscription[T]{id: id, o: o})
	return func() { t.unsubscribe(id) }
}

func (t *Table[T]) unsubscribe(id uint64) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, sub := range t.observers {
		if sub.id == id {
			t.observers = append(t.observers[:i:i], t.observers[i+1:]...)
			return
		}
	}
}

// Close stops registration. Existing entries stay resolvable until they are
// unregistered.
func (t *Table[T]) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

// Closed reports whether Close has been called.
func (t *Table[T]) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Table[T]) notify(e Event[T]) {
	t.obsMu.RLock()
	observers := t.observers
	t.obsMu.RUnlock()
	for _, sub := range observers {
		sub.o.OnHandleEvent(e)
	}
}
