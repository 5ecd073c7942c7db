// Package handles provides a thread-safe handle table for Go values that
// native code needs to hold on to.
//
// Native code cannot keep Go pointers. A value is pinned in the table and the
// returned Handle, a plain uintptr, is what crosses the boundary. The value
// stays reachable until the handle is unpinned.
package handles

import (
	"errors"
	"sync"
)

// ErrInvalidHandle is returned when unpinning a handle that is not pinned.
var ErrInvalidHandle = errors.New("handles: invalid or already released handle")

// Handle is an opaque reference to a pinned value. The zero Handle is never
// issued and stands for "null" on the native side.
type Handle uintptr

// Table stores pinned values.
type Table struct {
	mu     sync.RWMutex
	values map[Handle]any
	next   Handle
}

// NewTable creates an empty handle table.
func NewTable() *Table {
	return &Table{
		values: make(map[Handle]any),
		next:   1,
	}
}

// Pin stores v and returns a handle that can be stored in native memory.
func (t *Table) Pin(v any) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.next
	t.next++
	t.values[h] = v
	return h
}

// Value returns the value pinned under h.
func (t *Table) Value(h Handle) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	v, ok := t.values[h]
	return v, ok
}

// Unpin releases h. Releasing a handle twice returns ErrInvalidHandle.
func (t *Table) Unpin(h Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.values[h]; !ok {
		return ErrInvalidHandle
	}
	delete(t.values, h)
	return nil
}

// Len returns the number of pinned values.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.values)
}

// Ptr returns h as the raw value handed to native code.
func (h Handle) Ptr() uintptr {
	return uintptr(h)
}
