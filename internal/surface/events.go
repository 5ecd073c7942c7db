package surface

import (
	"sort"
	"sync"
	"time"

	"github.com/GriffinCanCode/moonbridge/internal/native"
)

// Event reports one class registration.
type Event struct {
	Surface      string            `json:"surface"`
	Type         string            `json:"type"`
	Parent       string            `json:"parent,omitempty"`
	NativeHandle native.TypeHandle `json:"native_handle"`
	ParentHandle native.TypeHandle `json:"parent_handle"`
	Time         time.Time         `json:"time"`
}

func (s *Surface) newEvent(td *TypeDescriptor) Event {
	ev := Event{
		Surface:      s.id.String(),
		Type:         td.Name(),
		NativeHandle: td.NativeHandle,
		ParentHandle: td.ParentHandle(),
		Time:         time.Now(),
	}
	if td.Parent != nil {
		ev.Parent = td.Parent.Name()
	}
	return ev
}

// Subscribe registers fn to be called after each class registration. The
// classes created by one Resolve are reported root first. Callbacks run on
// the resolving goroutine and must not block; they may cancel their own or
// other subscriptions. The returned function removes the subscription.
func (s *Surface) Subscribe(fn func(Event)) (cancel func()) {
	return s.events.subscribe(fn)
}

// Done is closed when the surface closes. No events follow.
func (s *Surface) Done() <-chan struct{} {
	return s.events.done
}

type eventHub struct {
	mu     sync.RWMutex
	subs   map[int]func(Event)
	next   int
	closed bool
	done   chan struct{}
}

func newEventHub() *eventHub {
	return &eventHub{done: make(chan struct{})}
}

func (h *eventHub) subscribe(fn func(Event)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return func() {}
	}
	if h.subs == nil {
		h.subs = make(map[int]func(Event))
	}
	key := h.next
	h.next++
	h.subs[key] = fn

	return func() {
		h.mu.Lock()
		delete(h.subs, key)
		h.mu.Unlock()
	}
}

// publish calls the subscribers outside the lock.
func (h *eventHub) publish(ev Event) {
	h.mu.RLock()
	keys := make([]int, 0, len(h.subs))
	for k := range h.subs {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	fns := make([]func(Event), len(keys))
	for i, k := range keys {
		fns[i] = h.subs[k]
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (h *eventHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	h.subs = nil
	close(h.done)
}
