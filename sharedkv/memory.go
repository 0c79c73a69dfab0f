package sharedkv

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/arloliu/draftsync/types"
)

const memoryWatchBuffer = 64

// MemoryHub is an in-process coordination store shared by several contexts.
//
// The hub itself is not a SharedKV; call Context to obtain a per-context view.
type MemoryHub struct {
	mu       sync.Mutex
	data     map[string][]byte
	watchers map[uint64]*memoryWatcher
	nextID   uint64
	dropped  int
}

type memoryWatcher struct {
	origin string
	key    string
	ch     chan types.ChangeEvent
}

// NewMemoryHub creates an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{
		data:     make(map[string][]byte),
		watchers: make(map[uint64]*memoryWatcher),
	}
}

// Context returns the view of the hub used by the context named origin.
//
// Writes through the view notify watchers of every other origin.
func (h *MemoryHub) Context(origin string) *Memory {
	return &Memory{hub: h, origin: origin}
}

// Keys returns the stored keys in sorted order.
func (h *MemoryHub) Keys() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return slices.Sorted(maps.Keys(h.data))
}

// Dropped returns how many notifications were discarded because a watcher's buffer was full.
func (h *MemoryHub) Dropped() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.dropped
}

func (h *MemoryHub) get(key string) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	v, ok := h.data[key]
	if !ok {
		return nil, false
	}

	return slices.Clone(v), true
}

func (h *MemoryHub) put(origin, key string, value []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.data[key] = slices.Clone(value)
	h.notifyLocked(origin, types.ChangeEvent{Key: key, Value: slices.Clone(value)})
}

func (h *MemoryHub) delete(origin, key string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.data[key]; !ok {
		return
	}
	delete(h.data, key)
	h.notifyLocked(origin, types.ChangeEvent{Key: key, Deleted: true})
}

func (h *MemoryHub) notifyLocked(origin string, ev types.ChangeEvent) {
	for _, w := range h.watchers {
		if w.origin == origin || w.key != ev.Key {
			continue
		}
		select {
		case w.ch <- ev:
		default:
			h.dropped++
		}
	}
}

func (h *MemoryHub) watch(origin, key string) (uint64, <-chan types.ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	w := &memoryWatcher{origin: origin, key: key, ch: make(chan types.ChangeEvent, memoryWatchBuffer)}
	h.watchers[h.nextID] = w

	return h.nextID, w.ch
}

func (h *MemoryHub) unwatch(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if w, ok := h.watchers[id]; ok {
		delete(h.watchers, id)
		close(w.ch)
	}
}

// Memory is one context's view of a MemoryHub.
//
// It implements both types.SharedKV and types.ChangeBus.
type Memory struct {
	hub    *MemoryHub
	origin string

	mu      sync.Mutex
	failure error
}

var (
	_ types.SharedKV  = (*Memory)(nil)
	_ types.ChangeBus = (*Memory)(nil)
)

// SetFailure makes every subsequent Get, Put and Delete through this view return err.
// Passing nil restores normal operation.
func (m *Memory) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failure = err
}

func (m *Memory) injected() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.failure
}

// Get returns the value under key or types.ErrKeyNotFound.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.injected(); err != nil {
		return nil, err
	}

	v, ok := m.hub.get(key)
	if !ok {
		return nil, fmt.Errorf("get %q: %w", key, types.ErrKeyNotFound)
	}

	return v, nil
}

// Put stores value under key and notifies other contexts.
func (m *Memory) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.injected(); err != nil {
		return err
	}

	m.hub.put(m.origin, key, value)

	return nil
}

// Delete removes key and notifies other contexts. Deleting a missing key is a no-op.
func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.injected(); err != nil {
		return err
	}

	m.hub.delete(m.origin, key)

	return nil
}

// Watch subscribes to changes of key made by other contexts.
//
// The channel is closed once stop is called or ctx is done.
func (m *Memory) Watch(ctx context.Context, key string) (<-chan types.ChangeEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	id, ch := m.hub.watch(m.origin, key)

	var once sync.Once
	done := make(chan struct{})
	stop := func() {
		once.Do(func() {
			close(done)
			m.hub.unwatch(id)
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-done:
		}
	}()

	return ch, stop, nil
}
