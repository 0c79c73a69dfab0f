package lifecycle

import (
	"sync"

	"github.com/arloliu/draftsync/types"
)

// Manual is a LifecycleSignal fired explicitly.
type Manual struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[uint64]func() bool
}

var _ types.LifecycleSignal = (*Manual)(nil)

// NewManual creates a signal with no handlers.
func NewManual() *Manual {
	return &Manual{handlers: make(map[uint64]func() bool)}
}

// OnBeforeUnload registers fn and returns a function that unregisters it.
func (m *Manual) OnBeforeUnload(fn func() bool) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.handlers[id] = fn
	m.mu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.handlers, id)
			m.mu.Unlock()
		})
	}
}

// Trigger runs every registered handler and reports whether any of them asked for
// confirmation. All handlers run even after one returns true.
func (m *Manual) Trigger() bool {
	m.mu.Lock()
	handlers := make([]func() bool, 0, len(m.handlers))
	for _, fn := range m.handlers {
		handlers = append(handlers, fn)
	}
	m.mu.Unlock()

	confirm := false
	for _, fn := range handlers {
		if fn() {
			confirm = true
		}
	}

	return confirm
}

// Handlers returns the number of registered handlers.
func (m *Manual) Handlers() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.handlers)
}
