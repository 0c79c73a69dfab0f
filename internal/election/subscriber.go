package election

import (
	"sync"

	"github.com/arloliu/draftsync/types"
)

type statusSubscriber struct {
	ch     chan types.LeaderStatus
	mu     sync.Mutex
	closed bool
}

// trySend delivers status without blocking; a full subscriber gets the next update.
func (s *statusSubscriber) trySend(status types.LeaderStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	select {
	case s.ch <- status:
	default:
	}
}

func (s *statusSubscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
