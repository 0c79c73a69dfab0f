// Package memory provides an in-process types.StorageAdapter.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arloliu/draftsync/types"
)

// Store keeps drafts in a map.
//
// It can simulate latency, transient failures and optimistic-concurrency conflicts,
// and counts calls so tests can assert on I/O.
type Store struct {
	mu           sync.RWMutex
	data         map[string]types.EstimateData
	latency      time.Duration
	versionCheck bool

	failSaves     int
	failRetryable bool
	failLoads     int
	gate          chan struct{}

	saves int
	loads int
}

var _ types.StorageAdapter = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLatency delays every call by d.
func WithLatency(d time.Duration) Option {
	return func(s *Store) {
		s.latency = d
	}
}

// WithVersionCheck rejects saves whose base version differs from the stored one.
func WithVersionCheck() Option {
	return func(s *Store) {
		s.versionCheck = true
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{data: make(map[string]types.EstimateData)}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// FailNext makes the next n saves fail with a storage error.
func (s *Store) FailNext(n int, retryable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failSaves = n
	s.failRetryable = retryable
}

// FailNextLoads makes the next n loads fail.
func (s *Store) FailNextLoads(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failLoads = n
}

// Hold blocks every subsequent save until the returned release function is called.
func (s *Store) Hold() (release func()) {
	gate := make(chan struct{})

	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.gate == gate {
				s.gate = nil
			}
			s.mu.Unlock()
			close(gate)
		})
	}
}

// Seed stores data under key as if it had been saved, without counting a call.
func (s *Store) Seed(key string, data types.EstimateData) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = data.Clone()
}

// Get returns the stored snapshot for assertions.
func (s *Store) Get(key string) (types.EstimateData, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.data[key]

	return d.Clone(), ok
}

// Saves returns the number of Save calls.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.saves
}

// Loads returns the number of Load calls.
func (s *Store) Loads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.loads
}

// Save stores data under key and returns the incremented version.
func (s *Store) Save(ctx context.Context, key string, data types.EstimateData, baseVersion int64) (int64, error) {
	s.mu.Lock()
	s.saves++
	gate := s.gate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if err := s.wait(ctx); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failSaves > 0 {
		s.failSaves--
		code := types.CodeStorage
		if s.failRetryable {
			code = types.CodeUnavailable
		}

		return 0, &types.StorageError{
			Code:      code,
			Message:   "simulated save failure",
			Retryable: s.failRetryable,
			Err:       errors.New("memory store: injected failure"),
		}
	}

	cur, exists := s.data[key]
	if s.versionCheck && cur.Version != baseVersion {
		conflict := &types.ConflictData{
			ResourceID:    key,
			LocalVersion:  baseVersion,
			RemoteVersion: cur.Version,
			Local:         data.Clone(),
		}
		if exists {
			remote := cur.Clone()
			conflict.Remote = &remote
		}

		return 0, types.NewConflictError(conflict)
	}

	stored := data.Clone()
	stored.Version = cur.Version + 1
	s.data[key] = stored

	return stored.Version, nil
}

// Load returns the stored snapshot or nil, nil.
func (s *Store) Load(ctx context.Context, key string) (*types.EstimateData, error) {
	s.mu.Lock()
	s.loads++
	fail := s.failLoads > 0
	if fail {
		s.failLoads--
	}
	s.mu.Unlock()

	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	if fail {
		return nil, fmt.Errorf("memory store: injected load failure for %q", key)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	out := d.Clone()

	return &out, nil
}

func (s *Store) wait(ctx context.Context) error {
	if s.latency <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(s.latency)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
