package sharedkv

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/draftsync/internal/logging"
	"github.com/arloliu/draftsync/internal/natsutil"
	"github.com/arloliu/draftsync/types"
)

const natsWatchBuffer = 16

// NATS is a coordination store backed by a JetStream KeyValue bucket.
//
// It implements both types.SharedKV and types.ChangeBus. Unlike MemoryHub, its watch
// also delivers the caller's own writes.
type NATS struct {
	kv     jetstream.KeyValue
	logger types.Logger
}

var (
	_ types.SharedKV  = (*NATS)(nil)
	_ types.ChangeBus = (*NATS)(nil)
)

// NATSOption configures a NATS store.
type NATSOption func(*NATS)

// WithNATSLogger sets the logger used for watch diagnostics.
func WithNATSLogger(logger types.Logger) NATSOption {
	return func(n *NATS) {
		n.logger = logger
	}
}

// NewNATS wraps an existing KV bucket.
//
// Example:
//
//	js, _ := jetstream.New(nc)
//	bucket, _ := kvutil.EnsureBucket(ctx, js, kvutil.CoordinationBucket("draftsync-coordination"), 0)
//	store := sharedkv.NewNATS(bucket)
func NewNATS(kv jetstream.KeyValue, opts ...NATSOption) *NATS {
	n := &NATS{kv: kv, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(n)
	}

	return n
}

// Get returns the value under key, or types.ErrKeyNotFound when absent or deleted.
func (n *NATS) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := n.kv.Get(ctx, key)
	if err != nil {
		if natsutil.IsKeyNotFound(err) {
			return nil, fmt.Errorf("get %q: %w", key, types.ErrKeyNotFound)
		}

		return nil, fmt.Errorf("get %q: %w", key, natsutil.WrapConnectivity(err))
	}

	return entry.Value(), nil
}

// Put stores value under key.
func (n *NATS) Put(ctx context.Context, key string, value []byte) error {
	if _, err := n.kv.Put(ctx, key, value); err != nil {
		return fmt.Errorf("put %q: %w", key, natsutil.WrapConnectivity(err))
	}

	return nil
}

// Delete places a delete marker on key. Deleting a missing key is a no-op.
func (n *NATS) Delete(ctx context.Context, key string) error {
	if err := n.kv.Delete(ctx, key); err != nil && !natsutil.IsKeyNotFound(err) {
		return fmt.Errorf("delete %q: %w", key, natsutil.WrapConnectivity(err))
	}

	return nil
}

// Watch streams changes of key made after the call.
//
// Delete and purge markers are reported with Deleted set. The channel is closed
// once stop is called, ctx is done, or the underlying watcher ends.
func (n *NATS) Watch(ctx context.Context, key string) (<-chan types.ChangeEvent, func(), error) {
	watcher, err := n.kv.Watch(ctx, key, jetstream.UpdatesOnly())
	if err != nil {
		return nil, nil, fmt.Errorf("watch %q: %w", key, natsutil.WrapConnectivity(err))
	}

	out := make(chan types.ChangeEvent, natsWatchBuffer)
	done := make(chan struct{})

	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			if err := watcher.Stop(); err != nil && !errors.Is(err, jetstream.ErrConsumerNotFound) {
				n.logger.Debug("failed to stop KV watcher", "key", key, "error", err)
			}
		})
	}

	go func() {
		defer close(out)

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				stop()
				return
			case entry, ok := <-watcher.Updates():
				if !ok {
					return
				}
				if entry == nil {
					continue
				}

				ev := types.ChangeEvent{Key: entry.Key()}
				switch entry.Operation() {
				case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
					ev.Deleted = true
				default:
					ev.Value = entry.Value()
				}

				select {
				case out <- ev:
				case <-done:
					return
				case <-ctx.Done():
					stop()
					return
				}
			}
		}
	}()

	return out, stop, nil
}
