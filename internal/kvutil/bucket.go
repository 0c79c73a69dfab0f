// Package kvutil provides helpers for NATS JetStream KeyValue buckets.
package kvutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const defaultAttempts = 3

// EnsureBucket creates or opens a KV bucket, retrying with exponential backoff.
//
// Several contexts usually start at once and race to create the same bucket; the
// loser of a create race opens the winner's bucket instead.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - js: JetStream handle
//   - config: Bucket configuration
//   - attempts: Maximum attempts (3 when <= 0)
//
// Example:
//
//	kv, err := kvutil.EnsureBucket(ctx, js, kvutil.CoordinationBucket("draftsync-coordination"), 0)
func EnsureBucket(
	ctx context.Context,
	js jetstream.JetStream,
	config jetstream.KeyValueConfig,
	attempts int,
) (jetstream.KeyValue, error) {
	if attempts <= 0 {
		attempts = defaultAttempts
	}

	var lastErr error
	for attempt := range attempts {
		kv, err := js.CreateKeyValue(ctx, config)
		if err == nil {
			return kv, nil
		}

		if errors.Is(err, jetstream.ErrBucketExists) {
			kv, err = js.KeyValue(ctx, config.Bucket)
			if err == nil {
				return kv, nil
			}
			lastErr = fmt.Errorf("bucket exists but failed to open: %w", err)
		} else {
			lastErr = err
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("context cancelled during KV bucket setup: %w", ctx.Err())
		}

		if attempt < attempts-1 {
			backoff := time.Duration(1<<uint(attempt)) * 10 * time.Millisecond //nolint:gosec // attempt is bounded
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return nil, fmt.Errorf("failed to create/open KV bucket %s after %d attempts: %w",
		config.Bucket, attempts, lastErr)
}

// CoordinationBucket returns the configuration of the bucket holding leader records.
//
// Leader records are tiny and short-lived; one revision of history is enough and
// memory storage keeps claim round-trips fast.
func CoordinationBucket(name string) jetstream.KeyValueConfig {
	return jetstream.KeyValueConfig{
		Bucket:      name,
		Description: "draftsync leader records",
		History:     1,
		Storage:     jetstream.MemoryStorage,
	}
}

// DraftBucket returns the configuration of the bucket holding persisted drafts.
func DraftBucket(name string) jetstream.KeyValueConfig {
	return jetstream.KeyValueConfig{
		Bucket:      name,
		Description: "draftsync persisted drafts",
		History:     5,
		Storage:     jetstream.FileStorage,
	}
}
