// Package natskv stores drafts in a JetStream KeyValue bucket.
//
// The draft version is the KV revision of its entry: a first save uses Create, later
// saves use Update conditioned on the base revision, so a concurrent writer shows up
// as a conflict instead of a silent overwrite.
package natskv

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/draftsync/internal/logging"
	"github.com/arloliu/draftsync/internal/natsutil"
	"github.com/arloliu/draftsync/types"
)

// Adapter is a types.StorageAdapter over a KeyValue bucket.
type Adapter struct {
	kv     jetstream.KeyValue
	logger types.Logger
}

var _ types.StorageAdapter = (*Adapter)(nil)

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the adapter logger.
func WithLogger(logger types.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// New wraps a bucket, typically created with kvutil.DraftBucket.
func New(kv jetstream.KeyValue, opts ...Option) *Adapter {
	a := &Adapter{kv: kv, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Save writes data under key when the stored revision equals baseVersion.
func (a *Adapter) Save(ctx context.Context, key string, data types.EstimateData, baseVersion int64) (int64, error) {
	data.Version = baseVersion
	payload, err := json.Marshal(data)
	if err != nil {
		return 0, &types.StorageError{Code: types.CodeValidation, Message: "draft cannot be encoded", Err: err}
	}

	var rev uint64
	if baseVersion == 0 {
		rev, err = a.kv.Create(ctx, key, payload)
	} else {
		rev, err = a.kv.Update(ctx, key, payload, uint64(baseVersion))
	}
	if err == nil {
		return int64(rev), nil
	}

	if natsutil.IsRevisionMismatch(err) {
		return 0, a.conflict(ctx, key, data, baseVersion)
	}

	return 0, fmt.Errorf("save draft %q: %w", key, natsutil.WrapConnectivity(err))
}

// Load returns the latest draft under key, or nil, nil when none was saved.
func (a *Adapter) Load(ctx context.Context, key string) (*types.EstimateData, error) {
	entry, err := a.kv.Get(ctx, key)
	if err != nil {
		if natsutil.IsKeyNotFound(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("load draft %q: %w", key, natsutil.WrapConnectivity(err))
	}

	data, err := decode(entry)
	if err != nil {
		return nil, err
	}

	return &data, nil
}

func (a *Adapter) conflict(ctx context.Context, key string, local types.EstimateData, base int64) error {
	cd := &types.ConflictData{
		ResourceID:   key,
		LocalVersion: base,
		Local:        local,
	}

	entry, err := a.kv.Get(ctx, key)
	switch {
	case err == nil:
		remote, derr := decode(entry)
		if derr != nil {
			a.logger.Warn("conflicting draft is unreadable", "key", key, "error", derr)
			cd.RemoteVersion = int64(entry.Revision())
		} else {
			cd.Remote = &remote
			cd.RemoteVersion = remote.Version
		}
	case natsutil.IsKeyNotFound(err):
		a.logger.Debug("draft was deleted since base version", "key", key, "base_version", base)
	default:
		return fmt.Errorf("read conflicting draft %q: %w", key, natsutil.WrapConnectivity(err))
	}

	return types.NewConflictError(cd)
}

func decode(entry jetstream.KeyValueEntry) (types.EstimateData, error) {
	var data types.EstimateData
	if err := json.Unmarshal(entry.Value(), &data); err != nil {
		return types.EstimateData{}, fmt.Errorf("decode draft %q: %w", entry.Key(), err)
	}
	data.Version = int64(entry.Revision())

	return data, nil
}
