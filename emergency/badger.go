package emergency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/arloliu/draftsync/internal/logging"
	"github.com/arloliu/draftsync/types"
)

// Badger persists emergency records in a BadgerDB directory.
type Badger struct {
	db  *badger.DB
	ttl time.Duration
}

var _ types.EmergencyLog = (*Badger)(nil)

type badgerOptions struct {
	inMemory bool
	ttl      time.Duration
	logger   types.Logger
}

// BadgerOption configures a Badger log.
type BadgerOption func(*badgerOptions)

// WithInMemory keeps the database in memory; the path is ignored.
func WithInMemory() BadgerOption {
	return func(o *badgerOptions) {
		o.inMemory = true
	}
}

// WithRetention expires records after d. Zero keeps them until cleared.
func WithRetention(d time.Duration) BadgerOption {
	return func(o *badgerOptions) {
		o.ttl = d
	}
}

// WithBadgerLogger routes BadgerDB's internal logging to logger.
func WithBadgerLogger(logger types.Logger) BadgerOption {
	return func(o *badgerOptions) {
		o.logger = logger
	}
}

// OpenBadger opens (or creates) the emergency log at path.
func OpenBadger(path string, opts ...BadgerOption) (*Badger, error) {
	o := badgerOptions{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	bopts := badger.DefaultOptions(path)
	if o.inMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts = bopts.WithLogger(badgerLogger{l: o.logger})

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open emergency log: %w", err)
	}

	return &Badger{db: db, ttl: o.ttl}, nil
}

// Close releases the database.
func (b *Badger) Close() error {
	return b.db.Close()
}

// Append writes rec under rec.Key(), suffixed when that key is already taken.
func (b *Badger) Append(ctx context.Context, rec types.EmergencyRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode emergency record: %w", err)
	}

	return b.db.Update(func(txn *badger.Txn) error {
		key, err := freeKey(rec.Key(), func(k string) (bool, error) {
			_, err := txn.Get([]byte(k))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return false, nil
			}

			return err == nil, err
		})
		if err != nil {
			return err
		}

		e := badger.NewEntry([]byte(key), val)
		if b.ttl > 0 {
			e = e.WithTTL(b.ttl)
		}

		return txn.SetEntry(e)
	})
}

// ReadAll returns every record ordered by key. Undecodable entries are skipped.
func (b *Badger) ReadAll(ctx context.Context) ([]types.EmergencyRecord, error) {
	var out []types.EmergencyRecord

	err := b.scan(ctx, func(_ []byte, rec types.EmergencyRecord) error {
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// Clear removes the records of resourceID, or every record when resourceID is empty.
func (b *Badger) Clear(ctx context.Context, resourceID string) error {
	if resourceID == "" {
		if err := ctx.Err(); err != nil {
			return err
		}

		return b.db.DropPrefix([]byte(types.EmergencyKeyPrefix))
	}

	// Resource IDs may contain underscores, so match on the decoded record rather
	// than on a key prefix.
	var keys [][]byte
	err := b.scan(ctx, func(key []byte, rec types.EmergencyRecord) error {
		if rec.ResourceID == resourceID {
			keys = append(keys, key)
		}

		return nil
	})
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return fmt.Errorf("delete emergency record: %w", err)
		}
	}

	return wb.Flush()
}

func (b *Badger) scan(ctx context.Context, fn func(key []byte, rec types.EmergencyRecord) error) error {
	prefix := []byte(types.EmergencyKeyPrefix)

	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			item := it.Item()
			var rec types.EmergencyRecord
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				var syntaxErr *json.SyntaxError
				if errors.As(err, &syntaxErr) {
					continue
				}

				return err
			}

			if err := fn(item.KeyCopy(nil), rec); err != nil {
				return err
			}
		}

		return nil
	})
}

// badgerLogger adapts types.Logger to badger.Logger.
type badgerLogger struct {
	l types.Logger
}

func (b badgerLogger) Errorf(format string, args ...any) {
	b.l.Error(fmt.Sprintf(format, args...))
}

func (b badgerLogger) Warningf(format string, args ...any) {
	b.l.Warn(fmt.Sprintf(format, args...))
}

func (b badgerLogger) Infof(format string, args ...any) {
	b.l.Debug(fmt.Sprintf(format, args...))
}

func (b badgerLogger) Debugf(format string, args ...any) {
	b.l.Debug(fmt.Sprintf(format, args...))
}
