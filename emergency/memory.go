package emergency

import (
	"context"
	"sort"
	"sync"

	"github.com/arloliu/draftsync/types"
)

// Memory is an in-process emergency log.
type Memory struct {
	mu      sync.Mutex
	records map[string]types.EmergencyRecord
}

var _ types.EmergencyLog = (*Memory)(nil)

// NewMemory creates an empty log.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]types.EmergencyRecord)}
}

// Append stores rec under rec.Key(), suffixed when that key is already taken.
func (m *Memory) Append(ctx context.Context, rec types.EmergencyRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rec.Data = rec.Data.Clone()

	m.mu.Lock()
	defer m.mu.Unlock()

	key, _ := freeKey(rec.Key(), func(k string) (bool, error) {
		_, ok := m.records[k]
		return ok, nil
	})
	m.records[key] = rec

	return nil
}

// ReadAll returns every record ordered by key.
func (m *Memory) ReadAll(ctx context.Context) ([]types.EmergencyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.records))
	for k := range m.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]types.EmergencyRecord, 0, len(keys))
	for _, k := range keys {
		rec := m.records[k]
		rec.Data = rec.Data.Clone()
		out = append(out, rec)
	}

	return out, nil
}

// Clear removes the records of resourceID, or every record when resourceID is empty.
func (m *Memory) Clear(ctx context.Context, resourceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for k, rec := range m.records {
		if resourceID == "" || rec.ResourceID == resourceID {
			delete(m.records, k)
		}
	}

	return nil
}
