package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/zeebo/xxh3"
)

// EstimateData is the opaque draft snapshot persisted by the auto-save coordinator.
//
// Fields holds the business payload. Its values are kept in their JSON-decoded form
// (numbers as float64, objects as map[string]any) so that two snapshots compare equal
// exactly when their serialized forms are equal.
type EstimateData struct {
	ID        string         `json:"id"`
	Version   int64          `json:"version"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Merge returns a copy of the snapshot with patch applied on top of Fields.
//
// A nil value in patch deletes the key. Values are normalized through JSON so the
// merged snapshot has the same shape it would have after a save/load round trip.
//
// Returns an error if patch contains values that cannot be serialized.
func (e EstimateData) Merge(patch map[string]any) (EstimateData, error) {
	normalized, err := normalizeFields(patch)
	if err != nil {
		return EstimateData{}, err
	}

	out := e.Clone()
	if out.Fields == nil {
		out.Fields = make(map[string]any, len(patch))
	}

	for k, v := range normalized {
		if v == nil {
			delete(out.Fields, k)
			continue
		}
		out.Fields[k] = v
	}

	return out, nil
}

// Clone returns a deep copy of the snapshot.
func (e EstimateData) Clone() EstimateData {
	out := e
	out.Fields = CloneFields(e.Fields)

	return out
}

// Canonical returns the canonical serialized form of Fields.
//
// encoding/json writes map keys in sorted order, so equal field sets always produce
// identical bytes. ID, Version and UpdatedAt are not part of the canonical form.
func (e EstimateData) Canonical() []byte {
	if len(e.Fields) == 0 {
		return []byte("{}")
	}

	b, err := json.Marshal(e.Fields)
	if err != nil {
		// Fields only ever holds JSON-decoded values.
		return []byte("{}")
	}

	return b
}

// Fingerprint returns the xxh3 hash of the canonical form.
func (e EstimateData) Fingerprint() uint64 {
	return xxh3.Hash(e.Canonical())
}

func normalizeFields(patch map[string]any) (map[string]any, error) {
	if len(patch) == 0 {
		return nil, nil
	}

	b, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize patch: %w", err)
	}

	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("failed to normalize patch: %w", err)
	}

	return out, nil
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, inner := range t {
			m[k] = cloneValue(inner)
		}

		return m
	case []any:
		s := make([]any, len(t))
		for i, inner := range t {
			s[i] = cloneValue(inner)
		}

		return s
	default:
		return v
	}
}

// LeaderRecord is the advisory leadership claim stored in the shared coordination store.
type LeaderRecord struct {
	ContextID string    `json:"contextId"`
	ClaimedAt time.Time `json:"claimedAt"`
	Heartbeat time.Time `json:"heartbeat"`
}

// IsStale reports whether the record's heartbeat is older than lease.
//
// A record is reclaimable strictly after lease has elapsed since its last heartbeat.
func (r LeaderRecord) IsStale(now time.Time, lease time.Duration) bool {
	return now.Sub(r.Heartbeat) > lease
}

// EmergencyRecordType is the Type of every EmergencyRecord.
const EmergencyRecordType = "emergency_save"

// EmergencyKeyPrefix prefixes every emergency log key.
const EmergencyKeyPrefix = EmergencyRecordType + "_"

// EmergencyRecord is the crash-recovery artifact written when a context unloads with unsaved edits.
type EmergencyRecord struct {
	Type       string       `json:"type"`
	ResourceID string       `json:"resourceId"`
	Data       EstimateData `json:"data"`
	Timestamp  time.Time    `json:"timestamp"`
}

// Key returns the emergency log key for the record.
func (r EmergencyRecord) Key() string {
	return EmergencyKey(r.ResourceID, r.Timestamp)
}

// EmergencyKey builds the key emergency_save_<resourceID>_<unixMilli>.
func EmergencyKey(resourceID string, ts time.Time) string {
	return fmt.Sprintf("%s%s_%d", EmergencyKeyPrefix, resourceID, ts.UnixMilli())
}

// ConflictData describes an optimistic-concurrency conflict between the local draft
// and the version held by the backend.
type ConflictData struct {
	ResourceID    string        `json:"resourceId"`
	LocalVersion  int64         `json:"localVersion"`
	RemoteVersion int64         `json:"remoteVersion"`
	Local         EstimateData  `json:"local"`
	Remote        *EstimateData `json:"remote,omitempty"`
	DetectedAt    time.Time     `json:"detectedAt"`
}

// ConflictResolution selects how a pending conflict is resolved.
type ConflictResolution int

const (
	// KeepLocal adopts the remote version as the new base and saves the local snapshot over it.
	KeepLocal ConflictResolution = iota

	// KeepRemote discards local edits and adopts the remote snapshot.
	KeepRemote
)

// String returns the string representation of the resolution.
func (r ConflictResolution) String() string {
	switch r {
	case KeepLocal:
		return "keep_local"
	case KeepRemote:
		return "keep_remote"
	default:
		return "unknown"
	}
}

// CloneFields returns a deep copy of fields.
func CloneFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}

	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = cloneValue(v)
	}

	return out
}
