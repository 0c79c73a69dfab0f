// Package storage groups the types.StorageAdapter implementations.
//
//   - storage/memory: in-process map with failure injection, for tests and demos
//   - storage/natskv: JetStream KeyValue bucket, versioned by KV revision
//   - storage/sqlite: SQLite table with compare-and-swap on version
//
// Every adapter reports optimistic-concurrency conflicts as a *types.StorageError
// with Code types.CodeConflict and ConflictData attached, and Load returns nil, nil
// for a key that was never saved.
package storage
