// Package types provides core type definitions and port interfaces for draftsync.
//
// This package contains shared types that are used across multiple packages in the
// draftsync library. By keeping these types in a separate package, we avoid import
// cycles between the root draftsync package and its internal implementations.
//
// Key types:
//   - EstimateData: Opaque draft snapshot persisted by the auto-save coordinator
//   - LeaderRecord: Advisory leadership claim stored in the shared coordination store
//   - AutoSaveStatus / LeaderStatus: Observable state of a draft
//   - StorageError / ConflictData: Classified persistence failures
//
// Ports (platform dependencies abstracted as small interfaces):
//   - SharedKV, ChangeBus: Shared coordination store and its change notifications
//   - Clock, Timer: Wall clock and timers
//   - LifecycleSignal: "About to unload" notification
//   - StorageAdapter: Durable backend save/load contract
//   - EmergencyLog: Local crash-recovery log
package types
