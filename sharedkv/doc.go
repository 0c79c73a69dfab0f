// Package sharedkv provides implementations of the shared coordination store
// (types.SharedKV) and its change notifications (types.ChangeBus).
//
// Two backends are available:
//   - MemoryHub: an in-process store shared by several contexts, each obtained via
//     MemoryHub.Context. Change notifications fire only in contexts other than the
//     writer, like storage events between browser tabs.
//   - NATS: a JetStream KeyValue bucket. Its watch also delivers a context's own
//     writes back to it; consumers tolerate the echo.
package sharedkv
