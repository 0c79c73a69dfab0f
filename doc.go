// Package draftsync keeps one in-progress draft consistent across several execution
// contexts editing it at once, and persists it without losing edits.
//
// Every context (a Manager) that opens a resource joins an advisory leader election
// held in a shared key-value store. Only the leader writes the draft to the storage
// adapter, on a debounced schedule; followers keep editing locally and take over
// when the leader stops heartbeating or releases its claim. A context that goes away
// with unsaved edits leaves an emergency record behind for recovery.
//
// # Quick Start
//
//	import (
//	    "github.com/arloliu/draftsync"
//	    "github.com/arloliu/draftsync/sharedkv"
//	    "github.com/arloliu/draftsync/storage/natskv"
//	)
//
//	cfg := draftsync.DefaultConfig()
//	store := sharedkv.NewNATS(coordinationBucket)
//	mgr, err := draftsync.NewManager(&cfg, store, store, natskv.New(draftBucket))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Stop(context.Background())
//
//	draft, err := mgr.Open(ctx, "est-42")
//	_ = draft.Update(ctx, map[string]any{"profitMargin": 30})
//
// # Key Features
//
//   - Advisory Election: claim, jittered confirmation, heartbeat and stale sweep per resource
//   - Debounce With Max Wait: a quiet period bounds write volume, a max wait bounds data loss
//   - Single Flight: at most one save per resource in flight, edits during a save are kept
//   - One Retry: retryable failures are retried exactly once
//   - Optimistic Concurrency: adapters report version conflicts, resolved with KeepLocal or KeepRemote
//   - Emergency Records: dirty drafts are written to a local log when the process unloads
//
// # Architecture
//
// Each resource has an elector and a coordinator:
//
//	claiming → leader | follower            (election)
//	idle → saving → saved → idle | error    (auto-save, offline overrides)
//
// The coordinator is an actor: a single goroutine owns all draft state and adapter
// calls post their results back to it. It asks the elector before every write.
//
// # Guarantees
//
// The election is best-effort, for cooperating contexts of one user. There is no
// quorum and no fencing: brief windows with two believed leaders are possible, and
// adapters with version checks turn the resulting double write into a conflict.
//
// See cmd/draftctl for a complete program.
package draftsync
