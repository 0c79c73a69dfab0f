// Package autosave implements the auto-save coordinator: one actor goroutine per
// resource that owns the in-memory draft and decides when the leader persists it.
//
// # Actor model
//
// Every public method posts a command to the actor and waits for it to run. Adapter
// calls (Save, Load) run on their own goroutines and post their results back, so all
// coordinator state is touched by the actor alone. Readers get a consistent
// snapshot through View, which is republished after every command and event.
//
// # Saving
//
//   - Update merges a patch. Dirty is set only when the canonical form changed.
//   - The leader debounces: a quiet timer restarts on every change, a max-wait
//     deadline is fixed at the first change of a burst. Whichever fires first saves.
//   - At most one save is in flight. Requests arriving meanwhile are coalesced into
//     one follow-up save.
//   - A retryable failure schedules exactly one automatic retry. The budget resets on
//     the next successful save or the next edit.
//   - Followers never call StorageAdapter.Save.
//
// # Hydration
//
// The first time the context becomes leader, the persisted snapshot is loaded and
// exposed via View().Hydrated, separate from the live draft. Its version becomes the
// optimistic-concurrency base when nothing was saved yet.
package autosave
