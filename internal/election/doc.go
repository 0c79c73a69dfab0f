// Package election implements advisory leader election among contexts that share
// a coordination store.
//
// Each Elector competes for one resource key. The protocol is best-effort: there is
// no quorum and no fencing token, and brief windows with zero or two believed
// leaders are possible. It exists so that cooperating contexts of one user agree,
// most of the time, on a single writer.
//
// # Protocol
//
// State machine: claiming → leader | follower, re-entered on every observed change
// of the leader record and on every sweep tick.
//
//   - Claim: read the record; if absent or stale (now - heartbeat > LeaseTimeout),
//     write {self, now, now}, wait a random jitter in [0, ClaimJitter), read again.
//     Leader only if the record still names self.
//   - Heartbeat: every HeartbeatInterval the leader re-reads the record and refreshes
//     its heartbeat, stepping down if another context is named.
//   - Sweep: every SweepInterval a non-leader claims if the record is missing or stale.
//   - Release: Stop deletes the record when it still names self.
//
// Store errors never surface to callers. They are logged at warn level and retried on
// the next tick.
//
// # Usage
//
//	e, err := election.NewElector(&election.Config{
//	    KV:         kv,
//	    Bus:        kv,
//	    ResourceID: "est-42",
//	    ContextID:  contextID,
//	    Key:        "leader.est-42",
//	})
//	if err := e.Start(ctx); err != nil { ... }
//	defer e.Stop()
//
//	ch, unsubscribe := e.Subscribe()
//	defer unsubscribe()
//	for status := range ch { ... }
package election
