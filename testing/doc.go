// Package testing provides test utilities for the draftsync library.
//
// It follows Go's convention of shipping testing helpers in a dedicated package
// (similar to net/http/httptest).
//
// Key utilities:
//   - StartEmbeddedNATS: In-process NATS server with JetStream
//   - CreateJetStreamKV: Memory-backed KV bucket for a test
//   - FakeClock: Deterministic types.Clock driven by Advance
//   - NewTestLogger: types.Logger writing through testing.T
//
// Example usage:
//
//	import (
//	    "testing"
//	    draftsynctest "github.com/arloliu/draftsync/testing"
//	)
//
//	func TestMyComponent(t *testing.T) {
//	    clk := draftsynctest.NewFakeClock(time.Unix(0, 0))
//	    _, nc := draftsynctest.StartEmbeddedNATS(t)
//	    kv := draftsynctest.CreateJetStreamKV(t, nc, "coordination")
//	}
package testing
