package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/draftsync"
)

// Leaders returns the drafts whose context currently believes it leads.
func Leaders(drafts []*draftsync.Draft) []*draftsync.Draft {
	var out []*draftsync.Draft
	for _, d := range drafts {
		if d.IsLeader() {
			out = append(out, d)
		}
	}

	return out
}

// AssertAtMostOneLeader fails when more than one draft believes it leads.
func AssertAtMostOneLeader(t *testing.T, drafts []*draftsync.Draft) {
	t.Helper()

	if leaders := Leaders(drafts); len(leaders) > 1 {
		t.Fatalf("%d contexts lead %s at once", len(leaders), leaders[0].ResourceID())
	}
}

// WaitForLeader waits until exactly one of drafts leads and returns it.
func WaitForLeader(t *testing.T, drafts []*draftsync.Draft, timeout time.Duration) *draftsync.Draft {
	t.Helper()

	var leader *draftsync.Draft
	require.Eventually(t, func() bool {
		leaders := Leaders(drafts)
		if len(leaders) != 1 {
			return false
		}
		leader = leaders[0]

		return true
	}, timeout, 20*time.Millisecond, "no single leader within %v", timeout)

	return leader
}

// HoldSingleLeader samples drafts for d and fails as soon as two of them lead.
func HoldSingleLeader(t *testing.T, drafts []*draftsync.Draft, d time.Duration) {
	t.Helper()

	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		AssertAtMostOneLeader(t, drafts)
		time.Sleep(10 * time.Millisecond)
	}
}

// Without returns drafts minus skip.
func Without(drafts []*draftsync.Draft, skip *draftsync.Draft) []*draftsync.Draft {
	out := make([]*draftsync.Draft, 0, len(drafts))
	for _, d := range drafts {
		if d != skip {
			out = append(out, d)
		}
	}

	return out
}
