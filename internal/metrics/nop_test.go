package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/draftsync/types"
)

func TestNopMetrics(t *testing.T) {
	m := NewNop()

	require.NotPanics(t, func() {
		m.RecordLeadershipChange("est-1", types.LeaderStatusLeader)
		m.RecordClaimAttempt("est-1", true)
		m.RecordHeartbeat("est-1", false)
		m.RecordSave("est-1", "success", time.Second, 128)
		m.RecordSaveRetry("est-1")
		m.RecordStatus("est-1", types.StatusSaving)
		m.RecordHydration("est-1", false, errors.New("boom"))
		m.RecordEmergencySave("est-1", true)
	})
}
