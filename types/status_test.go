package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAutoSaveStatus_String(t *testing.T) {
	tests := []struct {
		status   AutoSaveStatus
		expected string
	}{
		{StatusIdle, "idle"},
		{StatusSaving, "saving"},
		{StatusSaved, "saved"},
		{StatusError, "error"},
		{StatusOffline, "offline"},
		{AutoSaveStatus(42), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			require.Equal(t, tt.expected, tt.status.String())
		})
	}
}

func TestLeaderStatus_String(t *testing.T) {
	require.Equal(t, "claiming", LeaderStatusClaiming.String())
	require.Equal(t, "leader", LeaderStatusLeader.String())
	require.Equal(t, "follower", LeaderStatusFollower.String())
	require.Equal(t, "unknown", LeaderStatus(-1).String())
}
