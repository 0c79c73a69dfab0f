package natsutil

import (
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/draftsync/types"
)

func TestIsConnectivityError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout", nats.ErrTimeout, true},
		{"wrapped no servers", fmt.Errorf("get: %w", nats.ErrNoServers), true},
		{"closed", nats.ErrConnectionClosed, true},
		{"no stream response", jetstream.ErrNoStreamResponse, true},
		{"refused text", errors.New("dial tcp: connection refused"), true},
		{"sentinel", types.ErrConnectivity, true},
		{"key not found", jetstream.ErrKeyNotFound, false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, IsConnectivityError(tt.err))
		})
	}
}

func TestIsRevisionMismatch(t *testing.T) {
	require.True(t, IsRevisionMismatch(jetstream.ErrKeyExists))
	require.True(t, IsRevisionMismatch(&jetstream.APIError{ErrorCode: jetstream.JSErrCodeStreamWrongLastSequence, Code: 400}))
	require.False(t, IsRevisionMismatch(&jetstream.APIError{ErrorCode: jetstream.JSErrCodeStreamNotFound, Code: 404}))
	require.False(t, IsRevisionMismatch(errors.New("boom")))
	require.False(t, IsRevisionMismatch(nil))
}

func TestIsKeyNotFound(t *testing.T) {
	require.True(t, IsKeyNotFound(jetstream.ErrKeyNotFound))
	require.True(t, IsKeyNotFound(fmt.Errorf("get: %w", jetstream.ErrKeyDeleted)))
	require.False(t, IsKeyNotFound(nats.ErrTimeout))
}

func TestWrapConnectivity(t *testing.T) {
	wrapped := WrapConnectivity(nats.ErrTimeout)
	require.ErrorIs(t, wrapped, types.ErrConnectivity)
	require.ErrorIs(t, wrapped, nats.ErrTimeout)
	require.True(t, types.IsRetryable(wrapped))

	plain := errors.New("boom")
	require.Same(t, plain, WrapConnectivity(plain))
	require.NoError(t, WrapConnectivity(nil))
}
