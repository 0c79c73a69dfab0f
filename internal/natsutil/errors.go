// Package natsutil classifies NATS and JetStream errors.
//
// Kept in internal/ so the types package stays free of NATS dependencies.
package natsutil

import (
	"errors"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/draftsync/types"
)

// IsConnectivityError reports whether err is caused by a connectivity problem:
// timeouts, missing servers, disconnection, or a JetStream that did not answer.
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, types.ErrConnectivity) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrDisconnected) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrConnectionReconnecting) ||
		errors.Is(err, jetstream.ErrNoStreamResponse) ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "i/o timeout")
}

// IsKeyNotFound reports whether err means the KV key is absent or deleted.
func IsKeyNotFound(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted)
}

// IsRevisionMismatch reports whether a conditional Create or Update lost against
// a concurrent writer (JetStream "wrong last sequence").
func IsRevisionMismatch(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}

	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
	}

	return false
}

// WrapConnectivity tags connectivity failures with types.ErrConnectivity so that
// callers outside this package can classify them without importing NATS.
// Other errors are returned unchanged.
func WrapConnectivity(err error) error {
	if err == nil || errors.Is(err, types.ErrConnectivity) || !IsConnectivityError(err) {
		return err
	}

	return errors.Join(types.ErrConnectivity, err)
}
