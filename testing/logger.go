package testing

import (
	"testing"

	"github.com/arloliu/draftsync/internal/logging"
	"github.com/arloliu/draftsync/types"
)

// NewTestLogger returns a logger that writes through t.Logf, so log output
// appears next to the failing test.
func NewTestLogger(t *testing.T) types.Logger {
	return logging.NewTest(t)
}
