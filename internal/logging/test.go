package logging

import (
	"fmt"
	"strings"
	"testing"

	"github.com/arloliu/draftsync/types"
)

// TestLogger writes through testing.TB so messages show up in test output.
type TestLogger struct {
	tb testing.TB
}

var _ types.Logger = (*TestLogger)(nil)

// NewTest creates a logger bound to tb.
func NewTest(tb testing.TB) *TestLogger {
	return &TestLogger{tb: tb}
}

func (l *TestLogger) Debug(msg string, keysAndValues ...any) {
	l.tb.Logf("DEBUG: %s%s", msg, formatKeyValues(keysAndValues))
}

func (l *TestLogger) Info(msg string, keysAndValues ...any) {
	l.tb.Logf("INFO: %s%s", msg, formatKeyValues(keysAndValues))
}

func (l *TestLogger) Warn(msg string, keysAndValues ...any) {
	l.tb.Logf("WARN: %s%s", msg, formatKeyValues(keysAndValues))
}

func (l *TestLogger) Error(msg string, keysAndValues ...any) {
	l.tb.Logf("ERROR: %s%s", msg, formatKeyValues(keysAndValues))
}

// Fatal fails the test immediately.
func (l *TestLogger) Fatal(msg string, keysAndValues ...any) {
	l.tb.Fatalf("FATAL: %s%s", msg, formatKeyValues(keysAndValues))
}

func formatKeyValues(keysAndValues []any) string {
	if len(keysAndValues) == 0 {
		return ""
	}

	var sb strings.Builder
	for i := 0; i < len(keysAndValues); i += 2 {
		if i+1 < len(keysAndValues) {
			fmt.Fprintf(&sb, " %v=%v", keysAndValues[i], keysAndValues[i+1])
		} else {
			fmt.Fprintf(&sb, " %v=<missing>", keysAndValues[i])
		}
	}

	return sb.String()
}
