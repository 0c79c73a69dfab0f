package logging

import "github.com/arloliu/draftsync/types"

// NopLogger discards every message.
type NopLogger struct{}

var _ types.Logger = (*NopLogger)(nil)

// NewNop returns a logger that discards everything.
func NewNop() *NopLogger {
	return &NopLogger{}
}

func (l *NopLogger) Debug(string, ...any) {}
func (l *NopLogger) Info(string, ...any) {}
func (l *NopLogger) Warn(string, ...any) {}
func (l *NopLogger) Error(string, ...any) {}
func (l *NopLogger) Fatal(string, ...any) {}
