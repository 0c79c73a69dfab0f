package types

// Logger defines methods for structured logging.
//
// All methods accept alternating key-value pairs for structured fields, e.g.
//
//	logger.Warn("heartbeat failed", "resource", id, "error", err)
//
// internal/logging provides slog-backed, no-op and test implementations.
type Logger interface {
	// Debug logs a message at debug level.
	Debug(msg string, keysAndValues ...any)

	// Info logs a message at info level.
	Info(msg string, keysAndValues ...any)

	// Warn logs a message at warn level. Recoverable coordination failures use this level.
	Warn(msg string, keysAndValues ...any)

	// Error logs a message at error level.
	Error(msg string, keysAndValues ...any)

	// Fatal logs a message and terminates the process with os.Exit(1).
	Fatal(msg string, keysAndValues ...any)
}
