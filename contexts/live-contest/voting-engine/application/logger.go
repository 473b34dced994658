package application

import "log/slog"

// ModuleName tags every log line emitted by the engine.
const ModuleName = "live-contest/voting-engine"

// ResolveLogger guarantees a non-nil logger for application/worker code paths.
func ResolveLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
