package helpers

import (
	"io"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// DiscardLogger returns a logger that drops everything. Components fall back
// to it when no logger is injected.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDiscard returns logger, or DiscardLogger when it is nil.
func OrDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return DiscardLogger()
	}
	return logger
}

// ThrottledLog emits at most one record per interval and drops the rest.
type ThrottledLog struct {
	logger    *slog.Logger
	sometimes *rate.Sometimes
}

func NewThrottledLog(logger *slog.Logger, interval time.Duration) *ThrottledLog {
	return &ThrottledLog{
		logger:    OrDiscard(logger),
		sometimes: &rate.Sometimes{Interval: interval},
	}
}

// Logging logs message at the given level ("error", "warn", "debug", anything
// else is info) if the interval has elapsed since the last emitted record.
func (t *ThrottledLog) Logging(logType, message string, args ...any) {
	t.sometimes.Do(func() {
		switch logType {
		case "error":
			t.logger.Error(message, args...)
		case "warn":
			t.logger.Warn(message, args...)
		case "debug":
			t.logger.Debug(message, args...)
		default:
			t.logger.Info(message, args...)
		}
	})
}
