package logging

import (
	"log/slog"
)

// Logger is the narrow logging interface taken by packages that should not
// depend on slog directly, such as the collection store.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	// With returns a Logger that adds args to every record.
	With(args ...interface{}) Logger
}

// SlogAdapter implements Logger on top of an slog.Logger.
type SlogAdapter struct {
	logger *slog.Logger
}

var _ Logger = (*SlogAdapter)(nil)

// NewSlogAdapter wraps logger. A nil logger means slog.Default().
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAdapter{logger: logger}
}

func (a *SlogAdapter) Debug(msg string, args ...interface{}) { a.logger.Debug(msg, args...) }
func (a *SlogAdapter) Info(msg string, args ...interface{})  { a.logger.Info(msg, args...) }
func (a *SlogAdapter) Warn(msg string, args ...interface{})  { a.logger.Warn(msg, args...) }
func (a *SlogAdapter) Error(msg string, args ...interface{}) { a.logger.Error(msg, args...) }

// With returns an adapter over logger.With(args...).
func (a *SlogAdapter) With(args ...interface{}) Logger {
	return &SlogAdapter{logger: a.logger.With(args...)}
}

// Logger returns the wrapped slog.Logger.
func (a *SlogAdapter) Logger() *slog.Logger {
	return a.logger
}

// DefaultLogger wraps slog.Default().
func DefaultLogger() *SlogAdapter {
	return NewSlogAdapter(slog.Default())
}

// Discard returns a Logger that drops every record.
func Discard() *SlogAdapter {
	return NewSlogAdapter(slog.New(slog.DiscardHandler))
}
