package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Attribute keys shared by every package that logs.
const (
	KeyOperation = "operation"
	KeyService   = "service"
	KeyUserHash  = "user_hash"
	KeyDuration  = "duration"
	KeyError     = "error"
	KeyTool      = "tool"
	KeyFolder    = "folder"
	KeyCount     = "count"
	KeyStrategy  = "strategy"
)

// Status values. instrumentation has its own copy since it imports this
// package.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Output formats accepted by NewLogger.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// NewLogger builds the process logger. An empty format means text; debug
// lowers the level to slog.LevelDebug.
func NewLogger(w io.Writer, format string, debug bool) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if debug {
		opts.Level = slog.LevelDebug
	}

	switch strings.ToLower(format) {
	case FormatText, "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unsupported log format %q (supported: %s, %s)", format, FormatText, FormatJSON)
	}
}

func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, operation))
}

func WithService(logger *slog.Logger, service string) *slog.Logger {
	return logger.With(slog.String(KeyService, service))
}

func Folder(folder string) slog.Attr {
	return slog.String(KeyFolder, folder)
}

func Count(n int) slog.Attr {
	return slog.Int(KeyCount, n)
}

func Duration(d time.Duration) slog.Attr {
	return slog.Duration(KeyDuration, d)
}

// Err returns the error attribute, or an empty group that slog drops when
// err is nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}
