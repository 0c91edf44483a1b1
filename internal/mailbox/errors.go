package mailbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by Client matches exactly one of these
// with errors.Is.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrConnection      = errors.New("connection error")
	ErrFolder          = errors.New("folder error")
	ErrSearch          = errors.New("search error")
	ErrOperation       = errors.New("operation error")
	ErrContent         = errors.New("content error")
	ErrNotFound        = errors.New("not found")
	ErrTimeout         = errors.New("timeout")
)

// Error carries the operation context of a failed mailbox call.
type Error struct {
	Kind   error
	Op     string
	Folder string
	IDs    []string
	Err    error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Op)
	if e.Folder != "" {
		fmt.Fprintf(&sb, " [folder=%s]", e.Folder)
	}
	if len(e.IDs) > 0 {
		fmt.Fprintf(&sb, " [ids=%s]", strings.Join(e.IDs, ","))
	}
	sb.WriteString(": ")
	sb.WriteString(e.Kind.Error())
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap exposes both the kind and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// kindOf returns the kind sentinel of err, or nil when err does not come from
// this package.
func kindOf(err error) error {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return nil
}

func invalidArgument(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrInvalidArgument, Op: "validate", Err: fmt.Errorf(format, args...)}
}

// wrap attaches operation context to err. Errors that already carry a kind
// keep it, and context deadlines are always reported as timeouts.
func wrap(kind error, op, folder string, ids []string, err error) error {
	if err == nil {
		return nil
	}
	var me *Error
	if errors.As(err, &me) {
		if me.Folder == "" {
			me.Folder = folder
		}
		if me.IDs == nil {
			me.IDs = ids
		}
		return me
	}
	if errors.Is(err, context.DeadlineExceeded) {
		kind = ErrTimeout
	}
	return &Error{Kind: kind, Op: op, Folder: folder, IDs: ids, Err: err}
}
