package mailbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/teemow/mailmcp/internal/logging"
)

// Session is an authenticated IMAP connection. Calls block on the network;
// Client never calls them directly but through offload so that deadlines
// and cancellation are honoured.
//
// Message identifiers are sequence numbers and are only meaningful for the
// folder selected on the same session.
type Session interface {
	// Select opens folder (canonical, unquoted name) read-write.
	Select(folder string) error
	// Search runs a plain SEARCH and returns matching ids in ascending order.
	Search(query string) ([]string, error)
	// SearchPartial runs SEARCH RETURN (PARTIAL window) and returns the ids
	// the server placed in that window, ascending.
	SearchPartial(window, query string) ([]string, error)
	// Fetch retrieves full RFC 822 bodies for ids in a single request.
	Fetch(ids []string) ([]RawMessage, error)
	Copy(ids []string, destination string) error
	StoreDeleted(ids []string) error
	Expunge() error
	List() ([]MailboxEntry, error)
	Capability() ([]string, error)
	Close() error
}

// Provider hands out authenticated sessions. Each call returns a new,
// unshared session.
type Provider interface {
	Open(ctx context.Context) (Session, error)
}

// RawMessage is one fetched message together with the id the server
// reported for it.
type RawMessage struct {
	ID   string
	Body []byte
}

// MailboxEntry is one LIST response.
type MailboxEntry struct {
	Attributes []string
	Delimiter  string
	Name       string
}

// offload runs a blocking call on its own goroutine and waits for it, the
// context, or the timeout, whichever comes first. fn receives the derived
// context. An abandoned call keeps running until the session is torn down.
func offload[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	return offloadReclaim(ctx, timeout, fn, nil)
}

// offloadReclaim is offload for calls that hand out a resource. When the
// caller gave up before fn returned, a successful late result is passed to
// reclaim instead of being dropped.
func offloadReclaim[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error), reclaim func(T)) (T, error) {
	var cancel context.CancelFunc = func() {}
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		if reclaim != nil {
			go func() {
				if r := <-done; r.err == nil {
					reclaim(r.v)
				}
			}()
		}
		var zero T
		return zero, ctx.Err()
	}
}

// boundSession pairs a Session with the per-call timeout and logger of the
// operation using it. It tracks the session state machine so folder
// operations cannot run before a successful select.
type boundSession struct {
	s        Session
	timeout  time.Duration
	logger   *slog.Logger
	selected string
	closed   bool
}

func (b *boundSession) call(ctx context.Context, fn func() error) error {
	_, err := offload(ctx, b.timeout, func(context.Context) (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func (b *boundSession) requireSelected() error {
	if b.closed {
		return fmt.Errorf("session is closed")
	}
	if b.selected == "" {
		return fmt.Errorf("no folder selected")
	}
	return nil
}

func (b *boundSession) selectFolder(ctx context.Context, folder string) error {
	if b.closed {
		return wrap(ErrFolder, "select", folder, nil, fmt.Errorf("session is closed"))
	}
	if err := b.call(ctx, func() error { return b.s.Select(folder) }); err != nil {
		b.selected = ""
		return wrap(ErrFolder, "select", folder, nil, err)
	}
	b.selected = folder
	return nil
}

func (b *boundSession) search(ctx context.Context, query string) ([]string, error) {
	if err := b.requireSelected(); err != nil {
		return nil, err
	}
	return offload(ctx, b.timeout, func(context.Context) ([]string, error) { return b.s.Search(query) })
}

// count returns how many messages in the selected folder match query.
func (b *boundSession) count(ctx context.Context, query string) (int, error) {
	ids, err := b.search(ctx, query)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (b *boundSession) searchPartial(ctx context.Context, window, query string) ([]string, error) {
	if err := b.requireSelected(); err != nil {
		return nil, err
	}
	return offload(ctx, b.timeout, func(context.Context) ([]string, error) { return b.s.SearchPartial(window, query) })
}

func (b *boundSession) fetch(ctx context.Context, ids []string) ([]RawMessage, error) {
	if err := b.requireSelected(); err != nil {
		return nil, err
	}
	return offload(ctx, b.timeout, func(context.Context) ([]RawMessage, error) { return b.s.Fetch(ids) })
}

func (b *boundSession) copy(ctx context.Context, ids []string, destination string) error {
	if err := b.requireSelected(); err != nil {
		return err
	}
	return b.call(ctx, func() error { return b.s.Copy(ids, destination) })
}

func (b *boundSession) storeDeleted(ctx context.Context, ids []string) error {
	if err := b.requireSelected(); err != nil {
		return err
	}
	return b.call(ctx, func() error { return b.s.StoreDeleted(ids) })
}

func (b *boundSession) expunge(ctx context.Context) error {
	if err := b.requireSelected(); err != nil {
		return err
	}
	return b.call(ctx, b.s.Expunge)
}

func (b *boundSession) list(ctx context.Context) ([]MailboxEntry, error) {
	return offload(ctx, b.timeout, func(context.Context) ([]MailboxEntry, error) { return b.s.List() })
}

func (b *boundSession) capability(ctx context.Context) ([]string, error) {
	return offload(ctx, b.timeout, func(context.Context) ([]string, error) { return b.s.Capability() })
}

// close tears the session down. Failures are logged, never returned.
func (b *boundSession) close() {
	if b.closed {
		return
	}
	b.closed = true
	b.selected = ""
	err := b.call(context.Background(), b.s.Close)
	if err != nil {
		b.logger.Warn("session teardown failed", logging.Err(err))
	}
}
