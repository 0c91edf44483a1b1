package mailbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/teemow/mailmcp/internal/instrumentation"
	"github.com/teemow/mailmcp/internal/logging"
)

// DefaultTimeout bounds each individual mailbox round-trip.
const DefaultTimeout = 60 * time.Second

// Recorder receives per-operation metrics.
type Recorder interface {
	StrategyObserver
	RecordMailboxOperation(ctx context.Context, operation, folder, status string, duration time.Duration)
}

// Options configures a Client.
type Options struct {
	Folders FolderNames
	// Timeout bounds every individual round-trip. Zero means DefaultTimeout.
	Timeout time.Duration
	// DefaultWindowDays, when positive, restricts searches without any date
	// bound to the trailing number of days.
	DefaultWindowDays int
	Logger            *slog.Logger
	Recorder          Recorder
	// Now is used for the default window. Defaults to time.Now.
	Now func() time.Time
}

// Client runs mailbox operations. Every operation opens its own session
// from the provider and tears it down before returning.
type Client struct {
	provider Provider
	sender   Sender
	opts     Options
	logger   *slog.Logger
	pager    *paginator
}

// NewClient creates a Client. sender may be nil when sending is not needed.
func NewClient(provider Provider, sender Sender, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := logging.WithService(opts.Logger, "mailbox")

	pager := &paginator{logger: logger}
	if opts.Recorder != nil {
		pager.observer = opts.Recorder
	}
	return &Client{
		provider: provider,
		sender:   sender,
		opts:     opts,
		logger:   logger,
		pager:    pager,
	}
}

// withSession opens a session, runs fn, and always tears the session down.
func (c *Client) withSession(ctx context.Context, op, folder string, fn func(ctx context.Context, s *boundSession) error) (err error) {
	start := time.Now()
	ctx, span := instrumentation.StartMailboxSpan(ctx, op, folder)
	logger := logging.WithOperation(c.logger, op)
	if folder != "" {
		logger = logger.With(logging.Folder(folder))
	}

	defer func() {
		status := logging.StatusSuccess
		if err != nil {
			status = logging.StatusError
			logger.Warn("mailbox operation failed",
				logging.Err(err),
				slog.Any("kind", kindOf(err)),
				logging.Duration(time.Since(start)))
		} else {
			logger.Debug("mailbox operation completed", logging.Duration(time.Since(start)))
		}
		if c.opts.Recorder != nil {
			c.opts.Recorder.RecordMailboxOperation(ctx, op, folder, status, time.Since(start))
		}
		instrumentation.FinishSpan(span, status, err)
		span.End()
	}()

	s, err := c.open(ctx, logger)
	if err != nil {
		return err
	}
	defer s.close()

	return fn(ctx, s)
}

func (c *Client) open(ctx context.Context, logger *slog.Logger) (*boundSession, error) {
	s, err := offloadReclaim(ctx, c.opts.Timeout, c.provider.Open, func(late Session) {
		if err := late.Close(); err != nil {
			logger.Debug("late session close failed", logging.Err(err))
		}
	})
	if err != nil {
		return nil, wrap(ErrConnection, "connect", "", nil, err)
	}
	return &boundSession{s: s, timeout: c.opts.Timeout, logger: logger}, nil
}

// Search returns the requested page of message summaries.
func (c *Client) Search(ctx context.Context, criteria SearchCriteria) ([]Summary, error) {
	if !criteria.HasDates() && c.opts.DefaultWindowDays > 0 {
		today := c.opts.Now().UTC().Truncate(24 * time.Hour)
		criteria = criteria.withStartDate(today.AddDate(0, 0, -c.opts.DefaultWindowDays))
	}
	query := Compile(criteria)
	folder := c.opts.Folders.Resolve(criteria.Folder())

	var summaries []Summary
	err := c.withSession(ctx, instrumentation.OperationSearch, folder, func(ctx context.Context, s *boundSession) error {
		if err := s.selectFolder(ctx, folder); err != nil {
			return err
		}

		ids, err := c.pager.paginate(ctx, s, query, criteria)
		if err != nil {
			return wrap(ErrSearch, "search", folder, nil, fmt.Errorf("query %s: %w", query, err))
		}
		c.logger.Debug("search resolved page",
			logging.Folder(folder),
			slog.String("query", query),
			logging.Count(len(ids)))
		if len(ids) == 0 {
			summaries = []Summary{}
			return nil
		}

		raw, err := s.fetch(ctx, ids)
		if err != nil {
			return wrap(ErrSearch, "fetch", folder, ids, err)
		}
		summaries, err = orderSummaries(ids, raw)
		return err
	})
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

// orderSummaries formats fetched messages in the order of the page ids. The
// server may answer in any order; ids that vanished in between are skipped.
func orderSummaries(ids []string, raw []RawMessage) ([]Summary, error) {
	byID := make(map[string]RawMessage, len(raw))
	for _, m := range raw {
		byID[m.ID] = m
	}
	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		m, ok := byID[id]
		if !ok {
			continue
		}
		sum, err := formatSummary(m)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, nil
}

// GetContent fetches one message from folder (the inbox when empty).
func (c *Client) GetContent(ctx context.Context, id, folder string) (*Content, error) {
	if err := validateIDs([]string{id}); err != nil {
		return nil, err
	}
	folder = c.opts.Folders.Resolve(folder)

	var content *Content
	err := c.withSession(ctx, instrumentation.OperationGetContent, folder, func(ctx context.Context, s *boundSession) error {
		if err := s.selectFolder(ctx, folder); err != nil {
			return err
		}
		raw, err := s.fetch(ctx, []string{id})
		if err != nil {
			return wrap(ErrSearch, "fetch", folder, []string{id}, err)
		}
		for _, m := range raw {
			if m.ID == id && len(m.Body) > 0 {
				content, err = formatContent(m)
				return wrap(ErrContent, "get_content", folder, []string{id}, err)
			}
		}
		return wrap(ErrNotFound, "get_content", folder, []string{id}, fmt.Errorf("no message with id %s", id))
	})
	if err != nil {
		return nil, err
	}
	return content, nil
}

// Send validates msg and hands it to the configured sender.
func (c *Client) Send(ctx context.Context, msg Message) (err error) {
	if err := msg.Validate(); err != nil {
		return err
	}
	if c.sender == nil {
		return wrap(ErrOperation, "send", "", nil, errors.New("no sender configured"))
	}

	start := time.Now()
	ctx, span := instrumentation.StartMailboxSpan(ctx, instrumentation.OperationSend, "")
	defer func() {
		status := logging.StatusSuccess
		if err != nil {
			status = logging.StatusError
		}
		if c.opts.Recorder != nil {
			c.opts.Recorder.RecordMailboxOperation(ctx, instrumentation.OperationSend, "", status, time.Since(start))
		}
		instrumentation.FinishSpan(span, status, err)
		span.End()
	}()

	sendCtx := ctx
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}
	if err = c.sender.Send(sendCtx, msg); err != nil {
		return wrap(ErrOperation, "send", "", nil, err)
	}
	recipients := msg.Recipients()
	c.logger.Info("email sent",
		logging.Count(len(recipients)),
		slog.Any("recipient_domains", logging.RecipientDomains(recipients)))
	return nil
}

// DayCount is the number of inbox messages on one day; -1 when counting
// that day timed out.
type DayCount struct {
	Date  string
	Count int
}

// TimedOut is the count recorded for a day whose search timed out.
const TimedOut = -1

// DailyCounts keeps days in ascending order.
type DailyCounts []DayCount

// MarshalJSON renders an object keyed by date, preserving order.
func (d DailyCounts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, day := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(day.Date)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(day.Count))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// CountDaily counts inbox messages per day between start and end inclusive.
// A day whose count times out is recorded as TimedOut and the session is
// replaced before the next day.
func (c *Client) CountDaily(ctx context.Context, startDate, endDate string) (DailyCounts, error) {
	start, err := ParseDate(startDate)
	if err != nil {
		return nil, err
	}
	end, err := ParseDate(endDate)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, invalidArgument("end_date %s is before start_date %s", endDate, startDate)
	}

	counts := DailyCounts{}
	err = c.withSession(ctx, instrumentation.OperationCountDaily, inboxName, func(ctx context.Context, s *boundSession) error {
		if err := s.selectFolder(ctx, inboxName); err != nil {
			return err
		}
		for day := start; !day.After(end); day = nextDay(day) {
			date := day.Format(DateLayout)
			n, err := s.count(ctx, dayQuery(day))
			switch {
			case err == nil:
				counts = append(counts, DayCount{Date: date, Count: n})
			case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
				c.logger.Warn("daily count timed out", slog.String("date", date))
				counts = append(counts, DayCount{Date: date, Count: TimedOut})
				if err := c.reopen(ctx, s); err != nil {
					return err
				}
			default:
				return wrap(ErrSearch, "count_daily", inboxName, nil, fmt.Errorf("%s: %w", date, err))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// reopen replaces, in place, a session whose last call was abandoned and
// selects the same folder again.
func (c *Client) reopen(ctx context.Context, s *boundSession) error {
	folder := s.selected
	s.close()
	fresh, err := c.open(ctx, s.logger)
	if err != nil {
		return err
	}
	*s = *fresh
	return s.selectFolder(ctx, folder)
}

// ListFolders returns all folders, inbox first.
func (c *Client) ListFolders(ctx context.Context) ([]Folder, error) {
	var folders []Folder
	err := c.withSession(ctx, instrumentation.OperationListFolders, "", func(ctx context.Context, s *boundSession) error {
		var err error
		folders, err = listFolders(ctx, s)
		return err
	})
	if err != nil {
		return nil, err
	}
	return folders, nil
}

// Move moves ids from source to destination.
func (c *Client) Move(ctx context.Context, ids []string, source, destination string) error {
	if err := validateIDs(ids); err != nil {
		return err
	}
	source = c.opts.Folders.Resolve(source)
	destination = c.opts.Folders.Resolve(destination)
	if source == destination {
		return invalidArgument("source and destination folder are both %q", source)
	}

	return c.withSession(ctx, instrumentation.OperationMove, source, func(ctx context.Context, s *boundSession) error {
		if err := s.selectFolder(ctx, source); err != nil {
			return err
		}
		folders, err := listFolders(ctx, s)
		if err != nil {
			return err
		}
		if !findFolder(folders, destination) {
			return wrap(ErrFolder, "move", destination, ids, errors.New("destination folder does not exist"))
		}
		return moveMessages(ctx, s, ids, source, destination)
	})
}

// Delete moves ids to the trash folder, or removes them for good when
// permanent is set.
func (c *Client) Delete(ctx context.Context, ids []string, folder string, permanent bool) error {
	if err := validateIDs(ids); err != nil {
		return err
	}
	folder = c.opts.Folders.Resolve(folder)

	return c.withSession(ctx, instrumentation.OperationDelete, folder, func(ctx context.Context, s *boundSession) error {
		if err := s.selectFolder(ctx, folder); err != nil {
			return err
		}
		if permanent {
			return expungeMessages(ctx, s, ids, folder)
		}

		folders, err := listFolders(ctx, s)
		if err != nil {
			return err
		}
		trash := resolveTrash(folders, c.opts.Folders.Trash)
		if trash == folder {
			return invalidArgument("messages are already in %q, use permanent delete", trash)
		}
		c.logger.Debug("moving to trash", logging.Folder(trash), logging.Count(len(ids)))
		return moveMessages(ctx, s, ids, folder, trash)
	})
}
