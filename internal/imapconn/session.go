package imapconn

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/responses"

	"github.com/teemow/mailmcp/internal/logging"
	"github.com/teemow/mailmcp/internal/mailbox"
)

// session adapts a logged-in go-imap client to mailbox.Session.
type session struct {
	c       *client.Client
	logger  *slog.Logger
	release func()
	once    sync.Once
}

var _ mailbox.Session = (*session)(nil)

func (s *session) Select(folder string) error {
	_, err := s.c.Select(folder, false)
	return err
}

func (s *session) Search(query string) ([]string, error) {
	args, err := searchArgs(query)
	if err != nil {
		return nil, err
	}
	res := &responses.Search{}
	if err := s.execute(&imap.Command{Name: "SEARCH", Arguments: args}, res); err != nil {
		return nil, err
	}

	sort.Slice(res.Ids, func(i, j int) bool { return res.Ids[i] < res.Ids[j] })
	ids := make([]string, len(res.Ids))
	for i, id := range res.Ids {
		ids[i] = strconv.FormatUint(uint64(id), 10)
	}
	return ids, nil
}

func (s *session) SearchPartial(window, query string) ([]string, error) {
	args, err := searchArgs(query)
	if err != nil {
		return nil, err
	}
	ret := []interface{}{
		imap.RawString("RETURN"),
		[]interface{}{imap.RawString("PARTIAL"), imap.RawString(window)},
	}
	h := &esearchHandler{}
	if err := s.execute(&imap.Command{Name: "SEARCH", Arguments: append(ret, args...)}, h); err != nil {
		return nil, err
	}
	if !h.seen {
		return nil, errors.New("server sent no ESEARCH response")
	}
	return h.ids, h.err
}

func (s *session) execute(cmd *imap.Command, h responses.Handler) error {
	status, err := s.c.Execute(cmd, h)
	if err != nil {
		return err
	}
	return status.Err()
}

func (s *session) Fetch(ids []string) ([]mailbox.RawMessage, error) {
	set, err := seqSet(ids)
	if err != nil {
		return nil, err
	}
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchItem("BODY.PEEK[]")}

	messages := make(chan *imap.Message, len(ids))
	done := make(chan error, 1)
	go func() {
		done <- s.c.Fetch(set, items, messages)
	}()

	var out []mailbox.RawMessage
	var readErr error
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		b, err := io.ReadAll(body)
		if err != nil && readErr == nil {
			readErr = fmt.Errorf("read message %d: %w", msg.SeqNum, err)
			continue
		}
		out = append(out, mailbox.RawMessage{
			ID:   strconv.FormatUint(uint64(msg.SeqNum), 10),
			Body: b,
		})
	}
	if err := <-done; err != nil {
		return nil, err
	}
	if readErr != nil {
		return nil, readErr
	}
	return out, nil
}

func (s *session) Copy(ids []string, destination string) error {
	set, err := seqSet(ids)
	if err != nil {
		return err
	}
	return s.c.Copy(set, destination)
}

func (s *session) StoreDeleted(ids []string) error {
	set, err := seqSet(ids)
	if err != nil {
		return err
	}
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	return s.c.Store(set, item, []interface{}{imap.DeletedFlag}, nil)
}

func (s *session) Expunge() error {
	return s.c.Expunge(nil)
}

func (s *session) List() ([]mailbox.MailboxEntry, error) {
	infos := make(chan *imap.MailboxInfo, 16)
	done := make(chan error, 1)
	go func() {
		done <- s.c.List("", "*", infos)
	}()

	var entries []mailbox.MailboxEntry
	for info := range infos {
		entries = append(entries, mailbox.MailboxEntry{
			Attributes: info.Attributes,
			Delimiter:  info.Delimiter,
			Name:       info.Name,
		})
	}
	if err := <-done; err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *session) Capability() ([]string, error) {
	caps, err := s.c.Capability()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(caps))
	for name, ok := range caps {
		if ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Close logs out and always drops the connection. The connection slot is
// returned exactly once.
func (s *session) Close() error {
	var err error
	s.once.Do(func() {
		defer s.release()
		if lerr := s.c.Logout(); lerr != nil && !errors.Is(lerr, client.ErrAlreadyLoggedOut) {
			err = fmt.Errorf("logout: %w", lerr)
			if terr := s.c.Terminate(); terr != nil {
				s.logger.Debug("terminate after failed logout", logging.Err(terr))
			}
		}
	})
	return err
}

func seqSet(ids []string) (*imap.SeqSet, error) {
	if len(ids) == 0 {
		return nil, errors.New("empty id list")
	}
	return imap.ParseSeqSet(strings.Join(ids, ","))
}
