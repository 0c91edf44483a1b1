package mailbox

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

type fakeMessage struct {
	date    time.Time
	from    string
	subject string
	body    string
}

// fakeStore is the server side shared by every session a fakeProvider opens.
type fakeStore struct {
	mu sync.Mutex

	folders map[string][]fakeMessage
	attrs   map[string][]string
	caps    []string

	openErr error
	// openDelay makes Open take this long, ignoring ctx.
	openDelay  time.Duration
	partialErr error
	copyErr    error
	storeErr   error
	// block makes Search hang on these queries until release is closed.
	block   map[string]bool
	release chan struct{}

	opens    int
	closes   int
	searches []string
	partials []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		folders: map[string][]fakeMessage{
			"INBOX":             nil,
			"[Gmail]/Sent Mail": nil,
			"[Gmail]/Trash":     nil,
			"Archive":           nil,
		},
		attrs: map[string][]string{
			"[Gmail]/Sent Mail": {`\HasNoChildren`, `\Sent`},
			"[Gmail]/Trash":     {`\HasNoChildren`, `\Trash`},
		},
		caps:    []string{"IMAP4rev1"},
		block:   map[string]bool{},
		release: make(chan struct{}),
	}
}

// seedDays adds one inbox message per day starting at first, subjects
// "Message 1".."Message n".
func (f *fakeStore) seedDays(first string, n int) {
	day, err := time.Parse(DateLayout, first)
	if err != nil {
		panic(err)
	}
	for i := 1; i <= n; i++ {
		f.folders["INBOX"] = append(f.folders["INBOX"], fakeMessage{
			date:    day.Add(10 * time.Hour),
			from:    fmt.Sprintf("sender%d@example.com", i),
			subject: fmt.Sprintf("Message %d", i),
			body:    fmt.Sprintf("Body of message %d", i),
		})
		day = day.AddDate(0, 0, 1)
	}
}

func (f *fakeStore) count(folder string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.folders[folder])
}

func (f *fakeStore) sessions() (opens, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens, f.closes
}

type fakeProvider struct {
	store *fakeStore
}

func (p *fakeProvider) Open(ctx context.Context) (Session, error) {
	p.store.mu.Lock()
	delay := p.store.openDelay
	p.store.mu.Unlock()
	time.Sleep(delay)

	p.store.mu.Lock()
	defer p.store.mu.Unlock()
	if p.store.openErr != nil {
		return nil, p.store.openErr
	}
	p.store.opens++
	return &fakeSession{store: p.store, deleted: map[int]bool{}}, nil
}

type fakeSession struct {
	store    *fakeStore
	selected string
	deleted  map[int]bool
}

func (s *fakeSession) Select(folder string) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	if _, ok := s.store.folders[folder]; !ok {
		return fmt.Errorf("NO [NONEXISTENT] unknown mailbox %s", folder)
	}
	s.selected = folder
	s.deleted = map[int]bool{}
	return nil
}

func (s *fakeSession) Search(query string) ([]string, error) {
	s.store.mu.Lock()
	blocked := s.store.block[query]
	s.store.searches = append(s.store.searches, query)
	s.store.mu.Unlock()
	if blocked {
		<-s.store.release
		return nil, errors.New("connection reset")
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	return s.match(query)
}

func (s *fakeSession) match(query string) ([]string, error) {
	pred, err := parseFakeQuery(query)
	if err != nil {
		return nil, err
	}
	ids := []string{}
	for i, m := range s.store.folders[s.selected] {
		if pred(m) {
			ids = append(ids, strconv.Itoa(i+1))
		}
	}
	return ids, nil
}

func (s *fakeSession) SearchPartial(window, query string) ([]string, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.store.partials = append(s.store.partials, window)
	if s.store.partialErr != nil {
		return nil, s.store.partialErr
	}

	all, err := s.match(query)
	if err != nil {
		return nil, err
	}
	lo, hi, err := partialBounds(window, len(all))
	if err != nil {
		return nil, err
	}
	page := []string{}
	for pos := lo; pos <= hi && pos <= len(all); pos++ {
		if pos >= 1 {
			page = append(page, all[pos-1])
		}
	}
	return page, nil
}

// partialBounds converts a PARTIAL range into ascending 1-based positions.
func partialBounds(window string, n int) (int, int, error) {
	a, b, ok := strings.Cut(window, ":")
	if !ok {
		return 0, 0, fmt.Errorf("bad window %q", window)
	}
	lo, err := strconv.Atoi(a)
	if err != nil {
		return 0, 0, err
	}
	hi, err := strconv.Atoi(b)
	if err != nil {
		return 0, 0, err
	}
	if lo < 0 {
		lo, hi = n+1+hi, n+1+lo
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo, hi, nil
}

func (s *fakeSession) Fetch(ids []string) ([]RawMessage, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	msgs := s.store.folders[s.selected]
	var out []RawMessage
	// Answer in reverse order; callers must not rely on server order.
	for i := len(ids) - 1; i >= 0; i-- {
		n, err := strconv.Atoi(ids[i])
		if err != nil {
			return nil, err
		}
		if n < 1 || n > len(msgs) {
			continue
		}
		out = append(out, RawMessage{ID: ids[i], Body: rfc822(msgs[n-1])})
	}
	return out, nil
}

func rfc822(m fakeMessage) []byte {
	return []byte("From: " + m.from + "\r\n" +
		"To: me@example.com\r\n" +
		"Subject: " + m.subject + "\r\n" +
		"Date: " + m.date.Format(time.RFC1123Z) + "\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		m.body + "\r\n")
}

func (s *fakeSession) Copy(ids []string, destination string) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	if s.store.copyErr != nil {
		return s.store.copyErr
	}
	if _, ok := s.store.folders[destination]; !ok {
		return fmt.Errorf("NO [TRYCREATE] no mailbox %s", destination)
	}
	src := s.store.folders[s.selected]
	for _, id := range ids {
		n, _ := strconv.Atoi(id)
		if n >= 1 && n <= len(src) {
			s.store.folders[destination] = append(s.store.folders[destination], src[n-1])
		}
	}
	return nil
}

func (s *fakeSession) StoreDeleted(ids []string) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	if s.store.storeErr != nil {
		return s.store.storeErr
	}
	for _, id := range ids {
		n, _ := strconv.Atoi(id)
		s.deleted[n] = true
	}
	return nil
}

func (s *fakeSession) Expunge() error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	var kept []fakeMessage
	for i, m := range s.store.folders[s.selected] {
		if !s.deleted[i+1] {
			kept = append(kept, m)
		}
	}
	s.store.folders[s.selected] = kept
	s.deleted = map[int]bool{}
	return nil
}

func (s *fakeSession) List() ([]MailboxEntry, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	var entries []MailboxEntry
	for name := range s.store.folders {
		entries = append(entries, MailboxEntry{
			Attributes: s.store.attrs[name],
			Delimiter:  "/",
			Name:       name,
		})
	}
	return entries, nil
}

func (s *fakeSession) Capability() ([]string, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	return s.store.caps, nil
}

func (s *fakeSession) Close() error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.store.closes++
	return nil
}

// parseFakeQuery understands the subset of SEARCH that Compile and dayQuery
// emit. Clauses are ANDed.
func parseFakeQuery(query string) (func(fakeMessage) bool, error) {
	query = strings.TrimPrefix(query, "CHARSET UTF-8 ")
	query = strings.TrimSuffix(strings.TrimPrefix(query, "("), ")")
	tokens, err := tokenize(query)
	if err != nil {
		return nil, err
	}

	var preds []func(fakeMessage) bool
	for i := 0; i < len(tokens); i++ {
		key := strings.ToUpper(tokens[i])
		if key == "ALL" {
			continue
		}
		if i+1 >= len(tokens) {
			return nil, fmt.Errorf("missing argument for %s", key)
		}
		arg := tokens[i+1]
		i++
		switch key {
		case "ON", "SINCE", "BEFORE":
			d, err := time.Parse(imapDateLayout, arg)
			if err != nil {
				return nil, err
			}
			preds = append(preds, datePredicate(key, d))
		case "SUBJECT":
			preds = append(preds, func(m fakeMessage) bool { return containsFold(m.subject, arg) })
		case "FROM":
			preds = append(preds, func(m fakeMessage) bool { return containsFold(m.from, arg) })
		case "BODY":
			preds = append(preds, func(m fakeMessage) bool { return containsFold(m.body, arg) })
		default:
			return nil, fmt.Errorf("unsupported search key %s", key)
		}
	}
	return func(m fakeMessage) bool {
		for _, p := range preds {
			if !p(m) {
				return false
			}
		}
		return true
	}, nil
}

func datePredicate(key string, d time.Time) func(fakeMessage) bool {
	return func(m fakeMessage) bool {
		day := m.date.Truncate(24 * time.Hour)
		switch key {
		case "ON":
			return day.Equal(d)
		case "SINCE":
			return !day.Before(d)
		default:
			return day.Before(d)
		}
	}
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func tokenize(s string) ([]string, error) {
	var tokens []string
	for i := 0; i < len(s); {
		switch {
		case s[i] == ' ':
			i++
		case s[i] == '"':
			var sb strings.Builder
			i++
			for ; i < len(s) && s[i] != '"'; i++ {
				if s[i] == '\\' && i+1 < len(s) {
					i++
				}
				sb.WriteByte(s[i])
			}
			if i >= len(s) {
				return nil, fmt.Errorf("unterminated string in %q", s)
			}
			i++
			tokens = append(tokens, sb.String())
		default:
			j := i
			for j < len(s) && s[j] != ' ' {
				j++
			}
			tokens = append(tokens, s[i:j])
			i = j
		}
	}
	return tokens, nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []Message
	err  error
	// block makes Send wait for ctx; returned records that it did.
	block    bool
	returned bool
}

func (s *fakeSender) Send(ctx context.Context, msg Message) error {
	if s.block {
		<-ctx.Done()
		s.mu.Lock()
		s.returned = true
		s.mu.Unlock()
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

type strategyEvent struct {
	strategy string
	outcome  string
}

type fakeRecorder struct {
	mu         sync.Mutex
	strategies []strategyEvent
	operations []string
}

func (r *fakeRecorder) RecordSearchStrategy(ctx context.Context, strategy, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies = append(r.strategies, strategyEvent{strategy, outcome})
}

func (r *fakeRecorder) RecordMailboxOperation(ctx context.Context, operation, folder, status string, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operations = append(r.operations, operation+":"+status)
}
