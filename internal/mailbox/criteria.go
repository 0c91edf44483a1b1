package mailbox

import (
	"strings"
	"time"
)

// Direction controls the order used before a result window is cut.
type Direction string

const (
	DirectionNewest Direction = "newest"
	DirectionOldest Direction = "oldest"
)

const (
	// DefaultMaxResults is the page size used when none is given.
	DefaultMaxResults = 100
	// MaxResultsLimit is the largest accepted page size.
	MaxResultsLimit = 1000

	// DateLayout is the accepted input format for dates.
	DateLayout = "2006-01-02"

	FolderInbox = "inbox"
	FolderSent  = "sent"
)

// SearchCriteria describes one search request. Values are only obtainable
// through NewSearchCriteria and are therefore always valid.
type SearchCriteria struct {
	folder     string
	startDate  time.Time
	endDate    time.Time
	hasStart   bool
	hasEnd     bool
	subject    string
	sender     string
	body       string
	maxResults int
	startFrom  int
	direction  Direction
}

// CriteriaOption configures a SearchCriteria under construction.
type CriteriaOption func(*criteriaBuilder)

type criteriaBuilder struct {
	c         SearchCriteria
	startDate string
	endDate   string
}

// WithStartDate sets the inclusive lower date bound (YYYY-MM-DD).
func WithStartDate(date string) CriteriaOption {
	return func(b *criteriaBuilder) { b.startDate = date }
}

// WithEndDate sets the inclusive upper date bound (YYYY-MM-DD).
func WithEndDate(date string) CriteriaOption {
	return func(b *criteriaBuilder) { b.endDate = date }
}

// WithSubject filters on a subject substring.
func WithSubject(s string) CriteriaOption {
	return func(b *criteriaBuilder) { b.c.subject = s }
}

// WithSender filters on a From substring.
func WithSender(s string) CriteriaOption {
	return func(b *criteriaBuilder) { b.c.sender = s }
}

// WithBody filters on a body substring.
func WithBody(s string) CriteriaOption {
	return func(b *criteriaBuilder) { b.c.body = s }
}

// WithMaxResults sets the page size.
func WithMaxResults(n int) CriteriaOption {
	return func(b *criteriaBuilder) { b.c.maxResults = n }
}

// WithStartFrom sets the zero-based page offset.
func WithStartFrom(n int) CriteriaOption {
	return func(b *criteriaBuilder) { b.c.startFrom = n }
}

// WithDirection sets the ordering applied before slicing.
func WithDirection(d Direction) CriteriaOption {
	return func(b *criteriaBuilder) { b.c.direction = d }
}

// NewSearchCriteria validates and builds a SearchCriteria. An empty folder
// means the inbox.
func NewSearchCriteria(folder string, opts ...CriteriaOption) (SearchCriteria, error) {
	b := &criteriaBuilder{c: SearchCriteria{
		folder:     strings.TrimSpace(folder),
		maxResults: DefaultMaxResults,
		direction:  DirectionNewest,
	}}
	for _, opt := range opts {
		opt(b)
	}
	if b.c.folder == "" {
		b.c.folder = FolderInbox
	}

	if b.startDate != "" {
		t, err := ParseDate(b.startDate)
		if err != nil {
			return SearchCriteria{}, err
		}
		b.c.startDate, b.c.hasStart = t, true
	}
	if b.endDate != "" {
		t, err := ParseDate(b.endDate)
		if err != nil {
			return SearchCriteria{}, err
		}
		b.c.endDate, b.c.hasEnd = t, true
	}
	if b.c.maxResults <= 0 || b.c.maxResults > MaxResultsLimit {
		return SearchCriteria{}, invalidArgument("max_results must be between 1 and %d, got %d", MaxResultsLimit, b.c.maxResults)
	}
	if b.c.startFrom < 0 {
		return SearchCriteria{}, invalidArgument("start_from must be >= 0, got %d", b.c.startFrom)
	}

	switch Direction(strings.ToLower(string(b.c.direction))) {
	case DirectionNewest:
		b.c.direction = DirectionNewest
	case DirectionOldest:
		b.c.direction = DirectionOldest
	default:
		return SearchCriteria{}, invalidArgument("direction must be 'newest' or 'oldest', got %q", b.c.direction)
	}

	return b.c, nil
}

// ParseDate parses a YYYY-MM-DD calendar date at midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, invalidArgument("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

func (c SearchCriteria) Folder() string       { return c.folder }
func (c SearchCriteria) Subject() string      { return c.subject }
func (c SearchCriteria) Sender() string       { return c.sender }
func (c SearchCriteria) Body() string         { return c.body }
func (c SearchCriteria) MaxResults() int      { return c.maxResults }
func (c SearchCriteria) StartFrom() int       { return c.startFrom }
func (c SearchCriteria) Direction() Direction { return c.direction }

// StartDate returns the lower date bound and whether one was given.
func (c SearchCriteria) StartDate() (time.Time, bool) { return c.startDate, c.hasStart }

// EndDate returns the upper date bound and whether one was given.
func (c SearchCriteria) EndDate() (time.Time, bool) { return c.endDate, c.hasEnd }

// HasDates reports whether either date bound is set.
func (c SearchCriteria) HasDates() bool { return c.hasStart || c.hasEnd }

// withStartDate returns a copy with the lower bound replaced.
func (c SearchCriteria) withStartDate(t time.Time) SearchCriteria {
	c.startDate, c.hasStart = t, true
	return c
}
