package collections

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/mailmcp/internal/logging"
)

// Backend names used as metric labels.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Recorder receives one event per service call.
type Recorder interface {
	RecordCollectionOperation(ctx context.Context, backend, operation, status string)
}

// Options configures a Service. Every field is optional.
type Options struct {
	Logger   logging.Logger
	Recorder Recorder
	// Backend labels metrics. Defaults to BackendMemory.
	Backend string
	Now     func() time.Time
}

// Service implements the collection operations on top of a Store.
type Service struct {
	store    Store
	logger   logging.Logger
	recorder Recorder
	backend  string
	now      func() time.Time

	// mu serializes read-modify-write cycles.
	mu sync.Mutex
}

// FetchResult is returned by Fetch.
type FetchResult struct {
	Metadata  Metadata    `json:"metadata"`
	Data      interface{} `json:"data"`
	Truncated bool        `json:"truncated"`
	TotalRows int         `json:"total_rows"`
}

// PreviewResult is returned by Preview.
type PreviewResult struct {
	Metadata Metadata          `json:"metadata"`
	Preview  []object          `json:"preview"`
	DTypes   map[string]string `json:"dtypes"`
}

// NewService returns a Service backed by store.
func NewService(store Store, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = logging.DefaultLogger()
	}
	if opts.Backend == "" {
		opts.Backend = BackendMemory
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:    store,
		logger:   opts.Logger,
		recorder: opts.Recorder,
		backend:  opts.Backend,
		now:      opts.Now,
	}
}

// Open returns a Service over SQLite when path is set and over memory
// otherwise.
func Open(path string, opts Options) (*Service, error) {
	if path == "" {
		opts.Backend = BackendMemory
		return NewService(NewMemoryStore(), opts), nil
	}
	store, err := NewSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	opts.Backend = BackendSQLite
	return NewService(store, opts), nil
}

// Close releases the underlying store.
func (s *Service) Close() error {
	return s.store.Close()
}

func (s *Service) record(ctx context.Context, operation string, err error) {
	if s.recorder == nil {
		return
	}
	status := logging.StatusSuccess
	if err != nil {
		status = logging.StatusError
	}
	s.recorder.RecordCollectionOperation(ctx, s.backend, operation, status)
}

// Create stores t as a new collection. An empty name becomes
// "collection_" followed by the first eight characters of the id.
func (s *Service) Create(ctx context.Context, name string, t *Table) (meta Metadata, err error) {
	defer func() { s.record(ctx, "create", err) }()

	if err := t.validate(); err != nil {
		return Metadata{}, err
	}
	id := uuid.NewString()
	if name == "" {
		name = "collection_" + id[:8]
	}
	now := s.now()
	c := &Collection{
		Metadata: Metadata{
			ID:           id,
			Name:         name,
			Shape:        t.Shape(),
			Columns:      append([]string(nil), t.Columns...),
			DTypes:       t.DTypes(),
			CreatedAt:    now,
			LastModified: now,
		},
		Table: t,
	}
	if err := s.store.Create(ctx, c); err != nil {
		return Metadata{}, err
	}
	s.logger.Info("created collection", "collection_id", id, "rows", c.Metadata.Shape.Rows)
	return cloneMetadata(c.Metadata), nil
}

// Update applies a pipeline to the collection. The attempt is recorded in
// the history whether or not it succeeds; a failed pipeline leaves the data
// unchanged.
func (s *Service) Update(ctx context.Context, id, operation string) (meta Metadata, err error) {
	defer func() { s.record(ctx, "update", err) }()
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.store.Get(ctx, id)
	if err != nil {
		return Metadata{}, err
	}
	before := c.Table.Shape()
	logger := s.logger.With("collection_id", id)

	result, err := applyOperation(operation, c.Table)
	if err != nil {
		s.appendHistory(ctx, id, HistoryEntry{
			Operation:   operation,
			Timestamp:   s.now(),
			Error:       err.Error(),
			ShapeBefore: &before,
		})
		logger.Warn("collection update failed", "operation", operation, "error", err.Error())
		return Metadata{}, fmt.Errorf("operation failed: %w", err)
	}

	after := result.Shape()
	c.Table = result
	s.refresh(&c.Metadata, result)
	if err := s.store.Replace(ctx, c); err != nil {
		return Metadata{}, err
	}
	s.appendHistory(ctx, id, HistoryEntry{
		Operation:   operation,
		Timestamp:   s.now(),
		Success:     true,
		Output:      fmt.Sprintf("%d rows -> %d rows", before.Rows, after.Rows),
		ShapeBefore: &before,
		ShapeAfter:  &after,
	})
	logger.Info("updated collection", "rows_before", before.Rows, "rows_after", after.Rows)
	return cloneMetadata(c.Metadata), nil
}

func applyOperation(operation string, t *Table) (*Table, error) {
	p, err := ParsePipeline(operation)
	if err != nil {
		return nil, err
	}
	return p.Apply(t)
}

func (s *Service) refresh(m *Metadata, t *Table) {
	m.Shape = t.Shape()
	m.Columns = append([]string(nil), t.Columns...)
	m.DTypes = t.DTypes()
	m.LastModified = s.now()
}

// appendHistory logs instead of failing; history is best effort once the
// data change itself has been stored.
func (s *Service) appendHistory(ctx context.Context, id string, e HistoryEntry) {
	if err := s.store.AppendHistory(ctx, id, e); err != nil {
		s.logger.Error("failed to record collection history", "collection_id", id, "error", err.Error())
	}
}

// Fetch returns up to limit rows in the requested format. A non-positive
// limit returns every row.
func (s *Service) Fetch(ctx context.Context, id string, limit int, format string) (res *FetchResult, err error) {
	defer func() { s.record(ctx, "fetch", err) }()

	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	total := len(c.Table.Rows)
	data, err := render(c.Table.Head(limit), format)
	if err != nil {
		return nil, err
	}
	return &FetchResult{
		Metadata:  c.Metadata,
		Data:      data,
		Truncated: limit > 0 && total > limit,
		TotalRows: total,
	}, nil
}

// Preview returns metadata, column types and the first rows.
func (s *Service) Preview(ctx context.Context, id string, rows int) (res *PreviewResult, err error) {
	defer func() { s.record(ctx, "preview", err) }()

	if rows < 0 {
		return nil, fmt.Errorf("rows cannot be negative")
	}
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	head := c.Table.Head(rows)
	if rows == 0 {
		head.Rows = nil
	}
	return &PreviewResult{
		Metadata: c.Metadata,
		Preview:  records(head),
		DTypes:   c.Table.DTypes(),
	}, nil
}

// Combine appends the rows of source to target. Both must have the same
// columns in the same order. Source is left unchanged.
func (s *Service) Combine(ctx context.Context, targetID, sourceID string) (meta Metadata, err error) {
	defer func() { s.record(ctx, "combine", err) }()
	s.mu.Lock()
	defer s.mu.Unlock()

	target, err := s.store.Get(ctx, targetID)
	if err != nil {
		return Metadata{}, fmt.Errorf("target %w", err)
	}
	source, err := s.store.Get(ctx, sourceID)
	if err != nil {
		return Metadata{}, fmt.Errorf("source %w", err)
	}

	operation := "combine with collection " + sourceID
	before := target.Table.Shape()
	if err := sameColumns(target.Table, source.Table); err != nil {
		s.appendHistory(ctx, targetID, HistoryEntry{
			Operation:   operation,
			Timestamp:   s.now(),
			Error:       err.Error(),
			ShapeBefore: &before,
		})
		return Metadata{}, err
	}

	target.Table.Rows = append(target.Table.Rows, source.Table.Rows...)
	after := target.Table.Shape()
	s.refresh(&target.Metadata, target.Table)
	if err := s.store.Replace(ctx, target); err != nil {
		return Metadata{}, err
	}
	s.appendHistory(ctx, targetID, HistoryEntry{
		Operation:   operation,
		Timestamp:   s.now(),
		Success:     true,
		Output:      fmt.Sprintf("Combined %d rows from source collection", len(source.Table.Rows)),
		ShapeBefore: &before,
		ShapeAfter:  &after,
	})
	s.logger.Info("combined collections", "target", targetID, "source", sourceID, "rows", after.Rows)
	return cloneMetadata(target.Metadata), nil
}

func sameColumns(target, source *Table) error {
	if len(target.Columns) != len(source.Columns) {
		return fmt.Errorf("%w: target has %d columns, source has %d",
			ErrIncompatible, len(target.Columns), len(source.Columns))
	}
	for i := range target.Columns {
		if target.Columns[i] != source.Columns[i] {
			return fmt.Errorf("%w: target has columns %v, source has %v",
				ErrIncompatible, target.Columns, source.Columns)
		}
	}
	return nil
}

// List returns every collection's metadata in creation order.
func (s *Service) List(ctx context.Context) (list []Metadata, err error) {
	defer func() { s.record(ctx, "list", err) }()
	return s.store.List(ctx)
}

// History returns the recorded operations of a collection, oldest first.
func (s *Service) History(ctx context.Context, id string) (h []HistoryEntry, err error) {
	defer func() { s.record(ctx, "history", err) }()
	return s.store.History(ctx, id)
}

// Delete removes a collection and its history.
func (s *Service) Delete(ctx context.Context, id string) (err error) {
	defer func() { s.record(ctx, "delete", err) }()
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("deleted collection", "collection_id", id)
	return nil
}

// IsNotFound reports whether err refers to a missing collection.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
