package collections

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned for unknown collection ids.
	ErrNotFound = errors.New("collection not found")
	// ErrInvalidTable is returned for malformed tables.
	ErrInvalidTable = errors.New("invalid table")
	// ErrInvalidOperation is returned for pipelines that cannot be parsed
	// or applied.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrIncompatible is returned when combining tables with different
	// columns.
	ErrIncompatible = errors.New("incompatible collections")
	// ErrUnsupportedFormat is returned by Fetch for unknown formats.
	ErrUnsupportedFormat = errors.New("unsupported format")
)

// Metadata describes a collection without its rows.
type Metadata struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Shape        Shape             `json:"shape"`
	Columns      []string          `json:"columns"`
	DTypes       map[string]string `json:"dtypes"`
	CreatedAt    time.Time         `json:"created_at"`
	LastModified time.Time         `json:"last_modified"`
}

// HistoryEntry records one attempted change to a collection.
type HistoryEntry struct {
	Operation   string    `json:"operation"`
	Timestamp   time.Time `json:"timestamp"`
	Success     bool      `json:"success"`
	Output      string    `json:"output,omitempty"`
	Error       string    `json:"error,omitempty"`
	ShapeBefore *Shape    `json:"shape_before,omitempty"`
	ShapeAfter  *Shape    `json:"shape_after,omitempty"`
}

// Collection is a stored table with its metadata.
type Collection struct {
	Metadata Metadata
	Table    *Table
}

// Store persists collections and their history. Implementations must be
// safe for concurrent use and must return copies that callers may modify.
type Store interface {
	Create(ctx context.Context, c *Collection) error
	Get(ctx context.Context, id string) (*Collection, error)
	// Replace overwrites the table and metadata of an existing collection.
	Replace(ctx context.Context, c *Collection) error
	Delete(ctx context.Context, id string) error
	// List returns metadata in creation order.
	List(ctx context.Context) ([]Metadata, error)
	AppendHistory(ctx context.Context, id string, entry HistoryEntry) error
	History(ctx context.Context, id string) ([]HistoryEntry, error)
	Close() error
}

func cloneMetadata(m Metadata) Metadata {
	m.Columns = append([]string(nil), m.Columns...)
	dtypes := make(map[string]string, len(m.DTypes))
	for k, v := range m.DTypes {
		dtypes[k] = v
	}
	m.DTypes = dtypes
	return m
}
