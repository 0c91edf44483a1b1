package collections

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const timeFormat = time.RFC3339Nano

// SQLiteStore persists collections in a local SQLite database. Rows are
// stored as JSON arrays.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

type collectionRow struct {
	ID           string `db:"id"`
	Name         string `db:"name"`
	Columns      string `db:"columns"`
	Rows         string `db:"data_rows"`
	DTypes       string `db:"dtypes"`
	CreatedAt    string `db:"created_at"`
	LastModified string `db:"last_modified"`
}

type historyRow struct {
	Operation   string         `db:"operation"`
	Timestamp   string         `db:"timestamp"`
	Success     bool           `db:"success"`
	Output      string         `db:"output"`
	Error       string         `db:"error"`
	ShapeBefore sql.NullString `db:"shape_before"`
	ShapeAfter  sql.NullString `db:"shape_after"`
}

// NewSQLiteStore opens (or creates) the database at path, enables WAL mode
// and applies pending migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// One connection keeps the per-connection pragmas in effect.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) runMigrations() error {
	current := 0

	var tables int
	err := s.db.Get(&tables,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tables > 0 {
		if err := s.db.Get(&current, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Create(ctx context.Context, c *Collection) error {
	row, err := toRow(c)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO collections (id, name, columns, data_rows, dtypes, created_at, last_modified)
		VALUES (:id, :name, :columns, :data_rows, :dtypes, :created_at, :last_modified)`, row)
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", c.Metadata.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Collection, error) {
	var row collectionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, name, columns, data_rows, dtypes, created_at, last_modified
		FROM collections WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting collection %s: %w", id, err)
	}
	return fromRow(row)
}

func (s *SQLiteStore) Replace(ctx context.Context, c *Collection) error {
	row, err := toRow(c)
	if err != nil {
		return err
	}
	result, err := s.db.NamedExecContext(ctx, `
		UPDATE collections SET
			name = :name, columns = :columns, data_rows = :data_rows, dtypes = :dtypes,
			last_modified = :last_modified
		WHERE id = :id`, row)
	if err != nil {
		return fmt.Errorf("updating collection %s: %w", c.Metadata.ID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, c.Metadata.ID)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM collection_history WHERE collection_id = ?", id); err != nil {
		return fmt.Errorf("deleting history of %s: %w", id, err)
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM collections WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting collection %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return tx.Commit()
}

func (s *SQLiteStore) List(ctx context.Context) ([]Metadata, error) {
	var rows []collectionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, name, columns, '[]' AS data_rows, dtypes, created_at, last_modified
		FROM collections ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}

	// Shape needs the row count, which the listing query leaves out.
	var counts []struct {
		ID    string `db:"id"`
		Count int    `db:"n"`
	}
	err = s.db.SelectContext(ctx, &counts,
		"SELECT id, json_array_length(data_rows) AS n FROM collections ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("counting collection rows: %w", err)
	}
	sizes := make(map[string]int, len(counts))
	for _, c := range counts {
		sizes[c.ID] = c.Count
	}

	out := make([]Metadata, 0, len(rows))
	for _, r := range rows {
		c, err := fromRow(r)
		if err != nil {
			return nil, err
		}
		c.Metadata.Shape.Rows = sizes[r.ID]
		out = append(out, c.Metadata)
	}
	return out, nil
}

func (s *SQLiteStore) AppendHistory(ctx context.Context, id string, e HistoryEntry) error {
	before, err := shapeJSON(e.ShapeBefore)
	if err != nil {
		return err
	}
	after, err := shapeJSON(e.ShapeAfter)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO collection_history
			(collection_id, operation, timestamp, success, output, error, shape_before, shape_after)
		SELECT id, ?, ?, ?, ?, ?, ?, ? FROM collections WHERE id = ?`,
		e.Operation, e.Timestamp.UTC().Format(timeFormat), e.Success, e.Output, e.Error, before, after, id)
	if err != nil {
		return fmt.Errorf("recording history for %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) History(ctx context.Context, id string) ([]HistoryEntry, error) {
	var exists int
	if err := s.db.GetContext(ctx, &exists, "SELECT COUNT(*) FROM collections WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("checking collection %s: %w", id, err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	var rows []historyRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT operation, timestamp, success, output, error, shape_before, shape_after
		FROM collection_history WHERE collection_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("reading history of %s: %w", id, err)
	}

	out := make([]HistoryEntry, 0, len(rows))
	for _, r := range rows {
		ts, err := time.Parse(timeFormat, r.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("parsing history timestamp: %w", err)
		}
		e := HistoryEntry{
			Operation: r.Operation,
			Timestamp: ts,
			Success:   r.Success,
			Output:    r.Output,
			Error:     r.Error,
		}
		if e.ShapeBefore, err = parseShape(r.ShapeBefore); err != nil {
			return nil, err
		}
		if e.ShapeAfter, err = parseShape(r.ShapeAfter); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func toRow(c *Collection) (collectionRow, error) {
	columns, err := json.Marshal(c.Table.Columns)
	if err != nil {
		return collectionRow{}, fmt.Errorf("marshaling columns: %w", err)
	}
	rows := c.Table.Rows
	if rows == nil {
		rows = [][]string{}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return collectionRow{}, fmt.Errorf("marshaling rows: %w", err)
	}
	dtypes, err := json.Marshal(c.Metadata.DTypes)
	if err != nil {
		return collectionRow{}, fmt.Errorf("marshaling dtypes: %w", err)
	}
	return collectionRow{
		ID:           c.Metadata.ID,
		Name:         c.Metadata.Name,
		Columns:      string(columns),
		Rows:         string(data),
		DTypes:       string(dtypes),
		CreatedAt:    c.Metadata.CreatedAt.UTC().Format(timeFormat),
		LastModified: c.Metadata.LastModified.UTC().Format(timeFormat),
	}, nil
}

func fromRow(r collectionRow) (*Collection, error) {
	t := &Table{}
	if err := json.Unmarshal([]byte(r.Columns), &t.Columns); err != nil {
		return nil, fmt.Errorf("unmarshaling columns of %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.Rows), &t.Rows); err != nil {
		return nil, fmt.Errorf("unmarshaling rows of %s: %w", r.ID, err)
	}
	m := Metadata{ID: r.ID, Name: r.Name, Columns: append([]string(nil), t.Columns...)}
	if err := json.Unmarshal([]byte(r.DTypes), &m.DTypes); err != nil {
		return nil, fmt.Errorf("unmarshaling dtypes of %s: %w", r.ID, err)
	}
	var err error
	if m.CreatedAt, err = time.Parse(timeFormat, r.CreatedAt); err != nil {
		return nil, fmt.Errorf("parsing created_at of %s: %w", r.ID, err)
	}
	if m.LastModified, err = time.Parse(timeFormat, r.LastModified); err != nil {
		return nil, fmt.Errorf("parsing last_modified of %s: %w", r.ID, err)
	}
	m.Shape = t.Shape()
	return &Collection{Metadata: m, Table: t}, nil
}

func shapeJSON(s *Shape) (sql.NullString, error) {
	if s == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshaling shape: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func parseShape(v sql.NullString) (*Shape, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	var s Shape
	if err := json.Unmarshal([]byte(v.String), &s); err != nil {
		return nil, fmt.Errorf("unmarshaling shape: %w", err)
	}
	return &s, nil
}
