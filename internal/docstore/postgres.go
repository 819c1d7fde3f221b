package docstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultPostgresTable = "keyserver_documents"

// validIdentifier matches safe PostgreSQL identifiers (letters, digits, underscores).
var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithTableName sets the PostgreSQL table name. Default: "keyserver_documents".
func WithTableName(name string) PostgresOption {
	return func(s *PostgresStore) {
		s.tableName = name
	}
}

// PostgresStore implements Store on a single PostgreSQL table with one row
// per document. The version column guards every update.
type PostgresStore struct {
	pool      *pgxpool.Pool
	tableName string
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a PostgreSQL-backed document store.
// It auto-creates the table on initialization.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	s := &PostgresStore{
		pool:      pool,
		tableName: defaultPostgresTable,
	}
	for _, opt := range opts {
		opt(s)
	}
	if !validIdentifier.MatchString(s.tableName) {
		return nil, fmt.Errorf("invalid table name %q: must match [a-zA-Z_][a-zA-Z0-9_]*", s.tableName)
	}
	if err := s.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("create table: %w: %w", ErrUnavailable, err)
	}
	return s, nil
}

func (s *PostgresStore) ensureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			name       TEXT PRIMARY KEY,
			data       JSONB NOT NULL,
			version    BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`, s.tableName)
	_, err := s.pool.Exec(ctx, query)
	return err
}

func (s *PostgresStore) Load(ctx context.Context, name string) (*Document, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT data, version FROM %s WHERE name = $1`, s.tableName)

	doc := &Document{Name: name}
	var data []byte
	err := s.pool.QueryRow(ctx, query, name).Scan(&data, &doc.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return doc, nil
		}
		return nil, fmt.Errorf("load document: %w: %w", ErrUnavailable, err)
	}
	doc.Data = data
	return doc, nil
}

func (s *PostgresStore) Save(ctx context.Context, doc *Document) (int64, error) {
	if err := ValidateName(doc.Name); err != nil {
		return 0, err
	}
	next := doc.Version + 1

	var query string
	if doc.Version == 0 {
		query = fmt.Sprintf(`
			INSERT INTO %s (name, data, version, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (name) DO NOTHING
		`, s.tableName)
	} else {
		query = fmt.Sprintf(`
			UPDATE %s SET data = $2, version = $3, updated_at = NOW()
			WHERE name = $1 AND version = $4
		`, s.tableName)
	}

	args := []any{doc.Name, []byte(doc.Data), next}
	if doc.Version != 0 {
		args = append(args, doc.Version)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("save document: %w: %w", ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrVersionConflict
	}
	return next, nil
}

func (s *PostgresStore) Close(_ context.Context) error {
	return nil // caller manages the pgxpool.Pool lifecycle
}
