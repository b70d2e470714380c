package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type PostgresSource struct {
	db         *sql.DB
	schemaOnce sync.Once
	schemaErr  error
}

func NewPostgres(ctx context.Context, dsn string) (*PostgresSource, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewPostgresSource(db), nil
}

func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresSource) ensureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("db is nil")
	}
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS catalog_entries (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_catalog_entries_name ON catalog_entries (lower(name));
`)
	})
	return s.schemaErr
}

func (s *PostgresSource) Upsert(ctx context.Context, entries ...Entry) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	for _, e := range entries {
		n, ok := normalizeEntry(e)
		if !ok {
			continue
		}
		_, err := s.db.ExecContext(ctx, `
INSERT INTO catalog_entries (id, name, description, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (id)
DO UPDATE SET name=EXCLUDED.name, description=EXCLUDED.description, updated_at=EXCLUDED.updated_at
`, n.ID, n.Name, n.Description)
		if err != nil {
			return fmt.Errorf("upsert catalog entry %s: %w", n.ID, err)
		}
	}
	return nil
}

func (s *PostgresSource) Get(ctx context.Context, id string) (Entry, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return Entry{}, err
	}
	var e Entry
	err := s.db.QueryRowContext(ctx, `SELECT id, name, description FROM catalog_entries WHERE id=$1`, strings.TrimSpace(id)).
		Scan(&e.ID, &e.Name, &e.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

func (s *PostgresSource) Search(ctx context.Context, query string, limit int) ([]Entry, int, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, 0, err
	}
	pattern := "%" + likeEscaper.Replace(strings.TrimSpace(query)) + "%"

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM catalog_entries WHERE name ILIKE $1 ESCAPE '\'`, pattern,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count catalog entries: %w", err)
	}

	q := `SELECT id, name, description FROM catalog_entries WHERE name ILIKE $1 ESCAPE '\' ORDER BY name, id`
	args := []any{pattern}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search catalog entries: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0, 16)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Name, &e.Description); err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
