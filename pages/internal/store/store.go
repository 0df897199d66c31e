// Package store persists built pages so a restart does not regenerate them.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Schema holds one row per built path.
const Schema = `
CREATE TABLE IF NOT EXISTS pages (
    path          TEXT PRIMARY KEY,
    template      TEXT NOT NULL,
    status        INTEGER NOT NULL,
    html          BLOB NOT NULL,
    payload       BLOB,
    generation_id TEXT NOT NULL,
    generated_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pages_template ON pages(template);
`

// Row is a persisted page.
type Row struct {
	Path         string
	Template     string
	Status       int
	HTML         []byte
	Payload      []byte
	GenerationID string
	GeneratedAt  time.Time
}

type Store struct {
	db *sql.DB
}

// New applies the schema to db.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("pages store: schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Put(ctx context.Context, r *Row) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pages (path, template, status, html, payload, generation_id, generated_at)
		 VALUES (?,?,?,?,?,?,?)
		 ON CONFLICT(path) DO UPDATE SET
		   template=excluded.template, status=excluded.status, html=excluded.html,
		   payload=excluded.payload, generation_id=excluded.generation_id,
		   generated_at=excluded.generated_at`,
		r.Path, r.Template, r.Status, r.HTML, r.Payload, r.GenerationID, r.GeneratedAt.UnixMilli())
	return err
}

// Get returns nil, nil when path was never built.
func (s *Store) Get(ctx context.Context, path string) (*Row, error) {
	r, err := scanRow(s.db.QueryRowContext(ctx,
		`SELECT path, template, status, html, payload, generation_id, generated_at
		 FROM pages WHERE path = ?`, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (s *Store) Delete(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pages WHERE path = ?`, path)
	return err
}

// Paths lists every persisted path with its template, without the bodies.
func (s *Store) Paths(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path, template FROM pages`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var path, tmpl string
		if err := rows.Scan(&path, &tmpl); err != nil {
			return nil, err
		}
		out[path] = tmpl
	}
	return out, rows.Err()
}

func scanRow(row *sql.Row) (*Row, error) {
	var r Row
	var ms int64
	if err := row.Scan(&r.Path, &r.Template, &r.Status, &r.HTML, &r.Payload, &r.GenerationID, &ms); err != nil {
		return nil, err
	}
	r.GeneratedAt = time.UnixMilli(ms).UTC()
	return &r, nil
}
