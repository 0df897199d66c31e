// Package store is the SQLite persistence layer behind feed: users and
// their posts.
package store

import (
	"database/sql"
	"time"

	"github.com/leggettc18/chirp/dbopen"
)

// Store is the feed database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the feed database at path and applies the schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	all := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)
	db, err := dbopen.Open(path, all...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
