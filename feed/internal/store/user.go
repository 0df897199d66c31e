package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/leggettc18/chirp/dbopen"
)

// User is the public profile of an author.
type User struct {
	ID              string    `json:"id"`
	Username        string    `json:"username"`
	ProfileImageURL string    `json:"profileImageUrl"`
	CreatedAt       time.Time `json:"createdAt"`
}

const selectUserByID = `SELECT id, username, profile_image_url, created_at FROM users WHERE id = ?`

// CreateUser inserts u unless its username is taken, in one transaction.
// It reports false when the username already exists.
func (s *Store) CreateUser(ctx context.Context, u *User) (bool, error) {
	created := false
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		existing, err := s.scanUser(tx.QueryRowContext(ctx,
			`SELECT id, username, profile_image_url, created_at FROM users WHERE username = ?`, u.Username))
		if err != nil || existing != nil {
			return err
		}
		if err := insertUser(ctx, tx, u); err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}

func insertUser(ctx context.Context, db execer, u *User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO users (id, username, profile_image_url, created_at) VALUES (?,?,?,?)`,
		u.ID, u.Username, u.ProfileImageURL, millis(u.CreatedAt))
	return err
}

// GetUser returns nil, nil when no user has id.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	return s.scanUser(s.DB.QueryRowContext(ctx, selectUserByID, id))
}

// GetUserByUsername returns nil, nil when the username is unknown.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.scanUser(s.DB.QueryRowContext(ctx,
		`SELECT id, username, profile_image_url, created_at FROM users WHERE username = ?`, username))
}

// ListUsers returns every user ordered by username.
func (s *Store) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, username, profile_image_url, created_at FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		u, err := s.scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) scanUser(row scanner) (*User, error) {
	u := &User{}
	var created int64
	err := row.Scan(&u.ID, &u.Username, &u.ProfileImageURL, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = fromMillis(created)
	return u, nil
}
