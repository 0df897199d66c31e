package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/leggettc18/chirp/dbopen"
)

// Post is one message of an author.
type Post struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// PostWithAuthor is how posts leave the feed: the post plus its author's
// public profile.
type PostWithAuthor struct {
	Post   Post `json:"post"`
	Author User `json:"author"`
}

const postColumns = `p.id, p.author_id, p.content, p.created_at,
	u.id, u.username, u.profile_image_url, u.created_at`

// CreatePost inserts p if its author exists, in one transaction, and
// returns the author. An unknown author yields nil, nil and no insert.
func (s *Store) CreatePost(ctx context.Context, p *Post) (*User, error) {
	var author *User
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		u, err := s.scanUser(tx.QueryRowContext(ctx, selectUserByID, p.AuthorID))
		if err != nil || u == nil {
			return err
		}
		if err := insertPost(ctx, tx, p); err != nil {
			return err
		}
		author = u
		return nil
	})
	return author, err
}

func insertPost(ctx context.Context, db execer, p *Post) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO posts (id, author_id, content, created_at) VALUES (?,?,?,?)`,
		p.ID, p.AuthorID, p.Content, millis(p.CreatedAt))
	return err
}

// GetPost returns nil, nil when no post has id.
func (s *Store) GetPost(ctx context.Context, id string) (*PostWithAuthor, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts p JOIN users u ON u.id = p.author_id WHERE p.id = ?`, id)
	pa, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return pa, err
}

// ListPostsByAuthor returns up to limit posts of authorID, newest first.
func (s *Store) ListPostsByAuthor(ctx context.Context, authorID string, limit int) ([]*PostWithAuthor, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+postColumns+` FROM posts p JOIN users u ON u.id = p.author_id
		 WHERE p.author_id = ? ORDER BY p.created_at DESC, p.id DESC LIMIT ?`, authorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*PostWithAuthor{}
	for rows.Next() {
		pa, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pa)
	}
	return out, rows.Err()
}

func scanPost(row scanner) (*PostWithAuthor, error) {
	pa := &PostWithAuthor{}
	var postCreated, userCreated int64
	err := row.Scan(&pa.Post.ID, &pa.Post.AuthorID, &pa.Post.Content, &postCreated,
		&pa.Author.ID, &pa.Author.Username, &pa.Author.ProfileImageURL, &userCreated)
	if err != nil {
		return nil, err
	}
	pa.Post.CreatedAt = fromMillis(postCreated)
	pa.Author.CreatedAt = fromMillis(userCreated)
	return pa, nil
}
