package feed

import (
	"context"

	"github.com/leggettc18/chirp/procedure"
)

const (
	ProcGetUserByUsername = "profile.getUserByUsername"
	ProcGetPostsByUserID  = "posts.getPostsByUserId"
	ProcGetPostByID       = "posts.getById"
)

// UsernameInput is the input of profile.getUserByUsername.
type UsernameInput struct {
	Username string `json:"username"`
}

// UserIDInput is the input of posts.getPostsByUserId.
type UserIDInput struct {
	UserID string `json:"userId"`
}

// PostIDInput is the input of posts.getById.
type PostIDInput struct {
	ID string `json:"id"`
}

// RegisterProcedures registers the read procedures on router. They are
// read-only and take no caller identity, so page generation may run them.
func (f *Feed) RegisterProcedures(router *procedure.Router) {
	router.RegisterLocal(ProcGetUserByUsername, procedure.Typed(f.procGetUserByUsername))
	router.RegisterLocal(ProcGetPostsByUserID, procedure.Typed(f.procGetPostsByUserID))
	router.RegisterLocal(ProcGetPostByID, procedure.Typed(f.procGetPostByID))
}

func (f *Feed) procGetUserByUsername(ctx context.Context, in *UsernameInput) (*User, error) {
	u, err := f.GetUserByUsername(ctx, in.Username)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, &procedure.NotFoundError{Procedure: ProcGetUserByUsername, Message: "user not found"}
	}
	return u, nil
}

func (f *Feed) procGetPostsByUserID(ctx context.Context, in *UserIDInput) ([]*PostWithAuthor, error) {
	return f.ListPostsByUserID(ctx, in.UserID)
}

func (f *Feed) procGetPostByID(ctx context.Context, in *PostIDInput) (*PostWithAuthor, error) {
	p, err := f.GetPostByID(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &procedure.NotFoundError{Procedure: ProcGetPostByID, Message: "no post matching that id"}
	}
	return p, nil
}
