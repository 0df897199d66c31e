package pages

import (
	"context"
	"strings"

	"github.com/leggettc18/chirp/feed"
	"github.com/leggettc18/chirp/prefetch"
	"github.com/leggettc18/chirp/query"
	"github.com/leggettc18/chirp/render"
	"github.com/leggettc18/chirp/wire"
)

// ProfileTemplate serves /@<username>. The feed is prefetched only when the
// user exists.
func ProfileTemplate() *Template {
	return &Template{
		Name:      "profile",
		Pattern:   "/{slug}",
		Param:     "slug",
		Normalize: func(s string) string { return strings.TrimPrefix(s, "@") },
		Fallback:  FallbackBlocking,
		Prefetch:  prefetchProfile,
		Render:    render.Profile,
	}
}

// PostTemplate serves /post/<id>.
func PostTemplate() *Template {
	return &Template{
		Name:     "post",
		Pattern:  "/post/{id}",
		Param:    "id",
		Fallback: FallbackBlocking,
		Prefetch: func(ctx context.Context, h *prefetch.Helper, id string) error {
			_, err := h.Prefetch(ctx, prefetch.Descriptor{
				Procedure: feed.ProcGetPostByID,
				Input:     feed.PostIDInput{ID: id},
			})
			return err
		},
		Render: render.Post,
	}
}

func prefetchProfile(ctx context.Context, h *prefetch.Helper, username string) error {
	e, err := h.Prefetch(ctx, prefetch.Descriptor{
		Procedure: feed.ProcGetUserByUsername,
		Input:     feed.UsernameInput{Username: username},
	})
	if err != nil || e.Status != query.StatusSuccess {
		return err
	}
	var u feed.User
	if err := wire.Convert(e.Data, &u); err != nil {
		return err
	}
	_, err = h.Prefetch(ctx, prefetch.Descriptor{
		Procedure: feed.ProcGetPostsByUserID,
		Input:     feed.UserIDInput{UserID: u.ID},
	})
	return err
}
