package feed

import "github.com/leggettc18/chirp/feed/internal/store"

type (
	User           = store.User
	Post           = store.Post
	PostWithAuthor = store.PostWithAuthor
)
