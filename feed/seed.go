package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML layout accepted by Seed:
//
//	users:
//	  - username: alice
//	    profile_image_url: https://example.com/alice.png
//	    posts:
//	      - content: hello
//	        created_at: 2024-03-01T10:00:00Z
type SeedFile struct {
	Users []SeedUser `yaml:"users"`
}

type SeedUser struct {
	Username        string     `yaml:"username"`
	ProfileImageURL string     `yaml:"profile_image_url"`
	Posts           []SeedPost `yaml:"posts"`
}

type SeedPost struct {
	Content   string    `yaml:"content"`
	CreatedAt time.Time `yaml:"created_at"`
}

// SeedResult counts what Seed created.
type SeedResult struct {
	Users int `json:"users"`
	Posts int `json:"posts"`
}

// Seed loads a YAML seed file. Users that already exist keep their id and
// receive the listed posts.
func (f *Feed) Seed(ctx context.Context, r io.Reader) (SeedResult, error) {
	var file SeedFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return SeedResult{}, fmt.Errorf("feed: decode seed: %w", err)
	}

	var res SeedResult
	for _, su := range file.Users {
		u, err := f.CreateUser(ctx, su.Username, su.ProfileImageURL)
		if errors.Is(err, ErrUsernameTaken) {
			u, err = f.GetUserByUsername(ctx, su.Username)
		} else if err == nil {
			res.Users++
		}
		if err != nil {
			return res, err
		}
		for _, sp := range su.Posts {
			if _, err := f.CreatePost(ctx, u.ID, sp.Content, sp.CreatedAt); err != nil {
				return res, fmt.Errorf("feed: seed post for %s: %w", su.Username, err)
			}
			res.Posts++
		}
	}
	return res, nil
}
