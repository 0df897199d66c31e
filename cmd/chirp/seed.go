package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leggettc18/chirp/feed"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load users and posts from a YAML seed file",
	Long: `Load users and posts from a YAML seed file:

  users:
    - username: alice
      profile_image_url: https://example.com/alice.png
      posts:
        - content: hello
          created_at: 2024-03-01T10:00:00Z

Existing users keep their id and receive the listed posts. Built pages are
not refreshed; invalidate them with the pages_invalidate tool.`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "seed file (required)")
	seedCmd.MarkFlagRequired("file")
}

func runSeed(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stderr)

	f, err := os.Open(seedFile)
	if err != nil {
		return err
	}
	defer f.Close()

	fd, err := feed.New(&feed.Config{
		DBPath:        cfg.FeedDB,
		FeedLimit:     cfg.FeedLimit,
		MaxPostLength: cfg.MaxPostLength,
	}, logger)
	if err != nil {
		return err
	}
	defer fd.Close()

	res, err := fd.Seed(cmd.Context(), f)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "seeded %d users, %d posts\n", res.Users, res.Posts)
	return nil
}
