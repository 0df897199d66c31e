package feed

// Config holds the feed configuration.
type Config struct {
	DBPath string `json:"db_path" yaml:"db_path"`

	// FeedLimit caps posts returned per profile feed. Default: 100.
	FeedLimit int `json:"feed_limit" yaml:"feed_limit"`

	// MaxPostLength is the maximum post length in runes. Default: 280.
	MaxPostLength int `json:"max_post_length" yaml:"max_post_length"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "feed.db"
	}
	if c.FeedLimit <= 0 {
		c.FeedLimit = 100
	}
	if c.MaxPostLength <= 0 {
		c.MaxPostLength = 280
	}
}
