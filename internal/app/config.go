package app

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/m3rciful/feedbot/core/cmd"
	"github.com/m3rciful/feedbot/core/config"
)

// FeedConfig tunes the announcement feed.
type FeedConfig struct {
	// PollIntervalSeconds is how often new posts are pushed to subscribers; 0 -> 60s.
	PollIntervalSeconds int `yaml:"poll_interval_seconds" envconfig:"FEED_POLL_INTERVAL_SECONDS"`
	PageSize            int `yaml:"page_size" envconfig:"FEED_PAGE_SIZE"`
	// BacklogAlert is the dispatcher queue length that triggers an admin alert.
	BacklogAlert int `yaml:"backlog_alert" envconfig:"FEED_BACKLOG_ALERT"`
}

// Config is the bot configuration: the core sections plus the feed.
type Config struct {
	Core *config.Config
	Feed FeedConfig
}

// CoreConfig implements cmd.ConfigCarrier.
func (c *Config) CoreConfig() *config.Config { return c.Core }

// PollInterval returns the feed poll period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Feed.PollIntervalSeconds) * time.Second
}

// LoadConfig reads the core configuration and the feed section from path.
func LoadConfig(path string) (cmd.ConfigCarrier, error) {
	core, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var raw struct {
		Feed FeedConfig `yaml:"feed"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse feed config: %w", err)
	}
	if err := envconfig.Process("", &raw.Feed); err != nil {
		return nil, fmt.Errorf("failed to process feed env: %w", err)
	}
	cfg := &Config{Core: core, Feed: raw.Feed}
	if err := normalizeFeed(&cfg.Feed); err != nil {
		return nil, err
	}
	return cfg, nil
}

func normalizeFeed(f *FeedConfig) error {
	if f.PollIntervalSeconds < 0 || f.PageSize < 0 || f.BacklogAlert < 0 {
		return fmt.Errorf("feed settings must be >= 0")
	}
	if f.PollIntervalSeconds == 0 {
		f.PollIntervalSeconds = 60
	}
	if f.PageSize == 0 {
		f.PageSize = 5
	}
	if f.BacklogAlert == 0 {
		f.BacklogAlert = 100
	}
	return nil
}
