package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/alfredjeanlab/harvest/internal/writer"
)

// Handoff modes between the stream reader and the collector.
const (
	HandoffQueue  = "queue"  // reader pushes to a queue, collector drains it
	HandoffDirect = "direct" // reader calls the collector inline
)

// DefaultStreamURL is the upstream filter endpoint.
const DefaultStreamURL = "https://stream.twitter.com/1.1/statuses/filter.json"

type Config struct {
	StreamURL    string        `toml:"stream_url"`    // HARVEST_STREAM_URL
	Filter       string        `toml:"filter"`        // HARVEST_FILTER (default "track=bieber")
	TimeLimit    int           `toml:"time_limit"`    // HARVEST_TIME_LIMIT, seconds (default 30)
	EventLimit   int64         `toml:"event_limit"`   // HARVEST_EVENT_LIMIT (default 100)
	Output       string        `toml:"output"`        // HARVEST_OUTPUT (default "events.tsv")
	Delimiter    string        `toml:"delimiter"`     // HARVEST_DELIMITER (default tab)
	PollInterval time.Duration `toml:"poll_interval"` // HARVEST_POLL_INTERVAL (default 100ms)
	Handoff      string        `toml:"handoff"`       // HARVEST_HANDOFF: queue or direct
	BearerToken  string        `toml:"bearer_token"`  // HARVEST_BEARER_TOKEN (optional)

	NATSURL        string `toml:"nats_url"`        // HARVEST_NATS_URL (optional, empty = no events)
	DatabaseURL    string `toml:"database_url"`    // HARVEST_DATABASE_URL (optional, empty = no ledger)
	PushgatewayURL string `toml:"pushgateway_url"` // HARVEST_PUSHGATEWAY_URL (optional)

	// Upload settings
	S3Bucket   string `toml:"s3_bucket"`   // HARVEST_S3_BUCKET (enables S3 when set)
	S3Endpoint string `toml:"s3_endpoint"` // HARVEST_S3_ENDPOINT (custom endpoint for MinIO)
	S3Region   string `toml:"s3_region"`   // HARVEST_S3_REGION (default "us-east-1")
	S3Key      string `toml:"s3_key"`      // HARVEST_S3_KEY (default: output file name)
	GitRepo    string `toml:"git_repo"`    // HARVEST_GIT_REPO (enables git when set; path to clone)
	GitFile    string `toml:"git_file"`    // HARVEST_GIT_FILE (default: output file name)
	GitBranch  string `toml:"git_branch"`  // HARVEST_GIT_BRANCH (default "main")

	PostRunHook string `toml:"post_run_hook"` // HARVEST_POST_RUN_HOOK (shell command)
	HookTimeout int    `toml:"hook_timeout"`  // HARVEST_HOOK_TIMEOUT, seconds (default 30)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		StreamURL:    DefaultStreamURL,
		Filter:       "track=bieber",
		TimeLimit:    30,
		EventLimit:   100,
		Output:       "events.tsv",
		Delimiter:    "\t",
		PollInterval: 100 * time.Millisecond,
		Handoff:      HandoffQueue,
		S3Region:     "us-east-1",
		GitBranch:    "main",
		HookTimeout:  30,
	}
}

// Load builds the configuration: defaults, then the TOML file at path (if
// path is non-empty), then HARVEST_* environment variables. It does not
// validate; call Validate after applying command-line overrides.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, c); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	c.StreamURL = envOrDefault("HARVEST_STREAM_URL", c.StreamURL)
	c.Filter = envOrDefault("HARVEST_FILTER", c.Filter)
	c.Output = envOrDefault("HARVEST_OUTPUT", c.Output)
	c.Delimiter = envOrDefault("HARVEST_DELIMITER", c.Delimiter)
	c.Handoff = envOrDefault("HARVEST_HANDOFF", c.Handoff)
	c.BearerToken = envOrDefault("HARVEST_BEARER_TOKEN", c.BearerToken)
	c.NATSURL = envOrDefault("HARVEST_NATS_URL", c.NATSURL)
	c.DatabaseURL = envOrDefault("HARVEST_DATABASE_URL", c.DatabaseURL)
	c.PushgatewayURL = envOrDefault("HARVEST_PUSHGATEWAY_URL", c.PushgatewayURL)
	c.S3Bucket = envOrDefault("HARVEST_S3_BUCKET", c.S3Bucket)
	c.S3Endpoint = envOrDefault("HARVEST_S3_ENDPOINT", c.S3Endpoint)
	c.S3Region = envOrDefault("HARVEST_S3_REGION", c.S3Region)
	c.S3Key = envOrDefault("HARVEST_S3_KEY", c.S3Key)
	c.GitRepo = envOrDefault("HARVEST_GIT_REPO", c.GitRepo)
	c.GitFile = envOrDefault("HARVEST_GIT_FILE", c.GitFile)
	c.GitBranch = envOrDefault("HARVEST_GIT_BRANCH", c.GitBranch)
	c.PostRunHook = envOrDefault("HARVEST_POST_RUN_HOOK", c.PostRunHook)

	var err error
	if c.TimeLimit, err = envInt("HARVEST_TIME_LIMIT", c.TimeLimit); err != nil {
		return err
	}
	if c.HookTimeout, err = envInt("HARVEST_HOOK_TIMEOUT", c.HookTimeout); err != nil {
		return err
	}
	if v := os.Getenv("HARVEST_EVENT_LIMIT"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("HARVEST_EVENT_LIMIT: %w", err)
		}
		c.EventLimit = n
	}
	if v := os.Getenv("HARVEST_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("HARVEST_POLL_INTERVAL: %w", err)
		}
		c.PollInterval = d
	}
	return nil
}

// Validate checks the run parameters.
func (c *Config) Validate() error {
	var errs []error
	if c.StreamURL == "" {
		errs = append(errs, errors.New("stream_url is required"))
	}
	if c.TimeLimit <= 0 {
		errs = append(errs, fmt.Errorf("time_limit must be a positive number of seconds, got %d", c.TimeLimit))
	}
	if c.EventLimit <= 0 {
		errs = append(errs, fmt.Errorf("event_limit must be positive, got %d", c.EventLimit))
	}
	if c.Output == "" {
		errs = append(errs, errors.New("output is required"))
	}
	if _, err := writer.ParseDelimiter(c.Delimiter); err != nil {
		errs = append(errs, err)
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %v", c.PollInterval))
	}
	switch c.Handoff {
	case HandoffQueue, HandoffDirect:
	default:
		errs = append(errs, fmt.Errorf("handoff must be %q or %q, got %q", HandoffQueue, HandoffDirect, c.Handoff))
	}
	return errors.Join(errs...)
}

// TimeBudget returns the time limit as a duration.
func (c *Config) TimeBudget() time.Duration {
	return time.Duration(c.TimeLimit) * time.Second
}

// DelimiterRune returns the parsed delimiter. Call after Validate.
func (c *Config) DelimiterRune() rune {
	r, err := writer.ParseDelimiter(c.Delimiter)
	if err != nil {
		return writer.DefaultDelimiter
	}
	return r
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
