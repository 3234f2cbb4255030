// Package config loads the harvester configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/miku/oaipoll"
	"github.com/miku/oaipoll/schedule"
	"github.com/miku/oaipoll/sink"
)

// Sink types.
const (
	SinkWriter = "writer"
	SinkFile   = "file"
	SinkRedis  = "redis"
)

// Config is the complete harvester configuration.
type Config struct {
	Log       LogConfig     `yaml:"log"`
	HTTP      HTTPConfig    `yaml:"http"`
	Sink      SinkConfig    `yaml:"sink"`
	Metrics   MetricsConfig `yaml:"metrics"`
	Endpoints []Endpoint    `yaml:"endpoints"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level       string `yaml:"level" env:"OAIPOLL_LOG_LEVEL"`
	Development bool   `yaml:"development" env:"OAIPOLL_LOG_DEVELOPMENT"`
}

// HTTPConfig configures the shared HTTP client.
type HTTPConfig struct {
	Timeout   time.Duration `yaml:"timeout" env:"OAIPOLL_HTTP_TIMEOUT"`
	Retries   int           `yaml:"retries" env:"OAIPOLL_HTTP_RETRIES"`
	Rate      float64       `yaml:"rate" env:"OAIPOLL_HTTP_RATE"`
	UserAgent string        `yaml:"user_agent" env:"OAIPOLL_USER_AGENT"`
}

// SinkConfig selects where records go.
type SinkConfig struct {
	Type    string      `yaml:"type" env:"OAIPOLL_SINK"`
	Path    string      `yaml:"path" env:"OAIPOLL_SINK_PATH"`
	RootTag string      `yaml:"root_tag"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig configures the stream sink.
type RedisConfig struct {
	Address  string `yaml:"address" env:"OAIPOLL_REDIS_ADDRESS"`
	Password string `yaml:"password" env:"OAIPOLL_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"OAIPOLL_REDIS_DB"`
	Stream   string `yaml:"stream" env:"OAIPOLL_REDIS_STREAM"`
	MaxLen   int64  `yaml:"max_len"`
	Codec    string `yaml:"codec"`
}

// Sink returns the settings for sink.NewRedis.
func (c RedisConfig) Sink() sink.RedisConfig {
	codec, _ := sink.ParseCodec(c.Codec)
	return sink.RedisConfig{
		Address:  c.Address,
		Password: c.Password,
		DB:       c.DB,
		Stream:   c.Stream,
		MaxLen:   c.MaxLen,
		Codec:    codec,
	}
}

// MetricsConfig configures the status and metrics server.
type MetricsConfig struct {
	// Listen is the server address, empty disables the server.
	Listen string `yaml:"listen" env:"OAIPOLL_LISTEN"`
}

// Endpoint is a single provider to harvest.
type Endpoint struct {
	Name        string      `yaml:"name"`
	URL         string      `yaml:"url"`
	Verb        string      `yaml:"verb"`
	Set         string      `yaml:"set"`
	Prefix      string      `yaml:"prefix"`
	Identifier  string      `yaml:"identifier"`
	From        string      `yaml:"from"`
	Until       string      `yaml:"until"`
	Schedule    string      `yaml:"schedule"`
	Granularity string      `yaml:"granularity"`
	Pagination  string      `yaml:"pagination"`
	Commit      string      `yaml:"commit"`
	MaxRequests int         `yaml:"max_requests"`
	Retry       RetryConfig `yaml:"retry"`
}

// RetryConfig describes the retry policy of an endpoint. Zero attempts means
// no retry.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	// Codes lists OAI error codes, that are retried besides transport errors.
	Codes []string `yaml:"codes"`
}

// Policy returns the retry policy.
func (r RetryConfig) Policy() oaipoll.RetryPolicy {
	if r.MaxAttempts <= 1 {
		return oaipoll.NoRetry{}
	}
	b := oaipoll.DefaultBackoff()
	b.MaxAttempts = r.MaxAttempts
	if r.InitialDelay > 0 {
		b.InitialDelay = r.InitialDelay
	}
	if r.MaxDelay > 0 {
		b.MaxDelay = r.MaxDelay
	}
	if r.Multiplier > 0 {
		b.Multiplier = r.Multiplier
	}
	if len(r.Codes) > 0 {
		var codes []oaipoll.ErrorCode
		for _, c := range r.Codes {
			codes = append(codes, oaipoll.ErrorCode(c))
		}
		b.Retryable = oaipoll.TransientOr(codes...)
	}
	return b
}

// Cursor returns the initial harvesting cursor.
func (e Endpoint) Cursor() oaipoll.Cursor {
	return oaipoll.Cursor{
		Verb:       oaipoll.Verb(e.Verb),
		Set:        e.Set,
		Prefix:     e.Prefix,
		Identifier: e.Identifier,
		From:       e.From,
		Until:      e.Until,
	}
}

// Options returns the poller options derived from the endpoint settings.
func (e Endpoint) Options() []oaipoll.Option {
	opts := []oaipoll.Option{
		oaipoll.WithMorePages(oaipoll.MorePagesByName(e.Pagination)),
		oaipoll.WithRetryPolicy(e.Retry.Policy()),
		oaipoll.WithMaxRequests(e.MaxRequests),
	}
	if e.Granularity == "day" {
		opts = append(opts, oaipoll.WithGranularity(oaipoll.DayGranularity))
	}
	if e.Commit == "cycle" {
		opts = append(opts, oaipoll.WithCommitMode(oaipoll.CommitOnCycleEnd))
	}
	return opts
}

// SetDefaults fills in missing values.
func (c *Config) SetDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = oaipoll.DefaultClientConfig().Timeout
	}
	if c.HTTP.Retries == 0 {
		c.HTTP.Retries = oaipoll.DefaultClientConfig().MaxRetries
	}
	if c.Sink.Type == "" {
		c.Sink.Type = SinkWriter
	}
	for i := range c.Endpoints {
		e := &c.Endpoints[i]
		if e.Verb == "" {
			e.Verb = string(oaipoll.ListRecords)
		}
		if e.Prefix == "" && e.Verb != string(oaipoll.Identify) && e.Verb != string(oaipoll.ListSets) {
			e.Prefix = oaipoll.DefaultFormat
		}
		if e.Schedule == "" {
			e.Schedule = "@every 1h"
		}
		if e.MaxRequests == 0 {
			e.MaxRequests = oaipoll.DefaultMaxRequests
		}
		if e.URL != "" && !strings.Contains(e.URL, "://") {
			e.URL = "http://" + e.URL
		}
		if e.Name == "" {
			e.Name = e.URL
		}
	}
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration and returns all problems at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("log.level", "must be one of: debug, info, warn, error")
	}
	switch c.Sink.Type {
	case SinkWriter:
	case SinkFile:
		if c.Sink.Path == "" {
			add("sink.path", "is required for file sink")
		}
	case SinkRedis:
		if c.Sink.Redis.Address == "" {
			add("sink.redis.address", "is required for redis sink")
		}
		if _, err := sink.ParseCodec(c.Sink.Redis.Codec); err != nil {
			add("sink.redis.codec", "%v", err)
		}
	default:
		add("sink.type", "must be one of: writer, file, redis")
	}
	if len(c.Endpoints) == 0 {
		add("endpoints", "at least one endpoint is required")
	}
	seen := make(map[string]bool)
	for i, e := range c.Endpoints {
		field := func(name string) string { return fmt.Sprintf("endpoints[%d].%s", i, name) }
		if seen[e.Name] {
			add(field("name"), "duplicate name %q", e.Name)
		}
		seen[e.Name] = true
		if u, err := url.Parse(e.URL); err != nil || u.Host == "" {
			add(field("url"), "invalid URL %q", e.URL)
		}
		verb, err := oaipoll.ParseVerb(e.Verb)
		if err != nil {
			add(field("verb"), "%v", err)
		}
		if verb == oaipoll.GetRecord && e.Identifier == "" {
			add(field("identifier"), "is required for GetRecord")
		}
		if _, err := schedule.Parser.Parse(e.Schedule); err != nil {
			add(field("schedule"), "%v", err)
		}
		for name, v := range map[string]string{"from": e.From, "until": e.Until} {
			if v == "" {
				continue
			}
			if _, err := oaipoll.ParseTimestamp(v); err != nil {
				add(field(name), "%v", err)
			}
		}
		switch e.Granularity {
		case "", "day", "seconds":
		default:
			add(field("granularity"), "must be day or seconds")
		}
		switch e.Pagination {
		case "":
		case "leading-space", "non-empty", "strict":
			if verb != "" && !verb.Paginates() {
				add(field("pagination"), "%s does not paginate", verb)
			}
		default:
			add(field("pagination"), "must be leading-space or non-empty")
		}
		switch e.Commit {
		case "", "request", "cycle":
		default:
			add(field("commit"), "must be request or cycle")
		}
	}
	return errors.Join(errs...)
}
