package config

import (
	"fmt"
	"strings"

	"github.com/poiesic/ragrelay/ai"
)

// FieldError describes one invalid setting.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors collects every invalid setting of a Config.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// Validate reports every invalid setting, or nil.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	aiCfg := ai.NewConfig(c.AIOptions()...)
	if err := aiCfg.Validate(); err != nil {
		add("ai", "%s", strings.TrimPrefix(err.Error(), "ai config: "))
	}

	if c.Index.BatchSize < 1 {
		add("index.batch_size", "must be positive")
	}
	if c.Index.PoolSize < 0 {
		add("index.pool_size", "cannot be negative")
	}

	if c.RAG.Limit < 1 {
		add("rag.limit", "must be positive")
	}
	if c.RAG.Weight < 0 || c.RAG.Weight > 1 {
		add("rag.weight", "must be between 0 and 1")
	}
	if c.RAG.MinScore < 0 || c.RAG.MinScore > 1 {
		add("rag.min_score", "must be between 0 and 1")
	}

	if c.Server.Addr == "" {
		add("server.addr", "is required")
	}
	if c.Server.RateLimit < 0 {
		add("server.rate_limit", "cannot be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		add("server.rate_burst", "must be positive when rate_limit is set")
	}

	if c.Stream.Enabled {
		switch c.Stream.Backend {
		case BackendBadger:
		case BackendRedis:
			if c.Stream.RedisURL == "" {
				add("stream.redis_url", "is required for the redis backend")
			}
		default:
			add("stream.backend", "unknown backend %q", c.Stream.Backend)
		}
		if len(c.Stream.Channels) == 0 {
			add("stream.channels", "at least one channel is required")
		}
		for _, ch := range c.Stream.Channels {
			if strings.Contains(ch, ":") {
				add("stream.channels", "channel %q cannot contain ':'", ch)
			}
		}
		if c.Stream.Group == "" {
			add("stream.group", "is required")
		}
		if c.Stream.Consumer == "" {
			add("stream.consumer", "is required")
		}
		if c.Stream.ReadCount < 1 {
			add("stream.read_count", "must be positive")
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
