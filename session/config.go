package session

import (
	"time"

	"github.com/tailored-agentic-units/ipybridge/config"
	"github.com/tailored-agentic-units/ipybridge/render"
)

const defaultReplyTimeout = 30 * time.Second

// Config holds per-session settings. A timeout of zero or less disables
// it; execute replies take as long as the code runs, so ExecuteTimeout is
// off by default.
type Config struct {
	ReplyTimeout   config.Duration `json:"reply_timeout,omitempty" yaml:"reply_timeout,omitempty" env:"IPYBRIDGE_REPLY_TIMEOUT"`
	ExecuteTimeout config.Duration `json:"execute_timeout,omitempty" yaml:"execute_timeout,omitempty" env:"IPYBRIDGE_EXECUTE_TIMEOUT"`
	Render         render.Config   `json:"render" yaml:"render"`
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		ReplyTimeout: config.Duration(defaultReplyTimeout),
		Render:       render.DefaultConfig(),
	}
}

// Merge applies non-zero values from source into c. A negative timeout in
// source disables the corresponding default.
func (c *Config) Merge(source *Config) {
	if source.ReplyTimeout != 0 {
		c.ReplyTimeout = source.ReplyTimeout
	}
	if source.ExecuteTimeout != 0 {
		c.ExecuteTimeout = source.ExecuteTimeout
	}
	c.Render.Merge(&source.Render)
}
