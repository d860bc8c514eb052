package jupyter

import (
	"time"

	"github.com/tailored-agentic-units/ipybridge/config"
)

// Config describes how to reach a Jupyter server. Values act as defaults for
// the flags a connect command may pass.
type Config struct {
	URL               string          `json:"url,omitempty" yaml:"url,omitempty" env:"IPYBRIDGE_JUPYTER_URL" validate:"required,url"`
	Token             string          `json:"token,omitempty" yaml:"token,omitempty" env:"IPYBRIDGE_JUPYTER_TOKEN"`
	Kernel            string          `json:"kernel,omitempty" yaml:"kernel,omitempty" env:"IPYBRIDGE_JUPYTER_KERNEL" validate:"required"`
	RequestTimeout    config.Duration `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty" env:"IPYBRIDGE_JUPYTER_REQUEST_TIMEOUT"`
	HeartbeatInterval config.Duration `json:"heartbeat_interval,omitempty" yaml:"heartbeat_interval,omitempty" env:"IPYBRIDGE_JUPYTER_HEARTBEAT_INTERVAL"`
	HeartbeatTimeout  config.Duration `json:"heartbeat_timeout,omitempty" yaml:"heartbeat_timeout,omitempty" env:"IPYBRIDGE_JUPYTER_HEARTBEAT_TIMEOUT"`
	BufferSize        int             `json:"buffer_size,omitempty" yaml:"buffer_size,omitempty" validate:"gte=0"`
}

func DefaultConfig() Config {
	return Config{
		URL:               "http://localhost:8888",
		Kernel:            "python3",
		RequestTimeout:    config.Duration(10 * time.Second),
		HeartbeatInterval: config.Duration(5 * time.Second),
		HeartbeatTimeout:  config.Duration(15 * time.Second),
		BufferSize:        256,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.URL != "" {
		c.URL = source.URL
	}
	if source.Token != "" {
		c.Token = source.Token
	}
	if source.Kernel != "" {
		c.Kernel = source.Kernel
	}
	if source.RequestTimeout > 0 {
		c.RequestTimeout = source.RequestTimeout
	}
	if source.HeartbeatInterval > 0 {
		c.HeartbeatInterval = source.HeartbeatInterval
	}
	if source.HeartbeatTimeout > 0 {
		c.HeartbeatTimeout = source.HeartbeatTimeout
	}
	if source.BufferSize > 0 {
		c.BufferSize = source.BufferSize
	}
}
