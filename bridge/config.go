package bridge

import (
	"time"

	"github.com/tailored-agentic-units/ipybridge/config"
	"github.com/tailored-agentic-units/ipybridge/session"
	"github.com/tailored-agentic-units/ipybridge/transport/jupyter"
)

// Config holds initialization parameters for every subsystem the bridge
// composes. Each section is merged by its own Merge method.
type Config struct {
	Session session.Config `json:"session" yaml:"session"`
	Jupyter jupyter.Config `json:"jupyter" yaml:"jupyter"`
	Surface SurfaceConfig  `json:"surface" yaml:"surface"`
}

// SurfaceConfig configures the RPC listener started by the serve command.
type SurfaceConfig struct {
	Addr              string          `json:"addr,omitempty" yaml:"addr,omitempty" env:"IPYBRIDGE_SURFACE_ADDR" validate:"required,hostname_port"`
	ReadHeaderTimeout config.Duration `json:"read_header_timeout,omitempty" yaml:"read_header_timeout,omitempty" env:"IPYBRIDGE_SURFACE_READ_HEADER_TIMEOUT"`
}

func DefaultConfig() Config {
	return Config{
		Session: session.DefaultConfig(),
		Jupyter: jupyter.DefaultConfig(),
		Surface: SurfaceConfig{
			Addr:              "127.0.0.1:8970",
			ReadHeaderTimeout: config.Duration(5 * time.Second),
		},
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	c.Session.Merge(&source.Session)
	c.Jupyter.Merge(&source.Jupyter)

	if source.Surface.Addr != "" {
		c.Surface.Addr = source.Surface.Addr
	}
	if source.Surface.ReadHeaderTimeout > 0 {
		c.Surface.ReadHeaderTimeout = source.Surface.ReadHeaderTimeout
	}
}

// LoadConfig builds a Config from defaults, then filename when it is not
// empty, then IPYBRIDGE_* environment variables, and validates the result.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	if filename != "" {
		var loaded Config
		if err := config.Decode(filename, &loaded); err != nil {
			return nil, err
		}
		cfg.Merge(&loaded)
	}

	if err := config.ApplyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := config.Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
