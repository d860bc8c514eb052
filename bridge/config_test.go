package bridge_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tailored-agentic-units/ipybridge/bridge"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := bridge.LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if got := cfg.Session.ReplyTimeout.Std(); got != 30*time.Second {
		t.Errorf("got reply timeout %v, want 30s", got)
	}
	if cfg.Jupyter.Kernel != "python3" {
		t.Errorf("got kernel %q, want python3", cfg.Jupyter.Kernel)
	}
	if cfg.Surface.Addr == "" {
		t.Error("surface address not defaulted")
	}
}

func TestLoadConfig_Files(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml",
			file: "ipybridge.yaml",
			content: `
session:
  reply_timeout: 5s
  render:
    short_prompt: true
    truncate_input: 4
jupyter:
  url: http://jupyter.internal:9999
`,
		},
		{
			name: "json",
			file: "ipybridge.json",
			content: `{
  "session": {"reply_timeout": "5s", "render": {"short_prompt": true, "truncate_input": 4}},
  "jupyter": {"url": "http://jupyter.internal:9999"}
}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := bridge.LoadConfig(writeConfig(t, tt.file, tt.content))
			if err != nil {
				t.Fatalf("LoadConfig failed: %v", err)
			}

			if got := cfg.Session.ReplyTimeout.Std(); got != 5*time.Second {
				t.Errorf("got reply timeout %v, want 5s", got)
			}
			if !cfg.Session.Render.ShortPrompt || cfg.Session.Render.TruncateInput != 4 {
				t.Errorf("got render config %+v", cfg.Session.Render)
			}
			if cfg.Jupyter.URL != "http://jupyter.internal:9999" {
				t.Errorf("got url %q", cfg.Jupyter.URL)
			}
			// untouched sections keep their defaults
			if cfg.Jupyter.Kernel != "python3" {
				t.Errorf("got kernel %q, want python3", cfg.Jupyter.Kernel)
			}
		})
	}
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("IPYBRIDGE_JUPYTER_TOKEN", "s3cret")
	t.Setenv("IPYBRIDGE_EXECUTE_TIMEOUT", "2m")
	t.Setenv("IPYBRIDGE_TAG_STREAMS", "true")

	path := writeConfig(t, "ipybridge.yaml", "jupyter:\n  token: from-file\n")
	cfg, err := bridge.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Jupyter.Token != "s3cret" {
		t.Errorf("got token %q, want environment to win", cfg.Jupyter.Token)
	}
	if got := cfg.Session.ExecuteTimeout.Std(); got != 2*time.Minute {
		t.Errorf("got execute timeout %v, want 2m", got)
	}
	if !cfg.Session.Render.TagStreams {
		t.Error("tag_streams not set from environment")
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{"missing file", "", "", "failed to read config file"},
		{"bad json", "c.json", "{", "failed to parse config file"},
		{"bad duration", "c.yaml", "session:\n  reply_timeout: soon\n", "failed to parse config file"},
		{"bad url", "c.yaml", "jupyter:\n  url: not-a-url\n", "invalid config"},
		{"bad addr", "c.yaml", "surface:\n  addr: nowhere\n", "invalid config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "absent.yaml")
			if tt.file != "" {
				path = writeConfig(t, tt.file, tt.content)
			}

			_, err := bridge.LoadConfig(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("got error %v, want %q", err, tt.want)
			}
		})
	}
}

func TestLoadConfig_EnvironmentValidated(t *testing.T) {
	t.Setenv("IPYBRIDGE_TRUNCATE_INPUT", "-1")

	_, err := bridge.LoadConfig("")
	if err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Errorf("got error %v, want invalid config", err)
	}
}
