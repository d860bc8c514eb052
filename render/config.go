package render

// Config controls how broadcasts are formatted.
type Config struct {
	// ShortPrompt renders prompts as "n: " instead of "In[n]: "/"Out[n]: ".
	ShortPrompt bool `json:"short_prompt,omitempty" yaml:"short_prompt,omitempty" env:"IPYBRIDGE_SHORT_PROMPT"`
	// TruncateInput limits echoed input to this many lines; 0 disables.
	TruncateInput int `json:"truncate_input,omitempty" yaml:"truncate_input,omitempty" env:"IPYBRIDGE_TRUNCATE_INPUT" validate:"gte=0"`
	// DisableHighlight turns off ANSI color groups and error/warning
	// highlights. Prompt highlights are always applied.
	DisableHighlight bool `json:"disable_highlight,omitempty" yaml:"disable_highlight,omitempty" env:"IPYBRIDGE_DISABLE_HIGHLIGHT"`
	// TagStreams prefixes non-stdout stream text with "[name] ".
	TagStreams bool `json:"tag_streams,omitempty" yaml:"tag_streams,omitempty" env:"IPYBRIDGE_TAG_STREAMS"`
}

func DefaultConfig() Config {
	return Config{}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.ShortPrompt {
		c.ShortPrompt = true
	}
	if source.TruncateInput > 0 {
		c.TruncateInput = source.TruncateInput
	}
	if source.DisableHighlight {
		c.DisableHighlight = true
	}
	if source.TagStreams {
		c.TagStreams = true
	}
}

// Highlight reports whether optional highlighting is on.
func (c Config) Highlight() bool {
	return !c.DisableHighlight
}

// InputPrompt formats the prompt for an input echo.
func (c Config) InputPrompt(count int) string {
	if c.ShortPrompt {
		return itoa(count) + ": "
	}
	return "In[" + itoa(count) + "]: "
}

// OutputPrompt formats the prompt for a result.
func (c Config) OutputPrompt(count int) string {
	if c.ShortPrompt {
		return itoa(count) + ": "
	}
	return "Out[" + itoa(count) + "]: "
}
