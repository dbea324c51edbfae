// Package config holds the process-level configuration surface: per-agent
// loop settings, cache thresholds, retry/fallback policy, action timeouts
// and the capability-tier model map. Values are constructed once at startup
// (defaults, optionally overlaid from YAML) and passed by reference; nothing
// here is mutated after Load returns.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/juniperhq/agentloop/provider"
)

// Duration wraps time.Duration so YAML configs can use human-readable
// values like "200ms" or "1h" as well as raw nanosecond integers.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := node.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration value: %w", err)
	}
	*d = Duration(n)
	return nil
}

// AgentConfig configures one agent role.
type AgentConfig struct {
	Model       string  `yaml:"model"`
	MaxTurns    int     `yaml:"max_turns"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// CacheConfig configures the content cache and prompt caching.
type CacheConfig struct {
	// MaxChars clamps stored content length.
	MaxChars int `yaml:"max_chars"`
	// ContentThreshold is the length above which action output is
	// auto-cached with a preview instead of embedded in history.
	ContentThreshold int `yaml:"content_threshold"`
	// OneHourPromptTTL selects the 1-hour provider prompt-cache TTL over
	// the 5-minute default.
	OneHourPromptTTL bool `yaml:"one_hour_prompt_ttl"`
}

// RetryConfig configures the provider gateway's retry and fallback policy.
type RetryConfig struct {
	MaxRetries      int      `yaml:"max_retries"`
	BaseDelay       Duration `yaml:"base_delay"`
	MaxDelay        Duration `yaml:"max_delay"`
	Jitter          bool     `yaml:"jitter"`
	FallbackEnabled bool     `yaml:"fallback_enabled"`
	Fallback        []string `yaml:"fallback"`
}

// ActionConfig bounds action handler execution.
type ActionConfig struct {
	DefaultTimeout Duration `yaml:"default_timeout"`
	MaxTimeout     Duration `yaml:"max_timeout"`
}

// Config is the full configuration surface.
type Config struct {
	Agents     map[string]AgentConfig `yaml:"agents"`
	Cache      CacheConfig            `yaml:"cache"`
	Retry      RetryConfig            `yaml:"retry"`
	Actions    ActionConfig           `yaml:"actions"`
	TierModels map[int]string         `yaml:"tier_models"`
}

// Default returns the baseline configuration every deployment starts from.
func Default() *Config {
	return &Config{
		Agents: map[string]AgentConfig{
			"chat": {
				Model:       "claude-sonnet-4-5",
				MaxTurns:    10,
				Temperature: 0.1,
			},
			"integrations": {
				Model:       "claude-sonnet-4-5",
				MaxTurns:    16,
				Temperature: 0.1,
			},
		},
		Cache: CacheConfig{
			MaxChars:         15000,
			ContentThreshold: 1000,
			OneHourPromptTTL: true,
		},
		Retry: RetryConfig{
			MaxRetries:      3,
			BaseDelay:       Duration(time.Second),
			MaxDelay:        Duration(30 * time.Second),
			Jitter:          true,
			FallbackEnabled: true,
			Fallback:        []string{provider.NameOpenAI, provider.NameGoogleAI},
		},
		Actions: ActionConfig{
			DefaultTimeout: Duration(240 * time.Second),
			MaxTimeout:     Duration(3600 * time.Second),
		},
		TierModels: map[int]string{
			1: "gemini-2.5-pro",
			2: "claude-sonnet-4-5",
		},
	}
}

// Load reads a YAML file over the defaults. A missing path returns the
// defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations that would misbehave at runtime.
func (c *Config) Validate() error {
	for name, agent := range c.Agents {
		if agent.MaxTurns < 0 {
			return fmt.Errorf("agent %q: max_turns must be >= 0", name)
		}
		if agent.Temperature < 0 || agent.Temperature > 2 {
			return fmt.Errorf("agent %q: temperature must be in [0, 2]", name)
		}
	}
	if c.Cache.MaxChars < 0 || c.Cache.ContentThreshold < 0 {
		return fmt.Errorf("cache thresholds must be >= 0")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry max_retries must be >= 0")
	}
	if c.Actions.MaxTimeout > 0 && c.Actions.DefaultTimeout > c.Actions.MaxTimeout {
		return fmt.Errorf("action default_timeout exceeds max_timeout")
	}
	for tier := range c.TierModels {
		if tier < 1 {
			return fmt.Errorf("tier_models keys must be >= 1, got %d", tier)
		}
	}
	return nil
}

// Agent returns the configuration for an agent role, falling back to a zero
// AgentConfig when the role is not configured.
func (c *Config) Agent(name string) AgentConfig {
	return c.Agents[name]
}

// RetryPolicy converts the retry section into the gateway's policy type.
func (c *Config) RetryPolicy() provider.RetryPolicy {
	return provider.RetryPolicy{
		MaxRetries:      c.Retry.MaxRetries,
		BaseDelay:       c.Retry.BaseDelay.Std(),
		MaxDelay:        c.Retry.MaxDelay.Std(),
		BackoffFactor:   2.0,
		Jitter:          c.Retry.Jitter,
		FallbackEnabled: c.Retry.FallbackEnabled,
		Fallback:        c.Retry.Fallback,
	}
}
