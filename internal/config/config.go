// Package config loads and validates emailmakers.yml plus the environment
// overrides that tune the orchestration core.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rtuzov/emailmakers-sub004/pkg/campaign"
)

// Environment variable names recognized as overrides.
const (
	EnvCampaignsDir = "EMAILMAKERS_CAMPAIGNS_DIR"
	EnvRedisAddr    = "EMAILMAKERS_REDIS_ADDR"
	EnvMaxAttempts  = "EMAILMAKERS_RETRY_MAX_ATTEMPTS"
	EnvBaseDelayMs  = "EMAILMAKERS_RETRY_BASE_DELAY_MS"
	EnvMaxDelayMs   = "EMAILMAKERS_RETRY_MAX_DELAY_MS"
)

// Config represents the top-level emailmakers.yml configuration.
type Config struct {
	Version      string             `yaml:"version"`
	CampaignsDir string             `yaml:"campaigns_dir"`
	Retry        *RetryConfig       `yaml:"retry,omitempty"`
	Quality      *QualityConfig     `yaml:"quality,omitempty"`
	Events       *EventsConfig      `yaml:"events,omitempty"`
	Credentials  *CredentialsConfig `yaml:"credentials,omitempty"`

	// StageTimeoutSeconds bounds one stage call wall-clock; on expiry the
	// driver finalizes the campaign into failed.
	StageTimeoutSeconds *int `yaml:"stage_timeout_seconds,omitempty"`
}

// RetryConfig tunes the storage retry policy.
type RetryConfig struct {
	MaxAttempts *int `yaml:"max_attempts,omitempty"` // Default: 3
	BaseDelayMs *int `yaml:"base_delay_ms,omitempty"` // Default: 50
	MaxDelayMs  *int `yaml:"max_delay_ms,omitempty"`  // Default: 1000
}

// QualityConfig carries the thresholds threaded through execution contexts.
// The orchestration core treats these as opaque; the quality stage applies
// them.
type QualityConfig struct {
	MinScore        *int  `yaml:"min_score,omitempty"`        // Default: 80
	RequireApproval *bool `yaml:"require_approval,omitempty"` // Default: true
}

// EventsConfig enables the optional Redis campaign event stream.
// An empty address disables publishing entirely.
type EventsConfig struct {
	RedisAddr string `yaml:"redis_addr,omitempty"`
	Instance  string `yaml:"instance,omitempty"` // Channel namespace, default "default"
}

// CredentialsConfig lists environment variables that must be present before
// any campaign work begins. Stage collaborators that call external providers
// declare their credentials here.
type CredentialsConfig struct {
	Required []string `yaml:"required,omitempty"`
}

// Default returns the configuration used when no emailmakers.yml exists.
func Default() *Config {
	cfg := &Config{
		Version:      "1.0",
		CampaignsDir: "campaigns",
	}
	// Validate applies the remaining defaults.
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: default configuration is invalid: %v", err))
	}
	return cfg
}

// Load reads emailmakers.yml from path, applies environment overrides and
// validates. A missing file yields the defaults (still subject to overrides
// and credential checks); a malformed file is a ConfigurationError.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		cfg = &Config{Version: "1.0", CampaignsDir: "campaigns"}
	case err != nil:
		return nil, campaign.NewConfigurationError("failed to read config").
			WithContext("path", path).
			WithCause(err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, campaign.NewConfigurationError("failed to parse config YAML").
				WithContext("path", path).
				WithCause(err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, campaign.NewConfigurationError("invalid configuration").
			WithContext("path", path).
			WithCause(err)
	}

	return cfg, nil
}

// applyEnvOverrides folds recognized environment variables into the config.
func (c *Config) applyEnvOverrides() error {
	if dir := os.Getenv(EnvCampaignsDir); dir != "" {
		c.CampaignsDir = dir
	}

	if addr := os.Getenv(EnvRedisAddr); addr != "" {
		if c.Events == nil {
			c.Events = &EventsConfig{}
		}
		c.Events.RedisAddr = addr
	}

	for _, env := range []string{EnvMaxAttempts, EnvBaseDelayMs, EnvMaxDelayMs} {
		raw := os.Getenv(env)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return campaign.NewConfigurationError("%s must be an integer, got %q", env, raw)
		}
		if c.Retry == nil {
			c.Retry = &RetryConfig{}
		}
		switch env {
		case EnvMaxAttempts:
			c.Retry.MaxAttempts = &v
		case EnvBaseDelayMs:
			c.Retry.BaseDelayMs = &v
		case EnvMaxDelayMs:
			c.Retry.MaxDelayMs = &v
		}
	}

	return nil
}

// Validate performs strict validation and applies defaults for absent
// optional sections.
func (c *Config) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.CampaignsDir == "" {
		return fmt.Errorf("campaigns_dir is required")
	}

	if c.Retry == nil {
		c.Retry = &RetryConfig{}
	}
	if c.Retry.MaxAttempts == nil {
		v := 3
		c.Retry.MaxAttempts = &v
	}
	if c.Retry.BaseDelayMs == nil {
		v := 50
		c.Retry.BaseDelayMs = &v
	}
	if c.Retry.MaxDelayMs == nil {
		v := 1000
		c.Retry.MaxDelayMs = &v
	}

	if *c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1, got %d", *c.Retry.MaxAttempts)
	}
	if *c.Retry.BaseDelayMs < 0 {
		return fmt.Errorf("retry.base_delay_ms cannot be negative")
	}
	if *c.Retry.MaxDelayMs < *c.Retry.BaseDelayMs {
		return fmt.Errorf("retry.max_delay_ms (%d) is below retry.base_delay_ms (%d)",
			*c.Retry.MaxDelayMs, *c.Retry.BaseDelayMs)
	}

	if c.Quality == nil {
		c.Quality = &QualityConfig{}
	}
	if c.Quality.MinScore == nil {
		v := 80
		c.Quality.MinScore = &v
	}
	if c.Quality.RequireApproval == nil {
		v := true
		c.Quality.RequireApproval = &v
	}
	if *c.Quality.MinScore < 0 || *c.Quality.MinScore > 100 {
		return fmt.Errorf("quality.min_score must be within 0-100, got %d", *c.Quality.MinScore)
	}

	if c.Events != nil && c.Events.RedisAddr != "" && c.Events.Instance == "" {
		c.Events.Instance = "default"
	}

	if c.StageTimeoutSeconds == nil {
		v := 300
		c.StageTimeoutSeconds = &v
	}
	if *c.StageTimeoutSeconds < 1 {
		return fmt.Errorf("stage_timeout_seconds must be >= 1, got %d", *c.StageTimeoutSeconds)
	}

	return nil
}

// CheckCredentials verifies every required credential is present in the
// environment. Called before any campaign work begins; a missing credential
// is a ConfigurationError naming every absent variable.
func (c *Config) CheckCredentials() error {
	if c.Credentials == nil || len(c.Credentials.Required) == 0 {
		return nil
	}

	var missing []string
	for _, name := range c.Credentials.Required {
		if os.Getenv(name) == "" {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return campaign.NewConfigurationError("required credentials are not set").
			WithContext("missing", strings.Join(missing, ", "))
	}

	return nil
}

// RetryPolicy builds the storage retry policy from the validated config.
func (c *Config) RetryPolicy() campaign.RetryPolicy {
	return campaign.RetryPolicy{
		MaxAttempts: *c.Retry.MaxAttempts,
		BaseDelay:   time.Duration(*c.Retry.BaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(*c.Retry.MaxDelayMs) * time.Millisecond,
	}
}

// StageTimeout returns the per-stage wall-clock bound.
func (c *Config) StageTimeout() time.Duration {
	return time.Duration(*c.StageTimeoutSeconds) * time.Second
}
