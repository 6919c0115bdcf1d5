// Package pipeline assembles the ChatBI workflow: intent classification,
// schema selection, query planning, SQL generation with bounded repair,
// execution, and chart, insight and answer generation over the result.
package pipeline

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config tunes the pipeline. Zero values mean defaults; Load applies them
// after parsing so a partial YAML file works.
type Config struct {
	// Language is the answer language tag, e.g. "en-US" or "zh-CN".
	// A per-request language on the input overrides it.
	Language string `yaml:"language"`

	// StepLimit caps node invocations per run.
	StepLimit int `yaml:"step_limit"`

	// NodeTimeoutSeconds is the per-node deadline in seconds.
	NodeTimeoutSeconds int `yaml:"node_timeout_seconds"`

	// MaxSQLRetries bounds the execution-to-SQL repair loop.
	MaxSQLRetries int `yaml:"max_sql_retries"`

	// SampleRows caps how many result rows are quoted in chart and
	// diagnosis prompts.
	SampleRows int `yaml:"sample_rows"`
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		Language:           "en-US",
		StepLimit:          25,
		NodeTimeoutSeconds: 60,
		MaxSQLRetries:      3,
		SampleRows:         5,
	}
}

// NodeTimeout returns the per-node deadline as a duration.
func (c Config) NodeTimeout() time.Duration {
	return time.Duration(c.NodeTimeoutSeconds) * time.Second
}

// Load reads a YAML config file and fills unset fields with defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Language == "" {
		c.Language = def.Language
	}
	if c.StepLimit <= 0 {
		c.StepLimit = def.StepLimit
	}
	if c.NodeTimeoutSeconds <= 0 {
		c.NodeTimeoutSeconds = def.NodeTimeoutSeconds
	}
	if c.MaxSQLRetries <= 0 {
		c.MaxSQLRetries = def.MaxSQLRetries
	}
	if c.SampleRows <= 0 {
		c.SampleRows = def.SampleRows
	}
}
