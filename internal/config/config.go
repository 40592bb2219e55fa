// Package config provides unified configuration loading for actprobe.
// It supports loading from YAML files, environment variables and dotted
// command-line overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nvandessel/actprobe/internal/activations"
	"github.com/nvandessel/actprobe/internal/ratelimit"
	"gopkg.in/yaml.v3"
)

// ProbeConfig contains all actprobe configuration settings.
type ProbeConfig struct {
	// Activations locates the extracted artifacts.
	Activations ActivationsConfig `json:"activations" yaml:"activations"`

	// Split controls train/test split creation.
	Split SplitConfig `json:"split" yaml:"split"`

	// Retention decides which exported splits prune keeps.
	Retention RetentionConfig `json:"retention" yaml:"retention"`

	// Catalog configures the SQLite catalog of dumps and splits.
	Catalog CatalogConfig `json:"catalog" yaml:"catalog"`

	// RateLimit throttles the MCP tools.
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`

	// Logging contains settings for operational and event logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// ActivationsConfig locates the output of the extraction step.
type ActivationsConfig struct {
	// Dir contains <name>_l<layer>.arrow dumps and ranges.arrow.
	Dir string `json:"dir" yaml:"dir"`

	// LabelPath overrides <dir>/labels.arrow.
	LabelPath string `json:"label_path,omitempty" yaml:"label_path,omitempty"`

	// Names lists activation streams in compact form, e.g. "hx1" for the
	// hidden state of layer 1.
	Names []string `json:"names" yaml:"names"`
}

// SplitConfig configures CreateDataSplit.
type SplitConfig struct {
	// SubsetSize limits the split to a random subset; -1 uses every row.
	SubsetSize int `json:"subset_size" yaml:"subset_size"`

	// Ratio is the fraction of rows assigned to the training set.
	Ratio float64 `json:"ratio" yaml:"ratio"`

	// OutputDir receives one sub-directory per exported split.
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// Seed makes splits reproducible when non-zero.
	Seed uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// RetentionConfig configures pruning of split.output_dir. A split survives
// if any configured rule keeps it.
type RetentionConfig struct {
	// MaxCount keeps this many newest splits per activation stream.
	MaxCount int `json:"max_count" yaml:"max_count"`

	// MaxAge keeps splits younger than this, e.g. "30d" or "2w".
	MaxAge string `json:"max_age,omitempty" yaml:"max_age,omitempty"`

	// MaxTotalSize keeps the newest splits up to this size, e.g. "5GB".
	MaxTotalSize string `json:"max_total_size,omitempty" yaml:"max_total_size,omitempty"`
}

// CatalogConfig configures the catalog database.
type CatalogConfig struct {
	// Path of the SQLite database. Defaults to <activations.dir>/catalog.db.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// RateLimitConfig holds one token-bucket limit per MCP tool.
type RateLimitConfig struct {
	Identities ToolLimit `json:"probe_identities" yaml:"probe_identities"`
	Index      ToolLimit `json:"probe_index" yaml:"probe_index"`
	Split      ToolLimit `json:"probe_split" yaml:"probe_split"`
}

// ToolLimit allows Burst calls at once, refilled at PerMinute. Both zero
// disables the limit.
type ToolLimit struct {
	PerMinute float64 `json:"per_minute" yaml:"per_minute"`
	Burst     int     `json:"burst" yaml:"burst"`
}

// Rules converts the configuration into limiter rules keyed by tool name.
func (c RateLimitConfig) Rules() ratelimit.Rules {
	rule := func(l ToolLimit) ratelimit.Rule {
		return ratelimit.Rule{PerMinute: l.PerMinute, Burst: l.Burst}
	}
	return ratelimit.Rules{
		"probe_identities": rule(c.Identities),
		"probe_index":      rule(c.Index),
		"probe_split":      rule(c.Split),
	}
}

// LoggingConfig configures actprobe's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" also enables the events.jsonl log next to exported splits.
	Level string `json:"level" yaml:"level"`
}

// Default returns a ProbeConfig with sensible defaults.
func Default() *ProbeConfig {
	return &ProbeConfig{
		Activations: ActivationsConfig{
			Dir:   "activations",
			Names: []string{},
		},
		Split: SplitConfig{
			SubsetSize: -1,
			Ratio:      0.9,
			OutputDir:  "splits",
		},
		Retention: RetentionConfig{
			MaxCount: 5,
		},
		RateLimit: defaultRateLimits(),
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func defaultRateLimits() RateLimitConfig {
	rules := ratelimit.DefaultRules()
	limit := func(tool string) ToolLimit {
		return ToolLimit{PerMinute: rules[tool].PerMinute, Burst: rules[tool].Burst}
	}
	return RateLimitConfig{
		Identities: limit("probe_identities"),
		Index:      limit("probe_index"),
		Split:      limit("probe_split"),
	}
}

// Load builds the effective configuration.
// Order: defaults -> path (when non-empty) -> environment variables -> overrides.
// Each override has the form "group.key=value".
func Load(path string, overrides []string) (*ProbeConfig, error) {
	cfg := Default()
	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileConfig
	}

	applyEnvOverrides(cfg)

	if len(overrides) > 0 {
		merged, err := ApplyOverrides(cfg, overrides)
		if err != nil {
			return nil, err
		}
		cfg = merged
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*ProbeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Activations.Dir = expandEnvVars(cfg.Activations.Dir)
	cfg.Activations.LabelPath = expandEnvVars(cfg.Activations.LabelPath)
	cfg.Split.OutputDir = expandEnvVars(cfg.Split.OutputDir)
	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *ProbeConfig) Validate() error {
	if c.Split.Ratio < 0 || c.Split.Ratio > 1 {
		return fmt.Errorf("split.ratio must be between 0 and 1, got %f", c.Split.Ratio)
	}
	if c.Split.SubsetSize != -1 && c.Split.SubsetSize <= 0 {
		return fmt.Errorf("split.subset_size must be positive or -1, got %d", c.Split.SubsetSize)
	}

	if c.Retention.MaxCount < 0 {
		return fmt.Errorf("retention.max_count must not be negative, got %d", c.Retention.MaxCount)
	}

	if _, err := c.Identities(); err != nil {
		return fmt.Errorf("activations.names: %w", err)
	}

	if err := c.RateLimit.Rules().Validate(); err != nil {
		return fmt.Errorf("rate_limit.%w", err)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}
	return nil
}

// Identities parses Activations.Names.
func (c *ProbeConfig) Identities() ([]activations.Identity, error) {
	return activations.ParseIdentities(c.Activations.Names)
}

// Store returns the artifact layout described by the config.
func (c *ProbeConfig) Store() activations.Store {
	return activations.NewStore(c.Activations.Dir, c.Activations.LabelPath)
}

// CatalogPath returns the configured catalog path or its default.
func (c *ProbeConfig) CatalogPath() string {
	if c.Catalog.Path != "" {
		return c.Catalog.Path
	}
	return filepath.Join(c.Activations.Dir, "catalog.db")
}

// Require returns an error naming the first dotted key that is unset.
func (c *ProbeConfig) Require(keys ...string) error {
	flat, err := flatten(c)
	if err != nil {
		return err
	}
	for _, k := range keys {
		v, ok := flat[k]
		if !ok || isZero(v) {
			return fmt.Errorf("--set %s=... should be provided (or set in the config file)", k)
		}
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *ProbeConfig) {
	if v := os.Getenv("ACTPROBE_ACTIVATIONS_DIR"); v != "" {
		cfg.Activations.Dir = v
	}
	if v := os.Getenv("ACTPROBE_LABEL_PATH"); v != "" {
		cfg.Activations.LabelPath = v
	}
	if v := os.Getenv("ACTPROBE_NAMES"); v != "" {
		cfg.Activations.Names = strings.Split(v, ",")
	}
	if v := os.Getenv("ACTPROBE_SPLIT_RATIO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Split.Ratio = f
		}
	}
	if v := os.Getenv("ACTPROBE_SUBSET_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Split.SubsetSize = n
		}
	}
	if v := os.Getenv("ACTPROBE_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Split.Seed = n
		}
	}
	if v := os.Getenv("ACTPROBE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
