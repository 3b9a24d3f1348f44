// Package config holds the experiment configuration shared by the CLI
// commands. Every field is optional; the Get* methods supply defaults.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/masi-agreement/internal/experiment"
	"github.com/banshee-data/masi-agreement/internal/labelset"
	"github.com/banshee-data/masi-agreement/internal/logging"
	"github.com/banshee-data/masi-agreement/internal/report"
	"github.com/banshee-data/masi-agreement/internal/weights"
	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "AGREEMENT"

// ExperimentConfig is the JSON/env configuration of an agreement run.
type ExperimentConfig struct {
	// Ratings parsing
	Separator *string `json:"separator,omitempty" mapstructure:"separator"`
	Trim      *bool   `json:"trim,omitempty" mapstructure:"trim"`
	MaxLabels *int    `json:"max_labels,omitempty" mapstructure:"max_labels"`

	// Permutation test
	Trials          *int     `json:"trials,omitempty" mapstructure:"trials"`
	ConfidenceLevel *float64 `json:"confidence_level,omitempty" mapstructure:"confidence_level"`
	Workers         *int     `json:"workers,omitempty" mapstructure:"workers"`
	Seed            *uint64  `json:"seed,omitempty" mapstructure:"seed"`
	Budget          *string  `json:"budget,omitempty" mapstructure:"budget"` // duration string like "30s"

	// Output
	OutputDir *string `json:"output_dir,omitempty" mapstructure:"output_dir"`
	Bins      *int    `json:"bins,omitempty" mapstructure:"bins"`
	Database  *string `json:"database,omitempty" mapstructure:"database"`

	LogLevel  *string `json:"log_level,omitempty" mapstructure:"log_level"`
	LogFormat *string `json:"log_format,omitempty" mapstructure:"log_format"`
}

// Keys lists the configuration keys, as used by viper and the JSON file.
var Keys = []string{
	"separator", "trim", "max_labels",
	"trials", "confidence_level", "workers", "seed", "budget",
	"output_dir", "bins", "database",
	"log_level", "log_format",
}

const maxFileSize = 1 * 1024 * 1024 // 1MB

// LoadFile loads an ExperimentConfig from a JSON file. Fields omitted from
// the file stay nil and fall back to their defaults.
func LoadFile(path string) (*ExperimentConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, errors.Newf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to stat config file")
	}
	if fileInfo.Size() > maxFileSize {
		return nil, errors.Newf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	cfg := &ExperimentConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config JSON")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// Settings returns the set fields keyed by their configuration key, for
// layering a loaded file under flags and environment variables.
func (c *ExperimentConfig) Settings() map[string]any {
	m := make(map[string]any, len(Keys))
	put := func(key string, set bool, value func() any) {
		if set {
			m[key] = value()
		}
	}
	put("separator", c.Separator != nil, func() any { return *c.Separator })
	put("trim", c.Trim != nil, func() any { return *c.Trim })
	put("max_labels", c.MaxLabels != nil, func() any { return *c.MaxLabels })
	put("trials", c.Trials != nil, func() any { return *c.Trials })
	put("confidence_level", c.ConfidenceLevel != nil, func() any { return *c.ConfidenceLevel })
	put("workers", c.Workers != nil, func() any { return *c.Workers })
	put("seed", c.Seed != nil, func() any { return *c.Seed })
	put("budget", c.Budget != nil, func() any { return *c.Budget })
	put("output_dir", c.OutputDir != nil, func() any { return *c.OutputDir })
	put("bins", c.Bins != nil, func() any { return *c.Bins })
	put("database", c.Database != nil, func() any { return *c.Database })
	put("log_level", c.LogLevel != nil, func() any { return *c.LogLevel })
	put("log_format", c.LogFormat != nil, func() any { return *c.LogFormat })
	return m
}

// Load reads the configuration from v. Only keys that are set in v (by
// a changed flag, an AGREEMENT_* variable or the config file) are copied,
// so unset keys keep their defaults.
func Load(v *viper.Viper) (*ExperimentConfig, error) {
	sub := map[string]any{}
	for _, key := range Keys {
		if v.IsSet(key) {
			sub[key] = v.Get(key)
		}
	}

	cfg := &ExperimentConfig{}
	scoped := viper.New()
	if err := scoped.MergeConfigMap(sub); err != nil {
		return nil, errors.Wrap(err, "merge configuration")
	}
	if err := scoped.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decode configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// Validate checks that the set values are valid.
func (c *ExperimentConfig) Validate() error {
	if c.Separator != nil && *c.Separator == "" {
		return errors.New("separator must not be empty")
	}
	if c.Trials != nil && *c.Trials < 0 {
		return errors.Newf("trials must be non-negative, got %d", *c.Trials)
	}
	if c.ConfidenceLevel != nil {
		if cl := *c.ConfidenceLevel; !(cl > 0 && cl < 1) {
			return errors.Newf("confidence_level must be between 0 and 1 (exclusive), got %f", cl)
		}
	}
	if c.Workers != nil && *c.Workers < 0 {
		return errors.Newf("workers must be non-negative, got %d", *c.Workers)
	}
	if c.Budget != nil && *c.Budget != "" {
		d, err := time.ParseDuration(*c.Budget)
		if err != nil {
			return errors.Wrapf(err, "invalid budget '%s'", *c.Budget)
		}
		if d < 0 {
			return errors.Newf("budget must be non-negative, got %s", *c.Budget)
		}
	}
	if c.Bins != nil && *c.Bins <= 0 {
		return errors.Newf("bins must be positive, got %d", *c.Bins)
	}
	if c.MaxLabels != nil && *c.MaxLabels <= 0 {
		return errors.Newf("max_labels must be positive, got %d", *c.MaxLabels)
	}
	if c.LogLevel != nil {
		if _, err := logging.ParseLevel(*c.LogLevel); err != nil {
			return err
		}
	}
	if c.LogFormat != nil {
		switch logging.Format(*c.LogFormat) {
		case logging.FormatConsole, logging.FormatJSON, "":
		default:
			return errors.Newf("log_format must be console or json, got %q", *c.LogFormat)
		}
	}
	return nil
}

// GetSeparator returns the label separator or the default.
func (c *ExperimentConfig) GetSeparator() string {
	if c.Separator == nil {
		return labelset.DefaultSeparator
	}
	return *c.Separator
}

// GetTrim returns the trim flag or the default.
func (c *ExperimentConfig) GetTrim() bool {
	if c.Trim == nil {
		return false
	}
	return *c.Trim
}

// GetMaxLabels returns the matrix size warning threshold or the default.
func (c *ExperimentConfig) GetMaxLabels() int {
	if c.MaxLabels == nil {
		return weights.DefaultMaxLabels
	}
	return *c.MaxLabels
}

// GetTrials returns the number of permutation trials or the default.
func (c *ExperimentConfig) GetTrials() int {
	if c.Trials == nil {
		return experiment.DefaultTrials
	}
	return *c.Trials
}

// GetConfidenceLevel returns the confidence level or the default.
func (c *ExperimentConfig) GetConfidenceLevel() float64 {
	if c.ConfidenceLevel == nil {
		return experiment.DefaultConfidence
	}
	return *c.ConfidenceLevel
}

// GetWorkers returns the worker count; 0 means one per CPU.
func (c *ExperimentConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetSeed returns the seed and whether one was configured.
func (c *ExperimentConfig) GetSeed() (uint64, bool) {
	if c.Seed == nil {
		return 0, false
	}
	return *c.Seed, true
}

// GetBudget parses and returns the Budget as a time.Duration; 0 means
// unbounded.
func (c *ExperimentConfig) GetBudget() time.Duration {
	if c.Budget == nil || *c.Budget == "" {
		return 0
	}
	d, err := time.ParseDuration(*c.Budget)
	if err != nil {
		return 0
	}
	return d
}

// GetOutputDir returns the report directory or the default.
func (c *ExperimentConfig) GetOutputDir() string {
	if c.OutputDir == nil || *c.OutputDir == "" {
		return "agreement-report"
	}
	return *c.OutputDir
}

// GetBins returns the histogram bin count or the default.
func (c *ExperimentConfig) GetBins() int {
	if c.Bins == nil {
		return report.DefaultBins
	}
	return *c.Bins
}

// GetDatabase returns the run database path; empty disables storage.
func (c *ExperimentConfig) GetDatabase() string {
	if c.Database == nil {
		return ""
	}
	return *c.Database
}

// Logging returns the logger configuration.
func (c *ExperimentConfig) Logging() logging.Config {
	cfg := logging.Config{Level: "info", Format: logging.FormatConsole}
	if c.LogLevel != nil {
		cfg.Level = *c.LogLevel
	}
	if c.LogFormat != nil && *c.LogFormat != "" {
		cfg.Format = logging.Format(*c.LogFormat)
	}
	return cfg
}

// RunConfig converts c to the runner configuration using seed.
func (c *ExperimentConfig) RunConfig(seed uint64) experiment.Config {
	return experiment.Config{
		Separator:       c.GetSeparator(),
		Trim:            c.GetTrim(),
		MaxLabels:       c.GetMaxLabels(),
		Trials:          c.GetTrials(),
		ConfidenceLevel: c.GetConfidenceLevel(),
		Workers:         c.GetWorkers(),
		Seed:            seed,
		Budget:          c.GetBudget(),
	}
}
