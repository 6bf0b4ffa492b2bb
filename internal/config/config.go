// Package config loads the atlas configuration.
//
// Values are resolved in three layers, later layers winning:
//
//  1. DefaultConfig
//  2. the YAML file, if one is given
//  3. ATLAS_* environment variables (ATLAS_LOG_LEVEL, ATLAS_BUILD_MAX_PARALLEL, ...)
//
// Collections can only be listed in the file.
package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/xtxerr/atlas/config"
	"github.com/xtxerr/atlas/internal/collection"
	"github.com/xtxerr/atlas/internal/errors"
	"github.com/xtxerr/atlas/internal/registry"
	"github.com/xtxerr/atlas/internal/validation"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ATLAS"

// Config represents the complete atlas configuration.
type Config struct {
	// Log configures logging.
	Log LogConfig `yaml:"log" envconfig:"LOG"`

	// Build configures collection construction.
	Build BuildConfig `yaml:"build" envconfig:"BUILD"`

	// Collections lists the collections loaded at startup.
	Collections []CollectionConfig `yaml:"collections" ignored:"true" validate:"unique=Name,dive"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is the minimum level: debug, info, warn, error.
	Level string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`

	// Format is the output encoding: console or json.
	Format string `yaml:"format" envconfig:"FORMAT" validate:"oneof=console json"`
}

// BuildConfig configures collection construction.
type BuildConfig struct {
	// RetainSeries keeps raw per-instrument series after materialization.
	RetainSeries bool `yaml:"retain_series" envconfig:"RETAIN_SERIES"`

	// MaxParallel bounds how many collections are built at once.
	MaxParallel int `yaml:"max_parallel" envconfig:"MAX_PARALLEL" validate:"min=1,max=64"`

	// XLSXSheet selects the worksheet of .xlsx instrument files.
	// Empty means the first sheet.
	XLSXSheet string `yaml:"xlsx_sheet" envconfig:"XLSX_SHEET"`

	// PercentileAccuracy is the relative accuracy of return percentiles.
	PercentileAccuracy float64 `yaml:"percentile_accuracy" envconfig:"PERCENTILE_ACCURACY" validate:"gt=0,lt=1"`
}

// CollectionConfig names one collection and its source directory.
type CollectionConfig struct {
	Name           string `yaml:"name" validate:"required,collname"`
	Source         string `yaml:"source" validate:"required"`
	DatetimeFormat string `yaml:"datetime_format" validate:"datetimefmt"`
}

// Spec converts the entry into a registry spec.
func (c CollectionConfig) Spec() registry.Spec {
	return registry.Spec{
		Name:           c.Name,
		Source:         c.Source,
		DatetimeFormat: c.DatetimeFormat,
	}
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  config.DefaultLogLevel,
			Format: config.DefaultLogFormat,
		},
		Build: BuildConfig{
			RetainSeries:       config.DefaultRetainSeries,
			MaxParallel:        config.DefaultMaxParallel,
			PercentileAccuracy: config.DefaultPercentileAccuracy,
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.NewConfiguration("read config file: %v", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.NewConfiguration("parse config file %s: %v", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, errors.NewConfiguration("environment: %v", err)
	}

	cfg.applyCollectionDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// AddCollection appends a collection, filling in the default datetime
// format. Call Validate afterwards.
func (c *Config) AddCollection(cc CollectionConfig) {
	c.Collections = append(c.Collections, cc)
	c.applyCollectionDefaults()
}

func (c *Config) applyCollectionDefaults() {
	for i := range c.Collections {
		if c.Collections[i].DatetimeFormat == "" {
			c.Collections[i].DatetimeFormat = config.DefaultDatetimeFormat
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return validation.Struct(c)
}

// Specs returns the registry specs of every configured collection.
func (c *Config) Specs() []registry.Spec {
	specs := make([]registry.Spec, len(c.Collections))
	for i, cc := range c.Collections {
		specs[i] = cc.Spec()
	}
	return specs
}

// CollectionOptions returns the build options implied by the build section.
func (c *Config) CollectionOptions() []collection.Option {
	return []collection.Option{
		collection.WithRetainSeries(c.Build.RetainSeries),
		collection.WithSheet(c.Build.XLSXSheet),
		collection.WithPercentileAccuracy(c.Build.PercentileAccuracy),
	}
}
