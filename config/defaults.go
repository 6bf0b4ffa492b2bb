// Package config provides configuration defaults for atlas.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or environment variables.
package config

// =============================================================================
// Logging Defaults
// =============================================================================

const (
	// DefaultLogLevel is the minimum level written to the log.
	// Override via config: log.level, env: ATLAS_LOG_LEVEL
	DefaultLogLevel = "info"

	// DefaultLogFormat selects console or json output.
	// Override via config: log.format, env: ATLAS_LOG_FORMAT
	DefaultLogFormat = "console"
)

// =============================================================================
// Build Defaults
// =============================================================================

const (
	// DefaultDatetimeFormat is used for collections that do not name one.
	// Either a Go reference layout or a strftime pattern.
	// Override via config: collections[].datetime_format
	DefaultDatetimeFormat = "%Y-%m-%d"

	// DefaultRetainSeries keeps raw per-instrument series after the aligned
	// matrix is materialized, so Instrument lookups keep working.
	// Override via config: build.retain_series, env: ATLAS_BUILD_RETAIN_SERIES
	DefaultRetainSeries = true

	// DefaultMaxParallel is how many collections LoadAll builds at once.
	// Each build is still single-threaded.
	// Range: 1-64
	// Override via config: build.max_parallel, env: ATLAS_BUILD_MAX_PARALLEL
	DefaultMaxParallel = 4

	// DefaultPercentileAccuracy is the relative accuracy of the return
	// percentile sketch. 0.01 means quantiles within 1% of the true value.
	// Override via config: build.percentile_accuracy
	DefaultPercentileAccuracy = 0.01
)

// =============================================================================
// Shell Defaults
// =============================================================================

const (
	// DefaultPrompt is the interactive shell prefix.
	DefaultPrompt = "atlas> "

	// DefaultTimelinePreview is how many timeline instants `timeline` prints
	// when no count is given.
	DefaultTimelinePreview = 10
)
