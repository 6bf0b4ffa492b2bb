package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtxerr/atlas/internal/errors"
	"github.com/xtxerr/atlas/internal/registry"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "atlas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.True(t, cfg.Build.RetainSeries)
	assert.Equal(t, 4, cfg.Build.MaxParallel)
	assert.Equal(t, 0.01, cfg.Build.PercentileAccuracy)
	assert.Empty(t, cfg.Collections)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  format: json
build:
  retain_series: false
  max_parallel: 2
  xlsx_sheet: Prices
collections:
  - name: crypto
    source: /data/crypto
  - name: equities
    source: /data/equities
    datetime_format: "2006-01-02 15:04:05"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.False(t, cfg.Build.RetainSeries)
	assert.Equal(t, 2, cfg.Build.MaxParallel)
	assert.Equal(t, "Prices", cfg.Build.XLSXSheet)
	assert.Equal(t, 0.01, cfg.Build.PercentileAccuracy, "unset keys keep defaults")

	assert.Equal(t, []registry.Spec{
		{Name: "crypto", Source: "/data/crypto", DatetimeFormat: "%Y-%m-%d"},
		{Name: "equities", Source: "/data/equities", DatetimeFormat: "2006-01-02 15:04:05"},
	}, cfg.Specs())
	assert.Len(t, cfg.CollectionOptions(), 3)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "log:\n  level: debug\nbuild:\n  max_parallel: 2\n")
	t.Setenv("ATLAS_LOG_LEVEL", "warn")
	t.Setenv("ATLAS_BUILD_MAX_PARALLEL", "8")
	t.Setenv("ATLAS_BUILD_RETAIN_SERIES", "false")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 8, cfg.Build.MaxParallel)
	assert.False(t, cfg.Build.RetainSeries)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad yaml", "log: [", "parse config file"},
		{"bad level", "log:\n  level: loud\n", "log.level"},
		{"bad format", "log:\n  format: xml\n", "log.format"},
		{"zero parallel", "build:\n  max_parallel: 0\n", "build.max_parallel"},
		{"accuracy too high", "build:\n  percentile_accuracy: 1.5\n", "build.percentile_accuracy"},
		{"missing source", "collections:\n  - name: a\n", "collections[0].source"},
		{"bad name", "collections:\n  - name: a.b\n    source: /x\n", "collections[0].name"},
		{"bad datetime format", "collections:\n  - name: a\n    source: /x\n    datetime_format: \"%Q\"\n", "collections[0].datetime_format"},
		{"duplicate names", "collections:\n  - name: a\n    source: /x\n  - name: a\n    source: /y\n", "duplicate name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.True(t, errors.IsConfiguration(err), "got %v", err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}

func TestBadEnvironmentValue(t *testing.T) {
	t.Setenv("ATLAS_BUILD_MAX_PARALLEL", "many")
	_, err := Load("")
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}

func TestAddCollection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AddCollection(CollectionConfig{Name: "fx", Source: "/data/fx"})
	cfg.AddCollection(CollectionConfig{Name: "daily", Source: "/data/d", DatetimeFormat: "%d/%m/%Y"})
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []registry.Spec{
		{Name: "fx", Source: "/data/fx", DatetimeFormat: "%Y-%m-%d"},
		{Name: "daily", Source: "/data/d", DatetimeFormat: "%d/%m/%Y"},
	}, cfg.Specs())

	cfg.AddCollection(CollectionConfig{Name: "fx", Source: "/other"})
	assert.True(t, errors.IsConfiguration(cfg.Validate()))
}
