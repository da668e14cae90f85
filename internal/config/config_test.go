package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"windrisk/internal/cube"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "config/registry.yaml", cfg.Paths.RegistryFile)
	assert.Equal(t, []int{10, 50, 90}, cfg.Engine.Percentiles)
	assert.Equal(t, 50, cfg.Engine.Primary)
	assert.Equal(t, 1, cfg.Engine.StartYear)
	assert.Equal(t, 25, cfg.Engine.EndYear)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "windrisk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
logging:
  level: debug
engine:
  percentiles: [5, 50, 95]
  primary: 50
  start_year: 1
  end_year: 20
paths:
  scenario_file: data/scenario.yaml
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, []int{5, 50, 95}, cfg.Engine.Percentiles)
	assert.Equal(t, 20, cfg.Engine.EndYear)
	assert.Equal(t, "data/scenario.yaml", cfg.Paths.ScenarioFile)

	// Untouched sections still get defaults.
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "reports", cfg.Paths.ReportsDir)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "windrisk.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0644))

	t.Setenv("WINDRISK_SERVER_PORT", "7070")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "invalid log level",
		},
		{
			name:    "percentile out of range",
			mutate:  func(c *Config) { c.Engine.Percentiles = []int{10, 120}; c.Engine.Primary = 10 },
			wantErr: "outside 0-100",
		},
		{
			name:    "primary not listed",
			mutate:  func(c *Config) { c.Engine.Percentiles = []int{10, 90} },
			wantErr: "not in configured set",
		},
		{
			name:    "inverted horizon",
			mutate:  func(c *Config) { c.Engine.StartYear = 10; c.Engine.EndYear = 5 },
			wantErr: "before start year",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)

			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.validate(), tt.wantErr)
		})
	}
}

func TestEngineBuildParams(t *testing.T) {
	engine := EngineConfig{Percentiles: []int{10, 50, 90}, Primary: 50, StartYear: 1, EndYear: 25}

	params := engine.BuildParams()
	assert.Equal(t, []cube.Percentile{10, 50, 90}, params.Percentiles)
	assert.Equal(t, cube.Percentile(50), params.Primary)
	assert.Equal(t, 1, params.StartYear)
	assert.Equal(t, 25, params.EndYear)
	assert.NoError(t, params.Validate())
}
