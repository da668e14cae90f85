package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"windrisk/internal/cube"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Security SecurityConfig `yaml:"security" envconfig:"SECURITY"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Paths    PathsConfig    `yaml:"paths" envconfig:"PATHS"`
	Engine   EngineConfig   `yaml:"engine" envconfig:"ENGINE"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS" default:"true"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"100"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"50"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format      string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output      string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/app.log"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT" default:"false"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	RegistryFile string `yaml:"registry_file" envconfig:"REGISTRY_FILE" default:"config/registry.yaml"`
	MetricsFile  string `yaml:"metrics_file" envconfig:"METRICS_FILE" default:""`
	ScenarioFile string `yaml:"scenario_file" envconfig:"SCENARIO_FILE" default:"config/scenario.yaml"`
	ReportsDir   string `yaml:"reports_dir" envconfig:"REPORTS_DIR" default:"reports"`
}

// EngineConfig contains the default run parameters for cube builds. Requests
// may override the percentile set per build; these are the startup defaults.
type EngineConfig struct {
	Percentiles []int `yaml:"percentiles" envconfig:"PERCENTILES" default:"10,50,90"`
	Primary     int   `yaml:"primary" envconfig:"PRIMARY" default:"50"`
	StartYear   int   `yaml:"start_year" envconfig:"START_YEAR" default:"1"`
	EndYear     int   `yaml:"end_year" envconfig:"END_YEAR" default:"25"`
}

// BuildParams converts the engine defaults into cube build parameters.
func (e EngineConfig) BuildParams() cube.BuildParams {
	bands := make([]cube.Percentile, 0, len(e.Percentiles))
	for _, p := range e.Percentiles {
		bands = append(bands, cube.Percentile(p))
	}
	return cube.BuildParams{
		Percentiles: bands,
		Primary:     cube.Percentile(e.Primary),
		StartYear:   e.StartYear,
		EndYear:     e.EndYear,
	}
}

// Load loads configuration from environment variables and an optional YAML
// file. Environment variables win over file values.
func Load(configFile string) (*Config, error) {
	var cfg Config

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			fileCfg, err := loadFromFile(configFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load config from file: %w", err)
			}
			cfg = *fileCfg
		}
	}

	if err := envconfig.Process("WINDRISK", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills zero values that envconfig defaults cover only when
// the struct is processed from a clean slate.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "console"
	}
	if cfg.Logging.FilePath == "" {
		cfg.Logging.FilePath = "logs/app.log"
	}
	if cfg.Paths.RegistryFile == "" {
		cfg.Paths.RegistryFile = "config/registry.yaml"
	}
	if cfg.Paths.ScenarioFile == "" {
		cfg.Paths.ScenarioFile = "config/scenario.yaml"
	}
	if cfg.Paths.ReportsDir == "" {
		cfg.Paths.ReportsDir = "reports"
	}
	if len(cfg.Engine.Percentiles) == 0 {
		cfg.Engine.Percentiles = []int{10, 50, 90}
	}
	if cfg.Engine.Primary == 0 {
		cfg.Engine.Primary = 50
	}
	if cfg.Engine.StartYear == 0 {
		cfg.Engine.StartYear = 1
	}
	if cfg.Engine.EndYear == 0 {
		cfg.Engine.EndYear = 25
	}
	if cfg.Security.RateLimit.RPS == 0 {
		cfg.Security.RateLimit.RPS = 100
	}
	if cfg.Security.RateLimit.Burst == 0 {
		cfg.Security.RateLimit.Burst = 50
	}
}

// validate performs basic sanity checks on the configuration
func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	primaryListed := false
	for _, p := range c.Engine.Percentiles {
		if p < 0 || p > 100 {
			return fmt.Errorf("percentile %d outside 0-100", p)
		}
		if p == c.Engine.Primary {
			primaryListed = true
		}
	}
	if !primaryListed {
		return fmt.Errorf("primary percentile %d not in configured set", c.Engine.Primary)
	}
	if c.Engine.EndYear < c.Engine.StartYear {
		return fmt.Errorf("engine end year %d before start year %d", c.Engine.EndYear, c.Engine.StartYear)
	}

	return nil
}
