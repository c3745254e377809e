package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the monitor
type Config struct {
	// Sampling
	RefreshHz        float64 `yaml:"refresh_hz" env:"HIVETOP_REFRESH_HZ"`
	TopN             int     `yaml:"top_n" env:"HIVETOP_TOP_N"`
	SettleDelayMs    int     `yaml:"settle_delay_ms" env:"HIVETOP_SETTLE_DELAY_MS"`
	Workers          int     `yaml:"workers" env:"HIVETOP_WORKERS"`
	InspectTimeoutMs int     `yaml:"inspect_timeout_ms" env:"HIVETOP_INSPECT_TIMEOUT_MS"`

	// Presenters
	Terminal      bool       `yaml:"terminal" env:"HIVETOP_TERMINAL"`
	HTTP          HTTPConfig `yaml:"http"`
	DockerEnabled bool       `yaml:"docker" env:"HIVETOP_DOCKER_ENABLED"`

	// Logging
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
	LogFile  string `yaml:"log_file" env:"LOG_FILE"`

	// Where the settings came from
	ConfigFile string `yaml:"-" env:"HIVETOP_CONFIG"`
	EnvFile    string `yaml:"-" env:"ENV_FILE"`
}

// HTTPConfig controls the optional HTTP presenter
type HTTPConfig struct {
	Enabled        bool          `yaml:"enabled" env:"HIVETOP_HTTP_ENABLED"`
	Host           string        `yaml:"host" env:"HIVETOP_HOST"`
	Port           int           `yaml:"port" env:"HIVETOP_PORT"`
	ReadTimeout    time.Duration `yaml:"read_timeout" env:"HIVETOP_READ_TIMEOUT"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"HIVETOP_WRITE_TIMEOUT"`
	AllowedOrigins []string      `yaml:"allowed_origins" env:"HIVETOP_ALLOWED_ORIGINS" envSeparator:","`
	RateLimitRPS   int           `yaml:"rate_limit_rps" env:"HIVETOP_RATE_LIMIT_RPS"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		RefreshHz:        2,
		TopN:             20,
		SettleDelayMs:    500,
		Workers:          1,
		InspectTimeoutMs: 250,
		Terminal:         true,
		HTTP: HTTPConfig{
			Enabled:        false,
			Host:           "0.0.0.0",
			Port:           8092,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   0, // SSE streams stay open
			AllowedOrigins: []string{"*"},
			RateLimitRPS:   100,
		},
		DockerEnabled: false,
		LogLevel:      "info",
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// HIVETOP_CONFIG, then the .env file, then the process environment.
func Load() (*Config, error) {
	envFile := getEnvFile()

	// Load .env file if it exists, real environment variables win
	_ = godotenv.Load(envFile)

	cfg := Default()
	cfg.EnvFile = envFile

	if path := os.Getenv("HIVETOP_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("reading env vars: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing YAML configuration: %w", err)
	}
	c.ConfigFile = path
	return nil
}

// getEnvFile returns the path to the .env file
func getEnvFile() string {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		return envFile
	}
	return ".env"
}

// Validate rejects settings the monitor cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.RefreshHz <= 0 || math.IsNaN(c.RefreshHz) || math.IsInf(c.RefreshHz, 0) {
		errs = append(errs, fmt.Errorf("refresh_hz must be a positive finite number, got %v", c.RefreshHz))
	}
	if c.TopN <= 0 {
		errs = append(errs, fmt.Errorf("top_n must be positive, got %d", c.TopN))
	}
	if c.SettleDelayMs < 0 {
		errs = append(errs, fmt.Errorf("settle_delay_ms must not be negative, got %d", c.SettleDelayMs))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.InspectTimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("inspect_timeout_ms must not be negative, got %d", c.InspectTimeoutMs))
	}
	if c.HTTP.Enabled && (c.HTTP.Port <= 0 || c.HTTP.Port > 65535) {
		errs = append(errs, fmt.Errorf("http port out of range: %d", c.HTTP.Port))
	}
	if !c.Terminal && !c.HTTP.Enabled {
		errs = append(errs, errors.New("no presenter enabled, set terminal or http.enabled"))
	}
	return errors.Join(errs...)
}

// LoadWithDefaults loads config with defaults for testing
func LoadWithDefaults() *Config {
	cfg := Default()
	cfg.SettleDelayMs = 1
	cfg.RefreshHz = 100
	return cfg
}

// Period is the time between the starts of two cycles
func (c *Config) Period() time.Duration {
	return time.Duration(float64(time.Second) / c.RefreshHz)
}

// SettleDelay is the pause between priming baselines and measuring
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMs) * time.Millisecond
}

// InspectTimeout bounds one process inspection
func (c *Config) InspectTimeout() time.Duration {
	return time.Duration(c.InspectTimeoutMs) * time.Millisecond
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}
