package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server" envconfig:"SERVER"`
	Security    SecurityConfig    `yaml:"security" envconfig:"SECURITY"`
	Logging     LoggingConfig     `yaml:"logging" envconfig:"LOGGING"`
	Paths       PathsConfig       `yaml:"paths" envconfig:"PATHS"`
	Oracle      OracleConfig      `yaml:"oracle" envconfig:"ORACLE"`
	Calibration CalibrationConfig `yaml:"calibration" envconfig:"CALIBRATION"`
	Correlation CorrelationConfig `yaml:"correlation" envconfig:"CORRELATION"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES" default:"1048576"`
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
	Output      string `yaml:"output" envconfig:"OUTPUT" default:"both"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/app.log"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT" default:"false"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	DataDir    string `yaml:"data_dir" envconfig:"DATA_DIR" default:"data"`
	ReportsDir string `yaml:"reports_dir" envconfig:"REPORTS_DIR" default:"reports"`
	LogsDir    string `yaml:"logs_dir" envconfig:"LOGS_DIR" default:"logs"`
}

// OracleConfig contains ranking oracle client configuration
type OracleConfig struct {
	BaseURL          string        `yaml:"base_url" envconfig:"BASE_URL" default:"http://localhost:9090"`
	Timeout          time.Duration `yaml:"timeout" envconfig:"TIMEOUT" default:"10s"`
	MaxRetries       int           `yaml:"max_retries" envconfig:"MAX_RETRIES" default:"3"`
	RetryBackoff     time.Duration `yaml:"retry_backoff" envconfig:"RETRY_BACKOFF" default:"500ms"`
	RequestsPerSec   float64       `yaml:"requests_per_sec" envconfig:"REQUESTS_PER_SEC" default:"2"`
	Burst            int           `yaml:"burst" envconfig:"BURST" default:"4"`
	BreakerThreshold int           `yaml:"breaker_threshold" envconfig:"BREAKER_THRESHOLD" default:"5"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown" envconfig:"BREAKER_COOLDOWN" default:"30s"`
}

// CalibrationConfig contains calibration cycle configuration
type CalibrationConfig struct {
	MinKeywordSamples int           `yaml:"min_keyword_samples" envconfig:"MIN_KEYWORD_SAMPLES" default:"5"`
	MinGlobalSamples  int           `yaml:"min_global_samples" envconfig:"MIN_GLOBAL_SAMPLES" default:"100"`
	MinFitQuality     float64       `yaml:"min_fit_quality" envconfig:"MIN_FIT_QUALITY" default:"0.3"`
	Lookback          time.Duration `yaml:"lookback" envconfig:"LOOKBACK" default:"720h"`
	Staleness         time.Duration `yaml:"staleness" envconfig:"STALENESS" default:"72h"`
	Workers           int           `yaml:"workers" envconfig:"WORKERS" default:"4"`
	Interval          time.Duration `yaml:"interval" envconfig:"INTERVAL" default:"6h"`
}

// CorrelationConfig contains significance analysis configuration
type CorrelationConfig struct {
	MinSamples        int           `yaml:"min_samples" envconfig:"MIN_SAMPLES" default:"30"`
	SignificanceLevel float64       `yaml:"significance_level" envconfig:"SIGNIFICANCE_LEVEL" default:"0.05"`
	Interval          time.Duration `yaml:"interval" envconfig:"INTERVAL" default:"24h"`
}

// Load loads configuration from environment variables and config file
func Load() (*Config, error) {
	var cfg Config

	// Load from environment variables first
	if err := envconfig.Process("PLACEPULSE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// Load from config file if exists
	configFile := getConfigFilePath()
	if configFile != "" {
		fileConfig, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileConfig, cfg)
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	// Ensure working directories exist
	if err := cfg.ensureDirectories(); err != nil {
		return nil, fmt.Errorf("path validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from YAML file
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

// mergeConfigs merges file config with env config (env takes precedence)
func mergeConfigs(fileConfig, envConfig Config) Config {
	if envConfig.Server.Port == 0 {
		envConfig.Server.Port = fileConfig.Server.Port
	}
	if envConfig.Server.ReadTimeout == 0 {
		envConfig.Server.ReadTimeout = fileConfig.Server.ReadTimeout
	}
	if envConfig.Server.WriteTimeout == 0 {
		envConfig.Server.WriteTimeout = fileConfig.Server.WriteTimeout
	}
	if envConfig.Oracle.BaseURL == "" {
		envConfig.Oracle.BaseURL = fileConfig.Oracle.BaseURL
	}
	if envConfig.Calibration.MinKeywordSamples == 0 {
		envConfig.Calibration.MinKeywordSamples = fileConfig.Calibration.MinKeywordSamples
	}
	if envConfig.Correlation.MinSamples == 0 {
		envConfig.Correlation.MinSamples = fileConfig.Correlation.MinSamples
	}

	return envConfig
}

// ensureDirectories creates the configured working directories when missing
func (c *Config) ensureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.ReportsDir, c.Paths.LogsDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// GetDataDir returns the resolved data directory path
func (c *Config) GetDataDir() string {
	return resolvePath(c.Paths.DataDir)
}

// GetReportsDir returns the resolved reports directory path
func (c *Config) GetReportsDir() string {
	return resolvePath(c.Paths.ReportsDir)
}

// GetLogsDir returns the resolved logs directory path
func (c *Config) GetLogsDir() string {
	return resolvePath(c.Paths.LogsDir)
}

func resolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.Oracle.BaseURL == "" {
		return fmt.Errorf("oracle base URL must be set")
	}

	if c.Calibration.MinFitQuality < 0 || c.Calibration.MinFitQuality > 1 {
		return fmt.Errorf("calibration min fit quality must be in [0, 1]: %f", c.Calibration.MinFitQuality)
	}

	if c.Correlation.SignificanceLevel <= 0 || c.Correlation.SignificanceLevel >= 1 {
		return fmt.Errorf("correlation significance level must be in (0, 1): %f", c.Correlation.SignificanceLevel)
	}

	// Structured logs are always JSON
	if c.Logging.Format != "json" {
		c.Logging.Format = "json"
	}

	if c.Logging.Output != "both" && c.Logging.Output != "file" && c.Logging.Output != "console" {
		c.Logging.Output = "both"
	}

	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/app.log"
	}

	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	// Check for config file in common locations
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1MB
			ShutdownTimeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "both",
			FilePath: "logs/app.log",
		},
		Paths: PathsConfig{
			DataDir:    "data",
			ReportsDir: "reports",
			LogsDir:    "logs",
		},
		Oracle: OracleConfig{
			BaseURL:          "http://localhost:9090",
			Timeout:          10 * time.Second,
			MaxRetries:       3,
			RetryBackoff:     500 * time.Millisecond,
			RequestsPerSec:   2,
			Burst:            4,
			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
		},
		Calibration: CalibrationConfig{
			MinKeywordSamples: 5,
			MinGlobalSamples:  100,
			MinFitQuality:     0.3,
			Lookback:          720 * time.Hour,
			Staleness:         72 * time.Hour,
			Workers:           4,
			Interval:          6 * time.Hour,
		},
		Correlation: CorrelationConfig{
			MinSamples:        30,
			SignificanceLevel: 0.05,
			Interval:          24 * time.Hour,
		},
	}
}
