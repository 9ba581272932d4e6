// Package config provides centralized configuration for the kline ingestion
// pipeline. Configuration is assembled from three sources in priority order:
// environment variables override a JSON config file, which overrides built-in
// defaults. Every run is a pure function of its Config plus filesystem and
// network state; there is no process-wide mutable configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Timeframes supported by the upstream monthly kline dataset.
var KnownTimeframes = []string{
	"1s", "1m", "3m", "5m", "15m", "30m",
	"1h", "2h", "4h", "6h", "8h", "12h", "1d",
}

// Mode selects how the ordering/dedup engine processes a series.
const (
	ModeAuto      = "auto"      // streaming for 1s, bulk otherwise
	ModeBulk      = "bulk"      // in-memory sort + dedup
	ModeStreaming = "streaming" // fixed-memory, relies on archive order
)

// Config holds one pipeline run's configuration.
type Config struct {
	// Data selection
	Symbol     string   `json:"symbol" env:"SYMBOL"`
	Timeframes []string `json:"timeframes" env:"TIMEFRAMES"`
	StartYear  int      `json:"start_year" env:"START_YEAR"`

	// Paths
	SourceDir string `json:"source_dir" env:"SOURCE_DIR"` // raw archive root
	DestDir   string `json:"dest_dir" env:"DEST_DIR"`     // canonical CSV output

	// Fetch phase
	BaseURL     string  `json:"base_url" env:"BASE_URL"`
	Concurrency int     `json:"concurrency" env:"CONCURRENCY"`
	RetryBudget int     `json:"retry_budget" env:"RETRY_BUDGET"`
	RetryDelay  string  `json:"retry_delay" env:"RETRY_DELAY"` // initial backoff delay
	RateLimit   float64 `json:"rate_limit" env:"RATE_LIMIT"`   // requests per second

	// Conversion phase
	Mode       string `json:"mode" env:"MODE"`               // auto | bulk | streaming
	StrictRows bool   `json:"strict_rows" env:"STRICT_ROWS"` // full decimal validation per row
	CheckOrder bool   `json:"check_order" env:"CHECK_ORDER"` // verify archive-name order before streaming

	// Logging
	Logging LoggingConfig `json:"logging"`
}

// LoggingConfig configures structured logging output.
type LoggingConfig struct {
	Level      string `json:"level" env:"LOG_LEVEL"`   // debug, info, warn, error
	Format     string `json:"format" env:"LOG_FORMAT"` // json, text
	Output     string `json:"output" env:"LOG_OUTPUT"` // stdout, stderr, file
	FilePath   string `json:"file_path" env:"LOG_FILE_PATH"`
	MaxSize    int    `json:"max_size" env:"LOG_MAX_SIZE"` // MB
	MaxBackups int    `json:"max_backups" env:"LOG_MAX_BACKUPS"`
	MaxAge     int    `json:"max_age" env:"LOG_MAX_AGE"` // days
	Compress   bool   `json:"compress" env:"LOG_COMPRESS"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Symbol:      "BTCUSDT",
		Timeframes:  []string{"1m", "1h", "1d"},
		StartYear:   2017, // BTCUSDT spot history starts 2017-08
		SourceDir:   "data/raw",
		DestDir:     "data",
		BaseURL:     "https://data.binance.vision",
		Concurrency: 4,
		RetryBudget: 3,
		RetryDelay:  "1s",
		RateLimit:   8,
		Mode:        ModeAuto,
		StrictRows:  false,
		CheckOrder:  true,
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// Load assembles configuration from defaults, an optional JSON file, and
// environment variable overrides, then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func loadFromEnv(cfg *Config) {
	if val := os.Getenv("SYMBOL"); val != "" {
		cfg.Symbol = val
	}
	if val := os.Getenv("TIMEFRAMES"); val != "" {
		parts := strings.Split(val, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.Timeframes = parts
	}
	if val := os.Getenv("START_YEAR"); val != "" {
		if year, err := strconv.Atoi(val); err == nil {
			cfg.StartYear = year
		}
	}
	if val := os.Getenv("SOURCE_DIR"); val != "" {
		cfg.SourceDir = val
	}
	if val := os.Getenv("DEST_DIR"); val != "" {
		cfg.DestDir = val
	}
	if val := os.Getenv("BASE_URL"); val != "" {
		cfg.BaseURL = val
	}
	if val := os.Getenv("CONCURRENCY"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Concurrency = n
		}
	}
	if val := os.Getenv("RETRY_BUDGET"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.RetryBudget = n
		}
	}
	if val := os.Getenv("RETRY_DELAY"); val != "" {
		cfg.RetryDelay = val
	}
	if val := os.Getenv("RATE_LIMIT"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.RateLimit = f
		}
	}
	if val := os.Getenv("MODE"); val != "" {
		cfg.Mode = val
	}
	if val := os.Getenv("STRICT_ROWS"); val != "" {
		cfg.StrictRows = val == "true"
	}
	if val := os.Getenv("CHECK_ORDER"); val != "" {
		cfg.CheckOrder = val == "true"
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}
	if val := os.Getenv("LOG_OUTPUT"); val != "" {
		cfg.Logging.Output = val
	}
	if val := os.Getenv("LOG_FILE_PATH"); val != "" {
		cfg.Logging.FilePath = val
	}
}

// Validate checks the configuration for consistency and required fields.
// All problems are aggregated into one error so the operator sees the full
// list at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Symbol == "" {
		errs = append(errs, "symbol is required")
	}
	if len(c.Timeframes) == 0 {
		errs = append(errs, "at least one timeframe is required")
	}
	for _, tf := range c.Timeframes {
		if !IsKnownTimeframe(tf) {
			errs = append(errs, fmt.Sprintf("unknown timeframe %q (valid: %s)", tf, strings.Join(KnownTimeframes, ", ")))
		}
	}
	if c.StartYear < 2017 || c.StartYear > time.Now().UTC().Year() {
		errs = append(errs, fmt.Sprintf("start_year %d out of range", c.StartYear))
	}
	if c.SourceDir == "" {
		errs = append(errs, "source_dir is required")
	}
	if c.DestDir == "" {
		errs = append(errs, "dest_dir is required")
	}
	if c.BaseURL == "" {
		errs = append(errs, "base_url is required")
	}
	if c.Concurrency <= 0 {
		errs = append(errs, "concurrency must be greater than 0")
	}
	if c.RetryBudget <= 0 {
		errs = append(errs, "retry_budget must be greater than 0")
	}
	if _, err := time.ParseDuration(c.RetryDelay); err != nil {
		errs = append(errs, fmt.Sprintf("retry_delay is not a valid duration: %v", err))
	}
	if c.RateLimit <= 0 {
		errs = append(errs, "rate_limit must be greater than 0")
	}
	switch c.Mode {
	case ModeAuto, ModeBulk, ModeStreaming:
	default:
		errs = append(errs, fmt.Sprintf("mode must be one of: %s, %s, %s", ModeAuto, ModeBulk, ModeStreaming))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation errors:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// IsKnownTimeframe reports whether tf is a timeframe the upstream publishes.
func IsKnownTimeframe(tf string) bool {
	for _, known := range KnownTimeframes {
		if tf == known {
			return true
		}
	}
	return false
}

// RetryDelayDuration returns the parsed initial retry delay.
// Validate guarantees the value parses.
func (c *Config) RetryDelayDuration() time.Duration {
	d, err := time.ParseDuration(c.RetryDelay)
	if err != nil {
		return time.Second
	}
	return d
}

// OutputPath returns the destination series file for a timeframe,
// e.g. data/BTCUSDT_1h.csv.
func (c *Config) OutputPath(timeframe string) string {
	return filepath.Join(c.DestDir, fmt.Sprintf("%s_%s.csv", c.Symbol, timeframe))
}

// ArchiveDir returns the local directory holding one timeframe's archives.
func (c *Config) ArchiveDir(timeframe string) string {
	return filepath.Join(c.SourceDir, timeframe)
}

// ModeFor resolves the engine mode for a timeframe. In auto mode the 1s
// series streams (hundreds of millions of rows) and everything else is bulk.
func (c *Config) ModeFor(timeframe string) string {
	if c.Mode != ModeAuto {
		return c.Mode
	}
	if timeframe == "1s" {
		return ModeStreaming
	}
	return ModeBulk
}
