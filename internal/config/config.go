// Package config provides centralized configuration management for the
// engine runner. It loads configuration from environment variables with
// sensible defaults and validates all settings on startup to fail fast on
// misconfiguration.
package config

import "time"

// Config holds all runner configuration.
// All settings can be configured via environment variables.
type Config struct {
	Engine  EngineConfig
	Logging LoggingConfig
}

// EngineConfig holds pipeline tuning knobs. Manifest settings for a document
// type override the header and mapping values per run.
type EngineConfig struct {
	// HeaderSearchWindow is the number of leading rows scanned for a header
	// row per sheet (default: 25)
	HeaderSearchWindow int `env:"ENGINE_HEADER_SEARCH_WINDOW" default:"25"`

	// HeaderScoreThreshold is the minimum header score a row must reach
	// before it is eligible as a header (default: 1.0)
	HeaderScoreThreshold float64 `env:"ENGINE_HEADER_SCORE_THRESHOLD" default:"1.0"`

	// MappingScoreThreshold is the minimum detector score for a column to
	// map to a target field (default: 1.0)
	MappingScoreThreshold float64 `env:"ENGINE_MAPPING_SCORE_THRESHOLD" default:"1.0"`

	// MappingSampleRows is how many data rows the mapper samples per table
	// (default: 100)
	MappingSampleRows int `env:"ENGINE_MAPPING_SAMPLE_ROWS" default:"100"`

	// BlankRunLimit is the number of consecutive blank rows that closes a
	// table (default: 2)
	BlankRunLimit int `env:"ENGINE_BLANK_RUN_LIMIT" default:"2"`

	// SparseRowRatio is the non-empty fraction below which a row counts as
	// blank for table termination (default: 0.2)
	SparseRowRatio float64 `env:"ENGINE_SPARSE_ROW_RATIO" default:"0.2"`

	// JobTimeout is the maximum duration for one job (default: 10m)
	JobTimeout time.Duration `env:"ENGINE_JOB_TIMEOUT" default:"10m"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}
