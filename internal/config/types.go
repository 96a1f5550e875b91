package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Scan     ScanConfig     `yaml:"scan" mapstructure:"scan"`
	Patterns PatternsConfig `yaml:"patterns" mapstructure:"patterns"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Logging  LoggingConfig  `yaml:"logging" mapstructure:"logging"`
	Export   ExportConfig   `yaml:"export" mapstructure:"export"`
}

// ScanConfig selects the scan scope
type ScanConfig struct {
	Instances           []string `yaml:"instances" mapstructure:"instances"`
	Databases           []string `yaml:"databases" mapstructure:"databases"`
	Tables              []string `yaml:"tables" mapstructure:"tables"`
	Columns             []string `yaml:"columns" mapstructure:"columns"`
	ExcludeTables       []string `yaml:"exclude_tables" mapstructure:"exclude_tables"`
	ExcludeColumns      []string `yaml:"exclude_columns" mapstructure:"exclude_columns"`
	Countries           []string `yaml:"countries" mapstructure:"countries"`
	CountryCodes        []string `yaml:"country_codes" mapstructure:"country_codes"`
	SampleCount         int      `yaml:"sample_count" mapstructure:"sample_count"`
	SampleRatePerSecond float64  `yaml:"sample_rate_per_second" mapstructure:"sample_rate_per_second"` // 0 = unlimited
	RawErrors           bool     `yaml:"raw_errors" mapstructure:"raw_errors"`
	WhatIf              bool     `yaml:"what_if" mapstructure:"what_if"`
}

// PatternsConfig points at user rule files
type PatternsConfig struct {
	KnownTypesFile           string `yaml:"known_types_file" mapstructure:"known_types_file"`
	PatternsFile             string `yaml:"patterns_file" mapstructure:"patterns_file"`
	ExcludeDefaultKnownTypes bool   `yaml:"exclude_default_known_types" mapstructure:"exclude_default_known_types"`
	ExcludeDefaultPatterns   bool   `yaml:"exclude_default_patterns" mapstructure:"exclude_default_patterns"`
}

// DatabaseConfig contains connection settings
type DatabaseConfig struct {
	Driver                 string        `yaml:"driver" mapstructure:"driver"` // sqlserver, postgres or mysql
	Username               string        `yaml:"username" mapstructure:"username"`
	Password               string        `yaml:"password" mapstructure:"password"`
	Port                   int           `yaml:"port" mapstructure:"port"` // 0 = driver default
	Encrypt                bool          `yaml:"encrypt" mapstructure:"encrypt"`
	TrustServerCertificate bool          `yaml:"trust_server_certificate" mapstructure:"trust_server_certificate"`
	ConnectTimeout         time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
	QueryTimeout           time.Duration `yaml:"query_timeout" mapstructure:"query_timeout"`
	ConnectRetries         int           `yaml:"connect_retries" mapstructure:"connect_retries"`
	RetryDelay             time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Path    string `yaml:"path" mapstructure:"path"`
	} `yaml:"file" mapstructure:"file"`
}

// ExportConfig selects the report encoding
type ExportConfig struct {
	Format string `yaml:"format" mapstructure:"format"` // empty = detect from file
	File   string `yaml:"file" mapstructure:"file"`     // empty = stdout
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	cfg := &Config{
		Scan: ScanConfig{
			SampleCount: 100,
		},
		Database: DatabaseConfig{
			Driver:                 "sqlserver",
			TrustServerCertificate: true,
			ConnectTimeout:         15 * time.Second,
			QueryTimeout:           60 * time.Second,
			ConnectRetries:         2,
			RetryDelay:             time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
	cfg.Logging.File.Path = "logs/piiscan.log"
	return cfg
}
