package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. PIISCAN_DATABASE_PASSWORD.
const EnvPrefix = "PIISCAN"

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	config := GetDefaults()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/pii-sentinel/")
	v.AddConfigPath("$HOME/.pii-sentinel/")

	// AutomaticEnv only resolves keys viper already knows about
	setDefaults(v, config)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("scan.instances", list(c.Scan.Instances))
	v.SetDefault("scan.databases", list(c.Scan.Databases))
	v.SetDefault("scan.tables", list(c.Scan.Tables))
	v.SetDefault("scan.columns", list(c.Scan.Columns))
	v.SetDefault("scan.exclude_tables", list(c.Scan.ExcludeTables))
	v.SetDefault("scan.exclude_columns", list(c.Scan.ExcludeColumns))
	v.SetDefault("scan.countries", list(c.Scan.Countries))
	v.SetDefault("scan.country_codes", list(c.Scan.CountryCodes))
	v.SetDefault("scan.sample_count", c.Scan.SampleCount)
	v.SetDefault("scan.sample_rate_per_second", c.Scan.SampleRatePerSecond)
	v.SetDefault("scan.raw_errors", c.Scan.RawErrors)
	v.SetDefault("scan.what_if", c.Scan.WhatIf)

	v.SetDefault("patterns.known_types_file", c.Patterns.KnownTypesFile)
	v.SetDefault("patterns.patterns_file", c.Patterns.PatternsFile)
	v.SetDefault("patterns.exclude_default_known_types", c.Patterns.ExcludeDefaultKnownTypes)
	v.SetDefault("patterns.exclude_default_patterns", c.Patterns.ExcludeDefaultPatterns)

	v.SetDefault("database.driver", c.Database.Driver)
	v.SetDefault("database.username", c.Database.Username)
	v.SetDefault("database.password", c.Database.Password)
	v.SetDefault("database.port", c.Database.Port)
	v.SetDefault("database.encrypt", c.Database.Encrypt)
	v.SetDefault("database.trust_server_certificate", c.Database.TrustServerCertificate)
	v.SetDefault("database.connect_timeout", c.Database.ConnectTimeout)
	v.SetDefault("database.query_timeout", c.Database.QueryTimeout)
	v.SetDefault("database.connect_retries", c.Database.ConnectRetries)
	v.SetDefault("database.retry_delay", c.Database.RetryDelay)

	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.format", c.Logging.Format)
	v.SetDefault("logging.file.enabled", c.Logging.File.Enabled)
	v.SetDefault("logging.file.path", c.Logging.File.Path)

	v.SetDefault("export.format", c.Export.Format)
	v.SetDefault("export.file", c.Export.File)
}

// list keeps empty slices as known keys so env overrides resolve
func list(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// Validate checks a configuration after flags have been applied
func Validate(config *Config) error {
	switch config.Database.Driver {
	case "sqlserver", "postgres", "mysql":
	default:
		return fmt.Errorf("invalid database driver: %s (must be sqlserver, postgres, or mysql)", config.Database.Driver)
	}

	if config.Database.Port < 0 || config.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", config.Database.Port)
	}

	if config.Database.ConnectRetries < 0 {
		return fmt.Errorf("invalid connect retries: %d", config.Database.ConnectRetries)
	}

	if config.Scan.SampleCount <= 0 {
		return fmt.Errorf("invalid sample count: %d (must be greater than 0)", config.Scan.SampleCount)
	}

	if config.Scan.SampleRatePerSecond < 0 {
		return fmt.Errorf("invalid sample rate: %v", config.Scan.SampleRatePerSecond)
	}

	switch config.Export.Format {
	case "", "table", "csv", "json", "parquet":
	default:
		return fmt.Errorf("invalid export format: %s (must be table, csv, json, or parquet)", config.Export.Format)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	return nil
}
