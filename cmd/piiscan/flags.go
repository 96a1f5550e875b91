package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/raaihank/pii-sentinel/internal/catalog"
	"github.com/raaihank/pii-sentinel/internal/catalog/mssql"
	"github.com/raaihank/pii-sentinel/internal/catalog/mysql"
	"github.com/raaihank/pii-sentinel/internal/catalog/postgres"
	"github.com/raaihank/pii-sentinel/internal/config"
	"github.com/raaihank/pii-sentinel/internal/logger"
	"github.com/raaihank/pii-sentinel/internal/patterns"
)

type cliFlags struct {
	configPath  string
	envFile     string
	showVersion bool
	listRules   bool

	instances      string
	driver         string
	user           string
	password       string
	databases      string
	tables         string
	columns        string
	excludeTables  string
	excludeColumns string
	countries      string
	countryCodes   string
	sampleCount    int
	sampleRate     float64
	rawErrors      bool
	whatIf         bool

	knownTypesFile           string
	patternsFile             string
	excludeDefaultKnownTypes bool
	excludeDefaultPatterns   bool

	output     string
	outputFile string
	logLevel   string
}

func registerFlags(fs *flag.FlagSet) *cliFlags {
	f := &cliFlags{}
	fs.StringVar(&f.configPath, "config", "", "Configuration file path")
	fs.StringVar(&f.envFile, "env-file", "", "Dotenv file with PIISCAN_* variables (default .env if present)")
	fs.BoolVar(&f.showVersion, "version", false, "Print version and exit")
	fs.BoolVar(&f.listRules, "list-rules", false, "Print the active rules after country filtering and exit")

	fs.StringVar(&f.instances, "instance", "", "Comma separated instances to scan")
	fs.StringVar(&f.driver, "driver", "sqlserver", "Database driver: sqlserver, postgres or mysql")
	fs.StringVar(&f.user, "user", "", "Login name")
	fs.StringVar(&f.password, "password", "", "Login password (prefer PIISCAN_DATABASE_PASSWORD)")
	fs.StringVar(&f.databases, "database", "", "Comma separated databases to scan (default all)")
	fs.StringVar(&f.tables, "table", "", "Comma separated tables, optionally schema.table")
	fs.StringVar(&f.columns, "column", "", "Comma separated columns")
	fs.StringVar(&f.excludeTables, "exclude-table", "", "Comma separated tables to skip")
	fs.StringVar(&f.excludeColumns, "exclude-column", "", "Comma separated columns to skip")
	fs.StringVar(&f.countries, "country", "", "Comma separated countries whose rules apply")
	fs.StringVar(&f.countryCodes, "country-code", "", "Comma separated country codes whose rules apply")
	fs.IntVar(&f.sampleCount, "sample-count", 100, "Rows sampled per table")
	fs.Float64Var(&f.sampleRate, "sample-rate", 0, "Max sample queries per second (0 = unlimited)")
	fs.BoolVar(&f.rawErrors, "raw-errors", false, "Report driver errors unfiltered and exit non-zero on any error")
	fs.BoolVar(&f.whatIf, "what-if", false, "Show what would be scanned without connecting")

	fs.StringVar(&f.knownTypesFile, "known-types-file", "", "Additional known types file (JSON or YAML)")
	fs.StringVar(&f.patternsFile, "patterns-file", "", "Additional content patterns file (JSON or YAML)")
	fs.BoolVar(&f.excludeDefaultKnownTypes, "exclude-default-known-types", false, "Do not load the built-in known types")
	fs.BoolVar(&f.excludeDefaultPatterns, "exclude-default-patterns", false, "Do not load the built-in content patterns")

	fs.StringVar(&f.output, "output", "", "Output format: table, csv, json or parquet (default from -output-file)")
	fs.StringVar(&f.outputFile, "output-file", "", "Write the report to a file instead of stdout")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	return f
}

// applyFlags copies explicitly set flags over the loaded configuration.
func applyFlags(fs *flag.FlagSet, f *cliFlags, cfg *config.Config) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "instance":
			cfg.Scan.Instances = splitList(f.instances)
		case "driver":
			cfg.Database.Driver = strings.ToLower(f.driver)
		case "user":
			cfg.Database.Username = f.user
		case "password":
			cfg.Database.Password = f.password
		case "database":
			cfg.Scan.Databases = splitList(f.databases)
		case "table":
			cfg.Scan.Tables = splitList(f.tables)
		case "column":
			cfg.Scan.Columns = splitList(f.columns)
		case "exclude-table":
			cfg.Scan.ExcludeTables = splitList(f.excludeTables)
		case "exclude-column":
			cfg.Scan.ExcludeColumns = splitList(f.excludeColumns)
		case "country":
			cfg.Scan.Countries = splitList(f.countries)
		case "country-code":
			cfg.Scan.CountryCodes = splitList(f.countryCodes)
		case "sample-count":
			cfg.Scan.SampleCount = f.sampleCount
		case "sample-rate":
			cfg.Scan.SampleRatePerSecond = f.sampleRate
		case "raw-errors":
			cfg.Scan.RawErrors = f.rawErrors
		case "what-if":
			cfg.Scan.WhatIf = f.whatIf
		case "known-types-file":
			cfg.Patterns.KnownTypesFile = f.knownTypesFile
		case "patterns-file":
			cfg.Patterns.PatternsFile = f.patternsFile
		case "exclude-default-known-types":
			cfg.Patterns.ExcludeDefaultKnownTypes = f.excludeDefaultKnownTypes
		case "exclude-default-patterns":
			cfg.Patterns.ExcludeDefaultPatterns = f.excludeDefaultPatterns
		case "output":
			cfg.Export.Format = strings.ToLower(f.output)
		case "output-file":
			cfg.Export.File = f.outputFile
		case "log-level":
			cfg.Logging.Level = strings.ToLower(f.logLevel)
		}
	})
}

// newConnector builds the catalog connector for the configured driver.
func newConnector(cfg *config.Config, log *logger.Logger) (catalog.Connector, error) {
	opts := catalog.Options{
		Username:               cfg.Database.Username,
		Password:               cfg.Database.Password,
		Port:                   cfg.Database.Port,
		Encrypt:                cfg.Database.Encrypt,
		TrustServerCertificate: cfg.Database.TrustServerCertificate,
		ConnectTimeout:         cfg.Database.ConnectTimeout,
		QueryTimeout:           cfg.Database.QueryTimeout,
		ConnectRetries:         cfg.Database.ConnectRetries,
		RetryDelay:             cfg.Database.RetryDelay,
	}
	zl := log.WithComponent("catalog").Logger

	switch cfg.Database.Driver {
	case "sqlserver":
		return mssql.NewConnector(opts, zl), nil
	case "postgres":
		return postgres.NewConnector(opts, zl), nil
	case "mysql":
		return mysql.NewConnector(opts, zl), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
}

func printRules(w io.Writer, rules *patterns.RuleSet) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Kind", "Name", "Category", "Pattern", "Country", "CountryCode"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)

	for _, kt := range rules.KnownTypes() {
		table.Append([]string{"Known type", kt.Name, kt.Category, strings.Join(kt.Pattern, " | "), kt.Country, kt.CountryCode})
	}
	for _, cp := range rules.ContentPatterns() {
		table.Append([]string{"Content", cp.Name, cp.Category, cp.Pattern, cp.Country, cp.CountryCode})
	}
	table.Render()
	return nil
}
