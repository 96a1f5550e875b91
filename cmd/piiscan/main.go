package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/raaihank/pii-sentinel/internal/apperrors"
	"github.com/raaihank/pii-sentinel/internal/config"
	"github.com/raaihank/pii-sentinel/internal/export"
	"github.com/raaihank/pii-sentinel/internal/logger"
	"github.com/raaihank/pii-sentinel/internal/patterns"
	"github.com/raaihank/pii-sentinel/internal/sampling"
	"github.com/raaihank/pii-sentinel/internal/scan"
)

const version = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("piiscan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	f := registerFlags(fs)
	fs.Usage = func() { usage(fs, stderr) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	if f.showVersion {
		fmt.Fprintf(stdout, "piiscan %s\n", version)
		return 0
	}

	// Credentials may come from a dotenv file
	if f.envFile != "" {
		if err := godotenv.Load(f.envFile); err != nil {
			fmt.Fprintf(stderr, "Failed to load env file: %v\n", err)
			return 1
		}
	} else {
		_ = godotenv.Load()
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}
	applyFlags(fs, f, cfg)
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(stderr, "Invalid configuration: %v\n", err)
		return 1
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   &logger.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})
	if err != nil {
		fmt.Fprintf(stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	rules, err := loadRules(cfg, log)
	if err != nil {
		log.Error("Failed to load rules", zap.Error(err))
		return 1
	}

	if f.listRules {
		if err := printRules(stdout, rules); err != nil {
			log.Error("Failed to print rules", zap.Error(err))
			return 1
		}
		return 0
	}

	if len(cfg.Scan.Instances) == 0 {
		fmt.Fprintf(stderr, "No instance given\n\n")
		usage(fs, stderr)
		return 1
	}

	format := export.DetectFormat(cfg.Export.File)
	if cfg.Export.Format != "" {
		if format, err = export.ParseFormat(cfg.Export.Format); err != nil {
			log.Error("Invalid output format", zap.Error(err))
			return 1
		}
	}

	connector, err := newConnector(cfg, log)
	if err != nil {
		log.Error("Failed to create connector", zap.Error(err))
		return 1
	}

	coordinator := sampling.NewCoordinator(cfg.Scan.SampleRatePerSecond, log.WithComponent("sampling").Logger)
	scanner, err := scan.New(connector, rules, coordinator, scanOptions(cfg), log)
	if err != nil {
		log.Error("Failed to create scanner", zap.Error(err))
		return 1
	}

	log.Info("Starting PII scan",
		zap.String("version", version),
		zap.String("driver", cfg.Database.Driver),
		zap.Strings("instances", cfg.Scan.Instances),
		zap.Bool("what_if", cfg.Scan.WhatIf))

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := scanner.Run(ctx)
	if err != nil {
		log.Error("Scan aborted", zap.Error(err))
		return 1
	}

	if err := writeReport(stdout, cfg.Export.File, format, res); err != nil {
		log.Error("Failed to write report", zap.Error(err))
		return 1
	}

	for _, scopedErr := range res.Errors {
		fmt.Fprintln(stderr, "error:", apperrors.Describe(scopedErr, cfg.Scan.RawErrors))
	}

	if cfg.Scan.RawErrors && len(res.Errors) > 0 {
		return 1
	}
	return 0
}

func usage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintf(w, "Usage: piiscan [options]\n")
	fmt.Fprintf(w, "\nOptions:\n")
	fs.PrintDefaults()
	fmt.Fprintf(w, "\nExamples:\n")
	fmt.Fprintf(w, "  piiscan -instance sql01 -user scan -database crm\n")
	fmt.Fprintf(w, "  piiscan -instance 'sql01\\SQLEXPRESS,sql02' -table dbo.Customers -output csv -output-file pii.csv\n")
	fmt.Fprintf(w, "  piiscan -driver postgres -instance pg01:5432 -country-code US,GB\n")
	fmt.Fprintf(w, "  piiscan -list-rules -country Netherlands\n")
}

func loadRules(cfg *config.Config, log *logger.Logger) (*patterns.RuleSet, error) {
	if cfg.Patterns.ExcludeDefaultKnownTypes && cfg.Patterns.KnownTypesFile == "" {
		log.Warn("Default known types excluded and no known types file given; column names will not be classified")
	}
	if cfg.Patterns.ExcludeDefaultPatterns && cfg.Patterns.PatternsFile == "" {
		log.Warn("Default patterns excluded and no patterns file given; column content will not be classified")
	}

	rules, err := patterns.Load(patterns.LoadOptions{
		KnownTypesFile:           cfg.Patterns.KnownTypesFile,
		PatternsFile:             cfg.Patterns.PatternsFile,
		ExcludeDefaultKnownTypes: cfg.Patterns.ExcludeDefaultKnownTypes,
		ExcludeDefaultPatterns:   cfg.Patterns.ExcludeDefaultPatterns,
	})
	if err != nil {
		return nil, err
	}

	filtered := patterns.Filter(rules, cfg.Scan.Countries, cfg.Scan.CountryCodes)
	if filtered.Empty() {
		return nil, &apperrors.ConfigError{Source: "country filter", Err: apperrors.ErrNoRules}
	}

	log.Debug("Rules loaded",
		zap.Int("known_types", len(filtered.KnownTypes())),
		zap.Int("content_patterns", len(filtered.ContentPatterns())))
	return filtered, nil
}

func scanOptions(cfg *config.Config) scan.Options {
	return scan.Options{
		Instances:      cfg.Scan.Instances,
		Databases:      cfg.Scan.Databases,
		Tables:         cfg.Scan.Tables,
		Columns:        cfg.Scan.Columns,
		ExcludeTables:  cfg.Scan.ExcludeTables,
		ExcludeColumns: cfg.Scan.ExcludeColumns,
		SampleCount:    cfg.Scan.SampleCount,
		RawErrors:      cfg.Scan.RawErrors,
		WhatIf:         cfg.Scan.WhatIf,
	}
}

func writeReport(stdout io.Writer, path string, format export.Format, res *scan.Result) error {
	if path == "" {
		return export.Write(stdout, format, res.Records)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := export.Write(file, format, res.Records); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// splitList splits a comma separated flag value, dropping empty entries.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
