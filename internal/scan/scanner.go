package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/raaihank/pii-sentinel/internal/apperrors"
	"github.com/raaihank/pii-sentinel/internal/catalog"
	"github.com/raaihank/pii-sentinel/internal/classify"
	"github.com/raaihank/pii-sentinel/internal/logger"
	"github.com/raaihank/pii-sentinel/internal/patterns"
	"github.com/raaihank/pii-sentinel/internal/results"
	"github.com/raaihank/pii-sentinel/internal/sampling"
)

// DefaultSampleCount is the number of rows sampled per table.
const DefaultSampleCount = 100

// Options selects what a scan covers.
type Options struct {
	Instances      []string
	Databases      []string
	Tables         []string
	Columns        []string
	ExcludeTables  []string
	ExcludeColumns []string
	SampleCount    int
	RawErrors      bool
	WhatIf         bool
}

// Stats counts what a scan touched.
type Stats struct {
	Instances     int `json:"instances"`
	Databases     int `json:"databases"`
	Tables        int `json:"tables"`
	Columns       int `json:"columns"`
	TablesSampled int `json:"tablesSampled"`
	EmptySamples  int `json:"emptySamples"`
	FailedSamples int `json:"failedSamples"`
}

// Result is the outcome of one run.
type Result struct {
	RunID    uuid.UUID
	Findings []classify.Finding
	Records  []results.Record
	Errors   []error
	Stats    Stats
}

// Scanner walks instances, databases, tables and columns in order and
// classifies every column it reaches.
type Scanner struct {
	connector   catalog.Connector
	rules       *patterns.RuleSet
	coordinator *sampling.Coordinator
	opts        Options
	logger      *logger.Logger

	databases catalog.NameFilter
	tables    catalog.NameFilter
	columns   catalog.NameFilter
}

// New validates opts and creates a scanner. Invalid input is reported as an
// apperrors.ConfigError.
func New(connector catalog.Connector, rules *patterns.RuleSet, coordinator *sampling.Coordinator, opts Options, log *logger.Logger) (*Scanner, error) {
	if connector == nil {
		return nil, &apperrors.ConfigError{Source: "scan", Err: errors.New("no connector configured")}
	}
	if rules == nil || rules.Empty() {
		return nil, &apperrors.ConfigError{Source: "rules", Err: apperrors.ErrNoRules}
	}

	instances := make([]string, 0, len(opts.Instances))
	for _, inst := range opts.Instances {
		if inst = strings.TrimSpace(inst); inst != "" {
			instances = append(instances, inst)
		}
	}
	if len(instances) == 0 {
		return nil, &apperrors.ConfigError{Source: "instance", Err: errors.New("at least one instance is required")}
	}
	opts.Instances = instances

	if opts.SampleCount == 0 {
		opts.SampleCount = DefaultSampleCount
	}
	if opts.SampleCount < 0 {
		return nil, &apperrors.ConfigError{Source: "sample count", Err: fmt.Errorf("must be positive, got %d", opts.SampleCount)}
	}

	if log == nil {
		log = logger.NewNop()
	}
	if coordinator == nil {
		coordinator = sampling.NewCoordinator(0, log.Logger)
	}

	return &Scanner{
		connector:   connector,
		rules:       rules,
		coordinator: coordinator,
		opts:        opts,
		logger:      log.WithComponent("scan"),
		databases:   catalog.NewNameFilter(opts.Databases, nil),
		tables:      catalog.NewNameFilter(opts.Tables, opts.ExcludeTables),
		columns:     catalog.NewNameFilter(opts.Columns, opts.ExcludeColumns),
	}, nil
}

// run holds the state of one Run call.
type run struct {
	log        *logger.Logger
	result     *Result
	agg        *results.Aggregator
	identities map[string]catalog.InstanceIdentity
	knownTypes []patterns.KnownType
	content    []patterns.ContentPattern

	// per instance, lower-cased names reached through the filters
	seenTables  map[string]struct{}
	seenColumns map[string]struct{}
}

// Run scans every instance. Scoped failures are collected in Result.Errors
// and the scan moves on to the next sibling; only cancellation of ctx stops
// it early.
func (s *Scanner) Run(ctx context.Context) (*Result, error) {
	r := &run{
		result:     &Result{RunID: uuid.New()},
		agg:        results.NewAggregator(),
		identities: make(map[string]catalog.InstanceIdentity),
		knownTypes: s.rules.KnownTypes(),
		content:    s.rules.ContentPatterns(),
	}
	r.log = s.logger.WithRunID(r.result.RunID.String())

	if s.opts.WhatIf {
		s.whatIf(r)
		return r.result, nil
	}

	r.log.Info("Scan started",
		zap.Int("instances", len(s.opts.Instances)),
		zap.Int("known_types", len(r.knownTypes)),
		zap.Int("content_patterns", len(r.content)),
		zap.Int("sample_count", s.opts.SampleCount))

	for _, instance := range s.opts.Instances {
		if err := ctx.Err(); err != nil {
			s.finish(r)
			return r.result, err
		}
		s.scanInstance(ctx, r, instance)
	}

	s.finish(r)
	r.log.Info("Scan completed",
		zap.Int("findings", len(r.result.Findings)),
		zap.Int("errors", len(r.result.Errors)),
		zap.Int("tables", r.result.Stats.Tables),
		zap.Int("columns", r.result.Stats.Columns))
	return r.result, nil
}

// whatIf logs the intended actions without touching any instance.
func (s *Scanner) whatIf(r *run) {
	for _, instance := range s.opts.Instances {
		r.log.Info("What if: would scan instance",
			zap.String("instance", instance),
			zap.Strings("databases", s.opts.Databases),
			zap.Strings("tables", s.opts.Tables),
			zap.Strings("columns", s.opts.Columns),
			zap.Int("sample_count", s.opts.SampleCount))
	}
}

func (s *Scanner) finish(r *run) {
	r.result.Findings = r.agg.Report()
	r.result.Records = make([]results.Record, 0, len(r.result.Findings))
	for _, f := range r.result.Findings {
		r.result.Records = append(r.result.Records, results.NewRecord(f, r.identities[f.Instance]))
	}
}

func (s *Scanner) scanInstance(ctx context.Context, r *run, instance string) {
	log := r.log.WithInstance(instance)

	session, err := s.connector.Connect(ctx, instance)
	if err != nil {
		s.report(r, log, &apperrors.ConnectionError{Instance: instance, Op: "connect", Err: err})
		return
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Debug("Failed to close session", zap.Error(err))
		}
	}()

	id := session.Identity()
	r.identities[instance] = id
	r.result.Stats.Instances++
	log.Info("Connected to instance",
		zap.String("computer_name", id.ComputerName),
		zap.String("instance_name", id.InstanceName))

	databases, err := session.ListDatabases(ctx)
	if err != nil {
		s.report(r, log, &apperrors.ConnectionError{Instance: instance, Op: "list databases", Err: err})
		return
	}

	seenDatabases := make(map[string]struct{})
	r.seenTables = make(map[string]struct{})
	r.seenColumns = make(map[string]struct{})
	for _, db := range databases {
		if !s.databases.Allows("", db) {
			continue
		}
		seenDatabases[strings.ToLower(db)] = struct{}{}
		if err := ctx.Err(); err != nil {
			return
		}
		s.scanDatabase(ctx, r, log, session, instance, db)
	}

	s.logMissing(log, "database", s.databases, seenDatabases)
	s.logMissing(log, "table", s.tables, r.seenTables)
	s.logMissing(log, "column", s.columns, r.seenColumns)
}

func (s *Scanner) scanDatabase(ctx context.Context, r *run, log *logger.Logger, session catalog.Session, instance, database string) {
	r.result.Stats.Databases++

	tables, err := session.ListTables(ctx, database)
	if err != nil {
		s.report(r, log, &apperrors.DataAccessError{Instance: instance, Database: database, Op: "list tables", Err: err})
		return
	}
	log.Debug("Listed tables", zap.String("database", database), zap.Int("tables", len(tables)))

	for _, table := range tables {
		if !s.tables.Allows(table.Schema, table.Name) {
			continue
		}
		r.seenTables[strings.ToLower(table.Name)] = struct{}{}
		r.seenTables[strings.ToLower(table.Schema+"."+table.Name)] = struct{}{}
		if err := ctx.Err(); err != nil {
			return
		}
		s.scanTable(ctx, r, log, session, instance, table)
	}
}

// scanTable classifies the columns of one table. Name rules run for every
// column first; the remaining sampleable columns share one sample query.
// Findings are recorded in column order.
func (s *Scanner) scanTable(ctx context.Context, r *run, log *logger.Logger, session catalog.Session, instance string, table catalog.TableMeta) {
	columns, err := session.ListColumns(ctx, table)
	if err != nil {
		s.report(r, log, &apperrors.DataAccessError{
			Instance: instance, Database: table.Database, Schema: table.Schema, Table: table.Name,
			Op: "list columns", Err: err,
		})
		return
	}

	var (
		refs          []classify.ColumnRef
		found         []*classify.Finding
		pending       []int
		sampleColumns []string
	)
	for _, col := range columns {
		if !s.columns.Allows("", col.Name) {
			continue
		}
		r.seenColumns[strings.ToLower(col.Name)] = struct{}{}
		ref := classify.ColumnRef{
			Instance: instance,
			Database: table.Database,
			Schema:   table.Schema,
			Table:    table.Name,
			Column:   col.Name,
		}
		if r.agg.Has(ref) {
			continue
		}

		f := classify.ClassifyByName(ref, r.knownTypes)
		refs = append(refs, ref)
		found = append(found, f)
		if f != nil {
			log.Debug("Column matched by name",
				zap.String("column", ref.String()),
				zap.String("pii_name", f.PiiName),
				zap.String("pattern", f.Pattern))
			continue
		}
		if col.Sampleable && len(r.content) > 0 {
			pending = append(pending, len(refs)-1)
			sampleColumns = append(sampleColumns, col.Name)
		}
	}
	if len(refs) == 0 {
		log.Debug("No columns to classify", zap.String("table", table.String()))
		return
	}

	r.result.Stats.Tables++
	r.result.Stats.Columns += len(refs)
	defer s.record(r, found)

	if len(sampleColumns) == 0 {
		return
	}

	sample, err := s.coordinator.GetSample(ctx, session, table, sampleColumns, s.opts.SampleCount)
	if err != nil {
		var dae *apperrors.DataAccessError
		if errors.As(err, &dae) && dae.Instance == "" {
			dae.Instance = instance
		}
		r.result.Stats.FailedSamples++
		s.report(r, log, err)
		return
	}
	r.result.Stats.TablesSampled++

	if sample.Empty() {
		r.result.Stats.EmptySamples++
		log.Info("Table returned no rows, content classification skipped", zap.String("table", table.String()))
		return
	}

	for _, i := range pending {
		f := classify.ClassifyByContent(refs[i], sample, r.content)
		if f == nil {
			continue
		}
		log.Debug("Column matched by content",
			zap.String("column", refs[i].String()),
			zap.String("pii_name", f.PiiName))
		found[i] = f
	}
}

func (s *Scanner) record(r *run, found []*classify.Finding) {
	for _, f := range found {
		if f != nil {
			r.agg.Record(*f)
		}
	}
}

// report collects a scoped error and logs it in the configured register.
func (s *Scanner) report(r *run, log *logger.Logger, err error) {
	r.result.Errors = append(r.result.Errors, err)
	if s.opts.RawErrors {
		log.Error("Scan step failed", zap.Error(err))
		return
	}
	log.Warn("Scan step failed", zap.String("reason", apperrors.Summary(err)))
}

func (s *Scanner) logMissing(log *logger.Logger, kind string, filter catalog.NameFilter, seen map[string]struct{}) {
	if !filter.Active() {
		return
	}
	for _, name := range filter.Missing(func(entry string) bool {
		_, ok := seen[entry]
		return ok
	}) {
		log.Info("Requested "+kind+" not found", zap.String(kind, name))
	}
}
