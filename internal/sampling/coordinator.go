package sampling

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/raaihank/pii-sentinel/internal/apperrors"
	"github.com/raaihank/pii-sentinel/internal/catalog"
)

// Sampler fetches bounded row samples. catalog.Session implements it.
type Sampler interface {
	SampleRows(ctx context.Context, table catalog.TableMeta, columns []string, limit int) ([]catalog.Row, error)
}

// Coordinator issues one sample query per table, optionally throttled.
type Coordinator struct {
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewCoordinator creates a coordinator. ratePerSecond <= 0 disables
// throttling.
func NewCoordinator(ratePerSecond float64, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{logger: logger}
	if ratePerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(ratePerSecond), 1)
	}
	return c
}

// GetSample reads at most sampleCount rows of columns from table in a single
// query. No query is issued when columns is empty.
func (c *Coordinator) GetSample(ctx context.Context, s Sampler, table catalog.TableMeta, columns []string, sampleCount int) (*Sample, error) {
	if len(columns) == 0 || sampleCount <= 0 {
		return newSample(columns, nil), nil
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, dataAccessError(table, fmt.Errorf("failed to wait for sample slot: %w", err))
		}
	}

	rows, err := s.SampleRows(ctx, table, columns, sampleCount)
	if err != nil {
		return nil, dataAccessError(table, err)
	}
	if len(rows) > sampleCount {
		rows = rows[:sampleCount]
	}

	c.logger.Debug("Sampled table",
		zap.String("table", table.String()),
		zap.Int("columns", len(columns)),
		zap.Int("rows", len(rows)))

	return newSample(columns, rows), nil
}

func dataAccessError(table catalog.TableMeta, err error) error {
	return &apperrors.DataAccessError{
		Database: table.Database,
		Schema:   table.Schema,
		Table:    table.Name,
		Op:       "sample rows",
		Err:      err,
	}
}

// Sample is a read-only row sample of one table, held as column name to
// ordered values.
type Sample struct {
	rows   int
	values map[string][]any
}

func newSample(columns []string, rows []catalog.Row) *Sample {
	s := &Sample{rows: len(rows), values: make(map[string][]any, len(columns))}
	for _, col := range columns {
		vals := make([]any, 0, len(rows))
		for _, row := range rows {
			vals = append(vals, lookup(row, col))
		}
		s.values[col] = vals
	}
	return s
}

// lookup returns the value of column in row. Drivers may fold identifier
// case, so an exact key miss falls back to a case-insensitive match.
func lookup(row catalog.Row, column string) any {
	if v, ok := row[column]; ok {
		return v
	}
	for k, v := range row {
		if strings.EqualFold(k, column) {
			return v
		}
	}
	return nil
}

// Values returns the sampled values of column in row order, or nil when the
// column was not part of the sample.
func (s *Sample) Values(column string) []any {
	if s == nil {
		return nil
	}
	if v, ok := s.values[column]; ok {
		return v
	}
	for k, v := range s.values {
		if strings.EqualFold(k, column) {
			return v
		}
	}
	return nil
}

// Len returns the number of sampled rows.
func (s *Sample) Len() int {
	if s == nil {
		return 0
	}
	return s.rows
}

// Empty reports whether the sample holds no rows.
func (s *Sample) Empty() bool {
	return s.Len() == 0
}
