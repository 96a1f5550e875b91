package scan

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/raaihank/pii-sentinel/internal/apperrors"
	"github.com/raaihank/pii-sentinel/internal/catalog"
	"github.com/raaihank/pii-sentinel/internal/classify"
	"github.com/raaihank/pii-sentinel/internal/logger"
	"github.com/raaihank/pii-sentinel/internal/patterns"
)

// fakeTable is one table of a fakeSession with its columns and rows.
type fakeTable struct {
	meta       catalog.TableMeta
	columns    []catalog.ColumnMeta
	rows       []catalog.Row
	sampleErr  error
	columnsErr error
}

type fakeSession struct {
	identity  catalog.InstanceIdentity
	databases []string
	tables    map[string][]*fakeTable
	listErr   error

	sampled [][]string
	closed  bool
}

func (f *fakeSession) Identity() catalog.InstanceIdentity { return f.identity }

func (f *fakeSession) ListDatabases(context.Context) ([]string, error) {
	return f.databases, f.listErr
}

func (f *fakeSession) ListTables(_ context.Context, database string) ([]catalog.TableMeta, error) {
	var metas []catalog.TableMeta
	for _, t := range f.tables[database] {
		metas = append(metas, t.meta)
	}
	return metas, nil
}

func (f *fakeSession) find(table catalog.TableMeta) *fakeTable {
	for _, t := range f.tables[table.Database] {
		if t.meta == table {
			return t
		}
	}
	return nil
}

func (f *fakeSession) ListColumns(_ context.Context, table catalog.TableMeta) ([]catalog.ColumnMeta, error) {
	t := f.find(table)
	if t.columnsErr != nil {
		return nil, t.columnsErr
	}
	return t.columns, nil
}

func (f *fakeSession) SampleRows(_ context.Context, table catalog.TableMeta, columns []string, limit int) ([]catalog.Row, error) {
	f.sampled = append(f.sampled, append([]string{table.Name}, columns...))
	t := f.find(table)
	if t.sampleErr != nil {
		return nil, t.sampleErr
	}
	if len(t.rows) > limit {
		return t.rows[:limit], nil
	}
	return t.rows, nil
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

type fakeConnector struct {
	sessions map[string]*fakeSession
	errs     map[string]error
	calls    []string
}

func (c *fakeConnector) Connect(_ context.Context, instance string) (catalog.Session, error) {
	c.calls = append(c.calls, instance)
	if err := c.errs[instance]; err != nil {
		return nil, err
	}
	return c.sessions[instance], nil
}

func cols(names ...string) []catalog.ColumnMeta {
	out := make([]catalog.ColumnMeta, 0, len(names))
	for i, n := range names {
		out = append(out, catalog.ColumnMeta{Name: n, DataType: "nvarchar", Ordinal: i + 1, Sampleable: true})
	}
	return out
}

func table(db, name string) catalog.TableMeta {
	return catalog.TableMeta{Database: db, Schema: "dbo", Name: name}
}

func testRules(t *testing.T) *patterns.RuleSet {
	t.Helper()
	rs, err := patterns.NewRuleSet(
		[]patterns.KnownType{
			{Name: "Email", Category: "Contact", Pattern: patterns.PatternList{"email"}},
		},
		[]patterns.ContentPattern{
			{Name: "SSN", Category: "National ID", Pattern: `^\d{3}-\d{2}-\d{4}$`, CountryCode: "US"},
			{Name: "Email", Category: "Contact", Pattern: `[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}`},
		},
	)
	require.NoError(t, err)
	return rs
}

func newSession() *fakeSession {
	return &fakeSession{
		identity:  catalog.InstanceIdentity{ComputerName: "BOX1", InstanceName: "MSSQLSERVER", SqlInstance: "BOX1"},
		databases: []string{"crm", "hr"},
		tables: map[string][]*fakeTable{
			"crm": {
				{
					meta:    table("crm", "Users"),
					columns: cols("Id", "UserEmail", "ssn_col", "Contact"),
					rows: []catalog.Row{
						{"Id": int64(1), "ssn_col": "123-45-6789", "Contact": nil},
						{"Id": int64(2), "ssn_col": nil, "Contact": "jane@example.com"},
						{"Id": int64(3), "ssn_col": "abc", "Contact": nil},
					},
				},
				{
					meta:    table("crm", "Empty"),
					columns: cols("ssn"),
				},
			},
			"hr": {
				{
					meta:      table("hr", "Broken"),
					columns:   cols("Notes"),
					sampleErr: errors.New("The SELECT permission was denied on the object 'Broken'"),
				},
				{
					meta:    table("hr", "Staff"),
					columns: cols("work_email", "tax_id"),
					rows:    []catalog.Row{{"work_email": "x@y.org", "tax_id": "111-22-3333"}},
				},
			},
		},
	}
}

func newScanner(t *testing.T, conn catalog.Connector, opts Options) *Scanner {
	t.Helper()
	s, err := New(conn, testRules(t), nil, opts, logger.NewNop())
	require.NoError(t, err)
	return s
}

func TestRun(t *testing.T) {
	session := newSession()
	conn := &fakeConnector{sessions: map[string]*fakeSession{"box1": session}}

	res, err := newScanner(t, conn, Options{Instances: []string{"box1"}}).Run(context.Background())
	require.NoError(t, err)

	type row struct {
		table, column, name string
		via                 classify.MatchedVia
	}
	var got []row
	for _, f := range res.Findings {
		got = append(got, row{f.Table, f.Column, f.PiiName, f.MatchedVia})
	}
	assert.Equal(t, []row{
		{"Users", "UserEmail", "Email", classify.NameRule},
		{"Users", "ssn_col", "SSN", classify.ContentRule},
		{"Users", "Contact", "Email", classify.ContentRule},
		{"Staff", "work_email", "Email", classify.NameRule},
		{"Staff", "tax_id", "SSN", classify.ContentRule},
	}, got)

	t.Run("one sample query per table without name matched columns", func(t *testing.T) {
		assert.Equal(t, [][]string{
			{"Users", "Id", "ssn_col", "Contact"},
			{"Empty", "ssn"},
			{"Broken", "Notes"},
			{"Staff", "tax_id"},
		}, session.sampled)
	})

	t.Run("failed sample is a scoped error", func(t *testing.T) {
		require.Len(t, res.Errors, 1)
		var dae *apperrors.DataAccessError
		require.True(t, errors.As(res.Errors[0], &dae))
		assert.Equal(t, "box1", dae.Instance)
		assert.Equal(t, "Broken", dae.Table)
		assert.Equal(t, "box1/hr.dbo.Broken", dae.Scope())
	})

	t.Run("records carry instance identity", func(t *testing.T) {
		require.Len(t, res.Records, len(res.Findings))
		assert.Equal(t, "BOX1", res.Records[0].ComputerName)
		assert.Equal(t, "MSSQLSERVER", res.Records[0].InstanceName)
		assert.Equal(t, "Column Name", res.Records[0].FoundWith)
		assert.Equal(t, "Content", res.Records[1].FoundWith)
		assert.Equal(t, "US", res.Records[1].CountryCode)
	})

	t.Run("stats", func(t *testing.T) {
		assert.Equal(t, Stats{
			Instances:     1,
			Databases:     2,
			Tables:        4,
			Columns:       8,
			TablesSampled: 3,
			EmptySamples:  1,
			FailedSamples: 1,
		}, res.Stats)
	})

	assert.True(t, session.closed)
	assert.NotEqual(t, uuid.Nil, res.RunID)
}

func TestRunConnectionFailureContinues(t *testing.T) {
	conn := &fakeConnector{
		sessions: map[string]*fakeSession{"good": newSession()},
		errs:     map[string]error{"bad": errors.New("dial tcp: lookup bad: no such host")},
	}

	res, err := newScanner(t, conn, Options{Instances: []string{"bad", "good"}}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"bad", "good"}, conn.calls)
	assert.NotEmpty(t, res.Findings)
	assert.Equal(t, 1, res.Stats.Instances)

	var ce *apperrors.ConnectionError
	require.True(t, errors.As(res.Errors[0], &ce))
	assert.Equal(t, "bad", ce.Instance)
	assert.Equal(t, "bad: could not connect: server unreachable, check the instance name and network", apperrors.Summary(ce))
}

func TestRunFilters(t *testing.T) {
	t.Run("table and column allow lists", func(t *testing.T) {
		session := newSession()
		conn := &fakeConnector{sessions: map[string]*fakeSession{"box1": session}}
		opts := Options{
			Instances: []string{"box1"},
			Databases: []string{"CRM"},
			Tables:    []string{"dbo.users"},
			Columns:   []string{"useremail", "ssn_col"},
		}

		res, err := newScanner(t, conn, opts).Run(context.Background())
		require.NoError(t, err)
		require.Len(t, res.Findings, 2)
		assert.Equal(t, "UserEmail", res.Findings[0].Column)
		assert.Equal(t, "ssn_col", res.Findings[1].Column)
		assert.Equal(t, 1, res.Stats.Databases)
		assert.Equal(t, [][]string{{"Users", "ssn_col"}}, session.sampled)
	})

	t.Run("exclude lists", func(t *testing.T) {
		conn := &fakeConnector{sessions: map[string]*fakeSession{"box1": newSession()}}
		opts := Options{
			Instances:      []string{"box1"},
			ExcludeTables:  []string{"Broken", "Empty"},
			ExcludeColumns: []string{"Contact", "tax_id"},
		}

		res, err := newScanner(t, conn, opts).Run(context.Background())
		require.NoError(t, err)
		assert.Empty(t, res.Errors)
		require.Len(t, res.Findings, 3)
		for _, f := range res.Findings {
			assert.NotEqual(t, "Contact", f.Column)
			assert.NotEqual(t, "tax_id", f.Column)
		}
	})

	t.Run("missing requested table is not an error", func(t *testing.T) {
		core, logs := observer.New(zapcore.InfoLevel)
		conn := &fakeConnector{sessions: map[string]*fakeSession{"box1": newSession()}}
		s, err := New(conn, testRules(t), nil, Options{Instances: []string{"box1"}, Tables: []string{"nope"}}, logger.Wrap(zap.New(core)))
		require.NoError(t, err)

		res, err := s.Run(context.Background())
		require.NoError(t, err)
		assert.Empty(t, res.Findings)
		assert.Empty(t, res.Errors)
		assert.Equal(t, 1, logs.FilterMessage("Requested table not found").Len())
	})
}

func TestRunNamePrecedence(t *testing.T) {
	session := &fakeSession{
		databases: []string{"db"},
		tables: map[string][]*fakeTable{
			"db": {{
				meta:    table("db", "T"),
				columns: cols("email"),
				rows:    []catalog.Row{{"email": "123-45-6789"}},
			}},
		},
	}
	conn := &fakeConnector{sessions: map[string]*fakeSession{"i": session}}

	res, err := newScanner(t, conn, Options{Instances: []string{"i"}}).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, classify.NameRule, res.Findings[0].MatchedVia)
	assert.Empty(t, session.sampled)
}

func TestRunNonSampleableColumns(t *testing.T) {
	session := &fakeSession{
		databases: []string{"db"},
		tables: map[string][]*fakeTable{
			"db": {{
				meta:    table("db", "Places"),
				columns: []catalog.ColumnMeta{{Name: "Location", DataType: "geography", Sampleable: false}},
			}},
		},
	}
	conn := &fakeConnector{sessions: map[string]*fakeSession{"i": session}}

	res, err := newScanner(t, conn, Options{Instances: []string{"i"}}).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Findings)
	assert.Empty(t, session.sampled)
	assert.Equal(t, 1, res.Stats.Columns)
}

func TestRunListFailures(t *testing.T) {
	session := newSession()
	session.tables["crm"][0].columnsErr = errors.New("Invalid object name 'Users'")
	conn := &fakeConnector{sessions: map[string]*fakeSession{"box1": session}}

	res, err := newScanner(t, conn, Options{Instances: []string{"box1"}}).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, "box1/crm.dbo.Users: could not list columns: object not found", apperrors.Summary(res.Errors[0]))

	failing := newSession()
	failing.listErr = errors.New("Login failed for user 'scan'")
	conn = &fakeConnector{sessions: map[string]*fakeSession{"box1": failing}}

	res, err = newScanner(t, conn, Options{Instances: []string{"box1"}}).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.True(t, strings.HasSuffix(apperrors.Summary(res.Errors[0]), "login failed, check the credential"))
}

func TestRunWhatIf(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	conn := &fakeConnector{sessions: map[string]*fakeSession{"box1": newSession()}}

	s, err := New(conn, testRules(t), nil, Options{Instances: []string{"box1", "box2"}, WhatIf: true}, logger.Wrap(zap.New(core)))
	require.NoError(t, err)

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, conn.calls)
	assert.Empty(t, res.Findings)
	assert.Equal(t, 2, logs.FilterMessage("What if: would scan instance").Len())
}

func TestRunCancelled(t *testing.T) {
	conn := &fakeConnector{sessions: map[string]*fakeSession{"box1": newSession()}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newScanner(t, conn, Options{Instances: []string{"box1"}}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, conn.calls)
	assert.NotNil(t, res)
}

func TestNew(t *testing.T) {
	rules := testRules(t)
	conn := &fakeConnector{}

	cases := []struct {
		name      string
		connector catalog.Connector
		rules     *patterns.RuleSet
		opts      Options
	}{
		{"no connector", nil, rules, Options{Instances: []string{"a"}}},
		{"no rules", conn, nil, Options{Instances: []string{"a"}}},
		{"empty rules", conn, &patterns.RuleSet{}, Options{Instances: []string{"a"}}},
		{"no instance", conn, rules, Options{Instances: []string{" "}}},
		{"negative sample count", conn, rules, Options{Instances: []string{"a"}, SampleCount: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.connector, tc.rules, nil, tc.opts, nil)
			var ce *apperrors.ConfigError
			assert.True(t, errors.As(err, &ce), "%v", err)
		})
	}

	t.Run("defaults sample count", func(t *testing.T) {
		s, err := New(conn, rules, nil, Options{Instances: []string{"a"}}, nil)
		require.NoError(t, err)
		assert.Equal(t, DefaultSampleCount, s.opts.SampleCount)
	})
}
