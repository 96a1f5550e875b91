package mysql

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	driver "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/raaihank/pii-sentinel/internal/catalog"
)

// DefaultPort returns the default MySQL port.
func DefaultPort() int {
	return 3306
}

// Connector opens MySQL sessions.
type Connector struct {
	opts   catalog.Options
	logger *zap.Logger
	open   func(dsn string) (*sqlx.DB, error)
}

// NewConnector creates a MySQL connector. If logger is nil, a no-op logger
// is used.
func NewConnector(opts catalog.Options, logger *zap.Logger) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Port == 0 {
		opts.Port = DefaultPort()
	}
	return &Connector{
		opts:   opts,
		logger: logger,
		open: func(dsn string) (*sqlx.DB, error) {
			return sqlx.Open("mysql", dsn)
		},
	}
}

// Connect opens and verifies a connection to instance.
func (c *Connector) Connect(ctx context.Context, instance string) (catalog.Session, error) {
	addr := strings.TrimSpace(instance)
	if addr == "" {
		return nil, fmt.Errorf("instance name is empty")
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, strconv.Itoa(c.opts.Port))
	}

	cfg := driver.NewConfig()
	cfg.User = c.opts.Username
	cfg.Passwd = c.opts.Password
	cfg.Net = "tcp"
	cfg.Addr = addr
	cfg.ParseTime = true
	cfg.Timeout = c.opts.ConnectTimeout
	if c.opts.Encrypt {
		cfg.TLSConfig = "true"
		if c.opts.TrustServerCertificate {
			cfg.TLSConfig = "skip-verify"
		}
	}

	db, err := c.open(cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("open connection: %w", err)
	}

	err = catalog.Retry(ctx, c.opts.ConnectRetries, c.opts.RetryDelay, func() error {
		pingCtx, cancel := catalog.WithTimeout(ctx, c.opts.ConnectTimeout)
		defer cancel()
		return db.PingContext(pingCtx)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connection test failed: %w", err)
	}

	s := &Session{db: db, opts: c.opts, identity: catalog.InstanceIdentity{SqlInstance: instance}}

	var hostname string
	var port int
	if err := db.QueryRowxContext(ctx, "SELECT @@hostname, @@port").Scan(&hostname, &port); err != nil {
		db.Close()
		return nil, fmt.Errorf("query server identity: %w", err)
	}
	s.identity.ComputerName = hostname
	s.identity.InstanceName = strconv.Itoa(port)

	c.logger.Debug("Connected to MySQL", zap.String("addr", addr), zap.String("hostname", hostname))
	return s, nil
}

// Session implements catalog.Session for MySQL. Databases and schemas are
// the same thing, so TableMeta.Schema repeats the database name.
type Session struct {
	db       *sqlx.DB
	opts     catalog.Options
	identity catalog.InstanceIdentity
}

var systemSchemas = []string{"mysql", "information_schema", "performance_schema", "sys"}

// Identity implements catalog.Session.
func (s *Session) Identity() catalog.InstanceIdentity {
	return s.identity
}

// ListDatabases returns non-system schemas.
func (s *Session) ListDatabases(ctx context.Context) ([]string, error) {
	ctx, cancel := catalog.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()

	query, args, err := sqlx.In(`
		SELECT schema_name
		FROM information_schema.schemata
		WHERE schema_name NOT IN (?)
		ORDER BY schema_name`, systemSchemas)
	if err != nil {
		return nil, fmt.Errorf("build databases query: %w", err)
	}

	var names []string
	if err := s.db.SelectContext(ctx, &names, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query databases: %w", err)
	}
	return names, nil
}

// ListTables returns base tables of database.
func (s *Session) ListTables(ctx context.Context, database string) ([]catalog.TableMeta, error) {
	ctx, cancel := catalog.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()

	query := `
		SELECT table_schema AS table_schema, table_name AS table_name, COALESCE(table_rows, 0) AS row_count
		FROM information_schema.tables
		WHERE table_schema = ? AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	var tables []catalog.TableMeta
	if err := s.db.SelectContext(ctx, &tables, query, database); err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	for i := range tables {
		tables[i].Database = database
	}
	return tables, nil
}

// ListColumns returns the columns of table in ordinal order.
func (s *Session) ListColumns(ctx context.Context, table catalog.TableMeta) ([]catalog.ColumnMeta, error) {
	ctx, cancel := catalog.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()

	query := `
		SELECT column_name AS column_name, data_type AS data_type, ordinal_position AS ordinal_position
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position`

	var columns []catalog.ColumnMeta
	if err := s.db.SelectContext(ctx, &columns, query, table.Database, table.Name); err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	for i := range columns {
		columns[i].Sampleable = isSampleableType(columns[i].DataType)
	}
	return columns, nil
}

// SampleRows reads at most limit rows of the given columns. Text columns come
// back from the driver as []byte.
func (s *Session) SampleRows(ctx context.Context, table catalog.TableMeta, columns []string, limit int) ([]catalog.Row, error) {
	if len(columns) == 0 {
		return nil, nil
	}

	ctx, cancel := catalog.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()

	quoted := make([]string, 0, len(columns))
	for _, col := range columns {
		quoted = append(quoted, quoteIdent(col))
	}
	query := fmt.Sprintf("SELECT %s FROM %s.%s LIMIT %d",
		strings.Join(quoted, ", "),
		quoteIdent(table.Database),
		quoteIdent(table.Name),
		limit,
	)

	return catalog.QueryRows(ctx, s.db, query)
}

// Close releases the connection.
func (s *Session) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func quoteIdent(identifier string) string {
	return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
}

// isSampleableType reports whether the column holds text-renderable data.
func isSampleableType(dataType string) bool {
	switch strings.ToLower(dataType) {
	case "geometry", "point", "linestring", "polygon", "multipoint", "multilinestring", "multipolygon", "geometrycollection":
		return false
	default:
		return true
	}
}

var (
	_ catalog.Connector = (*Connector)(nil)
	_ catalog.Session   = (*Session)(nil)
)
