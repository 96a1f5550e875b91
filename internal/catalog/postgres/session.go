package postgres

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"

	"github.com/raaihank/pii-sentinel/internal/catalog"
)

// DefaultPort returns the default PostgreSQL port.
func DefaultPort() int {
	return 5432
}

const maintenanceDB = "postgres"

// Connector opens PostgreSQL sessions.
type Connector struct {
	opts   catalog.Options
	logger *zap.Logger
	open   func(dsn string) (*sqlx.DB, error)
}

// NewConnector creates a PostgreSQL connector. If logger is nil, a no-op
// logger is used.
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
			return sqlx.Open("postgres", dsn)
		},
	}
}

// Connect verifies the instance through its maintenance database. Each
// scanned database later gets its own handle.
func (c *Connector) Connect(ctx context.Context, instance string) (catalog.Session, error) {
	host, port, err := splitHostPort(instance, c.opts.Port)
	if err != nil {
		return nil, err
	}

	s := &Session{
		host:     host,
		port:     port,
		opts:     c.opts,
		open:     c.open,
		logger:   c.logger,
		handles:  make(map[string]*sqlx.DB),
		identity: catalog.InstanceIdentity{ComputerName: host, InstanceName: strconv.Itoa(port), SqlInstance: instance},
	}

	db, err := s.handle(ctx, maintenanceDB)
	if err != nil {
		s.Close()
		return nil, err
	}

	var serverName string
	if err := db.GetContext(ctx, &serverName, "SELECT COALESCE(host(inet_server_addr()), '') || ':' || current_setting('port')"); err != nil {
		s.Close()
		return nil, fmt.Errorf("query server identity: %w", err)
	}
	c.logger.Debug("Connected to PostgreSQL",
		zap.String("instance", instance),
		zap.String("server", serverName))
	return s, nil
}

// Session implements catalog.Session for PostgreSQL.
type Session struct {
	host     string
	port     int
	opts     catalog.Options
	open     func(dsn string) (*sqlx.DB, error)
	logger   *zap.Logger
	handles  map[string]*sqlx.DB
	identity catalog.InstanceIdentity
}

// handle returns a verified connection pool for database, opening it on
// first use.
func (s *Session) handle(ctx context.Context, database string) (*sqlx.DB, error) {
	if db, ok := s.handles[database]; ok {
		return db, nil
	}

	dsn := s.dsn(database)
	db, err := s.open(dsn)
	if err != nil {
		return nil, fmt.Errorf("open connection: %w", err)
	}
	db.SetMaxOpenConns(1)

	err = catalog.Retry(ctx, s.opts.ConnectRetries, s.opts.RetryDelay, func() error {
		pingCtx, cancel := catalog.WithTimeout(ctx, s.opts.ConnectTimeout)
		defer cancel()
		return db.PingContext(pingCtx)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connection test failed for %s: %w", catalog.MaskDSN(dsn), err)
	}

	s.handles[database] = db
	return db, nil
}

func (s *Session) dsn(database string) string {
	query := url.Values{}
	if s.opts.Encrypt {
		query.Add("sslmode", "require")
	} else {
		query.Add("sslmode", "disable")
	}
	if s.opts.ConnectTimeout > 0 {
		query.Add("connect_timeout", strconv.Itoa(int(s.opts.ConnectTimeout.Seconds())))
	}
	query.Add("application_name", "pii-sentinel")

	u := &url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(s.host, strconv.Itoa(s.port)),
		Path:     "/" + database,
		RawQuery: query.Encode(),
	}
	if s.opts.Username != "" {
		u.User = url.UserPassword(s.opts.Username, s.opts.Password)
	}
	return u.String()
}

// Identity implements catalog.Session.
func (s *Session) Identity() catalog.InstanceIdentity {
	return s.identity
}

// ListDatabases returns databases accepting connections, templates excluded.
func (s *Session) ListDatabases(ctx context.Context) ([]string, error) {
	db, err := s.handle(ctx, maintenanceDB)
	if err != nil {
		return nil, err
	}

	ctx, cancel := catalog.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()

	query := `
		SELECT datname
		FROM pg_database
		WHERE datistemplate = false
		  AND datallowconn = true
		ORDER BY datname`

	var names []string
	if err := db.SelectContext(ctx, &names, query); err != nil {
		return nil, fmt.Errorf("query databases: %w", err)
	}
	return names, nil
}

// ListTables returns base tables outside the system schemas.
func (s *Session) ListTables(ctx context.Context, database string) ([]catalog.TableMeta, error) {
	db, err := s.handle(ctx, database)
	if err != nil {
		return nil, err
	}

	ctx, cancel := catalog.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()

	query := `
		SELECT
			t.table_schema,
			t.table_name,
			COALESCE(c.reltuples, 0)::bigint AS row_count
		FROM information_schema.tables t
		LEFT JOIN pg_namespace n ON n.nspname = t.table_schema
		LEFT JOIN pg_class c ON c.relnamespace = n.oid AND c.relname = t.table_name
		WHERE t.table_type = 'BASE TABLE'
		  AND t.table_schema NOT IN ('pg_catalog', 'information_schema')
		ORDER BY t.table_schema, t.table_name`

	var tables []catalog.TableMeta
	if err := db.SelectContext(ctx, &tables, query); err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	for i := range tables {
		tables[i].Database = database
	}
	return tables, nil
}

// ListColumns returns the columns of table in ordinal order.
func (s *Session) ListColumns(ctx context.Context, table catalog.TableMeta) ([]catalog.ColumnMeta, error) {
	db, err := s.handle(ctx, table.Database)
	if err != nil {
		return nil, err
	}

	ctx, cancel := catalog.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()

	query := `
		SELECT column_name, data_type, ordinal_position
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`

	var columns []catalog.ColumnMeta
	if err := db.SelectContext(ctx, &columns, query, table.Schema, table.Name); err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	for i := range columns {
		columns[i].Sampleable = isSampleableType(columns[i].DataType)
	}
	return columns, nil
}

// SampleRows reads at most limit rows of the given columns.
func (s *Session) SampleRows(ctx context.Context, table catalog.TableMeta, columns []string, limit int) ([]catalog.Row, error) {
	if len(columns) == 0 {
		return nil, nil
	}

	db, err := s.handle(ctx, table.Database)
	if err != nil {
		return nil, err
	}

	ctx, cancel := catalog.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()

	quoted := make([]string, 0, len(columns))
	for _, col := range columns {
		quoted = append(quoted, quoteIdent(col))
	}
	query := fmt.Sprintf("SELECT %s FROM %s.%s LIMIT %d",
		strings.Join(quoted, ", "),
		quoteIdent(table.Schema),
		quoteIdent(table.Name),
		limit,
	)
	return catalog.QueryRows(ctx, db, query)
}

// Close releases every per-database handle.
func (s *Session) Close() error {
	var firstErr error
	for name, db := range s.handles {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.handles, name)
	}
	return firstErr
}

func quoteIdent(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

// isSampleableType reports whether lib/pq can return the type as a scalar.
func isSampleableType(dataType string) bool {
	switch strings.ToLower(dataType) {
	case "user-defined", "tsvector", "tsquery":
		return false
	default:
		return true
	}
}

func splitHostPort(instance string, defaultPort int) (string, int, error) {
	instance = strings.TrimSpace(instance)
	if instance == "" {
		return "", 0, fmt.Errorf("instance name is empty")
	}
	host, portStr, err := net.SplitHostPort(instance)
	if err != nil {
		return instance, defaultPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port in instance %q", instance)
	}
	return host, port, nil
}

var (
	_ catalog.Connector = (*Connector)(nil)
	_ catalog.Session   = (*Session)(nil)
)
