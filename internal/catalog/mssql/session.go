package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/microsoft/go-mssqldb" // SQL Server driver
	"go.uber.org/zap"

	"github.com/raaihank/pii-sentinel/internal/catalog"
)

// Connector opens SQL Server sessions.
type Connector struct {
	opts   catalog.Options
	logger *zap.Logger
	open   func(dsn string) (*sqlx.DB, error)
}

// NewConnector creates a SQL Server connector. If logger is nil, a no-op
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
			return sqlx.Open("sqlserver", dsn)
		},
	}
}

// Connect opens and verifies a connection to instance and reads its identity.
func (c *Connector) Connect(ctx context.Context, instance string) (catalog.Session, error) {
	target, err := ParseTarget(instance, c.opts.Port)
	if err != nil {
		return nil, err
	}

	dsn := target.DSN(c.opts)
	db, err := c.open(dsn)
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

	s := newSession(db, instance, c.opts, c.logger)
	if err := s.loadIdentity(ctx); err != nil {
		db.Close()
		return nil, err
	}

	c.logger.Debug("Connected to SQL Server",
		zap.String("dsn", catalog.MaskDSN(dsn)),
		zap.String("sql_instance", s.identity.SqlInstance))
	return s, nil
}

// Session implements catalog.Session for SQL Server. One connection serves
// every database through three-part names.
type Session struct {
	db       *sqlx.DB
	opts     catalog.Options
	logger   *zap.Logger
	identity catalog.InstanceIdentity
	types    map[string]map[string]string
}

func newSession(db *sqlx.DB, instance string, opts catalog.Options, logger *zap.Logger) *Session {
	return &Session{
		db:       db,
		opts:     opts,
		logger:   logger,
		identity: catalog.InstanceIdentity{SqlInstance: instance},
		types:    make(map[string]map[string]string),
	}
}

func (s *Session) loadIdentity(ctx context.Context) error {
	ctx, cancel := catalog.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()

	query := `
	SET NOCOUNT ON;
	SELECT
	    CAST(SERVERPROPERTY('MachineName') AS NVARCHAR(128)) AS computer_name,
	    CAST(SERVERPROPERTY('InstanceName') AS NVARCHAR(128)) AS instance_name,
	    CAST(@@SERVERNAME AS NVARCHAR(128)) AS server_name
	`
	var computer, instanceName, server sql.NullString
	if err := s.db.QueryRowxContext(ctx, query).Scan(&computer, &instanceName, &server); err != nil {
		return fmt.Errorf("query server identity: %w", err)
	}

	s.identity.ComputerName = computer.String
	s.identity.InstanceName = "MSSQLSERVER"
	if instanceName.Valid && instanceName.String != "" {
		s.identity.InstanceName = instanceName.String
	}
	if server.Valid && server.String != "" {
		s.identity.SqlInstance = server.String
	}
	return nil
}

// Identity implements catalog.Session.
func (s *Session) Identity() catalog.InstanceIdentity {
	return s.identity
}

// ListDatabases returns online user databases.
func (s *Session) ListDatabases(ctx context.Context) ([]string, error) {
	ctx, cancel := catalog.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()

	query := `
	SET NOCOUNT ON;
	SELECT name
	FROM sys.databases
	WHERE database_id > 4
	  AND state = 0
	ORDER BY name
	`
	var names []string
	if err := s.db.SelectContext(ctx, &names, query); err != nil {
		return nil, fmt.Errorf("query databases: %w", err)
	}
	return names, nil
}

// ListTables returns user tables of database (excludes ms-shipped objects).
func (s *Session) ListTables(ctx context.Context, database string) ([]catalog.TableMeta, error) {
	ctx, cancel := catalog.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()

	db := quoteName(database)
	query := fmt.Sprintf(`
	SET NOCOUNT ON;
	SELECT
	    sc.name AS table_schema,
	    t.name AS table_name,
	    COALESCE(SUM(p.rows), 0) AS row_count
	FROM %s.sys.tables t
	INNER JOIN %s.sys.schemas sc ON t.schema_id = sc.schema_id
	LEFT JOIN %s.sys.partitions p ON t.object_id = p.object_id AND p.index_id IN (0, 1)
	WHERE t.is_ms_shipped = 0
	GROUP BY sc.name, t.name
	ORDER BY table_schema, table_name
	`, db, db, db)

	var tables []catalog.TableMeta
	if err := s.db.SelectContext(ctx, &tables, query); err != nil {
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

	query := fmt.Sprintf(`
	SET NOCOUNT ON;
	SELECT
	    c.name AS column_name,
	    tp.name AS data_type,
	    c.column_id AS ordinal_position
	FROM %s.sys.columns c
	INNER JOIN %s.sys.types tp ON c.user_type_id = tp.user_type_id
	WHERE c.object_id = OBJECT_ID(@table)
	ORDER BY c.column_id
	`, quoteName(table.Database), quoteName(table.Database))

	var columns []catalog.ColumnMeta
	qualified := buildQualifiedName(table.Database, table.Schema, table.Name)
	if err := s.db.SelectContext(ctx, &columns, query, sql.Named("table", qualified)); err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}

	types := make(map[string]string, len(columns))
	for i := range columns {
		columns[i].Sampleable = isSampleableType(columns[i].DataType)
		types[columns[i].Name] = columns[i].DataType
	}
	s.types[table.String()] = types
	return columns, nil
}

// SampleRows reads at most limit rows of the given columns with a single
// SELECT TOP query.
func (s *Session) SampleRows(ctx context.Context, table catalog.TableMeta, columns []string, limit int) ([]catalog.Row, error) {
	if len(columns) == 0 {
		return nil, nil
	}

	ctx, cancel := catalog.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()

	types := s.types[table.String()]
	exprs := make([]string, 0, len(columns))
	for _, col := range columns {
		exprs = append(exprs, selectExpression(col, types[col]))
	}

	query := fmt.Sprintf("SELECT TOP (%d) %s FROM %s WITH (NOLOCK)",
		limit,
		strings.Join(exprs, ", "),
		buildQualifiedName(table.Database, table.Schema, table.Name),
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

var (
	_ catalog.Connector = (*Connector)(nil)
	_ catalog.Session   = (*Session)(nil)
)
