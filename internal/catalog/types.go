package catalog

import (
	"context"
	"fmt"
	"time"
)

// InstanceIdentity names the server a session is connected to.
type InstanceIdentity struct {
	ComputerName string `json:"computerName"`
	InstanceName string `json:"instanceName"`
	SqlInstance  string `json:"sqlInstance"`
}

// TableMeta describes one user table.
type TableMeta struct {
	Database string `db:"database_name"`
	Schema   string `db:"table_schema"`
	Name     string `db:"table_name"`
	RowCount int64  `db:"row_count"`
}

// String returns database.schema.table.
func (t TableMeta) String() string {
	return fmt.Sprintf("%s.%s.%s", t.Database, t.Schema, t.Name)
}

// ColumnMeta describes one column of a table. Sampleable is false for types
// the driver cannot decode into a comparable value.
type ColumnMeta struct {
	Name       string `db:"column_name"`
	DataType   string `db:"data_type"`
	Ordinal    int    `db:"ordinal_position"`
	Sampleable bool   `db:"-"`
}

// Row is one sampled row keyed by column name.
type Row map[string]any

// Session is a live connection to one instance. It is both the Catalog
// Provider and the Data Sampler of a scan.
type Session interface {
	Identity() InstanceIdentity
	ListDatabases(ctx context.Context) ([]string, error)
	ListTables(ctx context.Context, database string) ([]TableMeta, error)
	ListColumns(ctx context.Context, table TableMeta) ([]ColumnMeta, error)
	SampleRows(ctx context.Context, table TableMeta, columns []string, limit int) ([]Row, error)
	Close() error
}

// Connector opens sessions against instances.
type Connector interface {
	Connect(ctx context.Context, instance string) (Session, error)
}

// Options holds the connection settings shared by all drivers.
type Options struct {
	Username               string
	Password               string
	Port                   int
	Encrypt                bool
	TrustServerCertificate bool
	ConnectTimeout         time.Duration
	QueryTimeout           time.Duration
	ConnectRetries         int
	RetryDelay             time.Duration
}
