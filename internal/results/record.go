package results

import (
	"github.com/raaihank/pii-sentinel/internal/catalog"
	"github.com/raaihank/pii-sentinel/internal/classify"
)

// Record is the flat output row of one finding.
type Record struct {
	ComputerName string `json:"computerName" parquet:"computer_name"`
	InstanceName string `json:"instanceName" parquet:"instance_name"`
	SqlInstance  string `json:"sqlInstance" parquet:"sql_instance"`
	Database     string `json:"database" parquet:"database"`
	Schema       string `json:"schema" parquet:"schema"`
	Table        string `json:"table" parquet:"table"`
	Column       string `json:"column" parquet:"column"`
	PiiName      string `json:"piiName" parquet:"pii_name"`
	PiiCategory  string `json:"piiCategory" parquet:"pii_category"`
	FoundWith    string `json:"foundWith" parquet:"found_with"`
	Country      string `json:"country,omitempty" parquet:"country"`
	CountryCode  string `json:"countryCode,omitempty" parquet:"country_code"`
}

// NewRecord flattens f with the identity of the instance it was found on.
func NewRecord(f classify.Finding, id catalog.InstanceIdentity) Record {
	return Record{
		ComputerName: id.ComputerName,
		InstanceName: id.InstanceName,
		SqlInstance:  id.SqlInstance,
		Database:     f.Database,
		Schema:       f.Schema,
		Table:        f.Table,
		Column:       f.Column,
		PiiName:      f.PiiName,
		PiiCategory:  f.PiiCategory,
		FoundWith:    f.MatchedVia.String(),
		Country:      f.Country,
		CountryCode:  f.CountryCode,
	}
}

// Headers returns the column titles of a Record in field order.
func Headers() []string {
	return []string{
		"ComputerName", "InstanceName", "SqlInstance", "Database", "Schema", "Table",
		"Column", "PiiName", "PiiCategory", "FoundWith", "Country", "CountryCode",
	}
}

// Fields returns the values of r in Headers order.
func (r Record) Fields() []string {
	return []string{
		r.ComputerName, r.InstanceName, r.SqlInstance, r.Database, r.Schema, r.Table,
		r.Column, r.PiiName, r.PiiCategory, r.FoundWith, r.Country, r.CountryCode,
	}
}
