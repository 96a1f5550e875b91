package classify

import "fmt"

// ColumnRef identifies one scan target. Instance keeps identically named
// databases on different servers apart.
type ColumnRef struct {
	Instance string `json:"instance"`
	Database string `json:"database"`
	Schema   string `json:"schema"`
	Table    string `json:"table"`
	Column   string `json:"column"`
}

// String returns database.schema.table.column, prefixed with the instance
// when known.
func (r ColumnRef) String() string {
	s := fmt.Sprintf("%s.%s.%s.%s", r.Database, r.Schema, r.Table, r.Column)
	if r.Instance == "" {
		return s
	}
	return r.Instance + "/" + s
}

// MatchedVia tells which strategy produced a finding.
type MatchedVia int

const (
	// NameRule means the column name matched a known type.
	NameRule MatchedVia = iota + 1
	// ContentRule means a sampled value matched a content pattern.
	ContentRule
)

func (m MatchedVia) String() string {
	switch m {
	case NameRule:
		return "Column Name"
	case ContentRule:
		return "Content"
	default:
		return "Unknown"
	}
}

// Finding is one PII classification of a single column.
type Finding struct {
	ColumnRef
	PiiName     string
	PiiCategory string
	Country     string
	CountryCode string
	// Pattern is the rule expression that matched.
	Pattern    string
	MatchedVia MatchedVia
}
