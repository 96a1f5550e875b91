package mssql

import (
	"fmt"
	"strings"
)

// quoteName brackets an identifier the way QUOTENAME() does.
func quoteName(identifier string) string {
	return "[" + strings.ReplaceAll(identifier, "]", "]]") + "]"
}

// buildQualifiedName builds [database].[schema].[table].
func buildQualifiedName(database, schema, table string) string {
	return fmt.Sprintf("%s.%s.%s", quoteName(database), quoteName(schema), quoteName(table))
}

// isSampleableType reports whether values of the type can be read by the
// driver. CLR types come back as opaque UDT payloads.
func isSampleableType(sqlServerType string) bool {
	switch strings.ToLower(sqlServerType) {
	case "geography", "geometry", "hierarchyid", "sql_variant":
		return false
	default:
		return true
	}
}

// selectExpression returns the select-list expression for a column. GUIDs
// are converted server side to keep their canonical text form.
func selectExpression(column, sqlServerType string) string {
	quoted := quoteName(column)
	if strings.EqualFold(sqlServerType, "uniqueidentifier") {
		return fmt.Sprintf("CAST(%s AS NVARCHAR(36)) AS %s", quoted, quoted)
	}
	return quoted
}
