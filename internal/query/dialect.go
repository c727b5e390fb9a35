package query

import (
	"fmt"
	"regexp"
	"strings"
)

// Dialect covers the few places where the warehouse SQL differs between
// BigQuery and SQLite.
type Dialect interface {
	Name() string
	Table(name string) (string, error)
	YearsBefore(expr string, years int) string
	SafeDivide(numerator, denominator string) string
	NullFloat() string
}

var identPattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.\-]*$`)

func checkIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}

type bigQueryDialect struct{}

var BigQuery Dialect = bigQueryDialect{}

func (bigQueryDialect) Name() string { return "bigquery" }

func (bigQueryDialect) Table(name string) (string, error) {
	if err := checkIdent(name); err != nil {
		return "", err
	}
	return "`" + name + "`", nil
}

func (bigQueryDialect) YearsBefore(expr string, years int) string {
	return fmt.Sprintf("DATE_SUB(%s, INTERVAL %d YEAR)", expr, years)
}

func (bigQueryDialect) SafeDivide(numerator, denominator string) string {
	return fmt.Sprintf("SAFE_DIVIDE(%s, %s)", numerator, denominator)
}

func (bigQueryDialect) NullFloat() string { return "CAST(NULL AS FLOAT64)" }

type sqliteDialect struct{}

var SQLite Dialect = sqliteDialect{}

func (sqliteDialect) Name() string { return "sqlite" }

// Table keeps only the last segment of a dotted BigQuery path, so the same
// configuration works against a local copy of the tables.
func (sqliteDialect) Table(name string) (string, error) {
	if err := checkIdent(name); err != nil {
		return "", err
	}
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return `"` + name + `"`, nil
}

func (sqliteDialect) YearsBefore(expr string, years int) string {
	return fmt.Sprintf("date(%s, '-%d years')", expr, years)
}

func (sqliteDialect) SafeDivide(numerator, denominator string) string {
	return fmt.Sprintf("((%s) / NULLIF(%s, 0))", numerator, denominator)
}

func (sqliteDialect) NullFloat() string { return "CAST(NULL AS REAL)" }

func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "bigquery":
		return BigQuery, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return nil, fmt.Errorf("unknown SQL dialect %q", name)
	}
}
