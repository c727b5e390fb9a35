package query

import (
	"fmt"
	"strings"
)

// Column names shared by the generated SQL and the row decoders.
const (
	ColCountry             = "country"
	ColDS                  = "ds"
	ColLossKm2             = "loss_km2"
	ColLossKm2Pred         = "loss_km2_pred"
	ColLossKm2Lo           = "loss_km2_lo"
	ColLossKm2Hi           = "loss_km2_hi"
	ColLastYearKm2         = "last_year_km2"
	ColAvgRecent5          = "avg_recent5"
	ColAvgPrev5            = "avg_prev5"
	ColDeltaPct5y          = "delta_pct_5y"
	ColForecast15yTotalKm2 = "forecast_15y_total_km2"
)

const CountryParam = "country"

// Statement is SQL text plus its named parameters. Parameters are referenced
// as @name in the text.
type Statement struct {
	SQL    string
	Params map[string]any
}

// Tables names the yearly history view and the 15-year forecast table.
type Tables struct {
	History  string
	Forecast string
}

type Builder struct {
	dialect Dialect
	tables  Tables
}

func NewBuilder(dialect Dialect, tables Tables) *Builder {
	return &Builder{dialect: dialect, tables: tables}
}

func (b *Builder) Dialect() Dialect {
	return b.dialect
}

func (b *Builder) resolveTables() (string, string, error) {
	hist, err := b.dialect.Table(b.tables.History)
	if err != nil {
		return "", "", fmt.Errorf("history table: %w", err)
	}
	fc, err := b.dialect.Table(b.tables.Forecast)
	if err != nil {
		return "", "", fmt.Errorf("forecast table: %w", err)
	}
	return hist, fc, nil
}

// KPIQuery computes, relative to the latest observed date for the country,
// the last observed loss, the trailing and prior 5-year averages, their
// relative change and the 15-year forecast total.
func (b *Builder) KPIQuery(country string) (Statement, error) {
	hist, fc, err := b.resolveTables()
	if err != nil {
		return Statement{}, err
	}

	d := b.dialect
	recent := "(SELECT avg_recent5 FROM recent5)"
	prev := "(SELECT avg_prev5 FROM prev5)"

	var sb strings.Builder
	fmt.Fprintf(&sb, `WITH last_obs AS (
  SELECT country, MAX(ds) AS last_ds
  FROM %s
  WHERE country = @country
  GROUP BY country
),
hist AS (
  SELECT h.country, h.ds, h.loss_km2
  FROM %s h
  JOIN last_obs lo USING (country)
),
recent5 AS (
  SELECT AVG(loss_km2) AS avg_recent5
  FROM hist, last_obs lo
  WHERE hist.ds > %s
),
prev5 AS (
  SELECT AVG(loss_km2) AS avg_prev5
  FROM hist, last_obs lo
  WHERE hist.ds BETWEEN %s AND %s
),
next15 AS (
  SELECT SUM(loss_km2_pred) AS sum_next15
  FROM %s
  WHERE country = @country
)
SELECT
  (SELECT loss_km2 FROM hist ORDER BY ds DESC LIMIT 1) AS %s,
  %s AS %s,
  %s AS %s,
  %s AS %s,
  (SELECT sum_next15 FROM next15) AS %s`,
		hist,
		hist,
		d.YearsBefore("lo.last_ds", 5),
		d.YearsBefore("lo.last_ds", 10), d.YearsBefore("lo.last_ds", 5),
		fc,
		ColLastYearKm2,
		recent, ColAvgRecent5,
		prev, ColAvgPrev5,
		d.SafeDivide(recent+" - "+prev, prev), ColDeltaPct5y,
		ColForecast15yTotalKm2,
	)

	return Statement{SQL: sb.String(), Params: countryParams(country)}, nil
}

// TimeseriesQuery returns history rows (forecast columns null) followed by
// forecast rows (loss_km2 null), ordered by date. Both halves select the same
// columns in the same order.
func (b *Builder) TimeseriesQuery(country string) (Statement, error) {
	hist, fc, err := b.resolveTables()
	if err != nil {
		return Statement{}, err
	}

	null := b.dialect.NullFloat()
	columns := strings.Join([]string{ColCountry, ColDS, ColLossKm2, ColLossKm2Pred, ColLossKm2Lo, ColLossKm2Hi}, ", ")

	sql := fmt.Sprintf(`WITH hist AS (
  SELECT country, ds, loss_km2,
         %[3]s AS loss_km2_pred,
         %[3]s AS loss_km2_lo,
         %[3]s AS loss_km2_hi
  FROM %[1]s
  WHERE country = @country
),
fc AS (
  SELECT country, ds,
         %[3]s AS loss_km2,
         loss_km2_pred,
         loss_km2_lo,
         loss_km2_hi
  FROM %[2]s
  WHERE country = @country
)
SELECT %[4]s FROM hist
UNION ALL
SELECT %[4]s FROM fc
ORDER BY ds`, hist, fc, null, columns)

	return Statement{SQL: sql, Params: countryParams(country)}, nil
}

func PingQuery() Statement {
	return Statement{SQL: "SELECT 1 AS test"}
}

func countryParams(country string) map[string]any {
	return map[string]any{CountryParam: country}
}
