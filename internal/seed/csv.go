// Package seed reads warehouse tables exported as CSV so they can be loaded
// into the local SQLite warehouse.
package seed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/forest-dashboard/backend/internal/storage/sqlite"
)

var (
	historyColumns  = []string{"country", "ds", "loss_km2"}
	forecastColumns = []string{"country", "ds", "loss_km2_pred", "loss_km2_lo", "loss_km2_hi"}
)

// ReadHistory parses a CSV with a header containing country, ds and
// loss_km2. Extra columns are ignored.
func ReadHistory(r io.Reader) ([]sqlite.HistoryRow, error) {
	var rows []sqlite.HistoryRow
	err := readRecords(r, historyColumns, func(rec record) error {
		loss, err := rec.float("loss_km2")
		if err != nil {
			return err
		}
		rows = append(rows, sqlite.HistoryRow{Country: rec.get("country"), DS: rec.get("ds"), LossKm2: loss})
		return nil
	})
	return rows, err
}

// ReadForecast parses a CSV with a header containing country, ds,
// loss_km2_pred, loss_km2_lo and loss_km2_hi.
func ReadForecast(r io.Reader) ([]sqlite.ForecastRow, error) {
	var rows []sqlite.ForecastRow
	err := readRecords(r, forecastColumns, func(rec record) error {
		row := sqlite.ForecastRow{Country: rec.get("country"), DS: rec.get("ds")}
		var err error
		if row.LossKm2Pred, err = rec.float("loss_km2_pred"); err != nil {
			return err
		}
		if row.LossKm2Lo, err = rec.float("loss_km2_lo"); err != nil {
			return err
		}
		if row.LossKm2Hi, err = rec.float("loss_km2_hi"); err != nil {
			return err
		}
		rows = append(rows, row)
		return nil
	})
	return rows, err
}

type record struct {
	line   int
	index  map[string]int
	fields []string
}

func (r record) get(col string) string {
	return strings.TrimSpace(r.fields[r.index[col]])
}

func (r record) float(col string) (float64, error) {
	v, err := strconv.ParseFloat(r.get(col), 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: invalid %s %q", r.line, col, r.get(col))
	}
	return v, nil
}

func readRecords(r io.Reader, required []string, fn func(record) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return errors.New("empty csv")
	}
	if err != nil {
		return fmt.Errorf("failed to read csv header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range required {
		if _, ok := index[col]; !ok {
			return fmt.Errorf("csv header is missing column %q", col)
		}
	}

	for line := 2; ; line++ {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read csv: %w", err)
		}
		if len(fields) < len(header) {
			return fmt.Errorf("line %d: expected %d fields, got %d", line, len(header), len(fields))
		}

		rec := record{line: line, index: index, fields: fields}
		if rec.get("country") == "" || rec.get("ds") == "" {
			return fmt.Errorf("line %d: country and ds are required", line)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}
