package warehouse

import (
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/forest-dashboard/backend/internal/models"
	"github.com/forest-dashboard/backend/internal/query"
)

// FloatValue converts a numeric column to *float64. NULL, NaN and infinite
// values become nil.
func FloatValue(v any) (*float64, error) {
	var f float64
	switch x := v.(type) {
	case nil:
		return nil, nil
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int64:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case *big.Rat:
		if x == nil {
			return nil, nil
		}
		f, _ = x.Float64()
	case string:
		parsed, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid numeric value %q: %w", x, err)
		}
		f = parsed
	case []byte:
		return FloatValue(string(x))
	default:
		return nil, fmt.Errorf("unsupported numeric type %T", v)
	}
	return models.Finite(&f), nil
}

// DateValue renders a date column as YYYY-MM-DD.
func DateValue(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", fmt.Errorf("date is null")
	case time.Time:
		return x.Format(time.DateOnly), nil
	case string:
		if len(x) < len(time.DateOnly) {
			return "", fmt.Errorf("invalid date %q", x)
		}
		return x[:len(time.DateOnly)], nil
	case []byte:
		return DateValue(string(x))
	case fmt.Stringer:
		// civil.Date from BigQuery
		return DateValue(x.String())
	default:
		return "", fmt.Errorf("unsupported date type %T", v)
	}
}

func StringValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

// DecodeKPI reads the single KPI row. An empty result is a summary with all
// fields null.
func DecodeKPI(rows []Row) (models.KPISummary, error) {
	var kpi models.KPISummary
	if len(rows) == 0 {
		return kpi, nil
	}

	row := rows[0]
	fields := []struct {
		col string
		dst **float64
	}{
		{query.ColLastYearKm2, &kpi.LastYearKm2},
		{query.ColAvgRecent5, &kpi.AvgRecent5},
		{query.ColAvgPrev5, &kpi.AvgPrev5},
		{query.ColDeltaPct5y, &kpi.DeltaPct5y},
		{query.ColForecast15yTotalKm2, &kpi.Forecast15yTotalKm2},
	}
	for _, f := range fields {
		v, err := FloatValue(row[f.col])
		if err != nil {
			return models.KPISummary{}, fmt.Errorf("column %s: %w", f.col, err)
		}
		*f.dst = v
	}

	kpi.Normalize()
	return kpi, nil
}

func DecodeYearlyLoss(rows []Row) ([]models.YearlyLossRow, error) {
	out := make([]models.YearlyLossRow, 0, len(rows))
	for i, row := range rows {
		ds, err := DateValue(row[query.ColDS])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}

		r := models.YearlyLossRow{
			Country: StringValue(row[query.ColCountry]),
			DS:      ds,
		}
		fields := []struct {
			col string
			dst **float64
		}{
			{query.ColLossKm2, &r.LossKm2},
			{query.ColLossKm2Pred, &r.LossKm2Pred},
			{query.ColLossKm2Lo, &r.LossKm2Lo},
			{query.ColLossKm2Hi, &r.LossKm2Hi},
		}
		for _, f := range fields {
			v, err := FloatValue(row[f.col])
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", i, f.col, err)
			}
			*f.dst = v
		}
		out = append(out, r)
	}
	return out, nil
}
