package models

import (
	"math"
	"sort"
	"time"
)

const (
	MinYear = 2001
	MaxYear = 2023
)

// QueryParams is built per request from the query string and is not
// modified after validation.
type QueryParams struct {
	Country      string `validate:"required"`
	StartYear    int    `validate:"gte=2001,lte=2023,ltefield=EndYear"`
	EndYear      int    `validate:"gte=2001,lte=2023"`
	IncludeCover bool
}

// DatasetQuery selects an arbitrary image dataset to reduce over a country.
// A zero Scale means the default resolution.
type DatasetQuery struct {
	Dataset string   `validate:"required"`
	Country string   `validate:"required"`
	Bands   []string `validate:"dive,required"`
	Reducer string
	Scale   float64 `validate:"gte=0,lte=100000"`
}

type YearlyLossRow struct {
	Country     string   `json:"country"`
	DS          string   `json:"ds"`
	LossKm2     *float64 `json:"loss_km2"`
	LossKm2Pred *float64 `json:"loss_km2_pred"`
	LossKm2Lo   *float64 `json:"loss_km2_lo"`
	LossKm2Hi   *float64 `json:"loss_km2_hi"`
}

func (r YearlyLossRow) IsForecast() bool {
	return r.LossKm2 == nil && r.LossKm2Pred != nil
}

type KPISummary struct {
	LastYearKm2         *float64 `json:"last_year_km2"`
	AvgRecent5          *float64 `json:"avg_recent5"`
	AvgPrev5            *float64 `json:"avg_prev5"`
	DeltaPct5y          *float64 `json:"delta_pct_5y"`
	Forecast15yTotalKm2 *float64 `json:"forecast_15y_total_km2"`
}

// Normalize drops non-finite values and recomputes the delta when the prior
// window average is missing or zero, so the delta is null rather than NaN or
// infinite.
func (k *KPISummary) Normalize() {
	k.LastYearKm2 = Finite(k.LastYearKm2)
	k.AvgRecent5 = Finite(k.AvgRecent5)
	k.AvgPrev5 = Finite(k.AvgPrev5)
	k.Forecast15yTotalKm2 = Finite(k.Forecast15yTotalKm2)
	k.DeltaPct5y = Finite(k.DeltaPct5y)

	if k.AvgPrev5 == nil || *k.AvgPrev5 == 0 || k.AvgRecent5 == nil {
		k.DeltaPct5y = nil
	}
}

type TimeseriesResponse struct {
	Data       []YearlyLossRow `json:"data"`
	Country    string          `json:"country"`
	Count      int             `json:"count"`
	Timestamp  time.Time       `json:"timestamp"`
	DataSource string          `json:"data_source"`
}

// SortRows orders rows by date, keeping the warehouse order for equal dates.
func SortRows(rows []YearlyLossRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].DS < rows[j].DS
	})
}

type YearlyLoss struct {
	Year    int     `json:"year"`
	LossKm2 float64 `json:"loss_km2"`
}

type ForestLossReport struct {
	Country      string       `json:"country"`
	TotalLossKm2 float64      `json:"total_loss_km2"`
	YearlyData   []YearlyLoss `json:"yearly_data"`
	StartYear    int          `json:"start_year"`
	EndYear      int          `json:"end_year"`
	Timestamp    time.Time    `json:"timestamp"`
}

type ForestCoverReport struct {
	Country            string    `json:"country"`
	ForestCover2000Km2 float64   `json:"forest_cover_2000_km2"`
	Timestamp          time.Time `json:"timestamp"`
}

type DatasetReport struct {
	Country   string         `json:"country"`
	Dataset   string         `json:"dataset"`
	Bands     []string       `json:"bands"`
	Reducer   string         `json:"reducer"`
	Scale     float64        `json:"scale"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

type ForestLossData struct {
	ForestLoss  *ForestLossReport  `json:"forest_loss"`
	ForestCover *ForestCoverReport `json:"forest_cover"`
}

type ForestLossMetadata struct {
	Country      string    `json:"country"`
	StartYear    int       `json:"start_year"`
	EndYear      int       `json:"end_year"`
	IncludeCover bool      `json:"include_cover"`
	DataSource   string    `json:"data_source"`
	Timestamp    time.Time `json:"timestamp"`
}

type ForestLossResponse struct {
	Success  bool               `json:"success"`
	Data     ForestLossData     `json:"data"`
	Metadata ForestLossMetadata `json:"metadata"`
}

type ConnectionResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func Float(v float64) *float64 {
	return &v
}

func Finite(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return v
}
