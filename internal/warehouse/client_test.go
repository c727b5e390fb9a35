package warehouse

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest-dashboard/backend/internal/query"
	"github.com/forest-dashboard/backend/internal/storage/sqlite"
	"github.com/forest-dashboard/backend/pkg/apperror"
	"github.com/forest-dashboard/backend/pkg/config"
)

const (
	historyTable  = "proj.climate_ds.v_forest_loss_yearly"
	forecastTable = "proj.climate_ds.forest_loss_forecast_15y"
)

func sqliteConfig(t *testing.T) config.WarehouseConfig {
	t.Helper()
	return config.WarehouseConfig{
		Driver:          "sqlite",
		SQLitePath:      filepath.Join(t.TempDir(), "warehouse.db"),
		HistoryTable:    historyTable,
		ForecastTable:   forecastTable,
		QueryTimeoutSec: 5,
	}
}

func seed(t *testing.T, cfg config.WarehouseConfig, hist []sqlite.HistoryRow, fc []sqlite.ForecastRow) {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.NewClient(ctx, cfg.SQLitePath)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.InitSchema(ctx, query.Tables{History: cfg.HistoryTable, Forecast: cfg.ForecastTable}))
	require.NoError(t, db.InsertHistory(ctx, cfg.HistoryTable, hist))
	require.NoError(t, db.InsertForecast(ctx, cfg.ForecastTable, fc))
}

func newSQLiteClient(t *testing.T, cfg config.WarehouseConfig) *Client {
	t.Helper()
	c, err := NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestTimeseries_BrazilExample(t *testing.T) {
	cfg := sqliteConfig(t)
	seed(t, cfg,
		[]sqlite.HistoryRow{
			{Country: "Brazil", DS: "2021-01-01", LossKm2: 14.0},
			{Country: "Brazil", DS: "2020-01-01", LossKm2: 12.5},
			{Country: "Peru", DS: "2020-01-01", LossKm2: 3.0},
		},
		[]sqlite.ForecastRow{
			{Country: "Brazil", DS: "2022-01-01", LossKm2Pred: 13.1, LossKm2Lo: 11.0, LossKm2Hi: 15.2},
		},
	)
	c := newSQLiteClient(t, cfg)

	stmt, err := c.Builder().TimeseriesQuery("Brazil")
	require.NoError(t, err)

	rows, err := c.Query(context.Background(), "timeseries", stmt)
	require.NoError(t, err)

	got, err := DecodeYearlyLoss(rows)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, []string{"2020-01-01", "2021-01-01", "2022-01-01"}, []string{got[0].DS, got[1].DS, got[2].DS})

	for _, r := range got[:2] {
		assert.Equal(t, "Brazil", r.Country)
		require.NotNil(t, r.LossKm2)
		assert.Nil(t, r.LossKm2Pred)
		assert.Nil(t, r.LossKm2Lo)
		assert.Nil(t, r.LossKm2Hi)
	}
	assert.InDelta(t, 12.5, *got[0].LossKm2, 1e-9)

	fc := got[2]
	assert.True(t, fc.IsForecast())
	assert.Nil(t, fc.LossKm2)
	assert.InDelta(t, 13.1, *fc.LossKm2Pred, 1e-9)
	assert.InDelta(t, 11.0, *fc.LossKm2Lo, 1e-9)
	assert.InDelta(t, 15.2, *fc.LossKm2Hi, 1e-9)
}

func TestKPIs_WindowsRelativeToLastObservation(t *testing.T) {
	cfg := sqliteConfig(t)

	var hist []sqlite.HistoryRow
	for year := 2010; year <= 2020; year++ {
		hist = append(hist, sqlite.HistoryRow{
			Country: "Brazil",
			DS:      dateOf(year),
			LossKm2: float64(year - 2000),
		})
	}
	seed(t, cfg, hist, []sqlite.ForecastRow{
		{Country: "Brazil", DS: "2021-01-01", LossKm2Pred: 1},
		{Country: "Brazil", DS: "2022-01-01", LossKm2Pred: 2},
		{Country: "Brazil", DS: "2023-01-01", LossKm2Pred: 3},
	})
	c := newSQLiteClient(t, cfg)

	stmt, err := c.Builder().KPIQuery("Brazil")
	require.NoError(t, err)
	rows, err := c.Query(context.Background(), "kpis", stmt)
	require.NoError(t, err)

	kpi, err := DecodeKPI(rows)
	require.NoError(t, err)

	require.NotNil(t, kpi.LastYearKm2)
	assert.InDelta(t, 20, *kpi.LastYearKm2, 1e-9)
	// 2016..2020
	require.NotNil(t, kpi.AvgRecent5)
	assert.InDelta(t, 18, *kpi.AvgRecent5, 1e-9)
	// 2010..2015, both ends inclusive
	require.NotNil(t, kpi.AvgPrev5)
	assert.InDelta(t, 12.5, *kpi.AvgPrev5, 1e-9)
	require.NotNil(t, kpi.DeltaPct5y)
	assert.InDelta(t, 0.44, *kpi.DeltaPct5y, 1e-9)
	require.NotNil(t, kpi.Forecast15yTotalKm2)
	assert.InDelta(t, 6, *kpi.Forecast15yTotalKm2, 1e-9)
}

func TestKPIs_DeltaNullWhenPriorWindowIsZero(t *testing.T) {
	cfg := sqliteConfig(t)

	var hist []sqlite.HistoryRow
	for year := 2010; year <= 2020; year++ {
		loss := 0.0
		if year > 2015 {
			loss = 5
		}
		hist = append(hist, sqlite.HistoryRow{Country: "Zeroland", DS: dateOf(year), LossKm2: loss})
	}
	seed(t, cfg, hist, nil)
	c := newSQLiteClient(t, cfg)

	stmt, err := c.Builder().KPIQuery("Zeroland")
	require.NoError(t, err)
	rows, err := c.Query(context.Background(), "kpis", stmt)
	require.NoError(t, err)

	kpi, err := DecodeKPI(rows)
	require.NoError(t, err)

	require.NotNil(t, kpi.AvgPrev5)
	assert.Zero(t, *kpi.AvgPrev5)
	assert.Nil(t, kpi.DeltaPct5y)
	assert.Nil(t, kpi.Forecast15yTotalKm2)
}

func TestKPIs_UnknownCountryIsAllNull(t *testing.T) {
	cfg := sqliteConfig(t)
	seed(t, cfg, []sqlite.HistoryRow{{Country: "Brazil", DS: "2020-01-01", LossKm2: 1}}, nil)
	c := newSQLiteClient(t, cfg)

	stmt, err := c.Builder().KPIQuery("Atlantis")
	require.NoError(t, err)
	rows, err := c.Query(context.Background(), "kpis", stmt)
	require.NoError(t, err)

	kpi, err := DecodeKPI(rows)
	require.NoError(t, err)
	assert.Nil(t, kpi.LastYearKm2)
	assert.Nil(t, kpi.AvgRecent5)
	assert.Nil(t, kpi.DeltaPct5y)
}

func TestQuery_MissingBigQueryCredentials(t *testing.T) {
	c, err := NewClient(config.WarehouseConfig{
		Driver:        "bigquery",
		HistoryTable:  historyTable,
		ForecastTable: forecastTable,
	})
	require.NoError(t, err)

	stmt, err := c.Builder().KPIQuery("Brazil")
	require.NoError(t, err)

	_, err = c.Query(context.Background(), "kpis", stmt)
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindConfiguration))
	assert.Contains(t, err.Error(), "BIGQUERY_PROJECT_ID")
	assert.Contains(t, err.Error(), "BIGQUERY_CREDENTIALS_JSON")
}

func TestCheckBigQueryConfig_BadCredentialsJSON(t *testing.T) {
	err := checkBigQueryConfig(config.WarehouseConfig{ProjectID: "proj", CredentialsJSON: "{not json"})
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindConfiguration))
	assert.Contains(t, err.Error(), "failed to parse BigQuery credentials")
}

func TestNewClient_UnknownDriver(t *testing.T) {
	_, err := NewClient(config.WarehouseConfig{Driver: "postgres"})
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindConfiguration))
}

type fakeSession struct {
	rows   []Row
	err    error
	closed atomic.Bool
}

func (f *fakeSession) Query(ctx context.Context, stmt query.Statement) ([]Row, error) {
	return f.rows, f.err
}

func (f *fakeSession) Close() error {
	f.closed.Store(true)
	return nil
}

func TestSession_OpenedOnceForConcurrentCallers(t *testing.T) {
	var opens atomic.Int32
	sess := &fakeSession{rows: []Row{{"test": int64(1)}}}

	c, err := NewClient(config.WarehouseConfig{Driver: "bigquery"}, WithOpener(
		func(ctx context.Context, cfg config.WarehouseConfig) (Session, error) {
			opens.Add(1)
			return sess, nil
		},
	))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.Session(context.Background())
			assert.NoError(t, err)
			assert.Same(t, sess, got)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), opens.Load())

	require.NoError(t, c.Close())
	assert.True(t, sess.closed.Load())
}

func TestSession_OpenRunsUnderInitTimeout(t *testing.T) {
	var deadline time.Time
	c, err := NewClient(config.WarehouseConfig{Driver: "bigquery", QueryTimeoutSec: 300, InitTimeoutSec: 2}, WithOpener(
		func(ctx context.Context, cfg config.WarehouseConfig) (Session, error) {
			deadline, _ = ctx.Deadline()
			return &fakeSession{}, nil
		},
	))
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Session(context.Background())
	require.NoError(t, err)

	require.False(t, deadline.IsZero())
	assert.WithinDuration(t, start.Add(2*time.Second), deadline, time.Second)
}

func TestSession_FailureIsNotMemoized(t *testing.T) {
	var opens atomic.Int32
	c, err := NewClient(config.WarehouseConfig{Driver: "bigquery"}, WithOpener(
		func(ctx context.Context, cfg config.WarehouseConfig) (Session, error) {
			if opens.Add(1) == 1 {
				return nil, apperror.Initialization("failed to initialize BigQuery client", errors.New("boom"))
			}
			return &fakeSession{}, nil
		},
	))
	require.NoError(t, err)

	_, err = c.Session(context.Background())
	require.Error(t, err)

	_, err = c.Session(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), opens.Load())
}

func TestQuery_BackendFailureKeepsDriverMessage(t *testing.T) {
	c, err := NewClient(config.WarehouseConfig{Driver: "bigquery"}, WithOpener(
		func(ctx context.Context, cfg config.WarehouseConfig) (Session, error) {
			return &fakeSession{err: errors.New("Syntax error: Unexpected keyword")}, nil
		},
	))
	require.NoError(t, err)

	_, err = c.Query(context.Background(), "kpis", query.PingQuery())
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindBackend))
	assert.Contains(t, err.Error(), "Syntax error: Unexpected keyword")
}

func TestTestConnection(t *testing.T) {
	cfg := sqliteConfig(t)
	c := newSQLiteClient(t, cfg)

	result, rows := c.TestConnection(context.Background())
	assert.True(t, result.Success)
	assert.Empty(t, result.Error)
	require.Len(t, rows, 1)

	v, err := FloatValue(rows[0]["test"])
	require.NoError(t, err)
	assert.Equal(t, 1.0, *v)

	failing, err := NewClient(config.WarehouseConfig{Driver: "bigquery"})
	require.NoError(t, err)
	result, rows = failing.TestConnection(context.Background())
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "BIGQUERY_PROJECT_ID")
	assert.Nil(t, rows)
}

func dateOf(year int) string {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).Format(time.DateOnly)
}
