// Package forest assembles dashboard responses from the warehouse and the
// geo engine.
package forest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	cache "github.com/forest-dashboard/backend/internal/cache/redis"
	"github.com/forest-dashboard/backend/internal/metrics"
	"github.com/forest-dashboard/backend/internal/models"
	"github.com/forest-dashboard/backend/internal/query"
	"github.com/forest-dashboard/backend/internal/warehouse"
	"github.com/forest-dashboard/backend/pkg/apperror"
	"github.com/forest-dashboard/backend/pkg/lazy"
	"github.com/forest-dashboard/backend/pkg/logger"
	"github.com/forest-dashboard/backend/pkg/utils"
)

const (
	cacheKPIs       = "kpis"
	cacheTimeseries = "timeseries"
	cacheForestLoss = "forest_loss"
)

// WarehouseKinds are the cache kinds derived from warehouse tables.
var WarehouseKinds = []string{cacheKPIs, cacheTimeseries}

type Warehouse interface {
	Builder() *query.Builder
	Query(ctx context.Context, name string, stmt query.Statement) ([]warehouse.Row, error)
	TestConnection(ctx context.Context) (models.ConnectionResult, []warehouse.Row)
	State() lazy.State
}

type GeoEngine interface {
	GetForestLossData(ctx context.Context, country string, startYear, endYear int) (*models.ForestLossReport, error)
	GetForestCoverData(ctx context.Context, country string) (*models.ForestCoverReport, error)
	QueryDataset(ctx context.Context, datasetID, country string, bands []string, reducer string, scale float64) (*models.DatasetReport, error)
	TestConnection(ctx context.Context) models.ConnectionResult
	State() lazy.State
}

type Config struct {
	WarehouseSource string
	GeoSource       string
	// PreflightCheck runs a geo connection test before each forest-loss
	// request.
	PreflightCheck bool
	CacheTTL       time.Duration
}

type Service struct {
	cfg       Config
	warehouse Warehouse
	geo       GeoEngine
	cache     cache.Cache
}

// NewService wires the backends. cache may be nil to disable caching.
func NewService(cfg Config, wh Warehouse, geo GeoEngine, c cache.Cache) *Service {
	return &Service{cfg: cfg, warehouse: wh, geo: geo, cache: c}
}

// KPIs returns the headline figures for a country. A country with no rows
// yields a summary with every field null.
func (s *Service) KPIs(ctx context.Context, country string) (models.KPISummary, error) {
	key := utils.HashParts(cacheKPIs, country)

	var kpi models.KPISummary
	if s.fromCache(ctx, cacheKPIs, key, &kpi) {
		return kpi, nil
	}

	stmt, err := s.warehouse.Builder().KPIQuery(country)
	if err != nil {
		return models.KPISummary{}, apperror.Configuration("failed to build KPI query", err)
	}

	rows, err := s.warehouse.Query(ctx, "kpis", stmt)
	if err != nil {
		return models.KPISummary{}, err
	}

	kpi, err = warehouse.DecodeKPI(rows)
	if err != nil {
		return models.KPISummary{}, apperror.Backend("unexpected KPI result", err)
	}

	s.toCache(ctx, cacheKPIs, key, kpi)
	return kpi, nil
}

// Timeseries returns history followed by forecast rows for a country,
// ordered by date.
func (s *Service) Timeseries(ctx context.Context, country string) (*models.TimeseriesResponse, error) {
	key := utils.HashParts(cacheTimeseries, country)

	var rows []models.YearlyLossRow
	if !s.fromCache(ctx, cacheTimeseries, key, &rows) {
		stmt, err := s.warehouse.Builder().TimeseriesQuery(country)
		if err != nil {
			return nil, apperror.Configuration("failed to build timeseries query", err)
		}

		raw, err := s.warehouse.Query(ctx, "timeseries", stmt)
		if err != nil {
			return nil, err
		}

		rows, err = warehouse.DecodeYearlyLoss(raw)
		if err != nil {
			return nil, apperror.Backend("unexpected timeseries result", err)
		}

		rows, err = checkSeries(country, rows)
		if err != nil {
			return nil, err
		}

		s.toCache(ctx, cacheTimeseries, key, rows)
	}

	return &models.TimeseriesResponse{
		Data:       rows,
		Country:    country,
		Count:      len(rows),
		Timestamp:  time.Now().UTC(),
		DataSource: s.cfg.WarehouseSource,
	}, nil
}

// checkSeries sorts rows by date and drops rows with no value at all. A row
// with both an observed and a predicted value means the tables overlap.
func checkSeries(country string, rows []models.YearlyLossRow) ([]models.YearlyLossRow, error) {
	models.SortRows(rows)

	out := rows[:0]
	for _, r := range rows {
		hasObserved := r.LossKm2 != nil
		hasPredicted := r.LossKm2Pred != nil
		switch {
		case hasObserved && hasPredicted:
			return nil, apperror.Backend(fmt.Sprintf("timeseries row %s has both observed and predicted loss", r.DS), nil)
		case !hasObserved && !hasPredicted:
			logger.Warn("Skipping empty timeseries row",
				zap.String("country", country),
				zap.String("ds", r.DS),
			)
			continue
		}
		out = append(out, r)
	}
	if out == nil {
		out = []models.YearlyLossRow{}
	}
	return out, nil
}

// ForestLoss returns the geo-engine loss report for the requested years and,
// if asked for, the year-2000 forest cover. Cover is best effort: a failure
// is logged and reported as null.
func (s *Service) ForestLoss(ctx context.Context, params models.QueryParams) (*models.ForestLossResponse, error) {
	logger.Info("Processing forest loss request",
		zap.String("country", params.Country),
		zap.Int("start_year", params.StartYear),
		zap.Int("end_year", params.EndYear),
		zap.Bool("include_cover", params.IncludeCover),
	)

	key := utils.HashParts(cacheForestLoss, params.Country,
		strconv.Itoa(params.StartYear), strconv.Itoa(params.EndYear), strconv.FormatBool(params.IncludeCover))

	var data models.ForestLossData
	if !s.fromCache(ctx, cacheForestLoss, key, &data) {
		if s.cfg.PreflightCheck {
			if result := s.geo.TestConnection(ctx); !result.Success {
				return nil, apperror.Connection("Earth Engine connection failed", errors.New(result.Error))
			}
		}

		fetched, err := s.fetchForestLoss(ctx, params)
		if err != nil {
			return nil, err
		}
		data = fetched

		// A degraded response is not cached so the next request retries cover.
		if !params.IncludeCover || data.ForestCover != nil {
			s.toCache(ctx, cacheForestLoss, key, data)
		}
	}

	return &models.ForestLossResponse{
		Success: true,
		Data:    data,
		Metadata: models.ForestLossMetadata{
			Country:      params.Country,
			StartYear:    params.StartYear,
			EndYear:      params.EndYear,
			IncludeCover: params.IncludeCover,
			DataSource:   s.cfg.GeoSource,
			Timestamp:    time.Now().UTC(),
		},
	}, nil
}

func (s *Service) fetchForestLoss(ctx context.Context, params models.QueryParams) (models.ForestLossData, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	coverCh := make(chan *models.ForestCoverReport, 1)
	if params.IncludeCover {
		go func() {
			coverCh <- s.forestCover(ctx, params.Country)
		}()
	}

	loss, err := s.geo.GetForestLossData(ctx, params.Country, params.StartYear, params.EndYear)
	if err != nil {
		return models.ForestLossData{}, err
	}

	data := models.ForestLossData{ForestLoss: loss}
	if params.IncludeCover {
		data.ForestCover = <-coverCh
	}
	return data, nil
}

func (s *Service) forestCover(ctx context.Context, country string) *models.ForestCoverReport {
	cover, err := s.geo.GetForestCoverData(ctx, country)
	if err != nil {
		metrics.CoverFallbacks.Inc()
		logger.Warn("Failed to get forest cover data",
			zap.String("country", country),
			zap.Error(err),
		)
		return nil
	}
	return cover
}

// Dataset reduces an arbitrary image dataset over a country.
func (s *Service) Dataset(ctx context.Context, q models.DatasetQuery) (*models.DatasetReport, error) {
	return s.geo.QueryDataset(ctx, q.Dataset, q.Country, q.Bands, q.Reducer, q.Scale)
}

func (s *Service) WarehouseStatus(ctx context.Context) (models.ConnectionResult, []warehouse.Row) {
	return s.warehouse.TestConnection(ctx)
}

func (s *Service) GeoStatus(ctx context.Context) models.ConnectionResult {
	return s.geo.TestConnection(ctx)
}

// SessionStates reports each backend's session state without contacting it.
func (s *Service) SessionStates() map[string]string {
	return map[string]string{
		"warehouse": s.warehouse.State().String(),
		"geo":       s.geo.State().String(),
	}
}

func (s *Service) fromCache(ctx context.Context, kind, key string, out any) bool {
	if s.cache == nil {
		return false
	}

	hit, err := s.cache.Get(ctx, kind, key, out)
	if err != nil {
		metrics.CacheErrors.WithLabelValues("get").Inc()
		logger.Warn("Cache read failed", zap.String("kind", kind), zap.Error(err))
		return false
	}
	if hit {
		metrics.CacheHits.WithLabelValues(kind).Inc()
	} else {
		metrics.CacheMisses.WithLabelValues(kind).Inc()
	}
	return hit
}

func (s *Service) toCache(ctx context.Context, kind, key string, value any) {
	if s.cache == nil {
		return
	}

	if err := s.cache.Set(ctx, kind, key, value, s.cfg.CacheTTL); err != nil {
		metrics.CacheErrors.WithLabelValues("set").Inc()
		logger.Warn("Cache write failed", zap.String("kind", kind), zap.Error(err))
	}
}
