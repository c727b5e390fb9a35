package geo

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/forest-dashboard/backend/internal/models"
	"github.com/forest-dashboard/backend/pkg/apperror"
	"github.com/forest-dashboard/backend/pkg/logger"
)

const (
	// lossyear counts years since this one.
	lossYearBase = 2000

	hansenScale     = 30
	hansenMaxPixels = 1e13

	defaultDatasetScale = 1000

	areaBand = "area"
	yearBand = "year"
)

// Boundary is a country polygon, kept as an expression so later reductions
// reuse it without downloading the geometry.
type Boundary struct {
	Country  string
	Geometry Expr
}

// ResolveCountryBoundary finds the country by exact, case-sensitive name.
func (c *Client) ResolveCountryBoundary(ctx context.Context, country string) (Boundary, error) {
	filtered := filterEquals(c.cfg.BoundaryTable, c.cfg.BoundaryProperty, country)

	var size int
	if err := c.compute(ctx, "boundary", Invoke("Collection.size", map[string]Expr{"collection": filtered}), &size); err != nil {
		return Boundary{}, err
	}
	if size == 0 {
		return Boundary{}, apperror.NotFound(fmt.Sprintf("Country \"%s\" not found in the dataset", country))
	}

	return Boundary{
		Country:  country,
		Geometry: Invoke("Collection.geometry", map[string]Expr{"collection": filtered}),
	}, nil
}

type ReduceRequest struct {
	DatasetID string
	// Bands selects bands from the dataset; empty keeps all of them.
	Bands    []string
	Reducer  string
	Boundary Boundary
	Scale    float64
	// MaxPixels defaults to 1e13.
	MaxPixels float64
	// WithArea adds an "area" band of pixel area in km².
	WithArea bool
}

// ReduceRegion applies the named reducer to the dataset over the boundary and
// returns the per-band results.
func (c *Client) ReduceRegion(ctx context.Context, req ReduceRequest) (map[string]any, error) {
	_, reducer, err := ParseReducer(req.Reducer, c.cfg.LenientReducers)
	if err != nil {
		return nil, err
	}

	image := loadImage(req.DatasetID)
	if len(req.Bands) > 0 {
		image = selectBands(image, req.Bands...)
	}
	if req.WithArea {
		image = addBands(image, rename(areaKm2(), areaBand))
	}

	scale := req.Scale
	if scale <= 0 {
		scale = defaultDatasetScale
	}
	maxPixels := req.MaxPixels
	if maxPixels <= 0 {
		maxPixels = hansenMaxPixels
	}

	var data map[string]any
	expr := reduceRegion(image, reducer, req.Boundary.Geometry, scale, maxPixels, true)
	if err := c.compute(ctx, "reduce_region", expr, &data); err != nil {
		return nil, err
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}

type lossGroup struct {
	Year float64  `json:"year"`
	Sum  *float64 `json:"sum"`
}

// GetForestLossData reports forest loss area for [startYear, endYear], in
// total and per year.
func (c *Client) GetForestLossData(ctx context.Context, country string, startYear, endYear int) (*models.ForestLossReport, error) {
	logger.Info("Querying forest loss data",
		zap.String("country", country),
		zap.Int("start_year", startYear),
		zap.Int("end_year", endYear),
	)

	boundary, err := c.ResolveCountryBoundary(ctx, country)
	if err != nil {
		return nil, err
	}

	lo := float64(startYear - lossYearBase)
	hi := float64(endYear - lossYearBase)

	lossYear := selectBands(loadImage(c.cfg.LossDataset), "lossyear")
	mask := binary("Image.and",
		binary("Image.gte", lossYear, constantImage(lo)),
		binary("Image.lte", lossYear, constantImage(hi)),
	)
	area := updateMask(rename(areaKm2(), areaBand), mask)
	// Bucket 0 is startYear.
	bucket := updateMask(rename(binary("Image.subtract", lossYear, constantImage(lo)), yearBand), mask)
	sum := Invoke("Reducer.sum", nil)

	var (
		totals  map[string]*float64
		grouped struct {
			Groups []lossGroup `json:"groups"`
		}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		expr := reduceRegion(area, sum, boundary.Geometry, hansenScale, hansenMaxPixels, true)
		return c.compute(gctx, "forest_loss_total", expr, &totals)
	})
	g.Go(func() error {
		expr := reduceRegion(addBands(area, bucket), groupReducer(sum, 1, yearBand), boundary.Geometry, hansenScale, hansenMaxPixels, true)
		return c.compute(gctx, "forest_loss_yearly", expr, &grouped)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	yearly := make([]models.YearlyLoss, 0, len(grouped.Groups))
	for _, group := range grouped.Groups {
		yearly = append(yearly, models.YearlyLoss{
			Year:    startYear + int(math.Round(group.Year)),
			LossKm2: valueOrZero(group.Sum),
		})
	}
	sort.Slice(yearly, func(i, j int) bool { return yearly[i].Year < yearly[j].Year })

	return &models.ForestLossReport{
		Country:      country,
		TotalLossKm2: valueOrZero(totals[areaBand]),
		YearlyData:   yearly,
		StartYear:    startYear,
		EndYear:      endYear,
		Timestamp:    time.Now().UTC(),
	}, nil
}

// GetForestCoverData reports tree-covered area in 2000, weighting each pixel's
// area by its canopy cover percentage.
func (c *Client) GetForestCoverData(ctx context.Context, country string) (*models.ForestCoverReport, error) {
	logger.Info("Querying forest cover data", zap.String("country", country))

	boundary, err := c.ResolveCountryBoundary(ctx, country)
	if err != nil {
		return nil, err
	}

	canopy := binary("Image.divide", selectBands(loadImage(c.cfg.LossDataset), "treecover2000"), constantImage(100))
	cover := rename(binary("Image.multiply", canopy, areaKm2()), "cover")

	var totals map[string]*float64
	expr := reduceRegion(cover, Invoke("Reducer.sum", nil), boundary.Geometry, hansenScale, hansenMaxPixels, true)
	if err := c.compute(ctx, "forest_cover", expr, &totals); err != nil {
		return nil, err
	}

	return &models.ForestCoverReport{
		Country:            country,
		ForestCover2000Km2: valueOrZero(totals["cover"]),
		Timestamp:          time.Now().UTC(),
	}, nil
}

// QueryDataset reduces any image dataset over a country, adding an area band
// alongside the selected bands. scale defaults to 1000.
func (c *Client) QueryDataset(ctx context.Context, datasetID, country string, bands []string, reducer string, scale float64) (*models.DatasetReport, error) {
	name, _, err := ParseReducer(reducer, c.cfg.LenientReducers)
	if err != nil {
		return nil, err
	}
	if scale <= 0 {
		scale = defaultDatasetScale
	}

	logger.Info("Querying dataset",
		zap.String("dataset", datasetID),
		zap.String("country", country),
		zap.Strings("bands", bands),
		zap.String("reducer", name),
	)

	boundary, err := c.ResolveCountryBoundary(ctx, country)
	if err != nil {
		return nil, err
	}

	data, err := c.ReduceRegion(ctx, ReduceRequest{
		DatasetID: datasetID,
		Bands:     bands,
		Reducer:   name,
		Boundary:  boundary,
		Scale:     scale,
		WithArea:  true,
	})
	if err != nil {
		return nil, err
	}

	if bands == nil {
		bands = []string{}
	}
	return &models.DatasetReport{
		Country:   country,
		Dataset:   datasetID,
		Bands:     bands,
		Reducer:   name,
		Scale:     scale,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// TestConnection counts pixels of a small test image around (0, 0). It never
// returns an error; failures are reported in the result.
func (c *Client) TestConnection(ctx context.Context) models.ConnectionResult {
	image := selectBands(loadImage(c.cfg.TestImage), "B4")
	expr := reduceRegion(image, Invoke("Reducer.count", nil), bufferedPoint(0, 0, 1000), 10, 1e9, false)

	var out map[string]any
	if err := c.compute(ctx, "connection_test", expr, &out); err != nil {
		return models.ConnectionResult{Success: false, Error: err.Error()}
	}
	return models.ConnectionResult{Success: true}
}

func valueOrZero(v *float64) float64 {
	if v = models.Finite(v); v == nil {
		return 0
	}
	return *v
}
