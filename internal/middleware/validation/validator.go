package validation

import (
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/forest-dashboard/backend/internal/models"
	"github.com/forest-dashboard/backend/pkg/apperror"
)

// Response tags for rejected requests.
const (
	TagCountryRequired = "Country parameter is required"
	TagInvalidYears    = "Invalid year range"
	TagDatasetRequired = "Dataset parameter is required"
	TagInvalidScale    = "Invalid scale"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func countryRequired() error {
	return apperror.Validation(TagCountryRequired).
		WithHint("Please provide a country name using ?country=Brazil")
}

func invalidYearRange() error {
	return apperror.Validation(TagInvalidYears).
		WithHint("Years must be between 2001-2023 and startYear must be <= endYear")
}

// query returns a trimmed copy of a query parameter. Fiber's own strings are
// only valid until the handler returns.
func query(c *fiber.Ctx, key string) string {
	return utils.CopyString(strings.TrimSpace(c.Query(key)))
}

// ParseCountry reads the required country parameter, trimmed.
func ParseCountry(c *fiber.Ctx) (string, error) {
	country := query(c, "country")
	if country == "" {
		return "", countryRequired()
	}
	return country, nil
}

// ParseForestLossParams reads country, startYear, endYear and includeCover.
// The country is checked first; any problem with the years, including a
// value that is not a number, is an invalid year range.
func ParseForestLossParams(c *fiber.Ctx) (models.QueryParams, error) {
	country, err := ParseCountry(c)
	if err != nil {
		return models.QueryParams{}, err
	}

	startYear, err := yearParam(c, "startYear", models.MinYear)
	if err != nil {
		return models.QueryParams{}, invalidYearRange()
	}
	endYear, err := yearParam(c, "endYear", models.MaxYear)
	if err != nil {
		return models.QueryParams{}, invalidYearRange()
	}

	params := models.QueryParams{
		Country:      country,
		StartYear:    startYear,
		EndYear:      endYear,
		IncludeCover: c.Query("includeCover") == "true",
	}

	if err := validate.Struct(params); err != nil {
		return models.QueryParams{}, invalidYearRange()
	}

	return params, nil
}

func yearParam(c *fiber.Ctx, name string, def int) (int, error) {
	raw := query(c, name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// ParseDatasetParams reads dataset, country, bands (comma separated), reducer
// and scale for the generic dataset endpoint.
func ParseDatasetParams(c *fiber.Ctx) (models.DatasetQuery, error) {
	country, err := ParseCountry(c)
	if err != nil {
		return models.DatasetQuery{}, err
	}

	q := models.DatasetQuery{
		Dataset: query(c, "dataset"),
		Country: country,
		Bands:   splitList(query(c, "bands")),
		Reducer: query(c, "reducer"),
	}
	if q.Dataset == "" {
		return models.DatasetQuery{}, apperror.Validation(TagDatasetRequired).
			WithHint("Please provide an image asset id using ?dataset=UMD/hansen/global_forest_change_2023_v1_11")
	}

	if raw := query(c, "scale"); raw != "" {
		scale, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return models.DatasetQuery{}, invalidScale()
		}
		q.Scale = scale
	}

	if err := validate.Struct(q); err != nil {
		return models.DatasetQuery{}, invalidScale()
	}

	return q, nil
}

func invalidScale() error {
	return apperror.Validation(TagInvalidScale).
		WithHint("scale must be a positive number of metres per pixel, at most 100000")
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
