package validation

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest-dashboard/backend/internal/models"
	"github.com/forest-dashboard/backend/pkg/apperror"
)

// parse runs fn against a request for target and returns what it produced.
func parse[T any](t *testing.T, target string, fn func(*fiber.Ctx) (T, error)) (T, error) {
	t.Helper()
	var (
		got    T
		gotErr error
	)
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		got, gotErr = fn(c)
		return nil
	})
	_, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	require.NoError(t, err)
	return got, gotErr
}

func assertValidation(t *testing.T, err error, tag string) {
	t.Helper()
	require.Error(t, err)
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, apperror.KindValidation, appErr.Kind)
	assert.Equal(t, tag, appErr.Message)
	assert.NotEmpty(t, appErr.Hint)
}

func TestParseForestLossParams_Defaults(t *testing.T) {
	params, err := parse(t, "/?country=%20Brazil%20", ParseForestLossParams)
	require.NoError(t, err)
	assert.Equal(t, models.QueryParams{Country: "Brazil", StartYear: 2001, EndYear: 2023}, params)
}

func TestParseForestLossParams_AllFields(t *testing.T) {
	params, err := parse(t, "/?country=Brazil&startYear=2015&endYear=2020&includeCover=true", ParseForestLossParams)
	require.NoError(t, err)
	assert.Equal(t, models.QueryParams{Country: "Brazil", StartYear: 2015, EndYear: 2020, IncludeCover: true}, params)

	params, err = parse(t, "/?country=Brazil&includeCover=TRUE", ParseForestLossParams)
	require.NoError(t, err)
	assert.False(t, params.IncludeCover)
}

func TestParseForestLossParams_CountryRequired(t *testing.T) {
	for _, target := range []string{"/", "/?country=", "/?country=%20%20", "/?country=&startYear=1990"} {
		_, err := parse(t, target, ParseForestLossParams)
		assertValidation(t, err, TagCountryRequired)
	}
}

func TestParseForestLossParams_InvalidYearRange(t *testing.T) {
	targets := []string{
		"/?country=Brazil&startYear=2000",
		"/?country=Brazil&endYear=2024",
		"/?country=Brazil&startYear=2020&endYear=2010",
		"/?country=Brazil&startYear=abc",
		"/?country=Brazil&endYear=2020.5",
	}
	for _, target := range targets {
		_, err := parse(t, target, ParseForestLossParams)
		assertValidation(t, err, TagInvalidYears)
	}
}

func TestParseForestLossParams_SingleYear(t *testing.T) {
	params, err := parse(t, "/?country=Peru&startYear=2023&endYear=2023", ParseForestLossParams)
	require.NoError(t, err)
	assert.Equal(t, 2023, params.StartYear)
	assert.Equal(t, 2023, params.EndYear)
}

func TestParseCountry(t *testing.T) {
	country, err := parse(t, "/?country=C%C3%B4te%20d%27Ivoire", ParseCountry)
	require.NoError(t, err)
	assert.Equal(t, "Côte d'Ivoire", country)

	_, err = parse(t, "/?country=%09", ParseCountry)
	assertValidation(t, err, TagCountryRequired)
}

func TestParseDatasetParams(t *testing.T) {
	q, err := parse(t, "/?dataset=MODIS/006/MOD13A2&country=Kenya&bands=NDVI,%20EVI,&reducer=mean&scale=500", ParseDatasetParams)
	require.NoError(t, err)
	assert.Equal(t, models.DatasetQuery{
		Dataset: "MODIS/006/MOD13A2",
		Country: "Kenya",
		Bands:   []string{"NDVI", "EVI"},
		Reducer: "mean",
		Scale:   500,
	}, q)

	_, err = parse(t, "/?dataset=X", ParseDatasetParams)
	assertValidation(t, err, TagCountryRequired)

	_, err = parse(t, "/?country=Kenya", ParseDatasetParams)
	assertValidation(t, err, TagDatasetRequired)

	for _, scale := range []string{"abc", "-1", "NaN", "1e9"} {
		_, err = parse(t, "/?country=Kenya&dataset=X&scale="+scale, ParseDatasetParams)
		assertValidation(t, err, TagInvalidScale)
	}
}
