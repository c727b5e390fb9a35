package apperror

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/forest-dashboard/backend/pkg/circuitbreaker"
)

type Category struct {
	Name    string
	Status  int
	Tag     string
	Message string
}

var (
	CategoryValidation = Category{
		Name:    "validation",
		Status:  http.StatusBadRequest,
		Tag:     "Invalid request",
		Message: "The request parameters are invalid.",
	}
	CategoryNotFound = Category{
		Name:    "not_found",
		Status:  http.StatusNotFound,
		Tag:     "Country not found",
		Message: "The requested country was not found in the dataset. Please check the spelling and try again.",
	}
	CategoryConfiguration = Category{
		Name:    "configuration",
		Status:  http.StatusInternalServerError,
		Tag:     "Configuration error",
		Message: "A backend is not configured. Check the BigQuery environment variables and the Earth Engine service account key file.",
	}
	CategoryInitialization = Category{
		Name:    "initialization",
		Status:  http.StatusInternalServerError,
		Tag:     "Earth Engine initialization failed",
		Message: "Failed to initialize Google Earth Engine. Please check your service account credentials.",
	}
	CategoryBackend = Category{
		Name:    "backend",
		Status:  http.StatusInternalServerError,
		Tag:     "Backend request failed",
		Message: "A backend query failed while processing your request.",
	}
	CategoryUnavailable = Category{
		Name:    "unavailable",
		Status:  http.StatusServiceUnavailable,
		Tag:     "Service temporarily unavailable",
		Message: "A backend is failing repeatedly and requests are paused. Please try again shortly.",
	}
	CategoryTimeout = Category{
		Name:    "timeout",
		Status:  http.StatusGatewayTimeout,
		Tag:     "Backend timeout",
		Message: "A backend did not respond in time.",
	}
	CategoryUnsupportedReducer = Category{
		Name:    "unsupported_reducer",
		Status:  http.StatusBadRequest,
		Tag:     "Unsupported reducer",
		Message: "Supported reducers are sum, mean, median, min, max and stddev.",
	}
	CategoryConnection = Category{
		Name:    "connection",
		Status:  http.StatusInternalServerError,
		Tag:     "Earth Engine connection failed",
		Message: "Unable to connect to Google Earth Engine. Please check your service account configuration.",
	}
	CategoryInternal = Category{
		Name:    "internal",
		Status:  http.StatusInternalServerError,
		Tag:     "Internal server error",
		Message: "An unexpected error occurred while processing your request.",
	}
)

// Substrings recognised on untyped errors. They match the wording the
// dashboard has always reported so older clients keep working.
const (
	keyFileMissingText = "Service account key file not found"
	notFoundText       = "not found"
	initializeText     = "initialize"
)

// Classify maps err to a response category. Typed errors are classified by
// kind; untyped errors fall back to matching on their text.
func Classify(err error) Category {
	if err == nil {
		return CategoryInternal
	}

	if errors.Is(err, circuitbreaker.ErrOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return CategoryUnavailable
	}

	switch KindOf(err) {
	case KindValidation:
		return CategoryValidation
	case KindNotFound:
		return CategoryNotFound
	case KindConfiguration:
		return CategoryConfiguration
	case KindInitialization:
		return CategoryInitialization
	case KindUnsupportedReducer:
		return CategoryUnsupportedReducer
	case KindConnection:
		return CategoryConnection
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}

	if KindOf(err) == KindBackend {
		return CategoryBackend
	}

	return classifyText(err.Error())
}

// The key-file check must stay ahead of "not found": its text contains
// "not found" and would otherwise become a 404.
func classifyText(msg string) Category {
	switch {
	case strings.Contains(msg, keyFileMissingText):
		return CategoryConfiguration
	case strings.Contains(msg, notFoundText):
		return CategoryNotFound
	case strings.Contains(msg, initializeText):
		return CategoryInitialization
	default:
		return CategoryInternal
	}
}
