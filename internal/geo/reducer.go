package geo

import (
	"strings"

	"github.com/forest-dashboard/backend/pkg/apperror"
)

const DefaultReducer = "sum"

var reducers = map[string]string{
	"sum":    "Reducer.sum",
	"mean":   "Reducer.mean",
	"median": "Reducer.median",
	"min":    "Reducer.min",
	"max":    "Reducer.max",
	"stddev": "Reducer.stdDev",
}

// ParseReducer maps a reducer name (case-insensitive, empty meaning sum) to
// its canonical name and expression. Unknown names are rejected unless
// lenient is set, in which case they become sum.
func ParseReducer(name string, lenient bool) (string, Expr, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = DefaultReducer
	}

	fn, ok := reducers[key]
	if !ok {
		if !lenient {
			return "", nil, apperror.UnsupportedReducer(name)
		}
		key, fn = DefaultReducer, reducers[DefaultReducer]
	}

	return key, Invoke(fn, nil), nil
}
