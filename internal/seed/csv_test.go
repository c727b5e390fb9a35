package seed

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest-dashboard/backend/internal/storage/sqlite"
)

func TestReadHistory(t *testing.T) {
	in := "ds,country,loss_km2,source\n2020-01-01,Brazil,12.5,hansen\n2021-01-01, Brazil ,14,hansen\n"

	rows, err := ReadHistory(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []sqlite.HistoryRow{
		{Country: "Brazil", DS: "2020-01-01", LossKm2: 12.5},
		{Country: "Brazil", DS: "2021-01-01", LossKm2: 14},
	}, rows)
}

func TestReadForecast(t *testing.T) {
	in := "country,ds,loss_km2_pred,loss_km2_lo,loss_km2_hi\nBrazil,2022-01-01,13.1,11.0,15.2\n"

	rows, err := ReadForecast(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 13.1, rows[0].LossKm2Pred)
	assert.Equal(t, 11.0, rows[0].LossKm2Lo)
	assert.Equal(t, 15.2, rows[0].LossKm2Hi)
}

func TestReadHistory_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", "empty csv"},
		{"missing column", "country,ds\nBrazil,2020-01-01\n", `missing column "loss_km2"`},
		{"bad number", "country,ds,loss_km2\nBrazil,2020-01-01,lots\n", `line 2: invalid loss_km2 "lots"`},
		{"blank country", "country,ds,loss_km2\n,2020-01-01,1\n", "line 2: country and ds are required"},
		{"short row", "country,ds,loss_km2\nBrazil,2020-01-01\n", "line 2: expected 3 fields, got 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadHistory(strings.NewReader(tt.in))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
