package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soaringjerry/Footprint/internal/models"
)

func usage(e, g, f, m int64) models.Usage {
	return models.Usage{
		Electric: decimal.NewFromInt(e),
		Gas:      decimal.NewFromInt(g),
		Fuel:     decimal.NewFromInt(f),
		AvgMiles: decimal.NewFromInt(m),
	}
}

func TestEstimate(t *testing.T) {
	tests := []struct {
		name string
		in   models.Usage
		want string
	}{
		{"worked example", usage(10, 5, 2, 100), "7001"},
		{"all zero", usage(0, 0, 0, 0), "0"},
		{"electric only", usage(1, 0, 0, 0), "105"},
		{"gas only", usage(0, 1, 0, 0), "105"},
		{"fuel only", usage(0, 0, 1, 0), "113"},
		{"miles only", usage(0, 0, 0, 1), "52"},
		{
			name: "fractional",
			in: models.Usage{
				Electric: decimal.RequireFromString("0.5"),
				Gas:      decimal.RequireFromString("1.25"),
				Fuel:     decimal.RequireFromString("0.1"),
				AvgMiles: decimal.RequireFromString("2.5"),
			},
			want: "325.05", // 52.5 + 131.25 + 11.3 + 130
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Estimate(tt.in)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestEstimateIsLinear(t *testing.T) {
	for e := int64(0); e < 4; e++ {
		for m := int64(0); m < 4; m++ {
			got := Estimate(usage(e, e+1, e+2, m))
			want := decimal.NewFromInt(105*e + 105*(e+1) + 113*(e+2) + 52*m)
			require.True(t, got.Equal(want), "e=%d m=%d got %s", e, m, got)
		}
	}
}

func TestParseUsage(t *testing.T) {
	u, bad := ParseUsage(ReadingInput{ElectricUsage: "10", GasUsage: " 5 ", FuelUsage: "2", AvgMilesDriven: "100"})
	require.Empty(t, bad)
	assert.True(t, Estimate(u).Equal(decimal.NewFromInt(7001)))

	_, bad = ParseUsage(ReadingInput{ElectricUsage: "", GasUsage: "abc", FuelUsage: "-1", AvgMilesDriven: "3"})
	assert.Equal(t, []string{"electricUsage", "gasUsage", "fuelUsage"}, bad)
}

func TestPreviewEstimate(t *testing.T) {
	est, ready, err := PreviewEstimate(ReadingInput{ElectricUsage: "10", GasUsage: "5", FuelUsage: "2"})
	require.NoError(t, err)
	assert.False(t, ready)
	assert.True(t, est.IsZero())

	est, ready, err = PreviewEstimate(ReadingInput{ElectricUsage: "0", GasUsage: "0", FuelUsage: "0", AvgMilesDriven: "0"})
	require.NoError(t, err)
	assert.True(t, ready, "zero inputs are a genuine zero once every field is filled")
	assert.True(t, est.IsZero())

	_, ready, err = PreviewEstimate(ReadingInput{ElectricUsage: "x", GasUsage: "0", FuelUsage: "0", AvgMilesDriven: "0"})
	assert.False(t, ready)
	se, ok := AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, ErrorInvalid, se.Code)
	assert.Equal(t, []string{"electricUsage"}, se.Fields)
}
