package services

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/soaringjerry/Footprint/internal/models"
)

// Emission factors in lbs per unit of usage.
var (
	ElectricFactor = decimal.NewFromInt(105) // per kWh
	GasFactor      = decimal.NewFromInt(105) // per ft³
	FuelFactor     = decimal.NewFromInt(113) // per gal
	MileageFactor  = decimal.NewFromInt(52)  // per average mile driven
)

// Estimate returns the monthly footprint in lbs:
//
//	electric*105 + gas*105 + fuel*113 + avgMiles*52
//
// Inputs are assumed validated. A zero result does not mean "not computed";
// callers decide that from whether all four fields were filled.
func Estimate(u models.Usage) decimal.Decimal {
	return u.Electric.Mul(ElectricFactor).
		Add(u.Gas.Mul(GasFactor)).
		Add(u.Fuel.Mul(FuelFactor)).
		Add(u.AvgMiles.Mul(MileageFactor))
}

// ReadingInput carries the four usage fields exactly as the user typed them.
type ReadingInput struct {
	ElectricUsage  string `json:"electricUsage"`
	GasUsage       string `json:"gasUsage"`
	FuelUsage      string `json:"fuelUsage"`
	AvgMilesDriven string `json:"avgMilesDriven"`
}

// Filled reports whether every field has a value.
func (in ReadingInput) Filled() bool {
	for _, v := range in.values() {
		if strings.TrimSpace(v.raw) == "" {
			return false
		}
	}
	return true
}

type namedValue struct {
	field string
	raw   string
}

func (in ReadingInput) values() []namedValue {
	return []namedValue{
		{"electricUsage", in.ElectricUsage},
		{"gasUsage", in.GasUsage},
		{"fuelUsage", in.FuelUsage},
		{"avgMilesDriven", in.AvgMilesDriven},
	}
}

// ParseUsage converts the raw input into quantities. It returns the names of
// every field that is blank, not a number, or negative.
func ParseUsage(in ReadingInput) (models.Usage, []string) {
	parsed := make([]decimal.Decimal, 4)
	var bad []string
	for i, v := range in.values() {
		raw := strings.TrimSpace(v.raw)
		if raw == "" {
			bad = append(bad, v.field)
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil || d.IsNegative() {
			bad = append(bad, v.field)
			continue
		}
		parsed[i] = d
	}
	return models.Usage{Electric: parsed[0], Gas: parsed[1], Fuel: parsed[2], AvgMiles: parsed[3]}, bad
}

// PreviewEstimate computes the footprint while a form is being filled in.
// ready is false until all four fields hold a value.
func PreviewEstimate(in ReadingInput) (estimate decimal.Decimal, ready bool, err error) {
	if !in.Filled() {
		return decimal.Zero, false, nil
	}
	u, bad := ParseUsage(in)
	if len(bad) > 0 {
		return decimal.Zero, false, NewValidationError(bad...)
	}
	return Estimate(u), true, nil
}
