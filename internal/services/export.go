package services

import (
	"bytes"
	"encoding/csv"

	"github.com/soaringjerry/Footprint/internal/models"
)

var exportHeader = []string{"period", "month", "electric_kwh", "gas_ft3", "fuel_gal", "avg_miles", "estimate_lbs"}

// ExportHistoryCSV renders a submission history, oldest period first.
func ExportHistoryCSV(h models.SubmissionHistory) ([]byte, error) {
	all := make([]*models.UsageReading, 0)
	for _, rs := range h {
		all = append(all, rs...)
	}
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write(exportHeader)
	for _, r := range SortByMonth(all) {
		rec := []string{
			r.PeriodKey,
			MonthName(r.PeriodKey),
			r.Usage.Electric.String(),
			r.Usage.Gas.String(),
			r.Usage.Fuel.String(),
			r.Usage.AvgMiles.String(),
			r.EstimateLbs.StringFixed(2),
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
