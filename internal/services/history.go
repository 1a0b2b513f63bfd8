package services

import (
	"fmt"
	"sort"

	"github.com/soaringjerry/Footprint/internal/models"
)

// GroupByYear partitions readings by the year of their period key. Order
// within a year follows the input. A malformed key rejects the whole batch
// instead of dropping the record.
func GroupByYear(readings []*models.UsageReading) (models.SubmissionHistory, error) {
	out := models.SubmissionHistory{}
	for i, r := range readings {
		if r == nil {
			return nil, NewInvalidError(fmt.Sprintf("reading %d is nil", i))
		}
		_, _, err := ParsePeriodKey(r.PeriodKey)
		if err != nil {
			return nil, &ServiceError{
				Code:    ErrorInvalid,
				Message: fmt.Sprintf("reading %s has a malformed period", r.ID),
				Err:     err,
			}
		}
		_, year, _ := splitPeriodKey(r.PeriodKey)
		out[year] = append(out[year], r)
	}
	return out, nil
}

// SortedYears returns the years of h, newest first.
func SortedYears(h models.SubmissionHistory) []string {
	years := make([]string, 0, len(h))
	for y := range h {
		years = append(years, y)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(years)))
	return years
}

// SortByMonth returns a copy of readings ordered by period, oldest first.
// Readings with malformed keys sort last.
func SortByMonth(readings []*models.UsageReading) []*models.UsageReading {
	out := append([]*models.UsageReading(nil), readings...)
	rank := func(r *models.UsageReading) int {
		m, y, err := ParsePeriodKey(r.PeriodKey)
		if err != nil {
			return int(^uint(0) >> 1)
		}
		return y*12 + m
	}
	sort.SliceStable(out, func(i, j int) bool { return rank(out[i]) < rank(out[j]) })
	return out
}
