package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodKey(t *testing.T) {
	march3 := time.Date(2024, time.March, 3, 8, 0, 0, 0, time.UTC)
	march29 := time.Date(2024, time.March, 29, 23, 59, 59, 0, time.UTC)
	april1 := time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)
	march2025 := time.Date(2025, time.March, 3, 8, 0, 0, 0, time.UTC)

	assert.Equal(t, "03/2024", PeriodKey(march3))
	assert.Equal(t, PeriodKey(march3), PeriodKey(march29))
	assert.NotEqual(t, PeriodKey(march29), PeriodKey(april1))
	assert.NotEqual(t, PeriodKey(march3), PeriodKey(march2025))
	assert.Equal(t, "12/1999", PeriodKey(time.Date(1999, time.December, 31, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "01/2000", PeriodKey(time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)))
}

func TestPeriodKeyStableAcrossEveryDayOfMonth(t *testing.T) {
	start := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)
	want := PeriodKey(start)
	for d := start; d.Month() == time.February; d = d.Add(7 * time.Hour) {
		require.Equal(t, want, PeriodKey(d), d)
	}
}

func TestParsePeriodKey(t *testing.T) {
	m, y, err := ParsePeriodKey("06/2023")
	require.NoError(t, err)
	assert.Equal(t, 6, m)
	assert.Equal(t, 2023, y)

	for _, bad := range []string{"", "6/2023", "13/2023", "00/2023", "06-2023", "06/23", "ab/2023", "06/abcd", "+3/2024", "-1/2024", " 3/2024", "01/+999", "01/-999"} {
		_, _, err := ParsePeriodKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestPeriodHelpers(t *testing.T) {
	assert.Equal(t, "03-2024", PeriodPathSegment("03/2024"))
	assert.Equal(t, "March", MonthName("03/2024"))
	assert.Equal(t, "December", MonthName("12/2024"))
	assert.Equal(t, "", MonthName("2024"))
}

func TestPeriodFromPathSegment(t *testing.T) {
	key, err := PeriodFromPathSegment("03-2024")
	require.NoError(t, err)
	assert.Equal(t, "03/2024", key)

	_, err = PeriodFromPathSegment("2024-03")
	assert.Error(t, err)
}
