package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PeriodKey returns the reporting month of t as "MM/YYYY". The month and year
// are taken from t as given; no timezone conversion happens here.
func PeriodKey(t time.Time) string {
	return fmt.Sprintf("%02d/%04d", int(t.Month()), t.Year())
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// splitPeriodKey returns the month and year substrings of a key that is
// exactly two digits, a slash and four digits.
func splitPeriodKey(key string) (mm, yyyy string, err error) {
	mm, yyyy, ok := strings.Cut(key, "/")
	if !ok || len(mm) != 2 || len(yyyy) != 4 || !allDigits(mm) || !allDigits(yyyy) {
		return "", "", fmt.Errorf("malformed period key %q", key)
	}
	return mm, yyyy, nil
}

// ParsePeriodKey splits a "MM/YYYY" key.
func ParsePeriodKey(key string) (month int, year int, err error) {
	mm, yyyy, err := splitPeriodKey(key)
	if err != nil {
		return 0, 0, err
	}
	month, err = strconv.Atoi(mm)
	if err != nil || month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("malformed period key %q", key)
	}
	year, err = strconv.Atoi(yyyy)
	if err != nil || year < 1 {
		return 0, 0, fmt.Errorf("malformed period key %q", key)
	}
	return month, year, nil
}

// PeriodPathSegment turns "03/2024" into "03-2024" for use in storage paths.
func PeriodPathSegment(key string) string {
	return strings.Replace(key, "/", "-", 1)
}

// MonthName returns the English month name of a period key, or "" when the
// key is malformed.
func MonthName(key string) string {
	month, _, err := ParsePeriodKey(key)
	if err != nil {
		return ""
	}
	return time.Month(month).String()
}

// PeriodFromPathSegment reverses PeriodPathSegment and validates the result.
func PeriodFromPathSegment(seg string) (string, error) {
	key := strings.Replace(seg, "-", "/", 1)
	if _, _, err := ParsePeriodKey(key); err != nil {
		return "", err
	}
	return key, nil
}
