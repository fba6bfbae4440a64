// Package period resolves calendar bucket boundaries for analytics windows.
package period

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Type is the granularity bucket used to bound an aggregation window.
type Type string

const (
	TypeDaily     Type = "daily"
	TypeWeekly    Type = "weekly"
	TypeMonthly   Type = "monthly"
	TypeQuarterly Type = "quarterly"
	TypeYearly    Type = "yearly"
)

// ErrInvalidType is returned for any unrecognized period type.
var ErrInvalidType = errors.New("invalid period type")

// Types lists every supported period type.
func Types() []Type {
	return []Type{TypeDaily, TypeWeekly, TypeMonthly, TypeQuarterly, TypeYearly}
}

// ParseType normalizes a raw period type string.
func ParseType(raw string) (Type, error) {
	value := Type(strings.ToLower(strings.TrimSpace(raw)))
	switch value {
	case TypeDaily, TypeWeekly, TypeMonthly, TypeQuarterly, TypeYearly:
		return value, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidType, raw)
	}
}

// Resolve returns the inclusive [start, end] calendar bounds containing the
// reference date. Weeks start on Monday; month and quarter ends account for
// variable month lengths and leap years. Both bounds are midnight UTC.
func Resolve(reference time.Time, periodType Type) (time.Time, time.Time, error) {
	ref := truncate(reference)

	switch periodType {
	case TypeDaily:
		return ref, ref, nil
	case TypeWeekly:
		// time.Weekday has Sunday == 0; shift so Monday == 0.
		offset := (int(ref.Weekday()) + 6) % 7
		start := ref.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 6), nil
	case TypeMonthly:
		start := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 1, 0).AddDate(0, 0, -1)
		return start, end, nil
	case TypeQuarterly:
		quarter := (int(ref.Month())-1)/3 + 1
		start := time.Date(ref.Year(), time.Month((quarter-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 3, 0).AddDate(0, 0, -1)
		return start, end, nil
	case TypeYearly:
		start := time.Date(ref.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(ref.Year(), time.December, 31, 0, 0, 0, 0, time.UTC)
		return start, end, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidType, periodType)
	}
}

// Previous returns the window of identical length immediately preceding
// [start, end], used for period-over-period comparisons.
func Previous(start, end time.Time) (time.Time, time.Time) {
	start = truncate(start)
	end = truncate(end)
	length := int(end.Sub(start).Hours()/24) + 1
	prevEnd := start.AddDate(0, 0, -1)
	prevStart := prevEnd.AddDate(0, 0, -(length - 1))
	return prevStart, prevEnd
}

func truncate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
