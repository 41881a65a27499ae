// Package filters narrows threat records to a time range and reduces them to
// chart-ready shapes. Every function is pure: inputs are never mutated and the
// same arguments always yield the same output. All dates are handled in UTC.
package filters

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	RangeDays      = "days"
	RangeDateRange = "daterange"
)

// TimeRange selects records either relative to now (Days) or between two
// calendar dates (StartDate/EndDate, formatted YYYY-MM-DD).
type TimeRange struct {
	Type      string `json:"type,omitempty"`
	Days      int    `json:"days,omitempty"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
}

var ErrInvalidDays = errors.New("days must be a positive integer")

func LastDays(n int) *TimeRange {
	return &TimeRange{Type: RangeDays, Days: n}
}

func Between(start, end string) *TimeRange {
	return &TimeRange{Type: RangeDateRange, StartDate: start, EndDate: end}
}

func (tr *TimeRange) isDateRange() bool {
	return tr.Type == RangeDateRange && tr.StartDate != "" && tr.EndDate != ""
}

// Active reports whether the range filters anything.
func (tr *TimeRange) Active() bool {
	if tr == nil {
		return false
	}
	return tr.isDateRange() || tr.Days != 0
}

// Predicate resolves the range against now. The returned function reports
// whether a stored timestamp falls inside the range. Unparseable timestamps
// and unparseable bounds never match; a nil or empty range matches all.
func (tr *TimeRange) Predicate(now time.Time) func(string) bool {
	if !tr.Active() {
		return func(string) bool { return true }
	}
	if tr.isDateRange() {
		start, okStart := ParseTimestamp(tr.StartDate)
		end, okEnd := ParseTimestamp(tr.EndDate)
		if !okStart || !okEnd {
			return func(string) bool { return false }
		}
		start = StartOfDay(start)
		return func(raw string) bool {
			t, ok := ParseTimestamp(raw)
			if !ok {
				return false
			}
			return !t.Before(start) && !t.After(end)
		}
	}
	cutoff := now.UTC().AddDate(0, 0, -tr.Days)
	return func(raw string) bool {
		t, ok := ParseTimestamp(raw)
		if !ok {
			return false
		}
		return !t.Before(cutoff)
	}
}

// Query encodes the range as API query parameters.
func (tr *TimeRange) Query() url.Values {
	q := url.Values{}
	if !tr.Active() {
		return q
	}
	if tr.isDateRange() {
		q.Set("start_date", tr.StartDate)
		q.Set("end_date", tr.EndDate)
		return q
	}
	q.Set("days", strconv.Itoa(tr.Days))
	return q
}

func (tr *TimeRange) String() string {
	switch {
	case !tr.Active():
		return "all time"
	case tr.isDateRange():
		return tr.StartDate + " - " + tr.EndDate
	default:
		return strconv.Itoa(tr.Days) + " days"
	}
}

// TimeRangeFromQuery reads days, start_date and end_date. A start/end pair
// takes precedence over days. It returns nil when neither is present.
func TimeRangeFromQuery(q url.Values) (*TimeRange, error) {
	start := strings.TrimSpace(q.Get("start_date"))
	end := strings.TrimSpace(q.Get("end_date"))
	if start != "" && end != "" {
		return Between(start, end), nil
	}
	raw := strings.TrimSpace(q.Get("days"))
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return nil, ErrInvalidDays
	}
	return LastDays(n), nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04-0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses the timestamp shapes the store and the static export
// produce. Values without a zone are read as UTC.
func ParseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DateKey returns the UTC calendar date of raw as YYYY-MM-DD.
func DateKey(raw string) (string, bool) {
	t, ok := ParseTimestamp(raw)
	if !ok {
		return "", false
	}
	return t.Format("2006-01-02"), true
}
