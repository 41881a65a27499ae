package filters

import (
	"time"

	"threatdash/internal/model"
)

// DateField selects the timestamp a record is filtered on.
type DateField func(model.ThreatRecord) string

// PublishedDate is the default DateField.
func PublishedDate(r model.ThreatRecord) string { return r.PublishedDate }

// FilterByTimeRange keeps the records whose field falls inside tr, preserving
// order. A nil field means PublishedDate. A nil or empty range returns
// records unchanged.
func FilterByTimeRange(records []model.ThreatRecord, tr *TimeRange, now time.Time, field DateField) []model.ThreatRecord {
	if !tr.Active() {
		return records
	}
	if field == nil {
		field = PublishedDate
	}
	match := tr.Predicate(now)
	out := make([]model.ThreatRecord, 0, len(records))
	for _, r := range records {
		if match(field(r)) {
			out = append(out, r)
		}
	}
	return out
}
