package filters

import (
	"sort"
	"time"

	"threatdash/internal/matcher"
	"threatdash/internal/model"
)

// MaxIndustries caps the top-industries output.
const MaxIndustries = 15

// counter counts labels and remembers the order they were first seen in, so
// that equal counts sort deterministically.
type counter struct {
	order  []string
	counts map[string]int
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(label string) {
	if _, ok := c.counts[label]; !ok {
		c.order = append(c.order, label)
	}
	c.counts[label]++
}

// sorted returns the labels by descending count, ties in first-seen order.
func (c *counter) sorted() []model.NameValue {
	out := make([]model.NameValue, 0, len(c.order))
	for _, label := range c.order {
		out = append(out, model.NameValue{Name: label, Value: c.counts[label]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	return out
}

// AggregateTimeline counts records per UTC calendar day and risk level,
// ascending by date. Records with an unparseable published_date are skipped.
func AggregateTimeline(threats []model.ThreatRecord, tr *TimeRange, now time.Time) []model.TimelinePoint {
	filtered := FilterByTimeRange(threats, tr, now, PublishedDate)
	byDate := make(map[string]*model.TimelinePoint)
	for _, t := range filtered {
		date, ok := DateKey(t.PublishedDate)
		if !ok {
			continue
		}
		p, ok := byDate[date]
		if !ok {
			p = &model.TimelinePoint{Date: date}
			byDate[date] = p
		}
		p.Add(model.NormalizeRisk(t.RiskLevel))
	}
	out := make([]model.TimelinePoint, 0, len(byDate))
	for _, p := range byDate {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// AggregateCategoryDistribution counts records per category. Missing
// categories count as Uncategorized.
func AggregateCategoryDistribution(threats []model.ThreatRecord, tr *TimeRange, now time.Time) []model.NameValue {
	c := newCounter()
	for _, t := range FilterByTimeRange(threats, tr, now, PublishedDate) {
		category := t.Category
		if category == "" {
			category = model.CategoryNone
		}
		c.add(category)
	}
	return c.sorted()
}

// ExcludePlaceholders drops the Pending Analysis bucket before charting.
func ExcludePlaceholders(items []model.NameValue) []model.NameValue {
	out := make([]model.NameValue, 0, len(items))
	for _, it := range items {
		if it.Name == model.CategoryPending {
			continue
		}
		out = append(out, it)
	}
	return out
}

// AggregateAttackVectors maps each record's category onto an attack vector
// and counts them.
func AggregateAttackVectors(threats []model.ThreatRecord, tr *TimeRange, now time.Time) []model.NameValue {
	c := newCounter()
	for _, t := range FilterByTimeRange(threats, tr, now, PublishedDate) {
		category := t.Category
		if category == "" {
			category = "Unknown"
		}
		c.add(matcher.AttackVector(category))
	}
	return c.sorted()
}

// AggregateTopIndustries counts every industry a record mentions. One record
// may count towards several industries. At most MaxIndustries are returned.
func AggregateTopIndustries(threats []model.ThreatRecord, tr *TimeRange, now time.Time) []model.NameValue {
	c := newCounter()
	for _, t := range FilterByTimeRange(threats, tr, now, PublishedDate) {
		for _, industry := range matcher.Industries(t.Category, t.Title, t.Summary, t.Content) {
			c.add(industry)
		}
	}
	out := c.sorted()
	if len(out) > MaxIndustries {
		out = out[:MaxIndustries]
	}
	return out
}
