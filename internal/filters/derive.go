package filters

import (
	"sort"
	"strings"
	"time"

	"threatdash/internal/matcher"
	"threatdash/internal/model"
)

// DefaultRecentLimit is used when a caller asks for recent threats without a
// positive limit.
const DefaultRecentLimit = 10

// SelectRecent filters records to tr, keeps only the given risk level (when
// set, case-insensitive) and returns at most limit of them in input order.
func SelectRecent(records []model.ThreatRecord, tr *TimeRange, now time.Time, risk string, limit int) []model.ThreatRecord {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	risk = strings.TrimSpace(risk)
	out := make([]model.ThreatRecord, 0, min(limit, len(records)))
	for _, r := range FilterByTimeRange(records, tr, now, PublishedDate) {
		if risk != "" && !strings.EqualFold(r.RiskLevel, risk) {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out
}

// ApplyOverview fills the range-dependent counters of base from records.
func ApplyOverview(base model.PipelineOverview, records []model.ThreatRecord, tr *TimeRange, now time.Time) model.PipelineOverview {
	in := FilterByTimeRange(records, tr, now, PublishedDate)
	base.FilteredItems = len(in)
	base.CriticalThreats = 0
	for _, r := range in {
		if model.NormalizeRisk(r.RiskLevel) == model.RiskHigh {
			base.CriticalThreats++
		}
	}
	return base
}

// AggregateThreatFamilies counts family keywords over category and title.
// Output follows keyword table order and omits zero counts.
func AggregateThreatFamilies(records []model.ThreatRecord, tr *TimeRange, now time.Time) []model.ThreatFamily {
	counts := make(map[string]int)
	for _, r := range FilterByTimeRange(records, tr, now, PublishedDate) {
		for _, f := range matcher.Families(r.Category, r.Title) {
			counts[f]++
		}
	}
	out := make([]model.ThreatFamily, 0, len(counts))
	for _, kw := range matcher.FamilyKeywords {
		if n := counts[kw]; n > 0 {
			out = append(out, model.ThreatFamily{Text: kw, Value: n})
		}
	}
	return out
}

// ActorActivity reports the first known actor named by each record, in input
// order, up to limit entries. A non-positive limit means no cap.
func ActorActivity(records []model.ThreatRecord, tr *TimeRange, now time.Time, limit int) []model.ActorActivity {
	out := []model.ActorActivity{}
	for _, r := range FilterByTimeRange(records, tr, now, PublishedDate) {
		a, ok := matcher.FindActor(r.Title, r.Summary)
		if !ok {
			continue
		}
		out = append(out, model.ActorActivity{
			Actor:        a.Name,
			Country:      a.Country,
			Type:         a.Type,
			Lat:          a.Lat,
			Lon:          a.Lon,
			ArticleTitle: r.Title,
			Date:         r.PublishedDate,
			ArticleID:    r.ID,
		})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// TrendingCVEs groups mentions by CVE id. Mentions are expected newest
// first, so the first mention of a CVE supplies its latest article. Severity
// is CRITICAL once any mention comes from a HIGH article, HIGH when the best
// is MEDIUM, UNKNOWN otherwise.
func TrendingCVEs(mentions []model.CVEMention, tr *TimeRange, now time.Time, limit int) []model.TrendingCVE {
	match := tr.Predicate(now)
	byCVE := make(map[string]*model.TrendingCVE)
	var order []string
	for _, m := range mentions {
		if tr.Active() && !match(m.PublishedDate) {
			continue
		}
		c, ok := byCVE[m.CVE]
		if !ok {
			c = &model.TrendingCVE{CVE: m.CVE, Severity: "UNKNOWN", LatestArticle: m.Title, Date: m.PublishedDate}
			byCVE[m.CVE] = c
			order = append(order, m.CVE)
		}
		c.Count++
		switch model.NormalizeRisk(m.RiskLevel) {
		case model.RiskHigh:
			c.Severity = "CRITICAL"
		case model.RiskMedium:
			if c.Severity == "UNKNOWN" {
				c.Severity = "HIGH"
			}
		}
		if c.Context == "" && m.Context != "" {
			c.Context = m.Context
		}
	}
	out := make([]model.TrendingCVE, 0, len(order))
	for _, id := range order {
		out = append(out, *byCVE[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
