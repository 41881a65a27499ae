package report

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"threatdash/internal/model"
)

// NoRecommendations is printed when an article has none or they cannot be read.
const NoRecommendations = "No recommendations available"

// rightCount right-aligns the second column of two-column count tables.
var rightCount = map[int]bool{1: true}

func heading(w io.Writer, title string) {
	fmt.Fprintf(w, "\n%s\n%s\n", title, strings.Repeat("=", len(title)))
}

// Overview prints the pipeline counters; label names the selected range.
func Overview(w io.Writer, ov model.PipelineOverview, label string) error {
	heading(w, "Pipeline overview ("+label+")")
	t := &Table{Right: rightCount}
	t.Add("Articles processed", strconv.Itoa(ov.ArticlesProcessed))
	t.Add("In range", strconv.Itoa(ov.FilteredItems))
	t.Add("Critical threats", strconv.Itoa(ov.CriticalThreats))
	t.Add("Total IOCs", strconv.Itoa(ov.TotalIOCs))
	t.Add("Failed runs", strconv.Itoa(ov.FailedRuns))
	lastRun := ov.LastRun
	if lastRun == "" {
		lastRun = "never"
	}
	t.Add("Last run", lastRun)
	return t.Render(w)
}

// NameValues prints a name/value chart as a two-column table.
func NameValues(w io.Writer, title string, items []model.NameValue) error {
	heading(w, title)
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, "(no data)")
		return err
	}
	t := &Table{Header: []string{"Name", "Count"}, Right: rightCount}
	for _, it := range items {
		t.Add(it.Name, strconv.Itoa(it.Value))
	}
	return t.Render(w)
}

// Risk prints a risk distribution, highest level first.
func Risk(w io.Writer, dist map[string]int) error {
	items := make([]model.NameValue, 0, len(dist))
	for k, v := range dist {
		items = append(items, model.NameValue{Name: k, Value: v})
	}
	rank := map[model.RiskLevel]int{model.RiskHigh: 0, model.RiskMedium: 1, model.RiskLow: 2, model.RiskInformational: 3}
	sort.Slice(items, func(i, j int) bool {
		ri, ok := rank[model.RiskLevel(items[i].Name)]
		if !ok {
			ri = len(rank)
		}
		rj, ok := rank[model.RiskLevel(items[j].Name)]
		if !ok {
			rj = len(rank)
		}
		if ri != rj {
			return ri < rj
		}
		return items[i].Name < items[j].Name
	})
	return NameValues(w, "Risk distribution", items)
}

func Timeline(w io.Writer, points []model.TimelinePoint) error {
	heading(w, "Threat timeline")
	if len(points) == 0 {
		_, err := fmt.Fprintln(w, "(no data)")
		return err
	}
	t := &Table{
		Header: []string{"Date", "HIGH", "MEDIUM", "LOW", "INFO"},
		Right:  map[int]bool{1: true, 2: true, 3: true, 4: true},
	}
	for _, p := range points {
		t.Add(p.Date, strconv.Itoa(p.High), strconv.Itoa(p.Medium), strconv.Itoa(p.Low), strconv.Itoa(p.Informational))
	}
	return t.Render(w)
}

func Recent(w io.Writer, records []model.ThreatRecord) error {
	heading(w, "Recent threats")
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "(no data)")
		return err
	}
	t := &Table{Header: []string{"ID", "Published", "Risk", "Category", "Title"}, Right: map[int]bool{0: true}}
	for _, r := range records {
		t.Add(strconv.FormatInt(r.ID, 10), r.PublishedDate, string(model.NormalizeRisk(r.RiskLevel)), r.Category, r.Title)
	}
	return t.Render(w)
}

func IOCStats(w io.Writer, s model.IOCStats) error {
	heading(w, "IOC types")
	t := &Table{Right: rightCount}
	t.Add("Domains", strconv.Itoa(s.Domains))
	t.Add("IPs", strconv.Itoa(s.IPs))
	t.Add("Hashes", strconv.Itoa(s.Hashes))
	t.Add("CVEs", strconv.Itoa(s.CVEs))
	t.Add("URLs", strconv.Itoa(s.URLs))
	t.Add("Emails", strconv.Itoa(s.Emails))
	return t.Render(w)
}

func Feeds(w io.Writer, feeds []model.FeedStat) error {
	heading(w, "Feeds")
	t := &Table{Header: []string{"Feed", "Articles", "Parsed", "Last success"}, Right: map[int]bool{1: true, 2: true}}
	for _, f := range feeds {
		t.Add(f.Name, strconv.Itoa(f.Articles), strconv.Itoa(f.Parsed), f.LastSuccess)
	}
	return t.Render(w)
}

func Families(w io.Writer, fams []model.ThreatFamily) error {
	items := make([]model.NameValue, 0, len(fams))
	for _, f := range fams {
		items = append(items, model.NameValue{Name: f.Text, Value: f.Value})
	}
	return NameValues(w, "Threat families", items)
}

func Actors(w io.Writer, acts []model.ActorActivity) error {
	heading(w, "Threat actor activity")
	if len(acts) == 0 {
		_, err := fmt.Fprintln(w, "(no data)")
		return err
	}
	t := &Table{Header: []string{"Actor", "Country", "Type", "Date", "Article"}}
	for _, a := range acts {
		t.Add(a.Actor, a.Country, a.Type, a.Date, a.ArticleTitle)
	}
	return t.Render(w)
}

func CVEs(w io.Writer, cves []model.TrendingCVE) error {
	heading(w, "Trending CVEs")
	if len(cves) == 0 {
		_, err := fmt.Fprintln(w, "(no data)")
		return err
	}
	t := &Table{Header: []string{"CVE", "Mentions", "Severity", "Latest article"}, Right: rightCount}
	for _, c := range cves {
		t.Add(c.CVE, strconv.Itoa(c.Count), c.Severity, c.LatestArticle)
	}
	return t.Render(w)
}

// RecommendationsOrEmpty parses raw and degrades to no recommendations when
// it is malformed.
func RecommendationsOrEmpty(raw string, log *slog.Logger) []model.Recommendation {
	recs, err := model.ParseRecommendations(raw)
	if err != nil {
		if log != nil {
			log.Warn("unreadable recommendations", "err", err)
		}
		return nil
	}
	return recs
}

// Article prints an article with its indicators, queries and recommendations.
func Article(w io.Writer, a model.ArticleDetail, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	heading(w, a.Title)
	fmt.Fprintf(w, "Published: %s\nRisk:      %s\nCategory:  %s\nSource:    %s\n",
		a.PublishedDate, model.NormalizeRisk(a.RiskLevel), a.Category, a.SourceURL)
	if a.Summary != "" {
		fmt.Fprintf(w, "\n%s\n", a.Summary)
	}

	fmt.Fprintln(w, "\nRecommendations:")
	recs := RecommendationsOrEmpty(a.Recommendations, log.With("article_id", a.ID))
	if len(recs) == 0 {
		fmt.Fprintln(w, "  "+NoRecommendations)
	}
	for i, r := range recs {
		if r.Title != "" {
			fmt.Fprintf(w, "  %d. %s: %s\n", i+1, r.Title, r.Description)
		} else {
			fmt.Fprintf(w, "  %d. %s\n", i+1, r.Description)
		}
	}

	if len(a.IOCs) > 0 {
		fmt.Fprintln(w, "\nIndicators:")
		t := &Table{Header: []string{"Type", "Value", "Context"}}
		for _, ioc := range a.IOCs {
			t.Add(ioc.Type, ioc.Value, ioc.Context)
		}
		if err := t.Render(w); err != nil {
			return err
		}
	}
	for _, q := range a.KQLQueries {
		fmt.Fprintf(w, "\nQuery %q (%s, %s):\n%s\n", q.Name, q.Type, q.Platform, q.Query)
	}
	return nil
}
