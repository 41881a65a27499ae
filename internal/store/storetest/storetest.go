// Package storetest opens throwaway stores for tests in other packages.
package storetest

import (
	"context"
	"path/filepath"
	"testing"

	"threatdash/internal/db"
	"threatdash/internal/model"
	"threatdash/internal/store"
)

// Open returns a migrated store in a temp dir, closed on cleanup.
func Open(t testing.TB) *store.Store {
	t.Helper()
	conn, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "intel.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return store.New(conn)
}

// Article is a fixture row with its indicators and queries.
type Article struct {
	store.ArticleInput
	IOCs    []model.IOC
	Queries []model.KQLQuery
}

// Seed inserts the articles in order and returns their ids.
func Seed(t testing.TB, st *store.Store, articles []Article) []int64 {
	t.Helper()
	ctx := context.Background()
	ids := make([]int64, 0, len(articles))
	for _, a := range articles {
		id, _, err := st.InsertArticle(ctx, a.ArticleInput)
		if err != nil {
			t.Fatalf("insert %q: %v", a.Title, err)
		}
		if len(a.IOCs) > 0 {
			if _, err := st.AddIOCs(ctx, id, a.IOCs); err != nil {
				t.Fatalf("iocs for %q: %v", a.Title, err)
			}
		}
		if len(a.Queries) > 0 {
			if _, err := st.AddKQLQueries(ctx, id, a.Queries); err != nil {
				t.Fatalf("queries for %q: %v", a.Title, err)
			}
		}
		ids = append(ids, id)
	}
	return ids
}

// Corpus is a mixed set of articles spread over early January 2024, with
// several timestamp shapes, an unrelated article and a pending one.
func Corpus() []Article {
	in := func(title, url, published, category, risk, summary string) store.ArticleInput {
		return store.ArticleInput{
			Title: title, URL: url, PublishedDate: published, Category: category,
			Risk: risk, Summary: summary, Content: summary,
		}
	}
	return []Article{
		{ArticleInput: in("Lazarus phishing wave hits bank customers", "https://www.bleepingcomputer.com/news/1",
			"2023-12-20T09:00:00", "Phishing Campaign", "HIGH", "Spear phishing against financial institutions."),
			IOCs: []model.IOC{
				{Type: "domains", Value: "evil.example", Context: "c2"},
				{Type: "emails", Value: "a@evil.example"},
			}},
		{ArticleInput: in("LockBit ransomware hits hospital network", "https://thehackernews.com/2024/01/a.html",
			"2024-01-01T10:30:00", "Ransomware Attack", "HIGH", "Patient records encrypted at a medical center."),
			IOCs: []model.IOC{
				{Type: "cves", Value: "CVE-2023-4966", Context: "Citrix Bleed"},
				{Type: "ips", Value: "203.0.113.7"},
				{Type: "sha256", Value: "abc123"},
			},
			Queries: []model.KQLQuery{{Name: "Bleed", Query: "DeviceNetworkEvents | take 1", Type: "hunting", Platform: "Defender"}}},
		{ArticleInput: in("Critical vulnerability exploited in VPN appliances", "https://www.darkreading.com/vuln/b",
			"2024-01-02 08:15:00", "Vulnerability Exploitation", "MEDIUM", "Government agencies urged to patch."),
			IOCs: []model.IOC{{Type: "cves", Value: "CVE-2023-4966"}}},
		{ArticleInput: in("Credential stuffing against retail store accounts", "https://krebsonsecurity.com/2024/01/c/",
			"2024-01-02T20:00:00Z", "Credential Theft", "low", "Shoppers' passwords reused."),
		},
		{ArticleInput: in("Volt Typhoon web application intrusions", "https://www.bleepingcomputer.com/news/2",
			"2024-01-03", "Web Application Attack", "", "Energy utility targeted via web shell."),
		},
		{ArticleInput: in("New DDoS botnet", "https://example.org/ddos",
			"2024-01-03T01:00:00+02:00", "", "INFORMATIONAL", "Network provider traffic flood."),
		},
		{ArticleInput: in("Celebrity gossip roundup", "https://example.org/gossip",
			"2024-01-02T12:00:00", model.CategoryNotRelevant, "NOT_RELEVANT", "Not security news."),
		},
		{ArticleInput: in("Fresh headline awaiting analysis", "https://thehackernews.com/2024/01/d.html",
			"2024-01-02T13:00:00", model.CategoryPending, "", "Awaiting analysis."),
		},
		{ArticleInput: in("Article with a broken date", "https://example.org/broken",
			"sometime last week", "Malware", "HIGH", "Trojan dropper."),
		},
	}
}
