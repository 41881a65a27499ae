package ingest

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"

	"threatdash/internal/config"
	"threatdash/internal/metrics"
	"threatdash/internal/model"
	"threatdash/internal/store"
	"threatdash/internal/store/storetest"
)

const rssBody = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Security News</title>
  <link>https://news.example.com/</link>
  <description>test</description>
  <item>
    <title>LockBit affiliate arrested</title>
    <link>https://News.Example.com/lockbit#comments</link>
    <description><![CDATA[<p>Police <b>arrest</b> a LockBit affiliate.</p>]]></description>
    <pubDate>Tue, 02 Jan 2024 10:00:00 GMT</pubDate>
  </item>
  <item>
    <title>Old story</title>
    <link>https://news.example.com/old</link>
    <description>ancient</description>
    <pubDate>Mon, 01 Jan 2018 10:00:00 GMT</pubDate>
  </item>
  <item>
    <title></title>
    <link>https://news.example.com/untitled</link>
    <pubDate>Tue, 02 Jan 2024 11:00:00 GMT</pubDate>
  </item>
  <item>
    <title>Known already</title>
    <link>https://news.example.com/known</link>
    <pubDate>Tue, 02 Jan 2024 12:00:00 GMT</pubDate>
  </item>
</channel>
</rss>`

var fixedNow = time.Date(2024, 1, 3, 7, 30, 0, 0, time.UTC)

func newService(t *testing.T, st *store.Store, feeds ...string) *Service {
	t.Helper()
	cfg := config.IngestConfig{Feeds: feeds, UserAgent: "threatdash-test", TimeoutSec: 5, MaxAgeDays: 7}
	s := New(cfg, st, slog.New(slog.NewTextHandler(io.Discard, nil)), metrics.New())
	s.now = func() time.Time { return fixedNow }
	return s
}

func feedServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feed.xml" {
			http.NotFound(w, r)
			return
		}
		if ua := r.Header.Get("User-Agent"); ua != "threatdash-test" {
			t.Errorf("user agent = %q", ua)
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = io.WriteString(w, rssBody)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestIngestStoresPendingArticles(t *testing.T) {
	ctx := context.Background()
	st := storetest.Open(t)
	storetest.Seed(t, st, []storetest.Article{{ArticleInput: store.ArticleInput{
		Title: "Known already", URL: "https://news.example.com/known", PublishedDate: "2024-01-02",
	}}})
	srv := feedServer(t)
	s := newService(t, st, srv.URL+"/feed.xml", srv.URL+"/missing.xml")

	res, err := s.Ingest(ctx)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Feeds != 2 || res.Failed != 1 || res.Fetched != 4 || res.Stored != 1 {
		t.Fatalf("result = %+v", res)
	}

	records, err := st.ListThreats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var got model.ThreatRecord
	for _, r := range records {
		if r.Title == "LockBit affiliate arrested" {
			got = r
		}
	}
	if got.SourceURL != "https://news.example.com/lockbit" {
		t.Fatalf("source url = %q", got.SourceURL)
	}
	if got.Category != model.CategoryPending || got.RiskLevel != "" {
		t.Fatalf("category/risk = %q/%q", got.Category, got.RiskLevel)
	}
	if got.PublishedDate != "2024-01-02T10:00:00Z" {
		t.Fatalf("published = %q", got.PublishedDate)
	}
	if got.Summary != "Police arrest a LockBit affiliate." {
		t.Fatalf("summary = %q", got.Summary)
	}

	last, _ := st.GetSetting(ctx, store.SettingLastRun, "")
	if last != "2024-01-03T07:30:00Z" {
		t.Fatalf("last run = %q", last)
	}
	if msg, _ := s.LastProgress(); msg != "all done" {
		t.Fatalf("last progress = %q", msg)
	}

	// A second pass finds nothing new.
	res, err = s.Ingest(ctx)
	if err != nil || res.Stored != 0 {
		t.Fatalf("second ingest = %+v, %v", res, err)
	}
}

func TestIngestAllFeedsFailing(t *testing.T) {
	ctx := context.Background()
	st := storetest.Open(t)
	srv := feedServer(t)
	s := newService(t, st, srv.URL+"/a.xml", srv.URL+"/b.xml")

	if err := s.Run(ctx); err == nil || !strings.Contains(err.Error(), "all feed fetches failed (2/2)") {
		t.Fatalf("err = %v", err)
	}
	n, _ := st.GetSettingInt(ctx, store.SettingFailedRuns, 0)
	if n != 1 {
		t.Fatalf("failed runs = %d", n)
	}
}

func TestIngestNoFeeds(t *testing.T) {
	s := newService(t, storetest.Open(t))
	res, err := s.Ingest(context.Background())
	if err != nil || res.Feeds != 0 {
		t.Fatalf("res = %+v, err = %v", res, err)
	}
}

func TestToArticleFallbacks(t *testing.T) {
	updated := time.Date(2024, 1, 1, 9, 0, 0, 0, time.FixedZone("x", 3600))
	item := &gofeed.Item{
		Title:         "  Spaced title ",
		Link:          "https://example.com/a",
		Content:       "<div>Full <em>body</em></div>",
		Description:   "Short",
		UpdatedParsed: &updated,
	}
	in, ok := toArticle(item, "https://example.com/feed", fixedNow, time.Time{})
	if !ok {
		t.Fatal("item rejected")
	}
	if in.Title != "Spaced title" || in.Content != "Full body" || in.Summary != "Short" {
		t.Fatalf("article = %+v", in)
	}
	if in.PublishedDate != "2024-01-01T08:00:00Z" {
		t.Fatalf("published = %q", in.PublishedDate)
	}

	noDate := &gofeed.Item{Title: "t", Link: "https://example.com/b"}
	in, _ = toArticle(noDate, "", fixedNow, time.Time{})
	if in.PublishedDate != "2024-01-03T07:30:00Z" {
		t.Fatalf("undated item published = %q", in.PublishedDate)
	}

	if _, ok := toArticle(&gofeed.Item{Title: "t", Link: "ftp://example.com/x"}, "", fixedNow, time.Time{}); ok {
		t.Fatal("non-http link accepted")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("こんにちは世界です", 5); got != "こん..." {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("truncate = %q", got)
	}
}
