// Package ingest pulls RSS and Atom feeds into the store as articles awaiting
// analysis.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"threatdash/internal/config"
	"threatdash/internal/metrics"
	"threatdash/internal/model"
	"threatdash/internal/store"
)

// summaryRunes bounds the feed description kept as a provisional summary.
const summaryRunes = 300

type Result struct {
	Feeds   int `json:"feeds"`
	Failed  int `json:"failed"`
	Fetched int `json:"fetched"`
	Stored  int `json:"stored"`
}

type Service struct {
	cfg    config.IngestConfig
	store  *store.Store
	parser *gofeed.Parser
	log    *slog.Logger
	items  metric.Int64Counter
	now    func() time.Time

	mu            sync.Mutex
	lastMessage   string
	lastMessageAt time.Time
}

func New(cfg config.IngestConfig, st *store.Store, log *slog.Logger, m metrics.Instruments) *Service {
	if log == nil {
		log = slog.Default()
	}
	parser := gofeed.NewParser()
	parser.UserAgent = cfg.UserAgent
	parser.Client = &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second}
	return &Service{cfg: cfg, store: st, parser: parser, log: log, items: m.IngestedItems, now: time.Now}
}

// Run satisfies scheduler.Runner.
func (s *Service) Run(ctx context.Context) error {
	_, err := s.Ingest(ctx)
	return err
}

// Ingest fetches every configured feed once. It fails only when every feed
// fails; per-item store errors are logged and skipped.
func (s *Service) Ingest(ctx context.Context) (Result, error) {
	res := Result{Feeds: len(s.cfg.Feeds)}
	if len(s.cfg.Feeds) == 0 {
		s.progress("no feeds configured; skipping")
		return res, nil
	}
	known, err := s.store.KnownURLs(ctx)
	if err != nil {
		return res, err
	}
	now := s.now().UTC()
	var cutoff time.Time
	if s.cfg.MaxAgeDays > 0 {
		cutoff = now.AddDate(0, 0, -s.cfg.MaxAgeDays)
	}
	s.progress("started", "feeds", len(s.cfg.Feeds))

	lastErr := ""
	for i, feedURL := range s.cfg.Feeds {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		feed, err := s.parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			res.Failed++
			lastErr = err.Error()
			s.log.Warn("feed fetch failed", "feed", feedURL, "err", err)
			continue
		}
		stored := 0
		for _, item := range feed.Items {
			res.Fetched++
			in, ok := toArticle(item, feedURL, now, cutoff)
			if !ok {
				continue
			}
			if _, seen := known[in.URL]; seen {
				continue
			}
			_, inserted, err := s.store.InsertArticle(ctx, in)
			if err != nil {
				s.log.Warn("store article failed", "url", in.URL, "err", err)
				continue
			}
			known[in.URL] = struct{}{}
			if inserted {
				stored++
			}
		}
		res.Stored += stored
		if s.items != nil && stored > 0 {
			s.items.Add(ctx, int64(stored), metric.WithAttributes(attribute.String("feed", feedURL)))
		}
		s.progress("feed done", "n", fmt.Sprintf("%d/%d", i+1, len(s.cfg.Feeds)), "feed", feedURL, "items", len(feed.Items), "stored", stored)
	}

	if err := s.store.SetSetting(ctx, store.SettingLastRun, now.Format(time.RFC3339)); err != nil {
		s.log.Warn("record last run failed", "err", err)
	}
	s.progress("all done", "feeds", res.Feeds, "failed", res.Failed, "fetched", res.Fetched, "stored", res.Stored)
	if res.Failed == res.Feeds {
		if _, err := s.store.IncrementSetting(ctx, store.SettingFailedRuns, 1); err != nil {
			s.log.Warn("record failed run failed", "err", err)
		}
		return res, fmt.Errorf("all feed fetches failed (%d/%d): %s", res.Failed, res.Feeds, lastErr)
	}
	return res, nil
}

// toArticle maps a feed item onto a pending article. Items without a usable
// link or title, and items published before cutoff, are rejected.
func toArticle(item *gofeed.Item, feedURL string, now, cutoff time.Time) (store.ArticleInput, bool) {
	link := normalizeURL(item.Link)
	title := strings.TrimSpace(item.Title)
	if link == "" || title == "" {
		return store.ArticleInput{}, false
	}
	published := now
	if item.PublishedParsed != nil {
		published = item.PublishedParsed.UTC()
	} else if item.UpdatedParsed != nil {
		published = item.UpdatedParsed.UTC()
	}
	if !cutoff.IsZero() && published.Before(cutoff) {
		return store.ArticleInput{}, false
	}
	content := htmlText(item.Content)
	description := htmlText(item.Description)
	if content == "" {
		content = description
	}
	return store.ArticleInput{
		Title:         title,
		URL:           link,
		PublishedDate: published.Format(time.RFC3339),
		Content:       content,
		Summary:       truncate(description, summaryRunes),
		Category:      model.CategoryPending,
		SourceFeed:    feedURL,
		IngestedAt:    now,
	}, true
}

// normalizeURL keeps http(s) links, lower-cases the host and drops the
// fragment. The query is kept because some publishers route articles by it.
func normalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Host == "" {
		return ""
	}
	u.Scheme = scheme
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return u.String()
}

func htmlText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-3]) + "..."
}

func (s *Service) progress(msg string, args ...any) {
	s.log.Info("ingest: "+msg, args...)
	s.mu.Lock()
	s.lastMessage = msg
	s.lastMessageAt = s.now()
	s.mu.Unlock()
}

// LastProgress returns the most recent progress message and when it was
// logged.
func (s *Service) LastProgress() (string, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMessage, s.lastMessageAt
}
