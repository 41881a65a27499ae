package datasource

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"threatdash/internal/config"
	"threatdash/internal/logging"
	"threatdash/internal/metrics"
	"threatdash/internal/model"
)

func newClient(t *testing.T, cfg config.ClientConfig) *Client {
	t.Helper()
	if cfg.TimeoutSec == 0 {
		cfg.TimeoutSec = 5
	}
	c, err := New(cfg, logging.Discard(), metrics.New())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.ClientConfig
		want error
	}{
		{"unknown mode", config.ClientConfig{Mode: "hybrid"}, config.ErrClientMode},
		{"live without url", config.ClientConfig{Mode: config.ModeLive}, config.ErrClientBaseURL},
		{"static without base", config.ClientConfig{Mode: config.ModeStatic}, config.ErrStaticBase},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg, nil, metrics.New()); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLiveFetchPassesQuery(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery = r.URL.Path, r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"name":"Phishing","value":2}]`))
	}))
	defer srv.Close()

	c := newClient(t, config.ClientConfig{Mode: config.ModeLive, BaseURL: srv.URL + "/api/"})
	var out []model.NameValue
	q := map[string][]string{"days": {"7"}}
	if err := c.Fetch(context.Background(), model.ResourceAttackVectors, q, &out); err != nil {
		t.Fatal(err)
	}
	if gotPath != "/api/attack-vectors" || gotQuery != "days=7" {
		t.Fatalf("request = %s?%s", gotPath, gotQuery)
	}
	if len(out) != 1 || out[0].Value != 2 {
		t.Fatalf("out = %+v", out)
	}
}

func TestLiveFetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/article/7":
			w.WriteHeader(http.StatusNotFound)
		case "/api/bad-json":
			_, _ = w.Write([]byte(`{`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"days must be a positive integer"}`))
		}
	}))
	defer srv.Close()
	c := newClient(t, config.ClientConfig{Mode: config.ModeLive, BaseURL: srv.URL + "/api"})
	ctx := context.Background()

	var detail model.ArticleDetail
	err := c.FetchArticle(ctx, 7, &detail)
	if !errors.Is(err, ErrNotFound) || !strings.HasPrefix(err.Error(), "datasource: fetch article/7:") {
		t.Fatalf("article err = %v", err)
	}

	var v any
	err = c.Fetch(ctx, "threat-timeline", nil, &v)
	if err == nil || !strings.Contains(err.Error(), "status 400: days must be a positive integer") {
		t.Fatalf("err = %v", err)
	}
	if err := c.Fetch(ctx, "bad-json", nil, &v); err == nil || !strings.Contains(err.Error(), "decode") {
		t.Fatalf("decode err = %v", err)
	}
}

func TestStaticDirFetch(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "articles"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ioc-stats.json"), []byte(`{"domains":3}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "articles", "4.json"), []byte(`{"id":4,"title":"x"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	c := newClient(t, config.ClientConfig{Mode: config.ModeStatic, StaticBase: dir})
	ctx := context.Background()

	var stats model.IOCStats
	if err := c.Fetch(ctx, model.ResourceIOCStats, map[string][]string{"days": {"1"}}, &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Domains != 3 {
		t.Fatalf("stats = %+v", stats)
	}
	var detail model.ArticleDetail
	if err := c.FetchArticle(ctx, 4, &detail); err != nil || detail.Title != "x" {
		t.Fatalf("detail = %+v, err = %v", detail, err)
	}
	if err := c.FetchArticle(ctx, 5, &detail); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing article err = %v", err)
	}
	var v any
	if err := c.Fetch(ctx, "../../etc/passwd", nil, &v); !errors.Is(err, ErrNotFound) {
		t.Fatalf("traversal err = %v", err)
	}
}
