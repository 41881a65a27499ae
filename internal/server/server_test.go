package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"threatdash/internal/auth"
	"threatdash/internal/config"
	"threatdash/internal/export"
	"threatdash/internal/logging"
	"threatdash/internal/metrics"
	"threatdash/internal/model"
	"threatdash/internal/resource"
	"threatdash/internal/scheduler"
	"threatdash/internal/server"
	"threatdash/internal/store/storetest"
)

const secret = "s3cret-for-tests"

var fixedNow = time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)

type fixture struct {
	handler http.Handler
	runs    int
	dir     string
}

func newFixture(t *testing.T, runErr error) *fixture {
	t.Helper()
	return newMeteredFixture(t, runErr, metrics.New())
}

func newMeteredFixture(t *testing.T, runErr error, m metrics.Instruments) *fixture {
	t.Helper()
	st := storetest.Open(t)
	storetest.Seed(t, st, storetest.Corpus())
	svc := resource.New(st, func() time.Time { return fixedNow })
	f := &fixture{dir: filepath.Join(t.TempDir(), "data")}

	sched, err := scheduler.New("", scheduler.RunnerFunc(func(context.Context) error {
		f.runs++
		return runErr
	}), logging.Discard(), m)
	if err != nil {
		t.Fatal(err)
	}
	guard, err := auth.New(secret, []string{"192.0.2.0/24"}, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.ServerConfig{MaxLimit: 50, StaticDir: f.dir}
	api := server.New(cfg, server.Deps{
		Service:   svc,
		Scheduler: sched,
		Exporter:  export.New(config.ExportConfig{Dir: f.dir}, svc, logging.Discard(), m),
		Guard:     guard,
		Log:       logging.Discard(),
		Metrics:   m,
	})
	f.handler = api.Routes()
	return f
}

func (f *fixture) do(t *testing.T, method, target string, admin bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if admin {
		req.Header.Set(auth.SecretHeader, secret)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthAndIndex(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/health", false)
	if rec.Code != http.StatusOK || decode[map[string]string](t, rec)["status"] != "healthy" {
		t.Fatalf("health = %d %s", rec.Code, rec.Body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing request id")
	}

	rec = f.do(t, http.MethodGet, "/", false)
	idx := decode[struct {
		Endpoints []string `json:"endpoints"`
	}](t, rec)
	if len(idx.Endpoints) != len(model.Resources)+1 {
		t.Fatalf("endpoints = %v", idx.Endpoints)
	}
}

func TestRequestMetricsUseRoutePattern(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	f := newMeteredFixture(t, nil, metrics.NewWith(mp))

	f.do(t, http.MethodGet, "/api/article/1", false)
	f.do(t, http.MethodGet, "/api/article/2", false)
	f.do(t, http.MethodGet, "/nope", false)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	byRoute := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "threatdash_http_requests_total" {
				continue
			}
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				route, _ := dp.Attributes.Value("route")
				byRoute[route.AsString()] += dp.Value
			}
		}
	}
	if byRoute["GET /api/article/{id}"] != 2 || byRoute["unmatched"] != 1 {
		t.Fatalf("requests by route = %v", byRoute)
	}
}

func TestRequestIDEcho(t *testing.T) {
	f := newFixture(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Fatalf("request id = %q", got)
	}

	req.Header.Set("X-Request-ID", "bad id with spaces")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got == "" || got == "bad id with spaces" {
		t.Fatalf("request id = %q", got)
	}
}

func TestEveryResourceServes(t *testing.T) {
	f := newFixture(t, nil)
	for _, name := range model.Resources {
		t.Run(name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, "/api/"+name, false)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
				t.Fatalf("content type = %q", ct)
			}
			if rec.Body.String() == "null\n" {
				t.Fatal("null body")
			}
		})
	}
}

func TestRangeParams(t *testing.T) {
	f := newFixture(t, nil)

	ov := decode[model.PipelineOverview](t, f.do(t, http.MethodGet, "/api/pipeline-overview?days=1", false))
	if ov.FilteredItems != 4 || ov.ArticlesProcessed != 9 {
		t.Fatalf("overview = %+v", ov)
	}

	recent := decode[[]model.ThreatRecord](t, f.do(t, http.MethodGet, "/api/recent-threats?risk=high&limit=1", false))
	if len(recent) != 1 || recent[0].RiskLevel != "HIGH" {
		t.Fatalf("recent = %+v", recent)
	}

	timeline := decode[[]model.TimelinePoint](t, f.do(t, http.MethodGet,
		"/api/threat-timeline?start_date=2024-01-02&end_date=2024-01-03", false))
	if len(timeline) != 2 || timeline[0].Date != "2024-01-02" {
		t.Fatalf("timeline = %+v", timeline)
	}
}

func TestBadRequests(t *testing.T) {
	f := newFixture(t, nil)
	tests := []struct {
		target string
		want   int
	}{
		{"/api/recent-threats?limit=0", http.StatusBadRequest},
		{"/api/recent-threats?limit=abc", http.StatusBadRequest},
		{"/api/threat-timeline?days=-3", http.StatusBadRequest},
		{"/api/no-such-thing", http.StatusNotFound},
		{"/api/article/abc", http.StatusBadRequest},
		{"/api/article/9999", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, tt.target, false)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body)
			}
			if decode[map[string]string](t, rec)["error"] == "" {
				t.Fatal("missing error message")
			}
		})
	}
	if rec := f.do(t, http.MethodPost, "/api/recent-threats", false); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST status = %d", rec.Code)
	}
}

func TestArticle(t *testing.T) {
	f := newFixture(t, nil)
	recent := decode[[]model.ThreatRecord](t, f.do(t, http.MethodGet, "/api/recent-threats?limit=50", false))
	var id int64
	for _, r := range recent {
		if r.KQLCount > 0 {
			id = r.ID
		}
	}
	rec := f.do(t, http.MethodGet, "/api/article/"+itoa(id), false)
	detail := decode[model.ArticleDetail](t, rec)
	if detail.ID != id || len(detail.KQLQueries) != 1 || len(detail.IOCs) != 3 {
		t.Fatalf("detail = %+v", detail)
	}
}

func TestAdminIngest(t *testing.T) {
	f := newFixture(t, nil)
	if rec := f.do(t, http.MethodPost, "/admin/api/ingest", false); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/admin/api/ingest", true); rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if rec := f.do(t, http.MethodPost, "/admin/api/ingest", true); rec.Code != http.StatusConflict {
		t.Fatalf("second run status = %d", rec.Code)
	}
	if f.runs != 1 {
		t.Fatalf("runs = %d", f.runs)
	}
}

func TestAdminIngestFailure(t *testing.T) {
	f := newFixture(t, errors.New("feeds down"))
	rec := f.do(t, http.MethodPost, "/admin/api/ingest", true)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	status := decode[struct {
		Pipeline struct {
			State scheduler.RunState `json:"state"`
		} `json:"pipeline"`
		Overview model.PipelineOverview `json:"overview"`
	}](t, f.do(t, http.MethodGet, "/admin/api/status", true))
	if status.Pipeline.State.LastError != "feeds down" || status.Overview.ArticlesProcessed != 9 {
		t.Fatalf("status = %+v", status)
	}
}

func TestAdminExportServesData(t *testing.T) {
	f := newFixture(t, nil)
	if rec := f.do(t, http.MethodGet, "/data/manifest.json", false); rec.Code != http.StatusNotFound {
		t.Fatalf("before export status = %d", rec.Code)
	}
	rec := f.do(t, http.MethodPost, "/admin/api/export", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d: %s", rec.Code, rec.Body)
	}

	rec = f.do(t, http.MethodGet, "/data/manifest.json", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("manifest status = %d", rec.Code)
	}
	m := decode[model.Manifest](t, rec)
	if m.ArticleCount != 8 {
		t.Fatalf("manifest = %+v", m)
	}
	if rec := f.do(t, http.MethodGet, "/data/articles/", false); rec.Code != http.StatusNotFound {
		t.Fatalf("listing status = %d", rec.Code)
	}
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
