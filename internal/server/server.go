package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"threatdash/internal/auth"
	"threatdash/internal/config"
	"threatdash/internal/metrics"
	"threatdash/internal/model"
	"threatdash/internal/resource"
	"threatdash/internal/scheduler"
	"threatdash/internal/store"
)

// adminRunTimeout bounds admin-triggered pipeline runs and exports, which
// outlive the request that started them.
const adminRunTimeout = 10 * time.Minute

type progressSource interface {
	LastProgress() (string, time.Time)
}

type exporter interface {
	Export(context.Context) (model.Manifest, error)
}

type API struct {
	cfg       config.ServerConfig
	svc       *resource.Service
	scheduler *scheduler.Scheduler
	exporter  exporter
	progress  progressSource
	guard     *auth.Guard
	static    http.Handler
	log       *slog.Logger
	metrics   metrics.Instruments
}

// Deps are the collaborators of the API. Scheduler, Exporter and Progress may
// be nil; the matching admin endpoints then answer 503.
type Deps struct {
	Service   *resource.Service
	Scheduler *scheduler.Scheduler
	Exporter  exporter
	Progress  progressSource
	Guard     *auth.Guard
	Log       *slog.Logger
	Metrics   metrics.Instruments
}

func New(cfg config.ServerConfig, d Deps) *API {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	a := &API{
		cfg:       cfg,
		svc:       d.Service,
		scheduler: d.Scheduler,
		exporter:  d.Exporter,
		progress:  d.Progress,
		guard:     d.Guard,
		log:       log,
		metrics:   d.Metrics,
	}
	if cfg.StaticDir != "" {
		a.static = StaticHandler("/data/", cfg.StaticDir)
	}
	return a
}

func (a *API) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", a.handleIndex)
	mux.HandleFunc("GET /health", a.handleHealth)
	if a.static != nil {
		mux.Handle("GET /data/", a.static)
	}

	mux.Handle("GET /api/{resource}", a.withJSON(http.HandlerFunc(a.handleResource)))
	mux.Handle("GET /api/article/{id}", a.withJSON(http.HandlerFunc(a.handleArticle)))

	mux.Handle("POST /admin/api/ingest", a.guard.AdminOnly(a.withJSON(http.HandlerFunc(a.handleAdminIngest))))
	mux.Handle("POST /admin/api/export", a.guard.AdminOnly(a.withJSON(http.HandlerFunc(a.handleAdminExport))))
	mux.Handle("GET /admin/api/status", a.guard.AdminOnly(a.withJSON(http.HandlerFunc(a.handleAdminStatus))))
	return a.instrument(mux)
}

func (a *API) handleIndex(w http.ResponseWriter, r *http.Request) {
	endpoints := make([]string, 0, len(model.Resources)+1)
	for _, name := range model.Resources {
		endpoints = append(endpoints, "/api/"+name)
	}
	endpoints = append(endpoints, "/api/article/{id}")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	respondJSON(w, http.StatusOK, map[string]any{
		"service":   "threatdash",
		"status":    "running",
		"endpoints": endpoints,
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (a *API) handleResource(w http.ResponseWriter, r *http.Request) {
	p, err := resource.ParamsFromQuery(r.URL.Query(), a.cfg.MaxLimit)
	if err != nil {
		respondErr(w, http.StatusBadRequest, err)
		return
	}
	v, err := a.svc.Build(r.Context(), r.PathValue("resource"), p)
	if err != nil {
		if errors.Is(err, resource.ErrUnknownResource) {
			respondErr(w, http.StatusNotFound, err)
			return
		}
		a.log.Error("build resource failed", "resource", r.PathValue("resource"), "err", err)
		respondErr(w, http.StatusInternalServerError, errors.New("internal error"))
		return
	}
	respondJSON(w, http.StatusOK, v)
}

func (a *API) handleArticle(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		respondErr(w, http.StatusBadRequest, errors.New("invalid article id"))
		return
	}
	detail, err := a.svc.Article(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondErr(w, http.StatusNotFound, errors.New("article not found"))
			return
		}
		a.log.Error("load article failed", "id", id, "err", err)
		respondErr(w, http.StatusInternalServerError, errors.New("internal error"))
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

func (a *API) handleAdminIngest(w http.ResponseWriter, r *http.Request) {
	if a.scheduler == nil {
		respondErr(w, http.StatusServiceUnavailable, errors.New("pipeline not configured"))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), adminRunTimeout)
	defer cancel()
	if err := a.scheduler.RunNow(ctx); err != nil {
		if errors.Is(err, scheduler.ErrRunAlreadyRunning) || errors.Is(err, scheduler.ErrCooldown) {
			respondErr(w, http.StatusConflict, err)
			return
		}
		respondErr(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleAdminExport(w http.ResponseWriter, r *http.Request) {
	if a.exporter == nil {
		respondErr(w, http.StatusServiceUnavailable, errors.New("export not configured"))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), adminRunTimeout)
	defer cancel()
	m, err := a.exporter.Export(ctx)
	if err != nil {
		respondErr(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "manifest": m})
}

func (a *API) handleAdminStatus(w http.ResponseWriter, r *http.Request) {
	overview, err := a.svc.Build(r.Context(), model.ResourcePipelineOverview, resource.Params{})
	if err != nil {
		respondErr(w, http.StatusInternalServerError, err)
		return
	}
	msg, msgAt := "", time.Time{}
	if a.progress != nil {
		msg, msgAt = a.progress.LastProgress()
	}
	var state any
	if a.scheduler != nil {
		state = a.scheduler.Snapshot()
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"pipeline": map[string]any{
			"state":           state,
			"last_message":    msg,
			"last_message_at": msgAt,
		},
		"overview": overview,
	})
}

func (a *API) withJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondErr(w http.ResponseWriter, code int, err error) {
	respondJSON(w, code, map[string]any{"error": err.Error()})
}
