// Package export writes the dashboard resources as static JSON files that the
// static data source reads back.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"threatdash/internal/config"
	"threatdash/internal/filters"
	"threatdash/internal/metrics"
	"threatdash/internal/model"
	"threatdash/internal/resource"
)

const (
	ManifestFile = "manifest.json"
	ArticlesDir  = "articles"
)

// FileName is the export file holding resource name.
func FileName(name string) string { return name + ".json" }

// ArticleFile is the export path of one article relative to the export root.
func ArticleFile(id int64) string {
	return filepath.Join(ArticlesDir, strconv.FormatInt(id, 10)+".json")
}

type Exporter struct {
	cfg   config.ExportConfig
	svc   *resource.Service
	log   *slog.Logger
	files metric.Int64Counter
}

func New(cfg config.ExportConfig, svc *resource.Service, log *slog.Logger, m metrics.Instruments) *Exporter {
	if log == nil {
		log = slog.Default()
	}
	return &Exporter{cfg: cfg, svc: svc, log: log, files: m.ExportedFiles}
}

// Run satisfies scheduler.Runner.
func (e *Exporter) Run(ctx context.Context) error {
	_, err := e.Export(ctx)
	return err
}

// Export writes every resource, one file per exported article and the
// manifest into the configured directory. recent-threats.json holds the whole
// exported window, not just the first page, so static readers can recompute
// any range inside it.
func (e *Exporter) Export(ctx context.Context) (model.Manifest, error) {
	dir := filepath.Clean(e.cfg.Dir)
	if err := os.MkdirAll(filepath.Join(dir, ArticlesDir), 0o755); err != nil {
		return model.Manifest{}, fmt.Errorf("create export dir: %w", err)
	}
	var tr *filters.TimeRange
	if e.cfg.Days > 0 {
		tr = filters.LastDays(e.cfg.Days)
	}
	records, err := e.svc.Records(ctx, tr)
	if err != nil {
		return model.Manifest{}, fmt.Errorf("export records: %w", err)
	}

	endpoints := make([]string, 0, len(model.Resources))
	for _, name := range model.Resources {
		var v any
		switch name {
		case model.ResourceRecentThreats:
			v = records
		default:
			v, err = e.svc.Build(ctx, name, e.params(name, tr))
			if err != nil {
				return model.Manifest{}, fmt.Errorf("export %s: %w", name, err)
			}
		}
		if err := e.write(ctx, dir, FileName(name), v); err != nil {
			return model.Manifest{}, err
		}
		endpoints = append(endpoints, FileName(name))
	}

	articles := 0
	for _, r := range records {
		detail, err := e.svc.Article(ctx, r.ID)
		if err != nil {
			e.log.Warn("export article failed", "id", r.ID, "err", err)
			continue
		}
		if err := e.write(ctx, dir, ArticleFile(r.ID), detail); err != nil {
			return model.Manifest{}, err
		}
		articles++
	}

	overview, err := e.svc.Build(ctx, model.ResourcePipelineOverview, resource.Params{})
	if err != nil {
		return model.Manifest{}, fmt.Errorf("export manifest: %w", err)
	}
	m := model.Manifest{
		GeneratedAt:   e.svc.Now().UTC().Format(time.RFC3339),
		TotalArticles: overview.(model.PipelineOverview).ArticlesProcessed,
		Endpoints:     endpoints,
		ArticleCount:  articles,
	}
	if err := e.write(ctx, dir, ManifestFile, m); err != nil {
		return model.Manifest{}, err
	}
	e.log.Info("export done", "dir", dir, "resources", len(endpoints), "articles", articles, "records", len(records))
	return m, nil
}

func (e *Exporter) params(name string, tr *filters.TimeRange) resource.Params {
	p := resource.Params{Range: tr}
	switch name {
	case model.ResourceActorActivity:
		p.Limit = e.cfg.ActorLimit
	case model.ResourceTrendingCVEs:
		p.Limit = e.cfg.CVELimit
	}
	return p
}

// write replaces dir/rel atomically so a reader never sees a partial file.
func (e *Exporter) write(ctx context.Context, dir, rel string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", rel, err)
	}
	path := filepath.Join(dir, rel)
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(b, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", rel, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	if e.files != nil {
		e.files.Add(ctx, 1, metric.WithAttributes(attribute.String("file", filepath.Dir(rel))))
	}
	return nil
}
