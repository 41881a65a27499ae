package datasource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"threatdash/internal/filters"
	"threatdash/internal/model"
	"threatdash/internal/resource"
)

// Dashboard exposes one method per widget. Range-dependent widgets are
// filtered by the API in live mode and recomputed from the exported record
// list in static mode; both paths produce the same values.
//
// In static mode the record list is fetched once and cached until Reset.
type Dashboard struct {
	client *Client
	now    func() time.Time

	mu       sync.Mutex
	snapshot []model.ThreatRecord
}

func NewDashboard(c *Client, now func() time.Time) *Dashboard {
	if now == nil {
		now = time.Now
	}
	return &Dashboard{client: c, now: now}
}

func (d *Dashboard) Mode() string { return d.client.Mode() }

// Reset drops the cached static snapshot so the next call re-reads it.
func (d *Dashboard) Reset() {
	d.mu.Lock()
	d.snapshot = nil
	d.mu.Unlock()
}

func (d *Dashboard) records(ctx context.Context) ([]model.ThreatRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.snapshot != nil {
		return d.snapshot, nil
	}
	var records []model.ThreatRecord
	if err := d.client.Fetch(ctx, model.ResourceRecentThreats, nil, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []model.ThreatRecord{}
	}
	d.snapshot = records
	return records, nil
}

// derived fetches a record-derivable resource: from the API in live mode, or
// by recomputing it over the snapshot in static mode.
func derived[T any](ctx context.Context, d *Dashboard, name string, p resource.Params) (T, error) {
	var out T
	if !d.client.Static() {
		err := d.client.Fetch(ctx, name, p.Query(), &out)
		return out, err
	}
	records, err := d.records(ctx)
	if err != nil {
		return out, err
	}
	v, ok := resource.Derive(name, records, p, d.now())
	if !ok {
		return out, fmt.Errorf("datasource: %s cannot be derived from records", name)
	}
	return v.(T), nil
}

func fetched[T any](ctx context.Context, d *Dashboard, name string, p resource.Params) (T, error) {
	var out T
	err := d.client.Fetch(ctx, name, p.Query(), &out)
	return out, err
}

// Overview returns the pipeline counters with the in-range counts for tr.
func (d *Dashboard) Overview(ctx context.Context, tr *filters.TimeRange) (model.PipelineOverview, error) {
	p := resource.Params{Range: tr}
	base, err := fetched[model.PipelineOverview](ctx, d, model.ResourcePipelineOverview, p)
	if err != nil || !d.client.Static() {
		return base, err
	}
	records, err := d.records(ctx)
	if err != nil {
		return model.PipelineOverview{}, err
	}
	return filters.ApplyOverview(base, records, tr, d.now()), nil
}

func (d *Dashboard) RiskDistribution(ctx context.Context) (map[string]int, error) {
	return fetched[map[string]int](ctx, d, model.ResourceRiskDistribution, resource.Params{})
}

// RecentThreats honours p.Risk and p.Limit (default 10) as well as p.Range.
func (d *Dashboard) RecentThreats(ctx context.Context, p resource.Params) ([]model.ThreatRecord, error) {
	return derived[[]model.ThreatRecord](ctx, d, model.ResourceRecentThreats, p)
}

func (d *Dashboard) CategoryDistribution(ctx context.Context, tr *filters.TimeRange) ([]model.NameValue, error) {
	return derived[[]model.NameValue](ctx, d, model.ResourceCategoryDistribution, resource.Params{Range: tr})
}

func (d *Dashboard) Timeline(ctx context.Context, tr *filters.TimeRange) ([]model.TimelinePoint, error) {
	return derived[[]model.TimelinePoint](ctx, d, model.ResourceThreatTimeline, resource.Params{Range: tr})
}

func (d *Dashboard) IOCStats(ctx context.Context) (model.IOCStats, error) {
	return fetched[model.IOCStats](ctx, d, model.ResourceIOCStats, resource.Params{})
}

func (d *Dashboard) FeedStats(ctx context.Context) ([]model.FeedStat, error) {
	return fetched[[]model.FeedStat](ctx, d, model.ResourceFeedStats, resource.Params{})
}

func (d *Dashboard) ThreatFamilies(ctx context.Context, tr *filters.TimeRange) ([]model.ThreatFamily, error) {
	return derived[[]model.ThreatFamily](ctx, d, model.ResourceThreatFamilies, resource.Params{Range: tr})
}

func (d *Dashboard) TopIndustries(ctx context.Context, tr *filters.TimeRange) ([]model.NameValue, error) {
	return derived[[]model.NameValue](ctx, d, model.ResourceTopIndustries, resource.Params{Range: tr})
}

func (d *Dashboard) ActorActivity(ctx context.Context, tr *filters.TimeRange, limit int) ([]model.ActorActivity, error) {
	return derived[[]model.ActorActivity](ctx, d, model.ResourceActorActivity, resource.Params{Range: tr, Limit: limit})
}

func (d *Dashboard) AttackVectors(ctx context.Context, tr *filters.TimeRange) ([]model.NameValue, error) {
	return derived[[]model.NameValue](ctx, d, model.ResourceAttackVectors, resource.Params{Range: tr})
}

// TrendingCVEs is ranged in live mode. The static export carries only the
// unranged list, so static mode ignores tr and applies limit locally.
func (d *Dashboard) TrendingCVEs(ctx context.Context, tr *filters.TimeRange, limit int) ([]model.TrendingCVE, error) {
	cves, err := fetched[[]model.TrendingCVE](ctx, d, model.ResourceTrendingCVEs, resource.Params{Range: tr, Limit: limit})
	if err != nil {
		return nil, err
	}
	if d.client.Static() && limit > 0 && len(cves) > limit {
		cves = cves[:limit]
	}
	return cves, nil
}

func (d *Dashboard) Article(ctx context.Context, id int64) (model.ArticleDetail, error) {
	var out model.ArticleDetail
	err := d.client.FetchArticle(ctx, id, &out)
	return out, err
}
