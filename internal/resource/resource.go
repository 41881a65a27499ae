// Package resource computes the dashboard resources. The live API and the
// static export build resources here, and the static data source derives the
// range-dependent ones from records with the same functions.
package resource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"threatdash/internal/filters"
	"threatdash/internal/model"
	"threatdash/internal/store"
)

var ErrUnknownResource = errors.New("unknown resource")

// Derive computes a resource that depends only on the record list. ok is
// false for resources that need more than records.
func Derive(name string, records []model.ThreatRecord, p Params, now time.Time) (any, bool) {
	switch name {
	case model.ResourceRecentThreats:
		return filters.SelectRecent(records, p.Range, now, p.Risk, p.Limit), true
	case model.ResourceCategoryDistribution:
		return filters.ExcludePlaceholders(filters.AggregateCategoryDistribution(records, p.Range, now)), true
	case model.ResourceThreatTimeline:
		return filters.AggregateTimeline(records, p.Range, now), true
	case model.ResourceThreatFamilies:
		return filters.AggregateThreatFamilies(records, p.Range, now), true
	case model.ResourceTopIndustries:
		return filters.AggregateTopIndustries(records, p.Range, now), true
	case model.ResourceActorActivity:
		return filters.ActorActivity(records, p.Range, now, limitOr(p.Limit, DefaultActorLimit)), true
	case model.ResourceAttackVectors:
		return filters.AggregateAttackVectors(records, p.Range, now), true
	default:
		return nil, false
	}
}

// Derivable reports whether Derive can compute name.
func Derivable(name string) bool {
	switch name {
	case model.ResourceRecentThreats, model.ResourceCategoryDistribution, model.ResourceThreatTimeline,
		model.ResourceThreatFamilies, model.ResourceTopIndustries, model.ResourceActorActivity,
		model.ResourceAttackVectors:
		return true
	}
	return false
}

type Service struct {
	store *store.Store
	now   func() time.Time
}

func New(st *store.Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: st, now: now}
}

func (s *Service) Now() time.Time { return s.now() }

// Build computes the named resource from the store.
func (s *Service) Build(ctx context.Context, name string, p Params) (any, error) {
	now := s.now()
	if Derivable(name) {
		records, err := s.store.ListThreats(ctx)
		if err != nil {
			return nil, err
		}
		v, _ := Derive(name, records, p, now)
		return v, nil
	}
	switch name {
	case model.ResourcePipelineOverview:
		base, err := s.store.Overview(ctx)
		if err != nil {
			return nil, err
		}
		records, err := s.store.ListThreats(ctx)
		if err != nil {
			return nil, err
		}
		return filters.ApplyOverview(base, records, p.Range, now), nil
	case model.ResourceRiskDistribution:
		return s.store.RiskDistribution(ctx)
	case model.ResourceIOCStats:
		return s.store.IOCStats(ctx)
	case model.ResourceFeedStats:
		return s.store.FeedStats(ctx)
	case model.ResourceTrendingCVEs:
		mentions, err := s.store.CVEMentions(ctx)
		if err != nil {
			return nil, err
		}
		return filters.TrendingCVEs(mentions, p.Range, now, limitOr(p.Limit, DefaultCVELimit)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownResource, name)
	}
}

// Records returns every record inside p.Range, newest first, without the
// recent-threats limit. The static export writes this list.
func (s *Service) Records(ctx context.Context, tr *filters.TimeRange) ([]model.ThreatRecord, error) {
	records, err := s.store.ListThreats(ctx)
	if err != nil {
		return nil, err
	}
	return filters.FilterByTimeRange(records, tr, s.now(), filters.PublishedDate), nil
}

func (s *Service) Article(ctx context.Context, id int64) (model.ArticleDetail, error) {
	return s.store.Article(ctx, id)
}
