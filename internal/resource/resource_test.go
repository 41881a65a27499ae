package resource_test

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"threatdash/internal/filters"
	"threatdash/internal/model"
	"threatdash/internal/resource"
	"threatdash/internal/store/storetest"
)

var fixedNow = time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)

func TestParamsFromQuery(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    resource.Params
		wantErr error
	}{
		{"empty", "", resource.Params{}, nil},
		{"days", "days=7", resource.Params{Range: filters.LastDays(7)}, nil},
		{"daterange wins", "days=7&start_date=2024-01-01&end_date=2024-01-02",
			resource.Params{Range: filters.Between("2024-01-01", "2024-01-02")}, nil},
		{"risk and limit", "risk=high&limit=5", resource.Params{Risk: "HIGH", Limit: 5}, nil},
		{"limit clamped", "limit=999999", resource.Params{Limit: 100}, nil},
		{"bad limit", "limit=-1", resource.Params{}, resource.ErrInvalidLimit},
		{"bad days", "days=abc", resource.Params{}, filters.ErrInvalidDays},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, _ := url.ParseQuery(tt.query)
			got, err := resource.ParamsFromQuery(q, 100)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got.Risk != tt.want.Risk || got.Limit != tt.want.Limit || got.Range.String() != tt.want.Range.String() {
				t.Fatalf("got %+v (%s), want %+v (%s)", got, got.Range, tt.want, tt.want.Range)
			}
		})
	}
}

func TestParamsQueryRoundTrip(t *testing.T) {
	in := resource.Params{Range: filters.Between("2024-01-01", "2024-01-31"), Risk: "HIGH", Limit: 3}
	out, err := resource.ParamsFromQuery(in.Query(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if out.Range.String() != in.Range.String() || out.Risk != in.Risk || out.Limit != in.Limit {
		t.Fatalf("round trip %+v -> %+v", in, out)
	}
}

func TestBuildEveryResource(t *testing.T) {
	st := storetest.Open(t)
	storetest.Seed(t, st, storetest.Corpus())
	svc := resource.New(st, func() time.Time { return fixedNow })
	ctx := context.Background()
	for _, name := range model.Resources {
		v, err := svc.Build(ctx, name, resource.Params{Range: filters.LastDays(30)})
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if v == nil {
			t.Fatalf("%s: nil result", name)
		}
	}
	if _, err := svc.Build(ctx, "nope", resource.Params{}); !errors.Is(err, resource.ErrUnknownResource) {
		t.Fatalf("unknown resource err = %v", err)
	}
}

func TestBuildOverviewAndCVEs(t *testing.T) {
	st := storetest.Open(t)
	storetest.Seed(t, st, storetest.Corpus())
	svc := resource.New(st, func() time.Time { return fixedNow })
	ctx := context.Background()

	v, err := svc.Build(ctx, model.ResourcePipelineOverview, resource.Params{Range: filters.Between("2024-01-02", "2024-01-03")})
	if err != nil {
		t.Fatal(err)
	}
	ov := v.(model.PipelineOverview)
	// The +02:00 DDoS record lands on Jan 2 in UTC.
	if ov.ArticlesProcessed != 9 || ov.FilteredItems != 5 || ov.CriticalThreats != 0 {
		t.Fatalf("overview = %+v", ov)
	}

	v, err = svc.Build(ctx, model.ResourceTrendingCVEs, resource.Params{})
	if err != nil {
		t.Fatal(err)
	}
	cves := v.([]model.TrendingCVE)
	if len(cves) != 1 || cves[0].Count != 2 || cves[0].Severity != "CRITICAL" {
		t.Fatalf("cves = %+v", cves)
	}
}

func TestBuildCategoryDropsPlaceholder(t *testing.T) {
	st := storetest.Open(t)
	storetest.Seed(t, st, storetest.Corpus())
	svc := resource.New(st, func() time.Time { return fixedNow })
	v, err := svc.Build(context.Background(), model.ResourceCategoryDistribution, resource.Params{})
	if err != nil {
		t.Fatal(err)
	}
	for _, nv := range v.([]model.NameValue) {
		if nv.Name == model.CategoryPending || nv.Name == model.CategoryNotRelevant {
			t.Fatalf("unexpected bucket %q", nv.Name)
		}
	}
}

func TestRecordsIgnoresRecentLimit(t *testing.T) {
	st := storetest.Open(t)
	storetest.Seed(t, st, storetest.Corpus())
	svc := resource.New(st, func() time.Time { return fixedNow })
	all, err := svc.Records(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 8 {
		t.Fatalf("records = %d, want 8", len(all))
	}
	if !resource.Derivable(model.ResourceRecentThreats) || resource.Derivable(model.ResourceIOCStats) {
		t.Fatal("Derivable disagrees with Derive")
	}
}
