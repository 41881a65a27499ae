package model

import (
	"slices"
	"testing"
)

func TestNormalizeRisk(t *testing.T) {
	tests := map[string]RiskLevel{
		"HIGH":          RiskHigh,
		" medium ":      RiskMedium,
		"low":           RiskLow,
		"INFORMATIONAL": RiskInformational,
		"":              RiskInformational,
		"NOT_RELEVANT":  RiskInformational,
		"critical":      RiskInformational,
	}
	for in, want := range tests {
		if got := NormalizeRisk(in); got != want {
			t.Errorf("NormalizeRisk(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseRecommendations(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []Recommendation
		wantErr bool
	}{
		{name: "empty", raw: ""},
		{name: "empty array", raw: "[]"},
		{name: "objects", raw: `[{"title":"Patch","description":"Apply the vendor fix"}]`,
			want: []Recommendation{{Title: "Patch", Description: "Apply the vendor fix"}}},
		{name: "strings", raw: `["Rotate credentials","Enable MFA"]`,
			want: []Recommendation{{Description: "Rotate credentials"}, {Description: "Enable MFA"}}},
		{name: "mixed", raw: `["Block IOCs", {"title":"Hunt"}]`,
			want: []Recommendation{{Description: "Block IOCs"}, {Title: "Hunt", Description: `{"title":"Hunt"}`}}},
		{name: "not an array", raw: `{"title":"x"}`},
		{name: "malformed", raw: `[{"title":`, wantErr: true},
		{name: "plain text", raw: `Patch immediately`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRecommendations(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTimelinePointAdd(t *testing.T) {
	var p TimelinePoint
	for _, l := range []RiskLevel{RiskHigh, RiskHigh, RiskMedium, RiskLow, RiskInformational, "OTHER"} {
		p.Add(l)
	}
	if p.High != 2 || p.Medium != 1 || p.Low != 1 || p.Informational != 2 {
		t.Fatalf("unexpected counts %+v", p)
	}
}
