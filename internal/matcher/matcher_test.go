package matcher

import (
	"slices"
	"testing"
)

func TestAttackVector(t *testing.T) {
	tests := []struct {
		category string
		want     string
	}{
		{"Phishing Campaign", "Phishing/Email"},
		{"Email Compromise", "Phishing/Email"},
		{"Ransomware Attack", "Malware"},
		{"Malware", "Malware"},
		{"Vulnerability Disclosure", "Exploitation"},
		{"Zero-Day Exploit", "Exploitation"},
		{"Credential Stuffing", "Credential Theft"},
		{"Web Defacement", "Web Application"},
		{"Application Security", "Web Application"},
		{"Network Intrusion", "Network"},
		{"Data Breach", "Other"},
		{"Unknown", "Other"},
		{"", "Other"},
		// first match wins
		{"Phishing Malware Kit", "Phishing/Email"},
		{"Ransomware via Exploit", "Malware"},
		// case-sensitive
		{"phishing", "Other"},
		{"RANSOMWARE", "Other"},
	}
	for _, tt := range tests {
		if got := AttackVector(tt.category); got != tt.want {
			t.Errorf("AttackVector(%q) = %q, want %q", tt.category, got, tt.want)
		}
	}
}

func TestIndustriesMultipleMatches(t *testing.T) {
	got := Industries("Ransomware", "Hospital and Bank hit", "", "")
	want := []string{"Finance", "Healthcare"}
	if !slices.Equal(got, want) {
		t.Fatalf("Industries = %v, want %v", got, want)
	}
}

func TestIndustriesLowercasesHaystack(t *testing.T) {
	got := Industries("", "UNIVERSITY Breach", "", "")
	if !slices.Contains(got, "Education") {
		t.Fatalf("expected Education in %v", got)
	}
}

func TestIndustriesNone(t *testing.T) {
	if got := Industries("", "", "", ""); len(got) != 0 {
		t.Fatalf("expected no industries, got %v", got)
	}
}

func TestLabelsKeepOrder(t *testing.T) {
	got := Labels(AttackVectorRules)
	want := []string{"Phishing/Email", "Malware", "Exploitation", "Credential Theft", "Web Application", "Network"}
	if !slices.Equal(got, want) {
		t.Fatalf("Labels = %v, want %v", got, want)
	}
}

func TestFamilies(t *testing.T) {
	got := Families("Ransomware", "LockBit affiliate deploys cobalt strike")
	want := []string{"Ransomware", "Cobalt Strike", "LockBit"}
	if !slices.Equal(got, want) {
		t.Fatalf("Families = %v, want %v", got, want)
	}
}

func TestFindActorFirstInTableOrder(t *testing.T) {
	a, ok := FindActor("APT29 and Lazarus share tooling", "")
	if !ok {
		t.Fatal("expected an actor")
	}
	if a.Name != "Lazarus" || a.Country != "North Korea" {
		t.Fatalf("unexpected actor %+v", a)
	}
	if _, ok := FindActor("Generic phishing wave", "nothing attributed"); ok {
		t.Fatal("expected no actor")
	}
}
