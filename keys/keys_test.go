package keys

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSnakeKey(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"People Served", "people_served"},
		{"livesImpacted", "lives_impacted"},
		{"  Cost Per Meal ", "cost_per_meal"},
		{"Corporate & Community Donations", "corporate_community_donations"},
		{"people_served", "people_served"},
		{"people-served", "people_served"},
		{"Women's Programs", "womens_programs"},
		{"Top 10Items", "top_10_items"},
		{"", ""},
		{"%%%", ""},
	}
	for _, tc := range cases {
		if got := SnakeKey(tc.in); got != tc.expected {
			t.Fatalf("SnakeKey(%q) expected %q, got %q", tc.in, tc.expected, got)
		}
	}
}

func TestCamelKey(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"people_served", "peopleServed"},
		{"Lives Impacted", "livesImpacted"},
		{"peopleServed", "peopleServed"},
		{"cash", "cash"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := CamelKey(tc.in); got != tc.expected {
			t.Fatalf("CamelKey(%q) expected %q, got %q", tc.in, tc.expected, got)
		}
	}
}

func TestSectionKey_AliasThenSlug(t *testing.T) {
	n := NewNormalizer(DefaultAliases())
	cases := []struct {
		in       string
		expected string
	}{
		{"Executive Summary", "executive"},
		{"EXECUTIVE SUMMARY", "executive"},
		{"executive-summary", "executive"},
		{"executive", "executive"},
		{"Scenario Analysis", "scenarios"},
		{"Global Signals", "global-signals"},
		{"global-signals", "global-signals"},
	}
	for _, tc := range cases {
		got := n.SectionKey(tc.in)
		if got != tc.expected {
			t.Fatalf("SectionKey(%q) expected %q, got %q", tc.in, tc.expected, got)
		}
		if again := n.SectionKey(got); again != got {
			t.Fatalf("SectionKey not idempotent: %q -> %q", got, again)
		}
	}
}

func TestResolveMetricAlias_Stability(t *testing.T) {
	n := NewNormalizer(DefaultAliases())
	for old, canonical := range n.Aliases().Metrics() {
		a := n.ResolveMetricAlias(old)
		b := n.ResolveMetricAlias(canonical)
		if a != b {
			t.Fatalf("alias %q: resolve(old)=%q resolve(canonical)=%q", old, a, b)
		}
		if n.ResolveMetricAlias(a) != a {
			t.Fatalf("alias %q: resolve is not idempotent (%q)", old, a)
		}
	}
	if got := n.MetricKey("Lives Impacted"); got != "people_served" {
		t.Fatalf("MetricKey(Lives Impacted) expected people_served, got %q", got)
	}
	if got := n.ExecutiveKey("livesImpacted"); got != "peopleServed" {
		t.Fatalf("ExecutiveKey(livesImpacted) expected peopleServed, got %q", got)
	}
}

func TestNewAliasTable_RejectsChainsAndRepointing(t *testing.T) {
	if _, err := NewAliasTable(nil, map[string]string{"a": "b", "b": "c"}); err == nil {
		t.Fatalf("expected chain a->b->c to be rejected")
	}
	if _, err := NewAliasTable(nil, map[string]string{"old_name": "people_served", "peopleServed": "x"}); err == nil {
		t.Fatalf("expected target reused as source to be rejected")
	}

	tbl, err := NewAliasTable(nil, map[string]string{"lives_impacted": "people_served"})
	if err != nil {
		t.Fatalf("NewAliasTable: %v", err)
	}
	if err := tbl.AppendMetric("Lives Impacted", "people_served"); err != nil {
		t.Fatalf("re-appending same alias should be a no-op: %v", err)
	}
	if err := tbl.AppendMetric("lives_impacted", "meals_delivered"); err == nil {
		t.Fatalf("expected re-pointing an alias to fail")
	}
	if err := tbl.AppendMetric("beneficiaries", "lives_impacted"); err == nil {
		t.Fatalf("expected alias onto an alias source to fail")
	}
}

func TestParseAliases_SyntheticTable(t *testing.T) {
	doc := `
sections:
  Board Overview: board
metrics:
  Headcount: staff_count
`
	tbl, err := ParseAliases([]byte(doc))
	if err != nil {
		t.Fatalf("ParseAliases: %v", err)
	}
	n := NewNormalizer(tbl)
	if got := n.SectionKey("Board Overview"); got != "board" {
		t.Fatalf("expected board, got %q", got)
	}
	if got := n.MetricKey("headcount"); got != "staff_count" {
		t.Fatalf("expected staff_count, got %q", got)
	}
	// Defaults are not implied by a custom table.
	if got := n.SectionKey("Executive Summary"); got != "executive-summary" {
		t.Fatalf("expected executive-summary, got %q", got)
	}
}

func TestLoadAliasFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.yaml")
	if err := os.WriteFile(path, []byte("metrics:\n  a: b\n  b: c\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := LoadAliasFile(path)
	if err == nil || !strings.Contains(err.Error(), "chain") {
		t.Fatalf("expected chain error, got %v", err)
	}
	if _, err := LoadAliasFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
