package main

import (
	"context"
	"testing"

	"github.com/efbdata/impact_dashboard/ingest"
	"github.com/efbdata/impact_dashboard/keys"
	"github.com/efbdata/impact_dashboard/models"
	"github.com/efbdata/impact_dashboard/store"
	"github.com/google/go-cmp/cmp"
)

func TestParseSections(t *testing.T) {
	sections, err := parseSections(sectionsYAML)
	if err != nil {
		t.Fatalf("parseSections: %v", err)
	}
	var got []string
	for _, s := range sections {
		if !s.IsActive {
			continue
		}
		got = append(got, s.SectionKey)
	}
	want := []string{"executive", "financial", "operational", "programs", "stakeholders"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("active sections mismatch (-want +got):\n%s", diff)
	}
}

func TestSeed_Idempotent(t *testing.T) {
	ctx := context.Background()
	driver := store.NewDashboardMemoryDriver(models.ShapeVersioned)
	normalizer := keys.NewNormalizer(keys.DefaultAliases())
	client := store.NewClient(driver, normalizer, nil, nil)
	settings := ingest.Settings{BatchSize: 50, MaxErrors: 20}
	pipeline := ingest.NewPipeline(client, ingest.NewJobStore(driver), normalizer, settings, nil)

	if err := seed(ctx, client, pipeline, false); err != nil {
		t.Fatalf("first seed: %v", err)
	}
	first, err := client.GetAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 15 {
		t.Fatalf("expected 15 seeded metrics, got %d", len(first))
	}

	if err := seed(ctx, client, pipeline, false); err != nil {
		t.Fatalf("second seed: %v", err)
	}
	second, _ := client.GetAll(ctx)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("re-seeding changed records (-first +second):\n%s", diff)
	}

	cash, err := client.Get(ctx, "financial", "cash_position")
	if err != nil {
		t.Fatalf("cash_position: %v", err)
	}
	if cash.CurrentValue != "$1,080,000" {
		t.Fatalf("unexpected cash value %q", cash.CurrentValue)
	}
}
