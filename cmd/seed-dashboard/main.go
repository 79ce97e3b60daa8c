// seed-dashboard loads the default dashboard sections and a starter metric
// set into an empty (or development) store.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-dashboard
//
// Sections are upserted by key; metrics go through the ingestion pipeline, so
// re-running the seed is a no-op.
package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"os"

	"github.com/efbdata/impact_dashboard/config"
	"github.com/efbdata/impact_dashboard/ingest"
	"github.com/efbdata/impact_dashboard/keys"
	"github.com/efbdata/impact_dashboard/models"
	"github.com/efbdata/impact_dashboard/notifier"
	"github.com/efbdata/impact_dashboard/store"
	"github.com/efbdata/impact_dashboard/utils"
	"gopkg.in/yaml.v3"
)

//go:embed sections.yaml
var sectionsYAML []byte

//go:embed metrics.csv
var metricsCSV []byte

const seedUser = "seed-dashboard"

type sectionSeed struct {
	Key    string `yaml:"key"`
	Name   string `yaml:"name"`
	Order  int    `yaml:"order"`
	Active *bool  `yaml:"active"`
}

func parseSections(data []byte) ([]models.DashboardSection, error) {
	var doc struct {
		Sections []sectionSeed `yaml:"sections"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	out := make([]models.DashboardSection, 0, len(doc.Sections))
	for _, s := range doc.Sections {
		out = append(out, models.DashboardSection{
			SectionKey:   s.Key,
			SectionName:  s.Name,
			DisplayOrder: s.Order,
			IsActive:     s.Active == nil || *s.Active,
		})
	}
	return out, nil
}

func main() {
	migrate := flag.Bool("migrate", false, "Create the dashboard tables before seeding")
	skipMetrics := flag.Bool("skip-metrics", false, "Seed sections only")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	if *migrate {
		if _, err := store.Migrate(context.Background(), db); err != nil {
			fmt.Fprintf(os.Stderr, "migrate failed: %v\n", err)
			os.Exit(1)
		}
	}

	logger := config.GetLogger()
	driver := store.NewGormDriver(db)
	normalizer := keys.NewNormalizer(keys.DefaultAliases())
	client := store.NewClient(driver, normalizer, notifier.New(store.NewAuditLog(driver), nil, logger), logger)
	ctx := utils.SetUsernameInContext(context.Background(), seedUser)

	if err := seed(ctx, client, ingest.NewPipeline(client, ingest.NewJobStore(driver), normalizer, ingest.DefaultSettings(), logger), *skipMetrics); err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
}

func seed(ctx context.Context, client *store.Client, pipeline *ingest.Pipeline, skipMetrics bool) error {
	sections, err := parseSections(sectionsYAML)
	if err != nil {
		return fmt.Errorf("parse sections: %w", err)
	}
	for _, s := range sections {
		saved, err := client.UpsertSection(ctx, s)
		if err != nil {
			return fmt.Errorf("section %s: %w", s.SectionKey, err)
		}
		fmt.Printf("section %s (%s) order=%d active=%v\n", saved.SectionKey, saved.SectionName, saved.DisplayOrder, saved.IsActive)
	}
	if skipMetrics {
		return nil
	}

	job, err := pipeline.Run(ctx, ingest.Input{Filename: "metrics.csv", Data: metricsCSV, UploadedBy: seedUser})
	if err != nil {
		return err
	}
	fmt.Printf("metrics: status=%s processed=%d failed=%d\n", job.Status, job.ProcessedRows, job.FailedRows)
	for _, e := range job.ErrorDetails {
		fmt.Println("  " + e)
	}
	if job.Status != models.UploadStatusCompleted {
		return fmt.Errorf("metric seed did not complete")
	}
	return nil
}
