package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/efbdata/impact_dashboard/models"
	"github.com/google/go-cmp/cmp"
)

func seedRecords() []models.MetricRecord {
	return []models.MetricRecord{
		{SectionKey: "executive", Category: "Impact", MetricName: "People Served", DisplayOrder: 1, CurrentValue: "1,200"},
		{SectionKey: "financial", Category: "Efficiency", MetricName: "Program Ratio", DisplayOrder: 1, CurrentValue: "87.5%", FormatType: models.FormatPercentage},
		{
			SectionKey: "programs", Category: "Reach", MetricName: "Meals Delivered", DisplayOrder: 2, CurrentValue: "3,400",
			PreviousValue: "3,100", TargetValue: "4,000", Unit: "meals", FormatType: models.FormatNumber,
			ChangeValue: "+9.7%", ChangeDirection: models.ChangeUp, ColorTheme: "green", IconName: "utensils",
			Description: "Meals handed out, including \"hot\" meals", Methodology: "Pantry counts", DataSource: "Link2Feed",
			Interpretation: "Demand is rising", Significance: "High",
			Benchmarks: []string{"Regional: 2,900", "National: 3,100"}, Recommendations: []string{"Extend weekend hours"},
		},
	}
}

func TestExport_RoundTrip(t *testing.T) {
	for _, format := range []string{"csv", "xlsx"} {
		t.Run(format, func(t *testing.T) {
			ctx := context.Background()
			src := newFixture(t)
			if _, err := src.client.UpsertMany(ctx, seedRecords()); err != nil {
				t.Fatalf("seed: %v", err)
			}

			var buf bytes.Buffer
			if err := Export(ctx, src.client, &buf, format); err != nil {
				t.Fatalf("Export: %v", err)
			}

			dst := newFixture(t)
			job, err := dst.pipeline.Run(ctx, Input{Filename: "export." + format, Data: buf.Bytes()})
			if err != nil {
				t.Fatalf("re-ingest: %v", err)
			}
			if job.FailedRows != 0 {
				t.Fatalf("re-ingest failed rows: %q", job.ErrorDetails)
			}
			if diff := cmp.Diff(src.values(t), dst.values(t)); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}

			want, err := src.client.Get(ctx, "programs", "meals_delivered")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			got, err := dst.client.Get(ctx, "programs", "meals_delivered")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if diff := cmp.Diff(want.FieldValues(), got.FieldValues()); diff != "" {
				t.Errorf("meals_delivered fields mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]string{"Regional: 2,900", "National: 3,100"}, got.Benchmarks); diff != "" {
				t.Errorf("benchmarks mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExport_CSVHeader(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	if err := Export(context.Background(), f.client, &buf, ""); err != nil {
		t.Fatalf("Export: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected header only, got %d rows", len(rows))
	}
	if diff := cmp.Diff(ExportHeader, rows[0]); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
}

func TestExport_UnknownFormat(t *testing.T) {
	f := newFixture(t)
	if err := Export(context.Background(), f.client, &bytes.Buffer{}, "pdf"); err == nil {
		t.Fatal("expected an error for an unsupported format")
	}
}
