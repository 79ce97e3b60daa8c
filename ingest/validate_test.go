package ingest

import (
	"strings"
	"testing"

	"github.com/efbdata/impact_dashboard/keys"
	"github.com/efbdata/impact_dashboard/models"
	"github.com/efbdata/impact_dashboard/parser"
	"github.com/google/go-cmp/cmp"
)

func TestValidate(t *testing.T) {
	v := NewValidator()
	base := models.MetricRecord{SectionKey: "programs", MetricKey: "meals_generated", MetricName: "Meals Generated", CurrentValue: "5000"}

	tests := []struct {
		name    string
		mutate  func(r *models.MetricRecord)
		wantErr string
	}{
		{name: "valid", mutate: func(r *models.MetricRecord) {}},
		{name: "generated is not a rate", mutate: func(r *models.MetricRecord) { r.CurrentValue = "12500" }},
		{name: "missing value", mutate: func(r *models.MetricRecord) { r.CurrentValue = "" }, wantErr: "CurrentValue is required"},
		{name: "rate in range", mutate: func(r *models.MetricRecord) { r.MetricKey, r.CurrentValue = "completion_rate", "87.5%" }},
		{name: "rate above range", mutate: func(r *models.MetricRecord) { r.MetricKey, r.CurrentValue = "completion_rate", "120" }, wantErr: "between 0 and 100"},
		{name: "rate not numeric", mutate: func(r *models.MetricRecord) { r.MetricKey, r.CurrentValue = "program_efficiency", "high" }, wantErr: "between 0 and 100"},
		{name: "percentage format", mutate: func(r *models.MetricRecord) { r.FormatType, r.CurrentValue = models.FormatPercentage, "-3" }, wantErr: "between 0 and 100"},
		{name: "bad format type", mutate: func(r *models.MetricRecord) { r.FormatType = "chart" }, wantErr: "FormatType \"chart\" must be one of"},
		{name: "bad direction", mutate: func(r *models.MetricRecord) { r.ChangeDirection = "sideways" }, wantErr: "ChangeDirection"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base
			tt.mutate(&r)
			err := Validate(v, r)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestInferFormat(t *testing.T) {
	tests := []struct {
		value, unit string
		want        models.FormatType
	}{
		{"87.5%", "", models.FormatPercentage},
		{"87.5", "%", models.FormatPercentage},
		{"$1.2M", "", models.FormatCurrency},
		{"1200", "USD", models.FormatCurrency},
		{"1,200", "", models.FormatNumber},
		{"Quarterly", "", models.FormatText},
	}
	for _, tt := range tests {
		if got := InferFormat(tt.value, tt.unit); got != tt.want {
			t.Errorf("InferFormat(%q, %q) = %s, want %s", tt.value, tt.unit, got, tt.want)
		}
	}
}

func TestRecordFromRow(t *testing.T) {
	n := keys.NewNormalizer(keys.DefaultAliases())
	row := parser.NewRow(4, map[string]string{
		ColSection:         "Programs Analytics",
		ColMetricName:      "Lives Impacted",
		ColValue:           "980",
		ColBenchmarks:      "Regional: 700; National: 850",
		ColChangeDirection: "UP",
	})
	got := RecordFromRow(row, n, DefaultDefaults())
	want := models.MetricRecord{
		SectionKey:      "programs",
		Category:        "General",
		MetricKey:       "people_served",
		MetricName:      "Lives Impacted",
		DisplayOrder:    4,
		CurrentValue:    "980",
		FormatType:      models.FormatNumber,
		ChangeDirection: models.ChangeUp,
		ColorTheme:      "neutral",
		Benchmarks:      []string{"Regional: 700", "National: 850"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RecordFromRow mismatch (-want +got):\n%s", diff)
	}

	row = parser.NewRow(9, map[string]string{ColSection: "ops", ColMetricKey: "cash", ColValue: "10", ColDisplayOrder: "2"})
	got = RecordFromRow(row, n, Defaults{})
	if got.MetricKey != "cash_position" || got.MetricName != "cash" || got.DisplayOrder != 2 || got.FormatType != "" {
		t.Errorf("explicit key row = %+v", got)
	}
}

func TestValidateRow_RateThroughAliases(t *testing.T) {
	n := keys.NewNormalizer(keys.DefaultAliases())
	v := NewValidator()

	tests := []struct {
		name    string
		cols    map[string]string
		wantErr bool
	}{
		{"efficiency by name", map[string]string{ColMetricName: "Program Efficiency", ColValue: "150"}, true},
		{"efficiency in range", map[string]string{ColMetricName: "Program Efficiency", ColValue: "82"}, false},
		{"fundraising efficiency", map[string]string{ColMetricName: "Fundraising Efficiency", ColValue: "150"}, true},
		{"aliased count", map[string]string{ColMetricName: "Lives Impacted", ColValue: "12,500"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cols[ColSection] = "Executive Summary"
			row := parser.NewRow(2, tt.cols)
			rec := RecordFromRow(row, n, DefaultDefaults())
			err := ValidateRow(v, row, rec)
			if tt.wantErr && (err == nil || !strings.Contains(err.Error(), "between 0 and 100")) {
				t.Fatalf("%s -> %s accepted %q: %v", rec.MetricName, rec.MetricKey, rec.CurrentValue, err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}

	if got := n.MetricKey("Program Efficiency"); got != "program_efficiency" {
		t.Errorf("MetricKey(Program Efficiency) = %q, want it left unaliased", got)
	}

	// a site alias that drops the rate word from the key
	table, err := keys.NewAliasTable(nil, map[string]string{"fill_rate": "pantry_fill"})
	if err != nil {
		t.Fatal(err)
	}
	row := parser.NewRow(3, map[string]string{ColSection: "Operations", ColMetricName: "Pantry Fill", ColMetricKey: "fill_rate", ColValue: "300"})
	rec := RecordFromRow(row, keys.NewNormalizer(table), DefaultDefaults())
	if rec.MetricKey != "pantry_fill" {
		t.Fatalf("MetricKey = %q, want pantry_fill", rec.MetricKey)
	}
	if err := ValidateRow(v, row, rec); err == nil {
		t.Errorf("fill_rate 300 accepted after aliasing to %s", rec.MetricKey)
	}
}
