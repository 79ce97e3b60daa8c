package ingest

import (
	"strconv"
	"strings"

	"github.com/efbdata/impact_dashboard/keys"
	"github.com/efbdata/impact_dashboard/models"
	"github.com/efbdata/impact_dashboard/parser"
	"github.com/shopspring/decimal"
)

// Canonical metric input columns.
const (
	ColSection         = "section"
	ColCategory        = "category"
	ColMetricKey       = "metric_key"
	ColMetricName      = "metric_name"
	ColDisplayOrder    = "display_order"
	ColValue           = "value"
	ColPreviousValue   = "previous_value"
	ColTargetValue     = "target_value"
	ColUnit            = "unit"
	ColFormatType      = "format_type"
	ColChangeValue     = "change_value"
	ColChangeDirection = "change_direction"
	ColColorTheme      = "color_theme"
	ColIconName        = "icon_name"
	ColDescription     = "description"
	ColMethodology     = "methodology"
	ColDataSource      = "data_source"
	ColInterpretation  = "interpretation"
	ColSignificance    = "significance"
	ColBenchmarks      = "benchmarks"
	ColRecommendations = "recommendations"
)

// MetricColumns is the header schema for metric spreadsheets. It accepts
// both the legacy (section, category, field, value) layout and the export
// layout.
var MetricColumns = parser.Schema{
	Columns: []parser.Column{
		{Name: ColSection, Aliases: []string{"section key", "section name"}},
		{Name: ColCategory},
		{Name: ColMetricKey, Aliases: []string{"key"}},
		{Name: ColMetricName, Aliases: []string{"field", "metric", "name"}},
		{Name: ColDisplayOrder, Aliases: []string{"order"}},
		{Name: ColValue, Aliases: []string{"current value"}},
		{Name: ColPreviousValue, Aliases: []string{"previous"}},
		{Name: ColTargetValue, Aliases: []string{"target"}},
		{Name: ColUnit},
		{Name: ColFormatType, Aliases: []string{"format"}},
		{Name: ColChangeValue, Aliases: []string{"change"}},
		{Name: ColChangeDirection, Aliases: []string{"direction", "trend"}},
		{Name: ColColorTheme, Aliases: []string{"color"}},
		{Name: ColIconName, Aliases: []string{"icon"}},
		{Name: ColDescription},
		{Name: ColMethodology},
		{Name: ColDataSource, Aliases: []string{"source"}},
		{Name: ColInterpretation},
		{Name: ColSignificance},
		{Name: ColBenchmarks},
		{Name: ColRecommendations},
	},
	Required: [][]string{
		{ColSection},
		{ColMetricName, ColMetricKey},
		{ColValue},
	},
}

// Defaults fills the fields an input row may leave empty.
type Defaults struct {
	Category   string
	ColorTheme string
	// InferFormat derives a format type from the value and unit when the row
	// carries none.
	InferFormat bool
}

func DefaultDefaults() Defaults {
	return Defaults{Category: "General", ColorTheme: "neutral", InferFormat: true}
}

var currencyUnits = map[string]bool{
	"$": true, "usd": true, "eur": true, "€": true, "£": true, "gbp": true, "mmk": true,
}

// InferFormat guesses a format type from a value and its unit.
func InferFormat(value, unit string) models.FormatType {
	v := strings.TrimSpace(value)
	u := strings.ToLower(strings.TrimSpace(unit))
	switch {
	case strings.HasSuffix(v, "%") || u == "%":
		return models.FormatPercentage
	case currencyUnits[u] || strings.HasPrefix(v, "$"):
		return models.FormatCurrency
	case isNumber(v):
		return models.FormatNumber
	default:
		return models.FormatText
	}
}

func isNumber(v string) bool {
	v = strings.ReplaceAll(strings.TrimSpace(v), ",", "")
	if v == "" {
		return false
	}
	_, err := decimal.NewFromString(v)
	return err == nil
}

// RecordFromRow maps a parsed row to a metric record with canonical keys.
func RecordFromRow(row parser.Row, n *keys.Normalizer, d Defaults) models.MetricRecord {
	name := row.Get(ColMetricName)
	key := row.Get(ColMetricKey)
	if name == "" {
		name = key
	}
	if key != "" {
		key = n.ResolveMetricAlias(key)
	} else {
		key = n.MetricKey(name)
	}

	r := models.MetricRecord{
		SectionKey:      n.SectionKey(row.Get(ColSection)),
		Category:        row.Get(ColCategory),
		MetricKey:       key,
		MetricName:      name,
		DisplayOrder:    row.Index,
		CurrentValue:    row.Get(ColValue),
		PreviousValue:   row.Get(ColPreviousValue),
		TargetValue:     row.Get(ColTargetValue),
		Unit:            row.Get(ColUnit),
		FormatType:      models.FormatType(strings.ToLower(row.Get(ColFormatType))),
		ChangeValue:     row.Get(ColChangeValue),
		ChangeDirection: models.ChangeDirection(strings.ToLower(row.Get(ColChangeDirection))),
		ColorTheme:      row.Get(ColColorTheme),
		IconName:        row.Get(ColIconName),
		Description:     row.Get(ColDescription),
		Methodology:     row.Get(ColMethodology),
		DataSource:      row.Get(ColDataSource),
		Interpretation:  row.Get(ColInterpretation),
		Significance:    row.Get(ColSignificance),
		Benchmarks:      models.SplitList(row.Get(ColBenchmarks)),
		Recommendations: models.SplitList(row.Get(ColRecommendations)),
	}
	if o, err := strconv.Atoi(row.Get(ColDisplayOrder)); err == nil {
		r.DisplayOrder = o
	}
	if r.Category == "" {
		r.Category = d.Category
	}
	if r.ColorTheme == "" {
		r.ColorTheme = d.ColorTheme
	}
	if r.FormatType == "" && d.InferFormat {
		r.FormatType = InferFormat(r.CurrentValue, r.Unit)
	}
	return r
}
