package store

import (
	"sort"

	"github.com/efbdata/impact_dashboard/keys"
	"github.com/efbdata/impact_dashboard/models"
)

var (
	versionedColumns = []string{
		"id", "section_key", "category", "metric_key", "metric_name", "display_order",
		"current_value", "previous_value", "target_value", "unit", "format_type",
		"change_value", "change_direction", "color_theme", "icon_name",
		"description", "methodology", "data_source", "interpretation", "significance",
		"benchmarks", "recommendations", "created_at", "updated_at",
	}
	versionedConflict = []string{"section_key", "metric_key"}

	legacyColumns = []string{
		"id", "section", "category", "field", "value",
		"description", "methodology", "data_source", "interpretation", "significance",
		"benchmarks", "recommendations", "created_at", "updated_at",
	}
	legacyConflict = []string{"section", "category", "field"}
	legacyFields   = []string{
		"category", "metric_name", "current_value",
		"description", "methodology", "data_source", "interpretation", "significance",
		"benchmarks", "recommendations",
	}

	sectionColumns = []string{"section_key", "section_name", "display_order", "is_active", "created_at"}
	auditColumns   = []string{"id", "table_name", "record_id", "field_name", "old_value", "new_value", "change_type", "changed_by", "timestamp"}
	uploadColumns  = []string{
		"id", "filename", "file_size", "total_rows", "processed_rows", "failed_rows", "status",
		"error_details", "uploaded_by", "uploaded_at", "completed_at", "source_object",
	}
)

// Stored pairs a record with the raw row it was read from.
type Stored struct {
	Record models.MetricRecord
	Row    Row
}

// MetricShapeStrategy maps metric records to and from one generation of the
// dashboard_metrics layout.
type MetricShapeStrategy interface {
	Shape() models.Shape
	Table() string
	// Columns is the column set whose presence identifies the shape.
	Columns() []string
	ConflictKey() []string
	// Fields lists the MetricRecord.FieldValues entries the shape persists.
	Fields() []string
	// Canonical returns r as the shape will store and read it back.
	Canonical(r models.MetricRecord) models.MetricRecord
	ToRow(r models.MetricRecord) Row
	FromRows(rows []Row) []Stored
	// Scope narrows a read to the given sections. A nil result reads everything.
	Scope(sectionKeys []string) map[string]any
	OrderBy() []string
}

type versionedShape struct{}

func (versionedShape) Shape() models.Shape   { return models.ShapeVersioned }
func (versionedShape) Table() string         { return models.TableMetrics }
func (versionedShape) Columns() []string     { return versionedColumns }
func (versionedShape) ConflictKey() []string { return versionedConflict }
func (versionedShape) OrderBy() []string     { return []string{"section_key", "display_order", "metric_key"} }

func (versionedShape) Fields() []string {
	fields := make([]string, 0, len(versionedColumns))
	for f := range (models.MetricRecord{}).FieldValues() {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

func (versionedShape) Canonical(r models.MetricRecord) models.MetricRecord { return r }

func (versionedShape) Scope(sectionKeys []string) map[string]any {
	return map[string]any{"section_key": sectionKeys}
}

func (versionedShape) ToRow(r models.MetricRecord) Row {
	return Row{
		"id":               r.ID,
		"section_key":      r.SectionKey,
		"category":         r.Category,
		"metric_key":       r.MetricKey,
		"metric_name":      r.MetricName,
		"display_order":    r.DisplayOrder,
		"current_value":    r.CurrentValue,
		"previous_value":   r.PreviousValue,
		"target_value":     r.TargetValue,
		"unit":             r.Unit,
		"format_type":      string(r.FormatType),
		"change_value":     r.ChangeValue,
		"change_direction": string(r.ChangeDirection),
		"color_theme":      r.ColorTheme,
		"icon_name":        r.IconName,
		"description":      r.Description,
		"methodology":      r.Methodology,
		"data_source":      r.DataSource,
		"interpretation":   r.Interpretation,
		"significance":     r.Significance,
		"benchmarks":       JSONList(r.Benchmarks),
		"recommendations":  JSONList(r.Recommendations),
		"created_at":       r.CreatedAt,
		"updated_at":       r.UpdatedAt,
	}
}

func (versionedShape) FromRows(rows []Row) []Stored {
	out := make([]Stored, 0, len(rows))
	for _, row := range rows {
		out = append(out, Stored{Row: row, Record: models.MetricRecord{
			ID:              row.String("id"),
			SectionKey:      row.String("section_key"),
			Category:        row.String("category"),
			MetricKey:       row.String("metric_key"),
			MetricName:      row.String("metric_name"),
			DisplayOrder:    row.Int("display_order"),
			CurrentValue:    row.String("current_value"),
			PreviousValue:   row.String("previous_value"),
			TargetValue:     row.String("target_value"),
			Unit:            row.String("unit"),
			FormatType:      models.FormatType(row.String("format_type")),
			ChangeValue:     row.String("change_value"),
			ChangeDirection: models.ChangeDirection(row.String("change_direction")),
			ColorTheme:      row.String("color_theme"),
			IconName:        row.String("icon_name"),
			Description:     row.String("description"),
			Methodology:     row.String("methodology"),
			DataSource:      row.String("data_source"),
			Interpretation:  row.String("interpretation"),
			Significance:    row.String("significance"),
			Benchmarks:      row.Strings("benchmarks"),
			Recommendations: row.Strings("recommendations"),
			CreatedAt:       row.Time("created_at"),
			UpdatedAt:       row.Time("updated_at"),
		}})
	}
	return out
}

// legacyShape stores (section, category, field, value). It has no metric key
// or display metadata; both are synthesized on read.
type legacyShape struct {
	keys *keys.Normalizer
}

func (legacyShape) Shape() models.Shape   { return models.ShapeLegacy }
func (legacyShape) Table() string         { return models.TableMetrics }
func (legacyShape) Columns() []string     { return legacyColumns }
func (legacyShape) ConflictKey() []string { return legacyConflict }
func (legacyShape) Fields() []string      { return legacyFields }
func (legacyShape) OrderBy() []string     { return []string{"section", "category", "field"} }

// Scope reads everything: stored section labels may predate the slug form.
func (legacyShape) Scope([]string) map[string]any { return nil }

func (l legacyShape) Canonical(r models.MetricRecord) models.MetricRecord {
	field := l.field(r)
	return models.MetricRecord{
		ID:              r.ID,
		SectionKey:      l.keys.SectionKey(r.SectionKey),
		Category:        r.Category,
		MetricKey:       l.keys.MetricKey(field),
		MetricName:      field,
		DisplayOrder:    r.DisplayOrder,
		CurrentValue:    r.CurrentValue,
		Description:     r.Description,
		Methodology:     r.Methodology,
		DataSource:      r.DataSource,
		Interpretation:  r.Interpretation,
		Significance:    r.Significance,
		Benchmarks:      r.Benchmarks,
		Recommendations: r.Recommendations,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func (legacyShape) field(r models.MetricRecord) string {
	if r.MetricName != "" {
		return r.MetricName
	}
	return r.MetricKey
}

func (l legacyShape) ToRow(r models.MetricRecord) Row {
	return Row{
		"id":              r.ID,
		"section":         r.SectionKey,
		"category":        r.Category,
		"field":           l.field(r),
		"value":           r.CurrentValue,
		"description":     r.Description,
		"methodology":     r.Methodology,
		"data_source":     r.DataSource,
		"interpretation":  r.Interpretation,
		"significance":    r.Significance,
		"benchmarks":      JSONList(r.Benchmarks),
		"recommendations": JSONList(r.Recommendations),
		"created_at":      r.CreatedAt,
		"updated_at":      r.UpdatedAt,
	}
}

func (l legacyShape) FromRows(rows []Row) []Stored {
	out := make([]Stored, 0, len(rows))
	for _, row := range rows {
		field := row.String("field")
		out = append(out, Stored{Row: row, Record: models.MetricRecord{
			ID:              row.String("id"),
			SectionKey:      l.keys.SectionKey(row.String("section")),
			Category:        row.String("category"),
			MetricKey:       l.keys.MetricKey(field),
			MetricName:      field,
			CurrentValue:    row.String("value"),
			Description:     row.String("description"),
			Methodology:     row.String("methodology"),
			DataSource:      row.String("data_source"),
			Interpretation:  row.String("interpretation"),
			Significance:    row.String("significance"),
			Benchmarks:      row.Strings("benchmarks"),
			Recommendations: row.Strings("recommendations"),
			CreatedAt:       row.Time("created_at"),
			UpdatedAt:       row.Time("updated_at"),
		}})
	}

	// Display order is the position within the section by (category, field).
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Record, out[j].Record
		if a.SectionKey != b.SectionKey {
			return a.SectionKey < b.SectionKey
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.MetricName < b.MetricName
	})
	pos := map[string]int{}
	for i := range out {
		pos[out[i].Record.SectionKey]++
		out[i].Record.DisplayOrder = pos[out[i].Record.SectionKey]
	}
	return out
}

func sortRecords(records []models.MetricRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.SectionKey != b.SectionKey {
			return a.SectionKey < b.SectionKey
		}
		if a.DisplayOrder != b.DisplayOrder {
			return a.DisplayOrder < b.DisplayOrder
		}
		return a.MetricKey < b.MetricKey
	})
}
