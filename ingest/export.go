package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/efbdata/impact_dashboard/models"
	"github.com/xuri/excelize/v2"
)

// MetricReader is the read side of store.Client used by export.
type MetricReader interface {
	GetAll(ctx context.Context) ([]models.MetricRecord, error)
}

var ExportHeader = []string{
	"section_key", "category", "metric_key", "metric_name", "display_order",
	"current_value", "previous_value", "target_value", "unit", "format_type",
	"change_value", "change_direction", "color_theme", "icon_name", "description",
	"methodology", "data_source", "interpretation", "significance",
	"benchmarks", "recommendations",
}

const exportSheet = "Metrics"

func exportRow(r models.MetricRecord) []string {
	return []string{
		r.SectionKey, r.Category, r.MetricKey, r.MetricName, strconv.Itoa(r.DisplayOrder),
		r.CurrentValue, r.PreviousValue, r.TargetValue, r.Unit, string(r.FormatType),
		r.ChangeValue, string(r.ChangeDirection), r.ColorTheme, r.IconName, r.Description,
		r.Methodology, r.DataSource, r.Interpretation, r.Significance,
		models.JoinList(r.Benchmarks), models.JoinList(r.Recommendations),
	}
}

// Export writes every metric as CSV or XLSX. The output re-ingests to the
// same set of values.
func Export(ctx context.Context, reader MetricReader, w io.Writer, format string) error {
	records, err := reader.GetAll(ctx)
	if err != nil {
		return err
	}
	switch format {
	case "", "csv":
		return writeCSV(w, records)
	case "xlsx":
		return writeXLSX(w, records)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

func writeCSV(w io.Writer, records []models.MetricRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(exportRow(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeXLSX(w io.Writer, records []models.MetricRecord) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return err
	}
	if err := setRow(f, 1, ExportHeader); err != nil {
		return err
	}
	for i, r := range records {
		if err := setRow(f, i+2, exportRow(r)); err != nil {
			return err
		}
	}
	_, err := f.WriteTo(w)
	return err
}

func setRow(f *excelize.File, n int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	return f.SetSheetRow(exportSheet, cell, &row)
}

func ContentType(format string) string {
	if format == "xlsx" {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}
