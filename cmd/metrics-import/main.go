// metrics-import loads a metric spreadsheet (CSV, TSV or XLSX) into the
// dashboard store outside the HTTP server.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//	  go run ./cmd/metrics-import --file=metrics.xlsx --dry-run=false
//
// With --dry-run (the default) the file is parsed and validated and nothing is written.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/efbdata/impact_dashboard/config"
	"github.com/efbdata/impact_dashboard/ingest"
	"github.com/efbdata/impact_dashboard/keys"
	"github.com/efbdata/impact_dashboard/notifier"
	"github.com/efbdata/impact_dashboard/parser"
	"github.com/efbdata/impact_dashboard/store"
	"github.com/efbdata/impact_dashboard/utils"
)

func main() {
	file := flag.String("file", "", "Required: path to the spreadsheet")
	sheet := flag.String("sheet", "", "XLSX worksheet (default: first sheet)")
	uploadedBy := flag.String("uploaded-by", "metrics-import", "Recorded as the uploader and change author")
	dryRun := flag.Bool("dry-run", true, "Validate only (no writes)")
	flag.Parse()

	if strings.TrimSpace(*file) == "" {
		fmt.Fprintln(os.Stderr, "--file is required")
		os.Exit(1)
	}
	data, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", *file, err)
		os.Exit(1)
	}
	normalizer := keys.NewNormalizer(keys.DefaultAliases())
	if path := config.MetricAliasesFile(); path != "" {
		aliases, err := keys.LoadAliasFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load aliases %s: %v\n", path, err)
			os.Exit(1)
		}
		normalizer = keys.NewNormalizer(aliases)
	}
	name := filepath.Base(*file)

	if *dryRun {
		if !check(data, name, *sheet, normalizer) {
			os.Exit(2)
		}
		return
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	logger := config.GetLogger()
	driver := store.NewGormDriver(db)
	client := store.NewClient(driver, normalizer, notifier.New(store.NewAuditLog(driver), nil, logger), logger)
	pipeline := ingest.NewPipeline(client, ingest.NewJobStore(driver), normalizer, ingest.SettingsFromEnv(), logger)

	ctx := utils.SetUsernameInContext(context.Background(), *uploadedBy)
	job, err := pipeline.Run(ctx, ingest.Input{Filename: name, Data: data, UploadedBy: *uploadedBy})
	fmt.Printf("upload %s: status=%s total=%d processed=%d failed=%d\n",
		job.ID, job.Status, job.TotalRows, job.ProcessedRows, job.FailedRows)
	for _, e := range job.ErrorDetails {
		fmt.Println("  " + e)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
		os.Exit(1)
	}
}

// check parses and validates every row and reports whether the file is clean.
func check(data []byte, name, sheet string, normalizer *keys.Normalizer) bool {
	table, err := parser.Parse(data, ingest.MetricColumns, parser.Options{Filename: name, Sheet: sheet})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		return false
	}
	v := ingest.NewValidator()
	defaults := ingest.DefaultDefaults()
	ok, bad := 0, 0
	for row, err := range table.Rows() {
		if err != nil {
			bad++
			fmt.Println("  " + err.Error())
			continue
		}
		rec := ingest.RecordFromRow(row, normalizer, defaults)
		if err := ingest.ValidateRow(v, row, rec); err != nil {
			bad++
			fmt.Printf("  row %d: %v\n", row.Index, err)
			continue
		}
		ok++
		fmt.Printf("  row %d: %s/%s = %q\n", row.Index, rec.SectionKey, rec.MetricKey, rec.CurrentValue)
	}
	fmt.Printf("dry run: %d valid, %d invalid (columns: %s)\n", ok, bad, strings.Join(table.Columns(), ", "))
	return bad == 0
}
