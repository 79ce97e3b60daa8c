// metrics-export writes every stored metric as CSV or XLSX. The output can be
// fed back through metrics-import or POST /api/uploads.
//
// Usage:
//
//	go run ./cmd/metrics-export --format=xlsx --out=metrics.xlsx
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/efbdata/impact_dashboard/config"
	"github.com/efbdata/impact_dashboard/ingest"
	"github.com/efbdata/impact_dashboard/keys"
	"github.com/efbdata/impact_dashboard/store"
)

func main() {
	format := flag.String("format", "csv", "csv or xlsx")
	out := flag.String("out", "", "Output path (default: stdout, csv only)")
	flag.Parse()

	if *format != "csv" && *format != "xlsx" {
		fmt.Fprintln(os.Stderr, "--format must be csv or xlsx")
		os.Exit(1)
	}
	if *format == "xlsx" && *out == "" {
		fmt.Fprintln(os.Stderr, "--out is required for xlsx")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	client := store.NewClient(store.NewGormDriver(db), keys.NewNormalizer(keys.DefaultAliases()), nil, config.GetLogger())

	var w io.Writer = os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			fmt.Fprintf(os.Stderr, "create %s: %v\n", *out, err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}
	if err := ingest.Export(context.Background(), client, w, *format); err != nil {
		fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
		os.Exit(1)
	}
	if *out != "" {
		fmt.Fprintf(os.Stderr, "wrote %s\n", *out)
	}
}
