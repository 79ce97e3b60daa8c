package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/efbdata/impact_dashboard/config"
	"github.com/efbdata/impact_dashboard/keys"
	"github.com/efbdata/impact_dashboard/models"
	"github.com/efbdata/impact_dashboard/parser"
	"github.com/efbdata/impact_dashboard/store"
	"github.com/efbdata/impact_dashboard/utils"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("impact-dashboard/ingest")

// MetricWriter is the write side of store.Client used by ingestion.
type MetricWriter interface {
	UpsertMany(ctx context.Context, records []models.MetricRecord) (store.UpsertResult, error)
}

type Settings struct {
	BatchSize  int
	BatchDelay time.Duration
	MaxErrors  int
}

func DefaultSettings() Settings {
	return Settings{BatchSize: 5, BatchDelay: 100 * time.Millisecond, MaxErrors: 20}
}

// SettingsFromEnv reads INGEST_BATCH_SIZE, INGEST_BATCH_DELAY_MS and
// INGEST_MAX_ERRORS over the defaults.
func SettingsFromEnv() Settings {
	d := DefaultSettings()
	return Settings{
		BatchSize:  config.IngestBatchSize(d.BatchSize),
		BatchDelay: config.IngestBatchDelay(d.BatchDelay),
		MaxErrors:  config.IngestMaxErrors(d.MaxErrors),
	}
}

// Pipeline turns an uploaded file into metric upserts while tracking the
// run in an UploadJob.
type Pipeline struct {
	Store    MetricWriter
	Jobs     *JobStore
	Keys     *keys.Normalizer
	Defaults Defaults
	Validate *validator.Validate
	Settings Settings
	Logger   *logrus.Logger
	Now      func() time.Time
}

func NewPipeline(writer MetricWriter, jobs *JobStore, normalizer *keys.Normalizer, settings Settings, logger *logrus.Logger) *Pipeline {
	if logger == nil {
		logger = config.GetLogger()
	}
	if normalizer == nil {
		normalizer = keys.NewNormalizer(keys.DefaultAliases())
	}
	return &Pipeline{
		Store:    writer,
		Jobs:     jobs,
		Keys:     normalizer,
		Defaults: DefaultDefaults(),
		Validate: NewValidator(),
		Settings: settings,
		Logger:   logger,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

type Input struct {
	// JobID resumes a job created ahead of time (asynchronous uploads).
	JobID        string
	Filename     string
	Data         []byte
	UploadedBy   string
	SourceObject string
}

// run holds the bookkeeping of one ingestion run.
type run struct {
	job       models.UploadJob
	maxErrors int
	dropped   int
}

func (r *run) fail(msg string) {
	if r.maxErrors > 0 && len(r.job.ErrorDetails) >= r.maxErrors {
		r.dropped++
		return
	}
	r.job.ErrorDetails = append(r.job.ErrorDetails, msg)
}

// Run ingests in.Data and returns the terminal job. The returned error is
// non-nil only when the input could not be read at all (bad header) or the
// job could not be tracked; row and batch failures are reported on the job.
func (p *Pipeline) Run(ctx context.Context, in Input) (models.UploadJob, error) {
	settings := p.Settings
	if settings.BatchSize <= 0 {
		settings.BatchSize = DefaultSettings().BatchSize
	}

	job, err := p.begin(ctx, in)
	if err != nil {
		return job, err
	}
	if job.Status.Terminal() {
		return job, nil
	}

	ctx = utils.SetUploadIdInContext(ctx, job.ID)
	ctx, span := tracer.Start(ctx, "ingest.Run", trace.WithAttributes(
		attribute.String("upload.id", job.ID),
		attribute.String("upload.filename", job.Filename),
		attribute.Int64("upload.size", job.FileSize),
	))
	defer span.End()

	// a redelivered job restarts from the first row
	job.ProcessedRows, job.FailedRows, job.ErrorDetails = 0, 0, nil
	r := &run{job: job, maxErrors: settings.MaxErrors}

	table, err := parser.Parse(in.Data, MetricColumns, parser.Options{Filename: in.Filename})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unreadable input")
		r.fail(err.Error())
		return p.finish(ctx, r, models.UploadStatusFailed), err
	}
	rows, rowErrs, err := table.Collect()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unreadable input")
		r.fail(err.Error())
		return p.finish(ctx, r, models.UploadStatusFailed), err
	}

	r.job.Status = models.UploadStatusProcessing
	r.job.TotalRows = len(rows) + len(rowErrs)
	r.job.FailedRows = len(rowErrs)
	for _, re := range rowErrs {
		r.fail(re.Error())
	}
	p.save(ctx, r)

	succeeded := 0
	for start := 0; start < len(rows); start += settings.BatchSize {
		if start > 0 && !p.pause(ctx, settings.BatchDelay) {
			r.fail(fmt.Sprintf("cancelled before row %d: %v", rows[start].Index, ctx.Err()))
			break
		}
		end := min(start+settings.BatchSize, len(rows))
		if p.batch(ctx, r, rows[start:end]) {
			succeeded++
		}
		p.save(ctx, r)
	}

	status := models.UploadStatusCompleted
	if succeeded == 0 && r.job.TotalRows > 0 {
		status = models.UploadStatusFailed
		span.SetStatus(codes.Error, "no batch succeeded")
	}
	span.SetAttributes(
		attribute.Int("upload.processed_rows", r.job.ProcessedRows),
		attribute.Int("upload.failed_rows", r.job.FailedRows),
	)
	return p.finish(ctx, r, status), nil
}

func (p *Pipeline) begin(ctx context.Context, in Input) (models.UploadJob, error) {
	if in.JobID != "" {
		job, err := p.Jobs.Get(ctx, in.JobID)
		if err == nil {
			return job, nil
		}
		if !errors.Is(err, store.ErrRecordNotFound) {
			return models.UploadJob{}, err
		}
	}
	job := models.UploadJob{
		ID:           in.JobID,
		Filename:     in.Filename,
		FileSize:     int64(len(in.Data)),
		Status:       models.UploadStatusPending,
		UploadedBy:   in.UploadedBy,
		UploadedAt:   p.Now(),
		SourceObject: in.SourceObject,
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.UploadedBy == "" {
		job.UploadedBy = "system"
	}
	if err := p.Jobs.Create(ctx, job); err != nil {
		return job, fmt.Errorf("create upload job: %w", err)
	}
	return job, nil
}

// batch validates and writes one slice of rows. It reports whether the
// store accepted the batch.
func (p *Pipeline) batch(ctx context.Context, r *run, rows []parser.Row) bool {
	first, last := rows[0].Index, rows[len(rows)-1].Index
	ctx, span := tracer.Start(ctx, "ingest.batch", trace.WithAttributes(
		attribute.Int("batch.first_row", first),
		attribute.Int("batch.last_row", last),
	))
	defer span.End()

	records := make([]models.MetricRecord, 0, len(rows))
	for _, row := range rows {
		rec := RecordFromRow(row, p.Keys, p.Defaults)
		if err := ValidateRow(p.Validate, row, rec); err != nil {
			r.job.FailedRows++
			r.fail(fmt.Sprintf("row %d: %v", row.Index, err))
			continue
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return false
	}

	res, err := p.Store.UpsertMany(ctx, records)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch write failed")
		r.job.FailedRows += len(records)
		r.fail(fmt.Sprintf("rows %d-%d: %v", first, last, err))
		config.LogError(p.Logger, "ingest", "Pipeline.batch", "upsert batch", r.job.ID, err)
		return false
	}
	r.job.ProcessedRows += len(records)
	span.SetAttributes(
		attribute.Int("batch.inserted", res.Inserted),
		attribute.Int("batch.updated", res.Updated),
		attribute.Int("batch.unchanged", res.Unchanged),
	)
	return true
}

func (p *Pipeline) pause(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (p *Pipeline) save(ctx context.Context, r *run) {
	if err := p.Jobs.Save(context.WithoutCancel(ctx), r.job); err != nil {
		config.LogError(p.Logger, "ingest", "Pipeline.save", "persist job counters", r.job.ID, err)
	}
}

// Abort fails a job that cannot be run.
func (p *Pipeline) Abort(ctx context.Context, job models.UploadJob, reason string) models.UploadJob {
	r := &run{job: job}
	r.fail(reason)
	return p.finish(ctx, r, models.UploadStatusFailed)
}

func (p *Pipeline) finish(ctx context.Context, r *run, status models.UploadStatus) models.UploadJob {
	if r.dropped > 0 {
		r.job.ErrorDetails = append(r.job.ErrorDetails, fmt.Sprintf("... and %d more errors", r.dropped))
		r.dropped = 0
	}
	now := p.Now()
	r.job.Status = status
	r.job.CompletedAt = &now
	p.save(ctx, r)
	p.Logger.WithFields(logrus.Fields{
		"field":          "ingest.Pipeline",
		"upload_id":      r.job.ID,
		"status":         r.job.Status,
		"total_rows":     r.job.TotalRows,
		"processed_rows": r.job.ProcessedRows,
		"failed_rows":    r.job.FailedRows,
	}).Info("ingestion finished")
	return r.job
}
