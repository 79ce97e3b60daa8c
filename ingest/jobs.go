package ingest

import (
	"context"
	"fmt"

	"github.com/efbdata/impact_dashboard/models"
	"github.com/efbdata/impact_dashboard/store"
)

// JobStore persists upload jobs in csv_uploads.
type JobStore struct {
	Driver store.Driver
}

func NewJobStore(driver store.Driver) *JobStore {
	return &JobStore{Driver: driver}
}

func (s *JobStore) Create(ctx context.Context, job models.UploadJob) error {
	return s.Driver.Insert(ctx, models.TableUploads, []store.Row{jobRow(job)})
}

// Save writes the mutable fields of a job.
func (s *JobStore) Save(ctx context.Context, job models.UploadJob) error {
	row := jobRow(job)
	delete(row, "id")
	n, err := s.Driver.Update(ctx, models.TableUploads, map[string]any{"id": job.ID}, row)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("upload job %s: %w", job.ID, store.ErrRecordNotFound)
	}
	return nil
}

func (s *JobStore) Get(ctx context.Context, id string) (models.UploadJob, error) {
	rows, err := s.Driver.Select(ctx, store.Query{
		Table: models.TableUploads,
		Where: map[string]any{"id": id},
		Limit: 1,
	})
	if err != nil {
		return models.UploadJob{}, err
	}
	if len(rows) == 0 {
		return models.UploadJob{}, store.ErrRecordNotFound
	}
	return jobFromRow(rows[0]), nil
}

// List returns the newest jobs first.
func (s *JobStore) List(ctx context.Context, limit int) ([]models.UploadJob, error) {
	rows, err := s.Driver.Select(ctx, store.Query{
		Table:   models.TableUploads,
		OrderBy: []string{"uploaded_at desc", "id"},
		Limit:   limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]models.UploadJob, 0, len(rows))
	for _, r := range rows {
		out = append(out, jobFromRow(r))
	}
	return out, nil
}

func jobRow(job models.UploadJob) store.Row {
	var completed any
	if job.CompletedAt != nil {
		completed = *job.CompletedAt
	}
	return store.Row{
		"id":             job.ID,
		"filename":       job.Filename,
		"file_size":      job.FileSize,
		"total_rows":     job.TotalRows,
		"processed_rows": job.ProcessedRows,
		"failed_rows":    job.FailedRows,
		"status":         string(job.Status),
		"error_details":  store.JSONList(job.ErrorDetails),
		"uploaded_by":    job.UploadedBy,
		"uploaded_at":    job.UploadedAt,
		"completed_at":   completed,
		"source_object":  job.SourceObject,
	}
}

func jobFromRow(r store.Row) models.UploadJob {
	return models.UploadJob{
		ID:            r.String("id"),
		Filename:      r.String("filename"),
		FileSize:      int64(r.Int("file_size")),
		TotalRows:     r.Int("total_rows"),
		ProcessedRows: r.Int("processed_rows"),
		FailedRows:    r.Int("failed_rows"),
		Status:        models.UploadStatus(r.String("status")),
		ErrorDetails:  r.Strings("error_details"),
		UploadedBy:    r.String("uploaded_by"),
		UploadedAt:    r.Time("uploaded_at"),
		CompletedAt:   r.TimePtr("completed_at"),
		SourceObject:  r.String("source_object"),
	}
}

