package models

import "time"

type UploadStatus string

const (
	UploadStatusPending    UploadStatus = "PENDING"
	UploadStatusProcessing UploadStatus = "PROCESSING"
	UploadStatusCompleted  UploadStatus = "COMPLETED"
	UploadStatusFailed     UploadStatus = "FAILED"
)

func (s UploadStatus) Terminal() bool {
	return s == UploadStatusCompleted || s == UploadStatusFailed
}

// UploadJob tracks one ingestion run. It is mutated while the run is active
// and read-only once terminal.
type UploadJob struct {
	ID            string       `json:"id"`
	Filename      string       `json:"filename"`
	FileSize      int64        `json:"file_size"`
	TotalRows     int          `json:"total_rows"`
	ProcessedRows int          `json:"processed_rows"`
	FailedRows    int          `json:"failed_rows"`
	Status        UploadStatus `json:"status"`
	ErrorDetails  []string     `json:"error_details"`
	UploadedBy    string       `json:"uploaded_by"`
	UploadedAt    time.Time    `json:"uploaded_at"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
	SourceObject  string       `json:"source_object,omitempty"`
}
