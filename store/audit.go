package store

import (
	"context"

	"github.com/efbdata/impact_dashboard/models"
)

// AuditLog is the append-only data_changes relation.
type AuditLog struct {
	Driver Driver
}

func NewAuditLog(driver Driver) *AuditLog {
	return &AuditLog{Driver: driver}
}

func (a *AuditLog) AppendAudit(ctx context.Context, entries []models.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]Row, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, Row{
			"id":          e.ID,
			"table_name":  e.TableName,
			"record_id":   e.RecordID,
			"field_name":  e.FieldName,
			"old_value":   e.OldValue,
			"new_value":   e.NewValue,
			"change_type": string(e.ChangeType),
			"changed_by":  e.ChangedBy,
			"timestamp":   e.Timestamp,
		})
	}
	return a.Driver.Insert(ctx, models.TableChanges, rows)
}

// List returns the newest entries first.
func (a *AuditLog) List(ctx context.Context, recordID string, limit int) ([]models.AuditEntry, error) {
	q := Query{
		Table:   models.TableChanges,
		OrderBy: []string{"timestamp desc", "id"},
		Limit:   limit,
	}
	if recordID != "" {
		q.Where = map[string]any{"record_id": recordID}
	}
	rows, err := a.Driver.Select(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]models.AuditEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.AuditEntry{
			ID:         r.String("id"),
			TableName:  r.String("table_name"),
			RecordID:   r.String("record_id"),
			FieldName:  r.String("field_name"),
			OldValue:   r.String("old_value"),
			NewValue:   r.String("new_value"),
			ChangeType: models.ChangeType(r.String("change_type")),
			ChangedBy:  r.String("changed_by"),
			Timestamp:  r.Time("timestamp"),
		})
	}
	return out, nil
}
