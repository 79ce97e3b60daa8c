package models

import "time"

type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// RecordField is the field name used when an audit entry covers the whole record.
const RecordField = "_record"

// AuditEntry is an immutable row of the data_changes log.
type AuditEntry struct {
	ID         string     `json:"id"`
	TableName  string     `json:"table_name"`
	RecordID   string     `json:"record_id"`
	FieldName  string     `json:"field_name"`
	OldValue   string     `json:"old_value,omitempty"`
	NewValue   string     `json:"new_value,omitempty"`
	ChangeType ChangeType `json:"change_type"`
	ChangedBy  string     `json:"changed_by"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Change describes one committed mutation of a metric record. Before is nil
// for inserts, After is nil for deletes. Fields lists the columns the active
// table shape persists, which bounds what an UPDATE diff may report.
type Change struct {
	Type      ChangeType
	Table     string
	RecordID  string
	Before    *MetricRecord
	After     *MetricRecord
	Fields    []string
	ChangedBy string
	At        time.Time
}

// ChangeEvent is published to subscribers once per committed write.
type ChangeEvent struct {
	Type       ChangeType    `json:"type"`
	Table      string        `json:"table"`
	RecordID   string        `json:"record_id"`
	SectionKey string        `json:"section_key"`
	MetricKey  string        `json:"metric_key"`
	Record     *MetricRecord `json:"record,omitempty"`
	At         time.Time     `json:"at"`
}
