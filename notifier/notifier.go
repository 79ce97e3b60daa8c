package notifier

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/efbdata/impact_dashboard/config"
	"github.com/efbdata/impact_dashboard/models"
	"github.com/efbdata/impact_dashboard/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AuditSink persists audit entries. store.AuditLog implements it.
type AuditSink interface {
	AppendAudit(ctx context.Context, entries []models.AuditEntry) error
}

// Publisher delivers one change event to subscribers.
type Publisher interface {
	Publish(ctx context.Context, event models.ChangeEvent) error
}

// Notifier turns committed changes into audit entries and change events.
// Neither step can fail the write that produced the changes.
type Notifier struct {
	Sink      AuditSink
	Publisher Publisher
	Logger    *logrus.Logger
}

func New(sink AuditSink, publisher Publisher, logger *logrus.Logger) *Notifier {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Notifier{Sink: sink, Publisher: publisher, Logger: logger}
}

func (n *Notifier) Record(ctx context.Context, changes []models.Change) {
	if len(changes) == 0 {
		return
	}
	if n.Sink != nil {
		var entries []models.AuditEntry
		for _, c := range changes {
			entries = append(entries, AuditEntries(c)...)
		}
		if err := n.Sink.AppendAudit(ctx, entries); err != nil {
			config.LogError(n.Logger, "notifier", "Record", "append audit", len(entries), err)
		}
	}
	if n.Publisher == nil {
		return
	}
	uploadID, _ := utils.GetUploadIdFromContext(ctx)
	for _, c := range changes {
		if err := n.Publisher.Publish(ctx, Event(c)); err != nil {
			config.LogError(n.Logger, "notifier", "Record", "publish change",
				logrus.Fields{"record_id": c.RecordID, "upload_id": uploadID}, err)
		}
	}
}

// Event builds the published payload for a change.
func Event(c models.Change) models.ChangeEvent {
	ev := models.ChangeEvent{
		Type:     c.Type,
		Table:    c.Table,
		RecordID: c.RecordID,
		Record:   c.After,
		At:       c.At,
	}
	if ref := c.After; ref != nil {
		ev.SectionKey, ev.MetricKey = ref.SectionKey, ref.MetricKey
	} else if c.Before != nil {
		ev.SectionKey, ev.MetricKey = c.Before.SectionKey, c.Before.MetricKey
	}
	return ev
}

// AuditEntries diffs a change into audit rows. An update touching one field
// is recorded against that field; anything else is recorded against the
// whole record with JSON values. An update with no differing field yields
// nothing.
func AuditEntries(c models.Change) []models.AuditEntry {
	entry := models.AuditEntry{
		TableName:  c.Table,
		RecordID:   c.RecordID,
		FieldName:  models.RecordField,
		ChangeType: c.Type,
		ChangedBy:  c.ChangedBy,
		Timestamp:  c.At,
	}
	switch c.Type {
	case models.ChangeInsert:
		entry.NewValue = recordJSON(c.After)
	case models.ChangeDelete:
		entry.OldValue = recordJSON(c.Before)
	case models.ChangeUpdate:
		changed := changedFields(c)
		switch len(changed) {
		case 0:
			return nil
		case 1:
			f := changed[0]
			entry.FieldName = f
			entry.OldValue = c.Before.FieldValues()[f]
			entry.NewValue = c.After.FieldValues()[f]
		default:
			before, after := c.Before.FieldValues(), c.After.FieldValues()
			oldVals, newVals := map[string]string{}, map[string]string{}
			for _, f := range changed {
				oldVals[f], newVals[f] = before[f], after[f]
			}
			entry.OldValue = mustJSON(oldVals)
			entry.NewValue = mustJSON(newVals)
		}
	}
	entry.ID = uuid.NewString()
	return []models.AuditEntry{entry}
}

func changedFields(c models.Change) []string {
	if c.Before == nil || c.After == nil {
		return nil
	}
	before, after := c.Before.FieldValues(), c.After.FieldValues()
	fields := c.Fields
	if len(fields) == 0 {
		for f := range after {
			fields = append(fields, f)
		}
	}
	var out []string
	for _, f := range fields {
		if before[f] != after[f] {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

func recordJSON(r *models.MetricRecord) string {
	if r == nil {
		return ""
	}
	return mustJSON(r)
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// MultiPublisher publishes to every publisher and returns the first error.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, event models.ChangeEvent) error {
	var first error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
