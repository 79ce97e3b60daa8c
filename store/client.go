package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/efbdata/impact_dashboard/appctx"
	"github.com/efbdata/impact_dashboard/config"
	"github.com/efbdata/impact_dashboard/keys"
	"github.com/efbdata/impact_dashboard/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ChangeRecorder receives every committed mutation of a metric record.
type ChangeRecorder interface {
	Record(ctx context.Context, changes []models.Change)
}

// Client reads and writes metric records over a Driver, targeting whichever
// table shape the store exposes. One Client belongs to one store connection:
// the shape probe is cached for its lifetime.
type Client struct {
	Driver   Driver
	Keys     *keys.Normalizer
	Recorder ChangeRecorder
	Logger   *logrus.Logger
	Now      func() time.Time

	versioned MetricShapeStrategy
	legacy    MetricShapeStrategy

	mu     sync.Mutex
	active MetricShapeStrategy
}

type UpsertResult struct {
	Shape     models.Shape `json:"shape"`
	Inserted  int          `json:"inserted"`
	Updated   int          `json:"updated"`
	Unchanged int          `json:"unchanged"`
}

var ErrInvalidRecord = errors.New("invalid metric record")

func NewClient(driver Driver, normalizer *keys.Normalizer, recorder ChangeRecorder, logger *logrus.Logger) *Client {
	if normalizer == nil {
		normalizer = keys.NewNormalizer(keys.DefaultAliases())
	}
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Client{
		Driver:    driver,
		Keys:      normalizer,
		Recorder:  recorder,
		Logger:    logger,
		Now:       func() time.Time { return time.Now().UTC() },
		versioned: versionedShape{},
		legacy:    legacyShape{keys: normalizer},
	}
}

// Shape returns the active table shape, probing the store on first use.
func (c *Client) Shape(ctx context.Context) (models.Shape, error) {
	s, err := c.strategy(ctx)
	if err != nil {
		return "", err
	}
	return s.Shape(), nil
}

func (c *Client) strategy(ctx context.Context) (MetricShapeStrategy, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		return c.active, nil
	}

	err := c.Driver.Probe(ctx, c.versioned.Table(), c.versioned.Columns())
	switch {
	case err == nil:
		c.active = c.versioned
	case IsSchemaAbsent(err):
		if lerr := c.Driver.Probe(ctx, c.legacy.Table(), c.legacy.Columns()); lerr != nil {
			return nil, fmt.Errorf("probe metric shape: versioned: %v; legacy: %w", err, lerr)
		}
		c.active = c.legacy
	default:
		return nil, fmt.Errorf("probe metric shape: %w", err)
	}
	c.Logger.WithFields(logrus.Fields{
		"field": "store.Client",
		"shape": c.active.Shape(),
	}).Info("metric table shape detected")
	return c.active, nil
}

func (c *Client) setActive(s MetricShapeStrategy) {
	c.mu.Lock()
	c.active = s
	c.mu.Unlock()
}

// run executes fn against the active shape. If the versioned shape reports
// schema absence, fn is retried once against the legacy shape; the first
// error only surfaces when the retry fails too.
func (c *Client) run(ctx context.Context, op string, fn func(s MetricShapeStrategy) error) error {
	s, err := c.strategy(ctx)
	if err != nil {
		return err
	}
	err = fn(s)
	if err == nil || !IsSchemaAbsent(err) || s.Shape() == models.ShapeLegacy {
		return err
	}

	c.Logger.WithFields(logrus.Fields{
		"field": "store.Client",
		"op":    op,
	}).Warn("versioned metric shape unavailable; falling back to legacy: " + err.Error())
	c.setActive(c.legacy)
	if lerr := fn(c.legacy); lerr != nil {
		c.setActive(nil)
		return fmt.Errorf("%s: legacy fallback failed after %v: %w", op, err, lerr)
	}
	return nil
}

func (c *Client) UpsertOne(ctx context.Context, record models.MetricRecord) (UpsertResult, error) {
	return c.UpsertMany(ctx, []models.MetricRecord{record})
}

// UpsertMany writes records keyed by the active shape's uniqueness
// constraint. Rows whose persisted content is unchanged are not written.
// Within one call the last record for a key wins.
func (c *Client) UpsertMany(ctx context.Context, records []models.MetricRecord) (UpsertResult, error) {
	var (
		result  UpsertResult
		changes []models.Change
	)
	for i, r := range records {
		if r.SectionKey == "" || r.MetricKey == "" && r.MetricName == "" {
			return result, fmt.Errorf("%w: record %d has no section or metric key", ErrInvalidRecord, i)
		}
	}

	err := c.run(ctx, "upsert", func(s MetricShapeStrategy) error {
		result = UpsertResult{Shape: s.Shape()}
		changes = nil

		incoming, sections := c.prepare(s, records)
		existing, err := c.load(ctx, s, sections)
		if err != nil {
			return err
		}

		now := c.Now()
		changedBy := changedByFromContext(ctx)
		var (
			upserts []Row
			updates []Stored
		)
		for _, after := range incoming {
			before, found := existing[after.Key()]
			if !found {
				if after.ID == "" {
					after.ID = uuid.NewString()
				}
				after.CreatedAt, after.UpdatedAt = now, now
				upserts = append(upserts, s.ToRow(after))
				rec := after
				changes = append(changes, models.Change{
					Type: models.ChangeInsert, Table: s.Table(), RecordID: after.ID,
					After: &rec, Fields: s.Fields(), ChangedBy: changedBy, At: now,
				})
				result.Inserted++
				continue
			}

			after.ID = before.Record.ID
			after.CreatedAt = before.Record.CreatedAt
			after.UpdatedAt = before.Record.UpdatedAt
			if sameContent(s, before.Record, after) {
				result.Unchanged++
				continue
			}
			after.UpdatedAt = now
			row := s.ToRow(after)
			if sameOn(row, before.Row, s.ConflictKey()) {
				upserts = append(upserts, row)
			} else {
				updates = append(updates, Stored{Record: after, Row: row})
			}
			prev, rec := before.Record, after
			changes = append(changes, models.Change{
				Type: models.ChangeUpdate, Table: s.Table(), RecordID: after.ID,
				Before: &prev, After: &rec, Fields: s.Fields(), ChangedBy: changedBy, At: now,
			})
			result.Updated++
		}

		if len(upserts) > 0 {
			if err := c.Driver.Upsert(ctx, s.Table(), upserts, s.ConflictKey()); err != nil {
				return err
			}
		}
		// Rows whose stored conflict columns differ (legacy labels written
		// before normalization) are rewritten in place by id.
		for _, u := range updates {
			values := u.Row.clone()
			delete(values, "id")
			delete(values, "created_at")
			if _, err := c.Driver.Update(ctx, s.Table(), map[string]any{"id": u.Record.ID}, values); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return UpsertResult{}, err
	}
	c.record(ctx, changes)
	return result, nil
}

// prepare canonicalizes and de-duplicates records, keeping the last record
// for each key at the position of its first occurrence.
func (c *Client) prepare(s MetricShapeStrategy, records []models.MetricRecord) ([]models.MetricRecord, []string) {
	var (
		out      []models.MetricRecord
		index    = map[models.MetricKey]int{}
		sections []string
		seen     = map[string]bool{}
	)
	for _, r := range records {
		r.SectionKey = c.Keys.SectionKey(r.SectionKey)
		if r.MetricKey != "" {
			r.MetricKey = c.Keys.ResolveMetricAlias(r.MetricKey)
		} else {
			r.MetricKey = c.Keys.MetricKey(r.MetricName)
		}
		r = s.Canonical(r)
		if i, ok := index[r.Key()]; ok {
			out[i] = r
			continue
		}
		index[r.Key()] = len(out)
		out = append(out, r)
		if !seen[r.SectionKey] {
			seen[r.SectionKey] = true
			sections = append(sections, r.SectionKey)
		}
	}
	return out, sections
}

func (c *Client) load(ctx context.Context, s MetricShapeStrategy, sections []string) (map[models.MetricKey]Stored, error) {
	rows, err := c.Driver.Select(ctx, Query{Table: s.Table(), Where: s.Scope(sections)})
	if err != nil {
		return nil, err
	}
	want := map[string]bool{}
	for _, sec := range sections {
		want[sec] = true
	}
	out := map[models.MetricKey]Stored{}
	for _, st := range s.FromRows(rows) {
		if want[st.Record.SectionKey] {
			out[st.Record.Key()] = st
		}
	}
	return out, nil
}

func sameContent(s MetricShapeStrategy, before, after models.MetricRecord) bool {
	b, a := before.FieldValues(), after.FieldValues()
	for _, f := range s.Fields() {
		if b[f] != a[f] {
			return false
		}
	}
	return true
}

// DeleteOne removes the record with the given key. A missing record is not
// an error; the boolean reports whether anything was removed.
func (c *Client) DeleteOne(ctx context.Context, sectionKey, metricKey string) (bool, error) {
	sectionKey = c.Keys.SectionKey(sectionKey)
	metricKey = c.Keys.ResolveMetricAlias(metricKey)
	key := models.MetricKey{SectionKey: sectionKey, MetricKey: metricKey}

	var (
		deleted bool
		changes []models.Change
	)
	err := c.run(ctx, "delete", func(s MetricShapeStrategy) error {
		deleted, changes = false, nil
		existing, err := c.load(ctx, s, []string{sectionKey})
		if err != nil {
			return err
		}
		before, ok := existing[key]
		if !ok {
			return nil
		}
		n, err := c.Driver.Delete(ctx, s.Table(), map[string]any{"id": before.Record.ID})
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		deleted = true
		prev := before.Record
		changes = append(changes, models.Change{
			Type: models.ChangeDelete, Table: s.Table(), RecordID: prev.ID,
			Before: &prev, Fields: s.Fields(), ChangedBy: changedByFromContext(ctx), At: c.Now(),
		})
		return nil
	})
	if err != nil {
		return false, err
	}
	c.record(ctx, changes)
	return deleted, nil
}

// GetAll returns every record ordered by (sectionKey, displayOrder).
func (c *Client) GetAll(ctx context.Context) ([]models.MetricRecord, error) {
	return c.read(ctx, nil)
}

func (c *Client) GetBySection(ctx context.Context, sectionKey string) ([]models.MetricRecord, error) {
	key := c.Keys.SectionKey(sectionKey)
	return c.read(ctx, &key)
}

// Get returns one record or ErrRecordNotFound.
func (c *Client) Get(ctx context.Context, sectionKey, metricKey string) (models.MetricRecord, error) {
	records, err := c.GetBySection(ctx, sectionKey)
	if err != nil {
		return models.MetricRecord{}, err
	}
	metricKey = c.Keys.ResolveMetricAlias(metricKey)
	for _, r := range records {
		if r.MetricKey == metricKey {
			return r, nil
		}
	}
	return models.MetricRecord{}, ErrRecordNotFound
}

func (c *Client) read(ctx context.Context, section *string) ([]models.MetricRecord, error) {
	var out []models.MetricRecord
	err := c.run(ctx, "read", func(s MetricShapeStrategy) error {
		out = nil
		q := Query{Table: s.Table(), OrderBy: s.OrderBy()}
		if section != nil {
			q.Where = s.Scope([]string{*section})
		}
		rows, err := c.Driver.Select(ctx, q)
		if err != nil {
			return err
		}
		for _, st := range s.FromRows(rows) {
			if section != nil && st.Record.SectionKey != *section {
				continue
			}
			out = append(out, st.Record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortRecords(out)
	return out, nil
}

// AuditEntries lists the newest audit entries, optionally for one record.
func (c *Client) AuditEntries(ctx context.Context, recordID string, limit int) ([]models.AuditEntry, error) {
	return NewAuditLog(c.Driver).List(ctx, recordID, limit)
}

func (c *Client) record(ctx context.Context, changes []models.Change) {
	if c.Recorder == nil || len(changes) == 0 {
		return
	}
	c.Recorder.Record(ctx, changes)
}

func changedByFromContext(ctx context.Context) string {
	if v, ok := appctx.GetString(ctx, appctx.ContextKeyUsername); ok && v != "" {
		return v
	}
	return "system"
}
