package notifier

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/efbdata/impact_dashboard/models"
	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
)

var at = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func record(value, description string) *models.MetricRecord {
	return &models.MetricRecord{
		ID:           "rec-1",
		SectionKey:   "executive",
		Category:     "Impact",
		MetricKey:    "people_served",
		MetricName:   "People Served",
		DisplayOrder: 1,
		CurrentValue: value,
		Description:  description,
	}
}

func TestAuditEntries(t *testing.T) {
	fields := []string{"current_value", "description", "category"}
	cases := []struct {
		name      string
		change    models.Change
		wantField string
		wantOld   string
		wantNew   string
		wantNone  bool
	}{
		{
			name:      "single field update",
			change:    models.Change{Type: models.ChangeUpdate, Before: record("1,200", "d"), After: record("1,450", "d"), Fields: fields},
			wantField: "current_value",
			wantOld:   "1,200",
			wantNew:   "1,450",
		},
		{
			name:      "multi field update",
			change:    models.Change{Type: models.ChangeUpdate, Before: record("1,200", "a"), After: record("1,450", "b"), Fields: fields},
			wantField: models.RecordField,
			wantOld:   `{"current_value":"1,200","description":"a"}`,
			wantNew:   `{"current_value":"1,450","description":"b"}`,
		},
		{
			name:     "update outside persisted fields",
			change:   models.Change{Type: models.ChangeUpdate, Before: record("1", "a"), After: func() *models.MetricRecord { r := record("1", "a"); r.IconName = "users"; return r }(), Fields: fields},
			wantNone: true,
		},
		{
			name:      "insert",
			change:    models.Change{Type: models.ChangeInsert, After: record("1", "")},
			wantField: models.RecordField,
		},
		{
			name:      "delete",
			change:    models.Change{Type: models.ChangeDelete, Before: record("1", "")},
			wantField: models.RecordField,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.change.RecordID, tc.change.Table, tc.change.At = "rec-1", models.TableMetrics, at
			got := AuditEntries(tc.change)
			if tc.wantNone {
				if len(got) != 0 {
					t.Fatalf("got %d entries, want none", len(got))
				}
				return
			}
			if len(got) != 1 {
				t.Fatalf("got %d entries, want 1", len(got))
			}
			e := got[0]
			if e.FieldName != tc.wantField || e.ChangeType != tc.change.Type || e.RecordID != "rec-1" || e.ID == "" {
				t.Errorf("entry = %+v", e)
			}
			if tc.wantOld != "" && e.OldValue != tc.wantOld {
				t.Errorf("OldValue = %s, want %s", e.OldValue, tc.wantOld)
			}
			if tc.wantNew != "" && e.NewValue != tc.wantNew {
				t.Errorf("NewValue = %s, want %s", e.NewValue, tc.wantNew)
			}
			switch tc.change.Type {
			case models.ChangeInsert:
				var r models.MetricRecord
				if err := json.Unmarshal([]byte(e.NewValue), &r); err != nil || r.MetricKey != "people_served" {
					t.Errorf("insert NewValue = %s (%v)", e.NewValue, err)
				}
			case models.ChangeDelete:
				if e.NewValue != "" || !strings.Contains(e.OldValue, `"people_served"`) {
					t.Errorf("delete values = %q / %q", e.OldValue, e.NewValue)
				}
			}
		})
	}
}

type failingSink struct{ calls int }

func (f *failingSink) AppendAudit(ctx context.Context, entries []models.AuditEntry) error {
	f.calls++
	return errors.New("audit relation unavailable")
}

type capturePublisher struct {
	mu     sync.Mutex
	events []models.ChangeEvent
	err    error
}

func (c *capturePublisher) Publish(ctx context.Context, ev models.ChangeEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return c.err
}

func TestRecord_AuditFailureStillPublishes(t *testing.T) {
	sink := &failingSink{}
	pub := &capturePublisher{}
	n := New(sink, pub, nil)

	n.Record(context.Background(), []models.Change{
		{Type: models.ChangeInsert, Table: models.TableMetrics, RecordID: "rec-1", After: record("1", ""), At: at},
		{Type: models.ChangeDelete, Table: models.TableMetrics, RecordID: "rec-2", Before: record("2", ""), At: at},
	})

	if sink.calls != 1 {
		t.Errorf("sink calls = %d, want 1", sink.calls)
	}
	want := []models.ChangeEvent{
		{Type: models.ChangeInsert, Table: models.TableMetrics, RecordID: "rec-1", SectionKey: "executive", MetricKey: "people_served", Record: record("1", ""), At: at},
		{Type: models.ChangeDelete, Table: models.TableMetrics, RecordID: "rec-2", SectionKey: "executive", MetricKey: "people_served", At: at},
	}
	if diff := cmp.Diff(want, pub.events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestMultiPublisher_ReachesAllAndReturnsFirstError(t *testing.T) {
	a := &capturePublisher{err: errors.New("topic unavailable")}
	b := &capturePublisher{}
	err := MultiPublisher{a, nil, b}.Publish(context.Background(), models.ChangeEvent{RecordID: "x"})
	if err == nil || err.Error() != "topic unavailable" {
		t.Errorf("err = %v", err)
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("deliveries = %d, %d; want 1, 1", len(a.events), len(b.events))
	}
}

func TestHub_DropsSlowSubscriber(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(2)
	slow, _ := hub.Subscribe()
	fast, cancelFast := hub.Subscribe()
	defer cancelFast()

	for i := 0; i < 2; i++ {
		_ = hub.Publish(ctx, models.ChangeEvent{RecordID: "r"})
		<-fast
	}
	// slow now has a full buffer; the next event drops it
	_ = hub.Publish(ctx, models.ChangeEvent{RecordID: "overflow"})
	if hub.Len() != 1 {
		t.Fatalf("subscribers = %d, want 1", hub.Len())
	}

	var n int
	for range slow {
		n++
	}
	if n != 2 {
		t.Errorf("slow subscriber drained %d buffered events, want 2", n)
	}
	if ev := <-fast; ev.RecordID != "overflow" {
		t.Errorf("fast subscriber got %q", ev.RecordID)
	}
}

func TestHub_CancelIsIdempotent(t *testing.T) {
	hub := NewHub(1)
	ch, cancel := hub.Subscribe()
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel still open after cancel")
	}
	if hub.Len() != 0 {
		t.Errorf("subscribers = %d, want 0", hub.Len())
	}
}

func TestStreamHandler_ResyncThenChanges(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(8)
	r := gin.New()
	r.GET("/stream", StreamHandler(hub, time.Hour))
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type = %q", ct)
	}

	lines := bufio.NewScanner(resp.Body)
	nextEvent := func() (string, string) {
		var name, data string
		for lines.Scan() {
			line := lines.Text()
			switch {
			case strings.HasPrefix(line, "event:"):
				name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			case line == "" && name != "":
				return name, data
			}
		}
		return name, data
	}

	if name, _ := nextEvent(); name != EventResync {
		t.Fatalf("first event = %q, want resync", name)
	}
	_ = hub.Publish(ctx, models.ChangeEvent{Type: models.ChangeUpdate, RecordID: "rec-1", SectionKey: "executive", MetricKey: "people_served"})
	name, data := nextEvent()
	if name != EventChange {
		t.Fatalf("second event = %q, want change", name)
	}
	var ev models.ChangeEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		t.Fatalf("decode change: %v (%s)", err, data)
	}
	if ev.RecordID != "rec-1" || ev.Type != models.ChangeUpdate {
		t.Errorf("event = %+v", ev)
	}
}
