package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/efbdata/impact_dashboard/models"
	"github.com/efbdata/impact_dashboard/utils"
	"github.com/gin-gonic/gin"
)

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}}
}

func (m *memObjects) Put(ctx context.Context, name string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[name] = append([]byte(nil), data...)
	return nil
}

func (m *memObjects) Get(ctx context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[name]
	if !ok {
		return nil, utils.ErrorObjectNotFound
	}
	return data, nil
}

func (m *memObjects) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, name)
	return nil
}

func (m *memObjects) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

type fakeQueue struct {
	msgs []Message
	err  error
}

func (q *fakeQueue) Enqueue(ctx context.Context, msg Message) error {
	if q.err != nil {
		return q.err
	}
	q.msgs = append(q.msgs, msg)
	return nil
}

func pushRequest(t *testing.T, msg any) *http.Request {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	var env PushEnvelope
	env.Message.Data = data
	env.Message.ID = "m-1"
	env.Subscription = "projects/p/subscriptions/ingest"
	body, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	return httptest.NewRequest(http.MethodPost, "/pubsub/ingest", bytes.NewReader(body))
}

func serve(h gin.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/pubsub/ingest", h)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestDispatchThenPush(t *testing.T) {
	f := newFixture(t)
	objects := newMemObjects()
	queue := &fakeQueue{}
	d := NewDispatcher(f.jobs, objects, queue)
	d.Now = func() time.Time { return testNow }

	ctx := utils.SetCorrelationIdInContext(context.Background(), "corr-1")
	job, err := d.Dispatch(ctx, "exec.csv", []byte(executiveCSV), "ops")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if job.Status != models.UploadStatusPending || job.SourceObject != "uploads/"+job.ID+"/exec.csv" {
		t.Fatalf("unexpected job: %+v", job)
	}
	if len(queue.msgs) != 1 || queue.msgs[0].CorrelationID != "corr-1" {
		t.Fatalf("queued = %+v", queue.msgs)
	}
	if objects.len() != 1 {
		t.Fatalf("stored %d objects, want 1", objects.len())
	}

	w := serve(PushHandler(f.pipeline, objects, nil), pushRequest(t, queue.msgs[0]))
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	done, err := f.jobs.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("jobs.Get: %v", err)
	}
	if done.Status != models.UploadStatusCompleted || done.ProcessedRows != 2 {
		t.Errorf("job after push = %+v", done)
	}
	if n := len(f.values(t)); n != 2 {
		t.Errorf("stored %d records, want 2", n)
	}
	if objects.len() != 0 {
		t.Errorf("source object kept after the job completed")
	}
	for _, c := range f.recorder.reset() {
		if c.ChangedBy != "ops" {
			t.Errorf("ChangedBy = %q, want ops", c.ChangedBy)
		}
	}

	// redelivery of a finished job is acked without running again
	w = serve(PushHandler(f.pipeline, objects, nil), pushRequest(t, queue.msgs[0]))
	if w.Code != http.StatusNoContent || len(f.recorder.reset()) != 0 {
		t.Errorf("redelivery: status %d", w.Code)
	}
}

func TestDispatch_QueueFailureFailsJob(t *testing.T) {
	f := newFixture(t)
	objects := newMemObjects()
	d := NewDispatcher(f.jobs, objects, &fakeQueue{err: errors.New("topic not found")})

	job, err := d.Dispatch(context.Background(), "exec.csv", []byte(executiveCSV), "")
	if err == nil {
		t.Fatal("expected an error")
	}
	stored, gerr := f.jobs.Get(context.Background(), job.ID)
	if gerr != nil {
		t.Fatalf("jobs.Get: %v", gerr)
	}
	if stored.Status != models.UploadStatusFailed || stored.UploadedBy != "system" {
		t.Errorf("job = %+v", stored)
	}
	if objects.len() != 0 {
		t.Errorf("unqueued upload left %d objects behind", objects.len())
	}
}

func TestPushHandler_DeletesObjectOfFailedJob(t *testing.T) {
	f := newFixture(t)
	objects := newMemObjects()
	d := NewDispatcher(f.jobs, objects, &fakeQueue{})
	job, err := d.Dispatch(context.Background(), "exec.csv", []byte(executiveCSV), "ops")
	if err != nil {
		t.Fatal(err)
	}

	bad := newMemObjects()
	bad.Put(context.Background(), job.SourceObject, []byte("Nope,Columns\n1,2\n"), "text/csv")
	w := serve(PushHandler(f.pipeline, bad, nil), pushRequest(t, Message{JobID: job.ID, Object: job.SourceObject, Filename: "exec.csv"}))
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	if bad.len() != 0 {
		t.Errorf("object kept after the job failed")
	}
	failed, err := f.jobs.Get(context.Background(), job.ID)
	if err != nil || failed.Status != models.UploadStatusFailed {
		t.Errorf("job = %+v, %v; want FAILED", failed, err)
	}
}

func TestPushHandler_AcksUnprocessableMessages(t *testing.T) {
	f := newFixture(t)
	objects := newMemObjects()

	pending := models.UploadJob{ID: "job-missing-object", Filename: "x.csv", Status: models.UploadStatusPending, UploadedAt: testNow}
	if err := f.jobs.Create(context.Background(), pending); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		req  *http.Request
	}{
		{name: "not json", req: httptest.NewRequest(http.MethodPost, "/pubsub/ingest", bytes.NewBufferString("{"))},
		{name: "missing fields", req: pushRequest(t, Message{Filename: "x.csv"})},
		{name: "unknown job", req: pushRequest(t, Message{JobID: "nope", Object: "uploads/nope/x.csv"})},
		{name: "missing object", req: pushRequest(t, Message{JobID: pending.ID, Object: "uploads/gone.csv", Filename: "x.csv"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(PushHandler(f.pipeline, objects, nil), tt.req)
			if w.Code != http.StatusNoContent {
				t.Errorf("status = %d, want 204", w.Code)
			}
		})
	}

	job, err := f.jobs.Get(context.Background(), pending.ID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != models.UploadStatusFailed {
		t.Errorf("job with missing object = %s, want FAILED", job.Status)
	}
}
