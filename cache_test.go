package main

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/efbdata/impact_dashboard/keys"
	"github.com/efbdata/impact_dashboard/models"
	"github.com/efbdata/impact_dashboard/notifier"
	"github.com/efbdata/impact_dashboard/projector"
	"github.com/efbdata/impact_dashboard/store"
)

type memProjectionCache struct {
	mu     sync.Mutex
	gen    int64
	cached *projector.Dashboard
}

func (m *memProjectionCache) Generation(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen, nil
}

func (m *memProjectionCache) Load(ctx context.Context, dest *projector.Dashboard) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached == nil {
		return false, nil
	}
	*dest = *m.cached
	return true, nil
}

func (m *memProjectionCache) Store(ctx context.Context, gen int64, d projector.Dashboard) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return false, nil
	}
	m.cached = &d
	return true, nil
}

func (m *memProjectionCache) Invalidate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.cached = nil
	return nil
}

func (m *memProjectionCache) has() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cached != nil
}

// midReadDriver runs hook once, on the first metrics select after it is set.
type midReadDriver struct {
	store.Driver
	mu   sync.Mutex
	hook func()
}

func (d *midReadDriver) Select(ctx context.Context, q store.Query) ([]store.Row, error) {
	d.mu.Lock()
	hook := d.hook
	if q.Table == models.TableMetrics {
		d.hook = nil
	} else {
		hook = nil
	}
	d.mu.Unlock()
	rows, err := d.Driver.Select(ctx, q)
	if hook != nil {
		hook()
	}
	return rows, err
}

func TestDashboardCache_InvalidationDuringRead(t *testing.T) {
	cache := &memProjectionCache{}
	driver := &midReadDriver{Driver: store.NewDashboardMemoryDriver(models.ShapeVersioned)}
	app := newApp(nil)
	app.Cache = cache
	app.wire(driver, keys.NewNormalizer(keys.DefaultAliases()), notifier.MultiPublisher{app.Hub, cacheInvalidator{cache: cache}})
	app.markReady()
	h := newRouter(app)

	do(t, h, http.MethodPut, "/api/metrics", `{"section_key":"executive","metric_key":"people_served","current_value":"1,200"}`)

	// a write lands while the projection is being built
	driver.mu.Lock()
	driver.hook = func() { app.invalidateDashboard(context.Background()) }
	driver.mu.Unlock()

	if w := do(t, h, http.MethodGet, "/api/dashboard", ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if cache.has() {
		t.Fatal("projection read before the invalidation was cached")
	}

	if w := do(t, h, http.MethodGet, "/api/dashboard", ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !cache.has() {
		t.Fatal("quiet read was not cached")
	}

	do(t, h, http.MethodPut, "/api/metrics", `{"section_key":"executive","metric_key":"people_served","current_value":"1,300"}`)
	if cache.has() {
		t.Fatal("write did not invalidate the cached projection")
	}
	w := do(t, h, http.MethodGet, "/api/dashboard", "")
	if got := decode[projector.Dashboard](t, w).Executive["peopleServed"]; got != float64(1300) {
		t.Fatalf("peopleServed = %v, want 1300", got)
	}
}
