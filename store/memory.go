package store

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/efbdata/impact_dashboard/models"
)

// MemoryDriver is an in-process Driver with declared tables and columns.
// It reports missing relations and columns the way a SQL store does, so the
// schema fallback can be exercised without a database.
type MemoryDriver struct {
	mu     sync.RWMutex
	tables map[string]*memTable
}

type memTable struct {
	columns map[string]bool
	unique  [][]string
	rows    []Row
}

func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{tables: map[string]*memTable{}}
}

// NewDashboardMemoryDriver declares every dashboard table with the metric
// relation in the given shape.
func NewDashboardMemoryDriver(shape models.Shape) *MemoryDriver {
	m := NewMemoryDriver()
	if shape == models.ShapeLegacy {
		m.CreateTable(models.TableMetrics, legacyColumns, []string{"id"}, legacyConflict)
	} else {
		m.CreateTable(models.TableMetrics, versionedColumns, []string{"id"}, versionedConflict)
	}
	m.CreateTable(models.TableSections, sectionColumns, []string{"section_key"})
	m.CreateTable(models.TableChanges, auditColumns, []string{"id"})
	m.CreateTable(models.TableUploads, uploadColumns, []string{"id"})
	return m
}

// CreateTable declares (or replaces) a table. Each unique entry is a set of
// columns that must be unique together.
func (m *MemoryDriver) CreateTable(name string, columns []string, unique ...[]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &memTable{columns: map[string]bool{}, unique: unique}
	for _, c := range columns {
		t.columns[c] = true
	}
	m.tables[name] = t
}

func (m *MemoryDriver) DropTable(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tables, name)
}

func (m *MemoryDriver) table(name string) (*memTable, error) {
	t, ok := m.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRelationMissing, name)
	}
	return t, nil
}

func (t *memTable) check(table string, cols ...string) error {
	for _, c := range cols {
		if !t.columns[c] {
			return fmt.Errorf("%w: %s.%s", ErrColumnMissing, table, c)
		}
	}
	return nil
}

func (t *memTable) checkRow(table string, r Row) error {
	for c := range r {
		if err := t.check(table, c); err != nil {
			return err
		}
	}
	return nil
}

func (t *memTable) checkWhere(table string, where map[string]any) error {
	for c := range where {
		if err := t.check(table, c); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryDriver) Probe(ctx context.Context, table string, columns []string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, err := m.table(table)
	if err != nil {
		return err
	}
	return t.check(table, columns...)
}

func (m *MemoryDriver) Select(ctx context.Context, q Query) ([]Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, err := m.table(q.Table)
	if err != nil {
		return nil, err
	}
	if err := t.check(q.Table, q.Columns...); err != nil {
		return nil, err
	}
	if err := t.checkWhere(q.Table, q.Where); err != nil {
		return nil, err
	}
	order := make([]orderTerm, 0, len(q.OrderBy))
	for _, o := range q.OrderBy {
		term := parseOrder(o)
		if err := t.check(q.Table, term.col); err != nil {
			return nil, err
		}
		order = append(order, term)
	}

	var out []Row
	for _, r := range t.rows {
		if matches(r, q.Where) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		for _, term := range order {
			c := compareValues(out[i][term.col], out[j][term.col])
			if c == 0 {
				continue
			}
			if term.desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}

	result := make([]Row, 0, len(out))
	for _, r := range out {
		if len(q.Columns) == 0 {
			result = append(result, r.clone())
			continue
		}
		p := make(Row, len(q.Columns))
		for _, c := range q.Columns {
			p[c] = r[c]
		}
		result = append(result, p)
	}
	return result, nil
}

func (m *MemoryDriver) Insert(ctx context.Context, table string, rows []Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.table(table)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := t.checkRow(table, r); err != nil {
			return err
		}
	}
	for _, r := range rows {
		if idx := t.conflicting(r, -1); idx >= 0 {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, table)
		}
		t.rows = append(t.rows, r.clone())
	}
	return nil
}

func (m *MemoryDriver) Upsert(ctx context.Context, table string, rows []Row, conflict []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.table(table)
	if err != nil {
		return err
	}
	if err := t.check(table, conflict...); err != nil {
		return err
	}
	if !t.hasUnique(conflict) {
		return fmt.Errorf("%s: no unique constraint on (%s)", table, strings.Join(conflict, ", "))
	}
	for _, r := range rows {
		if err := t.checkRow(table, r); err != nil {
			return err
		}
	}
	for _, r := range rows {
		idx := -1
		for i, existing := range t.rows {
			if sameOn(existing, r, conflict) {
				idx = i
				break
			}
		}
		if idx < 0 {
			if other := t.conflicting(r, -1); other >= 0 {
				return fmt.Errorf("%w: %s", ErrDuplicateKey, table)
			}
			t.rows = append(t.rows, r.clone())
			continue
		}
		merged := t.rows[idx].clone()
		for c, v := range r {
			if c == "id" || c == "created_at" {
				continue
			}
			merged[c] = v
		}
		t.rows[idx] = merged
	}
	return nil
}

func (m *MemoryDriver) Update(ctx context.Context, table string, where map[string]any, values Row) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.table(table)
	if err != nil {
		return 0, err
	}
	if err := t.checkWhere(table, where); err != nil {
		return 0, err
	}
	if err := t.checkRow(table, values); err != nil {
		return 0, err
	}
	var n int64
	for i, r := range t.rows {
		if !matches(r, where) {
			continue
		}
		updated := r.clone()
		for c, v := range values {
			updated[c] = v
		}
		t.rows[i] = updated
		n++
	}
	return n, nil
}

func (m *MemoryDriver) Delete(ctx context.Context, table string, where map[string]any) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.table(table)
	if err != nil {
		return 0, err
	}
	if len(where) == 0 {
		return 0, fmt.Errorf("%s: delete without conditions", table)
	}
	if err := t.checkWhere(table, where); err != nil {
		return 0, err
	}
	kept := t.rows[:0:0]
	var n int64
	for _, r := range t.rows {
		if matches(r, where) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	t.rows = kept
	return n, nil
}

// Len returns the number of rows in a table, or -1 when it does not exist.
func (m *MemoryDriver) Len(table string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[table]
	if !ok {
		return -1
	}
	return len(t.rows)
}

func (t *memTable) hasUnique(cols []string) bool {
	for _, u := range t.unique {
		if sameSet(u, cols) {
			return true
		}
	}
	return false
}

// conflicting returns the index of a row other than skip that collides with r
// on any unique constraint.
func (t *memTable) conflicting(r Row, skip int) int {
	for _, u := range t.unique {
		for i, existing := range t.rows {
			if i == skip {
				continue
			}
			if sameOn(existing, r, u) {
				return i
			}
		}
	}
	return -1
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := map[string]bool{}
	for _, c := range a {
		seen[c] = true
	}
	for _, c := range b {
		if !seen[c] {
			return false
		}
	}
	return true
}

func sameOn(a, b Row, cols []string) bool {
	for _, c := range cols {
		av, aok := a[c]
		bv, bok := b[c]
		if !aok || !bok || av == nil || bv == nil {
			return false
		}
		if compareValues(av, bv) != 0 {
			return false
		}
	}
	return true
}

func matches(r Row, where map[string]any) bool {
	for c, want := range where {
		got := r[c]
		switch w := want.(type) {
		case []string:
			found := false
			for _, v := range w {
				if compareValues(got, v) == 0 {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case []any:
			found := false
			for _, v := range w {
				if compareValues(got, v) == 0 {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			if compareValues(got, want) != 0 {
				return false
			}
		}
	}
	return true
}

type orderTerm struct {
	col  string
	desc bool
}

func parseOrder(s string) orderTerm {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return orderTerm{}
	}
	term := orderTerm{col: fields[0]}
	if len(fields) > 1 && strings.EqualFold(fields[1], "desc") {
		term.desc = true
	}
	return term
}

func compareValues(a, b any) int {
	switch av := a.(type) {
	case nil:
		if b == nil {
			return 0
		}
		return -1
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			default:
				return 1
			}
		}
	case int, int32, int64, float64:
		if isNumber(b) {
			x, y := toFloat(a), toFloat(b)
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			default:
				return 0
			}
		}
	case []byte:
		if bv, ok := b.([]byte); ok {
			return bytes.Compare(av, bv)
		}
	}
	if b == nil {
		return 1
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int32, int64, float64:
		return true
	}
	return false
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return 0
}
