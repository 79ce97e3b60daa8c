package store

import (
	"context"
	"errors"
	"fmt"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormDriver runs Driver operations through gorm against MySQL.
type GormDriver struct {
	DB *gorm.DB
}

func NewGormDriver(db *gorm.DB) *GormDriver {
	return &GormDriver{DB: db}
}

func (g *GormDriver) Probe(ctx context.Context, table string, columns []string) error {
	var out []map[string]interface{}
	err := g.DB.WithContext(ctx).Table(table).Select(columns).Limit(1).Find(&out).Error
	return classifyError(table, err)
}

func (g *GormDriver) Select(ctx context.Context, q Query) ([]Row, error) {
	tx := g.DB.WithContext(ctx).Table(q.Table)
	if len(q.Columns) > 0 {
		tx = tx.Select(q.Columns)
	}
	if len(q.Where) > 0 {
		tx = tx.Where(map[string]interface{}(q.Where))
	}
	for _, o := range q.OrderBy {
		tx = tx.Order(o)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	var out []map[string]interface{}
	if err := tx.Find(&out).Error; err != nil {
		return nil, classifyError(q.Table, err)
	}
	rows := make([]Row, 0, len(out))
	for _, m := range out {
		rows = append(rows, Row(m))
	}
	return rows, nil
}

func (g *GormDriver) Insert(ctx context.Context, table string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	err := g.DB.WithContext(ctx).Table(table).Create(toMaps(rows)).Error
	return classifyError(table, err)
}

func (g *GormDriver) Upsert(ctx context.Context, table string, rows []Row, conflict []string) error {
	if len(rows) == 0 {
		return nil
	}
	skip := map[string]bool{"id": true, "created_at": true}
	cols := make([]clause.Column, 0, len(conflict))
	for _, c := range conflict {
		skip[c] = true
		cols = append(cols, clause.Column{Name: c})
	}
	var assign []string
	seen := map[string]bool{}
	for _, r := range rows {
		for c := range r {
			if !skip[c] && !seen[c] {
				seen[c] = true
				assign = append(assign, c)
			}
		}
	}
	onConflict := clause.OnConflict{Columns: cols, DoNothing: len(assign) == 0}
	if len(assign) > 0 {
		onConflict.DoUpdates = clause.AssignmentColumns(assign)
	}
	err := g.DB.WithContext(ctx).Table(table).Clauses(onConflict).Create(toMaps(rows)).Error
	return classifyError(table, err)
}

func (g *GormDriver) Update(ctx context.Context, table string, where map[string]any, values Row) (int64, error) {
	if len(where) == 0 {
		return 0, fmt.Errorf("%s: update without conditions", table)
	}
	res := g.DB.WithContext(ctx).Table(table).Where(map[string]interface{}(where)).Updates(map[string]interface{}(values))
	return res.RowsAffected, classifyError(table, res.Error)
}

func (g *GormDriver) Delete(ctx context.Context, table string, where map[string]any) (int64, error) {
	if len(where) == 0 {
		return 0, fmt.Errorf("%s: delete without conditions", table)
	}
	res := g.DB.WithContext(ctx).Table(table).Where(map[string]interface{}(where)).Delete(map[string]interface{}{})
	return res.RowsAffected, classifyError(table, res.Error)
}

func toMaps(rows []Row) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(rows))
	for _, r := range rows {
		out = append(out, map[string]interface{}(r.clone()))
	}
	return out
}

// classifyError maps MySQL error numbers onto the store's sentinel errors.
func classifyError(table string, err error) error {
	if err == nil {
		return nil
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1146:
			return fmt.Errorf("%w: %s: %v", ErrRelationMissing, table, err)
		case 1054:
			return fmt.Errorf("%w: %s: %v", ErrColumnMissing, table, err)
		case 1062:
			return fmt.Errorf("%w: %s: %v", ErrDuplicateKey, table, err)
		}
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	return err
}
