package store

import (
	"context"
	"errors"
	"fmt"
)

// Row is one record as exchanged with a Driver, keyed by column name.
type Row map[string]any

// Query is an equality-filtered read. A slice value in Where matches any of
// its elements. OrderBy entries are column names, optionally suffixed " desc".
type Query struct {
	Table   string
	Columns []string
	Where   map[string]any
	OrderBy []string
	Limit   int
}

// Driver is the query/command surface of the durable store.
type Driver interface {
	// Probe reports whether table exists with all of columns.
	Probe(ctx context.Context, table string, columns []string) error
	Select(ctx context.Context, q Query) ([]Row, error)
	Insert(ctx context.Context, table string, rows []Row) error
	// Upsert inserts rows or replaces the non-key columns of rows that collide
	// on the conflict columns.
	Upsert(ctx context.Context, table string, rows []Row, conflict []string) error
	Update(ctx context.Context, table string, where map[string]any, values Row) (int64, error)
	Delete(ctx context.Context, table string, where map[string]any) (int64, error)
}

var (
	// ErrSchemaAbsent marks errors caused by a relation or column the store
	// does not have. It is what triggers the legacy-shape fallback.
	ErrSchemaAbsent    = errors.New("schema absent")
	ErrRelationMissing = fmt.Errorf("%w: relation does not exist", ErrSchemaAbsent)
	ErrColumnMissing   = fmt.Errorf("%w: column does not exist", ErrSchemaAbsent)

	ErrDuplicateKey   = errors.New("duplicate key")
	ErrRecordNotFound = errors.New("record not found")
	ErrSectionInUse   = errors.New("section still has metrics")
)

func IsSchemaAbsent(err error) bool {
	return errors.Is(err, ErrSchemaAbsent)
}
