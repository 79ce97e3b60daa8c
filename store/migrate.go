package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/efbdata/impact_dashboard/models"
	"gorm.io/gorm"
)

// MigrationShape returns the metric layout migrations may apply to the store
// behind driver. An existing table keeps its detected shape; only a missing
// table is created versioned. A table matching neither layout is an error.
func MigrationShape(ctx context.Context, driver Driver) (models.Shape, error) {
	shape, err := NewClient(driver, nil, nil, nil).Shape(ctx)
	if err == nil {
		return shape, nil
	}
	if !IsSchemaAbsent(err) {
		return "", err
	}
	perr := driver.Probe(ctx, models.TableMetrics, []string{"id"})
	switch {
	case errors.Is(perr, ErrRelationMissing):
		return models.ShapeVersioned, nil
	case perr == nil || IsSchemaAbsent(perr):
		return "", fmt.Errorf("%s matches neither metric layout: %w", models.TableMetrics, err)
	default:
		return "", perr
	}
}

// Migrate runs AutoMigrate for the shape MigrationShape picks, so a legacy
// table is never widened with versioned columns.
func Migrate(ctx context.Context, db *gorm.DB) (models.Shape, error) {
	shape, err := MigrationShape(ctx, NewGormDriver(db))
	if err != nil {
		return "", err
	}
	if err := models.MigrateTable(db, shape); err != nil {
		return "", err
	}
	return shape, nil
}
