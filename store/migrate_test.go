package store

import (
	"context"
	"testing"

	"github.com/efbdata/impact_dashboard/models"
)

func TestMigrationShape(t *testing.T) {
	ctx := context.Background()

	mixed := NewDashboardMemoryDriver(models.ShapeLegacy)
	mixed.CreateTable(models.TableMetrics, []string{"id", "section", "value"})

	empty := NewDashboardMemoryDriver(models.ShapeVersioned)
	empty.DropTable(models.TableMetrics)

	tests := []struct {
		name    string
		driver  Driver
		want    models.Shape
		wantErr bool
	}{
		{"legacy table stays legacy", NewDashboardMemoryDriver(models.ShapeLegacy), models.ShapeLegacy, false},
		{"versioned table", NewDashboardMemoryDriver(models.ShapeVersioned), models.ShapeVersioned, false},
		{"missing table is created versioned", empty, models.ShapeVersioned, false},
		{"unknown layout is refused", mixed, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MigrationShape(ctx, tt.driver)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("MigrationShape = %s, want error", got)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("MigrationShape = %s, %v; want %s", got, err, tt.want)
			}
		})
	}
}
