package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Shape names a generation of the dashboard_metrics layout.
type Shape string

const (
	ShapeVersioned Shape = "versioned"
	ShapeLegacy    Shape = "legacy"
)

const (
	TableMetrics  = "dashboard_metrics"
	TableSections = "dashboard_sections"
	TableChanges  = "data_changes"
	TableUploads  = "csv_uploads"
)

type VersionedMetricRow struct {
	ID              string         `gorm:"primaryKey;size:36"`
	SectionKey      string         `gorm:"size:100;not null;uniqueIndex:idx_metrics_section_metric"`
	Category        string         `gorm:"size:255;not null;default:General"`
	MetricKey       string         `gorm:"size:150;not null;uniqueIndex:idx_metrics_section_metric"`
	MetricName      string         `gorm:"size:255;not null"`
	DisplayOrder    int            `gorm:"not null;default:0"`
	CurrentValue    string         `gorm:"type:text;not null"`
	PreviousValue   string         `gorm:"type:text"`
	TargetValue     string         `gorm:"type:text"`
	Unit            string         `gorm:"size:50"`
	FormatType      string         `gorm:"size:20;default:number"`
	ChangeValue     string         `gorm:"size:100"`
	ChangeDirection string         `gorm:"size:10"`
	ColorTheme      string         `gorm:"size:30;default:neutral"`
	IconName        string         `gorm:"size:60"`
	Description     string         `gorm:"type:text"`
	Methodology     string         `gorm:"type:text"`
	DataSource      string         `gorm:"type:text"`
	Interpretation  string         `gorm:"type:text"`
	Significance    string         `gorm:"type:text"`
	Benchmarks      datatypes.JSON `gorm:"type:json"`
	Recommendations datatypes.JSON `gorm:"type:json"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (VersionedMetricRow) TableName() string { return TableMetrics }

// LegacyMetricRow is the flat first-generation layout, unique on
// (section, category, field).
type LegacyMetricRow struct {
	ID              string         `gorm:"primaryKey;size:36"`
	Section         string         `gorm:"size:100;not null;uniqueIndex:idx_metrics_section_category_field"`
	Category        string         `gorm:"size:150;not null;uniqueIndex:idx_metrics_section_category_field"`
	Field           string         `gorm:"size:200;not null;uniqueIndex:idx_metrics_section_category_field"`
	Value           string         `gorm:"type:text;not null"`
	Description     string         `gorm:"type:text"`
	Methodology     string         `gorm:"type:text"`
	DataSource      string         `gorm:"type:text"`
	Interpretation  string         `gorm:"type:text"`
	Significance    string         `gorm:"type:text"`
	Benchmarks      datatypes.JSON `gorm:"type:json"`
	Recommendations datatypes.JSON `gorm:"type:json"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (LegacyMetricRow) TableName() string { return TableMetrics }

type DashboardSectionRow struct {
	ID           int    `gorm:"primary_key"`
	SectionKey   string `gorm:"size:100;not null;uniqueIndex"`
	SectionName  string `gorm:"size:255;not null"`
	DisplayOrder int    `gorm:"not null;default:0"`
	IsActive     bool   `gorm:"not null;default:true"`
	CreatedAt    time.Time
}

func (DashboardSectionRow) TableName() string { return TableSections }

type AuditEntryRow struct {
	ID         string    `gorm:"primaryKey;size:36"`
	Relation   string    `gorm:"column:table_name;size:100;not null;index"`
	RecordID   string    `gorm:"size:36;not null;index"`
	FieldName  string    `gorm:"size:100;not null"`
	OldValue   string    `gorm:"type:text"`
	NewValue   string    `gorm:"type:text"`
	ChangeType string    `gorm:"size:10;not null"`
	ChangedBy  string    `gorm:"size:100"`
	Timestamp  time.Time `gorm:"not null;index"`
}

func (AuditEntryRow) TableName() string { return TableChanges }

type UploadJobRow struct {
	ID            string         `gorm:"primaryKey;size:36"`
	Filename      string         `gorm:"size:255;not null"`
	FileSize      int64          `gorm:"not null;default:0"`
	TotalRows     int            `gorm:"not null;default:0"`
	ProcessedRows int            `gorm:"not null;default:0"`
	FailedRows    int            `gorm:"not null;default:0"`
	Status        string         `gorm:"size:20;not null;index"`
	ErrorDetails  datatypes.JSON `gorm:"type:json"`
	UploadedBy    string         `gorm:"size:100"`
	UploadedAt    time.Time      `gorm:"not null;index"`
	CompletedAt   *time.Time
	SourceObject  string `gorm:"size:500"`
}

func (UploadJobRow) TableName() string { return TableUploads }

// MigrateTable creates the dashboard tables with the requested metric layout.
func MigrateTable(db *gorm.DB, shape Shape) error {
	if db == nil {
		return fmt.Errorf("migrate: db is nil")
	}
	var metrics any = &VersionedMetricRow{}
	if shape == ShapeLegacy {
		metrics = &LegacyMetricRow{}
	}
	if err := db.AutoMigrate(
		metrics,
		&DashboardSectionRow{},
		&AuditEntryRow{},
		&UploadJobRow{},
	); err != nil {
		return fmt.Errorf("migrate %s tables: %w", shape, err)
	}
	return nil
}
