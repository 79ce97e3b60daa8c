package models

import "time"

type FormatType string

const (
	FormatNumber     FormatType = "number"
	FormatCurrency   FormatType = "currency"
	FormatPercentage FormatType = "percentage"
	FormatText       FormatType = "text"
	FormatSimple     FormatType = "simple"
)

type ChangeDirection string

const (
	ChangeUp     ChangeDirection = "up"
	ChangeDown   ChangeDirection = "down"
	ChangeStable ChangeDirection = "stable"
)

// MetricRecord is the canonical unit of dashboard data. Values are kept as
// text; interpretation is left to the display layer.
type MetricRecord struct {
	ID           string `json:"id"`
	SectionKey   string `json:"section_key"`
	Category     string `json:"category"`
	MetricKey    string `json:"metric_key"`
	MetricName   string `json:"metric_name"`
	DisplayOrder int    `json:"display_order"`
	CurrentValue string `json:"current_value"`

	PreviousValue   string          `json:"previous_value,omitempty"`
	TargetValue     string          `json:"target_value,omitempty"`
	Unit            string          `json:"unit,omitempty"`
	FormatType      FormatType      `json:"format_type,omitempty"`
	ChangeValue     string          `json:"change_value,omitempty"`
	ChangeDirection ChangeDirection `json:"change_direction,omitempty"`
	ColorTheme      string          `json:"color_theme,omitempty"`
	IconName        string          `json:"icon_name,omitempty"`

	Description    string `json:"description,omitempty"`
	Methodology    string `json:"methodology,omitempty"`
	DataSource     string `json:"data_source,omitempty"`
	Interpretation string `json:"interpretation,omitempty"`
	Significance   string `json:"significance,omitempty"`

	Benchmarks      []string `json:"benchmarks,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key is the (sectionKey, metricKey) identity of a record.
func (m MetricRecord) Key() MetricKey {
	return MetricKey{SectionKey: m.SectionKey, MetricKey: m.MetricKey}
}

type MetricKey struct {
	SectionKey string `json:"section_key"`
	MetricKey  string `json:"metric_key"`
}

func (k MetricKey) String() string {
	return k.SectionKey + "/" + k.MetricKey
}

// FieldValues returns the comparable content of a record keyed by column name.
// Lists are joined with "; " so two records can be diffed field by field.
func (m MetricRecord) FieldValues() map[string]string {
	return map[string]string{
		"category":         m.Category,
		"metric_name":      m.MetricName,
		"display_order":    itoa(m.DisplayOrder),
		"current_value":    m.CurrentValue,
		"previous_value":   m.PreviousValue,
		"target_value":     m.TargetValue,
		"unit":             m.Unit,
		"format_type":      string(m.FormatType),
		"change_value":     m.ChangeValue,
		"change_direction": string(m.ChangeDirection),
		"color_theme":      m.ColorTheme,
		"icon_name":        m.IconName,
		"description":      m.Description,
		"methodology":      m.Methodology,
		"data_source":      m.DataSource,
		"interpretation":   m.Interpretation,
		"significance":     m.Significance,
		"benchmarks":       JoinList(m.Benchmarks),
		"recommendations":  JoinList(m.Recommendations),
	}
}

type DashboardSection struct {
	SectionKey   string `json:"section_key"`
	SectionName  string `json:"section_name"`
	DisplayOrder int    `json:"display_order"`
	IsActive     bool   `json:"is_active"`
}
