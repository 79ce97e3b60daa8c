package projector

import (
	"sort"
	"strings"

	"github.com/efbdata/impact_dashboard/keys"
	"github.com/efbdata/impact_dashboard/models"
	"github.com/shopspring/decimal"
)

// ExecutiveSection is the section whose metrics feed the flat executive map.
const ExecutiveSection = "executive"

type MetricView struct {
	MetricKey       string   `json:"metric_key"`
	MetricName      string   `json:"metric_name"`
	DisplayOrder    int      `json:"display_order"`
	CurrentValue    string   `json:"current_value"`
	PreviousValue   string   `json:"previous_value,omitempty"`
	TargetValue     string   `json:"target_value,omitempty"`
	Unit            string   `json:"unit,omitempty"`
	FormatType      string   `json:"format_type,omitempty"`
	ChangeValue     string   `json:"change_value,omitempty"`
	ChangeDirection string   `json:"change_direction,omitempty"`
	ColorTheme      string   `json:"color_theme,omitempty"`
	IconName        string   `json:"icon_name,omitempty"`
	Description     string   `json:"description,omitempty"`
	Methodology     string   `json:"methodology,omitempty"`
	DataSource      string   `json:"data_source,omitempty"`
	Interpretation  string   `json:"interpretation,omitempty"`
	Significance    string   `json:"significance,omitempty"`
	Benchmarks      []string `json:"benchmarks,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

type SectionView struct {
	SectionKey    string                  `json:"section_key"`
	SectionName   string                  `json:"section_name"`
	DisplayOrder  int                     `json:"display_order"`
	Categories    map[string][]MetricView `json:"categories"`
	CategoryOrder []string                `json:"category_order"`
}

// Dashboard is the projected read model. Executive values are float64 when
// the stored text parses as a number and the raw string otherwise.
type Dashboard struct {
	Sections  map[string]SectionView `json:"sections"`
	Executive map[string]any         `json:"executive"`
}

// Project folds metrics into the read model. It is pure; callers re-run it
// after every change.
func Project(metrics []models.MetricRecord, sections []models.DashboardSection, normalizer *keys.Normalizer) Dashboard {
	if normalizer == nil {
		normalizer = keys.NewNormalizer(nil)
	}
	d := Dashboard{
		Sections:  map[string]SectionView{},
		Executive: map[string]any{},
	}
	for _, s := range sections {
		d.Sections[s.SectionKey] = SectionView{
			SectionKey:   s.SectionKey,
			SectionName:  s.SectionName,
			DisplayOrder: s.DisplayOrder,
			Categories:   map[string][]MetricView{},
		}
	}

	// category order follows the smallest display order seen in each category
	firstSeen := map[string]map[string]int{}
	for _, m := range metrics {
		view, ok := d.Sections[m.SectionKey]
		if !ok {
			view = SectionView{
				SectionKey:  m.SectionKey,
				SectionName: m.SectionKey,
				Categories:  map[string][]MetricView{},
			}
		}
		category := m.Category
		if category == "" {
			category = "General"
		}
		view.Categories[category] = append(view.Categories[category], viewOf(m))
		if firstSeen[m.SectionKey] == nil {
			firstSeen[m.SectionKey] = map[string]int{}
		}
		if o, seen := firstSeen[m.SectionKey][category]; !seen || m.DisplayOrder < o {
			firstSeen[m.SectionKey][category] = m.DisplayOrder
		}
		d.Sections[m.SectionKey] = view

		if m.SectionKey == ExecutiveSection {
			var v any = m.CurrentValue
			if n, ok := numeric(m.CurrentValue); ok {
				v = n
			}
			d.Executive[normalizer.ExecutiveKey(m.MetricKey)] = v
		}
	}

	for key, view := range d.Sections {
		for cat, list := range view.Categories {
			sort.SliceStable(list, func(i, j int) bool {
				if list[i].DisplayOrder != list[j].DisplayOrder {
					return list[i].DisplayOrder < list[j].DisplayOrder
				}
				return list[i].MetricKey < list[j].MetricKey
			})
			view.Categories[cat] = list
		}
		order := make([]string, 0, len(view.Categories))
		for cat := range view.Categories {
			order = append(order, cat)
		}
		seen := firstSeen[key]
		sort.Slice(order, func(i, j int) bool {
			if seen[order[i]] != seen[order[j]] {
				return seen[order[i]] < seen[order[j]]
			}
			return order[i] < order[j]
		})
		view.CategoryOrder = order
		d.Sections[key] = view
	}
	return d
}

func viewOf(m models.MetricRecord) MetricView {
	return MetricView{
		MetricKey:       m.MetricKey,
		MetricName:      m.MetricName,
		DisplayOrder:    m.DisplayOrder,
		CurrentValue:    m.CurrentValue,
		PreviousValue:   m.PreviousValue,
		TargetValue:     m.TargetValue,
		Unit:            m.Unit,
		FormatType:      string(m.FormatType),
		ChangeValue:     m.ChangeValue,
		ChangeDirection: string(m.ChangeDirection),
		ColorTheme:      m.ColorTheme,
		IconName:        m.IconName,
		Description:     m.Description,
		Methodology:     m.Methodology,
		DataSource:      m.DataSource,
		Interpretation:  m.Interpretation,
		Significance:    m.Significance,
		Benchmarks:      m.Benchmarks,
		Recommendations: m.Recommendations,
	}
}

// numeric parses "1,200", "87.5%" and "$3.2" style values.
func numeric(value string) (float64, bool) {
	v := strings.NewReplacer(",", "", "%", "", "$", "").Replace(strings.TrimSpace(value))
	if v == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return 0, false
	}
	f, _ := d.Float64()
	return f, true
}

