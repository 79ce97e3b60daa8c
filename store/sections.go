package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/efbdata/impact_dashboard/models"
	"github.com/sirupsen/logrus"
)

// Sections returns the active sections in display order. Stores without a
// section relation get sections derived from the metrics they hold.
func (c *Client) Sections(ctx context.Context) ([]models.DashboardSection, error) {
	rows, err := c.Driver.Select(ctx, Query{
		Table:   models.TableSections,
		Where:   map[string]any{"is_active": true},
		OrderBy: []string{"display_order", "section_key"},
	})
	if err != nil {
		if !IsSchemaAbsent(err) {
			return nil, err
		}
		c.Logger.WithFields(logrus.Fields{
			"field": "store.Client",
			"op":    "sections",
		}).Warn("section relation unavailable; deriving sections from metrics")
		return c.derivedSections(ctx)
	}
	out := make([]models.DashboardSection, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.DashboardSection{
			SectionKey:   r.String("section_key"),
			SectionName:  r.String("section_name"),
			DisplayOrder: r.Int("display_order"),
			IsActive:     r.Bool("is_active"),
		})
	}
	return out, nil
}

func (c *Client) derivedSections(ctx context.Context) ([]models.DashboardSection, error) {
	records, err := c.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	var keys []string
	seen := map[string]bool{}
	for _, r := range records {
		if !seen[r.SectionKey] {
			seen[r.SectionKey] = true
			keys = append(keys, r.SectionKey)
		}
	}
	sort.Strings(keys)
	out := make([]models.DashboardSection, 0, len(keys))
	for i, k := range keys {
		out = append(out, models.DashboardSection{
			SectionKey:   k,
			SectionName:  sectionTitle(k),
			DisplayOrder: i + 1,
			IsActive:     true,
		})
	}
	return out, nil
}

// sectionTitle turns "stakeholder-analytics" into "Stakeholder Analytics".
func sectionTitle(key string) string {
	parts := strings.FieldsFunc(key, func(r rune) bool { return r == '-' || r == '_' })
	for i, p := range parts {
		r, size := utf8.DecodeRuneInString(p)
		parts[i] = string(unicode.ToTitle(r)) + p[size:]
	}
	return strings.Join(parts, " ")
}

func (c *Client) UpsertSection(ctx context.Context, section models.DashboardSection) (models.DashboardSection, error) {
	section.SectionKey = c.Keys.SectionKey(section.SectionKey)
	if section.SectionKey == "" {
		return section, fmt.Errorf("%w: section key is required", ErrInvalidRecord)
	}
	if strings.TrimSpace(section.SectionName) == "" {
		section.SectionName = sectionTitle(section.SectionKey)
	}
	row := Row{
		"section_key":   section.SectionKey,
		"section_name":  section.SectionName,
		"display_order": section.DisplayOrder,
		"is_active":     section.IsActive,
		"created_at":    c.Now(),
	}
	if err := c.Driver.Upsert(ctx, models.TableSections, []Row{row}, []string{"section_key"}); err != nil {
		return section, err
	}
	return section, nil
}

// DeleteSection removes a section that holds no metrics.
func (c *Client) DeleteSection(ctx context.Context, sectionKey string) (bool, error) {
	sectionKey = c.Keys.SectionKey(sectionKey)
	records, err := c.GetBySection(ctx, sectionKey)
	if err != nil {
		return false, err
	}
	if len(records) > 0 {
		return false, fmt.Errorf("%w: %s has %d", ErrSectionInUse, sectionKey, len(records))
	}
	n, err := c.Driver.Delete(ctx, models.TableSections, map[string]any{"section_key": sectionKey})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
