package keys

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// AliasTable maps historical section names and metric keys to their
// canonical identifiers. Sources and targets are stored normalized: section
// entries as slugs, metric entries as snake keys.
type AliasTable struct {
	sections map[string]string
	metrics  map[string]string
}

type aliasFile struct {
	Sections map[string]string `yaml:"sections"`
	Metrics  map[string]string `yaml:"metrics"`
}

// NewAliasTable builds a table from raw section and metric mappings.
func NewAliasTable(sections, metrics map[string]string) (*AliasTable, error) {
	t := &AliasTable{
		sections: map[string]string{},
		metrics:  map[string]string{},
	}
	for _, src := range sortedKeys(sections) {
		if err := t.AppendSection(src, sections[src]); err != nil {
			return nil, err
		}
	}
	for _, src := range sortedKeys(metrics) {
		if err := t.AppendMetric(src, metrics[src]); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// DefaultAliases returns the historical names known to the dashboard.
func DefaultAliases() *AliasTable {
	t, err := NewAliasTable(
		map[string]string{
			"Executive Summary":     "executive",
			"Financial Analytics":   "financial",
			"Operational Analytics": "operational",
			"Programs Analytics":    "programs",
			"Stakeholder Analytics": "stakeholders",
			"Scenario Analysis":     "scenarios",
		},
		map[string]string{
			"lives_impacted": "people_served",
			"cash":           "cash_position",
			"revenue":        "total_revenue",
			"expenses":       "total_expenses",
		},
	)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseAliases decodes a YAML alias document:
//
//	sections:
//	  Executive Summary: executive
//	metrics:
//	  lives_impacted: people_served
func ParseAliases(data []byte) (*AliasTable, error) {
	var f aliasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse aliases: %w", err)
	}
	return NewAliasTable(f.Sections, f.Metrics)
}

// LoadAliasFile reads an alias table from disk.
func LoadAliasFile(path string) (*AliasTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read aliases %s: %w", path, err)
	}
	return ParseAliases(data)
}

// AppendSection adds a historical section name.
func (t *AliasTable) AppendSection(source, target string) error {
	return appendAlias(t.sections, "section", Slug(source), Slug(target))
}

// AppendMetric adds a historical metric key. The table is append-only: an
// existing source cannot be re-pointed and no chain may be formed.
func (t *AliasTable) AppendMetric(source, target string) error {
	return appendAlias(t.metrics, "metric", SnakeKey(source), SnakeKey(target))
}

func appendAlias(m map[string]string, kind, src, dst string) error {
	if src == "" || dst == "" {
		return fmt.Errorf("%s alias %q -> %q: empty key", kind, src, dst)
	}
	if src == dst {
		return nil
	}
	if cur, ok := m[src]; ok {
		if cur == dst {
			return nil
		}
		return fmt.Errorf("%s alias %q already maps to %q, cannot map to %q", kind, src, cur, dst)
	}
	if next, ok := m[dst]; ok {
		return fmt.Errorf("%s alias %q -> %q forms a chain (%q -> %q)", kind, src, dst, dst, next)
	}
	for s, d := range m {
		if d == src {
			return fmt.Errorf("%s alias %q -> %q forms a chain (%q -> %q)", kind, src, dst, s, d)
		}
	}
	m[src] = dst
	return nil
}

// Metrics returns a copy of the metric alias entries.
func (t *AliasTable) Metrics() map[string]string {
	return copyMap(t.metrics)
}

// Sections returns a copy of the section alias entries.
func (t *AliasTable) Sections() map[string]string {
	return copyMap(t.sections)
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
