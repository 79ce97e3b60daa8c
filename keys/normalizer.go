package keys

// Normalizer resolves labels to canonical identifiers using an injected
// alias table. It is used both at ingestion and at read time, so every method
// is total and deterministic.
type Normalizer struct {
	aliases *AliasTable
}

func NewNormalizer(aliases *AliasTable) *Normalizer {
	if aliases == nil {
		aliases = &AliasTable{sections: map[string]string{}, metrics: map[string]string{}}
	}
	return &Normalizer{aliases: aliases}
}

// SectionKey maps a human section name (or an existing key) to its slug.
func (n *Normalizer) SectionKey(label string) string {
	slug := Slug(label)
	if target, ok := n.aliases.sections[slug]; ok {
		return target
	}
	return slug
}

// ResolveMetricAlias maps a historically renamed metric key to its canonical key.
func (n *Normalizer) ResolveMetricAlias(key string) string {
	k := SnakeKey(key)
	if target, ok := n.aliases.metrics[k]; ok {
		return target
	}
	return k
}

// MetricKey derives the canonical metric key from a free-form label.
func (n *Normalizer) MetricKey(label string) string {
	return n.ResolveMetricAlias(SnakeKey(label))
}

// ExecutiveKey is the camelCase key used by the flat executive map.
func (n *Normalizer) ExecutiveKey(key string) string {
	return CamelKey(n.ResolveMetricAlias(key))
}

func (n *Normalizer) Aliases() *AliasTable {
	return n.aliases
}
