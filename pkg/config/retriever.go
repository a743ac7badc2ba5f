package config

import "fmt"

// BoostRule multiplies the combined score of candidates of a given document
// type when the query mentions one of the rule's keywords.
type BoostRule struct {
	Keywords     []string `yaml:"keywords" json:"keywords"`
	DocumentType string   `yaml:"document_type" json:"document_type"`
	Multiplier   float64  `yaml:"multiplier" json:"multiplier"`
}

// RetrieverConfig configures hybrid retrieval.
type RetrieverConfig struct {
	// LexicalWeight and VectorWeight combine the per-index scores after
	// deduplication.
	LexicalWeight float64 `yaml:"lexical_weight,omitempty" json:"lexical_weight,omitempty"`
	VectorWeight  float64 `yaml:"vector_weight,omitempty" json:"vector_weight,omitempty"`

	BoostRules []BoostRule `yaml:"boost_rules,omitempty" json:"boost_rules,omitempty"`

	// SnapshotDir stores the serialized lexical indexes. Empty keeps the
	// indexes in memory only.
	SnapshotDir string `yaml:"snapshot_dir,omitempty" json:"snapshot_dir,omitempty"`
}

func (c *RetrieverConfig) SetDefaults() {
	if c.LexicalWeight == 0 && c.VectorWeight == 0 {
		c.LexicalWeight = 0.5
		c.VectorWeight = 0.5
	}
	if c.BoostRules == nil {
		c.BoostRules = []BoostRule{
			{
				Keywords:     []string{"traité", "traite", "ohada", "institution"},
				DocumentType: "presentation",
				Multiplier:   1.5,
			},
			{
				Keywords:     []string{"comptable", "comptabilité", "compte", "amortissement", "bilan"},
				DocumentType: "chapitre",
				Multiplier:   1.2,
			},
		}
	}
}

func (c *RetrieverConfig) Validate() error {
	sum := c.LexicalWeight + c.VectorWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("lexical_weight + vector_weight must sum to 1.0, got %.3f", sum)
	}
	for i, rule := range c.BoostRules {
		if len(rule.Keywords) == 0 {
			return fmt.Errorf("boost rule %d has no keywords", i)
		}
		if rule.DocumentType == "" {
			return fmt.Errorf("boost rule %d has no document_type", i)
		}
		if rule.Multiplier <= 0 {
			return fmt.Errorf("boost rule %d has non-positive multiplier", i)
		}
	}
	return nil
}
