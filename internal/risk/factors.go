// Package risk scores journal activity for crisis risk. Scoring is deterministic
// rule evaluation over keyword hits, metric trends, behavioral change and the
// user's response to past interventions.
package risk

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wolfman30/wellbeing-safety-engine/internal/wellbeing"
)

//go:embed risk_factors.yaml
var defaultFactorsYAML []byte

// Category groups keyword factors.
type Category string

const (
	CategoryPrimary    Category = "primary_risk_factors"
	CategoryWarning    Category = "warning_signs"
	CategoryProtective Category = "protective_factors"
)

// Categories lists keyword categories in scoring order.
var Categories = []Category{CategoryPrimary, CategoryWarning, CategoryProtective}

// FactorDefinition describes one keyword-driven factor.
type FactorDefinition struct {
	Keywords        []string `yaml:"keywords"`
	Weight          float64  `yaml:"weight"`
	ImmediateAction bool     `yaml:"immediate_action"`
}

// FactorTable maps category -> factor name -> definition.
type FactorTable struct {
	Primary    map[string]FactorDefinition `yaml:"primary_risk_factors"`
	Warning    map[string]FactorDefinition `yaml:"warning_signs"`
	Protective map[string]FactorDefinition `yaml:"protective_factors"`
}

// Category returns the factors for c.
func (t *FactorTable) Category(c Category) map[string]FactorDefinition {
	switch c {
	case CategoryPrimary:
		return t.Primary
	case CategoryWarning:
		return t.Warning
	case CategoryProtective:
		return t.Protective
	}
	return nil
}

// DefaultFactorTable parses the embedded keyword tables.
func DefaultFactorTable() *FactorTable {
	t, err := ParseFactorTable(defaultFactorsYAML)
	if err != nil {
		panic(fmt.Sprintf("risk: embedded factor table invalid: %v", err))
	}
	return t
}

// LoadFactorTable reads an operator-supplied table. An empty path yields the
// embedded defaults.
func LoadFactorTable(path string) (*FactorTable, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultFactorTable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("risk: read factor table %q: %w", path, err)
	}
	return ParseFactorTable(data)
}

// ParseFactorTable decodes and validates a YAML factor table.
func ParseFactorTable(data []byte) (*FactorTable, error) {
	var t FactorTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: parse factor table: %v", wellbeing.ErrInvalidInput, err)
	}
	for _, c := range Categories {
		for name, def := range t.Category(c) {
			if len(def.Keywords) == 0 {
				return nil, fmt.Errorf("%w: factor %s/%s has no keywords", wellbeing.ErrInvalidInput, c, name)
			}
			if c == CategoryProtective && def.Weight > 0 {
				return nil, fmt.Errorf("%w: protective factor %s has positive weight", wellbeing.ErrInvalidInput, name)
			}
			if c == CategoryProtective && def.ImmediateAction {
				return nil, fmt.Errorf("%w: protective factor %s cannot require immediate action", wellbeing.ErrInvalidInput, name)
			}
			for i, kw := range def.Keywords {
				def.Keywords[i] = strings.ToLower(kw)
			}
		}
	}
	return &t, nil
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
