package risk

import (
	"strings"

	"github.com/wolfman30/wellbeing-safety-engine/internal/wellbeing"
)

// FactorHit is an active factor found in journal content.
type FactorHit struct {
	Frequency       int     `json:"frequency"`
	Weight          float64 `json:"weight"`
	ImmediateAction bool    `json:"immediate_action"`
}

// ContentAnalysis maps category -> factor name -> hit. Factors without any
// keyword occurrence are absent.
type ContentAnalysis map[Category]map[string]FactorHit

// HasImmediateAction reports whether any active factor demands immediate action.
func (a ContentAnalysis) HasImmediateAction() bool {
	for _, c := range Categories {
		for _, hit := range a[c] {
			if hit.ImmediateAction {
				return true
			}
		}
	}
	return false
}

// Hits returns the total keyword occurrences in category c.
func (a ContentAnalysis) Hits(c Category) int {
	total := 0
	for _, hit := range a[c] {
		total += hit.Frequency
	}
	return total
}

// ContentAnalyzer counts keyword occurrences in journal text.
type ContentAnalyzer struct {
	table *FactorTable
}

// NewContentAnalyzer creates an analyzer over the given table, falling back to the
// embedded defaults.
func NewContentAnalyzer(table *FactorTable) *ContentAnalyzer {
	if table == nil {
		table = DefaultFactorTable()
	}
	return &ContentAnalyzer{table: table}
}

// Analyze scans the window's entries plus the optional just-submitted entry.
// Occurrences are cumulative: two keywords of one factor in a sentence count twice.
func (a *ContentAnalyzer) Analyze(entries []wellbeing.JournalEntry, current *wellbeing.JournalEntry) ContentAnalysis {
	bodies := make([]string, 0, len(entries)+1)
	for _, e := range entries {
		bodies = append(bodies, e.Content)
	}
	if current != nil && !containsEntry(entries, current) {
		bodies = append(bodies, current.Content)
	}
	text := strings.ToLower(strings.Join(bodies, " "))

	out := make(ContentAnalysis, len(Categories))
	for _, c := range Categories {
		found := make(map[string]FactorHit)
		if text != "" {
			for name, def := range a.table.Category(c) {
				n := 0
				for _, kw := range def.Keywords {
					n += strings.Count(text, kw)
				}
				if n > 0 {
					found[name] = FactorHit{Frequency: n, Weight: def.Weight, ImmediateAction: def.ImmediateAction}
				}
			}
		}
		out[c] = found
	}
	return out
}

func containsEntry(entries []wellbeing.JournalEntry, e *wellbeing.JournalEntry) bool {
	if e.ID == "" {
		return false
	}
	for i := range entries {
		if entries[i].ID == e.ID {
			return true
		}
	}
	return false
}
