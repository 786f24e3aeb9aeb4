package notify

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/wellbeing-safety-engine/internal/risk"
)

func TestSanitize(t *testing.T) {
	summary := Sanitize([]risk.RiskFactorRecord{
		{Name: "suicidal_ideation", Category: risk.FactorPrimary, Weight: 10, Frequency: 2, ImmediateActionRequired: true},
		{Name: "hopelessness", Category: risk.FactorPrimary, Weight: 6, Frequency: 1},
		{Name: "burnout", Category: risk.FactorWarning, Weight: 3, Frequency: 1},
		{Name: "isolation", Category: risk.FactorWarning, Weight: 2, Frequency: 4},
		{Name: "social_withdrawal", Category: risk.FactorBehavioral, Weight: 3, Frequency: 1},
	})

	assert.Equal(t, 5, summary.TotalFactors)
	assert.Equal(t, map[string]int{"critical": 1, "high": 1, "moderate": 2, "low": 1}, summary.SeverityDistribution)
	assert.Equal(t, map[string]int{"primary": 2, "warning": 2, "behavioral": 1}, summary.CategoryDistribution)
}

func TestSanitizeEmpty(t *testing.T) {
	summary := Sanitize(nil)
	assert.Zero(t, summary.TotalFactors)
	assert.NotNil(t, summary.SeverityDistribution)
	assert.NotNil(t, summary.CategoryDistribution)

	raw, err := json.Marshal(summary)
	require.NoError(t, err)
	assert.JSONEq(t, `{"total_factors":0,"severity_distribution":{},"category_distribution":{}}`, string(raw))
}

func TestSanitizeUnknownCategory(t *testing.T) {
	summary := Sanitize([]risk.RiskFactorRecord{{Name: "x", Category: "custom_secret", Weight: 1}})
	assert.Equal(t, map[string]int{"other": 1}, summary.CategoryDistribution)
}

func TestSeverityFor(t *testing.T) {
	assert.Equal(t, SeverityCritical, SeverityFor(8))
	assert.Equal(t, SeverityHigh, SeverityFor(7.9))
	assert.Equal(t, SeverityHigh, SeverityFor(5))
	assert.Equal(t, SeverityModerate, SeverityFor(3))
	assert.Equal(t, SeverityLow, SeverityFor(2.9))
	assert.Equal(t, SeverityLow, SeverityFor(-1))
}

func genFactor() gopter.Gen {
	return gopter.CombineGens(
		gen.AlphaString(),
		gen.OneConstOf(risk.FactorPrimary, risk.FactorWarning, risk.FactorBehavioral),
		gen.Float64Range(0, 12),
		gen.IntRange(1, 5),
		gen.Bool(),
	).Map(func(v []interface{}) risk.RiskFactorRecord {
		return risk.RiskFactorRecord{
			Name:                    "rf_" + v[0].(string),
			Category:                v[1].(risk.FactorCategory),
			Weight:                  v[2].(float64),
			Frequency:               v[3].(int),
			ImmediateActionRequired: v[4].(bool),
		}
	})
}

func TestPayloadNeverCarriesFactorNames(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	issued := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	properties.Property("serialized payload and email omit every factor name", prop.ForAll(
		func(factors []risk.RiskFactorRecord) bool {
			a := &risk.Assessment{UserID: "user-1", RiskLevel: risk.LevelElevated, ActiveRiskFactors: factors}
			p := NewPayload(a, 3, issued)
			raw, err := json.Marshal(QueueMessage{Recipient: risk.RecipientCrisisTeam, Payload: p})
			if err != nil {
				return false
			}
			rendered := string(raw) + p.Subject() + p.Text()
			for _, f := range factors {
				if strings.Contains(rendered, f.Name) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genFactor()),
	))

	properties.Property("summary ignores names", prop.ForAll(
		func(factors []risk.RiskFactorRecord) bool {
			renamed := make([]risk.RiskFactorRecord, len(factors))
			for i, f := range factors {
				f.Name = "rf_renamed"
				renamed[i] = f
			}
			return reflect.DeepEqual(Sanitize(factors), Sanitize(renamed))
		},
		gen.SliceOf(genFactor()),
	))

	properties.TestingRun(t)
}
