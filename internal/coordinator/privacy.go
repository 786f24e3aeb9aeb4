package coordinator

import (
	"github.com/wolfman30/wellbeing-safety-engine/internal/risk"
	"github.com/wolfman30/wellbeing-safety-engine/internal/wellbeing"
)

// PermitEscalation is the consent gate. Without a consent record only an
// immediate crisis may escalate. With one, elevated risk needs crisis
// intervention consent and lower levels also need manager access consent.
func PermitEscalation(c *wellbeing.Consent, level risk.Level) bool {
	if level == risk.LevelImmediateCrisis {
		return true
	}
	if c == nil {
		return false
	}
	if level == risk.LevelElevated {
		return c.CrisisInterventionConsent
	}
	return c.CrisisInterventionConsent && c.ManagerAccessConsent
}
