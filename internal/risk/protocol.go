package risk

import "time"

// ActionKind is an immediate action an escalation protocol performs.
type ActionKind string

const (
	ActionDeliverCrisisResources          ActionKind = "deliver_crisis_resources"
	ActionTriggerProfessionalConsultation ActionKind = "trigger_professional_consultation"
	ActionInitiateSafetyMonitoring        ActionKind = "initiate_safety_monitoring"
	ActionIntensifyInterventions          ActionKind = "intensify_interventions"
	ActionScheduleCheckIn                 ActionKind = "schedule_check_in"
	ActionDeliverPreventiveResources      ActionKind = "deliver_preventive_resources"
)

// RecipientKind is a notification audience.
type RecipientKind string

const (
	RecipientCrisisTeam         RecipientKind = "crisis_team"
	RecipientHRWellness         RecipientKind = "hr_wellness"
	RecipientEmployeeAssistance RecipientKind = "employee_assistance"
)

// Protocol is the static response plan for a risk level.
type Protocol struct {
	RiskLevel              Level           `json:"risk_level"`
	ImmediateActions       []ActionKind    `json:"immediate_actions"`
	NotificationRecipients []RecipientKind `json:"notification_recipients"`
	ResponseTime           time.Duration   `json:"response_time_requirement"`
	FollowUpRequirements   []string        `json:"follow_up_requirements"`
	FollowUpCadence        time.Duration   `json:"follow_up_cadence"`
}

var protocols = map[Level]Protocol{
	LevelImmediateCrisis: {
		RiskLevel: LevelImmediateCrisis,
		ImmediateActions: []ActionKind{
			ActionDeliverCrisisResources,
			ActionTriggerProfessionalConsultation,
			ActionInitiateSafetyMonitoring,
		},
		NotificationRecipients: []RecipientKind{RecipientCrisisTeam, RecipientEmployeeAssistance, RecipientHRWellness},
		ResponseTime:           time.Hour,
		FollowUpRequirements: []string{
			"crisis counselor contact within 1 hour",
			"daily safety check-in for 14 days",
			"professional review before de-escalation",
		},
		FollowUpCadence: 4 * time.Hour,
	},
	LevelElevated: {
		RiskLevel: LevelElevated,
		ImmediateActions: []ActionKind{
			ActionTriggerProfessionalConsultation,
			ActionIntensifyInterventions,
			ActionInitiateSafetyMonitoring,
		},
		NotificationRecipients: []RecipientKind{RecipientEmployeeAssistance, RecipientHRWellness},
		ResponseTime:           4 * time.Hour,
		FollowUpRequirements: []string{
			"professional consultation within 24 hours",
			"check-in every 12 hours for 7 days",
		},
		FollowUpCadence: 12 * time.Hour,
	},
	LevelModerate: {
		RiskLevel:              LevelModerate,
		ImmediateActions:       []ActionKind{ActionIntensifyInterventions, ActionScheduleCheckIn},
		NotificationRecipients: []RecipientKind{RecipientEmployeeAssistance},
		ResponseTime:           24 * time.Hour,
		FollowUpRequirements:   []string{"daily check-in for 7 days"},
		FollowUpCadence:        24 * time.Hour,
	},
	LevelLow: {
		RiskLevel:            LevelLow,
		ImmediateActions:     []ActionKind{ActionDeliverPreventiveResources},
		ResponseTime:         72 * time.Hour,
		FollowUpRequirements: []string{"weekly wellbeing review"},
		FollowUpCadence:      72 * time.Hour,
	},
}

// minimalCadence spaces routine reassessment when no protocol applies.
const minimalCadence = 7 * 24 * time.Hour

// ProtocolFor returns the protocol for a risk level. Minimal risk has none.
func ProtocolFor(level Level) (Protocol, bool) {
	p, ok := protocols[level]
	if !ok {
		return Protocol{RiskLevel: level}, false
	}
	p.ImmediateActions = append([]ActionKind(nil), p.ImmediateActions...)
	p.NotificationRecipients = append([]RecipientKind(nil), p.NotificationRecipients...)
	p.FollowUpRequirements = append([]string(nil), p.FollowUpRequirements...)
	return p, true
}

// FollowUpCadence returns how soon a user at level should be reassessed.
func FollowUpCadence(level Level) time.Duration {
	if p, ok := protocols[level]; ok {
		return p.FollowUpCadence
	}
	return minimalCadence
}
