package risk

import (
	"strings"
	"time"

	"github.com/wolfman30/wellbeing-safety-engine/internal/wellbeing"
)

var workDeclineKeywords = []string{
	"missed deadline",
	"can't focus",
	"behind at work",
	"performance review",
	"called in sick",
}

// BehavioralChanges captures shifts in journaling and work behaviour.
type BehavioralChanges struct {
	SocialWithdrawal       bool `json:"social_withdrawal_detected"`
	WorkPerformanceDecline bool `json:"work_performance_decline"`
	EarlierEntries         int  `json:"earlier_entries"`
	LaterEntries           int  `json:"later_entries"`
	WorkKeywordHits        int  `json:"work_keyword_hits"`
}

// DetectBehavioralChanges splits the window at its time midpoint. Withdrawal means
// the later half has at most half the entries of an active (>= 4 entries) earlier
// half. Work decline is a severe energy drop or repeated work-trouble mentions.
func DetectBehavioralChanges(entries []wellbeing.JournalEntry, windowStart, windowEnd time.Time) BehavioralChanges {
	var b BehavioralChanges
	mid := windowStart.Add(windowEnd.Sub(windowStart) / 2)
	var text strings.Builder
	for _, e := range entries {
		if e.Timestamp.Before(mid) {
			b.EarlierEntries++
		} else {
			b.LaterEntries++
		}
		text.WriteString(strings.ToLower(e.Content))
		text.WriteByte(' ')
	}
	b.SocialWithdrawal = b.EarlierEntries >= 4 && b.LaterEntries*2 <= b.EarlierEntries

	body := text.String()
	for _, kw := range workDeclineKeywords {
		b.WorkKeywordHits += strings.Count(body, kw)
	}
	energy := AnalyzeTrend(entries, wellbeing.MetricEnergy)
	b.WorkPerformanceDecline = energy.Direction == DirectionSeverelyDeclining || b.WorkKeywordHits >= 2
	return b
}

// InterventionResponse summarises how the user engaged with recent interventions.
type InterventionResponse struct {
	Total              int     `json:"total"`
	Completed          int     `json:"completed"`
	Rated              int     `json:"rated"`
	AverageHelpfulness float64 `json:"average_helpfulness"`
	PoorResponse       bool    `json:"poor_response_pattern"`
	Avoidance          bool    `json:"intervention_avoidance"`
}

// CompletionRate is completed/total, or zero without deliveries.
func (r InterventionResponse) CompletionRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Completed) / float64(r.Total)
}

// AnalyzeInterventionResponse derives response patterns from delivery history.
func AnalyzeInterventionResponse(deliveries []wellbeing.Delivery) InterventionResponse {
	r := InterventionResponse{Total: len(deliveries)}
	sum := 0
	for _, d := range deliveries {
		if !d.WasCompleted {
			continue
		}
		r.Completed++
		if d.PerceivedHelpfulness != nil {
			r.Rated++
			sum += *d.PerceivedHelpfulness
		}
	}
	if r.Rated > 0 {
		r.AverageHelpfulness = float64(sum) / float64(r.Rated)
	}
	r.PoorResponse = r.Rated >= 3 && r.AverageHelpfulness < 2.5
	r.Avoidance = r.Total >= 3 && r.CompletionRate() < 0.3
	return r
}
