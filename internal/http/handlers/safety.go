// Package handlers exposes the admin endpoints that trigger reassessments and
// monitoring sweeps.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/wellbeing-safety-engine/internal/compliance"
	"github.com/wolfman30/wellbeing-safety-engine/internal/coordinator"
	"github.com/wolfman30/wellbeing-safety-engine/internal/escalation"
	httpmiddleware "github.com/wolfman30/wellbeing-safety-engine/internal/http/middleware"
	"github.com/wolfman30/wellbeing-safety-engine/internal/monitoring"
	"github.com/wolfman30/wellbeing-safety-engine/internal/notify"
	"github.com/wolfman30/wellbeing-safety-engine/internal/risk"
	"github.com/wolfman30/wellbeing-safety-engine/internal/safety"
	"github.com/wolfman30/wellbeing-safety-engine/internal/wellbeing"
	"github.com/wolfman30/wellbeing-safety-engine/pkg/logging"
)

const maxWindowDays = 90

// Processor runs the safety pipeline for one user.
type Processor interface {
	Process(ctx context.Context, userID string, current *wellbeing.JournalEntry, windowDays int) (*safety.Outcome, error)
}

// Sweeper runs one monitoring sweep.
type Sweeper interface {
	Run(ctx context.Context, threshold int) (*monitoring.Summary, error)
}

// EventLogger records manual reassessments.
type EventLogger interface {
	LogEvent(ctx context.Context, event compliance.AuditEvent) (string, error)
}

// ReviewLister lists escalation records awaiting clinical review.
type ReviewLister interface {
	DueForReview(ctx context.Context, asOf time.Time, limit int) ([]compliance.AuditReview, error)
}

// SafetyHandler serves the admin safety endpoints.
type SafetyHandler struct {
	pipeline Processor
	sweeper  Sweeper
	audit    EventLogger
	reviews  ReviewLister
	logger   *logging.Logger
	now      func() time.Time
}

func NewSafetyHandler(pipeline Processor, sweeper Sweeper, audit EventLogger, logger *logging.Logger) *SafetyHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &SafetyHandler{
		pipeline: pipeline,
		sweeper:  sweeper,
		audit:    audit,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (h *SafetyHandler) WithReviews(r ReviewLister) *SafetyHandler {
	h.reviews = r
	return h
}

// ReassessmentRequest optionally carries a fresh entry and a window override.
type ReassessmentRequest struct {
	WindowDays int                     `json:"window_days,omitempty"`
	Entry      *wellbeing.JournalEntry `json:"entry,omitempty"`
}

// ReassessmentResponse never carries factor names or journal content.
type ReassessmentResponse struct {
	UserID          string                  `json:"user_id"`
	RiskLevel       risk.Level              `json:"risk_level"`
	RiskScore       float64                 `json:"risk_score"`
	EscalationLevel escalation.Level        `json:"escalation_level"`
	RateLimited     bool                    `json:"rate_limited"`
	HeldForResponse bool                    `json:"held_for_response"`
	RiskSummary     notify.SanitizedSummary `json:"risk_summary"`
	Escalation      *coordinator.Result     `json:"escalation,omitempty"`
	NextAssessment  time.Time               `json:"next_assessment_date"`
}

// SweepRequest overrides the cohort threshold.
type SweepRequest struct {
	Threshold int `json:"threshold,omitempty"`
}

// Reassess runs the pipeline for one user on demand.
// POST /admin/users/{userID}/reassessments
func (h *SafetyHandler) Reassess(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		jsonError(w, "missing userID", http.StatusBadRequest)
		return
	}

	var req ReassessmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.WindowDays == 0 {
		req.WindowDays = risk.DefaultWindowDays
	}
	if req.WindowDays < 1 || req.WindowDays > maxWindowDays {
		jsonError(w, "window_days out of range", http.StatusBadRequest)
		return
	}
	if req.Entry != nil {
		req.Entry.UserID = userID
		if req.Entry.Timestamp.IsZero() {
			req.Entry.Timestamp = h.now()
		}
	}

	h.logManualReassessment(r, userID)

	out, err := h.pipeline.Process(r.Context(), userID, req.Entry, req.WindowDays)
	if out == nil || out.Assessment == nil {
		if err == nil {
			err = errors.New("pipeline returned no assessment")
		}
		h.logger.Error("reassessment failed", "user_id", userID, "error", err)
		jsonError(w, errorMessage(err), statusFor(err))
		return
	}

	resp := ReassessmentResponse{
		UserID:         userID,
		RiskLevel:      out.Assessment.RiskLevel,
		RiskScore:      out.Assessment.RiskScore,
		RiskSummary:    notify.Sanitize(out.Assessment.ActiveRiskFactors),
		Escalation:     out.Escalation,
		NextAssessment: out.Assessment.NextAssessmentDate,
	}
	if out.Decision != nil {
		resp.EscalationLevel = out.Decision.Level
		resp.RateLimited = out.Decision.RateLimited
		resp.HeldForResponse = out.Decision.HeldForResponse
	}

	status := http.StatusOK
	if err != nil {
		// Assessment stands; escalation only partly ran.
		h.logger.Error("reassessment escalation incomplete", "user_id", userID, "error", err)
		status = http.StatusBadGateway
	}
	writeJSON(w, status, resp)
}

// Sweep runs one monitoring sweep synchronously.
// POST /admin/safety-sweeps
func (h *SafetyHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Threshold == 0 {
		req.Threshold = monitoring.DefaultThreshold
	}
	if req.Threshold < 0 || req.Threshold > 10 {
		jsonError(w, "threshold out of range", http.StatusBadRequest)
		return
	}

	summary, err := h.sweeper.Run(r.Context(), req.Threshold)
	if err != nil && summary == nil {
		h.logger.Error("safety sweep failed", "error", err)
		jsonError(w, errorMessage(err), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// DueReviews lists escalations past their review date.
// GET /admin/escalation-reviews
func (h *SafetyHandler) DueReviews(w http.ResponseWriter, r *http.Request) {
	if h.reviews == nil {
		jsonError(w, "audit store not configured", http.StatusServiceUnavailable)
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			jsonError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	due, err := h.reviews.DueForReview(r.Context(), h.now(), limit)
	if err != nil {
		h.logger.Error("failed to list due reviews", "error", err)
		jsonError(w, "audit store unavailable", http.StatusServiceUnavailable)
		return
	}
	if due == nil {
		due = []compliance.AuditReview{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reviews": due})
}

func (h *SafetyHandler) logManualReassessment(r *http.Request, userID string) {
	if h.audit == nil {
		return
	}
	details := map[string]string{}
	if op, ok := httpmiddleware.OperatorFromContext(r.Context()); ok {
		details["operator"] = op.Subject
		details["role"] = op.Role
	}
	raw, _ := json.Marshal(details)
	if _, err := h.audit.LogEvent(r.Context(), compliance.AuditEvent{
		EventType: compliance.EventManualReassessment,
		UserID:    userID,
		Details:   raw,
		CreatedAt: h.now(),
	}); err != nil {
		h.logger.Error("failed to audit manual reassessment", "user_id", userID, "error", err)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, wellbeing.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, wellbeing.ErrDataUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, wellbeing.ErrInvalidInput):
		return "invalid input"
	case errors.Is(err, wellbeing.ErrDataUnavailable):
		return "wellbeing data unavailable"
	default:
		return "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}
