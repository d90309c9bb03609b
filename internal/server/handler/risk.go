package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/TroveFi/yieldrouter/internal/domain"
	"github.com/TroveFi/yieldrouter/internal/risk"
	"github.com/TroveFi/yieldrouter/internal/server/middleware"
	"github.com/TroveFi/yieldrouter/internal/service"
)

// RiskHandler serves the risk gate endpoints. Reads go to the gate; mutations
// go through the risk service so assessments persist and emergency flags are
// audited.
type RiskHandler struct {
	gate   *risk.Gate
	risks  *service.RiskService
	logger *slog.Logger
}

func NewRiskHandler(gate *risk.Gate, risks *service.RiskService, logger *slog.Logger) *RiskHandler {
	return &RiskHandler{gate: gate, risks: risks, logger: logger}
}

// ListAssessments returns all stored assessments, including expired ones.
// GET /api/risk/assessments
func (h *RiskHandler) ListAssessments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"assessments": h.gate.List()})
}

// GetAssessment returns the live assessment for a subject. Expired or missing
// assessments map to their sentinel errors.
// GET /api/risk/assessments/{subject}
func (h *RiskHandler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	a, err := h.gate.Assess(r.PathValue("subject"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type assessmentRequest struct {
	Subject    string `json:"subject"`
	Score      uint8  `json:"score"`
	Confidence uint8  `json:"confidence"`
	Assessor   string `json:"assessor"`
	TTLSeconds int64  `json:"ttl_seconds,omitempty"`
	Data       string `json:"data,omitempty"` // raw data set, hashed for the record
}

// SetAssessment records or replaces an assessment. The request's data field,
// when present, is keccak-hashed into the stored record.
// PUT /api/risk/assessments
func (h *RiskHandler) SetAssessment(w http.ResponseWriter, r *http.Request) {
	var req assessmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	a := domain.RiskAssessment{
		Subject:    req.Subject,
		Score:      req.Score,
		Confidence: req.Confidence,
		Assessor:   req.Assessor,
	}
	if req.TTLSeconds > 0 {
		a.AssessedAt = time.Now().UTC()
		a.ExpiresAt = a.AssessedAt.Add(time.Duration(req.TTLSeconds) * time.Second)
	}
	if req.Data != "" {
		a.DataHash = risk.HashData([]byte(req.Data))
	}

	if err := h.risks.SetAssessment(r.Context(), middleware.Actor(r.Context()), a); err != nil {
		h.logger.WarnContext(r.Context(), "handler: set assessment failed",
			slog.String("subject", req.Subject),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded", "subject": req.Subject})
}

// FlagEmergency marks a subject as an emergency protocol.
// POST /api/risk/emergency/{subject}
func (h *RiskHandler) FlagEmergency(w http.ResponseWriter, r *http.Request) {
	subject := r.PathValue("subject")
	if err := h.risks.FlagEmergency(r.Context(), middleware.Actor(r.Context()), subject); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "flagged", "subject": subject})
}

// ClearEmergency removes a subject's emergency flag.
// DELETE /api/risk/emergency/{subject}
func (h *RiskHandler) ClearEmergency(w http.ResponseWriter, r *http.Request) {
	subject := r.PathValue("subject")
	if err := h.risks.ClearEmergency(r.Context(), middleware.Actor(r.Context()), subject); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared", "subject": subject})
}
