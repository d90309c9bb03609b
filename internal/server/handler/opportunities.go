package handler

import (
	"log/slog"
	"net/http"

	"github.com/TroveFi/yieldrouter/internal/domain"
)

// OpportunitiesHandler serves the persisted opportunity history.
type OpportunitiesHandler struct {
	store  domain.OpportunityStore
	logger *slog.Logger
}

func NewOpportunitiesHandler(store domain.OpportunityStore, logger *slog.Logger) *OpportunitiesHandler {
	return &OpportunitiesHandler{store: store, logger: logger}
}

// ListRecent returns the most recent direct opportunities.
// GET /api/opportunities/recent?limit=20
func (h *OpportunitiesHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotImplemented, "opportunity persistence not configured")
		return
	}

	opps, err := h.store.ListRecent(r.Context(), parseLimit(r, 20, 200))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list opportunities failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}
	if opps == nil {
		opps = []domain.Opportunity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"opportunities": opps})
}

// ListTriangular returns the most recent triangular opportunities.
// GET /api/opportunities/triangular?limit=20
func (h *OpportunitiesHandler) ListTriangular(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotImplemented, "opportunity persistence not configured")
		return
	}

	opps, err := h.store.ListTriangularRecent(r.Context(), parseLimit(r, 20, 200))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list triangular opportunities failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list triangular opportunities")
		return
	}
	if opps == nil {
		opps = []domain.TriangularOpportunity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"opportunities": opps})
}
