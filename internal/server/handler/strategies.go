package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/TroveFi/yieldrouter/internal/allocator"
	"github.com/TroveFi/yieldrouter/internal/domain"
	"github.com/TroveFi/yieldrouter/internal/server/middleware"
	"github.com/TroveFi/yieldrouter/internal/service"
)

// StrategiesHandler serves the strategy registry endpoints.
type StrategiesHandler struct {
	allocation *service.AllocationService
	alloc      *allocator.Allocator
	logger     *slog.Logger
}

func NewStrategiesHandler(allocation *service.AllocationService, alloc *allocator.Allocator, logger *slog.Logger) *StrategiesHandler {
	return &StrategiesHandler{allocation: allocation, alloc: alloc, logger: logger}
}

// ListStrategies returns every registered strategy.
// GET /api/strategies
func (h *StrategiesHandler) ListStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"strategies": h.alloc.List()})
}

// GetStrategy returns a single strategy by id.
// GET /api/strategies/{id}
func (h *StrategiesHandler) GetStrategy(w http.ResponseWriter, r *http.Request) {
	strat, err := h.alloc.Get(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, strat)
}

type strategyRequest struct {
	ID                  string `json:"id"`
	Domain              string `json:"domain"`
	Name                string `json:"name"`
	Protocol            string `json:"protocol"`
	YieldRateBps        uint64 `json:"yield_rate_bps"`
	RiskScore           uint8  `json:"risk_score"`
	TVL                 string `json:"tvl"`
	MaxCapacity         string `json:"max_capacity"`
	MinDeposit          string `json:"min_deposit"`
	Active              bool   `json:"active"`
	CrossDomainEligible bool   `json:"cross_domain_eligible"`
}

// RegisterStrategy registers or updates a strategy.
// POST /api/strategies
func (h *StrategiesHandler) RegisterStrategy(w http.ResponseWriter, r *http.Request) {
	var req strategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	strat := domain.Strategy{
		ID:                  req.ID,
		Domain:              req.Domain,
		Name:                req.Name,
		Protocol:            req.Protocol,
		YieldRateBps:        req.YieldRateBps,
		RiskScore:           req.RiskScore,
		Active:              req.Active,
		CrossDomainEligible: req.CrossDomainEligible,
	}
	var ok bool
	if strat.TVL, ok = parseBig(req.TVL); !ok {
		writeError(w, http.StatusBadRequest, "invalid tvl")
		return
	}
	if strat.MaxCapacity, ok = parseBig(req.MaxCapacity); !ok {
		writeError(w, http.StatusBadRequest, "invalid max_capacity")
		return
	}
	if strat.MinDeposit, ok = parseBig(req.MinDeposit); !ok {
		writeError(w, http.StatusBadRequest, "invalid min_deposit")
		return
	}

	actor := middleware.Actor(r.Context())
	if err := h.allocation.RegisterStrategy(r.Context(), actor, strat); err != nil {
		h.logger.WarnContext(r.Context(), "handler: register strategy failed",
			slog.String("strategy", req.ID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "registered", "id": req.ID})
}
