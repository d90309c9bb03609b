package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/TroveFi/yieldrouter/internal/allocator"
	"github.com/TroveFi/yieldrouter/internal/service"
)

// AllocationHandler serves selection, planning, and rebalance endpoints.
type AllocationHandler struct {
	allocation *service.AllocationService
	alloc      *allocator.Allocator
	logger     *slog.Logger
}

func NewAllocationHandler(allocation *service.AllocationService, alloc *allocator.Allocator, logger *slog.Logger) *AllocationHandler {
	return &AllocationHandler{allocation: allocation, alloc: alloc, logger: logger}
}

type selectRequest struct {
	Amount             string `json:"amount"`
	MaxRisk            uint8  `json:"max_risk"`
	CrossDomainAllowed bool   `json:"cross_domain_allowed"`
	PreferredDomain    string `json:"preferred_domain,omitempty"`
}

// SelectOptimal picks the single best strategy for a deposit.
// POST /api/allocation/select
func (h *AllocationHandler) SelectOptimal(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	amount, ok := parseBig(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	res, err := h.allocation.SelectOptimal(r.Context(), amount, req.MaxRisk, req.CrossDomainAllowed, req.PreferredDomain)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type planRequest struct {
	Asset   string `json:"asset"`
	Total   string `json:"total"`
	MaxRisk uint8  `json:"max_risk"`
}

// PlanAllocation computes and records a split allocation across eligible
// strategies.
// POST /api/allocation/plan
func (h *AllocationHandler) PlanAllocation(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Asset == "" {
		writeError(w, http.StatusBadRequest, "asset is required")
		return
	}
	total, ok := parseBig(req.Total)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid total")
		return
	}

	plan, err := h.allocation.PlanAllocation(r.Context(), req.Asset, total, req.MaxRisk)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: plan allocation failed",
			slog.String("asset", req.Asset),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// CurrentAllocation returns the recorded allocation for an asset.
// GET /api/allocation/{asset}
func (h *AllocationHandler) CurrentAllocation(w http.ResponseWriter, r *http.Request) {
	asset := r.PathValue("asset")
	plan, ok := h.alloc.CurrentAllocation(asset)
	if !ok {
		writeError(w, http.StatusNotFound, "no allocation recorded for asset")
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// CheckRebalance reports whether the asset's allocation should be rebalanced.
// GET /api/allocation/{asset}/rebalance
func (h *AllocationHandler) CheckRebalance(w http.ResponseWriter, r *http.Request) {
	asset := r.PathValue("asset")
	should, err := h.allocation.CheckRebalance(r.Context(), asset)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"asset": asset, "rebalance": should})
}
