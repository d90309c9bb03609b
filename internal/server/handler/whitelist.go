package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/TroveFi/yieldrouter/internal/scanner"
	"github.com/TroveFi/yieldrouter/internal/server/middleware"
)

// WhitelistHandler serves the scanner whitelist and tuning endpoints.
type WhitelistHandler struct {
	scanner *scanner.Scanner
	logger  *slog.Logger
}

func NewWhitelistHandler(sc *scanner.Scanner, logger *slog.Logger) *WhitelistHandler {
	return &WhitelistHandler{scanner: sc, logger: logger}
}

// ListWhitelist returns the current asset and venue whitelists.
// GET /api/whitelist
func (h *WhitelistHandler) ListWhitelist(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"assets": h.scanner.Assets(),
		"venues": h.scanner.Venues(),
	})
}

type whitelistRequest struct {
	ID string `json:"id"`
}

// AddAsset whitelists an asset for scanning.
// POST /api/whitelist/assets
func (h *WhitelistHandler) AddAsset(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.scanner.AddAsset, "asset whitelisted")
}

// RemoveAsset removes an asset from the scan whitelist.
// DELETE /api/whitelist/assets/{id}
func (h *WhitelistHandler) RemoveAsset(w http.ResponseWriter, r *http.Request) {
	h.mutateByPath(w, r, h.scanner.RemoveAsset, "asset removed")
}

// AddVenue whitelists a venue for scanning.
// POST /api/whitelist/venues
func (h *WhitelistHandler) AddVenue(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.scanner.AddVenue, "venue whitelisted")
}

// RemoveVenue removes a venue from the scan whitelist.
// DELETE /api/whitelist/venues/{id}
func (h *WhitelistHandler) RemoveVenue(w http.ResponseWriter, r *http.Request) {
	h.mutateByPath(w, r, h.scanner.RemoveVenue, "venue removed")
}

type scannerTuningRequest struct {
	MinProfit string `json:"min_profit,omitempty"`
	GasPrice  string `json:"gas_price_wei,omitempty"`
}

// UpdateTuning adjusts the scanner's profit threshold and gas price estimate.
// PUT /api/scanner/tuning
func (h *WhitelistHandler) UpdateTuning(w http.ResponseWriter, r *http.Request) {
	var req scannerTuningRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	actor := middleware.Actor(r.Context())
	if req.MinProfit != "" {
		v, ok := parseBig(req.MinProfit)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid min_profit")
			return
		}
		if err := h.scanner.SetMinProfit(actor, v); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	if req.GasPrice != "" {
		v, ok := parseBig(req.GasPrice)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid gas_price_wei")
			return
		}
		if err := h.scanner.SetGasPrice(actor, v); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *WhitelistHandler) mutate(w http.ResponseWriter, r *http.Request, op func(actor, id string) error, status string) {
	var req whitelistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	h.apply(w, r, op, req.ID, status)
}

func (h *WhitelistHandler) mutateByPath(w http.ResponseWriter, r *http.Request, op func(actor, id string) error, status string) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing id")
		return
	}
	h.apply(w, r, op, id, status)
}

func (h *WhitelistHandler) apply(w http.ResponseWriter, r *http.Request, op func(actor, id string) error, id, status string) {
	if err := op(middleware.Actor(r.Context()), id); err != nil {
		h.logger.WarnContext(r.Context(), "handler: whitelist mutation failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status, "id": id})
}
