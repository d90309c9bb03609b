package handler

import (
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"

	"github.com/TroveFi/yieldrouter/internal/pricing"
	"github.com/TroveFi/yieldrouter/internal/server/middleware"
	"github.com/TroveFi/yieldrouter/internal/service"
)

// PricesHandler serves the price registry endpoints. Reads go straight to the
// registry; mutations go through the price service so the Redis mirror and
// price events stay in step.
type PricesHandler struct {
	registry *pricing.Registry
	prices   *service.PriceService
	logger   *slog.Logger
}

func NewPricesHandler(registry *pricing.Registry, prices *service.PriceService, logger *slog.Logger) *PricesHandler {
	return &PricesHandler{registry: registry, prices: prices, logger: logger}
}

// ListPrices returns every registered asset price record.
// GET /api/prices
func (h *PricesHandler) ListPrices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"prices": h.registry.List()})
}

// GetPrice returns one asset's price record. With ?amount=N the response also
// carries the 18-decimal normalized value of that raw amount.
// GET /api/prices/{asset}?amount=1000000
func (h *PricesHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	asset := r.PathValue("asset")

	rec, err := h.registry.Get(asset)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := map[string]any{"price": rec}
	if v := r.URL.Query().Get("amount"); v != "" {
		amount, ok := parseBig(v)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid amount")
			return
		}
		normalized, err := h.registry.NormalizedValue(asset, amount)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		resp["normalized_value"] = normalized.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

type registerAssetRequest struct {
	Asset    string `json:"asset"`
	Price    string `json:"price"`
	Decimals uint8  `json:"decimals"`
}

// RegisterAsset registers a new asset with its initial price and native
// decimals.
// POST /api/prices
func (h *PricesHandler) RegisterAsset(w http.ResponseWriter, r *http.Request) {
	var req registerAssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	price, ok := parseBig(req.Price)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid price")
		return
	}

	actor := middleware.Actor(r.Context())
	if err := h.prices.Register(r.Context(), actor, req.Asset, price, req.Decimals); err != nil {
		h.logger.WarnContext(r.Context(), "handler: register asset failed",
			slog.String("asset", req.Asset),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "registered", "asset": req.Asset})
}

type updatePriceRequest struct {
	Price string `json:"price"`
}

// UpdatePrice replaces an asset's current price.
// PUT /api/prices/{asset}
func (h *PricesHandler) UpdatePrice(w http.ResponseWriter, r *http.Request) {
	asset := r.PathValue("asset")

	var req updatePriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	price, ok := parseBig(req.Price)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid price")
		return
	}

	if err := h.prices.Update(r.Context(), middleware.Actor(r.Context()), asset, price); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated", "asset": asset})
}

type batchUpdateRequest struct {
	Assets []string `json:"assets"`
	Prices []string `json:"prices"`
}

// BatchUpdate updates many prices in one call. Invalid entries are skipped;
// valid entries still land.
// POST /api/prices/batch
func (h *PricesHandler) BatchUpdate(w http.ResponseWriter, r *http.Request) {
	var req batchUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	prices := make([]*big.Int, len(req.Prices))
	for i, s := range req.Prices {
		p, ok := parseBig(s)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid price at index "+strconv.Itoa(i))
			return
		}
		prices[i] = p
	}

	if err := h.prices.BatchUpdate(r.Context(), middleware.Actor(r.Context()), req.Assets, prices); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "updated", "count": len(req.Assets)})
}

// DeactivateAsset marks an asset inactive so it drops out of scans.
// DELETE /api/prices/{asset}
func (h *PricesHandler) DeactivateAsset(w http.ResponseWriter, r *http.Request) {
	asset := r.PathValue("asset")
	if err := h.prices.Deactivate(r.Context(), middleware.Actor(r.Context()), asset); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated", "asset": asset})
}
