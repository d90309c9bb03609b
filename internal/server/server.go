// Package server exposes the engine's admin HTTP and WebSocket surface.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/TroveFi/yieldrouter/internal/domain"
	"github.com/TroveFi/yieldrouter/internal/server/handler"
	"github.com/TroveFi/yieldrouter/internal/server/middleware"
	"github.com/TroveFi/yieldrouter/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// APIKeys maps API key strings to actor names. Empty disables
	// authentication; capability checks still run in the registries.
	APIKeys map[string]string
	// RateLimit caps requests per client per RateWindow when a limiter is
	// wired. Zero disables limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health        *handler.HealthHandler
	Prices        *handler.PricesHandler
	Whitelist     *handler.WhitelistHandler
	Strategies    *handler.StrategiesHandler
	Risk          *handler.RiskHandler
	Opportunities *handler.OpportunitiesHandler
	Allocation    *handler.AllocationHandler
	Scan          *handler.ScanHandler
}

// Server is the headless admin API server for the engine.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and builds the middleware chain: CORS, then
// auth, then request logging (inside auth so the resolved actor is logged),
// then the optional rate limiter.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health and status (no auth-sensitive data).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Health.GetStatus)

	// Price registry.
	mux.HandleFunc("GET /api/prices", handlers.Prices.ListPrices)
	mux.HandleFunc("GET /api/prices/{asset}", handlers.Prices.GetPrice)
	mux.HandleFunc("POST /api/prices", handlers.Prices.RegisterAsset)
	mux.HandleFunc("PUT /api/prices/{asset}", handlers.Prices.UpdatePrice)
	mux.HandleFunc("POST /api/prices/batch", handlers.Prices.BatchUpdate)
	mux.HandleFunc("DELETE /api/prices/{asset}", handlers.Prices.DeactivateAsset)

	// Scanner whitelist and tuning.
	mux.HandleFunc("GET /api/whitelist", handlers.Whitelist.ListWhitelist)
	mux.HandleFunc("POST /api/whitelist/assets", handlers.Whitelist.AddAsset)
	mux.HandleFunc("DELETE /api/whitelist/assets/{id}", handlers.Whitelist.RemoveAsset)
	mux.HandleFunc("POST /api/whitelist/venues", handlers.Whitelist.AddVenue)
	mux.HandleFunc("DELETE /api/whitelist/venues/{id}", handlers.Whitelist.RemoveVenue)
	mux.HandleFunc("PUT /api/scanner/tuning", handlers.Whitelist.UpdateTuning)

	// Strategy registry.
	mux.HandleFunc("GET /api/strategies", handlers.Strategies.ListStrategies)
	mux.HandleFunc("GET /api/strategies/{id}", handlers.Strategies.GetStrategy)
	mux.HandleFunc("POST /api/strategies", handlers.Strategies.RegisterStrategy)

	// Risk gate.
	mux.HandleFunc("GET /api/risk/assessments", handlers.Risk.ListAssessments)
	mux.HandleFunc("GET /api/risk/assessments/{subject}", handlers.Risk.GetAssessment)
	mux.HandleFunc("PUT /api/risk/assessments", handlers.Risk.SetAssessment)
	mux.HandleFunc("POST /api/risk/emergency/{subject}", handlers.Risk.FlagEmergency)
	mux.HandleFunc("DELETE /api/risk/emergency/{subject}", handlers.Risk.ClearEmergency)

	// Opportunity history.
	mux.HandleFunc("GET /api/opportunities/recent", handlers.Opportunities.ListRecent)
	mux.HandleFunc("GET /api/opportunities/triangular", handlers.Opportunities.ListTriangular)

	// Allocation.
	mux.HandleFunc("POST /api/allocation/select", handlers.Allocation.SelectOptimal)
	mux.HandleFunc("POST /api/allocation/plan", handlers.Allocation.PlanAllocation)
	mux.HandleFunc("GET /api/allocation/{asset}", handlers.Allocation.CurrentAllocation)
	mux.HandleFunc("GET /api/allocation/{asset}/rebalance", handlers.Allocation.CheckRebalance)

	// Manual scan trigger.
	mux.HandleFunc("POST /api/scan/trigger", handlers.Scan.TriggerScan)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Second
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.Auth(cfg.APIKeys)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start blocks serving requests until the server errors or shuts down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
