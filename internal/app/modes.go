package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/TroveFi/yieldrouter/internal/allocator"
	"github.com/TroveFi/yieldrouter/internal/auth"
	"github.com/TroveFi/yieldrouter/internal/config"
	"github.com/TroveFi/yieldrouter/internal/domain"
	"github.com/TroveFi/yieldrouter/internal/pricing"
	"github.com/TroveFi/yieldrouter/internal/risk"
	"github.com/TroveFi/yieldrouter/internal/scanner"
	"github.com/TroveFi/yieldrouter/internal/server"
	"github.com/TroveFi/yieldrouter/internal/server/handler"
	"github.com/TroveFi/yieldrouter/internal/server/ws"
	"github.com/TroveFi/yieldrouter/internal/service"
	"github.com/TroveFi/yieldrouter/internal/venue"
)

// systemActor is the internal actor used for startup seeding and store
// hydration. It always holds the admin role.
const systemActor = "system"

// engine bundles the domain-level components shared by the operating modes.
type engine struct {
	authz    *auth.Table
	registry *pricing.Registry
	gate     *risk.Gate
	scanner  *scanner.Scanner
	alloc    *allocator.Allocator

	priceSvc      *service.PriceService
	riskSvc       *service.RiskService
	scanSvc       *service.ScanService
	allocationSvc *service.AllocationService
}

// buildEngine constructs the registries and services every mode shares, seeds
// the scan whitelists, and hydrates the strategy and assessment state from
// the stores.
func (a *App) buildEngine(ctx context.Context, deps *Dependencies) (*engine, error) {
	logger := slog.Default()

	authz := a.buildAuthTable()
	registry := pricing.NewRegistry(authz, logger)
	gate := risk.NewGate(authz, logger)

	quotes, err := a.buildQuoteSource(ctx)
	if err != nil {
		return nil, err
	}

	sc := scanner.New(quotes, authz, scanner.Config{
		ProbeAmount:         config.BigInt(a.cfg.Scanner.ProbeAmount),
		MinProfit:           config.BigInt(a.cfg.Scanner.MinProfit),
		GasPriceWei:         config.BigInt(a.cfg.Scanner.GasPriceWei),
		MaxConcurrent:       a.cfg.Scanner.MaxConcurrent,
		TriangularVenueLegs: a.cfg.Scanner.TriangularVenueLegs,
		UseFlashLoans:       a.cfg.Scanner.UseFlashLoans,
	}, logger)
	for _, asset := range a.cfg.Scanner.Assets {
		if err := sc.AddAsset(systemActor, asset); err != nil {
			return nil, fmt.Errorf("app: seed asset %s: %w", asset, err)
		}
	}
	for _, v := range a.cfg.Scanner.Venues {
		if err := sc.AddVenue(systemActor, v); err != nil {
			return nil, fmt.Errorf("app: seed venue %s: %w", v, err)
		}
	}

	alloc := allocator.New(gate, authz, allocator.Config{
		LocalDomain:           a.cfg.Allocator.LocalDomain,
		RebalanceThresholdBps: a.cfg.Allocator.RebalanceThresholdBps,
		DefaultMaxRisk:        a.cfg.Allocator.DefaultMaxRisk,
	}, logger)

	priceSvc := service.NewPriceService(registry, deps.PriceCache, deps.SignalBus, logger)
	riskSvc := service.NewRiskService(gate, deps.AssessmentStore, deps.AuditStore, deps.Notifier, logger)
	allocationSvc := service.NewAllocationService(
		alloc, deps.StrategyStore, deps.AuditStore, deps.SignalBus, deps.Notifier, logger,
	)
	scanSvc := service.NewScanService(
		sc, registry, deps.OpportunityStore, deps.SignalBus, deps.LockManager,
		deps.AuditStore, deps.Notifier,
		service.ScanConfig{
			Interval:    a.cfg.Scanner.Interval.Duration,
			LockTTL:     a.cfg.Scanner.LockTTL.Duration,
			MaxPriceAge: a.cfg.Scanner.MaxPriceAge.Duration,
		},
		logger,
	)

	if err := allocationSvc.LoadStrategies(ctx, systemActor); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	if err := riskSvc.LoadAssessments(ctx, systemActor); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	return &engine{
		authz:         authz,
		registry:      registry,
		gate:          gate,
		scanner:       sc,
		alloc:         alloc,
		priceSvc:      priceSvc,
		riskSvc:       riskSvc,
		scanSvc:       scanSvc,
		allocationSvc: allocationSvc,
	}, nil
}

// buildAuthTable maps the configured actor grants into a capability table.
// The system actor is always an admin so startup seeding works under closed
// tables.
func (a *App) buildAuthTable() *auth.Table {
	if a.cfg.Auth.Open {
		return auth.Open()
	}
	grants := make(map[string]auth.Role, len(a.cfg.Auth.Actors)+1)
	for actor, role := range a.cfg.Auth.Actors {
		grants[actor] = auth.Role(role)
	}
	grants[systemActor] = auth.RoleAdmin
	return auth.NewTable(grants)
}

// buildQuoteSource selects the venue adapter from configuration: static
// fixture rates for dry runs, or live V2-style routers over JSON-RPC.
func (a *App) buildQuoteSource(ctx context.Context) (domain.QuoteSource, error) {
	switch a.cfg.Venues.Source {
	case "static":
		src := venue.NewStaticSource()
		for _, vc := range a.cfg.Venues.List {
			src.AddVenue(venueDescriptor(vc))
		}
		return src, nil
	case "evm":
		venues := make([]venue.EVMVenue, 0, len(a.cfg.Venues.List))
		for _, vc := range a.cfg.Venues.List {
			venues = append(venues, venue.EVMVenue{
				Descriptor: venueDescriptor(vc),
				Router:     common.HexToAddress(vc.Router),
			})
		}
		tokens := make(map[string]common.Address, len(a.cfg.Venues.Tokens))
		for asset, addr := range a.cfg.Venues.Tokens {
			tokens[asset] = common.HexToAddress(addr)
		}
		src, err := venue.NewEVMSource(ctx, a.cfg.Venues.RPCURL, venues, tokens)
		if err != nil {
			return nil, fmt.Errorf("app: evm quote source: %w", err)
		}
		return src, nil
	default:
		return nil, fmt.Errorf("app: unsupported venue source %q", a.cfg.Venues.Source)
	}
}

func venueDescriptor(vc config.VenueConfig) domain.VenueDescriptor {
	return domain.VenueDescriptor{
		ID:                  vc.ID,
		Name:                vc.Name,
		Active:              true,
		GasOverhead:         vc.GasOverhead,
		FeeBps:              vc.FeeBps,
		SupportsMultiHop:    vc.SupportsMultiHop,
		SupportsTieredPools: vc.SupportsTieredPools,
	}
}

// ScanMode runs the scan loop and, when configured, the opportunity archiver.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")

	eng, err := a.buildEngine(ctx, deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.scanSvc.Run(ctx)
	})
	if deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiver(ctx, deps)
		})
	}
	return g.Wait()
}

// AllocateMode runs the rebalance watcher over the hydrated strategy set.
func (a *App) AllocateMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting allocate mode")

	eng, err := a.buildEngine(ctx, deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.allocationSvc.Run(ctx, a.cfg.Allocator.RebalanceInterval.Duration)
	})
	return g.Wait()
}

// ServeMode runs the admin API server and WebSocket hub without any
// background scan or rebalance loops.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	eng, err := a.buildEngine(ctx, deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	// No scan loop in this mode; the trigger endpoint rejects requests.
	a.startHTTPServer(ctx, g, deps, eng, nil)
	return g.Wait()
}

// FullMode runs the scan loop, rebalance watcher, archiver, and the admin
// API server in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	eng, err := a.buildEngine(ctx, deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.scanSvc.Run(ctx)
	})
	g.Go(func() error {
		return eng.allocationSvc.Run(ctx, a.cfg.Allocator.RebalanceInterval.Duration)
	})
	if deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiver(ctx, deps)
		})
	}
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, eng, eng.scanSvc.Trigger())
	}
	return g.Wait()
}

// startHTTPServer assembles the REST handlers and WebSocket hub and adds the
// server goroutines to the given errgroup. scanTrigger is nil in modes
// without a scan loop. The server shuts down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, eng *engine, scanTrigger chan<- struct{}) {
	logger := slog.Default()
	startedAt := time.Now().UTC()

	hub := ws.NewHub(deps.SignalBus, logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: startedAt,
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	scanHandler := handler.NewScanHandler(logger)
	if scanTrigger != nil {
		scanHandler = scanHandler.WithTriggerChannel(scanTrigger)
	}

	handlers := server.Handlers{
		Health:        handler.NewHealthHandler(a.cfg.Mode, startedAt),
		Prices:        handler.NewPricesHandler(eng.registry, eng.priceSvc, logger),
		Whitelist:     handler.NewWhitelistHandler(eng.scanner, logger),
		Strategies:    handler.NewStrategiesHandler(eng.allocationSvc, eng.alloc, logger),
		Risk:          handler.NewRiskHandler(eng.gate, eng.riskSvc, logger),
		Opportunities: handler.NewOpportunitiesHandler(deps.OpportunityStore, logger),
		Allocation:    handler.NewAllocationHandler(eng.allocationSvc, eng.alloc, logger),
		Scan:          scanHandler,
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKeys:     a.cfg.Server.APIKeys,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// runArchiver moves direct opportunities older than the retention window to
// object storage on the configured interval.
func (a *App) runArchiver(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = time.Hour
	}
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

	a.logger.InfoContext(ctx, "archiver started",
		slog.Duration("interval", interval),
		slog.Int("retention_days", a.cfg.Archive.RetentionDays),
	)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.InfoContext(ctx, "archiver stopped")
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-retention)
			n, err := deps.Archiver.Archive(ctx, cutoff)
			if err != nil {
				a.logger.ErrorContext(ctx, "archive pass failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			if n > 0 {
				a.logger.InfoContext(ctx, "archive pass complete",
					slog.Int("archived", n),
				)
			}
		}
	}
}
