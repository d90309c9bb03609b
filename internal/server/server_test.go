package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/TroveFi/yieldrouter/internal/allocator"
	"github.com/TroveFi/yieldrouter/internal/auth"
	"github.com/TroveFi/yieldrouter/internal/domain"
	"github.com/TroveFi/yieldrouter/internal/pricing"
	"github.com/TroveFi/yieldrouter/internal/risk"
	"github.com/TroveFi/yieldrouter/internal/scanner"
	"github.com/TroveFi/yieldrouter/internal/server/handler"
	"github.com/TroveFi/yieldrouter/internal/service"
	"github.com/TroveFi/yieldrouter/internal/venue"
)

const (
	adminKey  = "k-admin"
	viewerKey = "k-view"
)

// testServer wires real in-memory components behind the full route table and
// middleware chain, served over httptest.
type testServer struct {
	ts      *httptest.Server
	trigger chan struct{}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	authz := auth.NewTable(map[string]auth.Role{
		"ops":   auth.RoleAdmin,
		"watch": auth.RoleViewer,
	})

	registry := pricing.NewRegistry(authz, logger)
	priceSvc := service.NewPriceService(registry, nil, nil, logger)

	src := venue.NewStaticSource()
	src.AddVenue(domain.VenueDescriptor{ID: "v1", Name: "Venue One", Active: true, GasOverhead: 100_000})
	sc := scanner.New(src, authz, scanner.Config{
		ProbeAmount: big.NewInt(1000),
		MinProfit:   big.NewInt(0),
		GasPriceWei: big.NewInt(1),
	}, logger)

	gate := risk.NewGate(authz, logger)
	riskSvc := service.NewRiskService(gate, nil, nil, nil, logger)

	alloc := allocator.New(gate, authz, allocator.Config{
		LocalDomain:           "flow",
		RebalanceThresholdBps: 50,
		DefaultMaxRisk:        10,
	}, logger)
	allocSvc := service.NewAllocationService(alloc, nil, nil, nil, nil, logger)

	trigger := make(chan struct{}, 1)
	handlers := Handlers{
		Health:        handler.NewHealthHandler("serve", time.Now()),
		Prices:        handler.NewPricesHandler(registry, priceSvc, logger),
		Whitelist:     handler.NewWhitelistHandler(sc, logger),
		Strategies:    handler.NewStrategiesHandler(allocSvc, alloc, logger),
		Risk:          handler.NewRiskHandler(gate, riskSvc, logger),
		Opportunities: handler.NewOpportunitiesHandler(nil, logger),
		Allocation:    handler.NewAllocationHandler(allocSvc, alloc, logger),
		Scan:          handler.NewScanHandler(logger).WithTriggerChannel(trigger),
	}

	srv := NewServer(Config{
		Port:    0,
		APIKeys: map[string]string{adminKey: "ops", viewerKey: "watch"},
	}, handlers, nil, nil, logger)

	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return &testServer{ts: ts, trigger: trigger}
}

// do issues a request with the given API key and decodes the JSON response
// body into a generic map.
func (s *testServer) do(t *testing.T, method, path, key string, body any) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.ts.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := s.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, raw, err)
		}
	}
	return resp.StatusCode, decoded
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(t, http.MethodGet, "/api/prices", "", nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("no token: code = %d, want 401", code)
	}
	if body["error"] == nil {
		t.Fatal("no token: expected error body")
	}

	if code, _ := s.do(t, http.MethodGet, "/api/prices", "bogus", nil); code != http.StatusUnauthorized {
		t.Fatalf("bad token: code = %d, want 401", code)
	}
	if code, _ := s.do(t, http.MethodGet, "/api/health", adminKey, nil); code != http.StatusOK {
		t.Fatalf("health with token: code = %d, want 200", code)
	}
}

func TestBearerTokenAccepted(t *testing.T) {
	s := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, s.ts.URL+"/api/health", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+adminKey)
	resp, err := s.ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bearer token: code = %d, want 200", resp.StatusCode)
	}
}

func TestViewerCannotMutate(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, http.MethodPost, "/api/prices", viewerKey, map[string]any{
		"asset": "USDC", "price": "1000000000000000000", "decimals": 6,
	})
	if code != http.StatusForbidden {
		t.Fatalf("viewer register: code = %d, want 403", code)
	}

	if code, _ := s.do(t, http.MethodGet, "/api/prices", viewerKey, nil); code != http.StatusOK {
		t.Fatalf("viewer list: code = %d, want 200", code)
	}
}

func TestPriceLifecycle(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, http.MethodPost, "/api/prices", adminKey, map[string]any{
		"asset": "USDC", "price": "1000000000000000000", "decimals": 6,
	})
	if code != http.StatusCreated {
		t.Fatalf("register: code = %d, want 201", code)
	}

	// Duplicate registration conflicts.
	code, _ = s.do(t, http.MethodPost, "/api/prices", adminKey, map[string]any{
		"asset": "USDC", "price": "1000000000000000000", "decimals": 6,
	})
	if code != http.StatusConflict {
		t.Fatalf("duplicate register: code = %d, want 409", code)
	}

	code, body := s.do(t, http.MethodGet, "/api/prices/USDC?amount=2500000", adminKey, nil)
	if code != http.StatusOK {
		t.Fatalf("get: code = %d, want 200", code)
	}
	if got := body["normalized_value"]; got != "2500000000000000000" {
		t.Fatalf("normalized_value = %v, want 2.5e18", got)
	}

	code, _ = s.do(t, http.MethodPut, "/api/prices/USDC", adminKey, map[string]any{
		"price": "990000000000000000",
	})
	if code != http.StatusOK {
		t.Fatalf("update: code = %d, want 200", code)
	}

	if code, _ := s.do(t, http.MethodGet, "/api/prices/DOGE", adminKey, nil); code != http.StatusNotFound {
		t.Fatalf("get unknown: code = %d, want 404", code)
	}

	if code, _ := s.do(t, http.MethodDelete, "/api/prices/USDC", adminKey, nil); code != http.StatusOK {
		t.Fatalf("deactivate: code = %d, want 200", code)
	}
}

func TestWhitelistAndTuning(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, http.MethodPost, "/api/whitelist/assets", adminKey, map[string]any{"id": "WETH"})
	if code != http.StatusOK {
		t.Fatalf("add asset: code = %d, want 200", code)
	}
	code, _ = s.do(t, http.MethodPost, "/api/whitelist/venues", adminKey, map[string]any{"id": "v1"})
	if code != http.StatusOK {
		t.Fatalf("add venue: code = %d, want 200", code)
	}

	code, body := s.do(t, http.MethodGet, "/api/whitelist", adminKey, nil)
	if code != http.StatusOK {
		t.Fatalf("list: code = %d, want 200", code)
	}
	assets, _ := body["assets"].([]any)
	if len(assets) != 1 || assets[0] != "WETH" {
		t.Fatalf("assets = %v, want [WETH]", body["assets"])
	}

	code, _ = s.do(t, http.MethodDelete, "/api/whitelist/assets/WETH", adminKey, nil)
	if code != http.StatusOK {
		t.Fatalf("remove asset: code = %d, want 200", code)
	}
	code, _ = s.do(t, http.MethodDelete, "/api/whitelist/assets/WETH", adminKey, nil)
	if code != http.StatusNotFound {
		t.Fatalf("remove missing asset: code = %d, want 404", code)
	}

	code, _ = s.do(t, http.MethodPut, "/api/scanner/tuning", adminKey, map[string]any{
		"min_profit": "5000", "gas_price_wei": "2",
	})
	if code != http.StatusOK {
		t.Fatalf("tuning: code = %d, want 200", code)
	}
	code, _ = s.do(t, http.MethodPut, "/api/scanner/tuning", adminKey, map[string]any{
		"gas_price_wei": "0",
	})
	if code != http.StatusBadRequest {
		t.Fatalf("zero gas price: code = %d, want 400", code)
	}
}

func TestRiskAssessmentRoundTrip(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, http.MethodPut, "/api/risk/assessments", adminKey, map[string]any{
		"subject": "aave-v3", "score": 3, "confidence": 90, "assessor": "ops",
	})
	if code != http.StatusOK {
		t.Fatalf("set assessment: code = %d, want 200", code)
	}

	code, body := s.do(t, http.MethodGet, "/api/risk/assessments/aave-v3", adminKey, nil)
	if code != http.StatusOK {
		t.Fatalf("get assessment: code = %d, want 200", code)
	}
	if body["tier"] != "low" || body["valid"] != true {
		t.Fatalf("assessment = %v, want low/valid", body)
	}

	if code, _ := s.do(t, http.MethodGet, "/api/risk/assessments/unknown", adminKey, nil); code != http.StatusNotFound {
		t.Fatalf("unknown subject: code = %d, want 404", code)
	}

	code, _ = s.do(t, http.MethodPost, "/api/risk/emergency/aave-v3", adminKey, nil)
	if code != http.StatusOK {
		t.Fatalf("flag emergency: code = %d, want 200", code)
	}
	code, _ = s.do(t, http.MethodDelete, "/api/risk/emergency/aave-v3", adminKey, nil)
	if code != http.StatusOK {
		t.Fatalf("clear emergency: code = %d, want 200", code)
	}
}

func TestStrategyAndAllocationFlow(t *testing.T) {
	s := newTestServer(t)

	// Strategies only become eligible once the gate has approved them.
	for _, subject := range []string{"strat-a", "strat-b"} {
		code, _ := s.do(t, http.MethodPut, "/api/risk/assessments", adminKey, map[string]any{
			"subject": subject, "score": 2, "confidence": 95, "assessor": "ops",
		})
		if code != http.StatusOK {
			t.Fatalf("assess %s: code = %d, want 200", subject, code)
		}
	}

	register := func(id string, yieldBps int) {
		code, _ := s.do(t, http.MethodPost, "/api/strategies", adminKey, map[string]any{
			"id": id, "domain": "flow", "name": id, "protocol": "amm",
			"yield_rate_bps": yieldBps, "risk_score": 2,
			"tvl": "0", "max_capacity": "100000", "min_deposit": "1",
			"active": true,
		})
		if code != http.StatusCreated {
			t.Fatalf("register %s: code = %d, want 201", id, code)
		}
	}
	register("strat-a", 500)
	register("strat-b", 900)

	code, body := s.do(t, http.MethodPost, "/api/allocation/select", adminKey, map[string]any{
		"amount": "10000", "max_risk": 5,
	})
	if code != http.StatusOK {
		t.Fatalf("select: code = %d, want 200", code)
	}
	if body["strategy_id"] != "strat-b" {
		t.Fatalf("selected %v, want strat-b (higher yield)", body["strategy_id"])
	}

	code, body = s.do(t, http.MethodPost, "/api/allocation/plan", adminKey, map[string]any{
		"asset": "USDC", "total": "50000", "max_risk": 5,
	})
	if code != http.StatusOK {
		t.Fatalf("plan: code = %d, want 200", code)
	}
	entries, _ := body["entries"].([]any)
	if len(entries) != 2 {
		t.Fatalf("plan entries = %v, want split across both strategies", body["entries"])
	}

	code, body = s.do(t, http.MethodGet, "/api/allocation/USDC", adminKey, nil)
	if code != http.StatusOK {
		t.Fatalf("current allocation: code = %d, want 200", code)
	}
	if body["asset"] != "USDC" {
		t.Fatalf("allocation asset = %v, want USDC", body["asset"])
	}

	if code, _ := s.do(t, http.MethodGet, "/api/allocation/WETH", adminKey, nil); code != http.StatusNotFound {
		t.Fatalf("missing allocation: code = %d, want 404", code)
	}

	// An amount no eligible strategy can absorb maps to 422.
	code, _ = s.do(t, http.MethodPost, "/api/allocation/plan", adminKey, map[string]any{
		"asset": "USDC", "total": "100000000", "max_risk": 5,
	})
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("oversized plan: code = %d, want 422", code)
	}
}

func TestScanTrigger(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(t, http.MethodPost, "/api/scan/trigger", adminKey, nil)
	if code != http.StatusAccepted {
		t.Fatalf("trigger: code = %d, want 202", code)
	}
	if body["status"] != "accepted" {
		t.Fatalf("status = %v, want accepted", body["status"])
	}
	select {
	case <-s.trigger:
	default:
		t.Fatal("trigger channel did not receive a request")
	}
}

func TestScanTriggerRejectedWithoutLoop(t *testing.T) {
	h := handler.NewScanHandler(slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/scan/trigger", nil)
	h.TriggerScan(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("trigger without loop: code = %d, want 409", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] == nil {
		t.Fatal("expected error body explaining the mode limitation")
	}
}
