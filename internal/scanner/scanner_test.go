package scanner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/TroveFi/yieldrouter/internal/auth"
	"github.com/TroveFi/yieldrouter/internal/domain"
	"github.com/TroveFi/yieldrouter/internal/venue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestScanner builds a scanner over a static source with two venues and
// the given assets whitelisted.
func newTestScanner(t *testing.T, cfg Config, assets ...string) (*Scanner, *venue.StaticSource) {
	t.Helper()
	src := venue.NewStaticSource()
	src.AddVenue(domain.VenueDescriptor{ID: "v1", Name: "Venue One", Active: true, GasOverhead: 100_000})
	src.AddVenue(domain.VenueDescriptor{ID: "v2", Name: "Venue Two", Active: true, GasOverhead: 150_000})

	s := New(src, auth.Open(), cfg, testLogger())
	for _, a := range assets {
		if err := s.AddAsset("op", a); err != nil {
			t.Fatalf("add asset %s: %v", a, err)
		}
	}
	for _, v := range []string{"v1", "v2"} {
		if err := s.AddVenue("op", v); err != nil {
			t.Fatalf("add venue %s: %v", v, err)
		}
	}
	return s, src
}

func TestScanDirectFindsSpread(t *testing.T) {
	cfg := Config{
		ProbeAmount: big.NewInt(1000),
		MinProfit:   big.NewInt(0),
		GasPriceWei: big.NewInt(1),
	}
	s, src := newTestScanner(t, cfg, "A", "B")
	// v1 converts A->B at par, v2 at double: enter on v1, exit on v2.
	src.SetRate("v1", "A", "B", 1, 1)
	src.SetRate("v2", "A", "B", 2, 1)

	opp, err := s.ScanDirect(context.Background(), nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if opp == nil {
		t.Fatal("no opportunity found")
	}
	if opp.VenueBuy != "v1" || opp.VenueSell != "v2" {
		t.Errorf("direction buy=%s sell=%s, want buy on the lower-rate venue v1, sell on v2",
			opp.VenueBuy, opp.VenueSell)
	}
	if opp.Profit.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("profit = %s, want 1000", opp.Profit)
	}
	wantGas := new(big.Int).SetUint64(250_000) // both venues' overhead at 1 wei
	if opp.GasCost.Cmp(wantGas) != 0 {
		t.Errorf("gas cost = %s, want %s", opp.GasCost, wantGas)
	}
	if !opp.Valid {
		t.Error("winning opportunity not marked valid")
	}
}

func TestScanDirectRespectsMinProfit(t *testing.T) {
	cfg := Config{
		ProbeAmount: big.NewInt(1000),
		MinProfit:   big.NewInt(1000), // profit must strictly exceed this
		GasPriceWei: big.NewInt(1),
	}
	s, src := newTestScanner(t, cfg, "A", "B")
	src.SetRate("v1", "A", "B", 1, 1)
	src.SetRate("v2", "A", "B", 2, 1) // profit exactly 1000, not above

	opp, err := s.ScanDirect(context.Background(), nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if opp != nil {
		t.Errorf("opportunity at threshold returned, want nil (profit %s)", opp.Profit)
	}
}

func TestScanDirectSkipsZeroCost(t *testing.T) {
	cfg := Config{
		ProbeAmount: big.NewInt(1000),
		GasPriceWei: big.NewInt(0), // cost estimate unavailable
	}
	s, src := newTestScanner(t, cfg, "A", "B")
	src.SetRate("v1", "A", "B", 1, 1)
	src.SetRate("v2", "A", "B", 3, 1)

	opp, err := s.ScanDirect(context.Background(), nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if opp != nil {
		t.Error("unrankable zero-cost candidate was returned")
	}
}

func TestScanDirectNoLiquidity(t *testing.T) {
	cfg := Config{ProbeAmount: big.NewInt(1000), GasPriceWei: big.NewInt(1)}
	s, _ := newTestScanner(t, cfg, "A", "B")
	// No rates set: every quote is zero.
	opp, err := s.ScanDirect(context.Background(), nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if opp != nil {
		t.Error("opportunity emitted with no liquidity anywhere")
	}
}

func TestScanDirectAbortsOnQuoteFailure(t *testing.T) {
	cfg := Config{ProbeAmount: big.NewInt(1000), GasPriceWei: big.NewInt(1)}
	s, src := newTestScanner(t, cfg, "A", "B")
	src.SetRate("v1", "A", "B", 1, 1)
	src.Fail(errors.New("rpc down"))

	_, err := s.ScanDirect(context.Background(), nil)
	if !errors.Is(err, domain.ErrQuoteUnavailable) {
		t.Errorf("err = %v, want ErrQuoteUnavailable", err)
	}
}

func TestScanDirectExplicitAssetFilter(t *testing.T) {
	cfg := Config{ProbeAmount: big.NewInt(1000), GasPriceWei: big.NewInt(1)}
	s, src := newTestScanner(t, cfg, "A", "B", "C")
	src.SetRate("v1", "A", "B", 1, 1)
	src.SetRate("v2", "A", "B", 2, 1)

	// The caller pre-filtered A out (stale); only B and C remain and they
	// have no route.
	opp, err := s.ScanDirect(context.Background(), []string{"B", "C"})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if opp != nil {
		t.Error("scan used the whitelist instead of the explicit asset set")
	}
}

func TestCheckPairRoundTrip(t *testing.T) {
	cfg := Config{ProbeAmount: big.NewInt(1000), GasPriceWei: big.NewInt(1)}
	s, src := newTestScanner(t, cfg, "A", "B")
	src.SetRate("v1", "A", "B", 2, 1) // 1000 -> 2000
	src.SetRate("v2", "B", "A", 3, 4) // 2000 -> 1500

	opp, err := s.CheckPair(context.Background(), "A", "B", "v1", "v2")
	if err != nil {
		t.Fatalf("check pair: %v", err)
	}
	if opp == nil {
		t.Fatal("round trip with 50% gain returned nil")
	}
	if opp.Profit.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("profit = %s, want 500", opp.Profit)
	}
}

func TestWhitelistMutationAuthz(t *testing.T) {
	src := venue.NewStaticSource()
	table := auth.NewTable(map[string]auth.Role{
		"admin":  auth.RoleAdmin,
		"viewer": auth.RoleViewer,
	})
	s := New(src, table, Config{}, testLogger())

	if err := s.AddAsset("viewer", "A"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("add by viewer err = %v, want ErrUnauthorized", err)
	}
	if err := s.AddAsset("admin", "A"); err != nil {
		t.Errorf("add by admin err = %v", err)
	}
	if err := s.RemoveAsset("admin", "GHOST"); !errors.Is(err, domain.ErrUnknownAsset) {
		t.Errorf("remove missing err = %v, want ErrUnknownAsset", err)
	}
	if err := s.SetMinProfit("viewer", big.NewInt(1)); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("set min profit by viewer err = %v, want ErrUnauthorized", err)
	}
	if err := s.SetGasPrice("admin", big.NewInt(0)); !errors.Is(err, domain.ErrInvalidParameter) {
		t.Errorf("zero gas price err = %v, want ErrInvalidParameter", err)
	}
}

func TestScanDirectRepeatable(t *testing.T) {
	cfg := Config{
		ProbeAmount:   big.NewInt(1000),
		MinProfit:     big.NewInt(0),
		GasPriceWei:   big.NewInt(1),
		MaxConcurrent: 4,
	}
	s, src := newTestScanner(t, cfg, "A", "B", "C")
	// Several profitable pairs so the winner depends on ranking, not on a
	// single candidate being the only choice.
	src.SetRate("v1", "A", "B", 1, 1)
	src.SetRate("v2", "A", "B", 2, 1)
	src.SetRate("v1", "A", "C", 3, 1)
	src.SetRate("v2", "A", "C", 4, 1)
	src.SetRate("v1", "B", "C", 1, 1)
	src.SetRate("v2", "B", "C", 1, 1)

	first, err := s.ScanDirect(context.Background(), nil)
	if err != nil {
		t.Fatalf("first scan: %v", err)
	}
	if first == nil {
		t.Fatal("first scan found nothing")
	}

	// Same snapshot, same winner: the pass must be a pure function of its
	// inputs regardless of probe scheduling.
	for i := 0; i < 5; i++ {
		again, err := s.ScanDirect(context.Background(), nil)
		if err != nil {
			t.Fatalf("scan %d: %v", i+2, err)
		}
		if again == nil {
			t.Fatalf("scan %d found nothing", i+2)
		}
		if again.TokenA != first.TokenA || again.TokenB != first.TokenB {
			t.Fatalf("scan %d pair = %s/%s, first was %s/%s",
				i+2, again.TokenA, again.TokenB, first.TokenA, first.TokenB)
		}
		if again.VenueBuy != first.VenueBuy || again.VenueSell != first.VenueSell {
			t.Fatalf("scan %d venues = %s/%s, first was %s/%s",
				i+2, again.VenueBuy, again.VenueSell, first.VenueBuy, first.VenueSell)
		}
		if again.Profit.Cmp(first.Profit) != 0 || again.Score.Cmp(first.Score) != 0 {
			t.Fatalf("scan %d profit/score = %s/%s, first was %s/%s",
				i+2, again.Profit, again.Score, first.Profit, first.Score)
		}
	}
}
