package pricing

import (
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/TroveFi/yieldrouter/internal/auth"
	"github.com/TroveFi/yieldrouter/internal/domain"
)

func newTestRegistry() *Registry {
	return NewRegistry(auth.Open(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegisterAndGet(t *testing.T) {
	r := newTestRegistry()
	if err := r.Register("op", "USDC", big.NewInt(1e18), 6); err != nil {
		t.Fatalf("register: %v", err)
	}
	rec, err := r.Get("USDC")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Price.Cmp(big.NewInt(1e18)) != 0 {
		t.Errorf("price = %s, want 1e18", rec.Price)
	}
	if rec.Decimals != 6 || !rec.Active {
		t.Errorf("record = %+v, want decimals 6 active", rec)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := newTestRegistry()
	if err := r.Register("op", "USDC", big.NewInt(1e18), 6); err != nil {
		t.Fatalf("register: %v", err)
	}
	err := r.Register("op", "USDC", big.NewInt(2e18), 6)
	if !errors.Is(err, domain.ErrDuplicateAsset) {
		t.Errorf("second register err = %v, want ErrDuplicateAsset", err)
	}
}

func TestRegisterReactivatesDeactivated(t *testing.T) {
	r := newTestRegistry()
	if err := r.Register("op", "USDC", big.NewInt(1e18), 6); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Deactivate("op", "USDC"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := r.Get("USDC"); !errors.Is(err, domain.ErrUnknownAsset) {
		t.Fatalf("get deactivated err = %v, want ErrUnknownAsset", err)
	}
	if err := r.Register("op", "USDC", big.NewInt(3e18), 8); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	rec, err := r.Get("USDC")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Price.Cmp(big.NewInt(3e18)) != 0 || rec.Decimals != 8 {
		t.Errorf("reactivated record = %+v, want fresh price and precision", rec)
	}
}

func TestRegisterRejectsNonPositivePrice(t *testing.T) {
	r := newTestRegistry()
	for _, p := range []*big.Int{nil, big.NewInt(0), big.NewInt(-5)} {
		if err := r.Register("op", "X", p, 18); !errors.Is(err, domain.ErrInvalidPrice) {
			t.Errorf("register price %v err = %v, want ErrInvalidPrice", p, err)
		}
	}
}

func TestUpdateUnknownAsset(t *testing.T) {
	r := newTestRegistry()
	if err := r.Update("op", "GHOST", big.NewInt(1)); !errors.Is(err, domain.ErrUnknownAsset) {
		t.Errorf("update err = %v, want ErrUnknownAsset", err)
	}
}

func TestUnauthorizedWrites(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRegistry(auth.NewTable(map[string]auth.Role{"viewer": auth.RoleViewer}), logger)
	if err := r.Register("viewer", "USDC", big.NewInt(1e18), 6); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("register by viewer err = %v, want ErrUnauthorized", err)
	}
	if err := r.Register("stranger", "USDC", big.NewInt(1e18), 6); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("register by unknown actor err = %v, want ErrUnauthorized", err)
	}
}

func TestBatchUpdatePartialApplication(t *testing.T) {
	r := newTestRegistry()
	if err := r.Register("op", "A", big.NewInt(100), 18); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("op", "B", big.NewInt(200), 18); err != nil {
		t.Fatal(err)
	}

	// "C" is unknown and B's price is invalid; only A applies.
	err := r.BatchUpdate("op",
		[]string{"A", "B", "C"},
		[]*big.Int{big.NewInt(150), big.NewInt(0), big.NewInt(300)},
	)
	if err != nil {
		t.Fatalf("batch update: %v", err)
	}
	a, _ := r.Get("A")
	if a.Price.Cmp(big.NewInt(150)) != 0 {
		t.Errorf("A price = %s, want 150", a.Price)
	}
	b, _ := r.Get("B")
	if b.Price.Cmp(big.NewInt(200)) != 0 {
		t.Errorf("B price = %s, want unchanged 200", b.Price)
	}
}

func TestBatchUpdateLengthMismatch(t *testing.T) {
	r := newTestRegistry()
	err := r.BatchUpdate("op", []string{"A", "B"}, []*big.Int{big.NewInt(1)})
	if !errors.Is(err, domain.ErrLengthMismatch) {
		t.Errorf("err = %v, want ErrLengthMismatch", err)
	}
}

func TestNormalizedValue(t *testing.T) {
	r := newTestRegistry()

	// 6-decimal asset priced at exactly 1 USD.
	if err := r.Register("op", "USDC", new(big.Int).Set(domain.PriceScale), 6); err != nil {
		t.Fatal(err)
	}
	// 2.5 USDC in native units.
	v, err := r.NormalizedValue("USDC", big.NewInt(2_500_000))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	want := new(big.Int).Mul(big.NewInt(25), new(big.Int).Quo(domain.PriceScale, big.NewInt(10)))
	if v.Cmp(want) != 0 {
		t.Errorf("value = %s, want %s", v, want)
	}

	// Precision above 18 scales down, truncating toward zero.
	if err := r.Register("op", "FINE", new(big.Int).Set(domain.PriceScale), 20); err != nil {
		t.Fatal(err)
	}
	v, err = r.NormalizedValue("FINE", big.NewInt(199))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if v.Cmp(big.NewInt(1)) != 0 {
		t.Errorf("value = %s, want 1 (floored)", v)
	}
}

func TestNormalizedValueRejectsNegative(t *testing.T) {
	r := newTestRegistry()
	if err := r.Register("op", "A", big.NewInt(1e18), 18); err != nil {
		t.Fatal(err)
	}
	if _, err := r.NormalizedValue("A", big.NewInt(-1)); !errors.Is(err, domain.ErrInvalidParameter) {
		t.Errorf("err = %v, want ErrInvalidParameter", err)
	}
}

func TestIsStale(t *testing.T) {
	r := newTestRegistry()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }
	if err := r.Register("op", "A", big.NewInt(1e18), 18); err != nil {
		t.Fatal(err)
	}

	r.now = func() time.Time { return base.Add(4 * time.Minute) }
	if r.IsStale("A", 5*time.Minute) {
		t.Error("record inside max age reported stale")
	}
	r.now = func() time.Time { return base.Add(6 * time.Minute) }
	if !r.IsStale("A", 5*time.Minute) {
		t.Error("record past max age not reported stale")
	}
	if !r.IsStale("GHOST", time.Hour) {
		t.Error("unknown asset not reported stale")
	}
}
