package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"testing"

	"github.com/TroveFi/yieldrouter/internal/domain"
)

type captureSender struct {
	name   string
	titles []string
	err    error
}

func (c *captureSender) Send(ctx context.Context, title, message string) error {
	if c.err != nil {
		return c.err
	}
	c.titles = append(c.titles, title)
	return nil
}

func (c *captureSender) Name() string { return c.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyEventFilter(t *testing.T) {
	s := &captureSender{name: "capture"}
	n := NewNotifier([]Sender{s}, []string{EventOpportunityFound}, testLogger())

	if err := n.Notify(context.Background(), EventOpportunityFound, "hit", "body"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if err := n.Notify(context.Background(), EventRebalanceSuggested, "filtered", "body"); err != nil {
		t.Fatalf("filtered notify: %v", err)
	}
	if len(s.titles) != 1 || s.titles[0] != "hit" {
		t.Errorf("delivered = %v, want only the allowed event", s.titles)
	}
}

func TestNotifyEmptyFilterAllowsAll(t *testing.T) {
	s := &captureSender{name: "capture"}
	n := NewNotifier([]Sender{s}, nil, testLogger())

	for _, ev := range []string{EventOpportunityFound, EventTriangularFound, EventEmergencyFlagged} {
		if err := n.Notify(context.Background(), ev, ev, "body"); err != nil {
			t.Fatalf("notify %s: %v", ev, err)
		}
	}
	if len(s.titles) != 3 {
		t.Errorf("delivered %d, want all 3", len(s.titles))
	}
}

func TestDispatchContinuesPastFailingSender(t *testing.T) {
	bad := &captureSender{name: "bad", err: errors.New("webhook 500")}
	good := &captureSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, testLogger())

	err := n.NotifyAll(context.Background(), "title", "body")
	if err == nil {
		t.Error("combined error missing despite a failed sender")
	} else if !strings.Contains(err.Error(), "bad") {
		t.Errorf("error = %v, want mention of the failing sender", err)
	}
	if len(good.titles) != 1 {
		t.Error("healthy sender skipped after another sender failed")
	}
}

func TestNotifyNoSenders(t *testing.T) {
	n := NewNotifier(nil, nil, testLogger())
	if err := n.NotifyAll(context.Background(), "t", "m"); err != nil {
		t.Errorf("no-sender notify returned %v", err)
	}
}

func TestFormatOpportunity(t *testing.T) {
	half := new(big.Int).Quo(domain.PriceScale, big.NewInt(2))
	o := &domain.Opportunity{
		TokenA:    "USDC",
		TokenB:    "WETH",
		VenueBuy:  "v1",
		VenueSell: "v2",
		Profit:    half,
		Score:     big.NewInt(42),
	}
	got := FormatOpportunity(o)
	for _, want := range []string{"USDC/WETH", "buy v1", "sell v2", "0.500000", "42"} {
		if !strings.Contains(got, want) {
			t.Errorf("formatted %q missing %q", got, want)
		}
	}
}

func TestFormatTriangular(t *testing.T) {
	o := &domain.TriangularOpportunity{
		TokenA:         "A",
		TokenB:         "B",
		TokenC:         "C",
		Venues:         []string{"v1", "v2", "v1"},
		ExpectedProfit: new(big.Int).Set(domain.PriceScale),
		Score:          big.NewInt(7),
	}
	got := FormatTriangular(o)
	for _, want := range []string{"A->B->C", "v1,v2,v1", "1.000000", "7"} {
		if !strings.Contains(got, want) {
			t.Errorf("formatted %q missing %q", got, want)
		}
	}
}
