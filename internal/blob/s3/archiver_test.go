package s3blob

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/TroveFi/yieldrouter/internal/domain"
)

type fakeLister struct {
	opps []domain.Opportunity
}

func (f *fakeLister) ListBefore(ctx context.Context, before time.Time) ([]domain.Opportunity, error) {
	return f.opps, nil
}

// fakeWriter records every Put by key, so a test can tell overwrites apart
// from newly accumulated objects.
type fakeWriter struct {
	objects map[string][]byte
	puts    int
}

func (f *fakeWriter) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[key] = body
	f.puts++
	return nil
}

func testOpportunity(id string) domain.Opportunity {
	return domain.Opportunity{
		ID:         id,
		TokenA:     "USDC",
		TokenB:     "WETH",
		VenueBuy:   "v1",
		VenueSell:  "v2",
		Profit:     big.NewInt(500),
		AmountIn:   big.NewInt(1000),
		GasCost:    big.NewInt(100),
		Score:      big.NewInt(5),
		Valid:      true,
		DetectedAt: time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC),
	}
}

func TestArchiveKeyStablePerPeriod(t *testing.T) {
	lister := &fakeLister{opps: []domain.Opportunity{testOpportunity("a"), testOpportunity("b")}}
	writer := &fakeWriter{}
	arc := NewArchiver(lister, writer, slog.New(slog.NewTextHandler(io.Discard, nil)))

	cutoff := time.Date(2026, 8, 15, 6, 0, 0, 0, time.UTC)
	n, err := arc.Archive(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if n != 2 {
		t.Fatalf("archived %d rows, want 2", n)
	}

	// A later pass in the same period must overwrite the same object, not
	// add a new one.
	later := cutoff.Add(time.Hour)
	if _, err := arc.Archive(context.Background(), later); err != nil {
		t.Fatalf("second archive: %v", err)
	}
	if writer.puts != 2 {
		t.Fatalf("puts = %d, want 2", writer.puts)
	}
	if len(writer.objects) != 1 {
		t.Fatalf("distinct objects = %d, want 1 (stable key)", len(writer.objects))
	}

	body, ok := writer.objects["archive/opportunities/2026-08.jsonl"]
	if !ok {
		t.Fatalf("missing period-keyed object, have %v", keys(writer.objects))
	}
	if lines := bytes.Count(body, []byte("\n")); lines != 2 {
		t.Fatalf("object holds %d lines, want 2", lines)
	}
}

func TestArchiveEmptySkipsUpload(t *testing.T) {
	writer := &fakeWriter{}
	arc := NewArchiver(&fakeLister{}, writer, slog.New(slog.NewTextHandler(io.Discard, nil)))

	n, err := arc.Archive(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if n != 0 || writer.puts != 0 {
		t.Fatalf("n = %d puts = %d, want no upload for empty store", n, writer.puts)
	}
}

func keys(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
