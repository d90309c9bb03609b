package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/TroveFi/yieldrouter/internal/domain"
)

// agedOpportunityLister is the slice of the opportunity store the archiver
// needs: everything detected before a cutoff.
type agedOpportunityLister interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Opportunity, error)
}

// Archiver moves aged opportunity rows into blob storage as JSONL objects.
// It does not delete rows; retention in the database is a separate concern.
type Archiver struct {
	store  agedOpportunityLister
	writer domain.BlobWriter
	logger *slog.Logger
}

func NewArchiver(store agedOpportunityLister, writer domain.BlobWriter, logger *slog.Logger) *Archiver {
	return &Archiver{
		store:  store,
		writer: writer,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// Archive serializes every opportunity detected before the cutoff into a
// single JSONL object keyed by the cutoff's year-month. The key is stable per
// period, so a repeated pass overwrites the previous object with a superset
// instead of accumulating duplicates. Returns the number of rows archived;
// zero rows uploads nothing.
func (a *Archiver) Archive(ctx context.Context, before time.Time) (int, error) {
	opps, err := a.store.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("archiver: list aged: %w", err)
	}
	if len(opps) == 0 {
		a.logger.DebugContext(ctx, "nothing to archive", slog.Time("before", before))
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range opps {
		if err := enc.Encode(&opps[i]); err != nil {
			return 0, fmt.Errorf("archiver: encode %s: %w", opps[i].ID, err)
		}
	}

	key := archivePath(before)
	if err := a.writer.Put(ctx, key, buf.Bytes(), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("archiver: upload %s: %w", key, err)
	}

	a.logger.InfoContext(ctx, "archived opportunities",
		slog.String("key", key),
		slog.Int("count", len(opps)),
	)
	return len(opps), nil
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff time:
//
//	archive/opportunities/2026-08.jsonl
func archivePath(before time.Time) string {
	return fmt.Sprintf("archive/opportunities/%s.jsonl", before.UTC().Format("2006-01"))
}
