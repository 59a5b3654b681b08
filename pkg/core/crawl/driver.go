package crawl

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"agentic_delist/pkg/core/cninfo"
	"agentic_delist/pkg/core/parse"
)

// WindowFetcher fetches every announcement in one date window.
// *cninfo.Client satisfies it.
type WindowFetcher interface {
	FetchWindow(ctx context.Context, window string) ([]cninfo.RawAnnouncement, error)
}

// RecordSink persists a batch of normalized records.
type RecordSink interface {
	Append(records []*parse.Record) error
}

// Driver owns one resumable crawl over a date range.
type Driver struct {
	Fetcher WindowFetcher
	Sink    RecordSink
	Mark    *Watermark

	WindowDelay     time.Duration
	ExcludeKeywords []string

	// Now is swappable in tests; defaults to time.Now.
	Now func() time.Time
}

func (d *Driver) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Run crawls every day from start to end inclusive, resuming after the
// watermark when one exists. A window's rows reach the sink before its
// watermark advances; any window error aborts the run so the next
// invocation retries from the failed day.
func (d *Driver) Run(ctx context.Context, start, end string) error {
	runID := uuid.New().String()

	windows, err := ExpandDaily(start, end, d.now())
	if err != nil {
		return err
	}

	resumeAfter, err := d.Mark.Load()
	if err != nil {
		return err
	}
	if resumeAfter != "" {
		log.Printf("[crawl %s] resuming after %s", runID, resumeAfter)
	}

	var fetched, kept, filtered int
	for _, window := range windows {
		day := WindowDate(window)
		if resumeAfter != "" && day <= resumeAfter {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		raws, err := d.Fetcher.FetchWindow(ctx, window)
		if err != nil {
			return fmt.Errorf("window %s: %w", window, err)
		}
		fetched += len(raws)

		records := make([]*parse.Record, 0, len(raws))
		for _, raw := range raws {
			rec, skip, err := parse.Normalize(raw, d.ExcludeKeywords)
			if err != nil {
				return fmt.Errorf("window %s: %w", window, err)
			}
			if skip {
				filtered++
				continue
			}
			records = append(records, rec)
		}

		if err := d.Sink.Append(records); err != nil {
			return fmt.Errorf("window %s: persist: %w", window, err)
		}
		if err := d.Mark.Advance(day); err != nil {
			return fmt.Errorf("window %s: %w", window, err)
		}
		kept += len(records)
		log.Printf("[crawl %s] %s: %d fetched, %d kept", runID, day, len(raws), len(records))

		if d.WindowDelay > 0 {
			select {
			case <-time.After(d.WindowDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	log.Printf("[crawl %s] done: %d fetched, %d kept, %d filtered", runID, fetched, kept, filtered)
	return nil
}
