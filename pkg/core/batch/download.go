package batch

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"agentic_delist/pkg/core/agent"
	"agentic_delist/pkg/core/cninfo"
)

const defaultDownloadWorkers = 4

// Downloader bulk-fetches announcement PDFs into a directory, a few at
// a time so the portal is not hammered.
type Downloader struct {
	Source  agent.DocumentSource
	Dir     string
	Workers int
}

func (d *Downloader) workers() int {
	if d.Workers > 0 {
		return d.Workers
	}
	return defaultDownloadWorkers
}

// Fetch downloads every referenced document, naming files by
// announcement ID. Existing files are kept. Individual failures are
// logged and counted, not fatal.
func (d *Downloader) Fetch(ctx context.Context, docs []cninfo.DocumentRef) (saved, failed int, err error) {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return 0, 0, fmt.Errorf("create %s: %w", d.Dir, err)
	}

	var savedN, failedN atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers())

	for _, doc := range docs {
		g.Go(func() error {
			path := filepath.Join(d.Dir, doc.ID+".pdf")
			if _, err := os.Stat(path); err == nil {
				return nil
			}
			pdf, err := d.Source.DownloadPDF(ctx, doc.URL)
			if err != nil {
				log.Printf("[download] %s: %v", doc.ID, err)
				failedN.Add(1)
				return nil
			}
			if err := os.WriteFile(path, pdf, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			savedN.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(savedN.Load()), int(failedN.Load()), err
	}
	return int(savedN.Load()), int(failedN.Load()), nil
}
