package cninfo

import (
	"context"
	"log"
)

// errSplitNeeded is the internal signal that a window's reported total
// exceeds the per-query cap and must be served per partition instead.
type errSplitNeeded struct{ total int }

func (e errSplitNeeded) Error() string { return "window exceeds per-query cap" }

// fetchPass runs one full traversal of all pages for (window, plate),
// merging every observed record into shared. It returns the maximum
// reported total seen on any page of the pass.
//
// The pass stops early when a page's identifier set is a subset of
// identifiers already seen earlier in the same pass: under load the API
// has been observed to re-serve a page forever, and without this guard a
// pass would never terminate.
func (c *Client) fetchPass(ctx context.Context, window, plate string, shared map[string]RawAnnouncement, checkSplit bool) (int, error) {
	maxTotal := 0
	seenThisPass := make(map[string]struct{})

	for pageNum := 1; ; pageNum++ {
		p, err := c.fetchPage(ctx, pageNum, window, plate)
		if err != nil {
			return 0, err
		}

		if p.Total > maxTotal {
			maxTotal = p.Total
		}
		if pageNum == 1 {
			if p.Total == 0 {
				return 0, nil
			}
			if checkSplit && p.Total > apiMaxResults {
				return 0, errSplitNeeded{total: p.Total}
			}
		}

		if p.NilAnnouncements || len(p.Announcements) == 0 {
			break
		}

		pageIDs := make(map[string]struct{}, len(p.Announcements))
		for _, ann := range p.Announcements {
			if ann.AnnouncementID == "" {
				continue
			}
			pageIDs[ann.AnnouncementID] = struct{}{}
			if _, ok := shared[ann.AnnouncementID]; !ok {
				shared[ann.AnnouncementID] = ann
			}
		}

		if len(pageIDs) > 0 && subset(pageIDs, seenThisPass) {
			log.Printf("cninfo: %s (plate=%s) page %d fully repeated, ending pass", window, plate, pageNum)
			break
		}
		for id := range pageIDs {
			seenThisPass[id] = struct{}{}
		}

		if !p.HasMore {
			break
		}
		c.sleep(c.cfg.PageDelay)
	}
	return maxTotal, nil
}

func subset(a, b map[string]struct{}) bool {
	for id := range a {
		if _, ok := b[id]; !ok {
			return false
		}
	}
	return true
}

// fetchConverged runs repeated passes over (window, plate) until the
// unique record count equals the maximum total the server has reported
// across all passes. The reported total is flaky under the source's own
// caching, so no single value of it is trusted; equality across the
// running maximum is the only accepted completion signal.
func (c *Client) fetchConverged(ctx context.Context, window, plate string, checkSplit bool) ([]RawAnnouncement, error) {
	records := make(map[string]RawAnnouncement)
	maxTotal := 0

	for attempt := 1; attempt <= maxMergeAttempts; attempt++ {
		// The reported total can jump above the cap on any pass, not
		// just the first; splitting then beats exhausting the budget.
		passTotal, err := c.fetchPass(ctx, window, plate, records, checkSplit)
		if err != nil {
			if _, split := err.(errSplitNeeded); split {
				return c.fetchBySplitPlates(ctx, window)
			}
			return nil, err
		}
		if passTotal > maxTotal {
			maxTotal = passTotal
		}

		if maxTotal == 0 {
			log.Printf("cninfo: %s (plate=%s) has no announcements", window, plate)
			return nil, nil
		}

		unique := len(records)
		if unique > maxTotal {
			return nil, &IntegrityError{Window: window, Partition: plate, Unique: unique, MaxTotal: maxTotal}
		}
		if unique == maxTotal {
			if attempt > 1 {
				log.Printf("cninfo: %s (plate=%s) converged after %d passes, %d records", window, plate, attempt, unique)
			}
			return values(records), nil
		}

		log.Printf("cninfo: %s (plate=%s) pass %d incomplete, unique %d/%d, retrying",
			window, plate, attempt, unique, maxTotal)
		c.sleep(c.cfg.PageDelay)
	}

	return nil, &ConvergenceError{
		Window: window, Partition: plate,
		Attempts: maxMergeAttempts, Unique: len(records), MaxTotal: maxTotal,
	}
}

func values(m map[string]RawAnnouncement) []RawAnnouncement {
	out := make([]RawAnnouncement, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

// fetchBySplitPlates serves an over-cap window by querying each
// configured partition segment separately and merging by identifier.
// Duplicates across partitions are not expected but are dropped anyway.
func (c *Client) fetchBySplitPlates(ctx context.Context, window string) ([]RawAnnouncement, error) {
	plates := splitPlates(c.cfg.Plate)
	if len(plates) <= 1 {
		return nil, &ProtocolError{Op: "split", Window: window,
			Msg: "window exceeds the per-query cap but only one partition is configured"}
	}

	var merged []RawAnnouncement
	seen := make(map[string]struct{})

	for _, plate := range plates {
		log.Printf("cninfo: %s partition query plate=%s", window, plate)
		part, err := c.fetchConverged(ctx, window, plate, false)
		if err != nil {
			return nil, err
		}
		for _, ann := range part {
			if _, ok := seen[ann.AnnouncementID]; ok {
				continue
			}
			seen[ann.AnnouncementID] = struct{}{}
			merged = append(merged, ann)
		}
		log.Printf("cninfo: %s plate=%s yielded %d records, merged %d", window, plate, len(part), len(merged))
	}
	return merged, nil
}

func splitPlates(plate string) []string {
	var out []string
	for _, p := range splitTrim(plate, ";") {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// FetchWindow returns the complete deduplicated record set for one date
// window, splitting by partition when the reported total exceeds the
// per-query cap.
func (c *Client) FetchWindow(ctx context.Context, window string) ([]RawAnnouncement, error) {
	return c.fetchConverged(ctx, window, c.cfg.Plate, true)
}
