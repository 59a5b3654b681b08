// Package crawl walks a date range one day at a time, fetching each
// day's announcements through the converging cninfo client, persisting
// the parsed rows, and advancing a watermark so an interrupted run can
// resume without gaps.
package crawl

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// ExpandDaily splits an inclusive date range into single-day windows in
// the "YYYY-MM-DD~YYYY-MM-DD" form the query API expects. Days after
// today (in the given location) are clipped off, so a range ending in
// the future yields windows only up to the current date.
func ExpandDaily(start, end string, now time.Time) ([]string, error) {
	s, err := time.ParseInLocation(dateLayout, start, now.Location())
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	e, err := time.ParseInLocation(dateLayout, end, now.Location())
	if err != nil {
		return nil, fmt.Errorf("invalid end date %q: %w", end, err)
	}
	if e.Before(s) {
		return nil, fmt.Errorf("end date %s before start date %s", end, start)
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if e.After(today) {
		e = today
	}

	var windows []string
	for d := s; !d.After(e); d = d.AddDate(0, 0, 1) {
		day := d.Format(dateLayout)
		windows = append(windows, day+"~"+day)
	}
	return windows, nil
}

// WindowDate extracts the day from a single-day window string.
func WindowDate(window string) string {
	if len(window) >= len(dateLayout) {
		return window[:len(dateLayout)]
	}
	return window
}
