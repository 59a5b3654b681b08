package crawl

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Watermark records the last fully persisted crawl day in a small text
// file. It is written only after a day's rows are on disk, so a crash
// between fetch and write re-fetches that day instead of skipping it.
type Watermark struct {
	Path string
}

// Load returns the recorded date, or "" when no watermark exists yet.
func (w *Watermark) Load() (string, error) {
	data, err := os.ReadFile(w.Path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read watermark %s: %w", w.Path, err)
	}
	date := strings.TrimSpace(string(data))
	if date == "" {
		return "", nil
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		return "", fmt.Errorf("corrupt watermark %s: %q", w.Path, date)
	}
	return date, nil
}

// Advance records date as completed. The write goes through a temp file
// and rename so a crash never leaves a half-written watermark.
func (w *Watermark) Advance(date string) error {
	tmp := w.Path + ".tmp"
	if err := os.WriteFile(tmp, []byte(date+"\n"), 0o644); err != nil {
		return fmt.Errorf("write watermark: %w", err)
	}
	if err := os.Rename(tmp, w.Path); err != nil {
		return fmt.Errorf("commit watermark: %w", err)
	}
	return nil
}
