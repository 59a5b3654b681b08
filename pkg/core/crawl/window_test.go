package crawl

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExpandDaily(t *testing.T) {
	now := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)

	windows, err := ExpandDaily("2023-05-30", "2023-06-01", now)
	if err != nil {
		t.Fatalf("ExpandDaily: %v", err)
	}
	want := []string{"2023-05-30~2023-05-30", "2023-05-31~2023-05-31", "2023-06-01~2023-06-01"}
	if len(windows) != len(want) {
		t.Fatalf("got %v", windows)
	}
	for i := range want {
		if windows[i] != want[i] {
			t.Errorf("window %d = %q, want %q", i, windows[i], want[i])
		}
	}
}

func TestExpandDailyClipsFuture(t *testing.T) {
	now := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	windows, err := ExpandDaily("2023-05-31", "2023-12-31", now)
	if err != nil {
		t.Fatalf("ExpandDaily: %v", err)
	}
	if len(windows) != 2 {
		t.Fatalf("got %d windows, want the 2 up to today", len(windows))
	}
	if last := windows[len(windows)-1]; last != "2023-06-01~2023-06-01" {
		t.Fatalf("last window = %q", last)
	}
}

func TestExpandDailyRejectsBadRanges(t *testing.T) {
	now := time.Now()
	if _, err := ExpandDaily("2023-06-02", "2023-06-01", now); err == nil {
		t.Error("reversed range must fail")
	}
	if _, err := ExpandDaily("01/06/2023", "2023-06-02", now); err == nil {
		t.Error("malformed date must fail")
	}
}

func TestWatermarkRoundTrip(t *testing.T) {
	mark := &Watermark{Path: filepath.Join(t.TempDir(), "crawl.watermark")}

	if date, err := mark.Load(); err != nil || date != "" {
		t.Fatalf("fresh load: date=%q err=%v", date, err)
	}
	if err := mark.Advance("2023-05-30"); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if date, err := mark.Load(); err != nil || date != "2023-05-30" {
		t.Fatalf("reload: date=%q err=%v", date, err)
	}
}

func TestWatermarkRejectsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawl.watermark")
	mark := &Watermark{Path: path}
	if err := mark.Advance("2023-05-30"); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("not a date\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := mark.Load(); err == nil {
		t.Fatal("corrupt watermark must be reported, not silently reset")
	}
}
