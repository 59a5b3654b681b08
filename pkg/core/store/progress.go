package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

const maxErrorNote = 200

// Progress tracks per-subject batch status in a JSON file so an
// interrupted batch run can skip subjects that already finished.
type Progress struct {
	Path string

	mu      sync.Mutex
	entries map[string]string
}

// LoadProgress reads an existing progress file, or starts empty.
func LoadProgress(path string) (*Progress, error) {
	p := &Progress{Path: path, entries: make(map[string]string)}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read progress %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &p.entries); err != nil {
		return nil, fmt.Errorf("corrupt progress %s: %w", path, err)
	}
	return p, nil
}

// Status returns the recorded status for a subject code, "" when unseen.
func (p *Progress) Status(code string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.entries[code]
}

// Done reports whether a subject already completed (DONE or SKIPPED).
func (p *Progress) Done(code string) bool {
	s := p.Status(code)
	return s == "DONE" || s == "SKIPPED"
}

// Set records a status and persists the whole map immediately. Error
// notes are truncated so one giant stack trace cannot bloat the file.
func (p *Progress) Set(code, status string) error {
	if r := []rune(status); len(r) > maxErrorNote {
		status = string(r[:maxErrorNote])
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[code] = status

	data, err := json.MarshalIndent(p.entries, "", "  ")
	if err != nil {
		return err
	}
	tmp := p.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write progress: %w", err)
	}
	if err := os.Rename(tmp, p.Path); err != nil {
		return fmt.Errorf("commit progress: %w", err)
	}
	return nil
}
