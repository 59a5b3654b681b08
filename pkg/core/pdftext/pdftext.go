// Package pdftext validates downloaded announcement PDFs and extracts
// their text through the poppler pdftotext binary.
package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

const (
	defaultTimeout = 60 * time.Second
	defaultMaxPage = 40
)

// Extractor turns PDF bytes into plain text. It satisfies the analysis
// loop's TextExtractor interface.
type Extractor struct {
	Timeout time.Duration
	MaxPage int // last page handed to pdftotext; 0 means defaultMaxPage
}

func (e *Extractor) timeout() time.Duration {
	if e.Timeout > 0 {
		return e.Timeout
	}
	return defaultTimeout
}

func (e *Extractor) maxPage() int {
	if e.MaxPage > 0 {
		return e.MaxPage
	}
	return defaultMaxPage
}

// Validate checks that the bytes parse as a real PDF before any further
// processing. Truncated downloads and HTML error pages fail here.
func Validate(pdf []byte) error {
	conf := model.NewDefaultConfiguration()
	if err := api.Validate(bytes.NewReader(pdf), conf); err != nil {
		return fmt.Errorf("not a valid PDF: %w", err)
	}
	return nil
}

// ExtractText validates the PDF and runs pdftotext over it, capped at
// MaxPage pages. Announcements are short; anything past the cap is
// boilerplate attachments.
func (e *Extractor) ExtractText(ctx context.Context, pdf []byte) (string, error) {
	if err := Validate(pdf); err != nil {
		return "", err
	}

	tmpFile, err := os.CreateTemp("", "cninfo_pdf_*.pdf")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpFileName := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpFileName)

	if err := os.WriteFile(tmpFileName, pdf, 0o644); err != nil {
		return "", fmt.Errorf("failed to write PDF bytes to temp file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()

	cmd := exec.CommandContext(ctx, "pdftotext", "-raw",
		"-l", strconv.Itoa(e.maxPage()), tmpFileName, "-")

	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		errMsg := strings.TrimSpace(stderr.String())
		if strings.Contains(err.Error(), "executable file not found") {
			return "", fmt.Errorf("pdftotext binary not found, install poppler-utils: %w", err)
		}
		return "", fmt.Errorf("pdftotext failed: %v (stderr: %s)", err, errMsg)
	}

	text := out.String()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("pdftotext extracted empty text, file may be image-based or protected")
	}
	return text, nil
}
