package cninfo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var pdfMagic = []byte("%PDF")

// DownloadPDF fetches a document and verifies it actually is a PDF:
// HTTP 200, a PDF-indicating content type, and the %PDF magic bytes.
// Anything else is a protocol error; the source serves HTML error pages
// with status 200 often enough that trusting content type alone is not
// safe.
func (c *Client) DownloadPDF(ctx context.Context, docURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, docURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/pdf,*/*")
	req.Header.Set("User-Agent", baseHeaders["User-Agent"])
	req.Header.Set("Referer", "http://www.cninfo.com.cn/new/disclosure/stock")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", docURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ProtocolError{Op: "download",
			Msg: fmt.Sprintf("%s returned status %d", docURL, resp.StatusCode)}
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "pdf") {
		return nil, &ProtocolError{Op: "download",
			Msg: fmt.Sprintf("%s returned non-PDF content type %q", docURL, contentType)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", docURL, err)
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return nil, &ProtocolError{Op: "download",
			Msg: fmt.Sprintf("%s payload lacks %%PDF magic bytes", docURL)}
	}
	return data, nil
}
