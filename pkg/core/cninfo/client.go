// Package cninfo implements the client side of the cninfo disclosure
// query protocol: paged fetching with bounded retry, multi-pass
// convergence reconciliation, partition splitting above the per-query
// cap, per-stock listing and document download.
package cninfo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	queryURL        = "http://www.cninfo.com.cn/new/hisAnnouncement/query"
	topSearchURL    = "http://www.cninfo.com.cn/new/information/topSearch/query"
	staticURLPrefix = "http://static.cninfo.com.cn/"

	pageSize = 30

	// The query endpoint silently caps any single (window, partition)
	// query at 3000 results; windows reporting more must be split.
	apiMaxResults = 3000

	// Upper bound on reconciliation passes per (window, partition).
	maxMergeAttempts = 10
)

// Config carries the query parameters and pacing knobs of one client.
type Config struct {
	Category   string        // semicolon-joined category codes
	Plate      string        // semicolon-joined partition segments, e.g. "sz;sh"
	Trade      string        // optional industry filter
	MaxRetries int           // per-page transient retry bound
	RetryDelay time.Duration // fixed delay between transient retries
	Timeout    time.Duration // per-request timeout
	PageDelay  time.Duration // fixed delay between page requests
}

// DefaultConfig mirrors the pacing the source tolerates in practice.
func DefaultConfig() Config {
	return Config{
		Plate:      "sz;sh",
		MaxRetries: 5,
		RetryDelay: 5 * time.Second,
		Timeout:    15 * time.Second,
		PageDelay:  300 * time.Millisecond,
	}
}

// Client talks to the cninfo endpoints. All calls are sequential; the
// fixed delays are rate-limit courtesy, not a performance concern.
type Client struct {
	cfg  Config
	http *http.Client

	// sleep is swappable in tests so convergence scenarios run fast.
	sleep func(time.Duration)

	// baseURL overrides the production host in tests.
	baseURL string
}

func (c *Client) queryEndpoint() string {
	if c.baseURL != "" {
		return c.baseURL + "/new/hisAnnouncement/query"
	}
	return queryURL
}

func (c *Client) topSearchEndpoint() string {
	if c.baseURL != "" {
		return c.baseURL + "/new/information/topSearch/query"
	}
	return topSearchURL
}

func NewClient(cfg Config) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	return &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		sleep: time.Sleep,
	}
}

var baseHeaders = map[string]string{
	"Accept":           "*/*",
	"Accept-Language":  "zh-CN,zh;q=0.9",
	"Content-Type":     "application/x-www-form-urlencoded; charset=UTF-8",
	"Origin":           "http://www.cninfo.com.cn",
	"Referer":          "http://www.cninfo.com.cn/new/commonUrl/pageOfSearch?url=disclosure/list/search",
	"User-Agent":       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36",
	"X-Requested-With": "XMLHttpRequest",
}

func (c *Client) buildQuery(pageNum int, window, plate string) url.Values {
	return url.Values{
		"pageNum":   {strconv.Itoa(pageNum)},
		"pageSize":  {strconv.Itoa(pageSize)},
		"column":    {"szse"},
		"tabName":   {"fulltext"},
		"plate":     {plate},
		"searchkey": {""},
		"secid":     {""},
		"category":  {c.cfg.Category},
		"trade":     {c.cfg.Trade},
		"seDate":    {window},
		"sortName":  {"code"},
		"sortType":  {"asc"},
		"isHLtitle": {"false"},
	}
}

// postForm issues one form-encoded POST and returns the raw body.
// Transient failures (network errors, 5xx) are reported as retryable;
// any other non-200 status is terminal for the request.
func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, false, err
	}
	for k, v := range baseHeaders {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}
	if resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("server error: status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return body, false, nil
}

// fetchPage retrieves and decodes one page of one (window, partition)
// query. Transient failures are retried with a fixed delay up to the
// configured bound; decode failures are fatal immediately.
func (c *Client) fetchPage(ctx context.Context, pageNum int, window, plate string) (*page, error) {
	form := c.buildQuery(pageNum, window, plate)

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		body, retryable, err := c.postForm(ctx, c.queryEndpoint(), form)
		if err == nil {
			return decodePage(body, window, pageNum)
		}
		if !retryable {
			return nil, fmt.Errorf("fetch %s page %d: %w", window, pageNum, err)
		}
		lastErr = err
		if attempt < c.cfg.MaxRetries {
			c.sleep(c.cfg.RetryDelay)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, &TransportError{Window: window, Page: pageNum, Attempts: c.cfg.MaxRetries, Last: lastErr}
}

func splitTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
