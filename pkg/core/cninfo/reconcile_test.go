package cninfo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// scriptedServer serves canned query responses in request order, with
// the submitted form values recorded for assertions.
type scriptedServer struct {
	t *testing.T

	mu        sync.Mutex
	responses []scriptedResponse
	next      int
	forms     []map[string]string
}

type scriptedResponse struct {
	status int
	body   string
}

func (s *scriptedServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := r.ParseForm(); err != nil {
		s.t.Errorf("parse form: %v", err)
	}
	form := make(map[string]string)
	for k := range r.PostForm {
		form[k] = r.PostForm.Get(k)
	}
	s.forms = append(s.forms, form)

	if s.next >= len(s.responses) {
		s.t.Errorf("unexpected request %d: %v", s.next+1, form)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	resp := s.responses[s.next]
	s.next++
	if resp.status != 0 && resp.status != http.StatusOK {
		w.WriteHeader(resp.status)
		return
	}
	fmt.Fprint(w, resp.body)
}

func newScriptedClient(t *testing.T, responses []scriptedResponse) (*Client, *scriptedServer) {
	t.Helper()
	script := &scriptedServer{t: t, responses: responses}
	srv := httptest.NewServer(http.HandlerFunc(script.handle))
	t.Cleanup(srv.Close)

	c := NewClient(Config{Plate: "sz;sh", MaxRetries: 3})
	c.baseURL = srv.URL
	c.sleep = func(time.Duration) {}
	return c, script
}

// pageBody renders one query response with sequentially numbered
// announcement IDs in [from, to].
func pageBody(total int, hasMore bool, from, to int) string {
	var items []string
	for i := from; i <= to; i++ {
		items = append(items, fmt.Sprintf(
			`{"announcementId":"%d","secCode":"000001","secName":"测试股份","announcementTitle":"公告%d","announcementTime":1650000000000,"adjunctUrl":"finalpage/%d.PDF","announcementType":"0101"}`,
			i, i, i))
	}
	anns := "null"
	if to >= from {
		anns = "[" + strings.Join(items, ",") + "]"
	}
	return fmt.Sprintf(`{"announcements":%s,"totalAnnouncement":%d,"hasMore":%t}`, anns, total, hasMore)
}

func TestFetchWindowConvergesAcrossPasses(t *testing.T) {
	// First pass serves only 40 of the reported 45 records; the second
	// pass serves all of them. The fetch must not stop at 40.
	client, _ := newScriptedClient(t, []scriptedResponse{
		{body: pageBody(45, true, 1, 30)},
		{body: pageBody(45, false, 31, 40)},
		{body: pageBody(45, true, 1, 30)},
		{body: pageBody(45, false, 31, 45)},
	})

	records, err := client.FetchWindow(context.Background(), "2023-05-10~2023-05-10")
	if err != nil {
		t.Fatalf("FetchWindow: %v", err)
	}
	if len(records) != 45 {
		t.Fatalf("got %d records, want 45", len(records))
	}
	seen := make(map[string]bool)
	for _, rec := range records {
		if seen[rec.AnnouncementID] {
			t.Fatalf("duplicate id %s in result", rec.AnnouncementID)
		}
		seen[rec.AnnouncementID] = true
	}
}

func TestFetchWindowEmpty(t *testing.T) {
	client, _ := newScriptedClient(t, []scriptedResponse{
		{body: `{"announcements":null,"totalAnnouncement":0,"hasMore":false}`},
	})

	records, err := client.FetchWindow(context.Background(), "2023-01-01~2023-01-01")
	if err != nil {
		t.Fatalf("FetchWindow: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("got %d records, want 0", len(records))
	}
}

func TestFetchWindowUniqueExceedsTotal(t *testing.T) {
	client, _ := newScriptedClient(t, []scriptedResponse{
		{body: pageBody(30, true, 1, 30)},
		{body: pageBody(30, false, 31, 35)},
	})

	_, err := client.FetchWindow(context.Background(), "2023-05-10~2023-05-10")
	var integrity *IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("got %v, want IntegrityError", err)
	}
	if integrity.Unique != 35 || integrity.MaxTotal != 30 {
		t.Fatalf("got unique=%d maxTotal=%d, want 35/30", integrity.Unique, integrity.MaxTotal)
	}
}

func TestFetchWindowSplitsAboveCap(t *testing.T) {
	// Combined query reports 4000 results, above the per-query cap, so
	// each partition is fetched separately. The duplicate id across the
	// partitions must be dropped in the merge.
	client, script := newScriptedClient(t, []scriptedResponse{
		{body: pageBody(4000, true, 1, 30)}, // combined, triggers split
		{body: pageBody(2, false, 1, 2)},    // plate sz
		{body: pageBody(2, false, 2, 3)},    // plate sh
	})

	records, err := client.FetchWindow(context.Background(), "2023-05-10~2023-05-10")
	if err != nil {
		t.Fatalf("FetchWindow: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3 after merge", len(records))
	}

	script.mu.Lock()
	defer script.mu.Unlock()
	plates := []string{script.forms[0]["plate"], script.forms[1]["plate"], script.forms[2]["plate"]}
	want := []string{"sz;sh", "sz", "sh"}
	for i := range want {
		if plates[i] != want[i] {
			t.Fatalf("request %d plate = %q, want %q", i+1, plates[i], want[i])
		}
	}
}

func TestFetchWindowSplitsWhenTotalGrowsPastCap(t *testing.T) {
	// Pass 1 reports an under-cap total that its pages never reach, so
	// the reconciler retries. On pass 2 the server reports 4000: the
	// split must trigger then, not only on the first pass.
	client, script := newScriptedClient(t, []scriptedResponse{
		{body: pageBody(2500, false, 1, 30)}, // pass 1: incomplete
		{body: pageBody(4000, true, 1, 30)},  // pass 2: over the cap
		{body: pageBody(2, false, 1, 2)},     // plate sz
		{body: pageBody(1, false, 3, 3)},     // plate sh
	})

	records, err := client.FetchWindow(context.Background(), "2023-05-10~2023-05-10")
	if err != nil {
		t.Fatalf("FetchWindow: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}

	script.mu.Lock()
	defer script.mu.Unlock()
	plates := []string{script.forms[2]["plate"], script.forms[3]["plate"]}
	want := []string{"sz", "sh"}
	for i := range want {
		if plates[i] != want[i] {
			t.Fatalf("partition request %d plate = %q, want %q", i+1, plates[i], want[i])
		}
	}
}

func TestFetchWindowSplitSinglePartition(t *testing.T) {
	client, _ := newScriptedClient(t, []scriptedResponse{
		{body: pageBody(4000, true, 1, 30)},
	})
	client.cfg.Plate = "sz"

	_, err := client.FetchWindow(context.Background(), "2023-05-10~2023-05-10")
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("got %v, want ProtocolError", err)
	}
}

func TestFetchWindowGivesUpAfterMaxPasses(t *testing.T) {
	// Every pass re-serves the same 30 records while the server keeps
	// reporting 60. The repetition guard ends each pass and the
	// reconciler must eventually stop with a gap report.
	var responses []scriptedResponse
	for i := 0; i < maxMergeAttempts; i++ {
		responses = append(responses,
			scriptedResponse{body: pageBody(60, true, 1, 30)},
			scriptedResponse{body: pageBody(60, true, 1, 30)}, // repeated page ends the pass
		)
	}
	client, _ := newScriptedClient(t, responses)

	_, err := client.FetchWindow(context.Background(), "2023-05-10~2023-05-10")
	var convErr *ConvergenceError
	if !errors.As(err, &convErr) {
		t.Fatalf("got %v, want ConvergenceError", err)
	}
	if convErr.Unique != 30 || convErr.MaxTotal != 60 {
		t.Fatalf("got unique=%d maxTotal=%d, want 30/60", convErr.Unique, convErr.MaxTotal)
	}
}

func TestFetchPageRetriesTransientFailures(t *testing.T) {
	client, _ := newScriptedClient(t, []scriptedResponse{
		{status: http.StatusBadGateway},
		{status: http.StatusServiceUnavailable},
		{body: pageBody(1, false, 1, 1)},
	})

	records, err := client.FetchWindow(context.Background(), "2023-05-10~2023-05-10")
	if err != nil {
		t.Fatalf("FetchWindow: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
}

func TestFetchPageExhaustsRetries(t *testing.T) {
	client, _ := newScriptedClient(t, []scriptedResponse{
		{status: http.StatusBadGateway},
		{status: http.StatusBadGateway},
		{status: http.StatusBadGateway},
	})

	_, err := client.FetchWindow(context.Background(), "2023-05-10~2023-05-10")
	var transport *TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("got %v, want TransportError", err)
	}
	if transport.Attempts != 3 {
		t.Fatalf("got %d attempts, want 3", transport.Attempts)
	}
}

func TestFetchPageProtocolMismatchIsFatal(t *testing.T) {
	// A non-retryable decode failure must not be retried: exactly one
	// request is scripted.
	client, _ := newScriptedClient(t, []scriptedResponse{
		{body: `{"announcements":[],"hasMore":false}`},
	})

	_, err := client.FetchWindow(context.Background(), "2023-05-10~2023-05-10")
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("got %v, want ProtocolError", err)
	}
	if !strings.Contains(protoErr.Error(), "totalAnnouncement") {
		t.Fatalf("error does not name the missing field: %v", protoErr)
	}
}
