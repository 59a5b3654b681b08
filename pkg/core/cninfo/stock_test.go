package cninfo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestResolveOrgIDConstructedFallback(t *testing.T) {
	// topSearch returning garbage must not break the listing; the
	// constructed identifier carries it.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>busy</html>")
	}))
	t.Cleanup(srv.Close)

	client := NewClient(DefaultConfig())
	client.baseURL = srv.URL
	client.sleep = func(time.Duration) {}

	cases := []struct {
		code, want string
	}{
		{"600519", "gssh0600519"},
		{"000001", "gssz0000001"},
		{"300750", "gssz0300750"},
		{"830799", "gsbj0830799"},
	}
	for _, tc := range cases {
		if got := client.resolveOrgID(context.Background(), tc.code); got != tc.want {
			t.Errorf("resolveOrgID(%s) = %q, want %q", tc.code, got, tc.want)
		}
	}
}

func TestResolveOrgIDPrefersTopSearchHit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"code":"000002","orgId":"other"},{"code":"600519","orgId":"9900001213"}]`)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(DefaultConfig())
	client.baseURL = srv.URL

	if got := client.resolveOrgID(context.Background(), "600519"); got != "9900001213" {
		t.Fatalf("resolveOrgID = %q, want the topSearch orgId", got)
	}
}

func TestListAnnouncements(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if strings.HasSuffix(r.URL.Path, "/topSearch/query") {
			fmt.Fprint(w, `[{"code":"000001","orgId":"gssz0000001"}]`)
			return
		}
		if got := r.PostForm.Get("stock"); got != "000001,gssz0000001" {
			t.Errorf("stock param = %q", got)
		}
		if got := r.PostForm.Get("sortName"); got != "time" {
			t.Errorf("sortName = %q, want time", got)
		}
		// 2023-05-09 16:00 UTC is 2023-05-10 in the source timezone.
		fmt.Fprint(w, `{
			"announcements":[
				{"announcementId":"99","secCode":"000001","secName":"测试股份","announcementTitle":"关于终止上市的公告","announcementTime":1683648000000,"adjunctUrl":"finalpage/99.PDF","announcementType":"0101"}
			],
			"totalAnnouncement":1,"hasMore":false}`)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(DefaultConfig())
	client.baseURL = srv.URL
	client.sleep = func(time.Duration) {}

	docs, err := client.ListAnnouncements(context.Background(), "000001", "终止上市", 10, "2022-01-01~2023-06-01")
	if err != nil {
		t.Fatalf("ListAnnouncements: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("got %d docs, want 1", len(docs))
	}
	doc := docs[0]
	if doc.ID != "99" || doc.Title != "关于终止上市的公告" {
		t.Fatalf("unexpected doc: %+v", doc)
	}
	if doc.Date != "2023-05-10" {
		t.Fatalf("date = %q, want source-timezone 2023-05-10", doc.Date)
	}
	if doc.URL != "http://static.cninfo.com.cn/finalpage/99.PDF" {
		t.Fatalf("url = %q", doc.URL)
	}
}

func TestListAnnouncementsPartialOnTransientFailure(t *testing.T) {
	var queryCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/topSearch/query") {
			fmt.Fprint(w, `[]`)
			return
		}
		queryCalls++
		if queryCalls == 1 {
			fmt.Fprint(w, pageBody(60, true, 1, 30))
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(Config{Plate: "sz;sh", MaxRetries: 2})
	client.baseURL = srv.URL
	client.sleep = func(time.Duration) {}

	docs, err := client.ListAnnouncements(context.Background(), "000001", "", 50, "")
	if err != nil {
		t.Fatalf("ListAnnouncements: %v", err)
	}
	if len(docs) != 30 {
		t.Fatalf("got %d docs, want the 30 from the page that succeeded", len(docs))
	}
}

func TestDownloadPDF(t *testing.T) {
	pdfBytes := []byte("%PDF-1.4 fake body")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/good.pdf":
			w.Header().Set("Content-Type", "application/pdf")
			w.Write(pdfBytes)
		case "/html.pdf":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, "<html>rate limited</html>")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	client := NewClient(DefaultConfig())

	got, err := client.DownloadPDF(context.Background(), srv.URL+"/good.pdf")
	if err != nil {
		t.Fatalf("DownloadPDF: %v", err)
	}
	if string(got) != string(pdfBytes) {
		t.Fatalf("body mismatch")
	}

	var protoErr *ProtocolError
	if _, err := client.DownloadPDF(context.Background(), srv.URL+"/html.pdf"); !errors.As(err, &protoErr) {
		t.Fatalf("HTML payload: got %v, want ProtocolError", err)
	}
	if _, err := client.DownloadPDF(context.Background(), srv.URL+"/missing.pdf"); err == nil {
		t.Fatal("404 should fail")
	}
}

func TestDecodePage(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"not json", `<html></html>`, "not a JSON object"},
		{"missing total", `{"announcements":null,"hasMore":false}`, "totalAnnouncement"},
		{"missing hasMore", `{"announcements":null,"totalAnnouncement":3}`, "hasMore"},
		{"missing announcements", `{"totalAnnouncement":3,"hasMore":false}`, "announcements"},
		{"total not int", `{"announcements":null,"totalAnnouncement":"3","hasMore":false}`, "not an integer"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := decodePage([]byte(tc.body), "2023-01-01~2023-01-01", 1)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("got %v, want mention of %q", err, tc.wantErr)
			}
		})
	}

	p, err := decodePage([]byte(`{"announcements":null,"totalAnnouncement":0,"hasMore":false}`), "w", 1)
	if err != nil {
		t.Fatalf("null announcements should decode: %v", err)
	}
	if !p.NilAnnouncements {
		t.Fatal("null list not flagged")
	}
}
