package cninfo

import (
	"encoding/json"
	"fmt"
)

// RawAnnouncement is one disclosure item exactly as the query endpoint
// returns it. Fields are kept raw here; pkg/core/parse owns normalization.
type RawAnnouncement struct {
	AnnouncementID    string          `json:"announcementId"`
	SecCode           string          `json:"secCode"`
	SecName           string          `json:"secName"`
	AnnouncementTitle string          `json:"announcementTitle"`
	AnnouncementTime  json.RawMessage `json:"announcementTime"`
	AdjunctURL        string          `json:"adjunctUrl"`
	AnnouncementType  string          `json:"announcementType"`
}

// DocumentRef is the compact view of an announcement handed to the
// extraction loop: enough to list, cite and fetch the document.
type DocumentRef struct {
	ID      string `json:"id"`
	Date    string `json:"date"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	SecName string `json:"secName"`
}

// page is one decoded response of the query endpoint. announcements,
// totalAnnouncement and hasMore are all contractual; their absence is a
// protocol mismatch, not an empty result.
type page struct {
	Announcements []RawAnnouncement
	Total         int
	HasMore       bool
	// NilAnnouncements distinguishes an explicit null list (end of data)
	// from a present-but-empty one.
	NilAnnouncements bool
}

// decodePage enforces the response shape strictly. The upstream API has
// been observed to degrade into HTML error pages and truncated payloads
// under load; silently tolerating a missing field would turn a data-shape
// regression into quietly incomplete output.
func decodePage(body []byte, window string, pageNum int) (*page, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, &ProtocolError{Op: "decode", Window: window, Page: pageNum,
			Msg: fmt.Sprintf("response is not a JSON object: %v (first bytes: %.120s)", err, body)}
	}

	rawTotal, ok := fields["totalAnnouncement"]
	if !ok {
		return nil, &ProtocolError{Op: "decode", Window: window, Page: pageNum,
			Msg: "missing totalAnnouncement field"}
	}
	var total int
	if err := json.Unmarshal(rawTotal, &total); err != nil {
		return nil, &ProtocolError{Op: "decode", Window: window, Page: pageNum,
			Msg: fmt.Sprintf("totalAnnouncement is not an integer: %s", rawTotal)}
	}

	rawHasMore, ok := fields["hasMore"]
	if !ok {
		return nil, &ProtocolError{Op: "decode", Window: window, Page: pageNum,
			Msg: "missing hasMore field"}
	}
	var hasMore bool
	if err := json.Unmarshal(rawHasMore, &hasMore); err != nil {
		return nil, &ProtocolError{Op: "decode", Window: window, Page: pageNum,
			Msg: fmt.Sprintf("hasMore is not a boolean: %s", rawHasMore)}
	}

	rawAnns, ok := fields["announcements"]
	if !ok {
		return nil, &ProtocolError{Op: "decode", Window: window, Page: pageNum,
			Msg: "missing announcements field"}
	}

	p := &page{Total: total, HasMore: hasMore}
	if string(rawAnns) == "null" {
		p.NilAnnouncements = true
		return p, nil
	}
	if err := json.Unmarshal(rawAnns, &p.Announcements); err != nil {
		return nil, &ProtocolError{Op: "decode", Window: window, Page: pageNum,
			Msg: fmt.Sprintf("announcements is not a list: %v", err)}
	}
	return p, nil
}
