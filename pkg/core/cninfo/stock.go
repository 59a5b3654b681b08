package cninfo

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// sourceTZ is the exchange's home timezone. Announcement timestamps are
// epoch milliseconds and only meaningful in this zone.
var sourceTZ = mustLoadLocation("Asia/Shanghai")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("cninfo: load timezone %s: %v", name, err))
	}
	return loc
}

// resolveOrgID finds the source's stable organisation identifier for a
// stock code. The constructed form is a reliable fallback; the topSearch
// endpoint is consulted to confirm when reachable.
func (c *Client) resolveOrgID(ctx context.Context, stockCode string) string {
	var constructed string
	switch {
	case strings.HasPrefix(stockCode, "6"):
		constructed = "gssh0" + stockCode
	case strings.HasPrefix(stockCode, "0"), strings.HasPrefix(stockCode, "3"):
		constructed = "gssz0" + stockCode
	case strings.HasPrefix(stockCode, "8"), strings.HasPrefix(stockCode, "4"):
		constructed = "gsbj0" + stockCode
	default:
		constructed = "gssz0" + stockCode
	}

	body, _, err := c.postForm(ctx, c.topSearchEndpoint(), url.Values{"keyWord": {stockCode}})
	if err != nil {
		return constructed
	}
	var hits []struct {
		Code  string `json:"code"`
		OrgID string `json:"orgId"`
	}
	if err := json.Unmarshal(body, &hits); err != nil {
		return constructed
	}
	for _, hit := range hits {
		if hit.Code == stockCode && hit.OrgID != "" {
			return hit.OrgID
		}
	}
	return constructed
}

// ListAnnouncements returns up to limit announcements for one stock,
// newest first, optionally keyword-filtered and bounded to dateRange
// (`YYYY-MM-DD~YYYY-MM-DD`). The date bound is how the extraction loop
// enforces point-in-time discipline: documents after the subject's
// reference date are never offered to it.
func (c *Client) ListAnnouncements(ctx context.Context, stockCode, keyword string, limit int, dateRange string) ([]DocumentRef, error) {
	if limit <= 0 {
		limit = 30
	}
	orgID := c.resolveOrgID(ctx, stockCode)

	var refs []DocumentRef
	for pageNum := 1; len(refs) < limit; pageNum++ {
		form := url.Values{
			"pageNum":   {strconv.Itoa(pageNum)},
			"pageSize":  {strconv.Itoa(pageSize)},
			"column":    {"szse"},
			"tabName":   {"fulltext"},
			"stock":     {stockCode + "," + orgID},
			"searchkey": {keyword},
			"category":  {""},
			"seDate":    {dateRange},
			"sortName":  {"time"},
			"sortType":  {"desc"},
			"isHLtitle": {"false"},
		}

		body, retryable, err := c.postForm(ctx, c.queryEndpoint(), form)
		if err != nil {
			if retryable {
				// Listing is best-effort inside the agent loop: a
				// partial list is usable, an aborted subject is not.
				log.Printf("cninfo: list %s page %d failed: %v", stockCode, pageNum, err)
				break
			}
			return nil, fmt.Errorf("list announcements %s: %w", stockCode, err)
		}
		p, err := decodePage(body, dateRange, pageNum)
		if err != nil {
			return nil, err
		}
		if p.NilAnnouncements || len(p.Announcements) == 0 {
			break
		}

		for _, ann := range p.Announcements {
			if len(refs) >= limit {
				break
			}
			refs = append(refs, DocumentRef{
				ID:      ann.AnnouncementID,
				Date:    announcementDate(ann.AnnouncementTime),
				Title:   ann.AnnouncementTitle,
				URL:     DocumentURL(ann.AdjunctURL),
				SecName: ann.SecName,
			})
		}

		if !p.HasMore {
			break
		}
		c.sleep(c.cfg.PageDelay)
	}
	return refs, nil
}

// announcementDate renders an epoch-millisecond timestamp as a calendar
// date in the source timezone, or "" when absent/malformed.
func announcementDate(raw json.RawMessage) string {
	var ms int64
	if len(raw) == 0 || json.Unmarshal(raw, &ms) != nil || ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).In(sourceTZ).Format("2006-01-02")
}

// DocumentURL derives the static retrieval URL from a relative adjunct
// path returned by the query endpoint.
func DocumentURL(adjunct string) string {
	if adjunct == "" {
		return ""
	}
	return staticURLPrefix + adjunct
}
