// Package parse normalizes raw cninfo announcements into validated
// records, or rejects them loudly. A malformed record is a fatal parse
// error and never a silent drop: downstream use is point-in-time
// sensitive, and a silently coerced timestamp corrupts every backtest
// built on the output.
package parse

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"agentic_delist/pkg/core/cninfo"
)

// Record is one fully normalized announcement. Immutable once parsed.
// Period, ReportType and ReportYear are title-derived classifications;
// non-report announcements carry the explicit "未知"/"正式"/0 values.
type Record struct {
	ID          string
	CompanyCode string
	CompanyName string
	Title       string
	Time        time.Time
	URL         string
	Category    string
	Period      string
	ReportType  string
	ReportYear  int
}

// Date renders the publication timestamp as a source-timezone calendar date.
func (r *Record) Date() string { return r.Time.Format("2006-01-02") }

// DateTime renders the full publication timestamp in the source timezone.
func (r *Record) DateTime() string { return r.Time.Format("2006-01-02 15:04:05") }

var sourceTZ = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		panic(fmt.Sprintf("parse: load timezone: %v", err))
	}
	return loc
}()

// SourceTZ is the timezone announcement timestamps are published in.
func SourceTZ() *time.Location { return sourceTZ }

// categoryNames maps announcementType codes to display categories.
var categoryNames = map[string]string{
	"category_qyfpxzcs_szsh": "权益分派",
	"category_pg_szsh":       "配股",
	"category_fh_jjgg":       "基金分红",
	"category_qt_jjgg":       "基金其他",
}

// Normalize validates and converts one raw announcement.
// filtered is true (with a nil record and nil error) only when the title
// matches an exclusion keyword; every other rejection is an error.
func Normalize(raw cninfo.RawAnnouncement, excludeKeywords []string) (rec *Record, filtered bool, err error) {
	var missing []string
	if raw.AnnouncementTitle == "" {
		missing = append(missing, "announcementTitle")
	}
	if len(raw.AnnouncementTime) == 0 || string(raw.AnnouncementTime) == "null" {
		missing = append(missing, "announcementTime")
	}
	if raw.SecCode == "" {
		missing = append(missing, "secCode")
	}
	if raw.SecName == "" {
		missing = append(missing, "secName")
	}
	if raw.AdjunctURL == "" {
		missing = append(missing, "adjunctUrl")
	}
	if len(missing) > 0 {
		return nil, false, fmt.Errorf("parse announcement %q: missing required fields %v", raw.AnnouncementID, missing)
	}
	if raw.AnnouncementID == "" {
		return nil, false, fmt.Errorf("announcement %q has no announcementId, cannot be uniquely identified", raw.AnnouncementTitle)
	}

	title := CleanTitle(raw.AnnouncementTitle)
	for _, kw := range excludeKeywords {
		if kw != "" && strings.Contains(title, kw) {
			return nil, true, nil
		}
	}

	ts, err := decodeTimestamp(raw.AnnouncementTime)
	if err != nil {
		return nil, false, fmt.Errorf("parse announcement %q: %w", raw.AnnouncementID, err)
	}

	year := ReportYear(title)
	if err := CheckReportYear(year, ts, title); err != nil {
		return nil, false, fmt.Errorf("parse announcement %q: %w", raw.AnnouncementID, err)
	}

	return &Record{
		ID:          raw.AnnouncementID,
		CompanyCode: raw.SecCode,
		CompanyName: raw.SecName,
		Title:       title,
		Time:        ts,
		URL:         cninfo.DocumentURL(raw.AdjunctURL),
		Category:    CategoryName(raw.AnnouncementType),
		Period:      PeriodType(title),
		ReportType:  ReportType(title),
		ReportYear:  year,
	}, false, nil
}

func decodeTimestamp(raw json.RawMessage) (time.Time, error) {
	var ms int64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return time.Time{}, fmt.Errorf("announcementTime is not numeric: %s", raw)
	}
	return time.UnixMilli(ms).In(sourceTZ), nil
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// CleanTitle strips markup from a raw title and wraps it in 《》 quoting.
// goquery handles well-formed fragments (the search endpoint highlights
// hits with <em> tags); the regexp pass catches anything left dangling.
func CleanTitle(title string) string {
	title = strings.TrimSpace(title)
	if strings.Contains(title, "<") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(title)); err == nil {
			title = doc.Text()
		}
		title = tagPattern.ReplaceAllString(title, "")
	}
	title = strings.ReplaceAll(title, "：", "")
	return "《" + strings.TrimSpace(title) + "》"
}

// CategoryName maps an announcementType field to a coarse category
// label. Unmatched codes get an explicit bucket, never a guess.
func CategoryName(announcementType string) string {
	for code, name := range categoryNames {
		if strings.Contains(announcementType, code) {
			return name
		}
	}
	return "其他"
}

// PeriodType classifies a reporting period from the title. Unmatched
// titles get the explicit "未知" label.
func PeriodType(title string) string {
	switch {
	case strings.Contains(title, "半年") || strings.Contains(title, "中期"):
		return "半年报"
	case strings.Contains(title, "第一季") || strings.Contains(title, "一季"):
		return "一季报"
	case strings.Contains(title, "第三季") || strings.Contains(title, "三季"):
		return "三季报"
	case strings.Contains(title, "年度报告") || strings.Contains(title, "年报"):
		return "年报"
	default:
		return "未知"
	}
}

var correctionWords = []string{"更正", "修订", "补充", "更新"}

// ReportType distinguishes summaries and amended filings from the
// formal document.
func ReportType(title string) string {
	if strings.Contains(title, "摘要") {
		return "摘要"
	}
	if IsCorrection(title) {
		return "修订"
	}
	return "正式"
}

// IsCorrection reports whether the title marks an amended filing.
func IsCorrection(title string) bool {
	for _, w := range correctionWords {
		if strings.Contains(title, w) {
			return true
		}
	}
	return false
}

var yearPattern = regexp.MustCompile(`(\d{4})年`)

// ReportYear extracts the reporting-period year from a title, or 0 when
// the title carries none.
func ReportYear(title string) int {
	m := yearPattern.FindStringSubmatch(title)
	if m == nil {
		return 0
	}
	year, _ := strconv.Atoi(m[1])
	return year
}

// CheckReportYear rejects a reporting-period year that is chronologically
// impossible relative to the publication date. A report "for" a year
// later than its own publication year is a misparse, and letting it
// through creates look-ahead bias downstream.
func CheckReportYear(reportYear int, published time.Time, title string) error {
	if reportYear > published.Year() {
		return fmt.Errorf("report year %d is later than publication year %d (published %s, title %s)",
			reportYear, published.Year(), published.Format("2006-01-02"), title)
	}
	return nil
}
