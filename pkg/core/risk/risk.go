// Package risk scans announcement titles for delisting-risk signals
// and grades them, so a day's crawl output can be triaged before any
// document is opened.
package risk

import (
	"regexp"
	"sort"

	"agentic_delist/pkg/core/parse"
)

// Level orders risk severities; higher is worse.
type Level int

const (
	LevelNone Level = iota
	LevelLow
	LevelMedium
	LevelHigh
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelCritical:
		return "CRITICAL"
	case LevelHigh:
		return "HIGH"
	case LevelMedium:
		return "MEDIUM"
	case LevelLow:
		return "LOW"
	default:
		return "NONE"
	}
}

// rules map title patterns to severities. Critical means the listing is
// ending; high means a formal warning stage; medium and low are earlier
// signals that usually precede the formal stages.
var rules = []struct {
	level   Level
	pattern *regexp.Regexp
}{
	{LevelCritical, regexp.MustCompile(`终止上市|摘牌|退市整理期届满`)},
	{LevelCritical, regexp.MustCompile(`吸收合并.*(退市|终止上市)|换股合并`)},
	{LevelHigh, regexp.MustCompile(`退市风险警示|\*ST|暂停上市`)},
	{LevelHigh, regexp.MustCompile(`可能被终止上市|可能暂停上市`)},
	{LevelMedium, regexp.MustCompile(`其他风险警示|实施ST|持续经营能力`)},
	{LevelMedium, regexp.MustCompile(`无法按期披露|业绩预亏|大额亏损`)},
	{LevelLow, regexp.MustCompile(`问询函|关注函|监管函|立案调查`)},
}

// Hit is one record's risk assessment.
type Hit struct {
	Record  *parse.Record
	Level   Level
	Matched string // the pattern fragment that fired
}

// ScanTitle grades one title and returns the matched pattern. Multiple
// matches take the most severe.
func ScanTitle(title string) (Level, string) {
	best, matched := LevelNone, ""
	for _, r := range rules {
		if r.level <= best {
			continue
		}
		if m := r.pattern.FindString(title); m != "" {
			best, matched = r.level, m
		}
	}
	return best, matched
}

// Scan grades a batch of records and returns the hits sorted most
// severe first, stable within a level.
func Scan(records []*parse.Record) []Hit {
	var hits []Hit
	for _, rec := range records {
		level, matched := ScanTitle(rec.Title)
		if level == LevelNone {
			continue
		}
		hits = append(hits, Hit{Record: rec, Level: level, Matched: matched})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Level > hits[j].Level })
	return hits
}

// delistPattern selects the titles that mark the listing itself ending,
// used to build an extraction roster from crawl output.
var delistPattern = regexp.MustCompile(`终止上市|摘牌|退市`)

// FilterDelist keeps the records whose titles indicate a delisting
// event, preserving input order.
func FilterDelist(records []*parse.Record) []*parse.Record {
	var out []*parse.Record
	for _, rec := range records {
		if delistPattern.MatchString(rec.Title) {
			out = append(out, rec)
		}
	}
	return out
}
