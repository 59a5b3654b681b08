package risk

import (
	"testing"

	"agentic_delist/pkg/core/parse"
)

func TestScanTitle(t *testing.T) {
	cases := []struct {
		title string
		want  Level
	}{
		{"《关于公司股票终止上市的公告》", LevelCritical},
		{"《换股合并实施公告》", LevelCritical},
		{"《关于被实施退市风险警示的公告》", LevelHigh},
		{"《关于股票可能被终止上市的风险提示公告》", LevelHigh},
		{"《关于被实施其他风险警示的公告》", LevelMedium},
		{"《2022年度业绩预亏公告》", LevelMedium},
		{"《关于收到深圳证券交易所问询函的公告》", LevelLow},
		{"《2022年年度报告》", LevelNone},
	}
	for _, tc := range cases {
		if got, _ := ScanTitle(tc.title); got != tc.want {
			t.Errorf("ScanTitle(%s) = %s, want %s", tc.title, got, tc.want)
		}
	}
}

func TestScanTitleTakesMostSevere(t *testing.T) {
	// Both a LOW and a CRITICAL pattern match; severity wins.
	got, matched := ScanTitle("《关于立案调查及股票终止上市的公告》")
	if got != LevelCritical {
		t.Fatalf("got %s (%q), want CRITICAL", got, matched)
	}
}

func TestScanSortsBySeverity(t *testing.T) {
	records := []*parse.Record{
		{ID: "1", Title: "《关于收到问询函的公告》"},
		{ID: "2", Title: "《2022年年度报告》"},
		{ID: "3", Title: "《股票终止上市公告》"},
	}
	hits := Scan(records)
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].Record.ID != "3" || hits[0].Level != LevelCritical {
		t.Fatalf("first hit = %+v, want the critical one", hits[0])
	}
}

func TestFilterDelist(t *testing.T) {
	records := []*parse.Record{
		{ID: "1", Title: "《年度报告》"},
		{ID: "2", Title: "《关于公司股票摘牌的公告》"},
		{ID: "3", Title: "《退市整理期届满公告》"},
	}
	got := FilterDelist(records)
	if len(got) != 2 || got[0].ID != "2" || got[1].ID != "3" {
		t.Fatalf("got %+v", got)
	}
}
