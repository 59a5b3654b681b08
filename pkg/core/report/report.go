// Package report renders a batch run's extracted delisting records as
// a Markdown summary and an HTML page.
package report

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"agentic_delist/pkg/core/validate"
)

// md renders pipe tables, which the summary relies on.
var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// summaryColumns are the fields shown in the overview table; the full
// record stays in CSV/DB.
var summaryColumns = []string{
	validate.FieldCode, validate.FieldName, validate.FieldDelistDate,
	validate.FieldType, validate.FieldSwapRatio, validate.FieldSourceTitle,
}

// BuildMarkdown renders the record set as a Markdown report: a header
// with run counts, a per-type breakdown, and one table row per company
// ordered by delist date then code.
func BuildMarkdown(records []map[string]string, generated time.Time) string {
	sorted := make([]map[string]string, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		di, dj := sorted[i][validate.FieldDelistDate], sorted[j][validate.FieldDelistDate]
		if di != dj {
			return di < dj
		}
		return sorted[i][validate.FieldCode] < sorted[j][validate.FieldCode]
	})

	var b strings.Builder
	b.WriteString("# 退市档案汇总\n\n")
	fmt.Fprintf(&b, "生成时间: %s  \n共 %d 家公司。\n\n", generated.Format("2006-01-02 15:04"), len(sorted))

	b.WriteString("## 按退市类型\n\n")
	byType := map[string]int{}
	for _, rec := range sorted {
		t := rec[validate.FieldType]
		if t == "" || t == validate.Placeholder {
			t = "未知"
		}
		byType[t]++
	}
	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(&b, "- %s: %d\n", t, byType[t])
	}
	b.WriteString("\n## 明细\n\n")

	b.WriteString("| " + strings.Join(summaryColumns, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(summaryColumns)) + "\n")
	for _, rec := range sorted {
		row := make([]string, len(summaryColumns))
		for i, col := range summaryColumns {
			v := rec[col]
			if v == "" {
				v = validate.Placeholder
			}
			row[i] = escapeCell(v)
		}
		b.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}
	return b.String()
}

func escapeCell(v string) string {
	v = strings.ReplaceAll(v, "|", "\\|")
	return strings.ReplaceAll(v, "\n", " ")
}

// RenderHTML converts the Markdown report into a standalone HTML page.
func RenderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n<html>\n<head><meta charset=\"utf-8\"><title>退市档案汇总</title></head>\n<body>\n")
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	buf.WriteString("</body>\n</html>\n")
	return buf.String(), nil
}
