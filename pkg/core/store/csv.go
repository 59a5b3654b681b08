package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"agentic_delist/pkg/core/parse"
	"agentic_delist/pkg/core/validate"
)

// announcementHeader is the column order of the crawl output CSV.
var announcementHeader = []string{
	"company_code", "company_name", "title",
	"announcement_time", "announcement_id", "url", "category",
	"period", "report_type", "report_year",
}

// AnnouncementCSV is an append-only CSV sink for crawled announcements.
// The header row is written once, when the file is created; later runs
// append below it, so a resumed crawl extends the same file.
type AnnouncementCSV struct {
	Path string
}

// Append writes one batch of records and flushes before returning, so
// the watermark is only advanced once the rows are on disk.
func (s *AnnouncementCSV) Append(records []*parse.Record) error {
	writeHeader := false
	if info, err := os.Stat(s.Path); os.IsNotExist(err) || (err == nil && info.Size() == 0) {
		writeHeader = true
	}

	f, err := os.OpenFile(s.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.Path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(announcementHeader); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	for _, rec := range records {
		row := []string{
			rec.CompanyCode, rec.CompanyName, rec.Title,
			rec.DateTime(), rec.ID, rec.URL, rec.Category,
			rec.Period, rec.ReportType, strconv.Itoa(rec.ReportYear),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write row %s: %w", rec.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", s.Path, err)
	}
	return f.Sync()
}

// ReadAnnouncementCSV loads a crawl output file back into records, for
// the offline tools that triage past crawls. Timestamps missing or
// malformed parse as zero rather than failing the whole file.
func ReadAnnouncementCSV(path string) ([]*parse.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	records := make([]*parse.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) < len(announcementHeader) {
			continue
		}
		t, _ := time.ParseInLocation("2006-01-02 15:04:05", row[3], parse.SourceTZ())
		year, _ := strconv.Atoi(row[9])
		records = append(records, &parse.Record{
			CompanyCode: row[0],
			CompanyName: row[1],
			Title:       row[2],
			Time:        t,
			ID:          row[4],
			URL:         row[5],
			Category:    row[6],
			Period:      row[7],
			ReportType:  row[8],
			ReportYear:  year,
		})
	}
	return records, nil
}

// delistHeader is the column order of the extracted-records CSV, in the
// same field order the validator defines.
var delistHeader = []string{
	validate.FieldCode, validate.FieldName, validate.FieldDelistDate,
	validate.FieldReason, validate.FieldType,
	validate.FieldFirstNotice, validate.FieldSuspendDate,
	validate.FieldSwapCode, validate.FieldSwapName, validate.FieldSwapRatio, validate.FieldSwapDone,
	validate.FieldSourceTitle, validate.FieldSourceURL,
}

// WriteDelistCSV writes the full set of extracted records to path,
// replacing any previous file. Absent fields render as the placeholder.
func WriteDelistCSV(path string, records []map[string]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(delistHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, rec := range records {
		row := make([]string, len(delistHeader))
		for i, field := range delistHeader {
			v := rec[field]
			if v == "" {
				v = validate.Placeholder
			}
			row[i] = v
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}
