// Package batch drives the extraction loop over a roster of delisted
// companies read from CSV, isolating per-subject failures and tracking
// completion so a rerun picks up where the last one stopped.
package batch

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"agentic_delist/pkg/core/agent"
	"agentic_delist/pkg/core/store"
)

// header aliases accepted in subject CSVs; roster files come from
// several hands and do not share a schema.
var (
	codeHeaders = []string{"code", "股票代码", "Code", "证券代码"}
	nameHeaders = []string{"名称", "name", "Name", "证券简称", "公司名称"}
	dateHeaders = []string{"退市日期", "delist_date", "DelistDate", "终止上市日期"}
)

// Subjects reads the roster CSV into agent subjects. Rows without a
// stock code are dropped with a log line rather than failing the batch.
func Subjects(path string) ([]agent.Subject, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open roster %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read roster header: %w", err)
	}
	codeIdx := findColumn(header, codeHeaders)
	if codeIdx < 0 {
		return nil, fmt.Errorf("roster %s: no stock code column (tried %s)", path, strings.Join(codeHeaders, ", "))
	}
	nameIdx := findColumn(header, nameHeaders)
	dateIdx := findColumn(header, dateHeaders)

	var subjects []agent.Subject
	for line := 2; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("roster %s line %d: %w", path, line, err)
		}
		s := agent.Subject{Code: field(row, codeIdx)}
		if s.Code == "" {
			log.Printf("[batch] roster line %d: missing code, skipped", line)
			continue
		}
		s.Name = field(row, nameIdx)
		s.DelistDate = field(row, dateIdx)
		subjects = append(subjects, s)
	}
	return subjects, nil
}

func findColumn(header, candidates []string) int {
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))
		for _, c := range candidates {
			if h == c {
				return i
			}
		}
	}
	return -1
}

func field(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// Summary counts how a batch run ended per subject.
type Summary struct {
	Done, Skipped, Exhausted, Failed, Resumed int
}

// RecordSaver persists one finished record. *store.ResultsRepo and the
// CSV collector both satisfy it.
type RecordSaver interface {
	Save(ctx context.Context, record map[string]string) error
}

// Runner wires the analyzer to progress tracking and result storage.
type Runner struct {
	Analyzer *agent.Analyzer
	Progress *store.Progress
	Saver    RecordSaver
}

// Run analyzes every subject in order. A subject that errors is marked
// FAILED and the batch moves on; only context cancellation stops the
// whole run.
func (r *Runner) Run(ctx context.Context, subjects []agent.Subject) (*Summary, error) {
	sum := &Summary{}
	for _, subject := range subjects {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if r.Progress.Done(subject.Code) {
			sum.Resumed++
			continue
		}

		report, err := r.Analyzer.AnalyzeSubject(ctx, subject)
		if err != nil {
			log.Printf("[batch] %s failed: %v", subject.Code, err)
			sum.Failed++
			if perr := r.Progress.Set(subject.Code, "FAILED: "+err.Error()); perr != nil {
				return sum, perr
			}
			continue
		}

		switch report.Outcome {
		case agent.OutcomeDone:
			if err := r.Saver.Save(ctx, report.State); err != nil {
				return sum, fmt.Errorf("save %s: %w", subject.Code, err)
			}
			sum.Done++
			if err := r.Progress.Set(subject.Code, "DONE"); err != nil {
				return sum, err
			}
		case agent.OutcomeSkipped:
			sum.Skipped++
			if err := r.Progress.Set(subject.Code, "SKIPPED: "+report.SkipReason); err != nil {
				return sum, err
			}
		default:
			sum.Exhausted++
			// Exhausted runs stay incomplete in progress so a rerun
			// gets another shot with fresh listings.
			if err := r.Progress.Set(subject.Code, "EXHAUSTED"); err != nil {
				return sum, err
			}
		}
		log.Printf("[batch] %s: %s after %d turns", subject.Code, report.Outcome, report.Turns)
	}
	return sum, nil
}

var _ RecordSaver = (*store.ResultsRepo)(nil)
