// Package agent runs the turn-bounded extraction loop that fills in a
// company's delisting record from its exchange announcements. The model
// chooses one action per turn (read a document, search again, submit,
// or skip) and the accumulated state is checked by the validator before
// a submit is accepted.
package agent

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"agentic_delist/pkg/core/cninfo"
	"agentic_delist/pkg/core/llm"
	"agentic_delist/pkg/core/utils"
	"agentic_delist/pkg/core/validate"
)

const (
	maxTurns     = 8
	maxDocLength = 6000
	contextSize  = 500
	listLimit    = 50
	lookbackDays = 540
)

// Outcome classifies how an analysis run ended.
type Outcome string

const (
	OutcomeDone      Outcome = "DONE"
	OutcomeSkipped   Outcome = "SKIPPED"
	OutcomeExhausted Outcome = "EXHAUSTED"
)

// Subject is the company under review. Code and delist date come from
// the crawl output; they seed the working state and anchor the search.
type Subject struct {
	Code       string
	Name       string
	DelistDate string // YYYY-MM-DD
}

// Report is the result of one analysis run.
type Report struct {
	Outcome    Outcome
	State      map[string]string
	Turns      int
	SkipReason string
	Thoughts   []string
}

// DocumentSource lists and fetches announcements for a stock.
// *cninfo.Client satisfies it.
type DocumentSource interface {
	ListAnnouncements(ctx context.Context, stockCode, keyword string, limit int, dateRange string) ([]cninfo.DocumentRef, error)
	DownloadPDF(ctx context.Context, docURL string) ([]byte, error)
}

// TextExtractor turns a downloaded PDF into plain text.
type TextExtractor interface {
	ExtractText(ctx context.Context, pdf []byte) (string, error)
}

// proposal is the JSON shape the model must return each turn.
type proposal struct {
	Thought      string            `json:"thought"`
	UpdatedState map[string]any    `json:"updated_state"`
	Action       string            `json:"action"`
	ActionParams map[string]string `json:"action_params"`
}

// Analyzer runs the turn-bounded extraction loop for one subject.
type Analyzer struct {
	Provider  llm.Provider
	Source    DocumentSource
	Extractor TextExtractor
	Keywords  []string // slicing keywords; defaults when empty
	MaxTurns  int      // defaults to maxTurns when zero
}

func (a *Analyzer) keywords() []string {
	if len(a.Keywords) > 0 {
		return a.Keywords
	}
	return defaultSliceKeywords
}

func (a *Analyzer) turnLimit() int {
	if a.MaxTurns > 0 {
		return a.MaxTurns
	}
	return maxTurns
}

// dateRange builds the listing window: lookbackDays before the delist
// date through the delist date itself. An unparseable date falls back
// to an open query.
func (a *Analyzer) dateRange(s Subject) string {
	end, err := time.Parse("2006-01-02", s.DelistDate)
	if err != nil {
		return ""
	}
	start := end.AddDate(0, 0, -lookbackDays)
	return start.Format("2006-01-02") + "~" + end.Format("2006-01-02")
}

// AnalyzeSubject drives the model through up to MaxTurns decisions,
// feeding back validator errors on rejected submits. State only grows:
// a turn may add or overwrite fields, never clear them. A provider
// failure aborts the run; a malformed or unknown action burns the turn
// with an error message instead.
func (a *Analyzer) AnalyzeSubject(ctx context.Context, subject Subject) (*Report, error) {
	state := map[string]string{
		validate.FieldCode:       subject.Code,
		validate.FieldName:       subject.Name,
		validate.FieldDelistDate: subject.DelistDate,
	}
	report := &Report{State: state}

	dateRange := a.dateRange(subject)
	docs, err := a.Source.ListAnnouncements(ctx, subject.Code, "", listLimit, dateRange)
	if err != nil {
		return nil, fmt.Errorf("list announcements for %s: %w", subject.Code, err)
	}
	docIndex := indexDocs(docs)

	var (
		lastError  string // validator or action feedback for the next turn
		prevError  string // previous turn's feedback, for stall detection
		docContent string // excerpt shown this turn
	)

	limit := a.turnLimit()
	for turn := 1; turn <= limit; turn++ {
		report.Turns = turn
		user := buildUserPrompt(state, lastError, docs, docContent, turn, limit)
		docContent = ""

		raw, err := a.Provider.Generate(ctx, systemPrompt, user)
		if err != nil {
			return nil, fmt.Errorf("turn %d for %s: %w", turn, subject.Code, err)
		}

		var p proposal
		if err := utils.SmartParse(raw, &p); err != nil {
			log.Printf("[agent] %s turn %d: unparseable response: %v", subject.Code, turn, err)
			lastError = "上一轮返回的不是有效 JSON, 请严格按照格式返回。"
			continue
		}
		if p.Thought != "" {
			report.Thoughts = append(report.Thoughts, p.Thought)
		}
		mergeState(state, p.UpdatedState)

		switch p.Action {
		case "READ_DOC":
			lastError = a.readDoc(ctx, p.ActionParams["doc_id"], docIndex, &docContent)

		case "SEARCH_MORE":
			keyword := strings.TrimSpace(p.ActionParams["keyword"])
			if keyword == "" {
				lastError = "SEARCH_MORE 需要提供 keyword。"
				continue
			}
			more, err := a.Source.ListAnnouncements(ctx, subject.Code, keyword, listLimit, dateRange)
			if err != nil {
				log.Printf("[agent] %s turn %d: search %q failed: %v", subject.Code, turn, keyword, err)
				lastError = fmt.Sprintf("关键词 %q 检索失败, 请换一个关键词或阅读现有公告。", keyword)
				continue
			}
			docs = mergeDocs(docs, more, docIndex)
			lastError = ""

		case "SUBMIT":
			res := validate.Validate(state)
			if res.Valid {
				report.Outcome = OutcomeDone
				return report, nil
			}
			lastError = res.ErrorText()
			if lastError == prevError && prevError != "" {
				// Same rejection twice running: the model is not going
				// to fix it, stop burning turns.
				log.Printf("[agent] %s: stalled on validation error, giving up at turn %d", subject.Code, turn)
				report.Outcome = OutcomeExhausted
				return report, nil
			}
			prevError = lastError

		case "SKIP":
			report.Outcome = OutcomeSkipped
			report.SkipReason = p.ActionParams["reason"]
			return report, nil

		default:
			lastError = fmt.Sprintf("未知动作 %q, 只能使用 READ_DOC / SEARCH_MORE / SUBMIT / SKIP。", p.Action)
		}
	}

	report.Outcome = OutcomeExhausted
	return report, nil
}

// readDoc fetches and excerpts one announcement; the returned string is
// the feedback for the next turn ("" on success).
func (a *Analyzer) readDoc(ctx context.Context, docID string, index map[string]cninfo.DocumentRef, content *string) string {
	doc, ok := index[docID]
	if !ok {
		return fmt.Sprintf("doc_id %q 不在候选列表中。", docID)
	}
	pdf, err := a.Source.DownloadPDF(ctx, doc.URL)
	if err != nil {
		log.Printf("[agent] download %s: %v", doc.URL, err)
		return fmt.Sprintf("公告 %s 下载失败, 请尝试其他公告。", docID)
	}
	text, err := a.Extractor.ExtractText(ctx, pdf)
	if err != nil {
		log.Printf("[agent] extract %s: %v", doc.URL, err)
		return fmt.Sprintf("公告 %s 无法解析正文, 请尝试其他公告。", docID)
	}
	*content = sliceByKeywords(text, a.keywords(), contextSize, maxDocLength)
	return ""
}

func indexDocs(docs []cninfo.DocumentRef) map[string]cninfo.DocumentRef {
	index := make(map[string]cninfo.DocumentRef, len(docs))
	for _, d := range docs {
		index[d.ID] = d
	}
	return index
}

// mergeDocs appends previously unseen results, keeping earlier entries
// and their list order stable.
func mergeDocs(docs, more []cninfo.DocumentRef, index map[string]cninfo.DocumentRef) []cninfo.DocumentRef {
	for _, d := range more {
		if _, seen := index[d.ID]; seen {
			continue
		}
		index[d.ID] = d
		docs = append(docs, d)
	}
	return docs
}
