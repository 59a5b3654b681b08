package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"agentic_delist/pkg/core/agent"
	"agentic_delist/pkg/core/batch"
	"agentic_delist/pkg/core/cninfo"
	"agentic_delist/pkg/core/llm"
	"agentic_delist/pkg/core/pdftext"
	"agentic_delist/pkg/core/report"
	"agentic_delist/pkg/core/store"
)

// csvSaver accumulates finished records and rewrites the output CSV on
// every save, so a killed batch still leaves the completed rows behind.
type csvSaver struct {
	path    string
	records []map[string]string
}

func (s *csvSaver) Save(_ context.Context, record map[string]string) error {
	s.records = append(s.records, record)
	return store.WriteDelistCSV(s.path, s.records)
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env not found, using environment variables")
	}

	rosterPath := flag.String("roster", "delist_roster.csv", "CSV of companies to analyze")
	outPath := flag.String("out", "delist_records.csv", "output CSV for extracted records")
	progressPath := flag.String("progress", "analyzer.progress.json", "progress tracking file")
	backend := flag.String("llm", "openai", "LLM backend: openai or gemini")
	llmConfig := flag.String("llm-config", "", "optional YAML config for the openai backend")
	useDB := flag.Bool("db", false, "also persist records to Postgres (DATABASE_URL)")
	reportPath := flag.String("report", "", "optional path for an HTML summary report")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := buildProvider(*backend, *llmConfig)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	subjects, err := batch.Subjects(*rosterPath)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	log.Printf("Loaded %d subjects from %s", len(subjects), *rosterPath)

	progress, err := store.LoadProgress(*progressPath)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	saver := &csvSaver{path: *outPath}
	var dbRepo *store.ResultsRepo
	if *useDB {
		if err := store.InitDB(ctx); err != nil {
			log.Fatalf("Error: %v", err)
		}
		defer store.Close()
		dbRepo = store.NewResultsRepo()
	}

	runner := &batch.Runner{
		Analyzer: &agent.Analyzer{
			Provider:  provider,
			Source:    cninfo.NewClient(cninfo.DefaultConfig()),
			Extractor: &pdftext.Extractor{},
		},
		Progress: progress,
		Saver: saverFunc(func(ctx context.Context, record map[string]string) error {
			if err := saver.Save(ctx, record); err != nil {
				return err
			}
			if dbRepo != nil {
				return dbRepo.Save(ctx, record)
			}
			return nil
		}),
	}

	summary, err := runner.Run(ctx, subjects)
	if err != nil {
		log.Fatalf("Batch aborted: %v", err)
	}
	log.Printf("Batch done: %d done, %d skipped, %d exhausted, %d failed, %d already complete",
		summary.Done, summary.Skipped, summary.Exhausted, summary.Failed, summary.Resumed)

	if *reportPath != "" {
		md := report.BuildMarkdown(saver.records, time.Now())
		html, err := report.RenderHTML(md)
		if err != nil {
			log.Fatalf("Report failed: %v", err)
		}
		if err := os.WriteFile(*reportPath, []byte(html), 0o644); err != nil {
			log.Fatalf("Report failed: %v", err)
		}
		log.Printf("Report written to %s", *reportPath)
	}
}

type saverFunc func(ctx context.Context, record map[string]string) error

func (f saverFunc) Save(ctx context.Context, record map[string]string) error { return f(ctx, record) }

func buildProvider(backend, configPath string) (llm.Provider, error) {
	switch backend {
	case "gemini":
		return &llm.GeminiProvider{}, nil
	default:
		var cfg llm.ChatConfig
		if configPath != "" {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, err
			}
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, err
			}
		}
		return llm.NewChatClient(cfg), nil
	}
}
