// Command tools bundles one-off utilities for poking at the pipeline:
// listing a stock's announcements, fetching and extracting a single
// PDF, validating a record by hand, and triaging crawl output.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"agentic_delist/pkg/core/batch"
	"agentic_delist/pkg/core/cninfo"
	"agentic_delist/pkg/core/pdftext"
	"agentic_delist/pkg/core/risk"
	"agentic_delist/pkg/core/store"
	"agentic_delist/pkg/core/validate"
)

const usage = `usage: tools <command> [flags]

commands:
  list-announcements  list a stock's announcements as JSON
  download-pdf        fetch one announcement PDF to a file
  extract-text        fetch a PDF and print its extracted text
  validate            validate a delisting record given as JSON
  scan-risk           grade crawl output titles by delisting risk
  filter-delist       print the crawl rows that mark a delisting
`

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env not found, using environment variables")
	}
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx := context.Background()
	var err error
	switch os.Args[1] {
	case "list-announcements":
		err = listAnnouncements(ctx, os.Args[2:])
	case "download-pdf":
		err = downloadPDF(ctx, os.Args[2:])
	case "extract-text":
		err = extractText(ctx, os.Args[2:])
	case "validate":
		err = validateRecord(os.Args[2:])
	case "scan-risk":
		err = scanRisk(os.Args[2:])
	case "filter-delist":
		err = filterDelist(os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func listAnnouncements(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list-announcements", flag.ExitOnError)
	code := fs.String("code", "", "6-digit stock code")
	keyword := fs.String("keyword", "", "optional title keyword")
	limit := fs.Int("limit", 30, "max results")
	dateRange := fs.String("range", "", "optional YYYY-MM-DD~YYYY-MM-DD window")
	fs.Parse(args)
	if *code == "" {
		return fmt.Errorf("-code is required")
	}

	client := cninfo.NewClient(cninfo.DefaultConfig())
	docs, err := client.ListAnnouncements(ctx, *code, *keyword, *limit, *dateRange)
	if err != nil {
		return err
	}
	return printJSON(docs)
}

func downloadPDF(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("download-pdf", flag.ExitOnError)
	url := fs.String("url", "", "announcement PDF URL")
	out := fs.String("out", "announcement.pdf", "output file")
	code := fs.String("code", "", "bulk mode: stock code whose announcements to fetch")
	dir := fs.String("dir", "pdfs", "bulk mode: output directory")
	workers := fs.Int("workers", 4, "bulk mode: concurrent downloads")
	dateRange := fs.String("range", "", "bulk mode: optional YYYY-MM-DD~YYYY-MM-DD window")
	fs.Parse(args)

	client := cninfo.NewClient(cninfo.DefaultConfig())

	if *code != "" {
		docs, err := client.ListAnnouncements(ctx, *code, "", 200, *dateRange)
		if err != nil {
			return err
		}
		dl := &batch.Downloader{Source: client, Dir: *dir, Workers: *workers}
		saved, failed, err := dl.Fetch(ctx, docs)
		if err != nil {
			return err
		}
		log.Printf("Saved %d documents to %s (%d failed)", saved, *dir, failed)
		return nil
	}

	if *url == "" {
		return fmt.Errorf("-url or -code is required")
	}
	pdf, err := client.DownloadPDF(ctx, *url)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, pdf, 0o644); err != nil {
		return err
	}
	log.Printf("Saved %d bytes to %s", len(pdf), *out)
	return nil
}

func extractText(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("extract-text", flag.ExitOnError)
	url := fs.String("url", "", "announcement PDF URL")
	file := fs.String("file", "", "local PDF file (instead of -url)")
	fs.Parse(args)

	var pdf []byte
	var err error
	switch {
	case *file != "":
		pdf, err = os.ReadFile(*file)
	case *url != "":
		client := cninfo.NewClient(cninfo.DefaultConfig())
		pdf, err = client.DownloadPDF(ctx, *url)
	default:
		return fmt.Errorf("-url or -file is required")
	}
	if err != nil {
		return err
	}

	extractor := &pdftext.Extractor{}
	text, err := extractor.ExtractText(ctx, pdf)
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}

func validateRecord(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	jsonArg := fs.String("json", "", "record as a JSON object (or - for stdin)")
	fs.Parse(args)
	if *jsonArg == "" {
		return fmt.Errorf("-json is required")
	}

	raw := []byte(*jsonArg)
	if strings.TrimSpace(*jsonArg) == "-" {
		var err error
		raw, err = os.ReadFile("/dev/stdin")
		if err != nil {
			return err
		}
	}
	record := make(map[string]string)
	if err := json.Unmarshal(raw, &record); err != nil {
		return fmt.Errorf("parse record: %w", err)
	}

	res := validate.Validate(record)
	if err := printJSON(res); err != nil {
		return err
	}
	if !res.Valid {
		os.Exit(1)
	}
	return nil
}

func scanRisk(args []string) error {
	fs := flag.NewFlagSet("scan-risk", flag.ExitOnError)
	csvPath := fs.String("csv", "announcements.csv", "crawl output CSV")
	fs.Parse(args)

	records, err := store.ReadAnnouncementCSV(*csvPath)
	if err != nil {
		return err
	}
	hits := risk.Scan(records)
	severe := false
	for _, h := range hits {
		if h.Level >= risk.LevelHigh {
			severe = true
			break
		}
	}
	type hitRow struct {
		Level   string `json:"level"`
		Matched string `json:"matched"`
		Code    string `json:"code"`
		Name    string `json:"name"`
		Title   string `json:"title"`
		Date    string `json:"date"`
	}
	rows := make([]hitRow, 0, len(hits))
	for _, h := range hits {
		rows = append(rows, hitRow{
			Level: h.Level.String(), Matched: h.Matched,
			Code: h.Record.CompanyCode, Name: h.Record.CompanyName,
			Title: h.Record.Title, Date: h.Record.Date(),
		})
	}
	if err := printJSON(rows); err != nil {
		return err
	}
	if severe {
		os.Exit(1)
	}
	return nil
}

func filterDelist(args []string) error {
	fs := flag.NewFlagSet("filter-delist", flag.ExitOnError)
	csvPath := fs.String("csv", "announcements.csv", "crawl output CSV")
	out := fs.String("out", "", "optional roster CSV to write (code, 名称, 退市日期)")
	fs.Parse(args)

	records, err := store.ReadAnnouncementCSV(*csvPath)
	if err != nil {
		return err
	}
	matched := risk.FilterDelist(records)

	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		fmt.Fprintln(f, "code,名称,退市日期")
		seen := make(map[string]bool)
		for _, rec := range matched {
			if seen[rec.CompanyCode] {
				continue
			}
			seen[rec.CompanyCode] = true
			fmt.Fprintf(f, "%s,%s,%s\n", rec.CompanyCode, rec.CompanyName, rec.Date())
		}
		log.Printf("Roster with %d companies written to %s", len(seen), *out)
		return nil
	}
	return printJSON(matched)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
