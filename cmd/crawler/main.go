package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"agentic_delist/pkg/core/cninfo"
	"agentic_delist/pkg/core/crawl"
	"agentic_delist/pkg/core/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env not found, using environment variables")
	}

	configPath := flag.String("config", "crawler.yaml", "path to crawler config")
	startDate := flag.String("start", "", "override start date (YYYY-MM-DD)")
	endDate := flag.String("end", "", "override end date (YYYY-MM-DD)")
	flag.Parse()

	cfg, err := crawl.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	if *startDate != "" {
		cfg.StartDate = *startDate
	}
	if *endDate != "" {
		cfg.EndDate = *endDate
	}

	clientCfg := cninfo.DefaultConfig()
	if cfg.Category != "" {
		clientCfg.Category = cfg.Category
	}
	if cfg.Plate != "" {
		clientCfg.Plate = cfg.Plate
	}
	clientCfg.Trade = cfg.Trade

	driver := &crawl.Driver{
		Fetcher:         cninfo.NewClient(clientCfg),
		Sink:            &store.AnnouncementCSV{Path: cfg.OutputCSV},
		Mark:            &crawl.Watermark{Path: cfg.WatermarkFile},
		WindowDelay:     cfg.Delay(),
		ExcludeKeywords: cfg.ExcludeKeywords,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := driver.Run(ctx, cfg.StartDate, cfg.EndDate); err != nil {
		log.Fatalf("Crawl failed: %v", err)
	}
	log.Printf("Crawl complete, output in %s", cfg.OutputCSV)
}
