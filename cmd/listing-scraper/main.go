package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/maltedev/listing-scraper/internal/config"
	"github.com/maltedev/listing-scraper/internal/export"
	"github.com/maltedev/listing-scraper/internal/fetcher"
	"github.com/maltedev/listing-scraper/internal/ingest"
	"github.com/maltedev/listing-scraper/internal/logger"
	"github.com/maltedev/listing-scraper/internal/models"
	"github.com/maltedev/listing-scraper/internal/parser"
	"github.com/maltedev/listing-scraper/internal/scraper"
	"github.com/pterm/pterm"
)

func main() {
	var (
		inputFile = flag.String("file", "", "File containing listing URLs (.txt one per line, or .xlsx first column)")
		urls      = flag.String("urls", "", "Comma-separated list of listing URLs to scrape")
		csvPath   = flag.String("csv", export.DefaultCSVFile, "CSV output path (empty to skip)")
		xlsxPath  = flag.String("xlsx", export.DefaultXLSXFile, "XLSX output path (empty to skip)")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewWithWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(log)

	targets, err := loadURLs(*inputFile, *urls)
	if err != nil {
		log.Error("Failed to load URLs", "error", err)
		os.Exit(1)
	}
	if len(targets) == 0 {
		fmt.Fprintln(os.Stderr, "No URLs to process. Use -file or -urls to specify listings to scrape.")
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Shutdown signal received, aborting current URL and exporting completed rows")
		cancel()
	}()

	f := fetcher.NewHTTPFetcher(&fetcher.Options{
		Timeout:   cfg.Scraper.Timeout,
		UserAgent: cfg.Scraper.UserAgent,
	})
	s := scraper.NewService(f, parser.NewListingParser(), log)

	listings, err := s.ScrapeBatch(ctx, targets, func(done, total int, result models.ScrapeResult) {
		log.Info(fmt.Sprintf("processed %d of %d", done, total), "url", result.Record().URL, "ok", result.Success())
	})
	if err != nil {
		log.Warn("Scraping interrupted, exporting completed rows", "completed", len(listings), "total", len(targets))
	}

	if err := writeOutputs(listings, *csvPath, *xlsxPath); err != nil {
		log.Error("Failed to write results", "error", err)
		os.Exit(1)
	}

	if err := printTable(listings); err != nil {
		log.Error("Failed to print results", "error", err)
	}
}

func loadURLs(inputFile, urls string) ([]string, error) {
	var targets []string

	if urls != "" {
		for _, u := range strings.Split(urls, ",") {
			if u = strings.TrimSpace(u); u != "" {
				targets = append(targets, u)
			}
		}
	}

	if inputFile != "" {
		file, err := os.Open(inputFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open file: %w", err)
		}
		defer file.Close()

		fromFile, err := ingest.Load(filepath.Base(inputFile), file)
		if err != nil {
			return nil, err
		}
		targets = append(targets, fromFile...)
	}

	return targets, nil
}

func writeOutputs(listings []models.Listing, csvPath, xlsxPath string) error {
	outputs := []struct {
		path  string
		write func(*os.File) error
	}{
		{csvPath, func(f *os.File) error { return export.WriteCSV(f, listings) }},
		{xlsxPath, func(f *os.File) error { return export.WriteXLSX(f, listings) }},
	}

	for _, out := range outputs {
		if out.path == "" {
			continue
		}

		f, err := os.Create(out.path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", out.path, err)
		}
		if err := out.write(f); err != nil {
			f.Close()
			return fmt.Errorf("failed to write %s: %w", out.path, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to close %s: %w", out.path, err)
		}
		slog.Info("Results written", "path", out.path, "rows", len(listings))
	}

	return nil
}

func printTable(listings []models.Listing) error {
	data := pterm.TableData{models.Columns}
	for _, l := range listings {
		data = append(data, l.Row())
	}

	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
