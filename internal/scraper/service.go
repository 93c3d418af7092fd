package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maltedev/listing-scraper/internal/fetcher"
	"github.com/maltedev/listing-scraper/internal/models"
	"github.com/maltedev/listing-scraper/internal/parser"
)

type Service struct {
	fetcher fetcher.Fetcher
	parser  parser.Parser
	logger  *slog.Logger
}

func NewService(f fetcher.Fetcher, p parser.Parser, logger *slog.Logger) *Service {
	return &Service{
		fetcher: f,
		parser:  p,
		logger:  logger.With("component", "scraper"),
	}
}

// ScrapeURL fetches and extracts a single listing. It never fails: any
// fetch or parse problem comes back as the failure variant.
func (s *Service) ScrapeURL(ctx context.Context, url string) models.ScrapeResult {
	result, _ := s.scrape(ctx, url)
	return result
}

// scrape also reports whether the fetch was aborted by ctx itself, as
// opposed to failing on its own.
func (s *Service) scrape(ctx context.Context, url string) (result models.ScrapeResult, interrupted bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("recovered while scraping", "url", url, "panic", r)
			result = models.NewFailure(url, models.ErrCodeParseFailed,
				fmt.Errorf("%w: %v", ErrParseFailed, r))
			interrupted = false
		}
	}()

	html, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return models.NewFailure(url, models.ErrCodeFetchFailed, err), true
		}
		s.logger.Warn("failed to fetch page", "url", url, "error", err)
		return models.NewFailure(url, models.ErrCodeFetchFailed,
			fmt.Errorf("%w: %v", ErrFetchFailed, err)), false
	}

	return s.Extract(url, html), false
}

// Extract builds the listing for url from already fetched markup.
func (s *Service) Extract(url, html string) models.ScrapeResult {
	fields, err := s.parser.ParseListingPage(html)
	if err != nil {
		s.logger.Warn("failed to parse page", "url", url, "error", err)
		return models.NewFailure(url, models.ErrCodeParseFailed,
			fmt.Errorf("%w: %v", ErrParseFailed, err))
	}

	listing := fields.Apply(models.Listing{
		URL:    url,
		ItemID: parser.ExtractItemID(url),
	})
	return models.ScrapeResult{Listing: listing}
}

// ScrapeBatch processes urls one at a time in input order. The returned
// slice lines up with urls. On cancellation the listings completed so far
// are returned with ctx.Err(); a fetch aborted by the cancellation is not one
// of them.
func (s *Service) ScrapeBatch(ctx context.Context, urls []string, progress ProgressFunc) ([]models.Listing, error) {
	s.logger.Info("starting batch", "urls", len(urls))

	listings := make([]models.Listing, 0, len(urls))
	failed := 0
	for i, url := range urls {
		select {
		case <-ctx.Done():
			s.logger.Info("batch cancelled", "completed", i, "total", len(urls))
			return listings, ctx.Err()
		default:
		}

		result, interrupted := s.scrape(ctx, url)
		if interrupted {
			s.logger.Info("batch cancelled", "completed", i, "total", len(urls))
			return listings, ctx.Err()
		}
		if !result.Success() {
			failed++
		}
		listings = append(listings, result.Record())

		if progress != nil {
			progress(i+1, len(urls), result)
		}
	}

	s.logger.Info("batch completed", "total", len(urls), "failed", failed)
	return listings, nil
}
