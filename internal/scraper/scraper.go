package scraper

import (
	"context"
	"errors"

	"github.com/maltedev/listing-scraper/internal/models"
)

var (
	ErrFetchFailed = errors.New("fetch failed")
	ErrParseFailed = errors.New("parse failed")
)

type Scraper interface {
	ScrapeURL(ctx context.Context, url string) models.ScrapeResult
	ScrapeBatch(ctx context.Context, urls []string, progress ProgressFunc) ([]models.Listing, error)
}

// ProgressFunc is called after each URL of a batch completes. done counts
// completed URLs, starting at 1.
type ProgressFunc func(done, total int, result models.ScrapeResult)
