package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/maltedev/listing-scraper/internal/models"
	"github.com/maltedev/listing-scraper/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, url string) (string, error) {
	args := m.Called(ctx, url)
	return args.String(0), args.Error(1)
}

type panicParser struct{}

func (panicParser) ParseListingPage(string) (parser.Fields, error) {
	panic("unexpected node")
}

type failingParser struct{}

func (failingParser) ParseListingPage(string) (parser.Fields, error) {
	return parser.Fields{}, errors.New("broken markup")
}

const itemPage = `<html><body>
	<span itemprop="price" content="49.99">$49.99</span>
	<span>Shipping</span><span>Free</span>
	<span class="qtyTxt">3 available</span>
</body></html>`

func newTestService(f *MockFetcher) *Service {
	return NewService(f, parser.NewListingParser(), slog.Default())
}

func TestService_ScrapeURL(t *testing.T) {
	ctx := context.Background()

	t.Run("extracts all fields", func(t *testing.T) {
		f := new(MockFetcher)
		url := "https://www.example.com/itm/123456789012?var=1"
		f.On("Fetch", ctx, url).Return(itemPage, nil)

		result := newTestService(f).ScrapeURL(ctx, url)

		require.True(t, result.Success())
		assert.Equal(t, models.Listing{
			URL:       url,
			ItemID:    "123456789012",
			Price:     "49.99",
			Shipping:  "Free",
			Inventory: "3 available",
		}, result.Record())
		f.AssertExpectations(t)
	})

	t.Run("URL without item id", func(t *testing.T) {
		f := new(MockFetcher)
		url := "https://www.example.com/p/lamp"
		f.On("Fetch", ctx, url).Return(itemPage, nil)

		result := newTestService(f).ScrapeURL(ctx, url)

		assert.Equal(t, models.UnknownItemID, result.Record().ItemID)
	})

	t.Run("fetch failure yields sentinel record", func(t *testing.T) {
		f := new(MockFetcher)
		url := "https://www.example.com/itm/1"
		f.On("Fetch", ctx, url).Return("", errors.New("connection refused"))

		result := newTestService(f).ScrapeURL(ctx, url)

		require.False(t, result.Success())
		assert.Equal(t, models.ErrCodeFetchFailed, result.Err.Code)
		assert.Equal(t, url, result.Err.URL)
		assert.True(t, result.Record().IsFailed())
	})

	t.Run("parse failure yields sentinel record", func(t *testing.T) {
		f := new(MockFetcher)
		f.On("Fetch", ctx, mock.Anything).Return("<p>", nil)

		s := NewService(f, failingParser{}, slog.Default())
		result := s.ScrapeURL(ctx, "https://www.example.com/itm/2")

		require.False(t, result.Success())
		assert.Equal(t, models.ErrCodeParseFailed, result.Err.Code)
		assert.True(t, result.Record().IsFailed())
	})

	t.Run("parser panic is contained", func(t *testing.T) {
		f := new(MockFetcher)
		f.On("Fetch", ctx, mock.Anything).Return("<p>", nil)

		s := NewService(f, panicParser{}, slog.Default())
		result := s.ScrapeURL(ctx, "https://www.example.com/itm/3")

		require.False(t, result.Success())
		assert.ErrorContains(t, result.Err, "unexpected node")
		assert.True(t, result.Record().IsFailed())
	})
}

func TestService_ScrapeBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("preserves input order and isolates failures", func(t *testing.T) {
		f := new(MockFetcher)
		urls := []string{
			"https://www.example.com/itm/111",
			"https://www.example.com/itm/222",
			"not a url",
			"https://www.example.com/itm/333",
		}
		f.On("Fetch", ctx, urls[0]).Return(`<p>$1.00</p>`, nil)
		f.On("Fetch", ctx, urls[1]).Return("", errors.New("timeout"))
		f.On("Fetch", ctx, urls[2]).Return("", errors.New("invalid URL"))
		f.On("Fetch", ctx, urls[3]).Return(`<p>$3.00</p>`, nil)

		var calls []int
		listings, err := newTestService(f).ScrapeBatch(ctx, urls, func(done, total int, _ models.ScrapeResult) {
			assert.Equal(t, len(urls), total)
			calls = append(calls, done)
		})

		require.NoError(t, err)
		require.Len(t, listings, 4)
		assert.Equal(t, "111", listings[0].ItemID)
		assert.Equal(t, "$1.00", listings[0].Price)
		assert.True(t, listings[1].IsFailed())
		assert.True(t, listings[2].IsFailed())
		assert.Equal(t, "333", listings[3].ItemID)
		assert.Equal(t, "$3.00", listings[3].Price)
		assert.Equal(t, []int{1, 2, 3, 4}, calls)
		for i := range urls {
			assert.Equal(t, urls[i], listings[i].URL)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		listings, err := newTestService(new(MockFetcher)).ScrapeBatch(ctx, nil, nil)
		require.NoError(t, err)
		assert.Empty(t, listings)
	})

	t.Run("cancellation between URLs keeps completed results", func(t *testing.T) {
		f := new(MockFetcher)
		cctx, cancel := context.WithCancel(ctx)
		defer cancel()

		urls := []string{"https://www.example.com/itm/1", "https://www.example.com/itm/2"}
		f.On("Fetch", cctx, urls[0]).Return(`<p>$1.00</p>`, nil)

		listings, err := newTestService(f).ScrapeBatch(cctx, urls, func(done, _ int, _ models.ScrapeResult) {
			if done == 1 {
				cancel()
			}
		})

		assert.ErrorIs(t, err, context.Canceled)
		require.Len(t, listings, 1)
		assert.Equal(t, "1", listings[0].ItemID)
		f.AssertNotCalled(t, "Fetch", cctx, urls[1])
	})

	t.Run("fetch aborted by cancellation is not recorded", func(t *testing.T) {
		f := new(MockFetcher)
		cctx, cancel := context.WithCancel(ctx)
		defer cancel()

		urls := []string{"https://www.example.com/itm/1", "https://www.example.com/itm/2"}
		f.On("Fetch", cctx, urls[0]).Return(`<p>$1.00</p>`, nil)
		f.On("Fetch", cctx, urls[1]).Run(func(mock.Arguments) { cancel() }).
			Return("", fmt.Errorf("request failed: %w", context.Canceled))

		listings, err := newTestService(f).ScrapeBatch(cctx, urls, nil)

		assert.ErrorIs(t, err, context.Canceled)
		require.Len(t, listings, 1)
		assert.Equal(t, "1", listings[0].ItemID)
	})

	t.Run("own fetch failure is kept when cancellation lands during it", func(t *testing.T) {
		f := new(MockFetcher)
		cctx, cancel := context.WithCancel(ctx)
		defer cancel()

		urls := []string{"https://www.example.com/itm/1", "https://www.example.com/itm/2"}
		f.On("Fetch", cctx, urls[0]).Run(func(mock.Arguments) { cancel() }).
			Return("", errors.New("unexpected status: HTTP 404"))

		var progressed []int
		listings, err := newTestService(f).ScrapeBatch(cctx, urls, func(done, _ int, _ models.ScrapeResult) {
			progressed = append(progressed, done)
		})

		assert.ErrorIs(t, err, context.Canceled)
		require.Len(t, listings, 1)
		assert.Equal(t, models.FailedListing(urls[0]), listings[0])
		assert.Equal(t, []int{1}, progressed)
		f.AssertNotCalled(t, "Fetch", cctx, urls[1])
	})
}
