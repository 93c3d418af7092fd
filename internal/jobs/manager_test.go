package jobs

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/maltedev/listing-scraper/internal/database"
	"github.com/maltedev/listing-scraper/internal/models"
	"github.com/maltedev/listing-scraper/internal/scraper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Create(ctx context.Context, job *models.Job) error {
	return m.Called(ctx, job).Error(0)
}

func (m *MockStore) Get(ctx context.Context, id string) (*models.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Job), args.Error(1)
}

func (m *MockStore) List(ctx context.Context, limit int) ([]*models.Job, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]*models.Job), args.Error(1)
}

func (m *MockStore) ClaimNextPending(ctx context.Context) (*models.Job, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Job), args.Error(1)
}

func (m *MockStore) UpdateProgress(ctx context.Context, id string, processed, failed int) error {
	return m.Called(ctx, id, processed, failed).Error(0)
}

func (m *MockStore) Complete(ctx context.Context, job *models.Job, listings []models.Listing, event *database.OutboxEvent) error {
	return m.Called(ctx, job, listings, event).Error(0)
}

func (m *MockStore) Fail(ctx context.Context, id string, cause error) error {
	return m.Called(ctx, id, cause).Error(0)
}

func (m *MockStore) Requeue(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockStore) Results(ctx context.Context, id string) ([]models.Listing, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Listing), args.Error(1)
}

// stubScraper replays canned results through the progress callback.
type stubScraper struct {
	results []models.ScrapeResult
	err     error
	before  func()
}

func (s *stubScraper) ScrapeURL(ctx context.Context, url string) models.ScrapeResult {
	return models.ScrapeResult{Listing: models.Listing{URL: url}}
}

func (s *stubScraper) ScrapeBatch(ctx context.Context, urls []string, progress scraper.ProgressFunc) ([]models.Listing, error) {
	if s.before != nil {
		s.before()
	}
	var listings []models.Listing
	for i, r := range s.results {
		listings = append(listings, r.Record())
		if progress != nil {
			progress(i+1, len(s.results), r)
		}
	}
	return listings, s.err
}

func newTestManager(store Store, s scraper.Scraper) *Manager {
	return NewManager(store, s, slog.Default(), Options{MaxURLs: 3, Stream: "stream:test"})
}

func TestManager_CreateJob(t *testing.T) {
	ctx := context.Background()

	t.Run("stores cleaned urls", func(t *testing.T) {
		store := new(MockStore)
		store.On("Create", ctx, mock.MatchedBy(func(job *models.Job) bool {
			return job.Status == models.JobStatusPending &&
				job.TotalURLs == 2 &&
				job.URLs[0] == "https://www.example.com/itm/1" &&
				job.URLs[1] == "https://www.example.com/itm/2"
		})).Return(nil)

		job, err := newTestManager(store, &stubScraper{}).CreateJob(ctx, []string{
			" https://www.example.com/itm/1 ", "", "https://www.example.com/itm/2",
		})

		require.NoError(t, err)
		assert.NotEmpty(t, job.ID)
		store.AssertExpectations(t)
	})

	t.Run("rejects empty input", func(t *testing.T) {
		_, err := newTestManager(new(MockStore), &stubScraper{}).CreateJob(ctx, []string{" ", ""})
		assert.ErrorIs(t, err, ErrNoURLs)
	})

	t.Run("rejects oversized input", func(t *testing.T) {
		urls := strings.Split("a b c d", " ")
		_, err := newTestManager(new(MockStore), &stubScraper{}).CreateJob(ctx, urls)
		assert.ErrorIs(t, err, ErrTooManyURLs)
	})

	t.Run("store failure is returned", func(t *testing.T) {
		store := new(MockStore)
		store.On("Create", ctx, mock.Anything).Return(errors.New("db down"))

		_, err := newTestManager(store, &stubScraper{}).CreateJob(ctx, []string{"u"})
		assert.ErrorContains(t, err, "db down")
	})
}

func TestManager_Results(t *testing.T) {
	ctx := context.Background()

	t.Run("completed job", func(t *testing.T) {
		store := new(MockStore)
		listings := []models.Listing{models.FailedListing("u")}
		store.On("Get", ctx, "job-1").Return(&models.Job{ID: "job-1", Status: models.JobStatusCompleted}, nil)
		store.On("Results", ctx, "job-1").Return(listings, nil)

		got, err := newTestManager(store, &stubScraper{}).Results(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, listings, got)
	})

	t.Run("running job", func(t *testing.T) {
		store := new(MockStore)
		store.On("Get", ctx, "job-2").Return(&models.Job{ID: "job-2", Status: models.JobStatusRunning}, nil)

		_, err := newTestManager(store, &stubScraper{}).Results(ctx, "job-2")
		assert.ErrorIs(t, err, ErrJobNotFinished)
		store.AssertNotCalled(t, "Results", mock.Anything, mock.Anything)
	})

	t.Run("missing job", func(t *testing.T) {
		store := new(MockStore)
		store.On("Get", ctx, "nope").Return(nil, database.ErrJobNotFound)

		_, err := newTestManager(store, &stubScraper{}).Results(ctx, "nope")
		assert.ErrorIs(t, err, database.ErrJobNotFound)
	})
}

func TestManager_ProcessNextJob(t *testing.T) {
	ctx := context.Background()

	t.Run("no pending jobs", func(t *testing.T) {
		store := new(MockStore)
		store.On("ClaimNextPending", ctx).Return(nil, database.ErrNoPendingJobs)

		assert.False(t, newTestManager(store, &stubScraper{}).processNextJob(ctx))
		store.AssertExpectations(t)
	})

	t.Run("runs job and stores results with event", func(t *testing.T) {
		store := new(MockStore)
		job := &models.Job{ID: "job-3", Status: models.JobStatusRunning, URLs: []string{"a", "b"}, TotalURLs: 2}
		ok := models.ScrapeResult{Listing: models.Listing{URL: "a", ItemID: "1", Price: "$1.00", Shipping: models.NotAvailable, Inventory: models.NotAvailable}}
		bad := models.NewFailure("b", models.ErrCodeFetchFailed, errors.New("timeout"))

		store.On("ClaimNextPending", ctx).Return(job, nil)
		store.On("UpdateProgress", ctx, "job-3", 1, 0).Return(nil)
		store.On("UpdateProgress", ctx, "job-3", 2, 1).Return(nil)
		store.On("Complete", ctx, job, []models.Listing{ok.Listing, models.FailedListing("b")},
			mock.MatchedBy(func(e *database.OutboxEvent) bool {
				return e.AggregateID == "job-3" && e.TargetStream == "stream:test"
			})).Return(nil)

		m := newTestManager(store, &stubScraper{results: []models.ScrapeResult{ok, bad}})
		assert.True(t, m.processNextJob(ctx))

		assert.Equal(t, 2, job.ProcessedURLs)
		assert.Equal(t, 1, job.FailedURLs)
		store.AssertExpectations(t)
	})

	t.Run("storage failure marks job failed", func(t *testing.T) {
		store := new(MockStore)
		job := &models.Job{ID: "job-4", URLs: []string{"a"}, TotalURLs: 1}
		res := models.ScrapeResult{Listing: models.FailedListing("a")}

		store.On("ClaimNextPending", ctx).Return(job, nil)
		store.On("UpdateProgress", ctx, "job-4", 1, 0).Return(nil)
		store.On("Complete", ctx, job, mock.Anything, mock.Anything).Return(errors.New("disk full"))
		store.On("Fail", ctx, "job-4", mock.Anything).Return(nil)

		m := newTestManager(store, &stubScraper{results: []models.ScrapeResult{res}})
		assert.True(t, m.processNextJob(ctx))
		store.AssertExpectations(t)
	})

	t.Run("cancelled batch requeues job", func(t *testing.T) {
		store := new(MockStore)
		cctx, cancel := context.WithCancel(ctx)
		defer cancel()
		job := &models.Job{ID: "job-5", URLs: []string{"a"}, TotalURLs: 1}

		store.On("ClaimNextPending", cctx).Return(job, nil)
		store.On("Requeue", mock.Anything, "job-5").Return(nil)

		s := &stubScraper{err: context.Canceled, before: cancel}
		assert.False(t, newTestManager(store, s).processNextJob(cctx))

		store.AssertExpectations(t)
		store.AssertNotCalled(t, "Fail", mock.Anything, mock.Anything, mock.Anything)
		store.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestManager_StartWorker(t *testing.T) {
	t.Run("claims immediately on startup", func(t *testing.T) {
		store := new(MockStore)
		ctx, cancel := context.WithCancel(context.Background())

		claimed := make(chan struct{})
		store.On("ClaimNextPending", ctx).Run(func(mock.Arguments) {
			close(claimed)
		}).Return(nil, database.ErrNoPendingJobs).Once()
		store.On("ClaimNextPending", ctx).Return(nil, database.ErrNoPendingJobs).Maybe()

		m := NewManager(store, &stubScraper{}, slog.Default(), Options{PollInterval: time.Hour})

		done := make(chan struct{})
		go func() {
			m.StartWorker(ctx)
			close(done)
		}()

		select {
		case <-claimed:
		case <-time.After(time.Second):
			t.Fatal("worker did not claim before the first poll interval")
		}

		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("worker did not stop on context cancellation")
		}
	})
}
