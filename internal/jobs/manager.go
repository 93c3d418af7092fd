package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/listing-scraper/internal/database"
	"github.com/maltedev/listing-scraper/internal/models"
	"github.com/maltedev/listing-scraper/internal/scraper"
)

var (
	ErrNoURLs         = errors.New("at least one url is required")
	ErrTooManyURLs    = errors.New("too many urls")
	ErrJobNotFinished = errors.New("job has not finished")
)

// Store persists jobs and their results.
type Store interface {
	Create(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, id string) (*models.Job, error)
	List(ctx context.Context, limit int) ([]*models.Job, error)
	ClaimNextPending(ctx context.Context) (*models.Job, error)
	UpdateProgress(ctx context.Context, id string, processed, failed int) error
	Complete(ctx context.Context, job *models.Job, listings []models.Listing, event *database.OutboxEvent) error
	Fail(ctx context.Context, id string, cause error) error
	Requeue(ctx context.Context, id string) error
	Results(ctx context.Context, id string) ([]models.Listing, error)
}

type Options struct {
	PollInterval time.Duration
	MaxURLs      int
	Stream       string
}

type Manager struct {
	store        Store
	scraper      scraper.Scraper
	logger       *slog.Logger
	pollInterval time.Duration
	maxURLs      int
	stream       string
}

func NewManager(store Store, s scraper.Scraper, logger *slog.Logger, opts Options) *Manager {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.MaxURLs <= 0 {
		opts.MaxURLs = 500
	}

	return &Manager{
		store:        store,
		scraper:      s,
		logger:       logger.With("component", "job_manager"),
		pollInterval: opts.PollInterval,
		maxURLs:      opts.MaxURLs,
		stream:       opts.Stream,
	}
}

// CreateJob queues urls for background scraping. Blank entries are dropped;
// order is otherwise preserved.
func (m *Manager) CreateJob(ctx context.Context, urls []string) (*models.Job, error) {
	cleaned, err := m.CleanURLs(urls)
	if err != nil {
		return nil, err
	}

	job := &models.Job{
		ID:        uuid.New().String(),
		Status:    models.JobStatusPending,
		URLs:      cleaned,
		TotalURLs: len(cleaned),
		CreatedAt: time.Now(),
	}

	if err := m.store.Create(ctx, job); err != nil {
		return nil, err
	}

	m.logger.Info("job created", "id", job.ID, "urls", job.TotalURLs)
	return job, nil
}

// CleanURLs trims urls, drops blanks and enforces the per-request limit.
func (m *Manager) CleanURLs(urls []string) ([]string, error) {
	cleaned := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			cleaned = append(cleaned, u)
		}
	}

	if len(cleaned) == 0 {
		return nil, ErrNoURLs
	}
	if len(cleaned) > m.maxURLs {
		return nil, fmt.Errorf("%w: %d exceeds limit of %d", ErrTooManyURLs, len(cleaned), m.maxURLs)
	}
	return cleaned, nil
}

func (m *Manager) GetJob(ctx context.Context, id string) (*models.Job, error) {
	return m.store.Get(ctx, id)
}

func (m *Manager) ListJobs(ctx context.Context) ([]*models.Job, error) {
	return m.store.List(ctx, 100)
}

// Results returns the listings of a completed job in input order.
func (m *Manager) Results(ctx context.Context, id string) ([]models.Listing, error) {
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusCompleted {
		return nil, fmt.Errorf("%w: status is %s", ErrJobNotFinished, job.Status)
	}
	return m.store.Results(ctx, id)
}
