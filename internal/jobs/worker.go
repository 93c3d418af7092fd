package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/maltedev/listing-scraper/internal/database"
	"github.com/maltedev/listing-scraper/internal/events"
	"github.com/maltedev/listing-scraper/internal/models"
)

// StartWorker runs pending jobs one after another until ctx is cancelled.
func (m *Manager) StartWorker(ctx context.Context) {
	m.logger.Info("job worker started", "poll_interval", m.pollInterval)

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	// Pick up jobs left pending by a previous run without waiting a tick.
	for m.processNextJob(ctx) {
	}

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("job worker stopping")
			return
		case <-ticker.C:
			// Drain the queue before waiting for the next tick.
			for m.processNextJob(ctx) {
			}
		}
	}
}

// processNextJob claims and runs one job. It reports whether a job was
// found, so the caller can keep draining.
func (m *Manager) processNextJob(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	job, err := m.store.ClaimNextPending(ctx)
	if errors.Is(err, database.ErrNoPendingJobs) {
		return false
	}
	if err != nil {
		m.logger.Error("failed to claim job", "error", err)
		return false
	}

	m.logger.Info("processing job", "id", job.ID, "urls", job.TotalURLs)

	if err := m.runJob(ctx, job); err != nil {
		if ctx.Err() != nil {
			// Shutting down: leave the job for the next worker.
			if reqErr := m.store.Requeue(context.Background(), job.ID); reqErr != nil {
				m.logger.Error("failed to requeue job", "id", job.ID, "error", reqErr)
			}
			m.logger.Info("job interrupted", "id", job.ID)
			return false
		}

		m.logger.Error("job failed", "id", job.ID, "error", err)
		if failErr := m.store.Fail(ctx, job.ID, err); failErr != nil {
			m.logger.Error("failed to mark job as failed", "id", job.ID, "error", failErr)
		}
		return true
	}

	m.logger.Info("job completed", "id", job.ID, "failed_urls", job.FailedURLs)
	return true
}

func (m *Manager) runJob(ctx context.Context, job *models.Job) error {
	failed := 0
	listings, err := m.scraper.ScrapeBatch(ctx, job.URLs, func(done, total int, result models.ScrapeResult) {
		if !result.Success() {
			failed++
		}
		if err := m.store.UpdateProgress(ctx, job.ID, done, failed); err != nil {
			m.logger.Warn("failed to update job progress", "id", job.ID, "error", err)
		}
	})
	if err != nil {
		return err
	}

	job.ProcessedURLs = len(listings)
	job.FailedURLs = failed

	event, err := events.NewListingsScraped(job, listings, m.stream)
	if err != nil {
		return err
	}

	return m.store.Complete(ctx, job, listings, event)
}
