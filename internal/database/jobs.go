package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/maltedev/listing-scraper/internal/models"
)

var (
	ErrJobNotFound   = errors.New("job not found")
	ErrNoPendingJobs = errors.New("no pending jobs")
)

type JobRepository struct {
	db     *DB
	outbox *OutboxRepository
}

func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{
		db:     db,
		outbox: NewOutboxRepository(db),
	}
}

const jobColumns = `id, status, urls, total_urls, processed_urls, failed_urls,
	created_at, started_at, completed_at, error`

func scanJob(row pgx.Row) (*models.Job, error) {
	job := &models.Job{}
	err := row.Scan(
		&job.ID, &job.Status, &job.URLs, &job.TotalURLs, &job.ProcessedURLs, &job.FailedURLs,
		&job.CreatedAt, &job.StartedAt, &job.CompletedAt, &job.Error,
	)
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO scrape_jobs (id, status, urls, total_urls, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.Exec(ctx, query, job.ID, job.Status, job.URLs, job.TotalURLs, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (r *JobRepository) Get(ctx context.Context, id string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM scrape_jobs WHERE id = $1`

	job, err := scanJob(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// List returns the most recent jobs first, without their URL lists.
func (r *JobRepository) List(ctx context.Context, limit int) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM scrape_jobs ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		job.URLs = nil
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}

	return jobs, nil
}

// ClaimNextPending marks the oldest pending job as running and returns it.
// Concurrent workers never claim the same job.
func (r *JobRepository) ClaimNextPending(ctx context.Context) (*models.Job, error) {
	query := `
		UPDATE scrape_jobs
		SET status = $1, started_at = $2
		WHERE id = (
			SELECT id FROM scrape_jobs
			WHERE status = $3
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	job, err := scanJob(r.db.QueryRow(ctx, query, models.JobStatusRunning, time.Now(), models.JobStatusPending))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoPendingJobs
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return job, nil
}

func (r *JobRepository) UpdateProgress(ctx context.Context, id string, processed, failed int) error {
	query := `UPDATE scrape_jobs SET processed_urls = $1, failed_urls = $2 WHERE id = $3`

	if _, err := r.db.Exec(ctx, query, processed, failed, id); err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

// Complete stores the listings of a finished job, marks it completed and
// queues its event in the outbox, all in one transaction.
func (r *JobRepository) Complete(ctx context.Context, job *models.Job, listings []models.Listing, event *OutboxEvent) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM job_listings WHERE job_id = $1`, job.ID); err != nil {
			return fmt.Errorf("failed to clear listings: %w", err)
		}

		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"job_listings"},
			[]string{"job_id", "position", "url", "item_id", "price", "shipping", "inventory"},
			pgx.CopyFromSlice(len(listings), func(i int) ([]interface{}, error) {
				l := listings[i]
				return []interface{}{job.ID, i, l.URL, l.ItemID, l.Price, l.Shipping, l.Inventory}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("failed to store listings: %w", err)
		}

		query := `
			UPDATE scrape_jobs
			SET status = $1, processed_urls = $2, failed_urls = $3, completed_at = $4
			WHERE id = $5`
		if _, err := tx.Exec(ctx, query,
			models.JobStatusCompleted, job.ProcessedURLs, job.FailedURLs, time.Now(), job.ID); err != nil {
			return fmt.Errorf("failed to complete job: %w", err)
		}

		if event != nil {
			return r.outbox.InsertWithTx(ctx, tx, event)
		}
		return nil
	})
}

func (r *JobRepository) Fail(ctx context.Context, id string, cause error) error {
	query := `UPDATE scrape_jobs SET status = $1, completed_at = $2, error = $3 WHERE id = $4`

	if _, err := r.db.Exec(ctx, query, models.JobStatusFailed, time.Now(), cause.Error(), id); err != nil {
		return fmt.Errorf("failed to mark job as failed: %w", err)
	}
	return nil
}

// Requeue puts an interrupted job back into the pending state.
func (r *JobRepository) Requeue(ctx context.Context, id string) error {
	query := `
		UPDATE scrape_jobs
		SET status = $1, started_at = NULL, processed_urls = 0, failed_urls = 0
		WHERE id = $2 AND status = $3`

	if _, err := r.db.Exec(ctx, query, models.JobStatusPending, id, models.JobStatusRunning); err != nil {
		return fmt.Errorf("failed to requeue job: %w", err)
	}
	return nil
}

// Results returns the stored listings of a job in input order.
func (r *JobRepository) Results(ctx context.Context, id string) ([]models.Listing, error) {
	query := `
		SELECT url, item_id, price, shipping, inventory
		FROM job_listings
		WHERE job_id = $1
		ORDER BY position`

	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get job listings: %w", err)
	}
	defer rows.Close()

	listings := make([]models.Listing, 0)
	for rows.Next() {
		var l models.Listing
		if err := rows.Scan(&l.URL, &l.ItemID, &l.Price, &l.Shipping, &l.Inventory); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating listings: %w", err)
	}

	return listings, nil
}
