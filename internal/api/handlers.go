package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/maltedev/listing-scraper/internal/database"
	"github.com/maltedev/listing-scraper/internal/export"
	"github.com/maltedev/listing-scraper/internal/jobs"
	"github.com/maltedev/listing-scraper/internal/models"
	"github.com/maltedev/listing-scraper/internal/scraper"
)

const maxHTMLBytes = 10 << 20

// ListingScraper is the part of scraper.Service the handlers use.
type ListingScraper interface {
	ScrapeBatch(ctx context.Context, urls []string, progress scraper.ProgressFunc) ([]models.Listing, error)
	Extract(url, html string) models.ScrapeResult
}

type JobService interface {
	CleanURLs(urls []string) ([]string, error)
	CreateJob(ctx context.Context, urls []string) (*models.Job, error)
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListJobs(ctx context.Context) ([]*models.Job, error)
	Results(ctx context.Context, id string) ([]models.Listing, error)
}

// OutboxMonitor reports the outbox backlog for the health check.
type OutboxMonitor interface {
	Backlog(ctx context.Context) (pending, deadLetter int64, err error)
}

type Options struct {
	// MaxSyncURLs caps POST /api/v1/scrape. Larger batches must be queued
	// as jobs.
	MaxSyncURLs int
}

type Handlers struct {
	scraper     ListingScraper
	jobs        JobService
	outbox      OutboxMonitor
	logger      *slog.Logger
	maxSyncURLs int
}

func NewHandlers(scraper ListingScraper, jobs JobService, outbox OutboxMonitor, logger *slog.Logger, opts Options) *Handlers {
	if opts.MaxSyncURLs <= 0 {
		opts.MaxSyncURLs = 20
	}

	return &Handlers{
		scraper:     scraper,
		jobs:        jobs,
		outbox:      outbox,
		logger:      logger.With("component", "api"),
		maxSyncURLs: opts.MaxSyncURLs,
	}
}

// Routes mounts the API on r.
func (h *Handlers) Routes(r chi.Router) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/scrape", h.Scrape)
		r.Post("/parse", h.Parse)

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", h.CreateJob)
			r.Get("/", h.ListJobs)
			r.Get("/{jobID}", h.GetJob)
			r.Get("/{jobID}/results", h.GetJobResults)
		})
	})
}

type ScrapeRequest struct {
	URLs []string `json:"urls"`
}

type ScrapeResponse struct {
	Listings []models.Listing `json:"listings"`
	Total    int              `json:"total"`
	Failed   int              `json:"failed"`
}

// Scrape runs a small batch synchronously and returns the listings in input
// order.
func (h *Handlers) Scrape(w http.ResponseWriter, r *http.Request) {
	var req ScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	urls, err := h.jobs.CleanURLs(req.URLs)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(urls) > h.maxSyncURLs {
		h.respondError(w, http.StatusBadRequest,
			fmt.Sprintf("at most %d urls can be scraped synchronously, use /api/v1/jobs for larger batches", h.maxSyncURLs))
		return
	}

	failed := 0
	listings, err := h.scraper.ScrapeBatch(r.Context(), urls, func(done, total int, result models.ScrapeResult) {
		if !result.Success() {
			failed++
		}
	})
	if err != nil {
		h.logger.Warn("scrape request interrupted", "completed", len(listings), "total", len(urls), "error", err)
		h.respondError(w, http.StatusServiceUnavailable, "scrape interrupted")
		return
	}

	h.respondJSON(w, http.StatusOK, ScrapeResponse{
		Listings: listings,
		Total:    len(listings),
		Failed:   failed,
	})
}

// Parse extracts a listing from the HTML in the request body. The optional
// url query parameter supplies the item id.
func (h *Handlers) Parse(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxHTMLBytes+1))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(body) > maxHTMLBytes {
		h.respondError(w, http.StatusRequestEntityTooLarge, "body too large")
		return
	}

	result := h.scraper.Extract(r.URL.Query().Get("url"), string(body))
	if !result.Success() {
		h.logger.Warn("failed to parse markup", "error", result.Err)
	}

	h.respondJSON(w, http.StatusOK, models.ScrapeResult{
		Listing: result.Record(),
		Err:     result.Err,
	})
}

type CreateJobResponse struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	TotalURLs int    `json:"total_urls"`
	Message   string `json:"message"`
}

func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req ScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := h.jobs.CreateJob(r.Context(), req.URLs)
	if errors.Is(err, jobs.ErrNoURLs) || errors.Is(err, jobs.ErrTooManyURLs) {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("failed to create job", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	h.respondJSON(w, http.StatusAccepted, CreateJobResponse{
		JobID:     job.ID,
		Status:    job.Status,
		TotalURLs: job.TotalURLs,
		Message:   "Job queued",
	})
}

func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		h.respondJobError(w, jobID, err)
		return
	}

	h.respondJSON(w, http.StatusOK, job)
}

func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	list, err := h.jobs.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if list == nil {
		list = []*models.Job{}
	}

	h.respondJSON(w, http.StatusOK, list)
}

// GetJobResults serves a completed job's table as json (default), csv or xlsx.
func (h *Handlers) GetJobResults(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	format := r.URL.Query().Get("format")

	switch format {
	case "", "json", "csv", "xlsx":
	default:
		h.respondError(w, http.StatusBadRequest, "format must be json, csv or xlsx")
		return
	}

	listings, err := h.jobs.Results(r.Context(), jobID)
	if err != nil {
		h.respondJobError(w, jobID, err)
		return
	}

	switch format {
	case "csv":
		h.attach(w, "text/csv", jobID+".csv")
		err = export.WriteCSV(w, listings)
	case "xlsx":
		h.attach(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", jobID+".xlsx")
		err = export.WriteXLSX(w, listings)
	default:
		if listings == nil {
			listings = []models.Listing{}
		}
		h.respondJSON(w, http.StatusOK, listings)
	}
	if err != nil {
		h.logger.Error("failed to write results", "id", jobID, "format", format, "error", err)
	}
}

// Health reports ok unless the outbox is backing up.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{"status": "ok"}
	status := http.StatusOK

	if h.outbox != nil {
		pending, deadLetter, err := h.outbox.Backlog(r.Context())
		if err != nil {
			h.logger.Error("failed to read outbox backlog", "error", err)
			health["status"] = "error"
			health["message"] = "outbox unavailable"
			h.respondJSON(w, http.StatusServiceUnavailable, health)
			return
		}

		health["outbox"] = map[string]int64{
			"pending":     pending,
			"dead_letter": deadLetter,
		}
		if pending > 1000 {
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
		if deadLetter > 100 {
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		}
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) respondJobError(w http.ResponseWriter, jobID string, err error) {
	switch {
	case errors.Is(err, database.ErrJobNotFound):
		h.respondError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, jobs.ErrJobNotFinished):
		h.respondError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("job lookup failed", "id", jobID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load job")
	}
}

func (h *Handlers) attach(w http.ResponseWriter, contentType, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
