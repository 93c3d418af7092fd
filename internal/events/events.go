package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/listing-scraper/internal/database"
	"github.com/maltedev/listing-scraper/internal/models"
)

type EventType string

const (
	// EventTypeListingsScraped is emitted once a job's results are stored.
	EventTypeListingsScraped EventType = "LISTINGS_SCRAPED"

	AggregateTypeJob = "scrape_job"
)

type ListingsScrapedPayload struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	Timestamp time.Time        `json:"timestamp"`
	JobID     string           `json:"job_id"`
	Total     int              `json:"total"`
	Failed    int              `json:"failed"`
	Listings  []models.Listing `json:"listings"`
	Source    string           `json:"source"`
}

// NewListingsScraped builds the outbox event announcing a finished job.
// stream may be empty to use the default target stream.
func NewListingsScraped(job *models.Job, listings []models.Listing, stream string) (*database.OutboxEvent, error) {
	payload := ListingsScrapedPayload{
		EventID:   uuid.New().String(),
		EventType: string(EventTypeListingsScraped),
		Timestamp: time.Now(),
		JobID:     job.ID,
		Total:     len(listings),
		Failed:    countFailed(listings),
		Listings:  listings,
		Source:    "scraper",
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return &database.OutboxEvent{
		AggregateType: AggregateTypeJob,
		AggregateID:   job.ID,
		EventType:     string(EventTypeListingsScraped),
		Payload:       data,
		TargetStream:  stream,
	}, nil
}

func countFailed(listings []models.Listing) int {
	n := 0
	for _, l := range listings {
		if l.IsFailed() {
			n++
		}
	}
	return n
}
