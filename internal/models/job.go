package models

import (
	"time"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Job is a batch of URLs scraped in the background.
type Job struct {
	ID            string     `json:"id"`
	Status        string     `json:"status"`
	URLs          []string   `json:"urls,omitempty"`
	TotalURLs     int        `json:"total_urls"`
	ProcessedURLs int        `json:"processed_urls"`
	FailedURLs    int        `json:"failed_urls"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// Progress returns the completed share of the job in percent.
func (j *Job) Progress() float64 {
	if j.TotalURLs == 0 {
		return 100
	}
	return float64(j.ProcessedURLs) / float64(j.TotalURLs) * 100
}

func (j *Job) Finished() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
