// Package jobstore defines the persistence contract for screenshot jobs.
package jobstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no job exists with the requested ID.
var ErrNotFound = errors.New("job not found")

// Status represents the lifecycle state of a screenshot job.
type Status string

// Job status values persisted in the job store.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Record is the metadata persisted for each submitted job. Completed counts
// successfully captured URLs and is bumped while the job runs; ArchiveKey is
// set only when the job completes.
type Record struct {
	ID          string     `json:"id"`
	Status      Status     `json:"status"`
	URLsCount   int        `json:"urls_count"`
	Completed   int        `json:"completed"`
	ArchiveKey  string     `json:"archive_key,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Update is a partial patch applied to a job record. Nil fields are left
// untouched.
type Update struct {
	Status      *Status
	URLsCount   *int
	Completed   *int
	ArchiveKey  *string
	ProcessedAt *time.Time
}

// Store persists job records.
type Store interface {
	Create(ctx context.Context, rec Record) error
	Update(ctx context.Context, jobID string, patch Update) error
	Get(ctx context.Context, jobID string) (Record, error)
	List(ctx context.Context, limit, offset int) ([]Record, error)
}
