// Package notify publishes events when jobs reach a terminal status.
package notify

import "context"

// Event describes a finished job. Consumers use it to trigger downstream
// processing such as webhooks or billing.
type Event struct {
	JobID      string `json:"job_id"`
	Status     string `json:"status"`
	ArchiveKey string `json:"archive_key,omitempty"`
	Completed  int    `json:"completed"`
	Total      int    `json:"total"`
}

// Publisher delivers terminal job events to interested consumers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NoOp discards events. Used when no broker is configured.
type NoOp struct{}

// Publish implements Publisher.
func (NoOp) Publish(context.Context, Event) error { return nil }
