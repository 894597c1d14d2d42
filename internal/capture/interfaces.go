package capture

import (
	"context"
	"time"
)

// Renderer drives a single browser session: it loads a page and returns a
// full-page screenshot. Implementations own exactly one session at a time;
// Recycle tears that session down and launches a fresh one.
type Renderer interface {
	Capture(ctx context.Context, url string, timeout time.Duration) (Shot, error)
	Recycle(ctx context.Context) error
}

// ObjectStore persists capture artifacts.
type ObjectStore interface {
	Put(ctx context.Context, key string, contentType string, data []byte) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// ProgressFunc is invoked after every successful capture with the number of
// items completed so far.
type ProgressFunc func(ctx context.Context, completed int)
