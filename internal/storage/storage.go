// Package storage defines the interface for persisting capture artifacts.
// This abstraction keeps the pipeline independent of a specific backend;
// implementations cover Google Cloud Storage, the local filesystem, and an
// in-memory map for development and tests.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get and SignedURL when no object exists under
// the key.
var ErrNotFound = errors.New("object not found")

// Store reads and writes capture artifacts.
type Store interface {
	// Put uploads data under key with the given content type.
	Put(ctx context.Context, key string, contentType string, data []byte) error
	// Get returns the full content stored under key.
	Get(ctx context.Context, key string) ([]byte, error)
	// SignedURL returns a time-limited download URL for key.
	SignedURL(key string, ttl time.Duration) (string, error)
}

// NoOp discards writes and never finds anything. It is useful for dry runs
// where pages are rendered but nothing is persisted.
type NoOp struct{}

// Put discards the data.
func (NoOp) Put(context.Context, string, string, []byte) error { return nil }

// Get always reports a missing object.
func (NoOp) Get(context.Context, string) ([]byte, error) { return nil, ErrNotFound }

// SignedURL always reports a missing object.
func (NoOp) SignedURL(string, time.Duration) (string, error) { return "", ErrNotFound }
