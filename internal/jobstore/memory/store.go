// Package memory provides an in-memory job store for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/snapvault/snapvault/internal/jobstore"
)

// Store keeps job records in a map guarded by a RWMutex.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]jobstore.Record
}

// New constructs an empty Store.
func New() *Store {
	return &Store{jobs: make(map[string]jobstore.Record)}
}

// Create stores a new job record, rejecting duplicates.
func (s *Store) Create(_ context.Context, rec jobstore.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("job id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[rec.ID]; exists {
		return fmt.Errorf("job %s already exists", rec.ID)
	}
	s.jobs[rec.ID] = rec
	return nil
}

// Update applies the non-nil fields of patch to the stored record.
func (s *Store) Update(_ context.Context, jobID string, patch jobstore.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.jobs[jobID]
	if !ok {
		return jobstore.ErrNotFound
	}
	if patch.Status != nil {
		rec.Status = *patch.Status
	}
	if patch.URLsCount != nil {
		rec.URLsCount = *patch.URLsCount
	}
	if patch.Completed != nil {
		rec.Completed = *patch.Completed
	}
	if patch.ArchiveKey != nil {
		rec.ArchiveKey = *patch.ArchiveKey
	}
	if patch.ProcessedAt != nil {
		at := *patch.ProcessedAt
		rec.ProcessedAt = &at
	}
	s.jobs[jobID] = rec
	return nil
}

// Get fetches a job record by ID.
func (s *Store) Get(_ context.Context, jobID string) (jobstore.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.jobs[jobID]
	if !ok {
		return jobstore.Record{}, jobstore.ErrNotFound
	}
	return rec, nil
}

// List returns job records newest first.
func (s *Store) List(_ context.Context, limit, offset int) ([]jobstore.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	s.mu.RLock()
	recs := make([]jobstore.Record, 0, len(s.jobs))
	for _, rec := range s.jobs {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].ID > recs[j].ID
		}
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})

	if offset >= len(recs) {
		return nil, nil
	}
	recs = recs[offset:]
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}
