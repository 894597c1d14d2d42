package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/snapvault/snapvault/internal/capture"
	"github.com/snapvault/snapvault/internal/ingest"
	"github.com/snapvault/snapvault/internal/jobstore"
	"github.com/snapvault/snapvault/internal/storage"
	"github.com/snapvault/snapvault/internal/worker"
)

// submitJob accepts a URL list upload, creates a pending job, and queues it.
func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file upload")
		return
	}
	defer file.Close()

	urls, err := ingest.ParseLimit(file, header.Filename, s.maxRows)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unreadable upload: %v", err))
		return
	}
	valid := capture.FilterValid(urls)
	if len(valid) == 0 {
		writeError(w, http.StatusBadRequest, "no valid urls in upload")
		return
	}

	jobID, err := s.createJob(r.Context(), valid)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusRequestTimeout
		}
		s.logger.Error("job submission failed", zap.Error(err))
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, submitResponse{
		JobID:     jobID,
		URLsCount: len(valid),
		Skipped:   len(urls) - len(valid),
	})
}

// createJob persists a pending record and hands the job to the queue.
func (s *Server) createJob(ctx context.Context, urls []string) (string, error) {
	jobID, err := s.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	rec := jobstore.Record{
		ID:        jobID,
		Status:    jobstore.StatusPending,
		URLsCount: len(urls),
		CreatedAt: s.clock.Now(),
	}
	if err := s.jobs.Create(ctx, rec); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	queueCtx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()
	if err := s.enqueuer.Enqueue(queueCtx, worker.JobRequest{JobID: jobID, URLs: urls}); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return jobID, nil
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultPageSize)
	if limit < 1 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	recs, err := s.jobs.List(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list jobs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list jobs failed")
		return
	}
	if recs == nil {
		recs = []jobstore.Record{}
	}
	writeJSON(w, http.StatusOK, listResponse{Jobs: recs})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	rec, err := s.jobs.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("get job failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get job failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// downloadArchive redirects to a time-limited URL for a completed job's zip.
func (s *Server) downloadArchive(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	rec, err := s.jobs.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("get job failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get job failed")
		return
	}
	if rec.Status != jobstore.StatusCompleted {
		writeError(w, http.StatusConflict, fmt.Sprintf("job is %s, not completed", rec.Status))
		return
	}
	if rec.ArchiveKey == "" {
		writeError(w, http.StatusNotFound, "archive not found")
		return
	}

	url, err := s.blobs.SignedURL(rec.ArchiveKey, downloadURLTTL)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "archive not found")
			return
		}
		s.logger.Error("sign archive url failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "sign archive url failed")
		return
	}

	w.Header().Set("Location", url)
	writeJSON(w, http.StatusTemporaryRedirect, downloadResponse{JobID: jobID, URL: url})
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
