package api

import "github.com/snapvault/snapvault/internal/jobstore"

type errorResponse struct {
	Error string `json:"error"`
}

type submitResponse struct {
	JobID     string `json:"job_id"`
	URLsCount int    `json:"urls_count"`
	Skipped   int    `json:"skipped"`
}

type listResponse struct {
	Jobs []jobstore.Record `json:"jobs"`
}

type downloadResponse struct {
	JobID string `json:"job_id"`
	URL   string `json:"url"`
}
