package model

import "time"

// ImportStatus is the lifecycle state of an Import record.
type ImportStatus string

const (
	ImportRunning ImportStatus = "RUNNING"
	ImportSuccess ImportStatus = "SUCCESS"
	ImportFailed  ImportStatus = "FAILED"
)

// ImportCounts are the aggregate statistics of one publisher run.
type ImportCounts struct {
	Received int `json:"mission_count"`
	Created  int `json:"created_count"`
	Updated  int `json:"updated_count"`
	Deleted  int `json:"deleted_count"`
	Refused  int `json:"refused_count"`
	Failed   int `json:"failed_count"`
}

// Import is the audit record of one publisher run.
type Import struct {
	ID          string       `json:"id"`
	PublisherID string       `json:"publisher_id"`
	Status      ImportStatus `json:"status"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
	Counts      ImportCounts `json:"counts"`
	Error       string       `json:"error,omitempty"`
}
