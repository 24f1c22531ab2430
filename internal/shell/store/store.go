package store

import (
	"context"
	"time"
)

// =============================================================================
// Refresh Job Journal
// =============================================================================

// JobStatus is the lifecycle state of one refresh run.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusPartial   JobStatus = "partial"
)

// RefreshJob is one background refresh run, journaled locally so operators
// can see what the trigger endpoint actually did.
type RefreshJob struct {
	ID          string     `db:"id" json:"id"`
	Trigger     string     `db:"trigger" json:"trigger"`
	Sources     string     `db:"sources" json:"sources"`
	Status      JobStatus  `db:"status" json:"status"`
	Error       string     `db:"error" json:"error,omitempty"`
	OrdersFound int        `db:"orders_found" json:"orders_found"`
	StartedAt   time.Time  `db:"started_at" json:"started_at"`
	FinishedAt  *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}

// Store is the journal interface consumed by the refresher and the API.
type Store interface {
	CreateJob(ctx context.Context, job *RefreshJob) error
	FinishJob(ctx context.Context, id string, status JobStatus, ordersFound int, errMsg string) error
	GetJob(ctx context.Context, id string) (*RefreshJob, error)
	ListJobs(ctx context.Context, limit int) ([]RefreshJob, error)
	Close() error
}
