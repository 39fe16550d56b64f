package queue

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"time"
)

// JobType identifies a kind of background job
type JobType string

const (
	// JobTypeApproveCommissions sweeps PENDING commissions past their
	// hold period into APPROVED
	JobTypeApproveCommissions JobType = "approve_due_commissions"

	// JobTypePersistFraudAlerts writes fraud alerts raised during
	// payment processing
	JobTypePersistFraudAlerts JobType = "persist_fraud_alerts"
)

// JobStatus is the lifecycle state of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job is a background job carried on the Redis queue
type Job struct {
	ID         string          `json:"id"`
	Type       JobType         `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Status     JobStatus       `json:"status"`
	RetryCount int             `json:"retry_count"`
	MaxRetries int             `json:"max_retries"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	RunAt      time.Time       `json:"run_at"`
}

// JobHandler processes a job
type JobHandler func(ctx context.Context, job Job) error

// Enqueuer is the enqueue-side surface of the queue, the only part
// request handlers and services depend on
type Enqueuer interface {
	Enqueue(jobType JobType, payload interface{}, opts ...EnqueueOption) (string, error)
	EnqueueIn(jobType JobType, payload interface{}, delay time.Duration, opts ...EnqueueOption) (string, error)
}

// EnqueueOption modifies a job before it is enqueued
type EnqueueOption func(*Job)

// WithMaxRetries sets the maximum number of retries for a job
func WithMaxRetries(maxRetries int) EnqueueOption {
	return func(j *Job) {
		j.MaxRetries = maxRetries
	}
}

// JobPayload unmarshals a job payload into v
func JobPayload(payload []byte, v interface{}) error {
	return json.Unmarshal(payload, v)
}

// retryBackoff computes the delay before a retry: exponential from a
// 5 second base, capped at an hour, with ±20% jitter
func retryBackoff(retry int) time.Duration {
	base := 5.0
	max := 3600.0

	seconds := math.Min(max, base*math.Pow(2, float64(retry)))

	jitter := seconds * 0.2
	seconds = seconds - jitter + (rand.Float64() * jitter * 2)

	return time.Duration(seconds) * time.Second
}
