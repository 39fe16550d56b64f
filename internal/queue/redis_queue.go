package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	// DefaultRetryCount is the default number of retries per job
	DefaultRetryCount = 3

	// DefaultTTL bounds how long job detail records are kept
	DefaultTTL = 24 * time.Hour

	jobKeyPrefix     = "jobs:"
	delayedKeyPrefix = "delayed:"
)

// RedisQueue is a Redis-backed job queue. Each job type gets its own
// list; delayed jobs sit in a sorted set keyed by run time.
type RedisQueue struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedisQueue creates a Redis-backed queue
func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{
		client: client,
		ctx:    context.Background(),
	}
}

func newJob(jobType JobType, payload interface{}, opts ...EnqueueOption) (*Job, []byte, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	job := &Job{
		ID:         uuid.New().String(),
		Type:       jobType,
		Payload:    payloadBytes,
		Status:     JobStatusPending,
		MaxRetries: DefaultRetryCount,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
		RunAt:      time.Now(),
	}
	for _, opt := range opts {
		opt(job)
	}

	jobBytes, err := json.Marshal(job)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	return job, jobBytes, nil
}

// storeJob keeps the job record retrievable for its TTL
func (q *RedisQueue) storeJob(job *Job, jobBytes []byte) {
	if err := q.client.HSet(q.ctx, jobKeyPrefix+job.ID, "data", jobBytes).Err(); err != nil {
		log.Printf("Warning: failed to store job %s details: %v", job.ID, err)
		return
	}
	if err := q.client.Expire(q.ctx, jobKeyPrefix+job.ID, DefaultTTL).Err(); err != nil {
		log.Printf("Warning: failed to set TTL on job %s: %v", job.ID, err)
	}
}

// Enqueue adds a job to its queue
func (q *RedisQueue) Enqueue(jobType JobType, payload interface{}, opts ...EnqueueOption) (string, error) {
	job, jobBytes, err := newJob(jobType, payload, opts...)
	if err != nil {
		return "", err
	}

	if err := q.client.LPush(q.ctx, string(jobType), jobBytes).Err(); err != nil {
		return "", fmt.Errorf("failed to push job to queue: %w", err)
	}
	q.storeJob(job, jobBytes)

	return job.ID, nil
}

// EnqueueIn adds a job to run after a delay
func (q *RedisQueue) EnqueueIn(jobType JobType, payload interface{}, delay time.Duration, opts ...EnqueueOption) (string, error) {
	job, _, err := newJob(jobType, payload, opts...)
	if err != nil {
		return "", err
	}
	job.RunAt = time.Now().Add(delay)

	jobBytes, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := q.client.ZAdd(q.ctx, delayedKeyPrefix+string(jobType), &redis.Z{
		Score:  float64(job.RunAt.Unix()),
		Member: jobBytes,
	}).Err(); err != nil {
		return "", fmt.Errorf("failed to add job to delayed queue: %w", err)
	}
	q.storeJob(job, jobBytes)

	return job.ID, nil
}

// Dequeue pops the next ready job for a job type, promoting due
// delayed jobs first. Returns nil when no job is ready.
func (q *RedisQueue) Dequeue(jobType JobType) (*Job, error) {
	q.moveReadyDelayedJobs(jobType)

	result := q.client.BRPop(q.ctx, 1*time.Second, string(jobType))
	if result.Err() != nil {
		if result.Err() == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop job from queue: %w", result.Err())
	}
	if len(result.Val()) < 2 {
		return nil, fmt.Errorf("unexpected result format from BRPOP")
	}

	var job Job
	if err := json.Unmarshal([]byte(result.Val()[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	job.Status = JobStatusProcessing
	job.UpdatedAt = time.Now()
	if jobBytes, err := json.Marshal(job); err == nil {
		q.storeJob(&job, jobBytes)
	}

	return &job, nil
}

// moveReadyDelayedJobs promotes delayed jobs whose run time has passed
func (q *RedisQueue) moveReadyDelayedJobs(jobType JobType) {
	now := time.Now().Unix()

	jobs, err := q.client.ZRangeByScore(q.ctx, delayedKeyPrefix+string(jobType), &redis.ZRangeBy{
		Min: "0",
		Max: fmt.Sprintf("%d", now),
	}).Result()
	if err != nil {
		log.Printf("Error getting ready delayed jobs: %v", err)
		return
	}

	for _, jobStr := range jobs {
		if err := q.client.LPush(q.ctx, string(jobType), jobStr).Err(); err != nil {
			log.Printf("Error moving delayed job to main queue: %v", err)
			continue
		}
		q.client.ZRem(q.ctx, delayedKeyPrefix+string(jobType), jobStr)
	}
}

// Complete marks a job as completed
func (q *RedisQueue) Complete(job *Job) {
	job.Status = JobStatusCompleted
	job.UpdatedAt = time.Now()
	if jobBytes, err := json.Marshal(job); err == nil {
		q.storeJob(job, jobBytes)
	}
}

// Fail marks a job as failed and schedules a retry with backoff while
// attempts remain
func (q *RedisQueue) Fail(job *Job, jobErr error) {
	if job.RetryCount < job.MaxRetries {
		job.RetryCount++
		job.Status = JobStatusPending
		job.UpdatedAt = time.Now()
		job.RunAt = time.Now().Add(retryBackoff(job.RetryCount))

		jobBytes, err := json.Marshal(job)
		if err != nil {
			log.Printf("Error marshaling job %s for retry: %v", job.ID, err)
			return
		}
		if err := q.client.ZAdd(q.ctx, delayedKeyPrefix+string(job.Type), &redis.Z{
			Score:  float64(job.RunAt.Unix()),
			Member: jobBytes,
		}).Err(); err != nil {
			log.Printf("Error scheduling retry for job %s: %v", job.ID, err)
			return
		}
		q.storeJob(job, jobBytes)
		return
	}

	job.Status = JobStatusFailed
	job.UpdatedAt = time.Now()
	if jobBytes, err := json.Marshal(job); err == nil {
		q.storeJob(job, jobBytes)
	}
	log.Printf("Job %s failed permanently after %d retries: %v", job.ID, job.RetryCount, jobErr)
}
