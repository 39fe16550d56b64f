package jobs

import (
	"sync"
	"testing"
	"time"

	"github.com/clinova/backend/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type delayedJob struct {
	jobType queue.JobType
	delay   time.Duration
}

type stubEnqueuer struct {
	mu       sync.Mutex
	enqueued []queue.JobType
	delayed  []delayedJob
}

func (s *stubEnqueuer) Enqueue(jobType queue.JobType, payload interface{}, opts ...queue.EnqueueOption) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueued = append(s.enqueued, jobType)
	return "job-1", nil
}

func (s *stubEnqueuer) EnqueueIn(jobType queue.JobType, payload interface{}, delay time.Duration, opts ...queue.EnqueueOption) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delayed = append(s.delayed, delayedJob{jobType: jobType, delay: delay})
	return "job-2", nil
}

func TestScheduleRecurringJobsEnqueuesStartupSweep(t *testing.T) {
	q := &stubEnqueuer{}

	scheduler, err := ScheduleRecurringJobs(q, time.Hour)
	require.NoError(t, err)
	defer scheduler.Stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	require.Len(t, q.delayed, 1, "boot must schedule exactly one delayed catch-up sweep")
	assert.Equal(t, queue.JobTypeApproveCommissions, q.delayed[0].jobType)
	assert.Equal(t, startupSweepDelay, q.delayed[0].delay)
}
