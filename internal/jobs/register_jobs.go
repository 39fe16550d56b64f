package jobs

import (
	"log"
	"time"

	"github.com/clinova/backend/internal/queue"
	"github.com/clinova/backend/internal/services/commission"
	"github.com/clinova/backend/internal/services/fraud"
	"github.com/go-co-op/gocron"
)

// RegisterAllJobHandlers registers all job handlers with the processor
func RegisterAllJobHandlers(
	p *queue.JobProcessor,
	commissionSvc *commission.Service,
	fraudSvc *fraud.Service,
) {
	NewCommissionApprovalJob(commissionSvc).RegisterHandlers(p)
	NewFraudAlertJob(fraudSvc).RegisterHandlers(p)
}

// ScheduleRecurringJobs starts the scheduler for recurring work. The
// approval sweep enqueues through the queue so it runs on the worker
// pool with the usual retry behavior.
func ScheduleRecurringJobs(q queue.Enqueuer, sweepInterval time.Duration) (*gocron.Scheduler, error) {
	scheduler := gocron.NewScheduler(time.UTC)

	_, err := scheduler.Every(sweepInterval).Do(func() {
		// A missed sweep self-heals on the next tick
		if _, err := q.Enqueue(queue.JobTypeApproveCommissions, nil); err != nil {
			log.Printf("Failed to enqueue approval sweep: %v", err)
		}
	})
	if err != nil {
		return nil, err
	}

	// Catch-up sweep shortly after boot picks up holds that came due
	// while the service was down, instead of waiting a full interval
	if _, err := q.EnqueueIn(queue.JobTypeApproveCommissions, nil, startupSweepDelay); err != nil {
		log.Printf("Failed to enqueue startup approval sweep: %v", err)
	}

	scheduler.StartAsync()
	return scheduler, nil
}

const startupSweepDelay = time.Minute
