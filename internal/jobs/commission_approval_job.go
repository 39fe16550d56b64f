package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/clinova/backend/internal/queue"
	"github.com/clinova/backend/internal/services/commission"
)

// CommissionApprovalJob promotes PENDING commissions past their hold
// period to APPROVED
type CommissionApprovalJob struct {
	commissionSvc *commission.Service
}

// NewCommissionApprovalJob creates the approval sweeper job handler
func NewCommissionApprovalJob(commissionSvc *commission.Service) *CommissionApprovalJob {
	return &CommissionApprovalJob{commissionSvc: commissionSvc}
}

// RegisterHandlers registers the approval sweeper with the processor
func (j *CommissionApprovalJob) RegisterHandlers(p *queue.JobProcessor) {
	p.RegisterHandler(queue.JobTypeApproveCommissions, j.Run)
}

// Run executes one approval sweep
func (j *CommissionApprovalJob) Run(ctx context.Context, job queue.Job) error {
	approved, err := j.commissionSvc.ApprovePendingCommissions(ctx)
	if err != nil {
		return fmt.Errorf("approval sweep failed: %w", err)
	}
	if approved > 0 {
		log.Printf("Approved %d commissions past hold period", approved)
	}
	return nil
}
