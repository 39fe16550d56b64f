package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/clinova/backend/internal/queue"
	"github.com/clinova/backend/internal/services/commission"
	"github.com/clinova/backend/internal/services/fraud"
	"github.com/google/uuid"
)

// FraudAlertJobPayload carries the fraud check and its result to the
// alert persistence job. No patient-identifying data beyond IDs.
type FraudAlertJobPayload struct {
	Check  commission.FraudCheck  `json:"check"`
	Result commission.FraudResult `json:"result"`
}

// FraudAlertJob persists fraud alerts off the webhook critical path
type FraudAlertJob struct {
	fraudSvc *fraud.Service
}

// NewFraudAlertJob creates the fraud alert job handler
func NewFraudAlertJob(fraudSvc *fraud.Service) *FraudAlertJob {
	return &FraudAlertJob{fraudSvc: fraudSvc}
}

// RegisterHandlers registers the alert persistence handler
func (j *FraudAlertJob) RegisterHandlers(p *queue.JobProcessor) {
	p.RegisterHandler(queue.JobTypePersistFraudAlerts, j.Run)
}

// Run persists the alerts carried in the job payload
func (j *FraudAlertJob) Run(ctx context.Context, job queue.Job) error {
	var payload FraudAlertJobPayload
	if err := queue.JobPayload(job.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal fraud alert payload: %w", err)
	}
	if err := j.fraudSvc.PersistAlerts(ctx, payload.Check, &payload.Result); err != nil {
		return fmt.Errorf("failed to persist fraud alerts: %w", err)
	}
	return nil
}

// FraudAlertDispatcher enqueues alert persistence jobs. It implements
// commission.AlertDispatcher; enqueue failures are logged and dropped
// so they can never leak into the caller's control flow.
type FraudAlertDispatcher struct {
	queue queue.Enqueuer
}

// NewFraudAlertDispatcher creates a dispatcher backed by the job queue
func NewFraudAlertDispatcher(q queue.Enqueuer) *FraudAlertDispatcher {
	return &FraudAlertDispatcher{queue: q}
}

// DispatchFraudAlerts enqueues a persistence job for the alerts
func (d *FraudAlertDispatcher) DispatchFraudAlerts(data commission.PaymentEventData, affiliateID uuid.UUID, result *commission.FraudResult) {
	payload := FraudAlertJobPayload{
		Check: commission.FraudCheck{
			ClinicID:         data.ClinicID,
			AffiliateID:      affiliateID,
			PatientID:        data.PatientID,
			EventAmountCents: data.AmountCents,
		},
		Result: *result,
	}
	if _, err := d.queue.Enqueue(queue.JobTypePersistFraudAlerts, payload); err != nil {
		log.Printf("Failed to enqueue fraud alert job for event %s: %v", data.StripeEventID, err)
	}
}
