package commission

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/clinova/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Skip reasons surfaced on ProcessResult. Skips are benign no-ops, not
// errors; dashboards and payout jobs must not alert on them.
const (
	SkipReasonAlreadyProcessed  = "already_processed"
	SkipReasonNoAttribution     = "no_attribution"
	SkipReasonAffiliateInactive = "affiliate_inactive"
	SkipReasonNoActivePlan      = "no_active_plan"
	SkipReasonScopeMismatch     = "plan_scope_mismatch"
	SkipReasonRecurringDisabled = "recurring_not_enabled"
	SkipReasonZeroCommission    = "zero_commission"
	SkipReasonFraudReject       = "fraud_reject"
	SkipReasonNoMatchingEvent   = "no_matching_event"
	SkipReasonAlreadyReversed   = "already_reversed"
	SkipReasonClawbackDisabled  = "clawback_disabled"
)

// Risk score thresholds for bucketing fraud scores into levels
const (
	riskScoreMedium = 40
	riskScoreHigh   = 70
)

// defaultTxTimeout bounds the persistence transaction. Generous on
// purpose: bursty webhook traffic contends on affiliate counter rows.
const defaultTxTimeout = 15 * time.Second

// PaymentEventData is a normalized payment event. Signature
// verification and payload normalization happen upstream.
type PaymentEventData struct {
	ClinicID        uuid.UUID `json:"clinic_id"`
	PatientID       uuid.UUID `json:"patient_id"`
	StripeEventID   string    `json:"stripe_event_id"`
	StripeObjectID  string    `json:"stripe_object_id"`
	StripeEventType string    `json:"stripe_event_type"`
	AmountCents     int64     `json:"amount_cents"`
	OccurredAt      time.Time `json:"occurred_at"`
	IsFirstPayment  bool      `json:"is_first_payment"`
	IsRecurring     bool      `json:"is_recurring"`
	RecurringMonth  int       `json:"recurring_month"`
	ProductSKU      string    `json:"product_sku"`
	ProductCategory string    `json:"product_category"`
	SubscriptionID  string    `json:"subscription_id"`
}

// RefundEventData identifies the original payment object being refunded
type RefundEventData struct {
	ClinicID       uuid.UUID `json:"clinic_id"`
	StripeObjectID string    `json:"stripe_object_id"`
	AmountCents    int64     `json:"amount_cents"`
	Reason         string    `json:"reason"`
}

// ProcessResult is the outcome of processing a payment or refund event
type ProcessResult struct {
	Success               bool       `json:"success"`
	Skipped               bool       `json:"skipped,omitempty"`
	SkipReason            string     `json:"skip_reason,omitempty"`
	CommissionEventID     *uuid.UUID `json:"commission_event_id,omitempty"`
	AffiliateID           *uuid.UUID `json:"affiliate_id,omitempty"`
	CommissionAmountCents int64      `json:"commission_amount_cents,omitempty"`
}

// FraudCheck is the input to the fraud-scoring collaborator
type FraudCheck struct {
	ClinicID         uuid.UUID `json:"clinic_id"`
	AffiliateID      uuid.UUID `json:"affiliate_id"`
	PatientID        uuid.UUID `json:"patient_id"`
	EventAmountCents int64     `json:"event_amount_cents"`
}

// FraudAlertInfo is a single alert raised by the fraud check
type FraudAlertInfo struct {
	Type string `json:"type"`
}

// FraudResult is the outcome of a fraud check
type FraudResult struct {
	RiskScore      int                        `json:"risk_score"`
	Recommendation models.FraudRecommendation `json:"recommendation"`
	Alerts         []FraudAlertInfo           `json:"alerts"`
}

// FraudChecker scores a payment event for fraud risk. It is a soft
// dependency: errors are logged and processing continues.
type FraudChecker interface {
	CheckPayment(ctx context.Context, check FraudCheck) (*FraudResult, error)
}

// AlertDispatcher persists fraud alerts off the critical path,
// typically by enqueueing a background job
type AlertDispatcher interface {
	DispatchFraudAlerts(data PaymentEventData, affiliateID uuid.UUID, result *FraudResult)
}

// Service implements the commission engine: payment event processing,
// refund reversal, approval sweeping and affiliate stats
type Service struct {
	db        *gorm.DB
	fraud     FraudChecker
	alerts    AlertDispatcher
	txTimeout time.Duration
}

// NewService creates a commission service. fraudChecker and alerts may
// be nil; processing then runs without risk assessment.
func NewService(db *gorm.DB, fraudChecker FraudChecker, alerts AlertDispatcher) *Service {
	return &Service{
		db:        db,
		fraud:     fraudChecker,
		alerts:    alerts,
		txTimeout: defaultTxTimeout,
	}
}

// SetTransactionTimeout overrides the persistence transaction timeout
func (s *Service) SetTransactionTimeout(d time.Duration) {
	s.txTimeout = d
}

func skipResult(reason string) *ProcessResult {
	return &ProcessResult{Success: true, Skipped: true, SkipReason: reason}
}

// isDuplicateKeyErr detects the unique-constraint violation on
// (clinic_id, stripe_event_id). GORM translates it when TranslateError
// is enabled; the string checks cover drivers that don't.
func isDuplicateKeyErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed")
}

// ProcessPaymentForCommission runs the commission pipeline for a
// payment event. Every step short-circuits with a skipped result where
// no commission is due; only infrastructure failures return an error.
func (s *Service) ProcessPaymentForCommission(ctx context.Context, data PaymentEventData) (*ProcessResult, error) {
	// Best-effort idempotency pre-check. The unique constraint in the
	// transaction below is the authoritative guard.
	var existing models.CommissionEvent
	err := s.db.WithContext(ctx).
		Where("clinic_id = ? AND stripe_event_id = ?", data.ClinicID, data.StripeEventID).
		First(&existing).Error
	if err == nil {
		res := skipResult(SkipReasonAlreadyProcessed)
		res.CommissionEventID = &existing.ID
		return res, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check existing commission event: %w", err)
	}

	var attribution models.PatientAttribution
	err = s.db.WithContext(ctx).
		Where("clinic_id = ? AND patient_id = ?", data.ClinicID, data.PatientID).
		First(&attribution).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return skipResult(SkipReasonNoAttribution), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up patient attribution: %w", err)
	}

	var affiliate models.Affiliate
	err = s.db.WithContext(ctx).First(&affiliate, "id = ?", attribution.AffiliateID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return skipResult(SkipReasonAffiliateInactive), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load affiliate: %w", err)
	}
	if affiliate.ClinicID != data.ClinicID || affiliate.Status != models.AffiliateStatusActive {
		return skipResult(SkipReasonAffiliateInactive), nil
	}

	plan, err := s.resolvePlan(ctx, data.ClinicID, affiliate.ID, data.OccurredAt)
	if err != nil {
		return nil, err
	}
	if plan == nil || !plan.Active {
		return skipResult(SkipReasonNoActivePlan), nil
	}
	if plan.Scope == models.PlanScopeFirstPaymentOnly && !data.IsFirstPayment && !data.IsRecurring {
		return skipResult(SkipReasonScopeMismatch), nil
	}
	if data.IsRecurring && !plan.RecurringEnabled {
		return skipResult(SkipReasonRecurringDisabled), nil
	}

	tiers, productRates, promotions, err := s.loadPlanRules(ctx, plan, data.ClinicID)
	if err != nil {
		return nil, err
	}

	in := CalcInput{
		AmountCents:     data.AmountCents,
		IsFirstPayment:  data.IsFirstPayment,
		IsRecurring:     data.IsRecurring,
		RecurringMonth:  data.RecurringMonth,
		ProductSKU:      data.ProductSKU,
		ProductCategory: data.ProductCategory,
		RefCode:         attribution.RefCode,
		Now:             data.OccurredAt,
	}
	bd := Calculate(plan, tiers, productRates, promotions, &affiliate, in)
	if bd.TotalCents <= 0 {
		return skipResult(SkipReasonZeroCommission), nil
	}

	riskScore, riskLevel, fraudResult, rejected := s.evaluateFraud(ctx, data, affiliate.ID)
	if rejected {
		res := skipResult(SkipReasonFraudReject)
		res.SkipReason = fmt.Sprintf("%s: %s", SkipReasonFraudReject, alertTypes(fraudResult))
		return res, nil
	}

	event, err := s.persistCommission(ctx, data, &affiliate, plan, &attribution, bd, riskScore, riskLevel)
	if err != nil {
		if isDuplicateKeyErr(err) {
			// Another delivery of the same event won the race
			var winner models.CommissionEvent
			if ferr := s.db.WithContext(ctx).
				Where("clinic_id = ? AND stripe_event_id = ?", data.ClinicID, data.StripeEventID).
				First(&winner).Error; ferr == nil {
				res := skipResult(SkipReasonAlreadyProcessed)
				res.CommissionEventID = &winner.ID
				return res, nil
			}
			return skipResult(SkipReasonAlreadyProcessed), nil
		}
		return nil, err
	}

	// Alert persistence is deliberately decoupled from the request path
	if s.alerts != nil && fraudResult != nil && len(fraudResult.Alerts) > 0 {
		s.alerts.DispatchFraudAlerts(data, affiliate.ID, fraudResult)
	}

	return &ProcessResult{
		Success:               true,
		CommissionEventID:     &event.ID,
		AffiliateID:           &event.AffiliateID,
		CommissionAmountCents: event.CommissionCents,
	}, nil
}

// resolvePlan finds the plan assignment covering the event timestamp,
// most recent effective_from first
func (s *Service) resolvePlan(ctx context.Context, clinicID, affiliateID uuid.UUID, at time.Time) (*models.CommissionPlan, error) {
	var assignment models.PlanAssignment
	err := s.db.WithContext(ctx).
		Where("clinic_id = ? AND affiliate_id = ? AND effective_from <= ? AND (effective_to IS NULL OR effective_to > ?)",
			clinicID, affiliateID, at, at).
		Order("effective_from DESC").
		First(&assignment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve plan assignment: %w", err)
	}

	var plan models.CommissionPlan
	if err := s.db.WithContext(ctx).First(&plan, "id = ?", assignment.PlanID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load commission plan: %w", err)
	}
	return &plan, nil
}

func (s *Service) loadPlanRules(ctx context.Context, plan *models.CommissionPlan, clinicID uuid.UUID) ([]models.CommissionTier, []models.ProductRate, []models.Promotion, error) {
	var tiers []models.CommissionTier
	if plan.TiersEnabled {
		if err := s.db.WithContext(ctx).
			Where("plan_id = ?", plan.ID).
			Order("level DESC").
			Find(&tiers).Error; err != nil {
			return nil, nil, nil, fmt.Errorf("failed to load commission tiers: %w", err)
		}
	}

	var productRates []models.ProductRate
	if err := s.db.WithContext(ctx).
		Where("plan_id = ? AND active = ?", plan.ID, true).
		Order("priority ASC").
		Find(&productRates).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load product rates: %w", err)
	}

	var promotions []models.Promotion
	if err := s.db.WithContext(ctx).
		Where("clinic_id = ? AND active = ?", clinicID, true).
		Find(&promotions).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load promotions: %w", err)
	}

	return tiers, productRates, promotions, nil
}

// evaluateFraud runs the fraud check, failing open. Returns the score,
// the bucketed level, the raw result for alert dispatch, and whether
// the event was rejected outright.
func (s *Service) evaluateFraud(ctx context.Context, data PaymentEventData, affiliateID uuid.UUID) (int, models.RiskLevel, *FraudResult, bool) {
	if s.fraud == nil {
		return 0, models.RiskLevelLow, nil, false
	}

	result, err := s.fraud.CheckPayment(ctx, FraudCheck{
		ClinicID:         data.ClinicID,
		AffiliateID:      affiliateID,
		PatientID:        data.PatientID,
		EventAmountCents: data.AmountCents,
	})
	if err != nil {
		// Risk evaluation failures must not block commission creation
		log.Printf("fraud check failed for event %s, proceeding unassessed: %v", data.StripeEventID, err)
		return 0, models.RiskLevelLow, nil, false
	}

	if result.Recommendation == models.FraudRecommendationReject {
		return result.RiskScore, models.RiskLevelHigh, result, true
	}

	level := models.RiskLevelLow
	switch {
	case result.RiskScore >= riskScoreHigh:
		level = models.RiskLevelHigh
	case result.RiskScore >= riskScoreMedium:
		level = models.RiskLevelMedium
	}
	return result.RiskScore, level, result, false
}

func alertTypes(result *FraudResult) string {
	if result == nil || len(result.Alerts) == 0 {
		return "unspecified"
	}
	types := make([]string, 0, len(result.Alerts))
	for _, a := range result.Alerts {
		types = append(types, a.Type)
	}
	return strings.Join(types, ",")
}

// persistCommission creates the commission event, increments promotion
// usage counters and the affiliate lifetime stats in one transaction.
// The unique index on (clinic_id, stripe_event_id) makes concurrent
// duplicate deliveries fail here with a duplicate-key error.
func (s *Service) persistCommission(ctx context.Context, data PaymentEventData, affiliate *models.Affiliate, plan *models.CommissionPlan, attribution *models.PatientAttribution, bd Breakdown, riskScore int, riskLevel models.RiskLevel) (*models.CommissionEvent, error) {
	txCtx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	var holdUntil *time.Time
	if plan.HoldDays > 0 {
		t := data.OccurredAt.AddDate(0, 0, plan.HoldDays)
		holdUntil = &t
	}

	metadata := models.JSON{
		"provenance": bd.Provenance,
	}
	if data.SubscriptionID != "" {
		metadata["subscription_id"] = data.SubscriptionID
	}
	if riskLevel == models.RiskLevelHigh {
		// HIGH risk is flagged for manual review, never auto-blocked
		metadata["manual_review"] = true
	}

	event := models.CommissionEvent{
		ClinicID:               data.ClinicID,
		StripeEventID:          data.StripeEventID,
		StripeObjectID:         data.StripeObjectID,
		StripeEventType:        data.StripeEventType,
		AffiliateID:            affiliate.ID,
		PlanID:                 plan.ID,
		PatientID:              data.PatientID,
		RefCode:                attribution.RefCode,
		AmountCents:            data.AmountCents,
		CommissionCents:        bd.TotalCents,
		BaseCents:              bd.BaseCents,
		TierBonusCents:         bd.TierBonusCents,
		PromotionBonusCents:    bd.PromotionBonusCents,
		ProductAdjustmentCents: bd.ProductAdjustmentCents,
		Recurring:              data.IsRecurring,
		RecurringMonth:         data.RecurringMonth,
		Status:                 models.CommissionStatusPending,
		HoldUntil:              holdUntil,
		RiskScore:              riskScore,
		RiskLevel:              string(riskLevel),
		OccurredAt:             data.OccurredAt,
		Metadata:               metadata,
	}

	err := s.db.WithContext(txCtx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&event).Error; err != nil {
			return err
		}

		for _, promoID := range bd.AppliedPromotionIDs {
			// The cap guard keeps a concurrent application from pushing
			// uses_count past max_uses; the bonus already computed in
			// this calculation is still honored.
			if err := tx.Model(&models.Promotion{}).
				Where("id = ? AND (max_uses = 0 OR uses_count < max_uses)", promoID).
				UpdateColumn("uses_count", gorm.Expr("uses_count + 1")).Error; err != nil {
				return fmt.Errorf("failed to increment promotion usage: %w", err)
			}
		}

		if err := tx.Model(&models.Affiliate{}).
			Where("id = ?", affiliate.ID).
			UpdateColumns(map[string]interface{}{
				"lifetime_conversions":   gorm.Expr("lifetime_conversions + 1"),
				"lifetime_revenue_cents": gorm.Expr("lifetime_revenue_cents + ?", data.AmountCents),
			}).Error; err != nil {
			return fmt.Errorf("failed to update affiliate lifetime stats: %w", err)
		}

		return nil
	})
	if err != nil {
		if isDuplicateKeyErr(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to persist commission event: %w", err)
	}

	return &event, nil
}

// ReverseCommissionForRefund reverses the commission for a refunded or
// charged-back payment. The conditional update on reversed_at makes the
// operation idempotent under concurrent duplicate refund delivery.
func (s *Service) ReverseCommissionForRefund(ctx context.Context, data RefundEventData) (*ProcessResult, error) {
	var event models.CommissionEvent
	err := s.db.WithContext(ctx).
		Where("clinic_id = ? AND stripe_object_id = ? AND status IN ?",
			data.ClinicID, data.StripeObjectID,
			[]models.CommissionStatus{models.CommissionStatusPending, models.CommissionStatusApproved}).
		First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return skipResult(SkipReasonNoMatchingEvent), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find commission event for refund: %w", err)
	}

	// Clawback is a policy decision on the affiliate's current plan,
	// not the plan active at the time of the original commission.
	clawback, err := s.clawbackEnabledNow(ctx, data.ClinicID, event.AffiliateID, event.PlanID)
	if err != nil {
		return nil, err
	}
	if !clawback {
		return skipResult(SkipReasonClawbackDisabled), nil
	}

	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&models.CommissionEvent{}).
		Where("id = ? AND status IN ? AND reversed_at IS NULL",
			event.ID,
			[]models.CommissionStatus{models.CommissionStatusPending, models.CommissionStatusApproved}).
		Updates(map[string]interface{}{
			"status":          models.CommissionStatusReversed,
			"reversed_at":     now,
			"reversal_reason": data.Reason,
			"updated_at":      now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to reverse commission event: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// Another reversal already won the race
		return skipResult(SkipReasonAlreadyReversed), nil
	}

	return &ProcessResult{
		Success:               true,
		CommissionEventID:     &event.ID,
		AffiliateID:           &event.AffiliateID,
		CommissionAmountCents: event.CommissionCents,
	}, nil
}

// clawbackEnabledNow reads the clawback flag from the plan currently
// assigned to the affiliate, falling back to the original event's plan
// when no assignment covers the present moment
func (s *Service) clawbackEnabledNow(ctx context.Context, clinicID, affiliateID, fallbackPlanID uuid.UUID) (bool, error) {
	plan, err := s.resolvePlan(ctx, clinicID, affiliateID, time.Now().UTC())
	if err != nil {
		return false, err
	}
	if plan == nil {
		var fallback models.CommissionPlan
		if err := s.db.WithContext(ctx).First(&fallback, "id = ?", fallbackPlanID).Error; err != nil {
			return false, fmt.Errorf("failed to load plan for clawback policy: %w", err)
		}
		return fallback.ClawbackEnabled, nil
	}
	return plan.ClawbackEnabled, nil
}

// ApprovePendingCommissions bulk-promotes every PENDING commission whose
// hold period has elapsed (or was never set) to APPROVED
func (s *Service) ApprovePendingCommissions(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&models.CommissionEvent{}).
		Where("status = ? AND (hold_until IS NULL OR hold_until <= ?)", models.CommissionStatusPending, now).
		Updates(map[string]interface{}{
			"status":      models.CommissionStatusApproved,
			"approved_at": now,
			"updated_at":  now,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to approve pending commissions: %w", res.Error)
	}
	return res.RowsAffected, nil
}
