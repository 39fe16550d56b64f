package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PlanType represents how a commission plan computes its base amount
type PlanType string

const (
	PlanTypeFlat    PlanType = "FLAT"
	PlanTypePercent PlanType = "PERCENT"
)

// PlanScope restricts which payments a plan applies to
type PlanScope string

const (
	PlanScopeFirstPaymentOnly PlanScope = "FIRST_PAYMENT_ONLY"
	PlanScopeAllPayments      PlanScope = "ALL_PAYMENTS"
)

// CommissionStatus represents the lifecycle of a commission event.
// PENDING -> APPROVED -> PAID, or PENDING/APPROVED -> REVERSED.
// REVERSED is terminal.
type CommissionStatus string

const (
	CommissionStatusPending  CommissionStatus = "PENDING"
	CommissionStatusApproved CommissionStatus = "APPROVED"
	CommissionStatusPaid     CommissionStatus = "PAID"
	CommissionStatusReversed CommissionStatus = "REVERSED"
)

// CommissionPlan is clinic-scoped commission configuration. Rates are in
// basis points for PERCENT plans and cents for FLAT plans. The initial
// and recurring overrides, when set (> 0), take precedence over the
// default rate for the matching payment kind.
type CommissionPlan struct {
	ID                  uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	ClinicID            uuid.UUID      `gorm:"type:uuid;not null;index" json:"clinic_id"`
	Clinic              Clinic         `gorm:"foreignKey:ClinicID" json:"-"`
	Name                string         `gorm:"type:varchar(255);not null" json:"name"`
	PlanType            PlanType       `gorm:"type:varchar(10);not null" json:"plan_type"`
	PercentBps          int            `gorm:"not null;default:0" json:"percent_bps"`
	FlatAmountCents     int64          `gorm:"not null;default:0" json:"flat_amount_cents"`
	InitialPercentBps   int            `gorm:"not null;default:0" json:"initial_percent_bps"`
	InitialFlatCents    int64          `gorm:"not null;default:0" json:"initial_flat_cents"`
	RecurringPercentBps int            `gorm:"not null;default:0" json:"recurring_percent_bps"`
	RecurringFlatCents  int64          `gorm:"not null;default:0" json:"recurring_flat_cents"`
	Scope               PlanScope      `gorm:"type:varchar(30);not null;default:'ALL_PAYMENTS'" json:"scope"`
	HoldDays            int            `gorm:"not null;default:0" json:"hold_days"`
	ClawbackEnabled     bool           `gorm:"not null;default:true" json:"clawback_enabled"`
	RecurringEnabled    bool           `gorm:"not null;default:false" json:"recurring_enabled"`
	RecurringMonths     int            `gorm:"not null;default:0" json:"recurring_months"`
	RecurringDecayPct   int            `gorm:"not null;default:0" json:"recurring_decay_pct"`
	TiersEnabled        bool           `gorm:"not null;default:false" json:"tiers_enabled"`
	Active              bool           `gorm:"not null;default:true" json:"active"`
	CreatedAt           time.Time      `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`
}

// CommissionTier qualifies an affiliate by lifetime stats. The highest
// level whose both thresholds are met wins. A tier may override the plan
// rate and add a one-time flat bonus.
type CommissionTier struct {
	ID              uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	PlanID          uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_tier_plan_level" json:"plan_id"`
	Plan            CommissionPlan `gorm:"foreignKey:PlanID" json:"-"`
	Level           int            `gorm:"not null;uniqueIndex:idx_tier_plan_level" json:"level"`
	Name            string         `gorm:"type:varchar(100)" json:"name"`
	MinConversions  int64          `gorm:"not null;default:0" json:"min_conversions"`
	MinRevenueCents int64          `gorm:"not null;default:0" json:"min_revenue_cents"`
	PercentBps      int            `gorm:"not null;default:0" json:"percent_bps"`
	FlatAmountCents int64          `gorm:"not null;default:0" json:"flat_amount_cents"`
	BonusCents      int64          `gorm:"not null;default:0" json:"bonus_cents"`
	CreatedAt       time.Time      `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// ProductRateMatch is the matching mode of a product rate rule
type ProductRateMatch string

const (
	ProductRateMatchSKU        ProductRateMatch = "SKU"
	ProductRateMatchCategory   ProductRateMatch = "CATEGORY"
	ProductRateMatchPriceRange ProductRateMatch = "PRICE_RANGE"
)

// ProductRate is a plan-scoped rate override matched by SKU, category or
// price range. SKU matches beat category matches beat price-range
// matches; ties break on the Priority column ascending.
type ProductRate struct {
	ID              uuid.UUID        `gorm:"type:uuid;primary_key" json:"id"`
	PlanID          uuid.UUID        `gorm:"type:uuid;not null;index" json:"plan_id"`
	Plan            CommissionPlan   `gorm:"foreignKey:PlanID" json:"-"`
	MatchType       ProductRateMatch `gorm:"type:varchar(20);not null" json:"match_type"`
	SKU             string           `gorm:"type:varchar(100)" json:"sku"`
	Category        string           `gorm:"type:varchar(100)" json:"category"`
	MinAmountCents  int64            `gorm:"not null;default:0" json:"min_amount_cents"`
	MaxAmountCents  int64            `gorm:"not null;default:0" json:"max_amount_cents"`
	Priority        int              `gorm:"not null;default:0" json:"priority"`
	RateType        PlanType         `gorm:"type:varchar(10);not null" json:"rate_type"`
	PercentBps      int              `gorm:"not null;default:0" json:"percent_bps"`
	FlatAmountCents int64            `gorm:"not null;default:0" json:"flat_amount_cents"`
	Active          bool             `gorm:"not null;default:true" json:"active"`
	CreatedAt       time.Time        `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time        `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// PlanAssignment is a time-ranged binding of an affiliate to a plan
// within a clinic. The effective plan at a point in time is the
// assignment whose range contains that timestamp, most recent
// EffectiveFrom first.
type PlanAssignment struct {
	ID            uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	ClinicID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"clinic_id"`
	AffiliateID   uuid.UUID      `gorm:"type:uuid;not null;index:idx_assignment_affiliate" json:"affiliate_id"`
	Affiliate     Affiliate      `gorm:"foreignKey:AffiliateID" json:"-"`
	PlanID        uuid.UUID      `gorm:"type:uuid;not null" json:"plan_id"`
	Plan          CommissionPlan `gorm:"foreignKey:PlanID" json:"-"`
	EffectiveFrom time.Time      `gorm:"not null;index:idx_assignment_affiliate" json:"effective_from"`
	EffectiveTo   *time.Time     `json:"effective_to,omitempty"`
	CreatedAt     time.Time      `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// CommissionEvent is the commission ledger record. The composite unique
// index on (clinic_id, stripe_event_id) is the idempotency boundary for
// webhook delivery. Patient data is restricted to the patient ID foreign
// key; no PHI may be written to this row or its metadata.
type CommissionEvent struct {
	ID                     uuid.UUID        `gorm:"type:uuid;primary_key" json:"id"`
	ClinicID               uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_commission_clinic_event" json:"clinic_id"`
	StripeEventID          string           `gorm:"type:varchar(255);not null;uniqueIndex:idx_commission_clinic_event" json:"stripe_event_id"`
	StripeObjectID         string           `gorm:"type:varchar(255);not null;index" json:"stripe_object_id"`
	StripeEventType        string           `gorm:"type:varchar(100)" json:"stripe_event_type"`
	AffiliateID            uuid.UUID        `gorm:"type:uuid;not null;index" json:"affiliate_id"`
	Affiliate              Affiliate        `gorm:"foreignKey:AffiliateID" json:"-"`
	PlanID                 uuid.UUID        `gorm:"type:uuid;not null" json:"plan_id"`
	Plan                   CommissionPlan   `gorm:"foreignKey:PlanID" json:"-"`
	PatientID              uuid.UUID        `gorm:"type:uuid;not null" json:"patient_id"`
	RefCode                string           `gorm:"type:varchar(50)" json:"ref_code"`
	AmountCents            int64            `gorm:"not null" json:"amount_cents"`
	CommissionCents        int64            `gorm:"not null" json:"commission_cents"`
	BaseCents              int64            `gorm:"not null;default:0" json:"base_cents"`
	TierBonusCents         int64            `gorm:"not null;default:0" json:"tier_bonus_cents"`
	PromotionBonusCents    int64            `gorm:"not null;default:0" json:"promotion_bonus_cents"`
	ProductAdjustmentCents int64            `gorm:"not null;default:0" json:"product_adjustment_cents"`
	Recurring              bool             `gorm:"not null;default:false" json:"recurring"`
	RecurringMonth         int              `gorm:"not null;default:0" json:"recurring_month"`
	Status                 CommissionStatus `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	HoldUntil              *time.Time       `gorm:"index" json:"hold_until,omitempty"`
	ApprovedAt             *time.Time       `json:"approved_at,omitempty"`
	ReversedAt             *time.Time       `json:"reversed_at,omitempty"`
	ReversalReason         string           `gorm:"type:varchar(255)" json:"reversal_reason,omitempty"`
	RiskScore              int              `gorm:"not null;default:0" json:"risk_score"`
	RiskLevel              string           `gorm:"type:varchar(10)" json:"risk_level"`
	OccurredAt             time.Time        `gorm:"not null;index" json:"occurred_at"`
	Metadata               JSON             `gorm:"type:jsonb" json:"metadata"`
	CreatedAt              time.Time        `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt              time.Time        `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// BeforeCreate assigns an ID when the database default is unavailable
func (e *CommissionEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// BeforeCreate assigns an ID when one was not set by the caller
func (p *CommissionPlan) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// BeforeCreate assigns an ID when one was not set by the caller
func (t *CommissionTier) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// BeforeCreate assigns an ID when one was not set by the caller
func (r *ProductRate) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// BeforeCreate assigns an ID when one was not set by the caller
func (a *PlanAssignment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
