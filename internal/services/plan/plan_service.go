package plan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clinova/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrPlanInUse is returned when a rate-affecting change targets a plan
// that already produced commission events. Clinics version plans by
// creating a successor and moving assignments instead.
var ErrPlanInUse = errors.New("plan has commission events and cannot be modified")

// Service manages commission plans and their rule subresources
type Service struct {
	db *gorm.DB
}

// NewService creates a plan service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// PlanInput carries the writable fields of a commission plan
type PlanInput struct {
	Name                string           `json:"name" binding:"required"`
	PlanType            models.PlanType  `json:"plan_type" binding:"required"`
	PercentBps          int              `json:"percent_bps"`
	FlatAmountCents     int64            `json:"flat_amount_cents"`
	InitialPercentBps   int              `json:"initial_percent_bps"`
	InitialFlatCents    int64            `json:"initial_flat_cents"`
	RecurringPercentBps int              `json:"recurring_percent_bps"`
	RecurringFlatCents  int64            `json:"recurring_flat_cents"`
	Scope               models.PlanScope `json:"scope"`
	HoldDays            int              `json:"hold_days"`
	ClawbackEnabled     *bool            `json:"clawback_enabled"`
	RecurringEnabled    bool             `json:"recurring_enabled"`
	RecurringMonths     int              `json:"recurring_months"`
	RecurringDecayPct   int              `json:"recurring_decay_pct"`
	TiersEnabled        bool             `json:"tiers_enabled"`
}

func (in *PlanInput) validate() error {
	switch in.PlanType {
	case models.PlanTypeFlat, models.PlanTypePercent:
	default:
		return fmt.Errorf("invalid plan type %q", in.PlanType)
	}
	if in.Scope == "" {
		in.Scope = models.PlanScopeAllPayments
	}
	switch in.Scope {
	case models.PlanScopeAllPayments, models.PlanScopeFirstPaymentOnly:
	default:
		return fmt.Errorf("invalid plan scope %q", in.Scope)
	}
	if in.PercentBps < 0 || in.FlatAmountCents < 0 || in.HoldDays < 0 {
		return errors.New("rates and hold days must be non-negative")
	}
	if in.RecurringDecayPct < 0 || in.RecurringDecayPct > 100 {
		return errors.New("recurring decay must be between 0 and 100")
	}
	return nil
}

func (in *PlanInput) apply(plan *models.CommissionPlan) {
	plan.Name = in.Name
	plan.PlanType = in.PlanType
	plan.PercentBps = in.PercentBps
	plan.FlatAmountCents = in.FlatAmountCents
	plan.InitialPercentBps = in.InitialPercentBps
	plan.InitialFlatCents = in.InitialFlatCents
	plan.RecurringPercentBps = in.RecurringPercentBps
	plan.RecurringFlatCents = in.RecurringFlatCents
	plan.Scope = in.Scope
	plan.HoldDays = in.HoldDays
	plan.ClawbackEnabled = in.ClawbackEnabled == nil || *in.ClawbackEnabled
	plan.RecurringEnabled = in.RecurringEnabled
	plan.RecurringMonths = in.RecurringMonths
	plan.RecurringDecayPct = in.RecurringDecayPct
	plan.TiersEnabled = in.TiersEnabled
}

// CreatePlan creates a commission plan for a clinic
func (s *Service) CreatePlan(ctx context.Context, clinicID uuid.UUID, in PlanInput) (*models.CommissionPlan, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	plan := &models.CommissionPlan{
		ID:       uuid.New(),
		ClinicID: clinicID,
		Active:   true,
	}
	in.apply(plan)

	if err := s.db.WithContext(ctx).Create(plan).Error; err != nil {
		return nil, fmt.Errorf("failed to create plan: %w", err)
	}
	return plan, nil
}

// GetPlan fetches a plan scoped to a clinic
func (s *Service) GetPlan(ctx context.Context, clinicID, planID uuid.UUID) (*models.CommissionPlan, error) {
	var plan models.CommissionPlan
	err := s.db.WithContext(ctx).
		Where("id = ? AND clinic_id = ?", planID, clinicID).
		First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// ListPlans returns all plans for a clinic
func (s *Service) ListPlans(ctx context.Context, clinicID uuid.UUID) ([]models.CommissionPlan, error) {
	var plans []models.CommissionPlan
	err := s.db.WithContext(ctx).
		Where("clinic_id = ?", clinicID).
		Order("created_at DESC").
		Find(&plans).Error
	return plans, err
}

// UpdatePlan applies a rate change to a plan that has not yet produced
// commission events. Events carry a snapshot of the rates that applied,
// so editing a live plan would silently disagree with history.
func (s *Service) UpdatePlan(ctx context.Context, clinicID, planID uuid.UUID, in PlanInput) (*models.CommissionPlan, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var plan models.CommissionPlan
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND clinic_id = ?", planID, clinicID).First(&plan).Error; err != nil {
			return err
		}

		var eventCount int64
		if err := tx.Model(&models.CommissionEvent{}).
			Where("plan_id = ?", planID).
			Count(&eventCount).Error; err != nil {
			return err
		}
		if eventCount > 0 {
			return ErrPlanInUse
		}

		in.apply(&plan)
		return tx.Save(&plan).Error
	})
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// DeactivatePlan marks a plan inactive so new assignments cannot use it.
// Existing events are untouched.
func (s *Service) DeactivatePlan(ctx context.Context, clinicID, planID uuid.UUID) error {
	result := s.db.WithContext(ctx).Model(&models.CommissionPlan{}).
		Where("id = ? AND clinic_id = ? AND active = ?", planID, clinicID, true).
		Update("active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TierInput carries the writable fields of a commission tier
type TierInput struct {
	Level           int    `json:"level" binding:"required,gt=0"`
	Name            string `json:"name"`
	MinConversions  int64  `json:"min_conversions"`
	MinRevenueCents int64  `json:"min_revenue_cents"`
	PercentBps      int    `json:"percent_bps"`
	FlatAmountCents int64  `json:"flat_amount_cents"`
	BonusCents      int64  `json:"bonus_cents"`
}

// CreateTier adds a tier to a plan
func (s *Service) CreateTier(ctx context.Context, clinicID, planID uuid.UUID, in TierInput) (*models.CommissionTier, error) {
	if _, err := s.GetPlan(ctx, clinicID, planID); err != nil {
		return nil, err
	}

	tier := &models.CommissionTier{
		ID:              uuid.New(),
		PlanID:          planID,
		Level:           in.Level,
		Name:            in.Name,
		MinConversions:  in.MinConversions,
		MinRevenueCents: in.MinRevenueCents,
		PercentBps:      in.PercentBps,
		FlatAmountCents: in.FlatAmountCents,
		BonusCents:      in.BonusCents,
	}
	if err := s.db.WithContext(ctx).Create(tier).Error; err != nil {
		return nil, fmt.Errorf("failed to create tier: %w", err)
	}
	return tier, nil
}

// ListTiers returns a plan's tiers ordered by level
func (s *Service) ListTiers(ctx context.Context, clinicID, planID uuid.UUID) ([]models.CommissionTier, error) {
	if _, err := s.GetPlan(ctx, clinicID, planID); err != nil {
		return nil, err
	}
	var tiers []models.CommissionTier
	err := s.db.WithContext(ctx).
		Where("plan_id = ?", planID).
		Order("level ASC").
		Find(&tiers).Error
	return tiers, err
}

// DeleteTier removes a tier from a plan
func (s *Service) DeleteTier(ctx context.Context, clinicID, planID, tierID uuid.UUID) error {
	if _, err := s.GetPlan(ctx, clinicID, planID); err != nil {
		return err
	}
	result := s.db.WithContext(ctx).
		Where("id = ? AND plan_id = ?", tierID, planID).
		Delete(&models.CommissionTier{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ProductRateInput carries the writable fields of a product rate rule
type ProductRateInput struct {
	MatchType       models.ProductRateMatch `json:"match_type" binding:"required"`
	SKU             string                  `json:"sku"`
	Category        string                  `json:"category"`
	MinAmountCents  int64                   `json:"min_amount_cents"`
	MaxAmountCents  int64                   `json:"max_amount_cents"`
	Priority        int                     `json:"priority"`
	RateType        models.PlanType         `json:"rate_type" binding:"required"`
	PercentBps      int                     `json:"percent_bps"`
	FlatAmountCents int64                   `json:"flat_amount_cents"`
}

func (in *ProductRateInput) validate() error {
	switch in.MatchType {
	case models.ProductRateMatchSKU:
		if in.SKU == "" {
			return errors.New("sku is required for SKU rules")
		}
	case models.ProductRateMatchCategory:
		if in.Category == "" {
			return errors.New("category is required for CATEGORY rules")
		}
	case models.ProductRateMatchPriceRange:
		if in.MinAmountCents <= 0 && in.MaxAmountCents <= 0 {
			return errors.New("price range rules need at least one bound")
		}
	default:
		return fmt.Errorf("invalid match type %q", in.MatchType)
	}
	switch in.RateType {
	case models.PlanTypeFlat, models.PlanTypePercent:
	default:
		return fmt.Errorf("invalid rate type %q", in.RateType)
	}
	return nil
}

// CreateProductRate adds a product-specific override rule to a plan
func (s *Service) CreateProductRate(ctx context.Context, clinicID, planID uuid.UUID, in ProductRateInput) (*models.ProductRate, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if _, err := s.GetPlan(ctx, clinicID, planID); err != nil {
		return nil, err
	}

	rule := &models.ProductRate{
		ID:              uuid.New(),
		PlanID:          planID,
		MatchType:       in.MatchType,
		SKU:             in.SKU,
		Category:        in.Category,
		MinAmountCents:  in.MinAmountCents,
		MaxAmountCents:  in.MaxAmountCents,
		Priority:        in.Priority,
		RateType:        in.RateType,
		PercentBps:      in.PercentBps,
		FlatAmountCents: in.FlatAmountCents,
		Active:          true,
	}
	if err := s.db.WithContext(ctx).Create(rule).Error; err != nil {
		return nil, fmt.Errorf("failed to create product rate: %w", err)
	}
	return rule, nil
}

// ListProductRates returns a plan's product rate rules
func (s *Service) ListProductRates(ctx context.Context, clinicID, planID uuid.UUID) ([]models.ProductRate, error) {
	if _, err := s.GetPlan(ctx, clinicID, planID); err != nil {
		return nil, err
	}
	var rules []models.ProductRate
	err := s.db.WithContext(ctx).
		Where("plan_id = ?", planID).
		Order("priority ASC").
		Find(&rules).Error
	return rules, err
}

// DeleteProductRate removes a product rate rule from a plan
func (s *Service) DeleteProductRate(ctx context.Context, clinicID, planID, rateID uuid.UUID) error {
	if _, err := s.GetPlan(ctx, clinicID, planID); err != nil {
		return err
	}
	result := s.db.WithContext(ctx).
		Where("id = ? AND plan_id = ?", rateID, planID).
		Delete(&models.ProductRate{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// PromotionInput carries the writable fields of a promotion
type PromotionInput struct {
	Name          string     `json:"name" binding:"required"`
	StartsAt      time.Time  `json:"starts_at" binding:"required"`
	EndsAt        time.Time  `json:"ends_at" binding:"required"`
	MaxUses       int64      `json:"max_uses"`
	AffiliateID   *uuid.UUID `json:"affiliate_id"`
	RefCode       string     `json:"ref_code"`
	MinOrderCents int64      `json:"min_order_cents"`
	BonusBps      int        `json:"bonus_bps"`
	BonusCents    int64      `json:"bonus_cents"`
}

// CreatePromotion creates a time-boxed promotional bonus for a clinic
func (s *Service) CreatePromotion(ctx context.Context, clinicID uuid.UUID, in PromotionInput) (*models.Promotion, error) {
	if !in.EndsAt.After(in.StartsAt) {
		return nil, errors.New("promotion must end after it starts")
	}
	if in.BonusBps < 0 || in.BonusCents < 0 || in.MinOrderCents < 0 || in.MaxUses < 0 {
		return nil, errors.New("promotion amounts must be non-negative")
	}

	promo := &models.Promotion{
		ID:            uuid.New(),
		ClinicID:      clinicID,
		Name:          in.Name,
		StartsAt:      in.StartsAt,
		EndsAt:        in.EndsAt,
		MaxUses:       in.MaxUses,
		AffiliateID:   in.AffiliateID,
		RefCode:       in.RefCode,
		MinOrderCents: in.MinOrderCents,
		BonusBps:      in.BonusBps,
		BonusCents:    in.BonusCents,
		Active:        true,
	}
	if err := s.db.WithContext(ctx).Create(promo).Error; err != nil {
		return nil, fmt.Errorf("failed to create promotion: %w", err)
	}
	return promo, nil
}

// ListPromotions returns all promotions for a clinic
func (s *Service) ListPromotions(ctx context.Context, clinicID uuid.UUID) ([]models.Promotion, error) {
	var promos []models.Promotion
	err := s.db.WithContext(ctx).
		Where("clinic_id = ?", clinicID).
		Order("starts_at DESC").
		Find(&promos).Error
	return promos, err
}

// EndPromotion deactivates a promotion so it no longer applies
func (s *Service) EndPromotion(ctx context.Context, clinicID, promoID uuid.UUID) error {
	result := s.db.WithContext(ctx).Model(&models.Promotion{}).
		Where("id = ? AND clinic_id = ? AND active = ?", promoID, clinicID, true).
		Update("active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
