package commission

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/clinova/backend/internal/models"
	"github.com/google/uuid"
)

// CalcInput carries the payment context for a single calculation
type CalcInput struct {
	AmountCents     int64
	IsFirstPayment  bool
	IsRecurring     bool
	RecurringMonth  int
	ProductSKU      string
	ProductCategory string
	RefCode         string
	Now             time.Time
}

// Breakdown is the result of a commission calculation. All amounts are
// integer cents. ProductAdjustmentCents is informational: it is already
// folded into BaseCents and must not be re-added to the total.
type Breakdown struct {
	BaseCents              int64       `json:"base_cents"`
	TierBonusCents         int64       `json:"tier_bonus_cents"`
	PromotionBonusCents    int64       `json:"promotion_bonus_cents"`
	ProductAdjustmentCents int64       `json:"product_adjustment_cents"`
	TotalCents             int64       `json:"total_cents"`
	MultiplierPct          int         `json:"multiplier_pct"`
	AppliedTierID          *uuid.UUID  `json:"applied_tier_id,omitempty"`
	AppliedProductRateID   *uuid.UUID  `json:"applied_product_rate_id,omitempty"`
	AppliedPromotionIDs    []uuid.UUID `json:"applied_promotion_ids,omitempty"`
	Provenance             []string    `json:"provenance,omitempty"`
}

// effectiveRate is the rate a commission is computed from at each stage
type effectiveRate struct {
	rateType   models.PlanType
	percentBps int
	flatCents  int64
}

// roundBps computes amount * bps / 10000 rounded half-up.
// Amounts and rates are non-negative at every call site.
func roundBps(amountCents int64, bps int) int64 {
	return (amountCents*int64(bps) + 5000) / 10000
}

// applyPct computes amount * pct / 100 rounded half-up
func applyPct(amountCents int64, pct int) int64 {
	return (amountCents*int64(pct) + 50) / 100
}

// commissionFor computes the commission a rate yields on an amount
func commissionFor(rate effectiveRate, amountCents int64) int64 {
	if rate.rateType == models.PlanTypeFlat {
		return rate.flatCents
	}
	return roundBps(amountCents, rate.percentBps)
}

// baseRate selects the plan rate for the payment kind: recurring
// payments use the recurring override when configured, everything else
// uses the initial override when configured, otherwise the plan default.
func baseRate(plan *models.CommissionPlan, in CalcInput) effectiveRate {
	rate := effectiveRate{
		rateType:   plan.PlanType,
		percentBps: plan.PercentBps,
		flatCents:  plan.FlatAmountCents,
	}

	if in.IsRecurring {
		if plan.PlanType == models.PlanTypePercent && plan.RecurringPercentBps > 0 {
			rate.percentBps = plan.RecurringPercentBps
		} else if plan.PlanType == models.PlanTypeFlat && plan.RecurringFlatCents > 0 {
			rate.flatCents = plan.RecurringFlatCents
		}
		return rate
	}

	if plan.PlanType == models.PlanTypePercent && plan.InitialPercentBps > 0 {
		rate.percentBps = plan.InitialPercentBps
	} else if plan.PlanType == models.PlanTypeFlat && plan.InitialFlatCents > 0 {
		rate.flatCents = plan.InitialFlatCents
	}
	return rate
}

// resolveTier returns the highest-level tier whose conversion and
// revenue thresholds are both met by the affiliate's lifetime stats
func resolveTier(tiers []models.CommissionTier, affiliate *models.Affiliate) *models.CommissionTier {
	sorted := make([]models.CommissionTier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Level > sorted[j].Level })

	for i := range sorted {
		tier := &sorted[i]
		if affiliate.LifetimeConversions >= tier.MinConversions &&
			affiliate.LifetimeRevenueCents >= tier.MinRevenueCents {
			return tier
		}
	}
	return nil
}

// productRateMatches reports whether a rule matches the payment, along
// with a specificity rank: SKU beats category beats price range.
func productRateMatches(rule *models.ProductRate, in CalcInput) (bool, int) {
	switch rule.MatchType {
	case models.ProductRateMatchSKU:
		if rule.SKU != "" && rule.SKU == in.ProductSKU {
			return true, 0
		}
	case models.ProductRateMatchCategory:
		if rule.Category != "" && strings.EqualFold(rule.Category, in.ProductCategory) {
			return true, 1
		}
	case models.ProductRateMatchPriceRange:
		if in.AmountCents >= rule.MinAmountCents &&
			(rule.MaxAmountCents == 0 || in.AmountCents <= rule.MaxAmountCents) {
			return true, 2
		}
	}
	return false, 0
}

// matchProductRate picks the winning product rule: best specificity
// rank first, then lowest Priority value
func matchProductRate(rules []models.ProductRate, in CalcInput) *models.ProductRate {
	var best *models.ProductRate
	bestRank := 0

	for i := range rules {
		rule := &rules[i]
		if !rule.Active {
			continue
		}
		ok, rank := productRateMatches(rule, in)
		if !ok {
			continue
		}
		if best == nil || rank < bestRank || (rank == bestRank && rule.Priority < best.Priority) {
			best = rule
			bestRank = rank
		}
	}
	return best
}

// promotionApplies checks activity window, usage cap, targeting and
// minimum order amount
func promotionApplies(promo *models.Promotion, affiliate *models.Affiliate, in CalcInput) bool {
	if !promo.Active {
		return false
	}
	if in.Now.Before(promo.StartsAt) || in.Now.After(promo.EndsAt) {
		return false
	}
	if promo.MaxUses > 0 && promo.UsesCount >= promo.MaxUses {
		return false
	}
	if promo.AffiliateID != nil && *promo.AffiliateID != affiliate.ID {
		return false
	}
	if promo.RefCode != "" && promo.RefCode != in.RefCode {
		return false
	}
	if promo.MinOrderCents > 0 && in.AmountCents < promo.MinOrderCents {
		return false
	}
	return true
}

// recurringMultiplierPct returns the recurring payout multiplier as a
// percentage: 0 past the plan's recurring window, the decay percentage
// after month 12 when configured, otherwise 100. Non-recurring payments
// always get 100.
func recurringMultiplierPct(plan *models.CommissionPlan, in CalcInput) int {
	if !in.IsRecurring {
		return 100
	}
	if plan.RecurringMonths > 0 && in.RecurringMonth > plan.RecurringMonths {
		return 0
	}
	if in.RecurringMonth > 12 && plan.RecurringDecayPct > 0 {
		return plan.RecurringDecayPct
	}
	return 100
}

// Calculate produces the commission breakdown for a payment under a
// plan. Steps, in order: effective base rate, tier override, product
// rule substitution, base recompute, promotion bonuses, recurring
// multiplier. A zero or negative total means no commission is due; the
// caller decides how to surface that.
func Calculate(plan *models.CommissionPlan, tiers []models.CommissionTier, productRates []models.ProductRate, promotions []models.Promotion, affiliate *models.Affiliate, in CalcInput) Breakdown {
	var bd Breakdown

	rate := baseRate(plan, in)

	if plan.TiersEnabled {
		if tier := resolveTier(tiers, affiliate); tier != nil {
			if tier.PercentBps > 0 {
				rate = effectiveRate{rateType: models.PlanTypePercent, percentBps: tier.PercentBps}
			} else if tier.FlatAmountCents > 0 {
				rate = effectiveRate{rateType: models.PlanTypeFlat, flatCents: tier.FlatAmountCents}
			}
			bd.TierBonusCents = tier.BonusCents
			tierID := tier.ID
			bd.AppliedTierID = &tierID
			bd.Provenance = append(bd.Provenance, fmt.Sprintf("tier level %d (%s)", tier.Level, tier.Name))
		}
	}

	if rule := matchProductRate(productRates, in); rule != nil {
		planCommission := commissionFor(rate, in.AmountCents)
		productRate := effectiveRate{
			rateType:   rule.RateType,
			percentBps: rule.PercentBps,
			flatCents:  rule.FlatAmountCents,
		}
		productCommission := commissionFor(productRate, in.AmountCents)
		bd.ProductAdjustmentCents = productCommission - planCommission
		rate = productRate
		ruleID := rule.ID
		bd.AppliedProductRateID = &ruleID
		bd.Provenance = append(bd.Provenance, fmt.Sprintf("product rule %s match", rule.MatchType))
	}

	bd.BaseCents = commissionFor(rate, in.AmountCents)

	for i := range promotions {
		promo := &promotions[i]
		if !promotionApplies(promo, affiliate, in) {
			continue
		}
		bonus := roundBps(in.AmountCents, promo.BonusBps) + promo.BonusCents
		bd.PromotionBonusCents += bonus
		bd.AppliedPromotionIDs = append(bd.AppliedPromotionIDs, promo.ID)
		bd.Provenance = append(bd.Provenance, fmt.Sprintf("promotion %q", promo.Name))
	}

	bd.MultiplierPct = recurringMultiplierPct(plan, in)
	bd.TotalCents = applyPct(bd.BaseCents+bd.TierBonusCents+bd.PromotionBonusCents, bd.MultiplierPct)

	return bd
}
