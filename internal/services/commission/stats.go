package commission

import (
	"context"
	"fmt"
	"time"

	"github.com/clinova/backend/internal/models"
	"github.com/google/uuid"
)

// smallCellThreshold is the minimum daily conversion count below which
// monetary figures are suppressed. Required for HIPAA-safe reporting.
const smallCellThreshold = 5

// StatsBucket is a daily aggregate. Buckets under the small-cell
// threshold report Conversions as "<5" with null monetary figures.
type StatsBucket struct {
	Date            string `json:"date"`
	Conversions     string `json:"conversions"`
	RevenueCents    *int64 `json:"revenue_cents"`
	CommissionCents *int64 `json:"commission_cents"`
}

// AffiliateStats is the HIPAA-safe aggregate view of an affiliate's
// commission activity. Totals cover unsuppressed buckets only, so the
// response arithmetic cannot recover a suppressed cell.
type AffiliateStats struct {
	AffiliateID          uuid.UUID     `json:"affiliate_id"`
	ClinicID             uuid.UUID     `json:"clinic_id"`
	Buckets              []StatsBucket `json:"buckets"`
	TotalConversions     int64         `json:"total_conversions"`
	TotalRevenueCents    int64         `json:"total_revenue_cents"`
	TotalCommissionCents int64         `json:"total_commission_cents"`
	SuppressedBuckets    int           `json:"suppressed_buckets"`
}

type statsRow struct {
	Day             string
	Conversions     int64
	RevenueCents    int64
	CommissionCents int64
}

// GetAffiliateCommissionStats aggregates non-reversed commission events
// into daily buckets with small-cell suppression
func (s *Service) GetAffiliateCommissionStats(ctx context.Context, affiliateID, clinicID uuid.UUID, from, to *time.Time) (*AffiliateStats, error) {
	query := s.db.WithContext(ctx).Model(&models.CommissionEvent{}).
		Select("DATE(occurred_at) AS day, COUNT(*) AS conversions, SUM(amount_cents) AS revenue_cents, SUM(commission_cents) AS commission_cents").
		Where("affiliate_id = ? AND clinic_id = ? AND status <> ?", affiliateID, clinicID, models.CommissionStatusReversed)
	if from != nil {
		query = query.Where("occurred_at >= ?", *from)
	}
	if to != nil {
		query = query.Where("occurred_at <= ?", *to)
	}

	var rows []statsRow
	if err := query.Group("DATE(occurred_at)").Order("day ASC").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate commission stats: %w", err)
	}

	stats := &AffiliateStats{
		AffiliateID: affiliateID,
		ClinicID:    clinicID,
		Buckets:     make([]StatsBucket, 0, len(rows)),
	}

	for _, row := range rows {
		if row.Conversions < smallCellThreshold {
			stats.Buckets = append(stats.Buckets, StatsBucket{
				Date:        row.Day,
				Conversions: "<5",
			})
			stats.SuppressedBuckets++
			continue
		}

		revenue := row.RevenueCents
		commissionCents := row.CommissionCents
		stats.Buckets = append(stats.Buckets, StatsBucket{
			Date:            row.Day,
			Conversions:     fmt.Sprintf("%d", row.Conversions),
			RevenueCents:    &revenue,
			CommissionCents: &commissionCents,
		})
		stats.TotalConversions += row.Conversions
		stats.TotalRevenueCents += row.RevenueCents
		stats.TotalCommissionCents += row.CommissionCents
	}

	return stats, nil
}
