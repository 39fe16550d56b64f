package commission

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/clinova/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedEvents(t *testing.T, db *gorm.DB, f *fixture, day time.Time, count int, status models.CommissionStatus) {
	t.Helper()
	for i := 0; i < count; i++ {
		event := models.CommissionEvent{
			ClinicID:        f.clinic.ID,
			StripeEventID:   fmt.Sprintf("evt_%s_%s_%d", day.Format("20060102T1504"), status, i),
			StripeObjectID:  fmt.Sprintf("pi_%s_%s_%d", day.Format("20060102T1504"), status, i),
			AffiliateID:     f.affiliate.ID,
			PlanID:          f.plan.ID,
			PatientID:       f.patientID,
			AmountCents:     10000,
			CommissionCents: 1000,
			Status:          status,
			OccurredAt:      day.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, db.Create(&event).Error)
	}
}

func TestAffiliateStatsSmallCellSuppression(t *testing.T) {
	db := newTestDB(t)
	f := seedFixture(t, db)
	svc := NewService(db, nil, nil)

	busyDay := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)
	quietDay := time.Date(2026, 8, 4, 10, 0, 0, 0, time.UTC)
	seedEvents(t, db, f, busyDay, 6, models.CommissionStatusApproved)
	seedEvents(t, db, f, quietDay, 3, models.CommissionStatusApproved)

	stats, err := svc.GetAffiliateCommissionStats(context.Background(), f.affiliate.ID, f.clinic.ID, nil, nil)
	require.NoError(t, err)
	require.Len(t, stats.Buckets, 2)

	busy := stats.Buckets[0]
	assert.Equal(t, "2026-08-03", busy.Date)
	assert.Equal(t, "6", busy.Conversions)
	require.NotNil(t, busy.RevenueCents)
	assert.Equal(t, int64(60000), *busy.RevenueCents)
	require.NotNil(t, busy.CommissionCents)
	assert.Equal(t, int64(6000), *busy.CommissionCents)

	quiet := stats.Buckets[1]
	assert.Equal(t, "<5", quiet.Conversions)
	assert.Nil(t, quiet.RevenueCents, "suppressed buckets must not expose money")
	assert.Nil(t, quiet.CommissionCents)

	// Totals exclude suppressed buckets so they cannot be subtracted
	// back out of the response
	assert.Equal(t, int64(6), stats.TotalConversions)
	assert.Equal(t, int64(60000), stats.TotalRevenueCents)
	assert.Equal(t, int64(6000), stats.TotalCommissionCents)
	assert.Equal(t, 1, stats.SuppressedBuckets)
}

func TestAffiliateStatsExcludesReversed(t *testing.T) {
	db := newTestDB(t)
	f := seedFixture(t, db)
	svc := NewService(db, nil, nil)

	day := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	seedEvents(t, db, f, day, 5, models.CommissionStatusApproved)
	seedEvents(t, db, f, day.Add(6*time.Hour), 4, models.CommissionStatusReversed)

	stats, err := svc.GetAffiliateCommissionStats(context.Background(), f.affiliate.ID, f.clinic.ID, nil, nil)
	require.NoError(t, err)
	require.Len(t, stats.Buckets, 1)
	assert.Equal(t, "5", stats.Buckets[0].Conversions)
	assert.Equal(t, int64(5), stats.TotalConversions)
}

func TestAffiliateStatsDateRange(t *testing.T) {
	db := newTestDB(t)
	f := seedFixture(t, db)
	svc := NewService(db, nil, nil)

	inRange := time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC)
	outOfRange := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	seedEvents(t, db, f, inRange, 5, models.CommissionStatusApproved)
	seedEvents(t, db, f, outOfRange, 5, models.CommissionStatusApproved)

	from := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 7, 31, 23, 59, 59, 0, time.UTC)
	stats, err := svc.GetAffiliateCommissionStats(context.Background(), f.affiliate.ID, f.clinic.ID, &from, &to)
	require.NoError(t, err)
	require.Len(t, stats.Buckets, 1)
	assert.Equal(t, "2026-07-15", stats.Buckets[0].Date)
}
