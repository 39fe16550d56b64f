package affiliate

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/clinova/backend/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Clinic{},
		&models.Affiliate{},
		&models.PatientAttribution{},
		&models.CommissionPlan{},
		&models.PlanAssignment{},
	))
	return db
}

func seedClinic(t *testing.T, db *gorm.DB) models.Clinic {
	t.Helper()
	clinic := models.Clinic{ID: uuid.New(), Name: "Lakeside Dermatology", Slug: "lakeside-dermatology", Active: true}
	require.NoError(t, db.Create(&clinic).Error)
	return clinic
}

func TestRegisterGeneratesRefCode(t *testing.T) {
	db := newTestDB(t)
	clinic := seedClinic(t, db)
	svc := NewService(db)

	aff, err := svc.Register(context.Background(), clinic.ID, "Dana O'Brien", "dana@example.com")
	require.NoError(t, err)

	assert.Equal(t, models.AffiliateStatusActive, aff.Status)
	assert.True(t, strings.HasPrefix(aff.RefCode, "dana-obrien-"), "ref code %q should start with the slugified name", aff.RefCode)
	suffix := strings.TrimPrefix(aff.RefCode, "dana-obrien-")
	assert.Len(t, suffix, 6)
}

func TestRegisterCodesAreUnique(t *testing.T) {
	db := newTestDB(t)
	clinic := seedClinic(t, db)
	svc := NewService(db)

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		aff, err := svc.Register(context.Background(), clinic.ID, "Sam Lee", fmt.Sprintf("sam%d@example.com", i))
		require.NoError(t, err)
		assert.False(t, seen[aff.RefCode], "duplicate ref code %q", aff.RefCode)
		seen[aff.RefCode] = true
	}
}

func TestSetStatus(t *testing.T) {
	db := newTestDB(t)
	clinic := seedClinic(t, db)
	svc := NewService(db)
	ctx := context.Background()

	aff, err := svc.Register(ctx, clinic.ID, "Dana", "dana@example.com")
	require.NoError(t, err)

	require.NoError(t, svc.SetStatus(ctx, clinic.ID, aff.ID, models.AffiliateStatusSuspended))
	reloaded, err := svc.Get(ctx, clinic.ID, aff.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AffiliateStatusSuspended, reloaded.Status)

	err = svc.SetStatus(ctx, clinic.ID, uuid.New(), models.AffiliateStatusActive)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCaptureAttributionFirstTouchWins(t *testing.T) {
	db := newTestDB(t)
	clinic := seedClinic(t, db)
	svc := NewService(db)
	ctx := context.Background()

	first, err := svc.Register(ctx, clinic.ID, "First Rep", "first@example.com")
	require.NoError(t, err)
	second, err := svc.Register(ctx, clinic.ID, "Second Rep", "second@example.com")
	require.NoError(t, err)

	patientID := uuid.New()
	attr, err := svc.CaptureAttribution(ctx, clinic.ID, patientID, first.RefCode)
	require.NoError(t, err)
	assert.Equal(t, first.ID, attr.AffiliateID)

	// A later touch through another rep's code does not overwrite
	repeat, err := svc.CaptureAttribution(ctx, clinic.ID, patientID, second.RefCode)
	require.NoError(t, err)
	assert.Equal(t, attr.ID, repeat.ID)
	assert.Equal(t, first.ID, repeat.AffiliateID)

	var count int64
	require.NoError(t, db.Model(&models.PatientAttribution{}).Where("patient_id = ?", patientID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCaptureAttributionUnknownCode(t *testing.T) {
	db := newTestDB(t)
	clinic := seedClinic(t, db)
	svc := NewService(db)

	_, err := svc.CaptureAttribution(context.Background(), clinic.ID, uuid.New(), "NO-SUCH-CODE")
	assert.ErrorIs(t, err, ErrUnknownRefCode)
}

func TestAssignPlanClosesOpenAssignment(t *testing.T) {
	db := newTestDB(t)
	clinic := seedClinic(t, db)
	svc := NewService(db)
	ctx := context.Background()

	aff, err := svc.Register(ctx, clinic.ID, "Dana", "dana@example.com")
	require.NoError(t, err)

	planA := models.CommissionPlan{ID: uuid.New(), ClinicID: clinic.ID, Name: "Plan A", PlanType: models.PlanTypePercent, PercentBps: 1000, Active: true}
	planB := models.CommissionPlan{ID: uuid.New(), ClinicID: clinic.ID, Name: "Plan B", PlanType: models.PlanTypePercent, PercentBps: 1500, Active: true}
	require.NoError(t, db.Create(&planA).Error)
	require.NoError(t, db.Create(&planB).Error)

	start := time.Now().Add(-10 * 24 * time.Hour)
	firstAssignment, err := svc.AssignPlan(ctx, clinic.ID, aff.ID, planA.ID, start)
	require.NoError(t, err)

	switchAt := time.Now()
	secondAssignment, err := svc.AssignPlan(ctx, clinic.ID, aff.ID, planB.ID, switchAt)
	require.NoError(t, err)
	assert.NotEqual(t, firstAssignment.ID, secondAssignment.ID)

	var closed models.PlanAssignment
	require.NoError(t, db.First(&closed, "id = ?", firstAssignment.ID).Error)
	require.NotNil(t, closed.EffectiveTo)
	assert.WithinDuration(t, switchAt, *closed.EffectiveTo, time.Second)

	var open models.PlanAssignment
	require.NoError(t, db.First(&open, "id = ?", secondAssignment.ID).Error)
	assert.Nil(t, open.EffectiveTo)
}

func TestEndAssignment(t *testing.T) {
	db := newTestDB(t)
	clinic := seedClinic(t, db)
	svc := NewService(db)
	ctx := context.Background()

	aff, err := svc.Register(ctx, clinic.ID, "Dana", "dana@example.com")
	require.NoError(t, err)

	plan := models.CommissionPlan{ID: uuid.New(), ClinicID: clinic.ID, Name: "Plan", PlanType: models.PlanTypePercent, PercentBps: 1000, Active: true}
	require.NoError(t, db.Create(&plan).Error)

	assignment, err := svc.AssignPlan(ctx, clinic.ID, aff.ID, plan.ID, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	require.NoError(t, svc.EndAssignment(ctx, clinic.ID, assignment.ID, time.Now()))

	// Ending a closed assignment reports not found
	err = svc.EndAssignment(ctx, clinic.ID, assignment.ID, time.Now())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
