package fraud

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clinova/backend/internal/models"
	"github.com/clinova/backend/internal/services/commission"
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

	require.NoError(t, db.AutoMigrate(&models.CommissionEvent{}, &models.FraudAlert{}))
	return db
}

func seedRecentEvents(t *testing.T, db *gorm.DB, clinicID, affiliateID, patientID uuid.UUID, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		event := models.CommissionEvent{
			ClinicID:        clinicID,
			StripeEventID:   fmt.Sprintf("evt_%s_%d", affiliateID, i),
			StripeObjectID:  fmt.Sprintf("pi_%s_%d", affiliateID, i),
			AffiliateID:     affiliateID,
			PlanID:          uuid.New(),
			PatientID:       patientID,
			AmountCents:     10000,
			CommissionCents: 1000,
			Status:          models.CommissionStatusPending,
			OccurredAt:      time.Now().Add(-time.Hour),
		}
		require.NoError(t, db.Create(&event).Error)
	}
}

func TestLocalScoringCleanAffiliate(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, nil)

	result, err := svc.CheckPayment(context.Background(), commission.FraudCheck{
		ClinicID:         uuid.New(),
		AffiliateID:      uuid.New(),
		PatientID:        uuid.New(),
		EventAmountCents: 20000,
	})
	require.NoError(t, err)
	assert.Zero(t, result.RiskScore)
	assert.Equal(t, models.FraudRecommendationAccept, result.Recommendation)
	assert.Empty(t, result.Alerts)
}

func TestLocalScoringAffiliateVelocity(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, nil)

	clinicID := uuid.New()
	affiliateID := uuid.New()
	seedRecentEvents(t, db, clinicID, affiliateID, uuid.New(), 20)

	result, err := svc.CheckPayment(context.Background(), commission.FraudCheck{
		ClinicID:         clinicID,
		AffiliateID:      affiliateID,
		PatientID:        uuid.New(),
		EventAmountCents: 20000,
	})
	require.NoError(t, err)
	assert.Equal(t, 25, result.RiskScore)
	assert.Equal(t, models.FraudRecommendationAccept, result.Recommendation)
	require.Len(t, result.Alerts, 1)
	assert.Equal(t, "affiliate_velocity", result.Alerts[0].Type)
}

func TestLocalScoringStackedSignalsReject(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, nil)

	clinicID := uuid.New()
	affiliateID := uuid.New()
	patientID := uuid.New()
	// 50 events in 24h from one affiliate, 5 of them for the same patient
	seedRecentEvents(t, db, clinicID, affiliateID, patientID, 50)

	result, err := svc.CheckPayment(context.Background(), commission.FraudCheck{
		ClinicID:         clinicID,
		AffiliateID:      affiliateID,
		PatientID:        patientID,
		EventAmountCents: 600000,
	})
	require.NoError(t, err)
	// 45 (affiliate velocity) + 40 (patient velocity) + 15 (large amount)
	assert.Equal(t, 100, result.RiskScore)
	assert.Equal(t, models.FraudRecommendationReject, result.Recommendation)
	assert.Len(t, result.Alerts, 3)
}

func TestLocalScoringReviewBand(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, nil)

	clinicID := uuid.New()
	affiliateID := uuid.New()
	seedRecentEvents(t, db, clinicID, affiliateID, uuid.New(), 20)

	result, err := svc.CheckPayment(context.Background(), commission.FraudCheck{
		ClinicID:         clinicID,
		AffiliateID:      affiliateID,
		PatientID:        uuid.New(),
		EventAmountCents: 600000,
	})
	require.NoError(t, err)
	assert.Equal(t, 40, result.RiskScore)
	assert.Equal(t, models.FraudRecommendationReview, result.Recommendation)
}

func TestPersistAlerts(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, nil)

	check := commission.FraudCheck{
		ClinicID:         uuid.New(),
		AffiliateID:      uuid.New(),
		PatientID:        uuid.New(),
		EventAmountCents: 600000,
	}
	result := &commission.FraudResult{
		RiskScore:      55,
		Recommendation: models.FraudRecommendationReview,
		Alerts: []commission.FraudAlertInfo{
			{Type: "affiliate_velocity"},
			{Type: "large_amount"},
		},
	}

	require.NoError(t, svc.PersistAlerts(context.Background(), check, result))

	var alerts []models.FraudAlert
	require.NoError(t, db.Where("affiliate_id = ?", check.AffiliateID).Order("alert_type ASC").Find(&alerts).Error)
	require.Len(t, alerts, 2)
	assert.Equal(t, "affiliate_velocity", alerts[0].AlertType)
	assert.Equal(t, 55, alerts[0].RiskScore)
	assert.Equal(t, models.FraudRecommendationReview, alerts[0].Recommendation)
	assert.Equal(t, int64(600000), alerts[0].EventAmount)
}

func TestHTTPProviderScore(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/v1/score", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"risk_score": 72, "recommendation": "review", "alerts": [{"type": "device_mismatch"}]}`)
	}))
	defer server.Close()

	provider := NewHTTPProvider(HTTPProviderConfig{BaseURL: server.URL, APIKey: "test-key"})
	result, err := provider.Score(context.Background(), commission.FraudCheck{
		ClinicID:    uuid.New(),
		AffiliateID: uuid.New(),
		PatientID:   uuid.New(),
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, 72, result.RiskScore)
	assert.Equal(t, models.FraudRecommendationReview, result.Recommendation)
	require.Len(t, result.Alerts, 1)
	assert.Equal(t, "device_mismatch", result.Alerts[0].Type)
}

func TestHTTPProviderNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	provider := NewHTTPProvider(HTTPProviderConfig{BaseURL: server.URL})
	_, err := provider.Score(context.Background(), commission.FraudCheck{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
