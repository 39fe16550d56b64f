package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clinova/backend/internal/models"
	"github.com/clinova/backend/internal/services/affiliate"
	"github.com/clinova/backend/internal/services/commission"
	"github.com/clinova/backend/internal/services/notification"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type webhookTestEnv struct {
	db        *gorm.DB
	router    *gin.Engine
	clinic    models.Clinic
	affiliate models.Affiliate
	patientID uuid.UUID
}

func setupWebhookTest(t *testing.T) *webhookTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

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
		&models.CommissionTier{},
		&models.ProductRate{},
		&models.Promotion{},
		&models.PlanAssignment{},
		&models.CommissionEvent{},
	))

	env := &webhookTestEnv{db: db, patientID: uuid.New()}

	env.clinic = models.Clinic{ID: uuid.New(), Name: "Lakeside Dermatology", Slug: "lakeside-dermatology", Active: true}
	require.NoError(t, db.Create(&env.clinic).Error)

	env.affiliate = models.Affiliate{
		ID: uuid.New(), ClinicID: env.clinic.ID, Name: "Dana Rep",
		Email: "dana@example.com", RefCode: "DANA-X7K2M9", Status: models.AffiliateStatusActive,
	}
	require.NoError(t, db.Create(&env.affiliate).Error)

	plan := models.CommissionPlan{
		ID: uuid.New(), ClinicID: env.clinic.ID, Name: "Standard 10%",
		PlanType: models.PlanTypePercent, PercentBps: 1000,
		Scope: models.PlanScopeAllPayments, ClawbackEnabled: true, Active: true,
	}
	require.NoError(t, db.Create(&plan).Error)

	assignment := models.PlanAssignment{
		ID: uuid.New(), ClinicID: env.clinic.ID, AffiliateID: env.affiliate.ID,
		PlanID: plan.ID, EffectiveFrom: time.Now().Add(-30 * 24 * time.Hour),
	}
	require.NoError(t, db.Create(&assignment).Error)

	attribution := models.PatientAttribution{
		ID: uuid.New(), ClinicID: env.clinic.ID, PatientID: env.patientID,
		AffiliateID: env.affiliate.ID, RefCode: env.affiliate.RefCode,
		CapturedAt: time.Now().Add(-7 * 24 * time.Hour),
	}
	require.NoError(t, db.Create(&attribution).Error)

	t.Setenv("SMTP_HOST", "")
	svc := commission.NewService(db, nil, nil)
	handler := NewWebhookHandler(svc, affiliate.NewService(db), notification.NewEmailService())

	router := gin.New()
	router.POST("/api/v1/webhooks/stripe/payment", handler.PaymentWebhook)
	router.POST("/api/v1/webhooks/stripe/refund", handler.RefundWebhook)
	env.router = router

	return env
}

func (env *webhookTestEnv) post(t *testing.T, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func TestPaymentWebhookCreatesCommission(t *testing.T) {
	env := setupWebhookTest(t)

	payload := commission.PaymentEventData{
		ClinicID:        env.clinic.ID,
		PatientID:       env.patientID,
		StripeEventID:   "evt_test_1",
		StripeObjectID:  "pi_test_1",
		StripeEventType: "payment_intent.succeeded",
		AmountCents:     20000,
		OccurredAt:      time.Now().UTC(),
		IsFirstPayment:  true,
	}

	w := env.post(t, "/api/v1/webhooks/stripe/payment", payload)
	require.Equal(t, http.StatusOK, w.Code)

	var result commission.ProcessResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.False(t, result.Skipped)
	assert.Equal(t, int64(2000), result.CommissionAmountCents)
	require.NotNil(t, result.CommissionEventID)
}

func TestPaymentWebhookDuplicateIsOKSkip(t *testing.T) {
	env := setupWebhookTest(t)

	payload := commission.PaymentEventData{
		ClinicID:       env.clinic.ID,
		PatientID:      env.patientID,
		StripeEventID:  "evt_test_dup",
		StripeObjectID: "pi_test_dup",
		AmountCents:    20000,
		OccurredAt:     time.Now().UTC(),
		IsFirstPayment: true,
	}

	first := env.post(t, "/api/v1/webhooks/stripe/payment", payload)
	require.Equal(t, http.StatusOK, first.Code)

	second := env.post(t, "/api/v1/webhooks/stripe/payment", payload)
	require.Equal(t, http.StatusOK, second.Code, "duplicate delivery must not look like a failure to the provider")

	var result commission.ProcessResult
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &result))
	assert.True(t, result.Skipped)
	assert.Equal(t, commission.SkipReasonAlreadyProcessed, result.SkipReason)
}

func TestPaymentWebhookRejectsMissingEventID(t *testing.T) {
	env := setupWebhookTest(t)

	payload := commission.PaymentEventData{
		ClinicID:    env.clinic.ID,
		PatientID:   env.patientID,
		AmountCents: 20000,
		OccurredAt:  time.Now().UTC(),
	}

	w := env.post(t, "/api/v1/webhooks/stripe/payment", payload)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefundWebhookReversesCommission(t *testing.T) {
	env := setupWebhookTest(t)

	payment := commission.PaymentEventData{
		ClinicID:       env.clinic.ID,
		PatientID:      env.patientID,
		StripeEventID:  "evt_test_refund",
		StripeObjectID: "pi_test_refund",
		AmountCents:    20000,
		OccurredAt:     time.Now().UTC(),
		IsFirstPayment: true,
	}
	require.Equal(t, http.StatusOK, env.post(t, "/api/v1/webhooks/stripe/payment", payment).Code)

	refund := commission.RefundEventData{
		ClinicID:       env.clinic.ID,
		StripeObjectID: "pi_test_refund",
		AmountCents:    20000,
		Reason:         "refund",
	}
	w := env.post(t, "/api/v1/webhooks/stripe/refund", refund)
	require.Equal(t, http.StatusOK, w.Code)

	var result commission.ProcessResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, int64(2000), result.CommissionAmountCents)
	require.NotNil(t, result.AffiliateID, "reversal result must identify the affiliate so the notice can be sent")
	assert.Equal(t, env.affiliate.ID, *result.AffiliateID)

	var event models.CommissionEvent
	require.NoError(t, env.db.First(&event, "stripe_object_id = ?", "pi_test_refund").Error)
	assert.Equal(t, models.CommissionStatusReversed, event.Status)
}

func TestRefundWebhookUnknownObjectIsOKSkip(t *testing.T) {
	env := setupWebhookTest(t)

	refund := commission.RefundEventData{
		ClinicID:       env.clinic.ID,
		StripeObjectID: "pi_never_seen",
	}
	w := env.post(t, "/api/v1/webhooks/stripe/refund", refund)
	require.Equal(t, http.StatusOK, w.Code)

	var result commission.ProcessResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Skipped)
	assert.Equal(t, commission.SkipReasonNoMatchingEvent, result.SkipReason)
}
