package handlers

import (
	"context"
	"log"
	"net/http"

	"github.com/clinova/backend/internal/services/affiliate"
	"github.com/clinova/backend/internal/services/commission"
	"github.com/clinova/backend/internal/services/notification"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WebhookHandler handles normalized payment-provider webhook deliveries.
// Signature verification and payload normalization happen at the edge
// before events reach these endpoints.
type WebhookHandler struct {
	commissionService *commission.Service
	affiliateService  *affiliate.Service
	emailService      *notification.EmailService
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(commissionService *commission.Service, affiliateService *affiliate.Service, emailService *notification.EmailService) *WebhookHandler {
	return &WebhookHandler{
		commissionService: commissionService,
		affiliateService:  affiliateService,
		emailService:      emailService,
	}
}

// PaymentWebhook processes a payment event for commission. Skips return
// 200 so the provider does not retry deliveries we have deliberately
// declined.
func (h *WebhookHandler) PaymentWebhook(c *gin.Context) {
	var data commission.PaymentEventData
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if data.StripeEventID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stripe_event_id is required"})
		return
	}

	result, err := h.commissionService.ProcessPaymentForCommission(c.Request.Context(), data)
	if err != nil {
		log.Printf("Failed to process payment event %s: %v", data.StripeEventID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process payment event"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// RefundWebhook processes a refund event, reversing any matching
// commission
func (h *WebhookHandler) RefundWebhook(c *gin.Context) {
	var data commission.RefundEventData
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if data.StripeObjectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stripe_object_id is required"})
		return
	}

	result, err := h.commissionService.ReverseCommissionForRefund(c.Request.Context(), data)
	if err != nil {
		log.Printf("Failed to process refund for %s: %v", data.StripeObjectID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process refund event"})
		return
	}

	if h.emailService != nil && result.Success && result.AffiliateID != nil {
		// Best effort; the reversal stands whether or not the notice lands
		go h.sendReversalNotice(data.ClinicID, *result.AffiliateID, result.CommissionAmountCents, data.Reason)
	}

	c.JSON(http.StatusOK, result)
}

func (h *WebhookHandler) sendReversalNotice(clinicID, affiliateID uuid.UUID, amountCents int64, reason string) {
	aff, err := h.affiliateService.Get(context.Background(), clinicID, affiliateID)
	if err != nil {
		log.Printf("Failed to load affiliate %s for reversal notice: %v", affiliateID, err)
		return
	}
	if err := h.emailService.SendCommissionReversedEmail(aff, amountCents, reason); err != nil {
		log.Printf("Failed to send reversal notice to %s: %v", aff.Email, err)
	}
}
