package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/clinova/backend/internal/models"
	"github.com/clinova/backend/internal/services/affiliate"
	"github.com/clinova/backend/internal/services/commission"
	"github.com/clinova/backend/internal/services/notification"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AffiliateHandler handles affiliate registration, status changes,
// patient attribution and commission stats
type AffiliateHandler struct {
	affiliateService  *affiliate.Service
	commissionService *commission.Service
	emailService      *notification.EmailService
}

// NewAffiliateHandler creates a new affiliate handler
func NewAffiliateHandler(affiliateService *affiliate.Service, commissionService *commission.Service, emailService *notification.EmailService) *AffiliateHandler {
	return &AffiliateHandler{
		affiliateService:  affiliateService,
		commissionService: commissionService,
		emailService:      emailService,
	}
}

// RegisterAffiliateRequest represents a request to register an affiliate
type RegisterAffiliateRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email"`
}

// Register creates a new affiliate with a generated referral code
func (h *AffiliateHandler) Register(c *gin.Context) {
	clinicID, ok := parseUUIDParam(c, "clinicID")
	if !ok {
		return
	}

	var req RegisterAffiliateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.affiliateService.Register(c.Request.Context(), clinicID, req.Name, req.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Best effort; registration succeeded either way
	if h.emailService != nil {
		go func(aff models.Affiliate) {
			if err := h.emailService.SendWelcomeEmail(&aff); err != nil {
				log.Printf("Failed to send welcome email to %s: %v", aff.Email, err)
			}
		}(*created)
	}

	c.JSON(http.StatusCreated, gin.H{"status": "success", "affiliate": created})
}

// Get fetches an affiliate
func (h *AffiliateHandler) Get(c *gin.Context) {
	clinicID, ok := parseUUIDParam(c, "clinicID")
	if !ok {
		return
	}
	affiliateID, ok := parseUUIDParam(c, "affiliateID")
	if !ok {
		return
	}

	found, err := h.affiliateService.Get(c.Request.Context(), clinicID, affiliateID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "affiliate": found})
}

// SetStatusRequest represents an affiliate status change
type SetStatusRequest struct {
	Status models.AffiliateStatus `json:"status" binding:"required"`
}

// SetStatus activates, suspends or terminates an affiliate
func (h *AffiliateHandler) SetStatus(c *gin.Context) {
	clinicID, ok := parseUUIDParam(c, "clinicID")
	if !ok {
		return
	}
	affiliateID, ok := parseUUIDParam(c, "affiliateID")
	if !ok {
		return
	}

	var req SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.affiliateService.SetStatus(c.Request.Context(), clinicID, affiliateID, req.Status); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "affiliate not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// CaptureAttributionRequest represents a first-touch attribution capture
type CaptureAttributionRequest struct {
	PatientID uuid.UUID `json:"patient_id" binding:"required"`
	RefCode   string    `json:"ref_code" binding:"required"`
}

// CaptureAttribution records which affiliate referred a patient. First
// touch wins; repeat captures return the existing attribution.
func (h *AffiliateHandler) CaptureAttribution(c *gin.Context) {
	clinicID, ok := parseUUIDParam(c, "clinicID")
	if !ok {
		return
	}

	var req CaptureAttributionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	attribution, err := h.affiliateService.CaptureAttribution(c.Request.Context(), clinicID, req.PatientID, req.RefCode)
	if err != nil {
		if errors.Is(err, affiliate.ErrUnknownRefCode) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "attribution": attribution})
}

// GetStats returns an affiliate's daily commission stats with small
// cells suppressed
func (h *AffiliateHandler) GetStats(c *gin.Context) {
	clinicID, ok := parseUUIDParam(c, "clinicID")
	if !ok {
		return
	}
	affiliateID, ok := parseUUIDParam(c, "affiliateID")
	if !ok {
		return
	}

	from, ok := parseTimeQuery(c, "from")
	if !ok {
		return
	}
	to, ok := parseTimeQuery(c, "to")
	if !ok {
		return
	}

	stats, err := h.commissionService.GetAffiliateCommissionStats(c.Request.Context(), affiliateID, clinicID, from, to)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "stats": stats})
}

// parseTimeQuery parses an optional RFC 3339 query parameter
func parseTimeQuery(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name + ": expected RFC 3339 timestamp"})
		return nil, false
	}
	return &t, true
}
