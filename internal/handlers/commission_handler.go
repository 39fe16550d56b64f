package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/clinova/backend/internal/services/affiliate"
	"github.com/clinova/backend/internal/services/commission"
	"github.com/clinova/backend/internal/services/plan"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CommissionHandler handles commission configuration: plans, tiers,
// product rates, promotions and plan assignments
type CommissionHandler struct {
	planService       *plan.Service
	affiliateService  *affiliate.Service
	commissionService *commission.Service
}

// NewCommissionHandler creates a new commission handler
func NewCommissionHandler(planService *plan.Service, affiliateService *affiliate.Service, commissionService *commission.Service) *CommissionHandler {
	return &CommissionHandler{
		planService:       planService,
		affiliateService:  affiliateService,
		commissionService: commissionService,
	}
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, plan.ErrPlanInUse):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// CreatePlan creates a commission plan
func (h *CommissionHandler) CreatePlan(c *gin.Context) {
	clinicID, ok := parseUUIDParam(c, "clinicID")
	if !ok {
		return
	}

	var req plan.PlanInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.planService.CreatePlan(c.Request.Context(), clinicID, req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "success", "plan": created})
}

// ListPlans lists a clinic's commission plans
func (h *CommissionHandler) ListPlans(c *gin.Context) {
	clinicID, ok := parseUUIDParam(c, "clinicID")
	if !ok {
		return
	}

	plans, err := h.planService.ListPlans(c.Request.Context(), clinicID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "plans": plans})
}

// GetPlan fetches a single commission plan
func (h *CommissionHandler) GetPlan(c *gin.Context) {
	clinicID, ok := parseUUIDParam(c, "clinicID")
	if !ok {
		return
	}
	planID, ok := parseUUIDParam(c, "planID")
	if !ok {
		return
	}

	found, err := h.planService.GetPlan(c.Request.Context(), clinicID, planID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "plan": found})
}

// UpdatePlan updates a commission plan that has no events yet
func (h *CommissionHandler) UpdatePlan(c *gin.Context) {
	clinicID, ok := parseUUIDParam(c, "clinicID")
	if !ok {
		return
	}
	planID, ok := parseUUIDParam(c, "planID")
	if !ok {
		return
	}

	var req plan.PlanInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.planService.UpdatePlan(c.Request.Context(), clinicID, planID, req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "plan": updated})
}

// DeactivatePlan marks a plan inactive
func (h *CommissionHandler) DeactivatePlan(c *gin.Context) {
	clinicID, ok := parseUUIDParam(c, "clinicID")
	if !ok {
		return
	}
	planID, ok := parseUUIDParam(c, "planID")
	if !ok {
		return
	}

	if err := h.planService.DeactivatePlan(c.Request.Context(), clinicID, planID); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// CreateTier adds a tier to a plan
func (h *CommissionHandler) CreateTier(c *gin.Context) {
	clinicID, ok := parseUUIDParam(c, "clinicID")
	if !ok {
		return
	}
	planID, ok := parseUUIDParam(c, "planID")
	if !ok {
		return
	}

	var req plan.TierInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tier, err := h.planService.CreateTier(c.Request.Context(), clinicID, planID, req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "success", "tier": tier})
}

// ListTiers lists a plan's tiers
func (h *CommissionHandler) ListTiers(c *gin.Context) {
	clinicID, ok := parseUUIDParam(c, "clinicID")
	if !ok {
		return
	}
	planID, ok := parseUUIDParam(c, "planID")
	if !ok {
		return
	}

	tiers, err := h.planService.ListTiers(c.Request.Context(), clinicID, planID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "tiers": tiers})
}

// DeleteTier removes a tier from a plan
func (h *CommissionHandler) DeleteTier(c *gin.Context) {
	clinicID, ok := parseUUIDParam(c, "clinicID")
	if !ok {
		return
	}
	planID, ok := parseUUIDParam(c, "planID")
	if !ok {
		return
	}
	tierID, ok := parseUUIDParam(c, "tierID")
	if !ok {
		return
	}

	if err := h.planService.DeleteTier(c.Request.Context(), clinicID, planID, tierID); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// CreateProductRate adds a product rate rule to a plan
func (h *CommissionHandler) CreateProductRate(c *gin.Context) {
	clinicID, ok := parseUUIDParam(c, "clinicID")
	if !ok {
		return
	}
	planID, ok := parseUUIDParam(c, "planID")
	if !ok {
		return
	}

	var req plan.ProductRateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule, err := h.planService.CreateProductRate(c.Request.Context(), clinicID, planID, req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "success", "product_rate": rule})
}

// ListProductRates lists a plan's product rate rules
func (h *CommissionHandler) ListProductRates(c *gin.Context) {
	clinicID, ok := parseUUIDParam(c, "clinicID")
	if !ok {
		return
	}
	planID, ok := parseUUIDParam(c, "planID")
	if !ok {
		return
	}

	rules, err := h.planService.ListProductRates(c.Request.Context(), clinicID, planID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "product_rates": rules})
}

// DeleteProductRate removes a product rate rule
func (h *CommissionHandler) DeleteProductRate(c *gin.Context) {
	clinicID, ok := parseUUIDParam(c, "clinicID")
	if !ok {
		return
	}
	planID, ok := parseUUIDParam(c, "planID")
	if !ok {
		return
	}
	rateID, ok := parseUUIDParam(c, "rateID")
	if !ok {
		return
	}

	if err := h.planService.DeleteProductRate(c.Request.Context(), clinicID, planID, rateID); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// CreatePromotion creates a promotion
func (h *CommissionHandler) CreatePromotion(c *gin.Context) {
	clinicID, ok := parseUUIDParam(c, "clinicID")
	if !ok {
		return
	}

	var req plan.PromotionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	promo, err := h.planService.CreatePromotion(c.Request.Context(), clinicID, req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "success", "promotion": promo})
}

// ListPromotions lists a clinic's promotions
func (h *CommissionHandler) ListPromotions(c *gin.Context) {
	clinicID, ok := parseUUIDParam(c, "clinicID")
	if !ok {
		return
	}

	promos, err := h.planService.ListPromotions(c.Request.Context(), clinicID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "promotions": promos})
}

// EndPromotion deactivates a promotion
func (h *CommissionHandler) EndPromotion(c *gin.Context) {
	clinicID, ok := parseUUIDParam(c, "clinicID")
	if !ok {
		return
	}
	promoID, ok := parseUUIDParam(c, "promotionID")
	if !ok {
		return
	}

	if err := h.planService.EndPromotion(c.Request.Context(), clinicID, promoID); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// AssignPlanRequest binds an affiliate to a plan
type AssignPlanRequest struct {
	AffiliateID   uuid.UUID  `json:"affiliate_id" binding:"required"`
	PlanID        uuid.UUID  `json:"plan_id" binding:"required"`
	EffectiveFrom *time.Time `json:"effective_from"`
}

// CreateAssignment binds an affiliate to a plan, closing any open
// assignment first
func (h *CommissionHandler) CreateAssignment(c *gin.Context) {
	clinicID, ok := parseUUIDParam(c, "clinicID")
	if !ok {
		return
	}

	var req AssignPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	effectiveFrom := time.Now()
	if req.EffectiveFrom != nil {
		effectiveFrom = *req.EffectiveFrom
	}

	assignment, err := h.affiliateService.AssignPlan(c.Request.Context(), clinicID, req.AffiliateID, req.PlanID, effectiveFrom)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "success", "assignment": assignment})
}

// EndAssignmentRequest closes an assignment
type EndAssignmentRequest struct {
	EffectiveTo *time.Time `json:"effective_to"`
}

// EndAssignment closes an open plan assignment
func (h *CommissionHandler) EndAssignment(c *gin.Context) {
	clinicID, ok := parseUUIDParam(c, "clinicID")
	if !ok {
		return
	}
	assignmentID, ok := parseUUIDParam(c, "assignmentID")
	if !ok {
		return
	}

	// An empty or absent body means "end now"
	var req EndAssignmentRequest
	_ = c.ShouldBindJSON(&req)

	effectiveTo := time.Now()
	if req.EffectiveTo != nil {
		effectiveTo = *req.EffectiveTo
	}

	if err := h.affiliateService.EndAssignment(c.Request.Context(), clinicID, assignmentID, effectiveTo); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// ApproveDueCommissions promotes held commissions whose hold period has
// elapsed. Admin trigger for the same sweep the scheduler runs.
func (h *CommissionHandler) ApproveDueCommissions(c *gin.Context) {
	approved, err := h.commissionService.ApprovePendingCommissions(c.Request.Context())
	if err != nil {
		log.Printf("Approval sweep failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "approval sweep failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "approved": approved})
}
