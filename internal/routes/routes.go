package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clinova/backend/internal/handlers"
	"github.com/clinova/backend/internal/middleware"
)

// RegisterCommissionRoutes registers plan, tier, product-rate, promotion
// and assignment management routes under a clinic scope
func RegisterCommissionRoutes(router *gin.Engine, commissionHandler *handlers.CommissionHandler, rateLimiter *middleware.RateLimiter) {
	commissionGroup := router.Group("/api/v1/clinics/:clinicID/commission")
	commissionGroup.Use(rateLimiter.IPRateLimiterMiddleware())
	{
		// Plans
		commissionGroup.POST("/plans", commissionHandler.CreatePlan)
		commissionGroup.GET("/plans", commissionHandler.ListPlans)
		commissionGroup.GET("/plans/:planID", commissionHandler.GetPlan)
		commissionGroup.PATCH("/plans/:planID", commissionHandler.UpdatePlan)
		commissionGroup.DELETE("/plans/:planID", commissionHandler.DeactivatePlan)

		// Tiers
		commissionGroup.POST("/plans/:planID/tiers", commissionHandler.CreateTier)
		commissionGroup.GET("/plans/:planID/tiers", commissionHandler.ListTiers)
		commissionGroup.DELETE("/plans/:planID/tiers/:tierID", commissionHandler.DeleteTier)

		// Product rates
		commissionGroup.POST("/plans/:planID/product-rates", commissionHandler.CreateProductRate)
		commissionGroup.GET("/plans/:planID/product-rates", commissionHandler.ListProductRates)
		commissionGroup.DELETE("/plans/:planID/product-rates/:rateID", commissionHandler.DeleteProductRate)

		// Promotions
		commissionGroup.POST("/promotions", commissionHandler.CreatePromotion)
		commissionGroup.GET("/promotions", commissionHandler.ListPromotions)
		commissionGroup.POST("/promotions/:promotionID/end", commissionHandler.EndPromotion)

		// Plan assignments
		commissionGroup.POST("/assignments", commissionHandler.CreateAssignment)
		commissionGroup.POST("/assignments/:assignmentID/end", commissionHandler.EndAssignment)
	}
}

// RegisterAffiliateRoutes registers affiliate management and stats routes
func RegisterAffiliateRoutes(router *gin.Engine, affiliateHandler *handlers.AffiliateHandler, rateLimiter *middleware.RateLimiter) {
	affiliateGroup := router.Group("/api/v1/clinics/:clinicID/affiliates")
	affiliateGroup.Use(rateLimiter.IPRateLimiterMiddleware())
	{
		affiliateGroup.POST("", affiliateHandler.Register)
		affiliateGroup.GET("/:affiliateID", affiliateHandler.Get)
		affiliateGroup.PATCH("/:affiliateID/status", affiliateHandler.SetStatus)
		affiliateGroup.GET("/:affiliateID/stats", affiliateHandler.GetStats)

		// First-touch attribution capture
		affiliateGroup.POST("/attributions", affiliateHandler.CaptureAttribution)
	}
}

// RegisterAdminRoutes registers operational admin endpoints
func RegisterAdminRoutes(router *gin.Engine, commissionHandler *handlers.CommissionHandler) {
	adminGroup := router.Group("/api/v1/admin")
	{
		adminGroup.POST("/commissions/approve-due", commissionHandler.ApproveDueCommissions)
	}
}

// RegisterHealthRoutes registers liveness endpoints
func RegisterHealthRoutes(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
