package routes

import (
	"civicpulse-be/controllers"
	"civicpulse-be/middlewares"

	"github.com/gin-gonic/gin"
)

// IssueRoutes sets up the issue routes
func IssueRoutes(api *gin.RouterGroup, deps Deps) {
	ic := controllers.NewIssueController(deps.Core.Lifecycle, deps.Core.Ledger, deps.Verifier)
	auth := middlewares.AuthMiddleware(deps.Config.JWTSecret)
	optional := middlewares.OptionalAuth(deps.Config.JWTSecret)
	limiter := middlewares.IssueRateLimiter(deps.Redis, deps.Config.RateLimitPrefix,
		deps.Config.IssueRateLimit, deps.Config.RateLimitWindow)

	issue := api.Group("/issues")
	{
		issue.GET("", optional, ic.GetAllIssues)
		issue.POST("", auth, limiter, ic.CreateIssue)
		issue.GET("/:id", optional, ic.GetIssue)
		issue.POST("/:id/vote", auth, ic.ToggleVote)
		issue.PATCH("/:id/status", auth, ic.UpdateStatus)
		issue.PATCH("/:id/department", auth, ic.AssignDepartment)
		issue.POST("/:id/verify-image", auth, ic.VerifyImage)
	}
	api.GET("/admin/stats", auth, ic.GetStats)
}
