package routes

import (
	"civicpulse-be/controllers"
	"civicpulse-be/middlewares"

	"github.com/gin-gonic/gin"
)

func UserRoutes(api *gin.RouterGroup, deps Deps) {
	uc := controllers.NewUserController(deps.Core.Lifecycle)

	api.GET("/me", middlewares.AuthMiddleware(deps.Config.JWTSecret), uc.GetMe)
	api.GET("/leaderboard", uc.GetLeaderboard)
}
