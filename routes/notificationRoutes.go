package routes

import (
	"civicpulse-be/controllers"
	"civicpulse-be/middlewares"

	"github.com/gin-gonic/gin"
)

// NotificationRoutes covers the inbox and the realtime streams.
func NotificationRoutes(api *gin.RouterGroup, deps Deps) {
	nc := controllers.NewNotificationController(deps.Core.Dispatcher)
	sc := controllers.NewStreamController(deps.Core.Lifecycle, deps.Core.Dispatcher, deps.Config.CORSOrigins)
	auth := middlewares.AuthMiddleware(deps.Config.JWTSecret)

	api.GET("/notifications", auth, nc.ListNotifications)
	api.POST("/notifications/:id/read", auth, nc.MarkRead)

	api.GET("/stream/notifications", auth, sc.StreamNotifications)
	api.GET("/stream/issues/:id", sc.StreamIssue)
	api.GET("/ws/notifications", auth, sc.NotificationSocket)
}
