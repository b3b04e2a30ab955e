package routes

import (
	"civicpulse-be/controllers"
	"civicpulse-be/middlewares"

	"github.com/gin-gonic/gin"
)

func CommentRoutes(api *gin.RouterGroup, deps Deps) {
	cc := controllers.NewCommentController(deps.Core.Comments)
	auth := middlewares.AuthMiddleware(deps.Config.JWTSecret)

	api.GET("/issues/:id/comments", cc.ListComments)
	api.POST("/issues/:id/comments", auth, cc.PostComment)
	api.PATCH("/comments/:id", auth, cc.EditComment)
	api.DELETE("/comments/:id", auth, cc.DeleteComment)
}
