package controllers

import (
	"net/http"
	"strconv"

	"civicpulse-be/services"

	"github.com/gin-gonic/gin"
)

type NotificationController struct {
	dispatcher *services.Dispatcher
}

func NewNotificationController(dispatcher *services.Dispatcher) *NotificationController {
	return &NotificationController{dispatcher: dispatcher}
}

// ListNotifications returns the caller's latest notifications
func (nc *NotificationController) ListNotifications(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	list, unread, err := nc.dispatcher.List(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list, "unread": unread})
}

func (nc *NotificationController) MarkRead(c *gin.Context) {
	n, err := nc.dispatcher.MarkRead(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}
