package controllers

import (
	"net/http"
	"strconv"

	"civicpulse-be/identity"
	"civicpulse-be/services"

	"github.com/gin-gonic/gin"
)

type UserController struct {
	lifecycle *services.LifecycleEngine
}

func NewUserController(lifecycle *services.LifecycleEngine) *UserController {
	return &UserController{lifecycle: lifecycle}
}

// GetMe returns the caller's identity and points
func (uc *UserController) GetMe(c *gin.Context) {
	ctx := c.Request.Context()
	profile, err := uc.lifecycle.Profile(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	actor, _ := identity.FromContext(ctx)
	c.JSON(http.StatusOK, gin.H{
		"id":     actor.ID,
		"role":   actor.Role,
		"points": profile.Points,
	})
}

// GetLeaderboard lists the top reporters by points
func (uc *UserController) GetLeaderboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	profiles, err := uc.lifecycle.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaders": profiles})
}
