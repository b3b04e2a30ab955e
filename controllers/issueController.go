package controllers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"civicpulse-be/apperr"
	"civicpulse-be/identity"
	"civicpulse-be/logging"
	"civicpulse-be/models"
	"civicpulse-be/services"
	"civicpulse-be/store"
	"civicpulse-be/triage"

	"github.com/gin-gonic/gin"
)

// ImageVerifier judges whether a photo shows an issue.
type ImageVerifier interface {
	Verify(ctx context.Context, issue models.Issue, imageURL string) (triage.Analysis, error)
}

type IssueController struct {
	lifecycle *services.LifecycleEngine
	ledger    *services.VoteLedger
	verifier  ImageVerifier
}

// NewIssueController wires the issue handlers. verifier may be nil.
func NewIssueController(lifecycle *services.LifecycleEngine, ledger *services.VoteLedger, verifier ImageVerifier) *IssueController {
	return &IssueController{lifecycle: lifecycle, ledger: ledger, verifier: verifier}
}

// CreateIssue handles the creation of a new issue
func (ic *IssueController) CreateIssue(c *gin.Context) {
	var input services.ReportInput
	if !bindJSON(c, &input) {
		return
	}
	issue, err := ic.lifecycle.ReportIssue(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, issue)
}

// GetAllIssues handles retrieving issues with filtering, pagination, and vote counts
func (ic *IssueController) GetAllIssues(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	in := services.ListInput{
		ReporterID: c.Query("reporter"),
		Sort:       store.SortOrder(c.DefaultQuery("sort", string(store.SortNewest))),
		Page:       page,
		Limit:      limit,
	}
	if category := c.Query("category"); category != "" && category != "all" {
		in.Category = models.IssueCategory(category)
	}
	if status := c.Query("status"); status != "" && status != "all" {
		in.Status = models.IssueStatus(status)
	}
	// "mine" is shorthand for the caller's own reports
	if in.ReporterID == "mine" {
		actor, err := identity.Require(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		in.ReporterID = actor.ID
	}

	result, err := ic.lifecycle.ListIssues(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetIssue returns a single issue with a fresh vote count
func (ic *IssueController) GetIssue(c *gin.Context) {
	issue, err := ic.lifecycle.GetIssue(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, issue)
}

// ToggleVote adds or removes the caller's upvote
func (ic *IssueController) ToggleVote(c *gin.Context) {
	result, err := ic.ledger.ToggleVote(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// UpdateStatus moves an issue along its lifecycle (admin)
func (ic *IssueController) UpdateStatus(c *gin.Context) {
	var input struct {
		Status models.IssueStatus `json:"status" binding:"required"`
	}
	if !bindJSON(c, &input) {
		return
	}
	issue, err := ic.lifecycle.TransitionStatus(c.Request.Context(), c.Param("id"), input.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, issue)
}

// AssignDepartment routes an issue to a department (admin)
func (ic *IssueController) AssignDepartment(c *gin.Context) {
	var input struct {
		Department string `json:"department" binding:"required"`
	}
	if !bindJSON(c, &input) {
		return
	}
	issue, err := ic.lifecycle.AssignDepartment(c.Request.Context(), c.Param("id"), input.Department)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, issue)
}

// VerifyImage asks the model whether a photo shows the issue. Verification
// is advisory: when it is unavailable the response says it was skipped.
func (ic *IssueController) VerifyImage(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := identity.Require(ctx); err != nil {
		respondError(c, err)
		return
	}
	var input struct {
		Image string `json:"image"`
	}
	if c.Request.ContentLength != 0 && !bindJSON(c, &input) {
		return
	}
	view, err := ic.lifecycle.GetIssue(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	image := strings.TrimSpace(input.Image)
	if image == "" && view.PhotoURL != nil {
		image = *view.PhotoURL
	}
	if image == "" {
		respondError(c, apperr.New(apperr.KindValidationFailed, "no image to verify"))
		return
	}
	if ic.verifier == nil {
		c.JSON(http.StatusOK, gin.H{"skipped": true})
		return
	}
	analysis, err := ic.verifier.Verify(ctx, view.Issue, image)
	if err != nil {
		logging.Warn(ctx, "image verification failed",
			slog.String("issue_id", view.ID),
			slog.Any("err", apperr.Loggable(err)))
		c.JSON(http.StatusOK, gin.H{"skipped": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"skipped": false, "analysis": analysis})
}

// GetStats counts issues per status (admin)
func (ic *IssueController) GetStats(c *gin.Context) {
	stats, err := ic.lifecycle.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	var total int64
	for _, n := range stats {
		total += n
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "byStatus": stats})
}
