package controllers

import (
	"net/http"

	"civicpulse-be/services"

	"github.com/gin-gonic/gin"
)

type CommentController struct {
	comments *services.CommentService
}

func NewCommentController(comments *services.CommentService) *CommentController {
	return &CommentController{comments: comments}
}

type commentInput struct {
	Text string `json:"text"`
}

func (cc *CommentController) ListComments(c *gin.Context) {
	comments, err := cc.comments.ListComments(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

func (cc *CommentController) PostComment(c *gin.Context) {
	var input commentInput
	if !bindJSON(c, &input) {
		return
	}
	comment, err := cc.comments.PostComment(c.Request.Context(), c.Param("id"), input.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (cc *CommentController) EditComment(c *gin.Context) {
	var input commentInput
	if !bindJSON(c, &input) {
		return
	}
	comment, err := cc.comments.EditComment(c.Request.Context(), c.Param("id"), input.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, comment)
}

func (cc *CommentController) DeleteComment(c *gin.Context) {
	if err := cc.comments.DeleteComment(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
