package services

import (
	"context"

	"civicpulse-be/models"
)

type EventType string

const (
	EventStatusChanged EventType = "issue.status_changed"
	EventCommentPosted EventType = "issue.comment_posted"
	EventIssueAssigned EventType = "issue.assigned"
)

// Event is a qualifying lifecycle or engagement change. Issue is the state
// after the change.
type Event struct {
	Type       EventType
	ActorID    string
	Issue      models.Issue
	FromStatus models.IssueStatus
	Comment    *models.Comment
}

// EventSink observes events; the Dispatcher is the production sink.
type EventSink interface {
	OnEvent(ctx context.Context, event Event) ([]models.Notification, error)
}
