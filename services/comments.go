package services

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"civicpulse-be/apperr"
	"civicpulse-be/bus"
	"civicpulse-be/identity"
	"civicpulse-be/logging"
	"civicpulse-be/models"
	"civicpulse-be/store"
)

const maxCommentLength = 1000

// CommentService handles citizen updates on issues.
type CommentService struct {
	comments store.CommentStore
	issues   store.IssueStore
	events   EventSink
	bus      bus.Bus
	opts     Options
}

func NewCommentService(comments store.CommentStore, issues store.IssueStore, events EventSink, b bus.Bus, opts Options) *CommentService {
	return &CommentService{comments: comments, issues: issues, events: events, bus: b, opts: opts.withDefaults()}
}

func commentText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if n := utf8.RuneCountInString(text); n == 0 || n > maxCommentLength {
		return "", apperr.Newf(apperr.KindValidationFailed, "comment must be 1-%d characters", maxCommentLength)
	}
	return text, nil
}

// PostComment records a comment stamped with the issue's current status.
func (s *CommentService) PostComment(ctx context.Context, issueID, text string) (*models.Comment, error) {
	actor, err := identity.Require(ctx)
	if err != nil {
		return nil, err
	}
	text, err = commentText(text)
	if err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)
	ctx = logging.WithAttrs(ctx, slog.String("issue_id", issueID), slog.String("user_id", actor.ID))

	issue, err := s.issues.GetIssue(ctx, issueID)
	if err != nil {
		return nil, storeErr(err, "issue")
	}
	comment := &models.Comment{
		ID:             s.opts.NewID(),
		IssueID:        issueID,
		AuthorID:       actor.ID,
		Text:           text,
		StatusSnapshot: issue.Status,
		CreatedAt:      s.opts.Now(),
	}
	if err := s.comments.CreateComment(ctx, comment); err != nil {
		return nil, storeErr(err, "create comment")
	}

	publish(ctx, s.bus, bus.TopicComments, bus.ActionInsert, comment, map[string]string{
		bus.AttrIssueID: issueID,
		bus.AttrUserID:  actor.ID,
	})
	if s.events != nil {
		ev := Event{Type: EventCommentPosted, ActorID: actor.ID, Issue: *issue, FromStatus: issue.Status, Comment: comment}
		if _, err := s.events.OnEvent(ctx, ev); err != nil {
			logging.Error(ctx, "notification dispatch failed",
				slog.String("event", string(ev.Type)),
				slog.Any("err", apperr.Loggable(err)))
		}
	}
	return comment, nil
}

// ownComment loads a comment and checks the caller wrote it.
func (s *CommentService) ownComment(ctx context.Context, id string) (*models.Comment, error) {
	actor, err := identity.Require(ctx)
	if err != nil {
		return nil, err
	}
	comment, err := s.comments.GetComment(ctx, id)
	if err != nil {
		return nil, storeErr(err, "comment")
	}
	if comment.AuthorID != actor.ID {
		return nil, apperr.New(apperr.KindForbidden, "only the author may change a comment")
	}
	return comment, nil
}

func (s *CommentService) EditComment(ctx context.Context, id, text string) (*models.Comment, error) {
	comment, err := s.ownComment(ctx, id)
	if err != nil {
		return nil, err
	}
	text, err = commentText(text)
	if err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)
	editedAt := s.opts.Now()
	if err := s.comments.UpdateCommentText(ctx, id, text, editedAt); err != nil {
		return nil, storeErr(err, "edit comment")
	}
	comment.Text = text
	comment.EditedAt = &editedAt

	publish(ctx, s.bus, bus.TopicComments, bus.ActionUpdate, comment, map[string]string{
		bus.AttrIssueID: comment.IssueID,
		bus.AttrUserID:  comment.AuthorID,
	})
	return comment, nil
}

func (s *CommentService) DeleteComment(ctx context.Context, id string) error {
	comment, err := s.ownComment(ctx, id)
	if err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)
	if err := s.comments.DeleteComment(ctx, id); err != nil {
		return storeErr(err, "delete comment")
	}
	publish(ctx, s.bus, bus.TopicComments, bus.ActionDelete, comment, map[string]string{
		bus.AttrIssueID: comment.IssueID,
		bus.AttrUserID:  comment.AuthorID,
	})
	return nil
}

// ListComments returns an issue's comments, newest first.
func (s *CommentService) ListComments(ctx context.Context, issueID string) ([]models.Comment, error) {
	if _, err := s.issues.GetIssue(ctx, issueID); err != nil {
		return nil, storeErr(err, "issue")
	}
	comments, err := s.comments.ListComments(ctx, issueID)
	if err != nil {
		return nil, storeErr(err, "list comments")
	}
	return comments, nil
}
