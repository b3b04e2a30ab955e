// Package store persists issues, votes, comments, notifications and profiles.
// Backends: MongoDB (primary) and SQL through gorm (postgres, sqlite).
package store

import (
	"context"
	"errors"
	"time"

	"civicpulse-be/models"
)

var (
	// ErrNotFound is returned by point reads and writes on a missing row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a uniqueness constraint rejects an insert.
	ErrDuplicate = errors.New("duplicate record")
)

// SortOrder for issue listings.
type SortOrder string

const (
	SortNewest SortOrder = "newest"
	SortOldest SortOrder = "oldest"
	SortVotes  SortOrder = "votes"
)

// IssueFilter narrows ListIssues. Zero values mean "any".
type IssueFilter struct {
	Category   models.IssueCategory
	Status     models.IssueStatus
	ReporterID string
	Sort       SortOrder
	Offset     int
	Limit      int
}

type IssueStore interface {
	CreateIssue(ctx context.Context, issue *models.Issue) error
	GetIssue(ctx context.Context, id string) (*models.Issue, error)
	ListIssues(ctx context.Context, filter IssueFilter) ([]models.Issue, int64, error)
	// UpdateIssueStatus moves the issue from one status to another only if it is
	// currently in from. It reports false when the issue was not in from.
	UpdateIssueStatus(ctx context.Context, id string, from, to models.IssueStatus, resolvedAt *time.Time) (bool, error)
	SetIssueDepartment(ctx context.Context, id, department string) error
	SetIssueVoteCount(ctx context.Context, id string, count int64) error
	CountIssuesByStatus(ctx context.Context) (map[models.IssueStatus]int64, error)
}

type VoteStore interface {
	HasVote(ctx context.Context, issueID, userID string) (bool, error)
	InsertVote(ctx context.Context, vote *models.Vote) error
	// DeleteVote reports whether a row was removed.
	DeleteVote(ctx context.Context, issueID, userID string) (bool, error)
	CountVotes(ctx context.Context, issueID string) (int64, error)
	// CountVotesFor counts votes for a page of issues in one query. Every
	// requested id is present in the result.
	CountVotesFor(ctx context.Context, issueIDs []string) (map[string]int64, error)
	// VotedIn returns the subset of issueIDs the user has voted on.
	VotedIn(ctx context.Context, userID string, issueIDs []string) (map[string]bool, error)
}

type CommentStore interface {
	CreateComment(ctx context.Context, comment *models.Comment) error
	GetComment(ctx context.Context, id string) (*models.Comment, error)
	UpdateCommentText(ctx context.Context, id, text string, editedAt time.Time) error
	DeleteComment(ctx context.Context, id string) error
	ListComments(ctx context.Context, issueID string) ([]models.Comment, error)
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	GetNotification(ctx context.Context, id string) (*models.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	ListNotifications(ctx context.Context, recipientID string, limit int) ([]models.Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int64, error)
}

type ProfileStore interface {
	AwardPoints(ctx context.Context, userID string, points int64) error
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	Leaderboard(ctx context.Context, limit int) ([]models.Profile, error)
}

// Store is the full persistence surface consumed by the services.
type Store interface {
	IssueStore
	VoteStore
	CommentStore
	NotificationStore
	ProfileStore
	// Migrate creates tables or indexes, including the (issue, user) vote key.
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

func normalizeLimit(limit, fallback, max int) int {
	if limit < 1 || limit > max {
		return fallback
	}
	return limit
}
