package services

import (
	"context"
	"errors"
	"log/slog"

	"civicpulse-be/apperr"
	"civicpulse-be/bus"
	"civicpulse-be/identity"
	"civicpulse-be/logging"
	"civicpulse-be/models"
	"civicpulse-be/store"
)

// VoteResult is the caller's vote state after a toggle.
type VoteResult struct {
	IssueID string `json:"issueId"`
	Active  bool   `json:"active"`
	Count   int64  `json:"votes"`
}

// VoteLedger keeps at most one active vote per (issue, user). The cached
// counter on the issue is derived from the ledger and never trusted over it.
type VoteLedger struct {
	votes  store.VoteStore
	issues store.IssueStore
	bus    bus.Bus
	opts   Options
}

func NewVoteLedger(votes store.VoteStore, issues store.IssueStore, b bus.Bus, opts Options) *VoteLedger {
	return &VoteLedger{votes: votes, issues: issues, bus: b, opts: opts.withDefaults()}
}

// ToggleVote adds the caller's vote if absent and removes it if present.
func (l *VoteLedger) ToggleVote(ctx context.Context, issueID string) (VoteResult, error) {
	actor, err := identity.Require(ctx)
	if err != nil {
		return VoteResult{}, err
	}
	// Once started, the toggle runs to completion.
	ctx = context.WithoutCancel(ctx)
	ctx = logging.WithAttrs(ctx, slog.String("issue_id", issueID), slog.String("user_id", actor.ID))

	if _, err := l.issues.GetIssue(ctx, issueID); err != nil {
		return VoteResult{}, storeErr(err, "issue")
	}

	active, changed, err := l.toggle(ctx, issueID, actor.ID)
	if errors.Is(err, apperr.ErrConflict) {
		// A concurrent request for the same pair got there first; report
		// whatever the ledger now holds.
		active, err = l.votes.HasVote(ctx, issueID, actor.ID)
		changed = false
		if err != nil {
			return VoteResult{}, storeErr(err, "vote")
		}
	} else if err != nil {
		return VoteResult{}, err
	}

	count, err := l.votes.CountVotes(ctx, issueID)
	if err != nil {
		return VoteResult{}, storeErr(err, "vote count")
	}
	l.refreshCounter(ctx, issueID, count)

	result := VoteResult{IssueID: issueID, Active: active, Count: count}
	if changed {
		action := bus.ActionInsert
		if !active {
			action = bus.ActionDelete
		}
		publish(ctx, l.bus, bus.TopicVotes, action, result, map[string]string{
			bus.AttrIssueID: issueID,
			bus.AttrUserID:  actor.ID,
		})
	}
	publish(ctx, l.bus, bus.TopicIssues, bus.ActionUpdate, result, map[string]string{
		bus.AttrIssueID: issueID,
	})
	return result, nil
}

func (l *VoteLedger) toggle(ctx context.Context, issueID, userID string) (active, changed bool, err error) {
	has, err := l.votes.HasVote(ctx, issueID, userID)
	if err != nil {
		return false, false, storeErr(err, "vote")
	}
	if has {
		removed, err := l.votes.DeleteVote(ctx, issueID, userID)
		if err != nil {
			return false, false, storeErr(err, "vote")
		}
		if !removed {
			return false, false, apperr.New(apperr.KindConflict, "vote already removed")
		}
		return false, true, nil
	}
	err = l.votes.InsertVote(ctx, &models.Vote{IssueID: issueID, UserID: userID, CreatedAt: l.opts.Now()})
	if errors.Is(err, store.ErrDuplicate) {
		return false, false, apperr.Wrap(err, apperr.KindConflict, "vote already recorded")
	}
	if err != nil {
		return false, false, storeErr(err, "vote")
	}
	return true, true, nil
}

// HasVoted reports whether the caller holds an active vote on the issue.
// Anonymous callers never have.
func (l *VoteLedger) HasVoted(ctx context.Context, issueID string) (bool, error) {
	actor, ok := identity.FromContext(ctx)
	if !ok {
		return false, nil
	}
	has, err := l.votes.HasVote(ctx, issueID, actor.ID)
	if err != nil {
		return false, storeErr(err, "vote")
	}
	return has, nil
}

// Reconcile replaces issue.VoteCount with the ledger count and repairs the
// stored counter when it has drifted.
func (l *VoteLedger) Reconcile(ctx context.Context, issue *models.Issue) error {
	count, err := l.votes.CountVotes(ctx, issue.ID)
	if err != nil {
		return storeErr(err, "vote count")
	}
	if count != issue.VoteCount {
		l.refreshCounter(context.WithoutCancel(ctx), issue.ID, count)
		issue.VoteCount = count
	}
	return nil
}

// ReconcilePage does what Reconcile does for a whole page of issues with one
// count query. Only drifted counters are written back.
func (l *VoteLedger) ReconcilePage(ctx context.Context, issues []models.Issue) error {
	if len(issues) == 0 {
		return nil
	}
	ids := make([]string, len(issues))
	for i := range issues {
		ids[i] = issues[i].ID
	}
	counts, err := l.votes.CountVotesFor(ctx, ids)
	if err != nil {
		return storeErr(err, "vote count")
	}
	for i := range issues {
		issue := &issues[i]
		if count := counts[issue.ID]; count != issue.VoteCount {
			l.refreshCounter(context.WithoutCancel(ctx), issue.ID, count)
			issue.VoteCount = count
		}
	}
	return nil
}

// VotedOn reports which of the issues the caller has voted on. Anonymous
// callers have voted on none.
func (l *VoteLedger) VotedOn(ctx context.Context, issueIDs []string) (map[string]bool, error) {
	actor, ok := identity.FromContext(ctx)
	if !ok || len(issueIDs) == 0 {
		return map[string]bool{}, nil
	}
	voted, err := l.votes.VotedIn(ctx, actor.ID, issueIDs)
	if err != nil {
		return nil, storeErr(err, "vote")
	}
	return voted, nil
}

func (l *VoteLedger) refreshCounter(ctx context.Context, issueID string, count int64) {
	if err := l.issues.SetIssueVoteCount(ctx, issueID, count); err != nil {
		logging.Warn(ctx, "vote counter refresh failed",
			slog.Int64("count", count),
			slog.Any("err", apperr.Loggable(err)))
	}
}
