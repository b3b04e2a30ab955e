package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"civicpulse-be/apperr"
	"civicpulse-be/bus"
	"civicpulse-be/identity"
	"civicpulse-be/logging"
	"civicpulse-be/models"
	"civicpulse-be/store"
)

// ReportInput is a citizen's new issue.
type ReportInput struct {
	Title       string               `json:"title" validate:"required,max=200"`
	Description string               `json:"description" validate:"required,max=1000"`
	Category    models.IssueCategory `json:"category" validate:"required"`
	Address     *string              `json:"address,omitempty" validate:"omitempty,max=300"`
	Latitude    *float64             `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude   *float64             `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
	PhotoURL    *string              `json:"photoUrl,omitempty" validate:"omitempty,url"`
	Department  string               `json:"department,omitempty" validate:"max=100"`
}

// IssueView is an issue as seen by the caller.
type IssueView struct {
	models.Issue
	HasVoted bool `json:"hasVoted"`
}

// IssuePage is one page of a listing.
type IssuePage struct {
	Issues []IssueView `json:"issues"`
	Total  int64       `json:"total"`
	Page   int         `json:"page"`
	Limit  int         `json:"limit"`
}

// ListInput filters a listing. Page is 1-based.
type ListInput struct {
	Category   models.IssueCategory
	Status     models.IssueStatus
	ReporterID string
	Sort       store.SortOrder
	Page       int
	Limit      int
}

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// LifecycleEngine owns issue creation and the status state machine.
type LifecycleEngine struct {
	issues   store.IssueStore
	profiles store.ProfileStore
	ledger   *VoteLedger
	events   EventSink
	bus      bus.Bus
	opts     Options
}

func NewLifecycleEngine(issues store.IssueStore, profiles store.ProfileStore, ledger *VoteLedger, events EventSink, b bus.Bus, opts Options) *LifecycleEngine {
	return &LifecycleEngine{
		issues:   issues,
		profiles: profiles,
		ledger:   ledger,
		events:   events,
		bus:      b,
		opts:     opts.withDefaults(),
	}
}

// ReportIssue creates a pending issue owned by the caller and credits the
// reporter with points.
func (e *LifecycleEngine) ReportIssue(ctx context.Context, in ReportInput) (*models.Issue, error) {
	actor, err := identity.Require(ctx)
	if err != nil {
		return nil, err
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Department = strings.TrimSpace(in.Department)
	if err := validate.Struct(in); err != nil {
		return nil, validationErr(err)
	}
	if !in.Category.Valid() {
		return nil, apperr.Newf(apperr.KindValidationFailed, "unknown category %q", in.Category)
	}

	now := e.opts.Now()
	issue := &models.Issue{
		ID:          e.opts.NewID(),
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		Status:      models.Pending,
		Address:     in.Address,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		PhotoURL:    in.PhotoURL,
		ReporterID:  actor.ID,
		Department:  in.Department,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if issue.Department == "" {
		issue.Department = e.classify(ctx, *issue)
	}
	ctx = context.WithoutCancel(ctx)
	ctx = logging.WithAttrs(ctx, slog.String("issue_id", issue.ID), slog.String("user_id", actor.ID))

	if err := e.issues.CreateIssue(ctx, issue); err != nil {
		return nil, storeErr(err, "create issue")
	}
	if err := e.profiles.AwardPoints(ctx, actor.ID, models.PointsPerReport); err != nil {
		logging.Warn(ctx, "award points failed", slog.Any("err", apperr.Loggable(err)))
	}
	publish(ctx, e.bus, bus.TopicIssues, bus.ActionInsert, issue, map[string]string{
		bus.AttrIssueID: issue.ID,
		bus.AttrUserID:  actor.ID,
	})
	logging.Info(ctx, "issue reported", slog.String("department", issue.Department))
	return issue, nil
}

func (e *LifecycleEngine) classify(ctx context.Context, issue models.Issue) string {
	if e.opts.Classifier == nil {
		return models.DefaultDepartment
	}
	ctx, cancel := context.WithTimeout(ctx, e.opts.ClassifyTimeout)
	defer cancel()
	department, err := e.opts.Classifier.Classify(ctx, issue)
	department = strings.TrimSpace(department)
	if err != nil || department == "" {
		if err != nil {
			logging.Warn(ctx, "department classification failed", slog.Any("err", apperr.Loggable(err)))
		}
		return models.DefaultDepartment
	}
	return department
}

// TransitionStatus moves an issue along the lifecycle. Only administrators
// may do so, and only along a permitted edge.
func (e *LifecycleEngine) TransitionStatus(ctx context.Context, issueID string, to models.IssueStatus) (*models.Issue, error) {
	actor, err := identity.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	if !to.Valid() {
		return nil, apperr.Newf(apperr.KindValidationFailed, "unknown status %q", to)
	}
	ctx = context.WithoutCancel(ctx)
	ctx = logging.WithAttrs(ctx, slog.String("issue_id", issueID), slog.String("user_id", actor.ID))

	issue, err := e.issues.GetIssue(ctx, issueID)
	if err != nil {
		return nil, storeErr(err, "issue")
	}
	from := issue.Status
	if !from.CanTransitionTo(to) {
		return nil, apperr.Newf(apperr.KindInvalidTransition, "cannot move issue from %s to %s", from, to)
	}

	now := e.opts.Now()
	var resolvedAt *time.Time
	if to == models.Resolved {
		resolvedAt = &now
	}
	ok, err := e.issues.UpdateIssueStatus(ctx, issueID, from, to, resolvedAt)
	if err != nil {
		return nil, storeErr(err, "update status")
	}
	if !ok {
		return nil, apperr.Newf(apperr.KindConflict, "issue is no longer %s", from)
	}
	issue.Status = to
	issue.UpdatedAt = now
	if resolvedAt != nil {
		issue.ResolvedAt = resolvedAt
	}

	publish(ctx, e.bus, bus.TopicIssues, bus.ActionUpdate, issue, map[string]string{
		bus.AttrIssueID: issue.ID,
	})
	e.emit(ctx, Event{Type: EventStatusChanged, ActorID: actor.ID, Issue: *issue, FromStatus: from})
	logging.Info(ctx, "issue status changed", slog.String("from", string(from)), slog.String("to", string(to)))
	return issue, nil
}

// AssignDepartment routes an issue to a department. Administrators only.
func (e *LifecycleEngine) AssignDepartment(ctx context.Context, issueID, department string) (*models.Issue, error) {
	actor, err := identity.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	department = strings.TrimSpace(department)
	if department == "" || len(department) > 100 {
		return nil, apperr.New(apperr.KindValidationFailed, "department must be 1-100 characters")
	}
	ctx = context.WithoutCancel(ctx)

	issue, err := e.issues.GetIssue(ctx, issueID)
	if err != nil {
		return nil, storeErr(err, "issue")
	}
	if err := e.issues.SetIssueDepartment(ctx, issueID, department); err != nil {
		return nil, storeErr(err, "assign department")
	}
	issue.Department = department
	issue.UpdatedAt = e.opts.Now()

	publish(ctx, e.bus, bus.TopicIssues, bus.ActionUpdate, issue, map[string]string{
		bus.AttrIssueID: issue.ID,
	})
	e.emit(ctx, Event{Type: EventIssueAssigned, ActorID: actor.ID, Issue: *issue, FromStatus: issue.Status})
	return issue, nil
}

// emit hands the event to the sink. Notification failures never fail the
// mutation that caused them.
func (e *LifecycleEngine) emit(ctx context.Context, ev Event) {
	if e.events == nil {
		return
	}
	if _, err := e.events.OnEvent(ctx, ev); err != nil {
		logging.Error(ctx, "notification dispatch failed",
			slog.String("event", string(ev.Type)),
			slog.Any("err", apperr.Loggable(err)))
	}
}

// GetIssue returns one issue with its vote count re-derived from the ledger.
func (e *LifecycleEngine) GetIssue(ctx context.Context, issueID string) (*IssueView, error) {
	issue, err := e.issues.GetIssue(ctx, issueID)
	if err != nil {
		return nil, storeErr(err, "issue")
	}
	return e.view(ctx, issue)
}

func (e *LifecycleEngine) view(ctx context.Context, issue *models.Issue) (*IssueView, error) {
	if err := e.ledger.Reconcile(ctx, issue); err != nil {
		return nil, err
	}
	voted, err := e.ledger.HasVoted(ctx, issue.ID)
	if err != nil {
		return nil, err
	}
	return &IssueView{Issue: *issue, HasVoted: voted}, nil
}

func (e *LifecycleEngine) ListIssues(ctx context.Context, in ListInput) (*IssuePage, error) {
	if in.Category != "" && !in.Category.Valid() {
		return nil, apperr.Newf(apperr.KindValidationFailed, "unknown category %q", in.Category)
	}
	if in.Status != "" && !in.Status.Valid() {
		return nil, apperr.Newf(apperr.KindValidationFailed, "unknown status %q", in.Status)
	}
	switch in.Sort {
	case "", store.SortNewest, store.SortOldest, store.SortVotes:
	default:
		return nil, apperr.Newf(apperr.KindValidationFailed, "unknown sort %q", in.Sort)
	}
	if in.Page < 1 {
		in.Page = 1
	}
	if in.Limit < 1 || in.Limit > maxPageSize {
		in.Limit = defaultPageSize
	}

	issues, total, err := e.issues.ListIssues(ctx, store.IssueFilter{
		Category:   in.Category,
		Status:     in.Status,
		ReporterID: in.ReporterID,
		Sort:       in.Sort,
		Offset:     (in.Page - 1) * in.Limit,
		Limit:      in.Limit,
	})
	if err != nil {
		return nil, storeErr(err, "list issues")
	}
	if err := e.ledger.ReconcilePage(ctx, issues); err != nil {
		return nil, err
	}
	ids := make([]string, len(issues))
	for i := range issues {
		ids[i] = issues[i].ID
	}
	voted, err := e.ledger.VotedOn(ctx, ids)
	if err != nil {
		return nil, err
	}
	page := &IssuePage{Issues: make([]IssueView, 0, len(issues)), Total: total, Page: in.Page, Limit: in.Limit}
	for _, issue := range issues {
		page.Issues = append(page.Issues, IssueView{Issue: issue, HasVoted: voted[issue.ID]})
	}
	return page, nil
}

// Stats counts issues per status, including statuses with no issues.
func (e *LifecycleEngine) Stats(ctx context.Context) (map[models.IssueStatus]int64, error) {
	if _, err := identity.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	counts, err := e.issues.CountIssuesByStatus(ctx)
	if err != nil {
		return nil, storeErr(err, "issue stats")
	}
	out := make(map[models.IssueStatus]int64, len(models.AllStatuses))
	for _, s := range models.AllStatuses {
		out[s] = counts[s]
	}
	return out, nil
}

// Leaderboard lists the top profiles by points.
func (e *LifecycleEngine) Leaderboard(ctx context.Context, limit int) ([]models.Profile, error) {
	profiles, err := e.profiles.Leaderboard(ctx, limit)
	if err != nil {
		return nil, storeErr(err, "leaderboard")
	}
	return profiles, nil
}

// Profile returns the caller's points. Users who never reported have zero.
func (e *LifecycleEngine) Profile(ctx context.Context) (*models.Profile, error) {
	actor, err := identity.Require(ctx)
	if err != nil {
		return nil, err
	}
	profile, err := e.profiles.GetProfile(ctx, actor.ID)
	if errors.Is(err, store.ErrNotFound) {
		return &models.Profile{ID: actor.ID}, nil
	}
	if err != nil {
		return nil, storeErr(err, "profile")
	}
	return profile, nil
}
