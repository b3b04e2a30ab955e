package services

import (
	"context"
	"errors"
	"fmt"
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

const excerptLength = 120

// Dispatcher turns lifecycle and engagement events into per-recipient
// notifications and pushes each one to its recipient's stream.
type Dispatcher struct {
	notifications store.NotificationStore
	comments      store.CommentStore
	bus           bus.Bus
	opts          Options
}

func NewDispatcher(notifications store.NotificationStore, comments store.CommentStore, b bus.Bus, opts Options) *Dispatcher {
	return &Dispatcher{notifications: notifications, comments: comments, bus: b, opts: opts.withDefaults()}
}

// OnEvent creates one notification per interested user. The reporter is
// always interested; for comments so is everyone who commented before. The
// actor never notifies themselves.
func (d *Dispatcher) OnEvent(ctx context.Context, ev Event) ([]models.Notification, error) {
	ctx = context.WithoutCancel(ctx)
	recipients, err := d.recipients(ctx, ev)
	if err != nil {
		return nil, err
	}
	title, message := render(ev)

	created := make([]models.Notification, 0, len(recipients))
	var errs []error
	for _, recipient := range recipients {
		n := models.Notification{
			ID:          d.opts.NewID(),
			RecipientID: recipient,
			IssueID:     ev.Issue.ID,
			Title:       title,
			Message:     message,
			CreatedAt:   d.opts.Now(),
		}
		if err := d.notifications.CreateNotification(ctx, &n); err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", recipient, err))
			continue
		}
		created = append(created, n)
		publish(ctx, d.bus, bus.TopicNotifications, bus.ActionInsert, n, map[string]string{
			bus.AttrRecipientID: recipient,
			bus.AttrIssueID:     ev.Issue.ID,
		})
	}
	if len(created) > 0 {
		logging.Debug(ctx, "notifications dispatched",
			slog.String("event", string(ev.Type)),
			slog.String("issue_id", ev.Issue.ID),
			slog.Int("count", len(created)))
	}
	if len(errs) > 0 {
		return created, storeErr(errors.Join(errs...), "create notification")
	}
	return created, nil
}

func (d *Dispatcher) recipients(ctx context.Context, ev Event) ([]string, error) {
	seen := map[string]bool{ev.ActorID: true}
	var out []string
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
	}

	add(ev.Issue.ReporterID)
	if ev.Type == EventCommentPosted {
		comments, err := d.comments.ListComments(ctx, ev.Issue.ID)
		if err != nil {
			return nil, storeErr(err, "list comments")
		}
		for _, c := range comments {
			if ev.Comment != nil && c.ID == ev.Comment.ID {
				continue
			}
			add(c.AuthorID)
		}
	}
	return out, nil
}

func render(ev Event) (title, message string) {
	switch ev.Type {
	case EventStatusChanged:
		return "Issue status updated", fmt.Sprintf("%q is now %s", ev.Issue.Title, statusLabel(ev.Issue.Status))
	case EventIssueAssigned:
		return "Issue assigned", fmt.Sprintf("%q was assigned to %s", ev.Issue.Title, ev.Issue.Department)
	case EventCommentPosted:
		text := ""
		if ev.Comment != nil {
			text = excerpt(ev.Comment.Text)
		}
		return "New comment", fmt.Sprintf("New comment on %q: %s", ev.Issue.Title, text)
	}
	return "Issue updated", fmt.Sprintf("%q was updated", ev.Issue.Title)
}

func statusLabel(s models.IssueStatus) string {
	return strings.ReplaceAll(string(s), "_", " ")
}

func excerpt(text string) string {
	if utf8.RuneCountInString(text) <= excerptLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:excerptLength]) + "…"
}

// List returns the caller's latest notifications and their unread count.
func (d *Dispatcher) List(ctx context.Context, limit int) ([]models.Notification, int64, error) {
	actor, err := identity.Require(ctx)
	if err != nil {
		return nil, 0, err
	}
	list, err := d.notifications.ListNotifications(ctx, actor.ID, limit)
	if err != nil {
		return nil, 0, storeErr(err, "list notifications")
	}
	unread, err := d.notifications.CountUnread(ctx, actor.ID)
	if err != nil {
		return nil, 0, storeErr(err, "count notifications")
	}
	return list, unread, nil
}

func (d *Dispatcher) UnreadCount(ctx context.Context) (int64, error) {
	actor, err := identity.Require(ctx)
	if err != nil {
		return 0, err
	}
	n, err := d.notifications.CountUnread(ctx, actor.ID)
	if err != nil {
		return 0, storeErr(err, "count notifications")
	}
	return n, nil
}

// MarkRead marks a notification read. Only its recipient may.
func (d *Dispatcher) MarkRead(ctx context.Context, id string) (*models.Notification, error) {
	actor, err := identity.Require(ctx)
	if err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)
	n, err := d.notifications.GetNotification(ctx, id)
	if err != nil {
		return nil, storeErr(err, "notification")
	}
	if n.RecipientID != actor.ID {
		return nil, apperr.New(apperr.KindForbidden, "notification belongs to another user")
	}
	if n.Read {
		return n, nil
	}
	if err := d.notifications.MarkNotificationRead(ctx, id); err != nil {
		return nil, storeErr(err, "mark notification read")
	}
	n.Read = true
	publish(ctx, d.bus, bus.TopicNotifications, bus.ActionUpdate, n, map[string]string{
		bus.AttrRecipientID: n.RecipientID,
		bus.AttrIssueID:     n.IssueID,
	})
	return n, nil
}

// Subscribe opens the caller's notification stream. The recipient filter is
// applied by the bus, so no other user's notifications reach the caller.
func (d *Dispatcher) Subscribe(ctx context.Context) (bus.Subscription, error) {
	actor, err := identity.Require(ctx)
	if err != nil {
		return nil, err
	}
	sub, err := d.bus.Subscribe(ctx, bus.TopicNotifications, bus.Match(bus.AttrRecipientID, actor.ID))
	if err != nil {
		return nil, apperr.Upstream(err, "subscribe notifications")
	}
	return sub, nil
}
