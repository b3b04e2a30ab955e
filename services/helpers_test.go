package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"civicpulse-be/bus"
	"civicpulse-be/identity"
	"civicpulse-be/models"
	"civicpulse-be/store"

	"github.com/stretchr/testify/require"
)

type fixture struct {
	store store.Store
	bus   *bus.MemoryBus
	core  *Core
}

// testOptions yields strictly increasing timestamps and readable IDs.
func testOptions() Options {
	var tick, seq atomic.Int64
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return Options{
		Now:   func() time.Time { return base.Add(time.Duration(tick.Add(1)) * time.Second) },
		NewID: func() string { return fmt.Sprintf("id-%03d", seq.Add(1)) },
	}
}

func setupCore(t *testing.T) *fixture {
	t.Helper()
	return setupCoreWith(t, nil, testOptions())
}

// setupCoreWith lets a test wrap the store to inject failures.
func setupCoreWith(t *testing.T, wrap func(store.Store) store.Store, opts Options) *fixture {
	t.Helper()
	ctx := context.Background()
	sqlStore, err := store.OpenSQL(ctx, "sqlite", filepath.Join(t.TempDir(), "core.db"))
	require.NoError(t, err)
	require.NoError(t, sqlStore.Migrate(ctx))
	t.Cleanup(func() { _ = sqlStore.Close(ctx) })

	var s store.Store = sqlStore
	if wrap != nil {
		s = wrap(s)
	}
	b := bus.NewMemoryBus()
	t.Cleanup(func() { _ = b.Close() })
	return &fixture{store: s, bus: b, core: NewCore(s, b, opts)}
}

func citizen(id string) context.Context {
	return identity.WithActor(context.Background(), identity.Actor{ID: id, Role: identity.RoleCitizen})
}

func admin(id string) context.Context {
	return identity.WithActor(context.Background(), identity.Actor{ID: id, Role: identity.RoleAdmin})
}

func (f *fixture) report(t *testing.T, reporter string) *models.Issue {
	t.Helper()
	issue, err := f.core.Lifecycle.ReportIssue(citizen(reporter), ReportInput{
		Title:       "Streetlight out on Elm Ave",
		Description: "The light at the corner of Elm and 3rd has been dark for a week",
		Category:    models.Lighting,
	})
	require.NoError(t, err)
	return issue
}

func (f *fixture) notificationsFor(t *testing.T, user string) []models.Notification {
	t.Helper()
	list, err := f.store.ListNotifications(context.Background(), user, 100)
	require.NoError(t, err)
	return list
}

func receive(t *testing.T, sub bus.Subscription) bus.Message {
	t.Helper()
	select {
	case msg, ok := <-sub.C():
		require.True(t, ok, "subscription closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return bus.Message{}
	}
}

// failingProfiles breaks point awards.
type failingProfiles struct{ store.Store }

func (failingProfiles) AwardPoints(context.Context, string, int64) error {
	return fmt.Errorf("profiles: connection refused")
}

// failingCounter breaks writes to the cached vote counter.
type failingCounter struct{ store.Store }

func (failingCounter) SetIssueVoteCount(context.Context, string, int64) error {
	return fmt.Errorf("issues: connection refused")
}

// failingNotifications breaks notification writes.
type failingNotifications struct{ store.Store }

func (failingNotifications) CreateNotification(context.Context, *models.Notification) error {
	return fmt.Errorf("notifications: connection refused")
}

// failingRecipient breaks notification writes addressed to one user.
type failingRecipient struct {
	store.Store
	recipient string
}

func (s failingRecipient) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.RecipientID == s.recipient {
		return fmt.Errorf("notifications: connection reset")
	}
	return s.Store.CreateNotification(ctx, n)
}
