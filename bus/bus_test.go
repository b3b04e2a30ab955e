package bus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisBus(t *testing.T) *RedisBus {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisBus(client, "civicpulse")
}

func buses(t *testing.T) map[string]Bus {
	return map[string]Bus{
		"memory": NewMemoryBus(),
		"redis":  setupRedisBus(t),
	}
}

func receive(t *testing.T, sub Subscription) Message {
	t.Helper()
	select {
	case msg, ok := <-sub.C():
		require.True(t, ok, "subscription closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func assertSilent(t *testing.T, sub Subscription) {
	t.Helper()
	select {
	case msg := <-sub.C():
		t.Fatalf("unexpected message %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPublishReachesOnlyMatchingSubscriber(t *testing.T) {
	for name, b := range buses(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			alice, err := b.Subscribe(ctx, TopicNotifications, Match(AttrRecipientID, "alice"))
			require.NoError(t, err)
			defer alice.Close()
			bob, err := b.Subscribe(ctx, TopicNotifications, Match(AttrRecipientID, "bob"))
			require.NoError(t, err)
			defer bob.Close()

			msg, err := NewMessage(TopicNotifications, ActionInsert, map[string]string{"title": "hi"},
				map[string]string{AttrRecipientID: "alice"})
			require.NoError(t, err)
			require.NoError(t, b.Publish(ctx, TopicNotifications, msg))

			got := receive(t, alice)
			assert.Equal(t, TopicNotifications, got.Topic)
			assert.Equal(t, ActionInsert, got.Action)
			assert.JSONEq(t, `{"title":"hi"}`, string(got.Payload))
			assertSilent(t, bob)
		})
	}
}

func TestTopicsAreIsolated(t *testing.T) {
	for name, b := range buses(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sub, err := b.Subscribe(ctx, TopicVotes, nil)
			require.NoError(t, err)
			defer sub.Close()

			msg, err := NewMessage(TopicComments, ActionInsert, "c", nil)
			require.NoError(t, err)
			require.NoError(t, b.Publish(ctx, TopicComments, msg))
			assertSilent(t, sub)
		})
	}
}

func TestSubscriptionClosesWithContext(t *testing.T) {
	for name, b := range buses(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			sub, err := b.Subscribe(ctx, TopicIssues, nil)
			require.NoError(t, err)
			cancel()

			select {
			case _, ok := <-sub.C():
				assert.False(t, ok)
			case <-time.After(2 * time.Second):
				t.Fatal("subscription did not close")
			}
		})
	}
}

func TestMatchRejectsEmptyValue(t *testing.T) {
	pred := Match(AttrRecipientID, "")
	assert.False(t, pred(Message{Attrs: map[string]string{AttrRecipientID: ""}}))
	assert.False(t, pred(Message{}))
}

func TestMemoryBusClosed(t *testing.T) {
	b := NewMemoryBus()
	require.NoError(t, b.Close())

	_, err := b.Subscribe(context.Background(), TopicIssues, nil)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, b.Publish(context.Background(), TopicIssues, Message{}), ErrClosed)
}

func TestMemoryBusDropsStalledSubscriber(t *testing.T) {
	b := NewMemoryBus()
	t.Cleanup(func() { _ = b.Close() })
	ctx := context.Background()

	stalled, err := b.Subscribe(ctx, TopicIssues, nil)
	require.NoError(t, err)
	live, err := b.Subscribe(ctx, TopicIssues, nil)
	require.NoError(t, err)

	// live is drained after each publish; stalled is never read.
	start := time.Now()
	var dropped error
	for i := 0; i < defaultBuffer+10; i++ {
		msg, err := NewMessage(TopicIssues, ActionUpdate, map[string]int{"n": i}, nil)
		require.NoError(t, err)
		if err := b.Publish(ctx, TopicIssues, msg); err != nil {
			dropped = err
		}
		receive(t, live)
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, dropped, ErrSlowSubscriber)

	// The stalled subscriber keeps its buffered messages, then sees the close.
	n := 0
	for range stalled.C() {
		n++
	}
	assert.Equal(t, defaultBuffer, n)

	msg, err := NewMessage(TopicIssues, ActionUpdate, nil, nil)
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, TopicIssues, msg))
	receive(t, live)
}
