// Package bus is the realtime fan-out channel. Every mutation to an issue,
// vote, comment or notification is published on its topic; subscribers
// receive only messages accepted by their predicate, evaluated server-side.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	TopicIssues        = "issues"
	TopicVotes         = "votes"
	TopicComments      = "comments"
	TopicNotifications = "notifications"
)

// Attribute keys used by predicates.
const (
	AttrIssueID     = "issue_id"
	AttrUserID      = "user_id"
	AttrRecipientID = "recipient_id"
)

type Action string

const (
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

var (
	ErrClosed = errors.New("bus closed")
	// ErrSlowSubscriber is returned by Publish when a subscriber fell behind
	// and was dropped. Every other subscriber still got the message.
	ErrSlowSubscriber = errors.New("bus: subscriber dropped, buffer full")
)

// Message is a row change on a topic.
type Message struct {
	Topic   string            `json:"topic"`
	Action  Action            `json:"action"`
	Attrs   map[string]string `json:"attrs,omitempty"`
	Payload json.RawMessage   `json:"payload,omitempty"`
	At      time.Time         `json:"at"`
}

// NewMessage encodes payload as JSON.
func NewMessage(topic string, action Action, payload any, attrs map[string]string) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", topic, err)
	}
	return Message{Topic: topic, Action: action, Attrs: attrs, Payload: raw, At: time.Now().UTC()}, nil
}

// Predicate selects messages for a subscriber. A nil predicate accepts all.
type Predicate func(Message) bool

// Match accepts messages whose attribute key equals value. An empty value
// matches nothing, so a missing recipient can never widen a subscription.
func Match(key, value string) Predicate {
	return func(m Message) bool {
		return value != "" && m.Attrs[key] == value
	}
}

// Subscription is a live stream of matching messages. C is closed after
// Close or when the subscribing context ends.
type Subscription interface {
	C() <-chan Message
	Close() error
}

type Bus interface {
	Publish(ctx context.Context, topic string, msg Message) error
	Subscribe(ctx context.Context, topic string, pred Predicate) (Subscription, error)
	Close() error
}

func accepts(pred Predicate, msg Message) bool {
	return pred == nil || pred(msg)
}
