package services

import (
	"context"
	"sync"

	"civicpulse-be/apperr"
	"civicpulse-be/bus"
)

var issueTopics = []string{bus.TopicIssues, bus.TopicVotes, bus.TopicComments}

// WatchIssue streams every issue, vote and comment change for one issue.
// Anonymous callers may watch; the payloads are public issue data.
func (e *LifecycleEngine) WatchIssue(ctx context.Context, issueID string) (bus.Subscription, error) {
	if _, err := e.issues.GetIssue(ctx, issueID); err != nil {
		return nil, storeErr(err, "issue")
	}
	ctx, cancel := context.WithCancel(ctx)
	feed := &mergedSub{out: make(chan bus.Message, 64), cancel: cancel}
	pred := bus.Match(bus.AttrIssueID, issueID)
	for _, topic := range issueTopics {
		sub, err := e.bus.Subscribe(ctx, topic, pred)
		if err != nil {
			feed.Close()
			return nil, apperr.Upstream(err, "subscribe "+topic)
		}
		feed.subs = append(feed.subs, sub)
	}
	for _, sub := range feed.subs {
		feed.wg.Add(1)
		go feed.forward(ctx, sub)
	}
	go func() {
		feed.wg.Wait()
		close(feed.out)
	}()
	return feed, nil
}

// mergedSub fans several subscriptions into one channel. When any source
// closes the whole feed closes, so a reader never sees a partial stream.
type mergedSub struct {
	subs   []bus.Subscription
	out    chan bus.Message
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func (m *mergedSub) C() <-chan bus.Message { return m.out }

func (m *mergedSub) Close() error {
	m.once.Do(func() {
		m.cancel()
		for _, sub := range m.subs {
			_ = sub.Close()
		}
	})
	return nil
}

func (m *mergedSub) forward(ctx context.Context, sub bus.Subscription) {
	defer m.wg.Done()
	defer m.Close()
	for msg := range sub.C() {
		select {
		case m.out <- msg:
		case <-ctx.Done():
			return
		}
	}
}
