package link

import (
	"context"
	"strings"
	"time"
)

// Retry pacing for subscription reconciliation and the forced restart.
const (
	subscribeRetryBase   = 500 * time.Millisecond
	subscribeRetryStep   = 200 * time.Millisecond
	unsubscribeRetryBase = 300 * time.Millisecond
	unsubscribeRetryStep = 150 * time.Millisecond
)

// reconcile brings the broker's subscriptions in line with the registry.
//
// Pending unsubscribes go first, then every registry entry is subscribed.
// Items that fail are retried, up to ReconcileAttempts passes. The
// snapshot's generation is marked synced either way: exhaustion is logged,
// it never stops the loop.
func (l *Link) reconcile(ctx context.Context, eng Engine) {
	subs, unsubs, gen := l.registry.pendingWork()
	total := len(subs) + len(unsubs)

	for attempt := 1; ; attempt++ {
		unsubs = l.unsubscribeTopics(eng, unsubs)
		subs = l.subscribeTopics(eng, subs)

		if len(subs) == 0 && len(unsubs) == 0 {
			l.registry.markSynced(gen)
			if total > 0 {
				l.log().Info("subscriptions reconciled", "changes", total, "attempts", attempt)
				l.emit(Event{Kind: EventReconciled})
			}
			return
		}

		if attempt >= l.opts.ReconcileAttempts {
			l.registry.markSynced(gen)
			l.log().Error("failed to reconcile all subscriptions",
				"attempts", attempt,
				"failed_subscribe", len(subs),
				"failed_unsubscribe", len(unsubs),
			)
			l.emit(Event{Kind: EventReconcileIncomplete, Detail: failedTopics(subs, unsubs)})
			return
		}

		delay := subscribeRetryBase + time.Duration(attempt)*subscribeRetryStep
		if l.clock.Sleep(ctx, delay) != nil {
			return
		}
	}
}

// subscribeTopics subscribes each entry and returns the ones that failed.
func (l *Link) subscribeTopics(eng Engine, subs []TopicQoS) []TopicQoS {
	var failed []TopicQoS
	for _, s := range subs {
		if err := eng.Subscribe(s.Topic, s.QoS); err != nil {
			l.log().Warn("could not subscribe to topic", "topic", s.Topic, "error", err)
			failed = append(failed, s)
			continue
		}
		l.log().Debug("subscribed to topic", "topic", s.Topic, "qos", s.QoS)
	}
	return failed
}

// unsubscribeTopics unsubscribes each topic and returns the ones that failed.
func (l *Link) unsubscribeTopics(eng Engine, topics []string) []string {
	var failed []string
	for _, t := range topics {
		if err := eng.Unsubscribe(t); err != nil {
			l.log().Warn("could not unsubscribe from topic", "topic", t, "error", err)
			failed = append(failed, t)
			continue
		}
		l.log().Debug("unsubscribed from topic", "topic", t)
	}
	return failed
}

// forceRestart drops every broker subscription and cycles the connection.
// It guards against subscriptions going stale on the broker side without
// the session ever reporting an error.
func (l *Link) forceRestart(ctx context.Context, eng Engine) {
	l.log().Info("restarting broker connection", "interval", l.opts.RestartInterval)
	l.emit(Event{Kind: EventForcedRestart})

	l.unsubscribeAll(ctx, eng)

	if l.clock.Sleep(ctx, restartPause) != nil {
		return
	}
	if err := eng.Reconnect(ctx); err != nil {
		l.log().Warn("reconnect during restart failed", "error", err)
	}
	if l.clock.Sleep(ctx, restartPause) != nil {
		return
	}

	l.registry.markDirty()
}

// unsubscribeAll removes every registry topic from the broker, retrying
// failures up to ReconcileAttempts passes.
func (l *Link) unsubscribeAll(ctx context.Context, eng Engine) {
	snapshot := l.registry.Snapshot()
	topics := make([]string, len(snapshot))
	for i, s := range snapshot {
		topics[i] = s.Topic
	}

	for attempt := 1; len(topics) > 0; attempt++ {
		topics = l.unsubscribeTopics(eng, topics)
		if len(topics) == 0 {
			return
		}
		if attempt >= l.opts.ReconcileAttempts {
			l.log().Error("failed to unsubscribe all topics", "attempts", attempt, "remaining", len(topics))
			return
		}
		delay := unsubscribeRetryBase + time.Duration(attempt)*unsubscribeRetryStep
		if l.clock.Sleep(ctx, delay) != nil {
			return
		}
	}
}

func failedTopics(subs []TopicQoS, unsubs []string) string {
	out := make([]string, 0, len(subs)+len(unsubs))
	for _, s := range subs {
		out = append(out, "+"+s.Topic)
	}
	for _, t := range unsubs {
		out = append(out, "-"+t)
	}
	return strings.Join(out, ",")
}
