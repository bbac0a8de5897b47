// Package forward republishes upstream notification-stream messages as
// fabric events. Payloads pass through unchanged; the bridge does not
// interpret notification content.
package forward

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/next-trace/scg-misp-bridge/contract/bridge"
	berr "github.com/next-trace/scg-misp-bridge/contract/errors"
	"github.com/next-trace/scg-misp-bridge/topic"
)

// Forwarder maps each configured upstream topic to its resolved fabric
// event topic. The mapping is built once at construction and immutable
// afterwards. Delivery is at-most-once: saturation and publish failures
// drop the message and bump a counter, they never block or retry.
type Forwarder struct {
	events bridge.EventPublisher
	logger *slog.Logger

	// upstream topic -> resolved fabric topic
	mapping map[string]string

	forwarded atomic.Uint64
	dropped   atomic.Uint64
}

// New resolves every configured upstream topic. Duplicates collapse to one
// entry; an empty set is valid and yields a forwarder that drops everything.
func New(events bridge.EventPublisher, res topic.Resolver, topics []string, logger *slog.Logger) (*Forwarder, error) {
	if events == nil {
		return nil, fmt.Errorf("nil event publisher: %w", berr.ErrInvalidParameters)
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	mapping := make(map[string]string, len(topics))

	for _, t := range topics {
		resolved, err := res.Resolve(topic.Event, t)
		if err != nil {
			return nil, fmt.Errorf("notification topic %q: %w", t, err)
		}

		mapping[t] = resolved
	}

	return &Forwarder{events: events, logger: logger, mapping: mapping}, nil
}

// Topics returns the upstream subscription set, sorted, deduplicated.
func (f *Forwarder) Topics() []string {
	out := make([]string, 0, len(f.mapping))
	for t := range f.mapping {
		out = append(out, t)
	}

	sort.Strings(out)

	return out
}

// EventTopics returns the resolved fabric event topics, sorted.
func (f *Forwarder) EventTopics() []string {
	out := make([]string, 0, len(f.mapping))
	for _, t := range f.mapping {
		out = append(out, t)
	}

	sort.Strings(out)

	return out
}

// Forward republishes one notification under its resolved fabric topic.
// Messages on topics outside the configured set are dropped; with
// server-side subscription filtering they indicate a transport bug.
func (f *Forwarder) Forward(ctx context.Context, n bridge.Notification) {
	fabricTopic, ok := f.mapping[n.Topic]
	if !ok {
		f.dropped.Add(1)
		f.logger.Warn("notification on unconfigured topic dropped", "topic", n.Topic)

		return
	}

	if err := f.events.PublishEvent(ctx, fabricTopic, n.Payload); err != nil {
		f.dropped.Add(1)
		f.logger.Warn("event publish failed, notification dropped",
			"topic", n.Topic, "event_topic", fabricTopic, "err", err)

		return
	}

	f.forwarded.Add(1)
	f.logger.Debug("notification forwarded", "topic", n.Topic, "event_topic", fabricTopic)
}

// RecordDrop counts a notification rejected before processing, typically by
// pool admission control.
func (f *Forwarder) RecordDrop(n bridge.Notification) {
	f.dropped.Add(1)
	f.logger.Warn("notification dropped at admission", "topic", n.Topic)
}

// Forwarded reports successfully republished notifications.
func (f *Forwarder) Forwarded() uint64 { return f.forwarded.Load() }

// Dropped reports notifications dropped for any reason.
func (f *Forwarder) Dropped() uint64 { return f.dropped.Load() }
