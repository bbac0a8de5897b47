package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"

	cbridge "github.com/next-trace/scg-misp-bridge/contract/bridge"
	berr "github.com/next-trace/scg-misp-bridge/contract/errors"
	"github.com/next-trace/scg-misp-bridge/topic"
)

// Writer is a minimal Kafka-like producer interface decoupled from any
// concrete library. Users can provide a wrapper around their own client.
type Writer interface {
	Write(topic string, key, value []byte, headers map[string]string) error
}

// Adapter implements cbridge.EventPublisher using an injected Writer, for
// mirroring forwarded notifications into Kafka instead of (or alongside)
// the fabric. Records are keyed by the upstream topic leaf so one topic's
// notifications stay in partition order.
type Adapter struct {
	Writer Writer
}

var _ cbridge.EventPublisher = (*Adapter)(nil)

// New creates a Kafka event publisher with the provided writer.
func New(w Writer) *Adapter { return &Adapter{Writer: w} }

func (a *Adapter) PublishEvent(ctx context.Context, t string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Writer == nil {
		return fmt.Errorf("kafka publish: %w", berr.ErrFabricUnavailable)
	}

	if err := a.Writer.Write(topicFor(t), []byte(topic.Leaf(t)), payload, nil); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("kafka publish %q: %w", t, errors.Join(berr.ErrEventPublishFailed, err))
	}

	return nil
}

// topicFor converts a fabric topic to a Kafka topic name:
// "/opendxl-misp/event/zeromq-notifications/x" -> "opendxl-misp.event.zeromq-notifications.x".
func topicFor(t string) string {
	return strings.ReplaceAll(strings.TrimPrefix(t, "/"), "/", ".")
}
