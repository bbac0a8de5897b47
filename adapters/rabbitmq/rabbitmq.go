package rabbitmq

import (
	"context"
	"fmt"

	cbridge "github.com/next-trace/scg-misp-bridge/contract/bridge"
	berr "github.com/next-trace/scg-misp-bridge/contract/errors"
)

// Delivery is one message consumed from the notification exchange.
type Delivery struct {
	RoutingKey string
	Body       []byte
}

// StopFunc tears down a running consume loop. Idempotent.
type StopFunc func(ctx context.Context) error

// Consumer is a minimal AMQP-like consume interface decoupled from any
// concrete library. Users can provide a wrapper around their own channel.
type Consumer interface {
	// Consume binds the given routing keys and delivers matching messages
	// to h until the returned stop function is called.
	Consume(ctx context.Context, routingKeys []string, h func(Delivery)) (StopFunc, error)
}

// Stream implements cbridge.NotificationStream using an injected Consumer.
type Stream struct {
	Consumer Consumer
}

var _ cbridge.NotificationStream = (*Stream)(nil)

// New creates a RabbitMQ stream adapter with the provided consumer.
func New(c Consumer) *Stream { return &Stream{Consumer: c} }

func (s *Stream) Subscribe(ctx context.Context, topics []string, h cbridge.NotificationHandler) (cbridge.StreamSubscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.Consumer == nil {
		return nil, fmt.Errorf("rabbitmq subscribe: %w", berr.ErrUpstreamUnreachable)
	}

	stop, err := s.Consumer.Consume(ctx, topics, func(d Delivery) {
		h(cbridge.Notification{Topic: d.RoutingKey, Payload: d.Body})
	})
	if err != nil {
		return nil, fmt.Errorf("rabbitmq subscribe: %w", err)
	}

	return &subscription{stop: stop}, nil
}

type subscription struct{ stop StopFunc }

func (s *subscription) Close(ctx context.Context) error { return s.stop(ctx) }
