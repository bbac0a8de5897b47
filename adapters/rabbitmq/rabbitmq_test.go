package rabbitmq_test

import (
	"context"
	"errors"
	"testing"

	"github.com/next-trace/scg-misp-bridge/adapters/rabbitmq"
	"github.com/next-trace/scg-misp-bridge/contract/bridge"
	berr "github.com/next-trace/scg-misp-bridge/contract/errors"
)

type fakeConsumer struct {
	keys    []string
	handler func(rabbitmq.Delivery)
	stopped bool
	err     error
}

func (c *fakeConsumer) Consume(_ context.Context, routingKeys []string, h func(rabbitmq.Delivery)) (rabbitmq.StopFunc, error) {
	if c.err != nil {
		return nil, c.err
	}

	c.keys = routingKeys
	c.handler = h

	return func(context.Context) error {
		c.stopped = true
		return nil
	}, nil
}

func TestSubscribe_TranslatesDeliveries(t *testing.T) {
	consumer := &fakeConsumer{}
	stream := rabbitmq.New(consumer)

	var got []bridge.Notification

	sub, err := stream.Subscribe(t.Context(), []string{"misp_json_event"}, func(n bridge.Notification) {
		got = append(got, n)
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if len(consumer.keys) != 1 || consumer.keys[0] != "misp_json_event" {
		t.Fatalf("routing keys=%v", consumer.keys)
	}

	consumer.handler(rabbitmq.Delivery{RoutingKey: "misp_json_event", Body: []byte(`{"Event":{}}`)})

	if len(got) != 1 || got[0].Topic != "misp_json_event" || string(got[0].Payload) != `{"Event":{}}` {
		t.Fatalf("got=%+v", got)
	}

	if err := sub.Close(t.Context()); err != nil {
		t.Fatalf("close: %v", err)
	}

	if !consumer.stopped {
		t.Fatal("consume loop not stopped")
	}
}

func TestSubscribe_Errors(t *testing.T) {
	if _, err := rabbitmq.New(nil).Subscribe(t.Context(), nil, nil); !errors.Is(err, berr.ErrUpstreamUnreachable) {
		t.Fatalf("want ErrUpstreamUnreachable, got %v", err)
	}

	refused := errors.New("channel closed")
	if _, err := rabbitmq.New(&fakeConsumer{err: refused}).Subscribe(t.Context(), nil, nil); !errors.Is(err, refused) {
		t.Fatalf("want wrapped consume error, got %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if _, err := rabbitmq.New(&fakeConsumer{}).Subscribe(ctx, nil, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}
