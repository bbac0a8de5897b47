package kafka_test

import (
	"context"
	"errors"
	"testing"

	"github.com/next-trace/scg-misp-bridge/adapters/kafka"
	berr "github.com/next-trace/scg-misp-bridge/contract/errors"
)

type record struct {
	topic string
	key   string
	value string
}

type fakeWriter struct {
	records []record
	err     error
}

func (w *fakeWriter) Write(topic string, key, value []byte, _ map[string]string) error {
	if w.err != nil {
		return w.err
	}

	w.records = append(w.records, record{topic: topic, key: string(key), value: string(value)})

	return nil
}

func TestPublishEvent_TopicAndKeyMapping(t *testing.T) {
	w := &fakeWriter{}
	adapter := kafka.New(w)

	err := adapter.PublishEvent(t.Context(),
		"/opendxl-misp/event/zeromq-notifications/sample/misp_json_event",
		[]byte(`{"Event":{}}`))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(w.records) != 1 {
		t.Fatalf("records=%+v", w.records)
	}

	got := w.records[0]
	if got.topic != "opendxl-misp.event.zeromq-notifications.sample.misp_json_event" {
		t.Fatalf("topic=%s", got.topic)
	}

	// keyed by the leaf so one notification topic stays ordered
	if got.key != "misp_json_event" {
		t.Fatalf("key=%s", got.key)
	}

	if got.value != `{"Event":{}}` {
		t.Fatalf("value=%s", got.value)
	}
}

func TestPublishEvent_Errors(t *testing.T) {
	adapter := kafka.New(nil)
	if err := adapter.PublishEvent(t.Context(), "/a/b", nil); !errors.Is(err, berr.ErrFabricUnavailable) {
		t.Fatalf("want ErrFabricUnavailable, got %v", err)
	}

	adapter = kafka.New(&fakeWriter{err: errors.New("broker down")})
	if err := adapter.PublishEvent(t.Context(), "/a/b", nil); !errors.Is(err, berr.ErrEventPublishFailed) {
		t.Fatalf("want ErrEventPublishFailed, got %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if err := kafka.New(&fakeWriter{}).PublishEvent(ctx, "/a/b", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}
