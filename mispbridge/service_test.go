package mispbridge_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/next-trace/scg-misp-bridge/contract/bridge"
	berr "github.com/next-trace/scg-misp-bridge/contract/errors"
	"github.com/next-trace/scg-misp-bridge/mispbridge"
)

// fakes

type fakeUpstream struct {
	resp []byte
	err  error

	// when set, Invoke signals entered and then blocks on release or ctx
	entered chan struct{}
	release chan struct{}
}

func (f *fakeUpstream) Invoke(ctx context.Context, _ string, _ map[string]any) ([]byte, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}

	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return f.resp, f.err
}

func awaitReply(t *testing.T, ch <-chan bridge.Reply) bridge.Reply {
	t.Helper()

	select {
	case rep, ok := <-ch:
		if !ok {
			t.Fatal("reply channel closed without a reply")
		}

		return rep
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reply")
		return bridge.Reply{}
	}
}

func TestNew_Validation(t *testing.T) {
	up := &fakeUpstream{}

	tests := []struct {
		name     string
		upstream bridge.Upstream
		cfg      bridge.Config
		want     error
	}{
		{
			name: "nothing to expose",
			cfg:  bridge.Config{ServiceID: "sample"},
			want: berr.ErrInvalidParameters,
		},
		{
			name: "service id with delimiter",
			cfg:  bridge.Config{ServiceID: "a/b", NotificationTopics: []string{"misp_json_event"}},
			want: berr.ErrInvalidOperationName,
		},
		{
			name: "operations without upstream",
			cfg:  bridge.Config{Operations: []string{"search"}},
			want: berr.ErrInvalidParameters,
		},
		{
			name:     "negative queue capacity",
			upstream: up,
			cfg: bridge.Config{
				Operations:  []string{"search"},
				RequestPool: bridge.PoolConfig{QueueCapacity: -1},
			},
			want: berr.ErrInvalidParameters,
		},
		{
			name:     "empty operation name",
			upstream: up,
			cfg:      bridge.Config{Operations: []string{""}},
			want:     berr.ErrInvalidOperationName,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, _, err := mispbridge.NewInMemory(tc.upstream, tc.cfg, nil)
			if !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
		})
	}
}

func TestRequest_EndToEnd(t *testing.T) {
	up := &fakeUpstream{resp: []byte(`{"Event":{"id":"42"}}`)}

	svc, fabric, _, err := mispbridge.NewInMemory(up, bridge.Config{
		ServiceID:  "sample",
		Operations: []string{"new_event", "search"},
	}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := svc.Start(t.Context()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = svc.Stop(context.Background()) }()

	if svc.State() != mispbridge.Running {
		t.Fatalf("state=%s", svc.State())
	}

	rep := awaitReply(t, fabric.Request(
		"/opendxl-misp/service/misp-api/sample/new_event",
		[]byte(`{"distribution":"0"}`),
	))

	if rep.Err != nil {
		t.Fatalf("reply error: %+v", rep.Err)
	}

	if string(rep.Payload) != `{"Event":{"id":"42"}}` {
		t.Fatalf("payload=%s", rep.Payload)
	}
}

func TestRequest_UnregisteredTopic(t *testing.T) {
	up := &fakeUpstream{resp: []byte(`{}`)}

	svc, fabric, _, err := mispbridge.NewInMemory(up, bridge.Config{
		ServiceID:  "sample",
		Operations: []string{"new_event"},
	}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := svc.Start(t.Context()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = svc.Stop(context.Background()) }()

	// the transport never delivers requests on topics the service did not
	// register, so the caller observes a closed channel
	ch := fabric.Request("/opendxl-misp/service/misp-api/sample/delete_event", nil)

	if _, ok := <-ch; ok {
		t.Fatal("unregistered topic produced a reply")
	}
}

func TestNotification_RepublishedVerbatim(t *testing.T) {
	svc, fabric, stream, err := mispbridge.NewInMemory(nil, bridge.Config{
		ServiceID:          "sample",
		NotificationTopics: []string{"misp_json_event", "misp_json_sighting"},
	}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := svc.Start(t.Context()); err != nil {
		t.Fatalf("start: %v", err)
	}

	payload := []byte(`misp_json_event {"Event":{"id":"7"}}`)
	if !stream.Emit("misp_json_event", payload) {
		t.Fatal("subscribed topic was not delivered")
	}

	if stream.Emit("misp_json_attribute", []byte("x")) {
		t.Fatal("unconfigured topic was delivered")
	}

	if err := svc.Stop(t.Context()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	events := fabric.Events()
	if len(events) != 1 {
		t.Fatalf("events=%v", events)
	}

	if events[0].Topic != "/opendxl-misp/event/zeromq-notifications/sample/misp_json_event" {
		t.Fatalf("topic=%s", events[0].Topic)
	}

	if string(events[0].Payload) != string(payload) {
		t.Fatalf("payload was transformed: %s", events[0].Payload)
	}

	forwarded, dropped := svc.NotificationStats()
	if forwarded != 1 || dropped != 0 {
		t.Fatalf("forwarded=%d dropped=%d", forwarded, dropped)
	}
}

func TestRequest_QueueFullReply(t *testing.T) {
	up := &fakeUpstream{
		resp:    []byte(`{}`),
		entered: make(chan struct{}, 4),
		release: make(chan struct{}),
	}

	svc, fabric, _, err := mispbridge.NewInMemory(up, bridge.Config{
		ServiceID:   "sample",
		Operations:  []string{"search"},
		RequestPool: bridge.PoolConfig{QueueCapacity: 1, WorkerCount: 1},
	}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := svc.Start(t.Context()); err != nil {
		t.Fatalf("start: %v", err)
	}

	topic := "/opendxl-misp/service/misp-api/sample/search"

	// first request occupies the single worker
	first := fabric.Request(topic, nil)
	<-up.entered

	// second fills the queue, third must be rejected immediately
	second := fabric.Request(topic, nil)
	third := fabric.Request(topic, nil)

	rep := awaitReply(t, third)
	if rep.Err == nil || rep.Err.Kind != berr.KindQueueFull {
		t.Fatalf("reply=%+v", rep)
	}

	close(up.release)

	for _, ch := range []<-chan bridge.Reply{first, second} {
		if rep := awaitReply(t, ch); rep.Err != nil {
			t.Fatalf("accepted request failed: %+v", rep.Err)
		}
	}

	if err := svc.Stop(t.Context()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
