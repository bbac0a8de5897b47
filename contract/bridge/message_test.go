package bridge_test

import (
	"errors"
	"testing"

	"github.com/next-trace/scg-misp-bridge/contract/bridge"
	berr "github.com/next-trace/scg-misp-bridge/contract/errors"
)

func TestRespond_NilTransportIsNoop(t *testing.T) {
	req := bridge.NewRequest("/a/b", "b", "", nil, nil)

	if err := req.Respond(bridge.OK(nil)); err != nil {
		t.Fatalf("respond: %v", err)
	}
}

func TestRespond_DeliversThroughTransport(t *testing.T) {
	var got []bridge.Reply

	req := bridge.NewRequest("/a/b", "b", "c1", []byte("p"), func(r bridge.Reply) error {
		got = append(got, r)
		return nil
	})

	if err := req.Respond(bridge.OK([]byte("out"))); err != nil {
		t.Fatalf("respond: %v", err)
	}

	if len(got) != 1 || string(got[0].Payload) != "out" {
		t.Fatalf("got=%+v", got)
	}
}

func TestFail_DerivesKindFromError(t *testing.T) {
	rep := bridge.Fail(berr.ErrUpstreamUnreachable)
	if rep.Err == nil || rep.Err.Kind != berr.KindUpstreamUnreachable {
		t.Fatalf("reply=%+v", rep)
	}

	// uncoded errors fall back to the rejection kind
	rep = bridge.Fail(errors.New("boom"))
	if rep.Err.Kind != berr.KindUpstreamRejected {
		t.Fatalf("kind=%s", rep.Err.Kind)
	}
}

func TestWire(t *testing.T) {
	payload := []byte(`{"Event":{"id":"1"}}`)
	if got := bridge.OK(payload).Wire(); string(got) != string(payload) {
		t.Fatalf("wire=%s", got)
	}

	got := bridge.FailKind(berr.KindQueueFull, "request queue full").Wire()
	want := `{"error":{"kind":"queue_full","message":"request queue full"}}`

	if string(got) != want {
		t.Fatalf("wire=%s", got)
	}
}

func TestConfigNormalized(t *testing.T) {
	cfg, err := bridge.Config{Operations: []string{"search"}}.Normalized()
	if err != nil {
		t.Fatalf("normalized: %v", err)
	}

	if cfg.RequestPool.QueueCapacity != bridge.DefaultQueueCapacity ||
		cfg.RequestPool.WorkerCount != bridge.DefaultWorkerCount ||
		cfg.InvokeTimeout != bridge.DefaultInvokeTimeout ||
		cfg.DrainTimeout != bridge.DefaultDrainTimeout {
		t.Fatalf("defaults not applied: %+v", cfg)
	}

	if _, err := (bridge.Config{RequestPool: bridge.PoolConfig{WorkerCount: -1}}).Normalized(); !errors.Is(err, berr.ErrInvalidParameters) {
		t.Fatalf("want ErrInvalidParameters, got %v", err)
	}

	if _, err := (bridge.Config{InvokeTimeout: -1}).Normalized(); !errors.Is(err, berr.ErrInvalidParameters) {
		t.Fatalf("want ErrInvalidParameters, got %v", err)
	}
}
