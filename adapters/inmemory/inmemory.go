// Package inmemory provides thread-safe in-memory fabric and notification
// stream implementations for testing and examples.
package inmemory

import (
	"context"
	"sync"

	cbridge "github.com/next-trace/scg-misp-bridge/contract/bridge"
	"github.com/next-trace/scg-misp-bridge/topic"
)

// Event is one recorded fabric event.
type Event struct {
	Topic   string
	Payload []byte
}

// Fabric records service registrations and published events, and lets tests
// inject requests against the registered handler.
type Fabric struct {
	mu           sync.Mutex
	topics       map[string]struct{}
	handler      cbridge.RequestHandler
	deregistered bool
	events       []Event

	// PublishErr, when set, is returned by every PublishEvent call.
	PublishErr error
}

// NewFabric creates an empty in-memory fabric.
func NewFabric() *Fabric { return &Fabric{topics: make(map[string]struct{})} }

var _ cbridge.Fabric = (*Fabric)(nil)

func (f *Fabric) RegisterService(_ context.Context, topics []string, h cbridge.RequestHandler) (cbridge.ServiceRegistration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, t := range topics {
		f.topics[t] = struct{}{}
	}

	f.handler = h
	f.deregistered = false

	return &registration{f: f}, nil
}

func (f *Fabric) PublishEvent(_ context.Context, topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishErr != nil {
		return f.PublishErr
	}

	f.events = append(f.events, Event{Topic: topic, Payload: append([]byte(nil), payload...)})

	return nil
}

// Request delivers one request to the registered handler the way a transport
// would and returns a channel carrying the eventual reply. The channel is
// closed without a value when the topic is not registered.
func (f *Fabric) Request(t string, payload []byte) <-chan cbridge.Reply {
	out := make(chan cbridge.Reply, 1)

	f.mu.Lock()
	_, registered := f.topics[t]
	h := f.handler
	f.mu.Unlock()

	if !registered || h == nil {
		close(out)
		return out
	}

	req := cbridge.NewRequest(t, topic.Leaf(t), "inmemory", payload, func(r cbridge.Reply) error {
		out <- r
		return nil
	})

	h(req)

	return out
}

// Registered returns the currently registered request topics.
func (f *Fabric) Registered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.topics))
	for t := range f.topics {
		out = append(out, t)
	}

	return out
}

// Deregistered reports whether the registration handle was released.
func (f *Fabric) Deregistered() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.deregistered
}

// Events returns all recorded fabric events in publish order.
func (f *Fabric) Events() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]Event(nil), f.events...)
}

type registration struct{ f *Fabric }

func (r *registration) Deregister(context.Context) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()

	r.f.deregistered = true
	r.f.handler = nil

	return nil
}

// Stream is a scriptable in-memory notification stream.
type Stream struct {
	mu      sync.Mutex
	topics  map[string]struct{}
	handler cbridge.NotificationHandler
	closed  bool
}

// NewStream creates an empty in-memory notification stream.
func NewStream() *Stream { return &Stream{topics: make(map[string]struct{})} }

var _ cbridge.NotificationStream = (*Stream)(nil)

func (s *Stream) Subscribe(_ context.Context, topics []string, h cbridge.NotificationHandler) (cbridge.StreamSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range topics {
		s.topics[t] = struct{}{}
	}

	s.handler = h
	s.closed = false

	return &subscription{s: s}, nil
}

// Emit delivers one notification if its topic is subscribed, mimicking
// transport-side filtering. It reports whether the message was delivered.
func (s *Stream) Emit(topic string, payload []byte) bool {
	s.mu.Lock()
	_, subscribed := s.topics[topic]
	h := s.handler
	closed := s.closed
	s.mu.Unlock()

	if closed || !subscribed || h == nil {
		return false
	}

	h(cbridge.Notification{Topic: topic, Payload: payload})

	return true
}

// Closed reports whether the subscription handle was released.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

type subscription struct{ s *Stream }

func (c *subscription) Close(context.Context) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	c.s.closed = true
	c.s.handler = nil

	return nil
}
