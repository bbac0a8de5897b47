package bridge

import "context"

// RequestHandler is invoked by fabric transports for every inbound request.
// The transport's delivery goroutine calls it directly, so implementations
// must only enqueue; blocking here stalls the whole inbound side.
type RequestHandler func(req Request)

// ServiceRegistrar exposes a set of request topics on the fabric as a service.
// Library users provide an implementation backed by their fabric transport.
type ServiceRegistrar interface {
	RegisterService(ctx context.Context, topics []string, h RequestHandler) (ServiceRegistration, error)
}

// ServiceRegistration is the handle returned by a successful registration.
type ServiceRegistration interface {
	// Deregister withdraws the service's request topics from the fabric.
	Deregister(ctx context.Context) error
}

// EventPublisher publishes one-way events onto the fabric.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, payload []byte) error
}

// Fabric combines service registration and event publishing. Any transport
// implementing both can back the bridge on its own; the two halves stay
// separate interfaces so event mirroring can use a different transport.
type Fabric interface {
	ServiceRegistrar
	EventPublisher
}
