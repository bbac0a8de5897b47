package bridge

import "context"

// Notification is one message received from the upstream notification stream.
// Payload is the verbatim upstream body; the bridge never interprets it.
type Notification struct {
	Topic   string
	Payload []byte
}

// NotificationHandler receives one upstream notification. Like RequestHandler
// it runs on the transport's delivery goroutine and must only enqueue.
type NotificationHandler func(n Notification)

// NotificationStream is the upstream pub/sub collaborator. Implementations
// own connection and handshake mechanics; the core only sees (topic, payload)
// pairs for the subscribed topic set.
type NotificationStream interface {
	Subscribe(ctx context.Context, topics []string, h NotificationHandler) (StreamSubscription, error)
}

// StreamSubscription is the handle returned by a successful subscription.
type StreamSubscription interface {
	Close(ctx context.Context) error
}
