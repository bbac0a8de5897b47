package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"

	cbridge "github.com/next-trace/scg-misp-bridge/contract/bridge"
	berr "github.com/next-trace/scg-misp-bridge/contract/errors"
	"github.com/next-trace/scg-misp-bridge/topic"
)

// queueGroup makes every subscription a queue subscription, so a request is
// handled by exactly one bridge instance even when several share a fabric.
const queueGroup = "misp-bridge"

// Client is a minimal NATS-like interface decoupled from any concrete
// library. Users can provide a wrapper around their NATS connection.
type Client interface {
	// Publish publishes a message to a subject.
	Publish(subject string, data []byte) error
	// QueueSubscribe delivers each message on subject to h within the
	// given queue group. reply is empty for fire-and-forget messages.
	QueueSubscribe(subject, queue string, h func(subject, reply string, data []byte)) (Subscription, error)
}

// Subscription is the transport-level handle for one subscribed subject.
type Subscription interface {
	Drain() error
}

// Adapter implements cbridge.Fabric using an injected NATS-like Client.
// Fabric topics map onto subjects by dropping the leading delimiter and
// swapping the path delimiter for the subject token separator.
type Adapter struct {
	Client Client
}

var _ cbridge.Fabric = (*Adapter)(nil)

// New creates a NATS fabric adapter with the provided client.
func New(c Client) *Adapter { return &Adapter{Client: c} }

func (a *Adapter) RegisterService(ctx context.Context, topics []string, h cbridge.RequestHandler) (cbridge.ServiceRegistration, error) {
	if err := a.ready(ctx, "register"); err != nil {
		return nil, err
	}

	subs := make([]Subscription, 0, len(topics))

	for _, t := range topics {
		sub, err := a.subscribeRequests(t, h)
		if err != nil {
			for _, s := range subs {
				_ = s.Drain()
			}

			return nil, err
		}

		subs = append(subs, sub)
	}

	return &registration{subs: subs}, nil
}

func (a *Adapter) subscribeRequests(t string, h cbridge.RequestHandler) (Subscription, error) {
	op := topic.Leaf(t)

	sub, err := a.Client.QueueSubscribe(subjectFor(t), queueGroup, func(_, reply string, data []byte) {
		respond := func(r cbridge.Reply) error {
			if reply == "" {
				return nil
			}

			return a.Client.Publish(reply, r.Wire())
		}

		h(cbridge.NewRequest(t, op, reply, data, respond))
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %q: %w", t, err)
	}

	return sub, nil
}

func (a *Adapter) PublishEvent(ctx context.Context, t string, payload []byte) error {
	if err := a.ready(ctx, "publish"); err != nil {
		return err
	}

	if err := a.Client.Publish(subjectFor(t), payload); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("nats publish %q: %w", t, errors.Join(berr.ErrEventPublishFailed, err))
	}

	return nil
}

func (a *Adapter) ready(ctx context.Context, label string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Client == nil {
		return fmt.Errorf("nats %s: %w", label, berr.ErrFabricUnavailable)
	}

	return nil
}

type registration struct{ subs []Subscription }

func (r *registration) Deregister(context.Context) error {
	var errs []error

	for _, s := range r.subs {
		if err := s.Drain(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// subjectFor converts a fabric topic to a NATS subject:
// "/opendxl-misp/service/misp-api/new_event" -> "opendxl-misp.service.misp-api.new_event".
func subjectFor(t string) string {
	return strings.ReplaceAll(strings.TrimPrefix(t, "/"), "/", ".")
}
