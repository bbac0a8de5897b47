package rabbitmq

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	berr "github.com/next-trace/scg-misp-bridge/contract/errors"
)

// Concrete AMQP connection-backed Consumer with auto-reconnect.

const defaultExchange = "misp.notifications"

type Config struct {
	URL         string
	Exchange    string // topic exchange the notifications are relayed to
	Queue       string // empty means an exclusive server-named queue
	ConnTimeout time.Duration
}

// NewWithAMQP returns a Stream backed by a reconnecting consumer. The first
// connection is established eagerly inside Subscribe so startup fails fast;
// later connection losses are retried with backoff until Close.
func NewWithAMQP(cfg Config) (*Stream, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: rabbitmq url required", berr.ErrUpstreamUnreachable)
	}

	if cfg.Exchange == "" {
		cfg.Exchange = defaultExchange
	}

	return New(&amqpConsumer{cfg: cfg}), nil
}

type amqpConsumer struct{ cfg Config }

func (c *amqpConsumer) Consume(ctx context.Context, routingKeys []string, h func(Delivery)) (StopFunc, error) {
	loop := &consumeLoop{cfg: c.cfg, keys: routingKeys, h: h, closed: make(chan struct{}), done: make(chan struct{})}

	conn, deliveries, err := loop.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", berr.ErrUpstreamUnreachable, err)
	}

	go loop.run(conn, deliveries)

	return loop.stop, nil
}

type consumeLoop struct {
	cfg  Config
	keys []string
	h    func(Delivery)

	once   sync.Once
	closed chan struct{}
	done   chan struct{}

	mu   sync.Mutex
	conn *amqp.Connection
}

// connect dials, declares the exchange and queue, binds every routing key,
// and opens the delivery channel.
func (l *consumeLoop) connect(ctx context.Context) (*amqp.Connection, <-chan amqp.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	conn, err := amqp.DialConfig(l.cfg.URL, amqp.Config{
		Locale:     "en_US",
		Properties: amqp.Table{"product": "scg-misp-bridge"},
		Dial:       amqp.DefaultDial(l.cfg.ConnTimeout),
	})
	if err != nil {
		return nil, nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	if err = ch.ExchangeDeclare(l.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	exclusive := l.cfg.Queue == ""

	q, err := ch.QueueDeclare(l.cfg.Queue, !exclusive, exclusive, exclusive, false, nil)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	for _, key := range l.keys {
		if err = ch.QueueBind(q.Name, key, l.cfg.Exchange, false, nil); err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
	}

	deliveries, err := ch.Consume(q.Name, "", true, exclusive, false, false, nil)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()

	return conn, deliveries, nil
}

func (l *consumeLoop) run(conn *amqp.Connection, deliveries <-chan amqp.Delivery) {
	defer close(l.done)

	backoff := time.Second

	const maxBackoff = 30 * time.Second

	// #nosec G404 -- non-crypto RNG is acceptable for backoff jitter
	rng := rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // non-crypto RNG is acceptable for backoff jitter

	for {
		l.drain(deliveries)
		_ = conn.Close()

		select {
		case <-l.closed:
			return
		default:
		}

		// The channel closed underneath us; reconnect with jittered backoff.
		for {
			sleep := backoff + time.Duration(rng.Int63n(int64(backoff/2+1)))
			select {
			case <-l.closed:
				return
			case <-time.After(sleep):
			}

			var err error

			conn, deliveries, err = l.connect(context.Background())
			if err == nil {
				backoff = time.Second
				break
			}

			if backoff < maxBackoff {
				backoff *= 2
			}
		}
	}
}

// drain pumps deliveries into the handler until the channel closes.
func (l *consumeLoop) drain(deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-l.closed:
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}

			l.h(Delivery{RoutingKey: d.RoutingKey, Body: d.Body})
		}
	}
}

func (l *consumeLoop) stop(ctx context.Context) error {
	l.once.Do(func() {
		close(l.closed)

		l.mu.Lock()
		conn := l.conn
		l.mu.Unlock()

		if conn != nil {
			_ = conn.Close()
		}
	})

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
