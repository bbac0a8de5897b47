package mispbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	cbridge "github.com/next-trace/scg-misp-bridge/contract/bridge"
	berr "github.com/next-trace/scg-misp-bridge/contract/errors"
	"github.com/next-trace/scg-misp-bridge/forward"
	"github.com/next-trace/scg-misp-bridge/pool"
	"github.com/next-trace/scg-misp-bridge/router"
	"github.com/next-trace/scg-misp-bridge/topic"
)

// State is the service lifecycle state.
type State int32

const (
	Stopped State = iota
	Starting
	Running
	Draining
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Draining:
		return "draining"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Option configures a Service instance.
type Option func(*Service)

// WithEventPublisher routes forwarded notification events through pub
// instead of the fabric, e.g. to mirror them into a different broker.
func WithEventPublisher(pub cbridge.EventPublisher) Option {
	return func(s *Service) { s.events = pub }
}

// Service is the lifecycle coordinator. It is the only component with
// cross-cutting lifetime authority: it owns both pools, the fabric
// registration, and the stream subscription.
type Service struct {
	cfg      cbridge.Config
	fabric   cbridge.Fabric
	stream   cbridge.NotificationStream
	events   cbridge.EventPublisher
	upstream cbridge.Upstream
	logger   *slog.Logger

	resolver      topic.Resolver
	router        *router.Router
	forwarder     *forward.Forwarder
	requestTopics []string

	state atomic.Int32

	mu            sync.Mutex
	registration  cbridge.ServiceRegistration
	subscription  cbridge.StreamSubscription
	requests      *pool.Pool[cbridge.Request]
	notifications *pool.Pool[cbridge.Notification]
}

// New validates the configuration snapshot and builds a stopped Service.
// All registration tables (operation set, topic mappings) are resolved here,
// fail fast, and never mutate afterwards. Start performs the transport I/O.
func New(
	fabric cbridge.Fabric,
	stream cbridge.NotificationStream,
	upstream cbridge.Upstream,
	cfg cbridge.Config,
	logger *slog.Logger,
	opts ...Option,
) (*Service, error) {
	if fabric == nil {
		return nil, fmt.Errorf("nil fabric: %w", berr.ErrInvalidParameters)
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	cfg, err := cfg.Normalized()
	if err != nil {
		return nil, err
	}

	if strings.Contains(cfg.ServiceID, "/") {
		return nil, fmt.Errorf("service id %q: %w", cfg.ServiceID, berr.ErrInvalidOperationName)
	}

	if len(cfg.Operations) == 0 && len(cfg.NotificationTopics) == 0 {
		return nil, fmt.Errorf("nothing to expose: %w", berr.ErrInvalidParameters)
	}

	if len(cfg.Operations) > 0 && upstream == nil {
		return nil, fmt.Errorf("operations configured without upstream: %w", berr.ErrInvalidParameters)
	}

	if len(cfg.NotificationTopics) > 0 && stream == nil {
		return nil, fmt.Errorf("notification topics configured without stream: %w", berr.ErrInvalidParameters)
	}

	s := &Service{
		cfg:      cfg,
		fabric:   fabric,
		stream:   stream,
		events:   fabric,
		upstream: upstream,
		logger:   logger,
		resolver: topic.NewResolver(cfg.ServiceID),
	}

	for _, opt := range opts {
		opt(s)
	}

	if len(cfg.Operations) > 0 {
		s.router, err = router.New(upstream, cfg.Operations, cfg.InvokeTimeout, logger)
		if err != nil {
			return nil, err
		}
	}

	s.forwarder, err = forward.New(s.events, s.resolver, cfg.NotificationTopics, logger)
	if err != nil {
		return nil, err
	}

	if s.requestTopics, err = s.resolveRequestTopics(); err != nil {
		return nil, err
	}

	if err = checkTopicUniqueness(s.requestTopics, s.forwarder.EventTopics()); err != nil {
		return nil, err
	}

	return s, nil
}

// resolveRequestTopics maps the allow-list to request topics, collapsing
// duplicate names while preserving configuration order.
func (s *Service) resolveRequestTopics() ([]string, error) {
	seen := make(map[string]struct{}, len(s.cfg.Operations))
	topics := make([]string, 0, len(s.cfg.Operations))

	for _, op := range s.cfg.Operations {
		if _, dup := seen[op]; dup {
			continue
		}

		seen[op] = struct{}{}

		t, err := s.resolver.Resolve(topic.Request, op)
		if err != nil {
			return nil, fmt.Errorf("operation %q: %w", op, err)
		}

		topics = append(topics, t)
	}

	return topics, nil
}

func checkTopicUniqueness(sets ...[]string) error {
	seen := make(map[string]struct{})

	for _, set := range sets {
		for _, t := range set {
			if _, dup := seen[t]; dup {
				return fmt.Errorf("topic %q resolved twice: %w", t, berr.ErrRegistrationConflict)
			}

			seen[t] = struct{}{}
		}
	}

	return nil
}

// State reports the current lifecycle state.
func (s *Service) State() State { return State(s.state.Load()) }

// RequestTopics returns the fabric request topics this service exposes.
func (s *Service) RequestTopics() []string {
	return append([]string(nil), s.requestTopics...)
}

// EventTopics returns the fabric topics notifications are republished on.
func (s *Service) EventTopics() []string { return s.forwarder.EventTopics() }

// NotificationStats reports forwarded and dropped notification counts.
func (s *Service) NotificationStats() (forwarded, dropped uint64) {
	return s.forwarder.Forwarded(), s.forwarder.Dropped()
}

// Start brings the service to Running: pools first, then the fabric service
// registration and the upstream subscription. Any failure rolls back to
// Stopped; a partially started service is never observable.
func (s *Service) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(Stopped), int32(Starting)) {
		return fmt.Errorf("start from %s: %w", s.State(), berr.ErrAlreadyRunning)
	}

	s.logger.Info("bridge starting",
		"service_id", s.cfg.ServiceID,
		"request_topics", len(s.requestTopics),
		"notification_topics", len(s.forwarder.Topics()))

	if err := s.startPools(); err != nil {
		s.state.Store(int32(Stopped))
		return err
	}

	if err := s.openInlets(ctx); err != nil {
		s.teardown(ctx)
		s.state.Store(int32(Stopped))

		return err
	}

	s.state.Store(int32(Running))
	s.logger.Info("bridge running")

	return nil
}

func (s *Service) startPools() error {
	requests, err := pool.New(s.cfg.RequestPool, s.processRequest, s.logger)
	if err != nil {
		return fmt.Errorf("request pool: %w", err)
	}

	notifications, err := pool.New(s.cfg.NotificationPool, s.forwarder.Forward, s.logger)
	if err != nil {
		// release the workers the first pool already started
		_ = requests.Shutdown(context.Background())
		return fmt.Errorf("notification pool: %w", err)
	}

	s.mu.Lock()
	s.requests = requests
	s.notifications = notifications
	s.mu.Unlock()

	return nil
}

// openInlets registers the request topics and opens the stream subscription
// concurrently. Either inlet may be absent when its topic set is empty.
func (s *Service) openInlets(ctx context.Context) error {
	var (
		registration cbridge.ServiceRegistration
		subscription cbridge.StreamSubscription
	)

	g, gctx := errgroup.WithContext(ctx)

	if len(s.requestTopics) > 0 {
		g.Go(func() error {
			reg, err := s.fabric.RegisterService(gctx, s.RequestTopics(), s.acceptRequest)
			if err != nil {
				return fmt.Errorf("register service: %w", err)
			}

			registration = reg

			return nil
		})
	}

	if topics := s.forwarder.Topics(); len(topics) > 0 {
		g.Go(func() error {
			sub, err := s.stream.Subscribe(gctx, topics, s.acceptNotification)
			if err != nil {
				return fmt.Errorf("subscribe notifications: %w", err)
			}

			subscription = sub

			return nil
		})
	}

	err := g.Wait()

	s.mu.Lock()
	s.registration = registration
	s.subscription = subscription
	s.mu.Unlock()

	return err
}

// acceptRequest runs on the fabric transport's delivery goroutine: it only
// enqueues. Admission rejections are final and replied to immediately so
// fabric callers never hang.
func (s *Service) acceptRequest(req cbridge.Request) {
	err := s.requests.Submit(req)
	if err == nil {
		return
	}

	s.logger.Warn("request rejected at admission",
		"topic", req.Topic, "correlation_id", req.CorrelationID, "err", err)

	if rerr := req.Respond(cbridge.FailKind(berr.KindQueueFull, "request queue full")); rerr != nil {
		s.logger.Warn("rejection reply failed", "topic", req.Topic, "err", rerr)
	}
}

// processRequest is the request pool's worker handler.
func (s *Service) processRequest(ctx context.Context, req cbridge.Request) {
	s.logger.Debug("request received", "topic", req.Topic, "operation", req.Operation)

	reply := s.router.Handle(ctx, req.Operation, req.Payload)
	if err := req.Respond(reply); err != nil {
		s.logger.Warn("reply delivery failed",
			"topic", req.Topic, "correlation_id", req.CorrelationID, "err", err)
	}
}

// acceptNotification runs on the stream transport's delivery goroutine.
// A full pool drops the message; the stream itself is best-effort.
func (s *Service) acceptNotification(n cbridge.Notification) {
	if err := s.notifications.Submit(n); err != nil {
		s.forwarder.RecordDrop(n)
	}
}

// Stop drains and stops the service. Order matters: admission closes first,
// both pools drain (bounded by DrainTimeout), the upstream subscription
// closes, and only then is the fabric service deregistered, so late replies
// never race a withdrawn service identity.
func (s *Service) Stop(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(Running), int32(Draining)) {
		return fmt.Errorf("stop from %s: %w", s.State(), berr.ErrNotRunning)
	}

	s.logger.Info("bridge draining")

	drainCtx, cancel := context.WithTimeout(ctx, s.cfg.DrainTimeout)
	defer cancel()

	var errs []error

	s.mu.Lock()
	requests, notifications := s.requests, s.notifications
	s.mu.Unlock()

	if err := requests.Shutdown(drainCtx); err != nil {
		errs = append(errs, fmt.Errorf("request pool: %w", err))
	}

	if err := notifications.Shutdown(drainCtx); err != nil {
		errs = append(errs, fmt.Errorf("notification pool: %w", err))
	}

	errs = append(errs, s.closeInlets(ctx)...)

	s.state.Store(int32(Stopped))
	s.logger.Info("bridge stopped")

	return errors.Join(errs...)
}

// teardown releases whatever Start managed to acquire, in shutdown order.
func (s *Service) teardown(ctx context.Context) {
	s.mu.Lock()
	requests, notifications := s.requests, s.notifications
	s.mu.Unlock()

	if requests != nil {
		_ = requests.Shutdown(ctx)
	}

	if notifications != nil {
		_ = notifications.Shutdown(ctx)
	}

	for _, err := range s.closeInlets(ctx) {
		s.logger.Warn("teardown", "err", err)
	}
}

func (s *Service) closeInlets(ctx context.Context) []error {
	s.mu.Lock()
	registration, subscription := s.registration, s.subscription
	s.registration, s.subscription = nil, nil
	s.mu.Unlock()

	var errs []error

	if subscription != nil {
		if err := subscription.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close stream: %w", err))
		}
	}

	if registration != nil {
		if err := registration.Deregister(ctx); err != nil {
			errs = append(errs, fmt.Errorf("deregister service: %w", err))
		}
	}

	return errs
}
