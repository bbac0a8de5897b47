package bridge

import (
	"fmt"
	"time"

	berr "github.com/next-trace/scg-misp-bridge/contract/errors"
)

// Defaults mirror the original service's configuration surface.
const (
	DefaultQueueCapacity = 1000
	DefaultWorkerCount   = 10
	DefaultDrainTimeout  = 30 * time.Second
	DefaultInvokeTimeout = 60 * time.Second
)

// PoolConfig sizes one bounded dispatch pool. Zero values take defaults;
// negative values are rejected.
type PoolConfig struct {
	QueueCapacity int
	WorkerCount   int
}

func (p PoolConfig) normalized(name string) (PoolConfig, error) {
	if p.QueueCapacity < 0 {
		return p, fmt.Errorf("%s queue capacity %d: %w", name, p.QueueCapacity, berr.ErrInvalidParameters)
	}

	if p.WorkerCount < 0 {
		return p, fmt.Errorf("%s worker count %d: %w", name, p.WorkerCount, berr.ErrInvalidParameters)
	}

	if p.QueueCapacity == 0 {
		p.QueueCapacity = DefaultQueueCapacity
	}

	if p.WorkerCount == 0 {
		p.WorkerCount = DefaultWorkerCount
	}

	return p, nil
}

// Config is the validated configuration snapshot the bridge consumes.
// File parsing happens elsewhere; the core only sees final values.
// The snapshot is copied at construction and never mutated afterwards.
type Config struct {
	// ServiceID is the optional unique topic segment. Empty omits the
	// segment entirely.
	ServiceID string

	// Operations is the allow-list of upstream API operation names.
	Operations []string

	// NotificationTopics is the upstream notification topic subscription set.
	NotificationTopics []string

	// RequestPool sizes admission control for inbound fabric requests,
	// NotificationPool for inbound notification messages.
	RequestPool      PoolConfig
	NotificationPool PoolConfig

	// InvokeTimeout bounds one upstream API call. DrainTimeout bounds how
	// long shutdown waits for in-flight work before abandoning it.
	InvokeTimeout time.Duration
	DrainTimeout  time.Duration
}

// Normalized returns a copy with defaults applied, or an error for values
// that cannot be defaulted away.
func (c Config) Normalized() (Config, error) {
	var err error
	if c.RequestPool, err = c.RequestPool.normalized("request pool"); err != nil {
		return c, err
	}

	if c.NotificationPool, err = c.NotificationPool.normalized("notification pool"); err != nil {
		return c, err
	}

	if c.InvokeTimeout < 0 || c.DrainTimeout < 0 {
		return c, fmt.Errorf("negative timeout: %w", berr.ErrInvalidParameters)
	}

	if c.InvokeTimeout == 0 {
		c.InvokeTimeout = DefaultInvokeTimeout
	}

	if c.DrainTimeout == 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}

	c.Operations = append([]string(nil), c.Operations...)
	c.NotificationTopics = append([]string(nil), c.NotificationTopics...)

	return c, nil
}
