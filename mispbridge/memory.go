package mispbridge

import (
	"log/slog"

	"github.com/next-trace/scg-misp-bridge/adapters/inmemory"
	cbridge "github.com/next-trace/scg-misp-bridge/contract/bridge"
)

// NewInMemory constructs a Service backed by in-memory fabric and stream
// adapters, returning both so callers can inject requests and notifications.
// Intended for tests and examples.
func NewInMemory(upstream cbridge.Upstream, cfg cbridge.Config, logger *slog.Logger, opts ...Option) (*Service, *inmemory.Fabric, *inmemory.Stream, error) {
	fabric := inmemory.NewFabric()
	stream := inmemory.NewStream()

	svc, err := New(fabric, stream, upstream, cfg, logger, opts...)
	if err != nil {
		return nil, nil, nil, err
	}

	return svc, fabric, stream, nil
}
