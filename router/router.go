// Package router dispatches fabric requests to the upstream API collaborator
// against a fixed allow-list of operation names.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/next-trace/scg-misp-bridge/contract/bridge"
	berr "github.com/next-trace/scg-misp-bridge/contract/errors"
)

// Router validates fabric requests and invokes the upstream collaborator.
// Its operation set is built once at construction and immutable afterwards,
// so Handle needs no locking and is safe for concurrent use.
type Router struct {
	upstream bridge.Upstream
	ops      map[string]struct{}
	timeout  time.Duration
	logger   *slog.Logger
}

// New builds a Router for the given allow-list. Duplicate names collapse;
// names that cannot form a topic segment are rejected, and when the upstream
// reports its callable set, allow-listed names it cannot serve fail fast.
func New(upstream bridge.Upstream, operations []string, timeout time.Duration, logger *slog.Logger) (*Router, error) {
	if upstream == nil {
		return nil, fmt.Errorf("nil upstream: %w", berr.ErrInvalidParameters)
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	lister, _ := upstream.(bridge.OperationLister)
	ops := make(map[string]struct{}, len(operations))

	for _, name := range operations {
		if name == "" {
			return nil, fmt.Errorf("empty operation name: %w", berr.ErrInvalidOperationName)
		}

		if lister != nil && !lister.Supports(name) {
			return nil, fmt.Errorf("operation %q has no upstream binding: %w", name, berr.ErrRegistrationConflict)
		}

		ops[name] = struct{}{}
	}

	return &Router{upstream: upstream, ops: ops, timeout: timeout, logger: logger}, nil
}

// Operations returns the registered allow-list, order unspecified.
func (r *Router) Operations() []string {
	out := make([]string, 0, len(r.ops))
	for name := range r.ops {
		out = append(out, name)
	}

	return out
}

// Handle routes one request: allow-list check, parameter decode, upstream
// call bounded by the configured timeout. Every failure maps into the closed
// reply taxonomy; nothing upstream-raw ever reaches the fabric.
func (r *Router) Handle(ctx context.Context, operation string, payload []byte) bridge.Reply {
	if _, ok := r.ops[operation]; !ok {
		r.logger.Debug("operation not in allow-list", "operation", operation)
		return bridge.FailKind(berr.KindUnknownOperation, fmt.Sprintf("unknown operation %q", operation))
	}

	params, err := decodeParams(payload)
	if err != nil {
		return bridge.FailKind(berr.KindInvalidParameters, err.Error())
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)

		defer cancel()
	}

	res, err := r.upstream.Invoke(ctx, operation, params)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("upstream call timed out: %w", berr.ErrUpstreamUnreachable)
		}

		r.logger.Warn("upstream call failed", "operation", operation, "err", err)

		return bridge.Fail(err)
	}

	return bridge.OK(res)
}

// decodeParams parses the request payload into the upstream argument map.
// An empty payload means no arguments. A digit-string "event" value is
// coerced to an integer, matching what upstream endpoints expect for event
// identifiers.
func decodeParams(payload []byte) (map[string]any, error) {
	if len(payload) == 0 {
		return map[string]any{}, nil
	}

	var params map[string]any
	if err := json.Unmarshal(payload, &params); err != nil {
		return nil, fmt.Errorf("decode parameters: %w", errors.Join(berr.ErrInvalidParameters, err))
	}

	if params == nil {
		params = map[string]any{}
	}

	if s, ok := params["event"].(string); ok && isDigits(s) {
		if id, convErr := strconv.Atoi(s); convErr == nil {
			params["event"] = id
		}
	}

	return params, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}

	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}

	return true
}
