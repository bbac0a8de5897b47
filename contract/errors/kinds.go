package errors

import "errors"

// Wire-level kind strings placed in the "kind" field of error replies.
// These travel across the fabric; renaming one is a breaking change.
const (
	KindUnknownOperation     = "unknown_operation"
	KindInvalidParameters    = "invalid_parameters"
	KindUpstreamUnreachable  = "upstream_unreachable"
	KindUpstreamRejected     = "upstream_rejected"
	KindTLSTrustFailure      = "tls_trust_failure"
	KindQueueFull            = "queue_full"
	KindInvalidOperationName = "invalid_operation_name"
)

var kindTable = []struct {
	sentinel error
	kind     string
}{
	{ErrUnknownOperation, KindUnknownOperation},
	{ErrInvalidParameters, KindInvalidParameters},
	{ErrUpstreamUnreachable, KindUpstreamUnreachable},
	{ErrUpstreamRejected, KindUpstreamRejected},
	{ErrTLSTrustFailure, KindTLSTrustFailure},
	{ErrQueueFull, KindQueueFull},
	{ErrInvalidOperationName, KindInvalidOperationName},
}

// KindOf maps an error to its wire kind. Errors outside the per-request
// taxonomy collapse to KindUpstreamRejected so the reply contract stays
// closed regardless of upstream cause.
func KindOf(err error) string {
	for _, e := range kindTable {
		if errors.Is(err, e.sentinel) {
			return e.kind
		}
	}

	return KindUpstreamRejected
}
