package errors

// Error codes for the bridge contracts. Keep stable; used across adapters and the core.
const (
	ErrCodeUnknownOperation     = "mispbridge.unknown_operation"
	ErrCodeInvalidParameters    = "mispbridge.invalid_parameters"
	ErrCodeUpstreamUnreachable  = "mispbridge.upstream_unreachable"
	ErrCodeUpstreamRejected     = "mispbridge.upstream_rejected"
	ErrCodeTLSTrustFailure      = "mispbridge.tls_trust_failure"
	ErrCodeQueueFull            = "mispbridge.queue_full"
	ErrCodeInvalidOperationName = "mispbridge.invalid_operation_name"
	ErrCodeRegistrationConflict = "mispbridge.registration_conflict"
	ErrCodeNotRunning           = "mispbridge.not_running"
	ErrCodeAlreadyRunning       = "mispbridge.already_running"
	ErrCodeDrainTimeout         = "mispbridge.drain_timeout"
	ErrCodeEventPublishFailed   = "mispbridge.event_publish_failed"
	ErrCodeFabricUnavailable    = "mispbridge.fabric_unavailable"
)

// Code returns an error value that carries only a code string.
// It implements error by returning the code string in Error().
func Code(code string) error { return codedError(code) }

type codedError string

func (e codedError) Error() string { return string(e) }

var (
	ErrUnknownOperation     = Code(ErrCodeUnknownOperation)
	ErrInvalidParameters    = Code(ErrCodeInvalidParameters)
	ErrUpstreamUnreachable  = Code(ErrCodeUpstreamUnreachable)
	ErrUpstreamRejected     = Code(ErrCodeUpstreamRejected)
	ErrTLSTrustFailure      = Code(ErrCodeTLSTrustFailure)
	ErrQueueFull            = Code(ErrCodeQueueFull)
	ErrInvalidOperationName = Code(ErrCodeInvalidOperationName)
	ErrRegistrationConflict = Code(ErrCodeRegistrationConflict)
	ErrNotRunning           = Code(ErrCodeNotRunning)
	ErrAlreadyRunning       = Code(ErrCodeAlreadyRunning)
	ErrDrainTimeout         = Code(ErrCodeDrainTimeout)
	ErrEventPublishFailed   = Code(ErrCodeEventPublishFailed)
	ErrFabricUnavailable    = Code(ErrCodeFabricUnavailable)
)
