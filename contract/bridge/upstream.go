package bridge

import "context"

// Upstream is the narrow collaborator interface over the threat-intelligence
// API: name and parameters in, raw response or error out. The core never
// assumes more surface than this.
type Upstream interface {
	Invoke(ctx context.Context, operation string, params map[string]any) ([]byte, error)
}

// OperationLister is optionally implemented by Upstream clients that know
// their callable operation set ahead of time. The router uses it to fail
// fast when an allow-listed name has no upstream binding.
type OperationLister interface {
	Supports(operation string) bool
}
