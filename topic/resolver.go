// Package topic maps logical operation and notification names to fully
// qualified fabric topic strings.
package topic

import (
	"fmt"
	"strings"

	berr "github.com/next-trace/scg-misp-bridge/contract/errors"
)

// Root is the fixed namespace all bridge topics live under.
const Root = "/opendxl-misp"

const (
	delimiter = "/"

	requestClass  = "service"
	requestSystem = "misp-api"

	eventClass  = "event"
	eventSystem = "zeromq-notifications"
)

// Kind selects between the request (service) and event topic families.
type Kind int

const (
	// Request resolves under <root>/service/misp-api.
	Request Kind = iota
	// Event resolves under <root>/event/zeromq-notifications.
	Event
)

// Resolver derives fabric topics. It is pure and deterministic; the only
// state is the immutable service identity fixed at construction.
type Resolver struct {
	identity string
}

// NewResolver builds a Resolver. An empty identity omits the identity
// segment from every resolved topic rather than leaving it empty.
func NewResolver(identity string) Resolver { return Resolver{identity: identity} }

// Identity returns the service identity segment, possibly empty.
func (r Resolver) Identity() string { return r.identity }

// Resolve maps an operation name (Request) or upstream notification topic
// (Event) to its fabric topic. Names containing the segment delimiter are
// rejected so callers cannot inject extra path segments.
func (r Resolver) Resolve(kind Kind, name string) (string, error) {
	if name == "" || strings.Contains(name, delimiter) {
		return "", fmt.Errorf("resolve %q: %w", name, berr.ErrInvalidOperationName)
	}

	class, system := requestClass, requestSystem
	if kind == Event {
		class, system = eventClass, eventSystem
	}

	segments := make([]string, 0, 4)
	segments = append(segments, Root, class, system)

	if r.identity != "" {
		segments = append(segments, r.identity)
	}

	segments = append(segments, name)

	return strings.Join(segments, delimiter), nil
}

// Leaf returns the final segment of a fabric topic, which for request
// topics is the operation name the topic was resolved from.
func Leaf(topic string) string {
	if i := strings.LastIndex(topic, delimiter); i >= 0 {
		return topic[i+1:]
	}

	return topic
}
