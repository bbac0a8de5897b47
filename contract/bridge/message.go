package bridge

import (
	json "github.com/goccy/go-json"

	berr "github.com/next-trace/scg-misp-bridge/contract/errors"
)

// Request is one fabric request awaiting routing. It carries enough context
// to complete or fail independently of any other request.
type Request struct {
	// Topic is the fully qualified fabric topic the request arrived on.
	Topic string
	// Operation is the topic's leaf segment, naming the upstream operation.
	Operation string
	// CorrelationID identifies the reply channel on the fabric side.
	CorrelationID string
	// Payload is the operation's structured argument list as JSON.
	Payload []byte

	respond func(Reply) error
}

// NewRequest builds a Request. Transports supply respond, which delivers the
// reply back over the fabric; it is invoked at most once per request.
func NewRequest(topic, operation, correlationID string, payload []byte, respond func(Reply) error) Request {
	return Request{
		Topic:         topic,
		Operation:     operation,
		CorrelationID: correlationID,
		Payload:       payload,
		respond:       respond,
	}
}

// Respond delivers the reply for this request over the originating transport.
func (r Request) Respond(rep Reply) error {
	if r.respond == nil {
		return nil
	}

	return r.respond(rep)
}

// ReplyError is the structured error object of an error reply.
type ReplyError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Reply is the outcome of one request: either a success payload (the upstream
// response, verbatim) or a ReplyError. Exactly one of the two is set.
type Reply struct {
	Payload []byte
	Err     *ReplyError
}

// OK builds a success reply carrying the upstream response verbatim.
func OK(payload []byte) Reply { return Reply{Payload: payload} }

// Fail builds an error reply, deriving the wire kind from the error's code.
func Fail(err error) Reply {
	return Reply{Err: &ReplyError{Kind: berr.KindOf(err), Message: err.Error()}}
}

// FailKind builds an error reply with an explicit wire kind.
func FailKind(kind, message string) Reply {
	return Reply{Err: &ReplyError{Kind: kind, Message: message}}
}

type errorEnvelope struct {
	Error *ReplyError `json:"error"`
}

// Wire encodes the reply for transmission: the success payload unchanged, or
// an {"error": {...}} envelope. Encoding an error reply cannot fail.
func (r Reply) Wire() []byte {
	if r.Err == nil {
		return r.Payload
	}

	b, err := json.Marshal(errorEnvelope{Error: r.Err})
	if err != nil {
		// Kind and Message are plain strings; this is unreachable.
		return []byte(`{"error":{"kind":"` + r.Err.Kind + `"}}`)
	}

	return b
}
