package pipeline

import (
	"errors"
	"fmt"
	"strings"

	sandbox "github.com/queryline/queryline/internal/sandbox"
	transport "github.com/queryline/queryline/internal/transport"
)

// Kind classifies a resolution failure. Guard kinds fail before any
// I/O; definition kinds fail before the network call; the rest surface
// transport, in-band, or transformer failures.
type Kind int

const (
	KindUnknown Kind = iota
	KindCycle
	KindDepthExceeded
	KindAlreadyInFlight
	KindNotFound
	KindStore
	KindEmptyBody
	KindNoEndpoint
	KindNetwork
	KindHTTP
	KindDecode
	KindInBand
	KindSandbox
)

var kindNames = map[Kind]string{
	KindUnknown:         "unknown",
	KindCycle:           "cycle",
	KindDepthExceeded:   "depth_exceeded",
	KindAlreadyInFlight: "already_in_flight",
	KindNotFound:        "not_found",
	KindStore:           "store",
	KindEmptyBody:       "empty_body",
	KindNoEndpoint:      "no_endpoint",
	KindNetwork:         "network",
	KindHTTP:            "http",
	KindDecode:          "decode",
	KindInBand:          "in_band",
	KindSandbox:         "sandbox",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Error is the one error shape a top-level caller receives: kind,
// message, the query name, and where relevant the dependency chain and
// HTTP status.
type Error struct {
	Kind    Kind
	Name    string
	Message string
	Chain   []string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if len(e.Chain) > 0 {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, msg, strings.Join(e.Chain, " → "))
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, &Error{Kind: k}) match on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf extracts the Kind from any error produced by the pipeline.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// wrapTransport maps transport-layer errors onto pipeline kinds.
func wrapTransport(name string, err error) error {
	var (
		ne *transport.NetworkError
		he *transport.HTTPError
		de *transport.DecodeError
		ie *transport.InBandError
		se *sandbox.Error
	)
	switch {
	case errors.As(err, &ne):
		return &Error{Kind: KindNetwork, Name: name, Message: ne.Error(), Err: err}
	case errors.As(err, &he):
		return &Error{Kind: KindHTTP, Name: name, Message: he.Message, Status: he.Status, Err: err}
	case errors.As(err, &de):
		return &Error{Kind: KindDecode, Name: name, Message: de.Error(), Err: err}
	case errors.As(err, &ie):
		return &Error{Kind: KindInBand, Name: name, Message: ie.Error(), Err: err}
	case errors.As(err, &se):
		return &Error{Kind: KindSandbox, Name: name, Message: se.Error(), Err: err}
	default:
		return err
	}
}
