package transport

import "fmt"

// NetworkError wraps a transport-level failure: DNS, connection
// refused, timeout, or any other failure before an HTTP response was
// received.
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error calling %s: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError reports a non-success status code. Message is the best
// human-readable message extractable from the response body.
type HTTPError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("endpoint %s returned status %d: %s", e.Endpoint, e.Status, e.Message)
}

// DecodeError reports a success status whose body was not a valid
// GraphQL response document. Preview holds a truncated slice of the raw
// body.
type DecodeError struct {
	Endpoint string
	Preview  string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("undecodable response from %s: %v (body: %s)", e.Endpoint, e.Err, e.Preview)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// InBandError reports application-level errors carried inside an
// otherwise successful response. Response.InBand builds one from a
// decoded response; classification is the caller's job.
type InBandError struct {
	Endpoint string
	Errors   []GraphQLError
}

func (e *InBandError) Error() string {
	if len(e.Errors) == 0 {
		return "graphql response reported errors"
	}
	return fmt.Sprintf("graphql error: %s", e.Errors[0].Message)
}
