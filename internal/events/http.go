package events

import "time"

// HTTPStart is emitted before an outbound GraphQL request is issued.
type HTTPStart struct {
	Endpoint string
}

// HTTPFinish is emitted after the outbound request completes. Status is
// zero when the request failed before receiving a response.
type HTTPFinish struct {
	Endpoint string
	Status   int
	Err      error
	Duration time.Duration
}
