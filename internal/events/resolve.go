package events

import "time"

// ResolveStart is emitted when the pipeline begins resolving a named
// query, after the execution-context guards have admitted it.
type ResolveStart struct {
	Name  string
	Depth int
}

// ResolveFinish is emitted when a named query resolution completes,
// successfully or not.
type ResolveFinish struct {
	Name     string
	Depth    int
	Err      error
	Duration time.Duration
}

// TransformStart is emitted before a query's transformer runs.
type TransformStart struct {
	Name string
}

// TransformFinish is emitted after a query's transformer completes.
type TransformFinish struct {
	Name     string
	Err      error
	Duration time.Duration
}

// Warning is emitted for tolerated, non-fatal conditions: transformer
// fallback to raw data, user-library load failure, unparsable declared
// variables.
type Warning struct {
	Scope   string // "sandbox", "userlib", "variables"
	Name    string // query name, when known
	Message string
}
