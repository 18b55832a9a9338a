// Package userlib loads the optional library of user-defined helper
// functions made available to transformer code. The library is plain Go
// source kept outside the repository (a shared, versioned file) and is
// re-read on every resolution so edits take effect immediately.
package userlib

// Loader fetches the helper library source. An empty string means no
// library. Load failures are non-fatal to the pipeline: the caller
// degrades to an empty capability and emits a warning.
type Loader interface {
	Load() (source string, err error)
}

// None is the no-library loader.
type None struct{}

func (None) Load() (string, error) { return "", nil }

// Source serves fixed in-memory library source, mainly for tests and
// embedders.
type Source string

func (s Source) Load() (string, error) { return string(s), nil }
