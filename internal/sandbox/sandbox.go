// Package sandbox executes user-supplied transformer code against a
// query's raw result inside an embedded Go interpreter. The code runs
// with a fixed, explicit capability set: a deep copy of the raw data, a
// query callback for resolving other named queries, a small whitelist
// of read-only helper packages, and an optional user helper library.
// The host's filesystem, network, and process surface are never
// reachable from transformer code.
package sandbox

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	eventbus "github.com/queryline/queryline/internal/eventbus"
	events "github.com/queryline/queryline/internal/events"
	result "github.com/queryline/queryline/internal/result"
)

// QueryFunc resolves another named query from inside transformer code.
// It is bound by the caller to the shared execution context, so cycle
// and depth guards apply to sandbox-triggered resolutions too.
type QueryFunc func(name string) (*result.Set, error)

// Error reports a transformer failure with enough detail to present a
// diagnostic. The interpreter's message carries the source position.
type Error struct {
	Name string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transformer for %q failed: %v", e.Name, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Helper packages importable by user library source. Transformer bodies
// cannot import; the wrapper pre-binds every package on this list.
var allowedImports = map[string]bool{
	"errors":        true,
	"fmt":           true,
	"math":          true,
	"regexp":        true,
	"sort":          true,
	"strconv":       true,
	"strings":       true,
	"time":          true,
	"encoding/json": true,
}

const entrypoint = "RunTransform"

// wrapper turns the transformer body into a callable function. The
// blank assignments keep the pre-bound helper packages compilable when
// the body does not use them; the trailing return makes an explicit
// return optional, mirroring a body that "completes without a return".
const wrapper = `package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"queryline/result"
)

var (
	_ = json.Marshal
	_ = errors.New
	_ = fmt.Sprintf
	_ = math.Abs
	_ = regexp.MustCompile
	_ = sort.Strings
	_ = strconv.Itoa
	_ = strings.TrimSpace
	_ = time.Now
	_ = result.NewSet
)

func RunTransform(data *result.Set, query func(name string) (*result.Set, error)) (out interface{}, err error) {
%s
	return out, err
}
`

// Run executes code with data and query in scope and returns the
// transformed result set.
//
// Contract, in order:
//   - library source that fails to evaluate degrades to no library plus
//     a Warning event; it never fails the transformer;
//   - an evaluation or runtime failure of the code propagates as *Error;
//   - a nil result falls back to the input data with a Warning;
//   - a result that is neither a *result.Set nor a plain key→value map
//     is discarded, falling back to the input with a Warning.
//
// The caller passes an isolated deep copy as data; Run hands it to the
// code directly.
func Run(ctx context.Context, name, code string, data *result.Set, query QueryFunc, library string) (*result.Set, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, &Error{Name: name, Err: err}
	}
	if err := i.Use(resultExports()); err != nil {
		return nil, &Error{Name: name, Err: err}
	}

	if library != "" {
		if err := evalLibrary(i, library); err != nil {
			eventbus.Publish(ctx, events.Warning{
				Scope:   "userlib",
				Name:    name,
				Message: fmt.Sprintf("helper library unavailable: %v", err),
			})
		}
	}

	out, err := call(i, name, code, data, query)
	if err != nil {
		return nil, err
	}

	switch v := out.(type) {
	case nil:
		eventbus.Publish(ctx, events.Warning{
			Scope:   "sandbox",
			Name:    name,
			Message: "transformer returned no value; keeping raw result",
		})
		return data, nil
	case *result.Set:
		return v, nil
	case map[string]any:
		return result.FromMap(v), nil
	case map[string][]result.Row:
		s := result.FromMap(toAnyMap(v))
		return s, nil
	default:
		eventbus.Publish(ctx, events.Warning{
			Scope:   "sandbox",
			Name:    name,
			Message: fmt.Sprintf("transformer returned %T, not a result set; keeping raw result", out),
		})
		return data, nil
	}
}

// call evaluates the wrapped code and invokes the entrypoint, turning
// interpreter panics into errors.
func call(i *interp.Interpreter, name, code string, data *result.Set, query QueryFunc) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &Error{Name: name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if _, evalErr := i.Eval(fmt.Sprintf(wrapper, code)); evalErr != nil {
		return nil, &Error{Name: name, Err: evalErr}
	}
	v, evalErr := i.Eval("main." + entrypoint)
	if evalErr != nil {
		return nil, &Error{Name: name, Err: evalErr}
	}
	fn, ok := v.Interface().(func(*result.Set, func(string) (*result.Set, error)) (interface{}, error))
	if !ok {
		return nil, &Error{Name: name, Err: fmt.Errorf("unexpected entrypoint signature %T", v.Interface())}
	}

	out, callErr := fn(data, query)
	if callErr != nil {
		return nil, &Error{Name: name, Err: callErr}
	}
	return out, nil
}

// evalLibrary evaluates user helper source into the interpreter's main
// package so transformer bodies can call its functions directly.
func evalLibrary(i *interp.Interpreter, source string) error {
	if err := validateImports(source); err != nil {
		return err
	}
	src := source
	if !strings.Contains(src, "package ") {
		src = "package main\n\n" + src
	}
	_, err := i.Eval(src)
	return err
}

// validateImports rejects library source importing anything outside the
// whitelist. Transformer bodies have no import position at all, so only
// library source is checked.
func validateImports(source string) error {
	var forbidden []string
	inBlock := false
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
		case inBlock && strings.HasPrefix(trimmed, ")"):
			inBlock = false
		case inBlock:
			if pkg := importPath(trimmed); pkg != "" && !allowed(pkg) {
				forbidden = append(forbidden, pkg)
			}
		case strings.HasPrefix(trimmed, "import "):
			if pkg := importPath(strings.TrimPrefix(trimmed, "import ")); pkg != "" && !allowed(pkg) {
				forbidden = append(forbidden, pkg)
			}
		}
	}
	if len(forbidden) > 0 {
		return fmt.Errorf("forbidden imports: %s", strings.Join(forbidden, ", "))
	}
	return nil
}

func allowed(pkg string) bool {
	return allowedImports[pkg] || pkg == "queryline/result"
}

func importPath(s string) string {
	s = strings.TrimSpace(s)
	// Strip an import alias if present.
	if idx := strings.IndexByte(s, '"'); idx > 0 {
		s = s[idx:]
	}
	return strings.Trim(s, `"`)
}

// resultExports exposes the result package to interpreted code under
// the import path "queryline/result".
func resultExports() interp.Exports {
	return interp.Exports{
		"queryline/result/result": {
			"Set":     reflect.ValueOf((*result.Set)(nil)),
			"Row":     reflect.ValueOf((*result.Row)(nil)),
			"NewSet":  reflect.ValueOf(result.NewSet),
			"FromMap": reflect.ValueOf(result.FromMap),
			"Rows":    reflect.ValueOf(result.Rows),
		},
	}
}

func toAnyMap(m map[string][]result.Row) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
