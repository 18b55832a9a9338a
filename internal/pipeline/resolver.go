// Package pipeline resolves named query definitions against GraphQL
// endpoints. A resolution loads the definition, merges variables,
// issues the request, extracts the relevant result sets, and runs the
// definition's transformer, which may recursively resolve other named
// queries through the same shared Context.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	endpoints "github.com/queryline/queryline/internal/endpoints"
	eventbus "github.com/queryline/queryline/internal/eventbus"
	events "github.com/queryline/queryline/internal/events"
	extract "github.com/queryline/queryline/internal/extract"
	result "github.com/queryline/queryline/internal/result"
	sandbox "github.com/queryline/queryline/internal/sandbox"
	store "github.com/queryline/queryline/internal/store"
	transport "github.com/queryline/queryline/internal/transport"
	userlib "github.com/queryline/queryline/internal/userlib"
	vars "github.com/queryline/queryline/internal/vars"
)

// Client sends one GraphQL request. Implemented by transport.Client.
type Client interface {
	Send(ctx context.Context, query string, variables map[string]any, endpoint, credential string) (*transport.Response, error)
}

// Options carries the per-call inputs of one Resolve invocation.
type Options struct {
	// DefaultEndpoint and DefaultCredential are used when the definition
	// declares no endpoint selector. Nested resolutions triggered by a
	// transformer inherit the parent's resolved endpoint instead.
	DefaultEndpoint   string
	DefaultCredential string
	// Variables override same-named declared variables.
	Variables map[string]any
	// TimeRange derives startDate/endDate variables that override
	// everything else.
	TimeRange *vars.TimeRange
}

// Resolver orchestrates the resolution pipeline. Safe for concurrent
// use as long as each top-level Resolve call gets its own Context.
type Resolver struct {
	store     store.Store
	endpoints *endpoints.Config
	client    Client
	library   userlib.Loader
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLibrary sets the loader for the optional user helper library
// exposed to transformer code.
func WithLibrary(l userlib.Loader) ResolverOption {
	return func(r *Resolver) { r.library = l }
}

// NewResolver creates a Resolver over the given collaborators.
func NewResolver(st store.Store, eps *endpoints.Config, client Client, opts ...ResolverOption) *Resolver {
	r := &Resolver{store: st, endpoints: eps, client: client, library: userlib.None{}}
	for _, f := range opts {
		f(r)
	}
	return r
}

// Resolve resolves the named query through ectx and returns the
// cleaned result set. Guard and definition failures are reported
// before any network call; nothing is retried; every failure carries a
// Kind the caller can present without re-deriving it.
func (r *Resolver) Resolve(ctx context.Context, name string, ectx *Context, opts Options) (*result.Set, error) {
	if err := ectx.enter(name); err != nil {
		return nil, err
	}
	defer ectx.leave(name)

	start := time.Now()
	eventbus.Publish(ctx, events.ResolveStart{Name: name, Depth: ectx.Depth()})
	set, err := r.resolve(ctx, name, ectx, opts)
	eventbus.Publish(ctx, events.ResolveFinish{Name: name, Depth: ectx.Depth(), Err: err, Duration: time.Since(start)})
	return set, err
}

func (r *Resolver) resolve(ctx context.Context, name string, ectx *Context, opts Options) (*result.Set, error) {
	def, err := r.store.Load(ctx, name)
	if err != nil {
		return nil, &Error{Kind: KindStore, Name: name, Message: fmt.Sprintf("load query %q: %v", name, err), Err: err}
	}
	if def == nil {
		return nil, &Error{Kind: KindNotFound, Name: name, Message: fmt.Sprintf("no query named %q", name)}
	}
	if isBlank(def.Query) {
		return nil, &Error{Kind: KindEmptyBody, Name: name, Message: fmt.Sprintf("query %q has an empty body", name)}
	}

	endpoint, credential := opts.DefaultEndpoint, opts.DefaultCredential
	if def.Endpoint != "" {
		ep := r.endpoints.Resolve(def.Endpoint)
		endpoint, credential = ep.URL, ep.Credential
	}
	if endpoint == "" {
		return nil, &Error{Kind: KindNoEndpoint, Name: name, Message: fmt.Sprintf("no endpoint resolvable for query %q", name)}
	}
	ectx.setEndpoint(name, endpoint)

	declared, parseErr := vars.ParseDeclared(def.Variables)
	if parseErr != nil {
		eventbus.Publish(ctx, events.Warning{Scope: "variables", Name: name, Message: parseErr.Error()})
	}
	merged := vars.Merge(declared, opts.Variables, opts.TimeRange)

	resp, err := r.client.Send(ctx, def.Query, merged, endpoint, credential)
	if err != nil {
		return nil, wrapTransport(name, err)
	}
	if ibe := resp.InBand(endpoint); ibe != nil {
		return nil, wrapTransport(name, ibe)
	}

	working := extract.Extract(resp.Data, def.Query)

	if def.Transform != "" {
		working, err = r.transform(ctx, name, def.Transform, working, ectx, endpoint, credential)
		if err != nil {
			return nil, err
		}
	}

	return working.Clean(), nil
}

// transform runs the definition's transformer over a deep copy of the
// raw result, with a query callback that re-enters Resolve through the
// same shared Context. Nested calls inherit this query's resolved
// endpoint, not the caller's original default.
func (r *Resolver) transform(ctx context.Context, name, code string, raw *result.Set, ectx *Context, endpoint, credential string) (*result.Set, error) {
	library := ""
	if src, err := r.library.Load(); err != nil {
		eventbus.Publish(ctx, events.Warning{Scope: "userlib", Name: name, Message: err.Error()})
	} else {
		library = src
	}

	query := func(nested string) (*result.Set, error) {
		return r.Resolve(ctx, nested, ectx, Options{
			DefaultEndpoint:   endpoint,
			DefaultCredential: credential,
		})
	}

	start := time.Now()
	eventbus.Publish(ctx, events.TransformStart{Name: name})
	out, err := sandbox.Run(ctx, name, code, raw.Clone(), query, library)
	eventbus.Publish(ctx, events.TransformFinish{Name: name, Err: err, Duration: time.Since(start)})
	if err != nil {
		// A failed nested resolution keeps its own kind and chain; only
		// errors raised by the transformer itself classify as sandbox.
		var pe *Error
		if errors.As(err, &pe) {
			return nil, pe
		}
		return nil, wrapTransport(name, err)
	}
	return out, nil
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
