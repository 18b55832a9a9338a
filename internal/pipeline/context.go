package pipeline

import (
	"fmt"
	"strings"
)

const defaultMaxDepth = 10

// flight is the in-flight metadata for one active query name.
type flight struct {
	endpoint string
}

// Context is the per-top-level-invocation shared state of one
// resolution chain: the in-flight set, the dependency stack, and the
// depth ceiling. It is owned by exactly one top-level Resolve call and
// passed by reference through every recursive descent; it is not safe
// for use by two independently started invocations.
type Context struct {
	inFlight map[string]*flight
	stack    []string
	maxDepth int
}

// ContextOption configures a Context at creation.
type ContextOption func(*Context)

// WithMaxDepth sets the ceiling on dependency-stack length. Values
// below one keep the default.
func WithMaxDepth(n int) ContextOption {
	return func(c *Context) {
		if n > 0 {
			c.maxDepth = n
		}
	}
}

// NewContext creates the shared state for one top-level invocation.
func NewContext(opts ...ContextOption) *Context {
	c := &Context{
		inFlight: make(map[string]*flight),
		maxDepth: defaultMaxDepth,
	}
	for _, f := range opts {
		f(c)
	}
	return c
}

// Depth returns the current dependency-stack length.
func (c *Context) Depth() int { return len(c.stack) }

// Chain returns the dependency chain from the top-level query down to
// the current one.
func (c *Context) Chain() []string {
	out := make([]string, len(c.stack))
	copy(out, c.stack)
	return out
}

// InFlight returns the names currently registered as executing.
func (c *Context) InFlight() []string {
	out := make([]string, 0, len(c.inFlight))
	for name := range c.inFlight {
		out = append(out, name)
	}
	return out
}

// enter admits name into the chain. Checks run in a fixed order: cycle
// first, then depth, then the in-flight set. The in-flight check stays
// separate from the cycle check: it catches the same name arriving from
// two sibling branches, which the stack alone cannot see.
func (c *Context) enter(name string) error {
	for _, onStack := range c.stack {
		if onStack == name {
			return &Error{
				Kind:    KindCycle,
				Name:    name,
				Message: fmt.Sprintf("query %q depends on itself: %s", name, chainString(c.stack, name)),
				Chain:   append(c.Chain(), name),
			}
		}
	}
	if len(c.stack) >= c.maxDepth {
		return &Error{
			Kind:    KindDepthExceeded,
			Name:    name,
			Message: fmt.Sprintf("dependency chain exceeds max depth %d: %s", c.maxDepth, chainString(c.stack, name)),
			Chain:   append(c.Chain(), name),
		}
	}
	if _, active := c.inFlight[name]; active {
		return &Error{
			Kind:    KindAlreadyInFlight,
			Name:    name,
			Message: fmt.Sprintf("query %q is already executing", name),
			Chain:   append(c.Chain(), name),
		}
	}
	c.inFlight[name] = &flight{}
	c.stack = append(c.stack, name)
	return nil
}

// leave unregisters name and pops the stack. It runs in a deferred
// block for every successful enter, so a failed chain never leaves
// stale entries behind.
func (c *Context) leave(name string) {
	delete(c.inFlight, name)
	if len(c.stack) > 0 {
		c.stack = c.stack[:len(c.stack)-1]
	}
}

// setEndpoint records the endpoint a query resolved to, once known.
func (c *Context) setEndpoint(name, endpoint string) {
	if f, ok := c.inFlight[name]; ok {
		f.endpoint = endpoint
	}
}

func chainString(stack []string, next string) string {
	return strings.Join(append(append([]string{}, stack...), next), " → ")
}
