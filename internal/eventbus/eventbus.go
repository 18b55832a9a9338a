// Package eventbus is a small in-process pub/sub used to decouple the
// pipeline from observability concerns (tracing, logging). Subscribers
// run synchronously on the publishing goroutine.
package eventbus

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
)

// Handler processes events of type T.
type Handler[T any] func(context.Context, T)

type entry struct {
	id int64
	fn func(context.Context, any)
}

// Bus dispatches events to handlers registered for their dynamic type.
type Bus struct {
	mu      sync.RWMutex
	nextID  int64
	entries map[reflect.Type][]entry
}

// New creates an empty Bus.
func New() *Bus { return &Bus{entries: make(map[reflect.Type][]entry)} }

func (b *Bus) subscribe(t reflect.Type, fn func(context.Context, any)) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.entries[t] = append(b.entries[t], entry{id: id, fn: fn})
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		es := b.entries[t]
		for i := range es {
			if es[i].id == id {
				b.entries[t] = append(es[:i:i], es[i+1:]...)
				break
			}
		}
		if len(b.entries[t]) == 0 {
			delete(b.entries, t)
		}
	}
}

func (b *Bus) emit(ctx context.Context, e any) {
	b.mu.RLock()
	es := append([]entry(nil), b.entries[reflect.TypeOf(e)]...)
	b.mu.RUnlock()
	for _, en := range es {
		en.fn(ctx, e)
	}
}

var global atomic.Pointer[Bus]

// Use installs b as the global bus. Passing nil disables publishing.
func Use(b *Bus) { global.Store(b) }

// Subscribe registers h with the global bus and returns a function that
// removes the registration. With no global bus installed it is a no-op.
func Subscribe[T any](h Handler[T]) (unsubscribe func()) {
	b := global.Load()
	if b == nil {
		return func() {}
	}
	t := reflect.TypeOf((*T)(nil)).Elem()
	return b.subscribe(t, func(ctx context.Context, v any) { h(ctx, v.(T)) })
}

// Publish sends e through the global bus, if one is installed.
func Publish[T any](ctx context.Context, e T) {
	if b := global.Load(); b != nil {
		b.emit(ctx, e)
	}
}
