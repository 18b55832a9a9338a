// Package logging attaches a structured logger to the eventbus.
package logging

import (
	"context"

	"go.uber.org/zap"

	eventbus "github.com/queryline/queryline/internal/eventbus"
	events "github.com/queryline/queryline/internal/events"
	reqid "github.com/queryline/queryline/internal/reqid"
)

// Attach subscribes logger to the pipeline events and returns a
// function removing all subscriptions.
func Attach(logger *zap.Logger) (detach func()) {
	if logger == nil {
		logger = zap.NewNop()
	}

	unsubs := []func(){
		eventbus.Subscribe(func(ctx context.Context, e events.ResolveStart) {
			logger.Debug("resolving query",
				zap.String("invocation", rid(ctx)),
				zap.String("query", e.Name),
				zap.Int("depth", e.Depth))
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.ResolveFinish) {
			if e.Err != nil {
				logger.Error("query resolution failed",
					zap.String("invocation", rid(ctx)),
					zap.String("query", e.Name),
					zap.Duration("duration", e.Duration),
					zap.Error(e.Err))
				return
			}
			logger.Info("query resolved",
				zap.String("invocation", rid(ctx)),
				zap.String("query", e.Name),
				zap.Duration("duration", e.Duration))
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
			logger.Debug("graphql request finished",
				zap.String("invocation", rid(ctx)),
				zap.String("endpoint", e.Endpoint),
				zap.Int("status", e.Status),
				zap.Duration("duration", e.Duration),
				zap.Error(e.Err))
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.TransformFinish) {
			logger.Debug("transformer finished",
				zap.String("invocation", rid(ctx)),
				zap.String("query", e.Name),
				zap.Duration("duration", e.Duration),
				zap.Error(e.Err))
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.Warning) {
			logger.Warn(e.Message,
				zap.String("invocation", rid(ctx)),
				zap.String("scope", e.Scope),
				zap.String("query", e.Name))
		}),
	}

	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func rid(ctx context.Context) string {
	id, _ := reqid.FromContext(ctx)
	return id
}
