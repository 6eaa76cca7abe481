package router

import (
	"context"
	"sync"

	"github.com/chatwire/gateway/internal/domain"
	apperrors "github.com/chatwire/gateway/internal/errors"
	"github.com/chatwire/gateway/internal/filter"
	"github.com/chatwire/gateway/internal/logger"
	"github.com/chatwire/gateway/internal/metrics"
	"go.uber.org/zap"
)

// Router drains the bus and fans events out to matching connections.
// All matching and filtering happens on one goroutine, which preserves
// per-channel delivery order end to end; the only cross-goroutine step
// is the non-blocking enqueue onto each connection's outbound queue.
type Router struct {
	registry domain.SubscriptionRegistry
	engine   *filter.Engine
	events   <-chan *domain.Event
	logger   *zap.Logger

	wg sync.WaitGroup
}

// New wires the router to its event source and registry.
func New(registry domain.SubscriptionRegistry, engine *filter.Engine, events <-chan *domain.Event) *Router {
	return &Router{
		registry: registry,
		engine:   engine,
		events:   events,
		logger:   logger.New("router"),
	}
}

// Start launches the routing loop.
func (r *Router) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.loop(ctx)
}

// Wait blocks until the routing loop has exited.
func (r *Router) Wait() {
	r.wg.Wait()
}

func (r *Router) loop(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-r.events:
			if !ok {
				return
			}
			r.route(evt)
		}
	}
}

// route fans one event out. Per-subscription failures are contained:
// a slow or dead connection never affects delivery to the others.
func (r *Router) route(evt *domain.Event) {
	metrics.IncrementEventsRouted()

	subs := r.registry.Matching(evt.Channel)
	if len(subs) == 0 {
		return
	}

	for i := range subs {
		sub := &subs[i]

		conn, ok := r.registry.Connection(sub.ConnectionID)
		if !ok {
			// Teardown raced this event; the cascade already removed
			// the subscription
			r.logger.Debug("subscription without live connection",
				zap.String("subscription_id", sub.ID),
				zap.String("connection_id", sub.ConnectionID))
			continue
		}

		if !r.engine.Allow(sub, evt, conn.Principal()) {
			metrics.IncrementEventsDropped("filtered")
			continue
		}

		payload, ok := r.engine.Map(sub, evt)
		if !ok {
			metrics.IncrementEventsDropped("malformed")
			continue
		}

		label := sub.ClientID
		if label == "" {
			label = sub.ID
		}
		frame, err := domain.EncodeEventFrame(label, evt.Channel, payload)
		if err != nil {
			metrics.IncrementEventsDropped("malformed")
			r.logger.Warn("failed to encode event frame",
				zap.String("subscription_id", sub.ID),
				zap.Error(err))
			continue
		}

		if !conn.Enqueue(frame) {
			metrics.IncrementEventsDropped("backpressure")
			r.logger.Warn("outbound queue full, dropping event",
				zap.String("channel", evt.Channel),
				zap.Error(apperrors.BackpressureError(sub.ConnectionID)))
			continue
		}
		metrics.IncrementEventsDelivered()
	}
}
