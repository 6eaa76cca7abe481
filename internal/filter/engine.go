package filter

import (
	"github.com/chatwire/gateway/internal/domain"
	"github.com/chatwire/gateway/internal/logger"
	"go.uber.org/zap"
)

// Engine evaluates subscription predicates on the router loop.
// Evaluation is fail-closed: a predicate that panics suppresses
// delivery for that subscription only and never takes down the loop.
type Engine struct {
	logger *zap.Logger
}

// NewEngine creates a filter engine.
func NewEngine() *Engine {
	return &Engine{logger: logger.New("filter")}
}

// Allow reports whether the event should be delivered to the
// subscription's connection. A nil predicate is an unconditional
// subscription.
func (e *Engine) Allow(sub *domain.Subscription, evt *domain.Event, requester domain.Principal) (allowed bool) {
	if sub.Predicate == nil {
		return true
	}

	defer func() {
		if r := recover(); r != nil {
			allowed = false
			e.logger.Warn("predicate panicked, suppressing delivery",
				zap.String("subscription_id", sub.ID),
				zap.String("channel", evt.Channel),
				zap.Any("panic", r))
		}
	}()

	return sub.Predicate(evt, requester)
}

// Map projects the event through the subscription's result mapper.
// A nil mapper passes the raw payload through. Mapper failures
// suppress delivery the same way predicate failures do.
func (e *Engine) Map(sub *domain.Subscription, evt *domain.Event) (out []byte, ok bool) {
	if sub.Mapper == nil {
		return evt.Payload, true
	}

	defer func() {
		if r := recover(); r != nil {
			out, ok = nil, false
			e.logger.Warn("mapper panicked, suppressing delivery",
				zap.String("subscription_id", sub.ID),
				zap.String("channel", evt.Channel),
				zap.Any("panic", r))
		}
	}()

	mapped, err := sub.Mapper(evt)
	if err != nil {
		e.logger.Warn("mapper failed, suppressing delivery",
			zap.String("subscription_id", sub.ID),
			zap.String("channel", evt.Channel),
			zap.Error(err))
		return nil, false
	}
	return mapped, true
}
