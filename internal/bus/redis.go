package bus

import (
	"context"
	"encoding/json"
	"math/rand"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chatwire/gateway/internal/config"
	"github.com/chatwire/gateway/internal/constants"
	"github.com/chatwire/gateway/internal/domain"
	apperrors "github.com/chatwire/gateway/internal/errors"
	"github.com/chatwire/gateway/internal/logger"
	"github.com/chatwire/gateway/internal/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// envelope is the wire shape events travel in on the broker.
type envelope struct {
	Payload json.RawMessage `json:"payload"`
	Origin  string          `json:"origin,omitempty"`
}

// brokerSubscription is the slice of *redis.PubSub the consume loop
// depends on, split out so outage handling is testable without a
// broker.
type brokerSubscription interface {
	Receive(ctx context.Context) (interface{}, error)
	Channel(opts ...redis.ChannelOption) <-chan *redis.Message
	Close() error
}

// RedisBus bridges the shared Redis pub/sub broker to the router. It
// subscribes once per channel family and keeps the subscription alive
// across broker outages; consumed events surface on Events().
type RedisBus struct {
	client    *redis.Client
	cfg       config.BrokerConfig
	logger    *zap.Logger
	subscribe func(ctx context.Context, patterns ...string) brokerSubscription

	events    chan *domain.Event
	connected atomic.Bool

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewRedisBus builds the bus. The broker does not need to be reachable
// yet; the consume loop establishes the subscription with retries.
func NewRedisBus(cfg config.BrokerConfig) (*RedisBus, error) {
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, apperrors.ConfigurationError("broker.url", err.Error())
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}

	b := &RedisBus{
		client: redis.NewClient(opts),
		cfg:    cfg,
		logger: logger.New("bus"),
		events: make(chan *domain.Event, 1024),
		done:   make(chan struct{}),
	}
	b.subscribe = func(ctx context.Context, patterns ...string) brokerSubscription {
		return b.client.PSubscribe(ctx, patterns...)
	}
	return b, nil
}

// Start launches the consume loop. The loop runs until ctx is
// cancelled or Close is called.
func (b *RedisBus) Start(ctx context.Context) {
	b.wg.Add(1)
	go b.consumeLoop(ctx)
}

// Events returns the channel the router drains. Per-channel order is
// the broker's publish order.
func (b *RedisBus) Events() <-chan *domain.Event {
	return b.events
}

// Publish pushes an event onto the broker on its exact channel.
// Failures surface immediately; there is no buffering or retry here.
func (b *RedisBus) Publish(ctx context.Context, evt *domain.Event) error {
	data, err := json.Marshal(envelope{Payload: evt.Payload, Origin: evt.Origin})
	if err != nil {
		return apperrors.InternalError("encode event", err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.PublishTimeout)
	defer cancel()

	if err := b.client.Publish(ctx, evt.Channel, data).Err(); err != nil {
		metrics.BrokerPublishes.WithLabelValues("failure").Inc()
		return apperrors.BrokerUnavailableError("publish", err)
	}
	metrics.BrokerPublishes.WithLabelValues("success").Inc()
	return nil
}

// Healthy reports whether the broker subscription is currently live.
func (b *RedisBus) Healthy() bool {
	return b.connected.Load()
}

// Ping checks broker reachability for health probes.
func (b *RedisBus) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return apperrors.BrokerUnavailableError("ping", err)
	}
	return nil
}

// Close tears the subscription down and closes the events channel.
func (b *RedisBus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.done)
		b.wg.Wait()
		close(b.events)
		err = b.client.Close()
	})
	return err
}

// consumeLoop keeps one pattern subscription per channel family alive.
// On any failure it backs off exponentially with jitter and
// resubscribes; existing client connections are unaffected meanwhile.
func (b *RedisBus) consumeLoop(ctx context.Context) {
	defer b.wg.Done()

	patterns := make([]string, 0, len(constants.ChannelFamilies))
	for _, family := range constants.ChannelFamilies {
		patterns = append(patterns, family+".*")
	}

	delay := constants.ReconnectBaseDelay
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		default:
		}

		if err := b.consumeOnce(ctx, patterns); err != nil {
			b.connected.Store(false)
			attempt++
			metrics.IncrementBrokerReconnects()

			// Full jitter on top of the exponential delay
			sleep := delay + time.Duration(rand.Int63n(int64(delay)))
			b.logger.Warn("broker subscription lost, reconnecting",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", sleep),
				zap.Error(err))

			select {
			case <-time.After(sleep):
			case <-ctx.Done():
				return
			case <-b.done:
				return
			}

			delay *= 2
			if delay > constants.ReconnectMaxDelay {
				delay = constants.ReconnectMaxDelay
			}
			continue
		}

		// Clean shutdown path
		return
	}
}

// consumeOnce establishes the subscription and pumps messages until
// the subscription breaks or shutdown begins. A nil return means
// shutdown; any error means the caller should reconnect.
func (b *RedisBus) consumeOnce(ctx context.Context, patterns []string) error {
	pubsub := b.subscribe(ctx, patterns...)
	defer func() { _ = pubsub.Close() }()

	// Wait for the subscription confirmation before reporting healthy
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	b.connected.Store(true)
	b.logger.Info("broker subscription established",
		zap.Int("patterns", len(patterns)))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.done:
			return nil
		case msg, ok := <-ch:
			if !ok {
				return apperrors.BrokerUnavailableError("subscribe", nil)
			}
			b.dispatch(ctx, msg)
		}
	}
}

func (b *RedisBus) dispatch(ctx context.Context, msg *redis.Message) {
	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		metrics.IncrementEventsDropped("malformed")
		b.logger.Warn("dropping undecodable event",
			zap.Error(apperrors.MalformedEventError(msg.Channel, err)))
		return
	}
	if len(env.Payload) == 0 {
		// Bare payloads without an envelope are accepted as-is
		env.Payload = json.RawMessage(msg.Payload)
	}

	evt := &domain.Event{
		Channel:    msg.Channel,
		Payload:    env.Payload,
		Origin:     env.Origin,
		ReceivedAt: time.Now(),
	}

	select {
	case b.events <- evt:
	case <-ctx.Done():
	case <-b.done:
	}
}
