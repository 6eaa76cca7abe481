package application

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/chatwire/gateway/internal/auth"
	"github.com/chatwire/gateway/internal/bus"
	"github.com/chatwire/gateway/internal/config"
	"github.com/chatwire/gateway/internal/domain"
	"github.com/chatwire/gateway/internal/errors"
	"github.com/chatwire/gateway/internal/filter"
	"github.com/chatwire/gateway/internal/logger"
	"github.com/chatwire/gateway/internal/registry"
	"github.com/chatwire/gateway/internal/router"
	"github.com/chatwire/gateway/internal/workers"

	"go.uber.org/zap"
)

// NodeBuilder is used to incrementally construct a Node instance.
type NodeBuilder struct {
	ctx    context.Context
	cancel context.CancelFunc
	config *config.Config

	eventBus      *bus.RedisBus
	subRegistry   *registry.Registry
	filterEngine  *filter.Engine
	eventRouter   *router.Router
	workerPool    *workers.WorkerPool
	authenticator *auth.Authenticator
	policy        domain.AuthorizationPolicy
}

// NewNodeBuilder creates a new NodeBuilder with its own cancelable context.
func NewNodeBuilder(ctx context.Context, cfg *config.Config) *NodeBuilder {
	c, cancel := context.WithCancel(ctx)
	return &NodeBuilder{
		ctx:    c,
		cancel: cancel,
		config: cfg,
	}
}

// BuildBus initializes the broker bus. The broker does not need to be
// reachable yet; the consume loop reconnects with backoff.
func (b *NodeBuilder) BuildBus() error {
	eventBus, err := bus.NewRedisBus(b.config.Broker)
	if err != nil {
		b.cancel()
		return fmt.Errorf("failed to initialize broker bus: %w", err)
	}
	b.eventBus = eventBus

	logger.Info("Broker bus initialized",
		zap.String("host", b.config.Broker.Host),
		zap.Int("port", b.config.Broker.Port))
	return nil
}

// BuildRegistry initializes the subscription registry and the filter engine.
func (b *NodeBuilder) BuildRegistry() {
	b.subRegistry = registry.New()
	b.filterEngine = filter.NewEngine()
}

// BuildRouter wires the routing loop to the bus and the registry.
func (b *NodeBuilder) BuildRouter() {
	b.eventRouter = router.New(b.subRegistry, b.filterEngine, b.eventBus.Events())
}

// BuildWorkers initializes the publish worker pool.
func (b *NodeBuilder) BuildWorkers() {
	numCPU := runtime.NumCPU()
	b.workerPool = workers.NewWorkerPool(numCPU*2, numCPU*300)
}

// BuildAuthenticator configures credential validation and the
// authorization policy.
func (b *NodeBuilder) BuildAuthenticator() {
	validator := auth.NewJWTValidator(b.config.Auth)
	b.authenticator = auth.NewAuthenticator(b.config.Auth, b.config.Policy, validator)
	b.policy = filter.AllowAllPolicy{}
}

// Build finalizes the node construction.
func (b *NodeBuilder) Build() (*Node, error) {
	// Initialize error handling system early
	errors.InitErrorHandling()
	logger.Info("Error handling system initialized", zap.String("component", "node_builder"))

	// Validate required components
	if b.eventBus == nil {
		return nil, fmt.Errorf("bus must be built before calling Build()")
	}
	if b.subRegistry == nil || b.filterEngine == nil {
		return nil, fmt.Errorf("registry must be built before calling Build()")
	}
	if b.eventRouter == nil {
		return nil, fmt.Errorf("router must be built before calling Build()")
	}
	if b.workerPool == nil {
		return nil, fmt.Errorf("worker pool must be built before calling Build()")
	}
	if b.authenticator == nil {
		return nil, fmt.Errorf("authenticator must be built before calling Build()")
	}

	node := &Node{
		ctx:           b.ctx,
		cancel:        b.cancel,
		config:        b.config,
		registry:      b.subRegistry,
		bus:           b.eventBus,
		router:        b.eventRouter,
		engine:        b.filterEngine,
		authenticator: b.authenticator,
		policy:        b.policy,
		WorkerPool:    b.workerPool,
		wsConns:       make(map[domain.WebSocketConnection]bool),
		startTime:     time.Now(),
	}

	logger.Debug("Node initialized successfully via builder")
	return node, nil
}
