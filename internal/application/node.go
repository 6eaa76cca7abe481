package application

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chatwire/gateway/internal/auth"
	"github.com/chatwire/gateway/internal/bus"
	"github.com/chatwire/gateway/internal/config"
	"github.com/chatwire/gateway/internal/constants"
	"github.com/chatwire/gateway/internal/domain"
	apperrors "github.com/chatwire/gateway/internal/errors"
	"github.com/chatwire/gateway/internal/filter"
	"github.com/chatwire/gateway/internal/gateway"
	"github.com/chatwire/gateway/internal/logger"
	"github.com/chatwire/gateway/internal/metrics"
	"github.com/chatwire/gateway/internal/registry"
	"github.com/chatwire/gateway/internal/router"
	"github.com/chatwire/gateway/internal/workers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Node ties together the components needed to run one gateway instance:
// the broker bus, the subscription registry, the routing loop, and the
// WebSocket transport.
type Node struct {
	ctx    context.Context
	cancel context.CancelFunc

	config        *config.Config
	registry      *registry.Registry
	bus           *bus.RedisBus
	router        *router.Router
	engine        *filter.Engine
	authenticator *auth.Authenticator
	policy        domain.AuthorizationPolicy
	WorkerPool    *workers.WorkerPool

	metricsSrv *http.Server

	wsConns   map[domain.WebSocketConnection]bool
	wsConnsMu sync.RWMutex

	startTime time.Time
}

// Ensure Node implements domain.GatewayInterface
var _ domain.GatewayInterface = (*Node)(nil)

// New creates and configures a Node using the NodeBuilder pattern.
func New(ctx context.Context, cfg *config.Config) (*Node, error) {
	builder := NewNodeBuilder(ctx, cfg)

	if err := builder.BuildBus(); err != nil {
		return nil, fmt.Errorf("failed building bus: %w", err)
	}
	builder.BuildRegistry()
	builder.BuildRouter()
	builder.BuildWorkers()
	builder.BuildAuthenticator()

	node, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build node: %w", err)
	}
	return node, nil
}

// Start begins the main loops for the node: the broker consumer, the
// routing loop, the metrics endpoint, and the WebSocket server.
func (n *Node) Start(ctx context.Context) error {
	metrics.RegisterMetrics()

	n.bus.Start(n.ctx)
	n.router.Start(n.ctx)

	if n.config.Metrics.Enabled {
		n.startMetricsServer()
	}

	go func() {
		addr := n.config.Gateway.WSAddr
		server := gateway.NewServer(n.config, n, n.policy, n.authenticator, n.bus, n.PublishAsync)
		if err := server.ListenAndServe(n.ctx, addr); err != nil {
			// "Server closed" is the expected graceful-shutdown result
			if err.Error() != "http: Server closed" {
				logger.Error("Server error", zap.Error(err))
			} else {
				logger.Debug("Server closed gracefully", zap.Error(err))
			}
		}
	}()

	logger.Debug("Node started with broker consumer and routing loop")
	return nil
}

// startMetricsServer exposes the Prometheus scrape endpoint on its own
// port, kept separate from the client-facing listener.
func (n *Node) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	n.metricsSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", n.config.Metrics.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Metrics server listening", zap.Int("port", n.config.Metrics.Port))
		if err := n.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server error",
				zap.Error(apperrors.MetricsError("serve", err)))
		}
	}()
}

// Registry returns the subscription registry.
func (n *Node) Registry() domain.SubscriptionRegistry {
	return n.registry
}

// Publisher returns the broker publisher.
func (n *Node) Publisher() domain.EventPublisher {
	return n.bus
}

// Config returns the node's configuration.
func (n *Node) Config() *config.Config {
	return n.config
}

// PublishAsync hands a fan-out publish to the worker pool so command
// handlers never block on broker round trips. Returns false when the
// pool's queue is full.
func (n *Node) PublishAsync(channels []string, payload json.RawMessage, origin string) bool {
	return n.WorkerPool.AddJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), constants.PublishTimeout)
		defer cancel()

		for _, channel := range channels {
			evt := &domain.Event{
				Channel:    channel,
				Payload:    payload,
				Origin:     origin,
				ReceivedAt: time.Now(),
			}
			if err := n.bus.Publish(ctx, evt); err != nil {
				// The broker handler classifies and logs the failure
				_ = apperrors.HandleBrokerError("publish "+channel, err)
			}
		}
	})
}

// Shutdown gracefully shuts down the node with a bounded timeout.
func (n *Node) Shutdown() {
	logger.Info("Initiating graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	var shutdownErrors []error

	// Step 1: Stop accepting new connections and close existing WebSocket connections gracefully
	n.shutdownWebSocketConnections(shutdownCtx)

	// Step 2: Cancel the node context; stops the transport, the routing
	// loop, and the broker consumer
	if n.cancel != nil {
		logger.Debug("Canceling node context...")
		n.cancel()
	}

	// Step 3: Close the bus; drains and closes the events channel
	if n.bus != nil {
		logger.Debug("Closing broker bus...")
		if err := n.bus.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("bus close: %w", err))
		}
	}

	// Step 4: Wait for the routing loop to drain
	if n.router != nil {
		n.router.Wait()
		logger.Debug("Routing loop stopped")
	}

	// Step 5: Wait for pending publish jobs with timeout
	logger.Debug("Waiting for worker pool to finish...")
	done := make(chan struct{})
	go func() {
		defer close(done)
		n.WorkerPool.Wait()
	}()

	select {
	case <-done:
		logger.Debug("Worker pool finished")
	case <-shutdownCtx.Done():
		shutdownErrors = append(shutdownErrors, fmt.Errorf("worker pool shutdown timed out after %v", constants.ShutdownTimeout))
		logger.Warn("Worker pool shutdown timed out", zap.Duration("timeout", constants.ShutdownTimeout))
	}

	// Step 6: Stop the metrics server
	if n.metricsSrv != nil {
		if err := n.metricsSrv.Shutdown(shutdownCtx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	if len(shutdownErrors) > 0 {
		logger.Warn("Node shutdown completed with errors",
			zap.Int("error_count", len(shutdownErrors)),
			zap.Errors("errors", shutdownErrors),
			zap.Duration("shutdown_timeout", constants.ShutdownTimeout))
	} else {
		logger.Info("Node shutdown completed successfully",
			zap.Duration("shutdown_timeout", constants.ShutdownTimeout))
	}
}

// shutdownWebSocketConnections gracefully closes all active WebSocket connections.
func (n *Node) shutdownWebSocketConnections(ctx context.Context) {
	n.wsConnsMu.Lock()
	connectionCount := len(n.wsConns)
	connections := make([]domain.WebSocketConnection, 0, connectionCount)
	for conn := range n.wsConns {
		connections = append(connections, conn)
	}
	n.wsConnsMu.Unlock()

	if connectionCount == 0 {
		logger.Debug("No WebSocket connections to close")
		return
	}

	logger.Info("Closing WebSocket connections gracefully",
		zap.Int("connection_count", connectionCount))

	done := make(chan struct{})
	go func() {
		defer close(done)

		// Close() handles the polite close frame and registry cleanup
		for _, conn := range connections {
			conn.Close()
		}

		n.wsConnsMu.Lock()
		n.wsConns = make(map[domain.WebSocketConnection]bool)
		n.wsConnsMu.Unlock()
	}()

	select {
	case <-done:
		logger.Debug("WebSocket connections closed")
	case <-ctx.Done():
		logger.Warn("WebSocket connection shutdown timed out")
		n.wsConnsMu.Lock()
		n.wsConns = make(map[domain.WebSocketConnection]bool)
		n.wsConnsMu.Unlock()
	}
}

// RegisterConn tracks a new WebSocket client and makes it eligible for
// subscriptions.
func (n *Node) RegisterConn(conn domain.WebSocketConnection) {
	n.wsConnsMu.Lock()
	n.wsConns[conn] = true
	count := len(n.wsConns)
	n.wsConnsMu.Unlock()

	n.registry.AddConnection(conn)
	metrics.SyncActiveConnectionsCount(int64(count))
	logger.Debug("WebSocket client registered", zap.Int("total_connections", count))
}

// UnregisterConn removes a WebSocket client. The registry cascade
// removes every subscription the connection owned.
func (n *Node) UnregisterConn(conn domain.WebSocketConnection) {
	n.wsConnsMu.Lock()
	delete(n.wsConns, conn)
	count := len(n.wsConns)
	n.wsConnsMu.Unlock()

	n.registry.RemoveConnection(conn.ID())
	logger.Debug("WebSocket client unregistered", zap.Int("total_connections", count))
}

// GetConnectionCount returns the current number of active connections (for health checks)
func (n *Node) GetConnectionCount() int {
	n.wsConnsMu.RLock()
	defer n.wsConnsMu.RUnlock()
	return len(n.wsConns)
}

// GetStartTime returns when the node was started (for health checks)
func (n *Node) GetStartTime() time.Time {
	return n.startTime
}
