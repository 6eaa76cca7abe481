package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/chatwire/gateway/internal/auth"
	"github.com/chatwire/gateway/internal/config"
	"github.com/chatwire/gateway/internal/constants"
	"github.com/chatwire/gateway/internal/domain"
	"github.com/chatwire/gateway/internal/errors"
	"github.com/chatwire/gateway/internal/health"
	"github.com/chatwire/gateway/internal/limiter"
	"github.com/chatwire/gateway/internal/logger"
	"github.com/chatwire/gateway/internal/metrics"
	"github.com/chatwire/gateway/internal/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server owns the WebSocket listener and the HTTP surface that shares
// its port: health checks, the stats API, and the backend publish
// endpoint.
type Server struct {
	cfg           config.Gateway
	fullCfg       *config.Config
	node          domain.GatewayInterface
	policy        domain.AuthorizationPolicy
	authenticator *auth.Authenticator
	publish       publishFunc
	healthChecker *health.HealthChecker
	apiLimiter    *limiter.RateLimiter
	bans          *banList
}

// NewServer constructs a Server around the assembled node.
func NewServer(
	fullCfg *config.Config,
	node domain.GatewayInterface,
	policy domain.AuthorizationPolicy,
	authenticator *auth.Authenticator,
	broker health.BrokerInterface,
	publish publishFunc,
) *Server {
	healthChecker := health.NewHealthChecker(
		broker,
		&nodeHealthAdapter{node: node},
		fullCfg,
		logger.New("health"),
		config.Version,
	)

	return &Server{
		cfg:           fullCfg.Gateway,
		fullCfg:       fullCfg,
		node:          node,
		policy:        policy,
		authenticator: authenticator,
		publish:       publish,
		healthChecker: healthChecker,
		apiLimiter:    limiter.NewRateLimiter(fullCfg.Gateway.Throttling.RateLimit),
		bans:          newBanList(),
	}
}

// ListenAndServe starts the WebSocket gateway and serves the HTTP API
// on normal HTTP requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	upgrader := websocket.Upgrader{
		ReadBufferSize:    64 * 1024,
		WriteBufferSize:   64 * 1024,
		CheckOrigin:       s.checkOrigin,
		EnableCompression: true,
		HandshakeTimeout:  10 * time.Second,
	}

	// Lift expired bans in the background for as long as the server runs
	go s.bans.sweep(ctx)

	// Drop idle API limiter state periodically
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.apiLimiter.Cleanup(time.Hour)
			}
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Track request metrics
		metrics.HTTPRequests.Inc()
		start := time.Now()
		defer func() {
			metrics.HTTPRequestDuration.Observe(time.Since(start).Seconds())
		}()

		if isWebSocketRequest(r) {
			// Handle as gateway WebSocket connection
			handleWebSocketConnection(ctx, w, r, upgrader, s)
			return
		}

		switch {
		case r.URL.Path == "/health":
			s.healthChecker.HandleHealth(w, r)
		case r.URL.Path == "/api/info":
			web.SecureValidatedAPIHandlerFunc(s.handleInfo)(w, r)
		case r.URL.Path == "/api/stats":
			web.SecureValidatedAPIHandlerFunc(s.handleStats)(w, r)
		case r.URL.Path == "/api/publish":
			web.SecureValidatedAPIHandlerFunc(s.handlePublishAPI)(w, r)
		default:
			// Log invalid requests for security monitoring
			logger.Warn("Invalid request path",
				zap.String("path", r.URL.Path),
				zap.String("client_ip", extractRealClientIP(r)),
				zap.String("user_agent", r.Header.Get("User-Agent")))
			http.NotFound(w, r)
		}
	})

	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      errors.RecoveryMiddleware(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown when context is canceled
	go func() {
		<-ctx.Done()
		logger.Info("Shutting down WebSocket server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Info("Gateway WebSocket server listening", zap.String("address", addr))
	return httpSrv.ListenAndServe()
}

// checkOrigin enforces the configured allow-list. An empty list admits
// every origin, which suits non-browser clients and local development.
func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Non-browser clients do not send an Origin header
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	logger.Warn("WebSocket origin rejected",
		zap.String("origin", origin),
		zap.String("client_ip", extractRealClientIP(r)))
	return false
}

// handleInfo serves gateway identity and limits for client discovery.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	info := map[string]interface{}{
		"name":        s.cfg.Name,
		"description": s.cfg.Description,
		"version":     config.Version,
		"channels":    constants.ChannelFamilies,
		"limits": map[string]interface{}{
			"max_frame_length":  s.cfg.Throttling.MaxFrameLen,
			"max_subscriptions": constants.MaxSubscriptions,
			"max_payload_bytes": constants.MaxPayloadLength,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if err := json.NewEncoder(w).Encode(info); err != nil {
		logger.Error("Failed to encode info response", zap.Error(err))
	}
}

// handleStats serves runtime counters for dashboards.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]interface{}{
		"active_connections":     metrics.GetActiveConnectionsCount(),
		"active_subscriptions":   metrics.GetActiveSubscriptionsCount(),
		"events_routed":          metrics.GetEventsRoutedCount(),
		"events_delivered":       metrics.GetEventsDeliveredCount(),
		"events_dropped":         metrics.GetEventsDroppedCount(),
		"events_per_second":      metrics.GetEventsPerSecond(),
		"connections_per_second": metrics.GetConnectionsPerSecond(),
		"broker_reconnects":      metrics.GetBrokerReconnectCount(),
		"error_count":            metrics.GetErrorCount(),
		"error_rate_percent":     metrics.GetErrorRate(),
		"uptime_seconds":         int64(time.Since(s.node.GetStartTime()).Seconds()),
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		logger.Error("Failed to encode stats response", zap.Error(err))
	}
}

// publishRequest is the body accepted by the backend publish endpoint.
// Origin lets a backend service publish on behalf of the acting user so
// self-origin filtering still works downstream.
type publishRequest struct {
	Channel string          `json:"channel"`
	Target  string          `json:"target"`
	Origin  string          `json:"origin"`
	Payload json.RawMessage `json:"payload"`
}

// handlePublishAPI lets trusted backend services inject events into any
// channel family, including the ones closed to client publishes.
// Acceptance only means the event entered the pipeline.
func (s *Server) handlePublishAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.apiLimiter.Allow(extractRealClientIP(r)) {
		errors.HandleHTTPError(w, r, errors.RateLimitError("publish API"))
		return
	}

	principal, err := s.authenticator.Authenticate(r.Context(), r)
	if err != nil {
		errors.HandleHTTPError(w, r, err)
		return
	}
	if principal.Anonymous {
		errors.HandleHTTPError(w, r,
			errors.AuthorizationError("publish", "backend publish requires a real credential"))
		return
	}

	var req publishRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, constants.MaxMessageLength)).Decode(&req); err != nil {
		errors.HandleHTTPError(w, r, errors.ProtocolError("publish", "malformed JSON body"))
		return
	}

	spec, err := ResolveFamily(req.Channel)
	if err != nil {
		errors.HandleHTTPError(w, r, err)
		return
	}

	origin := req.Origin
	if origin == "" {
		origin = principal.UserID
	}

	channels, err := PublishChannels(spec.Name, origin, req.Target)
	if err != nil {
		errors.HandleHTTPError(w, r, err)
		return
	}

	if !s.publish(channels, req.Payload, origin) {
		errors.HandleHTTPError(w, r,
			errors.RateLimitError("publish pipeline"))
		return
	}

	metrics.EventsPublished.WithLabelValues(spec.Name).Inc()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"accepted": true,
		"channels": channels,
	})
}

// isWebSocketRequest checks if the request is a WebSocket upgrade request
func isWebSocketRequest(r *http.Request) bool {
	return strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade") &&
		strings.ToLower(r.Header.Get("Upgrade")) == "websocket"
}

// nodeHealthAdapter adapts domain.GatewayInterface to health.NodeInterface
type nodeHealthAdapter struct {
	node domain.GatewayInterface
}

func (n *nodeHealthAdapter) GetConnectionCount() int {
	return n.node.GetConnectionCount()
}

func (n *nodeHealthAdapter) GetStartTime() time.Time {
	return n.node.GetStartTime()
}
