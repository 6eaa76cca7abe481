package gateway

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chatwire/gateway/internal/config"
	"github.com/chatwire/gateway/internal/constants"
	"github.com/chatwire/gateway/internal/domain"
	"github.com/chatwire/gateway/internal/errors"
	"github.com/chatwire/gateway/internal/logger"
	"github.com/chatwire/gateway/internal/metrics"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// extractRealClientIP extracts the real client IP from request headers when behind a proxy
func extractRealClientIP(r *http.Request) string {
	// Try X-Real-IP first (set by the reverse proxy)
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return strings.TrimSpace(realIP)
	}

	// Try X-Forwarded-For (contains comma-separated list of IPs)
	if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
		// Take the first IP in the chain (the original client)
		parts := strings.Split(forwardedFor, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}

	// Fallback to RemoteAddr (direct connection)
	return normalizeIP(r.RemoteAddr)
}

// normalizeIP converts a network address to a normalized IP string
func normalizeIP(addr string) string {
	// Extract the IP portion (remove port)
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		// If splitting fails, assume addr is already an IP
		host = addr
	}

	// Normalize IPv4-mapped IPv6 addresses
	ip := net.ParseIP(host)
	if ip != nil {
		if ipv4 := ip.To4(); ipv4 != nil {
			return ipv4.String()
		}
		return ip.String()
	}

	return host
}

// publishFunc hands a client-originated event to the publish pipeline.
// Returns false when the pipeline is saturated.
type publishFunc func(channels []string, payload json.RawMessage, origin string) bool

// handleWebSocketConnection authenticates the handshake, upgrades the
// connection, and starts its pumps. Authentication happens before the
// upgrade so rejected clients get a plain 401.
func handleWebSocketConnection(ctx context.Context, w http.ResponseWriter, r *http.Request, upgrader websocket.Upgrader, s *Server) {
	clientIP := extractRealClientIP(r)

	logger.Debug("New WebSocket connection attempt",
		zap.String("client_ip", clientIP),
		zap.String("user_agent", r.Header.Get("User-Agent")),
		zap.String("origin", r.Header.Get("Origin")))

	// Check if client is banned
	if remaining, banned := s.bans.Banned(clientIP); banned {
		banErr := errors.ClientBannedError("excessive messages", remaining.String())
		errors.HandleHTTPError(w, r, banErr)
		return
	}

	// Reset accumulated strikes on new allowed connection
	s.bans.Forgive(clientIP)

	// Check global connection limit using metrics counter
	if metrics.GetActiveConnectionsCount() >= int64(s.cfg.Throttling.MaxConnections) {
		limitErr := errors.ConnectionLimitError(
			int(metrics.GetActiveConnectionsCount()),
			s.cfg.Throttling.MaxConnections)
		errors.HandleHTTPError(w, r, limitErr)
		return
	}

	// Resolve the principal before upgrading
	principal, err := s.authenticator.Authenticate(ctx, r)
	if err != nil {
		errors.HandleHTTPError(w, r, err)
		return
	}

	// Upgrade the connection
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		upgradeErr := errors.WebSocketError("connection upgrade", err)
		errors.HandleWebSocketError(wsConn, "upgrade", upgradeErr)
		return
	}

	// Enable compression
	wsConn.EnableWriteCompression(true)
	_ = wsConn.SetCompressionLevel(2) // nolint:errcheck // compression level is non-critical

	// Update metrics
	metrics.IncrementActiveConnections()

	// Create new connection and register it
	conn := NewWsConnection(ctx, wsConn, s.node, s.policy, s.publish, s.bans, s.cfg, clientIP, principal)
	s.node.RegisterConn(conn)

	logger.Debug("WebSocket connection established",
		zap.String("connection_id", conn.ID()),
		zap.String("user_id", principal.UserID),
		zap.String("client_ip", clientIP),
		zap.Int64("active_connections", metrics.GetActiveConnectionsCount()))

	go conn.writePump()
	go conn.monitorConnection(ctx)
	go conn.HandleMessages(ctx)
}

// WsConnection represents a single WebSocket client connection.
// Delivery goes through a bounded outbound queue drained by one write
// pump; the router enqueues without ever blocking on a slow socket.
type WsConnection struct {
	ws           *websocket.Conn
	node         domain.GatewayInterface
	policy       domain.AuthorizationPolicy
	publish      publishFunc
	bans         *banList
	cfg          config.Gateway
	id           string
	principal    domain.Principal
	realClientIP string
	startTime    time.Time
	lastActivity atomic.Int64

	outbound chan []byte
	done     chan struct{}

	pingTicker *time.Ticker
	limiter    *rate.Limiter

	subMu  sync.Mutex
	subIDs map[string]string // client label -> registry subscription id

	closeMu            sync.Once
	isClosed           atomic.Bool
	metricsDecremented atomic.Bool
	closeReason        atomic.Value // string, first writer wins
}

// Ensure WsConnection implements domain.WebSocketConnection
var _ domain.WebSocketConnection = (*WsConnection)(nil)

// NewWsConnection initializes a new WebSocket connection
func NewWsConnection(
	ctx context.Context,
	ws *websocket.Conn,
	node domain.GatewayInterface,
	policy domain.AuthorizationPolicy,
	publish publishFunc,
	bans *banList,
	cfg config.Gateway,
	realClientIP string,
	principal domain.Principal,
) *WsConnection {
	limiter := rate.NewLimiter(
		rate.Limit(cfg.Throttling.RateLimit.MaxOpsPerSecond),
		cfg.Throttling.RateLimit.BurstSize,
	)

	queueSize := cfg.SendQueueSize
	if queueSize <= 0 {
		queueSize = constants.DefaultOutboundBuffer
	}

	conn := &WsConnection{
		ws:           ws,
		node:         node,
		policy:       policy,
		publish:      publish,
		bans:         bans,
		cfg:          cfg,
		id:           uuid.NewString(),
		principal:    principal,
		realClientIP: realClientIP,
		startTime:    time.Now(),
		outbound:     make(chan []byte, queueSize),
		done:         make(chan struct{}),
		pingTicker:   time.NewTicker(constants.PingInterval),
		limiter:      limiter,
		subIDs:       make(map[string]string),
	}
	conn.touch()

	// Deadlines + read limit
	_ = ws.SetReadDeadline(time.Now().Add(constants.PongTimeout)) // nolint:errcheck // deadline is non-critical
	ws.SetReadLimit(int64(cfg.Throttling.MaxFrameLen))

	// Ping handler - must echo back the same data
	ws.SetPingHandler(func(appData string) error {
		conn.touch()
		_ = conn.ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
		return nil
	})

	return conn
}

// ID returns the process-local connection id.
func (c *WsConnection) ID() string {
	return c.id
}

// Principal returns the identity resolved at handshake.
func (c *WsConnection) Principal() domain.Principal {
	return c.principal
}

// RemoteAddr returns the client's real remote address (extracted from proxy headers)
func (c *WsConnection) RemoteAddr() string {
	return c.realClientIP
}

func (c *WsConnection) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// setCloseReason records why the connection went down. Several
// goroutines race to report a reason; the first one wins.
func (c *WsConnection) setCloseReason(reason string) {
	c.closeReason.CompareAndSwap(nil, reason)
}

func (c *WsConnection) getCloseReason() string {
	reason, _ := c.closeReason.Load().(string)
	return reason
}

func (c *WsConnection) idle() time.Duration {
	return time.Since(time.Unix(0, c.lastActivity.Load()))
}

// Enqueue offers a frame to the outbound queue without blocking. The
// caller owns the drop decision when the queue is full.
func (c *WsConnection) Enqueue(msg []byte) bool {
	if c.isClosed.Load() {
		return false
	}

	metrics.OutboundQueueDepth.Observe(float64(len(c.outbound)))

	select {
	case c.outbound <- msg:
		return true
	default:
		return false
	}
}

// writePump drains the outbound queue to the socket. It is the only
// writer of data frames; a write failure tears the connection down.
func (c *WsConnection) writePump() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.outbound:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)) // nolint:errcheck // deadline is non-critical
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug("Failed to write frame, closing connection",
					zap.String("connection_id", c.id),
					zap.Error(err))
				metrics.IncrementErrorCount()
				c.setCloseReason("write failed")
				c.Close()
				return
			}
		}
	}
}

// sendFrame marshals and enqueues a server frame. Control responses
// share the outbound queue with event deliveries so a single writer
// owns the socket.
func (c *WsConnection) sendFrame(frame domain.ServerFrame) {
	raw, err := json.Marshal(frame)
	if err != nil {
		logger.Warn("Failed to marshal frame", zap.Error(err))
		return
	}
	if !c.Enqueue(raw) {
		logger.Warn("outbound queue full, dropping control frame",
			zap.String("connection_id", c.id),
			zap.String("frame_type", frame.Type))
		metrics.IncrementEventsDropped("backpressure")
	}
}

func (c *WsConnection) sendAck(id string) {
	c.sendFrame(domain.ServerFrame{Type: constants.FrameAck, ID: id})
}

func (c *WsConnection) sendError(id, code, message string) {
	c.sendFrame(domain.ServerFrame{Type: constants.FrameError, ID: id, Code: code, Message: message})
}

// HandleMessages processes incoming commands from the client
func (c *WsConnection) HandleMessages(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Recovered from panic in HandleMessages",
				zap.Any("panic", r),
				zap.String("client", c.RemoteAddr()),
			)
		}
		// Always ensure connection is properly closed and unregistered
		c.setCloseReason("message handler terminated")
		c.Close()
	}()

	clientIP := c.realClientIP

	lastPong := time.Now()
	c.ws.SetPongHandler(func(string) error {
		c.touch()
		lastPong = time.Now()
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			c.setCloseReason("connection context canceled")
			return
		case <-c.done:
			return
		default:
			// Keep going
		}

		_ = c.ws.SetReadDeadline(time.Now().Add(constants.PongTimeout)) // nolint:errcheck // deadline is non-critical
		if time.Since(lastPong) > constants.PongTimeout+30*time.Second {
			logger.Debug("No pong response, closing connection",
				zap.String("client", c.RemoteAddr()))
			c.setCloseReason("no pong response")
			return
		}

		// Read message
		_, rawMsg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.setCloseReason("client closed connection")
				logger.Debug("Client closed connection normally",
					zap.String("client", c.RemoteAddr()))
			} else {
				c.setCloseReason("read error")
				logger.Debug("WS read error, disconnecting client",
					zap.Error(err),
					zap.String("client", c.RemoteAddr()))
			}
			return
		}

		metrics.FrameSizeBytes.Observe(float64(len(rawMsg)))
		c.touch()

		var cmd domain.ClientCommand
		if err := json.Unmarshal(rawMsg, &cmd); err != nil {
			c.sendError("", "PROTOCOL_ERROR", "malformed JSON from client")
			continue
		}
		if cmd.Action == "" {
			c.sendError(cmd.ID, "PROTOCOL_ERROR", "missing action")
			continue
		}

		if c.cfg.Throttling.RateLimit.Enabled && !c.limiter.Allow() {
			banDuration := time.Duration(c.cfg.Throttling.BanDuration) * time.Second
			count, banned := c.bans.Strike(clientIP, c.cfg.Throttling.BanThreshold, banDuration)

			logger.Debug("Client rate limit violation",
				zap.String("client_ip", clientIP),
				zap.Int("violation_count", count),
				zap.Int("ban_threshold", c.cfg.Throttling.BanThreshold))

			c.sendError(cmd.ID, "RATE_LIMIT_EXCEEDED", "too many commands")

			if banned {
				logger.Warn("Banning client due to repeated rate limit violations",
					zap.String("client_ip", clientIP),
					zap.Int("violation_count", count),
					zap.Duration("ban_duration", banDuration))

				c.sendError(cmd.ID, "CLIENT_BANNED", "temporarily banned")
				c.setCloseReason("client banned")
				return
			}
			continue
		}

		// Update command metrics
		metrics.CommandsReceived.WithLabelValues(cmd.Action).Inc()

		// Process the command
		start := time.Now()
		switch cmd.Action {
		case constants.ActionSubscribe:
			c.handleSubscribe(&cmd)
		case constants.ActionUnsubscribe:
			c.handleUnsubscribe(&cmd)
		case constants.ActionPublish:
			c.handlePublish(&cmd)
		case constants.ActionPing:
			c.sendFrame(domain.ServerFrame{Type: constants.FramePong, ID: cmd.ID})
		default:
			c.sendError(cmd.ID, "PROTOCOL_ERROR", "unknown action '"+cmd.Action+"'")
		}
		metrics.CommandProcessingDuration.WithLabelValues(cmd.Action).Observe(time.Since(start).Seconds())
	}
}

// handleSubscribe resolves the channel family and registers the
// subscription. The client's label is echoed on every delivered frame.
func (c *WsConnection) handleSubscribe(cmd *domain.ClientCommand) {
	if !c.principal.Authenticated() {
		c.sendError(cmd.ID, "UNAUTHENTICATED", "subscription requires authentication")
		return
	}

	spec, err := ResolveFamily(cmd.Channel)
	if err != nil {
		c.sendError(cmd.ID, "CHANNEL_ERROR", "unknown channel family '"+cmd.Channel+"'")
		return
	}
	if spec.TargetRequired && cmd.Target == "" {
		c.sendError(cmd.ID, "CHANNEL_ERROR", "missing target")
		return
	}
	if cmd.Target != "" {
		if err := ValidateChannelName(cmd.Target); err != nil {
			c.sendError(cmd.ID, "CHANNEL_ERROR", "invalid target")
			return
		}
	}
	if len(cmd.ID) > constants.MaxSubIDLength {
		c.sendError(cmd.ID, "SUBSCRIPTION_ERROR", "subscription id too long")
		return
	}

	label := cmd.ID
	if label == "" {
		label = uuid.NewString()
	}

	c.subMu.Lock()
	if _, exists := c.subIDs[label]; exists {
		c.subMu.Unlock()
		c.sendError(label, "SUBSCRIPTION_ERROR", "subscription id already in use")
		return
	}
	c.subMu.Unlock()

	pattern := spec.Pattern(cmd.Target, c.principal)
	subID, err := c.node.Registry().Subscribe(
		c.id,
		label,
		pattern,
		spec.Predicate(c.policy, cmd.Target),
		spec.Mapper(cmd.Target),
	)
	if err != nil {
		c.sendError(label, "SUBSCRIPTION_ERROR", "subscription rejected")
		logger.Debug("subscribe rejected",
			zap.String("connection_id", c.id),
			zap.String("pattern", pattern),
			zap.Error(err))
		return
	}

	c.subMu.Lock()
	c.subIDs[label] = subID
	c.subMu.Unlock()

	c.sendAck(label)
	logger.Debug("subscription registered",
		zap.String("connection_id", c.id),
		zap.String("subscription_id", subID),
		zap.String("pattern", pattern))
}

// handleUnsubscribe removes a subscription. Unknown labels still ack:
// the outcome the client asked for already holds.
func (c *WsConnection) handleUnsubscribe(cmd *domain.ClientCommand) {
	c.subMu.Lock()
	subID, ok := c.subIDs[cmd.ID]
	if ok {
		delete(c.subIDs, cmd.ID)
	}
	c.subMu.Unlock()

	if ok {
		c.node.Registry().Unsubscribe(subID)
	}
	c.sendAck(cmd.ID)
}

// handlePublish pushes a client-originated event into the publish
// pipeline. Only families marked ClientPublish accept these.
func (c *WsConnection) handlePublish(cmd *domain.ClientCommand) {
	if !c.principal.Authenticated() {
		c.sendError(cmd.ID, "UNAUTHENTICATED", "publish requires authentication")
		return
	}

	spec, err := ResolveFamily(cmd.Channel)
	if err != nil {
		c.sendError(cmd.ID, "CHANNEL_ERROR", "unknown channel family '"+cmd.Channel+"'")
		return
	}
	if !spec.ClientPublish {
		c.sendError(cmd.ID, "ACCESS_DENIED", "family does not accept client publishes")
		return
	}
	if len(cmd.Payload) > constants.MaxPayloadLength {
		c.sendError(cmd.ID, "PROTOCOL_ERROR", "payload too large")
		return
	}

	target := cmd.Target
	switch spec.Name {
	case constants.FamilyPresence, constants.FamilyActivity:
		// Presence and activity beacons always describe the sender
		target = c.principal.UserID
	default:
		if target == "" {
			c.sendError(cmd.ID, "CHANNEL_ERROR", "missing target")
			return
		}
		if err := ValidateChannelName(target); err != nil {
			c.sendError(cmd.ID, "CHANNEL_ERROR", "invalid target")
			return
		}
	}

	channels, err := PublishChannels(spec.Name, c.principal.UserID, target)
	if err != nil {
		c.sendError(cmd.ID, "CHANNEL_ERROR", "invalid publish target")
		return
	}

	if !c.publish(channels, cmd.Payload, c.principal.UserID) {
		c.sendError(cmd.ID, "RATE_LIMIT_EXCEEDED", "publish pipeline saturated")
		return
	}

	metrics.EventsPublished.WithLabelValues(spec.Name).Inc()
	c.sendAck(cmd.ID)
}

// Close gracefully shuts down the WebSocket
func (c *WsConnection) Close() {
	c.closeMu.Do(func() {
		c.isClosed.Store(true)

		reason := c.getCloseReason()
		if reason != "" {
			logger.Debug("WebSocket connection closed",
				zap.String("reason", reason),
				zap.String("connection_id", c.id),
				zap.String("client_ip", c.RemoteAddr()),
				zap.Duration("connection_duration", time.Since(c.startTime)))
		}

		// Update metrics - only decrement once
		if !c.metricsDecremented.Swap(true) {
			metrics.DecrementActiveConnections()
		}

		if c.pingTicker != nil {
			c.pingTicker.Stop()
		}

		// Attempt a polite close
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))

		// Unregister cascades the subscription cleanup
		c.node.UnregisterConn(c)

		// Stop the write pump, then close the socket
		close(c.done)
		_ = c.ws.Close()

		logger.Debug("WebSocket connection cleanup completed",
			zap.String("connection_id", c.id))
	})
}

// monitorConnection handles keepalive pings and idle timeouts
func (c *WsConnection) monitorConnection(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.setCloseReason("server shutting down")
			c.Close()
			return
		case <-c.done:
			return
		case <-c.pingTicker.C:
			if c.isClosed.Load() {
				return
			}
			err := c.ws.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(5*time.Second))
			if err != nil {
				logger.Debug("Failed to send ping, closing connection",
					zap.Error(err),
					zap.String("client", c.RemoteAddr()))
				c.setCloseReason("ping failed")
				c.Close()
				return
			}
		case <-ticker.C:
			if c.idle() > c.cfg.IdleTimeout {
				c.setCloseReason("idle timeout")
				c.Close()
				return
			}
		}
	}
}
