package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SlidingWindow represents a simple sliding window for rate calculations
type SlidingWindow struct {
	mu      sync.RWMutex
	events  []int64 // timestamps of events
	window  time.Duration
	maxSize int
}

// NewSlidingWindow creates a new sliding window
func NewSlidingWindow(window time.Duration, maxSize int) *SlidingWindow {
	return &SlidingWindow{
		events:  make([]int64, 0, maxSize),
		window:  window,
		maxSize: maxSize,
	}
}

// Add adds an event timestamp to the window
func (sw *SlidingWindow) Add(timestamp int64) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	// Add new timestamp
	sw.events = append(sw.events, timestamp)

	// Remove old events outside the window
	now := time.Now().Unix()
	cutoff := now - int64(sw.window.Seconds())

	// Find first event within window
	i := 0
	for i < len(sw.events) && sw.events[i] < cutoff {
		i++
	}

	// Keep only events within window
	if i > 0 {
		sw.events = sw.events[i:]
	}

	// Limit size if needed
	if len(sw.events) > sw.maxSize {
		sw.events = sw.events[len(sw.events)-sw.maxSize:]
	}
}

// Rate returns the current rate (events per second)
func (sw *SlidingWindow) Rate() float64 {
	sw.mu.RLock()
	defer sw.mu.RUnlock()

	if len(sw.events) == 0 {
		return 0
	}

	now := time.Now().Unix()
	cutoff := now - int64(sw.window.Seconds())

	// Count events within the window
	count := 0
	for _, timestamp := range sw.events {
		if timestamp >= cutoff {
			count++
		}
	}

	if count == 0 {
		return 0
	}

	return float64(count) / sw.window.Seconds()
}

// Global sliding windows for rate calculations
var (
	eventWindow      = NewSlidingWindow(60*time.Second, 10000) // 1 minute window, max 10k events
	connectionWindow = NewSlidingWindow(60*time.Second, 1000)  // 1 minute window, max 1k connections
)

// Global counters for the stats API (since prometheus metrics can't be read directly)
var (
	eventsRoutedCount      int64
	activeConnectionsCount int64
	eventsDeliveredCount   int64
	eventsDroppedCount     int64
	activeSubscrCount      int64
	lastEventTimestamp     int64
	lastConnTimestamp      int64
	brokerReconnectCount   int64
	errorCount             int64
)

// GetEventsRoutedCount returns the count of events routed since start
func GetEventsRoutedCount() int64 {
	return atomic.LoadInt64(&eventsRoutedCount)
}

// IncrementEventsRouted increments both the prometheus counter and our local counter
func IncrementEventsRouted() {
	EventsRouted.Inc()
	atomic.AddInt64(&eventsRoutedCount, 1)
	now := time.Now().Unix()
	atomic.StoreInt64(&lastEventTimestamp, now)
	eventWindow.Add(now)
}

// GetActiveConnectionsCount returns the current number of active WebSocket connections
func GetActiveConnectionsCount() int64 {
	return atomic.LoadInt64(&activeConnectionsCount)
}

// IncrementActiveConnections increments both the prometheus gauge and our local counter
func IncrementActiveConnections() {
	ActiveConnections.Inc()
	atomic.AddInt64(&activeConnectionsCount, 1)
	now := time.Now().Unix()
	atomic.StoreInt64(&lastConnTimestamp, now)
	connectionWindow.Add(now)
}

// DecrementActiveConnections decrements both the prometheus gauge and our local counter
func DecrementActiveConnections() {
	ActiveConnections.Dec()
	atomic.AddInt64(&activeConnectionsCount, -1)
}

// GetEventsDeliveredCount returns the count of events delivered to clients
func GetEventsDeliveredCount() int64 {
	return atomic.LoadInt64(&eventsDeliveredCount)
}

// IncrementEventsDelivered increments the delivered events counter
func IncrementEventsDelivered() {
	EventsDelivered.Inc()
	atomic.AddInt64(&eventsDeliveredCount, 1)
}

// GetEventsDroppedCount returns the count of dropped events
func GetEventsDroppedCount() int64 {
	return atomic.LoadInt64(&eventsDroppedCount)
}

// IncrementEventsDropped increments the dropped events counter for a reason
func IncrementEventsDropped(reason string) {
	EventsDropped.WithLabelValues(reason).Inc()
	atomic.AddInt64(&eventsDroppedCount, 1)
}

// GetActiveSubscriptionsCount returns the current number of active subscriptions
func GetActiveSubscriptionsCount() int64 {
	return atomic.LoadInt64(&activeSubscrCount)
}

// IncrementActiveSubscriptions increments the active subscriptions counter
func IncrementActiveSubscriptions() {
	ActiveSubscriptions.Inc()
	atomic.AddInt64(&activeSubscrCount, 1)
}

// DecrementActiveSubscriptions decrements the active subscriptions counter
func DecrementActiveSubscriptions() {
	ActiveSubscriptions.Dec()
	atomic.AddInt64(&activeSubscrCount, -1)
}

// IncrementBrokerReconnects increments the broker reconnect counter
func IncrementBrokerReconnects() {
	BrokerReconnects.Inc()
	atomic.AddInt64(&brokerReconnectCount, 1)
}

// GetBrokerReconnectCount returns the broker reconnect count
func GetBrokerReconnectCount() int64 {
	return atomic.LoadInt64(&brokerReconnectCount)
}

// IncrementErrorCount increments the error counter
func IncrementErrorCount() {
	atomic.AddInt64(&errorCount, 1)
}

// GetErrorCount returns the current error count
func GetErrorCount() int64 {
	return atomic.LoadInt64(&errorCount)
}

// GetEventsPerSecond calculates events per second using a sliding window
func GetEventsPerSecond() float64 {
	return eventWindow.Rate()
}

// GetConnectionsPerSecond calculates new connections per second using a sliding window
func GetConnectionsPerSecond() float64 {
	return connectionWindow.Rate()
}

// GetErrorRate calculates the error rate as a percentage
func GetErrorRate() float64 {
	errors := atomic.LoadInt64(&errorCount)
	events := atomic.LoadInt64(&eventsRoutedCount)
	if events == 0 {
		return 0
	}
	return (float64(errors) / float64(events)) * 100
}

// SyncActiveConnectionsCount synchronizes the internal counter with the actual count
// This helps prevent drift between the metrics counter and reality
func SyncActiveConnectionsCount(actualCount int64) {
	currentCount := atomic.LoadInt64(&activeConnectionsCount)
	if currentCount != actualCount {
		// Update our internal counter to match reality
		atomic.StoreInt64(&activeConnectionsCount, actualCount)

		// Update prometheus gauge as well
		ActiveConnections.Set(float64(actualCount))
	}
}

// Metrics for tracking gateway performance and usage
var (
	// Connection metrics
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_gateway_active_connections",
		Help: "The number of active WebSocket connections",
	})

	ActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_gateway_active_subscriptions",
		Help: "The number of active subscriptions",
	})

	// Routing metrics
	EventsRouted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_gateway_events_routed_total",
		Help: "The total number of broker events consumed by the router",
	})

	EventsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_gateway_events_delivered_total",
		Help: "The total number of events enqueued to client connections",
	})

	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_gateway_events_dropped_total",
		Help: "The total number of events dropped by reason",
	}, []string{"reason"}) // "backpressure", "malformed", "filtered"

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_gateway_events_published_total",
		Help: "The total number of events published to the broker by family",
	}, []string{"family"})

	OutboundQueueDepth = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_gateway_outbound_queue_depth",
		Help:    "Observed outbound queue depth at enqueue time",
		Buckets: prometheus.ExponentialBuckets(1, 4, 6), // 1, 4, 16, 64, 256, 1024
	})

	// Frame metrics
	FrameSizeBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_gateway_frame_size_bytes",
		Help:    "Size of received client frames in bytes",
		Buckets: prometheus.ExponentialBuckets(10, 10, 6), // 10, 100, 1000, ..., 1000000
	})

	// Command metrics
	CommandsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_gateway_commands_received_total",
		Help: "The total number of client commands received by action",
	}, []string{"action"}) // "subscribe", "unsubscribe", "publish", "ping"

	CommandProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chat_gateway_command_processing_duration_seconds",
		Help:    "Time to process different command actions",
		Buckets: prometheus.ExponentialBuckets(0.001, 10, 5), // 0.001, 0.01, 0.1, 1, 10
	}, []string{"action"})

	// Broker metrics
	BrokerReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_gateway_broker_reconnects_total",
		Help: "The total number of broker subscription reconnect attempts",
	})

	BrokerPublishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_gateway_broker_publishes_total",
		Help: "Total number of broker publish operations by status",
	}, []string{"status"}) // "success", "failure"

	// HTTP metrics
	HTTPRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_gateway_http_requests_total",
		Help: "The total number of HTTP requests",
	})

	HTTPRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_gateway_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 10, 5), // 0.01, 0.1, 1, 10, 100
	})

	// Error metrics
	ErrorsCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_gateway_errors_total",
		Help: "The total number of errors by type",
	}, []string{"type"}) // "validation", "broker", "websocket", etc.
)

// RegisterMetrics ensures all metrics are registered with Prometheus
func RegisterMetrics() {
	// Pre-register command actions
	commandActions := []string{"subscribe", "unsubscribe", "publish", "ping"}
	for _, action := range commandActions {
		CommandsReceived.WithLabelValues(action)
		CommandProcessingDuration.WithLabelValues(action)
	}

	// Pre-register drop reasons
	dropReasons := []string{"backpressure", "malformed", "filtered"}
	for _, reason := range dropReasons {
		EventsDropped.WithLabelValues(reason)
	}

	// Pre-register error types
	errorTypes := []string{
		"validation", "broker", "websocket", "rate_limit",
		"max_connections", "auth", "timeout",
	}
	for _, errType := range errorTypes {
		ErrorsCount.WithLabelValues(errType)
	}

	// Pre-register broker publish statuses
	publishStatuses := []string{"success", "failure"}
	for _, status := range publishStatuses {
		BrokerPublishes.WithLabelValues(status)
	}
}
