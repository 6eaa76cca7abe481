package errors

import (
	"net/http"

	"github.com/chatwire/gateway/internal/logger"
	"go.uber.org/zap"
)

var (
	// Global error middleware instance
	globalErrorMiddleware *ErrorMiddleware

	// Global specialized handlers
	globalWebSocketHandler *WebSocketHandler
	globalBrokerHandler    *BrokerHandler
)

// InitErrorHandling initializes the global error handling system
func InitErrorHandling() {
	globalErrorMiddleware = NewErrorMiddleware()
	globalWebSocketHandler = NewWebSocketHandler()
	globalBrokerHandler = NewBrokerHandler()

	logger.Info("Error handling system initialized",
		zap.String("component", "error_middleware"))
}

// GetErrorMiddleware returns the global error middleware instance
func GetErrorMiddleware() *ErrorMiddleware {
	if globalErrorMiddleware == nil {
		InitErrorHandling()
	}
	return globalErrorMiddleware
}

// GetWebSocketHandler returns the global WebSocket error handler
func GetWebSocketHandler() *WebSocketHandler {
	if globalWebSocketHandler == nil {
		InitErrorHandling()
	}
	return globalWebSocketHandler
}

// GetBrokerHandler returns the global broker error handler
func GetBrokerHandler() *BrokerHandler {
	if globalBrokerHandler == nil {
		InitErrorHandling()
	}
	return globalBrokerHandler
}

// HandleHTTPError is a convenience function for handling HTTP errors
func HandleHTTPError(w http.ResponseWriter, r *http.Request, err error) {
	GetErrorMiddleware().HandleError(w, r, err)
}

// HandleWebSocketError is a convenience function for handling WebSocket errors
func HandleWebSocketError(conn interface{}, operation string, err error) {
	GetWebSocketHandler().HandleWebSocketError(conn, operation, err)
}

// HandleBrokerError is a convenience function for handling broker errors
func HandleBrokerError(operation string, err error) error {
	return GetBrokerHandler().HandleBrokerError(operation, err)
}

// RecoveryMiddleware returns a middleware that recovers from panics
func RecoveryMiddleware(next http.Handler) http.Handler {
	return GetErrorMiddleware().RecoveryMiddleware(next)
}
