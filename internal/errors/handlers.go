package errors

import (
	"github.com/chatwire/gateway/internal/logger"
	"go.uber.org/zap"
)

// Define a custom type for context keys to avoid collisions
type contextKey string

const requestIDKey contextKey = "request_id"

// WebSocketHandler is a specialized handler for WebSocket connections
type WebSocketHandler struct {
	errorMiddleware *ErrorMiddleware
	logger          *zap.Logger
}

// NewWebSocketHandler creates a new WebSocket error handler
func NewWebSocketHandler() *WebSocketHandler {
	return &WebSocketHandler{
		errorMiddleware: NewErrorMiddleware(),
		logger:          logger.New("websocket_error_handler"),
	}
}

// HandleWebSocketError handles WebSocket-specific errors
func (wh *WebSocketHandler) HandleWebSocketError(conn interface{}, operation string, err error) {
	if err == nil {
		return
	}

	// Convert to WebSocket error
	wsErr := WebSocketError(operation, err)

	// Log the WebSocket error
	wh.logger.Error("WebSocket error occurred",
		zap.String("operation", operation),
		zap.String("error_type", string(wsErr.Type)),
		zap.String("error_code", wsErr.Code),
		zap.String("severity", string(wsErr.Severity)),
		zap.Error(err))

	// Note: For WebSocket connections, we can't send HTTP error responses
	// The error handling here is primarily for logging and metrics
}

// BrokerHandler provides error handling specifically for broker operations
type BrokerHandler struct {
	logger *zap.Logger
}

// NewBrokerHandler creates a new broker error handler
func NewBrokerHandler() *BrokerHandler {
	return &BrokerHandler{
		logger: logger.New("broker_error_handler"),
	}
}

// HandleBrokerError processes broker errors and returns appropriately wrapped errors
func (bh *BrokerHandler) HandleBrokerError(operation string, err error) error {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if ae, ok := err.(*AppError); ok {
		appErr = ae
	} else {
		appErr = BrokerUnavailableError(operation, err)
	}

	// Log the broker error
	bh.logger.Error("Broker operation failed",
		zap.String("operation", operation),
		zap.String("error_type", string(appErr.Type)),
		zap.String("error_code", appErr.Code),
		zap.String("severity", string(appErr.Severity)),
		zap.Error(err))

	return appErr
}
