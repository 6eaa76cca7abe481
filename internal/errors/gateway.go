package errors

import (
	"fmt"

	"github.com/gorilla/websocket"
)

// Gateway-specific error constructors

// WebSocketError creates an error for WebSocket-related issues
func WebSocketError(operation string, cause error) *AppError {
	// Determine specific WebSocket error type
	var code string
	var severity ErrorSeverity
	var userMessage string

	if websocket.IsCloseError(cause, websocket.CloseNormalClosure) {
		code = "WS_NORMAL_CLOSURE"
		severity = SeverityLow
		userMessage = "Connection closed normally."
	} else if websocket.IsCloseError(cause, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
		code = "WS_ABNORMAL_CLOSURE"
		severity = SeverityMedium
		userMessage = "Connection lost unexpectedly."
	} else if websocket.IsUnexpectedCloseError(cause, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
		code = "WS_UNEXPECTED_CLOSURE"
		severity = SeverityMedium
		userMessage = "Connection closed unexpectedly."
	} else {
		code = "WS_ERROR"
		severity = SeverityMedium
		userMessage = "WebSocket connection error occurred."
	}

	return Wrap(cause, ErrorTypeNetwork, code, fmt.Sprintf("WebSocket %s failed", operation)).
		WithSeverity(severity).
		WithUserMessage(userMessage)
}

// UnauthenticatedError creates an error for rejected credentials
func UnauthenticatedError(reason string) *AppError {
	return New(ErrorTypeAuthentication, "UNAUTHENTICATED", fmt.Sprintf("Authentication failed: %s", reason)).
		WithSeverity(SeverityMedium).
		WithUserMessage("Authentication failed. Please provide valid credentials.")
}

// AuthorizationError creates an authorization error
func AuthorizationError(operation, reason string) *AppError {
	return New(ErrorTypeAuthorization, "ACCESS_DENIED", fmt.Sprintf("Access denied for %s: %s", operation, reason)).
		WithSeverity(SeverityMedium).
		WithUserMessage("You don't have permission to perform this action.")
}

// ConnectionNotFoundError creates an error for operations against a
// connection that is no longer live
func ConnectionNotFoundError(connectionID string) *AppError {
	return New(ErrorTypeNotFound, "CONNECTION_NOT_FOUND", "Connection is not live").
		WithSeverity(SeverityLow).
		WithDetails(fmt.Sprintf("Connection ID: %s", connectionID)).
		WithUserMessage("The connection is no longer active.")
}

// BrokerUnavailableError creates an error for broker connectivity failures
func BrokerUnavailableError(operation string, cause error) *AppError {
	return Wrap(cause, ErrorTypeBroker, "BROKER_UNAVAILABLE", fmt.Sprintf("Broker %s failed", operation)).
		WithSeverity(SeverityHigh).
		WithUserMessage("The event broker is temporarily unavailable. Please try again later.")
}

// MalformedEventError creates an error for undecodable broker payloads
func MalformedEventError(channel string, cause error) *AppError {
	return Wrap(cause, ErrorTypeValidation, "MALFORMED_EVENT", "Received undecodable event").
		WithSeverity(SeverityLow).
		WithDetails(fmt.Sprintf("Channel: %s", channel)).
		WithUserMessage("The event could not be decoded.")
}

// BackpressureError creates an error for a full outbound queue
func BackpressureError(connectionID string) *AppError {
	return New(ErrorTypeRateLimit, "OUTBOUND_BACKPRESSURE", "Outbound queue full, dropping event").
		WithSeverity(SeverityMedium).
		WithDetails(fmt.Sprintf("Connection ID: %s", connectionID)).
		WithUserMessage("Your connection is not keeping up with its event stream.")
}

// SubscriptionError creates an error for subscription-related issues
func SubscriptionError(subID, reason string) *AppError {
	return New(ErrorTypeValidation, "SUBSCRIPTION_ERROR", fmt.Sprintf("Subscription error: %s", reason)).
		WithSeverity(SeverityLow).
		WithDetails(fmt.Sprintf("Subscription ID: %s", subID)).
		WithUserMessage("The subscription request is invalid. Please check your parameters.")
}

// ChannelError creates an error for malformed channel or pattern strings
func ChannelError(channel, reason string) *AppError {
	return New(ErrorTypeValidation, "CHANNEL_ERROR", fmt.Sprintf("Channel validation failed: %s", reason)).
		WithSeverity(SeverityLow).
		WithDetails(fmt.Sprintf("Channel: %s", channel)).
		WithUserMessage("The channel name is invalid. Please check your request.")
}

// ConnectionLimitError creates an error when connection limits are exceeded
func ConnectionLimitError(currentCount, maxCount int) *AppError {
	return New(ErrorTypeRateLimit, "CONNECTION_LIMIT_EXCEEDED",
		fmt.Sprintf("Connection limit exceeded: %d/%d", currentCount, maxCount)).
		WithSeverity(SeverityMedium).
		WithUserMessage("Too many active connections. Please try again later.")
}

// ClientBannedError creates an error for banned clients
func ClientBannedError(reason string, duration string) *AppError {
	return New(ErrorTypeAuthorization, "CLIENT_BANNED", fmt.Sprintf("Client banned: %s", reason)).
		WithSeverity(SeverityMedium).
		WithDetails(fmt.Sprintf("Ban duration: %s", duration)).
		WithUserMessage("Your client has been temporarily banned due to policy violations.")
}

// ProtocolError creates an error for wire protocol violations
func ProtocolError(action, reason string) *AppError {
	return New(ErrorTypeValidation, "PROTOCOL_ERROR", fmt.Sprintf("Protocol error in %s: %s", action, reason)).
		WithSeverity(SeverityLow).
		WithUserMessage("The request doesn't comply with the gateway protocol. Please check your client implementation.")
}

// ConfigurationError creates an error for configuration issues
func ConfigurationError(field, reason string) *AppError {
	return New(ErrorTypeInternal, "CONFIGURATION_ERROR", fmt.Sprintf("Configuration error in %s: %s", field, reason)).
		WithSeverity(SeverityCritical).
		WithUserMessage("Service is misconfigured. Please contact system administrator.")
}

// MetricsError creates an error for metrics collection issues
func MetricsError(operation string, cause error) *AppError {
	return Wrap(cause, ErrorTypeInternal, "METRICS_ERROR", fmt.Sprintf("Metrics %s failed", operation)).
		WithSeverity(SeverityLow). // Metrics errors are typically low severity
		WithUserMessage("Metrics collection error occurred.")
}
