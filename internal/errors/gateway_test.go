package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMalformedEventError(t *testing.T) {
	cause := stderrors.New("invalid character '{'")
	err := MalformedEventError("presence.u1", cause)

	assert.Equal(t, "MALFORMED_EVENT", err.Code)
	assert.Equal(t, ErrorTypeValidation, err.Type)
	assert.Contains(t, err.Details, "presence.u1")
	assert.ErrorIs(t, err, cause)
}

func TestBackpressureError(t *testing.T) {
	err := BackpressureError("conn-1")

	assert.Equal(t, "OUTBOUND_BACKPRESSURE", err.Code)
	assert.Equal(t, ErrorTypeRateLimit, err.Type)
	assert.Contains(t, err.Details, "conn-1")
}

func TestHandleBrokerErrorWrapsPlainErrors(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := HandleBrokerError("publish presence.u1", cause)

	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "BROKER_UNAVAILABLE", appErr.Code)
	assert.Equal(t, ErrorTypeBroker, appErr.Type)
}

func TestHandleBrokerErrorPassesAppErrorsThrough(t *testing.T) {
	orig := BrokerUnavailableError("ping", stderrors.New("timeout"))
	err := HandleBrokerError("ping", orig)
	assert.Same(t, orig, err)
}

func TestHandleBrokerErrorNil(t *testing.T) {
	assert.NoError(t, HandleBrokerError("publish", nil))
}
