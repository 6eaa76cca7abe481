package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPISecurityHeadersApplied(t *testing.T) {
	handler := SecureAPIHandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "default-src 'none'")
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-referrer", w.Header().Get("Referrer-Policy"))
}

func TestValidateRequest(t *testing.T) {
	iv := APIInputValidation()

	t.Run("accepts normal request", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
		assert.NoError(t, iv.ValidateRequest(r))
	})

	t.Run("rejects disallowed method", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodDelete, "/api/stats", nil)
		assert.Error(t, iv.ValidateRequest(r))
	})

	t.Run("rejects oversized path", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/"+strings.Repeat("a", 300), nil)
		assert.Error(t, iv.ValidateRequest(r))
	})

	t.Run("rejects oversized query", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/stats?q="+strings.Repeat("a", 2000), nil)
		assert.Error(t, iv.ValidateRequest(r))
	})

	t.Run("rejects oversized header", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
		r.Header.Set("X-Custom", strings.Repeat("a", 5000))
		assert.Error(t, iv.ValidateRequest(r))
	})
}

func TestValidatedHandlerFuncRejects(t *testing.T) {
	called := false
	handler := SecureValidatedAPIHandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodDelete, "/api/stats", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, called)
}
