package web

import (
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/chatwire/gateway/internal/logger"
	"go.uber.org/zap"
)

// SecurityHeaders defines the security headers to be applied to responses
type SecurityHeaders struct {
	// Content Security Policy - prevents XSS and other injection attacks
	CSP string
	// X-Frame-Options - prevents clickjacking
	XFrameOptions string
	// X-Content-Type-Options - prevents MIME sniffing
	XContentTypeOptions string
	// Referrer-Policy - controls referrer information
	ReferrerPolicy string
}

// APISecurityHeaders returns security headers for the gateway's JSON
// API endpoints. Transport-level headers (HSTS) belong to the reverse
// proxy, not the application.
func APISecurityHeaders() *SecurityHeaders {
	return &SecurityHeaders{
		CSP: "default-src 'none'; " +
			"frame-ancestors 'none'",
		XFrameOptions:       "DENY",
		XContentTypeOptions: "nosniff",
		ReferrerPolicy:      "no-referrer",
	}
}

// Apply applies the security headers directly to a ResponseWriter
func (sh *SecurityHeaders) Apply(w http.ResponseWriter) {
	if sh.CSP != "" {
		w.Header().Set("Content-Security-Policy", sh.CSP)
	}
	if sh.XFrameOptions != "" {
		w.Header().Set("X-Frame-Options", sh.XFrameOptions)
	}
	if sh.XContentTypeOptions != "" {
		w.Header().Set("X-Content-Type-Options", sh.XContentTypeOptions)
	}
	if sh.ReferrerPolicy != "" {
		w.Header().Set("Referrer-Policy", sh.ReferrerPolicy)
	}
}

// SecurityHandlerFunc wraps an http.HandlerFunc with security headers
func SecurityHandlerFunc(headers *SecurityHeaders, handlerFunc http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		headers.Apply(w)
		handlerFunc(w, r)
	}
}

// SecureAPIHandlerFunc wraps an API handler with API security headers
func SecureAPIHandlerFunc(handlerFunc http.HandlerFunc) http.HandlerFunc {
	return SecurityHandlerFunc(APISecurityHeaders(), handlerFunc)
}

// InputValidation provides basic request validation for API endpoints
type InputValidation struct {
	// MaxPathLength limits URL path length
	MaxPathLength int
	// MaxQueryLength limits total query string length
	MaxQueryLength int
	// MaxHeaderLength limits individual header value length
	MaxHeaderLength int
	// AllowedMethods restricts HTTP methods; empty allows everything
	AllowedMethods []string
}

// APIInputValidation returns validation settings for the JSON API.
func APIInputValidation() *InputValidation {
	return &InputValidation{
		MaxPathLength:   256,
		MaxQueryLength:  1024,
		MaxHeaderLength: 4096,
		AllowedMethods:  []string{http.MethodGet, http.MethodPost},
	}
}

// ValidationError describes a rejected request
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request %s: %s", e.Field, e.Reason)
}

// ValidateRequest rejects requests that violate the validation settings
func (iv *InputValidation) ValidateRequest(r *http.Request) error {
	if len(iv.AllowedMethods) > 0 {
		allowed := false
		for _, m := range iv.AllowedMethods {
			if r.Method == m {
				allowed = true
				break
			}
		}
		if !allowed {
			return &ValidationError{Field: "method", Reason: "method not allowed"}
		}
	}

	if iv.MaxPathLength > 0 && len(r.URL.Path) > iv.MaxPathLength {
		return &ValidationError{Field: "path", Reason: "path too long"}
	}
	if !utf8.ValidString(r.URL.Path) {
		return &ValidationError{Field: "path", Reason: "path is not valid UTF-8"}
	}

	if iv.MaxQueryLength > 0 && len(r.URL.RawQuery) > iv.MaxQueryLength {
		return &ValidationError{Field: "query", Reason: "query string too long"}
	}

	if iv.MaxHeaderLength > 0 {
		for name, values := range r.Header {
			for _, v := range values {
				if len(v) > iv.MaxHeaderLength {
					return &ValidationError{Field: "header", Reason: "header " + name + " too long"}
				}
			}
		}
	}

	return nil
}

// ValidatedHandlerFunc wraps a handler with request validation
func ValidatedHandlerFunc(validation *InputValidation, handlerFunc http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := validation.ValidateRequest(r); err != nil {
			logger.Warn("Rejected invalid API request",
				zap.String("path", r.URL.Path),
				zap.String("client_ip", r.RemoteAddr),
				zap.Error(err))
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		handlerFunc(w, r)
	}
}

// SecureValidatedAPIHandlerFunc combines API security headers with
// request validation.
func SecureValidatedAPIHandlerFunc(handlerFunc http.HandlerFunc) http.HandlerFunc {
	return ValidatedHandlerFunc(APIInputValidation(), SecureAPIHandlerFunc(handlerFunc))
}
