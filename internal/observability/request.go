package observability

import (
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// RequestIDFromRequest returns the propagated request id, minting one when
// the client did not send any.
func RequestIDFromRequest(r *http.Request) string {
	if id := r.Header.Get("X-Request-Id"); id != "" {
		return id
	}
	return uuid.NewString()
}

// DeviceIDFromRequest returns the client-declared device identifier, if any.
func DeviceIDFromRequest(r *http.Request) string {
	return r.Header.Get("X-Device-Id")
}

// IPFromRequest resolves the client address, honoring X-Forwarded-For.
func IPFromRequest(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
