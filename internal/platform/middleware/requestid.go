package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// maxRequestIDLength bounds caller-supplied ids.
const maxRequestIDLength = 128

// acceptRequestID reports whether a caller-supplied id is safe to log:
// non-empty, bounded, printable ASCII only.
func acceptRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	return strings.IndexFunc(id, func(r rune) bool { return r < 0x20 || r > 0x7E }) < 0
}

// RequestID stores a request identifier in the context under chi's key and
// echoes it in X-Request-Id. An acceptable incoming header is reused;
// otherwise a random UUID is minted.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(middleware.RequestIDHeader)
			if !acceptRequestID(id) {
				id = uuid.NewString()
			}
			w.Header().Set(middleware.RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), middleware.RequestIDKey, id)))
		})
	}
}
