package middleware

import "net/http"

// Vary appends request headers that influence the representation to the
// Vary response header. Without arguments it adds Accept, since responses
// are negotiated between JSON and CBOR. CORS adds Origin on its own.
func Vary(headers ...string) func(http.Handler) http.Handler {
	if len(headers) == 0 {
		headers = []string{"Accept"}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, h := range headers {
				w.Header().Add("Vary", h)
			}
			next.ServeHTTP(w, r)
		})
	}
}
