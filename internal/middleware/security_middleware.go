package middleware

import "net/http"

// SecurityHeaders adds a fixed set of hardening headers to every response.
//
// The local API serves client state and map scripts that must never be
// cached or embedded by another origin:
//
//   - X-Content-Type-Options: nosniff
//   - Cache-Control: no-store, no-cache, must-revalidate
//   - Pragma: no-cache
//   - Cross-Origin-Opener-Policy: same-origin
//   - Cross-Origin-Resource-Policy: same-origin
//   - Content-Security-Policy: default-src 'self'
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Cache-Control", "no-store, no-cache, must-revalidate")
		h.Set("Pragma", "no-cache")
		h.Set("Cross-Origin-Opener-Policy", "same-origin")
		h.Set("Cross-Origin-Resource-Policy", "same-origin")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}
