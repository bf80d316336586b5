// Package server implements the HTTP surface: routing, handlers, and
// middleware binding the lifecycle manager and workflow engine to
// external callers.
package server

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/opscore/core/internal/apperrors"
)

// bearerAuthMiddleware rejects requests whose Authorization header does
// not present the configured shared secret, via constant-time
// comparison, per spec.md §4.5/§4.6. Written fresh: the teacher has no
// bearer-auth gate to adapt (only SecurityHeadersMiddleware, which
// strips response headers rather than authenticating requests), but this
// follows that same lightweight http.Handler-wrapping idiom.
func bearerAuthMiddleware(expectedToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !checkBearerToken(r, expectedToken) {
				writeError(w, apperrors.New(apperrors.KindUnauthorized, "missing or invalid bearer token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func checkBearerToken(r *http.Request, expectedToken string) bool {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	got := []byte(strings.TrimPrefix(header, prefix))
	want := []byte(expectedToken)

	if len(got) != len(want) {
		return false
	}
	return subtle.ConstantTimeCompare(got, want) == 1
}

// requestLoggingMiddleware logs one bracketed line per request in the
// teacher's [COMPONENT] log-tag style. No direct teacher precedent
// exists for structured request logging; written fresh in that idiom.
func requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		log.Printf("[HTTP] %s %s %s %d %s", r.Method, r.URL.Path, r.RemoteAddr, sw.status, time.Since(start))
	})
}

// statusWriter captures the status code written so the request logger
// can report it; http.ResponseWriter itself exposes no getter.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}
