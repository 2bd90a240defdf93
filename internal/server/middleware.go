// Package server exposes the gateway over HTTP.
package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

type hashedKey struct {
	key  string
	hash [sha256.Size]byte
}

// AuthMiddleware requires the x-api-key header to match keyProvider's value.
// keyProvider is read per request so the key can be rotated by a config
// reload; an empty key disables the check. The expected hash is cached until
// the key changes and compared in constant time.
func AuthMiddleware(keyProvider func() string) Middleware {
	var cached atomic.Pointer[hashedKey]

	expected := func() *hashedKey {
		key := keyProvider()
		if c := cached.Load(); c != nil && c.key == key {
			return c
		}
		c := &hashedKey{key: key, hash: sha256.Sum256([]byte(key))}
		cached.Store(c)
		return c
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			want := expected()
			if want.key == "" {
				next.ServeHTTP(w, r)
				return
			}

			provided := r.Header.Get("x-api-key")
			if provided == "" {
				failAuth(w, r, "missing x-api-key header")
				return
			}
			got := sha256.Sum256([]byte(provided))
			if subtle.ConstantTimeCompare(got[:], want.hash[:]) != 1 {
				failAuth(w, r, "invalid x-api-key")
				return
			}

			zerolog.Ctx(r.Context()).Debug().Msg("authentication succeeded")
			next.ServeHTTP(w, r)
		})
	}
}

func failAuth(w http.ResponseWriter, r *http.Request, reason string) {
	zerolog.Ctx(r.Context()).Warn().Msg("authentication failed: " + reason)
	WriteError(w, http.StatusUnauthorized, ErrTypeAuthentication, reason)
}

// RequestIDMiddleware propagates X-Request-ID, generating one when absent,
// and attaches a logger carrying it to the request context.
func RequestIDMiddleware(base zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := base.WithContext(r.Context())
			ctx = AddRequestID(ctx, r.Header.Get("X-Request-ID"))
			w.Header().Set("X-Request-ID", GetRequestID(ctx))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggingMiddleware logs each request's completion with status and duration.
func LoggingMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			logger := zerolog.Ctx(r.Context()).With().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Logger()
			logger.Debug().Msgf("%s %s", r.Method, r.URL.Path)

			next.ServeHTTP(wrapped, r)

			duration := formatDuration(time.Since(start))
			msg := statusSymbol(wrapped.statusCode) + " " + http.StatusText(wrapped.statusCode) + " (" + duration + ")"
			done := logger.With().Int("status", wrapped.statusCode).Str("duration", duration).Logger()
			switch {
			case wrapped.statusCode >= 500:
				done.Error().Msg(msg)
			case wrapped.statusCode >= 400:
				done.Warn().Msg(msg)
			default:
				done.Info().Msg(msg)
			}
		})
	}
}

// MaxBodyBytesMiddleware caps request bodies. limitProvider is read per
// request; a limit of 0 or less disables the cap.
func MaxBodyBytesMiddleware(limitProvider func() int64) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit := limitProvider(); limit > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Chain applies middlewares so the first one is outermost.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func statusSymbol(statusCode int) string {
	switch {
	case statusCode >= 500:
		return "✗"
	case statusCode >= 400:
		return "⚠"
	default:
		return "✓"
	}
}

// formatDuration picks µs, ms or s so fast and slow requests both read well.
func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	d = d.Round(time.Microsecond)
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	default:
		return d.Truncate(time.Second).String()
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}
