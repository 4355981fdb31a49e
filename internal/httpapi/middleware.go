// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nestling Contributors

package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/nestling/nestling/internal/auth"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain applies mws so the first one is outermost.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// HTTPRecorder receives one observation per served request.
type HTTPRecorder interface {
	ObserveHTTPRequest(method, route string, status int, elapsed time.Duration)
}

// statusRecorder captures the status code and body size.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	written     int64
	wroteHeader bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	//nolint:wrapcheck // ResponseWriter passthrough
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func record(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

// CompileSkipPatterns compiles access-log skip globs. "*" stays within one
// path segment and "**" crosses segments.
func CompileSkipPatterns(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, oops.Code("HTTP_INVALID_SKIP_PATTERN").With("pattern", p).Wrap(err)
		}
		out = append(out, g)
	}
	return out, nil
}

// AccessLog logs one line per request. Paths matching skip are not logged.
// Headers and bodies are never logged.
func AccessLog(logger *slog.Logger, skip []glob.Glob) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, g := range skip {
				if g.Match(r.URL.Path) {
					next.ServeHTTP(w, r)
					return
				}
			}

			start := time.Now()
			rec := record(w)
			next.ServeHTTP(rec, r)

			level := slog.LevelInfo
			switch {
			case rec.status >= http.StatusInternalServerError:
				level = slog.LevelError
			case rec.status >= http.StatusBadRequest:
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"bytes", rec.written,
				"remote_addr", r.RemoteAddr,
			)
		})
	}
}

var errPanic = errors.New("handler panicked")

// Recovery turns a handler panic into a 500 with the internal error body.
func Recovery(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := record(w)
			defer func() {
				if p := recover(); p != nil {
					if p == http.ErrAbortHandler {
						panic(p)
					}
					logger.ErrorContext(r.Context(), "panic in http handler",
						"panic", p,
						"method", r.Method,
						"path", r.URL.Path,
						"stack", string(debug.Stack()),
					)
					if !rec.wroteHeader {
						writeJSON(rec, http.StatusInternalServerError, errorResponse{
							Error: auth.PublicMessage(errPanic),
							Code:  string(auth.KindInternal),
						})
					}
				}
			}()
			next.ServeHTTP(rec, r)
		})
	}
}

// Instrument reports every request to rec, labelled by routeOf.
func Instrument(rec HTTPRecorder, routeOf func(*http.Request) string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := record(w)
			next.ServeHTTP(sr, r)
			rec.ObserveHTTPRequest(r.Method, routeOf(r), sr.status, time.Since(start))
		})
	}
}
