package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const requestCompletedMsg = "http request completed"

// loggingResponseWriter collects what the completion log reports besides the
// status: the error sent to the client and fields added by the handler.
type loggingResponseWriter struct {
	middleware.WrapResponseWriter
	errorMessage string
	attrs        []any
}

func newLoggingResponseWriter(w http.ResponseWriter, r *http.Request) *loggingResponseWriter {
	return &loggingResponseWriter{WrapResponseWriter: middleware.NewWrapResponseWriter(w, r.ProtoMajor)}
}

func (w *loggingResponseWriter) SetErrorMessage(message string) {
	w.errorMessage = message
}

// AddLogAttrs appends key/value pairs to the request completion log.
func (w *loggingResponseWriter) AddLogAttrs(attrs ...any) {
	w.attrs = append(w.attrs, attrs...)
}

func (w *loggingResponseWriter) Flush() {
	if flusher, ok := w.WrapResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *loggingResponseWriter) status() int {
	if status := w.Status(); status != 0 {
		return status
	}
	return http.StatusOK
}

// addLogAttrs is a no-op when w is not wrapped by requestLoggingMiddleware.
func addLogAttrs(w http.ResponseWriter, attrs ...any) {
	if len(attrs) == 0 {
		return
	}
	if lw, ok := w.(interface{ AddLogAttrs(...any) }); ok {
		lw.AddLogAttrs(attrs...)
	}
}

// requestFields identifies a request in every log line about it.
func requestFields(r *http.Request) []any {
	return []any{
		"request_id", middleware.GetReqID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
		"route", routePattern(r),
		"remote_ip", r.RemoteAddr,
	}
}

func levelForStatus(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// requestLoggingMiddleware writes one line per request. Intelligence
// requests add mode, tickers and generation stats through addLogAttrs.
func requestLoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lw := newLoggingResponseWriter(w, r)
			next.ServeHTTP(lw, r)

			status := lw.status()
			fields := append(requestFields(r),
				"status", status,
				"bytes", lw.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"user_agent", r.UserAgent(),
			)
			fields = append(fields, lw.attrs...)
			if lw.errorMessage != "" {
				fields = append(fields, "error_message", lw.errorMessage)
			}
			logger.Log(r.Context(), levelForStatus(status), requestCompletedMsg, fields...)
		})
	}
}

// recoveryLoggingMiddleware turns a handler panic into a logged 500 unless a
// response was already started. http.ErrAbortHandler is re-raised.
func recoveryLoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				recovered := recover()
				if recovered == nil {
					return
				}
				if recovered == http.ErrAbortHandler {
					panic(recovered)
				}
				message := fmt.Sprint(recovered)
				logger.Error("panic recovered", append(requestFields(r),
					"panic", message,
					"stack", string(debug.Stack()),
				)...)

				if sw, ok := w.(interface{ Status() int }); ok && sw.Status() != 0 {
					return
				}
				writeErrorBody(w, http.StatusInternalServerError, map[string]any{
					"error":   "Internal server error",
					"message": message,
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
