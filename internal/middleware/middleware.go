package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cartridge/rrc-policy/internal/metrics"
)

// CorrelationHeader carries the request correlation ID in both directions.
const CorrelationHeader = "X-Correlation-ID"

type ctxKey struct{}

// ensureCorrelationID returns the request's correlation ID, assigning a new
// one to the header when the caller sent none.
func ensureCorrelationID(r *http.Request) string {
	id := r.Header.Get(CorrelationHeader)
	if id == "" {
		id = uuid.New().String()
		r.Header.Set(CorrelationHeader, id)
	}
	return id
}

// CorrelationIDFrom returns the ID stored by CorrelationID, or "".
func CorrelationIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// CorrelationID stores the request's correlation ID in its context and
// echoes it on the response.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ensureCorrelationID(r)
		w.Header().Set(CorrelationHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

// RequestLogger creates a zerolog-based request logger middleware. When
// collector is non-nil every completed request is also reported to it.
func RequestLogger(logger zerolog.Logger, collector *metrics.Collector) func(next http.Handler) http.Handler {
	return middleware.RequestLogger(&requestFormatter{logger: logger, metrics: collector})
}

// requestFormatter implements chi's LogFormatter interface
type requestFormatter struct {
	logger  zerolog.Logger
	metrics *metrics.Collector
}

func (f *requestFormatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	entry := &requestEntry{
		logger: f.logger.With().
			Str("correlation_id", ensureCorrelationID(r)).
			Str("method", r.Method).
			Str("url", r.URL.Path).
			Logger(),
		metrics: f.metrics,
		method:  r.Method,
		path:    r.URL.Path,
	}
	entry.logger.Debug().Str("remote_addr", r.RemoteAddr).Msg("Request started")
	return entry
}

// requestEntry implements chi's LogEntry interface
type requestEntry struct {
	logger  zerolog.Logger
	metrics *metrics.Collector
	method  string
	path    string
}

func (e *requestEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ interface{}) {
	e.logger.WithLevel(statusLevel(status)).
		Int("status", status).
		Int("bytes", bytes).
		Dur("elapsed", elapsed).
		Msg("Request completed")

	if e.metrics != nil {
		e.metrics.APIRequest(e.method, e.path, status, elapsed)
	}
}

func (e *requestEntry) Panic(v interface{}, stack []byte) {
	e.logger.Error().
		Interface("panic", v).
		Bytes("stack", stack).
		Msg("Request panic")
}

// statusLevel maps client errors to warn and server errors to error.
func statusLevel(status int) zerolog.Level {
	switch {
	case status >= 500:
		return zerolog.ErrorLevel
	case status >= 400:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}
