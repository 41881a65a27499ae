package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const requestIDHeader = "X-Request-ID"

type ctxKey struct{}

// RequestID returns the id the instrument middleware attached to ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusRecorder) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// instrument tags each request with an id, logs it and records the request
// metrics. The route attribute is the matched mux pattern so ids in paths do
// not blow up metric cardinality.
func (a *API) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := sanitizeRequestID(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		rec := &statusRecorder{ResponseWriter: w}
		r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, id))

		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		took := time.Since(start)
		attrs := metric.WithAttributes(
			attribute.String("route", route),
			attribute.Int("status", status),
		)
		if a.metrics.HTTPRequests != nil {
			a.metrics.HTTPRequests.Add(r.Context(), 1, attrs)
		}
		if a.metrics.HTTPDuration != nil {
			a.metrics.HTTPDuration.Record(r.Context(), took.Seconds(), attrs)
		}
		a.log.Info("api request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", rec.bytes,
			"duration_ms", took.Milliseconds(),
			"remote_addr", r.RemoteAddr,
		)
	})
}

func sanitizeRequestID(raw string) string {
	v := strings.TrimSpace(raw)
	if v == "" || len(v) > 128 {
		return ""
	}
	for _, ch := range v {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		case ch == '-' || ch == '_' || ch == '.':
		default:
			return ""
		}
	}
	return v
}
