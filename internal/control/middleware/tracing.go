// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/streamarr/streamarr-server-sub001/internal/control/http/problem"
)

// Tracing enriches the server span started by otelhttp: it renames the span
// after the chi route pattern once routing is done and tags the request id.
// 4xx responses are not errors.
func Tracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		span := trace.SpanFromContext(r.Context())
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		if !span.IsRecording() {
			return
		}
		route := routePattern(r)
		span.SetName(r.Method + " " + route)
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.status_code", ww.Status()),
		)
		if reqID := ww.Header().Get(problem.HeaderRequestID); reqID != "" {
			span.SetAttributes(attribute.String("http.request_id", reqID))
		}
		if ww.Status() >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(ww.Status()))
		}
	})
}
