// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/streamarr/streamarr-server-sub001/internal/log"
)

// AccessLog writes one structured line per request. Segment and playlist
// fetches log at debug to keep the volume down.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger := log.WithComponentFromContext(r.Context(), "http")
		ev := logger.Info()
		switch {
		case ww.Status() >= http.StatusInternalServerError:
			ev = logger.Error()
		case r.Method == http.MethodGet || r.Method == http.MethodHead:
			ev = logger.Debug()
		}
		ev.Str("method", r.Method).
			Str("route", routePattern(r)).
			Str(log.FieldPath, r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("remote_addr", r.RemoteAddr).
			Msg("http request")
	})
}
