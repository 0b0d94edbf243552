package server

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// requestLogger writes one line per request in the same key=value form as the
// sync logs. It expects middleware.RequestID to run first.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		log.Printf("server request id=%s method=%s route=%s flow=%s status=%d bytes=%d duration=%s",
			middleware.GetReqID(r.Context()),
			r.Method,
			route,
			chi.URLParam(r, "flowID"),
			status,
			ww.BytesWritten(),
			time.Since(start).Round(time.Microsecond),
		)
	})
}
