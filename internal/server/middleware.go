package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"groupsync/internal/gs"
)

type contextKey string

const clientIDKey contextKey = "clientID"

// requireClient rejects requests without an X-Client-Id header and stores
// the id in the request context.
func requireClient(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(gs.HeaderClientID))
		if id == "" {
			writeJSON(w, http.StatusBadRequest, gs.ErrorResponse{
				Error: "missing " + gs.HeaderClientID + " header",
				Code:  gs.CodeInvalidRequest,
			})
			return
		}
		ctx := context.WithValue(r.Context(), clientIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(clientIDKey).(string)
	return id
}

// accessLog writes one record per request through the server logger.
func accessLog(logger gs.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			}
			if id := r.Header.Get(gs.HeaderClientID); id != "" {
				args = append(args, "client", id)
			}

			switch {
			case status >= 500:
				logger.Error("request", args...)
			case status >= 400:
				logger.Warn("request", args...)
			default:
				logger.Debug("request", args...)
			}
		})
	}
}
