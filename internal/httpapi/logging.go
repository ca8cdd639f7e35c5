package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/ent0n29/isoauditor/internal/auth"
)

type logFieldsKey struct{}

// logFields collects values that inner handlers learn after the request started.
type logFields struct {
	userID string
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		fields := &logFields{}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), logFieldsKey{}, fields)))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		}
		if fields.userID != "" {
			attrs = append(attrs, "user_id", fields.userID)
		}
		slog.Log(r.Context(), level, "http request", attrs...)
	})
}

// noteUser copies the authenticated user into the request log line.
func noteUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fields, ok := r.Context().Value(logFieldsKey{}).(*logFields); ok {
			fields.userID = auth.UserID(r.Context())
		}
		next.ServeHTTP(w, r)
	})
}
