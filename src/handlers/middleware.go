// src/handlers/middleware.go
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/username/finledger/backend/src/logger"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

// ContextualLoggerMiddleware tags every request with a generated requestID and
// puts a logger carrying it into the request context. Handlers retrieve it via
// logger.FromContext.
func ContextualLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()

		ctxLogger := logger.L.With(slog.String("requestID", requestID))

		ctx := logger.ToContext(r.Context(), ctxLogger)
		ctx = context.WithValue(ctx, requestIDContextKey, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
