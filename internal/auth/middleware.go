package auth

import (
	"context"
	"fmt"
	"net/http"

	"ms-passbot/internal/logger"
)

type contextKey string

const adminIDKey contextKey = "admin_id"

// Middleware lets through requests carrying a valid scanner token and puts
// the admin id into the request context.
func Middleware(tokens *Tokens, log *logger.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := ExtractTokenFromRequest(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			adminID, err := tokens.Verify(raw)
			if err != nil {
				log.LogSecurity("TOKEN_REJECTED", fmt.Sprintf("%s %s from %s: %v", r.Method, r.URL.Path, r.RemoteAddr, err))
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), adminIDKey, adminID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminID returns the id put into ctx by Middleware, or 0.
func AdminID(ctx context.Context) int64 {
	if id, ok := ctx.Value(adminIDKey).(int64); ok {
		return id
	}
	return 0
}
