package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

type contextKey struct{}

var actorKey contextKey

// AnonymousActor is the actor recorded when authentication is disabled.
const AnonymousActor = "anonymous"

// Auth returns middleware that resolves the request's API key to an actor
// name and stores it in the request context. Keys arrive as a Bearer token in
// the Authorization header or in the X-API-Key header. If keys is empty,
// authentication is disabled and every request runs as AnonymousActor;
// capability checks then fall to the authorization table downstream.
func Auth(keys map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(keys) == 0 {
				next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), AnonymousActor)))
				return
			}

			token := extractToken(r)
			if token == "" {
				writeUnauthorized(w, "missing authentication token")
				return
			}

			// Constant-time comparison against every configured key so
			// lookup timing does not leak which keys exist.
			actor := ""
			for key, name := range keys {
				if subtle.ConstantTimeCompare([]byte(token), []byte(key)) == 1 {
					actor = name
				}
			}
			if actor == "" {
				writeUnauthorized(w, "invalid authentication token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// WithActor returns a context carrying the authenticated actor name.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// Actor returns the authenticated actor from the context, or AnonymousActor
// when the request never passed through Auth.
func Actor(ctx context.Context) string {
	if a, ok := ctx.Value(actorKey).(string); ok && a != "" {
		return a
	}
	return AnonymousActor
}

// extractToken looks for a token in the Authorization header (Bearer scheme)
// or in the X-API-Key header.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}
	return ""
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
