package jwt

import (
	"context"
	"net/http"
	"strings"
)

// Define Context Key for storing the Payload struct, preventing key collisions with other packages.
type contextKey string

const (
	// ContextAuthPayloadKey is the key used to store the parsed Payload in the request Context.
	ContextAuthPayloadKey contextKey = "auth_payload"

	// QueryTokenKey is the query parameter that carries the token on websocket upgrades.
	QueryTokenKey = "token"
)

// BearerToken extracts the token from an "Authorization: Bearer <token>" header,
// falling back to the token query parameter used by websocket upgrades.
func BearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}

	return r.URL.Query().Get(QueryTokenKey)
}

// RequireAuthMiddleware validates the request token and injects its Payload into the
// Context. Requests without a valid token are rejected through onReject.
func RequireAuthMiddleware(secretKey string, onReject func(w http.ResponseWriter, r *http.Request)) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := BearerToken(r)
			if tokenString == "" {
				onReject(w, r)
				return
			}

			payload, err := ParseToken(tokenString, secretKey)
			if err != nil {
				onReject(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), ContextAuthPayloadKey, payload)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPayloadFromContext safely extracts the authenticated Payload from the request Context.
func GetPayloadFromContext(r *http.Request) *Payload {
	payload, ok := r.Context().Value(ContextAuthPayloadKey).(*Payload)

	if !ok {
		return nil
	}

	return payload
}
