package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"idserver/internal/token"
)

// AccessTokenValidator verifies a bearer access token and returns its claims.
type AccessTokenValidator interface {
	ValidateAccessToken(tokenString string) (*token.AccessTokenClaims, error)
}

type contextKeySubject struct{}
type contextKeyClientID struct{}
type contextKeyScope struct{}

// Subject retrieves the authenticated subject from the context.
func Subject(ctx context.Context) string {
	s, _ := ctx.Value(contextKeySubject{}).(string)
	return s
}

// ClientID retrieves the token's client from the context.
func ClientID(ctx context.Context) string {
	s, _ := ctx.Value(contextKeyClientID{}).(string)
	return s
}

// Scope retrieves the token's granted scope from the context.
func Scope(ctx context.Context) string {
	s, _ := ctx.Value(contextKeyScope{}).(string)
	return s
}

// RequireBearer guards resource endpoints (userinfo) with access token
// validation. Failures answer with the RFC 6750 WWW-Authenticate header.
func RequireBearer(validator AccessTokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				unauthorized(w, `Bearer realm="idserver"`)
				return
			}

			claims, err := validator.ValidateAccessToken(raw)
			if err != nil {
				logger.WarnContext(ctx, "rejected bearer token", "error", err)
				unauthorized(w, `Bearer realm="idserver", error="invalid_token"`)
				return
			}

			ctx = context.WithValue(ctx, contextKeySubject{}, claims.Subject)
			ctx = context.WithValue(ctx, contextKeyClientID{}, claims.ClientID)
			ctx = context.WithValue(ctx, contextKeyScope{}, claims.Scope)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, challenge string) {
	w.Header().Set("WWW-Authenticate", challenge)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"invalid_token","error_description":"missing or invalid access token"}`))
}
