package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue uses any as the key type. With a plain string key like
// "identity", ANY package that knows the string could read or shadow the
// value. Only this package can create a contextKey, so only this package can
// put an Identity into a request context.
type contextKey string

const identityKey contextKey = "identity"

// AccessVerifier is the part of TokenService the gate needs. Tests pass a
// fake to exercise the 401/500 split.
type AccessVerifier interface {
	VerifyAccess(token string) (Identity, error)
}

var _ AccessVerifier = (*TokenService)(nil)

const (
	unauthorizedBody = `{"error":"unauthorized","message":"valid authentication required"}`
	internalBody     = `{"error":"internal_error","message":"an unexpected error occurred"}`
)

// RequireAuth is a middleware that enforces authentication on protected routes.
//
// It reads the access token from the "Authorization: Bearer <token>" header,
// verifies it, and stores the resulting Identity in the request context.
//
//   - header missing, wrong scheme, or empty token → 401
//   - verification fails with ErrInvalidToken      → 401
//   - verification fails with anything else         → 500
//
// Every 401 carries the same body, so a client can't tell an expired token
// from a forged one.
//
// MIDDLEWARE PATTERN IN GO:
// A middleware takes an http.Handler and returns a new http.Handler that
// wraps it. Chi applies them in a chain: req → M1 → M2 → Handler → M2 → M1.
func RequireAuth(verifier AccessVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeGateError(w, http.StatusUnauthorized, unauthorizedBody)
				return
			}

			identity, err := verifier.VerifyAccess(token)
			if err != nil {
				if errors.Is(err, ErrInvalidToken) {
					logger.Debug("rejected access token", "error", err)
					writeGateError(w, http.StatusUnauthorized, unauthorizedBody)
					return
				}
				logger.Error("verifying access token", "error", err)
				writeGateError(w, http.StatusInternalServerError, internalBody)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext retrieves the authenticated identity set by RequireAuth.
// Returns false on routes that aren't behind the gate.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.UserID != ""
}

// UserIDFromContext is a shortcut for IdentityFromContext(ctx).UserID.
//
// Usage in handlers:
//
//	userID, ok := auth.UserIDFromContext(r.Context())
//	if !ok {
//	    // route is missing the RequireAuth middleware
//	}
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := IdentityFromContext(ctx)
	return id.UserID, ok
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
// The scheme is matched case-insensitively (RFC 7235).
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

func writeGateError(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}
