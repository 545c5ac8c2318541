package api

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/beaconapp/beacon-server/internal/auth"
	domainerrors "github.com/beaconapp/beacon-server/internal/errors"
)

// ctxKey is the type for context keys to avoid collisions.
type ctxKey string

const (
	tokenKey    ctxKey = "token"
	authErrKey  ctxKey = "authErr"
	clientIPKey ctxKey = "clientIP"
)

// Authenticator verifies bearer tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.VerifiedToken, error)
}

// GetUserID returns the authenticated user ID from context.
// A rejected token reports why (expired, invalid); no token reports 401.
func GetUserID(ctx context.Context) (string, error) {
	if tok, ok := ctx.Value(tokenKey).(*auth.VerifiedToken); ok && tok.Subject != "" {
		return tok.Subject, nil
	}
	if err, ok := ctx.Value(authErrKey).(error); ok {
		return "", err
	}
	return "", domainerrors.Unauthorized("Authentication required")
}

// clientIP returns the address recorded by clientIPMiddleware.
func clientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}

// authMiddleware validates Bearer tokens and stores the verified token in context.
// Requests without a valid token continue; handlers use GetUserID to require one.
func authMiddleware(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			verified, err := authn.Authenticate(ctx, token)
			if err != nil {
				ctx = context.WithValue(ctx, authErrKey, err)
			} else {
				ctx = context.WithValue(ctx, tokenKey, verified)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from the Authorization header. EventSource
// clients cannot set headers, so feeds also accept an access_token query parameter.
func bearerToken(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, found := strings.Cut(h, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
			return "", false
		}
		return token, true
	}
	if token := r.URL.Query().Get("access_token"); token != "" {
		return token, true
	}
	return "", false
}

// clientIPMiddleware records the caller's address for rate limiting. It runs
// after chi's RealIP, which has already folded X-Forwarded-For into RemoteAddr.
func clientIPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientIPKey, ip)))
	})
}
