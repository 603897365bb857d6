package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	credvault "github.com/credvault/credvault"
)

type ownerContextKey struct{}

// OwnerFromContext returns the owner of the verified credential, set by
// Guard before invoking the wrapped handler.
func OwnerFromContext(ctx context.Context) (string, bool) {
	owner, ok := ctx.Value(ownerContextKey{}).(string)
	return owner, ok
}

// Guard wraps a handler so only requests carrying a valid vault secret in
// the Authorization header reach it. Invalid secrets get 401; rate-limit
// denials get 429; storage or integrity faults get 503, never 401, so an
// outage is not mistaken for credential rejection.
func Guard(engine *credvault.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			secret, ok := bearerSecret(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := credvault.WithCaller(r.Context(), remoteHost(r))
			res, err := engine.Verify(ctx, secret)
			if err != nil {
				if errors.Is(err, credvault.ErrRateLimited) {
					http.Error(w, "rate limited", http.StatusTooManyRequests)
					return
				}
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}
			if !res.Valid {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			// Session activity slides the expiry forward. Best-effort: a
			// failed bump only means the session expires on schedule.
			if credvault.IsSessionSecret(secret) {
				_, _ = engine.BumpSession(ctx, res.Owner)
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerContextKey{}, res.Owner)))
		})
	}
}

func bearerSecret(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	secret := value[len(bearer):]
	if secret == "" {
		return "", false
	}

	return secret, true
}

func remoteHost(r *http.Request) string {
	addr := r.RemoteAddr
	if i := strings.LastIndexByte(addr, ':'); i > 0 {
		return addr[:i]
	}
	return addr
}
