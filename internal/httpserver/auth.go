package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/wisbric/adlcgate/internal/identity"
)

// Authenticator resolves a bearer credential into a Principal. Satisfied by
// *identity.CompositeAuthenticator in production wiring.
type Authenticator interface {
	Resolve(ctx context.Context, credential string) (*identity.Principal, error)
}

// Authenticate returns middleware that resolves the Authorization header's
// bearer credential and stores the resulting Principal in the request
// context. A missing or invalid credential is rejected with 401 here, so
// every downstream handler can assume identity.FromContext never returns
// nil once past this middleware.
func Authenticate(authenticator Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
				RespondError(w, http.StatusUnauthorized, "auth_missing", "missing credential")
				return
			}

			principal, err := authenticator.Resolve(r.Context(), header)
			if err != nil {
				logger.Warn("authentication failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
				RespondError(w, http.StatusUnauthorized, "auth_invalid", "invalid credential")
				return
			}

			ctx := identity.NewContext(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole returns middleware that rejects requests whose resolved
// Principal does not meet the minimum role. It must run after Authenticate.
func RequireRole(min identity.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := identity.FromContext(r.Context())
			if principal == nil {
				RespondError(w, http.StatusUnauthorized, "auth_missing", "missing credential")
				return
			}
			if !principal.Role.AtLeast(min) {
				RespondError(w, http.StatusForbidden, "forbidden", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
