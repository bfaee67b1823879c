// Package middleware holds the gateway's HTTP middleware: request logging,
// tracing, authentication, and the origin/CSRF defenses for cookie-bound
// browsers.
package middleware

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/pagespace/pagespace/gateway/internal/auth"
	"github.com/pagespace/pagespace/gateway/pkg/principal"
)

// Authn authenticates every request through the Authenticator and stores the
// resulting Principal in the request context. Each route group declares the
// methods it accepts; there is no implicit default.
type Authn struct {
	authenticator *auth.Authenticator
}

func NewAuthn(a *auth.Authenticator) *Authn {
	return &Authn{authenticator: a}
}

// Require returns middleware that rejects requests not authenticated by one
// of the allowed methods.
func (m *Authn) Require(allow auth.Allow) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := m.authenticator.Authenticate(r, allow)
			if err != nil {
				var ae *auth.AuthError
				if !errors.As(err, &ae) {
					log.Error().Err(err).Str("path", r.URL.Path).Msg("authentication error")
					ae = auth.ErrSessionInvalid
				}
				if ae.Status == http.StatusInternalServerError {
					log.Error().Str("path", r.URL.Path).Msg("route permits no authentication methods")
				}
				respondError(w, ae.Status, ae.Message)
				return
			}
			next.ServeHTTP(w, r.WithContext(principal.Set(r.Context(), p)))
		})
	}
}
