package middleware

import (
	"net/http"
	"time"

	"github.com/pagespace/pagespace/gateway/internal/auth"
	"github.com/pagespace/pagespace/gateway/internal/store"
)

// CSRFHeader carries the anti-forgery token on mutating browser requests.
const CSRFHeader = "X-CSRF-Token"

// BrowserGuard applies the cookie-bound defenses to mutating requests:
// origin validation first, then the CSRF double-submit check. Requests
// authenticated by Authorization bearer skip both, as do safe methods.
type BrowserGuard struct {
	origin      *OriginGuard
	store       store.Store
	tokenSecret string
	csrfSecret  []byte
	csrfTTL     time.Duration
}

func NewBrowserGuard(origin *OriginGuard, st store.Store, tokenSecret string, csrfSecret []byte, csrfTTL time.Duration) *BrowserGuard {
	return &BrowserGuard{
		origin:      origin,
		store:       st,
		tokenSecret: tokenSecret,
		csrfSecret:  csrfSecret,
		csrfTTL:     csrfTTL,
	}
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// Handler returns the middleware. The CSRF check is never consulted when the
// origin check fails.
func (g *BrowserGuard) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if safeMethod(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		// Bearer tokens are not auto-attached by browsers; those callers
		// are not forgeable and skip both checks.
		if auth.HasBearer(r) {
			next.ServeHTTP(w, r)
			return
		}

		if !g.origin.Check(w, r) {
			return
		}
		if !g.checkCSRF(w, r) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *BrowserGuard) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	token := r.Header.Get(CSRFHeader)
	if token == "" {
		respondCode(w, http.StatusForbidden, "CSRF_TOKEN_MISSING", "CSRF token is required for this request")
		return false
	}

	cookie, err := r.Cookie(auth.SessionCookieName)
	if err != nil || cookie.Value == "" {
		respondCode(w, http.StatusUnauthorized, "CSRF_NO_SESSION", "No session found for CSRF validation")
		return false
	}

	hash := auth.HashToken(g.tokenSecret, cookie.Value)
	sess, err := g.store.GetSessionByTokenHash(r.Context(), hash)
	if err != nil || sess.Expired(time.Now()) {
		respondCode(w, http.StatusUnauthorized, "CSRF_INVALID_SESSION", "Session is invalid for CSRF validation")
		return false
	}

	if err := auth.ValidateCSRFToken(g.csrfSecret, sess.ID, token, g.csrfTTL); err != nil {
		respondCode(w, http.StatusForbidden, "CSRF_TOKEN_INVALID", "CSRF token is invalid or expired")
		return false
	}
	return true
}
