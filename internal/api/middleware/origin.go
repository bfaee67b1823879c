package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

// OriginMode controls what happens when the Origin header fails validation.
type OriginMode string

const (
	OriginModeWarn  OriginMode = "warn"
	OriginModeBlock OriginMode = "block"
)

// OriginGuard validates the Origin header of cookie-bound mutating requests
// against the configured allow-list. Bearer callers skip it: browsers do not
// auto-attach Authorization headers, so there is nothing to forge.
type OriginGuard struct {
	allowed map[string]struct{}
	mode    OriginMode
}

// NewOriginGuard builds the guard from WEB_APP_URL plus any additional
// allowed origins. Entries that do not parse are logged and skipped.
func NewOriginGuard(webAppURL string, additional []string, mode OriginMode) *OriginGuard {
	if mode != OriginModeWarn {
		mode = OriginModeBlock
	}
	allowed := make(map[string]struct{})
	for _, raw := range append([]string{webAppURL}, additional...) {
		if raw == "" {
			continue
		}
		norm, ok := NormalizeOrigin(raw)
		if !ok {
			log.Warn().Str("origin", raw).Msg("skipping unparseable allowed origin")
			continue
		}
		allowed[norm] = struct{}{}
	}
	return &OriginGuard{allowed: allowed, mode: mode}
}

// NormalizeOrigin reduces a URL to scheme://host[:port], collapsing default
// ports (443 for https, 80 for http). Matching is exact; no subdomain or
// suffix rules.
func NormalizeOrigin(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "https" && port == "443") || (scheme == "http" && port == "80") {
		port = ""
	}
	if port != "" {
		return scheme + "://" + host + ":" + port, true
	}
	return scheme + "://" + host, true
}

// Check validates the request's Origin header. It returns true when the
// request may proceed; on false it has already written the response.
func (g *OriginGuard) Check(w http.ResponseWriter, r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// Non-browser clients send no Origin header; nothing to validate.
	if origin == "" {
		return true
	}
	if len(g.allowed) == 0 {
		log.Warn().Msg("origin validation has no configured origins; allowing")
		return true
	}

	norm, ok := NormalizeOrigin(origin)
	if ok {
		if _, permitted := g.allowed[norm]; permitted {
			return true
		}
	}

	if g.mode == OriginModeWarn {
		log.Warn().
			Str("origin", origin).
			Str("path", r.URL.Path).
			Msg("origin validation failed (warn mode, proceeding)")
		return true
	}

	log.Warn().
		Str("origin", origin).
		Str("path", r.URL.Path).
		Msg("origin validation failed, blocking")
	respondCode(w, http.StatusForbidden, "ORIGIN_INVALID", "Request origin is not allowed")
	return false
}
