package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/pagespace/pagespace/gateway/internal/auth"
	"github.com/pagespace/pagespace/gateway/pkg/principal"
)

// CSRFToken issues a CSRF token bound to the caller's session. The token is
// echoed back on mutating requests via the X-CSRF-Token header.
func (h *Handlers) CSRFToken(w http.ResponseWriter, r *http.Request) {
	p := principal.Get(r.Context())
	if p == nil || p.SessionID == "" {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	token := auth.IssueCSRFToken([]byte(h.cfg.Auth.CSRFSecret), p.SessionID)
	respondJSON(w, http.StatusOK, map[string]string{"csrfToken": token})
}

// Logout deletes the caller's session and clears the cookie. An optional
// returnTo is validated against open-redirect abuse before being echoed.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	p := principal.Get(r.Context())

	var body struct {
		ReturnTo string `json:"returnTo"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	if p != nil && p.SessionID != "" {
		if err := h.store.DeleteSession(r.Context(), p.SessionID); err != nil {
			log.Warn().Err(err).Str("sessionId", p.SessionID).Msg("session delete failed on logout")
		}
	}

	auth.ClearSessionCookie(w, auth.CookieOptions{
		Domain: h.cfg.Web.CookieDomain,
		Secure: h.cfg.Web.SecureCookies,
	})

	redirectTo := "/"
	if body.ReturnTo != "" && auth.IsSafeReturnURL(body.ReturnTo) {
		redirectTo = body.ReturnTo
	}
	respondJSON(w, http.StatusOK, map[string]string{"redirectTo": redirectTo})
}

// IssueMCPToken mints an mcp_* machine token for the caller, optionally
// scoped to a set of drives. The raw token is shown exactly once.
func (h *Handlers) IssueMCPToken(w http.ResponseWriter, r *http.Request) {
	p := principal.Get(r.Context())

	var body struct {
		DriveScopes []string `json:"driveScopes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.store.GetUser(r.Context(), p.UserID)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid or expired session")
		return
	}

	token, record, err := h.authenticator.IssueMCPToken(r.Context(), user, body.DriveScopes)
	if err != nil {
		log.Error().Err(err).Str("userId", user.ID).Msg("mcp token issuance failed")
		respondError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"token":       token,
		"tokenId":     record.ID,
		"driveScopes": record.DriveScopes,
	})
}
