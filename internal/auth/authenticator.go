package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pagespace/pagespace/gateway/internal/store"
	"github.com/pagespace/pagespace/gateway/pkg/models"
	"github.com/pagespace/pagespace/gateway/pkg/principal"
)

// SessionCookieName is the cookie under which browser sessions travel.
const SessionCookieName = "session"

// AuthError carries the HTTP status and message the middleware writes when
// authentication fails. Message strings are part of the API contract.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string { return e.Message }

var (
	ErrNoCredential      = &AuthError{http.StatusUnauthorized, "Authentication required"}
	ErrSessionInvalid    = &AuthError{http.StatusUnauthorized, "Invalid or expired session"}
	ErrTokenFormat       = &AuthError{http.StatusUnauthorized, "Invalid token format"}
	ErrMCPNotPermitted   = &AuthError{http.StatusUnauthorized, "MCP tokens are not permitted for this endpoint"}
	ErrNoMethodPermitted = &AuthError{http.StatusInternalServerError, "No authentication methods permitted"}
)

// Allow flags declare which authentication methods a route accepts.
// Zero-value Allow permits nothing; routes must opt in explicitly.
type Allow struct {
	Session bool
	MCP     bool
}

// AllowSession is the default posture for browser-facing endpoints.
var AllowSession = Allow{Session: true}

// AllowAny admits both interactive sessions and machine-agent tokens.
var AllowAny = Allow{Session: true, MCP: true}

// Authenticator resolves request credentials into a Principal. It owns the
// full decision tree: credential extraction, prefix classification, keyed
// hash lookup, revocation and version checks.
type Authenticator struct {
	store  store.Store
	secret string
	now    func() time.Time
}

func NewAuthenticator(st store.Store, tokenSecret string) *Authenticator {
	return &Authenticator{store: st, secret: tokenSecret, now: time.Now}
}

// Authenticate inspects the request and returns the caller's Principal, or
// an *AuthError describing exactly what the middleware should write back.
//
// Credential precedence: Authorization bearer first, session cookie second.
// A bearer header that fails never falls through to the cookie; mixing the
// two would let an attacker probe tokens while riding a victim's cookie.
func (a *Authenticator) Authenticate(r *http.Request, allow Allow) (*principal.Principal, error) {
	if !allow.Session && !allow.MCP {
		return nil, ErrNoMethodPermitted
	}

	ctx := r.Context()

	if bearer, ok := bearerToken(r); ok {
		return a.authenticateBearer(ctx, bearer, allow)
	}

	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		if !allow.Session {
			return nil, ErrNoCredential
		}
		p, err := a.resolveSession(ctx, cookie.Value)
		if err != nil {
			return nil, err
		}
		p.Source = principal.SourceCookie
		return p, nil
	}

	return nil, ErrNoCredential
}

func (a *Authenticator) authenticateBearer(ctx context.Context, token string, allow Allow) (*principal.Principal, error) {
	switch ClassifyToken(token) {
	case TokenKindMCP:
		if !allow.MCP {
			return nil, ErrMCPNotPermitted
		}
		return a.resolveMCP(ctx, token)
	case TokenKindSession:
		if !allow.Session {
			return nil, ErrNoCredential
		}
		p, err := a.resolveSession(ctx, token)
		if err != nil {
			return nil, err
		}
		p.Source = principal.SourceHeader
		return p, nil
	default:
		return nil, ErrTokenFormat
	}
}

// resolveSession validates an opaque session token (cookie or bearer) against
// the session store and the user's current token/admin-role versions.
func (a *Authenticator) resolveSession(ctx context.Context, token string) (*principal.Principal, error) {
	hash := HashToken(a.secret, token)
	sess, err := a.store.GetSessionByTokenHash(ctx, hash)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, ErrSessionInvalid
		}
		log.Error().Err(err).Msg("session lookup failed")
		return nil, ErrSessionInvalid
	}
	if sess.Expired(a.now()) {
		return nil, ErrSessionInvalid
	}

	user, err := a.store.GetUser(ctx, sess.UserID)
	if err != nil {
		return nil, ErrSessionInvalid
	}
	// A bumped tokenVersion invalidates every outstanding session at once
	// (password change, explicit "sign out everywhere").
	if sess.TokenVersion != user.TokenVersion {
		return nil, ErrSessionInvalid
	}
	// Admin elevation is checked separately so demoting an admin kills the
	// elevated capability without logging the user out.
	role := sess.UserRole
	if role == models.RoleAdmin && sess.AdminRoleVersion != user.AdminRoleVersion {
		role = models.RoleUser
	}

	return &principal.Principal{
		UserID:           user.ID,
		Role:             role,
		TokenVersion:     user.TokenVersion,
		AdminRoleVersion: user.AdminRoleVersion,
		Method:           principal.MethodSession,
		SessionID:        sess.ID,
	}, nil
}

// resolveMCP validates an mcp_* token. Scoped tokens fail closed: a token
// marked scoped whose drive list cannot be resolved is rejected rather than
// treated as unscoped.
func (a *Authenticator) resolveMCP(ctx context.Context, token string) (*principal.Principal, error) {
	hash := HashToken(a.secret, token)
	rec, err := a.store.GetMCPTokenByHash(ctx, hash)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, ErrSessionInvalid
		}
		log.Error().Err(err).Msg("mcp token lookup failed")
		return nil, ErrSessionInvalid
	}
	if rec.RevokedAt != nil {
		return nil, ErrSessionInvalid
	}

	user, err := a.store.GetUser(ctx, rec.UserID)
	if err != nil {
		return nil, ErrSessionInvalid
	}
	if rec.TokenVersion != user.TokenVersion {
		return nil, ErrSessionInvalid
	}

	var scopes []string
	if rec.IsScoped {
		// Fail closed: scopes are resolved against live drives at every
		// authentication, and a token whose drives have all been deleted
		// or trashed no longer authenticates.
		for _, driveID := range rec.DriveScopes {
			drive, err := a.store.GetDrive(ctx, driveID)
			if err != nil {
				if store.IsNotFound(err) {
					continue
				}
				log.Error().Err(err).Str("drive_id", driveID).Msg("drive scope lookup failed")
				return nil, ErrSessionInvalid
			}
			if drive.IsTrashed {
				continue
			}
			scopes = append(scopes, driveID)
		}
		if len(scopes) == 0 {
			return nil, ErrSessionInvalid
		}
	}

	if err := a.store.TouchMCPToken(ctx, rec.ID, a.now()); err != nil {
		// Usage bookkeeping must not fail the request.
		log.Warn().Err(err).Str("token_id", rec.ID).Msg("failed to touch mcp token")
	}

	return &principal.Principal{
		UserID:           user.ID,
		Role:             user.Role,
		TokenVersion:     user.TokenVersion,
		AdminRoleVersion: user.AdminRoleVersion,
		Method:           principal.MethodMCP,
		TokenID:          rec.ID,
		AllowedDriveIDs:  scopes,
	}, nil
}

// IssueSession mints a session for the user, persists its keyed hash, and
// returns the raw token for cookie or bearer delivery.
func (a *Authenticator) IssueSession(ctx context.Context, user *models.User, ttl time.Duration) (string, *models.Session, error) {
	token := NewSessionToken()
	sess := &models.Session{
		ID:               newID(),
		UserID:           user.ID,
		UserRole:         user.Role,
		TokenVersion:     user.TokenVersion,
		AdminRoleVersion: user.AdminRoleVersion,
		Type:             models.SessionUser,
		ExpiresAt:        a.now().Add(ttl),
		CreatedAt:        a.now(),
	}
	if err := a.store.CreateSession(ctx, sess, HashToken(a.secret, token)); err != nil {
		return "", nil, err
	}
	return token, sess, nil
}

// IssueMCPToken mints a machine-agent token. driveScopes may be empty for an
// unscoped token.
func (a *Authenticator) IssueMCPToken(ctx context.Context, user *models.User, driveScopes []string) (string, *models.MCPToken, error) {
	token := NewMCPToken()
	rec := &models.MCPToken{
		ID:           newID(),
		UserID:       user.ID,
		TokenHash:    HashToken(a.secret, token),
		TokenVersion: user.TokenVersion,
		IsScoped:     len(driveScopes) > 0,
		DriveScopes:  append([]string(nil), driveScopes...),
		CreatedAt:    a.now(),
	}
	if err := a.store.CreateMCPToken(ctx, rec); err != nil {
		return "", nil, err
	}
	return token, rec, nil
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	token := strings.TrimSpace(h[len(prefix):])
	return token, token != ""
}

// HasBearer reports whether the request carries any Authorization bearer
// credential. The CSRF middleware uses this to exempt header-authenticated
// callers, who cannot be ridden by a browser.
func HasBearer(r *http.Request) bool {
	_, ok := bearerToken(r)
	return ok
}

func newID() string { return uuid.NewString() }
