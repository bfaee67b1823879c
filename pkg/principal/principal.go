// Package principal defines the authenticated caller contract shared by the
// auth middleware, the scope enforcer, and every handler.
//
// This package lives in pkg/ (not internal/) so that collaborating services
// (the file processor, admin surfaces) can consume the same shape.
package principal

import (
	"context"

	"github.com/pagespace/pagespace/gateway/pkg/models"
)

// Method identifies how the caller authenticated.
type Method string

const (
	// MethodSession covers both the browser cookie and the ps_sess_*
	// bearer form used by native clients.
	MethodSession Method = "session"
	// MethodMCP covers mcp_* machine-agent tokens.
	MethodMCP Method = "mcp"
)

// Source distinguishes cookie-bound callers (subject to origin/CSRF checks)
// from header-bound ones.
type Source string

const (
	SourceCookie Source = "cookie"
	SourceHeader Source = "header"
)

// Principal is the authenticated caller attached to every request context.
// No handler ever knows whether the token arrived as a cookie, a session
// bearer, or an MCP credential beyond the fields recorded here.
type Principal struct {
	UserID           string          `json:"userId"`
	Role             models.UserRole `json:"role"`
	TokenVersion     int             `json:"tokenVersion"`
	AdminRoleVersion int             `json:"adminRoleVersion"`

	Method Method `json:"method"`

	// Session-method fields.
	SessionID string `json:"sessionId,omitempty"`
	Source    Source `json:"source,omitempty"`

	// MCP-method fields. An empty AllowedDriveIDs means unscoped.
	TokenID         string   `json:"tokenId,omitempty"`
	AllowedDriveIDs []string `json:"allowedDriveIds,omitempty"`
}

// IsMCP reports whether the caller authenticated with an MCP token.
func (p *Principal) IsMCP() bool { return p != nil && p.Method == MethodMCP }

// CookieBound reports whether the caller is a browser whose credential was
// auto-attached, and therefore subject to origin/CSRF defenses.
func (p *Principal) CookieBound() bool {
	return p != nil && p.Method == MethodSession && p.Source == SourceCookie
}

// Scoped reports whether drive-level scope restrictions apply.
func (p *Principal) Scoped() bool {
	return p.IsMCP() && len(p.AllowedDriveIDs) > 0
}

// IsAdmin reports whether the caller carries a valid admin elevation.
func (p *Principal) IsAdmin() bool { return p != nil && p.Role == models.RoleAdmin }

// ── Context plumbing ────────────────────────────────────────

type contextKey string

const principalKey contextKey = "principal"

// Set stores the authenticated Principal in the context.
// Called by the auth middleware after successful authentication.
func Set(ctx context.Context, p *Principal) context.Context {
	if p == nil {
		return ctx
	}
	return context.WithValue(ctx, principalKey, p)
}

// Get retrieves the authenticated Principal from the context.
// Returns nil if no principal is set (unauthenticated request).
func Get(ctx context.Context) *Principal {
	if v, ok := ctx.Value(principalKey).(*Principal); ok {
		return v
	}
	return nil
}
