// Package scope enforces drive-level restrictions for scoped MCP tokens.
// Session principals and unscoped MCP tokens pass through untouched; a
// scoped token is confined to its allowedDriveIds for every read, write,
// and create.
package scope

import (
	"context"
	"net/http"

	"github.com/pagespace/pagespace/gateway/internal/store"
	"github.com/pagespace/pagespace/gateway/pkg/principal"
)

// Error carries the HTTP status and message for a scope rejection.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	errDriveDenied = &Error{http.StatusForbidden, "This token does not have access to this drive"}
	errPageMissing = &Error{http.StatusNotFound, "Page not found"}
)

// Enforcer resolves pages to drives when a page-level check needs it.
type Enforcer struct {
	pages store.PageStore
}

func NewEnforcer(pages store.PageStore) *Enforcer {
	return &Enforcer{pages: pages}
}

// CheckDriveScope verifies the principal may touch driveID.
func (e *Enforcer) CheckDriveScope(p *principal.Principal, driveID string) error {
	if !p.Scoped() {
		return nil
	}
	for _, id := range p.AllowedDriveIDs {
		if id == driveID {
			return nil
		}
	}
	return errDriveDenied
}

// CheckPageScope resolves the page's drive and delegates to the drive check.
// A missing page is 404 regardless of scope so callers cannot probe drive
// membership through error codes.
func (e *Enforcer) CheckPageScope(ctx context.Context, p *principal.Principal, pageID string) error {
	if !p.Scoped() {
		return nil
	}
	page, err := e.pages.GetPage(ctx, pageID)
	if err != nil {
		if store.IsNotFound(err) {
			return errPageMissing
		}
		return err
	}
	return e.CheckDriveScope(p, page.DriveID)
}

// CheckCreateScope gates creations. Scoped tokens can never create drives
// (nil driveID); creating anything else requires the target drive in scope.
func (e *Enforcer) CheckCreateScope(p *principal.Principal, driveID *string) error {
	if !p.Scoped() {
		return nil
	}
	if driveID == nil {
		return errDriveDenied
	}
	return e.CheckDriveScope(p, *driveID)
}

// FilterDrivesByScope intersects ids with the principal's allowed drives,
// preserving input order. Unscoped principals get the input back unchanged.
func (e *Enforcer) FilterDrivesByScope(p *principal.Principal, ids []string) []string {
	if !p.Scoped() {
		return ids
	}
	allowed := make(map[string]struct{}, len(p.AllowedDriveIDs))
	for _, id := range p.AllowedDriveIDs {
		allowed[id] = struct{}{}
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := allowed[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
