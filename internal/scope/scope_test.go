package scope

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/pagespace/pagespace/gateway/internal/store"
	"github.com/pagespace/pagespace/gateway/pkg/models"
	"github.com/pagespace/pagespace/gateway/pkg/principal"
)

func scopedPrincipal(drives ...string) *principal.Principal {
	return &principal.Principal{
		UserID:          "user-1",
		Method:          principal.MethodMCP,
		TokenID:         "tok-1",
		AllowedDriveIDs: drives,
	}
}

func sessionPrincipal() *principal.Principal {
	return &principal.Principal{
		UserID:    "user-1",
		Method:    principal.MethodSession,
		SessionID: "sess-1",
	}
}

func newEnforcerWithPages(t *testing.T, pages ...*models.Page) *Enforcer {
	t.Helper()
	st := store.NewMemoryStore()
	for _, p := range pages {
		if err := st.CreatePage(context.Background(), p); err != nil {
			t.Fatal(err)
		}
	}
	return NewEnforcer(st)
}

func scopeStatus(t *testing.T, err error) int {
	t.Helper()
	var se *Error
	if !errors.As(err, &se) {
		t.Fatalf("expected *scope.Error, got %T: %v", err, err)
	}
	return se.Status
}

func TestCheckDriveScope(t *testing.T) {
	e := newEnforcerWithPages(t)

	if err := e.CheckDriveScope(scopedPrincipal("drive-1", "drive-2"), "drive-1"); err != nil {
		t.Errorf("in-scope drive should pass: %v", err)
	}

	err := e.CheckDriveScope(scopedPrincipal("drive-1"), "drive-9")
	if err == nil {
		t.Fatal("out-of-scope drive should fail")
	}
	if scopeStatus(t, err) != http.StatusForbidden {
		t.Errorf("status = %d, want 403", scopeStatus(t, err))
	}
	if err.Error() != "This token does not have access to this drive" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestCheckDriveScopeUnrestricted(t *testing.T) {
	e := newEnforcerWithPages(t)

	if err := e.CheckDriveScope(sessionPrincipal(), "any-drive"); err != nil {
		t.Errorf("session principal should be unrestricted: %v", err)
	}
	if err := e.CheckDriveScope(scopedPrincipal(), "any-drive"); err != nil {
		t.Errorf("unscoped MCP principal should be unrestricted: %v", err)
	}
}

func TestCheckPageScope(t *testing.T) {
	e := newEnforcerWithPages(t,
		&models.Page{ID: "page-in", DriveID: "drive-1", Title: "in", Type: models.PageDocument},
		&models.Page{ID: "page-out", DriveID: "drive-9", Title: "out", Type: models.PageDocument},
	)
	p := scopedPrincipal("drive-1")

	if err := e.CheckPageScope(context.Background(), p, "page-in"); err != nil {
		t.Errorf("page in scoped drive should pass: %v", err)
	}

	err := e.CheckPageScope(context.Background(), p, "page-out")
	if err == nil || scopeStatus(t, err) != http.StatusForbidden {
		t.Errorf("page in foreign drive should 403, got %v", err)
	}

	err = e.CheckPageScope(context.Background(), p, "page-none")
	if err == nil || scopeStatus(t, err) != http.StatusNotFound {
		t.Errorf("missing page should 404, got %v", err)
	}
}

func TestCheckCreateScope(t *testing.T) {
	e := newEnforcerWithPages(t)
	p := scopedPrincipal("drive-1")

	// Scoped tokens can never create drives.
	if err := e.CheckCreateScope(p, nil); err == nil {
		t.Error("drive creation by scoped token should fail")
	}

	in := "drive-1"
	if err := e.CheckCreateScope(p, &in); err != nil {
		t.Errorf("creation inside scope should pass: %v", err)
	}

	out := "drive-9"
	if err := e.CheckCreateScope(p, &out); err == nil {
		t.Error("creation outside scope should fail")
	}

	if err := e.CheckCreateScope(sessionPrincipal(), nil); err != nil {
		t.Errorf("session principal may create drives: %v", err)
	}
}

func TestFilterDrivesByScope(t *testing.T) {
	e := newEnforcerWithPages(t)
	p := scopedPrincipal("drive-2", "drive-3")

	got := e.FilterDrivesByScope(p, []string{"drive-1", "drive-2", "drive-3", "drive-4"})
	if len(got) != 2 || got[0] != "drive-2" || got[1] != "drive-3" {
		t.Errorf("filtered = %v, want [drive-2 drive-3]", got)
	}

	all := []string{"drive-1", "drive-2"}
	if got := e.FilterDrivesByScope(sessionPrincipal(), all); len(got) != 2 {
		t.Errorf("unscoped filter = %v, want input unchanged", got)
	}
}
