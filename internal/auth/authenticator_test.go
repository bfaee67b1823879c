package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pagespace/pagespace/gateway/internal/store"
	"github.com/pagespace/pagespace/gateway/pkg/models"
	"github.com/pagespace/pagespace/gateway/pkg/principal"
)

const testSecret = "token-secret"

func newTestAuthenticator(t *testing.T) (*Authenticator, *store.MemoryStore, *models.User) {
	t.Helper()
	st := store.NewMemoryStore()
	user := &models.User{
		ID:           "user-1",
		Role:         models.RoleUser,
		TokenVersion: 1,
	}
	if err := st.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return NewAuthenticator(st, testSecret), st, user
}

func requestWithCookie(token string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/drives", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	return r
}

func requestWithBearer(token string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/drives", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

func authMessage(t *testing.T, err error) string {
	t.Helper()
	var ae *AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("expected *AuthError, got %T: %v", err, err)
	}
	return ae.Message
}

func TestAuthenticateCookieSession(t *testing.T) {
	a, _, user := newTestAuthenticator(t)
	token, sess, err := a.IssueSession(context.Background(), user, time.Hour)
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}

	p, err := a.Authenticate(requestWithCookie(token), AllowSession)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if p.UserID != user.ID {
		t.Errorf("UserID = %q, want %q", p.UserID, user.ID)
	}
	if p.Source != principal.SourceCookie {
		t.Errorf("Source = %q, want cookie", p.Source)
	}
	if p.SessionID != sess.ID {
		t.Errorf("SessionID = %q, want %q", p.SessionID, sess.ID)
	}
	if !p.CookieBound() {
		t.Error("cookie-delivered session should be CookieBound")
	}
	if sess.Type != models.SessionUser {
		t.Errorf("session type = %q, want %q", sess.Type, models.SessionUser)
	}
}

func TestAuthenticateBearerSession(t *testing.T) {
	a, _, user := newTestAuthenticator(t)
	token, _, err := a.IssueSession(context.Background(), user, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	p, err := a.Authenticate(requestWithBearer(token), AllowSession)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if p.Source != principal.SourceHeader {
		t.Errorf("Source = %q, want header", p.Source)
	}
	if p.CookieBound() {
		t.Error("bearer-delivered session must not be CookieBound")
	}
}

func TestAuthenticateNothingPresented(t *testing.T) {
	a, _, _ := newTestAuthenticator(t)
	r := httptest.NewRequest(http.MethodGet, "/api/drives", nil)

	_, err := a.Authenticate(r, AllowSession)
	if got := authMessage(t, err); got != "Authentication required" {
		t.Errorf("message = %q", got)
	}
}

func TestAuthenticateExpiredSession(t *testing.T) {
	a, _, user := newTestAuthenticator(t)
	token, _, err := a.IssueSession(context.Background(), user, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	_, err = a.Authenticate(requestWithCookie(token), AllowSession)
	if got := authMessage(t, err); got != "Invalid or expired session" {
		t.Errorf("message = %q", got)
	}
}

func TestAuthenticateUnknownPrefix(t *testing.T) {
	a, _, _ := newTestAuthenticator(t)

	_, err := a.Authenticate(requestWithBearer("sk-live-123"), AllowSession)
	if got := authMessage(t, err); got != "Invalid token format" {
		t.Errorf("message = %q", got)
	}
}

func TestAuthenticateNoMethodsPermitted(t *testing.T) {
	a, _, _ := newTestAuthenticator(t)

	_, err := a.Authenticate(httptest.NewRequest(http.MethodGet, "/", nil), Allow{})
	var ae *AuthError
	if !errors.As(err, &ae) || ae.Status != http.StatusInternalServerError {
		t.Fatalf("want 500 AuthError, got %v", err)
	}
	if ae.Message != "No authentication methods permitted" {
		t.Errorf("message = %q", ae.Message)
	}
}

// Bumping the user's tokenVersion must kill every outstanding session; the
// caller sees the same message as any other invalid session.
func TestAuthenticateTokenVersionMismatch(t *testing.T) {
	a, st, user := newTestAuthenticator(t)
	token, _, err := a.IssueSession(context.Background(), user, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	user.TokenVersion = 2
	if err := st.UpdateUser(context.Background(), user); err != nil {
		t.Fatal(err)
	}

	_, err = a.Authenticate(requestWithCookie(token), AllowSession)
	if got := authMessage(t, err); got != "Invalid or expired session" {
		t.Errorf("message = %q", got)
	}
}

// Demoting an admin bumps adminRoleVersion; the session survives but the
// elevation does not.
func TestAuthenticateAdminDemotion(t *testing.T) {
	a, st, user := newTestAuthenticator(t)
	user.Role = models.RoleAdmin
	user.AdminRoleVersion = 1
	if err := st.UpdateUser(context.Background(), user); err != nil {
		t.Fatal(err)
	}
	token, _, err := a.IssueSession(context.Background(), user, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	user.AdminRoleVersion = 2
	if err := st.UpdateUser(context.Background(), user); err != nil {
		t.Fatal(err)
	}

	p, err := a.Authenticate(requestWithCookie(token), AllowSession)
	if err != nil {
		t.Fatalf("session should survive admin demotion: %v", err)
	}
	if p.IsAdmin() {
		t.Error("stale admin elevation should have been dropped")
	}
}

func createDrive(t *testing.T, st *store.MemoryStore, id, ownerID string, trashed bool) {
	t.Helper()
	if err := st.CreateDrive(context.Background(), &models.Drive{
		ID: id, Name: id, Slug: id, OwnerID: ownerID, IsTrashed: trashed,
	}); err != nil {
		t.Fatalf("CreateDrive: %v", err)
	}
}

func TestAuthenticateMCPToken(t *testing.T) {
	a, st, user := newTestAuthenticator(t)
	createDrive(t, st, "drive-1", user.ID, false)
	createDrive(t, st, "drive-2", user.ID, false)
	token, rec, err := a.IssueMCPToken(context.Background(), user, []string{"drive-1", "drive-2"})
	if err != nil {
		t.Fatal(err)
	}

	p, err := a.Authenticate(requestWithBearer(token), AllowAny)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !p.IsMCP() {
		t.Error("principal should be MCP")
	}
	if !p.Scoped() {
		t.Error("principal should be scoped")
	}
	if p.TokenID != rec.ID {
		t.Errorf("TokenID = %q, want %q", p.TokenID, rec.ID)
	}
	if len(p.AllowedDriveIDs) != 2 {
		t.Errorf("AllowedDriveIDs = %v", p.AllowedDriveIDs)
	}
}

// A scoped token is only as alive as its drives: deleted and trashed drives
// fall out of the scope list, and a token with no surviving drive is
// rejected outright rather than treated as unscoped.
func TestAuthenticateMCPTokenAllScopedDrivesGone(t *testing.T) {
	a, st, user := newTestAuthenticator(t)
	createDrive(t, st, "drive-trashed", user.ID, true)
	token, _, err := a.IssueMCPToken(context.Background(), user, []string{"drive-deleted", "drive-trashed"})
	if err != nil {
		t.Fatal(err)
	}

	_, err = a.Authenticate(requestWithBearer(token), AllowAny)
	if got := authMessage(t, err); got != "Invalid or expired session" {
		t.Errorf("message = %q", got)
	}
}

func TestAuthenticateMCPTokenScopeShrinksToLiveDrives(t *testing.T) {
	a, st, user := newTestAuthenticator(t)
	createDrive(t, st, "drive-live", user.ID, false)
	createDrive(t, st, "drive-trashed", user.ID, true)
	token, _, err := a.IssueMCPToken(context.Background(), user, []string{"drive-live", "drive-trashed", "drive-deleted"})
	if err != nil {
		t.Fatal(err)
	}

	p, err := a.Authenticate(requestWithBearer(token), AllowAny)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if len(p.AllowedDriveIDs) != 1 || p.AllowedDriveIDs[0] != "drive-live" {
		t.Errorf("AllowedDriveIDs = %v, want only the live drive", p.AllowedDriveIDs)
	}
}

func TestAuthenticateMCPNotPermitted(t *testing.T) {
	a, _, user := newTestAuthenticator(t)
	token, _, err := a.IssueMCPToken(context.Background(), user, nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = a.Authenticate(requestWithBearer(token), AllowSession)
	if got := authMessage(t, err); got != "MCP tokens are not permitted for this endpoint" {
		t.Errorf("message = %q", got)
	}
}

func TestAuthenticateRevokedMCPToken(t *testing.T) {
	a, st, user := newTestAuthenticator(t)
	token, rec, err := a.IssueMCPToken(context.Background(), user, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := st.RevokeMCPToken(context.Background(), rec.ID, time.Now()); err != nil {
		t.Fatal(err)
	}

	_, err = a.Authenticate(requestWithBearer(token), AllowAny)
	if got := authMessage(t, err); got != "Invalid or expired session" {
		t.Errorf("revoked token should look like any invalid credential, got %q", got)
	}
}

func TestAuthenticateMCPTokenVersionMismatch(t *testing.T) {
	a, st, user := newTestAuthenticator(t)
	token, _, err := a.IssueMCPToken(context.Background(), user, nil)
	if err != nil {
		t.Fatal(err)
	}

	user.TokenVersion = 5
	if err := st.UpdateUser(context.Background(), user); err != nil {
		t.Fatal(err)
	}

	_, err = a.Authenticate(requestWithBearer(token), AllowAny)
	if got := authMessage(t, err); got != "Invalid or expired session" {
		t.Errorf("message = %q", got)
	}
}

// A failing bearer header must not fall through to a valid cookie.
func TestAuthenticateBearerNeverFallsBackToCookie(t *testing.T) {
	a, _, user := newTestAuthenticator(t)
	token, _, err := a.IssueSession(context.Background(), user, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	r := requestWithCookie(token)
	r.Header.Set("Authorization", "Bearer ps_sess_bogus")

	if _, err := a.Authenticate(r, AllowSession); err == nil {
		t.Fatal("bad bearer with good cookie should still fail")
	}
}
