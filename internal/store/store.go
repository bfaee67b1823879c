// Package store provides the storage interface and implementations for the
// PageSpace gateway. The relational database is an external collaborator;
// all gateway code depends on this interface, making it easy to swap
// between in-memory (tests, local dev) and SQL-backed implementations.
package store

import (
	"context"
	"time"

	"github.com/pagespace/pagespace/gateway/pkg/models"
)

// Store is the primary storage interface for the gateway.
type Store interface {
	UserStore
	SessionStore
	MCPTokenStore
	ProviderSettingStore
	DriveStore
	PageStore
	MessageStore
	ActivityStore

	// Ping checks if the backing database is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

// ── User store ──────────────────────────────────────────────

type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	UpdateUser(ctx context.Context, user *models.User) error

	// AddStorageUsed adjusts the user's storage accounting by delta bytes.
	AddStorageUsed(ctx context.Context, userID string, delta int64) error
}

// ── Session store ───────────────────────────────────────────

// SessionStore manages server-side session records. Token values are never
// stored; every lookup goes through the keyed hash computed at issuance.
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.Session, tokenHash string) error
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteUserSessions(ctx context.Context, userID string) error
}

// ── MCP token store ─────────────────────────────────────────

type MCPTokenStore interface {
	CreateMCPToken(ctx context.Context, token *models.MCPToken) error

	// GetMCPTokenByHash returns the token matching the keyed hash,
	// including revoked tokens; the authenticator decides rejection so
	// that every failure path is indistinguishable to the caller.
	GetMCPTokenByHash(ctx context.Context, tokenHash string) (*models.MCPToken, error)

	// TouchMCPToken records a successful use.
	TouchMCPToken(ctx context.Context, id string, when time.Time) error

	RevokeMCPToken(ctx context.Context, id string, when time.Time) error
}

// ── Provider settings store ─────────────────────────────────

type ProviderSettingStore interface {
	GetProviderSetting(ctx context.Context, userID, provider string) (*models.ProviderSetting, error)
	UpsertProviderSetting(ctx context.Context, setting *models.ProviderSetting) error
}

// ── Drive store ─────────────────────────────────────────────

type DriveStore interface {
	GetDrive(ctx context.Context, id string) (*models.Drive, error)
	CreateDrive(ctx context.Context, drive *models.Drive) error

	// ListDrivesForUser returns the drives the user can reach (owned or
	// member), excluding trashed drives.
	ListDrivesForUser(ctx context.Context, userID string) ([]models.Drive, error)

	// AddDriveMember grants a user access to a drive.
	AddDriveMember(ctx context.Context, driveID, userID string) error

	// IsDriveMember reports whether the user owns or belongs to the drive.
	IsDriveMember(ctx context.Context, driveID, userID string) (bool, error)
}

// ── Page store ──────────────────────────────────────────────

type PageStore interface {
	GetPage(ctx context.Context, id string) (*models.Page, error)
	CreatePage(ctx context.Context, page *models.Page) error
	UpdatePage(ctx context.Context, page *models.Page) error

	// ListPagesByDrive returns every non-trashed page of the drive in a
	// single query, ordered by (parentId, position). This is the tree
	// cache's fill query.
	ListPagesByDrive(ctx context.Context, driveID string) ([]models.Page, error)

	// ListSiblings returns the non-trashed children of parentID (nil for
	// roots) ordered by position ascending.
	ListSiblings(ctx context.Context, driveID string, parentID *string) ([]models.Page, error)

	// ListAgentPages returns the drive's AI_CHAT pages that are not
	// trashed and not hidden from the global assistant.
	ListAgentPages(ctx context.Context, driveID string) ([]models.Page, error)
}

// ── Message store ───────────────────────────────────────────

type MessageStore interface {
	AppendMessage(ctx context.Context, msg *models.ChatMessage) error
	ListMessages(ctx context.Context, pageID string, limit int) ([]models.ChatMessage, error)
}

// ── Activity store ──────────────────────────────────────────

type ActivityStore interface {
	CreateActivity(ctx context.Context, event *models.ActivityLog) error

	// ListActivities returns matching rows plus the total count for
	// pagination.
	ListActivities(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityLog, int, error)

	// ArchiveActivitiesBefore marks rows older than cutoff as archived and
	// returns how many were touched.
	ArchiveActivitiesBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

// IsNotFound reports whether err is an ErrNotFound.
func IsNotFound(err error) bool {
	_, ok := err.(*ErrNotFound)
	return ok
}
