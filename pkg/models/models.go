// Package models defines the entities the PageSpace gateway reads and
// writes: users, sessions, MCP tokens, drives, pages, chat messages, and
// activity events. Only the fields the gateway core touches are modeled;
// everything else (editor payloads, integration records) lives with the
// collaborating services.
package models

import (
	"time"
)

// ── Users ───────────────────────────────────────────────────

// UserRole is the platform-level role of a user.
type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// User is the identity record behind every session and MCP token.
type User struct {
	ID string `json:"id"`

	Role UserRole `json:"role"`

	// TokenVersion is bumped on password/credential changes. Every
	// outstanding session and MCP token embedding an older version is
	// invalid.
	TokenVersion int `json:"tokenVersion"`

	// AdminRoleVersion is bumped on each role change. A mismatch strips
	// admin elevation without forcing a re-login.
	AdminRoleVersion int `json:"adminRoleVersion"`

	// Timezone is an IANA identifier ("America/New_York"). Empty means UTC.
	Timezone string `json:"timezone,omitempty"`

	// CurrentAIProvider / CurrentAIModel are the user's persisted defaults.
	CurrentAIProvider string `json:"currentAiProvider,omitempty"`
	CurrentAIModel    string `json:"currentAiModel,omitempty"`

	// Tier selects the upload concurrency slot pool.
	Tier string `json:"tier,omitempty"`

	// Storage accounting, maintained by the upload pipeline.
	StorageUsedBytes  int64 `json:"storageUsedBytes"`
	StorageQuotaBytes int64 `json:"storageQuotaBytes"`

	CreatedAt time.Time `json:"createdAt"`
}

// ProviderSetting is a per-user, per-provider API key record.
type ProviderSetting struct {
	UserID    string    `json:"userId"`
	Provider  string    `json:"provider"`
	APIKey    string    `json:"-"`
	BaseURL   string    `json:"baseUrl,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ── Sessions ────────────────────────────────────────────────

// SessionType distinguishes interactive user sessions from short-lived
// service sessions minted for internal calls (processor dispatch).
type SessionType string

const (
	SessionUser    SessionType = "user"
	SessionService SessionType = "service"
)

// SessionTokenPrefix is the wire prefix of every session bearer token.
const SessionTokenPrefix = "ps_sess_"

// Session is the server-side record behind a ps_sess_* token. The token
// value itself is never stored; lookups go through the keyed hash.
type Session struct {
	ID               string      `json:"sessionId"`
	UserID           string      `json:"userId"`
	UserRole         UserRole    `json:"userRole"`
	TokenVersion     int         `json:"tokenVersion"`
	AdminRoleVersion int         `json:"adminRoleVersion"`
	Type             SessionType `json:"type"`
	Scopes           []string    `json:"scopes"`
	ExpiresAt        time.Time   `json:"expiresAt"`
	CreatedAt        time.Time   `json:"createdAt"`
}

// Expired reports whether the session is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// HasScope reports whether the session grants the named scope.
// The default scope set ["*"] grants everything.
func (s *Session) HasScope(scope string) bool {
	for _, sc := range s.Scopes {
		if sc == "*" || sc == scope {
			return true
		}
	}
	return false
}

// ── MCP tokens ──────────────────────────────────────────────

// MCPTokenPrefix is the wire prefix of every machine-agent bearer token.
const MCPTokenPrefix = "mcp_"

// MCPToken is an opaque bearer credential for machine agents, stored by
// keyed hash only. A scoped token is fail-closed: when every scoped drive
// has been deleted the token is rejected even though the user is valid.
type MCPToken struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	TokenHash    string     `json:"-"`
	TokenVersion int        `json:"tokenVersion"`
	IsScoped     bool       `json:"isScoped"`
	DriveScopes  []string   `json:"driveScopes,omitempty"`
	RevokedAt    *time.Time `json:"revokedAt,omitempty"`
	LastUsed     time.Time  `json:"lastUsed,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// ── Drives and pages ────────────────────────────────────────

// Drive is a tenant-scoped workspace; the root of a page tree.
type Drive struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	OwnerID   string    `json:"ownerId"`
	IsTrashed bool      `json:"isTrashed"`
	CreatedAt time.Time `json:"createdAt"`
}

// PageType enumerates the node kinds of a drive tree.
type PageType string

const (
	PageFolder   PageType = "FOLDER"
	PageDocument PageType = "DOCUMENT"
	PageSheet    PageType = "SHEET"
	PageCanvas   PageType = "CANVAS"
	PageTaskList PageType = "TASK_LIST"
	PageAIChat   PageType = "AI_CHAT"
	PageChannel  PageType = "CHANNEL"
	PageFile     PageType = "FILE"
)

// PageTypes lists every page type, in the order prompts enumerate them.
var PageTypes = []PageType{
	PageFolder, PageDocument, PageSheet, PageCanvas,
	PageTaskList, PageAIChat, PageChannel, PageFile,
}

// ProcessingStatus tracks a FILE page through the external processor.
type ProcessingStatus string

const (
	ProcessingPending   ProcessingStatus = "pending"
	ProcessingVisual    ProcessingStatus = "visual"
	ProcessingCompleted ProcessingStatus = "completed"
	ProcessingFailed    ProcessingStatus = "failed"
)

// Page is a typed node in a drive's tree. Siblings under the same parent
// are ordered by fractional Position; a new sibling lands at the midpoint
// of its neighbors or at tail+1.
type Page struct {
	ID       string   `json:"id"`
	DriveID  string   `json:"driveId"`
	ParentID *string  `json:"parentId,omitempty"`
	Title    string   `json:"title"`
	Type     PageType `json:"type"`
	Position float64  `json:"position"`

	IsTrashed bool `json:"isTrashed"`

	// VisibleToGlobalAssistant gates AI_CHAT agents out of the drive-wide
	// agent list. Nil means visible (only an explicit false hides).
	VisibleToGlobalAssistant *bool `json:"visibleToGlobalAssistant,omitempty"`

	// AgentDefinition carries the agent configuration for AI_CHAT pages.
	AgentDefinition string `json:"agentDefinition,omitempty"`

	// File attributes, set only for Type == FILE.
	FileSize         int64            `json:"fileSize,omitempty"`
	MimeType         string           `json:"mimeType,omitempty"`
	OriginalFileName string           `json:"originalFileName,omitempty"`
	FilePath         string           `json:"filePath,omitempty"` // content hash
	ProcessingStatus ProcessingStatus `json:"processingStatus,omitempty"`
	FileMetadata     map[string]any   `json:"fileMetadata,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HiddenFromAssistant reports whether the page opted out of the global
// assistant's agent awareness list.
func (p *Page) HiddenFromAssistant() bool {
	return p.VisibleToGlobalAssistant != nil && !*p.VisibleToGlobalAssistant
}

// ── Chat messages ───────────────────────────────────────────

// MessageRole is the conversational role of a persisted chat turn.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
)

// ToolCall is one provider-issued tool invocation recorded on a message.
type ToolCall struct {
	ToolCallID string         `json:"toolCallId"`
	ToolName   string         `json:"toolName"`
	Args       map[string]any `json:"args,omitempty"`
}

// ToolResult is the recorded outcome of a ToolCall, matched by ToolCallID.
type ToolResult struct {
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
	Result     any    `json:"result,omitempty"`
	IsError    bool   `json:"isError,omitempty"`
}

// ChatMessage is a persisted chat turn on an AI_CHAT page. Content is
// either plain text or the JSON envelope described in content.go.
type ChatMessage struct {
	ID            string       `json:"id"`
	PageID        string       `json:"pageId"`
	Role          MessageRole  `json:"role"`
	Content       string       `json:"content"`
	ToolCalls     []ToolCall   `json:"toolCalls,omitempty"`
	ToolResults   []ToolResult `json:"toolResults,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	IsActive      bool         `json:"isActive"`
	MessageType   string       `json:"messageType,omitempty"`
	SourceAgentID string       `json:"sourceAgentId,omitempty"`
}

// ── Activity log ────────────────────────────────────────────

// ActivityLog is an append-only event row.
type ActivityLog struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	DriveID    string    `json:"driveId,omitempty"`
	PageID     string    `json:"pageId,omitempty"`
	Action     string    `json:"action"`
	Timestamp  time.Time `json:"timestamp"`
	IsArchived bool      `json:"isArchived"`
}

// ActivityFilter selects activity rows for listing.
type ActivityFilter struct {
	UserID          string
	DriveID         string
	PageID          string
	IncludeArchived bool
	Limit           int
	Offset          int
}

// Pagination is the standard list-response envelope.
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}
