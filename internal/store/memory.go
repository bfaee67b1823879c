// Package store — in-memory Store implementation.
// Used for tests and local development; production deployments swap in a
// SQL-backed implementation of the same interface.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pagespace/pagespace/gateway/pkg/models"
)

// MemoryStore implements Store with in-memory maps.
type MemoryStore struct {
	mu sync.RWMutex

	users        map[string]*models.User            // key: id
	sessions     map[string]*models.Session         // key: token hash
	sessionIDs   map[string]string                  // key: session id → token hash
	mcpTokens    map[string]*models.MCPToken        // key: token hash
	mcpTokenIDs  map[string]string                  // key: token id → token hash
	settings     map[string]*models.ProviderSetting // key: userID:provider
	drives       map[string]*models.Drive           // key: id
	driveMembers map[string]map[string]bool         // key: driveID → set of userIDs
	pages        map[string]*models.Page            // key: id
	messages     map[string][]*models.ChatMessage   // key: pageID, append-only
	activities   []*models.ActivityLog              // append-only
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[string]*models.User),
		sessions:     make(map[string]*models.Session),
		sessionIDs:   make(map[string]string),
		mcpTokens:    make(map[string]*models.MCPToken),
		mcpTokenIDs:  make(map[string]string),
		settings:     make(map[string]*models.ProviderSetting),
		drives:       make(map[string]*models.Drive),
		driveMembers: make(map[string]map[string]bool),
		pages:        make(map[string]*models.Page),
		messages:     make(map[string][]*models.ChatMessage),
	}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
func (m *MemoryStore) Close() error               { return nil }

// ── Users ───────────────────────────────────────────────────

func (m *MemoryStore) GetUser(_ context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "user", Key: id}
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *MemoryStore) UpdateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return &ErrNotFound{Entity: "user", Key: user.ID}
	}
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *MemoryStore) AddStorageUsed(_ context.Context, userID string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return &ErrNotFound{Entity: "user", Key: userID}
	}
	u.StorageUsedBytes += delta
	if u.StorageUsedBytes < 0 {
		u.StorageUsedBytes = 0
	}
	return nil
}

// ── Sessions ────────────────────────────────────────────────

func (m *MemoryStore) CreateSession(_ context.Context, session *models.Session, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *session
	m.sessions[tokenHash] = &cp
	m.sessionIDs[session.ID] = tokenHash
	return nil
}

func (m *MemoryStore) GetSessionByTokenHash(_ context.Context, tokenHash string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[tokenHash]
	if !ok {
		return nil, &ErrNotFound{Entity: "session", Key: "by-hash"}
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	hash, ok := m.sessionIDs[id]
	if !ok {
		return &ErrNotFound{Entity: "session", Key: id}
	}
	delete(m.sessions, hash)
	delete(m.sessionIDs, id)
	return nil
}

func (m *MemoryStore) DeleteUserSessions(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for hash, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessionIDs, s.ID)
			delete(m.sessions, hash)
		}
	}
	return nil
}

// ── MCP tokens ──────────────────────────────────────────────

func (m *MemoryStore) CreateMCPToken(_ context.Context, token *models.MCPToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *token
	cp.DriveScopes = append([]string(nil), token.DriveScopes...)
	m.mcpTokens[token.TokenHash] = &cp
	m.mcpTokenIDs[token.ID] = token.TokenHash
	return nil
}

func (m *MemoryStore) GetMCPTokenByHash(_ context.Context, tokenHash string) (*models.MCPToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.mcpTokens[tokenHash]
	if !ok {
		return nil, &ErrNotFound{Entity: "mcp token", Key: "by-hash"}
	}
	cp := *t
	cp.DriveScopes = append([]string(nil), t.DriveScopes...)
	return &cp, nil
}

func (m *MemoryStore) TouchMCPToken(_ context.Context, id string, when time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	hash, ok := m.mcpTokenIDs[id]
	if !ok {
		return &ErrNotFound{Entity: "mcp token", Key: id}
	}
	m.mcpTokens[hash].LastUsed = when
	return nil
}

func (m *MemoryStore) RevokeMCPToken(_ context.Context, id string, when time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	hash, ok := m.mcpTokenIDs[id]
	if !ok {
		return &ErrNotFound{Entity: "mcp token", Key: id}
	}
	w := when
	m.mcpTokens[hash].RevokedAt = &w
	return nil
}

// ── Provider settings ───────────────────────────────────────

func settingKey(userID, provider string) string { return userID + ":" + provider }

func (m *MemoryStore) GetProviderSetting(_ context.Context, userID, provider string) (*models.ProviderSetting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.settings[settingKey(userID, provider)]
	if !ok {
		return nil, &ErrNotFound{Entity: "provider setting", Key: settingKey(userID, provider)}
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) UpsertProviderSetting(_ context.Context, setting *models.ProviderSetting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *setting
	cp.UpdatedAt = time.Now().UTC()
	m.settings[settingKey(setting.UserID, setting.Provider)] = &cp
	return nil
}

// ── Drives ──────────────────────────────────────────────────

func (m *MemoryStore) GetDrive(_ context.Context, id string) (*models.Drive, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drives[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "drive", Key: id}
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) CreateDrive(_ context.Context, drive *models.Drive) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *drive
	m.drives[drive.ID] = &cp
	return nil
}

func (m *MemoryStore) ListDrivesForUser(_ context.Context, userID string) ([]models.Drive, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Drive
	for _, d := range m.drives {
		if d.IsTrashed {
			continue
		}
		if d.OwnerID == userID || m.driveMembers[d.ID][userID] {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) AddDriveMember(_ context.Context, driveID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.drives[driveID]; !ok {
		return &ErrNotFound{Entity: "drive", Key: driveID}
	}
	if m.driveMembers[driveID] == nil {
		m.driveMembers[driveID] = make(map[string]bool)
	}
	m.driveMembers[driveID][userID] = true
	return nil
}

func (m *MemoryStore) IsDriveMember(_ context.Context, driveID, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drives[driveID]
	if !ok {
		return false, &ErrNotFound{Entity: "drive", Key: driveID}
	}
	return d.OwnerID == userID || m.driveMembers[driveID][userID], nil
}

// ── Pages ───────────────────────────────────────────────────

func (m *MemoryStore) GetPage(_ context.Context, id string) (*models.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pages[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "page", Key: id}
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) CreatePage(_ context.Context, page *models.Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *page
	m.pages[page.ID] = &cp
	return nil
}

func (m *MemoryStore) UpdatePage(_ context.Context, page *models.Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pages[page.ID]; !ok {
		return &ErrNotFound{Entity: "page", Key: page.ID}
	}
	cp := *page
	cp.UpdatedAt = time.Now().UTC()
	m.pages[page.ID] = &cp
	return nil
}

func (m *MemoryStore) ListPagesByDrive(_ context.Context, driveID string) ([]models.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Page
	for _, p := range m.pages {
		if p.DriveID == driveID && !p.IsTrashed {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := parentKey(out[i].ParentID), parentKey(out[j].ParentID)
		if pi != pj {
			return pi < pj
		}
		return out[i].Position < out[j].Position
	})
	return out, nil
}

func (m *MemoryStore) ListSiblings(_ context.Context, driveID string, parentID *string) ([]models.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Page
	for _, p := range m.pages {
		if p.DriveID != driveID || p.IsTrashed {
			continue
		}
		if parentKey(p.ParentID) == parentKey(parentID) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *MemoryStore) ListAgentPages(_ context.Context, driveID string) ([]models.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Page
	for _, p := range m.pages {
		if p.DriveID != driveID || p.IsTrashed || p.Type != models.PageAIChat {
			continue
		}
		if p.HiddenFromAssistant() {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func parentKey(parentID *string) string {
	if parentID == nil {
		return ""
	}
	return *parentID
}

// ── Messages ────────────────────────────────────────────────

func (m *MemoryStore) AppendMessage(_ context.Context, msg *models.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *msg
	m.messages[msg.PageID] = append(m.messages[msg.PageID], &cp)
	return nil
}

func (m *MemoryStore) ListMessages(_ context.Context, pageID string, limit int) ([]models.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[pageID]
	start := 0
	if limit > 0 && len(msgs) > limit {
		start = len(msgs) - limit
	}
	out := make([]models.ChatMessage, 0, len(msgs)-start)
	for _, msg := range msgs[start:] {
		out = append(out, *msg)
	}
	return out, nil
}

// ── Activities ──────────────────────────────────────────────

func (m *MemoryStore) CreateActivity(_ context.Context, event *models.ActivityLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *event
	m.activities = append(m.activities, &cp)
	return nil
}

func (m *MemoryStore) ListActivities(_ context.Context, filter models.ActivityFilter) ([]models.ActivityLog, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []models.ActivityLog
	for _, a := range m.activities {
		if a.IsArchived && !filter.IncludeArchived {
			continue
		}
		if filter.UserID != "" && a.UserID != filter.UserID {
			continue
		}
		if filter.DriveID != "" && a.DriveID != filter.DriveID {
			continue
		}
		if filter.PageID != "" && a.PageID != filter.PageID {
			continue
		}
		matched = append(matched, *a)
	}
	// Newest first.
	sort.Slice(matched, func(i, j int) bool { return matched[i].Timestamp.After(matched[j].Timestamp) })

	total := len(matched)
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[filter.Offset:]
		}
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (m *MemoryStore) ArchiveActivitiesBefore(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.activities {
		if !a.IsArchived && a.Timestamp.Before(cutoff) {
			a.IsArchived = true
			n++
		}
	}
	return n, nil
}

var _ Store = (*MemoryStore)(nil)
