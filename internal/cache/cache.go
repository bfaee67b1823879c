// Package cache holds the process-local, drive-keyed caches consumed by the
// prompt assembler: the page tree cache and the agent awareness cache.
//
// Both caches hold drive-scope facts only. Per-user visibility is the
// caller's job and must be re-applied after every hit.
package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/pagespace/pagespace/gateway/internal/store"
)

// NodeRecord is one row of the flat, ordered tree snapshot. The tree
// structure is rebuilt on read via BuildTree.
type NodeRecord struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Type     string  `json:"type"`
	ParentID *string `json:"parentId,omitempty"`
	Position float64 `json:"position"`
}

// AgentRecord is one visible AI_CHAT agent of a drive.
type AgentRecord struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Definition string `json:"definition,omitempty"`
}

// DriveCaches bundles the two caches so handlers invalidate them together.
type DriveCaches struct {
	Trees  *TreeCache
	Agents *AgentCache
}

func NewDriveCaches(st store.Store, treeTTL, agentTTL time.Duration, maxEntries int) *DriveCaches {
	return &DriveCaches{
		Trees:  NewTreeCache(st, treeTTL, maxEntries),
		Agents: NewAgentCache(st, agentTTL, maxEntries),
	}
}

// InvalidateDrive drops both caches for the drive. Called on page
// create/rename/trash/restore/move and on agent config changes.
func (c *DriveCaches) InvalidateDrive(driveID string) {
	c.Trees.Invalidate(driveID)
	c.Agents.Invalidate(driveID)
}

// ── Page tree cache ─────────────────────────────────────────

// TreeCache caches the flat ordered page listing per drive, bounded by LRU
// eviction and a TTL safety net; correctness comes from explicit
// invalidation on mutation.
type TreeCache struct {
	store store.PageStore
	lru   *expirable.LRU[string, []NodeRecord]
}

func NewTreeCache(st store.PageStore, ttl time.Duration, maxEntries int) *TreeCache {
	return &TreeCache{
		store: st,
		lru:   expirable.NewLRU[string, []NodeRecord](maxEntries, nil, ttl),
	}
}

// Get returns the drive's ordered node records, filling from the store on a
// miss. The fill is a single query ordered by (parentId, position).
func (c *TreeCache) Get(ctx context.Context, driveID string) ([]NodeRecord, error) {
	if records, ok := c.lru.Get(driveID); ok {
		return records, nil
	}
	pages, err := c.store.ListPagesByDrive(ctx, driveID)
	if err != nil {
		return nil, err
	}
	records := make([]NodeRecord, 0, len(pages))
	for _, p := range pages {
		records = append(records, NodeRecord{
			ID:       p.ID,
			Title:    p.Title,
			Type:     string(p.Type),
			ParentID: p.ParentID,
			Position: p.Position,
		})
	}
	c.lru.Add(driveID, records)
	return records, nil
}

func (c *TreeCache) Set(driveID string, records []NodeRecord) {
	c.lru.Add(driveID, records)
}

func (c *TreeCache) Invalidate(driveID string) {
	c.lru.Remove(driveID)
}

// ── Agent awareness cache ───────────────────────────────────

// AgentCache caches each drive's visible AI_CHAT agents.
type AgentCache struct {
	store store.PageStore
	lru   *expirable.LRU[string, []AgentRecord]
}

func NewAgentCache(st store.PageStore, ttl time.Duration, maxEntries int) *AgentCache {
	return &AgentCache{
		store: st,
		lru:   expirable.NewLRU[string, []AgentRecord](maxEntries, nil, ttl),
	}
}

// Get returns the drive's agent list, filling from the store on a miss. The
// store query already excludes trashed agents and those hidden from the
// global assistant.
func (c *AgentCache) Get(ctx context.Context, driveID string) ([]AgentRecord, error) {
	if agents, ok := c.lru.Get(driveID); ok {
		return agents, nil
	}
	pages, err := c.store.ListAgentPages(ctx, driveID)
	if err != nil {
		return nil, err
	}
	agents := make([]AgentRecord, 0, len(pages))
	for _, p := range pages {
		agents = append(agents, AgentRecord{
			ID:         p.ID,
			Title:      p.Title,
			Definition: p.AgentDefinition,
		})
	}
	c.lru.Add(driveID, agents)
	return agents, nil
}

func (c *AgentCache) Set(driveID string, agents []AgentRecord) {
	c.lru.Add(driveID, agents)
}

func (c *AgentCache) Invalidate(driveID string) {
	c.lru.Remove(driveID)
}
