package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pagespace/pagespace/gateway/internal/cache"
	"github.com/pagespace/pagespace/gateway/internal/store"
	"github.com/pagespace/pagespace/gateway/pkg/models"
	"github.com/pagespace/pagespace/gateway/pkg/principal"
)

// WebSearchToolName is filtered out when web search is disabled for the
// request.
const WebSearchToolName = "web_search"

// writeOps is the set removed in read-only mode.
var writeOps = map[string]bool{
	"create_page":  true,
	"rename_page":  true,
	"move_page":    true,
	"trash_page":   true,
	"restore_page": true,
	"create_task":  true,
	"update_task":  true,
	"send_message": true,
}

// Catalog aggregates the fixed internal tool groups into a flat name → tool
// map. Construction wires every handler against the store and the drive
// caches; filtering is done per request.
type Catalog struct {
	store  store.Store
	caches *cache.DriveCaches
	all    map[string]Tool
}

// Filter selects which tools a request may see.
type Filter struct {
	ReadOnly         bool
	WebSearchEnabled bool
}

// Summary is the flat allowed/denied view used by the admin prompt viewer.
type Summary struct {
	Allowed []string `json:"allowed"`
	Denied  []string `json:"denied"`
}

func NewCatalog(st store.Store, caches *cache.DriveCaches) *Catalog {
	c := &Catalog{store: st, caches: caches, all: make(map[string]Tool)}
	for _, group := range [][]Tool{
		c.driveGroup(),
		c.pageReadGroup(),
		c.pageWriteGroup(),
		c.searchGroup(),
		c.taskGroup(),
		c.agentGroup(),
		c.messageGroup(),
		c.webGroup(),
	} {
		for _, t := range group {
			c.all[t.Name] = t
		}
	}
	return c
}

// Tools returns the filtered map for one request.
func (c *Catalog) Tools(f Filter) map[string]Tool {
	out := make(map[string]Tool, len(c.all))
	for name, t := range c.all {
		if f.ReadOnly && writeOps[name] {
			continue
		}
		if !f.WebSearchEnabled && name == WebSearchToolName {
			continue
		}
		out[name] = t
	}
	return out
}

// Summarize reports which tools the filter admits and which it removes,
// both sorted for stable display.
func (c *Catalog) Summarize(f Filter) Summary {
	var s Summary
	admitted := c.Tools(f)
	for name := range c.all {
		if _, ok := admitted[name]; ok {
			s.Allowed = append(s.Allowed, name)
		} else {
			s.Denied = append(s.Denied, name)
		}
	}
	sort.Strings(s.Allowed)
	sort.Strings(s.Denied)
	return s
}

// ── Tool groups ─────────────────────────────────────────────

func (c *Catalog) driveGroup() []Tool {
	return []Tool{
		{
			Name:        "list_drives",
			Description: "List the drives the current user can access.",
			Params:      obj(map[string]*Param{}),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				// The lookup is bound to the authenticated caller; the model
				// cannot pick whose drives to enumerate.
				p := principal.Get(ctx)
				if p == nil {
					return nil, fmt.Errorf("no authenticated user")
				}
				return c.store.ListDrivesForUser(ctx, p.UserID)
			},
		},
		{
			Name:        "get_drive",
			Description: "Fetch a drive by id.",
			Params:      obj(map[string]*Param{"driveId": str("Drive id")}),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				id, err := argString(args, "driveId")
				if err != nil {
					return nil, err
				}
				return c.store.GetDrive(ctx, id)
			},
		},
	}
}

func (c *Catalog) pageReadGroup() []Tool {
	return []Tool{
		{
			Name:        "list_pages",
			Description: "List the pages of a drive as a flat ordered snapshot.",
			Params:      obj(map[string]*Param{"driveId": str("Drive id")}),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				id, err := argString(args, "driveId")
				if err != nil {
					return nil, err
				}
				return c.caches.Trees.Get(ctx, id)
			},
		},
		{
			Name:        "read_page",
			Description: "Read a page's metadata. FILE pages are read-only.",
			Params:      obj(map[string]*Param{"pageId": str("Page id")}),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				id, err := argString(args, "pageId")
				if err != nil {
					return nil, err
				}
				return c.store.GetPage(ctx, id)
			},
		},
	}
}

func (c *Catalog) pageWriteGroup() []Tool {
	return []Tool{
		{
			Name:        "create_page",
			Description: "Create a page in a drive.",
			Params: obj(map[string]*Param{
				"driveId":  str("Drive id"),
				"title":    str("Page title"),
				"type":     {Kind: KindEnum, Enum: pageTypeEnum(), Description: "Page type"},
				"parentId": optStr("Parent page id; omit for a root page"),
			}),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				driveID, err := argString(args, "driveId")
				if err != nil {
					return nil, err
				}
				title, err := argString(args, "title")
				if err != nil {
					return nil, err
				}
				pageType, err := argString(args, "type")
				if err != nil {
					return nil, err
				}
				var parentID *string
				if v, ok := args["parentId"].(string); ok && v != "" {
					parentID = &v
				}
				siblings, err := c.store.ListSiblings(ctx, driveID, parentID)
				if err != nil {
					return nil, err
				}
				position := float64(0)
				if len(siblings) > 0 {
					position = siblings[len(siblings)-1].Position + 1
				}
				page := &models.Page{
					ID:        uuid.NewString(),
					DriveID:   driveID,
					ParentID:  parentID,
					Title:     title,
					Type:      models.PageType(pageType),
					Position:  position,
					CreatedAt: time.Now(),
					UpdatedAt: time.Now(),
				}
				if err := c.store.CreatePage(ctx, page); err != nil {
					return nil, err
				}
				c.caches.InvalidateDrive(driveID)
				return page, nil
			},
		},
		{
			Name:        "rename_page",
			Description: "Rename a page.",
			Params: obj(map[string]*Param{
				"pageId": str("Page id"),
				"title":  str("New title"),
			}),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return c.mutatePage(ctx, args, func(p *models.Page) error {
					title, err := argString(args, "title")
					if err != nil {
						return err
					}
					p.Title = title
					return nil
				})
			},
		},
		{
			Name:        "move_page",
			Description: "Move a page under a new parent, placed at the tail.",
			Params: obj(map[string]*Param{
				"pageId":   str("Page id"),
				"parentId": optStr("New parent id; omit to move to the drive root"),
			}),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return c.mutatePage(ctx, args, func(p *models.Page) error {
					var parentID *string
					if v, ok := args["parentId"].(string); ok && v != "" {
						parentID = &v
					}
					siblings, err := c.store.ListSiblings(ctx, p.DriveID, parentID)
					if err != nil {
						return err
					}
					p.ParentID = parentID
					p.Position = 0
					if len(siblings) > 0 {
						p.Position = siblings[len(siblings)-1].Position + 1
					}
					return nil
				})
			},
		},
		{
			Name:        "trash_page",
			Description: "Move a page to the trash.",
			Params:      obj(map[string]*Param{"pageId": str("Page id")}),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return c.mutatePage(ctx, args, func(p *models.Page) error {
					p.IsTrashed = true
					return nil
				})
			},
		},
		{
			Name:        "restore_page",
			Description: "Restore a page from the trash.",
			Params:      obj(map[string]*Param{"pageId": str("Page id")}),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return c.mutatePage(ctx, args, func(p *models.Page) error {
					p.IsTrashed = false
					return nil
				})
			},
		},
	}
}

func (c *Catalog) searchGroup() []Tool {
	return []Tool{
		{
			Name:        "search_pages",
			Description: "Search a drive's pages by title substring, case-insensitive.",
			Params: obj(map[string]*Param{
				"driveId": str("Drive id"),
				"query":   str("Substring to match against page titles"),
				"limit":   optInt("Maximum results, default 20"),
			}),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				driveID, err := argString(args, "driveId")
				if err != nil {
					return nil, err
				}
				query, err := argString(args, "query")
				if err != nil {
					return nil, err
				}
				limit := 20
				if v, ok := args["limit"].(float64); ok && v > 0 {
					limit = int(v)
				}
				pages, err := c.store.ListPagesByDrive(ctx, driveID)
				if err != nil {
					return nil, err
				}
				needle := strings.ToLower(query)
				var hits []models.Page
				for _, p := range pages {
					if strings.Contains(strings.ToLower(p.Title), needle) {
						hits = append(hits, p)
						if len(hits) >= limit {
							break
						}
					}
				}
				return hits, nil
			},
		},
	}
}

func (c *Catalog) taskGroup() []Tool {
	return []Tool{
		{
			Name:        "list_tasks",
			Description: "List the TASK_LIST pages of a drive.",
			Params:      obj(map[string]*Param{"driveId": str("Drive id")}),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				driveID, err := argString(args, "driveId")
				if err != nil {
					return nil, err
				}
				pages, err := c.store.ListPagesByDrive(ctx, driveID)
				if err != nil {
					return nil, err
				}
				var tasks []models.Page
				for _, p := range pages {
					if p.Type == models.PageTaskList {
						tasks = append(tasks, p)
					}
				}
				return tasks, nil
			},
		},
		{
			Name:        "create_task",
			Description: "Create a TASK_LIST page in a drive.",
			Params: obj(map[string]*Param{
				"driveId": str("Drive id"),
				"title":   str("Task list title"),
			}),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				args["type"] = string(models.PageTaskList)
				return c.all["create_page"].Handler(ctx, args)
			},
		},
		{
			Name:        "update_task",
			Description: "Rename a TASK_LIST page.",
			Params: obj(map[string]*Param{
				"pageId": str("Task list page id"),
				"title":  str("New title"),
			}),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return c.all["rename_page"].Handler(ctx, args)
			},
		},
	}
}

func (c *Catalog) agentGroup() []Tool {
	return []Tool{
		{
			Name:        "list_agents",
			Description: "List the drive's AI agents visible to the assistant.",
			Params:      obj(map[string]*Param{"driveId": str("Drive id")}),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				driveID, err := argString(args, "driveId")
				if err != nil {
					return nil, err
				}
				return c.caches.Agents.Get(ctx, driveID)
			},
		},
	}
}

func (c *Catalog) messageGroup() []Tool {
	return []Tool{
		{
			Name:        "list_messages",
			Description: "List recent messages of an AI_CHAT or CHANNEL page.",
			Params: obj(map[string]*Param{
				"pageId": str("Page id"),
				"limit":  optInt("Maximum messages, default 50"),
			}),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				pageID, err := argString(args, "pageId")
				if err != nil {
					return nil, err
				}
				limit := 50
				if v, ok := args["limit"].(float64); ok && v > 0 {
					limit = int(v)
				}
				return c.store.ListMessages(ctx, pageID, limit)
			},
		},
		{
			Name:        "send_message",
			Description: "Append a message to a CHANNEL page.",
			Params: obj(map[string]*Param{
				"pageId":  str("Channel page id"),
				"content": str("Message body"),
			}),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				pageID, err := argString(args, "pageId")
				if err != nil {
					return nil, err
				}
				content, err := argString(args, "content")
				if err != nil {
					return nil, err
				}
				msg := &models.ChatMessage{
					ID:        uuid.NewString(),
					PageID:    pageID,
					Role:      models.MessageRoleAssistant,
					Content:   content,
					CreatedAt: time.Now(),
					IsActive:  true,
				}
				if err := c.store.AppendMessage(ctx, msg); err != nil {
					return nil, err
				}
				return msg, nil
			},
		},
	}
}

func (c *Catalog) webGroup() []Tool {
	return []Tool{
		{
			Name:        WebSearchToolName,
			Description: "Search the web. Available only when enabled for the request.",
			Params: obj(map[string]*Param{
				"query": str("Search query"),
			}),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				// Executed provider-side for providers with native search;
				// locally it reports unavailability as a tool error.
				return nil, fmt.Errorf("web search is not available on this deployment")
			},
		},
	}
}

// mutatePage loads, mutates, persists, and invalidates the drive caches.
func (c *Catalog) mutatePage(ctx context.Context, args map[string]any, mutate func(*models.Page) error) (any, error) {
	pageID, err := argString(args, "pageId")
	if err != nil {
		return nil, err
	}
	page, err := c.store.GetPage(ctx, pageID)
	if err != nil {
		return nil, err
	}
	if page.Type == models.PageFile {
		return nil, fmt.Errorf("FILE pages are read-only")
	}
	if err := mutate(page); err != nil {
		return nil, err
	}
	page.UpdatedAt = time.Now()
	if err := c.store.UpdatePage(ctx, page); err != nil {
		return nil, err
	}
	c.caches.InvalidateDrive(page.DriveID)
	return page, nil
}

func argString(args map[string]any, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	return v, nil
}

func pageTypeEnum() []any {
	out := make([]any, len(models.PageTypes))
	for i, t := range models.PageTypes {
		out[i] = string(t)
	}
	return out
}
