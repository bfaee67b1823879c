// Package prompt builds the system prompt that accompanies every AI chat
// request. The prompt is assembled from ordered sections so admin tooling
// can inspect each part and its estimated token cost individually.
package prompt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pagespace/pagespace/gateway/internal/cache"
	"github.com/pagespace/pagespace/gateway/internal/store"
	"github.com/pagespace/pagespace/gateway/pkg/models"
)

// Scope names where the conversation is anchored.
const (
	ScopeDashboard = "dashboard"
	ScopeDrive     = "drive"
	ScopePage      = "page"
)

// Tree scopes for page conversations.
const (
	TreeScopeDrive    = "drive"
	TreeScopeChildren = "children"
)

// Mention is a user-supplied @[label](id:type) reference the assistant
// must read before responding.
type Mention struct {
	Label string
	ID    string
	Type  string
}

// Context carries everything the assembler needs about where the
// conversation is happening.
type Context struct {
	Scope string // dashboard, drive, or page

	// Drive fields, set for drive and page scopes.
	DriveID   string
	DriveName string
	DriveSlug string

	// Page fields, set for page scope.
	PageID      string
	PagePath    string
	PageType    models.PageType
	Breadcrumbs []string
	TaskLinked  bool

	TreeScope string // drive or children; page scope only
	ReadOnly  bool
	Timezone  string
	Mentions  []Mention
}

// Section is one assembled prompt part with its token estimate.
type Section struct {
	Name          string `json:"name"`
	Content       string `json:"content"`
	TokenEstimate int    `json:"tokenEstimate"`
}

// Result is the assembled prompt plus its per-section breakdown.
type Result struct {
	System   string
	Sections []Section
}

// Assembler builds system prompts from drive caches and per-user
// visibility checks.
type Assembler struct {
	store  store.Store
	caches *cache.DriveCaches
	now    func() time.Time
}

func NewAssembler(st store.Store, caches *cache.DriveCaches) *Assembler {
	return &Assembler{store: st, caches: caches, now: time.Now}
}

// Assemble builds the full system prompt for userID in pc. Sections that
// do not apply to the scope are omitted rather than emitted empty.
func (a *Assembler) Assemble(ctx context.Context, userID string, pc Context) (*Result, error) {
	var sections []Section
	add := func(name, content string) {
		if content == "" {
			return
		}
		sections = append(sections, Section{
			Name:          name,
			Content:       content,
			TokenEstimate: estimateTokens(content),
		})
	}

	add("core", corePrompt(pc.ReadOnly))
	add("context", contextSection(pc))
	add("mentions", mentionSection(pc.Mentions))
	add("timestamp", a.timestampSection(pc.Timezone))
	add("behavior", behaviorBlock)
	if pc.ReadOnly {
		add("read-only", readOnlyBlock)
	}
	add("instructions", instructionsSection(pc.Scope))

	if pc.Scope == ScopeDrive || pc.Scope == ScopeDashboard {
		agents, err := a.agentSection(ctx, userID, pc)
		if err != nil {
			return nil, err
		}
		add("agents", agents)
	}

	if (pc.Scope == ScopeDrive || pc.Scope == ScopePage) && pc.DriveID != "" {
		tree, err := a.treeSection(ctx, pc)
		if err != nil {
			return nil, err
		}
		add("page-tree", tree)
	}

	var b strings.Builder
	for i, s := range sections {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(s.Content)
	}
	return &Result{System: b.String(), Sections: sections}, nil
}

// estimateTokens approximates the token cost of text as ceil(len/4).
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// ── Static sections ─────────────────────────────────────────

const behaviorBlock = `Behavior:
- Answer directly; lead with the result, not a preamble.
- Keep responses short and concrete. Use markdown only when it helps.
- When a tool call fails, explain the failure plainly and suggest a next step.
- Never invent page content; read pages before summarizing them.`

const readOnlyBlock = `Read-only mode is active for this conversation. You must not create,
rename, move, trash, or restore any page, and you must not send messages
or modify tasks. If the user asks for a change, explain that this
conversation is read-only and describe what the change would involve.`

func corePrompt(readOnly bool) string {
	verb := "read, navigate, and modify"
	if readOnly {
		verb = "read and navigate (but never modify)"
	}
	return fmt.Sprintf(`You are the PageSpace assistant, embedded in the user's workspace. You
can %s the user's drives and pages through the tools
available to you. Ground every answer in actual page content.`, verb)
}

var pageTypeList = []models.PageType{
	models.PageFolder,
	models.PageDocument,
	models.PageSheet,
	models.PageCanvas,
	models.PageTaskList,
	models.PageAIChat,
	models.PageChannel,
	models.PageFile,
}

func instructionsSection(scope string) string {
	var b strings.Builder
	b.WriteString("Page types: ")
	for i, t := range pageTypeList {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(string(t))
	}
	b.WriteString(".\nAlways read a page before writing to it; FILE pages are read-only.\n")

	if scope == ScopePage {
		b.WriteString(`You are anchored to a single page. Prefer operating on this page and its
subtree; ask before touching unrelated parts of the drive.`)
	} else {
		b.WriteString(`You are working across the workspace. Confirm which drive or page the
user means when a reference is ambiguous before making changes.`)
	}
	return b.String()
}

// ── Dynamic sections ────────────────────────────────────────

func contextSection(pc Context) string {
	switch pc.Scope {
	case ScopeDashboard:
		return "Context: the user is on their dashboard, looking across all of their drives."
	case ScopeDrive:
		return fmt.Sprintf("Context: the user is in the drive %q (slug %s, id %s).",
			pc.DriveName, pc.DriveSlug, pc.DriveID)
	case ScopePage:
		var b strings.Builder
		fmt.Fprintf(&b, "Context: the user is on the page %q (type %s).", pc.PagePath, pc.PageType)
		if len(pc.Breadcrumbs) > 0 {
			fmt.Fprintf(&b, "\nLocation: %s", strings.Join(pc.Breadcrumbs, " > "))
		}
		if pc.TaskLinked {
			b.WriteString("\nThis page is linked to a task.")
		}
		return b.String()
	default:
		return ""
	}
}

func mentionSection(mentions []Mention) string {
	if len(mentions) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("The user referenced these items; read each one before responding:\n")
	for _, m := range mentions {
		fmt.Fprintf(&b, "- %s (%s, id %s)\n", m.Label, m.Type, m.ID)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (a *Assembler) timestampSection(tz string) string {
	loc := loadLocation(tz)
	local := a.now().In(loc)
	return fmt.Sprintf("Current time for the user: %s (%s, %s).",
		local.Format("Monday, January 2, 2006 at 3:04 PM"),
		TimeOfDayBucket(local.Hour()),
		loc.String())
}

// agentSection lists visible AI_CHAT agents. Cached per-drive records are
// still filtered per-user, so one user's cache fill never leaks an agent
// to a user who cannot view the page.
func (a *Assembler) agentSection(ctx context.Context, userID string, pc Context) (string, error) {
	driveIDs := []string{pc.DriveID}
	if pc.Scope == ScopeDashboard {
		drives, err := a.store.ListDrivesForUser(ctx, userID)
		if err != nil {
			return "", fmt.Errorf("list drives: %w", err)
		}
		driveIDs = driveIDs[:0]
		for _, d := range drives {
			driveIDs = append(driveIDs, d.ID)
		}
	}

	var b strings.Builder
	count := 0
	for _, driveID := range driveIDs {
		agents, err := a.caches.Agents.Get(ctx, driveID)
		if err != nil {
			return "", fmt.Errorf("agent cache: %w", err)
		}
		for _, agent := range agents {
			visible, err := a.canUserViewPage(ctx, userID, driveID)
			if err != nil {
				log.Warn().Err(err).Str("pageId", agent.ID).Msg("agent visibility check failed, skipping")
				continue
			}
			if !visible {
				continue
			}
			if count == 0 {
				b.WriteString("Agents available in this workspace (AI_CHAT pages you can hand off to):\n")
			}
			fmt.Fprintf(&b, "- %s (id %s)", agent.Title, agent.ID)
			if agent.Definition != "" {
				fmt.Fprintf(&b, ": %s", firstLine(agent.Definition))
			}
			b.WriteString("\n")
			count++
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (a *Assembler) canUserViewPage(ctx context.Context, userID, driveID string) (bool, error) {
	return a.store.IsDriveMember(ctx, driveID, userID)
}

func (a *Assembler) treeSection(ctx context.Context, pc Context) (string, error) {
	records, err := a.caches.Trees.Get(ctx, pc.DriveID)
	if err != nil {
		return "", fmt.Errorf("tree cache: %w", err)
	}
	if pc.Scope == ScopePage && pc.TreeScope == TreeScopeChildren {
		records = cache.FilterToSubtree(records, pc.PageID)
	}
	tree := renderTree(records)
	return "Page tree:\n" + tree, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:120] + "..."
	}
	return s
}
