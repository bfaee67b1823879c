package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/pagespace/pagespace/gateway/internal/orchestrator"
	"github.com/pagespace/pagespace/gateway/internal/prompt"
	"github.com/pagespace/pagespace/gateway/internal/tools"
	"github.com/pagespace/pagespace/gateway/pkg/models"
	"github.com/pagespace/pagespace/gateway/pkg/principal"
)

// chatRequest is the POST /api/ai/chat body.
type chatRequest struct {
	PageID string               `json:"pageId"`
	Parts  []models.MessagePart `json:"parts"`

	Context struct {
		Scope     string           `json:"scope"` // dashboard, drive, page
		DriveID   string           `json:"driveId,omitempty"`
		PageID    string           `json:"pageId,omitempty"`
		TreeScope string           `json:"treeScope,omitempty"` // drive, children
		Mentions  []prompt.Mention `json:"mentions,omitempty"`
	} `json:"context"`

	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	APIKey   string `json:"apiKey,omitempty"`

	ReadOnly         bool `json:"readOnly,omitempty"`
	WebSearchEnabled bool `json:"webSearchEnabled,omitempty"`

	MCPTools map[string][]tools.MCPToolDecl `json:"mcpTools,omitempty"`
	StreamID string                         `json:"streamId,omitempty"`
}

// Chat runs one AI turn and streams ordered events back as SSE. The stream
// id is surfaced in X-Stream-Id before the first chunk; a client that drops
// the connection does not stop the stream.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	p := principal.Get(r.Context())

	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.PageID == "" || len(body.Parts) == 0 {
		respondError(w, http.StatusBadRequest, "pageId and parts are required")
		return
	}
	if !h.checkScope(w, h.scope.CheckPageScope(r.Context(), p, body.PageID)) {
		return
	}

	user, err := h.store.GetUser(r.Context(), p.UserID)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid or expired session")
		return
	}

	promptCtx, err := h.buildPromptContext(r, body)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	promptCtx.ReadOnly = body.ReadOnly
	promptCtx.Timezone = user.Timezone
	promptCtx.Mentions = body.Context.Mentions

	stream, err := h.orchestrator.Prepare(r.Context(), orchestrator.ChatRequest{
		User:             user,
		PageID:           body.PageID,
		Parts:            body.Parts,
		Prompt:           promptCtx,
		Provider:         body.Provider,
		Model:            body.Model,
		APIKey:           body.APIKey,
		ReadOnly:         body.ReadOnly,
		WebSearchEnabled: body.WebSearchEnabled,
		MCPTools:         body.MCPTools,
		StreamID:         body.StreamID,
	})
	if err != nil {
		var oe *orchestrator.Error
		if errors.As(err, &oe) {
			respondError(w, oe.Status, oe.Message)
			return
		}
		log.Error().Err(err).Msg("chat preparation failed")
		respondError(w, http.StatusInternalServerError, "Failed to start AI stream")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Stream-Id", stream.ID)
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	stream.Run(func(ev orchestrator.Event) {
		// A dead connection makes these writes fail; the stream itself
		// keeps going and its artifacts are still persisted.
		raw, err := json.Marshal(ev)
		if err != nil {
			return
		}
		if _, err := w.Write([]byte("data: " + string(raw) + "\n\n")); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	})
}

// buildPromptContext resolves the conversation anchor named by the client
// into the assembler's context shape.
func (h *Handlers) buildPromptContext(r *http.Request, body chatRequest) (prompt.Context, error) {
	ctx := r.Context()
	pc := prompt.Context{Scope: body.Context.Scope}

	switch body.Context.Scope {
	case prompt.ScopeDashboard:
		return pc, nil

	case prompt.ScopeDrive:
		drive, err := h.store.GetDrive(ctx, body.Context.DriveID)
		if err != nil {
			return pc, errors.New("Unknown drive")
		}
		pc.DriveID = drive.ID
		pc.DriveName = drive.Name
		pc.DriveSlug = drive.Slug
		return pc, nil

	case prompt.ScopePage:
		pageID := body.Context.PageID
		if pageID == "" {
			pageID = body.PageID
		}
		page, err := h.store.GetPage(ctx, pageID)
		if err != nil {
			return pc, errors.New("Unknown page")
		}
		drive, err := h.store.GetDrive(ctx, page.DriveID)
		if err != nil {
			return pc, errors.New("Unknown drive")
		}
		pc.DriveID = drive.ID
		pc.DriveName = drive.Name
		pc.DriveSlug = drive.Slug
		pc.PageID = page.ID
		pc.PageType = page.Type
		pc.Breadcrumbs = h.breadcrumbs(ctx, page)
		pc.PagePath = "/" + drive.Slug + "/" + page.Title
		pc.TreeScope = body.Context.TreeScope
		return pc, nil

	default:
		return pc, errors.New("context.scope must be dashboard, drive, or page")
	}
}

// breadcrumbs walks the parent chain and returns titles root-first. The
// walk is bounded so a corrupt parent cycle cannot hang the request.
func (h *Handlers) breadcrumbs(ctx context.Context, page *models.Page) []string {
	var titles []string
	current := page
	for depth := 0; current.ParentID != nil && depth < 20; depth++ {
		parent, err := h.store.GetPage(ctx, *current.ParentID)
		if err != nil {
			break
		}
		titles = append([]string{parent.Title}, titles...)
		current = parent
	}
	return titles
}
