package handlers

import (
	"net/http"

	"github.com/pagespace/pagespace/gateway/internal/prompt"
	"github.com/pagespace/pagespace/gateway/internal/tools"
	"github.com/pagespace/pagespace/gateway/pkg/principal"
)

// GlobalPrompt is the admin viewer: the tool catalog's allow/deny split
// for the requested filters plus an assembled dashboard prompt with
// per-section token estimates.
func (h *Handlers) GlobalPrompt(w http.ResponseWriter, r *http.Request) {
	p := principal.Get(r.Context())
	if !p.IsAdmin() {
		respondError(w, http.StatusForbidden, "Admin access required")
		return
	}

	q := r.URL.Query()
	filter := tools.Filter{
		ReadOnly:         q.Get("readOnly") == "true",
		WebSearchEnabled: q.Get("webSearch") == "true",
	}

	assembled, err := h.assembler.Assemble(r.Context(), p.UserID, prompt.Context{
		Scope:    prompt.ScopeDashboard,
		ReadOnly: filter.ReadOnly,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Prompt assembly failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"tools":    h.catalog.Summarize(filter),
		"sections": assembled.Sections,
	})
}
