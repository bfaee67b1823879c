package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/pagespace/pagespace/gateway/pkg/principal"
)

// Abort cancels a running stream owned by the caller. The endpoint always
// answers 200; the outcome is carried in the body so racing a natural
// completion is not an error.
func (h *Handlers) Abort(w http.ResponseWriter, r *http.Request) {
	p := principal.Get(r.Context())

	var body struct {
		StreamID string `json:"streamId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.StreamID == "" {
		respondError(w, http.StatusBadRequest, "streamId is required")
		return
	}

	result := h.registry.Abort(body.StreamID, p.UserID)
	respondJSON(w, http.StatusOK, result)
}
