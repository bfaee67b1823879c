package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/pagespace/pagespace/gateway/internal/uploads"
	"github.com/pagespace/pagespace/gateway/pkg/principal"
)

// maxUploadMemory bounds the in-memory portion of multipart parsing; the
// file body itself spills to disk above this.
const maxUploadMemory = 32 << 20

// Upload admits and dispatches one file upload.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	p := principal.Get(r.Context())

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	driveID := r.FormValue("driveId")
	if driveID == "" {
		respondError(w, http.StatusBadRequest, "driveId is required")
		return
	}
	if !h.checkScope(w, h.scope.CheckCreateScope(p, &driveID)) {
		return
	}
	if !h.checkDriveAccess(w, r, p, driveID) {
		return
	}

	user, err := h.store.GetUser(r.Context(), p.UserID)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid or expired session")
		return
	}

	var parentID *string
	if v := r.FormValue("parentId"); v != "" {
		parentID = &v
	}

	resp, err := h.uploads.Upload(r.Context(), uploads.Request{
		User:        user,
		DriveID:     driveID,
		ParentID:    parentID,
		Title:       r.FormValue("title"),
		Placement:   r.FormValue("position"),
		AfterNodeID: r.FormValue("afterNodeId"),
		Filename:    header.Filename,
		MimeType:    header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		var ue *uploads.Error
		if errors.As(err, &ue) {
			payload := map[string]any{"error": ue.Message}
			if ue.StorageInfo != nil {
				payload["storageInfo"] = ue.StorageInfo
			}
			respondJSON(w, ue.Status, payload)
			return
		}
		log.Error().Err(err).Msg("upload failed")
		respondError(w, http.StatusInternalServerError, "Upload failed")
		return
	}

	respondJSON(w, resp.Status, resp)
}
