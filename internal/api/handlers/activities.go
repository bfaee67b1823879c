package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/pagespace/pagespace/gateway/internal/scope"
	"github.com/pagespace/pagespace/gateway/pkg/models"
	"github.com/pagespace/pagespace/gateway/pkg/principal"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 200
)

// Activities lists activity-log rows for a user, drive, or page context
// with offset pagination.
func (h *Handlers) Activities(w http.ResponseWriter, r *http.Request) {
	p := principal.Get(r.Context())
	q := r.URL.Query()

	filter := models.ActivityFilter{
		Limit:  defaultActivityLimit,
		Offset: 0,
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		filter.Limit = min(n, maxActivityLimit)
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "Invalid offset")
			return
		}
		filter.Offset = n
	}

	switch q.Get("context") {
	case "", "user":
		filter.UserID = p.UserID
	case "drive":
		driveID := q.Get("driveId")
		if driveID == "" {
			respondError(w, http.StatusBadRequest, "driveId is required for drive context")
			return
		}
		if !h.checkScope(w, h.scope.CheckDriveScope(p, driveID)) {
			return
		}
		if !h.checkDriveAccess(w, r, p, driveID) {
			return
		}
		filter.DriveID = driveID
	case "page":
		pageID := q.Get("pageId")
		if pageID == "" {
			respondError(w, http.StatusBadRequest, "pageId is required for page context")
			return
		}
		if !h.checkScope(w, h.scope.CheckPageScope(r.Context(), p, pageID)) {
			return
		}
		filter.PageID = pageID
	default:
		respondError(w, http.StatusBadRequest, "context must be user, drive, or page")
		return
	}

	activities, total, err := h.store.ListActivities(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list activities")
		return
	}
	if activities == nil {
		activities = []models.ActivityLog{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"activities": activities,
		"pagination": models.Pagination{
			Total:   total,
			Limit:   filter.Limit,
			Offset:  filter.Offset,
			HasMore: filter.Offset+len(activities) < total,
		},
	})
}

// checkScope translates a scope.Error into its response. Returns false
// when the request has been answered.
func (h *Handlers) checkScope(w http.ResponseWriter, err error) bool {
	if err == nil {
		return true
	}
	var se *scope.Error
	if errors.As(err, &se) {
		respondError(w, se.Status, se.Message)
	} else {
		respondError(w, http.StatusInternalServerError, "Scope check failed")
	}
	return false
}

// checkDriveAccess verifies membership for session callers; scoped MCP
// callers were already checked against their drive list.
func (h *Handlers) checkDriveAccess(w http.ResponseWriter, r *http.Request, p *principal.Principal, driveID string) bool {
	member, err := h.store.IsDriveMember(r.Context(), driveID, p.UserID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Drive lookup failed")
		return false
	}
	if !member {
		respondError(w, http.StatusForbidden, "You do not have access to this drive")
		return false
	}
	return true
}

// CronArchiveActivities archives activity rows older than the retention
// window. Guarded by the cron shared secret, not user auth.
func (h *Handlers) CronArchiveActivities(retention time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := h.store.ArchiveActivitiesBefore(r.Context(), time.Now().Add(-retention))
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Archive failed")
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"archived": count})
	}
}
