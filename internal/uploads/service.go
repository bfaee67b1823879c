// Package uploads implements admission control and dispatch for file
// uploads: memory-pressure shedding, storage-quota accounting, per-tier
// concurrency slots, and the hand-off to the external file processor.
package uploads

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pagespace/pagespace/gateway/internal/cache"
	"github.com/pagespace/pagespace/gateway/internal/store"
	"github.com/pagespace/pagespace/gateway/pkg/models"
)

// StorageInfo accompanies quota refusals so the client can render usage.
type StorageInfo struct {
	UsedBytes      int64 `json:"usedBytes"`
	QuotaBytes     int64 `json:"quotaBytes"`
	RequestedBytes int64 `json:"requestedBytes"`
}

// Error is an admission or pipeline failure with its HTTP status.
type Error struct {
	Status      int
	Message     string
	StorageInfo *StorageInfo
}

func (e *Error) Error() string { return e.Message }

// Request describes one upload.
type Request struct {
	User        *models.User
	DriveID     string
	ParentID    *string
	Title       string
	Placement   string // before, after, or empty
	AfterNodeID string
	Filename    string
	MimeType    string
	Size        int64
	Body        io.Reader
}

// Response reports the created FILE page. Status is 202 when background
// processing jobs are still running, 200 otherwise.
type Response struct {
	Status  int          `json:"-"`
	Page    *models.Page `json:"page"`
	Message string       `json:"message"`
}

// Service runs the upload pipeline.
type Service struct {
	store     store.Store
	caches    *cache.DriveCaches
	memory    *MemoryMonitor
	slots     *SlotPool
	processor *ProcessorClient
	now       func() time.Time
}

func NewService(st store.Store, caches *cache.DriveCaches, memory *MemoryMonitor, slots *SlotPool, processor *ProcessorClient) *Service {
	return &Service{
		store:     st,
		caches:    caches,
		memory:    memory,
		slots:     slots,
		processor: processor,
		now:       time.Now,
	}
}

// Upload admits and executes one upload. Admission order is fixed: memory
// pressure, then quota, then concurrency slot. The slot and the per-user
// counter are released on every exit path.
func (s *Service) Upload(ctx context.Context, req Request) (*Response, error) {
	if reason := s.memory.Admit(ctx); reason != "" {
		return nil, &Error{Status: http.StatusServiceUnavailable, Message: reason}
	}

	if req.User.StorageQuotaBytes > 0 && req.User.StorageUsedBytes+req.Size > req.User.StorageQuotaBytes {
		return nil, &Error{
			Status:  http.StatusRequestEntityTooLarge,
			Message: "Storage quota exceeded",
			StorageInfo: &StorageInfo{
				UsedBytes:      req.User.StorageUsedBytes,
				QuotaBytes:     req.User.StorageQuotaBytes,
				RequestedBytes: req.Size,
			},
		}
	}

	slot := s.slots.Acquire(req.User.ID, req.User.Tier)
	if slot == nil {
		return nil, &Error{Status: http.StatusTooManyRequests, Message: "Too many concurrent uploads"}
	}
	defer slot.Release()

	return s.dispatch(ctx, req)
}

func (s *Service) dispatch(ctx context.Context, req Request) (*Response, error) {
	filename := SanitizeFilename(req.Filename)
	if filename == "" {
		filename = "untitled"
	}
	title := req.Title
	if title == "" {
		title = filename
	}

	result, err := s.processor.Process(ctx, filename, req.MimeType, req.Body)
	if err != nil {
		log.Error().Err(err).Str("filename", filename).Msg("file processor failed")
		if _, insertErr := s.insertPage(ctx, req, title, filename, "", models.ProcessingFailed, 0); insertErr != nil {
			log.Error().Err(insertErr).Msg("failed to record failed upload page")
		}
		return nil, &Error{Status: http.StatusInternalServerError, Message: "File processing failed"}
	}

	status := models.ProcessingPending
	message := "File uploaded"
	switch {
	case result.Deduplicated:
		status = models.ProcessingCompleted
		message = "File uploaded (deduplicated, no processing needed)"
	case strings.HasPrefix(req.MimeType, "image/"):
		status = models.ProcessingVisual
	}

	page, err := s.insertPage(ctx, req, title, filename, result.ContentHash, status, result.Size)
	if err != nil {
		return nil, fmt.Errorf("insert file page: %w", err)
	}

	if err := s.store.AddStorageUsed(ctx, req.User.ID, result.Size); err != nil {
		log.Error().Err(err).Str("userId", req.User.ID).Msg("storage accounting update failed")
	}

	respStatus := http.StatusOK
	if status != models.ProcessingCompleted || len(result.Jobs) > 0 {
		respStatus = http.StatusAccepted
	}
	return &Response{Status: respStatus, Page: page, Message: message}, nil
}

func (s *Service) insertPage(ctx context.Context, req Request, title, filename, contentHash string, status models.ProcessingStatus, size int64) (*models.Page, error) {
	position, err := ComputePosition(ctx, s.store, req.DriveID, req.ParentID, req.Placement, req.AfterNodeID)
	if err != nil {
		return nil, fmt.Errorf("compute position: %w", err)
	}

	now := s.now()
	page := &models.Page{
		ID:               uuid.NewString(),
		DriveID:          req.DriveID,
		ParentID:         req.ParentID,
		Title:            title,
		Type:             models.PageFile,
		Position:         position,
		FileSize:         size,
		MimeType:         req.MimeType,
		OriginalFileName: filename,
		FilePath:         contentHash,
		ProcessingStatus: status,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.CreatePage(ctx, page); err != nil {
		return nil, err
	}
	s.caches.InvalidateDrive(req.DriveID)
	return page, nil
}
