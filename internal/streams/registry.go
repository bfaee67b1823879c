// Package streams tracks in-flight AI response streams so their owners can
// abort them. The registry is process-local: an entry maps a stream id to
// its cancellation handle and owner.
package streams

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Abort reasons are part of the API contract.
const (
	ReasonNotFound     = "Stream not found or already completed"
	ReasonUnauthorized = "Unauthorized to abort this stream"
	ReasonAborted      = "Stream aborted by user request"
)

const (
	// maxEntryAge is a safety net against leaked entries, not a stream
	// timeout. Streams are expected to remove themselves on finish.
	maxEntryAge   = 10 * time.Minute
	sweepInterval = time.Minute
)

type entry struct {
	cancel    context.CancelFunc
	userID    string
	createdAt time.Time
}

// AbortResult is returned to the abort endpoint verbatim.
type AbortResult struct {
	Aborted bool   `json:"aborted"`
	Reason  string `json:"reason"`
}

// Registry is safe for concurrent use. The sweeper goroutine starts lazily
// on the first Create and runs for the life of the process.
type Registry struct {
	mu      sync.Mutex
	entries map[string]entry

	sweepOnce sync.Once
	now       func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Create registers a stream for userID and returns its id plus a context
// the orchestrator must thread through the provider call. An empty streamID
// gets a fresh id.
func (r *Registry) Create(parent context.Context, userID, streamID string) (string, context.Context, context.CancelFunc) {
	r.sweepOnce.Do(func() { go r.sweep() })

	if streamID == "" {
		streamID = uuid.NewString()
	}
	ctx, cancel := context.WithCancel(parent)

	r.mu.Lock()
	r.entries[streamID] = entry{cancel: cancel, userID: userID, createdAt: r.now()}
	r.mu.Unlock()

	return streamID, ctx, cancel
}

// Abort cancels the stream if, and only if, the requester owns it. A miss
// and a foreign stream return distinct reasons; the foreign stream keeps
// running.
func (r *Registry) Abort(streamID, requesterUserID string) AbortResult {
	r.mu.Lock()
	e, ok := r.entries[streamID]
	if !ok {
		r.mu.Unlock()
		return AbortResult{Aborted: false, Reason: ReasonNotFound}
	}
	if e.userID != requesterUserID {
		r.mu.Unlock()
		log.Warn().
			Str("stream_id", streamID).
			Str("requester", requesterUserID).
			Msg("abort denied: requester does not own stream")
		return AbortResult{Aborted: false, Reason: ReasonUnauthorized}
	}
	delete(r.entries, streamID)
	r.mu.Unlock()

	e.cancel()
	return AbortResult{Aborted: true, Reason: ReasonAborted}
}

// Remove drops the entry without cancelling. Invoked from the stream's
// on-finish hook; a missing id is a no-op.
func (r *Registry) Remove(streamID string) {
	r.mu.Lock()
	delete(r.entries, streamID)
	r.mu.Unlock()
}

// IsActive reports whether the stream is still registered.
func (r *Registry) IsActive(streamID string) bool {
	r.mu.Lock()
	_, ok := r.entries[streamID]
	r.mu.Unlock()
	return ok
}

// ActiveCount returns the number of registered streams.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	n := len(r.entries)
	r.mu.Unlock()
	return n
}

func (r *Registry) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := r.now().Add(-maxEntryAge)

		r.mu.Lock()
		var stale []entry
		for id, e := range r.entries {
			if e.createdAt.Before(cutoff) {
				stale = append(stale, e)
				delete(r.entries, id)
			}
		}
		r.mu.Unlock()

		for _, e := range stale {
			e.cancel()
		}
		if len(stale) > 0 {
			log.Info().Int("count", len(stale)).Msg("swept stale stream entries")
		}
	}
}
