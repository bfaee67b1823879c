package uploads

import (
	"context"

	"github.com/pagespace/pagespace/gateway/internal/store"
)

// Placement names where a new page lands relative to afterNodeID.
const (
	PlaceBefore = "before"
	PlaceAfter  = "after"
)

// ComputePosition picks a fractional position for a new page among the
// siblings under parentID. With a placement and target node it bisects the
// gap next to the target; otherwise (or when the target is gone) it
// appends at the tail. Concurrent inserts may pick the same slot; the
// fractional scheme tolerates ties, so no uniqueness is enforced.
func ComputePosition(ctx context.Context, pages store.PageStore, driveID string, parentID *string, placement, afterNodeID string) (float64, error) {
	siblings, err := pages.ListSiblings(ctx, driveID, parentID)
	if err != nil {
		return 0, err
	}

	if afterNodeID != "" && (placement == PlaceBefore || placement == PlaceAfter) {
		for i, s := range siblings {
			if s.ID != afterNodeID {
				continue
			}
			if placement == PlaceBefore {
				prev := 0.0
				if i > 0 {
					prev = siblings[i-1].Position
				}
				return (prev + s.Position) / 2, nil
			}
			next := s.Position + 2
			if i+1 < len(siblings) {
				next = siblings[i+1].Position
			}
			return (s.Position + next) / 2, nil
		}
		// Target vanished between the client's read and this insert.
	}

	if len(siblings) == 0 {
		return 0, nil
	}
	return siblings[len(siblings)-1].Position + 1, nil
}
