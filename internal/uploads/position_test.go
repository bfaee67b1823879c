package uploads

import (
	"context"
	"testing"

	"github.com/pagespace/pagespace/gateway/internal/store"
	"github.com/pagespace/pagespace/gateway/pkg/models"
)

func seedSiblings(t *testing.T, st *store.MemoryStore, positions map[string]float64) {
	t.Helper()
	ctx := context.Background()
	if err := st.CreateDrive(ctx, &models.Drive{ID: "d", Name: "D", Slug: "d", OwnerID: "u"}); err != nil {
		t.Fatal(err)
	}
	for id, pos := range positions {
		err := st.CreatePage(ctx, &models.Page{
			ID: id, DriveID: "d", Title: id, Type: models.PageDocument, Position: pos,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestComputePosition(t *testing.T) {
	tests := []struct {
		name        string
		siblings    map[string]float64
		placement   string
		afterNodeID string
		want        float64
	}{
		{"empty parent", nil, "", "", 0},
		{"tail append", map[string]float64{"a": 1, "b": 4}, "", "", 5},
		{"before first sibling", map[string]float64{"a": 2, "b": 4}, PlaceBefore, "a", 1},
		{"before later sibling", map[string]float64{"a": 2, "b": 4}, PlaceBefore, "b", 3},
		{"after with next sibling", map[string]float64{"a": 2, "b": 4}, PlaceAfter, "a", 3},
		{"after last sibling", map[string]float64{"a": 2, "b": 4}, PlaceAfter, "b", 5},
		{"missing target falls back to tail", map[string]float64{"a": 2}, PlaceBefore, "gone", 3},
		{"placement without target appends", map[string]float64{"a": 2}, PlaceAfter, "", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewMemoryStore()
			seedSiblings(t, st, tt.siblings)
			got, err := ComputePosition(context.Background(), st, "d", nil, tt.placement, tt.afterNodeID)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("position = %v, want %v", got, tt.want)
			}
		})
	}
}
