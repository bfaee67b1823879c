package streams

import (
	"context"
	"testing"
)

func TestCreateGeneratesID(t *testing.T) {
	r := NewRegistry()
	id, ctx, cancel := r.Create(context.Background(), "user-a", "")
	defer cancel()

	if id == "" {
		t.Fatal("expected a generated stream id")
	}
	if !r.IsActive(id) {
		t.Error("fresh stream should be active")
	}
	if ctx.Err() != nil {
		t.Error("fresh stream context should not be cancelled")
	}
}

func TestCreateHonorsProvidedID(t *testing.T) {
	r := NewRegistry()
	id, _, cancel := r.Create(context.Background(), "user-a", "my-stream")
	defer cancel()
	if id != "my-stream" {
		t.Errorf("id = %q, want my-stream", id)
	}
}

func TestAbortByOwner(t *testing.T) {
	r := NewRegistry()
	id, ctx, _ := r.Create(context.Background(), "user-a", "")

	res := r.Abort(id, "user-a")
	if !res.Aborted {
		t.Fatalf("owner abort should succeed: %+v", res)
	}
	if res.Reason != "Stream aborted by user request" {
		t.Errorf("reason = %q", res.Reason)
	}
	if ctx.Err() == nil {
		t.Error("stream context should be cancelled")
	}
	if r.IsActive(id) {
		t.Error("aborted stream should be removed")
	}
}

// A requester who does not own the stream must get a refusal and the stream
// must keep running.
func TestAbortIDORGuard(t *testing.T) {
	r := NewRegistry()
	id, ctx, cancel := r.Create(context.Background(), "user-a", "")
	defer cancel()

	res := r.Abort(id, "user-b")
	if res.Aborted {
		t.Fatal("foreign abort must not succeed")
	}
	if res.Reason != "Unauthorized to abort this stream" {
		t.Errorf("reason = %q", res.Reason)
	}
	if ctx.Err() != nil {
		t.Error("foreign abort must not cancel the stream")
	}
	if !r.IsActive(id) {
		t.Error("stream should remain active after denied abort")
	}
}

// A second abort on the same id behaves like any unknown id.
func TestAbortIdempotence(t *testing.T) {
	r := NewRegistry()
	id, _, _ := r.Create(context.Background(), "user-a", "")

	if res := r.Abort(id, "user-a"); !res.Aborted {
		t.Fatalf("first abort should succeed: %+v", res)
	}
	res := r.Abort(id, "user-a")
	if res.Aborted {
		t.Fatal("second abort must not succeed")
	}
	if res.Reason != "Stream not found or already completed" {
		t.Errorf("reason = %q", res.Reason)
	}
}

func TestAbortUnknownStream(t *testing.T) {
	r := NewRegistry()
	res := r.Abort("never-existed", "user-a")
	if res.Aborted || res.Reason != "Stream not found or already completed" {
		t.Errorf("got %+v", res)
	}
}

func TestRemoveIsSilent(t *testing.T) {
	r := NewRegistry()
	id, ctx, cancel := r.Create(context.Background(), "user-a", "")
	defer cancel()

	r.Remove(id)
	if r.IsActive(id) {
		t.Error("removed stream should not be active")
	}
	if ctx.Err() != nil {
		t.Error("Remove must not cancel")
	}

	// Removing again is a no-op.
	r.Remove(id)
}

func TestActiveCount(t *testing.T) {
	r := NewRegistry()
	if r.ActiveCount() != 0 {
		t.Fatal("fresh registry should be empty")
	}
	_, _, c1 := r.Create(context.Background(), "user-a", "")
	defer c1()
	id2, _, c2 := r.Create(context.Background(), "user-a", "")
	defer c2()

	if r.ActiveCount() != 2 {
		t.Errorf("count = %d, want 2", r.ActiveCount())
	}
	r.Remove(id2)
	if r.ActiveCount() != 1 {
		t.Errorf("count = %d, want 1", r.ActiveCount())
	}
}
