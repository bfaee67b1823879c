package uploads

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v4/mem"

	"github.com/pagespace/pagespace/gateway/internal/cache"
	"github.com/pagespace/pagespace/gateway/internal/store"
	"github.com/pagespace/pagespace/gateway/pkg/models"
)

type serviceFixture struct {
	service *Service
	store   *store.MemoryStore
	slots   *SlotPool
	user    *models.User
}

// newServiceFixture wires a service against an httptest processor whose
// handler the caller controls.
func newServiceFixture(t *testing.T, processorHandler http.HandlerFunc) *serviceFixture {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()

	user := &models.User{
		ID: "user-1", Role: models.RoleUser, TokenVersion: 1,
		Tier: "free", StorageQuotaBytes: 1 << 30,
	}
	if err := st.CreateUser(ctx, user); err != nil {
		t.Fatal(err)
	}
	if err := st.CreateDrive(ctx, &models.Drive{ID: "drive-1", Name: "D", Slug: "d", OwnerID: user.ID}); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(processorHandler)
	t.Cleanup(srv.Close)

	monitor := NewMemoryMonitor(90)
	monitor.probe = func(context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{UsedPercent: 10}, nil
	}

	slots := NewSlotPool(map[string]int64{"free": 2, "pro": 5}, "free")
	svc := NewService(st, cache.NewDriveCaches(st, time.Minute, time.Minute, 64), monitor, slots,
		NewProcessorClient(srv.URL, []byte("test-secret"), 10*time.Second))
	return &serviceFixture{service: svc, store: st, slots: slots, user: user}
}

func okProcessor(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}
}

func uploadRequest(f *serviceFixture, size int64) Request {
	return Request{
		User:     f.user,
		DriveID:  "drive-1",
		Filename: "report.pdf",
		MimeType: "application/pdf",
		Size:     size,
		Body:     strings.NewReader("file-bytes"),
	}
}

func uploadError(t *testing.T, err error) *Error {
	t.Helper()
	var ue *Error
	if !errors.As(err, &ue) {
		t.Fatalf("expected *uploads.Error, got %T: %v", err, err)
	}
	return ue
}

func countPages(t *testing.T, st *store.MemoryStore) int {
	t.Helper()
	pages, err := st.ListPagesByDrive(context.Background(), "drive-1")
	if err != nil {
		t.Fatal(err)
	}
	return len(pages)
}

func TestUploadHappyPath(t *testing.T) {
	f := newServiceFixture(t, okProcessor(`{"contentHash":"abc123","deduplicated":false,"size":10}`))

	resp, err := f.service.Upload(context.Background(), uploadRequest(f, 10))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != http.StatusAccepted {
		t.Errorf("status = %d, want 202 while processing is pending", resp.Status)
	}
	if resp.Page.Type != models.PageFile || resp.Page.FilePath != "abc123" {
		t.Errorf("page = %+v", resp.Page)
	}
	if resp.Page.ProcessingStatus != models.ProcessingPending {
		t.Errorf("processingStatus = %s, want pending", resp.Page.ProcessingStatus)
	}

	u, err := f.store.GetUser(context.Background(), f.user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if u.StorageUsedBytes != 10 {
		t.Errorf("storageUsedBytes = %d, want 10", u.StorageUsedBytes)
	}
	if f.slots.ActiveUploads(f.user.ID) != 0 {
		t.Error("slot not released after success")
	}
}

func TestUploadDeduplicated(t *testing.T) {
	f := newServiceFixture(t, okProcessor(`{"contentHash":"abc123","deduplicated":true,"size":10}`))

	resp, err := f.service.Upload(context.Background(), uploadRequest(f, 10))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("status = %d, want 200 for deduplicated upload", resp.Status)
	}
	if resp.Page.ProcessingStatus != models.ProcessingCompleted {
		t.Errorf("processingStatus = %s, want completed", resp.Page.ProcessingStatus)
	}
	if !strings.Contains(resp.Message, "deduplicated") {
		t.Errorf("message = %q, should mention deduplication", resp.Message)
	}
}

func TestUploadImageGetsVisualStatus(t *testing.T) {
	f := newServiceFixture(t, okProcessor(`{"contentHash":"img1","deduplicated":false,"size":10}`))

	req := uploadRequest(f, 10)
	req.Filename = "photo.png"
	req.MimeType = "image/png"
	resp, err := f.service.Upload(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Page.ProcessingStatus != models.ProcessingVisual {
		t.Errorf("processingStatus = %s, want visual", resp.Page.ProcessingStatus)
	}
}

func TestUploadQuotaRefusal(t *testing.T) {
	f := newServiceFixture(t, okProcessor(`{}`))
	f.user.StorageUsedBytes = f.user.StorageQuotaBytes - 10

	_, err := f.service.Upload(context.Background(), uploadRequest(f, 100))
	ue := uploadError(t, err)
	if ue.Status != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", ue.Status)
	}
	if ue.StorageInfo == nil || ue.StorageInfo.RequestedBytes != 100 {
		t.Errorf("storageInfo = %+v", ue.StorageInfo)
	}
	if countPages(t, f.store) != 0 {
		t.Error("quota refusal must not insert a page")
	}
	if f.slots.ActiveUploads(f.user.ID) != 0 {
		t.Error("quota refusal leaked a slot")
	}
}

func TestUploadMemoryPressure(t *testing.T) {
	f := newServiceFixture(t, okProcessor(`{}`))
	f.service.memory.probe = func(context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{UsedPercent: 97}, nil
	}

	_, err := f.service.Upload(context.Background(), uploadRequest(f, 10))
	ue := uploadError(t, err)
	if ue.Status != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", ue.Status)
	}
	if !strings.Contains(ue.Message, "memory pressure") {
		t.Errorf("message = %q", ue.Message)
	}
}

func TestUploadSlotExhaustion(t *testing.T) {
	f := newServiceFixture(t, okProcessor(`{}`))

	// Occupy both free-tier slots.
	s1 := f.slots.Acquire(f.user.ID, "free")
	s2 := f.slots.Acquire(f.user.ID, "free")
	if s1 == nil || s2 == nil {
		t.Fatal("free tier should allow two slots")
	}
	defer s1.Release()
	defer s2.Release()

	_, err := f.service.Upload(context.Background(), uploadRequest(f, 10))
	ue := uploadError(t, err)
	if ue.Status != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", ue.Status)
	}
}

func TestUploadProcessorFailure(t *testing.T) {
	f := newServiceFixture(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := f.service.Upload(context.Background(), uploadRequest(f, 10))
	ue := uploadError(t, err)
	if ue.Status != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", ue.Status)
	}

	// A failed FILE page is still recorded.
	pages, err2 := f.store.ListPagesByDrive(context.Background(), "drive-1")
	if err2 != nil {
		t.Fatal(err2)
	}
	if len(pages) != 1 || pages[0].ProcessingStatus != models.ProcessingFailed {
		t.Errorf("pages = %+v, want one failed FILE page", pages)
	}
	if f.slots.ActiveUploads(f.user.ID) != 0 {
		t.Error("processor failure leaked a slot")
	}
}

func TestSlotReleaseIdempotent(t *testing.T) {
	pool := NewSlotPool(map[string]int64{"free": 1}, "free")
	slot := pool.Acquire("u", "free")
	if slot == nil {
		t.Fatal("first acquire should succeed")
	}
	slot.Release()
	slot.Release() // second release is a no-op

	if pool.ActiveUploads("u") != 0 {
		t.Errorf("active = %d, want 0", pool.ActiveUploads("u"))
	}
	// Pool capacity must be back to exactly one.
	again := pool.Acquire("u", "free")
	if again == nil {
		t.Fatal("slot should be reusable after release")
	}
	if pool.Acquire("u", "free") != nil {
		t.Error("double release inflated pool capacity")
	}
	again.Release()
}

func TestSlotPoolUnknownTierUsesDefault(t *testing.T) {
	pool := NewSlotPool(map[string]int64{"free": 1}, "free")
	slot := pool.Acquire("u", "enterprise")
	if slot == nil {
		t.Fatal("unknown tier should fall back to default pool")
	}
	defer slot.Release()
	if pool.Acquire("u2", "free") != nil {
		t.Error("fallback must draw from the default tier's capacity")
	}
}
