package tools

import (
	"context"
	"testing"
	"time"

	"github.com/pagespace/pagespace/gateway/internal/cache"
	"github.com/pagespace/pagespace/gateway/internal/store"
	"github.com/pagespace/pagespace/gateway/pkg/models"
	"github.com/pagespace/pagespace/gateway/pkg/principal"
)

func newTestCatalog(t *testing.T) (*Catalog, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	caches := cache.NewDriveCaches(st, time.Minute, time.Minute, 16)
	return NewCatalog(st, caches), st
}

func TestCatalogContainsExpectedTools(t *testing.T) {
	c, _ := newTestCatalog(t)
	all := c.Tools(Filter{WebSearchEnabled: true})

	for _, name := range []string{
		"list_drives", "get_drive",
		"list_pages", "read_page",
		"create_page", "rename_page", "move_page", "trash_page", "restore_page",
		"search_pages",
		"list_tasks", "create_task", "update_task",
		"list_agents",
		"list_messages", "send_message",
		"web_search",
	} {
		if _, ok := all[name]; !ok {
			t.Errorf("catalog missing %s", name)
		}
	}
}

func TestCatalogReadOnlyFilter(t *testing.T) {
	c, _ := newTestCatalog(t)
	tools := c.Tools(Filter{ReadOnly: true, WebSearchEnabled: true})

	for name := range writeOps {
		if _, ok := tools[name]; ok {
			t.Errorf("read-only filter should remove %s", name)
		}
	}
	if _, ok := tools["list_pages"]; !ok {
		t.Error("read-only filter must keep read tools")
	}
	if _, ok := tools["web_search"]; !ok {
		t.Error("read-only filter must not remove web_search")
	}
}

func TestCatalogWebSearchFilter(t *testing.T) {
	c, _ := newTestCatalog(t)
	tools := c.Tools(Filter{WebSearchEnabled: false})

	if _, ok := tools["web_search"]; ok {
		t.Error("web_search should be removed when disabled")
	}
	if _, ok := tools["create_page"]; !ok {
		t.Error("web-search filter must not remove write tools")
	}
}

func TestCatalogSummarize(t *testing.T) {
	c, _ := newTestCatalog(t)
	s := c.Summarize(Filter{ReadOnly: true, WebSearchEnabled: false})

	denied := make(map[string]bool, len(s.Denied))
	for _, name := range s.Denied {
		denied[name] = true
	}
	if !denied["create_page"] || !denied["web_search"] {
		t.Errorf("denied = %v", s.Denied)
	}
	for _, name := range s.Allowed {
		if denied[name] {
			t.Errorf("%s appears in both allowed and denied", name)
		}
	}
	if len(s.Allowed)+len(s.Denied) != len(c.all) {
		t.Error("summary should partition the catalog")
	}
}

// list_drives answers for the authenticated caller only; a model-supplied
// userId argument is ignored.
func TestListDrivesBindsToCaller(t *testing.T) {
	c, st := newTestCatalog(t)
	ctx := context.Background()

	for id, owner := range map[string]string{"d-alice": "alice", "d-bob": "bob"} {
		if err := st.CreateDrive(ctx, &models.Drive{ID: id, Name: id, Slug: id, OwnerID: owner}); err != nil {
			t.Fatal(err)
		}
	}

	callerCtx := principal.Set(ctx, &principal.Principal{UserID: "alice", Method: principal.MethodSession})
	res, err := c.all["list_drives"].Handler(callerCtx, map[string]any{"userId": "bob"})
	if err != nil {
		t.Fatal(err)
	}
	drives := res.([]models.Drive)
	if len(drives) != 1 || drives[0].ID != "d-alice" {
		t.Errorf("drives = %+v, want only the caller's drive", drives)
	}

	if _, err := c.all["list_drives"].Handler(ctx, nil); err == nil {
		t.Error("list_drives without an authenticated caller should fail")
	}
}

func TestCreatePageToolPlacesAtTail(t *testing.T) {
	c, st := newTestCatalog(t)
	ctx := context.Background()

	if err := st.CreatePage(ctx, &models.Page{
		ID: "p1", DriveID: "drive-1", Title: "First", Type: models.PageDocument, Position: 4,
	}); err != nil {
		t.Fatal(err)
	}

	res, err := c.all["create_page"].Handler(ctx, map[string]any{
		"driveId": "drive-1",
		"title":   "Second",
		"type":    "DOCUMENT",
	})
	if err != nil {
		t.Fatal(err)
	}
	page := res.(*models.Page)
	if page.Position != 5 {
		t.Errorf("position = %v, want 5 (tail placement)", page.Position)
	}
}

func TestMutationToolsInvalidateTreeCache(t *testing.T) {
	c, st := newTestCatalog(t)
	ctx := context.Background()

	if err := st.CreatePage(ctx, &models.Page{
		ID: "p1", DriveID: "drive-1", Title: "Old", Type: models.PageDocument, Position: 1,
	}); err != nil {
		t.Fatal(err)
	}

	// Warm the cache through the list tool.
	if _, err := c.all["list_pages"].Handler(ctx, map[string]any{"driveId": "drive-1"}); err != nil {
		t.Fatal(err)
	}

	if _, err := c.all["rename_page"].Handler(ctx, map[string]any{
		"pageId": "p1", "title": "New",
	}); err != nil {
		t.Fatal(err)
	}

	res, err := c.all["list_pages"].Handler(ctx, map[string]any{"driveId": "drive-1"})
	if err != nil {
		t.Fatal(err)
	}
	records := res.([]cache.NodeRecord)
	if len(records) != 1 || records[0].Title != "New" {
		t.Errorf("records = %+v, want the renamed page", records)
	}
}

func TestFilePagesAreReadOnly(t *testing.T) {
	c, st := newTestCatalog(t)
	ctx := context.Background()

	if err := st.CreatePage(ctx, &models.Page{
		ID: "f1", DriveID: "drive-1", Title: "report.pdf", Type: models.PageFile, Position: 1,
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := c.all["rename_page"].Handler(ctx, map[string]any{
		"pageId": "f1", "title": "x",
	}); err == nil {
		t.Error("mutating a FILE page should fail")
	}
}
