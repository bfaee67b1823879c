package cache

import "testing"

func strptr(s string) *string { return &s }

func sampleRecords() []NodeRecord {
	return []NodeRecord{
		{ID: "root-b", Title: "B", Type: "FOLDER", Position: 2},
		{ID: "root-a", Title: "A", Type: "FOLDER", Position: 1},
		{ID: "a-1", Title: "A1", Type: "DOCUMENT", ParentID: strptr("root-a"), Position: 2},
		{ID: "a-0", Title: "A0", Type: "DOCUMENT", ParentID: strptr("root-a"), Position: 1},
		{ID: "a-1-x", Title: "A1X", Type: "DOCUMENT", ParentID: strptr("a-1"), Position: 1},
	}
}

func TestBuildTreeOrdersByPosition(t *testing.T) {
	roots := BuildTree(sampleRecords())
	if len(roots) != 2 {
		t.Fatalf("got %d roots, want 2", len(roots))
	}
	if roots[0].ID != "root-a" || roots[1].ID != "root-b" {
		t.Errorf("root order = [%s %s], want [root-a root-b]", roots[0].ID, roots[1].ID)
	}

	children := roots[0].Children
	if len(children) != 2 || children[0].ID != "a-0" || children[1].ID != "a-1" {
		t.Fatalf("children of root-a = %+v", children)
	}
	if len(children[1].Children) != 1 || children[1].Children[0].ID != "a-1-x" {
		t.Errorf("grandchildren wrong: %+v", children[1].Children)
	}
}

func TestBuildTreeOrphansBecomeRoots(t *testing.T) {
	records := []NodeRecord{
		{ID: "orphan", Title: "O", Type: "DOCUMENT", ParentID: strptr("gone"), Position: 1},
	}
	roots := BuildTree(records)
	if len(roots) != 1 || roots[0].ID != "orphan" {
		t.Errorf("orphan should surface as a root, got %+v", roots)
	}
}

func TestFilterToSubtree(t *testing.T) {
	got := FilterToSubtree(sampleRecords(), "root-a")
	ids := make(map[string]bool, len(got))
	for _, r := range got {
		ids[r.ID] = true
	}
	for _, want := range []string{"root-a", "a-0", "a-1", "a-1-x"} {
		if !ids[want] {
			t.Errorf("subtree missing %s", want)
		}
	}
	if ids["root-b"] {
		t.Error("subtree should not contain root-b")
	}
}

func TestFilterToSubtreeMissingRoot(t *testing.T) {
	if got := FilterToSubtree(sampleRecords(), "nope"); len(got) != 0 {
		t.Errorf("missing root should produce an empty subtree, got %+v", got)
	}
}
