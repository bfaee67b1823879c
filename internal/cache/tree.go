package cache

import "sort"

// TreeNode is a hierarchical view over the flat NodeRecord snapshot.
type TreeNode struct {
	NodeRecord
	Children []*TreeNode `json:"children,omitempty"`
}

// BuildTree reconstructs the hierarchy from a flat snapshot. Roots and
// sibling groups are ordered by position. Records pointing at a parent
// missing from the snapshot are treated as roots rather than dropped.
func BuildTree(records []NodeRecord) []*TreeNode {
	byID := make(map[string]*TreeNode, len(records))
	for i := range records {
		byID[records[i].ID] = &TreeNode{NodeRecord: records[i]}
	}

	var roots []*TreeNode
	for _, rec := range records {
		node := byID[rec.ID]
		if rec.ParentID != nil {
			if parent, ok := byID[*rec.ParentID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}

	var sortLevel func(nodes []*TreeNode)
	sortLevel = func(nodes []*TreeNode) {
		sort.SliceStable(nodes, func(i, j int) bool {
			return nodes[i].Position < nodes[j].Position
		})
		for _, n := range nodes {
			sortLevel(n.Children)
		}
	}
	sortLevel(roots)
	return roots
}

// FilterToSubtree narrows a snapshot to the subtree rooted at rootID,
// including the root itself. If the root is absent from the snapshot (the
// page is trashed or belongs to another drive) the result is empty.
func FilterToSubtree(records []NodeRecord, rootID string) []NodeRecord {
	children := make(map[string][]int, len(records))
	rootIdx := -1
	for i, rec := range records {
		if rec.ID == rootID {
			rootIdx = i
		}
		if rec.ParentID != nil {
			children[*rec.ParentID] = append(children[*rec.ParentID], i)
		}
	}
	if rootIdx == -1 {
		return nil
	}

	var out []NodeRecord
	var walk func(idx int)
	walk = func(idx int) {
		out = append(out, records[idx])
		for _, ci := range children[records[idx].ID] {
			walk(ci)
		}
	}
	walk(rootIdx)
	return out
}
