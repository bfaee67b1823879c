package prompt

import (
	"fmt"
	"strings"

	"github.com/pagespace/pagespace/gateway/internal/cache"
)

// maxTreeNodes caps the rendered page tree. Trees larger than the cap are
// truncated shallow-first so the top levels stay complete.
const maxTreeNodes = 200

// renderTree formats a node snapshot as a markdown outline. When the
// snapshot exceeds maxTreeNodes, nodes are admitted breadth-first by depth
// and a truncation note is appended.
func renderTree(records []cache.NodeRecord) string {
	roots := cache.BuildTree(records)
	if len(roots) == 0 {
		return "(no pages)"
	}

	admitted := admitByDepth(roots, maxTreeNodes)

	var b strings.Builder
	var write func(nodes []*cache.TreeNode, depth int)
	write = func(nodes []*cache.TreeNode, depth int) {
		for _, n := range nodes {
			if !admitted[n.ID] {
				continue
			}
			b.WriteString(strings.Repeat("  ", depth))
			fmt.Fprintf(&b, "- %s (%s)\n", n.Title, n.Type)
			write(n.Children, depth+1)
		}
	}
	write(roots, 0)

	if len(records) > len(admitted) {
		fmt.Fprintf(&b, "... (%d more pages not shown)\n", len(records)-len(admitted))
	}
	return strings.TrimRight(b.String(), "\n")
}

// admitByDepth selects up to limit nodes, whole depth levels at a time.
// A level that does not fit entirely is admitted partially, in order.
func admitByDepth(roots []*cache.TreeNode, limit int) map[string]bool {
	admitted := make(map[string]bool, limit)
	level := roots
	for len(level) > 0 && len(admitted) < limit {
		var next []*cache.TreeNode
		for _, n := range level {
			if len(admitted) >= limit {
				break
			}
			admitted[n.ID] = true
			next = append(next, n.Children...)
		}
		level = next
	}
	// Drop children whose parent was cut so the outline never dangles.
	var prune func(nodes []*cache.TreeNode, parentAdmitted bool)
	prune = func(nodes []*cache.TreeNode, parentAdmitted bool) {
		for _, n := range nodes {
			if !parentAdmitted {
				delete(admitted, n.ID)
			}
			prune(n.Children, admitted[n.ID])
		}
	}
	prune(roots, true)
	return admitted
}
