package ir

import (
	"fmt"
	"strings"
)

// CheckParents verifies that every ParentID references a node in the same list.
func CheckParents(nodes []Node) error {
	ids := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		ids[n.ID] = true
	}

	var dangling []string
	for _, n := range nodes {
		if n.ParentID != "" && !ids[n.ParentID] {
			dangling = append(dangling, fmt.Sprintf("%s->%s", n.ID, n.ParentID))
		}
	}
	if len(dangling) > 0 {
		return fmt.Errorf("dangling parent references: %s", strings.Join(dangling, ", "))
	}
	return nil
}

// ChildIndex groups nodes by ParentID, preserving list order within each group.
func ChildIndex(nodes []Node) map[string][]Node {
	index := make(map[string][]Node)
	for _, n := range nodes {
		if n.ParentID != "" {
			index[n.ParentID] = append(index[n.ParentID], n)
		}
	}
	return index
}
