package graph

import (
	"reflect"
	"strconv"

	"clast/internal/ir"
)

// Reconcile merges freshly parsed nodes into an existing graph. Nodes are
// matched by id first and then by identity (kind, matched parent and declared
// name, or position among unnamed siblings), so a node whose id changed on a
// reparse keeps its place on the canvas. Matching nodes keep their position and
// take the parsed attributes; new nodes take their position from positions;
// nodes left unmatched are removed. User-drawn dataflow edges survive when both
// endpoints do.
func Reconcile(existing *Graph, parsed []ir.Node, positions map[string]Position) (*Graph, MergeReport) {
	merged := FromIR(parsed)
	report := MergeReport{}

	claimed := make(map[string]bool)
	for _, n := range merged.Nodes() {
		if _, ok := existing.Node(n.ID); ok {
			claimed[n.ID] = true
		}
	}

	oldKeys := make(map[string]string)
	oldKey := newIdentity()
	for _, old := range existing.Nodes() {
		oldKeys[oldKey.key(old, old.ParentID)] = old.ID
	}

	// alias maps an old id onto the parsed id that took its place; back is the
	// reverse, used to key children by the id their parent had before.
	alias := make(map[string]string)
	back := make(map[string]string)
	newKey := newIdentity()

	for _, n := range merged.Nodes() {
		parent := n.ParentID
		if oldID, ok := back[parent]; ok {
			parent = oldID
		}
		key := newKey.key(n, parent)

		old, ok := existing.Node(n.ID)
		if !ok {
			if oldID, found := oldKeys[key]; found && !claimed[oldID] {
				claimed[oldID] = true
				alias[oldID] = n.ID
				back[n.ID] = oldID
				old, ok = existing.Node(oldID)
			}
		}
		if !ok {
			if p, found := positions[n.ID]; found {
				n.Position = p
			}
			report.Added = append(report.Added, n.ID)
			continue
		}
		n.Position = old.Position
		if old.ID != n.ID {
			if report.Renamed == nil {
				report.Renamed = make(map[string]string)
			}
			report.Renamed[old.ID] = n.ID
			report.Updated = append(report.Updated, n.ID)
			continue
		}
		if old.Kind != n.Kind || old.ParentID != n.ParentID || !reflect.DeepEqual(old.Attrs, n.Attrs) {
			report.Updated = append(report.Updated, n.ID)
		}
	}

	for _, old := range existing.Nodes() {
		if _, ok := merged.Node(old.ID); !ok && alias[old.ID] == "" {
			report.Removed = append(report.Removed, old.ID)
		}
	}

	for _, e := range existing.Edges {
		if e.Kind != EdgeDataflow {
			continue
		}
		source, target := resolveAlias(alias, e.Source), resolveAlias(alias, e.Target)
		if source != e.Source || target != e.Target {
			e.Source, e.Target = source, target
			e.ID = EdgeID(source, e.SourceHandle, target, e.TargetHandle)
		}
		_, sourceOK := merged.Node(e.Source)
		_, targetOK := merged.Node(e.Target)
		if sourceOK && targetOK {
			merged.AddEdge(e)
		}
	}

	return merged, report
}

func resolveAlias(alias map[string]string, id string) string {
	if to, ok := alias[id]; ok {
		return to
	}
	return id
}

// identity keys nodes by kind, parent and declared name. Nodes without a
// label are told apart by their ordinal among unlabeled siblings of the same
// kind, so keys must be taken in insertion order.
type identity struct {
	ordinals map[string]int
}

func newIdentity() *identity {
	return &identity{ordinals: make(map[string]int)}
}

func (id *identity) key(n *VisualNode, parent string) string {
	base := string(n.Kind) + "|" + parent + "|"
	label := identityLabel(n.Attrs)
	if label == "" {
		label = "#" + strconv.Itoa(id.ordinals[base])
		id.ordinals[base]++
	}
	return base + label
}

func identityLabel(a ir.Attributes) string {
	if name := NodeName(a); name != "" {
		return name
	}
	if imp, ok := a.(ir.ImportAttrs); ok {
		return "import:" + imp.Module
	}
	return ""
}

// Empty reports whether the merge changed nothing.
func (r MergeReport) Empty() bool {
	return len(r.Added) == 0 && len(r.Updated) == 0 && len(r.Removed) == 0
}
