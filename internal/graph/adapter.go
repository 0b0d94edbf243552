package graph

import "clast/internal/ir"

const (
	DefaultNodeWidth  = 180
	DefaultNodeHeight = 60

	containerPadding = 20
	containerHeader  = 40
	containerGap     = 10
)

// FromIR converts IR nodes into visual nodes. Each parent relationship becomes a
// contains edge from the child into its parent.
func FromIR(nodes []ir.Node) *Graph {
	g := NewGraph()
	for _, n := range nodes {
		g.AddNode(VisualFromIR(n))
	}

	for _, n := range nodes {
		if n.ParentID == "" {
			continue
		}
		parent, ok := g.Node(n.ParentID)
		if !ok {
			continue
		}
		handle := "body"
		if parent.Kind == ir.KindFunction && n.Kind() == ir.KindBinaryOp {
			handle = "return"
		}
		g.AddEdge(newEdge(n.ID, "output", parent.ID, handle, EdgeContains))
	}

	SizeContainers(g, DefaultNodeWidth, DefaultNodeHeight)
	g.LinkRelations()
	return g
}

// VisualFromIR builds an unpositioned visual node for n.
func VisualFromIR(n ir.Node) *VisualNode {
	v := &VisualNode{
		ID:       n.ID,
		Kind:     n.Kind(),
		ParentID: n.ParentID,
		Width:    DefaultNodeWidth,
		Height:   DefaultNodeHeight,
		Attrs:    n.Attrs,
		Handles:  HandlesFor(n.Attrs),
	}
	if n.Range != nil {
		r := *n.Range
		v.Range = &r
	}
	return v
}

// ToIR converts the graph back into IR nodes in insertion order. Parent
// references that no longer resolve are dropped.
func ToIR(g *Graph) []ir.Node {
	out := make([]ir.Node, 0, g.Len())
	for _, n := range g.Nodes() {
		node := ir.Node{ID: n.ID, Attrs: n.Attrs}
		if _, ok := g.Node(n.ParentID); ok {
			node.ParentID = n.ParentID
		}
		if n.Range != nil {
			r := *n.Range
			node.Range = &r
		}
		out = append(out, node)
	}
	return out
}

// SizeContainers grows every node that has children so its children fit stacked inside it.
func SizeContainers(g *Graph, width, height float64) {
	visiting := make(map[string]bool)
	var size func(n *VisualNode) (float64, float64)
	size = func(n *VisualNode) (float64, float64) {
		children := g.Children(n.ID)
		if len(children) == 0 || visiting[n.ID] {
			return width, height
		}
		visiting[n.ID] = true
		defer delete(visiting, n.ID)
		w, h := width, float64(containerHeader)
		for _, c := range children {
			cw, ch := size(c)
			c.Width, c.Height = cw, ch
			if cw+2*containerPadding > w {
				w = cw + 2*containerPadding
			}
			h += ch + containerGap
		}
		return w, h + containerPadding
	}

	for _, n := range g.Nodes() {
		if _, ok := g.Node(n.ParentID); ok {
			continue
		}
		n.Width, n.Height = size(n)
	}
}
