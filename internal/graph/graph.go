package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"

	"clast/internal/ir"
)

var ErrNodeNotFound = errors.New("node not found")

// Graph holds visual nodes in insertion order plus the edges between them.
// Order matters: it is the order the generator emits top-level statements in.
type Graph struct {
	nodes []*VisualNode
	index map[string]*VisualNode
	Edges []Edge

	// Name -> []ID, for resolving name-based relations to actual IDs.
	nameIndex map[string][]string
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		index:     make(map[string]*VisualNode),
		Edges:     []Edge{},
		nameIndex: make(map[string][]string),
	}
}

// AddNode appends n, or replaces the node with the same id in place.
func (g *Graph) AddNode(n *VisualNode) {
	if n == nil {
		return
	}
	if n.Handles == nil {
		n.Handles = HandlesFor(n.Attrs)
	}
	if existing, ok := g.index[n.ID]; ok {
		*existing = *n
		g.reindexNames()
		return
	}
	g.nodes = append(g.nodes, n)
	g.index[n.ID] = n
	if name := NodeName(n.Attrs); name != "" {
		g.nameIndex[name] = append(g.nameIndex[name], n.ID)
	}
}

// Node looks up a node by id.
func (g *Graph) Node(id string) (*VisualNode, bool) {
	n, ok := g.index[id]
	return n, ok
}

// Nodes returns the nodes in insertion order.
func (g *Graph) Nodes() []*VisualNode {
	return g.nodes
}

func (g *Graph) Len() int {
	return len(g.nodes)
}

// Children returns the direct children of id in insertion order.
func (g *Graph) Children(id string) []*VisualNode {
	var out []*VisualNode
	for _, n := range g.nodes {
		if n.ParentID == id {
			out = append(out, n)
		}
	}
	return out
}

// SetAttrs replaces a node's attributes and refreshes its handles.
func (g *Graph) SetAttrs(id string, attrs ir.Attributes) error {
	n, ok := g.index[id]
	if !ok {
		return ErrNodeNotFound
	}
	n.Attrs = attrs
	n.Kind = attrs.NodeKind()
	n.Handles = HandlesFor(attrs)
	g.reindexNames()
	return nil
}

// InvalidateBody drops the verbatim source body of the function enclosing id so
// the function is regenerated from its children. It returns the function's id,
// or "" when id is not inside a function that kept source text.
func (g *Graph) InvalidateBody(id string) string {
	seen := make(map[string]bool)
	for n, ok := g.index[id]; ok && !seen[n.ID]; n, ok = g.index[n.ParentID] {
		seen[n.ID] = true
		if n.ID == id {
			continue
		}
		fn, isFunc := n.Attrs.(ir.FunctionAttrs)
		if !isFunc {
			continue
		}
		if fn.RawBody == "" {
			return ""
		}
		fn.RawBody = ""
		n.Attrs = fn
		return n.ID
	}
	return ""
}

// RemoveNode deletes id, its descendants, and every edge touching them.
// It returns the removed ids, parent first.
func (g *Graph) RemoveNode(id string) []string {
	if _, ok := g.index[id]; !ok {
		return nil
	}

	removed := []string{id}
	doomed := map[string]bool{id: true}
	for changed := true; changed; {
		changed = false
		for _, n := range g.nodes {
			if !doomed[n.ID] && doomed[n.ParentID] {
				doomed[n.ID] = true
				removed = append(removed, n.ID)
				changed = true
			}
		}
	}

	kept := g.nodes[:0]
	for _, n := range g.nodes {
		if doomed[n.ID] {
			delete(g.index, n.ID)
			continue
		}
		kept = append(kept, n)
	}
	g.nodes = kept

	edges := g.Edges[:0]
	for _, e := range g.Edges {
		if !doomed[e.Source] && !doomed[e.Target] {
			edges = append(edges, e)
		}
	}
	g.Edges = edges

	g.reindexNames()
	return removed
}

// AddEdge appends e, replacing an edge with the same id.
func (g *Graph) AddEdge(e Edge) {
	for i := range g.Edges {
		if g.Edges[i].ID == e.ID {
			g.Edges[i] = e
			return
		}
	}
	g.Edges = append(g.Edges, e)
}

// RemoveEdge deletes the edge with id and reports whether it existed.
func (g *Graph) RemoveEdge(id string) (Edge, bool) {
	for i, e := range g.Edges {
		if e.ID == id {
			g.Edges = append(g.Edges[:i], g.Edges[i+1:]...)
			return e, true
		}
	}
	return Edge{}, false
}

// Edge looks up an edge by id.
func (g *Graph) Edge(id string) (Edge, bool) {
	for _, e := range g.Edges {
		if e.ID == id {
			return e, true
		}
	}
	return Edge{}, false
}

// LinkRelations rebuilds reference edges from name lookups: a call's funcName
// resolves to a function, a variable's declared type to an interface.
func (g *Graph) LinkRelations() {
	edges := g.Edges[:0]
	for _, e := range g.Edges {
		if e.Kind != EdgeReference {
			edges = append(edges, e)
		}
	}
	g.Edges = edges

	for _, n := range g.nodes {
		switch a := n.Attrs.(type) {
		case ir.CallAttrs:
			for _, targetID := range g.resolveTarget(a.FuncName, ir.KindFunction) {
				g.AddEdge(newEdge(targetID, "output", n.ID, "func", EdgeReference))
			}
		case ir.VariableAttrs:
			for _, targetID := range g.resolveTarget(a.DeclaredType, ir.KindInterface) {
				g.AddEdge(newEdge(targetID, "output", n.ID, "type", EdgeReference))
			}
		}
	}
}

// resolveTarget finds nodes of kind declared under name.
func (g *Graph) resolveTarget(name string, kind ir.Kind) []string {
	if name == "" {
		return nil
	}
	var out []string
	for _, id := range g.nameIndex[name] {
		if n, ok := g.index[id]; ok && n.Kind == kind {
			out = append(out, id)
		}
	}
	return out
}

// Lookup returns the ids of nodes declared under name.
func (g *Graph) Lookup(name string) []string {
	return g.nameIndex[name]
}

func (g *Graph) reindexNames() {
	g.nameIndex = make(map[string][]string, len(g.nodes))
	for _, n := range g.nodes {
		if name := NodeName(n.Attrs); name != "" {
			g.nameIndex[name] = append(g.nameIndex[name], n.ID)
		}
	}
}

// Clone returns a deep copy; attribute values are immutable structs and are shared.
func (g *Graph) Clone() *Graph {
	out := NewGraph()
	for _, n := range g.nodes {
		c := *n
		c.Handles = append([]Handle(nil), n.Handles...)
		c.Diagnostics = append([]string(nil), n.Diagnostics...)
		if n.Range != nil {
			r := *n.Range
			c.Range = &r
		}
		out.AddNode(&c)
	}
	out.Edges = append([]Edge{}, g.Edges...)
	return out
}

// NodeName is the declared name of a node, if its kind has one.
func NodeName(a ir.Attributes) string {
	switch v := a.(type) {
	case ir.InterfaceAttrs:
		return v.Name
	case ir.FunctionAttrs:
		return v.Name
	case ir.VariableAttrs:
		return v.Name
	case ir.ObjectAttrs:
		return v.Name
	case ir.APIAttrs:
		return v.Name
	}
	return ""
}

// EdgeID is a deterministic id for the connection between two handles.
func EdgeID(source, sourceHandle, target, targetHandle string) string {
	sum := sha256.Sum256([]byte(source + "|" + sourceHandle + "|" + target + "|" + targetHandle))
	return "e_" + hex.EncodeToString(sum[:6])
}

func newEdge(source, sourceHandle, target, targetHandle string, kind EdgeKind) Edge {
	return Edge{
		ID:           EdgeID(source, sourceHandle, target, targetHandle),
		Source:       source,
		SourceHandle: sourceHandle,
		Target:       target,
		TargetHandle: targetHandle,
		Kind:         kind,
	}
}

type visualNodeJSON struct {
	ID          string          `json:"id"`
	Kind        ir.Kind         `json:"kind"`
	ParentID    string          `json:"parentId,omitempty"`
	Position    Position        `json:"position"`
	Width       float64         `json:"width"`
	Height      float64         `json:"height"`
	Attrs       json.RawMessage `json:"attributes"`
	Handles     []Handle        `json:"handles"`
	Diagnostics []string        `json:"diagnostics,omitempty"`
	Range       *ir.SourceRange `json:"range,omitempty"`
}

// MarshalJSON writes the node with its attribute payload under "attributes".
func (n VisualNode) MarshalJSON() ([]byte, error) {
	attrs, err := ir.MarshalAttributes(n.Attrs)
	if err != nil {
		return nil, err
	}
	return json.Marshal(visualNodeJSON{
		ID: n.ID, Kind: n.Kind, ParentID: n.ParentID, Position: n.Position,
		Width: n.Width, Height: n.Height, Attrs: attrs, Handles: n.Handles,
		Diagnostics: n.Diagnostics, Range: n.Range,
	})
}

func (n *VisualNode) UnmarshalJSON(data []byte) error {
	var raw visualNodeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	attrs, err := ir.UnmarshalAttributes(raw.Kind, raw.Attrs)
	if err != nil {
		return err
	}
	*n = VisualNode{
		ID: raw.ID, Kind: raw.Kind, ParentID: raw.ParentID, Position: raw.Position,
		Width: raw.Width, Height: raw.Height, Attrs: attrs, Handles: raw.Handles,
		Diagnostics: raw.Diagnostics, Range: raw.Range,
	}
	return nil
}
