package graph

import "clast/internal/ir"

type EdgeKind string

const (
	// EdgeDataflow is a user-drawn connection from an output handle into a named input handle.
	EdgeDataflow EdgeKind = "dataflow"
	// EdgeContains renders a parentId relationship.
	EdgeContains EdgeKind = "contains"
	// EdgeReference is derived from a name lookup (call to function, variable to interface).
	EdgeReference EdgeKind = "reference"
)

type HandleType string

const (
	HandleSource HandleType = "source"
	HandleTarget HandleType = "target"
)

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Handle struct {
	ID   string     `json:"id"`
	Type HandleType `json:"type"`
}

// VisualNode is the canvas representation of one IR node.
type VisualNode struct {
	ID          string        `json:"id"`
	Kind        ir.Kind       `json:"kind"`
	ParentID    string        `json:"parentId,omitempty"`
	Position    Position      `json:"position"`
	Width       float64       `json:"width"`
	Height      float64       `json:"height"`
	Attrs       ir.Attributes `json:"-"`
	Handles     []Handle      `json:"handles"`
	Diagnostics []string      `json:"diagnostics,omitempty"`
	// Range is the source span the node was parsed from, if any.
	Range *ir.SourceRange `json:"range,omitempty"`
}

type Edge struct {
	ID           string   `json:"id"`
	Source       string   `json:"source"`
	SourceHandle string   `json:"sourceHandle,omitempty"`
	Target       string   `json:"target"`
	TargetHandle string   `json:"targetHandle,omitempty"`
	Kind         EdgeKind `json:"kind"`
}

// Connection is a request to draw an edge between two handles.
type Connection struct {
	Source       string `json:"source"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	Target       string `json:"target"`
	TargetHandle string `json:"targetHandle"`
}

// ConnectResult reports whether a connection changed any IR attributes.
// Applied is false for handles without an attribute rule.
type ConnectResult struct {
	Applied bool     `json:"applied"`
	Updated []string `json:"updated,omitempty"`
}

// MergeReport summarizes a reconciliation pass.
type MergeReport struct {
	Added   []string `json:"added,omitempty"`
	Updated []string `json:"updated,omitempty"`
	Removed []string `json:"removed,omitempty"`
	// Renamed maps old ids onto the parsed ids that replaced them.
	Renamed map[string]string `json:"renamed,omitempty"`
}
