package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"clast/internal/graph"
	"clast/internal/ir"
)

var (
	ErrUnknownNode = errors.New("unknown node")
	ErrUnknownEdge = errors.New("unknown edge")
	ErrUnknownKind = errors.New("unknown node kind")
)

// Edit is a single change made on the canvas.
type Edit interface {
	apply(g *graph.Graph) (editOutcome, error)
}

type editOutcome struct {
	nodeID  string
	edge    *graph.Edge
	connect *graph.ConnectResult
}

// AddNode creates a node at Position. ID defaults to a fresh canvas id and
// Attrs to the kind's factory values.
type AddNode struct {
	ID       string         `json:"id,omitempty"`
	Kind     ir.Kind        `json:"kind"`
	ParentID string         `json:"parentId,omitempty"`
	Position graph.Position `json:"position"`
	Attrs    ir.Attributes  `json:"-"`
}

// MoveNode changes only the position of a node.
type MoveNode struct {
	ID       string         `json:"id"`
	Position graph.Position `json:"position"`
}

// UpdateNode replaces the attributes of a node.
type UpdateNode struct {
	ID    string        `json:"id"`
	Attrs ir.Attributes `json:"-"`
}

// RemoveNode deletes a node together with its descendants and edges.
type RemoveNode struct {
	ID string `json:"id"`
}

// Connect draws an edge between two handles.
type Connect struct {
	graph.Connection
}

// Disconnect removes an edge.
type Disconnect struct {
	EdgeID string `json:"edgeId"`
}

func (e AddNode) apply(g *graph.Graph) (editOutcome, error) {
	attrs := e.Attrs
	if attrs == nil {
		var err error
		if attrs, err = DefaultAttrs(e.Kind); err != nil {
			return editOutcome{}, err
		}
	}
	if e.ParentID != "" {
		if _, ok := g.Node(e.ParentID); !ok {
			return editOutcome{}, fmt.Errorf("parent %s: %w", e.ParentID, ErrUnknownNode)
		}
	}

	id := e.ID
	if id == "" {
		id = ir.NewCanvasID()
	} else if _, exists := g.Node(id); exists {
		return editOutcome{}, fmt.Errorf("add %s: node already exists", id)
	}

	n := graph.VisualFromIR(ir.Node{ID: id, ParentID: e.ParentID, Attrs: attrs})
	n.Position = e.Position
	g.AddNode(n)
	g.InvalidateBody(n.ID)
	return editOutcome{nodeID: n.ID}, nil
}

func (e MoveNode) apply(g *graph.Graph) (editOutcome, error) {
	n, ok := g.Node(e.ID)
	if !ok {
		return editOutcome{}, fmt.Errorf("move %s: %w", e.ID, ErrUnknownNode)
	}
	n.Position = e.Position
	return editOutcome{nodeID: n.ID}, nil
}

func (e UpdateNode) apply(g *graph.Graph) (editOutcome, error) {
	if e.Attrs == nil {
		return editOutcome{}, fmt.Errorf("update %s: missing attributes", e.ID)
	}
	if err := g.SetAttrs(e.ID, e.Attrs); err != nil {
		return editOutcome{}, fmt.Errorf("update %s: %w", e.ID, ErrUnknownNode)
	}
	g.InvalidateBody(e.ID)
	return editOutcome{nodeID: e.ID}, nil
}

func (e RemoveNode) apply(g *graph.Graph) (editOutcome, error) {
	if _, ok := g.Node(e.ID); !ok {
		return editOutcome{}, fmt.Errorf("remove %s: %w", e.ID, ErrUnknownNode)
	}
	g.InvalidateBody(e.ID)
	g.RemoveNode(e.ID)
	return editOutcome{nodeID: e.ID}, nil
}

func (e Connect) apply(g *graph.Graph) (editOutcome, error) {
	edge, result, err := graph.Connect(g, e.Connection)
	if err != nil {
		if errors.Is(err, graph.ErrNodeNotFound) {
			return editOutcome{}, fmt.Errorf("connect: %w: %v", ErrUnknownNode, err)
		}
		return editOutcome{}, err
	}
	return editOutcome{edge: &edge, connect: &result}, nil
}

func (e Disconnect) apply(g *graph.Graph) (editOutcome, error) {
	edge, ok := graph.Disconnect(g, e.EdgeID)
	if !ok {
		return editOutcome{}, fmt.Errorf("disconnect %s: %w", e.EdgeID, ErrUnknownEdge)
	}
	return editOutcome{edge: &edge}, nil
}

// DefaultAttrs returns the attributes a freshly created canvas node starts with.
func DefaultAttrs(kind ir.Kind) (ir.Attributes, error) {
	switch kind {
	case ir.KindVariable:
		return ir.VariableAttrs{Name: "newVar", DeclaredType: "number"}, nil
	case ir.KindFunction:
		return ir.FunctionAttrs{Name: "myFunction", Params: []ir.Param{}}, nil
	case ir.KindBinaryOp:
		return ir.BinaryOpAttrs{Operator: "+"}, nil
	case ir.KindLiteral:
		return ir.LiteralAttrs{Value: "0", LiteralKind: ir.LiteralNumber}, nil
	case ir.KindAPI:
		return ir.APIAttrs{Name: "fetchData", Method: "GET", Endpoint: "https://api.example.com/endpoint"}, nil
	case ir.KindConsole:
		return ir.ConsoleAttrs{Label: "log"}, nil
	case ir.KindCall:
		return ir.CallAttrs{Args: []string{}}, nil
	case ir.KindPropertyAccess:
		return ir.PropertyAccessAttrs{Property: "prop"}, nil
	case ir.KindObject:
		return ir.ObjectAttrs{Name: "obj", Properties: []ir.Property{
			{Key: "id", Value: "''"},
			{Key: "name", Value: "''"},
		}}, nil
	case ir.KindConditional:
		return ir.ConditionalAttrs{}, nil
	case ir.KindInterface:
		return ir.InterfaceAttrs{Name: "New" + capitalize(string(kind)), Members: []ir.Member{}}, nil
	case ir.KindImport:
		return ir.ImportAttrs{Module: "./module"}, nil
	case ir.KindExport:
		return ir.ExportAttrs{Named: []string{}}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
