package graph

import (
	"fmt"
	"strconv"
	"strings"

	"clast/internal/ir"
)

// Connect draws the edge described by c and applies the attribute rule implied
// by the target handle. Handles without a rule only draw the edge.
func Connect(g *Graph, c Connection) (Edge, ConnectResult, error) {
	source, ok := g.Node(c.Source)
	if !ok {
		return Edge{}, ConnectResult{}, fmt.Errorf("source %s: %w", c.Source, ErrNodeNotFound)
	}
	target, ok := g.Node(c.Target)
	if !ok {
		return Edge{}, ConnectResult{}, fmt.Errorf("target %s: %w", c.Target, ErrNodeNotFound)
	}

	sourceHandle := c.SourceHandle
	if sourceHandle == "" {
		sourceHandle = "output"
	}
	edge := newEdge(source.ID, sourceHandle, target.ID, c.TargetHandle, EdgeDataflow)
	g.AddEdge(edge)

	result := ConnectResult{}
	attrs, updated := applyConnection(source, target, c.TargetHandle)
	if updated {
		if err := g.SetAttrs(target.ID, attrs); err != nil {
			return edge, result, err
		}
		result.Applied = true
		result.Updated = append(result.Updated, target.ID)
		if fnID := g.InvalidateBody(target.ID); fnID != "" {
			result.Updated = append(result.Updated, fnID)
		}
	}

	// A binary operation wired into a function's return becomes part of its body.
	if target.Kind == ir.KindFunction && c.TargetHandle == "return" && source.Kind == ir.KindBinaryOp {
		source.ParentID = target.ID
		g.InvalidateBody(source.ID)
		result.Applied = true
		result.Updated = append(result.Updated, source.ID, target.ID)
	}
	return edge, result, nil
}

func applyConnection(source, target *VisualNode, handle string) (ir.Attributes, bool) {
	expr := ExpressionFor(source)

	switch a := target.Attrs.(type) {
	case ir.VariableAttrs:
		switch handle {
		case "type":
			iface, ok := source.Attrs.(ir.InterfaceAttrs)
			if !ok {
				return nil, false
			}
			a.DeclaredType = iface.Name
			return a, true
		case "value":
			a.Initializer = expr
			return a, true
		}
	case ir.ConsoleAttrs:
		if handle == "value" {
			a.ValueExpr = expr
			return a, true
		}
	case ir.CallAttrs:
		if handle == "func" {
			fn, ok := source.Attrs.(ir.FunctionAttrs)
			if !ok {
				return nil, false
			}
			a.FuncName = fn.Name
			a.ExpectedParams = make([]string, 0, len(fn.Params))
			for _, p := range fn.Params {
				a.ExpectedParams = append(a.ExpectedParams, p.Name)
			}
			a.Args = []string{}
			return a, true
		}
		if idx, ok := handleIndex(handle, "arg"); ok {
			args := append([]string(nil), a.Args...)
			for len(args) <= idx {
				args = append(args, "undefined")
			}
			args[idx] = expr
			a.Args = args
			return a, true
		}
	case ir.BinaryOpAttrs:
		switch handle {
		case "lhs":
			a.LHS = expr
			return a, true
		case "rhs":
			a.RHS = expr
			return a, true
		}
	case ir.PropertyAccessAttrs:
		if handle == "obj" {
			a.Object = expr
			return a, true
		}
	case ir.ConditionalAttrs:
		switch handle {
		case "test":
			a.Test = expr
			return a, true
		case "whenTrue":
			a.WhenTrue = expr
			return a, true
		case "whenFalse":
			a.WhenFalse = expr
			return a, true
		}
	case ir.ObjectAttrs:
		if idx, ok := handleIndex(handle, "prop-"); ok && idx < len(a.Properties) {
			props := append([]ir.Property(nil), a.Properties...)
			props[idx].Value = expr
			a.Properties = props
			return a, true
		}
	}
	return nil, false
}

// Disconnect removes an edge. Attributes written by the connection are left as they are.
func Disconnect(g *Graph, edgeID string) (Edge, bool) {
	return g.RemoveEdge(edgeID)
}

func handleIndex(handle, prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(handle, prefix)
	if !ok || rest == "" {
		return 0, false
	}
	idx, err := strconv.Atoi(rest)
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}
