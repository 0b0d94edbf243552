package graph

import (
	"strconv"

	"clast/internal/ir"
)

// HandlesFor lists the connection points a node of the given attributes exposes.
func HandlesFor(a ir.Attributes) []Handle {
	var targets []string
	switch v := a.(type) {
	case ir.FunctionAttrs:
		for i := range v.Params {
			targets = append(targets, "param-"+strconv.Itoa(i))
		}
		targets = append(targets, "return")
	case ir.CallAttrs:
		targets = append(targets, "func")
		n := len(v.Args)
		if len(v.ExpectedParams) > n {
			n = len(v.ExpectedParams)
		}
		for i := 0; i < n; i++ {
			targets = append(targets, "arg"+strconv.Itoa(i))
		}
	case ir.BinaryOpAttrs:
		targets = append(targets, "lhs", "rhs")
	case ir.ConsoleAttrs:
		targets = append(targets, "value")
	case ir.VariableAttrs:
		targets = append(targets, "type", "value")
	case ir.PropertyAccessAttrs:
		targets = append(targets, "obj")
	case ir.ConditionalAttrs:
		targets = append(targets, "test", "whenTrue", "whenFalse")
	case ir.ObjectAttrs:
		for i := range v.Properties {
			targets = append(targets, "prop-"+strconv.Itoa(i))
		}
	}

	handles := make([]Handle, 0, len(targets)+1)
	for _, t := range targets {
		handles = append(handles, Handle{ID: t, Type: HandleTarget})
	}
	return append(handles, Handle{ID: "output", Type: HandleSource})
}

// ExpressionFor is the text a node contributes when its output is connected elsewhere.
func ExpressionFor(n *VisualNode) string {
	switch a := n.Attrs.(type) {
	case ir.VariableAttrs:
		return a.Name
	case ir.LiteralAttrs:
		return a.Expression()
	case ir.FunctionAttrs:
		return a.Name + "()"
	case ir.APIAttrs:
		if a.Name == "" {
			return "api_" + ir.SanitizeID(n.ID) + "()"
		}
		return a.Name + "()"
	case ir.ObjectAttrs:
		if a.Name != "" {
			return a.Name
		}
		return ir.SynthesizedName(ir.KindObject, n.ID)
	case ir.BinaryOpAttrs, ir.CallAttrs, ir.ConsoleAttrs, ir.PropertyAccessAttrs, ir.ConditionalAttrs:
		return ir.SynthesizedName(n.Kind, n.ID)
	}
	return ""
}
