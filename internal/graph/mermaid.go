package graph

import (
	"fmt"
	"regexp"
	"strings"

	"clast/internal/ir"
)

var mermaidUnsafe = regexp.MustCompile(`[^A-Za-z0-9_]`)

// Mermaid renders the graph as a mermaid flowchart. Containers become subgraphs.
func Mermaid(g *Graph) string {
	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("flowchart LR\n")

	var write func(n *VisualNode, indent string, seen map[string]bool)
	write = func(n *VisualNode, indent string, seen map[string]bool) {
		if seen[n.ID] {
			return
		}
		seen[n.ID] = true
		children := g.Children(n.ID)
		if len(children) == 0 {
			sb.WriteString(fmt.Sprintf("%s%s[%q]\n", indent, mermaidID(n.ID), mermaidLabel(n)))
			return
		}
		sb.WriteString(fmt.Sprintf("%ssubgraph %s[%q]\n", indent, mermaidID(n.ID), mermaidLabel(n)))
		for _, c := range children {
			write(c, indent+"    ", seen)
		}
		sb.WriteString(indent + "end\n")
	}

	seen := make(map[string]bool)
	for _, n := range g.Nodes() {
		if _, ok := g.Node(n.ParentID); ok {
			continue
		}
		write(n, "    ", seen)
	}

	for _, e := range g.Edges {
		switch e.Kind {
		case EdgeContains:
			// Already drawn as nesting.
		case EdgeReference:
			sb.WriteString(fmt.Sprintf("    %s -.-> %s\n", mermaidID(e.Source), mermaidID(e.Target)))
		default:
			sb.WriteString(fmt.Sprintf("    %s -->|%s| %s\n", mermaidID(e.Source), e.TargetHandle, mermaidID(e.Target)))
		}
	}

	sb.WriteString("```\n")
	return sb.String()
}

func mermaidID(id string) string {
	return "n_" + mermaidUnsafe.ReplaceAllString(id, "_")
}

func mermaidLabel(n *VisualNode) string {
	label := string(n.Kind)
	if name := NodeName(n.Attrs); name != "" {
		return label + ": " + name
	}
	switch a := n.Attrs.(type) {
	case ir.CallAttrs:
		if a.FuncName != "" {
			label += ": " + a.FuncName + "()"
		}
	case ir.BinaryOpAttrs:
		label += ": " + a.Operator
	case ir.LiteralAttrs:
		label += ": " + a.Expression()
	case ir.PropertyAccessAttrs:
		label += ": ." + a.Property
	case ir.ImportAttrs:
		label += ": " + a.Module
	}
	return label
}
