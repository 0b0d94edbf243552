package graph

import "clast/internal/ir"

// Stats summarizes a graph for reports.
type Stats struct {
	Nodes       int              `json:"nodes"`
	Edges       int              `json:"edges"`
	ByKind      map[ir.Kind]int  `json:"byKind"`
	ByEdgeKind  map[EdgeKind]int `json:"byEdgeKind"`
	Unresolved  int              `json:"unresolvedCalls"`
	Diagnostics int              `json:"diagnostics"`
}

func (g *Graph) Stats() Stats {
	s := Stats{ByKind: make(map[ir.Kind]int), ByEdgeKind: make(map[EdgeKind]int)}
	if g == nil {
		return s
	}
	s.Nodes = g.Len()
	s.Edges = len(g.Edges)
	for _, n := range g.nodes {
		s.ByKind[n.Kind]++
		s.Diagnostics += len(n.Diagnostics)
		if call, ok := n.Attrs.(ir.CallAttrs); ok && call.FuncName != "" && len(g.resolveTarget(call.FuncName, ir.KindFunction)) == 0 {
			s.Unresolved++
		}
	}
	for _, e := range g.Edges {
		s.ByEdgeKind[e.Kind]++
	}
	return s
}
