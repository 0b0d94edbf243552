package graph

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"clast/internal/generator"
	"clast/internal/ir"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleNodes() []ir.Node {
	return []ir.Node{
		{ID: "iface", Attrs: ir.InterfaceAttrs{Name: "User", Members: []ir.Member{{Name: "id", Type: "string"}}}},
		{ID: "fn", Attrs: ir.FunctionAttrs{Name: "sum", Params: []ir.Param{{Name: "a"}, {Name: "b"}}}},
		{ID: "bin", ParentID: "fn", Attrs: ir.BinaryOpAttrs{Operator: "+", LHS: "a", RHS: "b"}},
		{ID: "user", Attrs: ir.VariableAttrs{Name: "u", DeclaredType: "User"}},
		{ID: "call", Attrs: ir.CallAttrs{FuncName: "sum", Args: []string{"1", "2"}}},
	}
}

func TestFromIR(t *testing.T) {
	g := FromIR(sampleNodes())

	t.Run("Nodes keep order", func(t *testing.T) {
		require.Equal(t, 5, g.Len())
		var ids []string
		for _, n := range g.Nodes() {
			ids = append(ids, n.ID)
		}
		assert.Equal(t, []string{"iface", "fn", "bin", "user", "call"}, ids)
	})

	t.Run("Parent becomes contains edge", func(t *testing.T) {
		e, ok := g.Edge(EdgeID("bin", "output", "fn", "return"))
		require.True(t, ok)
		assert.Equal(t, EdgeContains, e.Kind)

		fn, _ := g.Node("fn")
		assert.Greater(t, fn.Height, float64(DefaultNodeHeight), "container grows to fit its child")
	})

	t.Run("Name-based relations", func(t *testing.T) {
		e, ok := g.Edge(EdgeID("fn", "output", "call", "func"))
		require.True(t, ok)
		assert.Equal(t, EdgeReference, e.Kind)

		_, ok = g.Edge(EdgeID("iface", "output", "user", "type"))
		assert.True(t, ok)
	})

	t.Run("Handles", func(t *testing.T) {
		fn, _ := g.Node("fn")
		assert.Equal(t, []Handle{
			{ID: "param-0", Type: HandleTarget},
			{ID: "param-1", Type: HandleTarget},
			{ID: "return", Type: HandleTarget},
			{ID: "output", Type: HandleSource},
		}, fn.Handles)
	})

	t.Run("ToIR", func(t *testing.T) {
		assert.Equal(t, sampleNodes(), ToIR(g))
	})
}

func TestToIR_DropsDanglingParents(t *testing.T) {
	g := NewGraph()
	g.AddNode(&VisualNode{ID: "x", Kind: ir.KindLiteral, ParentID: "gone", Attrs: ir.LiteralAttrs{Value: "1", LiteralKind: ir.LiteralNumber}})

	nodes := ToIR(g)
	require.Len(t, nodes, 1)
	assert.Empty(t, nodes[0].ParentID)
}

func TestExpressionFor(t *testing.T) {
	tests := []struct {
		node *VisualNode
		want string
	}{
		{&VisualNode{ID: "v", Attrs: ir.VariableAttrs{Name: "total"}}, "total"},
		{&VisualNode{ID: "l", Attrs: ir.LiteralAttrs{Value: "hi", LiteralKind: ir.LiteralString}}, `"hi"`},
		{&VisualNode{ID: "l", Attrs: ir.LiteralAttrs{Value: "2", LiteralKind: ir.LiteralNumber}}, "2"},
		{&VisualNode{ID: "f", Attrs: ir.FunctionAttrs{Name: "run"}}, "run()"},
		{&VisualNode{ID: "b-1", Kind: ir.KindBinaryOp, Attrs: ir.BinaryOpAttrs{}}, "bin_b_1"},
		{&VisualNode{ID: "c", Kind: ir.KindCall, Attrs: ir.CallAttrs{}}, "call_c"},
		{&VisualNode{ID: "k", Kind: ir.KindConsole, Attrs: ir.ConsoleAttrs{}}, "log_k"},
		{&VisualNode{ID: "o", Attrs: ir.ObjectAttrs{Name: "cfg"}}, "cfg"},
		{&VisualNode{ID: "i", Attrs: ir.InterfaceAttrs{Name: "User"}}, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExpressionFor(tt.node))
	}
}

func TestConnect(t *testing.T) {
	build := func() *Graph {
		g := NewGraph()
		g.AddNode(VisualFromIR(ir.Node{ID: "iface", Attrs: ir.InterfaceAttrs{Name: "User"}}))
		g.AddNode(VisualFromIR(ir.Node{ID: "fn", Attrs: ir.FunctionAttrs{Name: "sum", Params: []ir.Param{{Name: "a", Type: "number"}, {Name: "b", Type: "number"}}}}))
		g.AddNode(VisualFromIR(ir.Node{ID: "v", Attrs: ir.VariableAttrs{Name: "x"}}))
		g.AddNode(VisualFromIR(ir.Node{ID: "lit", Attrs: ir.LiteralAttrs{Value: "7", LiteralKind: ir.LiteralNumber}}))
		g.AddNode(VisualFromIR(ir.Node{ID: "call", Attrs: ir.CallAttrs{Args: []string{"old"}}}))
		g.AddNode(VisualFromIR(ir.Node{ID: "log", Attrs: ir.ConsoleAttrs{}}))
		g.AddNode(VisualFromIR(ir.Node{ID: "prop", Attrs: ir.PropertyAccessAttrs{Property: "length"}}))
		g.AddNode(VisualFromIR(ir.Node{ID: "cond", Attrs: ir.ConditionalAttrs{}}))
		g.AddNode(VisualFromIR(ir.Node{ID: "obj", Attrs: ir.ObjectAttrs{Properties: []ir.Property{{Key: "id"}}}}))
		return g
	}

	tests := []struct {
		name   string
		conn   Connection
		target string
		want   ir.Attributes
	}{
		{"variable type", Connection{Source: "iface", Target: "v", TargetHandle: "type"}, "v", ir.VariableAttrs{Name: "x", DeclaredType: "User"}},
		{"variable value", Connection{Source: "lit", Target: "v", TargetHandle: "value"}, "v", ir.VariableAttrs{Name: "x", Initializer: "7"}},
		{"console value", Connection{Source: "v", Target: "log", TargetHandle: "value"}, "log", ir.ConsoleAttrs{ValueExpr: "x"}},
		{"call func", Connection{Source: "fn", Target: "call", TargetHandle: "func"}, "call", ir.CallAttrs{FuncName: "sum", Args: []string{}, ExpectedParams: []string{"a", "b"}}},
		{"call arg", Connection{Source: "v", Target: "call", TargetHandle: "arg2"}, "call", ir.CallAttrs{Args: []string{"old", "undefined", "x"}}},
		{"property object", Connection{Source: "v", Target: "prop", TargetHandle: "obj"}, "prop", ir.PropertyAccessAttrs{Object: "x", Property: "length"}},
		{"conditional test", Connection{Source: "v", Target: "cond", TargetHandle: "test"}, "cond", ir.ConditionalAttrs{Test: "x"}},
		{"conditional branch", Connection{Source: "lit", Target: "cond", TargetHandle: "whenFalse"}, "cond", ir.ConditionalAttrs{WhenFalse: "7"}},
		{"object property", Connection{Source: "lit", Target: "obj", TargetHandle: "prop-0"}, "obj", ir.ObjectAttrs{Properties: []ir.Property{{Key: "id", Value: "7"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := build()
			edge, result, err := Connect(g, tt.conn)
			require.NoError(t, err)
			assert.True(t, result.Applied)
			assert.Equal(t, EdgeDataflow, edge.Kind)
			assert.Equal(t, "output", edge.SourceHandle)

			n, _ := g.Node(tt.target)
			assert.Equal(t, tt.want, n.Attrs)
		})
	}

	t.Run("unknown handle only draws the edge", func(t *testing.T) {
		g := build()
		edge, result, err := Connect(g, Connection{Source: "v", Target: "lit", TargetHandle: "nowhere"})
		require.NoError(t, err)
		assert.False(t, result.Applied)
		_, ok := g.Edge(edge.ID)
		assert.True(t, ok)

		n, _ := g.Node("lit")
		assert.Equal(t, ir.LiteralAttrs{Value: "7", LiteralKind: ir.LiteralNumber}, n.Attrs)
	})

	t.Run("variable type needs an interface", func(t *testing.T) {
		g := build()
		_, result, err := Connect(g, Connection{Source: "lit", Target: "v", TargetHandle: "type"})
		require.NoError(t, err)
		assert.False(t, result.Applied)
	})

	t.Run("function parameter is visual only", func(t *testing.T) {
		g := build()
		_, result, err := Connect(g, Connection{Source: "v", Target: "fn", TargetHandle: "param-0"})
		require.NoError(t, err)
		assert.False(t, result.Applied)
	})

	t.Run("missing endpoint", func(t *testing.T) {
		g := build()
		_, _, err := Connect(g, Connection{Source: "ghost", Target: "v", TargetHandle: "value"})
		assert.ErrorIs(t, err, ErrNodeNotFound)
	})

	t.Run("call func refreshes arg handles", func(t *testing.T) {
		g := build()
		_, _, err := Connect(g, Connection{Source: "fn", Target: "call", TargetHandle: "func"})
		require.NoError(t, err)
		n, _ := g.Node("call")
		assert.Contains(t, n.Handles, Handle{ID: "arg1", Type: HandleTarget})
	})
}

func TestDisconnect_KeepsAttributes(t *testing.T) {
	g := NewGraph()
	g.AddNode(VisualFromIR(ir.Node{ID: "v", Attrs: ir.VariableAttrs{Name: "x"}}))
	g.AddNode(VisualFromIR(ir.Node{ID: "log", Attrs: ir.ConsoleAttrs{}}))

	edge, _, err := Connect(g, Connection{Source: "v", Target: "log", TargetHandle: "value"})
	require.NoError(t, err)

	removed, ok := Disconnect(g, edge.ID)
	require.True(t, ok)
	assert.Equal(t, edge, removed)
	assert.Empty(t, g.Edges)

	n, _ := g.Node("log")
	assert.Equal(t, ir.ConsoleAttrs{ValueExpr: "x"}, n.Attrs)

	_, ok = Disconnect(g, edge.ID)
	assert.False(t, ok)
}

func TestConnect_BinaryOpIntoFunctionReturn(t *testing.T) {
	g := NewGraph()
	g.AddNode(VisualFromIR(ir.Node{ID: "f", Attrs: ir.FunctionAttrs{Name: "f", Params: []ir.Param{{Name: "x"}, {Name: "y"}}}}))
	g.AddNode(VisualFromIR(ir.Node{ID: "two", Attrs: ir.LiteralAttrs{Value: "2", LiteralKind: ir.LiteralNumber}}))
	g.AddNode(VisualFromIR(ir.Node{ID: "three", Attrs: ir.LiteralAttrs{Value: "3", LiteralKind: ir.LiteralNumber}}))
	g.AddNode(VisualFromIR(ir.Node{ID: "op", Attrs: ir.BinaryOpAttrs{Operator: "+"}}))

	for _, c := range []Connection{
		{Source: "two", Target: "op", TargetHandle: "lhs"},
		{Source: "three", Target: "op", TargetHandle: "rhs"},
		{Source: "op", Target: "f", TargetHandle: "return"},
	} {
		_, result, err := Connect(g, c)
		require.NoError(t, err)
		assert.True(t, result.Applied)
	}

	op, _ := g.Node("op")
	assert.Equal(t, "f", op.ParentID)

	code := generator.New(generator.Options{}).Generate(ToIR(g))
	assert.Contains(t, code, "export function f(x, y) {\n  return 2 + 3;\n}")
	assert.NotContains(t, code, "bin_op")
}

func TestInvalidateBody(t *testing.T) {
	g := FromIR([]ir.Node{
		{ID: "f", Attrs: ir.FunctionAttrs{Name: "f", RawBody: "return a + b;"}},
		{ID: "b", ParentID: "f", Attrs: ir.BinaryOpAttrs{Operator: "+", LHS: "a", RHS: "b"}},
		{ID: "lit", Attrs: ir.LiteralAttrs{Value: "9", LiteralKind: ir.LiteralNumber}},
	})

	_, result, err := Connect(g, Connection{Source: "lit", Target: "b", TargetHandle: "rhs"})
	require.NoError(t, err)
	assert.Contains(t, result.Updated, "f")

	fn, _ := g.Node("f")
	assert.Empty(t, fn.Attrs.(ir.FunctionAttrs).RawBody)
	assert.Equal(t, "", g.InvalidateBody("b"), "already invalidated")
}

func TestRemoveNode_Cascades(t *testing.T) {
	g := FromIR(sampleNodes())

	removed := g.RemoveNode("fn")
	assert.Equal(t, []string{"fn", "bin"}, removed)
	assert.Equal(t, 3, g.Len())
	for _, e := range g.Edges {
		assert.NotEqual(t, "fn", e.Source)
		assert.NotEqual(t, "bin", e.Source)
	}
	assert.Empty(t, g.Lookup("sum"))
	assert.Nil(t, g.RemoveNode("fn"))
}

func TestReconcile(t *testing.T) {
	existing := FromIR(sampleNodes())
	iface, _ := existing.Node("iface")
	iface.Position = Position{X: 500, Y: 300}

	_, _, err := Connect(existing, Connection{Source: "user", Target: "call", TargetHandle: "arg0"})
	require.NoError(t, err)
	dataflow := EdgeID("user", "output", "call", "arg0")

	parsed := []ir.Node{
		{ID: "iface", Attrs: ir.InterfaceAttrs{Name: "User", Members: []ir.Member{{Name: "id", Type: "number"}}}},
		{ID: "user", Attrs: ir.VariableAttrs{Name: "u", DeclaredType: "User"}},
		{ID: "call", Attrs: ir.CallAttrs{FuncName: "sum", Args: []string{"u", "3"}}},
		{ID: "fresh", Attrs: ir.VariableAttrs{Name: "z"}},
	}
	positions := map[string]Position{"fresh": {X: 10, Y: 20}, "iface": {X: 0, Y: 0}}

	merged, report := Reconcile(existing, parsed, positions)

	t.Run("Existing positions win", func(t *testing.T) {
		n, ok := merged.Node("iface")
		require.True(t, ok)
		assert.Equal(t, Position{X: 500, Y: 300}, n.Position)
		assert.Equal(t, "number", n.Attrs.(ir.InterfaceAttrs).Members[0].Type)
	})

	t.Run("New nodes get layout positions", func(t *testing.T) {
		n, ok := merged.Node("fresh")
		require.True(t, ok)
		assert.Equal(t, Position{X: 10, Y: 20}, n.Position)
	})

	t.Run("Report", func(t *testing.T) {
		assert.Equal(t, []string{"fresh"}, report.Added)
		assert.ElementsMatch(t, []string{"iface", "call"}, report.Updated)
		assert.ElementsMatch(t, []string{"fn", "bin"}, report.Removed)
		assert.False(t, report.Empty())
	})

	t.Run("Dataflow edges survive", func(t *testing.T) {
		_, ok := merged.Edge(dataflow)
		assert.True(t, ok)
	})

	t.Run("Existing graph untouched", func(t *testing.T) {
		assert.Equal(t, 5, existing.Len())
	})

	t.Run("Reparse of same nodes is empty", func(t *testing.T) {
		_, again := Reconcile(merged, parsed, nil)
		assert.True(t, again.Empty())
	})
}

func TestReconcile_MatchesByIdentity(t *testing.T) {
	existing := FromIR([]ir.Node{
		{ID: "01CANVASFN", Attrs: ir.FunctionAttrs{Name: "sum", Params: []ir.Param{{Name: "a"}, {Name: "b"}}}},
		{ID: "01CANVASBIN", ParentID: "01CANVASFN", Attrs: ir.BinaryOpAttrs{Operator: "+", LHS: "a", RHS: "b"}},
		{ID: "01CANVASU", Attrs: ir.VariableAttrs{Name: "u"}},
		{ID: "call", Attrs: ir.CallAttrs{FuncName: "sum", Args: []string{"1", "2"}}},
	})
	for id, p := range map[string]Position{"01CANVASFN": {X: 777, Y: 888}, "01CANVASBIN": {X: 20, Y: 40}, "01CANVASU": {X: 5, Y: 6}} {
		n, _ := existing.Node(id)
		n.Position = p
	}
	_, _, err := Connect(existing, Connection{Source: "01CANVASU", Target: "call", TargetHandle: "arg0"})
	require.NoError(t, err)

	parsed := []ir.Node{
		{ID: "function_0_40", Attrs: ir.FunctionAttrs{Name: "sum", Params: []ir.Param{{Name: "a"}, {Name: "b"}}, RawBody: "return a + b;"}},
		{ID: "binary_op_20_25", ParentID: "function_0_40", Attrs: ir.BinaryOpAttrs{Operator: "+", LHS: "a", RHS: "b"}},
		{ID: "variable_42_60", Attrs: ir.VariableAttrs{Name: "u"}},
		{ID: "call", Attrs: ir.CallAttrs{FuncName: "sum", Args: []string{"u", "2"}}},
		{ID: "variable_62_80", Attrs: ir.VariableAttrs{Name: "extra"}},
	}

	merged, report := Reconcile(existing, parsed, map[string]Position{"variable_62_80": {X: 1, Y: 2}})

	t.Run("Positions follow the renamed nodes", func(t *testing.T) {
		for id, want := range map[string]Position{"function_0_40": {X: 777, Y: 888}, "binary_op_20_25": {X: 20, Y: 40}, "variable_42_60": {X: 5, Y: 6}} {
			n, ok := merged.Node(id)
			require.True(t, ok, id)
			assert.Equal(t, want, n.Position, id)
		}
	})

	t.Run("Report", func(t *testing.T) {
		assert.Empty(t, report.Removed)
		assert.Equal(t, []string{"variable_62_80"}, report.Added)
		assert.Equal(t, map[string]string{
			"01CANVASFN":  "function_0_40",
			"01CANVASBIN": "binary_op_20_25",
			"01CANVASU":   "variable_42_60",
		}, report.Renamed)
		assert.Subset(t, report.Updated, []string{"function_0_40", "binary_op_20_25", "variable_42_60"})
	})

	t.Run("Dataflow edges follow their endpoints", func(t *testing.T) {
		e, ok := merged.Edge(EdgeID("variable_42_60", "output", "call", "arg0"))
		require.True(t, ok)
		assert.Equal(t, EdgeDataflow, e.Kind)
		_, stale := merged.Edge(EdgeID("01CANVASU", "output", "call", "arg0"))
		assert.False(t, stale)
	})

	t.Run("Same name in another kind is not matched", func(t *testing.T) {
		_, report := Reconcile(existing, []ir.Node{
			{ID: "interface_0_10", Attrs: ir.InterfaceAttrs{Name: "sum"}},
		}, nil)
		assert.Equal(t, []string{"interface_0_10"}, report.Added)
		assert.Empty(t, report.Renamed)
		assert.Contains(t, report.Removed, "01CANVASFN")
	})
}

func TestLayeredLayout(t *testing.T) {
	g := FromIR(sampleNodes())

	t.Run("Top to bottom", func(t *testing.T) {
		positions, err := NewLayeredLayout(TopToBottom).Layout(context.Background(), g)
		require.NoError(t, err)
		require.Len(t, positions, 5)

		// fn -> call and iface -> user are reference edges: callers sit one rank lower.
		assert.Equal(t, 0.0, positions["iface"].Y)
		assert.Equal(t, 0.0, positions["fn"].Y)
		assert.Greater(t, positions["call"].Y, positions["fn"].Y)
		assert.Greater(t, positions["user"].Y, positions["iface"].Y)
		assert.Less(t, positions["iface"].X, positions["fn"].X)

		// Children are relative to the parent.
		assert.Equal(t, Position{X: containerPadding, Y: containerHeader}, positions["bin"])
	})

	t.Run("Left to right", func(t *testing.T) {
		positions, err := NewLayeredLayout(LeftToRight).Layout(context.Background(), g)
		require.NoError(t, err)
		assert.Equal(t, 0.0, positions["fn"].X)
		assert.Greater(t, positions["call"].X, positions["fn"].X)
	})

	t.Run("Cycles terminate", func(t *testing.T) {
		cyclic := NewGraph()
		cyclic.AddNode(VisualFromIR(ir.Node{ID: "a", Attrs: ir.VariableAttrs{Name: "a"}}))
		cyclic.AddNode(VisualFromIR(ir.Node{ID: "b", Attrs: ir.VariableAttrs{Name: "b"}}))
		cyclic.AddEdge(newEdge("a", "output", "b", "value", EdgeDataflow))
		cyclic.AddEdge(newEdge("b", "output", "a", "value", EdgeDataflow))

		positions, err := NewLayeredLayout(TopToBottom).Layout(context.Background(), cyclic)
		require.NoError(t, err)
		assert.Len(t, positions, 2)
	})

	t.Run("Nodes sharing a rank do not overlap", func(t *testing.T) {
		flat := NewGraph()
		for _, id := range []string{"a", "b", "c", "d"} {
			flat.AddNode(VisualFromIR(ir.Node{ID: id, Attrs: ir.VariableAttrs{Name: id}}))
		}
		flat.AddEdge(newEdge("a", "output", "d", "value", EdgeDataflow))
		flat.AddEdge(newEdge("b", "output", "d", "value", EdgeDataflow))

		positions, err := NewLayeredLayout(TopToBottom).Layout(context.Background(), flat)
		require.NoError(t, err)
		require.Len(t, positions, 4)
		assert.Greater(t, positions["d"].Y, positions["a"].Y)

		first := []Position{positions["a"], positions["b"], positions["c"]}
		for i := range first {
			assert.Equal(t, 0.0, first[i].Y)
			for j := i + 1; j < len(first); j++ {
				gap := first[i].X - first[j].X
				if gap < 0 {
					gap = -gap
				}
				assert.GreaterOrEqual(t, gap, float64(DefaultNodeWidth), "nodes %d and %d", i, j)
			}
		}
	})

	t.Run("Errors", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewLayeredLayout(TopToBottom).Layout(ctx, g)
		assert.ErrorIs(t, err, context.Canceled)

		_, err = NewLayeredLayout("diagonal").Layout(context.Background(), g)
		assert.Error(t, err)
	})

	t.Run("Apply", func(t *testing.T) {
		Apply(g, map[string]Position{"iface": {X: 1, Y: 2}, "ghost": {X: 3}})
		n, _ := g.Node("iface")
		assert.Equal(t, Position{X: 1, Y: 2}, n.Position)
	})
}

func TestVisualNodeJSON(t *testing.T) {
	n := VisualFromIR(ir.Node{ID: "c", Attrs: ir.CallAttrs{FuncName: "f", Args: []string{"1"}}})
	n.Position = Position{X: 4, Y: 5}

	data, err := json.Marshal(n)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"call"`)
	assert.Contains(t, string(data), `"funcName":"f"`)

	var back VisualNode
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, *n, back)
}

func TestMermaid(t *testing.T) {
	out := Mermaid(FromIR(sampleNodes()))

	assert.True(t, strings.HasPrefix(out, "```mermaid\nflowchart LR\n"))
	assert.Contains(t, out, `subgraph n_fn["function: sum"]`)
	assert.Contains(t, out, `n_bin["binaryOp: +"]`)
	assert.Contains(t, out, "n_fn -.-> n_call")
}

func TestStats(t *testing.T) {
	g := FromIR(append(sampleNodes(), ir.Node{ID: "c2", Attrs: ir.CallAttrs{FuncName: "missing", Args: []string{}}}))
	s := g.Stats()

	assert.Equal(t, 6, s.Nodes)
	assert.Equal(t, 2, s.ByKind[ir.KindCall])
	assert.Equal(t, 1, s.Unresolved)
	assert.Equal(t, 1, s.ByEdgeKind[EdgeContains])
	assert.Equal(t, 2, s.ByEdgeKind[EdgeReference])
}
