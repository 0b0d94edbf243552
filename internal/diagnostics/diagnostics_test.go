package diagnostics

import (
	"context"
	"testing"

	"clast/internal/ir"
	"clast/internal/parser"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyntaxChecker(t *testing.T) {
	p, err := parser.New("typescript")
	require.NoError(t, err)
	checker := NewSyntaxChecker(p)

	t.Run("clean text", func(t *testing.T) {
		diags, err := checker.Check(context.Background(), "const a = 1;\nconst b = a + 2;")
		require.NoError(t, err)
		assert.Empty(t, diags)
	})

	t.Run("broken text", func(t *testing.T) {
		text := "const a = 1;\nfunction f(x: number { return x; }"
		diags, err := checker.Check(context.Background(), text)
		require.NoError(t, err)
		require.NotEmpty(t, diags)
		for _, d := range diags {
			assert.Equal(t, SeverityError, d.Severity)
			assert.GreaterOrEqual(t, d.StartOffset, len("const a = 1;"))
			assert.NotEmpty(t, d.Message)
		}
	})
}

func TestLocate(t *testing.T) {
	nodes := []ir.Node{
		{ID: "outer", Range: &ir.SourceRange{Start: 0, End: 50}},
		{ID: "inner", ParentID: "outer", Range: &ir.SourceRange{Start: 10, End: 20}},
		{ID: "canvas"},
		{ID: "tail", Range: &ir.SourceRange{Start: 60, End: 70}},
	}
	diags := []Diagnostic{
		{StartOffset: 15, Message: "a"},
		{StartOffset: 65, Message: "b"},
		{StartOffset: 55, Message: "c"},
		{StartOffset: 50, Message: "d"},
	}

	located := Locate(diags, nodes)
	assert.Equal(t, []Diagnostic{{StartOffset: 15, Message: "a"}}, located["outer"], "first containing node wins")
	assert.Empty(t, located["inner"])
	assert.Equal(t, []Diagnostic{{StartOffset: 65, Message: "b"}}, located["tail"])
	assert.Equal(t, []Diagnostic{{StartOffset: 55, Message: "c"}, {StartOffset: 50, Message: "d"}}, located[""])
}

func TestLocateRanges(t *testing.T) {
	ranges := map[string]ir.SourceRange{
		"b": {Start: 20, End: 40},
		"a": {Start: 0, End: 18},
	}
	located := LocateRanges([]Diagnostic{{StartOffset: 25}, {StartOffset: 3}}, ranges)

	assert.Len(t, located["a"], 1)
	assert.Len(t, located["b"], 1)
}
