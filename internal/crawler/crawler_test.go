package crawler

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"clast/internal/ir"
	"clast/internal/parser"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestCrawler_ScanProject(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".gitignore":                "generated/\n*.local.ts\n",
		"src/math.ts":               "export function sum(a: number, b: number): number {\n  return a + b;\n}\n",
		"src/view.tsx":              "export const title = \"hello\";\n",
		"src/types.d.ts":            "export interface Ambient {}\n",
		"src/math.test.ts":          "sum(1, 2);\n",
		"src/scratch.local.ts":      "export const x = 1;\n",
		"generated/api.ts":          "export const y = 2;\n",
		"node_modules/lib/index.ts": "export const z = 3;\n",
		"src/broken.ts":             "function broken(a: number { return a; }\n",
		"README.md":                 "# not source\n",
	})

	p, err := parser.New("typescript")
	require.NoError(t, err)
	c := NewCrawler(p)

	files := map[string]File{}
	err = c.ScanProject(context.Background(), root, func(f File) {
		files[f.Path] = f
	})
	require.NoError(t, err)

	var paths []string
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	assert.Equal(t, []string{"src/broken.ts", "src/math.ts", "src/view.tsx"}, paths)

	t.Run("Parsed nodes", func(t *testing.T) {
		math := files["src/math.ts"]
		require.NoError(t, math.Err)
		require.NotEmpty(t, math.Nodes)
		assert.Equal(t, ir.KindFunction, math.Nodes[0].Kind())

		view := files["src/view.tsx"]
		require.NoError(t, view.Err)
		require.NotEmpty(t, view.Nodes)
		assert.Equal(t, ir.KindVariable, view.Nodes[0].Kind())
	})

	t.Run("Parse failures are reported", func(t *testing.T) {
		var perr *parser.ParseError
		assert.ErrorAs(t, files["src/broken.ts"].Err, &perr)
	})
}

func TestCrawler_Canceled(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.ts": "export const a = 1;\n"})

	p, err := parser.New("typescript")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = NewCrawler(p).ScanProject(ctx, root, func(File) {})
	assert.ErrorIs(t, err, context.Canceled)
}
