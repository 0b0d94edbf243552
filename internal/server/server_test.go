package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"clast/internal/parser"
	"clast/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiFlow struct {
	Flow struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Preview string `json:"preview"`
	} `json:"flow"`
	Text  string `json:"text"`
	Graph struct {
		Nodes []struct {
			ID         string          `json:"id"`
			Kind       string          `json:"kind"`
			Attributes json.RawMessage `json:"attributes"`
		} `json:"nodes"`
		Edges []struct {
			ID   string `json:"id"`
			Kind string `json:"kind"`
		} `json:"edges"`
	} `json:"graph"`
	Notices []struct {
		Kind string `json:"kind"`
	} `json:"notices"`
}

type apiResult struct {
	Changed bool   `json:"changed"`
	Text    string `json:"text"`
	NodeID  string `json:"nodeId"`
	Edge    *struct {
		ID string `json:"id"`
	} `json:"edge"`
	Error string `json:"error"`
}

func newTestServer(t *testing.T) (*Server, *storage.SQLiteStore) {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	p, err := parser.New("typescript")
	require.NoError(t, err)
	return NewServer(store, p), store
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createFlow(t *testing.T, s *Server, text string) apiFlow {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/flows", map[string]string{"name": "demo", "text": text})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[apiFlow](t, rec)
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestFlowLifecycle(t *testing.T) {
	s, store := newTestServer(t)

	created := createFlow(t, s, "export interface User {\n  id: number;\n}")
	require.NotEmpty(t, created.Flow.ID)
	require.Len(t, created.Graph.Nodes, 1)
	assert.Equal(t, "interface", created.Graph.Nodes[0].Kind)

	t.Run("List", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/flows", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		flows := decode[[]storage.Flow](t, rec)
		require.Len(t, flows, 1)
		assert.Equal(t, created.Flow.ID, flows[0].ID)
	})

	t.Run("Get", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/flows/"+created.Flow.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		got := decode[apiFlow](t, rec)
		assert.Equal(t, created.Text, got.Text)
		assert.Equal(t, created.Text, got.Flow.Preview)
	})

	t.Run("Unknown flow", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/flows/missing", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Reload from storage", func(t *testing.T) {
		p, err := parser.New("typescript")
		require.NoError(t, err)
		fresh := NewServer(store, p)
		rec := do(t, fresh, http.MethodGet, "/flows/"+created.Flow.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		got := decode[apiFlow](t, rec)
		assert.Equal(t, created.Text, got.Text)
		assert.Len(t, got.Graph.Nodes, 1)
	})
}

func TestApplyText(t *testing.T) {
	s, _ := newTestServer(t)
	flow := createFlow(t, s, "")
	path := "/flows/" + flow.Flow.ID + "/text"

	rec := do(t, s, http.MethodPut, path, map[string]string{"text": "export function sum(a: number, b: number): number {\n  return a + b;\n}"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[apiResult](t, rec).Changed)

	t.Run("Parse error", func(t *testing.T) {
		rec := do(t, s, http.MethodPut, path, map[string]string{"text": "function broken(a: number { return a; }"})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, decode[apiResult](t, rec).Error, "parse error")

		got := decode[apiFlow](t, do(t, s, http.MethodGet, "/flows/"+flow.Flow.ID, nil))
		assert.NotEmpty(t, got.Graph.Nodes, "graph keeps its last good state")
		require.NotEmpty(t, got.Notices)
		assert.Equal(t, "parse_error", got.Notices[len(got.Notices)-1].Kind)
	})

	t.Run("Bad body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, path, strings.NewReader("{"))
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Diagnostics", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/flows/"+flow.Flow.ID+"/diagnostics", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "["))
	})

	t.Run("Mermaid", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/flows/"+flow.Flow.ID+"/mermaid", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "flowchart LR")
	})
}

func TestGraphEdits(t *testing.T) {
	s, _ := newTestServer(t)
	flow := createFlow(t, s, "")
	base := "/flows/" + flow.Flow.ID

	rec := do(t, s, http.MethodPost, base+"/nodes", map[string]any{
		"kind":       "literal",
		"position":   map[string]float64{"x": 10, "y": 20},
		"attributes": map[string]string{"value": "hi", "literalType": "string"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	lit := decode[apiResult](t, rec)
	require.NotEmpty(t, lit.NodeID)
	assert.Contains(t, lit.Text, `= "hi";`)

	rec = do(t, s, http.MethodPost, base+"/nodes", map[string]any{"kind": "console"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	logNode := decode[apiResult](t, rec)

	rec = do(t, s, http.MethodPost, base+"/edges", map[string]string{
		"source": lit.NodeID, "target": logNode.NodeID, "targetHandle": "value",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	connected := decode[apiResult](t, rec)
	require.NotNil(t, connected.Edge)
	assert.Contains(t, connected.Text, `console.log("log", "hi")`)

	t.Run("Neighborhood", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, base+"/nodes/"+lit.NodeID+"/neighborhood?hops=1", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		sg := decode[struct {
			NodeIDs []string `json:"nodeIds"`
		}](t, rec)
		assert.ElementsMatch(t, []string{lit.NodeID, logNode.NodeID}, sg.NodeIDs)

		rec = do(t, s, http.MethodGet, base+"/nodes/"+lit.NodeID+"/neighborhood?hops=-1", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		rec = do(t, s, http.MethodGet, base+"/nodes/missing/neighborhood", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Move and update", func(t *testing.T) {
		rec := do(t, s, http.MethodPatch, base+"/nodes/"+logNode.NodeID, map[string]any{
			"position":   map[string]float64{"x": 300, "y": 40},
			"attributes": map[string]string{"label": "debug", "valueExpr": "1"},
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Contains(t, decode[apiResult](t, rec).Text, `console.log("debug", 1)`)
	})

	t.Run("Disconnect", func(t *testing.T) {
		rec := do(t, s, http.MethodDelete, base+"/edges/"+connected.Edge.ID, nil)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		rec = do(t, s, http.MethodDelete, base+"/edges/"+connected.Edge.ID, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Remove", func(t *testing.T) {
		rec := do(t, s, http.MethodDelete, base+"/nodes/"+lit.NodeID, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.NotContains(t, decode[apiResult](t, rec).Text, `"hi"`)

		rec = do(t, s, http.MethodDelete, base+"/nodes/"+lit.NodeID, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Invalid requests", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, base+"/nodes", map[string]any{"kind": "widget"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = do(t, s, http.MethodPatch, base+"/nodes/"+logNode.NodeID, map[string]any{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = do(t, s, http.MethodPatch, base+"/nodes/missing", map[string]any{"position": map[string]float64{"x": 1}})
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = do(t, s, http.MethodPost, base+"/edges", map[string]string{"source": "a", "target": "b", "targetHandle": "value"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
