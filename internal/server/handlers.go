package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"clast/internal/graph"
	"clast/internal/ir"
	"clast/internal/parser"
	"clast/internal/pipeline"
	"clast/internal/retrieval"
	"clast/internal/storage"

	"github.com/go-chi/chi/v5"
)

const maxBodySize = 10 << 20

type graphView struct {
	Nodes []*graph.VisualNode `json:"nodes"`
	Edges []graph.Edge        `json:"edges"`
}

type flowView struct {
	Flow    *storage.Flow     `json:"flow"`
	Text    string            `json:"text"`
	Graph   graphView         `json:"graph"`
	Notices []pipeline.Notice `json:"notices"`
}

type syncResponse struct {
	pipeline.Result
	Error string `json:"error,omitempty"`
}

func viewOf(g *graph.Graph) graphView {
	v := graphView{Nodes: g.Nodes(), Edges: g.Edges}
	if v.Nodes == nil {
		v.Nodes = []*graph.VisualNode{}
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server encode_failed err=%v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var perr *parser.ParseError
	switch {
	case errors.As(err, &perr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, pipeline.ErrUnknownNode),
		errors.Is(err, pipeline.ErrUnknownEdge):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrUnknownKind):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) controller(w http.ResponseWriter, r *http.Request) (*pipeline.Controller, bool) {
	c, err := s.controllerFor(r.Context(), chi.URLParam(r, "flowID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return nil, false
	}
	return c, true
}

func (s *Server) writeResult(w http.ResponseWriter, status int, res pipeline.Result, err error) {
	switch {
	case err != nil:
		writeJSON(w, statusFor(err), syncResponse{Result: res, Error: err.Error()})
	case res.Suppressed:
		writeJSON(w, http.StatusConflict, syncResponse{Result: res, Error: "another change is being applied"})
	default:
		writeJSON(w, status, syncResponse{Result: res})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createFlowRequest struct {
	Name string `json:"name"`
	Text string `json:"text,omitempty"`
}

func (s *Server) handleCreateFlow(w http.ResponseWriter, r *http.Request) {
	var req createFlowRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		req.Name = "Untitled flow"
	}

	flow, err := s.store.CreateFlow(r.Context(), req.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	c, err := s.controllerFor(r.Context(), flow.ID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	// A text that does not parse still creates the flow; the failure shows up in the notices.
	if req.Text != "" {
		_, _ = c.ApplyText(r.Context(), req.Text)
	}
	writeJSON(w, http.StatusCreated, flowView{Flow: flow, Text: c.Text(), Graph: viewOf(c.Graph()), Notices: c.Notices()})
}

func (s *Server) handleListFlows(w http.ResponseWriter, r *http.Request) {
	flows, err := s.store.ListFlows(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, flows)
}

func (s *Server) handleGetFlow(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	flow, err := s.store.GetFlow(r.Context(), c.FlowID())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, flowView{Flow: flow, Text: c.Text(), Graph: viewOf(c.Graph()), Notices: c.Notices()})
}

type textRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleApplyText(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	var req textRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := c.ApplyText(r.Context(), req.Text)
	s.writeResult(w, http.StatusOK, res, err)
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	diags := c.Diagnostics()
	if diags == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, diags)
}

func (s *Server) handleMermaid(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, graph.Mermaid(c.Graph()))
}

// handleNeighborhood returns the nodes within ?hops= (default 2) of a node.
func (s *Server) handleNeighborhood(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	cfg := retrieval.DefaultConfig()
	if raw := r.URL.Query().Get("hops"); raw != "" {
		hops, err := strconv.Atoi(raw)
		if err != nil || hops < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid hops: %q", raw))
			return
		}
		cfg.MaxHops = hops
	}

	nodeID := chi.URLParam(r, "nodeID")
	g := c.Graph()
	if _, found := g.Node(nodeID); !found {
		writeError(w, http.StatusNotFound, fmt.Errorf("node %s: %w", nodeID, pipeline.ErrUnknownNode))
		return
	}
	writeJSON(w, http.StatusOK, retrieval.Extract(g, []string{nodeID}, cfg))
}

type nodeRequest struct {
	ID         string          `json:"id,omitempty"`
	Kind       ir.Kind         `json:"kind"`
	ParentID   string          `json:"parentId,omitempty"`
	Position   *graph.Position `json:"position,omitempty"`
	Attributes json.RawMessage `json:"attributes,omitempty"`
}

func (req nodeRequest) attrs(kind ir.Kind) (ir.Attributes, error) {
	if len(req.Attributes) == 0 {
		return nil, nil
	}
	if !kind.Known() {
		return nil, fmt.Errorf("%w: %q", pipeline.ErrUnknownKind, kind)
	}
	attrs, err := ir.UnmarshalAttributes(kind, req.Attributes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrUnknownKind, err)
	}
	return attrs, nil
}

func (s *Server) handleAddNode(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	var req nodeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	attrs, err := req.attrs(req.Kind)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	edit := pipeline.AddNode{ID: req.ID, Kind: req.Kind, ParentID: req.ParentID, Attrs: attrs}
	if req.Position != nil {
		edit.Position = *req.Position
	}
	res, err := c.ApplyGraphEdit(r.Context(), edit)
	s.writeResult(w, http.StatusCreated, res, err)
}

// handleUpdateNode moves a node and/or replaces its attributes.
func (s *Server) handleUpdateNode(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	nodeID := chi.URLParam(r, "nodeID")
	var req nodeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	kind := req.Kind
	if kind == "" {
		n, found := c.Graph().Node(nodeID)
		if !found {
			err := fmt.Errorf("node %s: %w", nodeID, pipeline.ErrUnknownNode)
			writeError(w, statusFor(err), err)
			return
		}
		kind = n.Kind
	}
	attrs, err := req.attrs(kind)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if attrs == nil && req.Position == nil {
		writeError(w, http.StatusBadRequest, errors.New("nothing to update: send position or attributes"))
		return
	}

	var res pipeline.Result
	if req.Position != nil {
		res, err = c.ApplyGraphEdit(r.Context(), pipeline.MoveNode{ID: nodeID, Position: *req.Position})
		if err != nil || res.Suppressed {
			s.writeResult(w, http.StatusOK, res, err)
			return
		}
	}
	if attrs != nil {
		res, err = c.ApplyGraphEdit(r.Context(), pipeline.UpdateNode{ID: nodeID, Attrs: attrs})
	}
	s.writeResult(w, http.StatusOK, res, err)
}

func (s *Server) handleRemoveNode(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	res, err := c.ApplyGraphEdit(r.Context(), pipeline.RemoveNode{ID: chi.URLParam(r, "nodeID")})
	s.writeResult(w, http.StatusOK, res, err)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	var conn graph.Connection
	if err := decodeBody(w, r, &conn); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := c.ApplyGraphEdit(r.Context(), pipeline.Connect{Connection: conn})
	s.writeResult(w, http.StatusCreated, res, err)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controller(w, r)
	if !ok {
		return
	}
	res, err := c.ApplyGraphEdit(r.Context(), pipeline.Disconnect{EdgeID: chi.URLParam(r, "edgeID")})
	s.writeResult(w, http.StatusOK, res, err)
}
