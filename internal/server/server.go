package server

import (
	"context"
	"net/http"
	"sync"

	"clast/internal/parser"
	"clast/internal/pipeline"
	"clast/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Store is what the server needs from persistence: flow records plus the
// graph mirror each controller writes through to.
type Store interface {
	storage.FlowStore
	pipeline.Persistence
}

// Server exposes one synchronization controller per flow over HTTP.
type Server struct {
	router chi.Router
	store  Store
	parser *parser.Parser
	opts   []pipeline.Option

	mu          sync.Mutex
	controllers map[string]*pipeline.Controller
}

// NewServer creates a Server with all routes configured. opts are applied to
// every controller the server creates.
func NewServer(store Store, p *parser.Parser, opts ...pipeline.Option) *Server {
	s := &Server{
		store:       store,
		parser:      p,
		opts:        opts,
		controllers: make(map[string]*pipeline.Controller),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Post("/flows", s.handleCreateFlow)
	r.Get("/flows", s.handleListFlows)
	r.Route("/flows/{flowID}", func(r chi.Router) {
		r.Get("/", s.handleGetFlow)
		r.Put("/text", s.handleApplyText)
		r.Get("/diagnostics", s.handleDiagnostics)
		r.Get("/mermaid", s.handleMermaid)

		r.Post("/nodes", s.handleAddNode)
		r.Patch("/nodes/{nodeID}", s.handleUpdateNode)
		r.Delete("/nodes/{nodeID}", s.handleRemoveNode)
		r.Get("/nodes/{nodeID}/neighborhood", s.handleNeighborhood)
		r.Post("/edges", s.handleConnect)
		r.Delete("/edges/{edgeID}", s.handleDisconnect)
	})

	s.router = r
	return s
}

// ServeHTTP implements the http.Handler interface, delegating to the chi router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// controllerFor returns the controller of an existing flow, loading its
// stored graph the first time the flow is touched.
func (s *Server) controllerFor(ctx context.Context, flowID string) (*pipeline.Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.controllers[flowID]; ok {
		return c, nil
	}
	if _, err := s.store.GetFlow(ctx, flowID); err != nil {
		return nil, err
	}

	opts := append(append([]pipeline.Option(nil), s.opts...), pipeline.WithPersistence(s.store, flowID))
	c := pipeline.New(s.parser, opts...)
	if _, err := c.Load(ctx); err != nil {
		return nil, err
	}
	s.controllers[flowID] = c
	return c, nil
}
