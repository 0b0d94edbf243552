package storage

import (
	"context"
	"errors"
	"time"

	"clast/internal/graph"
)

var ErrNotFound = errors.New("not found")

// Flow is one canvas document: a graph plus the source text last generated from it.
type Flow struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Preview   string    `json:"preview"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store combines flow metadata and graph mirroring.
type Store interface {
	FlowStore
	GraphStore
	Close() error
}

// FlowStore manages flow records.
type FlowStore interface {
	CreateFlow(ctx context.Context, name string) (*Flow, error)
	GetFlow(ctx context.Context, id string) (*Flow, error)
	ListFlows(ctx context.Context) ([]Flow, error)

	// UpdateFlowPreview stores the latest source text of a flow.
	UpdateFlowPreview(ctx context.Context, flowID, code string) error
}

// GraphStore mirrors the visual nodes and edges of a flow.
type GraphStore interface {
	// UpsertNode saves a node and returns its id; an empty id gets a fresh one.
	UpsertNode(ctx context.Context, flowID string, node *graph.VisualNode) (string, error)

	// RemoveNode deletes a node and every edge touching it.
	RemoveNode(ctx context.Context, flowID, nodeID string) error
	ListNodesByFlow(ctx context.Context, flowID string) ([]*graph.VisualNode, error)
	// ReorderNodes sets the listing order of a flow's nodes to the order of ids.
	// Ids that are not stored are ignored.
	ReorderNodes(ctx context.Context, flowID string, ids []string) error

	UpsertEdge(ctx context.Context, flowID string, edge graph.Edge) (string, error)
	RemoveEdge(ctx context.Context, flowID, edgeID string) error
	ListEdgesByFlow(ctx context.Context, flowID string) ([]graph.Edge, error)

	// SaveGraph replaces the stored snapshot of a flow with g.
	SaveGraph(ctx context.Context, flowID string, g *graph.Graph) error
	LoadGraph(ctx context.Context, flowID string) (*graph.Graph, error)
}
