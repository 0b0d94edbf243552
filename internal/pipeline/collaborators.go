package pipeline

import (
	"context"
	"log"
	"reflect"
	"slices"
	"sync"
	"time"

	"clast/internal/diagnostics"
	"clast/internal/graph"
)

// Persistence is the flow mirror the controller writes through to.
// storage.SQLiteStore implements it.
type Persistence interface {
	UpsertNode(ctx context.Context, flowID string, node *graph.VisualNode) (string, error)
	RemoveNode(ctx context.Context, flowID, nodeID string) error
	ListNodesByFlow(ctx context.Context, flowID string) ([]*graph.VisualNode, error)
	ReorderNodes(ctx context.Context, flowID string, ids []string) error
	UpsertEdge(ctx context.Context, flowID string, edge graph.Edge) (string, error)
	RemoveEdge(ctx context.Context, flowID, edgeID string) error
	ListEdgesByFlow(ctx context.Context, flowID string) ([]graph.Edge, error)
	UpdateFlowPreview(ctx context.Context, flowID, code string) error
}

type NoticeKind string

const (
	NoticeParseError          NoticeKind = "parse_error"
	NoticeCollaboratorFailure NoticeKind = "collaborator_failure"
	NoticeGenerationFailure   NoticeKind = "generation_failure"
)

const defaultNoticeLimit = 50

// Notice is a transient user-visible message.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Source  string     `json:"source"`
	Message string     `json:"message"`
	At      time.Time  `json:"at"`
}

type noticeLog struct {
	mu    sync.Mutex
	limit int
	items []Notice
}

func newNoticeLog(limit int) *noticeLog {
	return &noticeLog{limit: limit}
}

func (l *noticeLog) add(kind NoticeKind, source, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, Notice{Kind: kind, Source: source, Message: message, At: time.Now()})
	if over := len(l.items) - l.limit; over > 0 {
		l.items = append([]Notice(nil), l.items[over:]...)
	}
}

func (l *noticeLog) list() []Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Notice(nil), l.items...)
}

// collaborate runs fn with the collaborator timeout. A failure is recorded as a
// notice and reported as false; it never aborts the pass.
func (c *Controller) collaborate(ctx context.Context, source string, fn func(ctx context.Context) error) bool {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := fn(cctx); err != nil {
		c.notices.add(NoticeCollaboratorFailure, source, err.Error())
		log.Printf("sync collaborator_failed flow=%s source=%s err=%v", c.flowID, source, err)
		return false
	}
	return true
}

// layoutStage computes positions for g. The layouter may mutate g, so callers
// pass a graph they do not keep.
func (c *Controller) layoutStage(ctx context.Context, g *graph.Graph) map[string]graph.Position {
	if c.layout == nil {
		return nil
	}
	var positions map[string]graph.Position
	c.collaborate(ctx, "layout", func(ctx context.Context) error {
		var err error
		positions, err = c.layout.Layout(ctx, g)
		return err
	})
	return positions
}

func (c *Controller) diagnosticsStage(ctx context.Context, text string) []diagnostics.Diagnostic {
	if c.checker == nil {
		return nil
	}
	var diags []diagnostics.Diagnostic
	ok := c.collaborate(ctx, "diagnostics", func(ctx context.Context) error {
		var err error
		diags, err = c.checker.Check(ctx, text)
		return err
	})
	if !ok {
		// Keep the last diagnostics when the checker is unavailable.
		return c.diags
	}
	return diags
}

// persistStage mirrors the difference between before and after into the store,
// then stores the generated preview.
func (c *Controller) persistStage(ctx context.Context, before, after *graph.Graph, text string) {
	if c.store == nil {
		return
	}
	c.collaborate(ctx, "persistence", func(ctx context.Context) error {
		for _, old := range before.Nodes() {
			if _, ok := after.Node(old.ID); ok {
				continue
			}
			if err := c.store.RemoveNode(ctx, c.flowID, old.ID); err != nil {
				return err
			}
		}
		for _, n := range after.Nodes() {
			if old, ok := before.Node(n.ID); ok && sameNode(old, n) {
				continue
			}
			if _, err := c.store.UpsertNode(ctx, c.flowID, n); err != nil {
				return err
			}
		}
		// Stored order is document order; the store only appends on insert.
		if order := nodeIDs(after); !slices.Equal(nodeIDs(before), order) {
			if err := c.store.ReorderNodes(ctx, c.flowID, order); err != nil {
				return err
			}
		}

		for _, e := range before.Edges {
			if _, ok := after.Edge(e.ID); ok {
				continue
			}
			if err := c.store.RemoveEdge(ctx, c.flowID, e.ID); err != nil {
				return err
			}
		}
		for _, e := range after.Edges {
			if old, ok := before.Edge(e.ID); ok && old == e {
				continue
			}
			if _, err := c.store.UpsertEdge(ctx, c.flowID, e); err != nil {
				return err
			}
		}

		return c.store.UpdateFlowPreview(ctx, c.flowID, text)
	})
}

func nodeIDs(g *graph.Graph) []string {
	ids := make([]string, 0, g.Len())
	for _, n := range g.Nodes() {
		ids = append(ids, n.ID)
	}
	return ids
}

func sameNode(a, b *graph.VisualNode) bool {
	return a.Kind == b.Kind &&
		a.ParentID == b.ParentID &&
		a.Position == b.Position &&
		a.Width == b.Width &&
		a.Height == b.Height &&
		reflect.DeepEqual(a.Attrs, b.Attrs) &&
		reflect.DeepEqual(a.Diagnostics, b.Diagnostics)
}
