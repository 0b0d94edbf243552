package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"clast/internal/graph"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
)

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates or opens a SQLite database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS flows (
			id TEXT PRIMARY KEY,
			name TEXT,
			preview TEXT,
			created_at TEXT,
			updated_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS flow_nodes (
			flow_id TEXT,
			id TEXT,
			kind TEXT,
			parent_id TEXT,
			x REAL,
			y REAL,
			seq INTEGER,
			data JSON,
			PRIMARY KEY (flow_id, id)
		);`,
		`CREATE TABLE IF NOT EXISTS flow_edges (
			flow_id TEXT,
			id TEXT,
			source TEXT,
			source_handle TEXT,
			target TEXT,
			target_handle TEXT,
			kind TEXT,
			seq INTEGER,
			PRIMARY KEY (flow_id, id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_flow_nodes_seq ON flow_nodes(flow_id, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_flow_edges_seq ON flow_edges(flow_id, seq);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// --- FlowStore Implementation ---

func (s *SQLiteStore) CreateFlow(ctx context.Context, name string) (*Flow, error) {
	now := s.now().UTC()
	f := &Flow{ID: uuid.NewString(), Name: name, CreatedAt: now, UpdatedAt: now}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flows (id, name, preview, created_at, updated_at) VALUES (?, ?, '', ?, ?)
	`, f.ID, f.Name, formatTime(now), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to create flow: %w", err)
	}
	return f, nil
}

// EnsureFlow creates the flow with id if it does not exist yet.
func (s *SQLiteStore) EnsureFlow(ctx context.Context, id, name string) (*Flow, error) {
	now := formatTime(s.now().UTC())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flows (id, name, preview, created_at, updated_at) VALUES (?, ?, '', ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, name, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure flow: %w", err)
	}
	return s.GetFlow(ctx, id)
}

func (s *SQLiteStore) GetFlow(ctx context.Context, id string) (*Flow, error) {
	row := s.db.QueryRowContext(ctx, "SELECT id, name, preview, created_at, updated_at FROM flows WHERE id = ?", id)
	f, err := scanFlow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("flow %s: %w", id, ErrNotFound)
	}
	return f, err
}

func (s *SQLiteStore) ListFlows(ctx context.Context) ([]Flow, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, preview, created_at, updated_at FROM flows ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query flows: %w", err)
	}
	defer rows.Close()

	flows := []Flow{}
	for rows.Next() {
		f, err := scanFlow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flow: %w", err)
		}
		flows = append(flows, *f)
	}
	return flows, rows.Err()
}

func (s *SQLiteStore) UpdateFlowPreview(ctx context.Context, flowID, code string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE flows SET preview = ?, updated_at = ? WHERE id = ?",
		code, formatTime(s.now().UTC()), flowID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("flow %s: %w", flowID, ErrNotFound)
	}
	return nil
}

// --- GraphStore Implementation ---

const upsertNodeSQL = `
	INSERT INTO flow_nodes (flow_id, id, kind, parent_id, x, y, seq, data)
	VALUES (?, ?, ?, ?, ?, ?, COALESCE((SELECT MAX(seq) + 1 FROM flow_nodes WHERE flow_id = ?), 0), ?)
	ON CONFLICT(flow_id, id) DO UPDATE SET
		kind=excluded.kind,
		parent_id=excluded.parent_id,
		x=excluded.x,
		y=excluded.y,
		data=excluded.data
`

func (s *SQLiteStore) UpsertNode(ctx context.Context, flowID string, node *graph.VisualNode) (string, error) {
	if node.ID == "" {
		node.ID = ulid.Make().String()
	}
	data, err := json.Marshal(node)
	if err != nil {
		return "", fmt.Errorf("failed to encode node %s: %w", node.ID, err)
	}
	_, err = s.db.ExecContext(ctx, upsertNodeSQL,
		flowID, node.ID, string(node.Kind), node.ParentID, node.Position.X, node.Position.Y, flowID, data)
	if err != nil {
		return "", err
	}
	return node.ID, nil
}

func (s *SQLiteStore) RemoveNode(ctx context.Context, flowID, nodeID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM flow_edges WHERE flow_id = ? AND (source = ? OR target = ?)", flowID, nodeID, nodeID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM flow_nodes WHERE flow_id = ? AND id = ?", flowID, nodeID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) ReorderNodes(ctx context.Context, flowID string, ids []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "UPDATE flow_nodes SET seq = ? WHERE flow_id = ? AND id = ?")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, id := range ids {
		if _, err := stmt.ExecContext(ctx, i, flowID, id); err != nil {
			return fmt.Errorf("failed to reorder node %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListNodesByFlow(ctx context.Context, flowID string) ([]*graph.VisualNode, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, data FROM flow_nodes WHERE flow_id = ? ORDER BY seq", flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*graph.VisualNode
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		var n graph.VisualNode
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, fmt.Errorf("failed to decode node %s: %w", id, err)
		}
		nodes = append(nodes, &n)
	}
	return nodes, rows.Err()
}

const upsertEdgeSQL = `
	INSERT INTO flow_edges (flow_id, id, source, source_handle, target, target_handle, kind, seq)
	VALUES (?, ?, ?, ?, ?, ?, ?, COALESCE((SELECT MAX(seq) + 1 FROM flow_edges WHERE flow_id = ?), 0))
	ON CONFLICT(flow_id, id) DO UPDATE SET
		source=excluded.source,
		source_handle=excluded.source_handle,
		target=excluded.target,
		target_handle=excluded.target_handle,
		kind=excluded.kind
`

func (s *SQLiteStore) UpsertEdge(ctx context.Context, flowID string, edge graph.Edge) (string, error) {
	if edge.ID == "" {
		edge.ID = graph.EdgeID(edge.Source, edge.SourceHandle, edge.Target, edge.TargetHandle)
	}
	_, err := s.db.ExecContext(ctx, upsertEdgeSQL,
		flowID, edge.ID, edge.Source, edge.SourceHandle, edge.Target, edge.TargetHandle, string(edge.Kind), flowID)
	if err != nil {
		return "", err
	}
	return edge.ID, nil
}

func (s *SQLiteStore) RemoveEdge(ctx context.Context, flowID, edgeID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM flow_edges WHERE flow_id = ? AND id = ?", flowID, edgeID)
	return err
}

func (s *SQLiteStore) ListEdgesByFlow(ctx context.Context, flowID string) ([]graph.Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, source_handle, target, target_handle, kind
		FROM flow_edges WHERE flow_id = ? ORDER BY seq
	`, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	edges := []graph.Edge{}
	for rows.Next() {
		var e graph.Edge
		var kind string
		if err := rows.Scan(&e.ID, &e.Source, &e.SourceHandle, &e.Target, &e.TargetHandle, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		e.Kind = graph.EdgeKind(kind)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func (s *SQLiteStore) SaveGraph(ctx context.Context, flowID string, g *graph.Graph) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Snapshot semantics: the stored graph becomes exactly g.
	if _, err := tx.ExecContext(ctx, "DELETE FROM flow_edges WHERE flow_id = ?", flowID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM flow_nodes WHERE flow_id = ?", flowID); err != nil {
		return err
	}

	nodeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO flow_nodes (flow_id, id, kind, parent_id, x, y, seq, data) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer nodeStmt.Close()

	for i, n := range g.Nodes() {
		data, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("failed to encode node %s: %w", n.ID, err)
		}
		if _, err := nodeStmt.ExecContext(ctx, flowID, n.ID, string(n.Kind), n.ParentID, n.Position.X, n.Position.Y, i, data); err != nil {
			return err
		}
	}

	edgeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO flow_edges (flow_id, id, source, source_handle, target, target_handle, kind, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(flow_id, id) DO NOTHING
	`)
	if err != nil {
		return err
	}
	defer edgeStmt.Close()

	for i, e := range g.Edges {
		if _, err := edgeStmt.ExecContext(ctx, flowID, e.ID, e.Source, e.SourceHandle, e.Target, e.TargetHandle, string(e.Kind), i); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) LoadGraph(ctx context.Context, flowID string) (*graph.Graph, error) {
	nodes, err := s.ListNodesByFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}
	edges, err := s.ListEdgesByFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}

	g := graph.NewGraph()
	for _, n := range nodes {
		g.AddNode(n)
	}
	g.Edges = edges
	return g, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFlow(row rowScanner) (*Flow, error) {
	var f Flow
	var created, updated string
	if err := row.Scan(&f.ID, &f.Name, &f.Preview, &created, &updated); err != nil {
		return nil, err
	}
	f.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	f.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &f, nil
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}
