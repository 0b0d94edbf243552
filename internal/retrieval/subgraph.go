package retrieval

import (
	"sort"
	"strings"

	"clast/internal/graph"
)

// Config controls how neighborhood subgraphs are extracted.
type Config struct {
	MaxHops int
	// Decay is the score multiplier applied per hop. Zero means 0.5.
	Decay        float64
	AllowedKinds map[graph.EdgeKind]bool
}

func DefaultConfig() Config {
	return Config{
		MaxHops: 2,
		Decay:   0.5,
	}
}

// Subgraph is the set of nodes reachable from the seeds within MaxHops,
// ignoring edge direction.
type Subgraph struct {
	MaxHops    int                `json:"maxHops"`
	SeedIDs    []string           `json:"seedIds"`
	NodeIDs    []string           `json:"nodeIds"`
	NodeScores map[string]float64 `json:"nodeScores"`
	Edges      []graph.Edge       `json:"edges"`
}

// Extract walks g breadth-first from seedIDs. Seeds that are not in g are dropped.
func Extract(g *graph.Graph, seedIDs []string, cfg Config) *Subgraph {
	if cfg.MaxHops < 0 {
		cfg.MaxHops = 0
	}
	if cfg.Decay <= 0 || cfg.Decay > 1 {
		cfg.Decay = 0.5
	}
	sg := &Subgraph{MaxHops: cfg.MaxHops, SeedIDs: []string{}, NodeIDs: []string{}, NodeScores: map[string]float64{}, Edges: []graph.Edge{}}
	if g == nil {
		return sg
	}

	seen := make(map[string]bool)
	for _, id := range seedIDs {
		if _, ok := g.Node(id); ok && !seen[id] {
			seen[id] = true
			sg.SeedIDs = append(sg.SeedIDs, id)
		}
	}
	sort.Strings(sg.SeedIDs)
	if len(sg.SeedIDs) == 0 {
		return sg
	}

	adj := make(map[string][]edgeHop)
	for _, e := range g.Edges {
		if len(cfg.AllowedKinds) > 0 && !cfg.AllowedKinds[e.Kind] {
			continue
		}
		adj[e.Source] = append(adj[e.Source], edgeHop{to: e.Target, edge: e})
		adj[e.Target] = append(adj[e.Target], edgeHop{to: e.Source, edge: e})
	}

	depth := make(map[string]int, len(sg.SeedIDs))
	queue := make([]string, 0, len(sg.SeedIDs))
	for _, id := range sg.SeedIDs {
		depth[id] = 0
		sg.NodeScores[id] = 1.0
		queue = append(queue, id)
	}

	edgeSeen := make(map[string]bool)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if depth[cur] >= cfg.MaxHops {
			continue
		}
		for _, next := range adj[cur] {
			if !edgeSeen[next.edge.ID] {
				edgeSeen[next.edge.ID] = true
				sg.Edges = append(sg.Edges, next.edge)
			}
			if score := sg.NodeScores[cur] * cfg.Decay; score > sg.NodeScores[next.to] {
				sg.NodeScores[next.to] = score
			}
			if _, visited := depth[next.to]; !visited {
				depth[next.to] = depth[cur] + 1
				queue = append(queue, next.to)
			}
		}
	}

	for id := range depth {
		sg.NodeIDs = append(sg.NodeIDs, id)
	}
	sort.Strings(sg.NodeIDs)
	sort.Slice(sg.Edges, func(i, j int) bool { return sg.Edges[i].ID < sg.Edges[j].ID })

	return sg
}

type edgeHop struct {
	to   string
	edge graph.Edge
}

// SeedsForLines returns the nodes whose source range, measured against text,
// covers any of the 1-based line numbers. Nodes without a range never match.
func SeedsForLines(g *graph.Graph, text string, lines []int) []string {
	if g == nil || len(lines) == 0 {
		return nil
	}
	starts := lineStarts(text)

	var out []string
	for _, n := range g.Nodes() {
		if n.Range == nil {
			continue
		}
		first, last := lineOf(starts, n.Range.Start), lineOf(starts, max(n.Range.End-1, n.Range.Start))
		for _, l := range lines {
			if l >= first && l <= last {
				out = append(out, n.ID)
				break
			}
		}
	}
	return out
}

func lineStarts(text string) []int {
	starts := []int{0}
	for i := strings.IndexByte(text, '\n'); i >= 0; {
		starts = append(starts, starts[len(starts)-1]+i+1)
		rest := text[starts[len(starts)-1]:]
		i = strings.IndexByte(rest, '\n')
	}
	return starts
}

// lineOf maps a byte offset onto its 1-based line.
func lineOf(starts []int, offset int) int {
	return sort.Search(len(starts), func(i int) bool { return starts[i] > offset })
}
