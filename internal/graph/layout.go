package graph

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/nikolaydubina/go-graph-layout/layout"
)

// Layouter computes positions for the nodes of a graph.
type Layouter interface {
	Layout(ctx context.Context, g *Graph) (map[string]Position, error)
}

type Direction string

const (
	TopToBottom Direction = "TB"
	LeftToRight Direction = "LR"
)

// LayeredLayout places top-level nodes with a Sugiyama layered layout over
// dataflow and reference edges: ranks follow longest paths, layers are
// reordered to cut crossings, and Brandes-Köpf assigns the cross coordinate.
// Ranks run down (TB) or across (LR). Child positions are relative to their
// parent and stacked inside it.
type LayeredLayout struct {
	Direction  Direction
	NodeWidth  float64
	NodeHeight float64
	RankSep    float64
	NodeSep    float64
	// Sweeps is the number of crossing-reduction passes over the layers.
	Sweeps int
}

func NewLayeredLayout(direction Direction) *LayeredLayout {
	return &LayeredLayout{
		Direction:  direction,
		NodeWidth:  DefaultNodeWidth,
		NodeHeight: DefaultNodeHeight,
		RankSep:    80,
		NodeSep:    40,
		Sweeps:     8,
	}
}

func (l *LayeredLayout) Layout(ctx context.Context, g *Graph) (map[string]Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.Direction != TopToBottom && l.Direction != LeftToRight {
		return nil, fmt.Errorf("unsupported layout direction: %q", l.Direction)
	}

	SizeContainers(g, l.NodeWidth, l.NodeHeight)

	var top []*VisualNode
	for _, n := range g.Nodes() {
		if _, ok := g.Node(n.ParentID); !ok {
			top = append(top, n)
		}
	}

	positions := make(map[string]Position, g.Len())
	if len(top) > 0 {
		if err := l.placeTop(g, top, positions); err != nil {
			return nil, err
		}
	}
	l.stackChildren(g, top, positions)
	return positions, nil
}

// placeTop runs the layered layout over the top-level nodes. Ids handed to the
// layout engine put unconnected nodes first: it numbers its dummy nodes after
// the largest edge endpoint.
func (l *LayeredLayout) placeTop(g *Graph, top []*VisualNode, positions map[string]Position) (err error) {
	deps := acyclic(top, l.dependencies(g))

	connected := make(map[string]bool)
	for _, d := range deps {
		connected[d[0]], connected[d[1]] = true, true
	}
	ids := make(map[string]uint64, len(top))
	nodes := make([]*VisualNode, 0, len(top))
	for _, pass := range []bool{false, true} {
		for _, n := range top {
			if connected[n.ID] == pass {
				ids[n.ID] = uint64(len(nodes))
				nodes = append(nodes, n)
			}
		}
	}
	order := make(map[uint64]int, len(top))
	for i, n := range top {
		order[ids[n.ID]] = i
	}

	lay := layout.Graph{
		Nodes: make(map[uint64]layout.Node, len(nodes)),
		Edges: make(map[[2]uint64]layout.Edge, len(deps)),
	}
	cross := 0.0
	for i, n := range nodes {
		w, h := l.extent(n)
		lay.Nodes[uint64(i)] = layout.Node{W: int(w), H: int(h)}
		if w > cross {
			cross = w
		}
	}
	for _, d := range deps {
		lay.Edges[[2]uint64{ids[d[0]], ids[d[1]]}] = layout.Edge{}
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("layered layout failed: %v", r)
		}
	}()
	sep := int(cross + l.NodeSep)
	layout.SugiyamaLayersStrategyGraphLayout{
		CycleRemover:                       layout.NewSimpleCycleRemover(),
		LevelsAssigner:                     layout.NewLayeredGraph,
		OrderingAssigner:                   l.orderLayers(order),
		NodesHorizontalCoordinatesAssigner: layout.BrandesKopfLayersNodesHorizontalAssigner{Delta: sep},
		NodesVerticalCoordinatesAssigner: layout.BasicNodesVerticalCoordinatesAssigner{
			MarginLayers:   int(l.RankSep),
			FakeNodeHeight: int(l.NodeHeight),
		},
		EdgePathAssigner: layout.StraightEdgePathAssigner{}.UpdateGraphLayout,
	}.UpdateGraphLayout(lay)

	spread(lay, sep)

	minX, minY := math.MaxInt, math.MaxInt
	for _, n := range lay.Nodes {
		minX, minY = min(minX, n.XY[0]), min(minY, n.XY[1])
	}
	for i, n := range nodes {
		xy := lay.Nodes[uint64(i)].XY
		x, y := float64(xy[0]-minX), float64(xy[1]-minY)
		if l.Direction == LeftToRight {
			x, y = y, x
		}
		positions[n.ID] = Position{X: x, Y: y}
	}
	return nil
}

// extent is the node size along the cross axis and the rank axis.
func (l *LayeredLayout) extent(n *VisualNode) (cross, rank float64) {
	if l.Direction == LeftToRight {
		return n.Height, n.Width
	}
	return n.Width, n.Height
}

// dependencies lifts every non-contains edge onto the top-level nodes at its
// ends. Self loops and duplicates are dropped.
func (l *LayeredLayout) dependencies(g *Graph) [][2]string {
	root := func(id string) string {
		seen := make(map[string]bool)
		for {
			n, ok := g.Node(id)
			if !ok || seen[id] {
				return id
			}
			seen[id] = true
			if _, hasParent := g.Node(n.ParentID); !hasParent {
				return id
			}
			id = n.ParentID
		}
	}

	seen := make(map[[2]string]bool)
	var deps [][2]string
	for _, e := range g.Edges {
		if e.Kind == EdgeContains {
			continue
		}
		d := [2]string{root(e.Source), root(e.Target)}
		if d[0] == d[1] || seen[d] {
			continue
		}
		if _, ok := g.Node(d[0]); !ok {
			continue
		}
		if _, ok := g.Node(d[1]); !ok {
			continue
		}
		seen[d] = true
		deps = append(deps, d)
	}
	return deps
}

// acyclic drops the edges that close a cycle, walking depth-first from the
// nodes in graph order.
func acyclic(top []*VisualNode, deps [][2]string) [][2]string {
	out := make(map[string][]int)
	for i, d := range deps {
		out[d[0]] = append(out[d[0]], i)
	}

	const (
		unvisited = iota
		active
		done
	)
	state := make(map[string]int, len(top))
	back := make(map[int]bool)
	var visit func(id string)
	visit = func(id string) {
		state[id] = active
		for _, i := range out[id] {
			switch state[deps[i][1]] {
			case unvisited:
				visit(deps[i][1])
			case active:
				back[i] = true
			}
		}
		state[id] = done
	}
	for _, n := range top {
		if state[n.ID] == unvisited {
			visit(n.ID)
		}
	}

	kept := deps[:0:0]
	for i, d := range deps {
		if !back[i] {
			kept = append(kept, d)
		}
	}
	return kept
}

// orderLayers seeds each layer with graph order, then sweeps median and
// transpose passes up and down, keeping the ordering with the fewest crossings.
func (l *LayeredLayout) orderLayers(order map[uint64]int) func(layout.Graph, layout.LayeredGraph) {
	return func(_ layout.Graph, lg layout.LayeredGraph) {
		layers := lg.Layers()
		for _, layer := range layers {
			sort.SliceStable(layer, func(i, j int) bool { return seedRank(order, layer[i]) < seedRank(order, layer[j]) })
		}

		opt := layout.CompositeLayerOrderingOptimizer{Optimizers: []layout.LayerOrderingOptimizer{
			layout.WMedianOrderingOptimizer{},
			layout.SwitchAdjacentOrderingOptimizer{},
		}}
		best := cloneLayers(layers)
		bestCrossings := crossings(lg.Segments, layers)
		for sweep := 0; sweep < l.Sweeps && bestCrossings > 0; sweep++ {
			downUp := sweep%2 == 0
			for i := range layers {
				y := i
				if downUp {
					y = len(layers) - 1 - i
				}
				opt.Optimize(lg.Segments, layers, y, downUp)
			}
			if c := crossings(lg.Segments, layers); c < bestCrossings {
				best, bestCrossings = cloneLayers(layers), c
			}
		}

		for y, layer := range best {
			for x, n := range layer {
				lg.NodeYX[n] = [2]int{y, x}
			}
		}
	}
}

// seedRank puts dummy nodes after the real nodes of their layer.
func seedRank(order map[uint64]int, n uint64) int {
	if r, ok := order[n]; ok {
		return r
	}
	return len(order) + int(n)
}

func cloneLayers(layers [][]uint64) [][]uint64 {
	out := make([][]uint64, len(layers))
	for i, layer := range layers {
		out[i] = append([]uint64(nil), layer...)
	}
	return out
}

// crossings counts segment crossings between adjacent layers.
func crossings(segments map[[2]uint64]bool, layers [][]uint64) int {
	total := 0
	for y := 0; y+1 < len(layers); y++ {
		upper := make(map[uint64]int, len(layers[y]))
		for x, n := range layers[y] {
			upper[n] = x
		}
		lower := make(map[uint64]int, len(layers[y+1]))
		for x, n := range layers[y+1] {
			lower[n] = x
		}
		var spans [][2]int
		for s := range segments {
			if a, ok := upper[s[0]]; ok {
				if b, ok := lower[s[1]]; ok {
					spans = append(spans, [2]int{a, b})
				}
			}
		}
		for i := range spans {
			for j := i + 1; j < len(spans); j++ {
				if (spans[i][0]-spans[j][0])*(spans[i][1]-spans[j][1]) < 0 {
					total++
				}
			}
		}
	}
	return total
}

// spread top-aligns the nodes of each rank, which the engine centers, then
// pushes them apart until corners are at least sep apart along the cross axis.
func spread(lay layout.Graph, sep int) {
	byRank := make(map[int][]uint64)
	for id, n := range lay.Nodes {
		center := n.XY[1] + n.H/2
		byRank[center] = append(byRank[center], id)
	}
	for _, ids := range byRank {
		sort.Slice(ids, func(i, j int) bool {
			a, b := lay.Nodes[ids[i]].XY[0], lay.Nodes[ids[j]].XY[0]
			if a != b {
				return a < b
			}
			return ids[i] < ids[j]
		})
		top := math.MaxInt
		for _, id := range ids {
			top = min(top, lay.Nodes[id].XY[1])
		}
		for i, id := range ids {
			n := lay.Nodes[id]
			n.XY[1] = top
			if i > 0 {
				n.XY[0] = max(n.XY[0], lay.Nodes[ids[i-1]].XY[0]+sep)
			}
			lay.Nodes[id] = n
		}
	}
}

func (l *LayeredLayout) stackChildren(g *Graph, parents []*VisualNode, positions map[string]Position) {
	visited := make(map[string]bool)
	var stack func(parent *VisualNode)
	stack = func(parent *VisualNode) {
		if visited[parent.ID] {
			return
		}
		visited[parent.ID] = true
		y := float64(containerHeader)
		for _, c := range g.Children(parent.ID) {
			positions[c.ID] = Position{X: containerPadding, Y: y}
			y += c.Height + containerGap
			stack(c)
		}
	}
	for _, p := range parents {
		stack(p)
	}
}

// Apply sets the node positions found in positions.
func Apply(g *Graph, positions map[string]Position) {
	for id, p := range positions {
		if n, ok := g.Node(id); ok {
			n.Position = p
		}
	}
}
