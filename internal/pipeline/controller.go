package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"clast/internal/diagnostics"
	"clast/internal/generator"
	"clast/internal/graph"
	"clast/internal/ir"
	"clast/internal/parser"
)

// SyncDirection tells which side of the document is currently authoritative.
type SyncDirection int

const (
	Idle SyncDirection = iota
	ApplyingTextChange
	ApplyingGraphChange
)

func (d SyncDirection) String() string {
	switch d {
	case ApplyingTextChange:
		return "applying_text_change"
	case ApplyingGraphChange:
		return "applying_graph_change"
	default:
		return "idle"
	}
}

func (d SyncDirection) opposite() SyncDirection {
	switch d {
	case ApplyingTextChange:
		return ApplyingGraphChange
	case ApplyingGraphChange:
		return ApplyingTextChange
	}
	return Idle
}

const DefaultCollaboratorTimeout = 2 * time.Second

var ErrNoPersistence = errors.New("no persistence configured")

// Result describes what one synchronization pass did.
type Result struct {
	// Suppressed is set when the call arrived while the opposite direction was
	// being applied and was ignored.
	Suppressed bool `json:"suppressed,omitempty"`
	// Changed reports whether the text or the graph changed.
	Changed bool   `json:"changed"`
	Text    string `json:"text"`

	Report  graph.MergeReport    `json:"report"`
	NodeID  string               `json:"nodeId,omitempty"`
	Edge    *graph.Edge          `json:"edge,omitempty"`
	Connect *graph.ConnectResult `json:"connect,omitempty"`

	Diagnostics []diagnostics.Diagnostic `json:"diagnostics,omitempty"`
}

// Event is delivered to listeners after a pass that changed something.
// Graph is a snapshot and may be kept by the listener.
type Event struct {
	Direction SyncDirection
	Text      string
	Graph     *graph.Graph
	Result    Result
}

type Listener func(Event)

// Renderer turns IR nodes into source text plus per-node output ranges.
// *generator.Generator implements it.
type Renderer interface {
	GenerateMapped(nodes []ir.Node) (string, map[string]ir.SourceRange)
}

// Controller owns the current text and graph of one flow and keeps them in sync.
type Controller struct {
	mu sync.Mutex

	flowID  string
	parser  *parser.Parser
	gen     Renderer
	layout  graph.Layouter
	checker diagnostics.Checker
	store   Persistence
	timeout time.Duration

	text      string
	graph     *graph.Graph
	diags     []diagnostics.Diagnostic
	notices   *noticeLog
	listeners []Listener

	direction SyncDirection
	passes    int
}

type Option func(*Controller)

// WithPersistence mirrors every change of the flow into store.
func WithPersistence(store Persistence, flowID string) Option {
	return func(c *Controller) {
		c.store = store
		c.flowID = flowID
	}
}

func WithLayouter(l graph.Layouter) Option {
	return func(c *Controller) {
		c.layout = l
	}
}

// WithChecker replaces the default syntax checker. A nil checker disables diagnostics.
func WithChecker(ch diagnostics.Checker) Option {
	return func(c *Controller) {
		c.checker = ch
	}
}

func WithGenerator(g Renderer) Option {
	return func(c *Controller) {
		c.gen = g
	}
}

// WithCollaboratorTimeout bounds every persistence, layout and diagnostics call.
func WithCollaboratorTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.timeout = d
	}
}

// New creates a controller with an empty document.
func New(p *parser.Parser, opts ...Option) *Controller {
	c := &Controller{
		parser:  p,
		gen:     generator.New(generator.Options{}),
		layout:  graph.NewLayeredLayout(graph.TopToBottom),
		checker: diagnostics.NewSyntaxChecker(p),
		timeout: DefaultCollaboratorTimeout,
		graph:   graph.NewGraph(),
		notices: newNoticeLog(defaultNoticeLimit),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers l for change events. Listeners run without the
// controller lock held, so they may call back into the controller; calls for
// the opposite direction made from a listener are suppressed.
func (c *Controller) Subscribe(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

func (c *Controller) FlowID() string {
	return c.flowID
}

func (c *Controller) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// Graph returns a snapshot of the current graph.
func (c *Controller) Graph() *graph.Graph {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.graph.Clone()
}

func (c *Controller) Direction() SyncDirection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.direction
}

// Diagnostics returns the diagnostics of the current text.
func (c *Controller) Diagnostics() []diagnostics.Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]diagnostics.Diagnostic(nil), c.diags...)
}

// Notices returns the recent user-visible notices, oldest first.
func (c *Controller) Notices() []Notice {
	return c.notices.list()
}

// ApplyText handles an edit of the text view.
func (c *Controller) ApplyText(ctx context.Context, text string) (Result, error) {
	c.mu.Lock()
	if !c.enter(ApplyingTextChange) {
		c.mu.Unlock()
		return Result{Suppressed: true}, nil
	}
	if text == c.text {
		res := Result{Text: text}
		c.leaveLocked()
		c.mu.Unlock()
		return res, nil
	}

	res, err := c.applyText(ctx, text)
	listeners, ev := c.eventLocked(ApplyingTextChange, res, err)
	c.mu.Unlock()

	c.notify(listeners, ev)
	c.leave()
	return res, err
}

func (c *Controller) applyText(ctx context.Context, text string) (Result, error) {
	start := time.Now()
	nodes, err := c.parser.Parse(ctx, text)
	// The text view keeps what the user typed even when it does not parse.
	c.text = text
	if err != nil {
		c.notices.add(NoticeParseError, "parser", err.Error())
		log.Printf("sync text parse_failed flow=%s err=%v", c.flowID, err)
		return Result{Text: text}, err
	}

	positions := c.layoutStage(ctx, graph.FromIR(nodes))
	merged, report := graph.Reconcile(c.graph, nodes, positions)

	diags := c.diagnosticsStage(ctx, text)
	c.diags = diags
	attachDiagnostics(merged, diagnostics.Locate(diags, nodes))

	c.persistStage(ctx, c.graph, merged, text)
	c.graph = merged

	log.Printf("sync text applied flow=%s nodes=%d added=%d updated=%d removed=%d took=%v",
		c.flowID, merged.Len(), len(report.Added), len(report.Updated), len(report.Removed), time.Since(start))
	return Result{Changed: true, Text: text, Report: report, Diagnostics: diags}, nil
}

// ApplyGraphEdit applies a canvas edit and regenerates the text view.
func (c *Controller) ApplyGraphEdit(ctx context.Context, edit Edit) (Result, error) {
	if edit == nil {
		return Result{}, errors.New("nil edit")
	}

	c.mu.Lock()
	if !c.enter(ApplyingGraphChange) {
		c.mu.Unlock()
		return Result{Suppressed: true}, nil
	}

	res, err := c.applyGraphEdit(ctx, edit)
	listeners, ev := c.eventLocked(ApplyingGraphChange, res, err)
	c.mu.Unlock()

	c.notify(listeners, ev)
	c.leave()
	return res, err
}

func (c *Controller) applyGraphEdit(ctx context.Context, edit Edit) (Result, error) {
	next := c.graph.Clone()
	outcome, err := edit.apply(next)
	if err != nil {
		return Result{Text: c.text}, err
	}
	next.LinkRelations()
	graph.SizeContainers(next, graph.DefaultNodeWidth, graph.DefaultNodeHeight)

	res := Result{NodeID: outcome.nodeID, Edge: outcome.edge, Connect: outcome.connect, Changed: true}

	nodes := graph.ToIR(next)
	text, ranges, genErr := c.generate(nodes)
	if genErr != nil {
		c.notices.add(NoticeGenerationFailure, "generator", genErr.Error())
		log.Printf("sync graph generation_failed flow=%s err=%v", c.flowID, genErr)
		text = c.text
	} else {
		diags := c.diagnosticsStage(ctx, text)
		c.diags = diags
		attachDiagnostics(next, diagnostics.LocateRanges(diags, ranges))
		res.Diagnostics = diags
	}

	c.persistStage(ctx, c.graph, next, text)
	c.graph = next
	c.text = text
	res.Text = text
	return res, nil
}

// Load replaces the document with the flow stored in persistence and
// regenerates the text from it.
func (c *Controller) Load(ctx context.Context) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		return Result{}, ErrNoPersistence
	}
	if c.direction != Idle {
		return Result{Suppressed: true}, nil
	}

	nodes, err := c.store.ListNodesByFlow(ctx, c.flowID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load nodes: %w", err)
	}
	edges, err := c.store.ListEdgesByFlow(ctx, c.flowID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load edges: %w", err)
	}

	g := graph.NewGraph()
	for _, n := range nodes {
		g.AddNode(n)
	}
	for _, e := range edges {
		g.AddEdge(e)
	}

	text, _, err := c.generate(graph.ToIR(g))
	if err != nil {
		return Result{}, err
	}
	c.graph = g
	c.text = text
	c.diags = nil
	log.Printf("sync load flow=%s nodes=%d edges=%d", c.flowID, g.Len(), len(g.Edges))
	return Result{Changed: true, Text: text}, nil
}

// generate renders nodes. A panic inside the generator is turned into an error.
func (c *Controller) generate(nodes []ir.Node) (text string, ranges map[string]ir.SourceRange, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generator panic: %v", r)
		}
	}()
	text, ranges = c.gen.GenerateMapped(nodes)
	return text, ranges, nil
}

// enter marks the start of a pass in direction d. It reports false when the
// opposite direction is in progress.
func (c *Controller) enter(d SyncDirection) bool {
	if c.direction == d.opposite() && c.passes > 0 {
		return false
	}
	c.direction = d
	c.passes++
	return true
}

func (c *Controller) leave() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leaveLocked()
}

func (c *Controller) leaveLocked() {
	c.passes--
	if c.passes <= 0 {
		c.passes = 0
		c.direction = Idle
	}
}

func (c *Controller) eventLocked(d SyncDirection, res Result, err error) ([]Listener, Event) {
	if err != nil || !res.Changed || len(c.listeners) == 0 {
		return nil, Event{}
	}
	listeners := append([]Listener(nil), c.listeners...)
	return listeners, Event{Direction: d, Text: c.text, Graph: c.graph.Clone(), Result: res}
}

func (c *Controller) notify(listeners []Listener, ev Event) {
	for _, l := range listeners {
		l(ev)
	}
}

func attachDiagnostics(g *graph.Graph, located map[string][]diagnostics.Diagnostic) {
	for _, n := range g.Nodes() {
		n.Diagnostics = nil
		for _, d := range located[n.ID] {
			n.Diagnostics = append(n.Diagnostics, d.Message)
		}
	}
}
