package parser

import (
	"context"
	"fmt"
	"log"
	"strings"

	"clast/internal/ir"

	sitter "github.com/smacker/go-tree-sitter"
)

// Parser converts TypeScript source text into IR nodes.
// It holds no per-parse state and is safe for concurrent use.
type Parser struct {
	grammar LanguageGrammar
	policy  Policy
	debug   *log.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithPolicy sets the generated-name reclassification policy.
func WithPolicy(p Policy) Option {
	return func(ps *Parser) {
		ps.policy = p
	}
}

// WithDebugLog reports recognition gaps to logger.
func WithDebugLog(logger *log.Logger) Option {
	return func(ps *Parser) {
		ps.debug = logger
	}
}

// New creates a parser for lang ("typescript" or "tsx").
func New(lang string, opts ...Option) (*Parser, error) {
	grammar, err := grammarFor(lang)
	if err != nil {
		return nil, err
	}
	p := &Parser{grammar: grammar, policy: ReclassifyByPrefix}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Language returns the grammar name.
func (p *Parser) Language() string {
	return p.grammar.Name()
}

// Policy reports how generated names are reclassified.
func (p *Parser) Policy() Policy {
	return p.policy
}

// Parse converts text into a flat node list. It returns a *ParseError when a
// syntax error cannot be confined to a construct the parser skips anyway.
func (p *Parser) Parse(ctx context.Context, text string) ([]ir.Node, error) {
	source := []byte(text)
	tree, err := p.tree(ctx, source)
	if err != nil {
		return nil, err
	}

	w := &walker{
		src:    source,
		used:   make(map[string]bool),
		policy: p.policy,
		debug:  p.debug,
	}

	root := tree.RootNode()
	var marker *markerInfo
	for i := 0; i < int(root.NamedChildCount()); i++ {
		stmt := root.NamedChild(i)
		if stmt.Type() == "comment" {
			marker = parseMarker(stmt, source)
			continue
		}

		if stmt.Type() == "ERROR" || stmt.IsMissing() {
			return nil, syntaxErrorAt(firstError(stmt), source)
		}
		if stmt.HasError() {
			if isRecognizedStatement(stmt) {
				return nil, syntaxErrorAt(firstError(stmt), source)
			}
			w.gap(stmt, "syntax error inside unrecognized statement")
			marker = nil
			continue
		}

		w.statement(stmt, marker)
		marker = nil
	}

	return w.nodes, nil
}

// SyntaxErrors lists every ERROR and MISSING node in text.
func (p *Parser) SyntaxErrors(ctx context.Context, text string) ([]SyntaxError, error) {
	source := []byte(text)
	tree, err := p.tree(ctx, source)
	if err != nil {
		return nil, err
	}

	var out []SyntaxError
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		if n.Type() == "ERROR" || n.IsMissing() {
			pe := syntaxErrorAt(n, source)
			out = append(out, SyntaxError{Offset: pe.Offset, End: int(n.EndByte()), Message: pe.Message})
			return
		}
		if !n.HasError() {
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			visit(n.Child(i))
		}
	}
	visit(tree.RootNode())
	return out, nil
}

func (p *Parser) tree(ctx context.Context, source []byte) (*sitter.Tree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sp := sitter.NewParser()
	sp.SetLanguage(p.grammar.GetLanguage())
	tree, err := sp.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s source: %w", p.grammar.Name(), err)
	}
	return tree, nil
}

func isRecognizedStatement(n *sitter.Node) bool {
	switch n.Type() {
	case "interface_declaration", "function_declaration", "lexical_declaration",
		"variable_declaration", "import_statement", "export_statement":
		return true
	}
	return false
}

// firstError finds the first ERROR or MISSING node beneath n in document order.
func firstError(n *sitter.Node) *sitter.Node {
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child.HasError() || child.IsMissing() || child.Type() == "ERROR" {
			return firstError(child)
		}
	}
	return n
}

func syntaxErrorAt(n *sitter.Node, source []byte) *ParseError {
	if n.IsMissing() {
		return &ParseError{Message: fmt.Sprintf("missing %q", n.Type()), Offset: int(n.StartByte())}
	}
	snippet := strings.TrimSpace(n.Content(source))
	if len(snippet) > 40 {
		snippet = snippet[:40] + "..."
	}
	return &ParseError{Message: fmt.Sprintf("unexpected %q", snippet), Offset: int(n.StartByte())}
}
