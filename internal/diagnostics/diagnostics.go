package diagnostics

import (
	"context"
	"sort"

	"clast/internal/ir"
	"clast/internal/parser"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is a problem reported at a byte offset of the source text.
type Diagnostic struct {
	StartOffset int      `json:"startOffset"`
	EndOffset   int      `json:"endOffset,omitempty"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
}

// Checker produces diagnostics for a source text.
type Checker interface {
	Check(ctx context.Context, text string) ([]Diagnostic, error)
}

// SyntaxChecker reports every syntax error the grammar finds.
type SyntaxChecker struct {
	parser *parser.Parser
}

func NewSyntaxChecker(p *parser.Parser) *SyntaxChecker {
	return &SyntaxChecker{parser: p}
}

func (c *SyntaxChecker) Check(ctx context.Context, text string) ([]Diagnostic, error) {
	errs, err := c.parser.SyntaxErrors(ctx, text)
	if err != nil {
		return nil, err
	}
	out := make([]Diagnostic, 0, len(errs))
	for _, e := range errs {
		out = append(out, Diagnostic{
			StartOffset: e.Offset,
			EndOffset:   e.End,
			Message:     e.Message,
			Severity:    SeverityError,
		})
	}
	return out, nil
}

// Locate attaches each diagnostic to the node whose source range contains its
// offset. The first matching node in list order wins; diagnostics outside every
// range are returned under the empty id.
func Locate(diags []Diagnostic, nodes []ir.Node) map[string][]Diagnostic {
	out := make(map[string][]Diagnostic)
	for _, d := range diags {
		owner := ""
		for _, n := range nodes {
			if n.Range != nil && n.Range.Contains(d.StartOffset) {
				owner = n.ID
				break
			}
		}
		out[owner] = append(out[owner], d)
	}
	return out
}

// LocateRanges is Locate over a generator source map.
func LocateRanges(diags []Diagnostic, ranges map[string]ir.SourceRange) map[string][]Diagnostic {
	ids := make([]string, 0, len(ranges))
	for id := range ranges {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if ranges[ids[i]].Start != ranges[ids[j]].Start {
			return ranges[ids[i]].Start < ranges[ids[j]].Start
		}
		return ids[i] < ids[j]
	})

	nodes := make([]ir.Node, 0, len(ids))
	for _, id := range ids {
		r := ranges[id]
		nodes = append(nodes, ir.Node{ID: id, Range: &r})
	}
	return Locate(diags, nodes)
}
