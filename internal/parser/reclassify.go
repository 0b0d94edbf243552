package parser

import (
	"clast/internal/ir"

	sitter "github.com/smacker/go-tree-sitter"
)

// reclassify turns a top-level "const <name> = <value>" back into the expression
// node the generator produced it from. It reports false when the declaration
// should stay a plain variable.
func (w *walker) reclassify(name string, value, decl *sitter.Node, marker *markerInfo) bool {
	var (
		kind ir.Kind
		id   string
		ok   bool
	)
	switch w.policy {
	case ReclassifyByPrefix:
		kind, id, ok = ir.ParseSynthesizedName(name)
	case ReclassifyByMarker:
		if marker != nil {
			kind, id, ok = marker.kind, marker.id, true
		}
	}
	if !ok {
		return false
	}
	if w.used[id] {
		id = w.idFor(decl)
	}

	expr := unwrap(value)
	if expr == nil {
		return false
	}

	switch kind {
	case ir.KindCall:
		if expr.Type() != "call_expression" {
			return false
		}
		w.callExpr(expr, id, "", decl)
	case ir.KindBinaryOp:
		if expr.Type() != "binary_expression" {
			return false
		}
		w.binaryExpr(expr, id, "", decl)
	case ir.KindPropertyAccess:
		if expr.Type() != "member_expression" {
			return false
		}
		w.memberExpr(expr, id, "", decl)
	case ir.KindConditional:
		if expr.Type() != "ternary_expression" {
			return false
		}
		w.ternaryExpr(expr, id, "", decl)
	case ir.KindLiteral:
		switch expr.Type() {
		case "string", "number", "true", "false":
		default:
			return false
		}
		w.literalExpr(expr, id, "", decl)
	case ir.KindObject:
		if expr.Type() != "object" {
			return false
		}
		w.objectExpr(expr, id, "", decl)
		if marker != nil {
			// A marked object keeps its declared name.
			last := &w.nodes[len(w.nodes)-1]
			attrs := last.Attrs.(ir.ObjectAttrs)
			if name != ir.SynthesizedName(ir.KindObject, id) {
				attrs.Name = name
			}
			last.Attrs = attrs
		}
	case ir.KindConsole:
		attrs, ok := w.consoleIIFE(expr)
		if !ok {
			return false
		}
		w.emit(id, "", decl, attrs)
	default:
		return false
	}
	return true
}

// consoleIIFE recognizes "(() => { console.log(X); return X; })()".
func (w *walker) consoleIIFE(call *sitter.Node) (ir.ConsoleAttrs, bool) {
	if call.Type() != "call_expression" {
		return ir.ConsoleAttrs{}, false
	}
	fn := unwrap(call.ChildByFieldName("function"))
	if fn == nil || fn.Type() != "arrow_function" {
		return ir.ConsoleAttrs{}, false
	}
	body := fn.ChildByFieldName("body")
	if body == nil || body.Type() != "statement_block" {
		return ir.ConsoleAttrs{}, false
	}

	var logCall *sitter.Node
	for i := 0; i < int(body.NamedChildCount()); i++ {
		s := body.NamedChild(i)
		if s.Type() != "expression_statement" {
			continue
		}
		c := firstNamedChild(s)
		if c != nil && c.Type() == "call_expression" && w.text(c.ChildByFieldName("function")) == "console.log" {
			logCall = c
			break
		}
	}
	if logCall == nil {
		return ir.ConsoleAttrs{}, false
	}

	var args []*sitter.Node
	if list := logCall.ChildByFieldName("arguments"); list != nil {
		for i := 0; i < int(list.NamedChildCount()); i++ {
			if a := list.NamedChild(i); a.Type() != "comment" {
				args = append(args, a)
			}
		}
	}

	attrs := ir.ConsoleAttrs{}
	switch {
	case len(args) >= 2 && args[0].Type() == "string":
		attrs.Label = ir.UnquoteString(w.text(args[0]))
		attrs.ValueExpr = w.text(args[1])
	case len(args) == 1:
		attrs.ValueExpr = w.text(args[0])
	}
	if attrs.ValueExpr == "undefined" {
		attrs.ValueExpr = ""
	}
	return attrs, true
}
