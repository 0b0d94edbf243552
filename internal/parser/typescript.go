package parser

import (
	"log"
	"strings"

	"clast/internal/ir"

	sitter "github.com/smacker/go-tree-sitter"
)

type walker struct {
	src    []byte
	nodes  []ir.Node
	used   map[string]bool
	policy Policy
	debug  *log.Logger
}

type markerInfo struct {
	kind ir.Kind
	id   string
}

func parseMarker(comment *sitter.Node, source []byte) *markerInfo {
	kind, id, ok := ir.ParseMarker(comment.Content(source))
	if !ok {
		return nil
	}
	return &markerInfo{kind: kind, id: id}
}

func (w *walker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(w.src)
}

func (w *walker) idFor(n *sitter.Node) string {
	return ir.BuildNodeID(n.Type(), int(n.StartByte()), int(n.EndByte()))
}

func rangeOf(n *sitter.Node) *ir.SourceRange {
	return &ir.SourceRange{Start: int(n.StartByte()), End: int(n.EndByte())}
}

func (w *walker) emit(id, parentID string, span *sitter.Node, attrs ir.Attributes) string {
	w.used[id] = true
	w.nodes = append(w.nodes, ir.Node{
		ID:       id,
		ParentID: parentID,
		Range:    rangeOf(span),
		Attrs:    attrs,
	})
	return id
}

func (w *walker) gap(n *sitter.Node, reason string) {
	if w.debug == nil {
		return
	}
	w.debug.Printf("parser recognition_gap type=%s offset=%d reason=%q", n.Type(), n.StartByte(), reason)
}

func (w *walker) statement(stmt *sitter.Node, marker *markerInfo) {
	switch stmt.Type() {
	case "interface_declaration":
		w.interfaceDecl(stmt)
	case "function_declaration":
		w.functionDecl(stmt)
	case "lexical_declaration", "variable_declaration":
		w.variableDecl(stmt, "", marker)
	case "import_statement":
		w.importStmt(stmt)
	case "export_statement":
		w.exportStmt(stmt, marker)
	default:
		w.gap(stmt, "unsupported top-level statement")
	}
}

// Declarations

func (w *walker) interfaceDecl(n *sitter.Node) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		w.gap(n, "interface without name")
		return
	}

	body := n.ChildByFieldName("body")
	if body == nil {
		body = namedChildOfType(n, "object_type", "interface_body")
	}

	members := []ir.Member{}
	if body != nil {
		for i := 0; i < int(body.NamedChildCount()); i++ {
			m := body.NamedChild(i)
			if m.Type() != "property_signature" {
				if m.Type() != "comment" {
					w.gap(m, "unsupported interface member")
				}
				continue
			}
			memberName := m.ChildByFieldName("name")
			if memberName == nil {
				continue
			}
			memberType := typeAnnotation(m.ChildByFieldName("type"), w.src)
			if memberType == "" {
				memberType = "any"
			}
			members = append(members, ir.Member{Name: w.text(memberName), Type: memberType})
		}
	}

	w.emit(w.idFor(n), "", n, ir.InterfaceAttrs{Name: w.text(nameNode), Members: members})
}

func (w *walker) functionDecl(n *sitter.Node) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		w.gap(n, "anonymous function declaration")
		return
	}

	attrs := ir.FunctionAttrs{
		Name:       w.text(nameNode),
		Params:     w.params(n.ChildByFieldName("parameters")),
		ReturnType: typeAnnotation(n.ChildByFieldName("return_type"), w.src),
		Async:      hasChildOfType(n, "async"),
	}

	body := n.ChildByFieldName("body")
	var statements []*sitter.Node
	if body != nil {
		for i := 0; i < int(body.NamedChildCount()); i++ {
			if s := body.NamedChild(i); s.Type() != "comment" {
				statements = append(statements, s)
			}
		}
		// Everything between the braces, comments included.
		if start, end := body.StartByte()+1, body.EndByte()-1; end > start {
			attrs.RawBody = strings.TrimSpace(string(w.src[start:end]))
		}
	}

	id := w.emit(w.idFor(n), "", n, attrs)

	for _, s := range statements {
		switch s.Type() {
		case "lexical_declaration", "variable_declaration":
			w.variableDecl(s, id, nil)
		case "return_statement", "expression_statement":
			if expr := firstNamedChild(s); expr != nil {
				w.walkExpr(expr, id)
			}
		default:
			w.gap(s, "unsupported statement in function body")
		}
	}
}

func (w *walker) params(list *sitter.Node) []ir.Param {
	params := []ir.Param{}
	if list == nil {
		return params
	}
	for i := 0; i < int(list.NamedChildCount()); i++ {
		p := list.NamedChild(i)
		switch p.Type() {
		case "required_parameter", "optional_parameter":
		default:
			continue
		}
		pattern := p.ChildByFieldName("pattern")
		if pattern == nil {
			pattern = firstNamedChild(p)
		}
		if pattern == nil {
			continue
		}
		params = append(params, ir.Param{
			Name: w.text(pattern),
			Type: typeAnnotation(p.ChildByFieldName("type"), w.src),
		})
	}
	return params
}

func (w *walker) variableDecl(n *sitter.Node, parentID string, marker *markerInfo) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		decl := n.NamedChild(i)
		if decl.Type() != "variable_declarator" {
			continue
		}
		nameNode := decl.ChildByFieldName("name")
		if nameNode == nil || nameNode.Type() != "identifier" {
			w.gap(decl, "destructuring declaration")
			continue
		}
		name := w.text(nameNode)
		value := decl.ChildByFieldName("value")

		if parentID == "" && value != nil && w.reclassify(name, value, decl, marker) {
			continue
		}

		id := w.emit(w.idFor(decl), parentID, decl, ir.VariableAttrs{
			Name:         name,
			DeclaredType: typeAnnotation(decl.ChildByFieldName("type"), w.src),
			Initializer:  w.text(value),
		})
		if value != nil {
			w.walkExpr(value, id)
		}
	}
}

func (w *walker) importStmt(n *sitter.Node) {
	attrs := ir.ImportAttrs{Module: ir.UnquoteString(w.text(n.ChildByFieldName("source")))}

	if clause := namedChildOfType(n, "import_clause"); clause != nil {
		for i := 0; i < int(clause.NamedChildCount()); i++ {
			c := clause.NamedChild(i)
			switch c.Type() {
			case "identifier":
				attrs.Default = w.text(c)
			case "namespace_import":
				if ident := firstNamedChild(c); ident != nil {
					attrs.Namespace = w.text(ident)
				}
			case "named_imports":
				for j := 0; j < int(c.NamedChildCount()); j++ {
					if spec := c.NamedChild(j); spec.Type() == "import_specifier" {
						attrs.Named = append(attrs.Named, w.text(spec))
					}
				}
			}
		}
	}

	w.emit(w.idFor(n), "", n, attrs)
}

func (w *walker) exportStmt(n *sitter.Node, marker *markerInfo) {
	if decl := n.ChildByFieldName("declaration"); decl != nil {
		w.statement(decl, marker)
		return
	}

	attrs := ir.ExportAttrs{}
	if source := n.ChildByFieldName("source"); source != nil {
		attrs.Module = ir.UnquoteString(w.text(source))
	}
	if value := n.ChildByFieldName("value"); value != nil {
		attrs.Default = w.text(value)
	}
	if clause := namedChildOfType(n, "export_clause"); clause != nil {
		for i := 0; i < int(clause.NamedChildCount()); i++ {
			if spec := clause.NamedChild(i); spec.Type() == "export_specifier" {
				attrs.Named = append(attrs.Named, w.text(spec))
			}
		}
	} else if hasChildOfType(n, "*") {
		attrs.Named = []string{"*"}
	}

	if attrs.Default == "" && attrs.Module == "" && len(attrs.Named) == 0 {
		w.gap(n, "unsupported export form")
		return
	}
	w.emit(w.idFor(n), "", n, attrs)
}

// Expressions

// walkExpr emits one node per recognized expression shape and recurses into its operands.
func (w *walker) walkExpr(n *sitter.Node, parentID string) {
	n = unwrap(n)
	if n == nil {
		return
	}
	switch n.Type() {
	case "call_expression":
		w.callExpr(n, w.idFor(n), parentID, n)
	case "member_expression":
		w.memberExpr(n, w.idFor(n), parentID, n)
	case "binary_expression":
		w.binaryExpr(n, w.idFor(n), parentID, n)
	case "ternary_expression":
		w.ternaryExpr(n, w.idFor(n), parentID, n)
	case "object":
		w.objectExpr(n, w.idFor(n), parentID, n)
	case "string", "number", "true", "false":
		w.literalExpr(n, w.idFor(n), parentID, n)
	case "assignment_expression", "augmented_assignment_expression":
		w.walkExpr(n.ChildByFieldName("right"), parentID)
	default:
		w.gap(n, "unrecognized expression")
	}
}

func (w *walker) callExpr(n *sitter.Node, id, parentID string, span *sitter.Node) string {
	callee := n.ChildByFieldName("function")
	argsNode := n.ChildByFieldName("arguments")

	var args []*sitter.Node
	attrs := ir.CallAttrs{FuncName: w.text(callee), Args: []string{}}
	if argsNode != nil {
		if argsNode.Type() == "arguments" {
			for i := 0; i < int(argsNode.NamedChildCount()); i++ {
				if a := argsNode.NamedChild(i); a.Type() != "comment" {
					args = append(args, a)
					attrs.Args = append(attrs.Args, w.text(a))
				}
			}
		} else {
			attrs.Args = append(attrs.Args, w.text(argsNode))
		}
	}

	w.emit(id, parentID, span, attrs)

	if c := unwrap(callee); c != nil && (c.Type() == "member_expression" || c.Type() == "call_expression") {
		w.walkExpr(c, id)
	}
	for _, a := range args {
		w.walkExpr(a, id)
	}
	return id
}

func (w *walker) memberExpr(n *sitter.Node, id, parentID string, span *sitter.Node) string {
	object := n.ChildByFieldName("object")
	w.emit(id, parentID, span, ir.PropertyAccessAttrs{
		Object:   w.text(unwrap(object)),
		Property: w.text(n.ChildByFieldName("property")),
	})
	w.walkExpr(object, id)
	return id
}

func (w *walker) binaryExpr(n *sitter.Node, id, parentID string, span *sitter.Node) string {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	w.emit(id, parentID, span, ir.BinaryOpAttrs{
		Operator: w.text(n.ChildByFieldName("operator")),
		LHS:      w.text(left),
		RHS:      w.text(right),
	})
	w.walkExpr(left, id)
	w.walkExpr(right, id)
	return id
}

func (w *walker) ternaryExpr(n *sitter.Node, id, parentID string, span *sitter.Node) string {
	test := n.ChildByFieldName("condition")
	whenTrue := n.ChildByFieldName("consequence")
	whenFalse := n.ChildByFieldName("alternative")
	w.emit(id, parentID, span, ir.ConditionalAttrs{
		Test:      w.text(test),
		WhenTrue:  w.text(whenTrue),
		WhenFalse: w.text(whenFalse),
	})
	w.walkExpr(test, id)
	w.walkExpr(whenTrue, id)
	w.walkExpr(whenFalse, id)
	return id
}

func (w *walker) objectExpr(n *sitter.Node, id, parentID string, span *sitter.Node) string {
	attrs := ir.ObjectAttrs{Properties: []ir.Property{}}
	var values []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		p := n.NamedChild(i)
		switch p.Type() {
		case "pair":
			value := p.ChildByFieldName("value")
			attrs.Properties = append(attrs.Properties, ir.Property{
				Key:   w.text(p.ChildByFieldName("key")),
				Value: w.text(value),
			})
			values = append(values, value)
		case "shorthand_property_identifier":
			attrs.Properties = append(attrs.Properties, ir.Property{Key: w.text(p), Value: w.text(p)})
		case "comment":
		default:
			w.gap(p, "unsupported object member")
		}
	}
	w.emit(id, parentID, span, attrs)
	for _, v := range values {
		w.walkExpr(v, id)
	}
	return id
}

func (w *walker) literalExpr(n *sitter.Node, id, parentID string, span *sitter.Node) string {
	var attrs ir.LiteralAttrs
	switch n.Type() {
	case "string":
		attrs = ir.LiteralAttrs{Value: ir.UnquoteString(w.text(n)), LiteralKind: ir.LiteralString}
	case "number":
		attrs = ir.LiteralAttrs{Value: w.text(n), LiteralKind: ir.LiteralNumber}
	default:
		attrs = ir.LiteralAttrs{Value: w.text(n), LiteralKind: ir.LiteralBoolean}
	}
	return w.emit(id, parentID, span, attrs)
}

// Helpers

// unwrap strips wrappers that do not change which construct an expression denotes.
func unwrap(n *sitter.Node) *sitter.Node {
	for n != nil {
		switch n.Type() {
		case "parenthesized_expression", "await_expression", "non_null_expression",
			"as_expression", "satisfies_expression":
			n = firstNamedChild(n)
		default:
			return n
		}
	}
	return nil
}

func firstNamedChild(n *sitter.Node) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() != "comment" {
			return c
		}
	}
	return nil
}

func namedChildOfType(n *sitter.Node, types ...string) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		for _, t := range types {
			if c.Type() == t {
				return c
			}
		}
	}
	return nil
}

func hasChildOfType(n *sitter.Node, t string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.Child(i).Type() == t {
			return true
		}
	}
	return false
}

// typeAnnotation returns the type text of a ": T" annotation node.
func typeAnnotation(n *sitter.Node, source []byte) string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(n.Content(source)), ":"))
}
