package generator

import (
	"fmt"
	"strings"

	"clast/internal/ir"
)

// Options configures rendering.
type Options struct {
	// Markers places an "// @clast <kind> <id>" line above every synthesized declaration.
	Markers bool
}

// Generator renders IR nodes as TypeScript source. It is stateless.
type Generator struct {
	opts Options
}

func New(opts Options) *Generator {
	return &Generator{opts: opts}
}

// Generate renders nodes as TypeScript text.
func (g *Generator) Generate(nodes []ir.Node) string {
	text, _ := g.GenerateMapped(nodes)
	return text
}

// GenerateMapped renders nodes and reports the byte range each top-level node occupies in the output.
func (g *Generator) GenerateMapped(nodes []ir.Node) (string, map[string]ir.SourceRange) {
	children := ir.ChildIndex(nodes)
	present := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		present[n.ID] = true
	}

	var sb strings.Builder
	ranges := make(map[string]ir.SourceRange)
	for _, n := range nodes {
		// Orphans render at top level so nothing silently disappears.
		if n.ParentID != "" && present[n.ParentID] {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		start := sb.Len()
		sb.WriteString(g.renderTopLevel(n, children))
		ranges[n.ID] = ir.SourceRange{Start: start, End: sb.Len()}
	}
	return sb.String(), ranges
}

func (g *Generator) renderTopLevel(n ir.Node, children map[string][]ir.Node) string {
	switch a := n.Attrs.(type) {
	case ir.InterfaceAttrs:
		return renderInterface(a)
	case ir.FunctionAttrs:
		return renderFunction(a, children[n.ID])
	case ir.VariableAttrs:
		return renderVariable(a)
	case ir.ImportAttrs:
		return renderImport(a)
	case ir.ExportAttrs:
		return renderExport(a)
	case ir.APIAttrs:
		return renderAPI(n.ID, a)
	case ir.LiteralAttrs, ir.BinaryOpAttrs, ir.CallAttrs, ir.ConsoleAttrs,
		ir.PropertyAccessAttrs, ir.ConditionalAttrs, ir.ObjectAttrs:
		return g.renderSynthesized(n)
	default:
		return fmt.Sprintf("// Unknown node type: %s", n.Kind())
	}
}

func renderInterface(a ir.InterfaceAttrs) string {
	var sb strings.Builder
	sb.WriteString("export interface " + a.Name + " {\n")
	for _, m := range a.Members {
		typ := m.Type
		if typ == "" {
			typ = "any"
		}
		sb.WriteString("  " + m.Name + ": " + typ + ";\n")
	}
	sb.WriteString("}")
	return sb.String()
}

func renderVariable(a ir.VariableAttrs) string {
	init := a.Initializer
	if init == "" {
		init = "undefined"
	}
	return "export const " + a.Name + typeSuffix(a.DeclaredType) + " = " + init + ";"
}

func renderFunction(a ir.FunctionAttrs, children []ir.Node) string {
	params := make([]string, 0, len(a.Params))
	for _, p := range a.Params {
		params = append(params, p.Name+typeSuffix(p.Type))
	}

	var sb strings.Builder
	sb.WriteString("export ")
	if a.Async {
		sb.WriteString("async ")
	}
	sb.WriteString("function " + a.Name + "(" + strings.Join(params, ", ") + ")" + typeSuffix(a.ReturnType) + " {\n")

	// Source text is kept until the body is edited structurally.
	if a.RawBody != "" && bodyCoversChildren(a.RawBody, children) {
		sb.WriteString("  " + a.RawBody + "\n}")
		return sb.String()
	}

	declared := make(map[string]bool, len(a.Params))
	for _, p := range a.Params {
		declared[p.Name] = true
	}
	for _, c := range children {
		v, ok := c.Attrs.(ir.VariableAttrs)
		if !ok || v.Name == "" || declared[v.Name] {
			continue
		}
		declared[v.Name] = true
		init := v.Initializer
		if init == "" {
			init = "undefined"
		}
		sb.WriteString("  const " + v.Name + typeSuffix(v.DeclaredType) + " = " + init + ";\n")
	}

	sb.WriteString("  " + returnStatement(a, children) + "\n}")
	return sb.String()
}

// bodyCoversChildren reports whether raw still contains every local and
// operator expression the children describe. A child that raw does not
// mention means the body was edited without clearing the source text.
func bodyCoversChildren(raw string, children []ir.Node) bool {
	compact := stripSpace(raw)
	for _, c := range children {
		switch a := c.Attrs.(type) {
		case ir.VariableAttrs:
			if a.Name != "" && !strings.Contains(compact, a.Name) {
				return false
			}
		case ir.BinaryOpAttrs:
			if a.LHS != "" && a.RHS != "" && !strings.Contains(compact, stripSpace(a.LHS+a.Operator+a.RHS)) {
				return false
			}
		}
	}
	return true
}

func stripSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func returnStatement(a ir.FunctionAttrs, children []ir.Node) string {
	for _, c := range children {
		if b, ok := c.Attrs.(ir.BinaryOpAttrs); ok && b.LHS != "" && b.RHS != "" {
			return "return " + b.LHS + " " + b.Operator + " " + b.RHS + ";"
		}
	}
	if len(a.Params) >= 2 {
		return "return " + a.Params[0].Name + " + " + a.Params[1].Name + ";"
	}
	return "// TODO: Implement function body"
}

func renderImport(a ir.ImportAttrs) string {
	var clauses []string
	if a.Default != "" {
		clauses = append(clauses, a.Default)
	}
	if a.Namespace != "" {
		clauses = append(clauses, "* as "+a.Namespace)
	}
	if len(a.Named) > 0 {
		clauses = append(clauses, "{ "+strings.Join(a.Named, ", ")+" }")
	}
	if len(clauses) == 0 {
		return "import " + ir.QuoteString(a.Module) + ";"
	}
	return "import " + strings.Join(clauses, ", ") + " from " + ir.QuoteString(a.Module) + ";"
}

func renderExport(a ir.ExportAttrs) string {
	if a.Default != "" {
		return "export default " + a.Default + ";"
	}
	var clause string
	if len(a.Named) == 1 && a.Named[0] == "*" {
		clause = "*"
	} else {
		clause = "{ " + strings.Join(a.Named, ", ") + " }"
	}
	if a.Module != "" {
		return "export " + clause + " from " + ir.QuoteString(a.Module) + ";"
	}
	return "export " + clause + ";"
}

func renderAPI(id string, a ir.APIAttrs) string {
	name := a.Name
	if name == "" {
		name = "api_" + ir.SanitizeID(id)
	}
	method := a.Method
	if method == "" {
		method = "GET"
	}

	var sb strings.Builder
	sb.WriteString("export async function " + name + "() {\n")
	sb.WriteString("  const response = await fetch(" + ir.QuoteString(a.Endpoint) + ", {\n")
	sb.WriteString("    method: " + ir.QuoteString(method) + ",\n")
	if len(a.Headers) > 0 {
		headers := make([]string, 0, len(a.Headers))
		for _, h := range a.Headers {
			headers = append(headers, ir.QuoteString(h.Key)+": "+ir.QuoteString(h.Value))
		}
		sb.WriteString("    headers: { " + strings.Join(headers, ", ") + " },\n")
	}
	if a.Body != "" {
		sb.WriteString("    body: " + ir.QuoteString(a.Body) + ",\n")
	}
	sb.WriteString("  });\n")
	sb.WriteString("  if (!response.ok) {\n")
	sb.WriteString("    throw new Error(`Request failed with status ${response.status}`);\n")
	sb.WriteString("  }\n")
	sb.WriteString("  return response.json();\n")
	sb.WriteString("}")
	return sb.String()
}

// renderSynthesized emits an expression node as a top-level const under its synthesized name.
func (g *Generator) renderSynthesized(n ir.Node) string {
	name := ir.SynthesizedName(n.Kind(), n.ID)
	var init string

	switch a := n.Attrs.(type) {
	case ir.LiteralAttrs:
		init = a.Expression()
	case ir.BinaryOpAttrs:
		if a.LHS == "" || a.RHS == "" {
			return fmt.Sprintf("// %s: binary operation %q is not fully connected", name, a.Operator)
		}
		init = a.LHS + " " + a.Operator + " " + a.RHS
	case ir.CallAttrs:
		if a.FuncName == "" {
			return fmt.Sprintf("// %s: call has no function connected", name)
		}
		init = a.FuncName + "(" + strings.Join(a.Args, ", ") + ")"
	case ir.ConsoleAttrs:
		value := a.ValueExpr
		if value == "" {
			value = "undefined"
		}
		logged := value
		if a.Label != "" {
			logged = ir.QuoteString(a.Label) + ", " + value
		}
		init = "(() => { console.log(" + logged + "); return " + value + "; })()"
	case ir.PropertyAccessAttrs:
		if a.Object == "" {
			return fmt.Sprintf("// %s: property access %q has no object connected", name, a.Property)
		}
		init = "(" + a.Object + ")." + a.Property
	case ir.ConditionalAttrs:
		init = orUndefined(a.Test) + " ? " + orUndefined(a.WhenTrue) + " : " + orUndefined(a.WhenFalse)
	case ir.ObjectAttrs:
		if a.Name != "" {
			name = a.Name
		}
		props := make([]string, 0, len(a.Properties))
		for _, p := range a.Properties {
			props = append(props, p.Key+": "+orUndefined(p.Value))
		}
		if len(props) == 0 {
			init = "{}"
		} else {
			init = "{ " + strings.Join(props, ", ") + " }"
		}
	}

	decl := "export const " + name + " = " + init + ";"
	if g.opts.Markers {
		return ir.MarkerComment(n.Kind(), n.ID) + "\n" + decl
	}
	return decl
}

func typeSuffix(t string) string {
	if t == "" {
		return ""
	}
	return ": " + t
}

func orUndefined(expr string) string {
	if expr == "" {
		return "undefined"
	}
	return expr
}
