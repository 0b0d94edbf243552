package ir

// Kind identifies the attribute schema of a Node.
type Kind string

const (
	KindInterface      Kind = "interface"
	KindFunction       Kind = "function"
	KindVariable       Kind = "variable"
	KindLiteral        Kind = "literal"
	KindBinaryOp       Kind = "binaryOp"
	KindCall           Kind = "call"
	KindPropertyAccess Kind = "propertyAccess"
	KindConditional    Kind = "conditional"
	KindObject         Kind = "object"
	KindAPI            Kind = "api"
	KindConsole        Kind = "console"
	KindImport         Kind = "import"
	KindExport         Kind = "export"
)

// Kinds lists the closed set of recognized kinds in declaration order.
var Kinds = []Kind{
	KindInterface, KindFunction, KindVariable, KindLiteral, KindBinaryOp, KindCall,
	KindPropertyAccess, KindConditional, KindObject, KindAPI, KindConsole, KindImport, KindExport,
}

// Known reports whether k belongs to the closed kind set.
func (k Kind) Known() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// SourceRange is a half-open byte range [Start, End) into the text a node was parsed from.
type SourceRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains reports whether offset falls inside the range.
func (r SourceRange) Contains(offset int) bool {
	return offset >= r.Start && offset < r.End
}

// Node is the unit of structure shared by the parser, the generator and the graph adapter.
type Node struct {
	ID       string       `json:"id"`
	ParentID string       `json:"parentId,omitempty"`
	Range    *SourceRange `json:"range,omitempty"`
	Attrs    Attributes   `json:"attributes"`
}

// Kind returns the kind carried by the node's attribute variant.
func (n Node) Kind() Kind {
	if n.Attrs == nil {
		return ""
	}
	return n.Attrs.NodeKind()
}

// Attributes is the sealed set of per-kind attribute variants.
type Attributes interface {
	NodeKind() Kind
	isAttributes()
}

type Param struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

type Member struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Property is an ordered key/value-expression pair (object properties, request headers).
type Property struct {
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

type LiteralKind string

const (
	LiteralString  LiteralKind = "string"
	LiteralNumber  LiteralKind = "number"
	LiteralBoolean LiteralKind = "boolean"
)

type InterfaceAttrs struct {
	Name    string   `json:"name"`
	Members []Member `json:"members"`
}

type FunctionAttrs struct {
	Name       string  `json:"name"`
	Params     []Param `json:"parameters"`
	ReturnType string  `json:"returnType,omitempty"`
	Async      bool    `json:"async,omitempty"`
	// RawBody is the verbatim body text without braces, kept when parsed from source.
	RawBody string `json:"body,omitempty"`
}

type VariableAttrs struct {
	Name         string `json:"name"`
	DeclaredType string `json:"variableType,omitempty"`
	Initializer  string `json:"initializer,omitempty"`
}

type LiteralAttrs struct {
	// Value holds string literals without their quotes.
	Value       string      `json:"value"`
	LiteralKind LiteralKind `json:"literalType"`
}

type BinaryOpAttrs struct {
	Operator string `json:"operator"`
	LHS      string `json:"lhs,omitempty"`
	RHS      string `json:"rhs,omitempty"`
}

type CallAttrs struct {
	FuncName string   `json:"funcName,omitempty"`
	Args     []string `json:"args"`
	// ExpectedParams is filled in by the graph layer when a function is connected.
	ExpectedParams []string `json:"expectedArgs,omitempty"`
}

type PropertyAccessAttrs struct {
	Object   string `json:"objExpr,omitempty"`
	Property string `json:"property"`
}

type ConditionalAttrs struct {
	Test      string `json:"testExpr,omitempty"`
	WhenTrue  string `json:"whenTrue,omitempty"`
	WhenFalse string `json:"whenFalse,omitempty"`
}

type ObjectAttrs struct {
	Name       string     `json:"name,omitempty"`
	Properties []Property `json:"properties"`
}

type APIAttrs struct {
	Name     string     `json:"label"`
	Method   string     `json:"method"`
	Endpoint string     `json:"endpoint"`
	Headers  []Property `json:"headers,omitempty"`
	Body     string     `json:"body,omitempty"`
}

type ConsoleAttrs struct {
	Label     string `json:"label,omitempty"`
	ValueExpr string `json:"valueExpr,omitempty"`
}

type ImportAttrs struct {
	Module    string   `json:"module"`
	Default   string   `json:"default,omitempty"`
	Namespace string   `json:"namespace,omitempty"`
	Named     []string `json:"named,omitempty"`
}

type ExportAttrs struct {
	Module  string   `json:"module,omitempty"`
	Default string   `json:"default,omitempty"`
	Named   []string `json:"named,omitempty"`
}

// UnknownAttrs preserves a node whose kind is outside the closed set.
type UnknownAttrs struct {
	Type string `json:"-"`
	Raw  []byte `json:"-"`
}

func (InterfaceAttrs) NodeKind() Kind      { return KindInterface }
func (FunctionAttrs) NodeKind() Kind       { return KindFunction }
func (VariableAttrs) NodeKind() Kind       { return KindVariable }
func (LiteralAttrs) NodeKind() Kind        { return KindLiteral }
func (BinaryOpAttrs) NodeKind() Kind       { return KindBinaryOp }
func (CallAttrs) NodeKind() Kind           { return KindCall }
func (PropertyAccessAttrs) NodeKind() Kind { return KindPropertyAccess }
func (ConditionalAttrs) NodeKind() Kind    { return KindConditional }
func (ObjectAttrs) NodeKind() Kind         { return KindObject }
func (APIAttrs) NodeKind() Kind            { return KindAPI }
func (ConsoleAttrs) NodeKind() Kind        { return KindConsole }
func (ImportAttrs) NodeKind() Kind         { return KindImport }
func (ExportAttrs) NodeKind() Kind         { return KindExport }
func (u UnknownAttrs) NodeKind() Kind      { return Kind(u.Type) }

func (InterfaceAttrs) isAttributes()      {}
func (FunctionAttrs) isAttributes()       {}
func (VariableAttrs) isAttributes()       {}
func (LiteralAttrs) isAttributes()        {}
func (BinaryOpAttrs) isAttributes()       {}
func (CallAttrs) isAttributes()           {}
func (PropertyAccessAttrs) isAttributes() {}
func (ConditionalAttrs) isAttributes()    {}
func (ObjectAttrs) isAttributes()         {}
func (APIAttrs) isAttributes()            {}
func (ConsoleAttrs) isAttributes()        {}
func (ImportAttrs) isAttributes()         {}
func (ExportAttrs) isAttributes()         {}
func (UnknownAttrs) isAttributes()        {}

// Document is the JSON exchange form of a node list.
type Document struct {
	Version string `json:"version"`
	Nodes   []Node `json:"nodes"`
}
