package ir

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	DocumentVersion = "1"
	schemaURL       = "https://clast.local/schema/nodes.schema.json"
)

//go:embed schema/nodes.schema.json
var documentSchema []byte

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

type nodeJSON struct {
	ID       string          `json:"id"`
	Kind     Kind            `json:"kind"`
	ParentID string          `json:"parentId,omitempty"`
	Range    *SourceRange    `json:"range,omitempty"`
	Attrs    json.RawMessage `json:"attributes"`
}

// MarshalJSON writes the node with an explicit kind discriminator.
func (n Node) MarshalJSON() ([]byte, error) {
	attrs, err := MarshalAttributes(n.Attrs)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", n.ID, err)
	}
	return json.Marshal(nodeJSON{
		ID:       n.ID,
		Kind:     n.Kind(),
		ParentID: n.ParentID,
		Range:    n.Range,
		Attrs:    attrs,
	})
}

// UnmarshalJSON reads a node and decodes its attributes by kind.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw nodeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	attrs, err := UnmarshalAttributes(raw.Kind, raw.Attrs)
	if err != nil {
		return fmt.Errorf("node %s: %w", raw.ID, err)
	}
	*n = Node{ID: raw.ID, ParentID: raw.ParentID, Range: raw.Range, Attrs: attrs}
	return nil
}

// MarshalAttributes encodes an attribute variant without its kind.
func MarshalAttributes(a Attributes) ([]byte, error) {
	switch v := a.(type) {
	case nil:
		return []byte("{}"), nil
	case UnknownAttrs:
		if len(v.Raw) == 0 {
			return []byte("{}"), nil
		}
		return v.Raw, nil
	default:
		return json.Marshal(v)
	}
}

// UnmarshalAttributes decodes the attribute payload for kind. Kinds outside the
// closed set are preserved as UnknownAttrs.
func UnmarshalAttributes(kind Kind, data []byte) (Attributes, error) {
	if len(bytes.TrimSpace(data)) == 0 || string(data) == "null" {
		data = []byte("{}")
	}
	switch kind {
	case KindInterface:
		return decodeAttrs[InterfaceAttrs](data)
	case KindFunction:
		return decodeAttrs[FunctionAttrs](data)
	case KindVariable:
		return decodeAttrs[VariableAttrs](data)
	case KindLiteral:
		return decodeAttrs[LiteralAttrs](data)
	case KindBinaryOp:
		return decodeAttrs[BinaryOpAttrs](data)
	case KindCall:
		return decodeAttrs[CallAttrs](data)
	case KindPropertyAccess:
		return decodeAttrs[PropertyAccessAttrs](data)
	case KindConditional:
		return decodeAttrs[ConditionalAttrs](data)
	case KindObject:
		return decodeAttrs[ObjectAttrs](data)
	case KindAPI:
		return decodeAttrs[APIAttrs](data)
	case KindConsole:
		return decodeAttrs[ConsoleAttrs](data)
	case KindImport:
		return decodeAttrs[ImportAttrs](data)
	case KindExport:
		return decodeAttrs[ExportAttrs](data)
	default:
		return UnknownAttrs{Type: string(kind), Raw: append([]byte(nil), data...)}, nil
	}
}

func decodeAttrs[T Attributes](data []byte) (Attributes, error) {
	var a T
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode %T: %w", a, err)
	}
	return a, nil
}

// EncodeDocument renders nodes as an indented JSON document.
func EncodeDocument(nodes []Node) ([]byte, error) {
	if nodes == nil {
		nodes = []Node{}
	}
	return json.MarshalIndent(Document{Version: DocumentVersion, Nodes: nodes}, "", "  ")
}

// DecodeDocument validates data against the node document schema and decodes it.
func DecodeDocument(data []byte) (*Document, error) {
	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to compile node schema: %w", err)
	}

	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(generic); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if err := CheckParents(doc.Nodes); err != nil {
		return nil, err
	}
	return &doc, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(documentSchema)); err != nil {
			compileErr = err
			return
		}
		compiledSchema, compileErr = compiler.Compile(schemaURL)
	})
	return compiledSchema, compileErr
}
