package parser

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// LanguageGrammar supplies the tree-sitter grammar for one source dialect.
type LanguageGrammar interface {
	Name() string
	GetLanguage() *sitter.Language
}

type typeScriptGrammar struct{}

func (typeScriptGrammar) Name() string                  { return "typescript" }
func (typeScriptGrammar) GetLanguage() *sitter.Language { return typescript.GetLanguage() }

type tsxGrammar struct{}

func (tsxGrammar) Name() string                  { return "tsx" }
func (tsxGrammar) GetLanguage() *sitter.Language { return tsx.GetLanguage() }

func grammarFor(lang string) (LanguageGrammar, error) {
	switch lang {
	case "", "typescript", "ts":
		return typeScriptGrammar{}, nil
	case "tsx":
		return tsxGrammar{}, nil
	default:
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}
}

// Policy decides when a top-level declaration is reclassified from a plain
// variable into the expression kind that produced it.
type Policy string

const (
	// ReclassifyByPrefix matches the generated-name convention ("call_<id>", "bin_<id>", ...).
	ReclassifyByPrefix Policy = "prefix"
	// ReclassifyByMarker requires an "// @clast <kind> <id>" comment directly above the declaration.
	ReclassifyByMarker Policy = "marker"
	// ReclassifyNever keeps every declaration a variable.
	ReclassifyNever Policy = "never"
)

// ParsePolicy maps a configuration string onto a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", ReclassifyByPrefix:
		return ReclassifyByPrefix, nil
	case ReclassifyByMarker, ReclassifyNever:
		return Policy(s), nil
	default:
		return "", fmt.Errorf("unknown reclassification policy: %s", s)
	}
}

// ParseError reports text the grammar could not make sense of.
type ParseError struct {
	Message string
	Offset  int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at offset %d: %s", e.Offset, e.Message)
}

// SyntaxError is a single ERROR or MISSING node found in a syntax tree.
type SyntaxError struct {
	Offset  int
	End     int
	Message string
}
