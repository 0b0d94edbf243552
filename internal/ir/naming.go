package ir

import (
	"regexp"
	"strings"
)

// generatedPrefixes is the generated-name convention: a synthesized identifier is
// "<prefix>_<sanitized id>".
var generatedPrefixes = map[Kind]string{
	KindCall:           "call",
	KindBinaryOp:       "bin",
	KindConsole:        "log",
	KindPropertyAccess: "prop",
	KindConditional:    "cond",
	KindLiteral:        "lit",
	KindObject:         "obj",
}

var (
	nonIdentRe = regexp.MustCompile(`[^A-Za-z0-9_]`)
	markerRe   = regexp.MustCompile(`^//\s*@clast\s+([A-Za-z]+)\s+([A-Za-z0-9_]+)\s*$`)
)

// GeneratedPrefix returns the naming prefix for kind, if it has one.
func GeneratedPrefix(kind Kind) (string, bool) {
	p, ok := generatedPrefixes[kind]
	return p, ok
}

// SanitizeID maps an id onto identifier-safe characters.
func SanitizeID(id string) string {
	return nonIdentRe.ReplaceAllString(id, "_")
}

// SynthesizedName derives the top-level identifier the generator uses for an expression node.
func SynthesizedName(kind Kind, id string) string {
	prefix, ok := GeneratedPrefix(kind)
	if !ok {
		prefix = "node"
	}
	return prefix + "_" + SanitizeID(id)
}

// ParseSynthesizedName recovers the kind and id encoded in a generated name.
// Names such as "call_" with an empty suffix do not match.
func ParseSynthesizedName(name string) (Kind, string, bool) {
	for _, kind := range Kinds {
		prefix, ok := GeneratedPrefix(kind)
		if !ok {
			continue
		}
		rest, found := strings.CutPrefix(name, prefix+"_")
		if found && rest != "" {
			return kind, rest, true
		}
	}
	return "", "", false
}

// MarkerComment is the explicit generated-by-canvas marker placed above a synthesized declaration.
func MarkerComment(kind Kind, id string) string {
	return "// @clast " + string(kind) + " " + SanitizeID(id)
}

// ParseMarker reads a marker comment written by MarkerComment.
func ParseMarker(comment string) (Kind, string, bool) {
	m := markerRe.FindStringSubmatch(strings.TrimSpace(comment))
	if m == nil {
		return "", "", false
	}
	kind := Kind(m[1])
	if _, ok := GeneratedPrefix(kind); !ok {
		return "", "", false
	}
	return kind, m[2], true
}

// ParseParam normalizes the "name: type" string form of a parameter.
func ParseParam(s string) Param {
	name, typ, _ := strings.Cut(s, ":")
	return Param{Name: strings.TrimSpace(name), Type: strings.TrimSpace(typ)}
}
