package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"
)

// BuildNodeID creates a deterministic node id from a construct's syntax kind and byte span.
// Reparsing unchanged text yields the same id for the same construct.
func BuildNodeID(syntaxKind string, start, end int) string {
	kind := strings.TrimSpace(syntaxKind)
	if kind == "" {
		kind = "node"
	}

	fingerprint := strings.Join([]string{
		kind,
		strconv.Itoa(start),
		strconv.Itoa(end),
	}, "|")

	sum := sha256.Sum256([]byte(fingerprint))
	return "n" + hex.EncodeToString(sum[:8])
}

// NewCanvasID returns a fresh id for a node created on the canvas rather than parsed.
func NewCanvasID() string {
	return ulid.Make().String()
}
