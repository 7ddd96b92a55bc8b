// Package lang defines the shared contract every language backend
// implements: given file bytes, return the raw imports it contains,
// each tagged with the edge kind that governs startup cost.
package lang

import "github.com/chainsaw-tool/chainsaw/internal/graph"

// Span is a byte range into the source file, used for diagnostics.
type Span struct {
	Start int
	End   int
}

// RawImport is one import/require/export-from statement extracted from a
// file, before resolution to a concrete path.
type RawImport struct {
	Specifier string
	Kind      graph.EdgeKind
	Span      Span
	// Dots is the relative-import dot count for Python ("from .. import x"
	// has Dots == 2); zero for non-relative specifiers and for TS/JS.
	Dots int
}

// Backend is a pure function from file bytes to raw imports: no I/O, no
// resolution. A backend must recover from parse errors by returning
// whatever was extractable up to the error point; it never panics or
// returns an error for merely malformed source.
type Backend interface {
	// Extract returns every classifiable import in src. path is used only
	// to pick TSX vs TS/JS grammar variants; Extract performs no I/O.
	Extract(path string, src []byte) ([]RawImport, error)
}

// ForExt returns the backend responsible for files with the given
// extension (including the leading dot), or ok=false if none applies —
// the caller should treat such files as leaves with no outgoing edges.
func ForExt(ext string, tsjs, python Backend) (Backend, bool) {
	switch ext {
	case ".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs", ".mts", ".cts":
		return tsjs, true
	case ".py", ".pyi":
		return python, true
	default:
		return nil, false
	}
}
