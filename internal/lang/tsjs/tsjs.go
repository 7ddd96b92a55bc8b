// Package tsjs classifies imports in TypeScript/JavaScript source files
// using tree-sitter grammars, the way the teacher's parser walks its AST.
package tsjs

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/chainsaw-tool/chainsaw/internal/graph"
	"github.com/chainsaw-tool/chainsaw/internal/lang"
)

// Backend classifies TypeScript/JavaScript imports.
type Backend struct{}

// New returns a ready-to-use TS/JS backend.
func New() *Backend {
	return &Backend{}
}

func (b *Backend) Extract(path string, src []byte) ([]lang.RawImport, error) {
	l, err := languageForExt(filepath.Ext(path))
	if err != nil {
		return nil, err
	}

	parser := sitter.NewParser()
	parser.SetLanguage(l)

	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		// Parse errors never propagate as classification failures; the
		// caller treats a nil slice from a non-nil error as "nothing
		// extractable", not a fatal condition.
		return nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	defer tree.Close()

	w := &walker{src: src}
	w.walk(tree.RootNode())
	return w.imports, nil
}

func languageForExt(ext string) (*sitter.Language, error) {
	switch ext {
	case ".ts", ".mts", ".cts":
		return typescript.GetLanguage(), nil
	case ".tsx", ".jsx":
		return tsx.GetLanguage(), nil
	case ".js", ".mjs", ".cjs":
		return javascript.GetLanguage(), nil
	default:
		return nil, fmt.Errorf("unsupported extension: %s", ext)
	}
}

type walker struct {
	src     []byte
	imports []lang.RawImport
}

// walk recurses over every node in the file, not just top-level statements,
// because require() can appear nested in control flow (still Static) and
// import() can appear in any expression position (always Dynamic).
func (w *walker) walk(node *sitter.Node) {
	switch node.Type() {
	case "import_statement":
		w.handleImportStatement(node)
		return // children already consumed
	case "import_equals_declaration":
		w.handleImportEquals(node)
		return
	case "export_statement":
		w.handleExportStatement(node)
		// fall through: export_statement may itself contain nested
		// declarations (e.g. export default function(){...}) with their
		// own requires/dynamic imports.
	case "call_expression":
		w.handleCallExpression(node)
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		w.walk(node.NamedChild(i))
	}
}

// handleImportStatement classifies `import ... from "x"` and bare
// `import "x"`.
func (w *walker) handleImportStatement(node *sitter.Node) {
	moduleNode := findChildByType(node, "string")
	if moduleNode == nil {
		return
	}
	specifier := stripQuotes(w.content(moduleNode))
	span := spanOf(node)

	// Statement-level `import type ... from "x"`: the "type" keyword sits
	// directly after the "import" keyword, before the clause.
	if hasLiteralChild(node, "type") {
		w.emit(specifier, graph.TypeOnly, span)
		return
	}

	clause := findChildByType(node, "import_clause")
	if clause == nil {
		// Bare `import "x"` — side-effect only, always eager.
		w.emit(specifier, graph.Static, span)
		return
	}

	if clauseIsAllTypeOnly(clause) {
		w.emit(specifier, graph.TypeOnly, span)
		return
	}
	w.emit(specifier, graph.Static, span)
}

func (w *walker) handleImportEquals(node *sitter.Node) {
	// import X = require("x")
	ref := findChildByType(node, "external_module_reference")
	if ref == nil {
		return
	}
	moduleNode := findChildByType(ref, "string")
	if moduleNode == nil {
		return
	}
	w.emit(stripQuotes(w.content(moduleNode)), graph.Static, spanOf(node))
}

// handleExportStatement classifies `export ... from "x"` and `export * from "x"`.
// Plain `export { a, b }` with no source is not an import edge.
func (w *walker) handleExportStatement(node *sitter.Node) {
	moduleNode := findChildByType(node, "string")
	if moduleNode == nil {
		return
	}
	specifier := stripQuotes(w.content(moduleNode))
	span := spanOf(node)

	// `export type { A } from "x"` — statement-level type marker right
	// after "export".
	if hasLiteralChild(node, "type") {
		w.emit(specifier, graph.TypeOnly, span)
		return
	}

	// `export * from "x"` always carries at least one value binding.
	if hasLiteralChild(node, "*") {
		w.emit(specifier, graph.Static, span)
		return
	}

	clause := findChildByType(node, "export_clause")
	if clause != nil && exportClauseIsAllTypeOnly(clause) {
		w.emit(specifier, graph.TypeOnly, span)
		return
	}
	w.emit(specifier, graph.Static, span)
}

// handleCallExpression classifies require("x") and import("x") expressions
// wherever they appear: in control flow, chained with .then, inside arrow
// bodies or try blocks.
func (w *walker) handleCallExpression(node *sitter.Node) {
	callee := node.ChildByFieldName("function")
	if callee == nil {
		return
	}

	switch callee.Type() {
	case "import":
		// Dynamic import expression: import(X). Non-literal arguments
		// (import(variable)) are discarded — nothing to resolve statically.
		args := node.ChildByFieldName("arguments")
		if lit := w.firstStringArg(args); lit != "" {
			w.emit(lit, graph.Dynamic, spanOf(node))
		}
	case "identifier":
		if w.content(callee) != "require" {
			return
		}
		args := node.ChildByFieldName("arguments")
		if lit := w.firstStringArg(args); lit != "" {
			// require() is classified Static regardless of enclosing
			// control flow — eager require is the common case, and the
			// spec explicitly calls this out even for requires nested
			// in an `if` block.
			w.emit(lit, graph.Static, spanOf(node))
		}
	}
}

func (w *walker) emit(specifier string, kind graph.EdgeKind, span lang.Span) {
	if specifier == "" {
		return
	}
	w.imports = append(w.imports, lang.RawImport{Specifier: specifier, Kind: kind, Span: span})
}

func (w *walker) content(n *sitter.Node) string {
	return string(w.src[n.StartByte():n.EndByte()])
}

func spanOf(n *sitter.Node) lang.Span {
	return lang.Span{Start: int(n.StartByte()), End: int(n.EndByte())}
}

func (w *walker) firstStringArg(args *sitter.Node) string {
	if args == nil {
		return ""
	}
	for i := 0; i < int(args.NamedChildCount()); i++ {
		child := args.NamedChild(i)
		if child.Type() == "string" {
			return stripQuotes(w.content(child))
		}
	}
	return ""
}

// clauseIsAllTypeOnly reports whether every named binding in an
// import_clause is marked `type`. A default or namespace import without
// its own `type` marker, or any named specifier lacking `type`, makes the
// whole edge Static.
func clauseIsAllTypeOnly(clause *sitter.Node) bool {
	sawBinding := false
	allTyped := true

	for i := 0; i < int(clause.ChildCount()); i++ {
		child := clause.Child(i)
		switch child.Type() {
		case "identifier":
			// default import binding — never individually type-markable
			sawBinding = true
			allTyped = false
		case "namespace_import":
			sawBinding = true
			allTyped = false
		case "named_imports":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				spec := child.NamedChild(j)
				if spec.Type() != "import_specifier" {
					continue
				}
				sawBinding = true
				if !hasLiteralChild(spec, "type") {
					allTyped = false
				}
			}
		}
	}
	return sawBinding && allTyped
}

func exportClauseIsAllTypeOnly(clause *sitter.Node) bool {
	sawBinding := false
	allTyped := true
	for i := 0; i < int(clause.NamedChildCount()); i++ {
		spec := clause.NamedChild(i)
		if spec.Type() != "export_specifier" {
			continue
		}
		sawBinding = true
		if !hasLiteralChild(spec, "type") {
			allTyped = false
		}
	}
	return sawBinding && allTyped
}

func hasLiteralChild(node *sitter.Node, text string) bool {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if !child.IsNamed() && child.Type() == text {
			return true
		}
	}
	return false
}

func findChildByType(node *sitter.Node, nodeType string) *sitter.Node {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == nodeType {
			return child
		}
	}
	return nil
}

func stripQuotes(s string) string {
	s = strings.TrimPrefix(s, "\"")
	s = strings.TrimSuffix(s, "\"")
	s = strings.TrimPrefix(s, "'")
	s = strings.TrimSuffix(s, "'")
	s = strings.TrimPrefix(s, "`")
	s = strings.TrimSuffix(s, "`")
	return s
}
