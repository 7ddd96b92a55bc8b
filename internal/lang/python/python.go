// Package python classifies imports in Python source files using
// tree-sitter, following the same backend contract as the TS/JS parser.
package python

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	tspython "github.com/smacker/go-tree-sitter/python"

	"github.com/chainsaw-tool/chainsaw/internal/graph"
	"github.com/chainsaw-tool/chainsaw/internal/lang"
)

// Backend classifies Python imports.
type Backend struct{}

// New returns a ready-to-use Python backend.
func New() *Backend {
	return &Backend{}
}

func (b *Backend) Extract(path string, src []byte) ([]lang.RawImport, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(tspython.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	defer tree.Close()

	w := &walker{src: src}
	w.walk(tree.RootNode(), ctxTopLevel)
	return w.imports, nil
}

// blockCtx tracks why the current statement would or wouldn't execute at
// module-load time.
type blockCtx int

const (
	// ctxTopLevel covers module scope and class bodies — both execute
	// eagerly as the module is loaded.
	ctxTopLevel blockCtx = iota
	// ctxDeferred covers function/method bodies — these only execute when
	// called, so imports here are Dynamic.
	ctxDeferred
	// ctxConditional covers an `if`/`elif`/`else` body that is not the
	// well-known TYPE_CHECKING sentinel — the import only executes if
	// that branch is taken.
	ctxConditional
	// ctxTypeChecking covers the conventional `if TYPE_CHECKING:` guard.
	ctxTypeChecking
)

type walker struct {
	src     []byte
	imports []lang.RawImport
}

func (w *walker) walk(node *sitter.Node, ctx blockCtx) {
	switch node.Type() {
	case "import_statement":
		w.handleImport(node, ctx)
		return
	case "import_from_statement":
		w.handleImportFrom(node, ctx)
		return
	case "function_definition":
		body := node.ChildByFieldName("body")
		w.walkChildrenExcept(node, body, ctx)
		if body != nil {
			w.walk(body, ctxDeferred)
		}
		return
	case "if_statement":
		w.handleIf(node, ctx)
		return
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		w.walk(node.NamedChild(i), ctx)
	}
}

// walkChildrenExcept walks every named child of node other than skip (used
// to still classify decorator expressions / default-argument imports under
// the enclosing context, while routing the body itself separately).
func (w *walker) walkChildrenExcept(node, skip *sitter.Node, ctx blockCtx) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child == skip {
			continue
		}
		w.walk(child, ctx)
	}
}

// handleIf routes the condition's ancestor context (conditional, or the
// TYPE_CHECKING sentinel) to the consequence and alternative blocks.
func (w *walker) handleIf(node *sitter.Node, ctx blockCtx) {
	cond := node.ChildByFieldName("condition")
	consequence := node.ChildByFieldName("consequence")
	alternative := node.ChildByFieldName("alternative")

	branchCtx := ctxConditional
	if cond != nil && isTypeCheckingSentinel(w.content(cond)) {
		branchCtx = ctxTypeChecking
	}
	// A TYPE_CHECKING guard never downgrades an import that's already
	// nested inside a deferred (function) body back to top-level —
	// ctx already carries the outer restriction, and ctxTypeChecking only
	// applies when the enclosing context is not a function body.
	if ctx == ctxDeferred {
		branchCtx = ctxDeferred
	}

	if consequence != nil {
		w.walk(consequence, branchCtx)
	}
	if alternative != nil {
		// else/elif branches are always plain conditionals, never the
		// TYPE_CHECKING sentinel itself.
		elseCtx := ctxConditional
		if ctx == ctxDeferred {
			elseCtx = ctxDeferred
		}
		w.walk(alternative, elseCtx)
	}
}

func isTypeCheckingSentinel(text string) bool {
	text = strings.TrimSpace(text)
	return text == "TYPE_CHECKING" || text == "typing.TYPE_CHECKING"
}

func kindFor(ctx blockCtx) graph.EdgeKind {
	switch ctx {
	case ctxTypeChecking:
		return graph.TypeOnly
	case ctxDeferred, ctxConditional:
		return graph.Dynamic
	default:
		return graph.Static
	}
}

// handleImport classifies `import x`, `import x as y`, `import x, y`.
func (w *walker) handleImport(node *sitter.Node, ctx blockCtx) {
	kind := kindFor(ctx)
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "dotted_name":
			w.emit(w.content(child), kind, 0, node)
		case "aliased_import":
			name := child.ChildByFieldName("name")
			if name != nil {
				w.emit(w.content(name), kind, 0, node)
			}
		}
	}
}

// handleImportFrom classifies `from x import a, b`, `from . import x`,
// `from ..pkg import x`.
func (w *walker) handleImportFrom(node *sitter.Node, ctx blockCtx) {
	kind := kindFor(ctx)
	moduleNode := node.ChildByFieldName("module_name")
	if moduleNode == nil {
		return
	}

	specifier, dots := w.moduleSpecifier(moduleNode)
	w.emit(specifier, kind, dots, node)
}

// moduleSpecifier returns the dotted module path and its leading-dot count
// for both absolute dotted_name and relative_import module references.
func (w *walker) moduleSpecifier(node *sitter.Node) (string, int) {
	switch node.Type() {
	case "relative_import":
		dots := 0
		var name string
		for i := 0; i < int(node.ChildCount()); i++ {
			child := node.Child(i)
			switch child.Type() {
			case "import_prefix":
				dots = strings.Count(w.content(child), ".")
			case "dotted_name":
				name = w.content(child)
			}
		}
		return name, dots
	default:
		return w.content(node), 0
	}
}

func (w *walker) emit(specifier string, kind graph.EdgeKind, dots int, node *sitter.Node) {
	if specifier == "" && dots == 0 {
		return
	}
	w.imports = append(w.imports, lang.RawImport{
		Specifier: specifier,
		Kind:      kind,
		Span:      lang.Span{Start: int(node.StartByte()), End: int(node.EndByte())},
		Dots:      dots,
	})
}

func (w *walker) content(n *sitter.Node) string {
	return string(w.src[n.StartByte():n.EndByte()])
}
