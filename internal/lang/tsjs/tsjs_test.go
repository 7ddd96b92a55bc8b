package tsjs

import (
	"testing"

	"github.com/chainsaw-tool/chainsaw/internal/graph"
)

func extractOne(t *testing.T, path, src string) lookup {
	t.Helper()
	b := New()
	imports, err := b.Extract(path, []byte(src))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(imports) != 1 {
		t.Fatalf("expected exactly one import, got %d: %+v", len(imports), imports)
	}
	return lookup{specifier: imports[0].Specifier, kind: imports[0].Kind}
}

type lookup struct {
	specifier string
	kind      graph.EdgeKind
}

// TestExtract_DynamicImportInThenChain covers spec's named bug-prone case:
// import("x").then(cb) must classify as Dynamic, not Static, even though
// the call is chained into further expression position rather than
// awaited or assigned directly.
func TestExtract_DynamicImportInThenChain(t *testing.T) {
	got := extractOne(t, "entry.ts", `import("x").then(cb);`)
	if got.specifier != "x" || got.kind != graph.Dynamic {
		t.Fatalf("expected Dynamic import of %q, got %+v", "x", got)
	}
}

// TestExtract_MixedTypeAndValueNamedImportIsStatic covers spec's named
// bug-prone case: `import { type A, b } from "x"` mixes a type-only
// binding with a value binding, so the whole edge is Static (it still
// needs "x" at runtime for b).
func TestExtract_MixedTypeAndValueNamedImportIsStatic(t *testing.T) {
	got := extractOne(t, "entry.ts", `import { type A, b } from "x";`)
	if got.specifier != "x" || got.kind != graph.Static {
		t.Fatalf("expected Static import of %q, got %+v", "x", got)
	}
}

// TestExtract_AllTypeOnlyNamedImportIsTypeOnly is the counterpart to the
// mixed case above: every binding marked `type` makes the whole edge
// TypeOnly.
func TestExtract_AllTypeOnlyNamedImportIsTypeOnly(t *testing.T) {
	got := extractOne(t, "entry.ts", `import { type A, type B } from "x";`)
	if got.specifier != "x" || got.kind != graph.TypeOnly {
		t.Fatalf("expected TypeOnly import of %q, got %+v", "x", got)
	}
}

// TestExtract_ExportTypeFromIsTypeOnly covers spec's named bug-prone case:
// `export type { A } from "x"` carries no runtime dependency on "x".
func TestExtract_ExportTypeFromIsTypeOnly(t *testing.T) {
	got := extractOne(t, "entry.ts", `export type { A } from "x";`)
	if got.specifier != "x" || got.kind != graph.TypeOnly {
		t.Fatalf("expected TypeOnly export of %q, got %+v", "x", got)
	}
}

// TestExtract_RequireInsideIfBlockIsStatic covers spec's named bug-prone
// case: require("x") nested inside an `if` block is still eager/Static —
// conditional placement in source doesn't make Node defer loading it.
func TestExtract_RequireInsideIfBlockIsStatic(t *testing.T) {
	got := extractOne(t, "entry.js", `
if (cond) {
  require("x");
}
`)
	if got.specifier != "x" || got.kind != graph.Static {
		t.Fatalf("expected Static require of %q, got %+v", "x", got)
	}
}

func TestExtract_ExportStarFromIsStatic(t *testing.T) {
	got := extractOne(t, "entry.ts", `export * from "x";`)
	if got.specifier != "x" || got.kind != graph.Static {
		t.Fatalf("expected Static export * of %q, got %+v", "x", got)
	}
}

func TestExtract_ImportEqualsRequireIsStatic(t *testing.T) {
	got := extractOne(t, "entry.ts", `import X = require("x");`)
	if got.specifier != "x" || got.kind != graph.Static {
		t.Fatalf("expected Static import-equals of %q, got %+v", "x", got)
	}
}

func TestExtract_BareSideEffectImportIsStatic(t *testing.T) {
	got := extractOne(t, "entry.ts", `import "x";`)
	if got.specifier != "x" || got.kind != graph.Static {
		t.Fatalf("expected Static bare import of %q, got %+v", "x", got)
	}
}

func TestExtract_StatementLevelImportTypeIsTypeOnly(t *testing.T) {
	got := extractOne(t, "entry.ts", `import type { A } from "x";`)
	if got.specifier != "x" || got.kind != graph.TypeOnly {
		t.Fatalf("expected TypeOnly import type of %q, got %+v", "x", got)
	}
}

func TestExtract_DynamicImportWithNonLiteralArgumentIsDiscarded(t *testing.T) {
	b := New()
	imports, err := b.Extract("entry.ts", []byte(`const m = import(moduleName);`))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(imports) != 0 {
		t.Fatalf("expected no extractable imports for a non-literal dynamic import, got %+v", imports)
	}
}

func TestExtract_UnsupportedExtensionErrors(t *testing.T) {
	b := New()
	if _, err := b.Extract("entry.rs", []byte(`import "x";`)); err == nil {
		t.Fatal("expected an error for an unsupported extension")
	}
}
