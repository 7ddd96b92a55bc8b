package python

import (
	"testing"

	"github.com/chainsaw-tool/chainsaw/internal/graph"
	"github.com/chainsaw-tool/chainsaw/internal/lang"
)

func extract(t *testing.T, src string) []lang.RawImport {
	t.Helper()
	b := New()
	imports, err := b.Extract("mod.py", []byte(src))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	return imports
}

func extractOne(t *testing.T, src string) lang.RawImport {
	t.Helper()
	imports := extract(t, src)
	if len(imports) != 1 {
		t.Fatalf("expected exactly one import, got %d: %+v", len(imports), imports)
	}
	return imports[0]
}

func TestExtract_TopLevelImportIsStatic(t *testing.T) {
	got := extractOne(t, "import pkg\n")
	if got.Specifier != "pkg" || got.Kind != graph.Static {
		t.Fatalf("expected Static import of pkg, got %+v", got)
	}
}

func TestExtract_ImportInsideFunctionIsDynamic(t *testing.T) {
	got := extractOne(t, "def f():\n    import pkg\n")
	if got.Specifier != "pkg" || got.Kind != graph.Dynamic {
		t.Fatalf("expected Dynamic import of pkg inside a function body, got %+v", got)
	}
}

func TestExtract_ImportInsidePlainIfIsDynamic(t *testing.T) {
	got := extractOne(t, "if cond:\n    import pkg\n")
	if got.Specifier != "pkg" || got.Kind != graph.Dynamic {
		t.Fatalf("expected Dynamic import of pkg inside a plain if-branch, got %+v", got)
	}
}

func TestExtract_ImportUnderTypeCheckingIsTypeOnly(t *testing.T) {
	got := extractOne(t, "if TYPE_CHECKING:\n    import pkg\n")
	if got.Specifier != "pkg" || got.Kind != graph.TypeOnly {
		t.Fatalf("expected TypeOnly import of pkg under TYPE_CHECKING, got %+v", got)
	}
}

func TestExtract_TypeCheckingInsideFunctionStaysDynamic(t *testing.T) {
	got := extractOne(t, "def f():\n    if TYPE_CHECKING:\n        import pkg\n")
	if got.Specifier != "pkg" || got.Kind != graph.Dynamic {
		t.Fatalf("expected a TYPE_CHECKING guard nested in a function body to stay Dynamic, got %+v", got)
	}
}

func TestExtract_FromImportRelativeDotsCounted(t *testing.T) {
	got := extractOne(t, "from ..pkg import thing\n")
	if got.Specifier != "pkg" || got.Dots != 2 || got.Kind != graph.Static {
		t.Fatalf("expected Static relative import of pkg with Dots=2, got %+v", got)
	}
}

func TestExtract_FromDotOnlyImportHasNoSpecifier(t *testing.T) {
	got := extractOne(t, "from . import thing\n")
	if got.Specifier != "" || got.Dots != 1 || got.Kind != graph.Static {
		t.Fatalf("expected bare relative import with empty specifier and Dots=1, got %+v", got)
	}
}

func TestExtract_AliasedImportUsesOriginalName(t *testing.T) {
	got := extractOne(t, "import pkg as p\n")
	if got.Specifier != "pkg" || got.Kind != graph.Static {
		t.Fatalf("expected Static import of the original dotted name pkg, got %+v", got)
	}
}

func TestExtract_ElseBranchUnderFunctionStaysDynamic(t *testing.T) {
	got := extractOne(t, "def f():\n    if cond:\n        pass\n    else:\n        import pkg\n")
	if got.Specifier != "pkg" || got.Kind != graph.Dynamic {
		t.Fatalf("expected Dynamic import of pkg in a function's else-branch, got %+v", got)
	}
}
