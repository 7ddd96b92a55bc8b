package resolve

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chainsaw-tool/chainsaw/internal/workspace"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestResolveTSJS_RelativeSpecifierAddsExtension(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "lib.ts"), "export {}")
	entry := filepath.Join(root, "entry.ts")
	writeFile(t, entry, "")

	r := New(root, nil)
	res, err := r.Resolve(entry, "./lib", "tsjs", 0)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Status != Resolved || filepath.Base(res.Path) != "lib.ts" {
		t.Fatalf("expected Resolved to lib.ts, got %+v", res)
	}
}

func TestResolveTSJS_RelativeSpecifierMissing(t *testing.T) {
	root := t.TempDir()
	entry := filepath.Join(root, "entry.ts")
	writeFile(t, entry, "")

	r := New(root, nil)
	res, err := r.Resolve(entry, "./nope", "tsjs", 0)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Status != Missing {
		t.Fatalf("expected Missing, got %+v", res)
	}
}

func TestResolveTSJS_NodeBuiltinIsExternal(t *testing.T) {
	root := t.TempDir()
	entry := filepath.Join(root, "entry.ts")
	writeFile(t, entry, "")

	r := New(root, nil)
	res, err := r.Resolve(entry, "fs", "tsjs", 0)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Status != External {
		t.Fatalf("expected External for a platform built-in, got %+v", res)
	}
}

func TestResolveTSJS_BareSpecifierWalksUpToNodeModules(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "node_modules", "left-pad", "package.json"),
		`{"name":"left-pad","main":"index.js"}`)
	writeFile(t, filepath.Join(root, "node_modules", "left-pad", "index.js"), "module.exports = {}")

	entry := filepath.Join(root, "src", "deep", "entry.ts")
	writeFile(t, entry, "")

	r := New(root, nil)
	res, err := r.Resolve(entry, "left-pad", "tsjs", 0)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Status != Resolved || res.Package != "left-pad" {
		t.Fatalf("expected Resolved package left-pad, got %+v", res)
	}
	if filepath.Base(res.Path) != "index.js" {
		t.Fatalf("expected resolution to index.js via main field, got %+v", res)
	}
}

func TestResolveTSJS_BareSpecifierUnresolvedIsExternal(t *testing.T) {
	root := t.TempDir()
	entry := filepath.Join(root, "entry.ts")
	writeFile(t, entry, "")

	r := New(root, nil)
	res, err := r.Resolve(entry, "not-installed", "tsjs", 0)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Status != External {
		t.Fatalf("expected External for an uninstalled bare specifier, got %+v", res)
	}
}

func TestResolveTSJS_ExportsFieldConditional(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "node_modules", "pkg", "package.json"),
		`{"name":"pkg","exports":{".":{"import":"./esm/index.js","require":"./cjs/index.js"}}}`)
	writeFile(t, filepath.Join(root, "node_modules", "pkg", "esm", "index.js"), "export {}")
	entry := filepath.Join(root, "entry.ts")
	writeFile(t, entry, "")

	r := New(root, nil)
	res, err := r.Resolve(entry, "pkg", "tsjs", 0)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Status != Resolved || filepath.ToSlash(res.Path) != filepath.ToSlash(filepath.Join(root, "node_modules", "pkg", "esm", "index.js")) {
		t.Fatalf("expected resolution via the import condition, got %+v", res)
	}
}

func TestResolveTSJS_JSToTSRewrite(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "lib.ts"), "export {}")
	entry := filepath.Join(root, "entry.ts")
	writeFile(t, entry, "")

	r := New(root, nil)
	res, err := r.Resolve(entry, "./lib.js", "tsjs", 0)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Status != Resolved || filepath.Base(res.Path) != "lib.ts" {
		t.Fatalf("expected a .js specifier to rewrite to the .ts sibling, got %+v", res)
	}
}

func TestResolveTSJS_AliasMapResolvesEntryPoint(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pkg", "index.ts"), "export {}")
	entry := filepath.Join(root, "entry.ts")
	writeFile(t, entry, "")

	ws := &workspace.Info{
		AliasMap:      map[string]string{"@acme/pkg": "pkg/index.ts"},
		TSConfigPaths: map[string]string{},
		PySourceRoots: []string{"."},
	}
	r := New(root, ws)
	res, err := r.Resolve(entry, "@acme/pkg", "tsjs", 0)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Status != Resolved || filepath.Base(res.Path) != "index.ts" {
		t.Fatalf("expected the workspace alias to resolve to pkg/index.ts, got %+v", res)
	}
}

func TestResolvePython_StdlibIsExternal(t *testing.T) {
	root := t.TempDir()
	entry := filepath.Join(root, "mod.py")
	writeFile(t, entry, "")

	r := New(root, nil)
	res, err := r.Resolve(entry, "os.path", "python", 0)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Status != External {
		t.Fatalf("expected External for a standard library module, got %+v", res)
	}
}

func TestResolvePython_AbsoluteImportResolvesPackage(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pkg", "__init__.py"), "")
	writeFile(t, filepath.Join(root, "pkg", "sub.py"), "")
	entry := filepath.Join(root, "mod.py")
	writeFile(t, entry, "")

	r := New(root, nil)
	res, err := r.Resolve(entry, "pkg.sub", "python", 0)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Status != Resolved || filepath.Base(res.Path) != "sub.py" {
		t.Fatalf("expected Resolved to pkg/sub.py, got %+v", res)
	}
}

func TestResolvePython_NamespacePackageIsSynthetic(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "pkg"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	entry := filepath.Join(root, "mod.py")
	writeFile(t, entry, "")

	r := New(root, nil)
	res, err := r.Resolve(entry, "pkg", "python", 0)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Status != Resolved || filepath.Ext(res.Path) != "" {
		t.Fatalf("expected a synthetic namespace-package resolution, got %+v", res)
	}
}

func TestResolvePython_RelativeImportClimbsDots(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pkg", "sibling.py"), "")
	entry := filepath.Join(root, "pkg", "sub", "mod.py")
	writeFile(t, entry, "")

	r := New(root, nil)
	res, err := r.Resolve(entry, "sibling", "python", 2)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Status != Resolved || filepath.Base(res.Path) != "sibling.py" {
		t.Fatalf("expected two dots to climb from pkg/sub up to pkg, got %+v", res)
	}
}

func TestResolvePython_UnresolvedIsExternal(t *testing.T) {
	root := t.TempDir()
	entry := filepath.Join(root, "mod.py")
	writeFile(t, entry, "")

	r := New(root, nil)
	res, err := r.Resolve(entry, "totally.not.installed", "python", 0)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Status != External {
		t.Fatalf("expected External for an unresolved python package, got %+v", res)
	}
}
