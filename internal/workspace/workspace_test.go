package workspace

import (
	"os"
	"path/filepath"
	"testing"
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

func TestDetect_StandaloneWithNoManifest(t *testing.T) {
	root := t.TempDir()
	info, err := Detect(root, "")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if info.Type != "standalone" {
		t.Fatalf("expected standalone workspace, got %q", info.Type)
	}
	if len(info.Packages) != 0 {
		t.Fatalf("expected no packages for a manifest-less directory, got %+v", info.Packages)
	}
}

func TestDetect_NonexistentRootErrors(t *testing.T) {
	if _, err := Detect(filepath.Join(t.TempDir(), "missing"), ""); err == nil {
		t.Fatal("expected an error for a non-existent workspace root")
	}
}

func TestDetect_PackageJSONWorkspacesDiscoversMembers(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "package.json"), `{"name":"root","workspaces":["packages/*"]}`)
	writeFile(t, filepath.Join(root, "packages", "a", "package.json"), `{"name":"@acme/a","main":"index.js"}`)
	writeFile(t, filepath.Join(root, "packages", "a", "index.js"), `module.exports = {}`)

	info, err := Detect(root, "")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if info.Type != "monorepo" {
		t.Fatalf("expected monorepo workspace, got %q", info.Type)
	}
	if len(info.Packages) != 1 || info.Packages[0].Name != "@acme/a" {
		t.Fatalf("expected one discovered package @acme/a, got %+v", info.Packages)
	}
	if info.AliasMap["@acme/a"] != "packages/a/index.js" {
		t.Fatalf("expected alias map entry for @acme/a, got %+v", info.AliasMap)
	}
}

func TestDetect_PnpmWorkspaceYAML(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pnpm-workspace.yaml"), "packages:\n  - 'packages/*'\n")
	writeFile(t, filepath.Join(root, "pnpm-lock.yaml"), "")
	writeFile(t, filepath.Join(root, "packages", "b", "package.json"), `{"name":"b","main":"index.js"}`)

	info, err := Detect(root, "")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if info.PackageManager != "pnpm" {
		t.Fatalf("expected pnpm detected via pnpm-lock.yaml, got %q", info.PackageManager)
	}
	if info.Type != "monorepo" || len(info.Packages) != 1 {
		t.Fatalf("expected one package discovered via pnpm-workspace.yaml, got %+v", info.Packages)
	}
}

func TestDetect_TSConfigPathsWithExtends(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "tsconfig.base.json"), `{"compilerOptions":{"baseUrl":".","paths":{"@/*":["src/*"]}}}`)
	writeFile(t, filepath.Join(root, "tsconfig.json"), `{"extends":"./tsconfig.base.json","compilerOptions":{"paths":{}}}`)

	info, err := Detect(root, "")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if info.TSConfigPaths["@/*"] != "src" {
		t.Fatalf("expected @/* to resolve to src via the extended tsconfig, got %+v", info.TSConfigPaths)
	}
}

// TestDiscoverPySourceRoots_WalksUpPastNestedPackages confirms the walk
// doesn't stop at the first __init__.py it sees: both proj/ and proj/sub/
// are packages, so it climbs past both and lands on root itself, where
// "import proj.sub.mod" resolves from — collapsing to just ["."].
func TestDiscoverPySourceRoots_WalksUpPastNestedPackages(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "proj", "__init__.py"), "")
	writeFile(t, filepath.Join(root, "proj", "sub", "__init__.py"), "")
	entry := filepath.Join(root, "proj", "sub", "mod.py")
	writeFile(t, entry, "")

	roots := discoverPySourceRoots(root, entry)
	if len(roots) != 1 || roots[0] != "." {
		t.Fatalf("expected just [\".\"] once the walk climbs past both packages to root, got %+v", roots)
	}
}

func TestDiscoverPySourceRoots_StopsAtFirstNonPackageAncestor(t *testing.T) {
	root := t.TempDir()
	// src has no __init__.py: it is the source root, proj below it is a package.
	writeFile(t, filepath.Join(root, "src", "proj", "__init__.py"), "")
	entry := filepath.Join(root, "src", "proj", "mod.py")
	writeFile(t, entry, "")

	roots := discoverPySourceRoots(root, entry)
	if len(roots) != 2 || roots[0] != "." || roots[1] != "src" {
		t.Fatalf("expected [\".\", \"src\"], got %+v", roots)
	}
}

func TestDiscoverPySourceRoots_EmptyEntryIsJustRoot(t *testing.T) {
	root := t.TempDir()
	roots := discoverPySourceRoots(root, "")
	if len(roots) != 1 || roots[0] != "." {
		t.Fatalf("expected just [\".\"] for an empty entry, got %+v", roots)
	}
}

func TestDiscoverPySourceRoots_EntryOutsideRootIsJustRoot(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()
	writeFile(t, filepath.Join(other, "__init__.py"), "")
	entry := filepath.Join(other, "mod.py")
	writeFile(t, entry, "")

	roots := discoverPySourceRoots(root, entry)
	if len(roots) != 1 || roots[0] != "." {
		t.Fatalf("expected just [\".\"] when entry lies outside root, got %+v", roots)
	}
}

func TestDiscoverPySourceRoots_NonPackageEntryDirIsAddedAsRoot(t *testing.T) {
	root := t.TempDir()
	entry := filepath.Join(root, "scripts", "run.py")
	writeFile(t, entry, "")

	roots := discoverPySourceRoots(root, entry)
	if len(roots) != 2 || roots[1] != "scripts" {
		t.Fatalf("expected [\".\", \"scripts\"] since scripts/ itself has no __init__.py, got %+v", roots)
	}
}
