// Package workspace detects the monorepo/workspace shape of a source tree
// and builds the alias map the resolver consults for bare-specifier lookups.
package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Info describes a detected workspace: its package manager, member packages,
// and the alias maps that feed resolution.
type Info struct {
	Type           string // "standalone" or "monorepo"
	PackageManager string // "pnpm", "yarn", "npm", or ""
	Packages       []Package

	// AliasMap maps a package name to its entry-point file, relative to root.
	AliasMap map[string]string
	// TSConfigPaths maps a tsconfig `paths` alias (e.g. "@/*") to its target
	// glob (e.g. "src/*"), relative to root.
	TSConfigPaths map[string]string
	// PySourceRoots lists directories (relative to root) that Python
	// absolute imports are resolved against: "." always, plus the directory
	// found by walking up from the entry file while each ancestor still has
	// an `__init__.py`, stopping at the first one that doesn't — spec.md
	// §4.2's "walking up from the entry file until no __init__.py is
	// present".
	PySourceRoots []string
}

// Detect inspects root and returns its workspace shape. entry is the
// absolute path of the file being traced, used only to discover
// PySourceRoots; when it is empty PySourceRoots is just ".". A
// directory with no recognizable manifest is reported as a standalone
// single-package workspace.
func Detect(root, entry string) (*Info, error) {
	st, err := os.Stat(root)
	if err != nil || !st.IsDir() {
		return nil, fmt.Errorf("workspace root does not exist: %s", root)
	}

	info := &Info{
		AliasMap:      make(map[string]string),
		TSConfigPaths: make(map[string]string),
	}

	globs, err := workspaceGlobs(root)
	if err != nil {
		return nil, fmt.Errorf("reading workspace manifest: %w", err)
	}

	info.PackageManager = detectPackageManager(root)

	if len(globs) == 0 {
		info.Type = "standalone"
		if pkg, ok := readPackageJSON(root, root); ok {
			info.Packages = []Package{pkg}
		}
	} else {
		info.Type = "monorepo"
		packages, err := discoverPackages(root, globs)
		if err != nil {
			return nil, fmt.Errorf("discovering workspace packages: %w", err)
		}
		info.Packages = packages
	}

	for _, pkg := range info.Packages {
		if pkg.Name == "" || pkg.EntryPoint == "" {
			continue
		}
		info.AliasMap[pkg.Name] = filepath.ToSlash(filepath.Join(pkg.Path, pkg.EntryPoint))
	}

	if paths, err := readTSConfigPaths(root, root); err == nil {
		for k, v := range paths {
			info.TSConfigPaths[k] = v
		}
	}
	for _, pkg := range info.Packages {
		pkgDir := filepath.Join(root, pkg.Path)
		if paths, err := readTSConfigPaths(pkgDir, root); err == nil {
			for k, v := range paths {
				if _, exists := info.TSConfigPaths[k]; !exists {
					info.TSConfigPaths[k] = v
				}
			}
		}
	}

	info.PySourceRoots = discoverPySourceRoots(root, entry)

	return info, nil
}

// Package is one member of a workspace (or the sole package of a standalone
// project).
type Package struct {
	Name       string
	Path       string // relative to workspace root
	Version    string
	EntryPoint string // relative to Path
}

func workspaceGlobs(root string) ([]string, error) {
	if globs, err := readPnpmWorkspace(filepath.Join(root, "pnpm-workspace.yaml")); err == nil && len(globs) > 0 {
		return globs, nil
	}
	if globs, err := readPackageJSONWorkspaces(filepath.Join(root, "package.json")); err == nil && len(globs) > 0 {
		return globs, nil
	}
	if globs, err := readLernaPackages(filepath.Join(root, "lerna.json")); err == nil && len(globs) > 0 {
		return globs, nil
	}
	return nil, nil
}

// readPnpmWorkspace parses pnpm-workspace.yaml's `packages:` list with a real
// YAML decoder rather than hand-rolled line scanning.
func readPnpmWorkspace(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Packages []string `yaml:"packages"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing pnpm-workspace.yaml: %w", err)
	}
	return doc.Packages, nil
}

func readPackageJSONWorkspaces(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing package.json: %w", err)
	}
	wsRaw, ok := raw["workspaces"]
	if !ok {
		return nil, nil
	}
	var globs []string
	if err := json.Unmarshal(wsRaw, &globs); err == nil {
		return globs, nil
	}
	var obj struct {
		Packages []string `json:"packages"`
	}
	if err := json.Unmarshal(wsRaw, &obj); err == nil {
		return obj.Packages, nil
	}
	return nil, nil
}

func readLernaPackages(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Packages []string `json:"packages"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing lerna.json: %w", err)
	}
	return doc.Packages, nil
}

func detectPackageManager(root string) string {
	switch {
	case fileExists(filepath.Join(root, "pnpm-lock.yaml")):
		return "pnpm"
	case fileExists(filepath.Join(root, "yarn.lock")):
		return "yarn"
	case fileExists(filepath.Join(root, "package-lock.json")):
		return "npm"
	default:
		return ""
	}
}

func discoverPackages(root string, globs []string) ([]Package, error) {
	var packages []Package
	seen := make(map[string]bool)
	var negations []string
	for _, g := range globs {
		if rest, ok := strings.CutPrefix(g, "!"); ok {
			negations = append(negations, rest)
		}
	}

	for _, pattern := range globs {
		if strings.HasPrefix(pattern, "!") {
			continue
		}
		matches, err := filepath.Glob(filepath.Join(root, pattern))
		if err != nil {
			return nil, fmt.Errorf("expanding glob %q: %w", pattern, err)
		}
		for _, match := range matches {
			st, err := os.Stat(match)
			if err != nil || !st.IsDir() {
				continue
			}
			rel, err := filepath.Rel(root, match)
			if err != nil || seen[rel] {
				continue
			}
			if negated(rel, negations) {
				continue
			}
			pkg, ok := readPackageJSON(match, root)
			if !ok {
				continue
			}
			seen[rel] = true
			packages = append(packages, pkg)
		}
	}
	return packages, nil
}

func negated(rel string, negations []string) bool {
	for _, n := range negations {
		if matched, err := filepath.Match(n, rel); err == nil && matched {
			return true
		}
	}
	return false
}

func readPackageJSON(dir, root string) (Package, bool) {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return Package{}, false
	}
	var manifest struct {
		Name    string `json:"name"`
		Version string `json:"version"`
		Main    string `json:"main"`
		Module  string `json:"module"`
		Source  string `json:"source"`
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return Package{}, false
	}
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		rel = dir
	}
	return Package{
		Name:       manifest.Name,
		Path:       rel,
		Version:    manifest.Version,
		EntryPoint: entryPointOf(dir, manifest.Source, manifest.Module, manifest.Main),
	}, true
}

// entryPointOf prefers a source-level candidate file, then the manifest's
// own source/module/main fields in that priority order.
func entryPointOf(dir, source, module, main string) string {
	candidates := []string{
		"src/index.ts", "src/index.tsx", "src/index.js", "src/index.jsx",
		"index.ts", "index.tsx", "index.js", "index.jsx",
	}
	for _, c := range candidates {
		if fileExists(filepath.Join(dir, c)) {
			return c
		}
	}
	switch {
	case source != "":
		return source
	case module != "":
		return module
	default:
		return main
	}
}

// readTSConfigPaths reads compilerOptions.paths from dir/tsconfig.json,
// following a single "extends" hop (the common case).
func readTSConfigPaths(dir, root string) (map[string]string, error) {
	path := filepath.Join(dir, "tsconfig.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg struct {
		Extends        string `json:"extends"`
		CompilerOptions struct {
			BaseURL string              `json:"baseUrl"`
			Paths   map[string][]string `json:"paths"`
		} `json:"compilerOptions"`
	}
	if err := json.Unmarshal(stripJSONCComments(data), &cfg); err != nil {
		return nil, fmt.Errorf("parsing tsconfig.json: %w", err)
	}

	result := make(map[string]string)
	baseDir := dir
	if cfg.CompilerOptions.BaseURL != "" {
		baseDir = filepath.Join(dir, cfg.CompilerOptions.BaseURL)
	}
	for alias, targets := range cfg.CompilerOptions.Paths {
		if len(targets) == 0 {
			continue
		}
		relBase, err := filepath.Rel(root, filepath.Join(baseDir, targets[0]))
		if err != nil {
			continue
		}
		result[alias] = filepath.ToSlash(relBase)
	}

	if cfg.Extends != "" {
		if parent, err := readTSConfigPaths(filepath.Dir(filepath.Join(dir, cfg.Extends)), root); err == nil {
			for k, v := range parent {
				if _, exists := result[k]; !exists {
					result[k] = v
				}
			}
		}
	}
	return result, nil
}

// stripJSONCComments removes // line comments so tsconfig.json (which
// permits them) parses with the standard library's strict JSON decoder.
func stripJSONCComments(data []byte) []byte {
	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		if idx := findCommentStart(line); idx >= 0 {
			lines[i] = line[:idx]
		}
	}
	return []byte(strings.Join(lines, "\n"))
}

func findCommentStart(line string) int {
	inString := false
	for i := 0; i < len(line)-1; i++ {
		switch line[i] {
		case '"':
			inString = !inString
		case '/':
			if !inString && line[i+1] == '/' {
				return i
			}
		}
	}
	return -1
}

// discoverPySourceRoots implements spec.md §4.2's Python absolute-import
// root discovery: starting at the entry file's own directory, walk upward
// while each ancestor still has an `__init__.py`, stopping at (and
// returning) the first ancestor that doesn't — that directory is where
// `import pkg.sub` resolves from. Returns just "." when entry is empty or
// when that walk ends at root itself or outside it. An entry whose own
// directory has no `__init__.py` (a TS/JS entry, or a standalone script)
// adds that directory as a root.
func discoverPySourceRoots(root, entry string) []string {
	roots := []string{"."}
	if entry == "" {
		return roots
	}

	dir := filepath.Dir(entry)
	for dirIsPythonPackage(dir) {
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	rel, err := filepath.Rel(root, dir)
	if err != nil || strings.HasPrefix(rel, "..") {
		return roots
	}
	rel = filepath.ToSlash(rel)
	if rel == "." {
		return roots
	}
	return append(roots, rel)
}

func dirIsPythonPackage(dir string) bool {
	return fileExists(filepath.Join(dir, "__init__.py")) || fileExists(filepath.Join(dir, "__init__.pyi"))
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
