// Package resolve turns an import specifier written in source into a
// concrete file on disk, a recorded external reference, or a missing
// reference — honoring package manifests, conditional export maps,
// workspace links, and Python namespace packages.
package resolve

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/chainsaw-tool/chainsaw/internal/workspace"
)

// Status discriminates the three resolver outcomes.
type Status int

const (
	// Resolved means Path names a real file to add to the graph.
	Resolved Status = iota
	// External means the specifier names something outside the tree that
	// should not be traversed further: a platform built-in, an asset
	// extension, or an installed dependency whose source chainsaw has not
	// been pointed at.
	External
	// Missing means the specifier looks like it should resolve within the
	// tree but no matching file exists — a real failure worth surfacing.
	Missing
)

// Resolution is the outcome of resolving one specifier.
type Resolution struct {
	Status  Status
	Path    string // absolute path, set when Status == Resolved
	Package string // installed-dependency name, "" for first-party modules
	Reason  string // human-readable cause, set when Status != Resolved
}

var tsExtensions = []string{".ts", ".tsx", ".mts", ".cts", ".js", ".jsx", ".mjs", ".cjs"}

var nodeBuiltins = map[string]bool{
	"assert": true, "buffer": true, "child_process": true, "cluster": true,
	"crypto": true, "dgram": true, "dns": true, "domain": true,
	"events": true, "fs": true, "http": true, "https": true,
	"net": true, "os": true, "path": true, "perf_hooks": true,
	"process": true, "punycode": true, "querystring": true, "readline": true,
	"repl": true, "stream": true, "string_decoder": true, "sys": true,
	"timers": true, "tls": true, "tty": true, "url": true,
	"util": true, "v8": true, "vm": true, "worker_threads": true,
	"zlib": true, "console": true, "module": true,
}

var pythonStdlib = map[string]bool{
	"abc": true, "argparse": true, "asyncio": true, "base64": true,
	"collections": true, "contextlib": true, "copy": true, "csv": true,
	"dataclasses": true, "datetime": true, "enum": true, "functools": true,
	"glob": true, "hashlib": true, "importlib": true, "inspect": true,
	"io": true, "itertools": true, "json": true, "logging": true,
	"math": true, "multiprocessing": true, "os": true, "pathlib": true,
	"pickle": true, "random": true, "re": true, "shutil": true,
	"socket": true, "sqlite3": true, "string": true, "subprocess": true,
	"sys": true, "tempfile": true, "threading": true, "time": true,
	"traceback": true, "typing": true, "unittest": true, "uuid": true,
	"warnings": true, "weakref": true, "xml": true, "zipfile": true,
}

var assetExtensions = map[string]bool{
	".css": true, ".scss": true, ".less": true, ".json": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true,
	".ico": true, ".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
	".wasm": true, ".mp4": true, ".webm": true,
}

// Resolver resolves specifiers against a fixed workspace root.
type Resolver struct {
	root string
	ws   *workspace.Info
}

// New returns a Resolver rooted at root, using ws's alias maps. ws may be nil
// for a standalone tree with no detected workspace manifest.
func New(root string, ws *workspace.Info) *Resolver {
	if ws == nil {
		ws = &workspace.Info{AliasMap: map[string]string{}, TSConfigPaths: map[string]string{}, PySourceRoots: []string{"."}}
	}
	return &Resolver{root: root, ws: ws}
}

// Resolve maps a specifier written in containingFile (an absolute path) to
// its target. language is "tsjs" or "python". dots is the Python relative-
// import dot count (0 for absolute Python specifiers and for TS/JS).
func (r *Resolver) Resolve(containingFile, specifier, language string, dots int) (Resolution, error) {
	switch language {
	case "python":
		return r.resolvePython(containingFile, specifier, dots)
	default:
		return r.resolveTSJS(containingFile, specifier)
	}
}

// --- TS/JS ---

func (r *Resolver) resolveTSJS(containingFile, specifier string) (Resolution, error) {
	if isNodeBuiltin(specifier) {
		return Resolution{Status: External, Reason: "platform built-in"}, nil
	}
	if assetExtensions[filepath.Ext(specifier)] {
		return Resolution{Status: External, Reason: "asset extension"}, nil
	}

	if path, ok := r.resolveViaAliasMap(specifier); ok {
		return r.tsjsResolved(path)
	}
	if path, ok := r.resolveViaTSConfigPaths(specifier); ok {
		return r.tsjsResolved(path)
	}
	if strings.HasPrefix(specifier, ".") {
		dir := filepath.Dir(containingFile)
		candidate := filepath.Clean(filepath.Join(dir, specifier))
		if path, ok := tryExtensionsOnDisk(candidate); ok {
			return r.tsjsResolved(path)
		}
		return Resolution{Status: Missing, Reason: "relative specifier not found"}, nil
	}

	// Bare specifier: walk up from the containing file's directory looking
	// for a node_modules subtree that has the package installed.
	if path, pkg, ok := r.resolveBareSpecifier(containingFile, specifier); ok {
		return Resolution{Status: Resolved, Path: path, Package: pkg}, nil
	}

	return Resolution{Status: External, Reason: "unresolved package"}, nil
}

func (r *Resolver) tsjsResolved(relOrAbs string) (Resolution, error) {
	abs := relOrAbs
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(r.root, abs)
	}
	return Resolution{Status: Resolved, Path: filepath.ToSlash(abs), Package: packageFromPath(abs)}, nil
}

func (r *Resolver) resolveViaAliasMap(specifier string) (string, bool) {
	if entry, ok := r.ws.AliasMap[specifier]; ok {
		if path, ok := tryExtensionsOnDisk(filepath.Join(r.root, entry)); ok {
			return path, true
		}
	}
	for alias, entry := range r.ws.AliasMap {
		rest, ok := strings.CutPrefix(specifier, alias+"/")
		if !ok {
			continue
		}
		pkgRoot := packageRootOf(entry)
		for _, candidate := range []string{
			filepath.Join(r.root, pkgRoot, rest),
			filepath.Join(r.root, pkgRoot, "src", rest),
		} {
			if path, ok := tryExtensionsOnDisk(candidate); ok {
				return path, true
			}
		}
	}
	return "", false
}

func packageRootOf(entryPoint string) string {
	dir := filepath.Dir(entryPoint)
	if base := filepath.Base(dir); base == "src" || base == "lib" || base == "dist" {
		return filepath.Dir(dir)
	}
	return dir
}

func (r *Resolver) resolveViaTSConfigPaths(specifier string) (string, bool) {
	for alias, target := range r.ws.TSConfigPaths {
		if strings.HasSuffix(alias, "/*") {
			prefix := strings.TrimSuffix(alias, "/*")
			rest, ok := strings.CutPrefix(specifier, prefix+"/")
			if !ok {
				continue
			}
			targetDir := strings.TrimRight(strings.TrimSuffix(target, "/*"), "/")
			if path, ok := tryExtensionsOnDisk(filepath.Join(r.root, targetDir, rest)); ok {
				return path, true
			}
			continue
		}
		if specifier == alias {
			if path, ok := tryExtensionsOnDisk(filepath.Join(r.root, target)); ok {
				return path, true
			}
		}
	}
	return "", false
}

// resolveBareSpecifier walks ancestor directories from containingFile
// looking for a node_modules subtree containing the package, then resolves
// its entry point via the conditional export map, main-style fields, or
// index.* in that order.
func (r *Resolver) resolveBareSpecifier(containingFile, specifier string) (string, string, bool) {
	pkgName, subpath := splitPackageSpecifier(specifier)

	dir := filepath.Dir(containingFile)
	for {
		pkgDir := filepath.Join(dir, "node_modules", pkgName)
		if st, err := os.Stat(pkgDir); err == nil && st.IsDir() {
			if path, ok := resolvePackageEntry(pkgDir, subpath); ok {
				return path, pkgName, true
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir || !within(r.root, dir) {
			break
		}
		dir = parent
	}
	return "", "", false
}

func within(root, dir string) bool {
	rel, err := filepath.Rel(root, dir)
	return err == nil && !strings.HasPrefix(rel, "..")
}

// splitPackageSpecifier separates a bare specifier into its package name
// (honoring @scope/name) and the remaining subpath, if any.
func splitPackageSpecifier(specifier string) (pkgName, subpath string) {
	parts := strings.SplitN(specifier, "/", 3)
	if strings.HasPrefix(specifier, "@") && len(parts) >= 2 {
		pkgName = parts[0] + "/" + parts[1]
		if len(parts) == 3 {
			subpath = parts[2]
		}
		return
	}
	pkgName = parts[0]
	if len(parts) > 1 {
		subpath = strings.Join(parts[1:], "/")
	}
	return
}

type packageManifest struct {
	Name    string          `json:"name"`
	Main    string          `json:"main"`
	Module  string          `json:"module"`
	Types   string          `json:"types"`
	Exports json.RawMessage `json:"exports"`
}

// resolvePackageEntry resolves subpath ("" for the package root) against the
// package's manifest: conditional export map first, then main-style fields,
// then index.*.
func resolvePackageEntry(pkgDir, subpath string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(pkgDir, "package.json"))
	if err == nil {
		var manifest packageManifest
		if json.Unmarshal(data, &manifest) == nil && manifest.Exports != nil {
			if path, ok := resolveExportsField(pkgDir, manifest.Exports, subpath); ok {
				return path, true
			}
		}
		if subpath == "" {
			for _, field := range []string{manifest.Module, manifest.Main} {
				if field == "" {
					continue
				}
				if path, ok := tryExtensionsOnDisk(filepath.Join(pkgDir, field)); ok {
					return path, true
				}
			}
		}
	}

	base := pkgDir
	if subpath != "" {
		base = filepath.Join(pkgDir, subpath)
	}
	return tryExtensionsOnDisk(base)
}

// resolveExportsField resolves the "exports" manifest field, which may be a
// single string, a subpath map (possibly with a "*" pattern), or a
// conditional object keyed by condition name ("import", "require",
// "default", "types", ...). An empty subpath (a bare package import)
// resolves via the "." entry; a subpath of "." is looked up as "./." and
// does not match it.
func resolveExportsField(pkgDir string, raw json.RawMessage, subpath string) (string, bool) {
	key := "."
	if subpath != "" {
		key = "./" + subpath
	}

	var single string
	if json.Unmarshal(raw, &single) == nil {
		if key == "." {
			return tryExtensionsOnDisk(filepath.Join(pkgDir, single))
		}
		return "", false
	}

	var m map[string]json.RawMessage
	if json.Unmarshal(raw, &m) != nil {
		return "", false
	}

	if entry, ok := m[key]; ok {
		return resolveExportTarget(pkgDir, entry)
	}

	// Pattern subpaths: "./feature/*" -> "./src/feature/*.js", where the
	// matched remainder of the specifier substitutes for "*" in the target.
	for pattern, entry := range m {
		prefix, ok := strings.CutSuffix(pattern, "*")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		if path, ok := resolveExportTargetPattern(pkgDir, entry, rest); ok {
			return path, true
		}
	}

	// Conditional object at the top level (no subpath keys at all) applies
	// directly to the package root.
	if key == "." {
		return resolveExportTarget(pkgDir, raw)
	}
	return "", false
}

// resolveExportTarget unwraps condition nesting, trying the "import",
// "module", "default" and "require" conditions in that order; any other
// condition key is ignored.
func resolveExportTarget(pkgDir string, raw json.RawMessage) (string, bool) {
	return resolveExportTargetPattern(pkgDir, raw, "")
}

// resolveExportTargetPattern is resolveExportTarget with an optional
// pattern-match remainder substituted for a literal "*" in the target path.
func resolveExportTargetPattern(pkgDir string, raw json.RawMessage, rest string) (string, bool) {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		if rest != "" {
			s = strings.Replace(s, "*", rest, 1)
		}
		return tryExtensionsOnDisk(filepath.Join(pkgDir, s))
	}
	var conditions map[string]json.RawMessage
	if json.Unmarshal(raw, &conditions) == nil {
		for _, cond := range []string{"import", "module", "default", "require"} {
			if entry, ok := conditions[cond]; ok {
				if path, ok := resolveExportTargetPattern(pkgDir, entry, rest); ok {
					return path, true
				}
			}
		}
	}
	return "", false
}

// tryExtensionsOnDisk implements spec.md §4.2's extensionless resolution
// order: literal path, path+extension, path as a directory with index.*,
// plus the .js -> .ts rewrite when only the .ts sibling exists.
func tryExtensionsOnDisk(candidate string) (string, bool) {
	if isFile(candidate) {
		return candidate, true
	}
	if rewritten, ok := jsToTsRewrite(candidate); ok {
		return rewritten, true
	}
	for _, ext := range tsExtensions {
		if isFile(candidate + ext) {
			return candidate + ext, true
		}
	}
	for _, ext := range tsExtensions {
		idx := filepath.Join(candidate, "index"+ext)
		if isFile(idx) {
			return idx, true
		}
	}
	return "", false
}

// jsToTsRewrite applies the ESM-era convention that an explicit `.js`
// specifier should resolve to its `.ts` (or `.tsx`) source when that sibling
// exists and the `.js` is not itself a real file (it will be emitted by the
// compiler); tryExtensionsOnDisk calls it only after the literal path missed
// — spec.md requires this rewrite to win whenever the `.ts`
// sibling exists and the literal `.js` does not.
func jsToTsRewrite(candidate string) (string, bool) {
	if !strings.HasSuffix(candidate, ".js") {
		return "", false
	}
	base := strings.TrimSuffix(candidate, ".js")
	if isFile(base + ".ts") {
		return base + ".ts", true
	}
	if isFile(base + ".tsx") {
		return base + ".tsx", true
	}
	return "", false
}

func isFile(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

func isNodeBuiltin(specifier string) bool {
	mod := strings.TrimPrefix(specifier, "node:")
	if idx := strings.Index(mod, "/"); idx != -1 {
		mod = mod[:idx]
	}
	return nodeBuiltins[mod]
}

// packageFromPath derives the installed-dependency package name from a
// resolved path, honoring scoped (@scope/name) packages, or "" for
// first-party source.
func packageFromPath(path string) string {
	path = filepath.ToSlash(path)
	marker := "/node_modules/"
	idx := strings.LastIndex(path, marker)
	if idx == -1 {
		return ""
	}
	rest := path[idx+len(marker):]
	parts := strings.Split(rest, "/")
	if len(parts) == 0 {
		return ""
	}
	if strings.HasPrefix(parts[0], "@") && len(parts) >= 2 {
		return parts[0] + "/" + parts[1]
	}
	return parts[0]
}

// --- Python ---

func (r *Resolver) resolvePython(containingFile, specifier string, dots int) (Resolution, error) {
	if dots > 0 {
		return r.resolvePythonRelative(containingFile, specifier, dots)
	}

	first := specifier
	if idx := strings.Index(specifier, "."); idx != -1 {
		first = specifier[:idx]
	}
	if pythonStdlib[first] {
		return Resolution{Status: External, Reason: "standard library"}, nil
	}

	rel := strings.ReplaceAll(specifier, ".", string(filepath.Separator))
	for _, srcRoot := range r.ws.PySourceRoots {
		base := filepath.Join(r.root, srcRoot, rel)
		if res, ok := resolvePythonTarget(base, ""); ok {
			return res, nil
		}
	}

	if path, ok := findSitePackages(r.root, rel); ok {
		return Resolution{Status: Resolved, Path: path, Package: first}, nil
	}

	return Resolution{Status: External, Reason: "unresolved package"}, nil
}

// resolvePythonRelative resolves "from . import x" / "from ..pkg import x".
// dots == 1 means the current package (the containing file's own
// directory); each additional dot climbs one more directory.
func (r *Resolver) resolvePythonRelative(containingFile, specifier string, dots int) (Resolution, error) {
	base := filepath.Dir(containingFile)
	for i := 1; i < dots; i++ {
		base = filepath.Dir(base)
	}
	if specifier != "" {
		base = filepath.Join(base, strings.ReplaceAll(specifier, ".", string(filepath.Separator)))
	}
	if res, ok := resolvePythonTarget(base, ""); ok {
		return res, nil
	}
	return Resolution{Status: Missing, Reason: "relative specifier not found"}, nil
}

// resolvePythonTarget resolves base to a package (__init__.py/__init__.pyi),
// a plain module (base.py/base.pyi), or a namespace package (a directory
// with no __init__ but that exists on disk) — modeled as a zero-size module
// per spec.md §4.2.
func resolvePythonTarget(base, pkgName string) (Resolution, bool) {
	for _, initName := range []string{"__init__.py", "__init__.pyi"} {
		if isFile(filepath.Join(base, initName)) {
			return Resolution{Status: Resolved, Path: filepath.ToSlash(filepath.Join(base, initName)), Package: pkgName}, true
		}
	}
	for _, ext := range []string{".py", ".pyi"} {
		if isFile(base + ext) {
			return Resolution{Status: Resolved, Path: filepath.ToSlash(base + ext), Package: pkgName}, true
		}
	}
	if st, err := os.Stat(base); err == nil && st.IsDir() {
		// Namespace package: recorded as a synthetic zero-byte module at
		// the directory path itself; the walker is responsible for not
		// stat-ing it for size.
		return Resolution{Status: Resolved, Path: filepath.ToSlash(base) + "/__namespace__", Package: pkgName}, true
	}
	return Resolution{}, false
}

// findSitePackages looks for the conventional installed-dependency root
// (a "site-packages" directory reachable under a virtualenv-style tree) and
// resolves rel beneath it.
func findSitePackages(root, rel string) (string, bool) {
	candidates, _ := filepath.Glob(filepath.Join(root, ".venv", "lib", "*", "site-packages"))
	more, _ := filepath.Glob(filepath.Join(root, "venv", "lib", "*", "site-packages"))
	candidates = append(candidates, more...)
	candidates = append(candidates, filepath.Join(root, "site-packages"))

	for _, siteDir := range candidates {
		base := filepath.Join(siteDir, rel)
		if res, ok := resolvePythonTarget(base, ""); ok {
			return res.Path, true
		}
	}
	return "", false
}
