// Package trace orchestrates one end-to-end run of the core: load cache,
// walk from an entry file, run the requested queries, save cache and
// snapshot, and assemble the JSON report.
package trace

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/chainsaw-tool/chainsaw/internal/cache"
	"github.com/chainsaw-tool/chainsaw/internal/config"
	"github.com/chainsaw-tool/chainsaw/internal/graph"
	"github.com/chainsaw-tool/chainsaw/internal/lang/python"
	"github.com/chainsaw-tool/chainsaw/internal/lang/tsjs"
	"github.com/chainsaw-tool/chainsaw/internal/query"
	"github.com/chainsaw-tool/chainsaw/internal/report"
	"github.com/chainsaw-tool/chainsaw/internal/resolve"
	"github.com/chainsaw-tool/chainsaw/internal/snapshot"
	"github.com/chainsaw-tool/chainsaw/internal/walk"
	"github.com/chainsaw-tool/chainsaw/internal/workspace"
)

// ToolVersion is folded into the cache fingerprint and into saved
// snapshots; set at build time via -ldflags, defaulting to "dev".
var ToolVersion = "dev"

// Options mirrors the `trace` command's flags (spec.md §6).
type Options struct {
	Entry          string
	Chain          string
	Cut            string
	Diff           string
	DiffFrom       string
	Save           string
	IncludeDynamic bool
	Top            int
	TopModules     int
	NoCache        bool
	Quiet          bool
	Workers        int
}

// Run executes one trace and returns the assembled report.
func Run(ctx context.Context, log *slog.Logger, opts Options) (*report.Report, error) {
	root, err := projectRoot(opts.Entry)
	if err != nil {
		return nil, err
	}

	g, pc, store, fingerprint, err := buildGraph(ctx, log, root, opts)
	if err != nil {
		return nil, err
	}

	entryAbs, err := filepath.Abs(opts.Entry)
	if err != nil {
		return nil, fmt.Errorf("resolving entry path: %w", err)
	}
	entryID, ok := g.ModuleByPath(filepath.ToSlash(entryAbs))
	if !ok {
		return nil, fmt.Errorf("entry %q was not found in the built graph", opts.Entry)
	}

	rep := assembleReport(g, entryID, opts)

	if opts.Diff != "" {
		diffGraph, diffEntryID, err := buildSecondaryGraph(ctx, log, root, opts, opts.Diff)
		if err != nil {
			return nil, err
		}
		d := crossGraphDiff(g, entryID, diffGraph, diffEntryID, opts.IncludeDynamic)
		rep.Diff = &report.DiffEntry{OnlyInA: d.OnlyInA, OnlyInB: d.OnlyInB, Shared: d.Shared, DeltaBytes: d.DeltaBytes}
	} else if opts.DiffFrom != "" {
		prior, err := snapshot.Load(opts.DiffFrom)
		if err != nil {
			return nil, fmt.Errorf("loading snapshot %q: %w", opts.DiffFrom, err)
		}
		heavy := query.HeavyDependencies(g, entryID, opts.IncludeDynamic, 1<<30)
		current := make(map[string]int64, len(heavy))
		for _, h := range heavy {
			current[h.Name] = h.Bytes
		}
		d := diffAgainstSnapshot(prior.Bytes(), current)
		rep.Diff = &report.DiffEntry{OnlyInA: d.OnlyInA, OnlyInB: d.OnlyInB, Shared: d.Shared, DeltaBytes: d.DeltaBytes}
	}

	if opts.Save != "" {
		heavy := query.HeavyDependencies(g, entryID, opts.IncludeDynamic, 1<<30)
		snap := snapshot.FromHeavy(opts.Entry, ToolVersion, heavy, rep.StaticBytes)
		if err := snapshot.Save(opts.Save, snap); err != nil {
			log.Warn("snapshot save failed", "path", opts.Save, "error", err)
		}
	}

	if !opts.NoCache {
		if err := store.Save(fingerprint, pc, g); err != nil {
			log.Warn("cache save failed", "error", err)
		}
	}

	return rep, nil
}

func assembleReport(g *graph.Graph, entryID graph.ModuleID, opts Options) *report.Report {
	static := query.TransitiveWeight(g, entryID, false)
	withDynamic := query.TransitiveWeight(g, entryID, true)

	rep := &report.Report{
		Entry:          g.Module(entryID).Path,
		StaticBytes:    static.Bytes,
		StaticModules:  static.Visited,
		DynamicBytes:   withDynamic.Bytes - static.Bytes,
		DynamicModules: withDynamic.Visited - static.Visited,
	}

	targetPkg := opts.Chain
	if targetPkg == "" {
		targetPkg = opts.Cut
	}

	heavy := query.HeavyDependencies(g, entryID, opts.IncludeDynamic, opts.Top)
	rep.Heavy = make([]report.HeavyEntry, len(heavy))
	foundTarget := false
	for i, h := range heavy {
		entry := report.HeavyEntry{Package: h.Name, Bytes: h.Bytes, Files: h.Files}
		if targetPkg != "" && h.Name == targetPkg {
			foundTarget = true
			chains := query.ShortestChains(g, entryID, h.Name, opts.IncludeDynamic, 1)
			if len(chains) > 0 {
				entry.Chain = chains[0].Paths(g)
			}
		}
		rep.Heavy[i] = entry
	}

	// A --chain/--cut target that never resolved to a file still deserves
	// an answer rather than a silent "not found" — spec.md §7 requires
	// surfacing it via whatever module recorded the failed specifier.
	if targetPkg != "" && !foundTarget {
		if refs := query.UnresolvedReferencing(g, targetPkg); len(refs) > 0 {
			paths := make([]string, len(refs))
			for i, id := range refs {
				paths[i] = g.Module(id).Path
			}
			sort.Strings(paths)
			rep.Unresolved = &report.UnresolvedHint{Package: targetPkg, ReferencedBy: paths}
		}
	}

	ids := allModuleIDs(g)
	rep.Modules = moduleListing(g, ids, opts.IncludeDynamic, opts.TopModules)

	return rep
}

func allModuleIDs(g *graph.Graph) []graph.ModuleID {
	n := g.NumModules()
	ids := make([]graph.ModuleID, n)
	for i := 0; i < n; i++ {
		ids[i] = graph.ModuleID(i)
	}
	return ids
}

// moduleListing orders by descending transitive cost then ascending path,
// per spec.md §4.6's determinism rule, truncated to topN. TransitiveBytes is
// each module's own transitive weight as an entry point (spec.md §6's
// `transitive_bytes` field), not its own file size — a non-leaf module must
// report what it pulls in, not just what it weighs on disk.
func moduleListing(g *graph.Graph, ids []graph.ModuleID, includeDynamic bool, topN int) []report.ModuleEntry {
	if topN <= 0 {
		topN = 20
	}
	entries := make([]report.ModuleEntry, len(ids))
	for i, id := range ids {
		w := query.TransitiveWeight(g, id, includeDynamic)
		entries[i] = report.ModuleEntry{Path: g.Module(id).Path, TransitiveBytes: w.Bytes}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TransitiveBytes != entries[j].TransitiveBytes {
			return entries[i].TransitiveBytes > entries[j].TransitiveBytes
		}
		return entries[i].Path < entries[j].Path
	})
	if len(entries) > topN {
		entries = entries[:topN]
	}
	return entries
}

type diffResult struct {
	OnlyInA, OnlyInB, Shared []string
	DeltaBytes               int64
}

// crossGraphDiff compares two independently-built graphs by their
// per-package byte totals; query.DiffEntries can't be reused directly since
// it assumes both entries live in the same graph.
func crossGraphDiff(gA *graph.Graph, entryA graph.ModuleID, gB *graph.Graph, entryB graph.ModuleID, includeDynamic bool) diffResult {
	heavyA := query.HeavyDependencies(gA, entryA, includeDynamic, 1<<30)
	heavyB := query.HeavyDependencies(gB, entryB, includeDynamic, 1<<30)
	bytesA := make(map[string]int64, len(heavyA))
	for _, h := range heavyA {
		bytesA[h.Name] = h.Bytes
	}
	bytesB := make(map[string]int64, len(heavyB))
	for _, h := range heavyB {
		bytesB[h.Name] = h.Bytes
	}
	res := diffAgainstSnapshot(bytesA, bytesB)
	return res
}

func diffAgainstSnapshot(a, b map[string]int64) diffResult {
	var res diffResult
	var totalA, totalB int64
	for name, bytes := range a {
		totalA += bytes
		if _, ok := b[name]; ok {
			res.Shared = append(res.Shared, name)
		} else {
			res.OnlyInA = append(res.OnlyInA, name)
		}
	}
	for name, bytes := range b {
		totalB += bytes
		if _, ok := a[name]; !ok {
			res.OnlyInB = append(res.OnlyInB, name)
		}
	}
	sort.Strings(res.OnlyInA)
	sort.Strings(res.OnlyInB)
	sort.Strings(res.Shared)
	res.DeltaBytes = totalB - totalA
	return res
}

// buildGraph loads the cache, detects the workspace, and walks from entry,
// returning the finished graph and the cache state needed to save it back.
func buildGraph(ctx context.Context, log *slog.Logger, root string, opts Options) (*graph.Graph, *cache.ParseCache, *cache.Store, [32]byte, error) {
	projCfg, err := config.LoadProjectConfig(root)
	if err != nil {
		return nil, nil, nil, [32]byte{}, err
	}

	entryAbs, err := filepath.Abs(opts.Entry)
	if err != nil {
		return nil, nil, nil, [32]byte{}, fmt.Errorf("resolving entry path: %w", err)
	}
	ws, err := workspace.Detect(root, filepath.ToSlash(entryAbs))
	if err != nil {
		return nil, nil, nil, [32]byte{}, fmt.Errorf("detecting workspace: %w", err)
	}

	fingerprint := cache.Fingerprint(ToolVersion, append([]string{root}, projCfg.SourceRoots...), projCfg.Fingerprint())
	store := cache.NewStore(root)

	var pc *cache.ParseCache
	var g *graph.Graph
	if opts.NoCache {
		pc = cache.NewParseCache()
	} else {
		pc, g, err = store.Load(fingerprint)
		if err != nil {
			log.Warn("cache load failed, rebuilding", "error", err)
			pc = cache.NewParseCache()
		}
	}
	if g == nil {
		g = graph.New()
	}
	g.ResolverFingerprint = fmt.Sprintf("%x", fingerprint)

	resolver := resolve.New(root, ws)
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	w := walk.New(root, g, resolver, tsjs.New(), python.New(), pc, workers, log)
	if err := w.Run(ctx, opts.Entry); err != nil {
		return nil, nil, nil, [32]byte{}, err
	}

	return g, pc, store, fingerprint, nil
}

// BuildGraphForQuery runs a trace's graph-building phase only, for callers
// that need to run ad hoc queries (e.g. the HTTP server's /graph/chain)
// without assembling a full report. It reads the same on-disk cache as Run
// (through buildGraph) and saves it back once the graph is built.
func BuildGraphForQuery(ctx context.Context, log *slog.Logger, entry string) (*graph.Graph, graph.ModuleID, error) {
	root, err := projectRoot(entry)
	if err != nil {
		return nil, 0, err
	}
	g, pc, store, fingerprint, err := buildGraph(ctx, log, root, Options{Entry: entry})
	if err != nil {
		return nil, 0, err
	}
	if err := store.Save(fingerprint, pc, g); err != nil {
		log.Warn("cache save failed", "error", err)
	}
	abs, err := filepath.Abs(entry)
	if err != nil {
		return nil, 0, err
	}
	id, ok := g.ModuleByPath(filepath.ToSlash(abs))
	if !ok {
		return nil, 0, fmt.Errorf("entry %q was not found in the built graph", entry)
	}
	return g, id, nil
}

// buildSecondaryGraph runs an independent walk for the --diff comparison
// entry, sharing no state with the primary graph.
func buildSecondaryGraph(ctx context.Context, log *slog.Logger, root string, opts Options, entry string) (*graph.Graph, graph.ModuleID, error) {
	secondary := opts
	secondary.Entry = entry
	secondary.Save = ""
	secondary.Diff = ""
	secondary.DiffFrom = ""
	g, _, _, _, err := buildGraph(ctx, log, root, secondary)
	if err != nil {
		return nil, 0, err
	}
	abs, err := filepath.Abs(entry)
	if err != nil {
		return nil, 0, err
	}
	id, ok := g.ModuleByPath(filepath.ToSlash(abs))
	if !ok {
		return nil, 0, fmt.Errorf("diff entry %q was not found in its built graph", entry)
	}
	return g, id, nil
}

// projectMarkers names the files whose presence in a directory identifies
// it as a project root: a package manifest, an SCM boundary, a Python
// project file, or a workspace manifest. Checked in no particular priority
// order — the nearest ancestor carrying any one of them wins.
var projectMarkers = []string{
	"package.json", ".git", "pyproject.toml", "pnpm-workspace.yaml", "lerna.json",
}

// projectRoot walks upward from the entry file's directory looking for a
// project marker, the way spec.md §4.2 describes for Python source-root
// discovery. chainsaw has no separate project-root flag, so this is the
// only source of truth for <project-root>/.chainsaw.cache (spec.md §4.4)
// and for how far the resolver's bare-specifier ancestor walk may climb.
// Two entry files nested at different depths in the same project must
// agree on this root so they share one cache. Falls back to the entry's
// own directory when no marker is found anywhere above it, so a standalone
// script with no manifest still works.
func projectRoot(entry string) (string, error) {
	abs, err := filepath.Abs(entry)
	if err != nil {
		return "", fmt.Errorf("resolving entry path: %w", err)
	}
	start := filepath.Dir(abs)

	for dir := start; ; {
		for _, marker := range projectMarkers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return start, nil
}
