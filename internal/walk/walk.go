// Package walk drives the frontier-based discovery that grows the module
// graph outward from an entry file: parse, resolve, insert, repeat, stopping
// when the frontier is empty.
package walk

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/sync/errgroup"

	"github.com/chainsaw-tool/chainsaw/internal/cache"
	"github.com/chainsaw-tool/chainsaw/internal/graph"
	"github.com/chainsaw-tool/chainsaw/internal/lang"
	"github.com/chainsaw-tool/chainsaw/internal/resolve"
)

// Walker grows a Graph outward from an entry file using bounded worker
// parallelism across each frontier round.
type Walker struct {
	Root     string
	Graph    *graph.Graph
	Resolver *resolve.Resolver
	TSJS     lang.Backend
	Python   lang.Backend
	Cache    *cache.ParseCache // nil disables per-file cache reuse
	Workers  int
	Log      *slog.Logger

	// ignore, when non-nil, excludes resolved targets that match the
	// project root's .gitignore — a resolved path that physically exists
	// but is logically outside the source tree (a stale build artifact
	// directory, for instance) is treated as External rather than walked.
	ignore *ignore.GitIgnore

	// mu guards module creation during applyResults; insertion happens
	// only on the single coordinator goroutine.
	mu sync.Mutex
}

// New constructs a Walker rooted at root. It loads root/.gitignore, if
// present, to exclude ignored-but-present paths from traversal.
func New(root string, g *graph.Graph, r *resolve.Resolver, tsjs, python lang.Backend, c *cache.ParseCache, workers int, log *slog.Logger) *Walker {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	w := &Walker{Root: root, Graph: g, Resolver: r, TSJS: tsjs, Python: python, Cache: c, Workers: workers, Log: log}
	if gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore")); err == nil {
		w.ignore = gi
	}
	return w
}

// parseUnit is one frontier item's outcome, applied to the graph by a single
// coordinator goroutine so edge/module insertion stays lock-free.
type parseUnit struct {
	id      graph.ModuleID
	path    string
	missing bool
	raws    []lang.RawImport
	err     error
}

// Run walks the graph from entryPath until the frontier is exhausted. It
// never returns an error for per-file problems — those are recorded on the
// graph per spec.md's partial-failure policy — only for a genuinely
// unresolvable entry path.
func (w *Walker) Run(ctx context.Context, entryPath string) error {
	abs, err := filepath.Abs(entryPath)
	if err != nil {
		return fmt.Errorf("resolving entry path: %w", err)
	}
	abs = filepath.ToSlash(abs)
	st, err := os.Stat(entryPath)
	if err != nil {
		return fmt.Errorf("unresolvable entry %q: %w", entryPath, err)
	}

	entryID := w.Graph.AddModule(abs, st.Size(), st.ModTime().UnixNano(), "", languageOf(abs))
	frontier := []graph.ModuleID{entryID}
	visited := map[graph.ModuleID]bool{entryID: true}

	for len(frontier) > 0 {
		results, err := w.parseFrontier(ctx, frontier)
		if err != nil {
			return err
		}
		frontier = w.applyResults(results, visited)
	}
	return nil
}

// parseFrontier parses every module in frontier concurrently, bounded by
// w.Workers. Worker failures are recorded per-unit, never aborting the run.
func (w *Walker) parseFrontier(ctx context.Context, frontier []graph.ModuleID) ([]parseUnit, error) {
	results := make([]parseUnit, len(frontier))
	sem := make(chan struct{}, w.Workers)
	eg, egCtx := errgroup.WithContext(ctx)

	for i, id := range frontier {
		i, id := i, id
		eg.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-egCtx.Done():
				return egCtx.Err()
			}
			defer func() { <-sem }()
			results[i] = w.parseOne(id)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// parseOne reads and classifies a single module's imports, reusing a cached
// parse result when the file's identity triple is unchanged.
func (w *Walker) parseOne(id graph.ModuleID) parseUnit {
	m := w.Graph.Module(id)
	unit := parseUnit{id: id, path: m.Path}

	if strings.HasSuffix(m.Path, "/__namespace__") {
		// Synthetic namespace-package module: no source to parse.
		return unit
	}

	if w.Cache != nil {
		if raws, ok := w.Cache.Lookup(m.Path, m.MTime, m.SizeBytes); ok {
			unit.raws = raws
			return unit
		}
	}

	src, err := os.ReadFile(m.Path)
	if err != nil {
		unit.missing = true
		unit.err = err
		w.Log.Warn("file read failed", "path", m.Path, "error", err)
		return unit
	}

	backend, ok := lang.ForExt(filepath.Ext(m.Path), w.TSJS, w.Python)
	if !ok {
		return unit // non-code leaf: counted by size, never parsed
	}

	raws, err := backend.Extract(m.Path, src)
	if err != nil {
		unit.err = err
		w.Log.Warn("parse error", "path", m.Path, "error", err)
	}
	unit.raws = raws

	if w.Cache != nil {
		w.Cache.Store(m.Path, m.MTime, m.SizeBytes, raws)
	}
	return unit
}

// applyResults is the single-writer coordinator: it inserts resolved
// modules and edges into the graph in arrival order, so edge deduplication
// and id assignment need no locking on the hot path.
func (w *Walker) applyResults(results []parseUnit, visited map[graph.ModuleID]bool) []graph.ModuleID {
	var next []graph.ModuleID

	for _, res := range results {
		if res.missing {
			w.Graph.MarkMissing(res.id)
			w.Graph.MarkParsed(res.id)
			continue
		}
		w.Graph.MarkParsed(res.id)

		language := w.Graph.Module(res.id).Language
		for _, raw := range res.raws {
			resolution, err := w.Resolver.Resolve(res.path, raw.Specifier, language, raw.Dots)
			if err != nil {
				w.Log.Warn("resolver error", "path", res.path, "specifier", raw.Specifier, "error", err)
				continue
			}
			switch resolution.Status {
			case resolve.External:
				continue
			case resolve.Missing:
				w.Log.Debug("unresolved specifier", "path", res.path, "specifier", raw.Specifier)
				w.Graph.AddUnresolved(res.id, raw.Specifier)
				continue
			}

			if w.isIgnored(resolution.Path) {
				continue
			}

			targetID, isNew := w.upsertModule(resolution.Path, resolution.Package)
			w.Graph.AddEdge(res.id, targetID, raw.Kind)
			if isNew && !visited[targetID] {
				visited[targetID] = true
				next = append(next, targetID)
			}
		}
	}
	return next
}

// upsertModule returns the id for path, creating it (with a single stat)
// if this is the first time it's been reached.
func (w *Walker) upsertModule(path, pkg string) (graph.ModuleID, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if id, ok := w.Graph.ModuleByPath(path); ok {
		return id, false
	}

	if strings.HasSuffix(path, "/__namespace__") {
		id := w.Graph.AddModule(path, 0, 0, pkg, "")
		return id, true
	}

	var size int64
	var mtime int64
	if st, err := os.Stat(path); err == nil {
		size = st.Size()
		mtime = st.ModTime().UnixNano()
	} else {
		w.Log.Warn("resolved path unreadable", "path", path, "error", err)
	}
	id := w.Graph.AddModule(path, size, mtime, pkg, languageOf(path))
	return id, true
}

func (w *Walker) isIgnored(path string) bool {
	if w.ignore == nil {
		return false
	}
	rel, err := filepath.Rel(w.Root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	return w.ignore.MatchesPath(rel)
}

func languageOf(path string) string {
	ext := filepath.Ext(path)
	if _, ok := lang.ForExt(ext, placeholderBackend{}, placeholderBackend{}); !ok {
		return ""
	}
	switch ext {
	case ".py", ".pyi":
		return "python"
	default:
		return "tsjs"
	}
}

// placeholderBackend exists only so languageOf can reuse lang.ForExt's
// extension table without needing real backend instances.
type placeholderBackend struct{}

func (placeholderBackend) Extract(string, []byte) ([]lang.RawImport, error) { return nil, nil }
