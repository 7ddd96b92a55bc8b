// Package graph implements the arena-based module graph that the walker
// populates and the query engine traverses.
package graph

import "sort"

// EdgeKind discriminates how an import affects startup cost.
type EdgeKind int

const (
	// Static edges load the target when the source loads.
	Static EdgeKind = iota
	// Dynamic edges load the target lazily, on demand.
	Dynamic
	// TypeOnly edges are erased before execution.
	TypeOnly
)

func (k EdgeKind) String() string {
	switch k {
	case Static:
		return "static"
	case Dynamic:
		return "dynamic"
	case TypeOnly:
		return "type-only"
	default:
		return "unknown"
	}
}

// ModuleID is a dense integer id, stable only within one Graph instance.
type ModuleID int

// Module is a single source file or package entry point.
type Module struct {
	Path      string // absolute, forward-slash-normalized
	MTime     int64  // unix nanos at time of parse
	SizeBytes int64
	Package   string // installed-dependency package name, "" for first-party
	Language  string // "tsjs", "python", ""

	Missing bool // true if the file failed to read (zero bytes, no edges)
	Parsed  bool // true once the backend has classified its imports

	// Unresolved lists specifiers written in this module that failed
	// resolution (spec.md §7): ignored by weight/chain/cut queries under
	// normal traversal, but surfaced when --chain or --cut names the
	// package one of these specifiers would have belonged to.
	Unresolved []string
}

// Edge is a directed relation between two modules.
type Edge struct {
	From ModuleID
	To   ModuleID
	Kind EdgeKind
}

// Graph is an append-only arena of modules and edges for one run.
type Graph struct {
	modules []Module
	edges   []Edge

	// adjacency[m] lists outgoing edge indices from module m.
	adjacency [][]int

	pathToID map[string]ModuleID
	// edgeKey dedups per (from,to,kind) as required by the data model.
	edgeKey map[edgeKey]struct{}

	// ResolverFingerprint is opaque cache-invalidation data carried with the
	// graph; the cache package sets and reads it, the graph itself never
	// interprets it.
	ResolverFingerprint string
}

type edgeKey struct {
	from ModuleID
	to   ModuleID
	kind EdgeKind
}

// New returns an empty graph ready for population by the walker.
func New() *Graph {
	return &Graph{
		pathToID: make(map[string]ModuleID),
		edgeKey:  make(map[edgeKey]struct{}),
	}
}

// AddModule inserts a new module and returns its id, or returns the
// existing id if a module at this path is already present.
func (g *Graph) AddModule(path string, sizeBytes int64, mtime int64, pkg, language string) ModuleID {
	if id, ok := g.pathToID[path]; ok {
		return id
	}
	id := ModuleID(len(g.modules))
	g.modules = append(g.modules, Module{
		Path:      path,
		MTime:     mtime,
		SizeBytes: sizeBytes,
		Package:   pkg,
		Language:  language,
	})
	g.adjacency = append(g.adjacency, nil)
	g.pathToID[path] = id
	return id
}

// MarkParsed records that a module's outgoing edges now reflect every
// classifiable import in the file.
func (g *Graph) MarkParsed(id ModuleID) {
	g.modules[id].Parsed = true
}

// MarkMissing records a file-read failure: zero bytes, no outgoing edges.
func (g *Graph) MarkMissing(id ModuleID) {
	g.modules[id].Missing = true
	g.modules[id].SizeBytes = 0
}

// AddEdge appends an edge, deduplicated per (from, to, kind).
func (g *Graph) AddEdge(from, to ModuleID, kind EdgeKind) {
	key := edgeKey{from, to, kind}
	if _, ok := g.edgeKey[key]; ok {
		return
	}
	g.edgeKey[key] = struct{}{}
	idx := len(g.edges)
	g.edges = append(g.edges, Edge{From: from, To: to, Kind: kind})
	g.adjacency[from] = append(g.adjacency[from], idx)
}

// AddUnresolved records that id's source named specifier but it failed to
// resolve to a file, external built-in, or installed dependency.
func (g *Graph) AddUnresolved(id ModuleID, specifier string) {
	g.modules[id].Unresolved = append(g.modules[id].Unresolved, specifier)
}

// ModuleByPath returns the id of the module at path, if present.
func (g *Graph) ModuleByPath(path string) (ModuleID, bool) {
	id, ok := g.pathToID[path]
	return id, ok
}

// Module returns the module record for id.
func (g *Graph) Module(id ModuleID) Module {
	return g.modules[id]
}

// NumModules returns the number of modules in the graph.
func (g *Graph) NumModules() int {
	return len(g.modules)
}

// Outgoing returns the outgoing (target, kind) pairs for a module.
func (g *Graph) Outgoing(id ModuleID) []Edge {
	idxs := g.adjacency[id]
	out := make([]Edge, len(idxs))
	for i, idx := range idxs {
		out[i] = g.edges[idx]
	}
	return out
}

// SortedPaths returns every module path in the graph, ascending.
func (g *Graph) SortedPaths() []string {
	paths := make([]string, len(g.modules))
	for i, m := range g.modules {
		paths[i] = m.Path
	}
	sort.Strings(paths)
	return paths
}

// Snapshot is the gob-encodable form of a Graph, used by the tier-2 cache
// and by the snapshot codec. It carries the bare arenas only — adjacency
// and the path index are rebuilt on load.
type Snapshot struct {
	Modules             []Module
	Edges               []Edge
	ResolverFingerprint string
}

// Snapshot exports g's arenas for serialization.
func (g *Graph) Snapshot() Snapshot {
	return Snapshot{Modules: g.modules, Edges: g.edges, ResolverFingerprint: g.ResolverFingerprint}
}

// FromSnapshot rebuilds a fully-indexed Graph from a serialized Snapshot.
func FromSnapshot(s Snapshot) *Graph {
	g := New()
	g.ResolverFingerprint = s.ResolverFingerprint
	g.modules = make([]Module, len(s.Modules))
	g.adjacency = make([][]int, len(s.Modules))
	for i, m := range s.Modules {
		g.modules[i] = m
		g.pathToID[m.Path] = ModuleID(i)
	}
	for _, e := range s.Edges {
		key := edgeKey{e.From, e.To, e.Kind}
		if _, ok := g.edgeKey[key]; ok {
			continue
		}
		g.edgeKey[key] = struct{}{}
		idx := len(g.edges)
		g.edges = append(g.edges, e)
		g.adjacency[e.From] = append(g.adjacency[e.From], idx)
	}
	return g
}
