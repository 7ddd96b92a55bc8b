// Package query implements the read-only traversals over a finished graph:
// transitive weight, heavy dependencies, shortest chains, cut points, and
// snapshot diff. None of these mutate the graph.
package query

import (
	"sort"
	"strings"

	"github.com/chainsaw-tool/chainsaw/internal/graph"
)

// clampLimit bounds a requested top-N count to a sane range, defaulting an
// unset or non-positive value to 10.
func clampLimit(limit int) int {
	if limit <= 0 {
		return 10
	}
	if limit > 100 {
		return 100
	}
	return limit
}

// allowedKinds returns the edge-kind predicate every traversal in this
// package uses: Static edges always count, TypeOnly never does, and Dynamic
// counts only under explicit opt-in. --chain and --cut share this same
// predicate, per the resolved open question on --include-dynamic.
func allowedKinds(includeDynamic bool) func(graph.EdgeKind) bool {
	return func(k graph.EdgeKind) bool {
		switch k {
		case graph.Static:
			return true
		case graph.Dynamic:
			return includeDynamic
		default:
			return false
		}
	}
}

// Weight is the result of a transitive-weight query.
type Weight struct {
	Bytes   int64
	Visited int
}

// TransitiveWeight sums size_bytes over every module reachable from entry
// via the allowed edge kinds.
func TransitiveWeight(g *graph.Graph, entry graph.ModuleID, includeDynamic bool) Weight {
	visited := bfs(g, entry, allowedKinds(includeDynamic))
	var bytes int64
	for id := range visited {
		bytes += g.Module(id).SizeBytes
	}
	return Weight{Bytes: bytes, Visited: len(visited)}
}

// HeavyPackage is one row of the heavy-dependency top-N report.
type HeavyPackage struct {
	Name  string
	Bytes int64
	Files int
}

// HeavyDependencies returns the top-N packages reachable from entry by
// total transitive bytes, ties broken by ascending name.
func HeavyDependencies(g *graph.Graph, entry graph.ModuleID, includeDynamic bool, topN int) []HeavyPackage {
	topN = clampLimit(topN)
	visited := bfs(g, entry, allowedKinds(includeDynamic))

	totals := make(map[string]*HeavyPackage)
	for id := range visited {
		m := g.Module(id)
		if m.Package == "" {
			continue
		}
		hp, ok := totals[m.Package]
		if !ok {
			hp = &HeavyPackage{Name: m.Package}
			totals[m.Package] = hp
		}
		hp.Bytes += m.SizeBytes
		hp.Files++
	}

	result := make([]HeavyPackage, 0, len(totals))
	for _, hp := range totals {
		result = append(result, *hp)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Bytes != result[j].Bytes {
			return result[i].Bytes > result[j].Bytes
		}
		return result[i].Name < result[j].Name
	})
	if len(result) > topN {
		result = result[:topN]
	}
	return result
}

// Chain is one shortest import chain from entry to a module in a target
// package, as a sequence of module ids (entry first, target last).
type Chain []graph.ModuleID

// Paths renders a chain as the ordered list of module paths.
func (c Chain) Paths(g *graph.Graph) []string {
	out := make([]string, len(c))
	for i, id := range c {
		out[i] = g.Module(id).Path
	}
	return out
}

// ShortestChains finds up to k distinct shortest chains from entry to
// package pkg. Chains are distinct by their penultimate (second-to-last)
// module: the chain "enters the package" only once per distinct module that
// makes that entry. Results are ordered lexicographically by path sequence.
func ShortestChains(g *graph.Graph, entry graph.ModuleID, pkg string, includeDynamic bool, k int) []Chain {
	allowed := allowedKinds(includeDynamic)
	parents := make(map[graph.ModuleID]graph.ModuleID)
	// enteredFrom lists every predecessor one level above a module, not just
	// the BFS parent, so each distinct penultimate module yields a chain.
	enteredFrom := make(map[graph.ModuleID][]graph.ModuleID)
	depth := map[graph.ModuleID]int{entry: 0}
	frontier := []graph.ModuleID{entry}

	targetDepth := -1
	var targets [][2]graph.ModuleID // (target, penultimate)
	seenPenultimate := make(map[graph.ModuleID]bool)

	for len(frontier) > 0 && (targetDepth == -1 || depth[frontier[0]] == targetDepth) {
		var next []graph.ModuleID
		for _, id := range frontier {
			if targetDepth != -1 && depth[id] > targetDepth {
				continue
			}
			if g.Module(id).Package == pkg && id != entry {
				if targetDepth == -1 {
					targetDepth = depth[id]
				}
				for _, p := range enteredFrom[id] {
					if depth[id] == targetDepth && !seenPenultimate[p] && len(targets) < k {
						seenPenultimate[p] = true
						targets = append(targets, [2]graph.ModuleID{id, p})
					}
				}
				if len(targets) >= k {
					break
				}
				continue
			}
			for _, e := range g.Outgoing(id) {
				if !allowed(e.Kind) {
					continue
				}
				if d, ok := depth[e.To]; ok {
					if d == depth[id]+1 {
						enteredFrom[e.To] = append(enteredFrom[e.To], id)
					}
					continue
				}
				depth[e.To] = depth[id] + 1
				parents[e.To] = id
				enteredFrom[e.To] = append(enteredFrom[e.To], id)
				next = append(next, e.To)
			}
		}
		if len(targets) >= k {
			break
		}
		frontier = next
	}

	chains := make([]Chain, 0, len(targets))
	for _, t := range targets {
		chains = append(chains, append(buildChain(parents, entry, t[1]), t[0]))
	}
	sort.Slice(chains, func(i, j int) bool {
		return lessChain(g, chains[i], chains[j])
	})
	return chains
}

func buildChain(parents map[graph.ModuleID]graph.ModuleID, entry, target graph.ModuleID) Chain {
	var rev Chain
	cur := target
	for {
		rev = append(rev, cur)
		if cur == entry {
			break
		}
		cur = parents[cur]
	}
	chain := make(Chain, len(rev))
	for i, id := range rev {
		chain[len(rev)-1-i] = id
	}
	return chain
}

func lessChain(g *graph.Graph, a, b Chain) bool {
	pa, pb := a.Paths(g), b.Paths(g)
	for i := 0; i < len(pa) && i < len(pb); i++ {
		if pa[i] != pb[i] {
			return pa[i] < pb[i]
		}
	}
	return len(pa) < len(pb)
}

// CutResult is the outcome of a cut-point query.
type CutResult struct {
	Cut        graph.ModuleID // INVALID if no single cut exists
	HasCut     bool
	ChainCount int
	BrokenBy   int // how many of ChainCount the Cut module appears in
}

const invalidModuleID graph.ModuleID = -1

// CutPoints returns a module that appears in every shortest chain to pkg
// (entry and the package module itself excluded), if one exists. When more
// than one module appears in all chains, the one closest to pkg wins, then
// the one with fewest other outgoing Static edges.
func CutPoints(g *graph.Graph, entry graph.ModuleID, pkg string, includeDynamic bool) CutResult {
	chains := ShortestChains(g, entry, pkg, includeDynamic, maxChainsForCut)
	if len(chains) == 0 {
		return CutResult{Cut: invalidModuleID, ChainCount: 0}
	}

	counts := make(map[graph.ModuleID]int)
	for _, c := range chains {
		// Exclude entry and the target itself — removing those isn't a
		// meaningful "cut" of an internal dependency.
		for _, id := range c[1 : len(c)-1] {
			counts[id]++
		}
	}

	var candidates []graph.ModuleID
	for id, n := range counts {
		if n == len(chains) {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return CutResult{Cut: invalidModuleID, ChainCount: len(chains)}
	}

	best := candidates[0]
	bestDepthToTarget, bestOutDegree := rankMetrics(g, chains, best)
	for _, c := range candidates[1:] {
		depthToTarget, outDegree := rankMetrics(g, chains, c)
		if depthToTarget < bestDepthToTarget ||
			(depthToTarget == bestDepthToTarget && outDegree < bestOutDegree) {
			best, bestDepthToTarget, bestOutDegree = c, depthToTarget, outDegree
		}
	}

	return CutResult{Cut: best, HasCut: true, ChainCount: len(chains), BrokenBy: len(chains)}
}

// maxChainsForCut bounds how many distinct shortest chains the cut-point
// search considers; spec.md's scenarios top out at a handful of chains, and
// this keeps the search bounded on pathological fan-in graphs.
const maxChainsForCut = 64

// rankMetrics returns (hops from candidate to the chain's target, candidate's
// outgoing Static edge count) using the first chain the candidate appears in
// — every candidate here appears in every chain by construction, and the
// hop distance to the (single, shared) target package is the same along
// any chain that reaches it.
func rankMetrics(g *graph.Graph, chains []Chain, candidate graph.ModuleID) (int, int) {
	for _, c := range chains {
		for i, id := range c {
			if id == candidate {
				return len(c) - 1 - i, staticOutDegree(g, candidate)
			}
		}
	}
	return 1 << 30, staticOutDegree(g, candidate)
}

func staticOutDegree(g *graph.Graph, id graph.ModuleID) int {
	n := 0
	for _, e := range g.Outgoing(id) {
		if e.Kind == graph.Static {
			n++
		}
	}
	return n
}

// UnresolvedReferencing returns the modules that recorded a failed-resolution
// specifier naming pkg, per spec.md §7: a resolution failure is stored on
// its containing module and ignored by every other query, surfaced only
// when --chain or --cut asks specifically about that package.
func UnresolvedReferencing(g *graph.Graph, pkg string) []graph.ModuleID {
	var out []graph.ModuleID
	for i := 0; i < g.NumModules(); i++ {
		id := graph.ModuleID(i)
		for _, spec := range g.Module(id).Unresolved {
			if specifierNamesPackage(spec, pkg) {
				out = append(out, id)
				break
			}
		}
	}
	return out
}

// specifierNamesPackage reports whether an unresolved specifier refers to
// pkg itself or a subpath/submodule of it ("pkg/sub" for TS/JS, "pkg.sub"
// for Python).
func specifierNamesPackage(specifier, pkg string) bool {
	if specifier == pkg {
		return true
	}
	return strings.HasPrefix(specifier, pkg+"/") || strings.HasPrefix(specifier, pkg+".")
}

// Diff compares the static-reachable package sets of two entries (or
// previously saved snapshots, via DiffSnapshot).
type Diff struct {
	OnlyInA   []string
	OnlyInB   []string
	Shared    []string
	DeltaBytes int64 // B - A
}

// DiffEntries computes Diff between two live entries in the same graph.
func DiffEntries(g *graph.Graph, a, b graph.ModuleID, includeDynamic bool) Diff {
	packagesA := packageBytes(g, a, includeDynamic)
	packagesB := packageBytes(g, b, includeDynamic)
	return diffPackageSets(packagesA, packagesB)
}

func packageBytes(g *graph.Graph, entry graph.ModuleID, includeDynamic bool) map[string]int64 {
	visited := bfs(g, entry, allowedKinds(includeDynamic))
	totals := make(map[string]int64)
	for id := range visited {
		m := g.Module(id)
		if m.Package == "" {
			continue
		}
		totals[m.Package] += m.SizeBytes
	}
	return totals
}

func diffPackageSets(a, b map[string]int64) Diff {
	var d Diff
	var bytesA, bytesB int64

	for name, bytes := range a {
		bytesA += bytes
		if _, ok := b[name]; ok {
			d.Shared = append(d.Shared, name)
		} else {
			d.OnlyInA = append(d.OnlyInA, name)
		}
	}
	for name, bytes := range b {
		bytesB += bytes
		if _, ok := a[name]; !ok {
			d.OnlyInB = append(d.OnlyInB, name)
		}
	}
	sort.Strings(d.OnlyInA)
	sort.Strings(d.OnlyInB)
	sort.Strings(d.Shared)
	d.DeltaBytes = bytesB - bytesA
	return d
}

// bfs returns the set of module ids reachable from start following only
// edges for which allowed returns true.
func bfs(g *graph.Graph, start graph.ModuleID, allowed func(graph.EdgeKind) bool) map[graph.ModuleID]struct{} {
	visited := map[graph.ModuleID]struct{}{start: {}}
	frontier := []graph.ModuleID{start}
	for len(frontier) > 0 {
		var next []graph.ModuleID
		for _, id := range frontier {
			for _, e := range g.Outgoing(id) {
				if !allowed(e.Kind) {
					continue
				}
				if _, ok := visited[e.To]; ok {
					continue
				}
				visited[e.To] = struct{}{}
				next = append(next, e.To)
			}
		}
		frontier = next
	}
	return visited
}
