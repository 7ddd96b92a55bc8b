// Package report defines the exact JSON schema emitted by `chainsaw trace
// --json`, matching spec.md §6 field-for-field.
package report

// Report is the single object emitted for one trace run.
type Report struct {
	Entry          string        `json:"entry"`
	StaticBytes    int64         `json:"static_bytes"`
	StaticModules  int           `json:"static_modules"`
	DynamicBytes   int64         `json:"dynamic_bytes"`
	DynamicModules int           `json:"dynamic_modules"`
	Heavy          []HeavyEntry  `json:"heavy,omitempty"`
	Modules        []ModuleEntry `json:"modules"`
	Diff           *DiffEntry    `json:"diff,omitempty"`
	// Unresolved is set only when --chain/--cut named a package that has no
	// resolved chain but does appear as a failed-resolution specifier
	// somewhere in the tree (spec.md §7).
	Unresolved *UnresolvedHint `json:"unresolved,omitempty"`
}

// UnresolvedHint surfaces a --chain/--cut target that never resolved to a
// real file, naming the modules whose source referenced it.
type UnresolvedHint struct {
	Package      string   `json:"package"`
	ReferencedBy []string `json:"referenced_by"`
}

// HeavyEntry is one row of the heavy-dependency top-N list.
type HeavyEntry struct {
	Package string   `json:"package"`
	Bytes   int64    `json:"bytes"`
	Files   int      `json:"files"`
	Chain   []string `json:"chain,omitempty"`
}

// ModuleEntry is one row of the module listing, ordered by descending
// transitive cost then ascending path.
type ModuleEntry struct {
	Path            string `json:"path"`
	TransitiveBytes int64  `json:"transitive_bytes"`
}

// DiffEntry is the optional diff block, present only when --diff or
// --diff-from was requested.
type DiffEntry struct {
	OnlyInA    []string `json:"only_in_a"`
	OnlyInB    []string `json:"only_in_b"`
	Shared     []string `json:"shared"`
	DeltaBytes int64    `json:"delta_bytes"`
}
