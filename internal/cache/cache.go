// Package cache implements the two-tier disk cache: a per-file parse cache
// keyed by file identity, and a whole-graph snapshot gated by a resolver
// configuration fingerprint. Both tiers live in one binary artifact at
// <project-root>/.chainsaw.cache.
package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/chainsaw-tool/chainsaw/internal/graph"
	"github.com/chainsaw-tool/chainsaw/internal/lang"
)

// FileName is the cache artifact's name under the project root.
const FileName = ".chainsaw.cache"

var magic = [4]byte{'C', 'S', 'A', 'W'}

// formatVersion guards the gob payload shape. A mismatch (or magic
// mismatch) is always treated as a cache miss, never a misread.
const formatVersion uint32 = 1

// FileRecord is one tier-1 entry: a file's identity plus its previously
// classified raw imports.
type FileRecord struct {
	MTime      int64
	Size       int64
	RawImports []lang.RawImport
}

// payload is the gob-encoded body following the fixed binary header.
type payload struct {
	Fingerprint [32]byte
	Files       map[string]FileRecord
	Graph       graph.Snapshot
	HasGraph    bool
}

// ParseCache is the tier-1 per-file cache, safe for concurrent use by the
// walker's parallel frontier workers.
type ParseCache struct {
	mu    sync.RWMutex
	files map[string]FileRecord
}

// NewParseCache returns an empty parse cache.
func NewParseCache() *ParseCache {
	return &ParseCache{files: make(map[string]FileRecord)}
}

// Lookup returns the cached raw imports for path if its mtime and size
// match exactly what was cached; any identity drift is a cache miss.
func (c *ParseCache) Lookup(path string, mtime, size int64) ([]lang.RawImport, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.files[path]
	if !ok || rec.MTime != mtime || rec.Size != size {
		return nil, false
	}
	return rec.RawImports, true
}

// Store records path's parse result under its current identity.
func (c *ParseCache) Store(path string, mtime, size int64, raws []lang.RawImport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files[path] = FileRecord{MTime: mtime, Size: size, RawImports: raws}
}

func (c *ParseCache) snapshot() map[string]FileRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]FileRecord, len(c.files))
	for k, v := range c.files {
		out[k] = v
	}
	return out
}

// Fingerprint computes the resolver configuration fingerprint that gates
// tier-2 reuse: project roots, the tool version, and any flag that affects
// resolution must all be folded in, or a cache built under one flag set
// could be silently reused under another.
func Fingerprint(toolVersion string, roots []string, flags map[string]string) [32]byte {
	sorted := append([]string(nil), roots...)
	sort.Strings(sorted)

	var buf bytes.Buffer
	buf.WriteString("chainsaw-cache-fingerprint\x00")
	buf.WriteString(toolVersion)
	buf.WriteByte(0)
	for _, r := range sorted {
		buf.WriteString(r)
		buf.WriteByte(0)
	}
	flagKeys := make([]string, 0, len(flags))
	for k := range flags {
		flagKeys = append(flagKeys, k)
	}
	sort.Strings(flagKeys)
	for _, k := range flagKeys {
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(flags[k])
		buf.WriteByte(0)
	}
	return sha256.Sum256(buf.Bytes())
}

// Store is the on-disk cache artifact at a fixed path under a project root.
type Store struct {
	path string
}

// NewStore returns a Store for the given project root.
func NewStore(projectRoot string) *Store {
	return &Store{path: filepath.Join(projectRoot, FileName)}
}

// Load reads the cache artifact. A missing, truncated or corrupt file, or a
// magic or version mismatch, is an ordinary cache miss: Load then returns an
// empty ParseCache and a nil graph. No path in Load returns a non-nil error.
//
// The returned ParseCache is always non-nil (empty on a miss). The returned
// *graph.Graph is non-nil only when the tier-2 snapshot's fingerprint
// matches fingerprint exactly; otherwise the caller falls back to a tier-1
// rebuild of the edges.
func (s *Store) Load(fingerprint [32]byte) (*ParseCache, *graph.Graph, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return NewParseCache(), nil, nil
	}

	if len(data) < 4+4+8 {
		return NewParseCache(), nil, nil
	}
	if [4]byte(data[:4]) != magic {
		return NewParseCache(), nil, nil
	}
	version := binary.BigEndian.Uint32(data[4:8])
	if version != formatVersion {
		return NewParseCache(), nil, nil
	}
	length := binary.BigEndian.Uint64(data[8:16])
	body := data[16:]
	if uint64(len(body)) != length {
		return NewParseCache(), nil, nil
	}

	var p payload
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&p); err != nil {
		return NewParseCache(), nil, nil
	}

	pc := &ParseCache{files: p.Files}
	if pc.files == nil {
		pc.files = make(map[string]FileRecord)
	}

	if p.HasGraph && p.Fingerprint == fingerprint {
		return pc, graph.FromSnapshot(p.Graph), nil
	}
	return pc, nil, nil
}

// Save persists both tiers atomically: write to a sibling temp file, then
// rename over the final path.
func (s *Store) Save(fingerprint [32]byte, pc *ParseCache, g *graph.Graph) error {
	p := payload{
		Fingerprint: fingerprint,
		Files:       pc.snapshot(),
		HasGraph:    g != nil,
	}
	if g != nil {
		p.Graph = g.Snapshot()
	}

	var body bytes.Buffer
	if err := gob.NewEncoder(&body).Encode(p); err != nil {
		return fmt.Errorf("encoding cache payload: %w", err)
	}

	var header bytes.Buffer
	header.Write(magic[:])
	var versionBuf [4]byte
	binary.BigEndian.PutUint32(versionBuf[:], formatVersion)
	header.Write(versionBuf[:])
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(body.Len()))
	header.Write(lenBuf[:])

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".chainsaw.cache.tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(header.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("writing cache header: %w", err)
	}
	if _, err := tmp.Write(body.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("writing cache body: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp cache file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("renaming cache file into place: %w", err)
	}
	return nil
}
