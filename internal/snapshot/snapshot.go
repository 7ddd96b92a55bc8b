// Package snapshot implements the minimal serializable payload needed to
// rerun a diff without the original source tree: per-package reachable
// bytes, an entry label, and the tool version that produced it.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"
	"sort"

	"github.com/chainsaw-tool/chainsaw/internal/query"
)

var magic = [4]byte{'C', 'S', 'N', 'P'}

const formatVersion uint32 = 1

// PackageEntry is one package's aggregate in a saved snapshot.
type PackageEntry struct {
	Name  string
	Bytes int64
}

// Snapshot is forward-compatible by construction: gob skips any field a
// newer writer added that an older reader doesn't know about, and leaves
// fields absent from the stream at their zero value.
type Snapshot struct {
	EntryLabel  string
	ToolVersion string
	Packages    []PackageEntry
	TotalBytes  int64
}

// FromHeavy builds a Snapshot from a heavy-dependency report and the total
// static transitive weight of the traced entry.
func FromHeavy(entryLabel, toolVersion string, heavy []query.HeavyPackage, totalBytes int64) Snapshot {
	pkgs := make([]PackageEntry, len(heavy))
	for i, h := range heavy {
		pkgs[i] = PackageEntry{Name: h.Name, Bytes: h.Bytes}
	}
	sort.Slice(pkgs, func(i, j int) bool { return pkgs[i].Name < pkgs[j].Name })
	return Snapshot{EntryLabel: entryLabel, ToolVersion: toolVersion, Packages: pkgs, TotalBytes: totalBytes}
}

// Bytes returns the per-package byte map, for feeding into a diff.
func (s Snapshot) Bytes() map[string]int64 {
	out := make(map[string]int64, len(s.Packages))
	for _, p := range s.Packages {
		out[p.Name] = p.Bytes
	}
	return out
}

// ErrVersionMismatch is returned by Load when the file's format version is
// newer or older than this binary understands. Per spec.md §7, a version
// mismatch fails the diff with a typed error without touching the cache.
type ErrVersionMismatch struct {
	Found uint32
}

func (e *ErrVersionMismatch) Error() string {
	return fmt.Sprintf("snapshot format version %d is not understood by this build (expects %d)", e.Found, formatVersion)
}

// Save writes s to path in length-prefixed binary framing.
func Save(path string, s Snapshot) error {
	var body bytes.Buffer
	if err := gob.NewEncoder(&body).Encode(s); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	var out bytes.Buffer
	out.Write(magic[:])
	var versionBuf [4]byte
	binary.BigEndian.PutUint32(versionBuf[:], formatVersion)
	out.Write(versionBuf[:])
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(body.Len()))
	out.Write(lenBuf[:])
	out.Write(body.Bytes())

	if err := os.WriteFile(path, out.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing snapshot file: %w", err)
	}
	return nil
}

// Load reads a snapshot file written by Save.
func Load(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading snapshot file: %w", err)
	}
	if len(data) < 16 || [4]byte(data[:4]) != magic {
		return Snapshot{}, fmt.Errorf("not a chainsaw snapshot file: %s", path)
	}
	version := binary.BigEndian.Uint32(data[4:8])
	if version != formatVersion {
		return Snapshot{}, &ErrVersionMismatch{Found: version}
	}
	length := binary.BigEndian.Uint64(data[8:16])
	body := data[16:]
	if uint64(len(body)) != length {
		return Snapshot{}, fmt.Errorf("truncated snapshot file: %s", path)
	}

	var s Snapshot
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&s); err != nil {
		return Snapshot{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	return s, nil
}
