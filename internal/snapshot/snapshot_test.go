package snapshot

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/chainsaw-tool/chainsaw/internal/query"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.bin")

	s := FromHeavy("entry.ts", "v1.2.3", []query.HeavyPackage{
		{Name: "lodash", Bytes: 500, Files: 10},
		{Name: "left-pad", Bytes: 100, Files: 1},
	}, 600)

	if err := Save(path, s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got.EntryLabel != "entry.ts" || got.ToolVersion != "v1.2.3" || got.TotalBytes != 600 {
		t.Fatalf("unexpected header fields: %+v", got)
	}
	if len(got.Packages) != 2 {
		t.Fatalf("expected 2 packages, got %d", len(got.Packages))
	}
	// FromHeavy sorts by name.
	if got.Packages[0].Name != "left-pad" || got.Packages[1].Name != "lodash" {
		t.Fatalf("expected packages sorted by name, got %+v", got.Packages)
	}
}

func TestLoad_RejectsWrongMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.bin")
	if err := os.WriteFile(path, []byte("not-a-snapshot-file-at-all"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error loading a non-snapshot file")
	}
}

func TestLoad_RejectsVersionMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "newer.bin")

	s := FromHeavy("entry.ts", "v1", nil, 0)
	if err := Save(path, s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	binary.BigEndian.PutUint32(data[4:8], formatVersion+1)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err = Load(path)
	if err == nil {
		t.Fatal("expected a version mismatch error")
	}
	if _, ok := err.(*ErrVersionMismatch); !ok {
		t.Fatalf("expected *ErrVersionMismatch, got %T: %v", err, err)
	}
}

func TestBytes_MapsNameToSize(t *testing.T) {
	s := FromHeavy("entry.ts", "v1", []query.HeavyPackage{
		{Name: "a", Bytes: 10},
		{Name: "b", Bytes: 20},
	}, 30)

	m := s.Bytes()
	if m["a"] != 10 || m["b"] != 20 {
		t.Fatalf("unexpected byte map: %v", m)
	}
}
