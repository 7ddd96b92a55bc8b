package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/chainsaw-tool/chainsaw/internal/trace"
)

// TestTrace_NestedEntryFindsProjectRootMarker exercises a project layout
// where the entry file sits two directories below the project root
// (identified by package.json) and node_modules/ exists only at that root.
// A projectRoot that merely took filepath.Dir(entry) would bound the
// resolver's bare-specifier ancestor walk at src/deep and never find
// left-pad, so seeing it in rep.Heavy proves the upward marker search works.
func TestTrace_NestedEntryFindsProjectRootMarker(t *testing.T) {
	fixture := filepath.Join("..", "fixtures", "tsjs-nested")
	entry := filepath.Join(fixture, "src", "deep", "entry.ts")
	t.Cleanup(func() { os.Remove(filepath.Join(fixture, ".chainsaw.cache")) })

	rep, err := trace.Run(context.Background(), discardLogger(), trace.Options{
		Entry: entry,
		Top:   10,
	})
	if err != nil {
		t.Fatalf("trace.Run: %v", err)
	}

	var foundLeftPad bool
	for _, h := range rep.Heavy {
		if h.Package == "left-pad" {
			foundLeftPad = true
		}
	}
	if !foundLeftPad {
		t.Fatalf("expected left-pad in heavy dependency list despite nested entry, got %+v", rep.Heavy)
	}

	cachePath := filepath.Join(fixture, ".chainsaw.cache")
	if _, err := os.Stat(cachePath); err != nil {
		t.Fatalf("expected cache at project root %s, got: %v", cachePath, err)
	}
	if _, err := os.Stat(filepath.Join(fixture, "src", "deep", ".chainsaw.cache")); err == nil {
		t.Fatalf("cache should not be written next to the entry file when a project root marker exists above it")
	}
}

// TestTrace_DifferentEntryDepthsShareOneCache runs two entries that belong
// to the same project (same package.json) but sit at different depths.
// Both must resolve to the same project root so they share the cache file
// at tests/fixtures/tsjs-nested/.chainsaw.cache instead of each computing
// its own directory as root.
func TestTrace_DifferentEntryDepthsShareOneCache(t *testing.T) {
	fixture := filepath.Join("..", "fixtures", "tsjs-nested")
	cachePath := filepath.Join(fixture, ".chainsaw.cache")
	os.Remove(cachePath)
	t.Cleanup(func() { os.Remove(cachePath) })

	deepEntry := filepath.Join(fixture, "src", "deep", "entry.ts")
	if _, err := trace.Run(context.Background(), discardLogger(), trace.Options{Entry: deepEntry}); err != nil {
		t.Fatalf("trace.Run (deep entry): %v", err)
	}
	if _, err := os.Stat(cachePath); err != nil {
		t.Fatalf("expected shared cache at %s after deep entry run: %v", cachePath, err)
	}

	rootEntry := filepath.Join(fixture, "root_entry.ts")
	rep, err := trace.Run(context.Background(), discardLogger(), trace.Options{Entry: rootEntry})
	if err != nil {
		t.Fatalf("trace.Run (root entry): %v", err)
	}

	var foundLeftPad bool
	for _, h := range rep.Heavy {
		if h.Package == "left-pad" {
			foundLeftPad = true
		}
	}
	if !foundLeftPad {
		t.Fatalf("expected left-pad reachable from root_entry.ts, got %+v", rep.Heavy)
	}
}
