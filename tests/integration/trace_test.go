package integration

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/chainsaw-tool/chainsaw/internal/trace"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTrace_SimpleTSProjectWeightsAndHeavy(t *testing.T) {
	entry := filepath.Join("..", "fixtures", "tsjs-simple", "entry.ts")

	rep, err := trace.Run(context.Background(), discardLogger(), trace.Options{
		Entry: entry,
		Top:   10,
	})
	if err != nil {
		t.Fatalf("trace.Run: %v", err)
	}

	if rep.StaticModules < 3 {
		t.Fatalf("expected entry, lib.ts, and left-pad all reachable, got %d modules", rep.StaticModules)
	}
	if rep.StaticBytes <= 0 {
		t.Fatalf("expected positive static byte total, got %d", rep.StaticBytes)
	}

	var foundLeftPad bool
	for _, h := range rep.Heavy {
		if h.Package == "left-pad" {
			foundLeftPad = true
		}
	}
	if !foundLeftPad {
		t.Fatalf("expected left-pad in heavy dependency list, got %+v", rep.Heavy)
	}
}

func TestTrace_ChainRendersPathToHeavyPackage(t *testing.T) {
	entry := filepath.Join("..", "fixtures", "tsjs-simple", "entry.ts")

	rep, err := trace.Run(context.Background(), discardLogger(), trace.Options{
		Entry: entry,
		Chain: "left-pad",
		Top:   10,
	})
	if err != nil {
		t.Fatalf("trace.Run: %v", err)
	}

	var chain []string
	for _, h := range rep.Heavy {
		if h.Package == "left-pad" {
			chain = h.Chain
		}
	}
	if len(chain) == 0 {
		t.Fatal("expected a rendered chain to left-pad")
	}
	if filepath.Base(chain[0]) != "entry.ts" {
		t.Fatalf("expected chain to start at entry.ts, got %v", chain)
	}
}

func TestTrace_NoCacheStillProducesSameWeights(t *testing.T) {
	entry := filepath.Join("..", "fixtures", "tsjs-simple", "entry.ts")

	withCache, err := trace.Run(context.Background(), discardLogger(), trace.Options{Entry: entry})
	if err != nil {
		t.Fatalf("trace.Run (cached): %v", err)
	}
	noCache, err := trace.Run(context.Background(), discardLogger(), trace.Options{Entry: entry, NoCache: true})
	if err != nil {
		t.Fatalf("trace.Run (no-cache): %v", err)
	}

	if withCache.StaticBytes != noCache.StaticBytes {
		t.Fatalf("expected identical static byte totals with/without cache, got %d vs %d",
			withCache.StaticBytes, noCache.StaticBytes)
	}
}
