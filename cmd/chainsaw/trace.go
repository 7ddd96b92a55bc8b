package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/chainsaw-tool/chainsaw/internal/report"
	"github.com/chainsaw-tool/chainsaw/internal/trace"
)

// Exit codes per spec.md §6.
const (
	exitSuccess         = 0
	exitUnresolvedEntry = 2
	exitUnrecoverableIO = 3
	exitInvalidArgs     = 4
)

var traceFlags struct {
	chain          string
	cut            string
	diff           string
	diffFrom       string
	save           string
	includeDynamic bool
	top            int
	topModules     int
	jsonOutput     bool
	noCache        bool
	quiet          bool
}

var traceCmd = &cobra.Command{
	Use:   "trace ENTRY",
	Short: "Trace what an entry file pulls in at module-load time",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrace,
}

func init() {
	f := traceCmd.Flags()
	f.StringVar(&traceFlags.chain, "chain", "", "report the shortest import chain to this package")
	f.StringVar(&traceFlags.cut, "cut", "", "report the shortest import chain to this package, as --chain does (no cut point is computed)")
	f.StringVar(&traceFlags.diff, "diff", "", "diff against another entry file's reachable packages")
	f.StringVar(&traceFlags.diffFrom, "diff-from", "", "diff against a previously saved snapshot")
	f.StringVar(&traceFlags.save, "save", "", "save a diffable snapshot of this run to this path")
	f.BoolVar(&traceFlags.includeDynamic, "include-dynamic", false, "also traverse dynamic import edges")
	f.IntVar(&traceFlags.top, "top", 10, "number of heavy dependencies to report")
	f.IntVar(&traceFlags.topModules, "top-modules", 20, "number of modules to list by transitive cost")
	f.BoolVar(&traceFlags.jsonOutput, "json", false, "emit the report as JSON")
	f.BoolVar(&traceFlags.noCache, "no-cache", false, "ignore and do not write the on-disk cache")
	f.BoolVar(&traceFlags.quiet, "quiet", false, "suppress warning lines")
}

func runTrace(cmd *cobra.Command, args []string) error {
	entry := args[0]
	if traceFlags.diff != "" && traceFlags.diffFrom != "" {
		fmt.Fprintln(os.Stderr, "--diff and --diff-from are mutually exclusive")
		os.Exit(exitInvalidArgs)
	}
	if _, err := os.Stat(entry); err != nil {
		fmt.Fprintf(os.Stderr, "unresolvable entry %q: %v\n", entry, err)
		os.Exit(exitUnresolvedEntry)
	}

	level := slog.LevelInfo
	if traceFlags.quiet {
		level = slog.LevelError
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts := trace.Options{
		Entry:          entry,
		Chain:          traceFlags.chain,
		Cut:            traceFlags.cut,
		Diff:           traceFlags.diff,
		DiffFrom:       traceFlags.diffFrom,
		Save:           traceFlags.save,
		IncludeDynamic: traceFlags.includeDynamic,
		Top:            traceFlags.top,
		TopModules:     traceFlags.topModules,
		NoCache:        traceFlags.noCache,
		Quiet:          traceFlags.quiet,
	}

	rep, err := trace.Run(context.Background(), log, opts)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitUnresolvedEntry)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUnrecoverableIO)
	}

	if traceFlags.jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitUnrecoverableIO)
		}
		return nil
	}

	printHuman(rep)
	return nil
}

func printHuman(rep *report.Report) {
	fmt.Printf("entry: %s\n", rep.Entry)
	fmt.Printf("static:  %d bytes across %d modules\n", rep.StaticBytes, rep.StaticModules)
	fmt.Printf("dynamic: +%d bytes across %d modules (with --include-dynamic)\n", rep.DynamicBytes, rep.DynamicModules)

	if len(rep.Heavy) > 0 {
		fmt.Println("\nheaviest dependencies:")
		for _, h := range rep.Heavy {
			fmt.Printf("  %-30s %10d bytes  %4d files\n", h.Package, h.Bytes, h.Files)
			if len(h.Chain) > 0 {
				fmt.Printf("    chain: %v\n", h.Chain)
			}
		}
	}

	if rep.Unresolved != nil {
		fmt.Printf("\n%q never resolved to a file, but is referenced (unresolved) from:\n", rep.Unresolved.Package)
		for _, path := range rep.Unresolved.ReferencedBy {
			fmt.Printf("  %s\n", path)
		}
	}

	if rep.Diff != nil {
		fmt.Println("\ndiff:")
		fmt.Printf("  only in A: %v\n", rep.Diff.OnlyInA)
		fmt.Printf("  only in B: %v\n", rep.Diff.OnlyInB)
		fmt.Printf("  shared:    %v\n", rep.Diff.Shared)
		fmt.Printf("  delta bytes: %d\n", rep.Diff.DeltaBytes)
	}
}
