package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chainsaw-tool/chainsaw/internal/db"
	"github.com/chainsaw-tool/chainsaw/internal/mirror"
	"github.com/chainsaw-tool/chainsaw/internal/snapshot"
)

var pullFlags struct {
	project string
	dsn     string
	out     string
}

var pullCmd = &cobra.Command{
	Use:   "pull ENTRY_LABEL",
	Short: "Retrieve a previously pushed snapshot from Postgres and write it to disk",
	Args:  cobra.ExactArgs(1),
	RunE:  runPull,
}

func init() {
	fl := pullCmd.Flags()
	fl.StringVar(&pullFlags.project, "project", "", "project key the snapshot is stored under (required)")
	fl.StringVar(&pullFlags.dsn, "dsn", "", "Postgres connection string (defaults to CHAINSAW_DATABASE_URL)")
	fl.StringVar(&pullFlags.out, "out", "", "path to write the pulled snapshot to (required)")
	pullCmd.MarkFlagRequired("project")
	pullCmd.MarkFlagRequired("out")
}

func runPull(cmd *cobra.Command, args []string) error {
	entryLabel := args[0]

	dsn, err := resolveDSN(pullFlags.dsn)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitInvalidArgs)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUnrecoverableIO)
	}
	defer pool.Close()

	s, err := mirror.Pull(ctx, pool, pullFlags.project, entryLabel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUnrecoverableIO)
	}

	if err := snapshot.Save(pullFlags.out, s); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUnrecoverableIO)
	}

	fmt.Printf("pulled snapshot for entry %q (%d packages) to %s\n", s.EntryLabel, len(s.Packages), pullFlags.out)
	return nil
}
