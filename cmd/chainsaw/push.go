package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chainsaw-tool/chainsaw/internal/config"
	"github.com/chainsaw-tool/chainsaw/internal/db"
	"github.com/chainsaw-tool/chainsaw/internal/mirror"
	"github.com/chainsaw-tool/chainsaw/internal/snapshot"
)

var pushFlags struct {
	project string
	dsn     string
}

var pushCmd = &cobra.Command{
	Use:   "push SNAPSHOT_PATH",
	Short: "Persist a saved snapshot (see --save) to Postgres under a project key",
	Args:  cobra.ExactArgs(1),
	RunE:  runPush,
}

func init() {
	f := pushCmd.Flags()
	f.StringVar(&pushFlags.project, "project", "", "project key the snapshot is stored under (required)")
	f.StringVar(&pushFlags.dsn, "dsn", "", "Postgres connection string (defaults to CHAINSAW_DATABASE_URL)")
	pushCmd.MarkFlagRequired("project")
}

func runPush(cmd *cobra.Command, args []string) error {
	path := args[0]

	s, err := snapshot.Load(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUnrecoverableIO)
	}

	dsn, err := resolveDSN(pushFlags.dsn)
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

	if err := mirror.Push(ctx, pool, pushFlags.project, s); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUnrecoverableIO)
	}

	fmt.Printf("pushed snapshot for entry %q (%d packages) under project %q\n", s.EntryLabel, len(s.Packages), pushFlags.project)
	return nil
}

func resolveDSN(flagDSN string) (string, error) {
	if flagDSN != "" {
		return flagDSN, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	if cfg.DatabaseURL == "" {
		return "", fmt.Errorf("no database URL: pass --dsn or set CHAINSAW_DATABASE_URL")
	}
	return cfg.DatabaseURL, nil
}
