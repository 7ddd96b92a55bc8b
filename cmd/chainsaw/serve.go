package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/chainsaw-tool/chainsaw/internal/api"
	"github.com/chainsaw-tool/chainsaw/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a read-only HTTP server for on-demand traces",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
		return api.Run(log, cfg.ServerPort)
	},
}
