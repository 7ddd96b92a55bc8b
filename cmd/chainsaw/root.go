package main

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:   "chainsaw",
	Short: "Traces what a TS/JS/Python entry file pulls in at module-load time.",
}

func init() {
	rootCmd.AddCommand(traceCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(pullCmd)
}
