package main

import (
	"os"

	"github.com/spf13/cobra"

	"infrastreet/marketplace/internal/tools"
)

var version = "dev"

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the marketplace tools over MCP stdio",
	Long: `Runs a Model Context Protocol server on stdin/stdout so an assistant can find
deals, search vendors and place orders. Logs go to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := tools.NewRegistry(app.client, logger)
		server := tools.NewServer(registry, "infrastreet", version, logger)
		return server.ServeStdio(cmd.Context(), os.Stdin, os.Stdout)
	},
}
