package main

import (
	"github.com/spf13/cobra"

	"github.com/MrWong99/bestiary/internal/mcptool"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the generator as MCP tools on stdio",
	Long: `Runs a Model Context Protocol server on stdin/stdout exposing the
generate_monster and narrative_questions tools. Logs are written to stderr.

Example client configuration:

  {"command": "bestiary", "args": ["mcp", "--config", "/path/to/config.yaml"]}`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	a, err := newApplication(ctx, cfg)
	if err != nil {
		return err
	}
	defer shutdown(a)

	return mcptool.Serve(ctx, mcptool.NewServer(a, version, nil))
}
