package main

import (
	"github.com/akolanti/ResearchAssistant/internal/mcpserver"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio",
	Long: `Starts a Model Context Protocol server on stdin and stdout exposing the
ask, search_sources and document_status tools.

Client configuration:
  {
    "mcpServers": {
      "research-assistant": {
        "command": "/path/to/ragctl",
        "args": ["mcp"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return mcpserver.New(app.Rag, app.Documents).RunStdio(appContext)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
