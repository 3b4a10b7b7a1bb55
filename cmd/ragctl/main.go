// Command ragctl runs the research assistant in-process: ingest sources, ask questions and
// serve the MCP tools over stdio.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
