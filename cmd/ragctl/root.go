package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/akolanti/ResearchAssistant/internal/config"
	"github.com/akolanti/ResearchAssistant/internal/wiring"
	"github.com/akolanti/ResearchAssistant/pkg/logger_i"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	outputJSON bool

	// buildApp is swapped in tests.
	buildApp = wiring.Build

	app        *wiring.App
	appContext context.Context
	closeApp   context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "Research assistant command line",
	Long: `ragctl ingests documents and answers questions about them with citations.
It runs the same services as the API server in-process, configured from
config.yaml, .env and the environment.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: teardown,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "print results as JSON")
}

// setup builds the services once per invocation. Logs go to stderr so stdout stays usable
// for results and the MCP protocol.
func setup(cmd *cobra.Command, _ []string) error {
	if !cmd.Runnable() || cmd.Name() == "help" || cmd.Name() == "completion" {
		return nil
	}
	_ = godotenv.Load()
	settings, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger_i.InitWithWriter(os.Stderr, settings.IsProd(), logLevel)

	appContext, closeApp = context.WithCancel(cmd.Context())
	app, err = buildApp(appContext, settings)
	if err != nil {
		closeApp()
		return fmt.Errorf("failed to start services: %w", err)
	}
	return nil
}

func teardown(_ *cobra.Command, _ []string) {
	if closeApp != nil {
		closeApp()
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
