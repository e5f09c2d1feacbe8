package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cyris/internal/config"
	"cyris/internal/logging"
)

// Version is set at build time
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "cyris",
	Short: "Cyris AI chat server",
	Long: `cyris serves the Cyris AI chat API: chat history for signed-in users and
guests, autopick routing through a router model, public share links and the
migration of guest chats into an account.

Examples:
  cyris serve                       Start the HTTP server
  cyris migrate up                  Apply database migrations
  cyris route decode '<routePrompt prompt="hi" model="openai/gpt-4o"/>'
  cyris token issue user-123        Issue a session token for local testing`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and configures the process logger
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logging.Configure(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
	})
	return cfg, nil
}
