// Package main implements the journalgpt CLI: guided journaling with AI
// feedback and questions answered from your own entries.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	// configPath overrides ~/.config/journalgpt/config.yaml
	configPath string
	// userID overrides the configured journal owner
	userID string
	// version information (set via ldflags during build)
	version = "dev"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "journalgpt",
	Short: "Journal with AI feedback and ask questions about yourself",
	Long: `journalgpt stores journal entries as embeddings and uses them to answer
questions about your moods, habits and patterns.

Running journalgpt without a subcommand opens the interactive menu.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE:          runMenu,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/journalgpt/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "journal owner (default $USER_ID, then anonymous)")

	rootCmd.AddCommand(menuCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(serveCmd)
}

// menuCmd is the explicit form of the root command.
var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Open the interactive menu",
	Args:  cobra.NoArgs,
	RunE:  runMenu,
}

// writeCmd gets feedback on an entry and stores it.
var writeCmd = &cobra.Command{
	Use:   "write [file|-]",
	Short: "Write a journal entry, get feedback and store it",
	Long: `Write a journal entry, get AI feedback on it, then store it.

Without an argument the entry is typed interactively; press ENTER on an
empty line to submit.

Examples:
  # Type an entry
  journalgpt write

  # Store a file
  journalgpt write today.md

  # Read from stdin
  cat today.md | journalgpt write -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWrite,
}

// chatCmd opens a chat session.
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat about your personality and behavior",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

// askCmd answers one question.
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask one question about yourself",
	Long: `Ask one question about yourself, answered from your journal entries.

Examples:
  journalgpt ask "When do I feel calm?"
  journalgpt --user alice ask "What drains my energy?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

// serveCmd runs the HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the journal over HTTP",
	Long: `Serve the journal over a JSON API.

Endpoints:
  GET  /health
  GET  /metrics
  POST /api/v1/entries   {"user_id","text"}
  POST /api/v1/feedback  {"text"}
  POST /api/v1/ask       {"user_id","question"}`,
	Args: cobra.NoArgs,
	RunE: runServe,
}
