package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	debugLogs bool
	showStats bool
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugLogs, "debug", false, "Write debug logs to stderr")
	rootCmd.PersistentFlags().BoolVar(&showStats, "stats", false, "Show turn statistics (time, tokens, tool calls)")
}

var rootCmd = &cobra.Command{
	Use:     "tierchat",
	Short:   "Chat with Claude, routed to the cheapest model that can answer",
	Version: Version,
	Long: `tierchat classifies each message, sends it to a cheap, mid, or premium
model, and lets the model call tools (clock, web search, weather, lookups)
before answering.

Prefix a message with /haiku, /sonnet, or /opus to pick the tier yourself.

Examples:
  tierchat ask "what time is it in Tokyo?"
  tierchat ask --session abc123 "and in Lisbon?"
  tierchat chat
  tierchat sessions
  tierchat secrets set anthropic_api_key`,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	SilenceUsage:      true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		slog.SetDefault(newLogger())
	},
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if debugLogs {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
