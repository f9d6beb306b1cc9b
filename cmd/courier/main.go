package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bowerhall/courier/internal/logger"
)

func init() {
	godotenv.Load()
}

var rootCmd = &cobra.Command{
	Use:   "courier",
	Short: "Conversational bot for a linked messaging device",
	Long: `courier links to a messaging account, answers chat, voice and image
messages with an AI model, and runs "/s " commands on the host: screenshots,
YouTube search and playback, and generated shell commands.

Configuration comes from the environment (and .env); COURIER_CONFIG may name
a YAML file with non-secret defaults.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect and serve messages until interrupted (default)",
	RunE:  runServe,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear stored link credentials so the next start issues a new code",
	RunE:  runReset,
}

var interpretCmd = &cobra.Command{
	Use:   "interpret [text]",
	Short: "Show how a message would be routed",
	Long: `Parses text with the "/s " command grammar and prints the intent and
argument, without running anything.

Example:
  courier interpret "/s search youtube for lofi beats"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInterpret,
}

func main() {
	rootCmd.AddCommand(serveCmd, resetCmd, interpretCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.Error("courier exited", "error", err)
		os.Exit(1)
	}
}
