package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "deadratbot",
	Short: "deadratbot is a long-polling bot for the DeadRat chat API",
	Long: `deadratbot connects to the DeadRat chat API via long polling,
routes incoming messages to command and catch-all handlers, and replies
through the same API. It is also the reference application for the
pkg/deadrat client library.`,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(versionCmd)
}
